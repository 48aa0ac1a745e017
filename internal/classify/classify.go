package classify

import (
	"regexp"
	"strings"
	"time"
)

// Category is a failure class shared by every error it matches.
type Category string

const (
	RateLimited        Category = "rate_limited"
	GeoBlocked         Category = "geo_blocked"
	PrivateContent     Category = "private_video"
	AgeRestricted      Category = "age_restricted"
	NetworkTransient   Category = "network_error"
	EgressTransient    Category = "proxy_error"
	FormatUnavailable  Category = "format_error"
	ContentUnavailable Category = "unavailable"
	Copyright          Category = "copyright"
	LiveInProgress     Category = "live_stream"
	Unknown            Category = "unknown"
)

// Policy is the fixed retry behavior of a Category.
type Policy struct {
	Category         Category      `json:"category"`
	Retryable        bool          `json:"retryable"`
	MaxRetries       int           `json:"max_retries"`
	Backoff          time.Duration `json:"backoff"`
	RotateEgress     bool          `json:"rotate_egress"`
	DowngradeQuality bool          `json:"downgrade_quality"`

	// Message is the English explanation shown to users.
	Message string `json:"message_en"`

	// MessageLocalized is the zh-TW explanation shown to users.
	MessageLocalized string `json:"message"`
}

type rule struct {
	category Category
	patterns []*regexp.Regexp
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile("(?i)" + p)
	}
	return out
}

// Order matters: the first matching category wins.
var rules = []rule{
	{RateLimited, compile(
		`HTTP Error 429`,
		`rate.?limit`,
		`too many requests`,
		`quota exceeded`,
		`請求過於頻繁`,
	)},
	{GeoBlocked, compile(
		`geo.?blocked`,
		`not available in your country`,
		`video is not available`,
		`地區限制`,
		`has not made this video available in your country`,
	)},
	{PrivateContent, compile(
		`private video`,
		`video is private`,
		`私人影片`,
		`Sign in to confirm your age`,
	)},
	{AgeRestricted, compile(
		`age.?restrict`,
		`confirm your age`,
		`年齡限制`,
		`Sign in to confirm`,
	)},
	{NetworkTransient, compile(
		`connection reset`,
		`connection refused`,
		`connection timed out`,
		`network is unreachable`,
		`socket timeout`,
		`read timed out`,
		`urlopen error`,
		`getaddrinfo failed`,
		`Name or service not known`,
		`Temporary failure in name resolution`,
	)},
	{EgressTransient, compile(
		`proxy`,
		`tunnel connection failed`,
		`Cannot connect to proxy`,
		`407 Proxy Authentication Required`,
	)},
	{FormatUnavailable, compile(
		`requested format not available`,
		`format.?not.?available`,
		`format is not available`,
		`no video formats`,
		`格式不可用`,
	)},
	{ContentUnavailable, compile(
		`Video unavailable`,
		`This video is unavailable`,
		`影片不存在`,
		`This video has been removed`,
		`This video is no longer available`,
	)},
	{Copyright, compile(
		`copyright`,
		`blocked.*copyright`,
		`This video contains content from`,
		`版權`,
	)},
	{LiveInProgress, compile(
		`live stream`,
		`is live`,
		`Premieres in`,
		`直播`,
	)},
}

var policies = map[Category]Policy{
	RateLimited: {
		Retryable: true, MaxRetries: 3, Backoff: 60 * time.Second, RotateEgress: true,
		Message:          "Rate limited by the remote service. Will retry with a different proxy.",
		MessageLocalized: "遠端服務頻率限制，將使用不同代理重試",
	},
	GeoBlocked: {
		Retryable: true, MaxRetries: 5, Backoff: 2 * time.Second, RotateEgress: true,
		Message:          "Content is geo-blocked. Trying a different proxy.",
		MessageLocalized: "影片有地區限制，嘗試使用其他代理",
	},
	PrivateContent: {
		Message:          "This video is private and cannot be downloaded.",
		MessageLocalized: "這是私人影片，無法下載",
	},
	AgeRestricted: {
		Message:          "Age-restricted video. Please provide cookies.",
		MessageLocalized: "年齡限制影片，需要提供 cookies",
	},
	NetworkTransient: {
		Retryable: true, MaxRetries: 5, Backoff: 5 * time.Second,
		Message:          "Network error. Retrying...",
		MessageLocalized: "網路錯誤，正在重試...",
	},
	EgressTransient: {
		Retryable: true, MaxRetries: 10, Backoff: 2 * time.Second, RotateEgress: true,
		Message:          "Proxy error. Switching to a different proxy.",
		MessageLocalized: "代理錯誤，切換到其他代理",
	},
	FormatUnavailable: {
		Retryable: true, MaxRetries: 3, Backoff: 1 * time.Second, DowngradeQuality: true,
		Message:          "Requested format not available. Trying lower quality.",
		MessageLocalized: "指定格式不可用，嘗試較低畫質",
	},
	ContentUnavailable: {
		Message:          "Video is unavailable or has been removed.",
		MessageLocalized: "影片不存在或已被移除",
	},
	Copyright: {
		Message:          "Video blocked due to copyright.",
		MessageLocalized: "影片因版權問題無法下載",
	},
	LiveInProgress: {
		Message:          "Cannot download live streams. Please wait until the stream ends.",
		MessageLocalized: "無法下載直播中的影片，請等待直播結束",
	},
	Unknown: {
		Retryable: true, MaxRetries: 2, Backoff: 10 * time.Second, RotateEgress: true,
		Message:          "Unknown error occurred. Retrying...",
		MessageLocalized: "發生未知錯誤，正在重試...",
	},
}

// Classify maps raw failure text to its category and policy.
//
// Matching is case-insensitive and walks the categories in a fixed order;
// the first category with a matching pattern wins. Empty or unmatched text
// is classified as Unknown.
//
// Example:
//
//	cat, pol := classify.Classify("ERROR: HTTP Error 429: Too Many Requests")
//	// cat == classify.RateLimited, pol.MaxRetries == 3, pol.RotateEgress == true
func Classify(raw string) (Category, Policy) {
	if strings.TrimSpace(raw) != "" {
		for _, r := range rules {
			for _, p := range r.patterns {
				if p.MatchString(raw) {
					return r.category, PolicyFor(r.category)
				}
			}
		}
	}
	return Unknown, PolicyFor(Unknown)
}

// PolicyFor returns the policy of a category. Unrecognized categories get
// the Unknown policy.
func PolicyFor(c Category) Policy {
	p, ok := policies[c]
	if !ok {
		c = Unknown
		p = policies[Unknown]
	}
	p.Category = c
	return p
}

// Categories lists every category in matching order, Unknown last.
func Categories() []Category {
	out := make([]Category, 0, len(rules)+1)
	for _, r := range rules {
		out = append(out, r.category)
	}
	return append(out, Unknown)
}
