package model

import (
	"net/url"
	"strings"
)

// CleanURL reduces YouTube watch and short links to their canonical
// "https://www.youtube.com/watch?v=<id>" form, dropping playlist, timestamp
// and tracking parameters. Other URLs are returned unchanged.
//
// Example:
//
//	CleanURL("https://youtu.be/dQw4w9WgXcQ?t=42")
//	// "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
func CleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	host := strings.ToLower(parsed.Host)
	var videoID string
	switch {
	case strings.HasSuffix(host, "youtube.com"):
		videoID = parsed.Query().Get("v")
	case host == "youtu.be":
		videoID = strings.Trim(parsed.Path, "/")
	}

	if videoID == "" {
		return raw
	}
	return "https://www.youtube.com/watch?v=" + videoID
}

// IsHTTPURL reports whether raw looks like an absolute http(s) URL.
func IsHTTPURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}
