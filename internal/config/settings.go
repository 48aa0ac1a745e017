package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Jeffrey0117/Ytify/internal/model"
	"github.com/Jeffrey0117/Ytify/internal/storage"
)

// Settings holds all configuration options.
type Settings struct {
	// Server settings
	ListenAddr string `json:"listen_addr"`

	// Download settings
	DownloadsPath  string     `json:"downloads_path"`
	MaxConcurrent  int        `json:"max_concurrent"`
	DefaultQuality model.Tier `json:"default_quality"`
	YtDlpPath      string     `json:"ytdlp_path"`
	CookiesPath    string     `json:"cookies_path,omitempty"`

	// Cover art settings (audio mode)
	ModifyTags            bool `json:"modify_tags"`
	SaveCoverArtInTags    bool `json:"save_cover_art_in_tags"`
	CoverArtInTagsMaxSize int  `json:"cover_art_in_tags_max_size"`

	// Proxy settings
	ProxyPoolAPI   string   `json:"proxy_pool_api,omitempty"`
	Proxies        []string `json:"proxies,omitempty"`
	ProxyAttempts  int      `json:"proxy_attempts"`
	ProbeURL       string   `json:"probe_url"`
	ProbeTimeout   Duration `json:"probe_timeout"`
	NotifierBuffer int      `json:"notifier_buffer"`

	// History
	HistoryPath string `json:"history_path"`

	// Status mirror (Redis); empty address disables it
	RedisAddr     string   `json:"redis_addr,omitempty"`
	RedisPassword string   `json:"redis_password,omitempty"`
	RedisDB       int      `json:"redis_db"`
	StatusTTL     Duration `json:"status_ttl"`

	// Object storage (MinIO); empty endpoint disables uploads
	Storage storage.Config `json:"storage"`

	// Logging
	LogLevel  string `json:"log_level"`  // debug, info, warn, error
	LogFormat string `json:"log_format"` // text, json
}

// Duration is a time.Duration written as a string ("8s", "24h") in JSON.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler. Bare numbers are seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var secs float64
		if err := json.Unmarshal(b, &secs); err != nil {
			return fmt.Errorf("duration: %s", b)
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	return &Settings{
		ListenAddr: ":8765",

		DownloadsPath:  "downloads",
		MaxConcurrent:  3,
		DefaultQuality: model.TierBest,
		YtDlpPath:      "yt-dlp",

		ModifyTags:            true,
		SaveCoverArtInTags:    true,
		CoverArtInTagsMaxSize: 500,

		ProxyAttempts:  20,
		ProbeURL:       "https://www.youtube.com/",
		ProbeTimeout:   Duration(8 * time.Second),
		NotifierBuffer: 256,

		HistoryPath: filepath.Join("data", "history.db"),

		StatusTTL: Duration(24 * time.Hour),

		Storage: storage.Config{
			Bucket: "ytify",
		},

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads settings from a JSON file.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// Save writes settings to a JSON file.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides settings from environment variables read through
// getenv (os.Getenv in production). Unset or malformed values leave the
// setting alone.
func (s *Settings) ApplyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, err := strconv.Atoi(strings.TrimSpace(getenv(key))); err == nil {
			*dst = v
		}
	}

	str("YTIFY_LISTEN_ADDR", &s.ListenAddr)
	str("YTIFY_DOWNLOADS_PATH", &s.DownloadsPath)
	num("YTIFY_MAX_CONCURRENT", &s.MaxConcurrent)
	str("YTIFY_YTDLP_PATH", &s.YtDlpPath)
	str("YTIFY_COOKIES_PATH", &s.CookiesPath)
	str("YTIFY_PROXY_POOL_API", &s.ProxyPoolAPI)
	if v := strings.TrimSpace(getenv("YTIFY_PROXIES")); v != "" {
		s.Proxies = strings.Split(v, ",")
	}
	str("YTIFY_HISTORY_PATH", &s.HistoryPath)

	str("REDIS_ADDR", &s.RedisAddr)
	str("REDIS_PASSWORD", &s.RedisPassword)
	num("REDIS_DB", &s.RedisDB)

	str("MINIO_ENDPOINT", &s.Storage.Endpoint)
	str("MINIO_ACCESS_KEY", &s.Storage.AccessKey)
	str("MINIO_SECRET_KEY", &s.Storage.SecretKey)
	str("MINIO_BUCKET", &s.Storage.Bucket)
	str("MINIO_REGION", &s.Storage.Region)
	if v := strings.TrimSpace(getenv("MINIO_USE_SSL")); v != "" {
		s.Storage.UseSSL = strings.EqualFold(v, "true")
	}

	str("LOG_LEVEL", &s.LogLevel)
	str("LOG_FORMAT", &s.LogFormat)
}

// Level maps LogLevel to a slog level, defaulting to info.
func (s *Settings) Level() slog.Level {
	switch strings.ToLower(strings.TrimSpace(s.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger builds the process logger writing to w.
func (s *Settings) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: s.Level()}
	if strings.EqualFold(s.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
