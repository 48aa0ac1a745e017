// Package config provides configuration management for ytify.
//
// This package handles:
//   - Loading and saving settings from JSON files
//   - Default configuration values
//   - Environment variable overrides
//   - Building the process logger
//
// # Default Settings
//
// Use DefaultSettings() to get sensible defaults:
//
//	settings := config.DefaultSettings()
//	// Listens on :8765
//	// Downloads to ./downloads, three at a time
//	// Direct connections (no proxy pool)
//
// # Loading from File
//
//	settings, err := config.Load("/path/to/config.json")
//	if err != nil {
//	    // Uses defaults if file doesn't exist
//	}
//	settings.ApplyEnv(os.Getenv)
//
// # Environment
//
//	YTIFY_LISTEN_ADDR     listen address
//	YTIFY_MAX_CONCURRENT  concurrent downloads
//	YTIFY_PROXY_POOL_API  proxy pool get endpoint
//	YTIFY_PROXIES         comma-separated static proxies
//	REDIS_ADDR            enables the Redis status mirror
//	MINIO_ENDPOINT        enables uploads to object storage
//	LOG_LEVEL             debug, info, warn, error
package config
