package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Jeffrey0117/Ytify/internal/audio"
	"github.com/Jeffrey0117/Ytify/internal/config"
	"github.com/Jeffrey0117/Ytify/internal/egress"
	"github.com/Jeffrey0117/Ytify/internal/history"
	ythttp "github.com/Jeffrey0117/Ytify/internal/http"
	ioutils "github.com/Jeffrey0117/Ytify/internal/io"
	"github.com/Jeffrey0117/Ytify/internal/notify"
	"github.com/Jeffrey0117/Ytify/internal/service"
	"github.com/Jeffrey0117/Ytify/internal/statusmirror"
	"github.com/Jeffrey0117/Ytify/internal/storage"
	"github.com/Jeffrey0117/Ytify/internal/ytdlp"
)

// thumbnailTimeout bounds one cover art download.
const thumbnailTimeout = 30 * time.Second

// app is the fully wired download service plus the optional stores that
// hang off it.
type app struct {
	settings *config.Settings
	logger   *slog.Logger

	svc     *service.Service
	history *history.Store
	mirror  *statusmirror.Mirror
	redis   *redis.Client
}

// newApp wires every component described by settings. Redis and MinIO are
// optional: an empty address disables them.
func newApp(ctx context.Context, settings *config.Settings, logger *slog.Logger) (*app, error) {
	a := &app{settings: settings, logger: logger}

	store, err := history.New(settings.HistoryPath, logger)
	if err != nil {
		return nil, err
	}
	a.history = store

	var uploader ytdlp.Uploader
	if settings.Storage.Endpoint != "" {
		up, err := storage.NewUploader(ctx, settings.Storage, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("object storage enabled", "endpoint", settings.Storage.Endpoint, "bucket", settings.Storage.Bucket)
		uploader = up
	}

	fetchOpts := ytdlp.Options{
		Binary:      settings.YtDlpPath,
		OutputDir:   settings.DownloadsPath,
		CookiesPath: settings.CookiesPath,
		CoverSize:   settings.CoverArtInTagsMaxSize,
		Uploader:    uploader,
		Logger:      logger,
	}
	if settings.ModifyTags {
		fetchOpts.Tagger = audio.NewTagger(audio.DefaultTagConfig())
	}
	if settings.SaveCoverArtInTags {
		fetchOpts.Images = ioutils.NewImageService()
		fetchOpts.Thumbs = ythttp.NewClient(thumbnailTimeout)
	}

	notifier := notify.New(settings.NotifierBuffer, logger)
	a.svc = service.New(service.Options{
		Fetcher:  ytdlp.NewFetcher(fetchOpts),
		Pool:     newPool(settings, logger),
		Recorder: store,
		Notifier: notifier,
		Limit:    settings.MaxConcurrent,
		Logger:   logger,
	})

	if settings.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     settings.RedisAddr,
			Password: settings.RedisPassword,
			DB:       settings.RedisDB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, status mirror will retry per event", "addr", settings.RedisAddr, "error", err)
		}
		a.mirror = statusmirror.New(a.redis, statusmirror.Options{
			TTL:    time.Duration(settings.StatusTTL),
			Logger: logger,
		})
		notifier.Subscribe("", a.mirror)
		logger.Info("status mirror enabled", "addr", settings.RedisAddr)
	}

	return a, nil
}

// newPool returns nil when no proxy source is configured.
func newPool(settings *config.Settings, logger *slog.Logger) *egress.Pool {
	var provider egress.Provider
	switch {
	case settings.ProxyPoolAPI != "":
		provider = egress.NewHTTPProvider(settings.ProxyPoolAPI)
	case len(settings.Proxies) > 0:
		provider = egress.NewStaticProvider(settings.Proxies)
	default:
		return nil
	}
	logger.Info("egress pool enabled", "provider", provider.Name())
	return egress.NewPool(egress.Options{
		Provider: provider,
		Prober: egress.HTTPProber{
			URL:     settings.ProbeURL,
			Timeout: time.Duration(settings.ProbeTimeout),
		},
		Attempts: settings.ProxyAttempts,
		Logger:   logger,
	})
}

// Close releases the stores. The service itself stops with its Run
// context.
func (a *app) Close() error {
	var errs []error
	if a.mirror != nil {
		a.mirror.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	return errors.Join(errs...)
}
