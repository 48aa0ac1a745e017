package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNoBucket is returned when no bucket is configured.
var ErrNoBucket = errors.New("storage: bucket is required")

// Config holds the object storage connection settings.
type Config struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	UseSSL    bool   `json:"use_ssl"`
	Region    string `json:"region,omitempty"`
	Bucket    string `json:"bucket"`

	// Prefix is prepended to every object name.
	Prefix string `json:"prefix,omitempty"`

	// KeepLocal leaves the local file in place after a successful upload.
	KeepLocal bool `json:"keep_local"`
}

// Uploader copies finished downloads into a bucket.
//
// Example:
//
//	up, err := storage.NewUploader(ctx, storage.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minio",
//	    SecretKey: "minio123",
//	    Bucket:    "ytify",
//	}, logger)
//	uri, err := up.Upload(ctx, "/downloads/clip.mp4") // s3://ytify/clip.mp4
type Uploader struct {
	client *minio.Client
	cfg    Config
	logger *slog.Logger
}

// NewUploader connects to the endpoint and creates the bucket if it does
// not exist.
func NewUploader(ctx context.Context, cfg Config, logger *slog.Logger) (*Uploader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("created bucket", "bucket", cfg.Bucket)
	}

	return &Uploader{client: client, cfg: cfg, logger: logger}, nil
}

// Upload puts the file at localPath into the bucket and returns its
// s3://bucket/object URI. The local file is removed afterwards unless
// KeepLocal is set.
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", err
	}

	object := ObjectName(u.cfg.Prefix, localPath)
	_, err = u.client.PutObject(ctx, u.cfg.Bucket, object, file, stat.Size(), minio.PutObjectOptions{
		ContentType: ContentType(localPath),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	u.logger.Info("uploaded output", "bucket", u.cfg.Bucket, "object", object, "size", stat.Size())

	if !u.cfg.KeepLocal {
		file.Close()
		if err := os.Remove(localPath); err != nil {
			u.logger.Warn("remove local copy failed", "path", localPath, "error", err)
		}
	}
	return URI(u.cfg.Bucket, object), nil
}

// ObjectName is the object key for localPath under prefix.
func ObjectName(prefix, localPath string) string {
	name := filepath.Base(localPath)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// URI formats the s3:// location of an object.
func URI(bucket, object string) string {
	return "s3://" + bucket + "/" + object
}

// ContentType guesses the MIME type from the file extension.
func ContentType(localPath string) string {
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	}
	if t := mime.TypeByExtension(filepath.Ext(localPath)); t != "" {
		return t
	}
	return "application/octet-stream"
}
