// Package storage uploads finished downloads to S3-compatible object
// storage (MinIO).
package storage
