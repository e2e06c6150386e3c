// Package storage keeps archive objects in a local directory or an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by Get for a missing key
var ErrNotFound = errors.New("object not found")

// Storage is the minimal object store the archive needs
type Storage interface {
	// Put stores the object at key, replacing any previous content.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Get opens the object at key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object. Returns nil if it doesn't exist.
	Delete(ctx context.Context, key string) error
}

// Config selects and configures a backend
type Config struct {
	Driver      string // local | s3
	LocalPath   string
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
}

// New builds the configured backend
func New(cfg Config) (Storage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStorage(cfg.LocalPath)
	case "s3":
		return NewS3Storage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
