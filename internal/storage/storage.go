// Package storage keeps finished job artifacts on the local filesystem or
// in S3 and publishes their download URLs.
package storage

import (
	"context"
	"io"
	"time"
)

type Storage interface {
	UploadFile(ctx context.Context, key string, content io.Reader, contentType string) (*UploadResult, error)
	GetFile(ctx context.Context, key string) (io.ReadCloser, string, error)
	GetPresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error)
	DeleteFile(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

type UploadResult struct {
	Key string
	URL string
}
