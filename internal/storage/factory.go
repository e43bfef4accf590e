package storage

import (
	"context"
	"fmt"
	"strings"

	appconfig "github.com/fedutinova/narrator/internal/config"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeS3    Mode = "s3"
)

// ParseMode maps STORAGE_MODE values, including their aliases, to a Mode.
// An empty value selects local storage.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "local", "filesystem":
		return ModeLocal, nil
	case "s3", "aws", "localstack":
		return ModeS3, nil
	default:
		return "", fmt.Errorf("unknown storage mode %q", s)
	}
}

func NewStorage(ctx context.Context, cfg appconfig.Config) (Storage, error) {
	mode, err := ParseMode(cfg.StorageMode)
	if err != nil {
		return nil, err
	}
	if mode == ModeS3 {
		return NewS3Storage(ctx, cfg)
	}
	return NewLocalStorage(cfg.LocalStorageDir, cfg.LocalStorageURL)
}

// Describe names the backend for startup logs.
func Describe(cfg appconfig.Config) string {
	mode, err := ParseMode(cfg.StorageMode)
	switch {
	case err != nil:
		return "unknown"
	case mode == ModeS3 && isLocalStack(cfg.S3Endpoint):
		return "LocalStack S3 (" + cfg.S3Bucket + ")"
	case mode == ModeS3:
		return "AWS S3 (" + cfg.S3Bucket + ")"
	default:
		return "Local Filesystem (" + cfg.LocalStorageDir + ")"
	}
}

func isLocalStack(endpoint string) bool {
	return endpoint != "" && (strings.Contains(endpoint, "localstack") || strings.Contains(endpoint, ":4566"))
}
