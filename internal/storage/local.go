package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fedutinova/narrator/internal/common"
	"github.com/gabriel-vasile/mimetype"
)

type LocalStorage struct {
	baseDir string
	baseURL string
}

func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// path resolves key inside baseDir; keys cannot escape it.
func (s *LocalStorage) path(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(filepath.Clean("/"+key)))
}

func (s *LocalStorage) UploadFile(ctx context.Context, key string, content io.Reader, contentType string) (*UploadResult, error) {
	filePath := s.path(key)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory structure: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(filePath), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	size, err := io.Copy(f, content)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(f.Name(), filePath); err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("failed to move file into place: %w", err)
	}

	slog.Info("file uploaded to local storage", "key", key, "path", filePath, "size", size, "content_type", contentType)

	return &UploadResult{
		Key: key,
		URL: fmt.Sprintf("%s/%s", s.baseURL, key),
	}, nil
}

func (s *LocalStorage) GetPresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	// for local storage, just return the direct URL (no expiration)
	return fmt.Sprintf("%s/%s", s.baseURL, key), nil
}

func (s *LocalStorage) DeleteFile(ctx context.Context, key string) error {
	filePath := s.path(key)

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return common.WrapNotFound("file", err)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	slog.Info("file deleted from local storage", "key", key, "path", filePath)
	return nil
}

func (s *LocalStorage) GetFile(ctx context.Context, key string) (io.ReadCloser, string, error) {
	filePath := s.path(key)

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%s: %w", key, common.ErrFileNotFound)
		}
		return nil, "", fmt.Errorf("failed to stat file: %w", err)
	}
	if fileInfo.IsDir() {
		return nil, "", fmt.Errorf("%s: %w", key, common.ErrFileNotFound)
	}

	mt, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to detect content type: %w", err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}

	slog.Debug("file opened from local storage",
		"key", key,
		"path", filePath,
		"size", fileInfo.Size(),
		"content_type", mt.String())

	return file, mt.String(), nil
}

func (s *LocalStorage) Ping(ctx context.Context) error {
	info, err := os.Stat(s.baseDir)
	if err != nil {
		return fmt.Errorf("storage directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage path %s is not a directory", s.baseDir)
	}
	return nil
}
