package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/fedutinova/narrator/internal/job"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// JobWriter is the registry subset the publisher records results in.
type JobWriter interface {
	Update(id uuid.UUID, p job.Patch) (job.Job, error)
	Log(id uuid.UUID, level, message string) error
}

// Publisher uploads the artifact of a completed job and stores its
// download URL on the job.
type Publisher struct {
	store  Storage
	jobs   JobWriter
	urlTTL time.Duration
}

// NewPublisher creates a publisher. A positive urlTTL hands out presigned
// URLs instead of plain object URLs.
func NewPublisher(store Storage, jobs JobWriter, urlTTL time.Duration) *Publisher {
	return &Publisher{store: store, jobs: jobs, urlTTL: urlTTL}
}

// ArtifactKey is the object key of a job's artifact.
func ArtifactKey(j job.Job) string {
	return path.Join("artifacts", string(j.Kind), j.ID.String(), filepath.Base(j.OutputArtifactPath))
}

// Publish is a no-op for jobs that did not complete with an artifact.
func (p *Publisher) Publish(ctx context.Context, j job.Job) (string, error) {
	if j.Status != job.StatusCompleted || j.OutputArtifactPath == "" {
		return "", nil
	}

	f, err := os.Open(j.OutputArtifactPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "", fmt.Errorf("detect artifact type: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind artifact: %w", err)
	}

	key := ArtifactKey(j)
	res, err := p.store.UploadFile(ctx, key, f, mt.String())
	if err != nil {
		return "", err
	}

	url := res.URL
	if p.urlTTL > 0 {
		signed, err := p.store.GetPresignedURL(ctx, key, p.urlTTL)
		if err != nil {
			slog.Warn("presigning artifact failed, using object URL", "id", j.ID, "key", key, "error", err)
		} else {
			url = signed
		}
	}

	if _, err := p.jobs.Update(j.ID, job.Patch{ArtifactURL: job.Ptr(url)}); err != nil {
		// nothing refers to the object any more
		if derr := p.store.DeleteFile(ctx, key); derr != nil {
			slog.Warn("removing unrecorded artifact failed", "id", j.ID, "key", key, "error", derr)
		}
		return "", fmt.Errorf("record artifact url: %w", err)
	}
	_ = p.jobs.Log(j.ID, job.LevelInfo, "artifact published: "+url)
	slog.Info("artifact published", "id", j.ID, "kind", j.Kind, "key", key, "content_type", mt.String())
	return url, nil
}

// Hook matches the supervisor completion hook. Publishing failures do not
// change the job outcome and are reported as job log lines.
func (p *Publisher) Hook(ctx context.Context, j job.Job) {
	if _, err := p.Publish(ctx, j); err != nil {
		slog.Error("artifact publishing failed", "id", j.ID, "error", err)
		_ = p.jobs.Log(j.ID, job.LevelWarn, "artifact publishing failed: "+err.Error())
	}
}
