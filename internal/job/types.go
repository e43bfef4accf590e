package job

import (
	"maps"
	"time"

	uuid "github.com/google/uuid"
)

// Kind selects the external worker that executes a job.
type Kind string

const (
	KindSynthesis Kind = "synthesis"
	KindOCR       Kind = "ocr"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Log levels carried by log events.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

type Job struct {
	ID                 uuid.UUID
	Kind               Kind
	Status             Status
	Progress           float64
	Message            string
	OutputArtifactPath string
	ArtifactURL        string
	Error              string
	ProcessedPages     int
	TotalPages         int
	Params             map[string]string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Clone returns a copy that shares no mutable state with j.
func (j Job) Clone() Job {
	j.Params = maps.Clone(j.Params)
	return j
}

// ClampedProgress returns Progress bounded to [0, 100].
func (j Job) ClampedProgress() float64 {
	switch {
	case j.Progress < 0:
		return 0
	case j.Progress > 100:
		return 100
	default:
		return j.Progress
	}
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Status             *Status
	Progress           *float64
	Message            *string
	OutputArtifactPath *string
	ArtifactURL        *string
	Error              *string
	ProcessedPages     *int
	TotalPages         *int
}

// OnlyArtifactURL reports whether the patch touches nothing but ArtifactURL.
func (p Patch) OnlyArtifactURL() bool {
	return p.Status == nil && p.Progress == nil && p.Message == nil &&
		p.OutputArtifactPath == nil && p.Error == nil &&
		p.ProcessedPages == nil && p.TotalPages == nil
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T {
	return &v
}
