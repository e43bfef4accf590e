// Package registry keeps the authoritative in-memory state of jobs and
// publishes every change through a broadcaster.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fedutinova/narrator/internal/broadcast"
	"github.com/fedutinova/narrator/internal/common"
	"github.com/fedutinova/narrator/internal/job"
	"github.com/fedutinova/narrator/internal/metrics"
	"github.com/google/uuid"
)

type Registry struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*job.Job

	events  *broadcast.Broadcaster[job.Event]
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Registry)

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func New(opts ...Option) *Registry {
	r := &Registry{
		jobs:   make(map[uuid.UUID]*job.Job),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.events = broadcast.New(func() job.Event { return r.Snapshot() }, broadcast.WithLogger(r.logger))
	return r
}

// CreateOptions describes a new job.
type CreateOptions struct {
	Params  map[string]string
	Message string
	// StartRunning creates the job directly in the running state.
	StartRunning bool
}

// Create registers a new job and publishes it.
func (r *Registry) Create(kind job.Kind, opts CreateOptions) job.Job {
	var out job.Job
	r.events.Atomically(func(publish func(job.Event)) {
		now := r.now()
		j := &job.Job{
			ID:        uuid.New(),
			Kind:      kind,
			Status:    job.StatusQueued,
			Message:   opts.Message,
			Params:    opts.Params,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if opts.StartRunning {
			j.Status = job.StatusRunning
		}

		r.mu.Lock()
		r.jobs[j.ID] = j
		out = readView(j)
		r.mu.Unlock()

		publish(job.ChangedEvent{Job: out})
	})

	r.metrics.JobTransition(string(kind), string(out.Status))
	r.logger.Info("job created", "id", out.ID, "kind", kind, "status", out.Status)
	return out
}

// Update merges p into the job with the given id and publishes the result.
// Unknown ids are never created implicitly.
func (r *Registry) Update(id uuid.UUID, p job.Patch) (job.Job, error) {
	var (
		out     job.Job
		err     error
		changed bool
	)
	r.events.Atomically(func(publish func(job.Event)) {
		r.mu.Lock()
		j, ok := r.jobs[id]
		if !ok {
			r.mu.Unlock()
			err = common.ErrJobNotFound
			return
		}
		prev := j.Status
		if err = apply(j, p, r.now()); err != nil {
			r.mu.Unlock()
			return
		}
		changed = prev != j.Status
		out = readView(j)
		r.mu.Unlock()

		publish(job.ChangedEvent{Job: out})
	})

	switch {
	case errors.Is(err, common.ErrJobNotFound):
		r.logger.Warn("update for unknown job ignored", "id", id)
		return job.Job{}, err
	case err != nil:
		r.logger.Debug("job update rejected", "id", id, "err", err)
		return job.Job{}, err
	}

	if changed {
		r.metrics.JobTransition(string(out.Kind), string(out.Status))
		r.logger.Info("job status changed", "id", id, "kind", out.Kind, "status", out.Status)
	}
	return out, nil
}

func apply(j *job.Job, p job.Patch, now time.Time) error {
	if job.IsTerminal(j.Status) && !p.OnlyArtifactURL() {
		return fmt.Errorf("job %s is %s: %w", j.ID, j.Status, common.ErrJobTerminal)
	}

	next := j.Status
	if p.Status != nil {
		next = *p.Status
		if !job.CanTransition(j.Status, next) {
			return fmt.Errorf("%s -> %s: %w", j.Status, next, common.ErrInvalidTransition)
		}
	}
	if p.OutputArtifactPath != nil && next != job.StatusCompleted {
		return common.ValidationError{Field: "output_artifact_path", Message: "only set when completing a job"}
	}
	if p.Error != nil && next != job.StatusFailed {
		return common.ValidationError{Field: "error", Message: "only set when failing a job"}
	}

	j.Status = next
	if p.Progress != nil {
		j.Progress = *p.Progress
	}
	if p.Message != nil {
		j.Message = *p.Message
	}
	if p.OutputArtifactPath != nil {
		j.OutputArtifactPath = *p.OutputArtifactPath
	}
	if p.ArtifactURL != nil {
		j.ArtifactURL = *p.ArtifactURL
	}
	if p.Error != nil {
		j.Error = *p.Error
	}
	if p.ProcessedPages != nil {
		j.ProcessedPages = *p.ProcessedPages
	}
	if p.TotalPages != nil {
		j.TotalPages = *p.TotalPages
	}

	switch next {
	case job.StatusCompleted:
		j.Progress = 100
		j.Error = ""
	case job.StatusFailed:
		j.OutputArtifactPath = ""
		j.ArtifactURL = ""
	}
	j.UpdatedAt = now
	return nil
}

// Log publishes a log line attached to a job.
func (r *Registry) Log(id uuid.UUID, level, message string) error {
	r.mu.RLock()
	_, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("log for unknown job ignored", "id", id)
		return common.ErrJobNotFound
	}

	r.events.Publish(job.LogEvent{
		JobID:     id,
		Level:     normalizeLevel(level),
		Message:   message,
		Timestamp: r.now(),
	})
	return nil
}

func normalizeLevel(level string) string {
	switch level {
	case job.LevelDebug, job.LevelInfo, job.LevelWarn, job.LevelError:
		return level
	case "warning":
		return job.LevelWarn
	default:
		return job.LevelInfo
	}
}

// Get returns a copy of the job.
func (r *Registry) Get(id uuid.UUID) (job.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return job.Job{}, false
	}
	return readView(j), true
}

// Snapshot returns every job, newest first.
func (r *Registry) Snapshot() job.SnapshotEvent {
	r.mu.RLock()
	jobs := make([]job.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, readView(j))
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(a, b int) bool {
		if jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].ID.String() < jobs[b].ID.String()
		}
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})
	return job.SnapshotEvent{Jobs: jobs}
}

// Counts returns the number of jobs per status.
func (r *Registry) Counts() map[job.Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[job.Status]int, 4)
	for _, j := range r.jobs {
		out[j.Status]++
	}
	return out
}

// Subscribe registers h. h first receives a SnapshotEvent and then every
// ChangedEvent and LogEvent published afterwards.
func (r *Registry) Subscribe(h func(job.Event)) (unsubscribe func()) {
	return r.events.Subscribe(h)
}

// Stats exposes broadcaster counters.
func (r *Registry) Stats() broadcast.Stats {
	return r.events.Stats()
}

func readView(j *job.Job) job.Job {
	out := j.Clone()
	out.Progress = j.ClampedProgress()
	return out
}
