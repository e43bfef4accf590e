package http

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/fedutinova/narrator/internal/job"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Jobs      map[string]int   `json:"jobs,omitempty"`
	System    *SystemInfo      `json:"system,omitempty"`
}

// Check represents a single health check result
type Check struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_mb"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

// Health returns basic health status (for load balancer)
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready checks storage, the optional event mirror and worker capacity.
// Storage is required; everything else only degrades the answer.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	overall := StatusHealthy
	degrade := func(name string, c Check) {
		checks[name] = c
		if c.Status != StatusHealthy && overall == StatusHealthy {
			overall = StatusDegraded
		}
	}

	storageCheck := h.checkStorage(ctx)
	checks["storage"] = storageCheck
	if storageCheck.Status != StatusHealthy {
		overall = StatusUnhealthy
	}
	if h.Redis != nil {
		degrade("redis", h.checkRedis(ctx))
	}
	degrade("workers", h.checkWorkers())
	degrade("events", h.checkEvents())

	jobs := make(map[string]int)
	for status, n := range h.Jobs.Counts() {
		jobs[string(status)] = n
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	status := HealthStatus{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Jobs:      jobs,
		System: &SystemInfo{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAlloc:     memStats.Alloc / 1024 / 1024,
		},
	}

	code := http.StatusOK
	if overall == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func timed(fn func() error) Check {
	start := time.Now()
	err := fn()
	duration := time.Since(start)
	if err != nil {
		return Check{Status: StatusUnhealthy, Message: err.Error(), Duration: duration.String()}
	}
	return Check{Status: StatusHealthy, Message: "connection successful", Duration: duration.String()}
}

func (h *Handlers) checkStorage(ctx context.Context) Check {
	return timed(func() error { return h.Storage.Ping(ctx) })
}

func (h *Handlers) checkRedis(ctx context.Context) Check {
	return timed(func() error { return h.Redis.Ping(ctx) })
}

// checkWorkers reports process slots in use and which kinds can run.
func (h *Handlers) checkWorkers() Check {
	running := 0
	if h.Processes != nil {
		running = h.Processes.Running()
	}
	queued := h.Jobs.Counts()[job.StatusQueued]

	status := StatusHealthy
	message := "workers operational"
	if kinds := h.Dispatcher.Catalog().Kinds(); len(kinds) == 0 {
		status = StatusDegraded
		message = "no worker commands configured"
	} else if limit := h.Config.MaxWorkerProcesses; limit > 0 && running > limit {
		status = StatusDegraded
		message = "jobs waiting for a worker slot"
	}

	return Check{
		Status:  status,
		Message: fmt.Sprintf("%s (running: %d, queued: %d)", message, running, queued),
	}
}

// checkEvents flags subscribers whose handlers panicked.
func (h *Handlers) checkEvents() Check {
	stats := h.Jobs.Stats()
	if stats.Panicked > 0 {
		return Check{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%d subscriber panics (subscribers: %d)", stats.Panicked, stats.Subscribers),
		}
	}
	return Check{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("subscribers: %d, published: %d", stats.Subscribers, stats.Published),
	}
}
