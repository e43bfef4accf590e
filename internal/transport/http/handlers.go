package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fedutinova/narrator/internal/common"
	"github.com/fedutinova/narrator/internal/config"
	"github.com/fedutinova/narrator/internal/job"
	"github.com/fedutinova/narrator/internal/metrics"
	"github.com/fedutinova/narrator/internal/pipeline"
	"github.com/fedutinova/narrator/internal/redis"
	"github.com/fedutinova/narrator/internal/registry"
	"github.com/fedutinova/narrator/internal/storage"
	"github.com/fedutinova/narrator/internal/validation"
	"github.com/fedutinova/narrator/internal/wire"
	"github.com/fedutinova/narrator/internal/workers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
)

// ProcessCounter reports how many jobs the supervisor currently holds.
type ProcessCounter interface {
	Running() int
}

type Handlers struct {
	Jobs       *registry.Registry
	Dispatcher *workers.Dispatcher
	Processes  ProcessCounter
	Pipeline   *pipeline.Pipeline
	// Defaults is the pipeline config requests override.
	Defaults pipeline.Config
	Storage  storage.Storage
	Redis    *redis.Service
	Metrics  *metrics.Metrics
	Config   config.Config
}

func (h *Handlers) Routers(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	// for static file serving for local storage
	if mode, _ := storage.ParseMode(h.Config.StorageMode); mode == storage.ModeLocal {
		r.Get("/files/*", h.serveFiles)
	}

	// long-lived streams must not be cut by the request timeout
	r.Get("/v1/events", h.streamEvents)

	r.Group(func(r chi.Router) {
		if h.Config.SubmitRatePerMinute > 0 {
			r.Use(httprate.LimitByIP(h.Config.SubmitRatePerMinute, time.Minute))
		}
		r.Post("/v1/pipeline/runs", h.runPipeline)
		r.With(middleware.Timeout(60*time.Second)).Post("/v1/jobs", h.submitJob)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/v1/jobs", h.listJobs)
		r.Get("/v1/jobs/{id}", h.getJob)
		r.Post("/v1/jobs/{id}/cancel", h.cancelJob)
		r.Post("/v1/clean", h.clean)
	})
}

type submitJobRequest struct {
	Kind   job.Kind        `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// submitJob accepts JSON for every kind and multipart uploads for OCR.
func (h *Handlers) submitJob(w http.ResponseWriter, r *http.Request) {
	var (
		j   job.Job
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		j, err = h.submitUpload(w, r)
	} else {
		j, err = h.submitJSON(r)
	}
	if err != nil && j.ID == uuid.Nil {
		writeError(w, err)
		return
	}
	if err != nil {
		// the job exists and already carries the failure
		slog.Warn("job submitted but not started", "id", j.ID, "error", err)
	}

	slog.Info("job submitted", "id", j.ID, "kind", j.Kind, "status", j.Status)
	w.Header().Set("Location", "/v1/jobs/"+j.ID.String())
	writeJSON(w, http.StatusAccepted, wire.FromJob(j))
}

func (h *Handlers) submitJSON(r *http.Request) (job.Job, error) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return job.Job{}, badRequest("body", "invalid request body")
	}
	if len(req.Params) == 0 {
		req.Params = json.RawMessage("{}")
	}

	switch req.Kind {
	case job.KindSynthesis:
		var params workers.SynthesisRequest
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return job.Job{}, badRequest("params", "invalid synthesis parameters")
		}
		return h.Dispatcher.SubmitSynthesis(params)
	case job.KindOCR:
		var params workers.OCRRequest
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return job.Job{}, badRequest("params", "invalid ocr parameters")
		}
		return h.Dispatcher.SubmitOCR(params, nil)
	default:
		return job.Job{}, fmt.Errorf("%q: %w", req.Kind, common.ErrUnknownKind)
	}
}

func (h *Handlers) submitUpload(w http.ResponseWriter, r *http.Request) (job.Job, error) {
	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxPDFSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return job.Job{}, badRequest("body", "failed to parse form")
	}
	defer r.MultipartForm.RemoveAll()

	if kind := job.Kind(r.FormValue("kind")); kind != job.KindOCR {
		return job.Job{}, badRequest("kind", "uploads are only accepted for ocr jobs")
	}
	files := r.MultipartForm.File["file"]
	if len(files) != 1 {
		return job.Job{}, badRequest("file", "exactly one file must be provided")
	}
	fh := files[0]
	if errs := validation.File("file", fh, validation.MaxPDFSize, "application/pdf"); errs != nil {
		return job.Job{}, errs
	}

	req := workers.OCRRequest{Filename: filepath.Base(fh.Filename)}
	if v := r.FormValue("totalPages"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return job.Job{}, badRequest("totalPages", "must be an integer")
		}
		req.TotalPages = n
	}

	f, err := fh.Open()
	if err != nil {
		return job.Job{}, badRequest("file", "file cannot be read")
	}
	defer f.Close()
	return h.Dispatcher.SubmitOCR(req, f)
}

func (h *Handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	snap := h.Jobs.Snapshot()
	writeJSON(w, http.StatusOK, wire.Status{Jobs: wire.FromJobs(snap.Jobs)})
}

func (h *Handlers) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	j, ok := h.Jobs.Get(id)
	if !ok {
		writeError(w, common.ErrJobNotFound)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromJob(j))
}

func (h *Handlers) cancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	// the body is optional
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, badRequest("body", "invalid request body"))
		return
	}

	j, err := h.Dispatcher.Cancel(id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, wire.FromJob(j))
}

func (h *Handlers) serveFiles(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		http.Error(w, "file path required", http.StatusBadRequest)
		return
	}
	if strings.Contains(key, "..") {
		http.Error(w, "invalid file path", http.StatusBadRequest)
		return
	}

	rc, contentType, err := h.Storage.GetFile(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, filepath.Base(key), time.Time{}, rs)
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("serve file", "key", key, "error", err)
	}
}

func jobID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, badRequest("id", "bad id")
	}
	return id, nil
}
