package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/fedutinova/narrator/internal/pipeline"
	"github.com/fedutinova/narrator/internal/textclean"
	"github.com/fedutinova/narrator/internal/validation"
	"github.com/fedutinova/narrator/internal/wire"
)

type runRequest struct {
	Text   string          `json:"text"`
	Config json.RawMessage `json:"config,omitempty"`
}

// decodeRun reads the text and the config overrides. Multipart requests
// carry the text as a "file" part and the config as a JSON "config" field.
func (h *Handlers) decodeRun(w http.ResponseWriter, r *http.Request) (string, pipeline.Config, error) {
	cfg := h.Defaults
	limit := h.Config.MaxPipelineInput
	if limit <= 0 {
		limit = validation.MaxTextLength
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)

	var req runRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return "", cfg, badRequest("body", "failed to parse form")
		}
		defer r.MultipartForm.RemoveAll()
		req.Text = r.FormValue("text")
		if c := r.FormValue("config"); c != "" {
			req.Config = json.RawMessage(c)
		}
		if files := r.MultipartForm.File["file"]; len(files) > 0 {
			if errs := validation.File("file", files[0], limit, "text/plain"); errs != nil {
				return "", cfg, errs
			}
			f, err := files[0].Open()
			if err != nil {
				return "", cfg, badRequest("file", "file cannot be read")
			}
			defer f.Close()
			b, err := io.ReadAll(f)
			if err != nil {
				return "", cfg, badRequest("file", "file cannot be read")
			}
			req.Text = string(b)
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", cfg, badRequest("body", "invalid request body")
	}

	if len(req.Config) > 0 {
		// overrides are decoded on top of the defaults
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return "", cfg, badRequest("config", "invalid pipeline config")
		}
	}
	if strings.TrimSpace(req.Text) == "" {
		return "", cfg, badRequest("text", "text is required")
	}
	if int64(len(req.Text)) > limit {
		return "", cfg, badRequest("text", "text is too long")
	}
	if !utf8.ValidString(req.Text) {
		return "", cfg, badRequest("text", "text must be valid UTF-8")
	}
	if err := cfg.Validate(); err != nil {
		return "", cfg, err
	}
	if _, err := cfg.Strategy(); err != nil {
		return "", cfg, badRequest("backoff", err.Error())
	}
	return req.Text, cfg, nil
}

// runPipeline streams chunk, progress and complete envelopes. With
// ?stream=false it blocks and answers with the complete payload.
func (h *Handlers) runPipeline(w http.ResponseWriter, r *http.Request) {
	text, cfg, err := h.decodeRun(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("stream") == "false" {
		summary, err := h.Pipeline.Run(r.Context(), text, cfg, nil)
		if err != nil {
			writeError(w, err)
			return
		}
		env, _ := wire.Wrap(pipeline.Complete{Summary: summary})
		writeJSON(w, http.StatusOK, env.Payload)
		return
	}

	sse, err := newSSE(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Metrics.StreamClient(1)
	defer h.Metrics.StreamClient(-1)

	// a client that goes away or falls behind stops the run
	ctx, cancel := context.WithCancelCause(r.Context())
	defer cancel(nil)
	out := newRelay(sse, h.Config.StreamBuffer, cancel)

	// Run may call back while holding its own locks, so frames are only
	// queued here.
	onEvent := func(ev pipeline.Event) {
		env, err := wire.Wrap(ev)
		if err != nil {
			slog.Warn("pipeline stream", "error", err)
			return
		}
		data, err := json.Marshal(env)
		if err != nil {
			slog.Warn("pipeline stream", "error", err)
			return
		}
		out.push(env.Type, data)
	}

	_, err = h.Pipeline.Run(ctx, text, cfg, onEvent)
	out.close()
	if err == nil {
		return
	}
	cause := context.Cause(ctx)
	if r.Context().Err() != nil || errors.Is(cause, errClientGone) {
		slog.Info("pipeline run abandoned by client")
		return
	}
	if errors.Is(cause, errStreamOverflow) {
		h.Metrics.StreamDropped()
		slog.Warn("pipeline run cancelled", "error", cause)
		err = cause
	}
	env := wire.ErrorEnvelope(err)
	data, _ := json.Marshal(env)
	_ = sse.send(env.Type, data)
}

type cleanRequest struct {
	Text    string             `json:"text" validate:"required,max=2000000"`
	Options *textclean.Options `json:"options,omitempty"`
}

type cleanResponse struct {
	Text         string   `json:"text"`
	AppliedSteps []string `json:"appliedSteps"`
}

// clean runs only the deterministic rules, the same pass that precedes
// the model stages.
func (h *Handlers) clean(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxTextLength+64<<10)
	var req cleanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("body", "invalid request body"))
		return
	}
	if errs := validation.Struct(req); errs != nil {
		writeError(w, errs)
		return
	}

	opts := h.Defaults.Cleaning
	if req.Options != nil {
		opts = *req.Options
	}
	res := textclean.Apply(req.Text, opts, textclean.PhasePre)
	if res.Applied == nil {
		res.Applied = []string{}
	}
	writeJSON(w, http.StatusOK, cleanResponse{Text: res.Text, AppliedSteps: res.Applied})
}
