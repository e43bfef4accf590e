// Package backend provides the text transformation backends used by the
// pipeline: an OpenAI-compatible chat client, a local executable and a
// passthrough for running without a model.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fedutinova/narrator/internal/config"
	"github.com/fedutinova/narrator/internal/metrics"
	"github.com/fedutinova/narrator/internal/pipeline"
)

// Passthrough returns the input text unchanged. Only the deterministic
// cleaning rules then affect the output.
var Passthrough = pipeline.BackendFunc(func(_ context.Context, req pipeline.Request) (pipeline.Response, error) {
	return pipeline.Response{Text: req.Text}, nil
})

// FromConfig builds the configured backend wrapped with rate limiting and
// metrics.
func FromConfig(cfg config.Config, m *metrics.Metrics) (pipeline.Backend, error) {
	var b pipeline.Backend
	switch cfg.LLMBackend {
	case "openai":
		if cfg.OpenAIAPIKey == "" && cfg.OpenAIBaseURL == "" {
			return nil, errors.New("openai backend requires OPENAI_API_KEY or OPENAI_BASE_URL")
		}
		b = NewOpenAI(OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			InputPrice:  cfg.OpenAIInputPrice,
			OutputPrice: cfg.OpenAIOutputPrice,
			Timeout:     cfg.LLMTimeout,
		})
	case "exec":
		e, err := NewExec(cfg.LLMExecCmd, cfg.LLMTimeout)
		if err != nil {
			return nil, err
		}
		b = e
	case "passthrough", "none":
		b = Passthrough
	default:
		return nil, fmt.Errorf("unknown LLM backend %q", cfg.LLMBackend)
	}

	slog.Info("transform backend configured",
		"backend", cfg.LLMBackend,
		"model", cfg.OpenAIModel,
		"requests_per_second", cfg.LLMRequestsPerSecond)
	return Instrument(cfg.LLMBackend, Limit(b, cfg.LLMRequestsPerSecond, cfg.LLMBurst), m), nil
}
