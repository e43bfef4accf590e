package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/fedutinova/narrator/internal/metrics"
	"github.com/fedutinova/narrator/internal/pipeline"
	"golang.org/x/time/rate"
)

type limited struct {
	next    pipeline.Backend
	limiter *rate.Limiter
}

// Limit throttles calls to rps with the given burst. rps <= 0 returns b
// unchanged.
func Limit(b pipeline.Backend, rps float64, burst int) pipeline.Backend {
	if rps <= 0 {
		return b
	}
	return &limited{next: b, limiter: rate.NewLimiter(rate.Limit(rps), max(1, burst))}
}

func (l *limited) Transform(ctx context.Context, req pipeline.Request) (pipeline.Response, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return pipeline.Response{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return l.next.Transform(ctx, req)
}

type instrumented struct {
	name    string
	next    pipeline.Backend
	metrics *metrics.Metrics
}

// Instrument records latency, errors and usage of b under name.
func Instrument(name string, b pipeline.Backend, m *metrics.Metrics) pipeline.Backend {
	if m == nil {
		return b
	}
	return &instrumented{name: name, next: b, metrics: m}
}

func (i *instrumented) Transform(ctx context.Context, req pipeline.Request) (pipeline.Response, error) {
	start := time.Now()
	resp, err := i.next.Transform(ctx, req)
	i.metrics.BackendCall(i.name, string(req.Stage), time.Since(start), err)
	if err == nil && resp.Usage != nil {
		i.metrics.BackendUsage(i.name, resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Usage.Cost())
	}
	return resp, err
}
