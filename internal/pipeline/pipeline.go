// Package pipeline transforms long text chunk by chunk through a cleaning
// stage and an optional speaker formatting stage, retrying failed chunks
// and falling back to the original text when retries run out.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fedutinova/narrator/internal/backoff"
	"github.com/fedutinova/narrator/internal/common"
	"github.com/fedutinova/narrator/internal/metrics"
	"github.com/fedutinova/narrator/internal/textclean"
	"golang.org/x/sync/errgroup"
)

// Steps reported alongside the deterministic cleaning steps.
const (
	StepLLMCleaning          = "llmCleaning"
	StepLLMSpeakerFormatting = "llmSpeakerFormatting"
)

type Pipeline struct {
	backend Backend
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Pipeline)

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func New(b Backend, opts ...Option) *Pipeline {
	p := &Pipeline{backend: b, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes text and reports events to onEvent, which is never called
// concurrently. The returned summary always contains every chunk: chunks
// that were not finished when ctx ended keep their original text.
func (p *Pipeline) Run(ctx context.Context, text string, cfg Config, onEvent func(Event)) (Summary, error) {
	if err := cfg.Validate(); err != nil {
		return Summary{}, err
	}
	strategy, err := cfg.Strategy()
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	chunks, err := Split(text, cfg.BatchSize)
	if err != nil {
		return Summary{}, err
	}
	if onEvent == nil {
		onEvent = func(Event) {}
	}

	r := &run{
		p:        p,
		cfg:      cfg,
		strategy: strategy,
		chunks:   chunks,
		results:  append([]string(nil), chunks...),
		tracker:  NewTracker(len(chunks), cfg.Concurrency),
		emit:     onEvent,
		seen:     make(map[string]bool),
	}
	start := time.Now()
	p.logger.Info("pipeline run started",
		"chunks", len(chunks),
		"batch_size", cfg.BatchSize,
		"concurrency", cfg.Concurrency,
		"speaker_mode", cfg.Speaker.Mode)

	r.emit(r.tracker.Progress(0))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error { return r.processChunk(gctx, i) })
	}
	err = g.Wait()
	if err == nil && r.tracker.Completed() < len(chunks) {
		err = ctx.Err()
	}

	summary := r.summary(time.Since(start))
	if err != nil {
		p.metrics.PipelineRun("cancelled")
		p.logger.Warn("pipeline run aborted", "err", err, "completed", r.tracker.Completed(), "chunks", len(chunks))
		return summary, err
	}

	p.metrics.PipelineRun("completed")
	p.logger.Info("pipeline run finished",
		"chunks", summary.TotalChunks,
		"failed", summary.Failed,
		"retries", summary.Retries,
		"input_tokens", summary.TotalInputTokens,
		"output_tokens", summary.TotalOutputTokens,
		"duration_ms", summary.Duration.Milliseconds())
	r.emit(Complete{Summary: summary})
	return summary, nil
}

// run holds the state of one Run call.
type run struct {
	p        *Pipeline
	cfg      Config
	strategy backoff.Strategy
	chunks   []string

	mu        sync.Mutex
	results   []string
	tracker   *Tracker
	emit      func(Event)
	succeeded int
	failed    int
	retries   int
	steps     []string
	seen      map[string]bool
	logs      []string
}

func (r *run) processChunk(ctx context.Context, i int) error {
	chunk := r.chunks[i]
	start := time.Now()

	for attempt := 1; ; attempt++ {
		out, usage, steps, err := r.attempt(ctx, chunk, attempt)
		r.addUsage(usage, steps)

		if err == nil {
			r.finish(i, ChunkResult{
				ChunkIndex:    i,
				ProcessedText: out,
				Status:        ChunkSuccess,
				RetryCount:    attempt - 1,
			}, usage, time.Since(start))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.logf("Chunk %d: %v", i+1, err)
		if attempt >= r.cfg.MaxAttempts {
			r.logf("Chunk %d: falling back to original text after errors.", i+1)
			r.finish(i, ChunkResult{
				ChunkIndex:    i,
				ProcessedText: chunk,
				Status:        ChunkFailed,
				RetryCount:    attempt - 1,
				Error:         err.Error(),
			}, usage, time.Since(start))
			return nil
		}

		r.retry(ChunkResult{
			ChunkIndex:    i,
			ProcessedText: chunk,
			Status:        ChunkRetry,
			RetryCount:    attempt,
			Error:         err.Error(),
		}, usage)
		if err := sleep(ctx, r.strategy.Delay(attempt)); err != nil {
			return err
		}
	}
}

// attempt runs both stages on the original chunk text.
func (r *run) attempt(ctx context.Context, chunk string, attempt int) (string, Usage, []string, error) {
	var usage Usage
	pre := textclean.Apply(chunk, r.cfg.Cleaning, textclean.PhasePre)
	steps := append([]string(nil), pre.Applied...)
	text := pre.Text

	if !r.cfg.LLMCleaningDisabled {
		out, u, err := r.call(ctx, StageClean, cleaningPrompt(text, r.cfg.Cleaning, r.cfg.CustomInstructions), text)
		usage.add(u)
		if err != nil {
			return "", usage, steps, &StageError{Stage: StageClean, Attempt: attempt, Err: err}
		}
		text = out
		steps = append(steps, StepLLMCleaning)
	}

	if r.cfg.Speaker.Enabled() {
		prompt := speakerPrompt(text, r.cfg.Speaker, r.cfg.CustomInstructions, r.cfg.ExtendedExamples)
		out, u, err := r.call(ctx, StageSpeaker, prompt, text)
		usage.add(u)
		if err != nil {
			return "", usage, steps, &StageError{Stage: StageSpeaker, Attempt: attempt, Err: err}
		}
		text = out
		steps = append(steps, StepLLMSpeakerFormatting)
	}

	post := textclean.Apply(text, r.cfg.Cleaning, textclean.PhasePost)
	steps = append(steps, post.Applied...)

	if err := ValidateOutput(chunk, post.Text, r.cfg.MinOutputRatio); err != nil {
		return "", usage, steps, &StageError{Stage: StageValidate, Attempt: attempt, Err: err}
	}
	return post.Text, usage, steps, nil
}

func (r *run) call(ctx context.Context, stage Stage, prompt, text string) (string, Usage, error) {
	resp, err := r.p.backend.Transform(ctx, Request{
		Stage:       stage,
		Prompt:      prompt,
		Text:        text,
		Model:       r.cfg.Model,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		return "", Usage{}, err
	}
	u := Usage{InputTokens: EstimateTokens(prompt), OutputTokens: EstimateTokens(resp.Text)}
	if resp.Usage != nil {
		u = *resp.Usage
	}
	return strings.TrimSpace(resp.Text), u, nil
}

func (r *run) addUsage(u Usage, steps []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracker.AddUsage(u)
	for _, s := range steps {
		if !r.seen[s] {
			r.seen[s] = true
			r.steps = append(r.steps, s)
		}
	}
}

func (r *run) retry(res ChunkResult, u Usage) {
	res.InputTokens, res.OutputTokens, res.Cost = u.InputTokens, u.OutputTokens, u.Cost()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
	r.p.metrics.ChunkResult(string(ChunkRetry))
	r.emit(res)
}

func (r *run) finish(i int, res ChunkResult, u Usage, d time.Duration) {
	res.InputTokens, res.OutputTokens, res.Cost = u.InputTokens, u.OutputTokens, u.Cost()
	res.DurationMs = d.Milliseconds()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[i] = res.ProcessedText
	r.tracker.Observe(d)
	if res.Status == ChunkSuccess {
		r.succeeded++
	} else {
		r.failed++
	}
	r.p.metrics.ChunkResult(string(res.Status))
	r.p.metrics.ChunkDuration(d)

	r.emit(res)
	r.emit(r.tracker.Progress(i + 1))
}

func (r *run) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.p.logger.Warn(msg)

	r.mu.Lock()
	r.logs = append(r.logs, msg)
	r.mu.Unlock()
}

func (r *run) summary(d time.Duration) Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.tracker.Usage()
	return Summary{
		Text:              strings.Join(r.results, "\n\n"),
		TotalChunks:       len(r.chunks),
		Succeeded:         r.succeeded,
		Failed:            r.failed,
		Retries:           r.retries,
		TotalInputTokens:  u.InputTokens,
		TotalOutputTokens: u.OutputTokens,
		TotalCost:         u.Cost(),
		AppliedSteps:      append([]string(nil), r.steps...),
		Logs:              append([]string(nil), r.logs...),
		Duration:          d,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
