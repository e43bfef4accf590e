// Package supervisor runs one external worker process per job and turns
// its line-delimited JSON output into registry updates.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fedutinova/narrator/internal/common"
	"github.com/fedutinova/narrator/internal/job"
	"github.com/fedutinova/narrator/internal/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const (
	maxLineSize  = 1 << 20
	minWaitDelay = time.Second
)

// Store is the subset of the job registry the supervisor writes to.
type Store interface {
	Get(id uuid.UUID) (job.Job, bool)
	Update(id uuid.UUID, p job.Patch) (job.Job, error)
	Log(id uuid.UUID, level, message string) error
}

// Command describes the worker process for one job.
type Command struct {
	Path string
	Args []string
	Env  []string
	Dir  string
	// OutputPath is where the worker was asked to write its artifact.
	// It stands in for a reported path on a clean exit.
	OutputPath string
	// CompleteOnCleanExit completes a job whose worker exits 0 without a
	// terminal event, provided an output path is known.
	CompleteOnCleanExit bool
}

// CompletionHook runs after a job reached completed.
type CompletionHook func(ctx context.Context, j job.Job)

type Supervisor struct {
	store       Store
	logger      *slog.Logger
	metrics     *metrics.Metrics
	sem         *semaphore.Weighted
	killGrace   time.Duration
	stderrLevel string
	onComplete  CompletionHook

	base context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	closed  bool
	running map[uuid.UUID]context.CancelCauseFunc
	wg      sync.WaitGroup
}

type Option func(*Supervisor)

func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithMaxProcesses caps concurrently running workers. Jobs wait in the
// queued state for a free slot. n <= 0 means unbounded.
func WithMaxProcesses(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithKillGrace sets how long a cancelled worker may take to exit after
// SIGTERM before it is killed.
func WithKillGrace(d time.Duration) Option {
	return func(s *Supervisor) { s.killGrace = d }
}

// WithStderrLevel sets the log level stderr lines are published at.
func WithStderrLevel(level string) Option {
	return func(s *Supervisor) { s.stderrLevel = level }
}

func WithCompletionHook(h CompletionHook) Option {
	return func(s *Supervisor) { s.onComplete = h }
}

func New(store Store, opts ...Option) *Supervisor {
	base, stop := context.WithCancel(context.Background())
	s := &Supervisor{
		store:       store,
		logger:      slog.Default(),
		killGrace:   5 * time.Second,
		stderrLevel: job.LevelWarn,
		base:        base,
		stop:        stop,
		running:     make(map[uuid.UUID]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker for jobID in the background. The outcome is
// observed through the store; the returned error only reports that the
// job could not be handed to the supervisor at all.
func (s *Supervisor) Start(jobID uuid.UUID, cmd Command) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return common.ErrSupervisorStopped
	}
	if _, dup := s.running[jobID]; dup {
		s.mu.Unlock()
		return fmt.Errorf("job %s already supervised: %w", jobID, common.ErrConflict)
	}
	ctx, cancel := context.WithCancelCause(s.base)
	s.running[jobID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, jobID)
			s.mu.Unlock()
			cancel(nil)
		}()
		s.run(ctx, jobID, cmd)
	}()
	return nil
}

// Cancel terminates the worker of a job and fails the job. It reports
// whether the job was being supervised.
func (s *Supervisor) Cancel(jobID uuid.UUID, reason string) bool {
	s.mu.Lock()
	cancel, ok := s.running[jobID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	if reason == "" {
		reason = "cancelled by request"
	}
	cancel(errors.New(reason))
	return true
}

// Running returns the number of supervised jobs, including those waiting
// for a process slot.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Wait blocks until every supervised job has finished.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting jobs, cancels the running ones and waits for
// them to reach a terminal state or for ctx to expire.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, cancel := range s.running {
		cancel(errors.New("server shutting down"))
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.stop()
		return nil
	case <-ctx.Done():
		s.stop()
		return ctx.Err()
	}
}

// runState tracks what one worker has reported so far.
type runState struct {
	mu         sync.Mutex
	terminal   bool
	completed  bool
	outputPath string
	lastStderr string
}

func (s *Supervisor) run(ctx context.Context, jobID uuid.UUID, wc Command) {
	j, ok := s.store.Get(jobID)
	if !ok {
		s.logger.Warn("supervisor asked to run unknown job", "id", jobID)
		return
	}
	kind := string(j.Kind)
	log := s.logger.With("id", jobID, "kind", kind)

	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.fail(jobID, cancelMessage(ctx))
			s.metrics.ProcessExited(kind, "cancelled", false)
			return
		}
		defer s.sem.Release(1)
	}
	if ctx.Err() != nil {
		s.fail(jobID, cancelMessage(ctx))
		s.metrics.ProcessExited(kind, "cancelled", false)
		return
	}

	if _, err := s.store.Update(jobID, job.Patch{
		Status:  job.Ptr(job.StatusRunning),
		Message: job.Ptr("starting worker"),
	}); err != nil {
		log.Warn("job not runnable", "err", err)
		return
	}

	cmd := exec.CommandContext(ctx, wc.Path, wc.Args...)
	cmd.Dir = wc.Dir
	if len(wc.Env) > 0 {
		cmd.Env = append(cmd.Environ(), wc.Env...)
	}
	setProcessGroup(cmd)
	var signalled atomic.Bool
	cmd.Cancel = func() error {
		signalled.Store(true)
		return signalGroup(cmd.Process, syscall.SIGTERM)
	}
	// WaitDelay also bounds how long Wait drains output held open by
	// descendants after the worker itself has exited.
	cmd.WaitDelay = s.killGrace
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = minWaitDelay
	}

	stdout, stdoutW := io.Pipe()
	stderr, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		log.Error("worker launch failed", "path", wc.Path, "err", err)
		s.fail(jobID, fmt.Sprintf("failed to start worker: %v", err))
		s.metrics.ProcessExited(kind, "launch_error", false)
		return
	}
	s.metrics.ProcessStarted(kind)
	log.Info("worker started", "pid", cmd.Process.Pid, "path", wc.Path)

	st := &runState{}
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		s.readStdout(jobID, stdout, st)
	}()
	go func() {
		defer readers.Done()
		s.readStderr(jobID, stderr, st)
	}()

	waitErr := cmd.Wait()
	// descendants do not outlive the worker
	if err := signalGroup(cmd.Process, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		log.Debug("process group kill failed", "err", err)
	}
	_ = stdoutW.Close()
	_ = stderrW.Close()
	readers.Wait()
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		log.Warn("worker output left open by child processes", "grace", cmd.WaitDelay)
		waitErr = nil
	}

	outcome := s.settle(ctx, jobID, wc, st, waitErr, signalled.Load())
	s.metrics.ProcessExited(kind, outcome, true)
	log.Info("worker exited", "outcome", outcome, "err", waitErr)

	if outcome == "completed" && s.onComplete != nil {
		if done, ok := s.store.Get(jobID); ok {
			s.onComplete(s.base, done)
		}
	}
}

// settle guarantees the job ends in a terminal state once the process has
// exited, and returns the outcome label. A worker that exited before it was
// signalled is judged by its own exit status even if the job was cancelled
// while its output was still draining.
func (s *Supervisor) settle(ctx context.Context, jobID uuid.UUID, wc Command, st *runState, waitErr error, signalled bool) string {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.terminal {
		if st.completed {
			return "completed"
		}
		return "failed"
	}
	st.terminal = true

	if signalled {
		s.fail(jobID, cancelMessage(ctx))
		return "cancelled"
	}

	if waitErr != nil {
		var msg string
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) && exitErr.ExitCode() >= 0 {
			msg = fmt.Sprintf("worker exited with code %d", exitErr.ExitCode())
		} else {
			msg = fmt.Sprintf("worker terminated: %v", waitErr)
		}
		if st.lastStderr != "" {
			msg += ": " + st.lastStderr
		}
		s.fail(jobID, msg)
		return "failed"
	}

	path := st.outputPath
	if path == "" {
		path = wc.OutputPath
	}
	if wc.CompleteOnCleanExit && path != "" {
		s.complete(jobID, path, "completed")
		st.completed = true
		return "completed"
	}
	s.fail(jobID, "worker exited without reporting a result")
	return "failed"
}

func cancelMessage(ctx context.Context) string {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, context.Canceled) {
		return "cancelled"
	}
	return "cancelled: " + cause.Error()
}

func (s *Supervisor) readStdout(jobID uuid.UUID, r io.Reader, st *runState) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Bytes()
		ev, ok := ParseLine(line)
		if !ok {
			text := strings.TrimSpace(string(line))
			if text != "" {
				s.log(jobID, job.LevelInfo, text)
			}
			continue
		}
		s.handle(jobID, ev, st)
	}
	if err := sc.Err(); err != nil {
		s.log(jobID, job.LevelError, fmt.Sprintf("stdout read error: %v", err))
		// keep draining so the worker is not blocked on a full pipe
		_, _ = io.Copy(io.Discard, r)
	}
}

func (s *Supervisor) readStderr(jobID uuid.UUID, r io.Reader, st *runState) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		st.mu.Lock()
		st.lastStderr = text
		st.mu.Unlock()
		s.log(jobID, s.stderrLevel, text)
	}
	if err := sc.Err(); err != nil {
		s.log(jobID, job.LevelError, fmt.Sprintf("stderr read error: %v", err))
		_, _ = io.Copy(io.Discard, r)
	}
}

func (s *Supervisor) handle(jobID uuid.UUID, ev WorkerEvent, st *runState) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if ev.OutputPath != "" {
		st.outputPath = ev.OutputPath
	}
	if st.terminal && ev.Event != EventLog {
		s.logger.Debug("worker event after terminal state ignored", "id", jobID, "event", ev.Event)
		return
	}

	switch ev.Event {
	case EventProgress:
		p := job.Patch{}
		if ev.Progress != nil {
			p.Progress = job.Ptr(*ev.Progress * 100)
		}
		if ev.Message != "" {
			p.Message = job.Ptr(ev.Message)
		}
		p.ProcessedPages = ev.ProcessedPages
		p.TotalPages = ev.TotalPages
		if _, err := s.store.Update(jobID, p); err != nil {
			s.logger.Debug("progress update rejected", "id", jobID, "err", err)
		}

	case EventLog:
		level := ev.Level
		if level == "" {
			level = job.LevelInfo
		}
		s.log(jobID, level, ev.Message)

	case EventComplete, EventResult:
		st.terminal = true
		if st.outputPath == "" {
			s.fail(jobID, "worker reported completion without an output path")
			return
		}
		msg := ev.Message
		if msg == "" {
			msg = "completed"
		}
		s.complete(jobID, st.outputPath, msg)
		st.completed = true

	case EventError:
		st.terminal = true
		text := ev.ErrorText()
		if text == "" {
			text = "worker reported an error"
		}
		s.fail(jobID, text)

	case EventConfig:
		s.logger.Debug("worker config", "id", jobID, "message", ev.Message)

	default:
		s.log(jobID, job.LevelInfo, fmt.Sprintf("unknown worker event %q: %s", ev.Event, ev.Message))
	}
}

func (s *Supervisor) complete(jobID uuid.UUID, path, msg string) {
	if _, err := s.store.Update(jobID, job.Patch{
		Status:             job.Ptr(job.StatusCompleted),
		OutputArtifactPath: job.Ptr(path),
		Message:            job.Ptr(msg),
	}); err != nil {
		s.logger.Warn("failed to complete job", "id", jobID, "err", err)
	}
}

func (s *Supervisor) fail(jobID uuid.UUID, msg string) {
	if _, err := s.store.Update(jobID, job.Patch{
		Status:  job.Ptr(job.StatusFailed),
		Error:   job.Ptr(msg),
		Message: job.Ptr(msg),
	}); err != nil {
		s.logger.Warn("failed to fail job", "id", jobID, "err", err)
	}
}

func (s *Supervisor) log(jobID uuid.UUID, level, msg string) {
	if err := s.store.Log(jobID, level, msg); err != nil {
		s.logger.Debug("job log dropped", "id", jobID, "err", err)
	}
}
