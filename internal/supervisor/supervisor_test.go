package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fedutinova/narrator/internal/job"
	"github.com/fedutinova/narrator/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test. It is re-executed by helperCommand
// to play the part of a worker binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("NARRATOR_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(2)
	}
	out := func(s string) { fmt.Fprintln(os.Stdout, s) }

	switch args[1] {
	case "complete":
		out(`{"event":"config","message":"model=tiny"}`)
		out(`{"event":"progress","progress":0.25,"message":"loading"}`)
		out(`{"event":"log","level":"info","message":"model ready"}`)
		out(`{"event":"progress","progress":0.75,"message":"synthesizing"}`)
		out(`{"event":"complete","message":"done","output_path":"/tmp/out.wav"}`)
	case "progress-crash":
		out(`{"event":"progress","progress":0.5,"message":"halfway"}`)
		fmt.Fprintln(os.Stderr, "segmentation fault")
		os.Exit(1)
	case "error-event":
		out(`{"event":"error","error":"unsupported pdf","message":"ocr failed"}`)
		os.Exit(3)
	case "garbage":
		out("loading weights...")
		fmt.Fprintln(os.Stderr, "UserWarning: deprecated")
	case "result":
		out(`{"event":"progress","progress":0.9,"processed_pages":9,"total_pages":10}`)
		out(`{"event":"result","output_path":"/tmp/book.txt"}`)
	case "clean-exit-with-path":
		out(`{"event":"progress","progress":1,"output_path":"/tmp/late.wav"}`)
	case "complete-then-crash":
		out(`{"event":"complete","output_path":"/tmp/ok.wav"}`)
		os.Exit(1)
	case "sleep":
		out(`{"event":"progress","progress":0.1,"message":"sleeping"}`)
		time.Sleep(10 * time.Second)
	case "hold":
		time.Sleep(30 * time.Second)
	case "spawn-then-crash":
		spawnHolder()
		out(`{"event":"progress","progress":0.5,"message":"handed off"}`)
		os.Exit(1)
	case "spawn-then-sleep":
		spawnHolder()
		out(`{"event":"progress","progress":0.1,"message":"sleeping"}`)
		time.Sleep(10 * time.Second)
	case "nap":
		time.Sleep(300 * time.Millisecond)
		out(`{"event":"complete","output_path":"/tmp/nap.wav"}`)
	}
	os.Exit(0)
}

// spawnHolder starts a long-lived child that inherits stdout and stderr.
func spawnHolder() {
	cmd := exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--", "hold")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		os.Exit(4)
	}
}

func helperCommand(scenario string, completeOnCleanExit bool) Command {
	return Command{
		Path:                os.Args[0],
		Args:                []string{"-test.run=TestHelperProcess", "--", scenario},
		Env:                 []string{"NARRATOR_WANT_HELPER_PROCESS=1"},
		CompleteOnCleanExit: completeOnCleanExit,
	}
}

type recorder struct {
	mu   sync.Mutex
	logs []job.LogEvent
	seen []job.Job
}

func (r *recorder) handle(e job.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch ev := e.(type) {
	case job.LogEvent:
		r.logs = append(r.logs, ev)
	case job.ChangedEvent:
		r.seen = append(r.seen, ev.Job)
	}
}

func (r *recorder) logMessages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, l := range r.logs {
		out = append(out, l.Level+":"+l.Message)
	}
	return out
}

func runScenario(t *testing.T, scenario string, completeOnCleanExit bool, opts ...Option) (job.Job, *recorder) {
	t.Helper()
	reg := registry.New()
	rec := &recorder{}
	reg.Subscribe(rec.handle)

	sup := New(reg, opts...)
	j := reg.Create(job.KindSynthesis, registry.CreateOptions{})
	require.NoError(t, sup.Start(j.ID, helperCommand(scenario, completeOnCleanExit)))
	sup.Wait()

	final, ok := reg.Get(j.ID)
	require.True(t, ok)
	return final, rec
}

func TestSupervisor_CompleteEvent(t *testing.T) {
	final, rec := runScenario(t, "complete", false)

	assert.Equal(t, job.StatusCompleted, final.Status)
	assert.Equal(t, "/tmp/out.wav", final.OutputArtifactPath)
	assert.Equal(t, 100.0, final.Progress)
	assert.Empty(t, final.Error)
	assert.Contains(t, rec.logMessages(), "info:model ready")

	var progress []float64
	rec.mu.Lock()
	for _, j := range rec.seen {
		if j.Status == job.StatusRunning && j.Progress > 0 {
			progress = append(progress, j.Progress)
		}
	}
	rec.mu.Unlock()
	assert.Equal(t, []float64{25, 75}, progress)
}

func TestSupervisor_CrashAfterProgressFails(t *testing.T) {
	final, rec := runScenario(t, "progress-crash", true)

	assert.Equal(t, job.StatusFailed, final.Status)
	assert.Equal(t, "worker exited with code 1: segmentation fault", final.Error)
	assert.Empty(t, final.OutputArtifactPath)
	assert.Contains(t, rec.logMessages(), "warn:segmentation fault")
}

func TestSupervisor_ErrorEventPreservesWorkerMessage(t *testing.T) {
	final, _ := runScenario(t, "error-event", false)

	assert.Equal(t, job.StatusFailed, final.Status)
	assert.Equal(t, "unsupported pdf", final.Error)
}

func TestSupervisor_UnparseableLinesBecomeLogs(t *testing.T) {
	final, rec := runScenario(t, "garbage", true, WithStderrLevel(job.LevelDebug))

	msgs := rec.logMessages()
	assert.Contains(t, msgs, "info:loading weights...")
	assert.Contains(t, msgs, "debug:UserWarning: deprecated")
	// clean exit with no output path cannot complete
	assert.Equal(t, job.StatusFailed, final.Status)
	assert.Equal(t, "worker exited without reporting a result", final.Error)
}

func TestSupervisor_ResultEventCompletesWithPages(t *testing.T) {
	final, _ := runScenario(t, "result", false)

	assert.Equal(t, job.StatusCompleted, final.Status)
	assert.Equal(t, "/tmp/book.txt", final.OutputArtifactPath)
	assert.Equal(t, 9, final.ProcessedPages)
	assert.Equal(t, 10, final.TotalPages)
}

func TestSupervisor_CleanExitFallbackIsPerCommand(t *testing.T) {
	final, _ := runScenario(t, "clean-exit-with-path", true)
	assert.Equal(t, job.StatusCompleted, final.Status)
	assert.Equal(t, "/tmp/late.wav", final.OutputArtifactPath)

	final, _ = runScenario(t, "clean-exit-with-path", false)
	assert.Equal(t, job.StatusFailed, final.Status)
}

func TestSupervisor_TerminalEventWinsOverExitCode(t *testing.T) {
	final, _ := runScenario(t, "complete-then-crash", false)
	assert.Equal(t, job.StatusCompleted, final.Status)
	assert.Equal(t, "/tmp/ok.wav", final.OutputArtifactPath)
}

func TestSupervisor_LaunchFailure(t *testing.T) {
	reg := registry.New()
	sup := New(reg)
	j := reg.Create(job.KindOCR, registry.CreateOptions{})

	require.NoError(t, sup.Start(j.ID, Command{Path: "/definitely/not/a/worker"}))
	sup.Wait()

	final, _ := reg.Get(j.ID)
	assert.Equal(t, job.StatusFailed, final.Status)
	assert.True(t, strings.HasPrefix(final.Error, "failed to start worker"), final.Error)
}

func TestSupervisor_CancelTerminatesWorker(t *testing.T) {
	reg := registry.New()
	sup := New(reg, WithKillGrace(time.Second))
	j := reg.Create(job.KindSynthesis, registry.CreateOptions{})

	require.NoError(t, sup.Start(j.ID, helperCommand("sleep", true)))
	require.Eventually(t, func() bool {
		cur, _ := reg.Get(j.ID)
		return cur.Progress == 10
	}, 5*time.Second, 10*time.Millisecond)

	start := time.Now()
	assert.True(t, sup.Cancel(j.ID, "user requested"))
	sup.Wait()
	assert.Less(t, time.Since(start), 5*time.Second)

	final, _ := reg.Get(j.ID)
	assert.Equal(t, job.StatusFailed, final.Status)
	assert.Equal(t, "cancelled: user requested", final.Error)
	assert.False(t, sup.Cancel(j.ID, ""), "finished jobs are no longer supervised")
}

func TestSupervisor_ExitIsNotHeldOpenByChildren(t *testing.T) {
	start := time.Now()
	final, _ := runScenario(t, "spawn-then-crash", true, WithKillGrace(200*time.Millisecond))

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, job.StatusFailed, final.Status)
	assert.Equal(t, "worker exited with code 1", final.Error)
	assert.Equal(t, 50.0, final.Progress)
}

func TestSupervisor_CancelAfterExitKeepsExitCode(t *testing.T) {
	reg := registry.New()
	sup := New(reg, WithKillGrace(2*time.Second))
	j := reg.Create(job.KindSynthesis, registry.CreateOptions{})

	require.NoError(t, sup.Start(j.ID, helperCommand("spawn-then-crash", true)))
	require.Eventually(t, func() bool {
		cur, _ := reg.Get(j.ID)
		return cur.Progress == 50
	}, 5*time.Second, 10*time.Millisecond)
	// the worker has exited; its child still holds the output open
	time.Sleep(300 * time.Millisecond)

	sup.Cancel(j.ID, "user requested")
	sup.Wait()

	final, _ := reg.Get(j.ID)
	assert.Equal(t, job.StatusFailed, final.Status)
	assert.Equal(t, "worker exited with code 1", final.Error)
}

func TestSupervisor_CancelReachesChildProcesses(t *testing.T) {
	reg := registry.New()
	sup := New(reg, WithKillGrace(time.Second))
	j := reg.Create(job.KindSynthesis, registry.CreateOptions{})

	require.NoError(t, sup.Start(j.ID, helperCommand("spawn-then-sleep", true)))
	require.Eventually(t, func() bool {
		cur, _ := reg.Get(j.ID)
		return cur.Progress == 10
	}, 5*time.Second, 10*time.Millisecond)

	start := time.Now()
	require.True(t, sup.Cancel(j.ID, "user requested"))
	sup.Wait()
	assert.Less(t, time.Since(start), 5*time.Second)

	final, _ := reg.Get(j.ID)
	assert.Equal(t, job.StatusFailed, final.Status)
	assert.Equal(t, "cancelled: user requested", final.Error)
}

func TestSupervisor_MaxProcessesQueuesJobs(t *testing.T) {
	reg := registry.New()
	sup := New(reg, WithMaxProcesses(1))

	a := reg.Create(job.KindSynthesis, registry.CreateOptions{})
	b := reg.Create(job.KindSynthesis, registry.CreateOptions{})
	require.NoError(t, sup.Start(a.ID, helperCommand("nap", false)))
	require.Eventually(t, func() bool {
		cur, _ := reg.Get(a.ID)
		return cur.Status == job.StatusRunning
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, sup.Start(b.ID, helperCommand("nap", false)))

	cur, _ := reg.Get(b.ID)
	assert.Equal(t, job.StatusQueued, cur.Status)
	assert.Equal(t, 2, sup.Running())

	sup.Wait()
	fa, _ := reg.Get(a.ID)
	fb, _ := reg.Get(b.ID)
	assert.Equal(t, job.StatusCompleted, fa.Status)
	assert.Equal(t, job.StatusCompleted, fb.Status)
}

func TestSupervisor_CancelWhileQueued(t *testing.T) {
	reg := registry.New()
	sup := New(reg, WithMaxProcesses(1))

	a := reg.Create(job.KindSynthesis, registry.CreateOptions{})
	b := reg.Create(job.KindSynthesis, registry.CreateOptions{})
	require.NoError(t, sup.Start(a.ID, helperCommand("nap", false)))
	require.Eventually(t, func() bool {
		cur, _ := reg.Get(a.ID)
		return cur.Status == job.StatusRunning
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, sup.Start(b.ID, helperCommand("nap", false)))
	require.True(t, sup.Cancel(b.ID, "too slow"))
	sup.Wait()

	fb, _ := reg.Get(b.ID)
	assert.Equal(t, job.StatusFailed, fb.Status)
	assert.Equal(t, "cancelled: too slow", fb.Error)
}

func TestSupervisor_CompletionHookAndShutdown(t *testing.T) {
	reg := registry.New()
	hooked := make(chan job.Job, 1)
	sup := New(reg, WithCompletionHook(func(_ context.Context, j job.Job) { hooked <- j }))

	j := reg.Create(job.KindSynthesis, registry.CreateOptions{})
	require.NoError(t, sup.Start(j.ID, helperCommand("complete", false)))
	sup.Wait()

	select {
	case got := <-hooked:
		assert.Equal(t, j.ID, got.ID)
		assert.Equal(t, job.StatusCompleted, got.Status)
	default:
		t.Fatalf("completion hook not called")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sup.Shutdown(ctx))
	assert.Error(t, sup.Start(j.ID, helperCommand("complete", false)))
}
