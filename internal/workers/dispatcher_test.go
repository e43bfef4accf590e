package workers

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fedutinova/narrator/internal/common"
	"github.com/fedutinova/narrator/internal/job"
	"github.com/fedutinova/narrator/internal/registry"
	"github.com/fedutinova/narrator/internal/supervisor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu        sync.Mutex
	started   map[uuid.UUID]supervisor.Command
	cancelled map[uuid.UUID]string
	startErr  error
	live      bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		started:   make(map[uuid.UUID]supervisor.Command),
		cancelled: make(map[uuid.UUID]string),
		live:      true,
	}
}

func (f *fakeRunner) Start(id uuid.UUID, cmd supervisor.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started[id] = cmd
	return nil
}

func (f *fakeRunner) Cancel(id uuid.UUID, reason string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled[id] = reason
	return f.live
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *registry.Registry, *fakeRunner, string) {
	t.Helper()
	dir := t.TempDir()
	reg := registry.New()
	runner := newFakeRunner()
	catalog := NewCatalog(dir,
		Definition{Kind: job.KindSynthesis, Command: []string{"python3", "tts_worker.py"}, Output: "output.wav", CompleteOnCleanExit: true},
		Definition{Kind: job.KindOCR, Command: []string{"ocr-worker"}, Output: "output.md"},
	)
	return NewDispatcher(reg, runner, catalog), reg, runner, dir
}

func TestSubmitSynthesis(t *testing.T) {
	d, reg, runner, dir := newTestDispatcher(t)
	temp := 0.7

	j, err := d.SubmitSynthesis(SynthesisRequest{Text: "Hello there.", Voice: "alice", Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, j.Status)
	assert.Equal(t, "alice", j.Params["voice"])
	assert.Equal(t, "12", j.Params["characters"])

	cmd, ok := runner.started[j.ID]
	require.True(t, ok)
	assert.Equal(t, "python3", cmd.Path)
	assert.True(t, cmd.CompleteOnCleanExit)
	assert.Equal(t, filepath.Join(dir, j.ID.String(), "output.wav"), cmd.OutputPath)

	args := strings.Join(cmd.Args, " ")
	assert.True(t, strings.HasPrefix(args, "tts_worker.py synthesize --job-id "+j.ID.String()))
	assert.Contains(t, args, "--voice alice")
	assert.Contains(t, args, "--output "+cmd.OutputPath)
	assert.Contains(t, args, "--temperature 0.7")

	text, err := os.ReadFile(filepath.Join(dir, j.ID.String(), "input.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", string(text))

	_, ok = reg.Get(j.ID)
	assert.True(t, ok)
}

func TestSubmitSynthesis_Validation(t *testing.T) {
	d, reg, runner, _ := newTestDispatcher(t)

	_, err := d.SubmitSynthesis(SynthesisRequest{Text: "Hello."})
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
	assert.Empty(t, runner.started)
	assert.Empty(t, reg.Snapshot().Jobs, "invalid requests never create jobs")
}

func TestSubmitOCR_Upload(t *testing.T) {
	d, _, runner, dir := newTestDispatcher(t)
	pdf := "%PDF-1.4\n1 0 obj\n<<>>\nendobj\n"

	j, err := d.SubmitOCR(OCRRequest{Filename: "book.pdf", TotalPages: 12}, strings.NewReader(pdf))
	require.NoError(t, err)
	assert.Equal(t, "book.pdf", j.Params["filename"])

	input := filepath.Join(dir, j.ID.String(), "input.pdf")
	stored, err := os.ReadFile(input)
	require.NoError(t, err)
	assert.Equal(t, pdf, string(stored))

	cmd := runner.started[j.ID]
	assert.False(t, cmd.CompleteOnCleanExit)
	assert.Equal(t, []string{
		"--job-id", j.ID.String(),
		"--pdf-path", input,
		"--output-path", filepath.Join(dir, j.ID.String(), "output.md"),
		"--total-pages", "12",
	}, cmd.Args)
}

func TestSubmitOCR_LocalPath(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t)

	notPDF := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(notPDF, []byte("plain text"), 0o644))
	_, err := d.SubmitOCR(OCRRequest{PDFPath: notPDF}, nil)
	assert.True(t, common.IsValidation(err))

	_, err = d.SubmitOCR(OCRRequest{}, nil)
	assert.True(t, common.IsValidation(err))
}

func TestSubmit_UnconfiguredKind(t *testing.T) {
	reg := registry.New()
	d := NewDispatcher(reg, newFakeRunner(), NewCatalog(t.TempDir()))

	_, err := d.SubmitSynthesis(SynthesisRequest{Text: "x", Voice: "v"})
	assert.ErrorIs(t, err, common.ErrWorkerNotAvailable)
	assert.Empty(t, d.Catalog().Kinds())
}

func TestSubmit_StartFailureFailsJob(t *testing.T) {
	d, reg, runner, _ := newTestDispatcher(t)
	runner.startErr = common.ErrSupervisorStopped

	j, err := d.SubmitSynthesis(SynthesisRequest{Text: "Hello.", Voice: "alice"})
	require.ErrorIs(t, err, common.ErrSupervisorStopped)
	assert.Equal(t, job.StatusFailed, j.Status)

	got, _ := reg.Get(j.ID)
	assert.Contains(t, got.Error, "failed to start worker")
}

func TestCancel(t *testing.T) {
	d, reg, runner, _ := newTestDispatcher(t)
	j, err := d.SubmitSynthesis(SynthesisRequest{Text: "Hello.", Voice: "alice"})
	require.NoError(t, err)

	_, err = d.Cancel(j.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "cancelled by request", runner.cancelled[j.ID])

	// the supervisor no longer knows the job: the dispatcher settles it
	runner.live = false
	got, err := d.Cancel(j.ID, "user abort")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Equal(t, "cancelled: user abort", got.Error)

	_, err = d.Cancel(j.ID, "")
	assert.True(t, errors.Is(err, common.ErrJobTerminal))

	_, err = d.Cancel(uuid.New(), "")
	assert.True(t, common.IsNotFound(err))

	_, ok := reg.Get(j.ID)
	assert.True(t, ok)
}

func TestCatalogLookup(t *testing.T) {
	c := NewCatalog("/tmp", Definition{Kind: job.KindOCR, Command: []string{"ocr"}})
	_, err := c.Lookup("painting")
	assert.ErrorIs(t, err, common.ErrUnknownKind)
	_, err = c.Lookup(job.KindSynthesis)
	assert.ErrorIs(t, err, common.ErrWorkerNotAvailable)
	d, err := c.Lookup(job.KindOCR)
	require.NoError(t, err)
	assert.Equal(t, []string{"ocr"}, d.Command)
	assert.Equal(t, []job.Kind{job.KindOCR}, c.Kinds())
}
