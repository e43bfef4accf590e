// Package workers turns job submissions into supervised worker processes.
package workers

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fedutinova/narrator/internal/common"
	"github.com/fedutinova/narrator/internal/job"
	"github.com/fedutinova/narrator/internal/registry"
	"github.com/fedutinova/narrator/internal/supervisor"
	"github.com/fedutinova/narrator/internal/validation"
	"github.com/google/uuid"
)

// Registry is the job store used by the dispatcher.
type Registry interface {
	Create(kind job.Kind, opts registry.CreateOptions) job.Job
	Update(id uuid.UUID, p job.Patch) (job.Job, error)
	Get(id uuid.UUID) (job.Job, bool)
}

// Runner starts and cancels worker processes.
type Runner interface {
	Start(jobID uuid.UUID, cmd supervisor.Command) error
	Cancel(jobID uuid.UUID, reason string) bool
}

type Dispatcher struct {
	jobs    Registry
	runner  Runner
	catalog *Catalog
}

func NewDispatcher(jobs Registry, runner Runner, catalog *Catalog) *Dispatcher {
	return &Dispatcher{jobs: jobs, runner: runner, catalog: catalog}
}

func (d *Dispatcher) Catalog() *Catalog { return d.catalog }

// SubmitSynthesis queues a speech synthesis job. Failures after the job
// was created are reported on the returned job, not as an error.
func (d *Dispatcher) SubmitSynthesis(req SynthesisRequest) (job.Job, error) {
	if errs := validation.Struct(req); errs != nil {
		return job.Job{}, errs
	}
	def, err := d.catalog.Lookup(job.KindSynthesis)
	if err != nil {
		return job.Job{}, err
	}

	params := map[string]string{
		"voice":      req.Voice,
		"characters": strconv.Itoa(len(req.Text)),
	}
	if req.ModelID != "" {
		params["model"] = req.ModelID
	}
	j := d.jobs.Create(job.KindSynthesis, registry.CreateOptions{Params: params, Message: "queued"})

	dir, err := d.prepare(j.ID)
	if err != nil {
		return d.abort(j, err)
	}
	textFile := filepath.Join(dir, "input.txt")
	if err := os.WriteFile(textFile, []byte(req.Text), 0o644); err != nil {
		return d.abort(j, fmt.Errorf("write input text: %w", err))
	}

	cmd := d.catalog.command(def, j.ID)
	cmd.Args = append(cmd.Args, synthesisArgs(j.ID, textFile, cmd.OutputPath, req)...)
	return d.start(j, cmd)
}

// SubmitOCR queues a PDF extraction job. When pdf is non-nil it is stored
// in the job directory and req.PDFPath is ignored.
func (d *Dispatcher) SubmitOCR(req OCRRequest, pdf io.Reader) (job.Job, error) {
	if pdf != nil {
		req.PDFPath = "upload"
	}
	if errs := validation.Struct(req); errs != nil {
		return job.Job{}, errs
	}
	if pdf == nil {
		if err := checkPDF(req.PDFPath); err != nil {
			return job.Job{}, err
		}
	}
	def, err := d.catalog.Lookup(job.KindOCR)
	if err != nil {
		return job.Job{}, err
	}

	name := req.Filename
	if name == "" {
		name = filepath.Base(req.PDFPath)
	}
	params := map[string]string{"filename": name}
	if req.TotalPages > 0 {
		params["total_pages"] = strconv.Itoa(req.TotalPages)
	}
	j := d.jobs.Create(job.KindOCR, registry.CreateOptions{Params: params, Message: "queued"})

	dir, err := d.prepare(j.ID)
	if err != nil {
		return d.abort(j, err)
	}
	if pdf != nil {
		req.PDFPath = filepath.Join(dir, "input.pdf")
		if err := writeFile(req.PDFPath, pdf); err != nil {
			return d.abort(j, fmt.Errorf("store upload: %w", err))
		}
	}

	cmd := d.catalog.command(def, j.ID)
	cmd.Args = append(cmd.Args, ocrArgs(j.ID, cmd.OutputPath, req)...)
	return d.start(j, cmd)
}

// Cancel stops a job's worker. The job reaches failed asynchronously once
// the process is gone; the returned job is the state at request time.
func (d *Dispatcher) Cancel(id uuid.UUID, reason string) (job.Job, error) {
	j, ok := d.jobs.Get(id)
	if !ok {
		return job.Job{}, common.ErrJobNotFound
	}
	if job.IsTerminal(j.Status) {
		return j, common.ErrJobTerminal
	}
	if reason == "" {
		reason = "cancelled by request"
	}
	if d.runner.Cancel(id, reason) {
		slog.Info("job cancellation requested", "id", id, "reason", reason)
		return j, nil
	}
	// nothing supervises the job any more; settle it here
	return d.jobs.Update(id, job.Patch{
		Status: job.Ptr(job.StatusFailed),
		Error:  job.Ptr("cancelled: " + reason),
	})
}

func (d *Dispatcher) prepare(id uuid.UUID) (string, error) {
	dir := d.catalog.JobDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job directory: %w", err)
	}
	return dir, nil
}

func (d *Dispatcher) start(j job.Job, cmd supervisor.Command) (job.Job, error) {
	if err := d.runner.Start(j.ID, cmd); err != nil {
		failed, uerr := d.jobs.Update(j.ID, job.Patch{
			Status: job.Ptr(job.StatusFailed),
			Error:  job.Ptr("failed to start worker: " + err.Error()),
		})
		if uerr != nil {
			slog.Error("failed to record start failure", "id", j.ID, "error", uerr)
		}
		return failed, err
	}
	slog.Info("job dispatched", "id", j.ID, "kind", j.Kind, "command", cmd.Path)
	return j, nil
}

func (d *Dispatcher) abort(j job.Job, cause error) (job.Job, error) {
	slog.Error("job setup failed", "id", j.ID, "kind", j.Kind, "error", cause)
	failed, err := d.jobs.Update(j.ID, job.Patch{
		Status: job.Ptr(job.StatusFailed),
		Error:  job.Ptr(cause.Error()),
	})
	if err != nil {
		return j, common.WrapInternal("abort job", err)
	}
	return failed, nil
}

func checkPDF(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return validation.ValidationErrors{{Field: "pdfPath", Message: "file cannot be opened"}}
	}
	defer f.Close()
	mt, err := validation.DetectType(f)
	if err != nil || !validation.Allowed(mt, "application/pdf") {
		return validation.ValidationErrors{{Field: "pdfPath", Message: "file is not a PDF"}}
	}
	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
