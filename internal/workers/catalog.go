package workers

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fedutinova/narrator/internal/common"
	"github.com/fedutinova/narrator/internal/config"
	"github.com/fedutinova/narrator/internal/job"
	"github.com/fedutinova/narrator/internal/supervisor"
	"github.com/google/uuid"
)

// Definition is how one job kind maps onto an external program.
type Definition struct {
	Kind    job.Kind
	Command []string
	// Output is the artifact file name inside the job directory.
	Output              string
	CompleteOnCleanExit bool
}

// Catalog holds the configured worker definitions.
type Catalog struct {
	defs      map[job.Kind]Definition
	outputDir string
}

func NewCatalog(outputDir string, defs ...Definition) *Catalog {
	c := &Catalog{defs: make(map[job.Kind]Definition), outputDir: outputDir}
	for _, d := range defs {
		if len(d.Command) > 0 {
			c.defs[d.Kind] = d
		}
	}
	return c
}

// CatalogFromConfig registers the synthesis and OCR workers whose
// commands are set.
func CatalogFromConfig(cfg config.Config) *Catalog {
	return NewCatalog(cfg.WorkerOutputDir,
		Definition{
			Kind:                job.KindSynthesis,
			Command:             strings.Fields(cfg.SynthesisWorkerCmd),
			Output:              "output.wav",
			CompleteOnCleanExit: cfg.SynthesisCompleteOnExit,
		},
		Definition{
			Kind:                job.KindOCR,
			Command:             strings.Fields(cfg.OCRWorkerCmd),
			Output:              "output.md",
			CompleteOnCleanExit: cfg.OCRCompleteOnExit,
		},
	)
}

// Lookup returns the definition for kind.
func (c *Catalog) Lookup(kind job.Kind) (Definition, error) {
	switch kind {
	case job.KindSynthesis, job.KindOCR:
	default:
		return Definition{}, fmt.Errorf("%q: %w", kind, common.ErrUnknownKind)
	}
	d, ok := c.defs[kind]
	if !ok {
		return Definition{}, fmt.Errorf("%s: %w", kind, common.ErrWorkerNotAvailable)
	}
	return d, nil
}

// Kinds lists the kinds that have a worker configured.
func (c *Catalog) Kinds() []job.Kind {
	var out []job.Kind
	for _, k := range []job.Kind{job.KindSynthesis, job.KindOCR} {
		if _, ok := c.defs[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// JobDir is the working directory of a job.
func (c *Catalog) JobDir(id uuid.UUID) string {
	return filepath.Join(c.outputDir, id.String())
}

func (c *Catalog) command(d Definition, id uuid.UUID) supervisor.Command {
	return supervisor.Command{
		Path:                d.Command[0],
		Args:                append([]string(nil), d.Command[1:]...),
		OutputPath:          filepath.Join(c.JobDir(id), d.Output),
		CompleteOnCleanExit: d.CompleteOnCleanExit,
	}
}

func synthesisArgs(id uuid.UUID, textFile, output string, req SynthesisRequest) []string {
	args := []string{
		"synthesize",
		"--job-id", id.String(),
		"--text-file", textFile,
		"--output", output,
		"--voice", req.Voice,
	}
	if req.ModelID != "" {
		args = append(args, "--model-id", req.ModelID)
	}
	if req.Style != "" {
		args = append(args, "--style", req.Style)
	}
	if req.Temperature != nil {
		args = append(args, "--temperature", strconv.FormatFloat(*req.Temperature, 'f', -1, 64))
	}
	return args
}

func ocrArgs(id uuid.UUID, output string, req OCRRequest) []string {
	args := []string{
		"--job-id", id.String(),
		"--pdf-path", req.PDFPath,
		"--output-path", output,
	}
	if req.TotalPages > 0 {
		args = append(args, "--total-pages", strconv.Itoa(req.TotalPages))
	}
	return args
}
