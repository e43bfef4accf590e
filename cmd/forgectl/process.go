package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fedutinova/narrator/internal/backend"
	"github.com/fedutinova/narrator/internal/config"
	"github.com/fedutinova/narrator/internal/pipeline"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type processOptions struct {
	presetPath  string
	outputPath  string
	backendName string
	batchSize   int
	concurrency int
	quiet       bool
}

func newProcessCmd() *cobra.Command {
	var opts processOptions
	cmd := &cobra.Command{
		Use:   "process [file]",
		Short: "Run the chunked cleaning pipeline over a text",
		Long: `Process splits the text into sentence batches, sends each batch
through the configured transformation backend and writes the joined
result. Backend settings come from the same environment variables as
the server (LLM_BACKEND, OPENAI_API_KEY, LLM_EXEC_CMD, ...).

Example:
  forgectl process book.txt -p presets/dialogue.yaml -o book.clean.txt
  forgectl process book.txt --backend passthrough --batch-size 20`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if opts.backendName != "" {
				cfg.LLMBackend = opts.backendName
			}
			b, err := backend.FromConfig(cfg, nil)
			if err != nil {
				return err
			}
			return runProcess(cmd, args, b, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.presetPath, "preset", "p", "", "YAML pipeline preset")
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "write the result to a file instead of stdout")
	cmd.Flags().StringVar(&opts.backendName, "backend", "", "override LLM_BACKEND (openai, exec, passthrough)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "sentences per chunk (overrides the preset)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "chunks processed at once (overrides the preset)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not print progress and the summary table")
	return cmd
}

func runProcess(cmd *cobra.Command, args []string, b pipeline.Backend, opts processOptions) error {
	cfg, err := pipeline.LoadPreset(opts.presetPath)
	if err != nil {
		return err
	}
	if opts.batchSize > 0 {
		cfg.BatchSize = opts.batchSize
	}
	if opts.concurrency > 0 {
		cfg.Concurrency = opts.concurrency
	}
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	stderr := cmd.ErrOrStderr()
	onEvent := func(ev pipeline.Event) {
		if opts.quiet {
			return
		}
		switch e := ev.(type) {
		case pipeline.Progress:
			fmt.Fprintf(stderr, "\r[%3.0f%%] chunk %d/%d", e.Progress, e.ChunksProcessed, e.TotalChunks)
		case pipeline.ChunkResult:
			if e.Status == pipeline.ChunkFailed {
				fmt.Fprintf(stderr, "\nchunk %d kept original text: %s\n", e.ChunkIndex+1, e.Error)
			}
		}
	}

	summary, runErr := pipeline.New(b).Run(ctx, text, cfg, onEvent)
	if !opts.quiet {
		fmt.Fprintln(stderr)
	}
	if runErr != nil && summary.TotalChunks == 0 {
		return runErr
	}
	// a cancelled run still writes what it has
	if err := writeOutput(cmd, opts.outputPath, summary.Text); err != nil {
		return err
	}
	if !opts.quiet {
		if err := renderSummary(stderr, summary); err != nil {
			return err
		}
	}
	return runErr
}

func renderSummary(w io.Writer, s pipeline.Summary) error {
	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")
	table.Append("Chunks", fmt.Sprintf("%d", s.TotalChunks))
	table.Append("Succeeded", fmt.Sprintf("%d", s.Succeeded))
	table.Append("Kept original", fmt.Sprintf("%d", s.Failed))
	table.Append("Retries", fmt.Sprintf("%d", s.Retries))
	table.Append("Input tokens", fmt.Sprintf("%d", s.TotalInputTokens))
	table.Append("Output tokens", fmt.Sprintf("%d", s.TotalOutputTokens))
	table.Append("Estimated cost", fmt.Sprintf("$%.4f", s.TotalCost))
	table.Append("Steps", strings.Join(s.AppliedSteps, ", "))
	table.Append("Duration", s.Duration.Round(time.Millisecond).String())
	return table.Render()
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("input is empty")
	}
	return string(data), nil
}

func writeOutput(cmd *cobra.Command, path, text string) error {
	if path == "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), text)
		return err
	}
	return os.WriteFile(path, []byte(text+"\n"), 0o644)
}
