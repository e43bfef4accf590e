package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/fedutinova/narrator/internal/pipeline"
)

// Exec runs a local program per request. The prompt is written to its
// stdin and its stdout is the transformed text.
type Exec struct {
	Path    string
	Args    []string
	Timeout time.Duration
}

// NewExec splits a command line on whitespace.
func NewExec(command string, timeout time.Duration) (*Exec, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("exec backend: empty command")
	}
	return &Exec{Path: fields[0], Args: fields[1:], Timeout: timeout}, nil
}

func (e *Exec) Transform(ctx context.Context, req pipeline.Request) (pipeline.Response, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.Path, e.Args...)
	cmd.Env = append(cmd.Environ(),
		"NARRATOR_STAGE="+string(req.Stage),
		"NARRATOR_MODEL="+req.Model,
		"NARRATOR_TEMPERATURE="+strconv.FormatFloat(req.Temperature, 'f', -1, 64),
	)
	cmd.Stdin = strings.NewReader(req.Prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return pipeline.Response{}, fmt.Errorf("exec backend: %w", ctx.Err())
		}
		if msg := lastLine(stderr.String()); msg != "" {
			return pipeline.Response{}, fmt.Errorf("exec backend: %w: %s", err, msg)
		}
		return pipeline.Response{}, fmt.Errorf("exec backend: %w", err)
	}
	return pipeline.Response{Text: stdout.String()}, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
