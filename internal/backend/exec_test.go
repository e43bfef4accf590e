package backend

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/fedutinova/narrator/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExec(t *testing.T) {
	e, err := NewExec("  llm-run --model tiny  ", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "llm-run", e.Path)
	assert.Equal(t, []string{"--model", "tiny"}, e.Args)

	_, err = NewExec("   ", 0)
	assert.Error(t, err)
}

func TestExec_PromptOnStdin(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	e, err := NewExec("cat", time.Second)
	require.NoError(t, err)

	resp, err := e.Transform(context.Background(), pipeline.Request{Prompt: "echo me"})
	require.NoError(t, err)
	assert.Equal(t, "echo me", resp.Text)
	assert.Nil(t, resp.Usage)
}

func TestExec_Failure(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	e, err := NewExec("false", time.Second)
	require.NoError(t, err)
	_, err = e.Transform(context.Background(), pipeline.Request{Prompt: "x"})
	assert.ErrorContains(t, err, "exit status 1")
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "boom", lastLine("warming up\nboom\n"))
	assert.Equal(t, "only", lastLine("only"))
	assert.Empty(t, lastLine("  "))
}
