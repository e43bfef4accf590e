package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	ev, ok := ParseLine([]byte(`{"event":"progress","progress":0.42,"message":"page 1"}`))
	require.True(t, ok)
	assert.Equal(t, EventProgress, ev.Event)
	require.NotNil(t, ev.Progress)
	assert.InDelta(t, 0.42, *ev.Progress, 1e-9)

	ev, ok = ParseLine([]byte(`  {"event":"complete","output_path":"/tmp/a.wav"}` + "\r"))
	require.True(t, ok)
	assert.Equal(t, "/tmp/a.wav", ev.OutputPath)

	for _, bad := range []string{"", "loading model...", `{"progress":1}`, `{"event":`, `["event"]`} {
		_, ok := ParseLine([]byte(bad))
		assert.False(t, ok, "line %q", bad)
	}
}

func TestErrorText(t *testing.T) {
	ev, _ := ParseLine([]byte(`{"event":"error","error":"CUDA out of memory","message":"synthesis failed"}`))
	assert.Equal(t, "CUDA out of memory", ev.ErrorText())

	ev, _ = ParseLine([]byte(`{"event":"error","message":"synthesis failed"}`))
	assert.Equal(t, "synthesis failed", ev.ErrorText())

	ev, _ = ParseLine([]byte(`{"event":"error","error":{"code": 3, "detail":"bad pdf"}}`))
	assert.Equal(t, `{"code":3,"detail":"bad pdf"}`, ev.ErrorText())
}
