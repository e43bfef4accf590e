package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.JobTransition("ocr", "running")
	m.ProcessStarted("ocr")
	m.ProcessExited("ocr", "failed", true)
	m.ChunkResult("success")
	m.ChunkDuration(time.Second)
	m.BackendCall("openai", "clean", time.Second, errors.New("x"))
	m.BackendUsage("openai", 1, 2, 0.1)
	m.PipelineRun("completed")
	m.StreamClient(1)
	m.StreamDropped()
}

func TestRecordingAndExposition(t *testing.T) {
	m := New()
	m.JobTransition("synthesis", "completed")
	m.JobTransition("synthesis", "completed")
	m.ProcessStarted("ocr")
	m.ProcessStarted("ocr")
	m.ProcessExited("ocr", "failed", true)
	m.BackendCall("openai", "clean", 10*time.Millisecond, errors.New("timeout"))
	m.StreamDropped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobTransitions.WithLabelValues("synthesis", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runningProcesses.WithLabelValues("ocr")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backendErrors.WithLabelValues("openai", "clean")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamDropped))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "narrator_job_transitions_total"))
	assert.True(t, strings.Contains(body, "narrator_worker_process_exits_total"))
}
