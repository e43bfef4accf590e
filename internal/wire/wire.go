// Package wire defines the JSON envelopes sent to observers of jobs and
// pipeline runs. Internal event types never reach the wire directly.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fedutinova/narrator/internal/common"
	"github.com/fedutinova/narrator/internal/job"
	"github.com/fedutinova/narrator/internal/pipeline"
)

type Type string

const (
	TypeStatus   Type = "status"
	TypeJob      Type = "job"
	TypeLog      Type = "log"
	TypeProgress Type = "progress"
	TypeChunk    Type = "chunk"
	TypeComplete Type = "complete"
	TypeError    Type = "error"
)

var ErrUnknownEvent = errors.New("unknown event type")

// Envelope is the outer shape of every message: {"type": ..., "payload": ...}.
type Envelope struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload"`
}

// RawEnvelope is used by readers that decode the payload later.
type RawEnvelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type Job struct {
	ID                 string            `json:"id"`
	Kind               string            `json:"kind"`
	Status             string            `json:"status"`
	Progress           float64           `json:"progress"`
	Message            string            `json:"message,omitempty"`
	OutputArtifactPath string            `json:"outputArtifactPath,omitempty"`
	ArtifactURL        string            `json:"artifactUrl,omitempty"`
	Error              string            `json:"error,omitempty"`
	ProcessedPages     int               `json:"processedPages,omitempty"`
	TotalPages         int               `json:"totalPages,omitempty"`
	Params             map[string]string `json:"params,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

type Status struct {
	Jobs []Job `json:"jobs"`
}

type Log struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type Chunk struct {
	ChunkIndex    int     `json:"chunkIndex"`
	ProcessedText string  `json:"processedText"`
	Status        string  `json:"status"`
	RetryCount    int     `json:"retryCount"`
	InputTokens   int     `json:"inputTokens,omitempty"`
	OutputTokens  int     `json:"outputTokens,omitempty"`
	Cost          float64 `json:"cost,omitempty"`
	DurationMs    int64   `json:"durationMs,omitempty"`
	Error         string  `json:"error,omitempty"`
}

type Progress struct {
	Progress          float64 `json:"progress"`
	CurrentChunk      int     `json:"currentChunk"`
	TotalChunks       int     `json:"totalChunks"`
	ChunksProcessed   int     `json:"chunksProcessed"`
	EtaMs             int64   `json:"etaMs"`
	AvgChunkMs        float64 `json:"avgChunkMs"`
	LastChunkMs       int64   `json:"lastChunkMs"`
	TotalInputTokens  int     `json:"totalInputTokens"`
	TotalOutputTokens int     `json:"totalOutputTokens"`
	TotalCost         float64 `json:"totalCost"`
}

type Summary struct {
	Succeeded         int      `json:"succeeded"`
	Failed            int      `json:"failed"`
	Retries           int      `json:"retries"`
	TotalInputTokens  int      `json:"totalInputTokens"`
	TotalOutputTokens int      `json:"totalOutputTokens"`
	TotalCost         float64  `json:"totalCost"`
	AppliedSteps      []string `json:"appliedSteps"`
	Logs              []string `json:"logs,omitempty"`
	DurationMs        int64    `json:"durationMs"`
}

type Complete struct {
	ProcessedText string  `json:"processedText"`
	TotalChunks   int     `json:"totalChunks"`
	Summary       Summary `json:"summary"`
}

type Error struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func FromJob(j job.Job) Job {
	return Job{
		ID:                 j.ID.String(),
		Kind:               string(j.Kind),
		Status:             string(j.Status),
		Progress:           j.ClampedProgress(),
		Message:            j.Message,
		OutputArtifactPath: j.OutputArtifactPath,
		ArtifactURL:        j.ArtifactURL,
		Error:              j.Error,
		ProcessedPages:     j.ProcessedPages,
		TotalPages:         j.TotalPages,
		Params:             j.Params,
		CreatedAt:          j.CreatedAt,
		UpdatedAt:          j.UpdatedAt,
	}
}

func FromJobs(jobs []job.Job) []Job {
	out := make([]Job, len(jobs))
	for i, j := range jobs {
		out[i] = FromJob(j)
	}
	return out
}

func fromSummary(s pipeline.Summary) Summary {
	steps := s.AppliedSteps
	if steps == nil {
		steps = []string{}
	}
	return Summary{
		Succeeded:         s.Succeeded,
		Failed:            s.Failed,
		Retries:           s.Retries,
		TotalInputTokens:  s.TotalInputTokens,
		TotalOutputTokens: s.TotalOutputTokens,
		TotalCost:         s.TotalCost,
		AppliedSteps:      steps,
		Logs:              s.Logs,
		DurationMs:        s.Duration.Milliseconds(),
	}
}

// Wrap converts an internal event into its envelope. Accepted values are
// the job and pipeline event types and errors.
func Wrap(ev any) (Envelope, error) {
	switch e := ev.(type) {
	case job.SnapshotEvent:
		return Envelope{Type: TypeStatus, Payload: Status{Jobs: FromJobs(e.Jobs)}}, nil
	case job.ChangedEvent:
		return Envelope{Type: TypeJob, Payload: FromJob(e.Job)}, nil
	case job.LogEvent:
		return Envelope{Type: TypeLog, Payload: Log{
			ID:        e.JobID.String(),
			Level:     e.Level,
			Message:   e.Message,
			Timestamp: e.Timestamp,
		}}, nil
	case pipeline.ChunkResult:
		return Envelope{Type: TypeChunk, Payload: Chunk{
			ChunkIndex:    e.ChunkIndex,
			ProcessedText: e.ProcessedText,
			Status:        string(e.Status),
			RetryCount:    e.RetryCount,
			InputTokens:   e.InputTokens,
			OutputTokens:  e.OutputTokens,
			Cost:          e.Cost,
			DurationMs:    e.DurationMs,
			Error:         e.Error,
		}}, nil
	case pipeline.Progress:
		return Envelope{Type: TypeProgress, Payload: Progress(e)}, nil
	case pipeline.Complete:
		return Envelope{Type: TypeComplete, Payload: Complete{
			ProcessedText: e.Summary.Text,
			TotalChunks:   e.Summary.TotalChunks,
			Summary:       fromSummary(e.Summary),
		}}, nil
	case error:
		return ErrorEnvelope(e), nil
	default:
		return Envelope{}, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

// Encode wraps ev and marshals the envelope.
func Encode(ev any) ([]byte, error) {
	env, err := Wrap(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// ErrorEnvelope reports a failed request or aborted run.
func ErrorEnvelope(err error) Envelope {
	payload := Error{Message: err.Error()}
	var verr common.ValidationError
	if errors.As(err, &verr) {
		payload.Field = verr.Field
	}
	return Envelope{Type: TypeError, Payload: payload}
}
