package pipeline

import (
	"context"
	"strings"
)

// Stage identifies a backend call within one chunk attempt.
type Stage string

const (
	StageClean    Stage = "clean"
	StageSpeaker  Stage = "speaker"
	StageValidate Stage = "validate"
)

// Request is one transformation call.
type Request struct {
	Stage       Stage
	Prompt      string
	Text        string
	Model       string
	Temperature float64
}

// Usage is what a backend reports about a call. Costs are in account
// currency.
type Usage struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	InputCost    float64 `json:"inputCost"`
	OutputCost   float64 `json:"outputCost"`
}

func (u Usage) Cost() float64 {
	return u.InputCost + u.OutputCost
}

func (u *Usage) add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.InputCost += o.InputCost
	u.OutputCost += o.OutputCost
}

type Response struct {
	Text string
	// Usage is nil when the backend cannot report it.
	Usage *Usage
}

// Backend transforms text. Implementations must be safe for concurrent use
// when the pipeline runs with Concurrency > 1.
type Backend interface {
	Transform(ctx context.Context, req Request) (Response, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req Request) (Response, error)

func (f BackendFunc) Transform(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// EstimateTokens approximates a token count as one token per four
// characters.
func EstimateTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return max(1, len(text)/4)
}
