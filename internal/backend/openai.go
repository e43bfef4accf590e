package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fedutinova/narrator/internal/pipeline"
	"github.com/sashabaranov/go-openai"
)

var ErrNoChoices = errors.New("no choices in completion response")

// OpenAIConfig configures a chat-completions backend. BaseURL points it
// at any compatible server such as a local Ollama.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Prices are per million tokens.
	InputPrice  float64
	OutputPrice float64
	Timeout     time.Duration
}

type OpenAI struct {
	client *openai.Client
	cfg    OpenAIConfig
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(oc),
		cfg:    cfg,
	}
}

func (o *OpenAI) Transform(ctx context.Context, req pipeline.Request) (pipeline.Response, error) {
	model := req.Model
	if model == "" {
		model = o.cfg.Model
	}
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req.Stage)},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		slog.Error("OpenAI API error", "error", err, "model", model, "stage", req.Stage)
		return pipeline.Response{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return pipeline.Response{}, ErrNoChoices
	}

	content := resp.Choices[0].Message.Content
	slog.Debug("received response from OpenAI",
		"model", resp.Model,
		"stage", req.Stage,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"response_length", len(content))

	out := pipeline.Response{Text: content}
	// compatible servers may leave usage empty; the pipeline estimates then
	if resp.Usage.TotalTokens > 0 || resp.Usage.PromptTokens > 0 {
		out.Usage = &pipeline.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			InputCost:    float64(resp.Usage.PromptTokens) / 1e6 * o.cfg.InputPrice,
			OutputCost:   float64(resp.Usage.CompletionTokens) / 1e6 * o.cfg.OutputPrice,
		}
	}
	return out, nil
}

func systemPrompt(stage pipeline.Stage) string {
	switch stage {
	case pipeline.StageSpeaker:
		return "You format prose for multi-speaker text-to-speech. Follow the instructions exactly and output only the formatted text."
	default:
		return "You prepare text for text-to-speech. Follow the instructions exactly and output only the cleaned text."
	}
}
