package pipeline

import (
	"fmt"
	"time"

	"github.com/fedutinova/narrator/internal/backoff"
	"github.com/fedutinova/narrator/internal/common"
	"github.com/fedutinova/narrator/internal/textclean"
	"github.com/go-playground/validator/v10"
)

type SpeakerMode string

const (
	SpeakerNone        SpeakerMode = "none"
	SpeakerFormat      SpeakerMode = "format"
	SpeakerIntelligent SpeakerMode = "intelligent"
)

type LabelFormat string

const (
	LabelSpeaker LabelFormat = "speaker"
	LabelBracket LabelFormat = "bracket"
)

// NarratorAttribution controls what happens to tags such as "he said".
type NarratorAttribution string

const (
	AttributionRemove     NarratorAttribution = "remove"
	AttributionVerbatim   NarratorAttribution = "verbatim"
	AttributionContextual NarratorAttribution = "contextual"
)

type CharacterMapping struct {
	Name          string `json:"name" yaml:"name" validate:"required"`
	SpeakerNumber int    `json:"speakerNumber" yaml:"speaker_number" validate:"min=1"`
}

// SpeakerConfig drives the optional speaker formatting stage.
type SpeakerConfig struct {
	Mode                  SpeakerMode         `json:"mode" yaml:"mode" validate:"omitempty,oneof=none format intelligent"`
	SpeakerCount          int                 `json:"speakerCount" yaml:"speaker_count" validate:"omitempty,min=1,max=20"`
	LabelFormat           LabelFormat         `json:"labelFormat" yaml:"label_format" validate:"omitempty,oneof=speaker bracket"`
	IncludeNarrator       bool                `json:"includeNarrator" yaml:"include_narrator"`
	NarratorAttribution   NarratorAttribution `json:"narratorAttribution" yaml:"narrator_attribution" validate:"omitempty,oneof=remove verbatim contextual"`
	CharacterMapping      []CharacterMapping  `json:"characterMapping,omitempty" yaml:"character_mapping" validate:"dive"`
	NarratorCharacterName string              `json:"narratorCharacterName,omitempty" yaml:"narrator_character_name" validate:"max=200"`
}

// Enabled reports whether the speaker stage runs.
func (s SpeakerConfig) Enabled() bool {
	return s.Mode != "" && s.Mode != SpeakerNone
}

type Config struct {
	BatchSize           int               `json:"batchSize" yaml:"batch_size" validate:"min=1,max=500"`
	Cleaning            textclean.Options `json:"cleaning" yaml:"cleaning"`
	Speaker             SpeakerConfig     `json:"speaker" yaml:"speaker"`
	Model               string            `json:"model,omitempty" yaml:"model"`
	Temperature         float64           `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	CustomInstructions  string            `json:"customInstructions,omitempty" yaml:"custom_instructions" validate:"max=4000"`
	LLMCleaningDisabled bool              `json:"llmCleaningDisabled" yaml:"llm_cleaning_disabled"`
	ExtendedExamples    bool              `json:"extendedExamples" yaml:"extended_examples"`

	MaxAttempts     int     `json:"maxAttempts" yaml:"max_attempts" validate:"min=1,max=10"`
	MinOutputRatio  float64 `json:"minOutputRatio" yaml:"min_output_ratio" validate:"gte=0,lte=1"`
	Concurrency     int     `json:"concurrency" yaml:"concurrency" validate:"min=1,max=32"`
	Backoff         string  `json:"backoff" yaml:"backoff" validate:"omitempty,oneof=constant fixed exponential jitter"`
	RetryDelayMs    int     `json:"retryDelayMs" yaml:"retry_delay_ms" validate:"gte=0"`
	MaxRetryDelayMs int     `json:"maxRetryDelayMs" yaml:"max_retry_delay_ms" validate:"gte=0"`
}

// DefaultConfig returns the settings used when a request omits them.
func DefaultConfig() Config {
	return Config{
		BatchSize:      10,
		Cleaning:       textclean.DefaultOptions(),
		Speaker:        SpeakerConfig{Mode: SpeakerNone, SpeakerCount: 2, LabelFormat: LabelSpeaker, NarratorAttribution: AttributionRemove},
		Temperature:    0.3,
		MaxAttempts:    2,
		MinOutputRatio: 0.2,
		Concurrency:    1,
		Backoff:        "constant",
		RetryDelayMs:   1000,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config and returns a common.ValidationError for the
// first offending field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return common.ValidationError{
				Field:   fe.Namespace(),
				Message: fmt.Sprintf("failed %q constraint (%s)", fe.Tag(), fe.Param()),
			}
		}
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Strategy returns the retry backoff described by the config.
func (c Config) Strategy() (backoff.Strategy, error) {
	return backoff.Parse(c.Backoff,
		time.Duration(c.RetryDelayMs)*time.Millisecond,
		time.Duration(c.MaxRetryDelayMs)*time.Millisecond)
}
