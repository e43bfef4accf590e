package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidOutput  = errors.New("invalid backend output")
	ErrEmptyOutput    = fmt.Errorf("empty output: %w", ErrInvalidOutput)
	ErrOutputTooShort = fmt.Errorf("output too short: %w", ErrInvalidOutput)
	ErrRefusal        = fmt.Errorf("backend refused: %w", ErrInvalidOutput)
)

// refusalMarkers are phrases a model uses when it declines or fails
// instead of transforming the text.
var refusalMarkers = []string{
	"i'm sorry",
	"i am sorry",
	"i cannot",
	"i can't",
	"i'm unable",
	"i am unable",
	"as an ai",
	"error:",
	"[error]",
}

// ValidateOutput rejects empty, truncated and refused outputs.
func ValidateOutput(input, output string, minRatio float64) error {
	out := strings.TrimSpace(output)
	if out == "" {
		return ErrEmptyOutput
	}

	in := strings.TrimSpace(input)
	if minRatio > 0 && float64(len(out)) < minRatio*float64(len(in)) {
		return fmt.Errorf("%d of %d bytes: %w", len(out), len(in), ErrOutputTooShort)
	}

	lowerOut := strings.ToLower(out)
	lowerIn := strings.ToLower(in)
	for _, m := range refusalMarkers {
		// text that legitimately starts with the phrase is not a refusal
		if strings.HasPrefix(lowerOut, m) && !strings.Contains(lowerIn, m) {
			return fmt.Errorf("starts with %q: %w", m, ErrRefusal)
		}
	}
	return nil
}

// StageError records which stage of which attempt failed.
type StageError struct {
	Stage   Stage
	Attempt int
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed (attempt %d): %v", e.Stage, e.Attempt, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
