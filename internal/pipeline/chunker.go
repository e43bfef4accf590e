package pipeline

import (
	"regexp"
	"strings"

	"github.com/fedutinova/narrator/internal/common"
)

// sentenceRE matches a run up to and including terminal punctuation, or a
// trailing remainder without it.
var sentenceRE = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)

// Sentences splits text into trimmed, non-empty sentences.
func Sentences(text string) []string {
	raw := sentenceRE.FindAllString(text, -1)
	if len(raw) == 0 {
		raw = []string{text}
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Split groups consecutive sentences into chunks of batchSize sentences.
// A chunk never splits a sentence; the last chunk may be shorter.
func Split(text string, batchSize int) ([]string, error) {
	if batchSize < 1 {
		return nil, common.ValidationError{Field: "batchSize", Message: "must be at least 1"}
	}
	sentences := Sentences(text)
	chunks := make([]string, 0, len(sentences)/batchSize+1)
	for start := 0; start < len(sentences); start += batchSize {
		end := min(start+batchSize, len(sentences))
		chunks = append(chunks, strings.Join(sentences[start:end], " "))
	}
	return chunks, nil
}
