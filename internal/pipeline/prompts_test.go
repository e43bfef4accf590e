package pipeline

import (
	"strings"
	"testing"

	"github.com/fedutinova/narrator/internal/textclean"
)

func TestCleaningPrompt(t *testing.T) {
	p := cleaningPrompt("Some text.", textclean.Options{RemoveURLs: true}, "Keep chapter titles.")
	for _, want := range []string{"Remove URLs", "Keep chapter titles.", "Text:\nSome text.", "Cleaned:"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(p, "smart quotes") {
		t.Error("disabled step should not appear in prompt")
	}
}

func TestSpeakerPrompt(t *testing.T) {
	cfg := SpeakerConfig{
		Mode:                SpeakerIntelligent,
		SpeakerCount:        3,
		LabelFormat:         LabelBracket,
		IncludeNarrator:     true,
		NarratorAttribution: AttributionContextual,
		CharacterMapping:    []CharacterMapping{{Name: "Holmes", SpeakerNumber: 1}},
	}
	p := speakerPrompt("\"Hi,\" he said.", cfg, "", true)
	for _, want := range []string{
		"bracket format",
		"Narrator: tag",
		"concise Narrator: lines",
		"at most 3 distinct",
		"Always label Holmes as [1]:",
		"Holmes asked.",
		"Formatted:",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestSpeakerPrompt_FormatModeKeepsAttribution(t *testing.T) {
	p := speakerPrompt("x", SpeakerConfig{Mode: SpeakerFormat, NarratorAttribution: AttributionContextual}, "", true)
	if !strings.Contains(p, "Do not transform attribution tags") {
		t.Error("format mode should preserve attribution tags")
	}
	if strings.Contains(p, "Examples:") {
		t.Error("examples only apply to intelligent mode")
	}
}
