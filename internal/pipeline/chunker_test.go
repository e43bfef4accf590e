package pipeline

import (
	"testing"

	"github.com/fedutinova/narrator/internal/common"
)

func TestSentences(t *testing.T) {
	got := Sentences("Hello world!  How are you?\nFine thanks")
	want := []string{"Hello world!", "How are you?", "Fine thanks"}
	if len(got) != len(want) {
		t.Fatalf("got %d sentences, want %d: %q", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplit(t *testing.T) {
	chunks, err := Split(sevenSentences, 3)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{"One. Two. Three.", "Four. Five. Six.", "Seven."}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d: got %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestSplit_Empty(t *testing.T) {
	chunks, err := Split("   ", 5)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %q", chunks)
	}
}

func TestSplit_InvalidBatch(t *testing.T) {
	if _, err := Split("One.", 0); !common.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
