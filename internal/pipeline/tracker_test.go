package pipeline

import (
	"testing"
	"time"
)

func TestTracker_Eta(t *testing.T) {
	tr := NewTracker(4, 2)
	if eta := tr.EtaMs(); eta != 0 {
		t.Fatalf("eta before first chunk = %d, want 0", eta)
	}

	tr.Observe(100 * time.Millisecond)
	tr.Observe(300 * time.Millisecond)
	// avg 200ms, 2 remaining across 2 workers
	if eta := tr.EtaMs(); eta != 200 {
		t.Fatalf("eta = %d, want 200", eta)
	}

	tr.Observe(200 * time.Millisecond)
	// one remaining, parallelism capped at 1
	if eta := tr.EtaMs(); eta != 200 {
		t.Fatalf("eta = %d, want 200", eta)
	}

	tr.Observe(200 * time.Millisecond)
	p := tr.Progress(4)
	if p.EtaMs != 0 || p.Progress != 100 || p.ChunksProcessed != 4 {
		t.Fatalf("unexpected final progress: %+v", p)
	}
	if p.LastChunkMs != 200 || p.AvgChunkMs != 200 {
		t.Fatalf("unexpected timings: %+v", p)
	}
}

func TestTracker_Usage(t *testing.T) {
	tr := NewTracker(1, 1)
	tr.AddUsage(Usage{InputTokens: 3, OutputTokens: 2, InputCost: 0.5})
	tr.AddUsage(Usage{InputTokens: 1, OutputCost: 0.25})
	p := tr.Progress(0)
	if p.TotalInputTokens != 4 || p.TotalOutputTokens != 2 || p.TotalCost != 0.75 {
		t.Fatalf("unexpected usage totals: %+v", p)
	}
}
