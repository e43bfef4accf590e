package pipeline

import "time"

// Tracker accumulates per-chunk timings and usage and derives the ETA.
// It is not safe for concurrent use.
type Tracker struct {
	total       int
	concurrency int

	completed int
	totalDur  time.Duration
	lastDur   time.Duration
	usage     Usage
}

func NewTracker(totalChunks, concurrency int) *Tracker {
	return &Tracker{total: totalChunks, concurrency: max(1, concurrency)}
}

// Observe records a finished chunk.
func (t *Tracker) Observe(d time.Duration) {
	t.completed++
	t.totalDur += d
	t.lastDur = d
}

func (t *Tracker) AddUsage(u Usage) {
	t.usage.add(u)
}

func (t *Tracker) Completed() int { return t.completed }
func (t *Tracker) Usage() Usage   { return t.usage }

// AvgChunkMs is totalDuration / completed, or 0 before the first chunk.
func (t *Tracker) AvgChunkMs() float64 {
	if t.completed == 0 {
		return 0
	}
	return float64(t.totalDur.Milliseconds()) / float64(t.completed)
}

// EtaMs estimates the remaining time. Chunks still to run are spread over
// the effective parallelism, which never exceeds what is left.
func (t *Tracker) EtaMs() int64 {
	remaining := t.total - t.completed
	if remaining <= 0 || t.completed == 0 {
		return 0
	}
	parallel := min(t.concurrency, remaining)
	return int64(t.AvgChunkMs() * float64(remaining) / float64(parallel))
}

// Progress renders the tracker state for the chunk that just finished.
func (t *Tracker) Progress(currentChunk int) Progress {
	pct := 100.0
	if t.total > 0 {
		pct = float64(t.completed) / float64(t.total) * 100
	}
	return Progress{
		Progress:          pct,
		CurrentChunk:      currentChunk,
		TotalChunks:       t.total,
		ChunksProcessed:   t.completed,
		EtaMs:             t.EtaMs(),
		AvgChunkMs:        t.AvgChunkMs(),
		LastChunkMs:       t.lastDur.Milliseconds(),
		TotalInputTokens:  t.usage.InputTokens,
		TotalOutputTokens: t.usage.OutputTokens,
		TotalCost:         t.usage.Cost(),
	}
}
