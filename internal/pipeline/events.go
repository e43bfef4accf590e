package pipeline

import "time"

// Event is emitted while a run progresses: ChunkResult, Progress or
// Complete.
type Event interface {
	isEvent()
}

type ChunkStatus string

const (
	ChunkSuccess ChunkStatus = "success"
	ChunkRetry   ChunkStatus = "retry"
	ChunkFailed  ChunkStatus = "failed"
)

// ChunkResult reports one attempt outcome for a chunk. Retry results are
// transient; success and failed are final for the chunk.
type ChunkResult struct {
	ChunkIndex    int
	ProcessedText string
	Status        ChunkStatus
	RetryCount    int
	InputTokens   int
	OutputTokens  int
	Cost          float64
	DurationMs    int64
	Error         string
}

// Progress is emitted after every finished chunk.
type Progress struct {
	Progress          float64
	CurrentChunk      int
	TotalChunks       int
	ChunksProcessed   int
	EtaMs             int64
	AvgChunkMs        float64
	LastChunkMs       int64
	TotalInputTokens  int
	TotalOutputTokens int
	TotalCost         float64
}

// Complete carries the final summary.
type Complete struct {
	Summary Summary
}

type Summary struct {
	Text              string
	TotalChunks       int
	Succeeded         int
	Failed            int
	Retries           int
	TotalInputTokens  int
	TotalOutputTokens int
	TotalCost         float64
	AppliedSteps      []string
	Logs              []string
	Duration          time.Duration
}

func (ChunkResult) isEvent() {}
func (Progress) isEvent()    {}
func (Complete) isEvent()    {}
