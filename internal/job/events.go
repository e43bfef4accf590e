package job

import (
	"time"

	"github.com/google/uuid"
)

// Event is published by the registry. The concrete types are
// SnapshotEvent, ChangedEvent and LogEvent.
type Event interface {
	isEvent()
}

// SnapshotEvent carries every known job, newest first.
type SnapshotEvent struct {
	Jobs []Job
}

// ChangedEvent carries a job right after it was created or mutated.
type ChangedEvent struct {
	Job Job
}

type LogEvent struct {
	JobID     uuid.UUID
	Level     string
	Message   string
	Timestamp time.Time
}

func (SnapshotEvent) isEvent() {}
func (ChangedEvent) isEvent()  {}
func (LogEvent) isEvent()      {}
