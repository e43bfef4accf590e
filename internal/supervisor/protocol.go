package supervisor

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Worker event tags.
const (
	EventProgress = "progress"
	EventLog      = "log"
	EventComplete = "complete"
	EventError    = "error"
	// EventResult is emitted by some workers instead of complete.
	EventResult = "result"
	// EventConfig echoes the worker's effective settings; informational.
	EventConfig = "config"
)

// WorkerEvent is one line of the worker's stdout protocol.
type WorkerEvent struct {
	Event          string          `json:"event"`
	Progress       *float64        `json:"progress,omitempty"`
	Message        string          `json:"message,omitempty"`
	Level          string          `json:"level,omitempty"`
	OutputPath     string          `json:"output_path,omitempty"`
	Error          json.RawMessage `json:"error,omitempty"`
	ProcessedPages *int            `json:"processed_pages,omitempty"`
	TotalPages     *int            `json:"total_pages,omitempty"`
}

// ParseLine decodes a protocol line. ok is false for anything that is not
// a JSON object carrying an event tag.
func ParseLine(line []byte) (ev WorkerEvent, ok bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return WorkerEvent{}, false
	}
	if err := json.Unmarshal(line, &ev); err != nil {
		return WorkerEvent{}, false
	}
	if ev.Event == "" {
		return WorkerEvent{}, false
	}
	return ev, true
}

// ErrorText renders the error field. Structured errors are returned as
// compact JSON; the message is used when no error is present.
func (e WorkerEvent) ErrorText() string {
	raw := bytes.TrimSpace(e.Error)
	if len(raw) == 0 || string(raw) == "null" {
		return e.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return e.Message
		}
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
