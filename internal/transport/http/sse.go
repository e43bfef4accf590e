package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fedutinova/narrator/internal/job"
	"github.com/fedutinova/narrator/internal/wire"
)

const heartbeatInterval = 15 * time.Second

type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

// newSSE writes the event-stream headers. It fails when the response
// cannot be flushed incrementally.
func newSSE(w http.ResponseWriter) (*sseWriter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &sseWriter{w: w, f: f}, nil
}

// send writes one envelope. The event name mirrors the envelope type.
func (s *sseWriter) send(typ wire.Type, data []byte) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", typ, data); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

func (s *sseWriter) heartbeat() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

type frame struct {
	typ  wire.Type
	data []byte
}

var (
	errStreamOverflow = errors.New("client is not keeping up with the stream")
	errClientGone     = errors.New("client connection closed")
)

// relay moves frames from a producer that must not block onto an SSE
// connection. A full buffer or a failed write cancels the producer.
type relay struct {
	sse    *sseWriter
	frames chan frame
	cancel context.CancelCauseFunc
	done   chan struct{}
}

func newRelay(sse *sseWriter, buffer int, cancel context.CancelCauseFunc) *relay {
	if buffer <= 0 {
		buffer = 256
	}
	rl := &relay{
		sse:    sse,
		frames: make(chan frame, buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go rl.write()
	return rl
}

// push queues one frame. It never blocks.
func (rl *relay) push(typ wire.Type, data []byte) {
	select {
	case rl.frames <- frame{typ: typ, data: data}:
	default:
		rl.cancel(errStreamOverflow)
	}
}

// close flushes queued frames and stops the writer. push must not be
// called afterwards.
func (rl *relay) close() {
	close(rl.frames)
	<-rl.done
}

func (rl *relay) write() {
	defer close(rl.done)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	failed := false
	for {
		select {
		case f, ok := <-rl.frames:
			if !ok {
				return
			}
			if failed {
				continue
			}
			if err := rl.sse.send(f.typ, f.data); err != nil {
				failed = true
				rl.cancel(errClientGone)
			}
		case <-ticker.C:
			if !failed && rl.sse.heartbeat() != nil {
				failed = true
				rl.cancel(errClientGone)
			}
		}
	}
}

// streamEvents relays registry events to one client. The first frame is
// always the status snapshot. A client that falls behind loses frames
// instead of stalling the registry.
func (h *Handlers) streamEvents(w http.ResponseWriter, r *http.Request) {
	sse, err := newSSE(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	buffer := h.Config.StreamBuffer
	if buffer <= 0 {
		buffer = 256
	}
	frames := make(chan frame, buffer)
	unsubscribe := h.Jobs.Subscribe(func(e job.Event) {
		env, err := wire.Wrap(e)
		if err != nil {
			slog.Warn("event stream", "error", err)
			return
		}
		data, err := json.Marshal(env)
		if err != nil {
			slog.Warn("event stream", "error", err)
			return
		}
		select {
		case frames <- frame{typ: env.Type, data: data}:
		default:
			h.Metrics.StreamDropped()
		}
	})
	defer unsubscribe()

	h.Metrics.StreamClient(1)
	defer h.Metrics.StreamClient(-1)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case f := <-frames:
			if err := sse.send(f.typ, f.data); err != nil {
				return
			}
		case <-ticker.C:
			if err := sse.heartbeat(); err != nil {
				return
			}
		}
	}
}
