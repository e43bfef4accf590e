package redis

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/fedutinova/narrator/internal/job"
	"github.com/fedutinova/narrator/internal/wire"
	"github.com/redis/go-redis/v9"
)

// Mirror republishes registry events as wire envelopes on a Redis
// channel. Handle never blocks: events that do not fit the buffer are
// dropped and counted.
type Mirror struct {
	client  *redis.Client
	channel string
	events  chan []byte
	dropped atomic.Int64
	sent    atomic.Int64
}

func (s *Service) NewMirror(channel string, buffer int) *Mirror {
	return newMirror(s.client, channel, buffer)
}

func newMirror(client *redis.Client, channel string, buffer int) *Mirror {
	return &Mirror{
		client:  client,
		channel: channel,
		events:  make(chan []byte, max(1, buffer)),
	}
}

// Handle is meant to be passed to registry.Subscribe.
func (m *Mirror) Handle(e job.Event) {
	data, err := wire.Encode(e)
	if err != nil {
		slog.Error("mirror encode failed", "error", err)
		return
	}
	select {
	case m.events <- data:
	default:
		if m.dropped.Add(1)%100 == 1 {
			slog.Warn("redis mirror buffer full, dropping events", "channel", m.channel, "dropped", m.dropped.Load())
		}
	}
}

// Run publishes buffered events until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	slog.Info("redis event mirror started", "channel", m.channel)
	for {
		select {
		case <-ctx.Done():
			slog.Info("redis event mirror stopped", "channel", m.channel, "sent", m.sent.Load(), "dropped", m.dropped.Load())
			return
		case data := <-m.events:
			if err := m.client.Publish(ctx, m.channel, data).Err(); err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("redis publish failed", "channel", m.channel, "error", err)
				continue
			}
			m.sent.Add(1)
		}
	}
}

func (m *Mirror) Dropped() int64 { return m.dropped.Load() }
func (m *Mirror) Sent() int64    { return m.sent.Load() }
