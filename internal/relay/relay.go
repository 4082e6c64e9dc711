// Package relay fans ingested readings out across instances via Redis
// Pub/Sub. With the relay in place, an ingest on any instance reaches
// subscribers connected to every instance: the pipeline publishes instead of
// hitting the local hub, and each instance's relay loop feeds what it
// receives into its own hub. Delivery stays best-effort end to end.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gridsense/meterhub/internal/domain"
	"github.com/gridsense/meterhub/internal/metrics"
)

// readingsChannel carries every broadcast message; the meter ID travels in
// the payload, so one subscription per instance suffices.
const readingsChannel = "meterhub:readings"

// NewClient creates a Redis client from a URL (e.g., "redis://localhost:6379")
// and verifies the connection.
func NewClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// Relay publishes broadcast messages to Redis and feeds received ones into
// the local hub. It satisfies domain.Broadcaster so the ingest pipeline can
// swap it in for the hub transparently.
type Relay struct {
	rdb    *goredis.Client
	hub    domain.Broadcaster
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a relay that forwards received messages into hub.
// Call Start to begin receiving and Stop to shut down.
func New(rdb *goredis.Client, hub domain.Broadcaster) *Relay {
	return &Relay{
		rdb:  rdb,
		hub:  hub,
		done: make(chan struct{}),
	}
}

// Broadcast publishes the message for every instance (including this one) to
// pick up. Publish failure is logged, never surfaced: the fan-out contract is
// best-effort and the reading is already persisted.
func (r *Relay) Broadcast(msg domain.BroadcastMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal relay message", "meter_id", msg.MeterID, "error", err)
		return
	}

	if err := r.rdb.Publish(context.Background(), readingsChannel, data).Err(); err != nil {
		metrics.RelayPublishesTotal.WithLabelValues("error").Inc()
		slog.Error("Failed to publish relay message", "meter_id", msg.MeterID, "error", err)
		return
	}
	metrics.RelayPublishesTotal.WithLabelValues("success").Inc()
}

// Start subscribes to the relay channel and forwards messages to the local
// hub until Stop is called.
func (r *Relay) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	sub := r.rdb.Subscribe(ctx, readingsChannel)

	go func() {
		defer close(r.done)
		defer func() { _ = sub.Close() }()

		msgCh := sub.Channel()
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				var bm domain.BroadcastMessage
				if err := json.Unmarshal([]byte(msg.Payload), &bm); err != nil {
					metrics.RelayDecodeErrors.Inc()
					slog.Error("Failed to unmarshal relay message", "error", err)
					continue
				}
				metrics.RelayMessagesReceived.Inc()
				r.hub.Broadcast(bm)
			case <-ctx.Done():
				return
			}
		}
	}()

	slog.Info("Relay started", "channel", readingsChannel)
}

// Stop ends the subscription loop and waits for it to exit.
func (r *Relay) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	slog.Info("Relay stopped")
}
