package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/gridsense/meterhub/internal/domain"
)

// captureHub records messages the relay hands to the local hub.
type captureHub struct {
	mu       sync.Mutex
	messages []domain.BroadcastMessage
}

func (h *captureHub) Broadcast(msg domain.BroadcastMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

func (h *captureHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func (h *captureHub) first() domain.BroadcastMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.messages[0]
}

func setupRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	return url
}

func TestRelay_PublishReachesSubscribedInstance(t *testing.T) {
	url := setupRedis(t)
	ctx := context.Background()

	rdbA, err := NewClient(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdbA.Close() })

	rdbB, err := NewClient(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdbB.Close() })

	// Instance B subscribes; instance A publishes.
	hubB := &captureHub{}
	relayB := New(rdbB, hubB)
	relayB.Start()
	t.Cleanup(relayB.Stop)

	// Give the subscription a moment to establish
	time.Sleep(200 * time.Millisecond)

	relayA := New(rdbA, &captureHub{})
	msg := domain.BroadcastMessage{Voltage: 230.1, Current: 1.5, Power: 345.15, Energy: 0.5, MeterID: "esp32-001"}
	relayA.Broadcast(msg)

	require.Eventually(t, func() bool { return hubB.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, msg, hubB.first())
}

func TestRelay_MalformedPayloadIgnored(t *testing.T) {
	url := setupRedis(t)
	ctx := context.Background()

	rdb, err := NewClient(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	hub := &captureHub{}
	r := New(rdb, hub)
	r.Start()
	t.Cleanup(r.Stop)

	time.Sleep(200 * time.Millisecond)

	require.NoError(t, rdb.Publish(ctx, "meterhub:readings", "not json").Err())
	r.Broadcast(domain.BroadcastMessage{MeterID: "esp32-001", Energy: 1})

	// The valid message still arrives; the malformed one is dropped
	require.Eventually(t, func() bool { return hub.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "esp32-001", hub.first().MeterID)
}
