package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsense/meterhub/internal/domain"
)

// memStore is an in-memory stand-in for the postgres repositories.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	meters   map[string]int64
	readings []domain.Reading
	failNext error
}

func newMemStore() *memStore {
	return &memStore{meters: map[string]int64{}}
}

func (m *memStore) ResolveOrCreate(_ context.Context, accessID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return 0, err
	}
	if id, ok := m.meters[accessID]; ok {
		return id, nil
	}
	m.nextID++
	m.meters[accessID] = m.nextID
	return m.nextID, nil
}

func (m *memStore) List(context.Context) ([]domain.Meter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Meter{}
	for accessID, id := range m.meters {
		out = append(out, domain.Meter{ID: id, AccessID: accessID})
	}
	return out, nil
}

func (m *memStore) Record(ctx context.Context, accessID string, v domain.ReadingValues) (domain.Reading, error) {
	id, err := m.ResolveOrCreate(ctx, accessID)
	if err != nil {
		return domain.Reading{}, err
	}
	return m.Append(ctx, id, v)
}

func (m *memStore) Append(_ context.Context, meterID int64, v domain.ReadingValues) (domain.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return domain.Reading{}, err
	}
	rd := domain.Reading{
		ID:         int64(len(m.readings) + 1),
		MeterID:    meterID,
		Voltage:    v.Voltage,
		Current:    v.Current,
		Power:      v.Power,
		Energy:     v.Energy,
		RecordedAt: time.Now(),
	}
	m.readings = append(m.readings, rd)
	return rd, nil
}

func (m *memStore) Latest(_ context.Context, accessID string) (domain.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meterID, ok := m.meters[accessID]
	if !ok {
		return domain.Reading{}, domain.ErrNoReadings
	}
	for i := len(m.readings) - 1; i >= 0; i-- {
		if m.readings[i].MeterID == meterID {
			return m.readings[i], nil
		}
	}
	return domain.Reading{}, domain.ErrNoReadings
}

func (m *memStore) ExportRows(context.Context) ([]domain.ExportRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := map[int64]string{}
	for accessID, id := range m.meters {
		byID[id] = accessID
	}
	out := []domain.ExportRow{}
	for _, rd := range m.readings {
		out = append(out, domain.ExportRow{
			ID:       rd.ID,
			AccessID: byID[rd.MeterID],
			Voltage:  rd.Voltage,
			Current:  rd.Current,
			Power:    rd.Power,
			Energy:   rd.Energy,
		})
	}
	return out, nil
}

// readingRepo adapts memStore to the ReadingRepository List method.
type readingRepo struct{ *memStore }

func (r readingRepo) List(context.Context) ([]domain.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Reading{}, r.readings...), nil
}

// captureBroadcaster records every broadcast message.
type captureBroadcaster struct {
	mu       sync.Mutex
	messages []domain.BroadcastMessage
}

func (b *captureBroadcaster) Broadcast(msg domain.BroadcastMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
}

func (b *captureBroadcaster) all() []domain.BroadcastMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.BroadcastMessage{}, b.messages...)
}

func testService() (*Service, *memStore, *captureBroadcaster) {
	store := newMemStore()
	bc := &captureBroadcaster{}
	return NewService(store, readingRepo{store}, bc), store, bc
}

func TestIngest_PersistsThenBroadcasts(t *testing.T) {
	svc, store, bc := testService()
	ctx := context.Background()

	v := domain.ReadingValues{Voltage: 230.2, Current: 1.4, Power: 322.3, Energy: 5.5}
	rd, err := svc.Ingest(ctx, "esp32-001", v)
	require.NoError(t, err)
	assert.Equal(t, v, rd.Values())

	msgs := bc.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.NewBroadcastMessage("esp32-001", v), msgs[0])

	latest, err := store.Latest(ctx, "esp32-001")
	require.NoError(t, err)
	assert.Equal(t, v, latest.Values())
}

func TestIngest_ReusesMeterIdentity(t *testing.T) {
	svc, store, _ := testService()
	ctx := context.Background()

	rd1, err := svc.Ingest(ctx, "esp32-001", domain.ReadingValues{Energy: 1})
	require.NoError(t, err)
	rd2, err := svc.Ingest(ctx, "esp32-001", domain.ReadingValues{Energy: 2})
	require.NoError(t, err)

	assert.Equal(t, rd1.MeterID, rd2.MeterID)

	meters, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, meters, 1)
}

func TestIngest_NoBroadcastOnPersistenceFailure(t *testing.T) {
	svc, store, bc := testService()
	store.failNext = errors.New("connection lost")

	_, err := svc.Ingest(context.Background(), "esp32-001", domain.ReadingValues{Energy: 1})
	require.Error(t, err)
	assert.Empty(t, bc.all())
}

func TestLatest_UnknownMeter(t *testing.T) {
	svc, _, _ := testService()

	_, err := svc.Latest(context.Background(), "never-seen")
	assert.ErrorIs(t, err, domain.ErrNoReadings)
}
