package server

import (
	"context"
	"io"

	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"

	"github.com/gridsense/meterhub/internal/config"
	"github.com/gridsense/meterhub/internal/domain"
	"github.com/gridsense/meterhub/internal/ingest"
)

// mockIngestService returns canned values and records what handlers pass in.
type mockIngestService struct {
	latestHook func()

	reading   domain.Reading
	ingestErr error

	latest    domain.Reading
	latestErr error

	meters    []domain.Meter
	metersErr error

	readings    []domain.Reading
	readingsErr error

	importResult ingest.ImportResult
	importErr    error

	exportCSV string
	exportErr error

	gotAccessID string
	gotValues   domain.ReadingValues
	gotImport   []byte
}

func (m *mockIngestService) Ingest(_ context.Context, accessID string, v domain.ReadingValues) (domain.Reading, error) {
	m.gotAccessID = accessID
	m.gotValues = v
	return m.reading, m.ingestErr
}

func (m *mockIngestService) Latest(_ context.Context, accessID string) (domain.Reading, error) {
	m.gotAccessID = accessID
	if m.latestHook != nil {
		m.latestHook()
	}
	return m.latest, m.latestErr
}

func (m *mockIngestService) ListMeters(_ context.Context) ([]domain.Meter, error) {
	return m.meters, m.metersErr
}

func (m *mockIngestService) ListReadings(_ context.Context) ([]domain.Reading, error) {
	return m.readings, m.readingsErr
}

func (m *mockIngestService) ImportCSV(_ context.Context, r io.Reader) (ingest.ImportResult, error) {
	m.gotImport, _ = io.ReadAll(r)
	return m.importResult, m.importErr
}

func (m *mockIngestService) ExportCSV(_ context.Context, w io.Writer) error {
	if m.exportErr != nil {
		return m.exportErr
	}
	_, err := io.WriteString(w, m.exportCSV)
	return err
}

// mockSubscriptionHub records register/unregister/send calls.
type mockSubscriptionHub struct {
	registerErr  error
	registered   int
	unregistered int
	sent         []domain.BroadcastMessage
}

func (m *mockSubscriptionHub) Register(_ string, _ *websocket.Conn) error {
	if m.registerErr != nil {
		return m.registerErr
	}
	m.registered++
	return nil
}

func (m *mockSubscriptionHub) Unregister(_ string, _ *websocket.Conn) {
	m.unregistered++
}

func (m *mockSubscriptionHub) Send(_ string, _ *websocket.Conn, msg domain.BroadcastMessage) {
	m.sent = append(m.sent, msg)
}

// mockPgxPool provides a minimal mock for PostgreSQL health checks
type mockPgxPool struct {
	pingErr error
}

func (m *mockPgxPool) Ping(_ context.Context) error {
	return m.pingErr
}

// mockRedisClient provides a minimal mock for Redis health checks
type mockRedisClient struct {
	pingErr error
}

func (m *mockRedisClient) Ping(ctx context.Context) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	if m.pingErr != nil {
		cmd.SetErr(m.pingErr)
	} else {
		cmd.SetVal("PONG")
	}
	return cmd
}

func newTestServer(svc ingestService, hub subscriptionHub, db postgresHealthChecker, redis redisHealthChecker) *Server {
	cfg := &config.Config{
		AppEnv:             "test",
		Port:               "0",
		LogLevel:           "error",
		LogFormat:          "text",
		MaxClientsPerMeter: 8,
		SendBufferSize:     4,
	}
	return NewServer(cfg, svc, hub, db, redis)
}
