package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gridsense/meterhub/internal/domain"
	"github.com/gridsense/meterhub/internal/metrics"
)

// Service is the ingest pipeline: it persists incoming readings and, once the
// write has committed, hands them to the broadcaster for fan-out.
type Service struct {
	meters      domain.MeterRepository
	readings    domain.ReadingRepository
	broadcaster domain.Broadcaster
}

func NewService(meters domain.MeterRepository, readings domain.ReadingRepository, broadcaster domain.Broadcaster) *Service {
	return &Service{
		meters:      meters,
		readings:    readings,
		broadcaster: broadcaster,
	}
}

// Ingest persists one reading for a device, creating its meter identity on
// first contact, then broadcasts the values to live subscribers. The
// broadcast happens strictly after the write commits; a delivery problem
// never surfaces to the device.
func (s *Service) Ingest(ctx context.Context, accessID string, v domain.ReadingValues) (domain.Reading, error) {
	rd, err := s.readings.Record(ctx, accessID, v)
	if err != nil {
		metrics.IngestFailures.Inc()
		return domain.Reading{}, fmt.Errorf("failed to persist reading: %w", err)
	}

	metrics.ReadingsIngestedTotal.WithLabelValues("device").Inc()
	slog.Debug("Reading persisted", "meter_id", accessID, "reading_id", rd.ID)

	s.broadcaster.Broadcast(domain.NewBroadcastMessage(accessID, v))
	return rd, nil
}

// Latest returns the most recent persisted reading for a meter's access ID.
// Returns domain.ErrNoReadings when nothing has been persisted yet.
func (s *Service) Latest(ctx context.Context, accessID string) (domain.Reading, error) {
	return s.readings.Latest(ctx, accessID)
}

// ListMeters returns all known meter identities.
func (s *Service) ListMeters(ctx context.Context) ([]domain.Meter, error) {
	return s.meters.List(ctx)
}

// ListReadings returns all persisted readings.
func (s *Service) ListReadings(ctx context.Context) ([]domain.Reading, error) {
	return s.readings.List(ctx)
}
