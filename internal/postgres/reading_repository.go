package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridsense/meterhub/internal/domain"
)

// ReadingRepo persists and queries telemetry readings backed by Postgres.
type ReadingRepo struct {
	pool *pgxpool.Pool
}

func NewReadingRepo(pool *pgxpool.Pool) *ReadingRepo {
	return &ReadingRepo{pool: pool}
}

const insertReadingSQL = `
	INSERT INTO meter_readings (meter_id, voltage, current, power, energy)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, meter_id, voltage, current, power, energy, recorded_at
`

func scanReading(row pgx.Row) (domain.Reading, error) {
	var rd domain.Reading
	err := row.Scan(&rd.ID, &rd.MeterID, &rd.Voltage, &rd.Current, &rd.Power, &rd.Energy, &rd.RecordedAt)
	return rd, err
}

// Record resolves or creates the meter for accessID and inserts the reading
// in one transaction, so identity creation and first reading commit together.
func (r *ReadingRepo) Record(ctx context.Context, accessID string, v domain.ReadingValues) (domain.Reading, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var meterID int64
	if err := tx.QueryRow(ctx, upsertMeterSQL, accessID).Scan(&meterID); err != nil {
		return domain.Reading{}, fmt.Errorf("failed to resolve or create meter: %w", err)
	}

	rd, err := scanReading(tx.QueryRow(ctx, insertReadingSQL, meterID, v.Voltage, v.Current, v.Power, v.Energy))
	if err != nil {
		return domain.Reading{}, fmt.Errorf("failed to insert reading: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Reading{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return rd, nil
}

func (r *ReadingRepo) Append(ctx context.Context, meterID int64, v domain.ReadingValues) (domain.Reading, error) {
	rd, err := scanReading(r.pool.QueryRow(ctx, insertReadingSQL, meterID, v.Voltage, v.Current, v.Power, v.Energy))
	if err != nil {
		return domain.Reading{}, fmt.Errorf("failed to insert reading: %w", err)
	}
	return rd, nil
}

func (r *ReadingRepo) Latest(ctx context.Context, accessID string) (domain.Reading, error) {
	rd, err := scanReading(r.pool.QueryRow(ctx, `
		SELECT r.id, r.meter_id, r.voltage, r.current, r.power, r.energy, r.recorded_at
		FROM meter_readings r
		JOIN smart_meters m ON m.id = r.meter_id
		WHERE m.access_id = $1
		ORDER BY r.id DESC
		LIMIT 1
	`, accessID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reading{}, domain.ErrNoReadings
	}
	if err != nil {
		return domain.Reading{}, fmt.Errorf("failed to get latest reading: %w", err)
	}
	return rd, nil
}

func (r *ReadingRepo) List(ctx context.Context) ([]domain.Reading, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, meter_id, voltage, current, power, energy, recorded_at
		FROM meter_readings
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	defer rows.Close()

	readings := []domain.Reading{}
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}
	return readings, nil
}

func (r *ReadingRepo) ExportRows(ctx context.Context) ([]domain.ExportRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, m.access_id, r.voltage, r.current, r.power, r.energy
		FROM meter_readings r
		JOIN smart_meters m ON m.id = r.meter_id
		ORDER BY r.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query export rows: %w", err)
	}
	defer rows.Close()

	out := []domain.ExportRow{}
	for rows.Next() {
		var er domain.ExportRow
		if err := rows.Scan(&er.ID, &er.AccessID, &er.Voltage, &er.Current, &er.Power, &er.Energy); err != nil {
			return nil, fmt.Errorf("failed to scan export row: %w", err)
		}
		out = append(out, er)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate export rows: %w", err)
	}
	return out, nil
}
