package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridsense/meterhub/internal/domain"
)

// MeterRepo resolves and lists meter identities backed by Postgres.
type MeterRepo struct {
	pool *pgxpool.Pool
}

func NewMeterRepo(pool *pgxpool.Pool) *MeterRepo {
	return &MeterRepo{pool: pool}
}

// upsertMeterSQL is idempotent under concurrent first contact: the unique
// constraint on access_id makes both racers converge on one row. The no-op
// DO UPDATE lets RETURNING yield the existing ID on conflict.
const upsertMeterSQL = `
	INSERT INTO smart_meters (access_id)
	VALUES ($1)
	ON CONFLICT (access_id) DO UPDATE SET access_id = EXCLUDED.access_id
	RETURNING id
`

func (r *MeterRepo) ResolveOrCreate(ctx context.Context, accessID string) (int64, error) {
	var id int64
	if err := r.pool.QueryRow(ctx, upsertMeterSQL, accessID).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to resolve or create meter: %w", err)
	}
	return id, nil
}

func (r *MeterRepo) List(ctx context.Context) ([]domain.Meter, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, access_id, created_at
		FROM smart_meters
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list meters: %w", err)
	}
	defer rows.Close()

	meters := []domain.Meter{}
	for rows.Next() {
		var m domain.Meter
		if err := rows.Scan(&m.ID, &m.AccessID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan meter: %w", err)
		}
		meters = append(meters, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate meters: %w", err)
	}
	return meters, nil
}
