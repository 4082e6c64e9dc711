package domain

import (
	"context"
	"time"
)

// --- Model types ---

// Meter is the identity of one metering device: the opaque access ID the
// device presents on the wire, paired with an internal numeric ID.
// Created on first contact, never deleted.
type Meter struct {
	ID        int64     `db:"id"`
	AccessID  string    `db:"access_id"`
	CreatedAt time.Time `db:"created_at"`
}

// ReadingValues is one telemetry sample as sent by a device.
type ReadingValues struct {
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
	Power   float64 `json:"power"`
	Energy  float64 `json:"energy"`
}

// Reading is a persisted telemetry sample. Append-only; never mutated.
type Reading struct {
	ID         int64     `db:"id"`
	MeterID    int64     `db:"meter_id"`
	Voltage    float64   `db:"voltage"`
	Current    float64   `db:"current"`
	Power      float64   `db:"power"`
	Energy     float64   `db:"energy"`
	RecordedAt time.Time `db:"recorded_at"`
}

// Values returns the sample values of a persisted reading.
func (r Reading) Values() ReadingValues {
	return ReadingValues{Voltage: r.Voltage, Current: r.Current, Power: r.Power, Energy: r.Energy}
}

// ExportRow is one reading joined with its meter's access ID, as emitted by
// the CSV export.
type ExportRow struct {
	ID       int64
	AccessID string
	Voltage  float64
	Current  float64
	Power    float64
	Energy   float64
}

// --- Shared value types ---

// BroadcastMessage is the transient payload pushed to live subscribers of a
// meter. Derived from a just-persisted reading; never stored.
type BroadcastMessage struct {
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
	Power   float64 `json:"power"`
	Energy  float64 `json:"energy"`
	MeterID string  `json:"meter_id"`
}

// NewBroadcastMessage builds the fan-out payload for a meter's access ID.
func NewBroadcastMessage(accessID string, v ReadingValues) BroadcastMessage {
	return BroadcastMessage{
		Voltage: v.Voltage,
		Current: v.Current,
		Power:   v.Power,
		Energy:  v.Energy,
		MeterID: accessID,
	}
}

// --- Interfaces ---

// MeterRepository resolves and lists meter identities.
type MeterRepository interface {
	// ResolveOrCreate returns the internal ID for an access ID, creating the
	// meter on first contact. Idempotent under concurrent first contact.
	ResolveOrCreate(ctx context.Context, accessID string) (int64, error)
	List(ctx context.Context) ([]Meter, error)
}

// ReadingRepository persists and queries telemetry readings.
type ReadingRepository interface {
	// Record resolves or creates the meter for accessID and appends a reading
	// in one transaction: identity creation and first reading commit together.
	Record(ctx context.Context, accessID string, v ReadingValues) (Reading, error)

	// Append inserts a reading for an already-resolved internal meter ID.
	Append(ctx context.Context, meterID int64, v ReadingValues) (Reading, error)

	// Latest returns the most recent reading for a meter's access ID, or
	// ErrNoReadings if the meter has none (or does not exist).
	Latest(ctx context.Context, accessID string) (Reading, error)

	List(ctx context.Context) ([]Reading, error)

	// ExportRows lists all readings with each internal meter ID resolved back
	// to its access ID, in insertion order.
	ExportRows(ctx context.Context) ([]ExportRow, error)
}

// Broadcaster delivers a message to the live subscribers of one meter.
// Best-effort: a failed or missing subscriber never surfaces to the caller.
type Broadcaster interface {
	Broadcast(msg BroadcastMessage)
}
