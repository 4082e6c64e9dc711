package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub metrics
var (
	// HubActiveMeters tracks the number of meters with at least one subscriber
	HubActiveMeters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_active_meters",
			Help: "Number of meters with at least one live subscriber",
		},
	)

	// HubConnectedClients tracks the total number of connected WebSocket clients
	HubConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connected_clients",
			Help: "Total number of connected WebSocket clients",
		},
	)

	// HubBroadcastsTotal tracks fan-out invocations by outcome
	HubBroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_broadcasts_total",
			Help: "Total broadcast invocations by outcome (delivered, no_subscribers)",
		},
		[]string{"outcome"},
	)

	// HubSlowClientsEvicted tracks clients dropped because their send buffer filled
	HubSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_slow_clients_evicted_total",
			Help: "Total clients evicted because their send buffer was full",
		},
	)

	// WebSocketPingFailures tracks failed keepalive pings (client likely gone)
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total failed WebSocket keepalive pings",
		},
	)
)

// Ingest metrics
var (
	// ReadingsIngestedTotal tracks persisted readings by source
	ReadingsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readings_ingested_total",
			Help: "Total persisted readings by source (device, import)",
		},
		[]string{"source"},
	)

	// ImportRowsSkipped tracks malformed CSV rows skipped during bulk import
	ImportRowsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "import_rows_skipped_total",
			Help: "Total malformed CSV rows skipped during bulk import",
		},
	)

	// IngestFailures tracks persistence failures on the ingest path
	IngestFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_failures_total",
			Help: "Total ingest requests that failed to persist",
		},
	)
)

// Relay metrics
var (
	// RelayPublishesTotal tracks cross-instance relay publishes by status
	RelayPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_publishes_total",
			Help: "Total Redis relay publishes by status (success, error)",
		},
		[]string{"status"},
	)

	// RelayMessagesReceived tracks relay messages delivered to the local hub
	RelayMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_received_total",
			Help: "Total relay messages received and handed to the local hub",
		},
	)

	// RelayDecodeErrors tracks relay payloads that failed to unmarshal
	RelayDecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_decode_errors_total",
			Help: "Total relay payloads that failed to unmarshal",
		},
	)
)
