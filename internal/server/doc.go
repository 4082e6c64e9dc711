// Package server implements the HTTP server using Echo framework.
//
// Routes: device ingest (POST /esp/:device_id), live subscription
// (GET /ws/meter/:device_id), bulk CSV transfer (/import, /export),
// inspection (/meters, /readings), health and metrics.
// Handlers split by concern: handlers_ingest.go, handlers_subscribe.go,
// handlers_csv.go, handlers_api.go, handlers_health.go.
package server
