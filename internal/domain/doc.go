// Package domain holds the core model types and repository contracts shared
// across the ingest pipeline, fan-out hub, and transport adapters.
package domain
