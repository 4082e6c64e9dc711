package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// Device ingest (devices POST readings here)
	s.echo.POST("/esp/:device_id", s.handleIngest)

	// Live subscription (dashboards open a websocket here)
	s.echo.GET("/ws/meter/:device_id", s.handleSubscribe)

	// Bulk transfer
	s.echo.POST("/import", s.handleImport)
	s.echo.GET("/export", s.handleExport)

	// Inspection API
	s.echo.GET("/meters", s.handleListMeters)
	s.echo.GET("/readings", s.handleListReadings)
}
