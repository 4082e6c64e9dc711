package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/gridsense/meterhub/internal/apperrors"
	"github.com/gridsense/meterhub/internal/config"
	"github.com/gridsense/meterhub/internal/domain"
	"github.com/gridsense/meterhub/internal/ingest"
)

// ingestService is the slice of the ingest pipeline the handlers need.
type ingestService interface {
	Ingest(ctx context.Context, accessID string, v domain.ReadingValues) (domain.Reading, error)
	Latest(ctx context.Context, accessID string) (domain.Reading, error)
	ListMeters(ctx context.Context) ([]domain.Meter, error)
	ListReadings(ctx context.Context) ([]domain.Reading, error)
	ImportCSV(ctx context.Context, r io.Reader) (ingest.ImportResult, error)
	ExportCSV(ctx context.Context, w io.Writer) error
}

// subscriptionHub attaches and detaches live websocket subscribers and
// pushes one-off messages to them.
type subscriptionHub interface {
	Register(accessID string, conn *websocket.Conn) error
	Unregister(accessID string, conn *websocket.Conn)
	Send(accessID string, conn *websocket.Conn, msg domain.BroadcastMessage)
}

// postgresHealthChecker is a minimal interface for PostgreSQL health checks
type postgresHealthChecker interface {
	Ping(ctx context.Context) error
}

// redisHealthChecker is a minimal interface for Redis health checks
type redisHealthChecker interface {
	Ping(ctx context.Context) *goredis.StatusCmd
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	ingest    ingestService
	hub       subscriptionHub
	db        postgresHealthChecker
	redis     redisHealthChecker // nil when the relay is disabled
	startTime time.Time
}

func NewServer(cfg *config.Config, svc ingestService, hub subscriptionHub, db postgresHealthChecker, redis redisHealthChecker) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(correlationMiddleware())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:      e,
		config:    cfg,
		ingest:    svc,
		hub:       hub,
		db:        db,
		redis:     redis,
		startTime: time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
