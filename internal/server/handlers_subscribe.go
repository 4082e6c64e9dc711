package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/gridsense/meterhub/internal/apperrors"
	"github.com/gridsense/meterhub/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboards are served from arbitrary origins
	},
}

func (s *Server) handleSubscribe(c echo.Context) error {
	accessID := c.Param("device_id")
	if accessID == "" {
		return apperrors.ValidationError("device ID is required")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade websocket: %w", err)
	}

	if err := s.hub.Register(accessID, conn); err != nil {
		slog.Warn("Rejecting subscriber", "meter_id", accessID, "error", err)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber limit reached")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		return nil
	}

	// Snapshot is fetched only after registration, so a reading committed
	// while the subscriber was connecting is never lost: it either shows up
	// in the snapshot or is broadcast to the now-registered connection.
	s.pushSnapshot(c.Request().Context(), accessID, conn)

	// Read pump — blocks until the connection closes. Inbound frames are
	// discarded; the socket is push-only.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.hub.Unregister(accessID, conn)

	return nil //nolint:nilerr // ReadMessage err is block-scoped; outer err is nil
}

// pushSnapshot sends the meter's latest persisted reading to one subscriber
// so its dashboard renders immediately. Best-effort: a meter with no history
// simply has nothing to push, and a failed query leaves the subscriber
// waiting for live data.
func (s *Server) pushSnapshot(ctx context.Context, accessID string, conn *websocket.Conn) {
	latest, err := s.ingest.Latest(ctx, accessID)
	switch {
	case err == nil:
		s.hub.Send(accessID, conn, domain.NewBroadcastMessage(accessID, latest.Values()))
	case errors.Is(err, domain.ErrNoReadings):
		// meter has not reported yet
	default:
		slog.Warn("Failed to load snapshot", "meter_id", accessID, "error", err)
	}
}
