package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gridsense/meterhub/internal/apperrors"
	"github.com/gridsense/meterhub/internal/domain"
)

type meterResponse struct {
	ID        int64     `json:"id"`
	AccessID  string    `json:"access_id"`
	CreatedAt time.Time `json:"created_at"`
}

type readingResponse struct {
	ID         int64     `json:"id"`
	MeterID    int64     `json:"meter_id"`
	Voltage    float64   `json:"voltage"`
	Current    float64   `json:"current"`
	Power      float64   `json:"power"`
	Energy     float64   `json:"energy"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (s *Server) handleListMeters(c echo.Context) error {
	meters, err := s.ingest.ListMeters(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to list meters", err)
	}

	resp := make([]meterResponse, 0, len(meters))
	for _, m := range meters {
		resp = append(resp, meterResponse{ID: m.ID, AccessID: m.AccessID, CreatedAt: m.CreatedAt})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListReadings(c echo.Context) error {
	readings, err := s.ingest.ListReadings(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to list readings", err)
	}

	resp := make([]readingResponse, 0, len(readings))
	for _, r := range readings {
		resp = append(resp, toReadingResponse(r))
	}
	return c.JSON(http.StatusOK, resp)
}

func toReadingResponse(r domain.Reading) readingResponse {
	return readingResponse{
		ID:         r.ID,
		MeterID:    r.MeterID,
		Voltage:    r.Voltage,
		Current:    r.Current,
		Power:      r.Power,
		Energy:     r.Energy,
		RecordedAt: r.RecordedAt,
	}
}
