package server

import (
	"math"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gridsense/meterhub/internal/apperrors"
	"github.com/gridsense/meterhub/internal/domain"
)

// readingRequest is the ingest payload. Pointers distinguish a missing field
// from an explicit zero.
type readingRequest struct {
	Voltage *float64 `json:"voltage"`
	Current *float64 `json:"current"`
	Power   *float64 `json:"power"`
	Energy  *float64 `json:"energy"`
}

func (r readingRequest) validate() (domain.ReadingValues, error) {
	fields := map[string]*float64{
		"voltage": r.Voltage,
		"current": r.Current,
		"power":   r.Power,
		"energy":  r.Energy,
	}
	for name, f := range fields {
		if f == nil {
			return domain.ReadingValues{}, apperrors.ValidationError("missing field").WithField("field", name)
		}
		if math.IsNaN(*f) || math.IsInf(*f, 0) {
			return domain.ReadingValues{}, apperrors.ValidationError("value is not a finite number").WithField("field", name)
		}
	}
	return domain.ReadingValues{
		Voltage: *r.Voltage,
		Current: *r.Current,
		Power:   *r.Power,
		Energy:  *r.Energy,
	}, nil
}

func (s *Server) handleIngest(c echo.Context) error {
	accessID := c.Param("device_id")
	if accessID == "" {
		return apperrors.ValidationError("device ID is required")
	}

	var req readingRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid reading payload")
	}

	values, err := req.validate()
	if err != nil {
		return err
	}

	rd, err := s.ingest.Ingest(c.Request().Context(), accessID, values)
	if err != nil {
		return apperrors.InternalError("failed to store reading", err).WithField("meter_id", accessID)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"status":   "created",
		"id":       rd.ID,
		"meter_id": accessID,
	})
}
