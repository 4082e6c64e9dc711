package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsense/meterhub/internal/domain"
)

func TestHandleListMeters(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &mockIngestService{
		meters: []domain.Meter{
			{ID: 1, AccessID: "meter-1", CreatedAt: created},
			{ID: 2, AccessID: "meter-2", CreatedAt: created},
		},
	}
	srv := newTestServer(svc, &mockSubscriptionHub{}, &mockPgxPool{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/meters", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"access_id":"meter-1"`)
	assert.Contains(t, rec.Body.String(), `"access_id":"meter-2"`)
}

func TestHandleListMeters_Empty(t *testing.T) {
	srv := newTestServer(&mockIngestService{}, &mockSubscriptionHub{}, &mockPgxPool{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/meters", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHandleListReadings(t *testing.T) {
	svc := &mockIngestService{
		readings: []domain.Reading{
			{ID: 1, MeterID: 1, Voltage: 230, Current: 1, Power: 230, Energy: 5},
		},
	}
	srv := newTestServer(svc, &mockSubscriptionHub{}, &mockPgxPool{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/readings", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"voltage":230`)
	assert.Contains(t, rec.Body.String(), `"meter_id":1`)
}

func TestHandleListReadings_Failure(t *testing.T) {
	svc := &mockIngestService{readingsErr: errors.New("db down")}
	srv := newTestServer(svc, &mockSubscriptionHub{}, &mockPgxPool{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/readings", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
