package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longregen/promptforge/internal/application/services"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

type stubMonitor struct{ status services.MonitorStatus }

func (m stubMonitor) Status() services.MonitorStatus { return m.status }

func TestHealthHandler_Handle(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantCode   int
		wantStatus string
		wantDB     bool
	}{
		{name: "memory mode", db: nil, wantCode: http.StatusOK, wantStatus: "healthy"},
		{name: "database reachable", db: stubPinger{}, wantCode: http.StatusOK, wantStatus: "healthy", wantDB: true},
		{name: "database down", db: stubPinger{err: errors.New("connection refused")}, wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy", wantDB: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler("1.2.3", tt.db, nil)

			rr := httptest.NewRecorder()
			handler.Handle(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var resp HealthResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, "1.2.3", resp.Version)

			db, ok := resp.Services["database"]
			assert.Equal(t, tt.wantDB, ok)
			if ok {
				assert.NotNil(t, db.LatencyMs)
			}
		})
	}
}

func TestHealthHandler_Monitor(t *testing.T) {
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	handler := NewHealthHandler("1.2.3", nil, stubMonitor{status: services.MonitorStatus{
		Running:        false,
		TicksCompleted: 4,
		LastTick:       &services.TickReport{FinishedAt: finished},
	}})

	rr := httptest.NewRecorder()
	handler.Handle(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	require.NotNil(t, resp.Monitor)
	assert.False(t, resp.Monitor.Running)
	assert.Equal(t, int64(4), resp.Monitor.TicksCompleted)
	require.NotNil(t, resp.Monitor.LastTickAt)
	assert.True(t, finished.Equal(*resp.Monitor.LastTickAt))
}
