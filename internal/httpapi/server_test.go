package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alis-tech/crm-invoice-sync/internal/worker"
)

type fixedStatus struct {
	status worker.Status
}

func (f *fixedStatus) GetStatus() worker.Status {
	return f.status
}

func TestHealthEndpoint(t *testing.T) {
	s := NewServer("127.0.0.1", 0, &fixedStatus{}, zap.NewNop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusEndpointReturnsWorkerSnapshot(t *testing.T) {
	source := &fixedStatus{status: worker.Status{
		IsRunning:      true,
		State:          worker.StateBackoff,
		Attempt:        3,
		CyclesComplete: 12,
		CyclesFailed:   4,
		LastError:      "fetch: connection refused",
	}}
	s := NewServer("127.0.0.1", 0, source, zap.NewNop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got worker.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, worker.StateBackoff, got.State)
	assert.Equal(t, 3, got.Attempt)
	assert.Equal(t, 12, got.CyclesComplete)
	assert.Equal(t, "fetch: connection refused", got.LastError)
}
