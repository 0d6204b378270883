package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"regime-monitor/internal/model"
)

func TestSetRegime(t *testing.T) {
	m := NewMetrics()

	m.SetRegime("QQQ", model.RegimeUp)
	m.SetRegime("SPY", model.RegimeDown)
	m.SetRegime("IWM", model.RegimeNeutral)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Regime.WithLabelValues("QQQ")))
	assert.Equal(t, -1.0, testutil.ToFloat64(m.Regime.WithLabelValues("SPY")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Regime.WithLabelValues("IWM")))
}

func TestHealthStatus_ServeHTTP(t *testing.T) {
	h := NewHealthStatus()
	h.SetLastRun(7, "OK", time.Now(), 2)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rec.Body.String(), `"last_run_id":7`)

	h.SetLastRun(8, "ERROR", time.Now(), 0)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)

	h.mu.Lock()
	h.StoreOK = false
	h.mu.Unlock()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
}
