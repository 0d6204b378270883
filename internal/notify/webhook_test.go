package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhook_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, zerolog.Nop())
	err := wh.Send(context.Background(), Alert{
		Level:     LevelInfo,
		Title:     "[SPY] ShortMomentumDown confirmed (2h)",
		Message:   "details",
		Ticker:    "SPY",
		Direction: "SELL",
		Regime:    "DOWN",
		CandleTS:  time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC),
		Values:    map[string]float64{"rsi5": 41.3},
	})
	require.NoError(t, err)

	assert.Equal(t, "INFO", got["level"])
	assert.Equal(t, "SPY", got["ticker"])
	assert.Equal(t, "SELL", got["direction"])
	assert.Equal(t, "DOWN", got["regime"])
	assert.Equal(t, "2025-03-03T15:00:00Z", got["candle_ts"])
	assert.NotEmpty(t, got["sent_at"])
	vals, ok := got["values"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 41.3, vals["rsi5"], 1e-9)
}

func TestWebhook_SendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, zerolog.Nop())
	err := wh.Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
