package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-monitor/internal/apperr"
	"regime-monitor/internal/model"
)

// Three 1h buckets on 2025-03-03 (09:30/10:30/11:30 America/New_York)
// plus a trailing row with a null close, as Yahoo emits for partial
// buckets.
const chartFixture = `{"chart":{"result":[{
  "meta":{"exchangeTimezoneName":"America/New_York"},
  "timestamp":[1741012200,1741015800,1741019400,1741023000],
  "indicators":{"quote":[{
    "open":[510.1,511.0,512.2,513.0],
    "high":[511.5,512.0,513.1,513.5],
    "low":[509.8,510.5,511.9,512.5],
    "close":[511.2,511.8,512.9,null],
    "volume":[1200000,980000,750000,null]
  }]}
}],"error":null}}`

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(zerolog.Nop())
	c.BaseURL = srv.URL
	return c, srv
}

func TestClient_Candles_ParsesChart(t *testing.T) {
	var gotPath, gotQuery, gotAgent string
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(chartFixture))
	})
	// Freeze "now" at 12:00 New York so the 11:30 bucket is still open.
	c.now = func() time.Time { return time.Unix(1741021200, 0) }

	batch, err := c.Candles(context.Background(), "QQQ", model.Interval1h, 10)
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/QQQ", gotPath)
	assert.Equal(t, "interval=1h&range=10d", gotQuery)
	assert.Contains(t, gotAgent, "Mozilla", "needs a browser-like agent")

	// Null-close row dropped.
	require.Len(t, batch, 3)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	assert.True(t, batch[0].TS.Equal(time.Date(2025, 3, 3, 9, 30, 0, 0, ny)))
	assert.Equal(t, 510.1, batch[0].Open)
	assert.Equal(t, 511.2, batch[0].Close)
	assert.Equal(t, int64(1200000), batch[0].Volume)
	assert.Equal(t, "America/New_York", batch[0].TS.Location().String())

	assert.False(t, batch[0].Forming)
	assert.False(t, batch[1].Forming)
	assert.True(t, batch[2].Forming, "bucket containing now is still forming")
}

func TestClient_Candles_NormalizesOrderAndDuplicates(t *testing.T) {
	// Out-of-order rows with a duplicated bucket; the later upstream
	// row for a bucket wins.
	body := `{"chart":{"result":[{
      "meta":{"exchangeTimezoneName":"UTC"},
      "timestamp":[1741015800,1741012200,1741012200],
      "indicators":{"quote":[{
        "open":[2.0,1.0,1.5],"high":[2.0,1.0,1.5],
        "low":[2.0,1.0,1.5],"close":[2.0,1.0,1.5],
        "volume":[1,1,1]
      }]}
    }],"error":null}}`
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
	c.now = func() time.Time { return time.Unix(1741100000, 0) }

	batch, err := c.Candles(context.Background(), "SPY", model.Interval1h, 5)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.True(t, batch[0].TS.Before(batch[1].TS))
	assert.Equal(t, 1.5, batch[0].Close)
	assert.Equal(t, 2.0, batch[1].Close)
}

func TestClient_Candles_ChartError(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	})

	_, err := c.Candles(context.Background(), "NOPE", model.Interval1h, 10)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindFetch))
	assert.Contains(t, err.Error(), "Not Found")
}

func TestClient_Candles_HTTPError(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Candles(context.Background(), "QQQ", model.Interval30m, 10)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindFetch))
	assert.Contains(t, err.Error(), "status 429")
}

func TestClient_Candles_EmptyResult(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[],"error":null}}`))
	})

	_, err := c.Candles(context.Background(), "QQQ", model.Interval1h, 10)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindFetch))
}
