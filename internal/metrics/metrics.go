package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"regime-monitor/internal/model"
)

// Metrics holds all Prometheus metrics for the monitor.
type Metrics struct {
	reg *prometheus.Registry

	RunsTotal       *prometheus.CounterVec // labels: status
	RunDuration     prometheus.Histogram
	AlertsTotal     *prometheus.CounterVec // labels: direction
	TickerErrors    *prometheus.CounterVec // labels: kind
	LastRunTS       prometheus.Gauge
	CandleStaleness *prometheus.GaugeVec // labels: ticker, interval
	Regime          *prometheus.GaugeVec // labels: ticker
}

// NewMetrics registers and returns all monitor metrics on a private
// registry, so repeated construction (tests, one-shot commands) never
// collides.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_runs_total",
			Help: "Completed evaluation runs by final status",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_run_duration_seconds",
			Help:    "Wall-clock duration of one evaluation run",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_alerts_total",
			Help: "Signal alerts emitted by direction",
		}, []string{"direction"}),
		TickerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_ticker_errors_total",
			Help: "Per-ticker failures by error kind",
		}, []string{"kind"}),
		LastRunTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_last_run_timestamp",
			Help: "Unix time the last run finished",
		}),
		CandleStaleness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "monitor_candle_staleness_seconds",
			Help: "Age of the newest closed candle per ticker and interval",
		}, []string{"ticker", "interval"}),
		Regime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "monitor_regime",
			Help: "Current regime per ticker (UP=1, NEUTRAL=0, DOWN=-1)",
		}, []string{"ticker"}),
	}

	m.reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.AlertsTotal,
		m.TickerErrors,
		m.LastRunTS,
		m.CandleStaleness,
		m.Regime,
	)

	return m
}

// Registry exposes the backing registry for the HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// SetRegime records the classified regime for a ticker.
func (m *Metrics) SetRegime(ticker string, r model.Regime) {
	m.Regime.WithLabelValues(ticker).Set(r.Score())
}

// HealthStatus represents the monitor's health, served as JSON.
type HealthStatus struct {
	mu sync.RWMutex

	LastRunID     int64
	LastRunStatus string
	LastRunAt     time.Time
	AlertsSent    int
	NextRunAt     time.Time
	MarketOpen    bool
	StoreOK       bool
	RedisOK       bool
	RedisUsed     bool

	StoreLatencyMs float64
	RedisLatencyMs float64
	LastCheckAt    time.Time
	StartedAt      time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		StoreOK:   true,
	}
}

// SetLastRun records the outcome of the most recent run.
func (h *HealthStatus) SetLastRun(id int64, status string, at time.Time, alerts int) {
	h.mu.Lock()
	h.LastRunID = id
	h.LastRunStatus = status
	h.LastRunAt = at
	h.AlertsSent = alerts
	h.mu.Unlock()
}

func (h *HealthStatus) SetNextRun(t time.Time) {
	h.mu.Lock()
	h.NextRunAt = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetMarketOpen(v bool) {
	h.mu.Lock()
	h.MarketOpen = v
	h.mu.Unlock()
}

// CheckStore pings the SQLite handle and records latency + health.
func (h *HealthStatus) CheckStore(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.StoreOK = err == nil
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisUsed = true
	h.RedisOK = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency probes until ctx ends.
// Either handle may be nil when the backend is not in use.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, db *sql.DB, rdb *goredis.Client, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if db != nil {
					h.CheckStore(probeCtx, db)
				}
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if h.LastRunStatus == "ERROR" {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.StoreOK || (h.RedisUsed && !h.RedisOK) {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	lastRun := ""
	runAge := ""
	if !h.LastRunAt.IsZero() {
		lastRun = h.LastRunAt.Format(time.RFC3339)
		runAge = time.Since(h.LastRunAt).Round(time.Second).String()
	}
	nextRun := ""
	if !h.NextRunAt.IsZero() {
		nextRun = h.NextRunAt.Format(time.RFC3339)
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		LastRunID      int64   `json:"last_run_id"`
		LastRunStatus  string  `json:"last_run_status"`
		LastRunAt      string  `json:"last_run_at"`
		RunAge         string  `json:"run_age"`
		AlertsSent     int     `json:"alerts_sent"`
		NextRunAt      string  `json:"next_run_at"`
		MarketOpen     bool    `json:"market_open"`
		StoreOK        bool    `json:"store_ok"`
		StoreLatencyMs float64 `json:"store_latency_ms"`
		RedisOK        bool    `json:"redis_ok"`
		RedisLatencyMs float64 `json:"redis_latency_ms"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		LastRunID:      h.LastRunID,
		LastRunStatus:  h.LastRunStatus,
		LastRunAt:      lastRun,
		RunAge:         runAge,
		AlertsSent:     h.AlertsSent,
		NextRunAt:      nextRun,
		MarketOpen:     h.MarketOpen,
		StoreOK:        h.StoreOK,
		StoreLatencyMs: h.StoreLatencyMs,
		RedisOK:        h.RedisOK,
		RedisLatencyMs: h.RedisLatencyMs,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz, plus any
// extra routes mounted before Start.
type Server struct {
	mux  *http.ServeMux
	srv  *http.Server
	addr string
	log  zerolog.Logger
}

// NewServer creates the observability server.
func NewServer(addr string, m *Metrics, health *HealthStatus, log zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		mux:  mux,
		addr: addr,
		log:  log,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handle mounts an extra route (e.g. the /ws status stream).
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("observability server listening")
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("observability server error")
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
