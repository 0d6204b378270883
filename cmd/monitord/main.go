// Command monitord runs the monitor continuously: one evaluation pass
// per MONITOR_INTERVAL tick with market-hours gating, plus an HTTP
// surface for Prometheus metrics, health checks, and the WebSocket
// status feed.
package main

import (
	"context"
	"database/sql"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"regime-monitor/config"
	"regime-monitor/internal/gateway"
	"regime-monitor/internal/logging"
	"regime-monitor/internal/marketdata/yahoo"
	"regime-monitor/internal/markethours"
	"regime-monitor/internal/metrics"
	"regime-monitor/internal/monitor"
	"regime-monitor/internal/notify"
	"regime-monitor/internal/store"
	"regime-monitor/internal/store/memory"
	redisstore "regime-monitor/internal/store/redis"
	sqlitestore "regime-monitor/internal/store/sqlite"
)

// marketStatus is the health event broadcast on gated ticks.
type marketStatus struct {
	MarketOpen bool      `json:"market_open"`
	NextOpen   time.Time `json:"next_open"`
	Detail     string    `json:"detail"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("monitord: %v", err)
	}
	logger := logging.Setup(cfg.Logging())
	log := logging.Component(logger, "monitord")
	log.Info().Strs("tickers", cfg.Tickers).Dur("interval", cfg.MonitorInterval).Msg("starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Stores ----
	sts, cleanup, err := openStores(cfg, logger)
	if err != nil {
		log.Error().Err(err).Msg("store init failed")
		os.Exit(1)
	}
	defer cleanup()

	// ---- HTTP surface: /metrics, /healthz, /ws ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	hub := gateway.NewHub(64, logging.Component(logger, "gateway"))
	srv := metrics.NewServer(cfg.HTTPAddr, prom, health, logger)
	srv.Handle("/ws", hub)
	srv.Start()

	health.StartLivenessChecker(ctx, sts.db, sts.rdb, 10*time.Second)

	// ---- Pipeline ----
	provider := yahoo.New(logging.Component(logger, "yahoo"))
	provider.BaseURL = cfg.YahooBaseURL

	runner := monitor.New(monitor.Config{
		Tickers:        cfg.Tickers,
		RegimeInterval: cfg.RegimeInterval,
		ExecInterval:   cfg.ExecInterval,
		LookbackRegime: cfg.LookbackRegime,
		LookbackExec:   cfg.LookbackExec,
		Indicators:     cfg.Indicators(),
		Strategy:       cfg.Strategy(),
		StaleMaxAge:    cfg.StaleMaxAge,
	}, monitor.Deps{
		Provider: provider,
		Ledger:   sts.ledger,
		Runs:     sts.st,
		Notifier: notify.Stack(cfg.NotifyStack(), logger),
		Metrics:  prom,
		Health:   health,
		Hub:      hub,
		Log:      logger,
	})

	tick := func() {
		now := time.Now()
		open := markethours.IsMarketOpen(now)
		health.SetMarketOpen(open)

		if cfg.MarketHoursOnly && !open {
			log.Info().Str("market", markethours.StatusString(now)).Msg("market closed, skipping tick")
			hub.Broadcast(gateway.EventHealth, marketStatus{
				MarketOpen: false,
				NextOpen:   markethours.NextOpen(now),
				Detail:     markethours.StatusString(now),
			})
		} else if _, err := runner.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("run aborted")
		}

		health.SetNextRun(time.Now().Add(cfg.MonitorInterval))
	}

	ticker := time.NewTicker(cfg.MonitorInterval)
	defer ticker.Stop()

	// First pass immediately; the market gate above still applies.
	tick()

	for {
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			cancel()
			shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
			srv.Stop(shCtx)
			shCancel()
			return
		case <-ticker.C:
			tick()
		}
	}
}

type stores struct {
	st     store.Store
	ledger store.Ledger
	db     *sql.DB         // nil for the memory backend
	rdb    *goredis.Client // nil unless the redis ledger is active
}

func openStores(cfg *config.Config, logger zerolog.Logger) (*stores, func(), error) {
	if cfg.LedgerBackend == config.BackendMemory {
		st := memory.New()
		return &stores{st: st, ledger: st}, func() {}, nil
	}

	st, err := sqlitestore.Open(cfg.AlertDB, logging.Component(logger, "sqlite"))
	if err != nil {
		return nil, nil, err
	}
	if cfg.LedgerBackend == config.BackendRedis {
		led, err := redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logging.Component(logger, "redis"))
		if err != nil {
			st.Close()
			return nil, nil, err
		}
		return &stores{st: st, ledger: led, db: st.DB(), rdb: led.Client()},
			func() { led.Close(); st.Close() }, nil
	}
	return &stores{st: st, ledger: st, db: st.DB()}, func() { st.Close() }, nil
}
