// Command monitor performs one monitoring invocation: fetch candles,
// classify regimes, evaluate signals, deliver alerts. Designed to run
// from cron; exits 0 when the run finished OK and 1 otherwise.
package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"regime-monitor/config"
	"regime-monitor/internal/logging"
	"regime-monitor/internal/marketdata/yahoo"
	"regime-monitor/internal/monitor"
	"regime-monitor/internal/notify"
	"regime-monitor/internal/store"
	"regime-monitor/internal/store/memory"
	redisstore "regime-monitor/internal/store/redis"
	sqlitestore "regime-monitor/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("monitor: %v", err)
	}
	logger := logging.Setup(cfg.Logging())

	if !run(cfg, logger) {
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger zerolog.Logger) bool {
	log := logging.Component(logger, "monitor")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, ledger, cleanup, err := openStores(cfg, logger)
	if err != nil {
		log.Error().Err(err).Msg("store init failed")
		return false
	}
	defer cleanup()

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
		Ledger:   ledger,
		Runs:     st,
		Notifier: notify.Stack(cfg.NotifyStack(), logger),
		Log:      logger,
	})

	sum, err := runner.RunOnce(ctx)
	if err != nil {
		log.Error().Err(err).Msg("run aborted")
		return false
	}
	log.Info().Str("status", string(sum.Status)).Int("alerts", sum.AlertsSent).Msg("done")
	return sum.Status == store.RunOK
}

// openStores builds the run-history store and the dedup ledger for the
// configured backend. With the redis backend, run history and health
// state stay in SQLite; only the dedup keys move.
func openStores(cfg *config.Config, logger zerolog.Logger) (store.Store, store.Ledger, func(), error) {
	if cfg.LedgerBackend == config.BackendMemory {
		st := memory.New()
		return st, st, func() {}, nil
	}

	st, err := sqlitestore.Open(cfg.AlertDB, logging.Component(logger, "sqlite"))
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.LedgerBackend == config.BackendRedis {
		led, err := redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logging.Component(logger, "redis"))
		if err != nil {
			st.Close()
			return nil, nil, nil, err
		}
		return st, led, func() { led.Close(); st.Close() }, nil
	}
	return st, st, func() { st.Close() }, nil
}
