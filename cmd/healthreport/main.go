// Command healthreport summarizes the most recent run and delivers the
// summary unless an identical report was already sent. Designed to run
// from cron; exits non-zero when the report cannot be built or sent.
package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"regime-monitor/config"
	"regime-monitor/internal/health"
	"regime-monitor/internal/logging"
	"regime-monitor/internal/notify"
	"regime-monitor/internal/store"
	"regime-monitor/internal/store/memory"
	sqlitestore "regime-monitor/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("healthreport: %v", err)
	}
	logger := logging.Setup(cfg.Logging())

	if !run(cfg, logger) {
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger zerolog.Logger) bool {
	log := logging.Component(logger, "healthreport")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run history and report state live in SQLite for both the sqlite
	// and redis ledger backends.
	var st store.Store
	if cfg.LedgerBackend == config.BackendMemory {
		st = memory.New()
	} else {
		s, err := sqlitestore.Open(cfg.AlertDB, logging.Component(logger, "sqlite"))
		if err != nil {
			log.Error().Err(err).Msg("store init failed")
			return false
		}
		st = s
	}
	defer st.Close()

	rep := health.NewReporter(st, st, notify.Stack(cfg.NotifyStack(), logger), health.Config{
		StaleAfter: cfg.HealthStaleAfter,
		ReportLoc:  cfg.ReportLoc,
	}, logger)

	sent, report, err := rep.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("health report failed")
		return false
	}
	log.Info().
		Bool("sent", sent).
		Bool("stale", report.Stale).
		Str("signature", report.Signature).
		Msg("health report done")
	return true
}
