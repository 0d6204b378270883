// Package health builds and delivers liveness reports from the run
// history, with signature dedup so a quiet, healthy system produces at
// most one heartbeat per day.
package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"regime-monitor/internal/apperr"
	"regime-monitor/internal/notify"
	"regime-monitor/internal/store"
)

// Config tunes staleness detection and heartbeat bucketing.
type Config struct {
	// StaleAfter is the maximum age of the last run before the monitor
	// is reported STALE.
	StaleAfter time.Duration
	// ReportLoc is the timezone whose calendar days bucket the daily OK
	// heartbeat.
	ReportLoc *time.Location
}

// Report is one evaluated health status, ready to send.
type Report struct {
	Stale     bool
	Level     notify.Level
	Signature string
	Title     string
	Message   string
}

// Reporter evaluates the last run into a Report and delivers it with
// signature-based dedup.
type Reporter struct {
	runs  store.RunHistory
	state store.HealthStore
	sink  notify.Notifier
	cfg   Config
	log   zerolog.Logger

	now func() time.Time
}

// NewReporter wires a reporter over the given stores and sink.
func NewReporter(runs store.RunHistory, state store.HealthStore, sink notify.Notifier, cfg Config, log zerolog.Logger) *Reporter {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 70 * time.Minute
	}
	if cfg.ReportLoc == nil {
		cfg.ReportLoc = time.UTC
	}
	return &Reporter{
		runs:  runs,
		state: state,
		sink:  sink,
		cfg:   cfg,
		log:   log.With().Str("component", "health").Logger(),
		now:   time.Now,
	}
}

// Build evaluates the most recent run into a Report without sending.
func (r *Reporter) Build(ctx context.Context) (Report, error) {
	last, ok, err := r.runs.LastRun(ctx)
	if err != nil {
		return Report{}, apperr.Wrap(apperr.KindLedgerWrite, "", err)
	}
	if !ok {
		return Report{
			Stale:     true,
			Level:     notify.LevelWarn,
			Signature: "STALE|none",
			Title:     "[Health] STALE",
			Message:   "- no runs recorded yet",
		}, nil
	}

	anchor := last.FinishedAt
	if anchor.IsZero() {
		anchor = last.StartedAt
	}
	age := r.now().Sub(anchor)
	ageMin := int(age.Minutes())

	flag := "OK"
	if age > r.cfg.StaleAfter {
		flag = "STALE"
	}

	level := notify.LevelInfo
	if flag == "STALE" {
		level = notify.LevelWarn
	}
	if last.Status == store.RunError {
		level = notify.LevelError
	}

	finished := ""
	if !last.FinishedAt.IsZero() {
		finished = last.FinishedAt.UTC().Format(time.RFC3339)
	}

	lines := []string{
		fmt.Sprintf("- last_status: %s", last.Status),
		fmt.Sprintf("- tickers: %s", last.Tickers),
		fmt.Sprintf("- started_at(UTC): %s", last.StartedAt.UTC().Format(time.RFC3339)),
		fmt.Sprintf("- finished_at(UTC): %s", finished),
		fmt.Sprintf("- age_minutes: %d", ageMin),
		fmt.Sprintf("- alerts_sent(last_run): %d", last.AlertsSent),
	}
	if last.Status == store.RunError && last.Error != "" {
		lines = append(lines, "- last_error: "+truncate(last.Error, 500))
	}

	return Report{
		Stale:     flag == "STALE",
		Level:     level,
		Signature: fmt.Sprintf("%s|%d|%s|%d", flag, last.ID, last.Status, last.AlertsSent),
		Title:     "[Health] " + flag,
		Message:   strings.Join(lines, "\n"),
	}, nil
}

// Run builds the report and sends it unless the signature is a
// duplicate. A healthy unchanged status is still re-sent once per
// calendar day in the report timezone, so the heartbeat proves the cron
// itself is alive. Returns whether a report went out.
func (r *Reporter) Run(ctx context.Context) (bool, Report, error) {
	rep, err := r.Build(ctx)
	if err != nil {
		return false, Report{}, err
	}

	rec, _, err := r.state.HealthRecord(ctx)
	if err != nil {
		return false, rep, apperr.Wrap(apperr.KindLedgerWrite, "", err)
	}

	today := r.now().In(r.cfg.ReportLoc).Format("2006-01-02")
	healthyOK := rep.Level == notify.LevelInfo && !rep.Stale

	send := rec.LastSignature != rep.Signature
	if !send && healthyOK && rec.LastOKDate != today {
		send = true // daily heartbeat
	}
	if !send {
		r.log.Debug().Str("signature", rep.Signature).Msg("health unchanged, report suppressed")
		return false, rep, nil
	}

	if err := r.sink.Send(ctx, notify.Alert{
		Level:   rep.Level,
		Title:   rep.Title,
		Message: rep.Message,
	}); err != nil {
		// Signature not persisted: the next invocation retries.
		return false, rep, apperr.Wrap(apperr.KindDelivery, "", err)
	}

	rec.LastSignature = rep.Signature
	rec.LastSentAt = r.now()
	if healthyOK {
		rec.LastOKDate = today
	}
	if err := r.state.SaveHealthRecord(ctx, rec); err != nil {
		return true, rep, apperr.Wrap(apperr.KindLedgerWrite, "", err)
	}

	r.log.Info().Str("signature", rep.Signature).Bool("stale", rep.Stale).Msg("health report sent")
	return true, rep, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
