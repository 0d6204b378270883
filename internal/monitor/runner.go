// Package monitor runs one end-to-end evaluation pass: fetch candles,
// classify the regime, confirm execution signals, gate them against the
// dedup ledger, and deliver alerts.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"regime-monitor/internal/apperr"
	"regime-monitor/internal/gateway"
	"regime-monitor/internal/indicator"
	"regime-monitor/internal/marketdata"
	"regime-monitor/internal/metrics"
	"regime-monitor/internal/model"
	"regime-monitor/internal/notify"
	"regime-monitor/internal/regime"
	"regime-monitor/internal/store"
	"regime-monitor/internal/strategy"
)

// Config tunes one Runner.
type Config struct {
	Tickers        []string
	RegimeInterval model.Interval
	ExecInterval   model.Interval
	LookbackRegime int // days of slow-TF history
	LookbackExec   int // days of fast-TF history
	Indicators     indicator.Config
	Strategy       strategy.Params
	StaleMaxAge    time.Duration
}

// Deps are the runner's collaborators. Metrics, Health, and Hub may be
// nil (one-shot commands run without an HTTP surface).
type Deps struct {
	Provider marketdata.Provider
	Ledger   store.Ledger
	Runs     store.RunHistory
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus
	Hub      *gateway.Hub
	Log      zerolog.Logger
}

// Summary is the outcome of one run, also broadcast as a run_summary
// event.
type Summary struct {
	RunID        int64             `json:"run_id"`
	Status       store.RunStatus   `json:"status"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	DurationMS   int64             `json:"duration_ms"`
	Tickers      []string          `json:"tickers"`
	Regimes      map[string]string `json:"regimes"`
	AlertsSent   int               `json:"alerts_sent"`
	StaleTickers []string          `json:"stale_tickers,omitempty"`
	Errors       []string          `json:"errors,omitempty"`
}

// Runner wires the pipeline together.
type Runner struct {
	cfg  Config
	deps Deps
	eval *strategy.Evaluator
	log  zerolog.Logger

	now func() time.Time
}

// New builds a Runner.
func New(cfg Config, deps Deps) *Runner {
	if cfg.Strategy.ConfirmBars < 1 {
		cfg.Strategy.ConfirmBars = 1
	}
	return &Runner{
		cfg:  cfg,
		deps: deps,
		eval: strategy.NewEvaluator(cfg.Strategy),
		log:  deps.Log.With().Str("component", "monitor").Logger(),
		now:  time.Now,
	}
}

// RunOnce performs one evaluation pass over all tickers. Per-ticker
// failures are aggregated into an ERROR run; a ledger write failure
// aborts the pass immediately. The returned error is non-nil only for
// aborts and run-history failures — a completed ERROR run returns
// (Summary, nil) and callers inspect Summary.Status.
func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	start := r.now()

	runID, err := r.deps.Runs.StartRun(ctx, r.cfg.Tickers)
	if err != nil {
		return Summary{}, apperr.Wrap(apperr.KindLedgerWrite, "", err)
	}

	sum := Summary{
		RunID:     runID,
		StartedAt: start,
		Tickers:   r.cfg.Tickers,
		Regimes:   make(map[string]string, len(r.cfg.Tickers)),
	}
	r.log.Info().Int64("run_id", runID).Strs("tickers", r.cfg.Tickers).Msg("run started")

	var fatal error
	for _, ticker := range r.cfg.Tickers {
		if err := ctx.Err(); err != nil {
			fatal = apperr.Wrap(apperr.KindInternal, "", err)
			break
		}
		if err := r.processTicker(ctx, ticker, &sum); err != nil {
			if apperr.Fatal(err) {
				fatal = err
				break
			}
			sum.Errors = append(sum.Errors, err.Error())
			r.observeTickerError(err)
			r.log.Error().Err(err).Str("ticker", ticker).Msg("ticker failed")
		}
	}

	status := store.RunOK
	errMsg := ""
	if fatal != nil {
		sum.Errors = append(sum.Errors, fatal.Error())
	}
	if len(sum.Errors) > 0 {
		status = store.RunError
		errMsg = strings.Join(sum.Errors, "; ")
	}

	finish := r.now()
	sum.Status = status
	sum.FinishedAt = finish
	sum.DurationMS = finish.Sub(start).Milliseconds()

	finErr := r.deps.Runs.FinishRun(ctx, runID, status, errMsg, sum.AlertsSent)
	if finErr != nil {
		finErr = apperr.Wrap(apperr.KindLedgerWrite, "", finErr)
	}

	if m := r.deps.Metrics; m != nil {
		m.RunsTotal.WithLabelValues(string(status)).Inc()
		m.RunDuration.Observe(finish.Sub(start).Seconds())
		m.LastRunTS.Set(float64(finish.Unix()))
	}
	if h := r.deps.Health; h != nil {
		h.SetLastRun(runID, string(status), finish, sum.AlertsSent)
	}
	if hub := r.deps.Hub; hub != nil {
		hub.Broadcast(gateway.EventRunSummary, sum)
	}

	if status == store.RunError {
		// Best-effort status message; the run record is authoritative.
		if err := r.deps.Notifier.Send(ctx, notify.Alert{
			Level:   notify.LevelError,
			Title:   "[Monitor] Run ERROR",
			Message: errMsg,
		}); err != nil {
			r.log.Warn().Err(err).Msg("status notification failed")
		}
	}

	r.log.Info().Int64("run_id", runID).Str("status", string(status)).
		Int("alerts", sum.AlertsSent).Dur("took", finish.Sub(start)).Msg("run finished")

	if fatal != nil {
		return sum, fatal
	}
	return sum, finErr
}

func (r *Runner) processTicker(ctx context.Context, ticker string, sum *Summary) error {
	log := r.log.With().Str("ticker", ticker).Logger()
	now := r.now()

	// Slow timeframe: regime. A short or empty batch degrades to
	// NEUTRAL; a stale one skips the ticker for this tick.
	slowBatch, err := r.deps.Provider.Candles(ctx, ticker, r.cfg.RegimeInterval, r.cfg.LookbackRegime)
	if err != nil {
		return fetchErr(ticker, err)
	}
	slowClosed := model.Closed(slowBatch)
	if stale := r.checkFreshness(ticker, r.cfg.RegimeInterval, slowClosed, now); stale {
		sum.StaleTickers = append(sum.StaleTickers, ticker)
		log.Warn().Str("interval", r.cfg.RegimeInterval.String()).Msg("stale candles, skipping ticker")
		return nil
	}

	slowSnaps := indicator.Compute(slowClosed, r.cfg.Indicators)
	reg := regime.Latest(slowSnaps)
	sum.Regimes[ticker] = reg.String()
	if m := r.deps.Metrics; m != nil {
		m.SetRegime(ticker, reg)
	}
	log.Debug().Str("regime", reg.String()).Int("slow_candles", len(slowClosed)).Msg("regime classified")

	// Fast timeframe: persistence-confirmed execution signals.
	fastBatch, err := r.deps.Provider.Candles(ctx, ticker, r.cfg.ExecInterval, r.cfg.LookbackExec)
	if err != nil {
		return fetchErr(ticker, err)
	}
	fastClosed := model.Closed(fastBatch)
	if len(fastClosed) == 0 {
		log.Warn().Msg("no closed fast-TF candles, nothing to evaluate")
		return nil
	}
	if stale := r.checkFreshness(ticker, r.cfg.ExecInterval, fastClosed, now); stale {
		sum.StaleTickers = append(sum.StaleTickers, ticker)
		log.Warn().Str("interval", r.cfg.ExecInterval.String()).Msg("stale candles, skipping ticker")
		return nil
	}

	fastSnaps := indicator.Compute(fastClosed, r.cfg.Indicators)

	bullSt, err := r.deps.Ledger.SignalState(ctx, ticker, model.Buy)
	if err != nil {
		return apperr.Wrap(apperr.KindLedgerWrite, ticker, err)
	}
	bearSt, err := r.deps.Ledger.SignalState(ctx, ticker, model.Sell)
	if err != nil {
		return apperr.Wrap(apperr.KindLedgerWrite, ticker, err)
	}

	bull := r.eval.Run(fastSnaps, model.Buy, bullSt)
	bear := r.eval.Run(fastSnaps, model.Sell, bearSt)

	// States persist even without a confirmation: the counters must
	// survive across invocations for multi-bar persistence to work.
	if err := r.deps.Ledger.SaveSignalState(ctx, ticker, model.Buy, bull.State); err != nil {
		return apperr.Wrap(apperr.KindLedgerWrite, ticker, err)
	}
	if err := r.deps.Ledger.SaveSignalState(ctx, ticker, model.Sell, bear.State); err != nil {
		return apperr.Wrap(apperr.KindLedgerWrite, ticker, err)
	}

	lastBuy, _, err := r.deps.Ledger.LastAlert(ctx, ticker, model.Buy)
	if err != nil {
		return apperr.Wrap(apperr.KindLedgerWrite, ticker, err)
	}
	lastSell, _, err := r.deps.Ledger.LastAlert(ctx, ticker, model.Sell)
	if err != nil {
		return apperr.Wrap(apperr.KindLedgerWrite, ticker, err)
	}

	sig, ok := strategy.Decide(reg, bull, bear, lastBuy, lastSell)
	if !ok {
		log.Debug().Msg("no signal")
		return nil
	}

	alert := r.buildAlert(ticker, sig, fastSnaps[len(fastSnaps)-1])
	deliverErr := r.deps.Notifier.Send(ctx, alert)

	// Commit the ledger whether or not delivery worked: a lost alert is
	// acceptable, a duplicate alert is not.
	if err := r.deps.Ledger.CommitAlert(ctx, ticker, sig.Direction, sig.TS); err != nil {
		return apperr.Wrap(apperr.KindLedgerWrite, ticker, err)
	}

	if deliverErr != nil {
		return apperr.Wrap(apperr.KindDelivery, ticker, deliverErr)
	}

	sum.AlertsSent++
	if m := r.deps.Metrics; m != nil {
		m.AlertsTotal.WithLabelValues(string(sig.Direction)).Inc()
	}
	if hub := r.deps.Hub; hub != nil {
		hub.Broadcast(gateway.EventAlert, alert)
	}
	log.Info().Str("direction", string(sig.Direction)).Time("candle", sig.TS).Msg("alert sent")
	return nil
}

// checkFreshness records the staleness gauge and reports whether the
// newest closed candle breaches the freshness bound. An empty batch is
// not stale — short history degrades elsewhere.
func (r *Runner) checkFreshness(ticker string, iv model.Interval, closed []model.Candle, now time.Time) bool {
	age, ok := marketdata.Age(closed, now)
	if !ok {
		return false
	}
	if m := r.deps.Metrics; m != nil {
		m.CandleStaleness.WithLabelValues(ticker, iv.String()).Set(age.Seconds())
	}
	return r.cfg.StaleMaxAge > 0 && age > r.cfg.StaleMaxAge
}

func (r *Runner) buildAlert(ticker string, sig strategy.Signal, snap indicator.Snapshot) notify.Alert {
	side := "Up"
	if sig.Direction == model.Sell {
		side = "Down"
	}
	cfg := r.cfg.Indicators

	lines := []string{
		fmt.Sprintf("- ts: %s", sig.TS.Format(time.RFC3339)),
		fmt.Sprintf("- C: %.2f", snap.Close),
	}

	gapLine := fmt.Sprintf("- EMA%d-EMA%d: %.4f", cfg.EMAFast, cfg.EMASlow, snap.Gap.V)
	if k := r.cfg.Strategy.GapATRMult; k > 0 && snap.ATR.OK {
		thr := k * snap.ATR.V
		cmp := ">"
		if sig.Direction == model.Sell {
			cmp = "<"
			thr = -thr
		}
		gapLine = fmt.Sprintf("- EMA%d-EMA%d: %.4f %s %.4f (k=%.3f, ATR%d=%.4f)",
			cfg.EMAFast, cfg.EMASlow, snap.Gap.V, cmp, thr, k, cfg.ATR, snap.ATR.V)
	}
	lines = append(lines, gapLine)

	if snap.RSI.OK {
		slope := "flat"
		if snap.RSIDelta.OK && snap.RSIDelta.V > 0 {
			slope = "rising"
		} else if snap.RSIDelta.OK && snap.RSIDelta.V < 0 {
			slope = "falling"
		}
		lines = append(lines, fmt.Sprintf("- RSI%d: %.2f (%s)", cfg.RSI, snap.RSI.V, slope))
	}

	values := map[string]float64{"close": snap.Close}
	for name, f := range map[string]indicator.Field{
		"ema_fast":    snap.EMAFast,
		"ema_slow":    snap.EMASlow,
		"ema_trend":   snap.EMATrend,
		"trend_slope": snap.TrendSlope,
		"gap":         snap.Gap,
		"rsi":         snap.RSI,
		"rsi_delta":   snap.RSIDelta,
		"atr":         snap.ATR,
	} {
		if f.OK {
			values[name] = f.V
		}
	}

	return notify.Alert{
		Level:     notify.LevelInfo,
		Title:     fmt.Sprintf("[%s] ShortMomentum%s confirmed (%dx%s)", ticker, side, r.cfg.Strategy.ConfirmBars, r.cfg.ExecInterval),
		Message:   strings.Join(lines, "\n"),
		Ticker:    ticker,
		Direction: string(sig.Direction),
		Regime:    sig.Regime.String(),
		CandleTS:  sig.TS,
		Values:    values,
	}
}

func (r *Runner) observeTickerError(err error) {
	if m := r.deps.Metrics; m != nil {
		m.TickerErrors.WithLabelValues(string(apperr.KindOf(err))).Inc()
	}
}

// fetchErr preserves provider error kinds and tags everything else as a
// fetch failure.
func fetchErr(ticker string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Wrap(apperr.KindFetch, ticker, err)
}
