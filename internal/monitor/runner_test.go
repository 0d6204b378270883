package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-monitor/internal/apperr"
	"regime-monitor/internal/indicator"
	"regime-monitor/internal/model"
	"regime-monitor/internal/notify"
	"regime-monitor/internal/store"
	"regime-monitor/internal/store/memory"
	"regime-monitor/internal/strategy"
)

var testNow = time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)

type fakeProvider struct {
	batches map[string]map[model.Interval][]model.Candle
	errs    map[string]error
	calls   int
}

func (p *fakeProvider) Candles(_ context.Context, ticker string, iv model.Interval, _ int) ([]model.Candle, error) {
	p.calls++
	if err := p.errs[ticker]; err != nil {
		return nil, err
	}
	return p.batches[ticker][iv], nil
}

type recordingSink struct {
	alerts []notify.Alert
	err    error
}

func (r *recordingSink) Send(_ context.Context, a notify.Alert) error {
	if r.err != nil {
		return r.err
	}
	r.alerts = append(r.alerts, a)
	return nil
}

// bars builds doji candles (O=H=L=C) at a fixed step.
func bars(start time.Time, step time.Duration, closes []float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			TS: start.Add(time.Duration(i) * step), Open: c, High: c, Low: c, Close: c, Volume: 1000,
		}
	}
	return out
}

// endingAt anchors a batch so its last candle sits one step before end.
func endingAt(end time.Time, step time.Duration, closes []float64) []model.Candle {
	start := end.Add(-time.Duration(len(closes)) * step)
	return bars(start, step, closes)
}

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func flatThen(flatN int, flatV float64, tail ...float64) []float64 {
	out := make([]float64, 0, flatN+len(tail))
	for i := 0; i < flatN; i++ {
		out = append(out, flatV)
	}
	return append(out, tail...)
}

// batchesFor returns slow/fast batches whose newest closed candles sit
// just inside the freshness bound relative to testNow.
func batchesFor(slowCloses, fastCloses []float64) map[model.Interval][]model.Candle {
	return map[model.Interval][]model.Candle{
		model.Interval1h:  endingAt(testNow, time.Hour, slowCloses),
		model.Interval30m: endingAt(testNow, 30*time.Minute, fastCloses),
	}
}

func testConfig(tickers ...string) Config {
	return Config{
		Tickers:        tickers,
		RegimeInterval: model.Interval1h,
		ExecInterval:   model.Interval30m,
		LookbackRegime: 30,
		LookbackExec:   20,
		Indicators:     indicator.DefaultConfig(),
		Strategy:       strategy.Params{ConfirmBars: 2, GapATRMult: 0.15},
		StaleMaxAge:    90 * time.Minute,
	}
}

func newTestRunner(cfg Config, p *fakeProvider, led store.Ledger, st *memory.Store, sink notify.Notifier) *Runner {
	r := New(cfg, Deps{
		Provider: p,
		Ledger:   led,
		Runs:     st,
		Notifier: sink,
		Log:      zerolog.Nop(),
	})
	r.now = func() time.Time { return testNow }
	return r
}

func TestRunner_EmitsBuySignal(t *testing.T) {
	// Rising slow closes give an UP regime; flat fast closes with two
	// rising bars at the tail confirm the bullish condition (C=2).
	p := &fakeProvider{batches: map[string]map[model.Interval][]model.Candle{
		"QQQ": batchesFor(ramp(30, 100, 1), flatThen(20, 100, 101, 102)),
	}}
	st := memory.New()
	sink := &recordingSink{}
	r := newTestRunner(testConfig("QQQ"), p, st, st, sink)
	ctx := context.Background()

	sum, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.RunOK, sum.Status)
	assert.Equal(t, 1, sum.AlertsSent)
	assert.Equal(t, "UP", sum.Regimes["QQQ"])

	require.Len(t, sink.alerts, 1)
	a := sink.alerts[0]
	assert.Equal(t, "[QQQ] ShortMomentumUp confirmed (2x30m)", a.Title)
	assert.Equal(t, "BUY", a.Direction)
	assert.Equal(t, "UP", a.Regime)
	assert.Contains(t, a.Message, "- C: 102.00")
	assert.Contains(t, a.Message, "- EMA3-EMA9:")

	confirmTS := testNow.Add(-30 * time.Minute)
	assert.True(t, a.CandleTS.Equal(confirmTS))

	last, ok, err := st.LastAlert(ctx, "QQQ", model.Buy)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(confirmTS))

	runs := st.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunOK, runs[0].Status)
	assert.Equal(t, 1, runs[0].AlertsSent)
}

func TestRunner_SecondRunDoesNotRepeatAlert(t *testing.T) {
	p := &fakeProvider{batches: map[string]map[model.Interval][]model.Candle{
		"QQQ": batchesFor(ramp(30, 100, 1), flatThen(20, 100, 101, 102)),
	}}
	st := memory.New()
	sink := &recordingSink{}
	r := newTestRunner(testConfig("QQQ"), p, st, st, sink)
	ctx := context.Background()

	_, err := r.RunOnce(ctx)
	require.NoError(t, err)

	// Identical batch on the next tick: the condition still holds, but
	// the confirming candle is not newer than the ledger entry.
	sum, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.RunOK, sum.Status)
	assert.Equal(t, 0, sum.AlertsSent)
	assert.Len(t, sink.alerts, 1)
}

func TestRunner_NeutralRegimeGatesBuy(t *testing.T) {
	// Constant slow closes leave the regime NEUTRAL: the bullish
	// confirmation on the fast TF must not emit.
	p := &fakeProvider{batches: map[string]map[model.Interval][]model.Candle{
		"QQQ": batchesFor(ramp(30, 100, 0), flatThen(20, 100, 101, 102)),
	}}
	st := memory.New()
	sink := &recordingSink{}
	r := newTestRunner(testConfig("QQQ"), p, st, st, sink)

	sum, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.RunOK, sum.Status)
	assert.Equal(t, "NEUTRAL", sum.Regimes["QQQ"])
	assert.Empty(t, sink.alerts)
}

func TestRunner_EmitsSellInDownRegime(t *testing.T) {
	p := &fakeProvider{batches: map[string]map[model.Interval][]model.Candle{
		"SPY": batchesFor(ramp(30, 200, -1), flatThen(20, 100, 99, 98)),
	}}
	st := memory.New()
	sink := &recordingSink{}
	r := newTestRunner(testConfig("SPY"), p, st, st, sink)

	sum, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "DOWN", sum.Regimes["SPY"])
	require.Len(t, sink.alerts, 1)
	assert.Equal(t, "SELL", sink.alerts[0].Direction)
	assert.Equal(t, "[SPY] ShortMomentumDown confirmed (2x30m)", sink.alerts[0].Title)
}

func TestRunner_StaleCandlesSkipTicker(t *testing.T) {
	// Shift the whole timeline three hours into the past: newest closed
	// candles breach the 90m bound, so the ticker is skipped without
	// failing the run.
	old := testNow.Add(-3 * time.Hour)
	p := &fakeProvider{batches: map[string]map[model.Interval][]model.Candle{
		"QQQ": {
			model.Interval1h:  endingAt(old, time.Hour, ramp(30, 100, 1)),
			model.Interval30m: endingAt(old, 30*time.Minute, flatThen(20, 100, 101, 102)),
		},
	}}
	st := memory.New()
	sink := &recordingSink{}
	r := newTestRunner(testConfig("QQQ"), p, st, st, sink)

	sum, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.RunOK, sum.Status)
	assert.Equal(t, []string{"QQQ"}, sum.StaleTickers)
	assert.Empty(t, sum.Errors)
	assert.Empty(t, sink.alerts)
}

func TestRunner_DeliveryFailureStillCommitsLedger(t *testing.T) {
	p := &fakeProvider{batches: map[string]map[model.Interval][]model.Candle{
		"QQQ": batchesFor(ramp(30, 100, 1), flatThen(20, 100, 101, 102)),
	}}
	st := memory.New()
	sink := &recordingSink{err: errors.New("telegram down")}
	r := newTestRunner(testConfig("QQQ"), p, st, st, sink)
	ctx := context.Background()

	sum, err := r.RunOnce(ctx)
	require.NoError(t, err, "delivery failure is a ticker error, not an abort")
	assert.Equal(t, store.RunError, sum.Status)
	assert.Equal(t, 0, sum.AlertsSent)
	require.Len(t, sum.Errors, 1)
	assert.Contains(t, sum.Errors[0], "DELIVERY_FAILURE")

	// The ledger committed anyway: losing an alert is accepted,
	// duplicating one is not.
	confirmTS := testNow.Add(-30 * time.Minute)
	last, ok, err := st.LastAlert(ctx, "QQQ", model.Buy)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(confirmTS))

	// A healed sink on the next tick must NOT re-send the same candle.
	sink.err = nil
	sum, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.RunOK, sum.Status)
	assert.Equal(t, 0, sum.AlertsSent)
	assert.Empty(t, sink.alerts)
}

type failingLedger struct {
	*memory.Store
	commitErr error
}

func (f *failingLedger) CommitAlert(ctx context.Context, ticker string, dir model.Direction, ts time.Time) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	return f.Store.CommitAlert(ctx, ticker, dir, ts)
}

func TestRunner_LedgerWriteFailureAbortsRun(t *testing.T) {
	p := &fakeProvider{batches: map[string]map[model.Interval][]model.Candle{
		"QQQ": batchesFor(ramp(30, 100, 1), flatThen(20, 100, 101, 102)),
		"SPY": batchesFor(ramp(30, 100, 1), flatThen(20, 100, 101, 102)),
	}}
	st := memory.New()
	led := &failingLedger{Store: st, commitErr: errors.New("disk full")}
	sink := &recordingSink{}
	r := newTestRunner(testConfig("QQQ", "SPY"), p, led, st, sink)

	sum, err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindLedgerWrite))
	assert.Equal(t, store.RunError, sum.Status)

	// The abort happened on the first ticker; the second never ran.
	assert.Contains(t, sum.Regimes, "QQQ")
	assert.NotContains(t, sum.Regimes, "SPY")

	// The failure still landed in the run record.
	runs := st.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunError, runs[0].Status)
	assert.Contains(t, runs[0].Error, "LEDGER_WRITE_FAILURE")
}

func TestRunner_FetchFailureIsolatesTicker(t *testing.T) {
	p := &fakeProvider{
		batches: map[string]map[model.Interval][]model.Candle{
			"SPY": batchesFor(ramp(30, 100, 1), flatThen(20, 100, 101, 102)),
		},
		errs: map[string]error{"QQQ": errors.New("status 429")},
	}
	st := memory.New()
	sink := &recordingSink{}
	r := newTestRunner(testConfig("QQQ", "SPY"), p, st, st, sink)

	sum, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.RunError, sum.Status)
	require.Len(t, sum.Errors, 1)
	assert.Contains(t, sum.Errors[0], "FETCH_FAILURE")

	// SPY was still evaluated and emitted.
	assert.Equal(t, "UP", sum.Regimes["SPY"])
	assert.Equal(t, 1, sum.AlertsSent)
	assert.Equal(t, 3, p.calls, "QQQ stops at the slow fetch; SPY makes both")
}

func TestRunner_PersistenceAccumulatesAcrossRuns(t *testing.T) {
	// C=3: each run appends one rising candle, so the counter reaches
	// the threshold only on the third invocation.
	cfg := testConfig("QQQ")
	cfg.Strategy.ConfirmBars = 3
	cfg.StaleMaxAge = 0 // timeline moves run to run; freshness is not under test

	slow := endingAt(testNow, time.Hour, ramp(30, 100, 1))
	// Fixed start so existing candles keep their timestamps run to run
	// and each appended bar lands past the stored watermark.
	fastStart := testNow.Add(-24 * time.Hour)
	st := memory.New()
	sink := &recordingSink{}

	for i, tail := range [][]float64{{101}, {101, 102}, {101, 102, 103}} {
		p := &fakeProvider{batches: map[string]map[model.Interval][]model.Candle{
			"QQQ": {
				model.Interval1h:  slow,
				model.Interval30m: bars(fastStart, 30*time.Minute, flatThen(20, 100, tail...)),
			},
		}}
		r := newTestRunner(cfg, p, st, st, sink)

		sum, err := r.RunOnce(context.Background())
		require.NoError(t, err)
		if i < 2 {
			assert.Equal(t, 0, sum.AlertsSent, "run %d must not confirm yet", i+1)
		} else {
			assert.Equal(t, 1, sum.AlertsSent, "third consecutive bar confirms")
		}
	}
	require.Len(t, sink.alerts, 1)
}

func TestRunner_ErrorRunSendsStatusNotification(t *testing.T) {
	p := &fakeProvider{
		batches: map[string]map[model.Interval][]model.Candle{},
		errs:    map[string]error{"QQQ": errors.New("boom")},
	}
	st := memory.New()
	sink := &recordingSink{}
	r := newTestRunner(testConfig("QQQ"), p, st, st, sink)

	sum, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.RunError, sum.Status)

	require.Len(t, sink.alerts, 1)
	assert.Equal(t, notify.LevelError, sink.alerts[0].Level)
	assert.Equal(t, "[Monitor] Run ERROR", sink.alerts[0].Title)
	assert.Contains(t, sink.alerts[0].Message, "FETCH_FAILURE")
}
