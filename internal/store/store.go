// Package store defines the persistence contracts for the dedup ledger,
// run history, and health-report state. Backends: sqlite (default),
// redis (ledger only), memory (tests).
package store

import (
	"context"
	"time"

	"regime-monitor/internal/model"
	"regime-monitor/internal/strategy"
)

// RunStatus is the lifecycle state of one monitor invocation.
type RunStatus string

const (
	RunRunning RunStatus = "RUNNING"
	RunOK      RunStatus = "OK"
	RunError   RunStatus = "ERROR"
)

// RunRecord is one row of run history. FinishedAt is zero while the
// run is still RUNNING.
type RunRecord struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Status     RunStatus
	Error      string
	Tickers    string
	AlertsSent int
}

// HealthRecord backs health-report dedup: the last report signature,
// when it was sent, and the calendar date (in the report timezone) of
// the last OK heartbeat.
type HealthRecord struct {
	LastSignature string
	LastSentAt    time.Time
	LastOKDate    string // "2006-01-02"
}

// Ledger is the per-(ticker, direction) dedup state that survives
// across invocations: the last alerted candle timestamp and the
// persistence counter.
type Ledger interface {
	// LastAlert returns the last alerted candle timestamp for the key.
	// ok is false when no record exists.
	LastAlert(ctx context.Context, ticker string, dir model.Direction) (time.Time, bool, error)

	// CommitAlert records ts as the last alerted candle for the key.
	// The write is monotonic: a ts at or before the stored value leaves
	// the record unchanged, so concurrent invokers cannot move it
	// backwards.
	CommitAlert(ctx context.Context, ticker string, dir model.Direction, ts time.Time) error

	// SignalState returns the stored persistence state for the key.
	// A missing record is the zero state, not an error.
	SignalState(ctx context.Context, ticker string, dir model.Direction) (strategy.State, error)

	// SaveSignalState stores the advanced persistence state for the key.
	SaveSignalState(ctx context.Context, ticker string, dir model.Direction, st strategy.State) error
}

// RunHistory records invocation outcomes.
type RunHistory interface {
	// StartRun inserts a RUNNING row and returns its id.
	StartRun(ctx context.Context, tickers []string) (int64, error)

	// FinishRun closes the row with a final status, error text, and
	// alert count.
	FinishRun(ctx context.Context, id int64, status RunStatus, errMsg string, alerts int) error

	// LastRun returns the most recent run row. ok is false when no
	// runs are recorded.
	LastRun(ctx context.Context) (RunRecord, bool, error)
}

// HealthStore persists the singleton health-report dedup record.
type HealthStore interface {
	HealthRecord(ctx context.Context) (HealthRecord, bool, error)
	SaveHealthRecord(ctx context.Context, rec HealthRecord) error
}

// Store is the full persistence surface a backend can provide.
type Store interface {
	Ledger
	RunHistory
	HealthStore
	Close() error
}
