package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the run must react to it.
type Kind string

const (
	// KindDataGap: too few candles for an indicator window. The affected
	// series stays undefined; the run carries on.
	KindDataGap Kind = "DATA_GAP"
	// KindStaleData: newest closed candle is older than the freshness
	// bound. No new signal this tick; reported via health, not as a
	// run error.
	KindStaleData Kind = "STALE_DATA"
	// KindFetch: the candle source failed or returned an unusable batch.
	KindFetch Kind = "FETCH_FAILURE"
	// KindDelivery: the notification sink rejected the alert after the
	// retry budget. The run finishes ERROR; ledger state stays intact.
	KindDelivery Kind = "DELIVERY_FAILURE"
	// KindLedgerWrite: the dedup store could not be written. Aborts the
	// run: a missed ledger write risks duplicate alerts next tick.
	KindLedgerWrite Kind = "LEDGER_WRITE_FAILURE"
	// KindInternal: unexpected failure inside the computation.
	KindInternal Kind = "INTERNAL"
)

// Error is a categorized failure with optional ticker context.
type Error struct {
	Kind   Kind
	Ticker string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	s := "[" + string(e.Kind) + "]"
	if e.Ticker != "" {
		s += " " + e.Ticker
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a categorized error from a format string.
func New(kind Kind, ticker, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Ticker: ticker, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and ticker to an underlying error.
// Returns nil when err is nil.
func Wrap(kind Kind, ticker string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Ticker: ticker, Err: err}
}

// KindOf returns the kind recorded on err, or KindInternal when err
// carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Fatal reports whether err must abort the whole run rather than just
// the current ticker.
func Fatal(err error) bool {
	return IsKind(err, KindLedgerWrite)
}
