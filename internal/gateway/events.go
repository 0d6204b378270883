// Package gateway streams monitor status events (run summaries, alerts,
// health) to WebSocket clients, with a bounded replay of recent events
// for late joiners.
package gateway

import (
	"encoding/json"
	"time"
)

// EventType tags a status event on the wire.
type EventType string

const (
	EventRunSummary EventType = "run_summary"
	EventAlert      EventType = "alert"
	EventHealth     EventType = "health"
)

// Event is the JSON envelope sent to clients. Seq increases by one per
// broadcast so clients can detect gaps after a reconnect.
type Event struct {
	Type EventType       `json:"type"`
	TS   time.Time       `json:"ts"`
	Seq  int64           `json:"seq"`
	Data json.RawMessage `json:"data"`
}
