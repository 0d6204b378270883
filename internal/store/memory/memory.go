// Package memory is an in-process Store used by unit tests and by
// LEDGER_BACKEND=memory runs where dedup across restarts is not needed.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"regime-monitor/internal/model"
	"regime-monitor/internal/store"
	"regime-monitor/internal/strategy"
)

type key struct {
	ticker string
	dir    model.Direction
}

// Store keeps everything behind one mutex. Safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	alerts    map[key]time.Time
	states    map[key]strategy.State
	runs      []store.RunRecord
	health    store.HealthRecord
	healthSet bool
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		alerts: make(map[key]time.Time),
		states: make(map[key]strategy.State),
	}
}

func (s *Store) LastAlert(_ context.Context, ticker string, dir model.Direction) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.alerts[key{ticker, dir}]
	return ts, ok, nil
}

func (s *Store) CommitAlert(_ context.Context, ticker string, dir model.Direction, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{ticker, dir}
	if cur, ok := s.alerts[k]; ok && !ts.After(cur) {
		return nil
	}
	s.alerts[k] = ts
	return nil
}

func (s *Store) SignalState(_ context.Context, ticker string, dir model.Direction) (strategy.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[key{ticker, dir}], nil
}

func (s *Store) SaveSignalState(_ context.Context, ticker string, dir model.Direction, st strategy.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key{ticker, dir}] = st
	return nil
}

func (s *Store) StartRun(_ context.Context, tickers []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := store.RunRecord{
		ID:        int64(len(s.runs) + 1),
		StartedAt: time.Now().UTC(),
		Status:    store.RunRunning,
		Tickers:   strings.Join(tickers, ","),
	}
	s.runs = append(s.runs, rec)
	return rec.ID, nil
}

func (s *Store) FinishRun(_ context.Context, id int64, status store.RunStatus, errMsg string, alerts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == id {
			s.runs[i].FinishedAt = time.Now().UTC()
			s.runs[i].Status = status
			s.runs[i].Error = errMsg
			s.runs[i].AlertsSent = alerts
			return nil
		}
	}
	return nil
}

func (s *Store) LastRun(_ context.Context) (store.RunRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return store.RunRecord{}, false, nil
	}
	return s.runs[len(s.runs)-1], true, nil
}

func (s *Store) HealthRecord(_ context.Context) (store.HealthRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health, s.healthSet, nil
}

func (s *Store) SaveHealthRecord(_ context.Context, rec store.HealthRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = rec
	s.healthSet = true
	return nil
}

func (s *Store) Close() error { return nil }

// Runs returns a copy of all run rows, oldest first. Test helper.
func (s *Store) Runs() []store.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.RunRecord, len(s.runs))
	copy(out, s.runs)
	return out
}
