// Package sqlite is the default Store backend: one WAL-mode database
// file holding the alert ledger, signal states, run history, and
// health-report state.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"regime-monitor/internal/model"
	"regime-monitor/internal/store"
	"regime-monitor/internal/strategy"

	_ "github.com/mattn/go-sqlite3"
)

// Store implements store.Store on a single SQLite file.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema. The connection pool is capped at one: SQLite allows a single
// writer and the monitor is sequential anyway.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Debug().Str("path", path).Msg("sqlite store opened")
	return &Store{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			ticker        TEXT    NOT NULL,
			direction     TEXT    NOT NULL,
			last_alert_ts INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL,
			PRIMARY KEY (ticker, direction)
		);

		CREATE TABLE IF NOT EXISTS signal_state (
			ticker          TEXT    NOT NULL,
			direction       TEXT    NOT NULL,
			count           INTEGER NOT NULL,
			last_counted_ts INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL,
			PRIMARY KEY (ticker, direction)
		);

		CREATE TABLE IF NOT EXISTS run_history (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at    INTEGER NOT NULL,
			finished_at   INTEGER,
			status        TEXT    NOT NULL,
			error_message TEXT,
			tickers       TEXT,
			alerts_sent   INTEGER DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS health_state (
			id             INTEGER PRIMARY KEY CHECK (id = 1),
			last_signature TEXT,
			last_sent_at   INTEGER,
			last_ok_date   TEXT
		);
	`)
	return err
}

// DB returns the underlying handle for health probes.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// ── Ledger ──

func (s *Store) LastAlert(ctx context.Context, ticker string, dir model.Direction) (time.Time, bool, error) {
	var unix int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_alert_ts FROM alerts WHERE ticker = ? AND direction = ?`,
		ticker, string(dir),
	).Scan(&unix)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sqlite last alert: %w", err)
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

// CommitAlert is the atomic monotonic guard: the upsert only moves
// last_alert_ts forward, so a replayed or concurrent commit with an
// older candle leaves the row untouched.
func (s *Store) CommitAlert(ctx context.Context, ticker string, dir model.Direction, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (ticker, direction, last_alert_ts, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ticker, direction) DO UPDATE SET
			last_alert_ts = excluded.last_alert_ts,
			updated_at    = excluded.updated_at
		WHERE excluded.last_alert_ts > alerts.last_alert_ts`,
		ticker, string(dir), ts.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite commit alert: %w", err)
	}
	return nil
}

func (s *Store) SignalState(ctx context.Context, ticker string, dir model.Direction) (strategy.State, error) {
	var count int
	var unix int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count, last_counted_ts FROM signal_state WHERE ticker = ? AND direction = ?`,
		ticker, string(dir),
	).Scan(&count, &unix)
	if err == sql.ErrNoRows {
		return strategy.State{}, nil
	}
	if err != nil {
		return strategy.State{}, fmt.Errorf("sqlite signal state: %w", err)
	}
	st := strategy.State{Count: count}
	if unix > 0 {
		st.LastTS = time.Unix(unix, 0).UTC()
	}
	return st, nil
}

func (s *Store) SaveSignalState(ctx context.Context, ticker string, dir model.Direction, st strategy.State) error {
	var unix int64
	if !st.LastTS.IsZero() {
		unix = st.LastTS.Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signal_state (ticker, direction, count, last_counted_ts, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ticker, direction) DO UPDATE SET
			count           = excluded.count,
			last_counted_ts = excluded.last_counted_ts,
			updated_at      = excluded.updated_at`,
		ticker, string(dir), st.Count, unix, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite save signal state: %w", err)
	}
	return nil
}

// ── RunHistory ──

func (s *Store) StartRun(ctx context.Context, tickers []string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO run_history (started_at, status, tickers) VALUES (?, ?, ?)`,
		time.Now().Unix(), string(store.RunRunning), strings.Join(tickers, ","),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite start run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite start run id: %w", err)
	}
	return id, nil
}

func (s *Store) FinishRun(ctx context.Context, id int64, status store.RunStatus, errMsg string, alerts int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE run_history SET finished_at = ?, status = ?, error_message = ?, alerts_sent = ? WHERE id = ?`,
		time.Now().Unix(), string(status), errMsg, alerts, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite finish run: %w", err)
	}
	return nil
}

func (s *Store) LastRun(ctx context.Context) (store.RunRecord, bool, error) {
	var rec store.RunRecord
	var started int64
	var finished sql.NullInt64
	var status string
	var errMsg, tickers sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, status, error_message, tickers, alerts_sent
		FROM run_history ORDER BY id DESC LIMIT 1`,
	).Scan(&rec.ID, &started, &finished, &status, &errMsg, &tickers, &rec.AlertsSent)
	if err == sql.ErrNoRows {
		return store.RunRecord{}, false, nil
	}
	if err != nil {
		return store.RunRecord{}, false, fmt.Errorf("sqlite last run: %w", err)
	}
	rec.StartedAt = time.Unix(started, 0).UTC()
	if finished.Valid {
		rec.FinishedAt = time.Unix(finished.Int64, 0).UTC()
	}
	rec.Status = store.RunStatus(status)
	rec.Error = errMsg.String
	rec.Tickers = tickers.String
	return rec, true, nil
}

// ── HealthStore ──

func (s *Store) HealthRecord(ctx context.Context) (store.HealthRecord, bool, error) {
	var rec store.HealthRecord
	var sig, okDate sql.NullString
	var sentAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_signature, last_sent_at, last_ok_date FROM health_state WHERE id = 1`,
	).Scan(&sig, &sentAt, &okDate)
	if err == sql.ErrNoRows {
		return store.HealthRecord{}, false, nil
	}
	if err != nil {
		return store.HealthRecord{}, false, fmt.Errorf("sqlite health record: %w", err)
	}
	rec.LastSignature = sig.String
	if sentAt.Valid {
		rec.LastSentAt = time.Unix(sentAt.Int64, 0).UTC()
	}
	rec.LastOKDate = okDate.String
	return rec, true, nil
}

func (s *Store) SaveHealthRecord(ctx context.Context, rec store.HealthRecord) error {
	var sentAt int64
	if !rec.LastSentAt.IsZero() {
		sentAt = rec.LastSentAt.Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO health_state (id, last_signature, last_sent_at, last_ok_date)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_signature = excluded.last_signature,
			last_sent_at   = excluded.last_sent_at,
			last_ok_date   = excluded.last_ok_date`,
		rec.LastSignature, sentAt, rec.LastOKDate,
	)
	if err != nil {
		return fmt.Errorf("sqlite save health record: %w", err)
	}
	return nil
}
