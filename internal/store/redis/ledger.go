// Package redis is an alternative Ledger backend for deployments that
// already run Redis. Run history and health state stay in SQLite; only
// the per-(ticker, direction) dedup keys live here.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"regime-monitor/internal/model"
	"regime-monitor/internal/strategy"
)

// Config holds the connection settings for the ledger.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Ledger implements store.Ledger on Redis keys:
//
//	alert:last:{ticker}:{dir}   → unix seconds of the last alerted candle
//	signal:state:{ticker}:{dir} → hash {count, last_ts}
type Ledger struct {
	client *goredis.Client
	log    zerolog.Logger
}

// commitScript is the monotonic compare-and-set: the stored timestamp
// only moves forward, even under concurrent invokers.
var commitScript = goredis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '-1')
local new = tonumber(ARGV[1])
if new > cur then
	redis.call('SET', KEYS[1], ARGV[1])
	return 1
end
return 0`)

// New connects and pings the server.
func New(cfg Config, log zerolog.Logger) (*Ledger, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Debug().Str("addr", cfg.Addr).Msg("redis ledger connected")
	return &Ledger{client: client, log: log}, nil
}

// Client returns the underlying client for health probes.
func (l *Ledger) Client() *goredis.Client { return l.client }

func (l *Ledger) Close() error { return l.client.Close() }

func alertKey(ticker string, dir model.Direction) string {
	return "alert:last:" + ticker + ":" + string(dir)
}

func stateKey(ticker string, dir model.Direction) string {
	return "signal:state:" + ticker + ":" + string(dir)
}

func (l *Ledger) LastAlert(ctx context.Context, ticker string, dir model.Direction) (time.Time, bool, error) {
	v, err := l.client.Get(ctx, alertKey(ticker, dir)).Result()
	if err == goredis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis last alert: %w", err)
	}
	unix, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis last alert parse %q: %w", v, err)
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

func (l *Ledger) CommitAlert(ctx context.Context, ticker string, dir model.Direction, ts time.Time) error {
	err := commitScript.Run(ctx, l.client, []string{alertKey(ticker, dir)}, ts.Unix()).Err()
	if err != nil && err != goredis.Nil {
		return fmt.Errorf("redis commit alert: %w", err)
	}
	return nil
}

func (l *Ledger) SignalState(ctx context.Context, ticker string, dir model.Direction) (strategy.State, error) {
	vals, err := l.client.HGetAll(ctx, stateKey(ticker, dir)).Result()
	if err != nil {
		return strategy.State{}, fmt.Errorf("redis signal state: %w", err)
	}
	if len(vals) == 0 {
		return strategy.State{}, nil
	}
	var st strategy.State
	if v, ok := vals["count"]; ok {
		st.Count, _ = strconv.Atoi(v)
	}
	if v, ok := vals["last_ts"]; ok {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil && unix > 0 {
			st.LastTS = time.Unix(unix, 0).UTC()
		}
	}
	return st, nil
}

func (l *Ledger) SaveSignalState(ctx context.Context, ticker string, dir model.Direction, st strategy.State) error {
	var unix int64
	if !st.LastTS.IsZero() {
		unix = st.LastTS.Unix()
	}
	err := l.client.HSet(ctx, stateKey(ticker, dir),
		"count", st.Count,
		"last_ts", unix,
	).Err()
	if err != nil {
		return fmt.Errorf("redis save signal state: %w", err)
	}
	return nil
}
