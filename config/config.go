// Package config loads the monitor's configuration from environment
// variables, with an optional .env file for local runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"regime-monitor/internal/indicator"
	"regime-monitor/internal/logging"
	"regime-monitor/internal/model"
	"regime-monitor/internal/notify"
	"regime-monitor/internal/strategy"
)

// Ledger backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	// Universe and timeframes
	Tickers        []string
	RegimeInterval model.Interval
	ExecInterval   model.Interval
	LookbackRegime int // days of slow-TF history
	LookbackExec   int // days of fast-TF history

	// Indicator periods
	EMAFast   int
	EMASlow   int
	EMATrend  int
	RSIPeriod int
	ATRPeriod int

	// Signal confirmation
	ConfirmBars int
	GapATRMult  float64
	RSIMomentum bool
	StaleMaxAge time.Duration // 0 disables the freshness check

	// Persistence
	LedgerBackend string
	AlertDB       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Delivery
	TelegramToken      string
	TelegramChatID     string
	WebhookURL         string
	NotifyRetries      int
	NotifyRetryBackoff time.Duration
	BreakerThreshold   int
	BreakerCooldown    time.Duration

	// Health reporting
	HealthStaleAfter time.Duration
	ReportLoc        *time.Location

	// Daemon
	MonitorInterval time.Duration
	MarketHoursOnly bool
	HTTPAddr        string

	// Candle source
	YahooBaseURL string

	// Logging
	LogLevel string
	LogDir   string
	LogFile  string
}

// Load reads the environment, applying defaults and validating ranges.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var l loader
	cfg := &Config{
		Tickers:        splitTickers(l.str("TICKERS", "QQQ")),
		RegimeInterval: l.interval("REGIME_INTERVAL", model.Interval1h),
		ExecInterval:   l.interval("EXEC_INTERVAL", model.Interval30m),
		LookbackRegime: l.integer("LOOKBACK_DAYS_REGIME", 30),
		LookbackExec:   l.integer("LOOKBACK_DAYS_EXEC", 20),

		EMAFast:   l.integer("EMA_FAST", 3),
		EMASlow:   l.integer("EMA_SLOW", 9),
		EMATrend:  l.integer("EMA_TREND", 21),
		RSIPeriod: l.integer("RSI_PERIOD", 5),
		ATRPeriod: l.integer("ATR_PERIOD", 5),

		ConfirmBars: l.integer("EXEC_CONFIRM_BARS", 2),
		GapATRMult:  l.float("GAP_ATR_MULT", 0.15),
		RSIMomentum: l.boolean("REQUIRE_RSI_MOMENTUM", false),
		StaleMaxAge: l.duration("STALE_CANDLE_MAX_AGE", 90*time.Minute),

		LedgerBackend: strings.ToLower(l.str("LEDGER_BACKEND", BackendSQLite)),
		AlertDB:       l.str("ALERT_DB", "alerts.db"),
		RedisAddr:     l.str("REDIS_ADDR", "localhost:6379"),
		RedisPassword: l.str("REDIS_PASSWORD", ""),
		RedisDB:       l.integer("REDIS_DB", 0),

		TelegramToken:      l.str("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:     l.str("TELEGRAM_CHAT_ID", ""),
		WebhookURL:         l.str("WEBHOOK_URL", ""),
		NotifyRetries:      l.integer("NOTIFY_RETRIES", 3),
		NotifyRetryBackoff: l.duration("NOTIFY_RETRY_BACKOFF", 2*time.Second),
		BreakerThreshold:   l.integer("BREAKER_THRESHOLD", 5),
		BreakerCooldown:    l.duration("BREAKER_COOLDOWN", time.Minute),

		HealthStaleAfter: l.duration("HEALTH_STALE_AFTER", 70*time.Minute),
		ReportLoc:        l.location("REPORT_TZ", "Asia/Seoul"),

		MonitorInterval: l.duration("MONITOR_INTERVAL", 15*time.Minute),
		MarketHoursOnly: l.boolean("MARKET_HOURS_ONLY", true),
		HTTPAddr:        l.str("HTTP_ADDR", ":9090"),

		YahooBaseURL: l.str("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),

		LogLevel: l.str("LOG_LEVEL", "info"),
		LogDir:   l.str("LOG_DIR", "logs"),
		LogFile:  l.str("LOG_FILE", "monitor.log"),
	}

	if len(cfg.Tickers) == 0 {
		l.bad("TICKERS must name at least one symbol")
	}
	for _, p := range []struct {
		name string
		v    int
	}{
		{"LOOKBACK_DAYS_REGIME", cfg.LookbackRegime},
		{"LOOKBACK_DAYS_EXEC", cfg.LookbackExec},
		{"EMA_FAST", cfg.EMAFast},
		{"EMA_SLOW", cfg.EMASlow},
		{"EMA_TREND", cfg.EMATrend},
		{"RSI_PERIOD", cfg.RSIPeriod},
		{"ATR_PERIOD", cfg.ATRPeriod},
		{"EXEC_CONFIRM_BARS", cfg.ConfirmBars},
		{"NOTIFY_RETRIES", cfg.NotifyRetries},
		{"BREAKER_THRESHOLD", cfg.BreakerThreshold},
	} {
		if p.v < 1 {
			l.bad("%s must be at least 1, got %d", p.name, p.v)
		}
	}
	if cfg.EMAFast >= cfg.EMASlow {
		l.bad("EMA_FAST (%d) must be smaller than EMA_SLOW (%d)", cfg.EMAFast, cfg.EMASlow)
	}
	if cfg.EMASlow >= cfg.EMATrend {
		l.bad("EMA_SLOW (%d) must be smaller than EMA_TREND (%d)", cfg.EMASlow, cfg.EMATrend)
	}
	if cfg.GapATRMult < 0 {
		l.bad("GAP_ATR_MULT must not be negative, got %g", cfg.GapATRMult)
	}
	if cfg.StaleMaxAge < 0 {
		l.bad("STALE_CANDLE_MAX_AGE must not be negative")
	}
	if cfg.NotifyRetryBackoff < 0 {
		l.bad("NOTIFY_RETRY_BACKOFF must not be negative")
	}
	if cfg.BreakerCooldown < 0 {
		l.bad("BREAKER_COOLDOWN must not be negative")
	}
	if cfg.HealthStaleAfter <= 0 {
		l.bad("HEALTH_STALE_AFTER must be positive")
	}
	if cfg.MonitorInterval <= 0 {
		l.bad("MONITOR_INTERVAL must be positive")
	}
	switch cfg.LedgerBackend {
	case BackendSQLite, BackendRedis, BackendMemory:
	default:
		l.bad("LEDGER_BACKEND must be sqlite, redis, or memory, got %q", cfg.LedgerBackend)
	}

	if len(l.errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(l.errs, "; "))
	}
	return cfg, nil
}

// Indicators returns the indicator periods as an engine config.
func (c *Config) Indicators() indicator.Config {
	return indicator.Config{
		EMAFast:  c.EMAFast,
		EMASlow:  c.EMASlow,
		EMATrend: c.EMATrend,
		RSI:      c.RSIPeriod,
		ATR:      c.ATRPeriod,
	}
}

// Strategy returns the confirmation parameters.
func (c *Config) Strategy() strategy.Params {
	return strategy.Params{
		ConfirmBars: c.ConfirmBars,
		GapATRMult:  c.GapATRMult,
		RSIMomentum: c.RSIMomentum,
	}
}

// NotifyStack returns the delivery stack settings.
func (c *Config) NotifyStack() notify.StackConfig {
	return notify.StackConfig{
		TelegramToken:    c.TelegramToken,
		TelegramChatID:   c.TelegramChatID,
		WebhookURL:       c.WebhookURL,
		Retries:          c.NotifyRetries,
		RetryBackoff:     c.NotifyRetryBackoff,
		BreakerThreshold: c.BreakerThreshold,
		BreakerCooldown:  c.BreakerCooldown,
	}
}

// Logging returns the log destinations and level.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.LogLevel, Dir: c.LogDir, File: c.LogFile}
}

func splitTickers(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// loader accumulates parse failures so Load can report them all at once.
type loader struct {
	errs []string
}

func (l *loader) bad(format string, args ...interface{}) {
	l.errs = append(l.errs, fmt.Sprintf(format, args...))
}

func (l *loader) str(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func (l *loader) integer(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.bad("%s: not an integer: %q", key, v)
		return fallback
	}
	return n
}

func (l *loader) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.bad("%s: not a number: %q", key, v)
		return fallback
	}
	return f
}

func (l *loader) boolean(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.bad("%s: not a boolean: %q", key, v)
		return fallback
	}
	return b
}

func (l *loader) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.bad("%s: not a duration: %q", key, v)
		return fallback
	}
	return d
}

func (l *loader) interval(key string, fallback model.Interval) model.Interval {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	iv, err := model.ParseInterval(v)
	if err != nil {
		l.bad("%s: %v", key, err)
		return fallback
	}
	return iv
}

func (l *loader) location(key, fallback string) *time.Location {
	name := l.str(key, fallback)
	loc, err := time.LoadLocation(name)
	if err != nil {
		l.bad("%s: %v", key, err)
		return time.UTC
	}
	return loc
}
