// Package notify delivers alerts to external channels (Telegram,
// webhooks) with retry and circuit-breaker hardening. A log sink backs
// every composition so alerts are never silently dropped.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Level is the severity of an alert.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Alert is the structured payload handed to every sink. Signal alerts
// fill the ticker/direction/regime/candle fields; status and health
// messages carry only level, title, and message.
type Alert struct {
	Level     Level              `json:"level"`
	Title     string             `json:"title"`
	Message   string             `json:"message"`
	Ticker    string             `json:"ticker,omitempty"`
	Direction string             `json:"direction,omitempty"`
	Regime    string             `json:"regime,omitempty"`
	CandleTS  time.Time          `json:"candle_ts"`
	Values    map[string]float64 `json:"values,omitempty"`
}

// Notifier is the interface all sinks and decorators implement.
type Notifier interface {
	// Send delivers an alert. Returns an error if delivery fails.
	Send(ctx context.Context, a Alert) error
}

// LogNotifier writes alerts to the logger. Used as the default sink
// when no channel is configured and appended to every composition.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLog creates a log-backed notifier.
func NewLog(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, a Alert) error {
	ev := n.log.Info()
	switch a.Level {
	case LevelWarn:
		ev = n.log.Warn()
	case LevelError:
		ev = n.log.Error()
	}
	ev.Str("title", a.Title)
	if a.Ticker != "" {
		ev.Str("ticker", a.Ticker).Str("direction", a.Direction).Str("regime", a.Regime)
	}
	ev.Msg(a.Message)
	return nil
}

// Multi fans an alert out to several sinks. Every sink is attempted;
// the first error is returned.
type Multi struct {
	sinks []Notifier
}

// NewMulti composes sinks into one notifier.
func NewMulti(sinks ...Notifier) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Send(ctx context.Context, a Alert) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Send(ctx, a); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// StackConfig selects and tunes the sinks Stack builds.
type StackConfig struct {
	TelegramToken    string
	TelegramChatID   string
	WebhookURL       string
	Retries          int
	RetryBackoff     time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Stack builds the delivery composition used by the commands: each
// configured external sink wrapped as Breaker(Retry(sink)), with a log
// sink always appended so every alert lands somewhere.
func Stack(cfg StackConfig, log zerolog.Logger) Notifier {
	var sinks []Notifier
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		tg := NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, log)
		sinks = append(sinks, harden(tg, cfg, log))
	}
	if cfg.WebhookURL != "" {
		wh := NewWebhook(cfg.WebhookURL, log)
		sinks = append(sinks, harden(wh, cfg, log))
	}
	sinks = append(sinks, NewLog(log))
	return NewMulti(sinks...)
}

func harden(sink Notifier, cfg StackConfig, log zerolog.Logger) Notifier {
	return NewBreaker(
		NewRetry(sink, cfg.Retries, cfg.RetryBackoff, log),
		cfg.BreakerThreshold, cfg.BreakerCooldown, log,
	)
}
