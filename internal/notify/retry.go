package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Retry re-attempts a failing sink a fixed number of times with a
// constant backoff between attempts.
type Retry struct {
	next     Notifier
	attempts int
	backoff  time.Duration
	log      zerolog.Logger
}

// NewRetry wraps next with retry behavior. attempts below 1 is treated
// as a single attempt.
func NewRetry(next Notifier, attempts int, backoff time.Duration, log zerolog.Logger) *Retry {
	if attempts < 1 {
		attempts = 1
	}
	return &Retry{next: next, attempts: attempts, backoff: backoff, log: log}
}

func (r *Retry) Send(ctx context.Context, a Alert) error {
	var err error
	for i := 0; i < r.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff):
			}
		}
		if err = r.next.Send(ctx, a); err == nil {
			return nil
		}
		r.log.Warn().Err(err).Int("attempt", i+1).Int("max", r.attempts).
			Str("title", a.Title).Msg("delivery attempt failed")
	}
	return fmt.Errorf("delivery failed after %d attempts: %w", r.attempts, err)
}
