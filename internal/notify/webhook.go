package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Webhook POSTs the full alert as JSON to a configured URL.
type Webhook struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewWebhook creates a webhook notifier targeting the given URL.
func NewWebhook(url string, log zerolog.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With().Str("sink", "webhook").Logger(),
	}
}

func (w *Webhook) Send(ctx context.Context, a Alert) error {
	body, err := json.Marshal(struct {
		Alert
		SentAt string `json:"sent_at"`
	}{a, time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return fmt.Errorf("webhook marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook send: status %d", resp.StatusCode)
	}

	w.log.Debug().Str("title", a.Title).Msg("alert delivered")
	return nil
}
