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

const telegramAPI = "https://api.telegram.org"

// Telegram sends alerts to a Telegram chat via the Bot API using
// MarkdownV2 formatting.
type Telegram struct {
	// BaseURL is the API endpoint, overridable in tests.
	BaseURL string

	token  string
	chatID string
	client *http.Client
	log    zerolog.Logger
}

// NewTelegram creates a Telegram notifier for the given bot and chat.
func NewTelegram(token, chatID string, log zerolog.Logger) *Telegram {
	return &Telegram{
		BaseURL: telegramAPI,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("sink", "telegram").Logger(),
	}
}

func (t *Telegram) Send(ctx context.Context, a Alert) error {
	emoji := "ℹ️"
	switch a.Level {
	case LevelWarn:
		emoji = "⚠️"
	case LevelError:
		emoji = "🚨"
	}

	text := fmt.Sprintf("%s *%s*\n\n%s", emoji, escapeMarkdown(a.Title), escapeMarkdown(a.Message))

	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "MarkdownV2",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram send: status %d", resp.StatusCode)
	}

	t.log.Debug().Str("title", a.Title).Msg("alert delivered")
	return nil
}

// escapeMarkdown escapes the characters Telegram's MarkdownV2 mode
// treats as markup.
func escapeMarkdown(s string) string {
	special := "_*[]()~`>#+-=|{}.!"
	var out bytes.Buffer
	for _, r := range s {
		for _, sp := range special {
			if r == sp {
				out.WriteByte('\\')
				break
			}
		}
		out.WriteRune(r)
	}
	return out.String()
}
