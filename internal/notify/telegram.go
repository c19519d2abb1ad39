// Package notify delivers best-effort chat notifications.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Rrens/kb-chat/internal/config"
	"github.com/Rrens/kb-chat/internal/domain"
)

const defaultTelegramBaseURL = "https://api.telegram.org"

// Telegram posts messages to one chat through the Bot API
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// NewTelegram creates a Telegram notifier
func NewTelegram(cfg config.NotifyConfig) *Telegram {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	baseURL := cfg.TelegramBaseURL
	if baseURL == "" {
		baseURL = defaultTelegramBaseURL
	}
	return &Telegram{
		token:   cfg.TelegramBotToken,
		chatID:  cfg.TelegramChatID,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether both a token and a chat id are configured
func (t *Telegram) Enabled() bool {
	return t.token != "" && t.chatID != ""
}

// Notify sends text with sendMessage
func (t *Telegram) Notify(ctx context.Context, text string) error {
	if !t.Enabled() {
		return nil
	}

	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", domain.ErrNotification, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the bot token, so only the cause is reported
		if ue, ok := err.(*url.Error); ok {
			err = ue.Err
		}
		return fmt.Errorf("%w: request failed: %v", domain.ErrNotification, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: telegram returned status %d", domain.ErrNotification, resp.StatusCode)
	}
	return nil
}

// Nop discards every message
type Nop struct{}

// Notify does nothing
func (Nop) Notify(context.Context, string) error { return nil }

// FormatChat renders the message sent after each answered question
func FormatChat(who, question, answer string) string {
	return fmt.Sprintf("Chat by %s\nUser: %s\nBot: %s", who, question, answer)
}
