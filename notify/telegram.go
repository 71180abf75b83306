// Package notify delivers run summaries to people and to other systems.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"house-finder/client"
)

const (
	defaultTelegramURL = "https://api.telegram.org"
	// telegramMaxRunes is the Bot API limit for one message.
	telegramMaxRunes = 4096
)

// Notifier delivers one formatted message.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Telegram sends messages to one chat through the Bot API.
type Telegram struct {
	client  *client.Client
	token   string
	chatID  string
	baseURL string
}

// NewTelegram creates a Telegram notifier. c should not cache. The token
// is part of every request URL, so c is told to redact it.
func NewTelegram(c *client.Client, token, chatID string) *Telegram {
	c.Redact(token)
	return &Telegram{client: c, token: token, chatID: chatID, baseURL: defaultTelegramURL}
}

// WithBaseURL returns a copy of t talking to another API host.
func (t *Telegram) WithBaseURL(u string) *Telegram {
	cp := *t
	cp.baseURL = strings.TrimRight(u, "/")
	return &cp
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify sends message, split into several messages if it is too long.
func (t *Telegram) Notify(ctx context.Context, message string) error {
	for _, part := range splitRunes(message, telegramMaxRunes) {
		resp, err := client.JSON[sendMessageResponse](ctx, t.client, client.Request{
			Method:  http.MethodPost,
			URL:     fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token),
			Payload: sendMessageRequest{ChatID: t.chatID, Text: part},
		})
		if err != nil {
			return fmt.Errorf("telegram: send message: %w", err)
		}
		if !resp.OK {
			return fmt.Errorf("telegram: send message rejected: %s", resp.Description)
		}
	}
	return nil
}

// splitRunes cuts s into pieces of at most n runes, preferring line breaks.
func splitRunes(s string, n int) []string {
	runes := []rune(s)
	if len(runes) <= n {
		return []string{s}
	}

	var parts []string
	for len(runes) > n {
		cut := n
		for i := n; i > n/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
