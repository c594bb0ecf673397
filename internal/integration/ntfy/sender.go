package ntfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"imapntfy/internal/config"
	"imapntfy/internal/delivery"
)

const requestTimeout = 15 * time.Second

type message struct {
	Topic    string   `json:"topic"`
	Title    string   `json:"title,omitempty"`
	Message  string   `json:"message"`
	Priority int      `json:"priority,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Click    string   `json:"click,omitempty"`
}

// Sender publishes to an ntfy server using its JSON API: a POST to the
// server root with the topic in the body.
type Sender struct {
	client *http.Client
	logger *slog.Logger
}

func NewSender(client *http.Client, logger *slog.Logger) *Sender {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return &Sender{client: client, logger: logger}
}

func (s *Sender) Send(ctx context.Context, acct *config.Account, notif delivery.Notification) error {
	payload, err := json.Marshal(message{
		Topic:    acct.NtfyTopic,
		Title:    notif.Title,
		Message:  notif.Message,
		Priority: notif.Priority,
		Tags:     notif.Tags,
		Click:    notif.Click,
	})
	if err != nil {
		return delivery.NewPermanentError(fmt.Errorf("failed to marshal notification: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, acct.NtfyURL, bytes.NewReader(payload))
	if err != nil {
		return delivery.NewPermanentError(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if acct.NtfyToken != "" {
		req.Header.Set("Authorization", "Bearer "+acct.NtfyToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to publish to ntfy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		s.logger.Debug("Published ntfy notification", "account", acct.Name, "topic", acct.NtfyTopic)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("ntfy returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return delivery.NewPermanentError(err)
	}
	return err
}
