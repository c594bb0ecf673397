package webpush

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"imapntfy/internal/config"
	"imapntfy/internal/delivery"

	webpush "github.com/SherClockHolmes/webpush-go"
)

const ttlSeconds = 86400

type Sender struct {
	client *http.Client
	logger *slog.Logger
}

func NewSender(client *http.Client, logger *slog.Logger) *Sender {
	if client == nil {
		client = http.DefaultClient
	}
	return &Sender{
		client: client,
		logger: logger,
	}
}

type payload struct {
	Account string `json:"account"`
	delivery.Notification
}

func (s *Sender) Send(ctx context.Context, acct *config.Account, notif delivery.Notification) error {
	if !acct.HasWebPush() {
		return delivery.NewPermanentError(fmt.Errorf("no push endpoint configured for account %s", acct.Name))
	}
	target := acct.WebPush
	if err := Validate(target); err != nil {
		return delivery.NewPermanentError(err)
	}

	body, err := json.Marshal(payload{Account: acct.Name, Notification: notif})
	if err != nil {
		return delivery.NewPermanentError(fmt.Errorf("failed to marshal notification: %w", err))
	}

	var resp *http.Response
	if target.HasEncryption() {
		subscription := &webpush.Subscription{
			Endpoint: target.Endpoint,
			Keys: webpush.Keys{
				P256dh: target.P256dh,
				Auth:   target.Auth,
			},
		}

		resp, err = webpush.SendNotificationWithContext(ctx, body, subscription, &webpush.Options{
			HTTPClient:      s.client,
			Subscriber:      target.Subscriber,
			VAPIDPublicKey:  target.VapidPublicKey,
			VAPIDPrivateKey: target.VapidPrivateKey,
			TTL:             ttlSeconds,
		})
		if err != nil {
			return fmt.Errorf("failed to send webpush: %w", err)
		}
	} else {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.Endpoint, bytes.NewReader(body))
		if err != nil {
			return delivery.NewPermanentError(fmt.Errorf("failed to build webhook request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = s.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send webhook: %w", err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("push endpoint returned status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return delivery.NewPermanentError(err)
		}
		return err
	}

	s.logger.Debug("Sent webpush notification", "account", acct.Name, "encrypted", target.HasEncryption(), "url", target.Endpoint)
	return nil
}
