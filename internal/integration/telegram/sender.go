package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"

	"imapntfy/internal/config"
	"imapntfy/internal/delivery"

	"github.com/mymmrac/telego/telegoapi"
)

type messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type Sender struct {
	client messenger
	logger *slog.Logger
}

func NewSender(client messenger, logger *slog.Logger) *Sender {
	return &Sender{
		client: client,
		logger: logger,
	}
}

// FormatMessage renders a notification as Telegram HTML.
func FormatMessage(notif delivery.Notification) string {
	if notif.Title == "" {
		return html.EscapeString(notif.Message)
	}
	return fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(notif.Title), html.EscapeString(notif.Message))
}

func (s *Sender) Send(ctx context.Context, acct *config.Account, notif delivery.Notification) error {
	if s.client == nil {
		return delivery.NewPermanentError(fmt.Errorf("telegram integration not enabled"))
	}

	if !acct.HasTelegram() {
		return delivery.NewPermanentError(fmt.Errorf("no telegram chat configured for account %s", acct.Name))
	}

	if err := s.client.SendMessage(ctx, acct.TelegramChatID, FormatMessage(notif)); err != nil {
		s.logger.Error("Failed to send telegram message", "account", acct.Name, "chatID", acct.TelegramChatID, "error", err)
		var apiErr *telegoapi.Error
		if errors.As(err, &apiErr) && apiErr.ErrorCode >= http.StatusBadRequest &&
			apiErr.ErrorCode < http.StatusInternalServerError && apiErr.ErrorCode != http.StatusTooManyRequests {
			return delivery.NewPermanentError(err)
		}
		return err
	}

	return nil
}
