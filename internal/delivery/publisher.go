package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"imapntfy/internal/config"
	"imapntfy/internal/history"
	"imapntfy/internal/util"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
)

type Sender interface {
	Send(ctx context.Context, acct *config.Account, notif Notification) error
}

type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Publisher fans a notification out to every channel an account enables.
// Senders are registered before watchers start and must be safe for
// concurrent use.
type Publisher struct {
	senders  map[Channel]Sender
	recorder Recorder
	logger   *slog.Logger

	maxAttempts int
	baseDelay   time.Duration
}

func NewPublisher(logger *slog.Logger, recorder Recorder) *Publisher {
	return &Publisher{
		senders:     make(map[Channel]Sender),
		recorder:    recorder,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}
}

func (p *Publisher) RegisterSender(channel Channel, sender Sender) {
	p.senders[channel] = sender
}

func (p *Publisher) HasChannel(channel Channel) bool {
	_, ok := p.senders[channel]
	return ok
}

func (p *Publisher) SetRetryPolicy(maxAttempts int, baseDelay time.Duration) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	p.maxAttempts = maxAttempts
	p.baseDelay = baseDelay
}

func channelsFor(acct *config.Account) []Channel {
	channels := []Channel{ChannelNtfy}
	if acct.HasTelegram() {
		channels = append(channels, ChannelTelegram)
	}
	if acct.HasWebPush() {
		channels = append(channels, ChannelWebPush)
	}
	return channels
}

// Dispatch returns an error only when no channel delivered the notification.
func (p *Publisher) Dispatch(ctx context.Context, acct *config.Account, notif Notification) error {
	var errs []error
	successCount := 0

	for _, channel := range channelsFor(acct) {
		sender, ok := p.senders[channel]
		if !ok {
			p.logger.Debug("Skipping disabled channel", "account", acct.Name, "channel", channel)
			continue
		}

		err := p.sendWithRetry(ctx, sender, channel, acct, notif)
		p.record(ctx, acct, channel, notif, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", channel, err))
		} else {
			successCount++
		}
	}

	if successCount == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (p *Publisher) sendWithRetry(ctx context.Context, sender Sender, channel Channel, acct *config.Account, notif Notification) error {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		err := sender.Send(ctx, acct, notif)
		if err == nil {
			if attempt > 0 {
				p.logger.Info("Notification sent after retry", "account", acct.Name, "channel", channel, "attempt", attempt+1)
			}
			return nil
		}

		lastErr = err

		if IsPermanent(err) {
			p.logger.Error("Permanent error, not retrying", "account", acct.Name, "channel", channel, "error", err)
			return err
		}

		if attempt < p.maxAttempts-1 {
			delay := p.baseDelay * time.Duration(1<<uint(attempt))
			p.logger.Warn("Failed to send notification, retrying", "account", acct.Name, "channel", channel, "attempt", attempt+1, "error", err, "retryIn", delay)
			if err := util.Sleep(ctx, delay); err != nil {
				return lastErr
			}
		}
	}

	p.logger.Error("Failed to send notification after retries", "account", acct.Name, "channel", channel, "attempts", p.maxAttempts, "error", lastErr)
	return lastErr
}

func (p *Publisher) record(ctx context.Context, acct *config.Account, channel Channel, notif Notification, sendErr error) {
	if p.recorder == nil {
		return
	}

	entry := history.Entry{
		Account: acct.Name,
		Channel: string(channel),
		Title:   notif.Title,
		Message: notif.Message,
		Status:  history.StatusSent,
	}
	if sendErr != nil {
		entry.Status = history.StatusFailed
		entry.Error = sendErr.Error()
	}

	// Recording must outlive a shutdown that interrupted the send.
	if err := p.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		p.logger.Warn("Failed to record delivery", "account", acct.Name, "channel", channel, "error", err)
	}
}
