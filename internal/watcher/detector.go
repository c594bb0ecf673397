package watcher

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"imapntfy/internal/config"
	"imapntfy/internal/delivery"
	"imapntfy/internal/mail"
)

const noSubject = "<no subject>"

// Session is the subset of mail.Session the watcher drives.
type Session interface {
	Select(ctx context.Context, mailbox string) error
	SearchUIDs(ctx context.Context) ([]uint32, error)
	FetchHeaders(ctx context.Context, uids []uint32) ([]mail.HeaderBlock, error)
	Idle(ctx context.Context, maxWait time.Duration) (mail.IdleResult, error)
	Logout() error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, acct *config.Account, notif delivery.Notification) error
}

// Detector finds messages above the watermark and notifies about each.
type Detector struct {
	account    *config.Account
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewDetector(acct *config.Account, dispatcher Dispatcher, logger *slog.Logger) *Detector {
	return &Detector{account: acct, dispatcher: dispatcher, logger: logger}
}

// Detect runs one pass and returns the new watermark and the number of
// notifications dispatched. On a session error the previous watermark is
// returned so the messages are picked up after reconnecting. Header and
// notification failures only affect the message concerned.
func (d *Detector) Detect(ctx context.Context, sess Session, watermark uint32) (uint32, int, error) {
	uids, err := sess.SearchUIDs(ctx)
	if err != nil {
		return watermark, 0, err
	}

	var fresh []uint32
	next := watermark
	for _, uid := range uids {
		if uid > watermark {
			fresh = append(fresh, uid)
			next = max(next, uid)
		}
	}
	if len(fresh) == 0 {
		return watermark, 0, nil
	}

	blocks, err := sess.FetchHeaders(ctx, fresh)
	if err != nil {
		return watermark, 0, err
	}
	d.logger.Debug("Fetched headers", "new", len(fresh), "fetched", len(blocks))

	slices.SortFunc(blocks, func(a, b mail.HeaderBlock) int {
		return cmp.Compare(a.UID, b.UID)
	})

	notified := 0
	for _, block := range blocks {
		if block.UID <= watermark {
			continue
		}

		subject, err := mail.ParseSubject(block.Raw)
		if err != nil {
			d.logger.Warn("Skipping message", "error", &mail.HeaderParseError{UID: block.UID, Err: err})
			continue
		}
		if subject == "" {
			subject = noSubject
		}

		d.logger.Info("New mail", "uid", block.UID, "subject", subject)
		if err := d.dispatcher.Dispatch(ctx, d.account, newMailNotification(d.account, subject)); err != nil {
			d.logger.Error("Failed to send new mail notification", "uid", block.UID, "error", err)
			continue
		}
		notified++
	}

	return next, notified, nil
}

func newMailNotification(acct *config.Account, subject string) delivery.Notification {
	return delivery.Notification{
		Title:    "@" + acct.Name + " has new mail",
		Message:  subject,
		Priority: delivery.PriorityDefault,
		Click:    acct.NtfyClickableURL,
	}
}
