package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"imapntfy/internal/config"
	"imapntfy/internal/delivery"
	"imapntfy/internal/mail"
	"imapntfy/internal/util"
)

// ConnectFunc opens an authenticated session for the account.
type ConnectFunc func(ctx context.Context, acct *config.Account) (Session, error)

type Options struct {
	InitialBackoff      time.Duration
	EscalationThreshold time.Duration
	IdleTimeout         time.Duration
}

func OptionsFrom(cfg config.WatchConfig) Options {
	return Options{
		InitialBackoff:      cfg.InitialBackoff,
		EscalationThreshold: cfg.EscalationThreshold,
		IdleTimeout:         cfg.IdleTimeout,
	}
}

// Watcher keeps one account connected and notifies about new mail until
// its context is cancelled.
type Watcher struct {
	account    *config.Account
	connect    ConnectFunc
	dispatcher Dispatcher
	detector   *Detector
	board      *Board
	logger     *slog.Logger
	opts       Options

	sleep func(ctx context.Context, d time.Duration) error
}

func New(acct *config.Account, connect ConnectFunc, dispatcher Dispatcher, board *Board, logger *slog.Logger, opts Options) *Watcher {
	logger = logger.With("account", acct.Name)
	return &Watcher{
		account:    acct,
		connect:    connect,
		dispatcher: dispatcher,
		detector:   NewDetector(acct, dispatcher, logger),
		board:      board,
		logger:     logger,
		opts:       opts,
		sleep:      util.Sleep,
	}
}

func (w *Watcher) Name() string {
	return w.account.Name
}

// Run only returns once ctx is cancelled. Connection failures of any kind
// are retried with exponential backoff.
func (w *Watcher) Run(ctx context.Context) error {
	backoff := NewBackoff(w.opts.InitialBackoff)
	var watermark uint32

	for {
		if ctx.Err() != nil {
			w.setState(StateStopped)
			return nil
		}

		sess, err := w.open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.setState(StateStopped)
				return nil
			}
			delay := backoff.Current()
			w.logger.Warn("Connection failed", "error", err, "retryIn", formatDelay(delay))
			w.escalate(ctx, err, delay)
			if !w.pause(ctx, &backoff, err) {
				return nil
			}
			continue
		}

		backoff.Reset()
		watermark, err = w.active(ctx, sess, watermark)
		w.logout(sess)

		if ctx.Err() != nil {
			w.setState(StateStopped)
			return nil
		}
		if mail.IsConnectionError(err) {
			w.logger.Warn("Session lost", "error", err, "retryIn", formatDelay(backoff.Current()))
		} else {
			w.logger.Error("Session ended unexpectedly", "error", err, "retryIn", formatDelay(backoff.Current()))
		}
		if !w.pause(ctx, &backoff, err) {
			return nil
		}
	}
}

// open connects and selects the mailbox. A session that fails to select is
// logged out before returning.
func (w *Watcher) open(ctx context.Context) (Session, error) {
	w.setState(StateConnecting)
	sess, err := w.connect(ctx, w.account)
	if err != nil {
		return nil, err
	}

	w.setState(StateSelecting)
	if err := sess.Select(ctx, w.account.Mailbox); err != nil {
		w.logout(sess)
		return nil, err
	}

	w.logger.Info("Watching mailbox", "mailbox", w.account.Mailbox)
	w.board.Update(w.account.Name, func(s *Status) {
		s.State = StateActive
		s.Backoff = 0
		s.LastError = ""
	})
	return sess, nil
}

// active alternates detection passes with push-waits until the session
// fails or ctx is cancelled. The returned watermark is never lower than
// the one passed in.
func (w *Watcher) active(ctx context.Context, sess Session, watermark uint32) (uint32, error) {
	for {
		next, notified, err := w.detector.Detect(ctx, sess, watermark)
		watermark = next
		w.board.Update(w.account.Name, func(s *Status) {
			s.Watermark = watermark
			s.LastCheck = time.Now()
			s.Notified += notified
		})
		if err != nil {
			return watermark, err
		}

		res, err := sess.Idle(ctx, w.opts.IdleTimeout)
		if err != nil {
			return watermark, err
		}
		switch res.Reason {
		case mail.IdleInterrupted:
			return watermark, ctx.Err()
		case mail.IdleServerPush:
			w.logger.Debug("IDLE data", "data", res.Data)
		case mail.IdleTimeout:
			w.logger.Debug("IDLE timed out")
		}
	}
}

// pause sleeps the current backoff delay and doubles it. It reports false
// when ctx was cancelled during the sleep.
func (w *Watcher) pause(ctx context.Context, backoff *Backoff, cause error) bool {
	delay := backoff.Current()
	w.board.Update(w.account.Name, func(s *Status) {
		s.State = StateBackoff
		s.Backoff = delay
		if cause != nil {
			s.LastError = cause.Error()
		}
	})

	if err := w.sleep(ctx, delay); err != nil {
		w.setState(StateStopped)
		return false
	}
	backoff.Advance()
	return true
}

// escalate sends the connection warning once the delay reaches the
// threshold. Delivery failures are only logged.
func (w *Watcher) escalate(ctx context.Context, cause error, delay time.Duration) {
	if delay < w.opts.EscalationThreshold {
		return
	}

	notif := delivery.Notification{
		Title:    "@" + w.account.Name + " connection failed",
		Message:  fmt.Sprintf("connection failed: %v; trying to reconnect after %s ...", cause, formatDelay(delay)),
		Priority: delivery.PriorityDefault,
		Tags:     []string{"warning"},
	}
	if err := w.dispatcher.Dispatch(ctx, w.account, notif); err != nil {
		w.logger.Error("Failed to send connection warning", "error", err)
	}
}

func (w *Watcher) logout(sess Session) {
	if err := sess.Logout(); err != nil {
		w.logger.Debug("Logout failed", "error", err)
	}
	w.setState(StateDisconnected)
}

func (w *Watcher) setState(state State) {
	w.board.Update(w.account.Name, func(s *Status) { s.State = state })
}

// formatDelay renders whole seconds as "256s" and anything else with
// Duration.String.
func formatDelay(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", int64(d/time.Second))
	}
	return d.String()
}
