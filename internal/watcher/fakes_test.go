package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"imapntfy/internal/config"
	"imapntfy/internal/delivery"
	"imapntfy/internal/mail"
)

var errConnLost = &mail.NetworkError{Op: "idle", Err: errors.New("connection reset by peer")}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAccount() *config.Account {
	return &config.Account{
		Name:             "work",
		Mailbox:          config.DefaultMailbox,
		NtfyClickableURL: "https://mail.example.com",
	}
}

func header(subject string) string {
	return fmt.Sprintf("From: a@example.com\r\nSubject: %s\r\n\r\n", subject)
}

type idleStep struct {
	res mail.IdleResult
	err error
	// before runs while the session lock is held, e.g. to deliver mail.
	before func(f *fakeSession)
}

type fakeSession struct {
	mu sync.Mutex

	uids    []uint32
	headers map[uint32]string

	selectErr error
	searchErr error
	fetchErr  error
	idle      []idleStep

	fetched   [][]uint32
	searches  int
	loggedOut int
}

func (f *fakeSession) Select(_ context.Context, _ string) error {
	return f.selectErr
}

func (f *fakeSession) SearchUIDs(_ context.Context) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return slices.Clone(f.uids), nil
}

func (f *fakeSession) FetchHeaders(_ context.Context, uids []uint32) ([]mail.HeaderBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, slices.Clone(uids))
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var blocks []mail.HeaderBlock
	// Reverse order: the server may return messages in any order.
	for i := len(uids) - 1; i >= 0; i-- {
		raw, ok := f.headers[uids[i]]
		if !ok {
			continue
		}
		blocks = append(blocks, mail.HeaderBlock{UID: uids[i], Raw: []byte(raw)})
	}
	return blocks, nil
}

func (f *fakeSession) Idle(ctx context.Context, _ time.Duration) (mail.IdleResult, error) {
	f.mu.Lock()
	if len(f.idle) > 0 {
		step := f.idle[0]
		f.idle = f.idle[1:]
		if step.before != nil {
			step.before(f)
		}
		f.mu.Unlock()
		return step.res, step.err
	}
	f.mu.Unlock()

	<-ctx.Done()
	return mail.IdleResult{Reason: mail.IdleInterrupted}, nil
}

func (f *fakeSession) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut++
	return nil
}

func (f *fakeSession) fetchCalls() [][]uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.fetched)
}

func (f *fakeSession) logouts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedOut
}

type fakeDispatcher struct {
	mu    sync.Mutex
	sent  []delivery.Notification
	fail  func(n delivery.Notification) error
	onHit func(n delivery.Notification)
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ *config.Account, n delivery.Notification) error {
	f.mu.Lock()
	f.sent = append(f.sent, n)
	fail, onHit := f.fail, f.onHit
	f.mu.Unlock()

	if onHit != nil {
		onHit(n)
	}
	if fail != nil {
		return fail(n)
	}
	return nil
}

func (f *fakeDispatcher) notifications() []delivery.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent)
}

func (f *fakeDispatcher) messages() []string {
	var out []string
	for _, n := range f.notifications() {
		out = append(out, n.Message)
	}
	return out
}
