package watcher

import (
	"sync"
	"time"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSelecting    State = "selecting"
	StateActive       State = "active"
	StateBackoff      State = "backoff"
	StateStopped      State = "stopped"
)

// Status is the externally visible state of one account's watcher.
type Status struct {
	Account   string
	State     State
	Watermark uint32
	Backoff   time.Duration
	LastError string
	LastCheck time.Time
	Notified  int
	Since     time.Time
}

// Board collects watcher status for the status server. Each watcher only
// writes its own key.
type Board struct {
	mu       sync.RWMutex
	order    []string
	statuses map[string]*Status
}

func NewBoard(accounts ...string) *Board {
	b := &Board{statuses: make(map[string]*Status, len(accounts))}
	now := time.Now()
	for _, name := range accounts {
		b.order = append(b.order, name)
		b.statuses[name] = &Status{Account: name, State: StateDisconnected, Since: now}
	}
	return b
}

// Update applies fn to the account's status under the board lock. Unknown
// accounts are added at the end.
func (b *Board) Update(account string, fn func(s *Status)) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.statuses[account]
	if !ok {
		s = &Status{Account: account, State: StateDisconnected, Since: time.Now()}
		b.statuses[account] = s
		b.order = append(b.order, account)
	}
	prev := s.State
	fn(s)
	if s.State != prev {
		s.Since = time.Now()
	}
}

func (b *Board) Get(account string) (Status, bool) {
	if b == nil {
		return Status{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.statuses[account]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// Snapshot returns a copy of every status in configuration order.
func (b *Board) Snapshot() []Status {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Status, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, *b.statuses[name])
	}
	return out
}
