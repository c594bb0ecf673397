package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

type runner interface {
	Name() string
	Run(ctx context.Context) error
}

// Fleet runs one watcher per account. One watcher failing never cancels
// the others.
type Fleet struct {
	runners []runner
	board   *Board
	logger  *slog.Logger
}

func NewFleet(watchers []*Watcher, board *Board, logger *slog.Logger) *Fleet {
	runners := make([]runner, 0, len(watchers))
	for _, w := range watchers {
		runners = append(runners, w)
	}
	return &Fleet{runners: runners, board: board, logger: logger}
}

// Run blocks until every watcher has returned. A panicking watcher is
// recovered, marked stopped and reported in the returned error.
func (f *Fleet) Run(ctx context.Context) error {
	var g errgroup.Group
	for _, r := range f.runners {
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					f.logger.Error("Watcher panicked", "account", r.Name(), "panic", rec, "stack", string(debug.Stack()))
					err = fmt.Errorf("watcher %s panicked: %v", r.Name(), rec)
					f.board.Update(r.Name(), func(s *Status) {
						s.State = StateStopped
						s.LastError = err.Error()
					})
				}
			}()
			return r.Run(ctx)
		})
	}

	f.logger.Info("Watching accounts", "count", len(f.runners))
	return g.Wait()
}
