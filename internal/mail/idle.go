package mail

import (
	"context"
	"errors"
	"time"
)

type IdleReason int

const (
	IdleTimeout IdleReason = iota
	IdleServerPush
	IdleInterrupted
)

func (r IdleReason) String() string {
	switch r {
	case IdleTimeout:
		return "timeout"
	case IdleServerPush:
		return "server_push"
	case IdleInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

type IdleResult struct {
	Reason IdleReason
	// Data is the untagged response that ended the wait, for IdleServerPush.
	Data string
}

var errIdleEnded = errors.New("server ended IDLE")

// Idle issues IDLE and waits for the first of: an untagged mailbox update,
// maxWait elapsing, or ctx being cancelled. IDLE is always terminated with
// DONE before returning so the session is ready for the next command. A
// push that arrived before the call returns immediately.
func (s *Session) Idle(ctx context.Context, maxWait time.Duration) (IdleResult, error) {
	select {
	case data := <-s.pushes:
		return IdleResult{Reason: IdleServerPush, Data: data}, nil
	default:
	}

	cmd, err := s.client.Idle()
	if err != nil {
		return IdleResult{}, classify("idle", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	var (
		result IdleResult
		ended  error
	)
	select {
	case <-timer.C:
		result = IdleResult{Reason: IdleTimeout}
	case data := <-s.pushes:
		result = IdleResult{Reason: IdleServerPush, Data: data}
	case <-ctx.Done():
		result = IdleResult{Reason: IdleInterrupted}
	case err := <-done:
		if err == nil {
			err = errIdleEnded
		}
		return IdleResult{}, &NetworkError{Op: "idle", Err: err}
	}

	if err := cmd.Close(); err != nil {
		ended = err
	}
	if err := <-done; err != nil && ended == nil {
		ended = err
	}
	if ended != nil {
		if result.Reason == IdleInterrupted {
			return result, nil
		}
		return IdleResult{}, classify("idle done", ended)
	}
	return result, nil
}
