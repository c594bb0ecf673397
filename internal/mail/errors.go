package mail

import (
	"errors"
	"fmt"

	"github.com/emersion/go-imap/v2"
)

// NetworkError covers DNS, TCP and TLS failures and any I/O error on an
// established connection.
type NetworkError struct {
	Op   string
	Addr string
	Err  error
}

func (e *NetworkError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

type AuthError struct {
	User string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.User, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ProtocolError is a NO or BAD completion for a command.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// UnsupportedServerError means the server lacks a capability the watcher
// depends on. It is retried like any other connection failure.
type UnsupportedServerError struct {
	Server string
	Cap    imap.Cap
}

func (e *UnsupportedServerError) Error() string {
	return fmt.Sprintf("server %s does not support %s", e.Server, e.Cap)
}

// HeaderParseError is scoped to a single message.
type HeaderParseError struct {
	UID uint32
	Err error
}

func (e *HeaderParseError) Error() string {
	return fmt.Sprintf("parsing header of UID %d: %v", e.UID, e.Err)
}

func (e *HeaderParseError) Unwrap() error { return e.Err }

func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsConnectionError reports whether err invalidates the session.
func IsConnectionError(err error) bool {
	var (
		netErr      *NetworkError
		authErr     *AuthError
		protoErr    *ProtocolError
		unsupported *UnsupportedServerError
	)
	return errors.As(err, &netErr) ||
		errors.As(err, &authErr) ||
		errors.As(err, &protoErr) ||
		errors.As(err, &unsupported)
}

// classify maps a go-imap command error onto the taxonomy: a status
// response from the server is a protocol error, anything else is I/O.
func classify(op string, err error) error {
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		return &ProtocolError{Op: op, Err: err}
	}
	return &NetworkError{Op: op, Err: err}
}
