package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"imapntfy/internal/config"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

const pushBuffer = 16

type Options struct {
	DialTimeout time.Duration
	// TLSConfig overrides the default for tls and starttls accounts.
	TLSConfig *tls.Config
	Logger    *slog.Logger
	// DebugWriter receives raw protocol traffic when set.
	DebugWriter io.Writer
}

// Session is one authenticated IMAP connection for a single account.
// It is owned by exactly one watcher and is not safe for concurrent use.
type Session struct {
	client  *imapclient.Client
	account *config.Account
	logger  *slog.Logger

	pushes chan string
}

// Connect dials the account's server, authenticates and verifies IDLE
// support. On any failure the connection is closed before returning.
func Connect(ctx context.Context, acct *config.Account, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		account: acct,
		logger:  logger.With("account", acct.Name),
		pushes:  make(chan string, pushBuffer),
	}

	addr := acct.Address()
	tlsConfig := opts.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	}
	if tlsConfig.ServerName == "" {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.ServerName = acct.Server
	}

	clientOpts := &imapclient.Options{
		TLSConfig:   tlsConfig,
		DebugWriter: opts.DebugWriter,
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: s.onMailbox,
		},
	}

	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &NetworkError{Op: "dial", Addr: addr, Err: err}
	}

	switch acct.Security {
	case config.SecurityTLS:
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, &NetworkError{Op: "tls handshake", Addr: addr, Err: err}
		}
		s.client = imapclient.New(tlsConn, clientOpts)
	case config.SecurityStartTLS:
		s.client, err = imapclient.NewStartTLS(conn, clientOpts)
		if err != nil {
			conn.Close()
			return nil, &NetworkError{Op: "starttls", Addr: addr, Err: err}
		}
	case config.SecurityInsecure:
		s.client = imapclient.New(conn, clientOpts)
	default:
		conn.Close()
		return nil, fmt.Errorf("unknown security mode %q", acct.Security)
	}

	if err := s.client.Login(acct.Username, acct.Password).Wait(); err != nil {
		s.client.Close()
		if isStatusError(err) {
			return nil, &AuthError{User: acct.Username, Err: err}
		}
		return nil, &NetworkError{Op: "login", Addr: addr, Err: err}
	}

	caps, err := s.client.Capability().Wait()
	if err != nil {
		s.close()
		return nil, classify("capability", err)
	}
	if !caps.Has(imap.CapIdle) {
		s.close()
		return nil, &UnsupportedServerError{Server: addr, Cap: imap.CapIdle}
	}

	s.logger.Debug("IMAP session established", "server", addr, "security", acct.Security)
	return s, nil
}

// onMailbox runs on the client's reader goroutine and must not block.
func (s *Session) onMailbox(data *imapclient.UnilateralDataMailbox) {
	if data.NumMessages == nil {
		return
	}
	select {
	case s.pushes <- fmt.Sprintf("* %d EXISTS", *data.NumMessages):
	default:
	}
}

func (s *Session) close() {
	if err := s.client.Logout().Wait(); err != nil {
		s.logger.Debug("Logout failed", "error", err)
	}
	s.client.Close()
}
