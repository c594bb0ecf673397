package mail

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"imapntfy/internal/config"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
)

const (
	testUser = "testuser"
	testPass = "testpass"
)

var idleCaps = imap.CapSet{imap.CapIMAP4rev1: {}, imap.CapIdle: {}}

func newTestServer(t *testing.T, caps imap.CapSet) string {
	t.Helper()

	memSrv := imapmemserver.New()
	user := imapmemserver.NewUser(testUser, testPass)
	if err := user.Create("INBOX", nil); err != nil {
		t.Fatal(err)
	}
	memSrv.AddUser(user)

	srv := imapserver.New(&imapserver.Options{
		NewSession: func(_ *imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return memSrv.NewSession(), nil, nil
		},
		InsecureAuth: true,
		Caps:         caps,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	return ln.Addr().String()
}

func testAccount(t *testing.T, addr string) *config.Account {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return &config.Account{
		Name:     "test",
		Server:   host,
		Port:     port,
		Username: testUser,
		Password: testPass,
		Mailbox:  config.DefaultMailbox,
		Security: config.SecurityInsecure,
		Search:   config.SearchAll,
	}
}

func appendMessage(t *testing.T, addr, subject string) {
	t.Helper()
	if err := appendRaw(addr, subject); err != nil {
		t.Fatal(err)
	}
}

func appendRaw(addr, subject string) error {
	raw := fmt.Sprintf("From: a@example.com\r\nTo: b@example.com\r\nSubject: %s\r\n\r\nbody\r\n", subject)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	c := imapclient.New(conn, nil)
	defer c.Close()
	if err := c.Login(testUser, testPass).Wait(); err != nil {
		return err
	}

	cmd := c.Append(config.DefaultMailbox, int64(len(raw)), nil)
	if _, err := cmd.Write([]byte(raw)); err != nil {
		return err
	}
	if err := cmd.Close(); err != nil {
		return err
	}
	_, err = cmd.Wait()
	return err
}

func connect(t *testing.T, acct *config.Account) *Session {
	t.Helper()
	s, err := Connect(context.Background(), acct, Options{DialTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	t.Cleanup(func() { s.Logout() })
	return s
}

func TestConnectAndSelect(t *testing.T) {
	addr := newTestServer(t, idleCaps)
	s := connect(t, testAccount(t, addr))

	if err := s.Select(context.Background(), config.DefaultMailbox); err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	uids, err := s.SearchUIDs(context.Background())
	if err != nil {
		t.Fatalf("SearchUIDs() error: %v", err)
	}
	if len(uids) != 0 {
		t.Errorf("expected empty mailbox, got %v", uids)
	}
}

func TestConnectBadCredentials(t *testing.T) {
	addr := newTestServer(t, idleCaps)
	acct := testAccount(t, addr)
	acct.Password = "wrong"

	_, err := Connect(context.Background(), acct, Options{DialTimeout: 5 * time.Second})
	if !IsAuthError(err) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if !IsConnectionError(err) {
		t.Error("auth failure should count as a connection error")
	}
}

// withoutIdle proxies to addr and strips IDLE from every capability
// listing the server sends.
func withoutIdle(t *testing.T, addr string) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			client, err := ln.Accept()
			if err != nil {
				return
			}
			upstream, err := net.Dial("tcp", addr)
			if err != nil {
				client.Close()
				continue
			}
			go func() {
				io.Copy(upstream, client)
				upstream.Close()
			}()
			go func() {
				defer client.Close()
				r := bufio.NewReader(upstream)
				for {
					line, err := r.ReadString('\n')
					if strings.Contains(line, "CAPABILITY") {
						line = strings.ReplaceAll(line, " IDLE", "")
					}
					if _, werr := io.WriteString(client, line); werr != nil || err != nil {
						return
					}
				}
			}()
		}
	}()

	return ln.Addr().String()
}

func TestConnectWithoutIdle(t *testing.T) {
	addr := withoutIdle(t, newTestServer(t, idleCaps))

	_, err := Connect(context.Background(), testAccount(t, addr), Options{DialTimeout: 5 * time.Second})
	var unsupported *UnsupportedServerError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedServerError, got %v", err)
	}
	if unsupported.Cap != imap.CapIdle {
		t.Errorf("missing cap = %s", unsupported.Cap)
	}
	if !IsConnectionError(err) || IsAuthError(err) {
		t.Errorf("misclassified: %v", err)
	}
}

func TestConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = Connect(context.Background(), testAccount(t, addr), Options{DialTimeout: time.Second})
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}

func TestSelectMissingMailbox(t *testing.T) {
	addr := newTestServer(t, idleCaps)
	s := connect(t, testAccount(t, addr))

	err := s.Select(context.Background(), "Nope")
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestSearchAndFetchHeaders(t *testing.T) {
	addr := newTestServer(t, idleCaps)
	appendMessage(t, addr, "first")
	appendMessage(t, addr, "second")

	s := connect(t, testAccount(t, addr))
	ctx := context.Background()
	if err := s.Select(ctx, config.DefaultMailbox); err != nil {
		t.Fatal(err)
	}

	uids, err := s.SearchUIDs(ctx)
	if err != nil {
		t.Fatalf("SearchUIDs() error: %v", err)
	}
	if len(uids) != 2 || uids[0] >= uids[1] {
		t.Fatalf("expected two ascending UIDs, got %v", uids)
	}

	blocks, err := s.FetchHeaders(ctx, uids)
	if err != nil {
		t.Fatalf("FetchHeaders() error: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 header blocks, got %d", len(blocks))
	}

	got := map[uint32]string{}
	for _, b := range blocks {
		subject, err := ParseSubject(b.Raw)
		if err != nil {
			t.Fatalf("ParseSubject(UID %d) error: %v", b.UID, err)
		}
		got[b.UID] = subject
	}
	if got[uids[0]] != "first" || got[uids[1]] != "second" {
		t.Errorf("subjects = %v", got)
	}

	// Headers are fetched with PEEK so an unseen search still matches.
	acct := testAccount(t, addr)
	acct.Search = config.SearchUnseen
	s2 := connect(t, acct)
	if err := s2.Select(ctx, config.DefaultMailbox); err != nil {
		t.Fatal(err)
	}
	unseen, err := s2.SearchUIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(unseen) != 2 {
		t.Errorf("expected 2 unseen UIDs, got %v", unseen)
	}
}

func TestFetchHeadersEmpty(t *testing.T) {
	addr := newTestServer(t, idleCaps)
	s := connect(t, testAccount(t, addr))
	blocks, err := s.FetchHeaders(context.Background(), nil)
	if err != nil || blocks != nil {
		t.Errorf("FetchHeaders(nil) = %v, %v", blocks, err)
	}
}

func TestIdleTimeout(t *testing.T) {
	addr := newTestServer(t, idleCaps)
	s := connect(t, testAccount(t, addr))
	ctx := context.Background()
	if err := s.Select(ctx, config.DefaultMailbox); err != nil {
		t.Fatal(err)
	}

	res, err := s.Idle(ctx, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Idle() error: %v", err)
	}
	if res.Reason != IdleTimeout {
		t.Errorf("reason = %s, want timeout", res.Reason)
	}

	// The session must be usable after DONE.
	if _, err := s.SearchUIDs(ctx); err != nil {
		t.Errorf("SearchUIDs() after idle: %v", err)
	}
}

func TestIdleInterrupted(t *testing.T) {
	addr := newTestServer(t, idleCaps)
	s := connect(t, testAccount(t, addr))
	if err := s.Select(context.Background(), config.DefaultMailbox); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	res, err := s.Idle(ctx, time.Minute)
	if err != nil {
		t.Fatalf("Idle() error: %v", err)
	}
	if res.Reason != IdleInterrupted {
		t.Errorf("reason = %s, want interrupted", res.Reason)
	}
	if time.Since(start) > 10*time.Second {
		t.Error("interrupt took too long")
	}
}

func TestIdleServerPush(t *testing.T) {
	addr := newTestServer(t, idleCaps)
	s := connect(t, testAccount(t, addr))
	ctx := context.Background()
	if err := s.Select(ctx, config.DefaultMailbox); err != nil {
		t.Fatal(err)
	}

	appendErr := make(chan error, 1)
	time.AfterFunc(200*time.Millisecond, func() { appendErr <- appendRaw(addr, "pushed") })

	res, err := s.Idle(ctx, 10*time.Second)
	if err != nil {
		t.Fatalf("Idle() error: %v", err)
	}
	if res.Reason != IdleServerPush {
		t.Fatalf("reason = %s, want server_push", res.Reason)
	}
	if res.Data != "* 1 EXISTS" {
		t.Errorf("data = %q", res.Data)
	}
	if err := <-appendErr; err != nil {
		t.Fatal(err)
	}

	uids, err := s.SearchUIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(uids) != 1 {
		t.Errorf("expected 1 UID after push, got %v", uids)
	}
}

func TestIdleReasonString(t *testing.T) {
	tests := map[IdleReason]string{
		IdleTimeout:     "timeout",
		IdleServerPush:  "server_push",
		IdleInterrupted: "interrupted",
		IdleReason(9):   "unknown",
	}
	for r, want := range tests {
		if r.String() != want {
			t.Errorf("%d.String() = %q, want %q", r, r.String(), want)
		}
	}
}

func TestClassify(t *testing.T) {
	proto := classify("select", &imap.Error{Type: imap.StatusResponseTypeNo, Text: "no such mailbox"})
	var protoErr *ProtocolError
	if !errors.As(proto, &protoErr) {
		t.Errorf("expected ProtocolError, got %T", proto)
	}

	broken := classify("fetch", errors.New("broken pipe"))
	var netErr *NetworkError
	if !errors.As(broken, &netErr) {
		t.Errorf("expected NetworkError, got %T", broken)
	}
	if !IsConnectionError(broken) || IsAuthError(broken) {
		t.Error("classification helpers disagree")
	}
	if IsConnectionError(&HeaderParseError{UID: 1, Err: errors.New("x")}) {
		t.Error("header parse errors are per message")
	}
}
