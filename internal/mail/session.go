package mail

import (
	"context"
	"errors"

	"imapntfy/internal/config"

	"github.com/emersion/go-imap/v2"
)

// HeaderBlock is the raw header section of one message.
type HeaderBlock struct {
	UID uint32
	Raw []byte
}

func isStatusError(err error) bool {
	var imapErr *imap.Error
	return errors.As(err, &imapErr)
}

// Select opens the mailbox read-only so fetching headers never changes flags.
func (s *Session) Select(_ context.Context, mailbox string) error {
	if _, err := s.client.Select(mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return classify("select "+mailbox, err)
	}
	return nil
}

// SearchUIDs returns the UIDs matching the account's search mode, ascending.
func (s *Session) SearchUIDs(_ context.Context) ([]uint32, error) {
	criteria := &imap.SearchCriteria{}
	if s.account.Search == config.SearchUnseen {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, classify("uid search", err)
	}

	all := data.AllUIDs()
	uids := make([]uint32, 0, len(all))
	for _, uid := range all {
		uids = append(uids, uint32(uid))
	}
	return uids, nil
}

// FetchHeaders fetches the header section of the given UIDs without
// setting \Seen. Messages expunged in the meantime are silently absent.
func (s *Session) FetchHeaders(_ context.Context, uids []uint32) ([]HeaderBlock, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	set := make([]imap.UID, 0, len(uids))
	for _, uid := range uids {
		set = append(set, imap.UID(uid))
	}

	section := &imap.FetchItemBodySection{Specifier: imap.PartSpecifierHeader, Peek: true}
	msgs, err := s.client.Fetch(imap.UIDSetNum(set...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, classify("uid fetch", err)
	}

	blocks := make([]HeaderBlock, 0, len(msgs))
	for _, msg := range msgs {
		blocks = append(blocks, HeaderBlock{
			UID: uint32(msg.UID),
			Raw: msg.FindBodySection(section),
		})
	}
	return blocks, nil
}

// Logout ends the session and closes the connection. It is safe to call on
// a connection that is already broken.
func (s *Session) Logout() error {
	logoutErr := s.client.Logout().Wait()
	if err := s.client.Close(); err != nil {
		s.logger.Debug("Closing connection failed", "error", err)
	}
	if logoutErr != nil {
		return classify("logout", logoutErr)
	}
	return nil
}
