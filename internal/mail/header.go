package mail

import (
	"bufio"
	"bytes"
	"errors"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

var errEmptyHeader = errors.New("empty header block")

// ParseSubject reads a raw RFC 5322 header block and returns the decoded
// Subject, or "" when the message has none. Undecodable encoded-words fall
// back to the raw header value.
func ParseSubject(raw []byte) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", errEmptyHeader
	}

	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return "", err
	}

	mh := gomail.Header{Header: message.Header{Header: h}}
	subject, err := mh.Subject()
	if err != nil {
		return h.Get("Subject"), nil
	}
	return subject, nil
}
