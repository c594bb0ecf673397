package ntfy

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"imapntfy/internal/config"

	"github.com/yeqown/go-qrcode/v2"
	"github.com/yeqown/go-qrcode/writer/standard"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SubscribeURL is the address a phone app subscribes to for the account.
func SubscribeURL(acct *config.Account) string {
	return acct.NtfyURL + "/" + acct.NtfyTopic
}

// WriteQRCode renders the account's subscribe URL as a PNG in dir and
// returns the file path.
func WriteQRCode(acct *config.Account, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	qrc, err := qrcode.New(SubscribeURL(acct))
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	path := filepath.Join(dir, unsafeFileChars.ReplaceAllString(acct.Name, "_")+".png")
	w, err := standard.New(path, standard.WithBuiltinImageEncoder(standard.PNG_FORMAT))
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := qrc.Save(w); err != nil {
		return "", fmt.Errorf("failed to write QR code: %w", err)
	}
	return path, nil
}
