package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"imapntfy/internal/secret"
)

type EncryptPasswordCmd struct{}

func (c *EncryptPasswordCmd) Run(ctx *Context) error {
	masterKey := os.Getenv(secret.MasterKeyEnv)
	if masterKey == "" {
		return secret.ErrNoMasterKey
	}

	line, err := bufio.NewReader(ctx.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading password from stdin: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}

	sealed, err := secret.Seal(masterKey, password)
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.Stdout, sealed)
	return nil
}
