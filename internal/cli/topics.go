package cli

import (
	"fmt"

	"imapntfy/internal/config"
	"imapntfy/internal/integration/ntfy"
)

type TopicsCmd struct {
	Config string `help:"Path to the TOML config file" short:"c" required:"" type:"path"`
	Out    string `help:"Directory for the PNG files" short:"o" default:"." type:"path"`
}

func (c *TopicsCmd) Run(ctx *Context) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}

	for i := range cfg.Accounts {
		acct := &cfg.Accounts[i]
		path, err := ntfy.WriteQRCode(acct, c.Out)
		if err != nil {
			return fmt.Errorf("account %s: %w", acct.Name, err)
		}
		fmt.Fprintf(ctx.Stdout, "%s\t%s\t%s\n", acct.Name, ntfy.SubscribeURL(acct), path)
	}
	return nil
}
