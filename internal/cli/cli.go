package cli

import (
	"io"
)

type Globals struct {
	Verbose bool `help:"Enable debug logging" short:"v" env:"VERBOSE_LOGGING"`
}

type CLI struct {
	Globals

	Watch           WatchCmd           `cmd:"" default:"withargs" help:"Watch the configured mailboxes (default)"`
	Topics          TopicsCmd          `cmd:"" help:"Write a QR code per account for subscribing to its ntfy topic"`
	EncryptPassword EncryptPasswordCmd `cmd:"" help:"Seal a password read from stdin for use in the config file"`
	Version         VersionCmd         `cmd:"" help:"Show version information"`
}

// Context is bound into every command's Run method.
type Context struct {
	Globals *Globals
	Stdin   io.Reader
	Stdout  io.Writer
	Version string
}
