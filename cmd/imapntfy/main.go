package main

import (
	"fmt"
	"os"

	"imapntfy/internal/cli"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

var (
	version = "dev"
)

func init() {
	_ = godotenv.Load() //nolint:errcheck
}

func main() {
	var c cli.CLI

	parser := kong.Must(&c,
		kong.Name("imapntfy"),
		kong.Description("Push notifications for new mail over IMAP IDLE"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	err = ctx.Run(&cli.Context{
		Globals: &c.Globals,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Version: version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
