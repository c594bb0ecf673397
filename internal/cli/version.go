package cli

import "fmt"

type VersionCmd struct{}

func (c *VersionCmd) Run(ctx *Context) error {
	fmt.Fprintf(ctx.Stdout, "imapntfy %s\n", ctx.Version)
	return nil
}
