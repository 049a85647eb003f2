// Package version implements the "trove version" command.
package version

import (
	"github.com/mitchellh/cli"

	"github.com/trove-storage/trove/internal/version"
)

type Command struct {
	UI cli.Ui
}

func (c *Command) Synopsis() string { return "Print the trove version" }

func (c *Command) Help() string { return "Usage: trove version" }

func (c *Command) Run(args []string) int {
	c.UI.Output("trove " + version.Version)
	return 0
}
