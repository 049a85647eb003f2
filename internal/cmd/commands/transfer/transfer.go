// Package transfer implements the "trove transfer" command.
package transfer

import (
	"context"
	"fmt"

	"github.com/trove-storage/trove/internal/cmd/base"
	"github.com/trove-storage/trove/pkg/fileid"
	storagetransfer "github.com/trove-storage/trove/pkg/transfer"
)

type Command struct {
	*base.Command

	flagDryRun       bool
	flagDeleteSource bool
}

func (c *Command) Synopsis() string {
	return "Copy a folder tree between storage accounts"
}

func (c *Command) Help() string {
	return `Usage: trove transfer [options] <source-folder> <dest-parent>

  Recursively copies a folder tree into another storage account. Both
  arguments are composite folder IDs. Metadata the destination backend
  cannot hold is dropped and reported as warnings.

Options:

  -config=<path>
     Path to the configuration file. Defaults to "config.hcl".

  -dry-run
     Report what would be transferred, including warnings, without
     writing anything.

  -delete-source
     Remove the source tree after a successful copy.
`
}

func (c *Command) Run(args []string) int {
	f := c.FlagSet("transfer")
	f.BoolVar(&c.flagDryRun, "dry-run", false, "")
	f.BoolVar(&c.flagDeleteSource, "delete-source", false, "")
	if err := f.Parse(args); err != nil {
		return 1
	}
	if len(f.Args()) != 2 {
		c.UI.Error("source folder and destination parent are required")
		return 1
	}

	src, err := fileid.ParseFolderID(f.Args()[0])
	if err != nil {
		c.UI.Error(fmt.Sprintf("invalid source folder: %v", err))
		return 1
	}
	dst, err := fileid.ParseFolderID(f.Args()[1])
	if err != nil {
		c.UI.Error(fmt.Sprintf("invalid destination parent: %v", err))
		return 1
	}

	ctx := context.Background()
	app, err := c.App(ctx)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer app.Close()

	result, err := app.Transfer.Transfer(ctx, src, dst, storagetransfer.Options{
		DryRun:       c.flagDryRun,
		DeleteSource: c.flagDeleteSource,
	})
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	verb := "transferred"
	if c.flagDryRun {
		verb = "would transfer"
	}
	c.UI.Output(fmt.Sprintf("%s %d files from %s", verb, result.FileCount(), result.Source))
	if !c.flagDryRun {
		c.UI.Output(fmt.Sprintf("target folder: %s", result.Target))
	}
	for _, warning := range result.AllWarnings() {
		c.UI.Warn(fmt.Sprintf("warning: %s: %s", warning.File, warning.Message))
	}
	return 0
}
