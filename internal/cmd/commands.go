package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/trove-storage/trove/internal/cmd/base"
	"github.com/trove-storage/trove/internal/cmd/commands/accounts"
	"github.com/trove-storage/trove/internal/cmd/commands/search"
	"github.com/trove-storage/trove/internal/cmd/commands/transfer"
	"github.com/trove-storage/trove/internal/cmd/commands/version"
)

// Commands is the command tree of the trove CLI.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	newBase := func() *base.Command {
		return &base.Command{UI: ui, Log: log}
	}

	Commands = map[string]cli.CommandFactory{
		"accounts": func() (cli.Command, error) {
			return &accounts.Command{Command: newBase()}, nil
		},
		"search": func() (cli.Command, error) {
			return &search.Command{Command: newBase()}, nil
		},
		"transfer": func() (cli.Command, error) {
			return &transfer.Command{Command: newBase()}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{UI: ui}, nil
		},
	}
}
