// Package accounts implements the "trove accounts" command.
package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/trove-storage/trove/internal/cmd/base"
	"github.com/trove-storage/trove/pkg/storage"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "List the configured storage accounts and their capabilities"
}

func (c *Command) Help() string {
	return `Usage: trove accounts [options]

  Opens every configured storage account and prints its service,
  primary flag and capability set.

Options:

  -config=<path>
     Path to the configuration file. Defaults to "config.hcl".
`
}

var capabilityNames = []struct {
	cap  storage.Capability
	name string
}{
	{storage.CapVersions, "versions"},
	{storage.CapLocks, "locks"},
	{storage.CapRanges, "ranges"},
	{storage.CapSearch, "search"},
	{storage.CapMultiMove, "multi-move"},
	{storage.CapRestore, "restore"},
	{storage.CapTransactions, "transactions"},
	{storage.CapIgnorableVersions, "synthetic-versions"},
	{storage.CapObjectPermissions, "permissions"},
	{storage.CapNotes, "notes"},
	{storage.CapCategories, "categories"},
}

func formatCapabilities(caps storage.Capability) string {
	var names []string
	for _, entry := range capabilityNames {
		if caps&entry.cap != 0 {
			names = append(names, entry.name)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}

func (c *Command) Run(args []string) int {
	f := c.FlagSet("accounts")
	if err := f.Parse(args); err != nil {
		return 1
	}

	ctx := context.Background()
	app, err := c.App(ctx)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer app.Close()

	for _, account := range app.Registry.Accounts() {
		handle, err := app.Registry.ResolveAccount(ctx, account.Service, account.ID)
		if err != nil {
			c.UI.Error(fmt.Sprintf("%s/%s: %v", account.Service, account.ID, err))
			continue
		}
		marker := " "
		if account.Primary {
			marker = "*"
		}
		c.UI.Output(fmt.Sprintf("%s %-10s %-12s %s",
			marker, account.Service, account.ID,
			formatCapabilities(storage.CapabilitiesOf(handle))))
	}
	return 0
}
