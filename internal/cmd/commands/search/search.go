// Package search implements the "trove search" command.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/trove-storage/trove/internal/cmd/base"
	"github.com/trove-storage/trove/pkg/fileid"
	fedsearch "github.com/trove-storage/trove/pkg/search"
	"github.com/trove-storage/trove/pkg/storage"
)

type Command struct {
	*base.Command

	flagFolders stringList
	flagSort    string
	flagOrder   string
	flagOffset  int
	flagLimit   int
}

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func (c *Command) Synopsis() string {
	return "Search file metadata across all storage accounts"
}

func (c *Command) Help() string {
	return `Usage: trove search [options] <pattern>

  Runs a federated metadata search. The primary account is always
  waited for; slower secondary accounts are dropped after the bounded
  wait and reported as partial results.

Options:

  -config=<path>
     Path to the configuration file. Defaults to "config.hcl".

  -folder=<composite-id>
     Restrict the search to a folder. May be repeated.

  -sort=<name|modified|created|size>
     Sort field. Defaults to name.

  -order=<asc|desc>
     Sort order. Defaults to asc.

  -offset=<n>, -limit=<n>
     Pagination window over the merged results.
`
}

func (c *Command) Run(args []string) int {
	f := c.FlagSet("search")
	f.Var(&c.flagFolders, "folder", "")
	f.StringVar(&c.flagSort, "sort", string(storage.SortByName), "")
	f.StringVar(&c.flagOrder, "order", string(storage.OrderAscending), "")
	f.IntVar(&c.flagOffset, "offset", 0, "")
	f.IntVar(&c.flagLimit, "limit", 0, "")
	if err := f.Parse(args); err != nil {
		return 1
	}
	if len(f.Args()) != 1 {
		c.UI.Error("exactly one search pattern is required")
		return 1
	}

	folders := make([]fileid.FolderID, 0, len(c.flagFolders))
	for _, raw := range c.flagFolders {
		id, err := fileid.ParseFolderID(raw)
		if err != nil {
			c.UI.Error(fmt.Sprintf("invalid folder %q: %v", raw, err))
			return 1
		}
		folders = append(folders, id)
	}

	ctx := context.Background()
	app, err := c.App(ctx)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer app.Close()

	files, err := app.Searcher.Search(ctx, &fedsearch.Query{
		Pattern: f.Args()[0],
		Folders: folders,
		Sort:    storage.SortField(c.flagSort),
		Order:   storage.SortOrder(c.flagOrder),
		Offset:  c.flagOffset,
		Limit:   c.flagLimit,
	})
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	if len(files) == 0 {
		c.UI.Output("no matches")
		return 0
	}
	for _, file := range files {
		c.UI.Output(fmt.Sprintf("%-40s %10d  %s  %s",
			file.Name, file.Size,
			file.Modified.Format("2006-01-02 15:04"),
			file.ID))
	}
	return 0
}
