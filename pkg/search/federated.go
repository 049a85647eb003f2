// Package search fans a metadata query out across all configured
// storage accounts and merges the per-backend results into one ordered
// list. The primary account is authoritative: the federator always
// waits for it. Results from secondary accounts are only waited for up
// to a bound, and a failing secondary account degrades to an empty
// result instead of failing the whole search.
package search

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/trove-storage/trove/pkg/fileid"
	"github.com/trove-storage/trove/pkg/storage"
	"github.com/trove-storage/trove/pkg/storage/registry"
)

// DefaultSecondaryWait bounds how long the federator waits for results
// from non-primary accounts once the query is running.
const DefaultSecondaryWait = 5 * time.Second

// Query is a federated metadata search. Folder scopes carry composite
// folder IDs; an empty scope searches every account.
type Query struct {
	Pattern string
	Folders []fileid.FolderID
	Sort    storage.SortField
	Order   storage.SortOrder

	// Global pagination window over the merged results.
	Offset int
	Limit  int
}

// Federator runs metadata searches across all registered accounts.
type Federator struct {
	registry      *registry.Registry
	logger        hclog.Logger
	secondaryWait time.Duration
}

// Option customizes a Federator.
type Option func(*Federator)

// WithSecondaryWait overrides the bounded wait for non-primary
// accounts.
func WithSecondaryWait(d time.Duration) Option {
	return func(f *Federator) { f.secondaryWait = d }
}

// NewFederator creates a federated searcher over the given registry.
func NewFederator(reg *registry.Registry, logger hclog.Logger, opts ...Option) *Federator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	f := &Federator{
		registry:      reg,
		logger:        logger.Named("federated-search"),
		secondaryWait: DefaultSecondaryWait,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type backendResult struct {
	account registry.Account
	primary bool
	files   []*storage.File
	err     error
}

// Search runs the query against every account in scope and returns the
// merged, globally paginated result list. Identifiers in the results
// are composite. A query whose scope resolves to a single account
// delegates directly: no fan-out, no bounded wait, and that backend's
// errors surface instead of degrading to partial results.
func (f *Federator) Search(ctx context.Context, q *Query) ([]*storage.File, error) {
	scopes, err := f.scopes(q)
	if err != nil {
		return nil, err
	}
	if len(scopes) == 0 {
		return nil, nil
	}
	if len(scopes) == 1 {
		return f.searchDirect(ctx, scopes[0], q)
	}

	// Backends cannot apply the global window themselves; they each
	// return enough rows to fill it.
	perBackend := &storage.Query{
		Pattern: q.Pattern,
		Sort:    q.Sort,
		Order:   q.Order,
	}
	if q.Limit > 0 {
		perBackend.Limit = q.Offset + q.Limit
	}

	results := make(chan backendResult, len(scopes))
	launched := 0
	for _, scope := range scopes {
		account := scope.account
		backend, err := f.registry.ResolveAccount(ctx, account.Service, account.ID)
		if err != nil {
			f.logger.Warn("skipping unresolvable account in search",
				"service", account.Service, "account", account.ID, "error", err)
			continue
		}
		searcher, ok := backend.(storage.SearchAccess)
		if !ok {
			f.logger.Debug("account has no native search, skipping",
				"service", account.Service, "account", account.ID)
			continue
		}

		bq := *perBackend
		bq.Folders = scope.folders
		launched++
		go func(account registry.Account, searcher storage.SearchAccess, bq storage.Query) {
			files, err := searcher.Search(ctx, &bq)
			results <- backendResult{
				account: account,
				primary: f.registry.IsPrimary(account.Service, account.ID),
				files:   files,
				err:     err,
			}
		}(account, searcher, bq)
	}

	lists, err := f.collect(ctx, results, launched)
	if err != nil {
		return nil, err
	}

	merged := merge(lists, q.Sort, q.Order)
	return paginate(merged, q.Offset, q.Limit), nil
}

// searchDirect delegates a single-account query straight to the owning
// backend. The degradation rules of the fan-out path do not apply: a
// missing search capability and backend failures are the caller's
// problem, and pagination is pushed down.
func (f *Federator) searchDirect(ctx context.Context, scope accountScope, q *Query) ([]*storage.File, error) {
	account := scope.account
	backend, err := f.registry.ResolveAccount(ctx, account.Service, account.ID)
	if err != nil {
		return nil, err
	}
	searcher, ok := backend.(storage.SearchAccess)
	if !ok {
		return nil, storage.NewErrorf("Search", storage.ErrNotSupported,
			"account %s/%s has no native search", account.Service, account.ID)
	}

	files, err := searcher.Search(ctx, &storage.Query{
		Pattern: q.Pattern,
		Folders: scope.folders,
		Sort:    q.Sort,
		Order:   q.Order,
		Offset:  q.Offset,
		Limit:   q.Limit,
	})
	if err != nil {
		return nil, err
	}
	return mangleResults(files, account), nil
}

// collect drains per-backend results as they complete. The primary
// account is always waited for; secondary accounts only until the
// bounded wait expires. Late or failed secondaries contribute nothing.
func (f *Federator) collect(ctx context.Context, results <-chan backendResult, pending int) ([][]*storage.File, error) {
	var lists [][]*storage.File

	timer := time.NewTimer(f.secondaryWait)
	defer timer.Stop()
	expired := false
	primaryDone := false

	handle := func(r backendResult) {
		if r.err != nil {
			f.logger.Warn("search failed on account, returning partial results",
				"service", r.account.Service,
				"account", r.account.ID,
				"error", r.err)
			return
		}
		if len(r.files) > 0 {
			lists = append(lists, mangleResults(r.files, r.account))
		}
	}

	for pending > 0 {
		// Once the bound expired only the primary is worth waiting for.
		if expired && primaryDone {
			break
		}

		select {
		case r := <-results:
			pending--
			if r.primary {
				primaryDone = true
			}
			if expired && !r.primary {
				f.logger.Debug("dropping late search results",
					"service", r.account.Service, "account", r.account.ID)
				continue
			}
			handle(r)

		case <-timer.C:
			expired = true
			if _, hasPrimary := f.registry.Primary(); !hasPrimary {
				primaryDone = true
			}

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return lists, nil
}

// accountScope is one account to query with its backend-local folder
// restriction. No folders means unrestricted.
type accountScope struct {
	account registry.Account
	folders []string
}

// scopes resolves the folder scope to the set of accounts to query,
// mapped to their backend-local folder IDs. An empty scope covers all
// accounts unrestricted.
func (f *Federator) scopes(q *Query) ([]accountScope, error) {
	if len(q.Folders) == 0 {
		accounts := f.registry.Accounts()
		out := make([]accountScope, len(accounts))
		for i, account := range accounts {
			out[i] = accountScope{account: account}
		}
		return out, nil
	}

	byKey := make(map[string]int)
	var out []accountScope
	for _, folder := range q.Folders {
		key := folder.Service() + "/" + folder.Account()
		i, ok := byKey[key]
		if !ok {
			account, found := f.registry.Account(folder.Service(), folder.Account())
			if !found {
				return nil, storage.NewErrorf("Search", storage.ErrAccountNotFound,
					"%s/%s", folder.Service(), folder.Account())
			}
			i = len(out)
			byKey[key] = i
			out = append(out, accountScope{account: account})
		}
		out[i].folders = append(out[i].folders, folder.Folder())
	}
	return out, nil
}

// mangleResults rewrites backend-local identifiers into composite form.
func mangleResults(files []*storage.File, account registry.Account) []*storage.File {
	out := make([]*storage.File, len(files))
	for i, f := range files {
		dup := f.Copy()
		dup.ID = fileid.NewFileID(account.Service, account.ID, f.Folder, f.ID).String()
		dup.Folder = fileid.NewFolderID(account.Service, account.ID, f.Folder).String()
		out[i] = dup
	}
	return out
}
