// Package registry resolves composite identifiers to backend handles.
// Storage services register a factory; configured accounts are opened
// lazily and cached for reuse.
package registry

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/trove-storage/trove/pkg/fileid"
	"github.com/trove-storage/trove/pkg/storage"
)

// Account describes one configured backend account. Settings carry
// service-specific configuration and are decoded by the service factory.
type Account struct {
	ID       string
	Service  string
	Primary  bool
	Settings map[string]string
}

// key returns the registry key "service/account".
func (a Account) key() string {
	return a.Service + "/" + a.ID
}

// Service constructs backend handles for accounts of one storage type.
type Service interface {
	// ID returns the service identifier used in composite IDs.
	ID() string

	// Open creates a backend handle for the given account.
	Open(ctx context.Context, account Account, logger hclog.Logger) (storage.FileAccess, error)
}

// Registry maps composite identifiers to backend handles.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Service
	accounts map[string]Account
	handles  map[string]storage.FileAccess
	primary  string // key of the primary account
	logger   hclog.Logger
}

// New creates an empty registry.
func New(logger hclog.Logger) *Registry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Registry{
		services: make(map[string]Service),
		accounts: make(map[string]Account),
		handles:  make(map[string]storage.FileAccess),
		logger:   logger.Named("storage-registry"),
	}
}

// RegisterService registers a storage service factory.
func (r *Registry) RegisterService(s Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[s.ID()]; exists {
		return fmt.Errorf("service %s already registered", s.ID())
	}
	r.services[s.ID()] = s

	r.logger.Debug("service registered", "service", s.ID())
	return nil
}

// AddAccount registers a configured account. The backing service must be
// registered first. The first account flagged primary wins.
func (r *Registry) AddAccount(account Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[account.Service]; !ok {
		return fmt.Errorf("account %s references unknown service %s", account.ID, account.Service)
	}
	key := account.key()
	if _, exists := r.accounts[key]; exists {
		return fmt.Errorf("account %s already registered", key)
	}

	r.accounts[key] = account
	if account.Primary && r.primary == "" {
		r.primary = key
	}

	r.logger.Info("storage account registered",
		"service", account.Service,
		"account", account.ID,
		"primary", account.Primary)
	return nil
}

// Resolve returns the backend handle responsible for a composite file ID.
func (r *Registry) Resolve(ctx context.Context, id fileid.FileID) (storage.FileAccess, error) {
	return r.ResolveAccount(ctx, id.Service(), id.Account())
}

// ResolveFolder returns the backend handle responsible for a composite
// folder ID.
func (r *Registry) ResolveFolder(ctx context.Context, id fileid.FolderID) (storage.FileAccess, error) {
	return r.ResolveAccount(ctx, id.Service(), id.Account())
}

// ResolveAccount returns the backend handle for a service/account pair,
// opening it on first use.
func (r *Registry) ResolveAccount(ctx context.Context, service, account string) (storage.FileAccess, error) {
	key := service + "/" + account

	r.mu.RLock()
	if handle, ok := r.handles[key]; ok {
		r.mu.RUnlock()
		return handle, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock.
	if handle, ok := r.handles[key]; ok {
		return handle, nil
	}

	def, ok := r.accounts[key]
	if !ok {
		return nil, storage.NewErrorf("Resolve", storage.ErrAccountNotFound, "%s", key)
	}
	svc := r.services[def.Service]

	handle, err := svc.Open(ctx, def, r.logger)
	if err != nil {
		return nil, fmt.Errorf("opening account %s: %w", key, err)
	}
	r.handles[key] = handle

	r.logger.Debug("storage account opened", "service", service, "account", account)
	return handle, nil
}

// Accounts returns all configured accounts.
func (r *Registry) Accounts() []Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	return out
}

// Account looks up a configured account by service and ID.
func (r *Registry) Account(service, account string) (Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[service+"/"+account]
	return a, ok
}

// Primary returns the primary account, when one is configured. The
// primary account is exempt from the bounded wait during federated
// search fan-out.
func (r *Registry) Primary() (Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.primary == "" {
		return Account{}, false
	}
	return r.accounts[r.primary], true
}

// IsPrimary reports whether the service/account pair is the primary
// account.
func (r *Registry) IsPrimary(service, account string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primary != "" && r.primary == service+"/"+account
}

// Close closes all opened handles that implement io.Closer.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for key, handle := range r.handles {
		if closer, ok := handle.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("closing %s: %w", key, err)
			}
		}
		delete(r.handles, key)
	}
	return firstErr
}
