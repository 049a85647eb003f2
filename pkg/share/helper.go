package share

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/trove-storage/trove/pkg/storage"
)

// Provisioner creates and revokes external share recipients. Guest
// entries carry an email address as entity; anonymous link entries get
// their share token assigned by the provisioner.
type Provisioner interface {
	// ProvisionGuest ensures the external recipient exists and returns the
	// permission entry to persist, with the resolved entity filled in.
	ProvisionGuest(ctx context.Context, fileID string, p storage.Permission) (storage.Permission, error)

	// RevokeGuest removes an external recipient's access to the file.
	RevokeGuest(ctx context.Context, fileID string, p storage.Permission) error
}

// Helper validates permission lists and reconciles changes with the
// provisioner. Revoked guests are cleaned up asynchronously with
// exponential backoff so a slow or briefly unavailable provisioner
// never blocks a save.
type Helper struct {
	provisioner Provisioner
	logger      hclog.Logger

	// cleanupTimeout bounds the background retry loop per revoked guest.
	cleanupTimeout time.Duration

	wg sync.WaitGroup
}

// Option customizes a Helper.
type Option func(*Helper)

// WithCleanupTimeout bounds how long a background guest cleanup keeps
// retrying before giving up.
func WithCleanupTimeout(d time.Duration) Option {
	return func(h *Helper) { h.cleanupTimeout = d }
}

// NopProvisioner accepts every guest without provisioning anything.
// It serves deployments whose backends manage external recipients
// themselves.
type NopProvisioner struct{}

func (NopProvisioner) ProvisionGuest(_ context.Context, _ string, p storage.Permission) (storage.Permission, error) {
	return p, nil
}

func (NopProvisioner) RevokeGuest(context.Context, string, storage.Permission) error {
	return nil
}

// NewHelper creates a share helper around a provisioner.
func NewHelper(p Provisioner, logger hclog.Logger, opts ...Option) *Helper {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	h := &Helper{
		provisioner:    p,
		logger:         logger.Named("share-helper"),
		cleanupTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Validate checks an incoming permission list: every entry must be
// well-formed, and at most one anonymous link may exist per file.
// Anonymous links are read-only.
func Validate(perms []storage.Permission) error {
	var result *multierror.Error
	anonymous := 0

	for i, p := range perms {
		if err := validatePermission(p); err != nil {
			result = multierror.Append(result, fmt.Errorf("permission %d: %w", i, err))
		}
		if p.Type == storage.EntityAnonymous {
			anonymous++
		}
	}
	if anonymous > 1 {
		result = multierror.Append(result, errors.New("at most one anonymous link per file"))
	}
	return result.ErrorOrNil()
}

func validatePermission(p storage.Permission) error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Type, validation.Required, validation.In(
			storage.EntityUser, storage.EntityGroup, storage.EntityGuest, storage.EntityAnonymous)),
		validation.Field(&p.Entity,
			validation.Required.When(p.Type == storage.EntityUser || p.Type == storage.EntityGroup),
			validation.When(p.Type == storage.EntityGuest, validation.Required, is.EmailFormat)),
		validation.Field(&p.Rights, validation.Required, validation.By(func(any) error {
			if p.Type == storage.EntityAnonymous && p.Rights&(storage.RightWrite|storage.RightDelete) != 0 {
				return errors.New("anonymous links are read-only")
			}
			return nil
		})),
		validation.Field(&p.Password, validation.By(func(any) error {
			if p.Password != "" && p.Type != storage.EntityAnonymous {
				return errors.New("passwords apply to anonymous links only")
			}
			return nil
		})),
	)
}

// Reconcile applies a permission change for a file: added external
// recipients are provisioned synchronously, removed ones are revoked in
// the background. Internal user and group entries pass through
// untouched. Returns the computed diff.
func (h *Helper) Reconcile(ctx context.Context, fileID string, old, new []storage.Permission) (*ComparedPermissions, error) {
	diff := Compare(old, new)
	if !diff.HasChanges() {
		return diff, nil
	}

	var result *multierror.Error
	for _, p := range diff.AddedGuests() {
		if _, err := h.provisioner.ProvisionGuest(ctx, fileID, p); err != nil {
			result = multierror.Append(result, fmt.Errorf("provision %s %q: %w", p.Type, p.Entity, err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return diff, err
	}

	for _, p := range diff.RemovedGuests() {
		h.scheduleCleanup(fileID, p)
	}
	return diff, nil
}

// scheduleCleanup revokes one removed guest in the background, retrying
// with exponential backoff until the cleanup timeout elapses.
func (h *Helper) scheduleCleanup(fileID string, p storage.Permission) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), h.cleanupTimeout)
		defer cancel()

		policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
		err := backoff.Retry(func() error {
			return h.provisioner.RevokeGuest(ctx, fileID, p)
		}, policy)
		if err != nil {
			h.logger.Error("failed to revoke guest access",
				"file_id", fileID,
				"entity", p.Entity,
				"type", p.Type,
				"error", err)
			return
		}
		h.logger.Debug("revoked guest access",
			"file_id", fileID,
			"entity", p.Entity)
	}()
}

// Wait blocks until all scheduled background cleanups finish. Intended
// for shutdown and tests.
func (h *Helper) Wait() {
	h.wg.Wait()
}
