package composite

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/trove-storage/trove/pkg/storage"
)

// inTransaction runs fn inside a backend-local transaction when the
// backend supports one: begin, fn, commit, rolling back when fn fails.
// Transactions are scoped to exactly one backend handle; cross-backend
// operations issue one transaction per side and are not atomic.
func inTransaction(ctx context.Context, backend storage.FileAccess, fn func() error) error {
	tx, ok := backend.(storage.Transactional)
	if !ok {
		return fn()
	}

	if err := tx.StartTransaction(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = multierror.Append(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
