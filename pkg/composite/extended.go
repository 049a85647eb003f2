package composite

import (
	"context"
	"errors"
	"time"

	"github.com/trove-storage/trove/pkg/events"
	"github.com/trove-storage/trove/pkg/fileid"
	"github.com/trove-storage/trove/pkg/storage"
)

// ListVersions lists all versions of a file, newest first. Requires a
// backend with version support.
func (a *FileAccess) ListVersions(ctx context.Context, id fileid.FileID) ([]*storage.File, error) {
	backend, err := a.registry.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	versions, ok := backend.(storage.VersionAccess)
	if !ok {
		return nil, storage.NewError("ListVersions", storage.ErrNotSupported)
	}
	history, err := versions.ListVersions(ctx, id.File())
	if err != nil {
		return nil, err
	}
	return mangleFiles(history, id.Service(), id.Account()), nil
}

// DeleteVersions removes the given versions of a file. Versions that
// could not be removed, the current version among them, are returned
// instead of failing the batch.
func (a *FileAccess) DeleteVersions(ctx context.Context, id fileid.FileID, versionIDs []string) ([]string, error) {
	backend, err := a.registry.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	versions, ok := backend.(storage.VersionAccess)
	if !ok {
		return nil, storage.NewError("DeleteVersions", storage.ErrNotSupported)
	}

	var kept []string
	err = inTransaction(ctx, backend, func() error {
		var delErr error
		kept, delErr = versions.DeleteVersions(ctx, id.File(), versionIDs)
		return delErr
	})
	if err != nil {
		return nil, err
	}

	if len(kept) < len(versionIDs) {
		event := events.New(events.FileUpdated)
		event.Service = id.Service()
		event.Account = id.Account()
		event.FileID = id.String()
		event.FolderID = id.FolderID().String()
		a.post(ctx, event)
	}
	return kept, nil
}

// PromoteVersion makes an older version the current one.
func (a *FileAccess) PromoteVersion(ctx context.Context, id fileid.FileID, versionID string) (*storage.File, error) {
	backend, err := a.registry.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	versions, ok := backend.(storage.VersionAccess)
	if !ok {
		return nil, storage.NewError("PromoteVersion", storage.ErrNotSupported)
	}

	var promoted *storage.File
	err = inTransaction(ctx, backend, func() error {
		var promErr error
		promoted, promErr = versions.PromoteVersion(ctx, id.File(), versionID)
		return promErr
	})
	if err != nil {
		return nil, err
	}

	event := events.New(events.FileUpdated)
	event.Service = id.Service()
	event.Account = id.Account()
	event.FileID = id.String()
	event.FolderID = id.FolderID().String()
	a.post(ctx, event)

	return mangleFile(promoted, id.Service(), id.Account()), nil
}

// Lock places an exclusive write lock on a file for the given duration.
// Requires a backend with lock support.
func (a *FileAccess) Lock(ctx context.Context, id fileid.FileID, ttl time.Duration) error {
	backend, err := a.registry.Resolve(ctx, id)
	if err != nil {
		return err
	}
	locks, ok := backend.(storage.LockAccess)
	if !ok {
		return storage.NewError("Lock", storage.ErrNotSupported)
	}
	return inTransaction(ctx, backend, func() error {
		return locks.Lock(ctx, id.File(), ttl)
	})
}

// Unlock releases the lock on a file.
func (a *FileAccess) Unlock(ctx context.Context, id fileid.FileID) error {
	backend, err := a.registry.Resolve(ctx, id)
	if err != nil {
		return err
	}
	locks, ok := backend.(storage.LockAccess)
	if !ok {
		return storage.NewError("Unlock", storage.ErrNotSupported)
	}
	return inTransaction(ctx, backend, func() error {
		return locks.Unlock(ctx, id.File())
	})
}

// MoveAll moves a batch of files into the destination folder, returning
// the files that could not be moved. Within the destination account a
// backend bulk move is used when available; files from other accounts
// take the copy-then-delete path one by one.
func (a *FileAccess) MoveAll(ctx context.Context, ids []fileid.FileID, dst fileid.FolderID) ([]fileid.FileID, error) {
	var conflicting []fileid.FileID

	for _, group := range groupByAccount(ids) {
		sameAccount := group[0].Service() == dst.Service() && group[0].Account() == dst.Account()

		if sameAccount {
			backend, err := a.registry.ResolveFolder(ctx, dst)
			if err != nil {
				return conflicting, err
			}
			kept, err := a.moveWithin(ctx, backend, group, dst)
			if err != nil {
				return conflicting, err
			}
			conflicting = append(conflicting, kept...)
			continue
		}

		for _, id := range group {
			if _, err := a.Move(ctx, id, dst); err != nil {
				if storage.IsNotFound(err) {
					conflicting = append(conflicting, id)
					continue
				}
				return conflicting, err
			}
		}
	}
	return conflicting, nil
}

// moveWithin moves a same-account group, preferring the backend's bulk
// move.
func (a *FileAccess) moveWithin(ctx context.Context, backend storage.FileAccess, group []fileid.FileID, dst fileid.FolderID) ([]fileid.FileID, error) {
	local := make([]string, len(group))
	for i, id := range group {
		local[i] = id.File()
	}

	var kept []string
	var err error
	if mover, ok := backend.(storage.MultiMoveAccess); ok {
		err = inTransaction(ctx, backend, func() error {
			var moveErr error
			kept, moveErr = mover.MoveAll(ctx, local, dst.Folder())
			return moveErr
		})
	} else {
		err = inTransaction(ctx, backend, func() error {
			for _, f := range local {
				if _, moveErr := backend.Move(ctx, f, dst.Folder()); moveErr != nil {
					if errIsConflict(moveErr) {
						kept = append(kept, f)
						continue
					}
					return moveErr
				}
			}
			return nil
		})
	}
	if err != nil {
		return nil, err
	}

	keptSet := make(map[string]bool, len(kept))
	for _, k := range kept {
		keptSet[k] = true
	}
	var conflicting []fileid.FileID
	for _, id := range group {
		if keptSet[id.File()] {
			conflicting = append(conflicting, id)
			continue
		}
		event := events.New(events.FileMoved)
		event.Service = dst.Service()
		event.Account = dst.Account()
		event.FileID = dst.FileID(id.File()).String()
		event.FolderID = dst.String()
		event.Origin = id.String()
		a.post(ctx, event)
	}
	return conflicting, nil
}

// errIsConflict reports whether a per-file move failure should keep the
// file in place instead of aborting the batch.
func errIsConflict(err error) bool {
	return storage.IsNotFound(err) || errors.Is(err, storage.ErrLocked)
}

// Restore brings deleted files back from the trash of their account,
// restoring each into its origin folder when known or into defaultDest
// otherwise. The result maps every restored composite file ID to the
// folder it ended up in.
func (a *FileAccess) Restore(ctx context.Context, ids []fileid.FileID, defaultDest fileid.FolderID) (map[fileid.FileID]fileid.FolderID, error) {
	result := make(map[fileid.FileID]fileid.FolderID, len(ids))

	for _, group := range groupByAccount(ids) {
		if group[0].Service() != defaultDest.Service() || group[0].Account() != defaultDest.Account() {
			return result, storage.NewErrorf("Restore", storage.ErrInvalidID,
				"cannot restore %s into account %s/%s", group[0], defaultDest.Service(), defaultDest.Account())
		}

		backend, err := a.registry.ResolveFolder(ctx, defaultDest)
		if err != nil {
			return result, err
		}
		restorer, ok := backend.(storage.RestoreAccess)
		if !ok {
			return result, storage.NewError("Restore", storage.ErrNotSupported)
		}

		local := make([]string, len(group))
		for i, id := range group {
			local[i] = id.File()
		}

		var restored map[string]string
		err = inTransaction(ctx, backend, func() error {
			var restErr error
			restored, restErr = restorer.Restore(ctx, local, defaultDest.Folder())
			return restErr
		})
		if err != nil {
			return result, err
		}

		for _, id := range group {
			folder, ok := restored[id.File()]
			if !ok {
				continue
			}
			target := fileid.NewFolderID(id.Service(), id.Account(), folder)
			result[target.FileID(id.File())] = target

			event := events.New(events.FileCreated)
			event.Service = id.Service()
			event.Account = id.Account()
			event.FileID = target.FileID(id.File()).String()
			event.FolderID = target.String()
			event.Origin = id.String()
			a.post(ctx, event)
		}
	}
	return result, nil
}
