package composite

import (
	"context"
	"fmt"
	"io"

	"github.com/trove-storage/trove/pkg/events"
	"github.com/trove-storage/trove/pkg/fileid"
	"github.com/trove-storage/trove/pkg/share"
	"github.com/trove-storage/trove/pkg/storage"
)

// SaveDocument writes metadata and content. A file with an empty ID is
// created inside folder; a file carrying a composite ID gets a new
// version. Object permission changes are validated up front and
// reconciled with the sharing service after the backend commit.
func (a *FileAccess) SaveDocument(ctx context.Context, folder fileid.FolderID, file *storage.File, content io.Reader) (*storage.File, error) {
	if file.Permissions != nil {
		if err := share.Validate(file.Permissions); err != nil {
			return nil, err
		}
	}

	var (
		id       fileid.FileID
		local    *storage.File
		oldPerms []storage.Permission
		created  bool
		err      error
	)

	if file.ID == "" {
		created = true
		local = file.Copy()
		local.Folder = folder.Folder()
		id = folder.FileID("")
	} else {
		id, local, err = demangleFile("SaveDocument", file)
		if err != nil {
			return nil, err
		}
	}

	backend, err := a.registry.ResolveAccount(ctx, id.Service(), id.Account())
	if err != nil {
		return nil, err
	}

	if !created && a.shares != nil && file.Permissions != nil {
		old, err := backend.GetMetadata(ctx, id.File(), storage.CurrentVersion)
		if err != nil {
			return nil, err
		}
		oldPerms = old.Permissions
	}

	// Synthetic version identifiers never round-trip into saves.
	if storage.Supports(backend, storage.CapIgnorableVersions) {
		local.Version = storage.CurrentVersion
	}

	var saved *storage.File
	err = inTransaction(ctx, backend, func() error {
		var saveErr error
		saved, saveErr = backend.SaveDocument(ctx, local, content)
		return saveErr
	})
	if err != nil {
		return nil, err
	}

	result := mangleFile(saved, id.Service(), id.Account())

	eventType := events.FileUpdated
	if created {
		eventType = events.FileCreated
	}
	event := events.New(eventType)
	event.Service = id.Service()
	event.Account = id.Account()
	event.FileID = result.ID
	event.FolderID = result.Folder
	a.post(ctx, event)

	if a.shares != nil && file.Permissions != nil {
		if _, err := a.shares.Reconcile(ctx, result.ID, oldPerms, saved.Permissions); err != nil {
			return result, fmt.Errorf("document saved but share reconciliation failed: %w", err)
		}
	}
	return result, nil
}

// SaveMetadata updates the fields listed in modified on a file carrying
// a composite ID.
func (a *FileAccess) SaveMetadata(ctx context.Context, file *storage.File, modified []storage.Field) (*storage.File, error) {
	id, local, err := demangleFile("SaveMetadata", file)
	if err != nil {
		return nil, err
	}

	touchesPermissions := len(modified) == 0
	for _, f := range modified {
		if f == storage.FieldPermissions {
			touchesPermissions = true
		}
	}
	if touchesPermissions && file.Permissions != nil {
		if err := share.Validate(file.Permissions); err != nil {
			return nil, err
		}
	}

	backend, err := a.registry.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	var oldPerms []storage.Permission
	if a.shares != nil && touchesPermissions {
		old, err := backend.GetMetadata(ctx, id.File(), storage.CurrentVersion)
		if err != nil {
			return nil, err
		}
		oldPerms = old.Permissions
	}

	if storage.Supports(backend, storage.CapIgnorableVersions) {
		local.Version = storage.CurrentVersion
	}

	var saved *storage.File
	err = inTransaction(ctx, backend, func() error {
		var saveErr error
		saved, saveErr = backend.SaveMetadata(ctx, local, modified)
		return saveErr
	})
	if err != nil {
		return nil, err
	}

	result := mangleFile(saved, id.Service(), id.Account())

	event := events.New(events.FileUpdated)
	event.Service = id.Service()
	event.Account = id.Account()
	event.FileID = result.ID
	event.FolderID = result.Folder
	a.post(ctx, event)

	if a.shares != nil && touchesPermissions {
		if _, err := a.shares.Reconcile(ctx, result.ID, oldPerms, saved.Permissions); err != nil {
			return result, fmt.Errorf("metadata saved but share reconciliation failed: %w", err)
		}
	}
	return result, nil
}

// Delete removes the given files. Files that could not be deleted are
// returned as still-conflicting composite IDs instead of failing the
// batch. Each involved account is processed in its own transaction.
func (a *FileAccess) Delete(ctx context.Context, ids []fileid.FileID, hardDelete bool) ([]fileid.FileID, error) {
	var conflicting []fileid.FileID

	for _, group := range groupByAccount(ids) {
		backend, err := a.registry.Resolve(ctx, group[0])
		if err != nil {
			return conflicting, err
		}

		local := make([]string, len(group))
		for i, id := range group {
			local[i] = id.File()
		}

		var kept []string
		err = inTransaction(ctx, backend, func() error {
			var delErr error
			kept, delErr = backend.Delete(ctx, local, hardDelete)
			return delErr
		})
		if err != nil {
			return conflicting, err
		}

		keptSet := make(map[string]bool, len(kept))
		for _, k := range kept {
			keptSet[k] = true
		}
		for _, id := range group {
			if keptSet[id.File()] {
				conflicting = append(conflicting, id)
				continue
			}
			event := events.New(events.FileDeleted)
			event.Service = id.Service()
			event.Account = id.Account()
			event.FileID = id.String()
			event.FolderID = id.FolderID().String()
			a.post(ctx, event)
		}
	}
	return conflicting, nil
}

// Copy copies a file (at an optional version) into the destination
// folder, across backends when necessary, and returns the new composite
// ID.
func (a *FileAccess) Copy(ctx context.Context, src fileid.FileID, version string, dst fileid.FolderID) (fileid.FileID, error) {
	srcBackend, err := a.registry.Resolve(ctx, src)
	if err != nil {
		return fileid.FileID{}, err
	}

	var newLocal string
	if src.FolderID().SameAccount(dst) {
		err = inTransaction(ctx, srcBackend, func() error {
			var copyErr error
			newLocal, copyErr = srcBackend.Copy(ctx, src.File(), version, dst.Folder())
			return copyErr
		})
	} else {
		var dstBackend storage.FileAccess
		dstBackend, err = a.registry.ResolveFolder(ctx, dst)
		if err != nil {
			return fileid.FileID{}, err
		}
		newLocal, err = a.copyAcross(ctx, srcBackend, src, version, dstBackend, dst)
	}
	if err != nil {
		return fileid.FileID{}, err
	}

	newID := dst.FileID(newLocal)
	event := events.New(events.FileCopied)
	event.Service = dst.Service()
	event.Account = dst.Account()
	event.FileID = newID.String()
	event.FolderID = dst.String()
	event.Origin = src.String()
	a.post(ctx, event)

	return newID, nil
}

// Move moves a file into the destination folder. Across accounts this
// degrades to sequential save-then-delete and is not atomic.
func (a *FileAccess) Move(ctx context.Context, src fileid.FileID, dst fileid.FolderID) (fileid.FileID, error) {
	srcBackend, err := a.registry.Resolve(ctx, src)
	if err != nil {
		return fileid.FileID{}, err
	}

	var newID fileid.FileID
	if src.FolderID().SameAccount(dst) {
		var newLocal string
		err = inTransaction(ctx, srcBackend, func() error {
			var moveErr error
			newLocal, moveErr = srcBackend.Move(ctx, src.File(), dst.Folder())
			return moveErr
		})
		if err != nil {
			return fileid.FileID{}, err
		}
		newID = dst.FileID(newLocal)
	} else {
		dstBackend, err := a.registry.ResolveFolder(ctx, dst)
		if err != nil {
			return fileid.FileID{}, err
		}
		newLocal, err := a.copyAcross(ctx, srcBackend, src, storage.CurrentVersion, dstBackend, dst)
		if err != nil {
			return fileid.FileID{}, err
		}
		err = inTransaction(ctx, srcBackend, func() error {
			_, delErr := srcBackend.Delete(ctx, []string{src.File()}, true)
			return delErr
		})
		if err != nil {
			return fileid.FileID{}, fmt.Errorf("file copied to %s but source delete failed: %w", dst, err)
		}
		newID = dst.FileID(newLocal)
	}

	event := events.New(events.FileMoved)
	event.Service = dst.Service()
	event.Account = dst.Account()
	event.FileID = newID.String()
	event.FolderID = dst.String()
	event.Origin = src.String()
	a.post(ctx, event)

	return newID, nil
}

// CreateFolder creates a folder below parent and returns its composite
// ID.
func (a *FileAccess) CreateFolder(ctx context.Context, parent fileid.FolderID, name string) (fileid.FolderID, error) {
	backend, err := a.registry.ResolveFolder(ctx, parent)
	if err != nil {
		return fileid.FolderID{}, err
	}

	var local string
	err = inTransaction(ctx, backend, func() error {
		var createErr error
		local, createErr = backend.CreateFolder(ctx, parent.Folder(), name)
		return createErr
	})
	if err != nil {
		return fileid.FolderID{}, err
	}

	newID := fileid.NewFolderID(parent.Service(), parent.Account(), local)
	event := events.New(events.FolderCreated)
	event.Service = parent.Service()
	event.Account = parent.Account()
	event.FolderID = newID.String()
	a.post(ctx, event)

	return newID, nil
}

// DeleteFolder removes a folder, failing with ErrFolderNotEmpty unless
// recursive is set.
func (a *FileAccess) DeleteFolder(ctx context.Context, id fileid.FolderID, recursive bool) error {
	backend, err := a.registry.ResolveFolder(ctx, id)
	if err != nil {
		return err
	}

	err = inTransaction(ctx, backend, func() error {
		return backend.DeleteFolder(ctx, id.Folder(), recursive)
	})
	if err != nil {
		return err
	}

	event := events.New(events.FolderDeleted)
	event.Service = id.Service()
	event.Account = id.Account()
	event.FolderID = id.String()
	a.post(ctx, event)
	return nil
}

// copyAcross copies a file between two backend accounts. When both ends
// retain versions and the source versions are not synthetic, the whole
// history is replayed oldest-first; otherwise only the requested
// version's content travels. Metadata the destination cannot persist is
// dropped.
func (a *FileAccess) copyAcross(ctx context.Context, src storage.FileAccess, srcID fileid.FileID, version string, dst storage.FileAccess, dstFolder fileid.FolderID) (string, error) {
	meta, err := src.GetMetadata(ctx, srcID.File(), version)
	if err != nil {
		return "", err
	}

	srcVersions, srcVersioned := src.(storage.VersionAccess)
	replayHistory := srcVersioned &&
		storage.Supports(dst, storage.CapVersions) &&
		!storage.Supports(src, storage.CapIgnorableVersions) &&
		version == storage.CurrentVersion

	dstCaps := storage.CapabilitiesOf(dst)

	var newLocal string
	err = inTransaction(ctx, dst, func() error {
		if !replayHistory {
			content, err := src.GetDocument(ctx, srcID.File(), version)
			if err != nil {
				return err
			}
			defer content.Close()

			template := adaptForBackend(meta, dstCaps)
			template.ID = ""
			template.Folder = dstFolder.Folder()
			template.Version = storage.CurrentVersion

			saved, err := dst.SaveDocument(ctx, template, content)
			if err != nil {
				return err
			}
			newLocal = saved.ID
			return nil
		}

		history, err := srcVersions.ListVersions(ctx, srcID.File())
		if err != nil {
			return err
		}
		// ListVersions is newest first; replay oldest first.
		for i := len(history) - 1; i >= 0; i-- {
			v := history[i]
			content, err := src.GetDocument(ctx, srcID.File(), v.Version)
			if err != nil {
				return err
			}

			template := adaptForBackend(v, dstCaps)
			template.ID = newLocal
			template.Folder = dstFolder.Folder()
			template.Version = storage.CurrentVersion

			saved, err := dst.SaveDocument(ctx, template, content)
			content.Close()
			if err != nil {
				return err
			}
			newLocal = saved.ID
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return newLocal, nil
}

// adaptForBackend clears metadata fields the destination backend cannot
// persist.
func adaptForBackend(f *storage.File, caps storage.Capability) *storage.File {
	out := f.Copy()
	if caps&storage.CapNotes == 0 {
		out.Description = ""
	}
	if caps&storage.CapCategories == 0 {
		out.Categories = nil
	}
	if caps&storage.CapObjectPermissions == 0 {
		out.Permissions = nil
	}
	return out
}

// groupByAccount partitions composite IDs by their backend account,
// preserving order within each group.
func groupByAccount(ids []fileid.FileID) [][]fileid.FileID {
	var order []string
	groups := make(map[string][]fileid.FileID)
	for _, id := range ids {
		key := id.Service() + "/" + id.Account()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], id)
	}
	out := make([][]fileid.FileID, 0, len(order))
	for _, key := range order {
		out = append(out, groups[key])
	}
	return out
}
