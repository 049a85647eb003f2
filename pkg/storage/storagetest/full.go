package storagetest

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/trove-storage/trove/pkg/storage"
)

// FullBackend extends Backend with every optional capability. Tests use
// the transaction counters to assert begin/commit/rollback bracketing.
type FullBackend struct {
	*Backend

	// Transaction counters.
	Begun      atomic.Int32
	Committed  atomic.Int32
	RolledBack atomic.Int32

	// Synthetic marks version identifiers as non-round-trippable.
	Synthetic bool
}

// NewFull creates an in-memory backend with all capabilities enabled.
func NewFull(service, account string) *FullBackend {
	return &FullBackend{Backend: New(service, account)}
}

func (b *FullBackend) StartTransaction(ctx context.Context) error {
	if err := b.stall(ctx, "StartTransaction"); err != nil {
		return err
	}
	b.Begun.Add(1)
	return nil
}

func (b *FullBackend) Commit() error {
	b.Committed.Add(1)
	return nil
}

func (b *FullBackend) Rollback() error {
	b.RolledBack.Add(1)
	return nil
}

func (b *FullBackend) VersionsAreSynthetic() bool { return b.Synthetic }

func (b *FullBackend) ListVersions(ctx context.Context, fileID string) ([]*storage.File, error) {
	if err := b.stall(ctx, "ListVersions"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fs, ok := b.files[fileID]
	if !ok {
		return nil, storage.NewErrorf("ListVersions", storage.ErrNotFound, "file %s", fileID)
	}
	out := make([]*storage.File, 0, len(fs.versions))
	for i := len(fs.versions) - 1; i >= 0; i-- {
		meta := fs.versions[i].meta.Copy()
		meta.NumberOfVersions = len(fs.versions)
		meta.IsCurrentVersion = i == len(fs.versions)-1
		out = append(out, meta)
	}
	return out, nil
}

func (b *FullBackend) DeleteVersions(ctx context.Context, fileID string, versions []string) ([]string, error) {
	if err := b.stall(ctx, "DeleteVersions"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fs, ok := b.files[fileID]
	if !ok {
		return nil, storage.NewErrorf("DeleteVersions", storage.ErrNotFound, "file %s", fileID)
	}

	var conflicting []string
	for _, version := range versions {
		// The current version is never removable this way.
		if len(fs.versions) == 1 || fs.versions[len(fs.versions)-1].meta.Version == version {
			conflicting = append(conflicting, version)
			continue
		}
		removed := false
		for i, v := range fs.versions {
			if v.meta.Version == version {
				fs.versions = append(fs.versions[:i], fs.versions[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			conflicting = append(conflicting, version)
		}
	}
	return conflicting, nil
}

func (b *FullBackend) PromoteVersion(ctx context.Context, fileID, version string) (*storage.File, error) {
	if err := b.stall(ctx, "PromoteVersion"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fs, ok := b.files[fileID]
	if !ok {
		return nil, storage.NewErrorf("PromoteVersion", storage.ErrNotFound, "file %s", fileID)
	}
	for i, v := range fs.versions {
		if v.meta.Version == version {
			fs.versions = append(append(fs.versions[:i], fs.versions[i+1:]...), v)
			v.meta.Modified = time.Now()
			return b.snapshot(fileID)
		}
	}
	return nil, storage.NewErrorf("PromoteVersion", storage.ErrVersionNotFound, "file %s version %s", fileID, version)
}

func (b *FullBackend) Lock(ctx context.Context, fileID string, ttl time.Duration) error {
	if err := b.stall(ctx, "Lock"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fs, ok := b.files[fileID]
	if !ok {
		return storage.NewErrorf("Lock", storage.ErrNotFound, "file %s", fileID)
	}
	until := time.Now().Add(ttl)
	fs.meta.LockedUntil = &until
	return nil
}

func (b *FullBackend) Unlock(ctx context.Context, fileID string) error {
	if err := b.stall(ctx, "Unlock"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fs, ok := b.files[fileID]
	if !ok {
		return storage.NewErrorf("Unlock", storage.ErrNotFound, "file %s", fileID)
	}
	fs.meta.LockedUntil = nil
	return nil
}

func (b *FullBackend) ReadRange(ctx context.Context, fileID, version string, offset, length int64) (io.ReadCloser, error) {
	if err := b.stall(ctx, "ReadRange"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fs, ok := b.files[fileID]
	if !ok {
		return nil, storage.NewErrorf("ReadRange", storage.ErrNotFound, "file %s", fileID)
	}
	v, err := fs.version(version)
	if err != nil {
		return nil, storage.NewError("ReadRange", err)
	}
	data := v.content
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	end := int64(len(data))
	if length >= 0 && offset+length < end {
		end = offset + length
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

func (b *FullBackend) Search(ctx context.Context, q *storage.Query) ([]*storage.File, error) {
	if err := b.stall(ctx, "Search"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	inScope := func(folder string) bool {
		if len(q.Folders) == 0 {
			return folder != TrashFolder
		}
		for _, f := range q.Folders {
			if f == folder {
				return true
			}
		}
		return false
	}

	pattern := strings.ToLower(q.Pattern)
	var out []*storage.File
	for id, fs := range b.files {
		if !inScope(fs.meta.Folder) {
			continue
		}
		cur := fs.versions[len(fs.versions)-1].meta
		if pattern != "" &&
			!strings.Contains(strings.ToLower(cur.Name), pattern) &&
			!strings.Contains(strings.ToLower(cur.Description), pattern) {
			continue
		}
		meta, _ := b.snapshot(id)
		out = append(out, meta)
	}
	storage.SortFiles(out, q.Sort, q.Order)

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (b *FullBackend) MoveAll(ctx context.Context, fileIDs []string, destFolder string) ([]string, error) {
	if err := b.stall(ctx, "MoveAll"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var conflicting []string
	for _, id := range fileIDs {
		if _, err := b.moveLocked(id, destFolder); err != nil {
			conflicting = append(conflicting, id)
		}
	}
	return conflicting, nil
}

func (b *FullBackend) Restore(ctx context.Context, fileIDs []string, defaultDest string) (map[string]string, error) {
	if err := b.stall(ctx, "Restore"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	restored := make(map[string]string, len(fileIDs))
	for _, id := range fileIDs {
		fs, ok := b.files[id]
		if !ok || fs.meta.Folder != TrashFolder {
			continue
		}
		dest := fs.origin
		if _, ok := b.folders[dest]; !ok {
			dest = defaultDest
		}
		if _, err := b.moveLocked(id, dest); err != nil {
			return nil, err
		}
		fs.origin = ""
		restored[id] = dest
	}
	return restored, nil
}

var (
	_ storage.FileAccess             = (*FullBackend)(nil)
	_ storage.VersionAccess          = (*FullBackend)(nil)
	_ storage.LockAccess             = (*FullBackend)(nil)
	_ storage.RangeAccess            = (*FullBackend)(nil)
	_ storage.SearchAccess           = (*FullBackend)(nil)
	_ storage.MultiMoveAccess        = (*FullBackend)(nil)
	_ storage.RestoreAccess          = (*FullBackend)(nil)
	_ storage.IgnorableVersionAccess = (*FullBackend)(nil)
	_ storage.Transactional          = (*FullBackend)(nil)
)
