// Package storagetest provides an in-memory storage backend used by unit
// tests across the federation layers. Backend implements only the core
// FileAccess surface; FullBackend layers every optional capability on
// top so tests can exercise capability gating both ways.
package storagetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/trove-storage/trove/pkg/storage"
)

// RootFolder is the ID of the preexisting root folder.
const RootFolder = "root"

// TrashFolder is the ID of the preexisting trash folder.
const TrashFolder = "trash"

type versionState struct {
	meta    *storage.File
	content []byte
}

type fileState struct {
	meta     *storage.File
	versions []*versionState // index 0 is version "1"
	origin   string          // folder before the file was trashed
}

type folderState struct {
	meta storage.Folder
}

// Backend is an in-memory implementation of storage.FileAccess. It
// supports neither versioned reads beyond the current version nor any
// other optional capability; wrap it in FullBackend for those.
type Backend struct {
	mu      sync.Mutex
	service string
	account string
	folders map[string]*folderState
	files   map[string]*fileState
	nextID  int

	// MetaCaps are extra self-reported capabilities (notes, categories,
	// object permissions).
	MetaCaps storage.Capability

	// Errs injects a failure for the named operation ("Search",
	// "SaveDocument", ...).
	Errs map[string]error

	// Latency delays the named operation, for fan-out timeout tests.
	Latency map[string]time.Duration
}

// New creates an empty in-memory backend with root and trash folders.
func New(service, account string) *Backend {
	b := &Backend{
		service: service,
		account: account,
		folders: make(map[string]*folderState),
		files:   make(map[string]*fileState),
	}
	now := time.Now()
	b.folders[RootFolder] = &folderState{meta: storage.Folder{ID: RootFolder, Name: "root", Created: now, Modified: now}}
	b.folders[TrashFolder] = &folderState{meta: storage.Folder{ID: TrashFolder, ParentID: RootFolder, Name: "trash", Created: now, Modified: now}}
	return b
}

func (b *Backend) ServiceID() string { return b.service }
func (b *Backend) AccountID() string { return b.account }

// Capabilities implements storage.CapabilityReporter.
func (b *Backend) Capabilities() storage.Capability { return b.MetaCaps }

func (b *Backend) stall(ctx context.Context, op string) error {
	var d time.Duration
	b.mu.Lock()
	if b.Latency != nil {
		d = b.Latency[op]
	}
	err := error(nil)
	if b.Errs != nil {
		err = b.Errs[op]
	}
	b.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// AddFile seeds a file with a single version and returns its metadata.
func (b *Backend) AddFile(folderID, name, content string) *storage.File {
	f, err := b.SaveDocument(context.Background(), &storage.File{Folder: folderID, Name: name}, strings.NewReader(content))
	if err != nil {
		panic(err)
	}
	return f
}

// MustCreateFolder seeds a folder and returns its ID.
func (b *Backend) MustCreateFolder(parentID, name string) string {
	id, err := b.CreateFolder(context.Background(), parentID, name)
	if err != nil {
		panic(err)
	}
	return id
}

func (b *Backend) newID(prefix string) string {
	b.nextID++
	return fmt.Sprintf("%s%d", prefix, b.nextID)
}

func (b *Backend) bumpSequence(folderID string) {
	for folderID != "" {
		fs, ok := b.folders[folderID]
		if !ok {
			return
		}
		fs.meta.Sequence++
		fs.meta.Modified = time.Now()
		folderID = fs.meta.ParentID
	}
}

func (b *Backend) Exists(ctx context.Context, fileID, version string) (bool, error) {
	if err := b.stall(ctx, "Exists"); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fs, ok := b.files[fileID]
	if !ok {
		return false, nil
	}
	if version == storage.CurrentVersion {
		return true, nil
	}
	_, err := fs.version(version)
	return err == nil, nil
}

func (f *fileState) version(version string) (*versionState, error) {
	if version == storage.CurrentVersion {
		return f.versions[len(f.versions)-1], nil
	}
	for _, v := range f.versions {
		if v.meta.Version == version {
			return v, nil
		}
	}
	return nil, storage.ErrVersionNotFound
}

func (b *Backend) GetMetadata(ctx context.Context, fileID, version string) (*storage.File, error) {
	if err := b.stall(ctx, "GetMetadata"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fs, ok := b.files[fileID]
	if !ok {
		return nil, storage.NewErrorf("GetMetadata", storage.ErrNotFound, "file %s", fileID)
	}
	v, err := fs.version(version)
	if err != nil {
		return nil, storage.NewError("GetMetadata", err)
	}
	meta := v.meta.Copy()
	meta.Permissions = append([]storage.Permission(nil), fs.meta.Permissions...)
	meta.LockedUntil = fs.meta.LockedUntil
	meta.NumberOfVersions = len(fs.versions)
	meta.IsCurrentVersion = v == fs.versions[len(fs.versions)-1]
	return meta, nil
}

func (b *Backend) SaveMetadata(ctx context.Context, file *storage.File, modified []storage.Field) (*storage.File, error) {
	if err := b.stall(ctx, "SaveMetadata"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fs, ok := b.files[file.ID]
	if !ok {
		return nil, storage.NewErrorf("SaveMetadata", storage.ErrNotFound, "file %s", file.ID)
	}

	all := len(modified) == 0
	has := func(f storage.Field) bool {
		if all {
			return true
		}
		for _, m := range modified {
			if m == f {
				return true
			}
		}
		return false
	}

	cur := fs.versions[len(fs.versions)-1].meta
	if has(storage.FieldName) && file.Name != "" {
		cur.Name = file.Name
		fs.meta.Name = file.Name
	}
	if has(storage.FieldDescription) {
		cur.Description = file.Description
	}
	if has(storage.FieldCategories) {
		cur.Categories = append([]string(nil), file.Categories...)
	}
	if has(storage.FieldMimeType) && file.MimeType != "" {
		cur.MimeType = file.MimeType
	}
	if has(storage.FieldPermissions) {
		fs.meta.Permissions = append([]storage.Permission(nil), file.Permissions...)
	}
	cur.Modified = time.Now()
	b.bumpSequence(fs.meta.Folder)

	out := cur.Copy()
	out.Permissions = append([]storage.Permission(nil), fs.meta.Permissions...)
	return out, nil
}

func (b *Backend) GetDocument(ctx context.Context, fileID, version string) (io.ReadCloser, error) {
	if err := b.stall(ctx, "GetDocument"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fs, ok := b.files[fileID]
	if !ok {
		return nil, storage.NewErrorf("GetDocument", storage.ErrNotFound, "file %s", fileID)
	}
	v, err := fs.version(version)
	if err != nil {
		return nil, storage.NewError("GetDocument", err)
	}
	return io.NopCloser(bytes.NewReader(v.content)), nil
}

func (b *Backend) SaveDocument(ctx context.Context, file *storage.File, content io.Reader) (*storage.File, error) {
	if err := b.stall(ctx, "SaveDocument"); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if file.ID == "" {
		if _, ok := b.folders[file.Folder]; !ok {
			return nil, storage.NewErrorf("SaveDocument", storage.ErrNotFound, "folder %s", file.Folder)
		}
		id := b.newID("d")
		meta := file.Copy()
		meta.ID = id
		meta.Version = "1"
		meta.Size = int64(len(data))
		meta.Created = now
		meta.Modified = now
		b.files[id] = &fileState{
			meta:     &storage.File{ID: id, Folder: file.Folder, Name: file.Name, Permissions: file.Permissions},
			versions: []*versionState{{meta: meta, content: data}},
		}
		b.bumpSequence(file.Folder)
		return b.snapshot(id)
	}

	fs, ok := b.files[file.ID]
	if !ok {
		return nil, storage.NewErrorf("SaveDocument", storage.ErrNotFound, "file %s", file.ID)
	}
	meta := file.Copy()
	meta.Folder = fs.meta.Folder
	meta.Version = fmt.Sprintf("%d", len(fs.versions)+1)
	meta.Size = int64(len(data))
	meta.Created = fs.versions[0].meta.Created
	meta.Modified = now
	fs.versions = append(fs.versions, &versionState{meta: meta, content: data})
	b.bumpSequence(fs.meta.Folder)
	return b.snapshot(file.ID)
}

// snapshot returns current metadata. Callers must hold the lock.
func (b *Backend) snapshot(fileID string) (*storage.File, error) {
	fs := b.files[fileID]
	v := fs.versions[len(fs.versions)-1]
	meta := v.meta.Copy()
	meta.Permissions = append([]storage.Permission(nil), fs.meta.Permissions...)
	meta.NumberOfVersions = len(fs.versions)
	meta.IsCurrentVersion = true
	return meta, nil
}

func (b *Backend) Copy(ctx context.Context, fileID, version, destFolder string) (string, error) {
	if err := b.stall(ctx, "Copy"); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fs, ok := b.files[fileID]
	if !ok {
		return "", storage.NewErrorf("Copy", storage.ErrNotFound, "file %s", fileID)
	}
	if _, ok := b.folders[destFolder]; !ok {
		return "", storage.NewErrorf("Copy", storage.ErrNotFound, "folder %s", destFolder)
	}
	v, err := fs.version(version)
	if err != nil {
		return "", storage.NewError("Copy", err)
	}

	id := b.newID("d")
	meta := v.meta.Copy()
	meta.ID = id
	meta.Folder = destFolder
	meta.Version = "1"
	b.files[id] = &fileState{
		meta:     &storage.File{ID: id, Folder: destFolder, Name: meta.Name},
		versions: []*versionState{{meta: meta, content: append([]byte(nil), v.content...)}},
	}
	b.bumpSequence(destFolder)
	return id, nil
}

func (b *Backend) Move(ctx context.Context, fileID, destFolder string) (string, error) {
	if err := b.stall(ctx, "Move"); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.moveLocked(fileID, destFolder)
}

func (b *Backend) moveLocked(fileID, destFolder string) (string, error) {
	fs, ok := b.files[fileID]
	if !ok {
		return "", storage.NewErrorf("Move", storage.ErrNotFound, "file %s", fileID)
	}
	if _, ok := b.folders[destFolder]; !ok {
		return "", storage.NewErrorf("Move", storage.ErrNotFound, "folder %s", destFolder)
	}
	if fs.locked() {
		return "", storage.NewErrorf("Move", storage.ErrLocked, "file %s", fileID)
	}
	old := fs.meta.Folder
	fs.meta.Folder = destFolder
	for _, v := range fs.versions {
		v.meta.Folder = destFolder
	}
	b.bumpSequence(old)
	b.bumpSequence(destFolder)
	return fileID, nil
}

func (f *fileState) locked() bool {
	return f.meta.LockedUntil != nil && f.meta.LockedUntil.After(time.Now())
}

func (b *Backend) Delete(ctx context.Context, fileIDs []string, hardDelete bool) ([]string, error) {
	if err := b.stall(ctx, "Delete"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var conflicting []string
	for _, id := range fileIDs {
		fs, ok := b.files[id]
		if !ok {
			continue
		}
		if fs.locked() {
			conflicting = append(conflicting, id)
			continue
		}
		b.bumpSequence(fs.meta.Folder)
		if hardDelete || fs.meta.Folder == TrashFolder {
			delete(b.files, id)
			continue
		}
		fs.origin = fs.meta.Folder
		fs.meta.Folder = TrashFolder
		for _, v := range fs.versions {
			v.meta.Folder = TrashFolder
		}
	}
	return conflicting, nil
}

func (b *Backend) ListFolder(ctx context.Context, folderID string, sort storage.SortField, order storage.SortOrder) ([]*storage.File, error) {
	if err := b.stall(ctx, "ListFolder"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.folders[folderID]; !ok {
		return nil, storage.NewErrorf("ListFolder", storage.ErrNotFound, "folder %s", folderID)
	}

	var out []*storage.File
	for id, fs := range b.files {
		if fs.meta.Folder != folderID {
			continue
		}
		meta, _ := b.snapshot(id)
		out = append(out, meta)
	}
	storage.SortFiles(out, sort, order)
	return out, nil
}

func (b *Backend) GetFolder(ctx context.Context, folderID string) (*storage.Folder, error) {
	if err := b.stall(ctx, "GetFolder"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fs, ok := b.folders[folderID]
	if !ok {
		return nil, storage.NewErrorf("GetFolder", storage.ErrNotFound, "folder %s", folderID)
	}
	meta := fs.meta
	return &meta, nil
}

func (b *Backend) ListSubfolders(ctx context.Context, folderID string) ([]*storage.Folder, error) {
	if err := b.stall(ctx, "ListSubfolders"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.folders[folderID]; !ok {
		return nil, storage.NewErrorf("ListSubfolders", storage.ErrNotFound, "folder %s", folderID)
	}
	var out []*storage.Folder
	for _, fs := range b.folders {
		if fs.meta.ParentID == folderID && fs.meta.ID != TrashFolder {
			meta := fs.meta
			out = append(out, &meta)
		}
	}
	return out, nil
}

func (b *Backend) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	if err := b.stall(ctx, "CreateFolder"); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.folders[parentID]; !ok {
		return "", storage.NewErrorf("CreateFolder", storage.ErrNotFound, "folder %s", parentID)
	}
	id := b.newID("f")
	now := time.Now()
	b.folders[id] = &folderState{meta: storage.Folder{ID: id, ParentID: parentID, Name: name, Created: now, Modified: now}}
	b.bumpSequence(parentID)
	return id, nil
}

func (b *Backend) DeleteFolder(ctx context.Context, folderID string, recursive bool) error {
	if err := b.stall(ctx, "DeleteFolder"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleteFolderLocked(folderID, recursive)
}

func (b *Backend) deleteFolderLocked(folderID string, recursive bool) error {
	fs, ok := b.folders[folderID]
	if !ok {
		return storage.NewErrorf("DeleteFolder", storage.ErrNotFound, "folder %s", folderID)
	}

	var children []string
	for id, f := range b.folders {
		if f.meta.ParentID == folderID {
			children = append(children, id)
		}
	}
	var files []string
	for id, f := range b.files {
		if f.meta.Folder == folderID {
			files = append(files, id)
		}
	}
	if !recursive && (len(children) > 0 || len(files) > 0) {
		return storage.NewErrorf("DeleteFolder", storage.ErrFolderNotEmpty, "folder %s", folderID)
	}
	for _, id := range children {
		if err := b.deleteFolderLocked(id, true); err != nil {
			return err
		}
	}
	for _, id := range files {
		delete(b.files, id)
	}
	b.bumpSequence(fs.meta.ParentID)
	delete(b.folders, folderID)
	return nil
}

func (b *Backend) SequenceNumber(ctx context.Context, folderID string) (int64, error) {
	if err := b.stall(ctx, "SequenceNumber"); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fs, ok := b.folders[folderID]
	if !ok {
		return 0, storage.NewErrorf("SequenceNumber", storage.ErrNotFound, "folder %s", folderID)
	}
	return fs.meta.Sequence, nil
}

var _ storage.FileAccess = (*Backend)(nil)
var _ storage.CapabilityReporter = (*Backend)(nil)
