// Package local is a filesystem storage backend. Documents live as
// plain files in a directory tree; versions, descriptive metadata and
// folder sequence numbers are kept in ".trove" sidecar directories so
// the visible tree stays browsable with ordinary tools. A bleve index
// provides full-text metadata search.
package local

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/trove-storage/trove/pkg/storage"
)

// ServiceID is the service identifier of the filesystem backend in
// composite IDs.
const ServiceID = "local"

// RootFolder is the backend-local ID of the root folder.
const RootFolder = "."

// sidecarDir holds per-folder metadata and version content.
const sidecarDir = ".trove"

// Store implements storage.FileAccess on an afero filesystem. IDs are
// slash-separated paths relative to the root.
type Store struct {
	fs      afero.Fs
	account string
	logger  hclog.Logger
	index   *searchIndex

	// One lock for the whole tree. The backend targets single-node
	// deployments; contention is not a concern.
	mu sync.Mutex
}

// fileMeta is the JSON sidecar of one document.
type fileMeta struct {
	Name        string        `json:"name"`
	MimeType    string        `json:"mimeType,omitempty"`
	Description string        `json:"description,omitempty"`
	Categories  []string      `json:"categories,omitempty"`
	Current     int           `json:"current"`
	Versions    []versionMeta `json:"versions"`
	LockedUntil *time.Time    `json:"lockedUntil,omitempty"`
	Created     time.Time     `json:"created"`
	CreatedBy   string        `json:"createdBy,omitempty"`
	ModifiedBy  string        `json:"modifiedBy,omitempty"`
}

type versionMeta struct {
	Number   int       `json:"number"`
	Size     int64     `json:"size"`
	Checksum string    `json:"checksum"`
	Comment  string    `json:"comment,omitempty"`
	Created  time.Time `json:"created"`
}

// folderMeta is the JSON sidecar of one folder.
type folderMeta struct {
	Sequence int64     `json:"sequence"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// NewStore creates a filesystem store rooted at the given afero
// filesystem. indexPath selects the bleve index location; empty runs
// the index in memory.
func NewStore(fs afero.Fs, account, indexPath string, logger hclog.Logger) (*Store, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	index, err := newSearchIndex(indexPath)
	if err != nil {
		return nil, fmt.Errorf("opening search index: %w", err)
	}

	s := &Store{
		fs:      fs,
		account: account,
		logger:  logger.Named("local-store").With("account", account),
		index:   index,
	}
	if err := s.ensureFolder(RootFolder); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ServiceID() string { return ServiceID }
func (s *Store) AccountID() string { return s.account }

// Capabilities reports the metadata capabilities of the filesystem
// backend. Object permissions have no filesystem representation.
func (s *Store) Capabilities() storage.Capability {
	return storage.CapNotes | storage.CapCategories
}

// Close releases the search index.
func (s *Store) Close() error {
	return s.index.Close()
}

// --- path helpers ---

// cleanID normalizes a backend-local path ID and rejects escapes.
func cleanID(op, id string) (string, error) {
	if id == "" {
		return "", storage.NewErrorf(op, storage.ErrInvalidID, "empty ID")
	}
	clean := path.Clean("/" + id)[1:]
	if clean == "" {
		clean = RootFolder
	}
	if strings.HasPrefix(clean, "..") || strings.Contains(clean, sidecarDir) {
		return "", storage.NewErrorf(op, storage.ErrInvalidID, "%q", id)
	}
	return clean, nil
}

func metaPath(fileID string) string {
	return path.Join(path.Dir(fileID), sidecarDir, path.Base(fileID)+".json")
}

func versionPath(fileID string, number int) string {
	return path.Join(path.Dir(fileID), sidecarDir, fmt.Sprintf("%s.v%d", path.Base(fileID), number))
}

func folderMetaPath(folderID string) string {
	return path.Join(folderID, sidecarDir, "folder.json")
}

// --- sidecar IO ---

func (s *Store) readMeta(op, fileID string) (*fileMeta, error) {
	data, err := afero.ReadFile(s.fs, metaPath(fileID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.NewErrorf(op, storage.ErrNotFound, "file %s", fileID)
		}
		return nil, err
	}
	var meta fileMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("corrupt sidecar for %s: %w", fileID, err)
	}
	return &meta, nil
}

func (s *Store) writeMeta(fileID string, meta *fileMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	p := metaPath(fileID)
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, p, data, 0o644)
}

func (s *Store) readFolderMeta(folderID string) (*folderMeta, error) {
	data, err := afero.ReadFile(s.fs, folderMetaPath(folderID))
	if err != nil {
		if os.IsNotExist(err) {
			return &folderMeta{}, nil
		}
		return nil, err
	}
	var meta folderMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) writeFolderMeta(folderID string, meta *folderMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	p := folderMetaPath(folderID)
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, p, data, 0o644)
}

func (s *Store) ensureFolder(folderID string) error {
	if err := s.fs.MkdirAll(folderID, 0o755); err != nil {
		return err
	}
	exists, err := afero.Exists(s.fs, folderMetaPath(folderID))
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	now := time.Now()
	return s.writeFolderMeta(folderID, &folderMeta{Created: now, Modified: now})
}

// bumpSequence advances the folder and all of its ancestors.
func (s *Store) bumpSequence(folderID string) error {
	for {
		meta, err := s.readFolderMeta(folderID)
		if err != nil {
			return err
		}
		meta.Sequence++
		meta.Modified = time.Now()
		if err := s.writeFolderMeta(folderID, meta); err != nil {
			return err
		}
		if folderID == RootFolder {
			return nil
		}
		folderID = path.Dir(folderID)
	}
}

func (s *Store) folderExists(folderID string) (bool, error) {
	info, err := s.fs.Stat(folderID)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// toStorageFile converts a sidecar at a version to the provider-
// agnostic shape.
func toStorageFile(fileID string, meta *fileMeta, ver *versionMeta) *storage.File {
	return &storage.File{
		ID:               fileID,
		Folder:           path.Dir(fileID),
		Name:             meta.Name,
		MimeType:         meta.MimeType,
		Size:             ver.Size,
		Description:      meta.Description,
		Categories:       append([]string(nil), meta.Categories...),
		Version:          strconv.Itoa(ver.Number),
		NumberOfVersions: len(meta.Versions),
		IsCurrentVersion: ver.Number == meta.Current,
		VersionComment:   ver.Comment,
		Created:          meta.Created,
		Modified:         ver.Created,
		CreatedBy:        meta.CreatedBy,
		ModifiedBy:       meta.ModifiedBy,
		LockedUntil:      meta.LockedUntil,
		Checksum:         ver.Checksum,
	}
}

func (m *fileMeta) version(op, fileID, version string) (*versionMeta, error) {
	number := m.Current
	if version != storage.CurrentVersion {
		n, err := strconv.Atoi(version)
		if err != nil {
			return nil, storage.NewErrorf(op, storage.ErrVersionNotFound, "file %s version %q", fileID, version)
		}
		number = n
	}
	for i := range m.Versions {
		if m.Versions[i].Number == number {
			return &m.Versions[i], nil
		}
	}
	return nil, storage.NewErrorf(op, storage.ErrVersionNotFound, "file %s version %q", fileID, version)
}

func (m *fileMeta) locked() bool {
	return m.LockedUntil != nil && m.LockedUntil.After(time.Now())
}

// --- storage.FileAccess ---

func (s *Store) Exists(ctx context.Context, fileID, version string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := cleanID("Exists", fileID)
	if err != nil {
		return false, nil
	}
	meta, err := s.readMeta("Exists", id)
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if _, err := meta.version("Exists", id, version); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *Store) GetMetadata(ctx context.Context, fileID, version string) (*storage.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := cleanID("GetMetadata", fileID)
	if err != nil {
		return nil, err
	}
	meta, err := s.readMeta("GetMetadata", id)
	if err != nil {
		return nil, err
	}
	ver, err := meta.version("GetMetadata", id, version)
	if err != nil {
		return nil, err
	}
	return toStorageFile(id, meta, ver), nil
}

func (s *Store) SaveMetadata(ctx context.Context, file *storage.File, modified []storage.Field) (*storage.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := cleanID("SaveMetadata", file.ID)
	if err != nil {
		return nil, err
	}
	meta, err := s.readMeta("SaveMetadata", id)
	if err != nil {
		return nil, err
	}
	if meta.locked() {
		return nil, storage.NewErrorf("SaveMetadata", storage.ErrLocked, "file %s", id)
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

	newID := id
	if has(storage.FieldName) && file.Name != "" && file.Name != meta.Name {
		renamed, err := s.rename(id, path.Join(path.Dir(id), file.Name))
		if err != nil {
			return nil, err
		}
		newID = renamed
		meta.Name = file.Name
	}
	if has(storage.FieldDescription) {
		meta.Description = file.Description
	}
	if has(storage.FieldCategories) {
		meta.Categories = append([]string(nil), file.Categories...)
	}
	if has(storage.FieldMimeType) && file.MimeType != "" {
		meta.MimeType = file.MimeType
	}
	if file.ModifiedBy != "" {
		meta.ModifiedBy = file.ModifiedBy
	}

	if err := s.writeMeta(newID, meta); err != nil {
		return nil, err
	}
	if err := s.index.update(newID, meta); err != nil {
		return nil, err
	}
	if err := s.bumpSequence(path.Dir(newID)); err != nil {
		return nil, err
	}
	ver, err := meta.version("SaveMetadata", newID, storage.CurrentVersion)
	if err != nil {
		return nil, err
	}
	return toStorageFile(newID, meta, ver), nil
}

func (s *Store) GetDocument(ctx context.Context, fileID, version string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getDocument(fileID, version)
}

func (s *Store) getDocument(fileID, version string) (io.ReadCloser, error) {
	id, err := cleanID("GetDocument", fileID)
	if err != nil {
		return nil, err
	}
	meta, err := s.readMeta("GetDocument", id)
	if err != nil {
		return nil, err
	}
	ver, err := meta.version("GetDocument", id, version)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, versionPath(id, ver.Number))
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) ReadRange(ctx context.Context, fileID, version string, offset, length int64) (io.ReadCloser, error) {
	r, err := s.GetDocument(ctx, fileID, version)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	end := int64(len(data))
	if length >= 0 && offset+length < end {
		end = offset + length
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

func (s *Store) SaveDocument(ctx context.Context, file *storage.File, content io.Reader) (*storage.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	now := time.Now()

	if file.ID == "" {
		folder, err := cleanID("SaveDocument", file.Folder)
		if err != nil {
			return nil, err
		}
		ok, err := s.folderExists(folder)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, storage.NewErrorf("SaveDocument", storage.ErrNotFound, "folder %s", file.Folder)
		}
		if file.Name == "" {
			return nil, storage.NewErrorf("SaveDocument", storage.ErrInvalidID, "file name required")
		}

		id := path.Join(folder, file.Name)
		if exists, _ := afero.Exists(s.fs, metaPath(id)); exists {
			// Same name in the same folder is a new version of that file.
			return s.saveVersion(id, file, data, sum[:], now)
		}

		meta := &fileMeta{
			Name:        file.Name,
			MimeType:    file.MimeType,
			Description: file.Description,
			Categories:  append([]string(nil), file.Categories...),
			Current:     1,
			Versions: []versionMeta{{
				Number: 1, Size: int64(len(data)), Checksum: hex.EncodeToString(sum[:]),
				Comment: file.VersionComment, Created: now,
			}},
			Created:    now,
			CreatedBy:  file.CreatedBy,
			ModifiedBy: file.ModifiedBy,
		}
		if err := afero.WriteFile(s.fs, id, data, 0o644); err != nil {
			return nil, err
		}
		if err := s.fs.MkdirAll(path.Dir(versionPath(id, 1)), 0o755); err != nil {
			return nil, err
		}
		if err := afero.WriteFile(s.fs, versionPath(id, 1), data, 0o644); err != nil {
			return nil, err
		}
		if err := s.writeMeta(id, meta); err != nil {
			return nil, err
		}
		if err := s.index.update(id, meta); err != nil {
			return nil, err
		}
		if err := s.bumpSequence(folder); err != nil {
			return nil, err
		}
		return toStorageFile(id, meta, &meta.Versions[0]), nil
	}

	id, err := cleanID("SaveDocument", file.ID)
	if err != nil {
		return nil, err
	}
	return s.saveVersion(id, file, data, sum[:], now)
}

func (s *Store) saveVersion(id string, file *storage.File, data, sum []byte, now time.Time) (*storage.File, error) {
	meta, err := s.readMeta("SaveDocument", id)
	if err != nil {
		return nil, err
	}
	if meta.locked() {
		return nil, storage.NewErrorf("SaveDocument", storage.ErrLocked, "file %s", id)
	}

	next := 0
	for _, v := range meta.Versions {
		if v.Number > next {
			next = v.Number
		}
	}
	next++

	meta.Versions = append(meta.Versions, versionMeta{
		Number: next, Size: int64(len(data)), Checksum: hex.EncodeToString(sum),
		Comment: file.VersionComment, Created: now,
	})
	meta.Current = next
	if file.ModifiedBy != "" {
		meta.ModifiedBy = file.ModifiedBy
	}

	if err := afero.WriteFile(s.fs, versionPath(id, next), data, 0o644); err != nil {
		return nil, err
	}
	if err := afero.WriteFile(s.fs, id, data, 0o644); err != nil {
		return nil, err
	}
	if err := s.writeMeta(id, meta); err != nil {
		return nil, err
	}
	if err := s.index.update(id, meta); err != nil {
		return nil, err
	}
	if err := s.bumpSequence(path.Dir(id)); err != nil {
		return nil, err
	}
	return toStorageFile(id, meta, &meta.Versions[len(meta.Versions)-1]), nil
}

func (s *Store) Copy(ctx context.Context, fileID, version, destFolder string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := cleanID("Copy", fileID)
	if err != nil {
		return "", err
	}
	folder, err := cleanID("Copy", destFolder)
	if err != nil {
		return "", err
	}
	ok, err := s.folderExists(folder)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", storage.NewErrorf("Copy", storage.ErrNotFound, "folder %s", destFolder)
	}

	meta, err := s.readMeta("Copy", id)
	if err != nil {
		return "", err
	}
	ver, err := meta.version("Copy", id, version)
	if err != nil {
		return "", err
	}
	data, err := afero.ReadFile(s.fs, versionPath(id, ver.Number))
	if err != nil {
		return "", err
	}

	newID := path.Join(folder, meta.Name)
	if newID == id {
		return "", storage.NewErrorf("Copy", storage.ErrInvalidID, "copy onto itself: %s", id)
	}
	now := time.Now()
	dup := &fileMeta{
		Name:        meta.Name,
		MimeType:    meta.MimeType,
		Description: meta.Description,
		Categories:  append([]string(nil), meta.Categories...),
		Current:     1,
		Versions: []versionMeta{{
			Number: 1, Size: ver.Size, Checksum: ver.Checksum, Created: now,
		}},
		Created:    now,
		CreatedBy:  meta.CreatedBy,
		ModifiedBy: meta.ModifiedBy,
	}
	if err := afero.WriteFile(s.fs, newID, data, 0o644); err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(path.Dir(versionPath(newID, 1)), 0o755); err != nil {
		return "", err
	}
	if err := afero.WriteFile(s.fs, versionPath(newID, 1), data, 0o644); err != nil {
		return "", err
	}
	if err := s.writeMeta(newID, dup); err != nil {
		return "", err
	}
	if err := s.index.update(newID, dup); err != nil {
		return "", err
	}
	if err := s.bumpSequence(folder); err != nil {
		return "", err
	}
	return newID, nil
}

func (s *Store) Move(ctx context.Context, fileID, destFolder string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveLocked(fileID, destFolder)
}

func (s *Store) moveLocked(fileID, destFolder string) (string, error) {
	id, err := cleanID("Move", fileID)
	if err != nil {
		return "", err
	}
	folder, err := cleanID("Move", destFolder)
	if err != nil {
		return "", err
	}
	ok, err := s.folderExists(folder)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", storage.NewErrorf("Move", storage.ErrNotFound, "folder %s", destFolder)
	}
	meta, err := s.readMeta("Move", id)
	if err != nil {
		return "", err
	}
	if meta.locked() {
		return "", storage.NewErrorf("Move", storage.ErrLocked, "file %s", id)
	}

	newID, err := s.rename(id, path.Join(folder, meta.Name))
	if err != nil {
		return "", err
	}
	if err := s.index.update(newID, meta); err != nil {
		return "", err
	}
	if err := s.bumpSequence(path.Dir(id)); err != nil {
		return "", err
	}
	if err := s.bumpSequence(folder); err != nil {
		return "", err
	}
	return newID, nil
}

// rename moves the visible file plus its whole sidecar family to a new
// path and returns the new file ID.
func (s *Store) rename(id, newID string) (string, error) {
	if id == newID {
		return id, nil
	}
	meta, err := s.readMeta("Move", id)
	if err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(path.Dir(versionPath(newID, 1)), 0o755); err != nil {
		return "", err
	}
	if err := s.fs.Rename(id, newID); err != nil {
		return "", err
	}
	for _, v := range meta.Versions {
		if err := s.fs.Rename(versionPath(id, v.Number), versionPath(newID, v.Number)); err != nil {
			return "", err
		}
	}
	if err := s.fs.Rename(metaPath(id), metaPath(newID)); err != nil {
		return "", err
	}
	if err := s.index.remove(id); err != nil {
		return "", err
	}
	return newID, nil
}

// Delete removes files for good: the filesystem backend keeps no trash.
func (s *Store) Delete(ctx context.Context, fileIDs []string, hardDelete bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var conflicting []string
	for _, fileID := range fileIDs {
		id, err := cleanID("Delete", fileID)
		if err != nil {
			continue
		}
		meta, err := s.readMeta("Delete", id)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if meta.locked() {
			conflicting = append(conflicting, fileID)
			continue
		}
		if err := s.removeFile(id, meta); err != nil {
			return nil, err
		}
		if err := s.bumpSequence(path.Dir(id)); err != nil {
			return nil, err
		}
	}
	return conflicting, nil
}

func (s *Store) removeFile(id string, meta *fileMeta) error {
	for _, v := range meta.Versions {
		if err := s.fs.Remove(versionPath(id, v.Number)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if err := s.fs.Remove(metaPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := s.fs.Remove(id); err != nil && !os.IsNotExist(err) {
		return err
	}
	return s.index.remove(id)
}

func (s *Store) ListFolder(ctx context.Context, folderID string, sort storage.SortField, order storage.SortOrder) ([]*storage.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder, err := cleanID("ListFolder", folderID)
	if err != nil {
		return nil, err
	}
	ok, err := s.folderExists(folder)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.NewErrorf("ListFolder", storage.ErrNotFound, "folder %s", folderID)
	}

	entries, err := afero.ReadDir(s.fs, folder)
	if err != nil {
		return nil, err
	}
	var out []*storage.File
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id := path.Join(folder, entry.Name())
		meta, err := s.readMeta("ListFolder", id)
		if err != nil {
			continue // visible file without sidecar, not ours
		}
		ver, err := meta.version("ListFolder", id, storage.CurrentVersion)
		if err != nil {
			continue
		}
		out = append(out, toStorageFile(id, meta, ver))
	}
	storage.SortFiles(out, sort, order)
	return out, nil
}

func (s *Store) GetFolder(ctx context.Context, folderID string) (*storage.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder, err := cleanID("GetFolder", folderID)
	if err != nil {
		return nil, err
	}
	ok, err := s.folderExists(folder)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.NewErrorf("GetFolder", storage.ErrNotFound, "folder %s", folderID)
	}
	meta, err := s.readFolderMeta(folder)
	if err != nil {
		return nil, err
	}
	out := &storage.Folder{
		ID:       folder,
		Name:     path.Base(folder),
		Created:  meta.Created,
		Modified: meta.Modified,
		Sequence: meta.Sequence,
	}
	if folder != RootFolder {
		out.ParentID = path.Dir(folder)
		out.Name = path.Base(folder)
	} else {
		out.Name = "root"
	}
	return out, nil
}

func (s *Store) ListSubfolders(ctx context.Context, folderID string) ([]*storage.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder, err := cleanID("ListSubfolders", folderID)
	if err != nil {
		return nil, err
	}
	ok, err := s.folderExists(folder)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.NewErrorf("ListSubfolders", storage.ErrNotFound, "folder %s", folderID)
	}

	entries, err := afero.ReadDir(s.fs, folder)
	if err != nil {
		return nil, err
	}
	var out []*storage.Folder
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == sidecarDir {
			continue
		}
		id := path.Join(folder, entry.Name())
		meta, err := s.readFolderMeta(id)
		if err != nil {
			return nil, err
		}
		out = append(out, &storage.Folder{
			ID:       id,
			ParentID: folder,
			Name:     entry.Name(),
			Created:  meta.Created,
			Modified: meta.Modified,
			Sequence: meta.Sequence,
		})
	}
	return out, nil
}

func (s *Store) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, err := cleanID("CreateFolder", parentID)
	if err != nil {
		return "", err
	}
	ok, err := s.folderExists(parent)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", storage.NewErrorf("CreateFolder", storage.ErrNotFound, "folder %s", parentID)
	}
	if name == "" || strings.ContainsAny(name, "/") {
		return "", storage.NewErrorf("CreateFolder", storage.ErrInvalidID, "folder name %q", name)
	}

	id := path.Join(parent, name)
	if err := s.ensureFolder(id); err != nil {
		return "", err
	}
	if err := s.bumpSequence(parent); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) DeleteFolder(ctx context.Context, folderID string, recursive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder, err := cleanID("DeleteFolder", folderID)
	if err != nil {
		return err
	}
	if folder == RootFolder {
		return storage.NewErrorf("DeleteFolder", storage.ErrInvalidID, "cannot delete the root folder")
	}
	ok, err := s.folderExists(folder)
	if err != nil {
		return err
	}
	if !ok {
		return storage.NewErrorf("DeleteFolder", storage.ErrNotFound, "folder %s", folderID)
	}

	entries, err := afero.ReadDir(s.fs, folder)
	if err != nil {
		return err
	}
	empty := true
	for _, entry := range entries {
		if entry.Name() != sidecarDir {
			empty = false
			break
		}
	}
	if !empty && !recursive {
		return storage.NewErrorf("DeleteFolder", storage.ErrFolderNotEmpty, "folder %s", folderID)
	}

	if err := s.dropFromIndex(folder); err != nil {
		return err
	}
	if err := s.fs.RemoveAll(folder); err != nil {
		return err
	}
	return s.bumpSequence(path.Dir(folder))
}

// dropFromIndex removes every indexed file below a folder.
func (s *Store) dropFromIndex(folder string) error {
	entries, err := afero.ReadDir(s.fs, folder)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == sidecarDir {
			continue
		}
		id := path.Join(folder, entry.Name())
		if entry.IsDir() {
			if err := s.dropFromIndex(id); err != nil {
				return err
			}
			continue
		}
		if err := s.index.remove(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SequenceNumber(ctx context.Context, folderID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder, err := cleanID("SequenceNumber", folderID)
	if err != nil {
		return 0, err
	}
	ok, err := s.folderExists(folder)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, storage.NewErrorf("SequenceNumber", storage.ErrNotFound, "folder %s", folderID)
	}
	meta, err := s.readFolderMeta(folder)
	if err != nil {
		return 0, err
	}
	return meta.Sequence, nil
}

// --- versions and locks ---

func (s *Store) ListVersions(ctx context.Context, fileID string) ([]*storage.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := cleanID("ListVersions", fileID)
	if err != nil {
		return nil, err
	}
	meta, err := s.readMeta("ListVersions", id)
	if err != nil {
		return nil, err
	}
	out := make([]*storage.File, 0, len(meta.Versions))
	for i := len(meta.Versions) - 1; i >= 0; i-- {
		out = append(out, toStorageFile(id, meta, &meta.Versions[i]))
	}
	return out, nil
}

func (s *Store) DeleteVersions(ctx context.Context, fileID string, versions []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := cleanID("DeleteVersions", fileID)
	if err != nil {
		return nil, err
	}
	meta, err := s.readMeta("DeleteVersions", id)
	if err != nil {
		return nil, err
	}

	var conflicting []string
	for _, label := range versions {
		number, err := strconv.Atoi(label)
		if err != nil || number == meta.Current {
			conflicting = append(conflicting, label)
			continue
		}
		removed := false
		for i, v := range meta.Versions {
			if v.Number == number {
				meta.Versions = append(meta.Versions[:i], meta.Versions[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			conflicting = append(conflicting, label)
			continue
		}
		if err := s.fs.Remove(versionPath(id, number)); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err := s.writeMeta(id, meta); err != nil {
		return nil, err
	}
	return conflicting, nil
}

func (s *Store) PromoteVersion(ctx context.Context, fileID, version string) (*storage.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := cleanID("PromoteVersion", fileID)
	if err != nil {
		return nil, err
	}
	meta, err := s.readMeta("PromoteVersion", id)
	if err != nil {
		return nil, err
	}
	ver, err := meta.version("PromoteVersion", id, version)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, versionPath(id, ver.Number))
	if err != nil {
		return nil, err
	}
	if err := afero.WriteFile(s.fs, id, data, 0o644); err != nil {
		return nil, err
	}
	meta.Current = ver.Number
	if err := s.writeMeta(id, meta); err != nil {
		return nil, err
	}
	if err := s.bumpSequence(path.Dir(id)); err != nil {
		return nil, err
	}
	return toStorageFile(id, meta, ver), nil
}

func (s *Store) Lock(ctx context.Context, fileID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := cleanID("Lock", fileID)
	if err != nil {
		return err
	}
	meta, err := s.readMeta("Lock", id)
	if err != nil {
		return err
	}
	until := time.Now().Add(ttl)
	meta.LockedUntil = &until
	return s.writeMeta(id, meta)
}

func (s *Store) Unlock(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := cleanID("Unlock", fileID)
	if err != nil {
		return err
	}
	meta, err := s.readMeta("Unlock", id)
	if err != nil {
		return err
	}
	meta.LockedUntil = nil
	return s.writeMeta(id, meta)
}

var (
	_ storage.FileAccess         = (*Store)(nil)
	_ storage.VersionAccess      = (*Store)(nil)
	_ storage.LockAccess         = (*Store)(nil)
	_ storage.RangeAccess        = (*Store)(nil)
	_ storage.SearchAccess       = (*Store)(nil)
	_ storage.CapabilityReporter = (*Store)(nil)
)
