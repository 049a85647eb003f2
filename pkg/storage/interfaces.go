package storage

import (
	"context"
	"io"
	"time"
)

// FileAccess is the core interface every storage backend implements. All
// identifiers are backend-local. Extended behavior is expressed through
// the optional capability interfaces below and discovered with Supports.
type FileAccess interface {
	// ServiceID identifies the backend implementation ("infostore",
	// "s3", "gdrive", ...).
	ServiceID() string

	// AccountID identifies the configured account this handle is bound to.
	AccountID() string

	// Exists reports whether a file (at an optional version) exists.
	Exists(ctx context.Context, fileID, version string) (bool, error)

	// GetMetadata retrieves file metadata at an optional version.
	// CurrentVersion addresses the most recent version.
	GetMetadata(ctx context.Context, fileID, version string) (*File, error)

	// SaveMetadata updates the fields listed in modified. An empty field
	// list saves all writable fields.
	SaveMetadata(ctx context.Context, file *File, modified []Field) (*File, error)

	// GetDocument retrieves the content stream of a file at an optional
	// version. The caller must close the stream.
	GetDocument(ctx context.Context, fileID, version string) (io.ReadCloser, error)

	// SaveDocument writes file metadata and content. A zero file ID
	// creates a new file; otherwise a new version of the existing file.
	SaveDocument(ctx context.Context, file *File, content io.Reader) (*File, error)

	// Copy copies a file (at an optional version) into destFolder and
	// returns the new file ID.
	Copy(ctx context.Context, fileID, version, destFolder string) (string, error)

	// Move moves a file into destFolder and returns the (possibly
	// changed) file ID.
	Move(ctx context.Context, fileID, destFolder string) (string, error)

	// Delete removes the given files. Files that could not be deleted
	// are returned as still-conflicting IDs rather than failing the
	// whole batch.
	Delete(ctx context.Context, fileIDs []string, hardDelete bool) ([]string, error)

	// ListFolder lists the files in a folder, ordered by the given sort.
	ListFolder(ctx context.Context, folderID string, sort SortField, order SortOrder) ([]*File, error)

	// GetFolder retrieves folder metadata.
	GetFolder(ctx context.Context, folderID string) (*Folder, error)

	// ListSubfolders lists the direct subfolders of a folder.
	ListSubfolders(ctx context.Context, folderID string) ([]*Folder, error)

	// CreateFolder creates a folder below parentID and returns its ID.
	CreateFolder(ctx context.Context, parentID, name string) (string, error)

	// DeleteFolder removes a folder. Fails with ErrFolderNotEmpty unless
	// recursive is set.
	DeleteFolder(ctx context.Context, folderID string, recursive bool) error

	// SequenceNumber returns the folder's sequence number, advancing on
	// every mutation beneath it.
	SequenceNumber(ctx context.Context, folderID string) (int64, error)
}

// VersionAccess is implemented by backends that retain file versions.
type VersionAccess interface {
	// ListVersions returns all versions of a file, newest first.
	ListVersions(ctx context.Context, fileID string) ([]*File, error)

	// DeleteVersions removes the given versions, returning the versions
	// that could not be removed.
	DeleteVersions(ctx context.Context, fileID string, versions []string) ([]string, error)

	// PromoteVersion makes an older version the current one.
	PromoteVersion(ctx context.Context, fileID, version string) (*File, error)
}

// LockAccess is implemented by backends that support advisory file locks.
type LockAccess interface {
	// Lock locks a file for the given duration.
	Lock(ctx context.Context, fileID string, ttl time.Duration) error

	// Unlock releases a lock.
	Unlock(ctx context.Context, fileID string) error
}

// RangeAccess is implemented by backends that can serve partial content.
type RangeAccess interface {
	// ReadRange streams length bytes starting at offset. A negative
	// length reads to the end of the document.
	ReadRange(ctx context.Context, fileID, version string, offset, length int64) (io.ReadCloser, error)
}

// SearchAccess is implemented by backends with native metadata search.
type SearchAccess interface {
	// Search runs a metadata query and returns matches ordered per the
	// query's sort settings.
	Search(ctx context.Context, q *Query) ([]*File, error)
}

// MultiMoveAccess is implemented by backends that can move a batch of
// files in one operation.
type MultiMoveAccess interface {
	// MoveAll moves the given files into destFolder and returns the IDs
	// that could not be moved.
	MoveAll(ctx context.Context, fileIDs []string, destFolder string) ([]string, error)
}

// RestoreAccess is implemented by backends with a trash folder.
type RestoreAccess interface {
	// Restore moves trashed files back to their origin, falling back to
	// defaultDest when the origin is gone. Returns a map of file ID to
	// the folder it was restored into.
	Restore(ctx context.Context, fileIDs []string, defaultDest string) (map[string]string, error)
}

// IgnorableVersionAccess marks backends whose version identifiers are
// synthetic (for example S3 version tokens). Synthetic versions are
// reported to clients but never round-tripped into saves.
type IgnorableVersionAccess interface {
	VersionsAreSynthetic() bool
}

// Transactional is implemented by backends whose mutations participate
// in a backend-local transaction. The compositing layer brackets every
// mutating operation in StartTransaction/Commit, rolling back on error.
// Transactions never span more than one backend.
type Transactional interface {
	StartTransaction(ctx context.Context) error
	Commit() error
	Rollback() error
}

// Capability identifies one unit of optional backend behavior.
type Capability uint32

const (
	CapVersions Capability = 1 << iota
	CapLocks
	CapRanges
	CapSearch
	CapMultiMove
	CapRestore
	CapTransactions
	CapIgnorableVersions

	// Metadata capabilities, reported via CapabilityReporter because
	// they are properties of the data model rather than the interface
	// surface.
	CapObjectPermissions
	CapNotes
	CapCategories
)

// CapabilityReporter lets a backend declare metadata capabilities that
// cannot be inferred from its interface set.
type CapabilityReporter interface {
	Capabilities() Capability
}

// CapabilitiesOf derives the capability set of a backend handle from its
// interface surface, merged with any self-reported metadata capabilities.
func CapabilitiesOf(fa FileAccess) Capability {
	var caps Capability
	if _, ok := fa.(VersionAccess); ok {
		caps |= CapVersions
	}
	if _, ok := fa.(LockAccess); ok {
		caps |= CapLocks
	}
	if _, ok := fa.(RangeAccess); ok {
		caps |= CapRanges
	}
	if _, ok := fa.(SearchAccess); ok {
		caps |= CapSearch
	}
	if _, ok := fa.(MultiMoveAccess); ok {
		caps |= CapMultiMove
	}
	if _, ok := fa.(RestoreAccess); ok {
		caps |= CapRestore
	}
	if _, ok := fa.(Transactional); ok {
		caps |= CapTransactions
	}
	if iv, ok := fa.(IgnorableVersionAccess); ok && iv.VersionsAreSynthetic() {
		caps |= CapIgnorableVersions
	}
	if r, ok := fa.(CapabilityReporter); ok {
		caps |= r.Capabilities()
	}
	return caps
}

// Supports reports whether the backend handle provides the capability.
func Supports(fa FileAccess, cap Capability) bool {
	return CapabilitiesOf(fa)&cap == cap
}
