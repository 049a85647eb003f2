package storage

import (
	"io"
	"time"
)

// CurrentVersion addresses the most recent version of a file in all
// version-aware operations.
const CurrentVersion = ""

// File is provider-agnostic file metadata. Identifiers are backend-local;
// the compositing layer translates them to and from composite form at the
// API boundary.
type File struct {
	// Backend-local identifiers
	ID     string `json:"id"`
	Folder string `json:"folder"`

	// Core metadata
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`

	// Descriptive metadata. Not every backend can persist these; the
	// transfer layer records a warning when they are dropped.
	Description string   `json:"description,omitempty"`
	Categories  []string `json:"categories,omitempty"`

	// Versioning
	Version          string `json:"version,omitempty"`
	NumberOfVersions int    `json:"numberOfVersions,omitempty"`
	IsCurrentVersion bool   `json:"isCurrentVersion,omitempty"`
	VersionComment   string `json:"versionComment,omitempty"`

	// Lifecycle
	Created    time.Time `json:"created"`
	Modified   time.Time `json:"modified"`
	CreatedBy  string    `json:"createdBy,omitempty"`
	ModifiedBy string    `json:"modifiedBy,omitempty"`

	// Locking
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`

	// Object-level shares. Only permission-aware backends persist these.
	Permissions []Permission `json:"permissions,omitempty"`

	// Sequence number of the file for client synchronization.
	Sequence int64 `json:"sequence,omitempty"`

	// Checksum of the current content, when the backend tracks one.
	Checksum string `json:"checksum,omitempty"`
}

// Copy returns a deep copy of the file metadata.
func (f *File) Copy() *File {
	dup := *f
	if f.Categories != nil {
		dup.Categories = append([]string(nil), f.Categories...)
	}
	if f.Permissions != nil {
		dup.Permissions = append([]Permission(nil), f.Permissions...)
	}
	if f.LockedUntil != nil {
		t := *f.LockedUntil
		dup.LockedUntil = &t
	}
	return &dup
}

// Folder is provider-agnostic folder metadata with backend-local IDs.
type Folder struct {
	ID       string    `json:"id"`
	ParentID string    `json:"parentId,omitempty"`
	Name     string    `json:"name"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`

	// Sequence number advances on every mutation below the folder.
	Sequence int64 `json:"sequence,omitempty"`
}

// Field names addressable in partial metadata saves.
type Field string

const (
	FieldName        Field = "name"
	FieldDescription Field = "description"
	FieldCategories  Field = "categories"
	FieldMimeType    Field = "mimeType"
	FieldPermissions Field = "permissions"
	FieldFolder      Field = "folder"
)

// Document couples file metadata with its content stream. The caller
// owns the stream and must close it.
type Document struct {
	File    *File
	Content io.ReadCloser
}

// Rights is a bitmask of object permission bits.
type Rights uint8

const (
	RightRead Rights = 1 << iota
	RightWrite
	RightDelete
	RightShare
)

// Has reports whether all bits in r2 are present in r.
func (r Rights) Has(r2 Rights) bool { return r&r2 == r2 }

// EntityType classifies the recipient of an object permission.
type EntityType string

const (
	EntityUser      EntityType = "user"
	EntityGroup     EntityType = "group"
	EntityGuest     EntityType = "guest"
	EntityAnonymous EntityType = "anonymous" // anonymous share link
)

// Permission is one object-level permission entry on a file.
type Permission struct {
	// Entity is the recipient: a user or group identifier for internal
	// entities, an email address for guests, the share token for
	// anonymous links.
	Entity string     `json:"entity"`
	Type   EntityType `json:"type"`
	Rights Rights     `json:"rights"`

	// Expiry applies to guest and anonymous entries only.
	Expiry *time.Time `json:"expiry,omitempty"`

	// Password protects anonymous links when set.
	Password string `json:"password,omitempty"`
}

// IsGuest reports whether the permission addresses an external recipient.
func (p Permission) IsGuest() bool {
	return p.Type == EntityGuest || p.Type == EntityAnonymous
}

// SortField selects the ordering attribute of listings and search
// results.
type SortField string

const (
	SortByName     SortField = "name"
	SortByModified SortField = "modified"
	SortByCreated  SortField = "created"
	SortBySize     SortField = "size"
)

// SortOrder is the direction of a sorted listing.
type SortOrder string

const (
	OrderAscending  SortOrder = "asc"
	OrderDescending SortOrder = "desc"
)

// Query describes a metadata search within one backend. Folders are
// backend-local folder IDs; an empty slice searches the whole account.
type Query struct {
	Pattern string
	Folders []string
	Sort    SortField
	Order   SortOrder

	// Pagination window. Limit <= 0 means unbounded.
	Offset int
	Limit  int
}
