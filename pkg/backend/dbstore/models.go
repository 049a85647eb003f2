package dbstore

import (
	"time"
)

// Folder is one row of the folder tree. The root and trash folders are
// created when an account is opened.
type Folder struct {
	ID        uint   `gorm:"primarykey"`
	ParentID  *uint  `gorm:"index"`
	Name      string `gorm:"not null;index"`
	Sequence  int64  `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// File is the version-independent part of a file. Content and
// version-specific metadata live in Version rows.
type File struct {
	ID       uint `gorm:"primarykey"`
	FolderID uint `gorm:"index;not null"`

	// OriginFolderID remembers where the file lived before it was
	// trashed, so Restore can put it back.
	OriginFolderID *uint

	Name        string `gorm:"not null;index"`
	MimeType    string
	Description string
	Categories  []string `gorm:"serializer:json"`

	CreatedBy   string
	ModifiedBy  string
	LockedUntil *time.Time
	Sequence    int64 `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Versions    []Version    `gorm:"constraint:OnDelete:CASCADE"`
	Permissions []Permission `gorm:"constraint:OnDelete:CASCADE"`
}

// Version is one stored version of a file, including its content.
type Version struct {
	ID     uint `gorm:"primarykey"`
	FileID uint `gorm:"index;not null"`

	Number   int `gorm:"not null;index"`
	Current  bool
	Comment  string
	Size     int64
	Checksum string `gorm:"size:64"`
	Content  []byte

	CreatedAt time.Time
}

// Permission is one object permission row on a file.
type Permission struct {
	ID     uint `gorm:"primarykey"`
	FileID uint `gorm:"index;not null"`

	Entity   string `gorm:"not null"`
	Type     string `gorm:"not null"`
	Rights   uint8  `gorm:"not null"`
	Expiry   *time.Time
	Password string

	CreatedAt time.Time
}

// Guest is a provisioned external share recipient. Revoked guests keep
// their row for auditing.
type Guest struct {
	ID uint `gorm:"primarykey"`

	FileID string `gorm:"index;not null"` // composite file ID
	Entity string `gorm:"not null"`
	Type   string `gorm:"not null"`

	CreatedAt time.Time
	RevokedAt *time.Time
}

// modelsToAutoMigrate lists every table of the backend, in dependency
// order.
func modelsToAutoMigrate() []interface{} {
	return []interface{}{
		&Folder{},
		&File{},
		&Version{},
		&Permission{},
		&Guest{},
	}
}
