package fileid

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Default service and account for identifiers that predate federation.
// A bare "folder/file" pair is interpreted as belonging to the built-in
// infostore account.
const (
	DefaultService = "infostore"
	DefaultAccount = "infostore"
)

// FileID is a fully-qualified file identifier containing:
//   - Service: Storage service type (e.g., "infostore", "s3", "gdrive")
//   - Account: Configured account of that service
//   - Folder: Backend-specific folder identifier
//   - File: Backend-specific file identifier
//
// FileIDs serialize to an opaque string of the form
// "service://account/folder/file" with URL-escaped segments. They are
// constructed per request and never persisted.
type FileID struct {
	service string
	account string
	folder  string
	file    string
}

// FolderID identifies a folder within one backend account. It shares the
// wire format of FileID minus the trailing file segment.
type FolderID struct {
	service string
	account string
	folder  string
}

// NewFileID creates a fully-qualified file identifier.
func NewFileID(service, account, folder, file string) FileID {
	return FileID{service: service, account: account, folder: folder, file: file}
}

// NewFolderID creates a fully-qualified folder identifier.
func NewFolderID(service, account, folder string) FolderID {
	return FolderID{service: service, account: account, folder: folder}
}

// Service returns the storage service identifier.
func (id FileID) Service() string { return id.service }

// Account returns the account identifier within the service.
func (id FileID) Account() string { return id.account }

// Folder returns the backend-specific folder identifier.
func (id FileID) Folder() string { return id.folder }

// File returns the backend-specific file identifier.
func (id FileID) File() string { return id.file }

// FolderID returns the folder portion of the file identifier.
func (id FileID) FolderID() FolderID {
	return FolderID{service: id.service, account: id.account, folder: id.folder}
}

// IsZero returns true if no fields are set.
func (id FileID) IsZero() bool {
	return id.service == "" && id.account == "" && id.folder == "" && id.file == ""
}

// Equal returns true if two FileIDs reference the same file.
func (id FileID) Equal(other FileID) bool { return id == other }

// SameAccount reports whether two identifiers resolve to the same
// backend account. Cross-account operations (move, copy, transfer) take
// the slow save-then-delete path.
func (id FileID) SameAccount(other FileID) bool {
	return id.service == other.service && id.account == other.account
}

// String returns the canonical opaque form "service://account/folder/file".
func (id FileID) String() string {
	if id.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s://%s/%s/%s",
		escape(id.service), escape(id.account), escape(id.folder), escape(id.file))
}

// Service returns the storage service identifier.
func (id FolderID) Service() string { return id.service }

// Account returns the account identifier within the service.
func (id FolderID) Account() string { return id.account }

// Folder returns the backend-specific folder identifier.
func (id FolderID) Folder() string { return id.folder }

// IsZero returns true if no fields are set.
func (id FolderID) IsZero() bool {
	return id.service == "" && id.account == "" && id.folder == ""
}

// Equal returns true if two FolderIDs reference the same folder.
func (id FolderID) Equal(other FolderID) bool { return id == other }

// SameAccount reports whether two folder identifiers resolve to the same
// backend account.
func (id FolderID) SameAccount(other FolderID) bool {
	return id.service == other.service && id.account == other.account
}

// FileID returns the identifier of a file inside this folder.
func (id FolderID) FileID(file string) FileID {
	return FileID{service: id.service, account: id.account, folder: id.folder, file: file}
}

// String returns the canonical opaque form "service://account/folder".
func (id FolderID) String() string {
	if id.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s://%s/%s", escape(id.service), escape(id.account), escape(id.folder))
}

// ParseFileID parses an opaque composite file identifier.
// Supports:
//   - Canonical: "service://account/folder/file"
//   - Relaxed:   "folder/file" (maps to the default infostore account)
func ParseFileID(s string) (FileID, error) {
	if s == "" {
		return FileID{}, fmt.Errorf("file ID cannot be empty")
	}

	service, account, rest, qualified, err := splitAuthority(s)
	if err != nil {
		return FileID{}, err
	}

	if !qualified {
		// Legacy "folder/file" form.
		idx := strings.LastIndex(rest, "/")
		if idx <= 0 || idx == len(rest)-1 {
			return FileID{}, fmt.Errorf("unrecognized file ID format: %s", s)
		}
		folder, err := unescape(rest[:idx])
		if err != nil {
			return FileID{}, err
		}
		file, err := unescape(rest[idx+1:])
		if err != nil {
			return FileID{}, err
		}
		return FileID{service: DefaultService, account: DefaultAccount, folder: folder, file: file}, nil
	}

	idx := strings.LastIndex(rest, "/")
	if idx <= 0 || idx == len(rest)-1 {
		return FileID{}, fmt.Errorf("file ID missing file segment: %s", s)
	}
	folder, err := unescape(rest[:idx])
	if err != nil {
		return FileID{}, err
	}
	file, err := unescape(rest[idx+1:])
	if err != nil {
		return FileID{}, err
	}

	return FileID{service: service, account: account, folder: folder, file: file}, nil
}

// ParseFolderID parses an opaque composite folder identifier.
// Supports:
//   - Canonical: "service://account/folder"
//   - Relaxed:   "folder" (maps to the default infostore account)
func ParseFolderID(s string) (FolderID, error) {
	if s == "" {
		return FolderID{}, fmt.Errorf("folder ID cannot be empty")
	}

	service, account, rest, qualified, err := splitAuthority(s)
	if err != nil {
		return FolderID{}, err
	}

	folder, err := unescape(rest)
	if err != nil {
		return FolderID{}, err
	}
	if folder == "" {
		return FolderID{}, fmt.Errorf("folder ID missing folder segment: %s", s)
	}

	if !qualified {
		return FolderID{service: DefaultService, account: DefaultAccount, folder: folder}, nil
	}
	return FolderID{service: service, account: account, folder: folder}, nil
}

// splitAuthority splits "service://account/rest". Returns qualified=false
// when the input carries no service scheme.
func splitAuthority(s string) (service, account, rest string, qualified bool, err error) {
	idx := strings.Index(s, "://")
	if idx < 0 {
		return "", "", s, false, nil
	}
	if idx == 0 {
		return "", "", "", false, fmt.Errorf("empty service in ID: %s", s)
	}

	service, err = unescape(s[:idx])
	if err != nil {
		return "", "", "", false, err
	}

	remainder := s[idx+3:]
	slash := strings.Index(remainder, "/")
	if slash <= 0 {
		return "", "", "", false, fmt.Errorf("ID missing account segment: %s", s)
	}
	account, err = unescape(remainder[:slash])
	if err != nil {
		return "", "", "", false, err
	}

	return service, account, remainder[slash+1:], true, nil
}

// MarshalJSON implements json.Marshaler. FileIDs serialize as their
// canonical opaque string.
func (id FileID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *FileID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid FileID JSON: %w", err)
	}
	if s == "" {
		*id = FileID{}
		return nil
	}
	parsed, err := ParseFileID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (id FolderID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *FolderID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid FolderID JSON: %w", err)
	}
	if s == "" {
		*id = FolderID{}
		return nil
	}
	parsed, err := ParseFolderID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func escape(s string) string {
	return url.PathEscape(s)
}

func unescape(s string) (string, error) {
	out, err := url.PathUnescape(s)
	if err != nil {
		return "", fmt.Errorf("invalid escaping in ID segment %q: %w", s, err)
	}
	return out, nil
}
