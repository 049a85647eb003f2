// Package gdrive is a storage backend on Google Drive. File and folder
// identifiers are native Drive IDs, versions map onto Drive revisions,
// and object permissions map onto Drive permissions.
package gdrive

import (
	"encoding/json"
	"time"

	"github.com/araddon/dateparse"
	"google.golang.org/api/drive/v3"

	"github.com/trove-storage/trove/pkg/storage"
)

// ServiceID is the service identifier of the Drive backend in composite
// IDs.
const ServiceID = "gdrive"

// RootFolder is the Drive alias of the account's root folder.
const RootFolder = "root"

const folderMimeType = "application/vnd.google-apps.folder"

// categoriesProperty holds the category labels as a JSON array in the
// file's app properties.
const categoriesProperty = "troveCategories"

// fileFields are the drive.File fields every metadata call requests.
const fileFields = "id,name,mimeType,description,size,version,parents,createdTime,modifiedTime,owners,lastModifyingUser,trashed,md5Checksum,appProperties,permissions"

// parseTime parses a Drive API timestamp. The API emits RFC 3339, but
// the lenient parser also accepts the date-only values some exports
// carry.
func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseAny(value)
	if err != nil {
		return time.Time{}
	}
	return t
}

// encodeCategories packs category labels into one app property value.
func encodeCategories(categories []string) string {
	if len(categories) == 0 {
		return ""
	}
	data, err := json.Marshal(categories)
	if err != nil {
		return ""
	}
	return string(data)
}

// decodeCategories unpacks an app property written by encodeCategories.
func decodeCategories(value string) []string {
	if value == "" {
		return nil
	}
	var categories []string
	if err := json.Unmarshal([]byte(value), &categories); err != nil {
		return []string{value}
	}
	return categories
}

// toStorageFile converts a Drive file to the provider-agnostic shape.
func toStorageFile(f *drive.File) *storage.File {
	out := &storage.File{
		ID:               f.Id,
		Name:             f.Name,
		MimeType:         f.MimeType,
		Size:             f.Size,
		Description:      f.Description,
		Created:          parseTime(f.CreatedTime),
		Modified:         parseTime(f.ModifiedTime),
		Checksum:         f.Md5Checksum,
		IsCurrentVersion: true,
	}
	if len(f.Parents) > 0 {
		out.Folder = f.Parents[0]
	}
	if f.AppProperties != nil {
		out.Categories = decodeCategories(f.AppProperties[categoriesProperty])
	}
	if len(f.Owners) > 0 {
		out.CreatedBy = f.Owners[0].EmailAddress
	}
	if f.LastModifyingUser != nil {
		out.ModifiedBy = f.LastModifyingUser.EmailAddress
	}
	for _, p := range f.Permissions {
		if perm, ok := toStoragePermission(p); ok {
			out.Permissions = append(out.Permissions, perm)
		}
	}
	return out
}

// toStorageFolder converts a Drive folder to the provider-agnostic
// shape.
func toStorageFolder(f *drive.File) *storage.Folder {
	out := &storage.Folder{
		ID:       f.Id,
		Name:     f.Name,
		Created:  parseTime(f.CreatedTime),
		Modified: parseTime(f.ModifiedTime),
	}
	if len(f.Parents) > 0 {
		out.ParentID = f.Parents[0]
	}
	return out
}

// revisionFile converts a Drive revision to file metadata. Revision IDs
// are backend-generated tokens.
func revisionFile(fileID string, base *storage.File, rev *drive.Revision, current bool) *storage.File {
	out := &storage.File{
		ID:               fileID,
		Folder:           base.Folder,
		Name:             base.Name,
		MimeType:         rev.MimeType,
		Size:             rev.Size,
		Modified:         parseTime(rev.ModifiedTime),
		Version:          rev.Id,
		IsCurrentVersion: current,
		Checksum:         rev.Md5Checksum,
	}
	if rev.LastModifyingUser != nil {
		out.ModifiedBy = rev.LastModifyingUser.EmailAddress
	}
	return out
}

// roleFor maps a rights mask onto the closest Drive role.
func roleFor(rights storage.Rights) string {
	if rights.Has(storage.RightWrite) {
		return "writer"
	}
	return "reader"
}

// rightsFor maps a Drive role back onto a rights mask.
func rightsFor(role string) storage.Rights {
	switch role {
	case "owner", "organizer", "fileOrganizer":
		return storage.RightRead | storage.RightWrite | storage.RightDelete | storage.RightShare
	case "writer":
		return storage.RightRead | storage.RightWrite | storage.RightDelete
	default:
		return storage.RightRead
	}
}

// toDrivePermission converts an object permission to its Drive form.
func toDrivePermission(p storage.Permission) *drive.Permission {
	out := &drive.Permission{Role: roleFor(p.Rights)}
	switch p.Type {
	case storage.EntityAnonymous:
		out.Type = "anyone"
	case storage.EntityGroup:
		out.Type = "group"
		out.EmailAddress = p.Entity
	default:
		// Internal users and external guests are both Drive users
		// addressed by email.
		out.Type = "user"
		out.EmailAddress = p.Entity
	}
	if p.Expiry != nil {
		out.ExpirationTime = p.Expiry.UTC().Format(time.RFC3339)
	}
	return out
}

// toStoragePermission converts a Drive permission. Owner entries are
// skipped: ownership is not an object share.
func toStoragePermission(p *drive.Permission) (storage.Permission, bool) {
	if p == nil || p.Role == "owner" {
		return storage.Permission{}, false
	}
	out := storage.Permission{Rights: rightsFor(p.Role)}
	switch p.Type {
	case "anyone":
		out.Type = storage.EntityAnonymous
		out.Entity = p.Id
	case "group":
		out.Type = storage.EntityGroup
		out.Entity = p.EmailAddress
	default:
		out.Type = storage.EntityUser
		out.Entity = p.EmailAddress
	}
	if p.ExpirationTime != "" {
		if t := parseTime(p.ExpirationTime); !t.IsZero() {
			out.Expiry = &t
		}
	}
	return out, true
}
