package s3

import (
	"encoding/json"
	"path"
	"strings"

	"github.com/trove-storage/trove/pkg/storage"
)

// RootFolder is the backend-local ID of the root folder.
const RootFolder = "."

// folderMarker is the zero-byte object that makes an empty folder
// visible in a flat key namespace.
const folderMarker = ".trove-folder"

// User metadata keys on stored objects. S3 lowercases metadata keys.
const (
	metaDescription    = "description"
	metaCategories     = "categories"
	metaCreatedBy      = "created-by"
	metaModifiedBy     = "modified-by"
	metaVersionComment = "version-comment"
)

// cleanID normalizes a backend-local path ID and rejects escapes.
func cleanID(op, id string) (string, error) {
	if id == "" {
		return "", storage.NewErrorf(op, storage.ErrInvalidID, "empty ID")
	}
	clean := path.Clean("/" + id)[1:]
	if clean == "" {
		clean = RootFolder
	}
	if strings.HasPrefix(clean, "..") || path.Base(clean) == folderMarker {
		return "", storage.NewErrorf(op, storage.ErrInvalidID, "%q", id)
	}
	return clean, nil
}

// objectKey maps a backend-local file ID onto the bucket key space.
func (s *Store) objectKey(fileID string) string {
	if s.prefix == "" {
		return fileID
	}
	return s.prefix + "/" + fileID
}

// fileID maps a bucket key back to a backend-local file ID.
func (s *Store) fileID(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+"/")
}

// folderPrefix returns the key prefix of a folder, with trailing slash.
func (s *Store) folderPrefix(folderID string) string {
	if folderID == RootFolder {
		if s.prefix == "" {
			return ""
		}
		return s.prefix + "/"
	}
	return s.objectKey(folderID) + "/"
}

// markerKey returns the key of a folder's marker object.
func (s *Store) markerKey(folderID string) string {
	return s.folderPrefix(folderID) + folderMarker
}

// folderOf returns the folder ID holding a file ID.
func folderOf(fileID string) string {
	dir := path.Dir(fileID)
	if dir == "." || dir == "/" {
		return RootFolder
	}
	return dir
}

// encodeCategories packs category labels into one metadata value.
// Labels may contain commas, so the value is a JSON array.
func encodeCategories(categories []string) (string, error) {
	if len(categories) == 0 {
		return "", nil
	}
	data, err := json.Marshal(categories)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeCategories unpacks a metadata value written by encodeCategories.
func decodeCategories(value string) []string {
	if value == "" {
		return nil
	}
	var categories []string
	if err := json.Unmarshal([]byte(value), &categories); err != nil {
		// Legacy plain value, treat as a single label.
		return []string{value}
	}
	return categories
}

// objectMetadata builds the S3 user metadata of a file.
func objectMetadata(f *storage.File) (map[string]string, error) {
	meta := make(map[string]string)
	if f.Description != "" {
		meta[metaDescription] = f.Description
	}
	categories, err := encodeCategories(f.Categories)
	if err != nil {
		return nil, err
	}
	if categories != "" {
		meta[metaCategories] = categories
	}
	if f.CreatedBy != "" {
		meta[metaCreatedBy] = f.CreatedBy
	}
	if f.ModifiedBy != "" {
		meta[metaModifiedBy] = f.ModifiedBy
	}
	if f.VersionComment != "" {
		meta[metaVersionComment] = f.VersionComment
	}
	return meta, nil
}

// applyMetadata copies decoded S3 user metadata onto a file.
func applyMetadata(f *storage.File, meta map[string]string) {
	f.Description = meta[metaDescription]
	f.Categories = decodeCategories(meta[metaCategories])
	f.CreatedBy = meta[metaCreatedBy]
	f.ModifiedBy = meta[metaModifiedBy]
	f.VersionComment = meta[metaVersionComment]
}
