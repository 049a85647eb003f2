package storage

import (
	"sort"
	"strings"
)

// CompareFiles orders two files by the given sort field and direction.
// Returns a negative number when a sorts before b. Ties break on the
// backend-local file ID so orderings are stable across backends.
func CompareFiles(a, b *File, field SortField, order SortOrder) int {
	var c int
	switch field {
	case SortByModified:
		c = a.Modified.Compare(b.Modified)
	case SortByCreated:
		c = a.Created.Compare(b.Created)
	case SortBySize:
		switch {
		case a.Size < b.Size:
			c = -1
		case a.Size > b.Size:
			c = 1
		}
	default:
		c = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	}
	if c == 0 {
		c = strings.Compare(a.ID, b.ID)
	}
	if order == OrderDescending {
		c = -c
	}
	return c
}

// SortFiles sorts files in place by the given field and direction.
func SortFiles(files []*File, field SortField, order SortOrder) {
	sort.SliceStable(files, func(i, j int) bool {
		return CompareFiles(files[i], files[j], field, order) < 0
	})
}
