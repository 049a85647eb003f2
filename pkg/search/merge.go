package search

import (
	"github.com/trove-storage/trove/pkg/storage"
)

// merge combines per-backend result lists, each already ordered, into
// one list ordered by the same sort settings. A k-way merge keeps the
// relative order within each backend's list intact.
func merge(lists [][]*storage.File, sort storage.SortField, order storage.SortOrder) []*storage.File {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	out := make([]*storage.File, 0, total)
	heads := make([]int, len(lists))

	for len(out) < total {
		best := -1
		for i, l := range lists {
			if heads[i] >= len(l) {
				continue
			}
			if best < 0 || storage.CompareFiles(l[heads[i]], lists[best][heads[best]], sort, order) < 0 {
				best = i
			}
		}
		out = append(out, lists[best][heads[best]])
		heads[best]++
	}
	return out
}

// paginate applies a global offset/limit window to merged results.
func paginate(files []*storage.File, offset, limit int) []*storage.File {
	if offset > 0 {
		if offset >= len(files) {
			return nil
		}
		files = files[offset:]
	}
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files
}
