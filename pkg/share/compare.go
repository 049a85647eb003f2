// Package share reconciles object-level permission changes with the
// guest and link provisioning service. Saving a file with modified
// permissions produces a diff; new external recipients are provisioned
// synchronously, revoked ones are cleaned up in the background.
package share

import (
	"github.com/trove-storage/trove/pkg/storage"
)

// ComparedPermissions is the diff between the stored permissions of a
// file and the permissions of an incoming save.
type ComparedPermissions struct {
	Added    []storage.Permission
	Modified []storage.Permission
	Removed  []storage.Permission
}

// HasChanges reports whether the diff is non-empty.
func (c *ComparedPermissions) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Modified) > 0 || len(c.Removed) > 0
}

// AddedGuests returns the added entries that address external
// recipients and therefore need provisioning.
func (c *ComparedPermissions) AddedGuests() []storage.Permission {
	return filterGuests(c.Added)
}

// RemovedGuests returns the removed entries that address external
// recipients and therefore need cleanup.
func (c *ComparedPermissions) RemovedGuests() []storage.Permission {
	return filterGuests(c.Removed)
}

func filterGuests(perms []storage.Permission) []storage.Permission {
	var out []storage.Permission
	for _, p := range perms {
		if p.IsGuest() {
			out = append(out, p)
		}
	}
	return out
}

// Compare diffs two permission lists. Entries match on recipient type
// and entity; matched entries whose rights, expiry or password differ
// count as modified.
func Compare(old, new []storage.Permission) *ComparedPermissions {
	diff := &ComparedPermissions{}

	oldByKey := make(map[permKey]storage.Permission, len(old))
	for _, p := range old {
		oldByKey[keyOf(p)] = p
	}

	seen := make(map[permKey]bool, len(new))
	for _, p := range new {
		key := keyOf(p)
		seen[key] = true
		prev, exists := oldByKey[key]
		if !exists {
			diff.Added = append(diff.Added, p)
			continue
		}
		if !permEqual(prev, p) {
			diff.Modified = append(diff.Modified, p)
		}
	}

	for _, p := range old {
		if !seen[keyOf(p)] {
			diff.Removed = append(diff.Removed, p)
		}
	}
	return diff
}

type permKey struct {
	typ    storage.EntityType
	entity string
}

func keyOf(p storage.Permission) permKey {
	return permKey{typ: p.Type, entity: p.Entity}
}

func permEqual(a, b storage.Permission) bool {
	if a.Rights != b.Rights || a.Password != b.Password {
		return false
	}
	switch {
	case a.Expiry == nil && b.Expiry == nil:
		return true
	case a.Expiry == nil || b.Expiry == nil:
		return false
	default:
		return a.Expiry.Equal(*b.Expiry)
	}
}
