package gdrive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"

	"github.com/trove-storage/trove/pkg/storage"
)

func TestToStorageFile(t *testing.T) {
	f := &drive.File{
		Id:           "abc123",
		Name:         "plan.txt",
		MimeType:     "text/plain",
		Description:  "quarterly plan",
		Size:         42,
		Parents:      []string{"folder1"},
		CreatedTime:  "2026-01-10T09:00:00Z",
		ModifiedTime: "2026-02-01T10:30:00Z",
		Md5Checksum:  "d41d8cd98f00b204e9800998ecf8427e",
		AppProperties: map[string]string{
			categoriesProperty: `["planning","q1"]`,
		},
		Owners:            []*drive.User{{EmailAddress: "alice@example.com"}},
		LastModifyingUser: &drive.User{EmailAddress: "bob@example.com"},
		Permissions: []*drive.Permission{
			{Id: "p1", Type: "user", Role: "owner", EmailAddress: "alice@example.com"},
			{Id: "p2", Type: "user", Role: "writer", EmailAddress: "bob@example.com"},
			{Id: "p3", Type: "anyone", Role: "reader"},
		},
	}

	got := toStorageFile(f)
	assert.Equal(t, "abc123", got.ID)
	assert.Equal(t, "folder1", got.Folder)
	assert.Equal(t, "plan.txt", got.Name)
	assert.Equal(t, "quarterly plan", got.Description)
	assert.Equal(t, []string{"planning", "q1"}, got.Categories)
	assert.Equal(t, int64(42), got.Size)
	assert.Equal(t, "alice@example.com", got.CreatedBy)
	assert.Equal(t, "bob@example.com", got.ModifiedBy)
	assert.Equal(t, time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC), got.Modified.UTC())

	// The owner entry is not a share.
	require.Len(t, got.Permissions, 2)
	assert.Equal(t, storage.EntityUser, got.Permissions[0].Type)
	assert.Equal(t, "bob@example.com", got.Permissions[0].Entity)
	assert.True(t, got.Permissions[0].Rights.Has(storage.RightWrite))
	assert.Equal(t, storage.EntityAnonymous, got.Permissions[1].Type)
	assert.Equal(t, storage.RightRead, got.Permissions[1].Rights)
}

func TestParseTime(t *testing.T) {
	assert.Equal(t, time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
		parseTime("2026-01-10T09:00:00Z").UTC())
	assert.Equal(t, 2026, parseTime("2026-01-10").Year())
	assert.True(t, parseTime("").IsZero())
	assert.True(t, parseTime("not a time").IsZero())
}

func TestCategoriesRoundTrip(t *testing.T) {
	in := []string{"planning", "a, b"}
	assert.Equal(t, in, decodeCategories(encodeCategories(in)))
	assert.Equal(t, "", encodeCategories(nil))
	assert.Nil(t, decodeCategories(""))
	assert.Equal(t, []string{"legacy"}, decodeCategories("legacy"))
}

func TestPermissionMapping(t *testing.T) {
	expiry := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		in         storage.Permission
		wantType   string
		wantRole   string
		wantEmail  string
		wantExpiry string
	}{
		{
			name:     "internal user read-only",
			in:       storage.Permission{Type: storage.EntityUser, Entity: "carol", Rights: storage.RightRead},
			wantType: "user", wantRole: "reader", wantEmail: "carol",
		},
		{
			name:     "group writer",
			in:       storage.Permission{Type: storage.EntityGroup, Entity: "eng@example.com", Rights: storage.RightRead | storage.RightWrite},
			wantType: "group", wantRole: "writer", wantEmail: "eng@example.com",
		},
		{
			name:     "guest with expiry",
			in:       storage.Permission{Type: storage.EntityGuest, Entity: "ext@other.com", Rights: storage.RightRead, Expiry: &expiry},
			wantType: "user", wantRole: "reader", wantEmail: "ext@other.com",
			wantExpiry: "2026-03-01T00:00:00Z",
		},
		{
			name:     "anonymous link",
			in:       storage.Permission{Type: storage.EntityAnonymous, Rights: storage.RightRead},
			wantType: "anyone", wantRole: "reader",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toDrivePermission(tt.in)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantRole, got.Role)
			assert.Equal(t, tt.wantEmail, got.EmailAddress)
			assert.Equal(t, tt.wantExpiry, got.ExpirationTime)
		})
	}
}

func TestRightsForRole(t *testing.T) {
	assert.Equal(t, storage.RightRead, rightsFor("reader"))
	assert.Equal(t, storage.RightRead, rightsFor("commenter"))
	assert.True(t, rightsFor("writer").Has(storage.RightDelete))
	assert.True(t, rightsFor("owner").Has(storage.RightShare))
}

func TestRevisionFile(t *testing.T) {
	base := &storage.File{ID: "abc123", Folder: "folder1", Name: "plan.txt"}
	rev := &drive.Revision{
		Id:           "rev7",
		MimeType:     "text/plain",
		Size:         10,
		ModifiedTime: "2026-02-01T10:30:00Z",
	}
	got := revisionFile("abc123", base, rev, false)
	assert.Equal(t, "abc123", got.ID)
	assert.Equal(t, "plan.txt", got.Name)
	assert.Equal(t, "rev7", got.Version)
	assert.False(t, got.IsCurrentVersion)
	assert.Equal(t, int64(10), got.Size)
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `it\'s`, escapeQuery("it's"))
	assert.Equal(t, "plain", escapeQuery("plain"))
}
