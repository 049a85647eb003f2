package share

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trove-storage/trove/pkg/storage"
)

func userPerm(entity string, rights storage.Rights) storage.Permission {
	return storage.Permission{Entity: entity, Type: storage.EntityUser, Rights: rights}
}

func guestPerm(email string, rights storage.Rights) storage.Permission {
	return storage.Permission{Entity: email, Type: storage.EntityGuest, Rights: rights}
}

func TestCompare(t *testing.T) {
	expiry := time.Now().Add(24 * time.Hour)

	tests := []struct {
		name     string
		old, new []storage.Permission
		added    int
		modified int
		removed  int
	}{
		{
			name: "no changes",
			old:  []storage.Permission{userPerm("anton", storage.RightRead)},
			new:  []storage.Permission{userPerm("anton", storage.RightRead)},
		},
		{
			name:  "entry added",
			old:   []storage.Permission{userPerm("anton", storage.RightRead)},
			new:   []storage.Permission{userPerm("anton", storage.RightRead), guestPerm("berta@example.com", storage.RightRead)},
			added: 1,
		},
		{
			name:    "entry removed",
			old:     []storage.Permission{userPerm("anton", storage.RightRead), guestPerm("berta@example.com", storage.RightRead)},
			new:     []storage.Permission{userPerm("anton", storage.RightRead)},
			removed: 1,
		},
		{
			name:     "rights changed",
			old:      []storage.Permission{userPerm("anton", storage.RightRead)},
			new:      []storage.Permission{userPerm("anton", storage.RightRead | storage.RightWrite)},
			modified: 1,
		},
		{
			name: "expiry changed",
			old:  []storage.Permission{guestPerm("berta@example.com", storage.RightRead)},
			new: []storage.Permission{{
				Entity: "berta@example.com", Type: storage.EntityGuest,
				Rights: storage.RightRead, Expiry: &expiry,
			}},
			modified: 1,
		},
		{
			name:    "recipient replaced",
			old:     []storage.Permission{guestPerm("berta@example.com", storage.RightRead)},
			new:     []storage.Permission{guestPerm("caesar@example.com", storage.RightRead)},
			added:   1,
			removed: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			diff := Compare(tc.old, tc.new)
			assert.Len(t, diff.Added, tc.added)
			assert.Len(t, diff.Modified, tc.modified)
			assert.Len(t, diff.Removed, tc.removed)
			assert.Equal(t, tc.added+tc.modified+tc.removed > 0, diff.HasChanges())
		})
	}
}

func TestCompare_GuestFilters(t *testing.T) {
	diff := Compare(
		[]storage.Permission{guestPerm("old@example.com", storage.RightRead)},
		[]storage.Permission{
			userPerm("anton", storage.RightRead),
			guestPerm("new@example.com", storage.RightRead),
		},
	)

	require.Len(t, diff.AddedGuests(), 1)
	assert.Equal(t, "new@example.com", diff.AddedGuests()[0].Entity)
	require.Len(t, diff.RemovedGuests(), 1)
	assert.Equal(t, "old@example.com", diff.RemovedGuests()[0].Entity)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		perms   []storage.Permission
		wantErr string
	}{
		{
			name:  "valid mixed list",
			perms: []storage.Permission{userPerm("anton", storage.RightRead), guestPerm("berta@example.com", storage.RightRead)},
		},
		{
			name:    "user without entity",
			perms:   []storage.Permission{{Type: storage.EntityUser, Rights: storage.RightRead}},
			wantErr: "cannot be blank",
		},
		{
			name:    "guest without email",
			perms:   []storage.Permission{guestPerm("not-an-email", storage.RightRead)},
			wantErr: "valid email",
		},
		{
			name: "writable anonymous link",
			perms: []storage.Permission{{
				Type: storage.EntityAnonymous, Rights: storage.RightRead | storage.RightWrite,
			}},
			wantErr: "read-only",
		},
		{
			name: "two anonymous links",
			perms: []storage.Permission{
				{Type: storage.EntityAnonymous, Rights: storage.RightRead},
				{Type: storage.EntityAnonymous, Rights: storage.RightRead},
			},
			wantErr: "at most one anonymous link",
		},
		{
			name: "password on guest entry",
			perms: []storage.Permission{{
				Entity: "berta@example.com", Type: storage.EntityGuest,
				Rights: storage.RightRead, Password: "secret",
			}},
			wantErr: "anonymous links only",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.perms)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

type fakeProvisioner struct {
	mu          sync.Mutex
	provisioned []string
	revoked     []string

	provisionErr error
	revokeFails  int
}

func (f *fakeProvisioner) ProvisionGuest(_ context.Context, fileID string, p storage.Permission) (storage.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.provisionErr != nil {
		return p, f.provisionErr
	}
	f.provisioned = append(f.provisioned, p.Entity)
	return p, nil
}

func (f *fakeProvisioner) RevokeGuest(_ context.Context, fileID string, p storage.Permission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revokeFails > 0 {
		f.revokeFails--
		return errors.New("transient")
	}
	f.revoked = append(f.revoked, p.Entity)
	return nil
}

func (f *fakeProvisioner) snapshot() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.provisioned...), append([]string(nil), f.revoked...)
}

func TestHelper_Reconcile_ProvisionsAddedGuests(t *testing.T) {
	prov := &fakeProvisioner{}
	h := NewHelper(prov, hclog.NewNullLogger())

	diff, err := h.Reconcile(context.Background(), "infostore://infostore/1337/4711",
		nil,
		[]storage.Permission{
			userPerm("anton", storage.RightRead),
			guestPerm("berta@example.com", storage.RightRead),
		})
	require.NoError(t, err)
	assert.True(t, diff.HasChanges())

	provisioned, revoked := prov.snapshot()
	assert.Equal(t, []string{"berta@example.com"}, provisioned)
	assert.Empty(t, revoked)
}

func TestHelper_Reconcile_ProvisionFailureSurfaces(t *testing.T) {
	prov := &fakeProvisioner{provisionErr: errors.New("guest service down")}
	h := NewHelper(prov, hclog.NewNullLogger())

	_, err := h.Reconcile(context.Background(), "infostore://infostore/1337/4711",
		nil, []storage.Permission{guestPerm("berta@example.com", storage.RightRead)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "guest service down")
}

func TestHelper_Reconcile_RevokesRemovedGuestsInBackground(t *testing.T) {
	prov := &fakeProvisioner{revokeFails: 2}
	h := NewHelper(prov, hclog.NewNullLogger(), WithCleanupTimeout(10*time.Second))

	diff, err := h.Reconcile(context.Background(), "infostore://infostore/1337/4711",
		[]storage.Permission{guestPerm("berta@example.com", storage.RightRead)},
		nil)
	require.NoError(t, err)
	require.Len(t, diff.RemovedGuests(), 1)

	h.Wait()
	_, revoked := prov.snapshot()
	assert.Equal(t, []string{"berta@example.com"}, revoked)
}

func TestHelper_Reconcile_InternalEntriesPassThrough(t *testing.T) {
	prov := &fakeProvisioner{}
	h := NewHelper(prov, hclog.NewNullLogger())

	_, err := h.Reconcile(context.Background(), "infostore://infostore/1337/4711",
		[]storage.Permission{userPerm("anton", storage.RightRead)},
		[]storage.Permission{userPerm("caesar", storage.RightRead)})
	require.NoError(t, err)

	h.Wait()
	provisioned, revoked := prov.snapshot()
	assert.Empty(t, provisioned)
	assert.Empty(t, revoked)
}
