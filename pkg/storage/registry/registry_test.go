package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trove-storage/trove/pkg/fileid"
	"github.com/trove-storage/trove/pkg/storage"
	"github.com/trove-storage/trove/pkg/storage/storagetest"
)

type fakeService struct {
	id     string
	opened int
	fail   error
}

func (s *fakeService) ID() string { return s.id }

func (s *fakeService) Open(_ context.Context, account Account, _ hclog.Logger) (storage.FileAccess, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	s.opened++
	return storagetest.NewFull(s.id, account.ID), nil
}

func TestRegistry_Resolve(t *testing.T) {
	r := New(hclog.NewNullLogger())
	svc := &fakeService{id: "mem"}
	require.NoError(t, r.RegisterService(svc))
	require.NoError(t, r.AddAccount(Account{ID: "a1", Service: "mem", Primary: true}))

	ctx := context.Background()
	id := fileid.NewFileID("mem", "a1", "root", "d1")

	handle, err := r.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "mem", handle.ServiceID())
	assert.Equal(t, "a1", handle.AccountID())

	// The handle is cached: a second resolve must not reopen.
	again, err := r.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Same(t, handle, again)
	assert.Equal(t, 1, svc.opened)
}

func TestRegistry_ResolveUnknownAccount(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.RegisterService(&fakeService{id: "mem"}))

	_, err := r.Resolve(context.Background(), fileid.NewFileID("mem", "nope", "root", "d1"))
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)

	_, err = r.ResolveFolder(context.Background(), fileid.NewFolderID("gone", "a1", "root"))
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)
}

func TestRegistry_AddAccountUnknownService(t *testing.T) {
	r := New(nil)
	err := r.AddAccount(Account{ID: "a1", Service: "unregistered"})
	assert.Error(t, err)
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.RegisterService(&fakeService{id: "mem"}))
	assert.Error(t, r.RegisterService(&fakeService{id: "mem"}))

	require.NoError(t, r.AddAccount(Account{ID: "a1", Service: "mem"}))
	assert.Error(t, r.AddAccount(Account{ID: "a1", Service: "mem"}))
}

func TestRegistry_OpenFailure(t *testing.T) {
	r := New(nil)
	boom := errors.New("credentials rejected")
	require.NoError(t, r.RegisterService(&fakeService{id: "mem", fail: boom}))
	require.NoError(t, r.AddAccount(Account{ID: "a1", Service: "mem"}))

	_, err := r.ResolveAccount(context.Background(), "mem", "a1")
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_Primary(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.RegisterService(&fakeService{id: "mem"}))

	_, ok := r.Primary()
	assert.False(t, ok)

	require.NoError(t, r.AddAccount(Account{ID: "a1", Service: "mem"}))
	require.NoError(t, r.AddAccount(Account{ID: "a2", Service: "mem", Primary: true}))

	primary, ok := r.Primary()
	require.True(t, ok)
	assert.Equal(t, "a2", primary.ID)
	assert.True(t, r.IsPrimary("mem", "a2"))
	assert.False(t, r.IsPrimary("mem", "a1"))

	assert.Len(t, r.Accounts(), 2)
}
