package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trove-storage/trove/pkg/fileid"
	"github.com/trove-storage/trove/pkg/storage"
	"github.com/trove-storage/trove/pkg/storage/registry"
	"github.com/trove-storage/trove/pkg/storage/storagetest"
)

type testService struct {
	id       string
	backends map[string]storage.FileAccess
}

func (s *testService) ID() string { return s.id }

func (s *testService) Open(_ context.Context, account registry.Account, _ hclog.Logger) (storage.FileAccess, error) {
	return s.backends[account.ID], nil
}

func newRegistry(t *testing.T, primary string, backends map[string]map[string]storage.FileAccess) *registry.Registry {
	t.Helper()

	reg := registry.New(hclog.NewNullLogger())
	for service, accounts := range backends {
		require.NoError(t, reg.RegisterService(&testService{id: service, backends: accounts}))
		for account := range accounts {
			require.NoError(t, reg.AddAccount(registry.Account{
				ID:      account,
				Service: service,
				Primary: service+"/"+account == primary,
			}))
		}
	}
	return reg
}

func names(files []*storage.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}

func TestFederator_MergesAcrossBackends(t *testing.T) {
	a := storagetest.NewFull("infostore", "infostore")
	a.AddFile(storagetest.RootFolder, "alpha report", "x")
	a.AddFile(storagetest.RootFolder, "gamma report", "x")
	b := storagetest.NewFull("s3", "archive")
	b.AddFile(storagetest.RootFolder, "beta report", "x")
	b.AddFile(storagetest.RootFolder, "unrelated", "x")

	reg := newRegistry(t, "infostore/infostore", map[string]map[string]storage.FileAccess{
		"infostore": {"infostore": a},
		"s3":        {"archive": b},
	})
	f := NewFederator(reg, hclog.NewNullLogger())

	files, err := f.Search(context.Background(), &Query{
		Pattern: "report",
		Sort:    storage.SortByName,
		Order:   storage.OrderAscending,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha report", "beta report", "gamma report"}, names(files))

	// Identifiers come back in composite form.
	id, err := fileid.ParseFileID(files[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "s3", id.Service())
	assert.Equal(t, "archive", id.Account())
}

func TestFederator_FolderScope(t *testing.T) {
	a := storagetest.NewFull("infostore", "infostore")
	sub := a.MustCreateFolder(storagetest.RootFolder, "projects")
	a.AddFile(sub, "scoped.txt", "x")
	a.AddFile(storagetest.RootFolder, "unscoped.txt", "x")
	b := storagetest.NewFull("s3", "archive")
	b.AddFile(storagetest.RootFolder, "other.txt", "x")

	reg := newRegistry(t, "infostore/infostore", map[string]map[string]storage.FileAccess{
		"infostore": {"infostore": a},
		"s3":        {"archive": b},
	})
	f := NewFederator(reg, hclog.NewNullLogger())

	files, err := f.Search(context.Background(), &Query{
		Folders: []fileid.FolderID{fileid.NewFolderID("infostore", "infostore", sub)},
		Sort:    storage.SortByName,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"scoped.txt"}, names(files))
}

func TestFederator_UnknownFolderAccount(t *testing.T) {
	a := storagetest.NewFull("infostore", "infostore")
	reg := newRegistry(t, "infostore/infostore", map[string]map[string]storage.FileAccess{
		"infostore": {"infostore": a},
	})
	f := NewFederator(reg, hclog.NewNullLogger())

	_, err := f.Search(context.Background(), &Query{
		Folders: []fileid.FolderID{fileid.NewFolderID("gdrive", "nope", "root")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)
}

func TestFederator_ScopedSingleBackendNotBoundedWaited(t *testing.T) {
	a := storagetest.NewFull("infostore", "infostore")
	a.AddFile(storagetest.RootFolder, "noise.txt", "x")
	b := storagetest.NewFull("s3", "archive")
	b.AddFile(storagetest.RootFolder, "wanted.txt", "x")
	b.Latency = map[string]time.Duration{"Search": 200 * time.Millisecond}

	reg := newRegistry(t, "infostore/infostore", map[string]map[string]storage.FileAccess{
		"infostore": {"infostore": a},
		"s3":        {"archive": b},
	})
	f := NewFederator(reg, hclog.NewNullLogger(), WithSecondaryWait(50*time.Millisecond))

	// Scoped entirely to one non-primary account: direct delegation,
	// the slow backend is waited for.
	files, err := f.Search(context.Background(), &Query{
		Folders: []fileid.FolderID{fileid.NewFolderID("s3", "archive", storagetest.RootFolder)},
		Sort:    storage.SortByName,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"wanted.txt"}, names(files))
}

func TestFederator_ScopedSingleBackendErrorSurfaces(t *testing.T) {
	a := storagetest.NewFull("infostore", "infostore")
	b := storagetest.NewFull("s3", "archive")
	b.Errs = map[string]error{"Search": errors.New("bucket unavailable")}

	reg := newRegistry(t, "infostore/infostore", map[string]map[string]storage.FileAccess{
		"infostore": {"infostore": a},
		"s3":        {"archive": b},
	})
	f := NewFederator(reg, hclog.NewNullLogger())

	_, err := f.Search(context.Background(), &Query{
		Folders: []fileid.FolderID{fileid.NewFolderID("s3", "archive", storagetest.RootFolder)},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "bucket unavailable")
}

func TestFederator_SingleBackendWithoutSearch(t *testing.T) {
	// The base test backend carries no search capability.
	a := storagetest.New("infostore", "infostore")
	reg := newRegistry(t, "infostore/infostore", map[string]map[string]storage.FileAccess{
		"infostore": {"infostore": a},
	})
	f := NewFederator(reg, hclog.NewNullLogger())

	_, err := f.Search(context.Background(), &Query{Pattern: "report"})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotSupported)
}

func TestFederator_SecondaryFailureDegrades(t *testing.T) {
	a := storagetest.NewFull("infostore", "infostore")
	a.AddFile(storagetest.RootFolder, "report.txt", "x")
	b := storagetest.NewFull("s3", "archive")
	b.Errs = map[string]error{"Search": errors.New("bucket unavailable")}

	reg := newRegistry(t, "infostore/infostore", map[string]map[string]storage.FileAccess{
		"infostore": {"infostore": a},
		"s3":        {"archive": b},
	})
	f := NewFederator(reg, hclog.NewNullLogger())

	files, err := f.Search(context.Background(), &Query{Pattern: "report", Sort: storage.SortByName})
	require.NoError(t, err)
	assert.Equal(t, []string{"report.txt"}, names(files))
}

func TestFederator_SlowSecondaryDropped(t *testing.T) {
	a := storagetest.NewFull("infostore", "infostore")
	a.AddFile(storagetest.RootFolder, "primary.txt", "x")
	b := storagetest.NewFull("s3", "archive")
	b.AddFile(storagetest.RootFolder, "slow.txt", "x")
	b.Latency = map[string]time.Duration{"Search": 500 * time.Millisecond}

	reg := newRegistry(t, "infostore/infostore", map[string]map[string]storage.FileAccess{
		"infostore": {"infostore": a},
		"s3":        {"archive": b},
	})
	f := NewFederator(reg, hclog.NewNullLogger(), WithSecondaryWait(50*time.Millisecond))

	files, err := f.Search(context.Background(), &Query{Sort: storage.SortByName})
	require.NoError(t, err)
	assert.Equal(t, []string{"primary.txt"}, names(files))
}

func TestFederator_SlowPrimaryWaitedFor(t *testing.T) {
	a := storagetest.NewFull("infostore", "infostore")
	a.AddFile(storagetest.RootFolder, "primary.txt", "x")
	a.Latency = map[string]time.Duration{"Search": 200 * time.Millisecond}
	b := storagetest.NewFull("s3", "archive")
	b.AddFile(storagetest.RootFolder, "secondary.txt", "x")

	reg := newRegistry(t, "infostore/infostore", map[string]map[string]storage.FileAccess{
		"infostore": {"infostore": a},
		"s3":        {"archive": b},
	})
	f := NewFederator(reg, hclog.NewNullLogger(), WithSecondaryWait(50*time.Millisecond))

	files, err := f.Search(context.Background(), &Query{Sort: storage.SortByName})
	require.NoError(t, err)
	assert.Equal(t, []string{"primary.txt", "secondary.txt"}, names(files))
}

func TestFederator_ContextCancellation(t *testing.T) {
	a := storagetest.NewFull("infostore", "infostore")
	a.Latency = map[string]time.Duration{"Search": time.Second}

	reg := newRegistry(t, "infostore/infostore", map[string]map[string]storage.FileAccess{
		"infostore": {"infostore": a},
	})
	f := NewFederator(reg, hclog.NewNullLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Search(ctx, &Query{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFederator_GlobalPagination(t *testing.T) {
	a := storagetest.NewFull("infostore", "infostore")
	a.AddFile(storagetest.RootFolder, "a.txt", "x")
	a.AddFile(storagetest.RootFolder, "c.txt", "x")
	b := storagetest.NewFull("s3", "archive")
	b.AddFile(storagetest.RootFolder, "b.txt", "x")
	b.AddFile(storagetest.RootFolder, "d.txt", "x")

	reg := newRegistry(t, "infostore/infostore", map[string]map[string]storage.FileAccess{
		"infostore": {"infostore": a},
		"s3":        {"archive": b},
	})
	f := NewFederator(reg, hclog.NewNullLogger())

	files, err := f.Search(context.Background(), &Query{
		Sort:   storage.SortByName,
		Offset: 1,
		Limit:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt", "c.txt"}, names(files))
}
