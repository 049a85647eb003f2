package local

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trove-storage/trove/pkg/storage"
)

func newLocal(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(afero.NewMemMapFs(), "files", "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func save(t *testing.T, s *Store, folder, name, content string) *storage.File {
	t.Helper()
	f, err := s.SaveDocument(context.Background(), &storage.File{
		Folder: folder,
		Name:   name,
	}, strings.NewReader(content))
	require.NoError(t, err)
	return f
}

func readAll(t *testing.T, r io.ReadCloser) string {
	t.Helper()
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestSaveAndGetDocument(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	f := save(t, s, RootFolder, "plan.txt", "v1 content")
	assert.Equal(t, "plan.txt", f.ID)
	assert.Equal(t, "1", f.Version)
	assert.True(t, f.IsCurrentVersion)
	assert.NotEmpty(t, f.Checksum)

	r, err := s.GetDocument(ctx, f.ID, storage.CurrentVersion)
	require.NoError(t, err)
	assert.Equal(t, "v1 content", readAll(t, r))

	got, err := s.GetMetadata(ctx, f.ID, storage.CurrentVersion)
	require.NoError(t, err)
	assert.Equal(t, "plan.txt", got.Name)
	assert.Equal(t, int64(len("v1 content")), got.Size)

	ok, err := s.Exists(ctx, f.ID, storage.CurrentVersion)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "missing.txt", storage.CurrentVersion)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVersioning(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	f := save(t, s, RootFolder, "plan.txt", "v1")
	f2, err := s.SaveDocument(ctx, &storage.File{ID: f.ID}, strings.NewReader("v2"))
	require.NoError(t, err)
	assert.Equal(t, "2", f2.Version)
	assert.Equal(t, 2, f2.NumberOfVersions)

	versions, err := s.ListVersions(ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "2", versions[0].Version)
	assert.Equal(t, "1", versions[1].Version)
	assert.True(t, versions[0].IsCurrentVersion)
	assert.False(t, versions[1].IsCurrentVersion)

	r, err := s.GetDocument(ctx, f.ID, "1")
	require.NoError(t, err)
	assert.Equal(t, "v1", readAll(t, r))

	// The current version cannot be deleted.
	conflicting, err := s.DeleteVersions(ctx, f.ID, []string{"2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, conflicting)

	promoted, err := s.PromoteVersion(ctx, f.ID, "1")
	require.NoError(t, err)
	assert.Equal(t, "1", promoted.Version)
	assert.True(t, promoted.IsCurrentVersion)

	r, err = s.GetDocument(ctx, f.ID, storage.CurrentVersion)
	require.NoError(t, err)
	assert.Equal(t, "v1", readAll(t, r))

	conflicting, err = s.DeleteVersions(ctx, f.ID, []string{"2"})
	require.NoError(t, err)
	assert.Empty(t, conflicting)
}

func TestSaveMetadata(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	f := save(t, s, RootFolder, "plan.txt", "content")

	updated, err := s.SaveMetadata(ctx, &storage.File{
		ID:          f.ID,
		Description: "quarterly plan",
		Categories:  []string{"planning"},
	}, []storage.Field{storage.FieldDescription, storage.FieldCategories})
	require.NoError(t, err)
	assert.Equal(t, "quarterly plan", updated.Description)
	assert.Equal(t, []string{"planning"}, updated.Categories)
	assert.Equal(t, f.ID, updated.ID)

	// Renaming changes the backend-local ID.
	renamed, err := s.SaveMetadata(ctx, &storage.File{
		ID:   f.ID,
		Name: "roadmap.txt",
	}, []storage.Field{storage.FieldName})
	require.NoError(t, err)
	assert.Equal(t, "roadmap.txt", renamed.ID)
	assert.Equal(t, "quarterly plan", renamed.Description)

	_, err = s.GetMetadata(ctx, "plan.txt", storage.CurrentVersion)
	assert.True(t, storage.IsNotFound(err))

	r, err := s.GetDocument(ctx, "roadmap.txt", storage.CurrentVersion)
	require.NoError(t, err)
	assert.Equal(t, "content", readAll(t, r))
}

func TestCopyAndMove(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	folder, err := s.CreateFolder(ctx, RootFolder, "archive")
	require.NoError(t, err)

	f := save(t, s, RootFolder, "plan.txt", "v1")
	_, err = s.SaveDocument(ctx, &storage.File{ID: f.ID}, strings.NewReader("v2"))
	require.NoError(t, err)

	// A copy starts its own history at version 1.
	copyID, err := s.Copy(ctx, f.ID, storage.CurrentVersion, folder)
	require.NoError(t, err)
	assert.Equal(t, "archive/plan.txt", copyID)

	got, err := s.GetMetadata(ctx, copyID, storage.CurrentVersion)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NumberOfVersions)

	r, err := s.GetDocument(ctx, copyID, storage.CurrentVersion)
	require.NoError(t, err)
	assert.Equal(t, "v2", readAll(t, r))

	// Moving keeps the history.
	sub, err := s.CreateFolder(ctx, RootFolder, "current")
	require.NoError(t, err)
	movedID, err := s.Move(ctx, f.ID, sub)
	require.NoError(t, err)
	assert.Equal(t, "current/plan.txt", movedID)

	_, err = s.GetMetadata(ctx, f.ID, storage.CurrentVersion)
	assert.True(t, storage.IsNotFound(err))

	moved, err := s.GetMetadata(ctx, movedID, storage.CurrentVersion)
	require.NoError(t, err)
	assert.Equal(t, 2, moved.NumberOfVersions)

	r, err = s.GetDocument(ctx, movedID, "1")
	require.NoError(t, err)
	assert.Equal(t, "v1", readAll(t, r))
}

func TestDelete(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	a := save(t, s, RootFolder, "a.txt", "a")
	b := save(t, s, RootFolder, "b.txt", "b")

	require.NoError(t, s.Lock(ctx, b.ID, time.Hour))

	conflicting, err := s.Delete(ctx, []string{a.ID, b.ID, "missing.txt"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, conflicting)

	_, err = s.GetMetadata(ctx, a.ID, storage.CurrentVersion)
	assert.True(t, storage.IsNotFound(err))

	require.NoError(t, s.Unlock(ctx, b.ID))
	conflicting, err = s.Delete(ctx, []string{b.ID}, true)
	require.NoError(t, err)
	assert.Empty(t, conflicting)

	files, err := s.ListFolder(ctx, RootFolder, storage.SortByName, storage.OrderAscending)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLockBlocksWrites(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	f := save(t, s, RootFolder, "plan.txt", "v1")
	require.NoError(t, s.Lock(ctx, f.ID, time.Hour))

	_, err := s.SaveDocument(ctx, &storage.File{ID: f.ID}, strings.NewReader("v2"))
	require.ErrorIs(t, err, storage.ErrLocked)

	_, err = s.Move(ctx, f.ID, RootFolder)
	require.ErrorIs(t, err, storage.ErrLocked)

	require.NoError(t, s.Unlock(ctx, f.ID))
	_, err = s.SaveDocument(ctx, &storage.File{ID: f.ID}, strings.NewReader("v2"))
	require.NoError(t, err)
}

func TestFolders(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	projects, err := s.CreateFolder(ctx, RootFolder, "projects")
	require.NoError(t, err)
	drafts, err := s.CreateFolder(ctx, projects, "drafts")
	require.NoError(t, err)
	assert.Equal(t, "projects/drafts", drafts)

	got, err := s.GetFolder(ctx, drafts)
	require.NoError(t, err)
	assert.Equal(t, "drafts", got.Name)
	assert.Equal(t, projects, got.ParentID)

	subs, err := s.ListSubfolders(ctx, projects)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, drafts, subs[0].ID)

	save(t, s, drafts, "note.txt", "n")

	err = s.DeleteFolder(ctx, projects, false)
	require.ErrorIs(t, err, storage.ErrFolderNotEmpty)

	require.NoError(t, s.DeleteFolder(ctx, projects, true))
	_, err = s.GetFolder(ctx, projects)
	assert.True(t, storage.IsNotFound(err))

	err = s.DeleteFolder(ctx, RootFolder, true)
	require.ErrorIs(t, err, storage.ErrInvalidID)
}

func TestSequencePropagates(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	projects, err := s.CreateFolder(ctx, RootFolder, "projects")
	require.NoError(t, err)

	before, err := s.SequenceNumber(ctx, RootFolder)
	require.NoError(t, err)

	save(t, s, projects, "plan.txt", "v1")

	after, err := s.SequenceNumber(ctx, RootFolder)
	require.NoError(t, err)
	assert.Greater(t, after, before)

	seq, err := s.SequenceNumber(ctx, projects)
	require.NoError(t, err)
	assert.Greater(t, seq, int64(0))
}

func TestReadRange(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	f := save(t, s, RootFolder, "plan.txt", "hello world")

	r, err := s.ReadRange(ctx, f.ID, storage.CurrentVersion, 6, 5)
	require.NoError(t, err)
	assert.Equal(t, "world", readAll(t, r))

	r, err = s.ReadRange(ctx, f.ID, storage.CurrentVersion, 6, -1)
	require.NoError(t, err)
	assert.Equal(t, "world", readAll(t, r))
}

func TestSearch(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	projects, err := s.CreateFolder(ctx, RootFolder, "projects")
	require.NoError(t, err)

	save(t, s, RootFolder, "plan.txt", "x")
	report := save(t, s, projects, "report.txt", "x")
	_, err = s.SaveMetadata(ctx, &storage.File{
		ID:          report.ID,
		Description: "annual budget report",
	}, []storage.Field{storage.FieldDescription})
	require.NoError(t, err)

	// Name match.
	files, err := s.Search(ctx, &storage.Query{Pattern: "plan"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "plan.txt", files[0].ID)

	// Description match.
	files, err = s.Search(ctx, &storage.Query{Pattern: "budget"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, report.ID, files[0].ID)

	// Folder scope.
	files, err = s.Search(ctx, &storage.Query{Folders: []string{projects}})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, report.ID, files[0].ID)

	// Deleted files leave the index.
	_, err = s.Delete(ctx, []string{report.ID}, true)
	require.NoError(t, err)
	files, err = s.Search(ctx, &storage.Query{Pattern: "budget"})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestSearchPagination(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	save(t, s, RootFolder, "a.txt", "x")
	save(t, s, RootFolder, "b.txt", "x")
	save(t, s, RootFolder, "c.txt", "x")

	files, err := s.Search(ctx, &storage.Query{
		Sort: storage.SortByName, Order: storage.OrderAscending,
		Offset: 1, Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "b.txt", files[0].ID)
}

func TestCapabilities(t *testing.T) {
	s := newLocal(t)
	caps := storage.CapabilitiesOf(s)

	assert.True(t, caps&storage.CapVersions != 0)
	assert.True(t, caps&storage.CapSearch != 0)
	assert.True(t, caps&storage.CapLocks != 0)
	assert.True(t, caps&storage.CapNotes != 0)
	assert.True(t, caps&storage.CapCategories != 0)
	assert.True(t, caps&storage.CapObjectPermissions == 0)
	assert.True(t, caps&storage.CapTransactions == 0)
}
