package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/trove-storage/trove/pkg/storage"
)

// Store implements storage.FileAccess on a Google Drive account.
type Store struct {
	drive   *drive.Service
	account string
	logger  hclog.Logger
}

// NewStore creates a Drive storage handle for one account.
func NewStore(service *drive.Service, account string, logger hclog.Logger) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{
		drive:   service,
		account: account,
		logger:  logger.Named("gdrive-store").With("account", account),
	}
}

func (s *Store) ServiceID() string { return ServiceID }
func (s *Store) AccountID() string { return s.account }

// Capabilities reports the metadata capabilities of the Drive backend.
func (s *Store) Capabilities() storage.Capability {
	return storage.CapObjectPermissions | storage.CapNotes | storage.CapCategories
}

// VersionsAreSynthetic marks Drive revision tokens as backend-generated.
func (s *Store) VersionsAreSynthetic() bool { return true }

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 404
}

func notFound(op, kind, id string, err error) error {
	if isNotFound(err) {
		return storage.NewErrorf(op, storage.ErrNotFound, "%s %s", kind, id)
	}
	return err
}

func (s *Store) getFile(ctx context.Context, op, fileID string) (*drive.File, error) {
	f, err := s.drive.Files.Get(fileID).Fields(fileFields).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return nil, notFound(op, "file", fileID, err)
	}
	if f.Trashed {
		return nil, storage.NewErrorf(op, storage.ErrNotFound, "file %s", fileID)
	}
	return f, nil
}

// --- storage.FileAccess ---

func (s *Store) Exists(ctx context.Context, fileID, version string) (bool, error) {
	_, err := s.GetMetadata(ctx, fileID, version)
	if err != nil {
		if storage.IsNotFound(err) || errors.Is(err, storage.ErrVersionNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) GetMetadata(ctx context.Context, fileID, version string) (*storage.File, error) {
	f, err := s.getFile(ctx, "GetMetadata", fileID)
	if err != nil {
		return nil, err
	}
	file := toStorageFile(f)

	if version == storage.CurrentVersion {
		if rev, err := s.headRevision(ctx, fileID); err == nil {
			file.Version = rev.Id
		}
		return file, nil
	}
	rev, err := s.drive.Revisions.Get(fileID, version).
		Fields("id,mimeType,size,modifiedTime,lastModifyingUser,md5Checksum").
		Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, storage.NewErrorf("GetMetadata", storage.ErrVersionNotFound, "file %s version %q", fileID, version)
		}
		return nil, err
	}
	head, _ := s.headRevision(ctx, fileID)
	return revisionFile(fileID, file, rev, head != nil && head.Id == rev.Id), nil
}

// headRevision returns the newest revision of a file.
func (s *Store) headRevision(ctx context.Context, fileID string) (*drive.Revision, error) {
	revs, err := s.listRevisions(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, storage.NewErrorf("GetMetadata", storage.ErrVersionNotFound, "file %s", fileID)
	}
	return revs[len(revs)-1], nil
}

// listRevisions returns all revisions of a file, oldest first.
func (s *Store) listRevisions(ctx context.Context, fileID string) ([]*drive.Revision, error) {
	var out []*drive.Revision
	call := s.drive.Revisions.List(fileID).
		Fields("nextPageToken,revisions(id,mimeType,size,modifiedTime,lastModifyingUser,md5Checksum)").
		Context(ctx)
	err := call.Pages(ctx, func(page *drive.RevisionList) error {
		out = append(out, page.Revisions...)
		return nil
	})
	if err != nil {
		return nil, notFound("ListVersions", "file", fileID, err)
	}
	return out, nil
}

func (s *Store) SaveMetadata(ctx context.Context, file *storage.File, modified []storage.Field) (*storage.File, error) {
	existing, err := s.getFile(ctx, "SaveMetadata", file.ID)
	if err != nil {
		return nil, err
	}

	all := len(modified) == 0
	has := func(f storage.Field) bool {
		if all {
			return true
		}
		for _, m := range modified {
			if m == f {
				return true
			}
		}
		return false
	}

	update := &drive.File{}
	touched := false
	if has(storage.FieldName) && file.Name != "" {
		update.Name = file.Name
		touched = true
	}
	if has(storage.FieldDescription) {
		update.Description = file.Description
		update.ForceSendFields = append(update.ForceSendFields, "Description")
		touched = true
	}
	if has(storage.FieldCategories) {
		update.AppProperties = map[string]string{
			categoriesProperty: encodeCategories(file.Categories),
		}
		touched = true
	}
	if has(storage.FieldMimeType) && file.MimeType != "" {
		update.MimeType = file.MimeType
		touched = true
	}

	if touched {
		if _, err := s.drive.Files.Update(file.ID, update).
			SupportsAllDrives(true).Context(ctx).Do(); err != nil {
			return nil, notFound("SaveMetadata", "file", file.ID, err)
		}
	}
	if has(storage.FieldPermissions) {
		current := toStorageFile(existing)
		if err := s.updatePermissions(ctx, file.ID, current.Permissions, file.Permissions); err != nil {
			return nil, err
		}
	}
	return s.GetMetadata(ctx, file.ID, storage.CurrentVersion)
}

// updatePermissions reconciles the Drive permission list with the
// wanted set, keyed on entity and type.
func (s *Store) updatePermissions(ctx context.Context, fileID string, current, wanted []storage.Permission) error {
	type key struct {
		typ    storage.EntityType
		entity string
	}
	have := make(map[key]storage.Permission, len(current))
	for _, p := range current {
		have[key{p.Type, p.Entity}] = p
	}
	want := make(map[key]storage.Permission, len(wanted))
	for _, p := range wanted {
		want[key{p.Type, p.Entity}] = p
	}

	list, err := s.drive.Permissions.List(fileID).
		Fields("permissions(id,type,role,emailAddress,expirationTime)").
		SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return notFound("SaveMetadata", "file", fileID, err)
	}

	for _, dp := range list.Permissions {
		p, ok := toStoragePermission(dp)
		if !ok {
			continue
		}
		if _, keep := want[key{p.Type, p.Entity}]; keep {
			continue
		}
		if err := s.drive.Permissions.Delete(fileID, dp.Id).
			SupportsAllDrives(true).Context(ctx).Do(); err != nil && !isNotFound(err) {
			return err
		}
	}
	for k, p := range want {
		if existing, ok := have[k]; ok && existing.Rights == p.Rights {
			continue
		}
		if _, err := s.drive.Permissions.Create(fileID, toDrivePermission(p)).
			SendNotificationEmail(false).
			SupportsAllDrives(true).Context(ctx).Do(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, fileID, version string) (io.ReadCloser, error) {
	if version != storage.CurrentVersion {
		resp, err := s.drive.Revisions.Get(fileID, version).Context(ctx).Download()
		if err != nil {
			if isNotFound(err) {
				return nil, storage.NewErrorf("GetDocument", storage.ErrVersionNotFound, "file %s version %q", fileID, version)
			}
			return nil, err
		}
		return resp.Body, nil
	}

	f, err := s.getFile(ctx, "GetDocument", fileID)
	if err != nil {
		return nil, err
	}
	// Native Google documents have no binary content and must be
	// exported.
	if strings.HasPrefix(f.MimeType, "application/vnd.google-apps") {
		resp, err := s.drive.Files.Export(fileID, "application/pdf").Context(ctx).Download()
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}
	resp, err := s.drive.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, notFound("GetDocument", "file", fileID, err)
	}
	return resp.Body, nil
}

func (s *Store) SaveDocument(ctx context.Context, file *storage.File, content io.Reader) (*storage.File, error) {
	if file.ID == "" {
		if file.Folder == "" {
			return nil, storage.NewErrorf("SaveDocument", storage.ErrInvalidID, "folder required")
		}
		if file.Name == "" {
			return nil, storage.NewErrorf("SaveDocument", storage.ErrInvalidID, "file name required")
		}
		meta := &drive.File{
			Name:        file.Name,
			MimeType:    file.MimeType,
			Description: file.Description,
			Parents:     []string{file.Folder},
		}
		if categories := encodeCategories(file.Categories); categories != "" {
			meta.AppProperties = map[string]string{categoriesProperty: categories}
		}
		created, err := s.drive.Files.Create(meta).Media(content).
			Fields("id").SupportsAllDrives(true).Context(ctx).Do()
		if err != nil {
			return nil, notFound("SaveDocument", "folder", file.Folder, err)
		}
		saved, err := s.GetMetadata(ctx, created.Id, storage.CurrentVersion)
		if err != nil {
			return nil, err
		}
		if len(file.Permissions) > 0 {
			if err := s.updatePermissions(ctx, created.Id, saved.Permissions, file.Permissions); err != nil {
				return nil, err
			}
			return s.GetMetadata(ctx, created.Id, storage.CurrentVersion)
		}
		return saved, nil
	}

	update := &drive.File{}
	if file.MimeType != "" {
		update.MimeType = file.MimeType
	}
	if _, err := s.drive.Files.Update(file.ID, update).
		KeepRevisionForever(false).Media(content).
		SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return nil, notFound("SaveDocument", "file", file.ID, err)
	}
	return s.GetMetadata(ctx, file.ID, storage.CurrentVersion)
}

// Copy duplicates a file. Drive cannot copy a historic revision, so the
// copy is always taken from the current content.
func (s *Store) Copy(ctx context.Context, fileID, version, destFolder string) (string, error) {
	copied, err := s.drive.Files.Copy(fileID, &drive.File{Parents: []string{destFolder}}).
		Fields("id").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", notFound("Copy", "file", fileID, err)
	}
	return copied.Id, nil
}

func (s *Store) Move(ctx context.Context, fileID, destFolder string) (string, error) {
	f, err := s.getFile(ctx, "Move", fileID)
	if err != nil {
		return "", err
	}
	call := s.drive.Files.Update(fileID, &drive.File{}).AddParents(destFolder).
		SupportsAllDrives(true).Context(ctx)
	if len(f.Parents) > 0 {
		call = call.RemoveParents(strings.Join(f.Parents, ","))
	}
	if _, err := call.Do(); err != nil {
		return "", notFound("Move", "folder", destFolder, err)
	}
	return fileID, nil
}

// Delete trashes files, or removes them permanently on a hard delete.
func (s *Store) Delete(ctx context.Context, fileIDs []string, hardDelete bool) ([]string, error) {
	for _, fileID := range fileIDs {
		var err error
		if hardDelete {
			err = s.drive.Files.Delete(fileID).SupportsAllDrives(true).Context(ctx).Do()
		} else {
			_, err = s.drive.Files.Update(fileID, &drive.File{Trashed: true}).
				SupportsAllDrives(true).Context(ctx).Do()
		}
		if err != nil && !isNotFound(err) {
			return nil, err
		}
	}
	return nil, nil
}

// Restore untrashes files. The origin folder sticks to the file in
// Drive, so restored files reappear where they were deleted from;
// orphans land in defaultDest.
func (s *Store) Restore(ctx context.Context, fileIDs []string, defaultDest string) (map[string]string, error) {
	restored := make(map[string]string, len(fileIDs))
	for _, fileID := range fileIDs {
		f, err := s.drive.Files.Get(fileID).Fields("id,parents,trashed").
			SupportsAllDrives(true).Context(ctx).Do()
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if !f.Trashed {
			continue
		}
		if _, err := s.drive.Files.Update(fileID, &drive.File{Trashed: false}).
			SupportsAllDrives(true).Context(ctx).Do(); err != nil {
			return nil, err
		}
		if len(f.Parents) > 0 {
			restored[fileID] = f.Parents[0]
			continue
		}
		if _, err := s.drive.Files.Update(fileID, &drive.File{}).AddParents(defaultDest).
			SupportsAllDrives(true).Context(ctx).Do(); err != nil {
			return nil, err
		}
		restored[fileID] = defaultDest
	}
	return restored, nil
}

func escapeQuery(value string) string {
	return strings.ReplaceAll(value, "'", `\'`)
}

func (s *Store) listFiles(ctx context.Context, op, query string) ([]*storage.File, error) {
	var out []*storage.File
	call := s.drive.Files.List().Q(query).
		Fields("nextPageToken,files(" + fileFields + ")").
		SupportsAllDrives(true).IncludeItemsFromAllDrives(true).
		Context(ctx)
	err := call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			out = append(out, toStorageFile(f))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListFolder(ctx context.Context, folderID string, sort storage.SortField, order storage.SortOrder) ([]*storage.File, error) {
	if _, err := s.GetFolder(ctx, folderID); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("'%s' in parents and mimeType != '%s' and trashed=false",
		escapeQuery(folderID), folderMimeType)
	files, err := s.listFiles(ctx, "ListFolder", query)
	if err != nil {
		return nil, err
	}
	storage.SortFiles(files, sort, order)
	return files, nil
}

func (s *Store) GetFolder(ctx context.Context, folderID string) (*storage.Folder, error) {
	f, err := s.drive.Files.Get(folderID).
		Fields("id,name,mimeType,parents,createdTime,modifiedTime,trashed").
		SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return nil, notFound("GetFolder", "folder", folderID, err)
	}
	if f.Trashed || (f.MimeType != folderMimeType && folderID != RootFolder) {
		return nil, storage.NewErrorf("GetFolder", storage.ErrNotFound, "folder %s", folderID)
	}
	return toStorageFolder(f), nil
}

func (s *Store) ListSubfolders(ctx context.Context, folderID string) ([]*storage.Folder, error) {
	if _, err := s.GetFolder(ctx, folderID); err != nil {
		return nil, err
	}
	var out []*storage.Folder
	query := fmt.Sprintf("'%s' in parents and mimeType = '%s' and trashed=false",
		escapeQuery(folderID), folderMimeType)
	call := s.drive.Files.List().Q(query).
		Fields("nextPageToken,files(id,name,mimeType,parents,createdTime,modifiedTime)").
		SupportsAllDrives(true).IncludeItemsFromAllDrives(true).
		Context(ctx)
	err := call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			out = append(out, toStorageFolder(f))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	if name == "" {
		return "", storage.NewErrorf("CreateFolder", storage.ErrInvalidID, "folder name required")
	}
	created, err := s.drive.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", notFound("CreateFolder", "folder", parentID, err)
	}
	return created.Id, nil
}

func (s *Store) DeleteFolder(ctx context.Context, folderID string, recursive bool) error {
	if _, err := s.GetFolder(ctx, folderID); err != nil {
		return err
	}
	if !recursive {
		query := fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folderID))
		page, err := s.drive.Files.List().Q(query).PageSize(1).Fields("files(id)").
			SupportsAllDrives(true).IncludeItemsFromAllDrives(true).
			Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(page.Files) > 0 {
			return storage.NewErrorf("DeleteFolder", storage.ErrFolderNotEmpty, "folder %s", folderID)
		}
	}
	if err := s.drive.Files.Delete(folderID).SupportsAllDrives(true).Context(ctx).Do(); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// SequenceNumber derives the folder's sequence from the newest change
// below it. Drive keeps no per-folder counter.
func (s *Store) SequenceNumber(ctx context.Context, folderID string) (int64, error) {
	if _, err := s.GetFolder(ctx, folderID); err != nil {
		return 0, err
	}
	query := fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folderID))
	files, err := s.listFiles(ctx, "SequenceNumber", query)
	if err != nil {
		return 0, err
	}
	var newest time.Time
	for _, f := range files {
		if f.Modified.After(newest) {
			newest = f.Modified
		}
	}
	if newest.IsZero() {
		return 0, nil
	}
	return newest.Unix(), nil
}

// Search runs a metadata query through the Drive search syntax.
func (s *Store) Search(ctx context.Context, q *storage.Query) ([]*storage.File, error) {
	clauses := []string{
		"trashed=false",
		fmt.Sprintf("mimeType != '%s'", folderMimeType),
	}
	if q.Pattern != "" {
		pattern := escapeQuery(q.Pattern)
		clauses = append(clauses, fmt.Sprintf("(name contains '%s' or fullText contains '%s')", pattern, pattern))
	}
	if len(q.Folders) > 0 {
		parents := make([]string, 0, len(q.Folders))
		for _, folder := range q.Folders {
			parents = append(parents, fmt.Sprintf("'%s' in parents", escapeQuery(folder)))
		}
		clauses = append(clauses, "("+strings.Join(parents, " or ")+")")
	}

	files, err := s.listFiles(ctx, "Search", strings.Join(clauses, " and "))
	if err != nil {
		return nil, err
	}
	storage.SortFiles(files, q.Sort, q.Order)
	if q.Offset > 0 {
		if q.Offset >= len(files) {
			return nil, nil
		}
		files = files[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(files) {
		files = files[:q.Limit]
	}
	return files, nil
}

// --- version operations ---

func (s *Store) ListVersions(ctx context.Context, fileID string) ([]*storage.File, error) {
	base, err := s.GetMetadata(ctx, fileID, storage.CurrentVersion)
	if err != nil {
		return nil, err
	}
	revs, err := s.listRevisions(ctx, fileID)
	if err != nil {
		return nil, err
	}

	out := make([]*storage.File, 0, len(revs))
	for i := len(revs) - 1; i >= 0; i-- {
		f := revisionFile(fileID, base, revs[i], i == len(revs)-1)
		f.NumberOfVersions = len(revs)
		out = append(out, f)
	}
	return out, nil
}

func (s *Store) DeleteVersions(ctx context.Context, fileID string, versions []string) ([]string, error) {
	head, err := s.headRevision(ctx, fileID)
	if err != nil {
		return nil, err
	}

	var conflicting []string
	for _, version := range versions {
		if version == head.Id {
			conflicting = append(conflicting, version)
			continue
		}
		if err := s.drive.Revisions.Delete(fileID, version).Context(ctx).Do(); err != nil {
			if isNotFound(err) {
				continue
			}
			conflicting = append(conflicting, version)
		}
	}
	return conflicting, nil
}

// PromoteVersion is not expressible in Drive: revisions cannot be
// reordered and historic content cannot be re-uploaded server side.
func (s *Store) PromoteVersion(ctx context.Context, fileID, version string) (*storage.File, error) {
	return nil, storage.NewErrorf("PromoteVersion", storage.ErrNotSupported, "drive revisions cannot be promoted")
}

var (
	_ storage.FileAccess             = (*Store)(nil)
	_ storage.VersionAccess          = (*Store)(nil)
	_ storage.SearchAccess           = (*Store)(nil)
	_ storage.RestoreAccess          = (*Store)(nil)
	_ storage.IgnorableVersionAccess = (*Store)(nil)
	_ storage.CapabilityReporter     = (*Store)(nil)
)
