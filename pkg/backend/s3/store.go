package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hashicorp/go-hclog"

	"github.com/trove-storage/trove/pkg/storage"
)

// Client is the subset of the S3 API the store uses. *awss3.Client
// satisfies it; tests substitute a fake.
type Client interface {
	awss3.ListObjectsV2APIClient
	awss3.ListObjectVersionsAPIClient
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
	GetBucketVersioning(ctx context.Context, params *awss3.GetBucketVersioningInput, optFns ...func(*awss3.Options)) (*awss3.GetBucketVersioningOutput, error)
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *awss3.CopyObjectInput, optFns ...func(*awss3.Options)) (*awss3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *awss3.DeleteObjectsInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error)
}

var _ Client = (*awss3.Client)(nil)

// Store implements storage.FileAccess on an S3 bucket. IDs are
// slash-separated key paths relative to the account prefix.
type Store struct {
	client     Client
	bucket     string
	prefix     string
	account    string
	mimeType   string
	versioning bool
	logger     hclog.Logger
}

// versionedStore adds the version operations when the bucket has
// native versioning enabled. Version identifiers are S3 version
// tokens, so they are reported as synthetic.
type versionedStore struct {
	*Store
}

// NewStore creates an object storage handle for one account. The
// returned handle exposes version operations only when versioning is
// enabled in the settings.
func NewStore(client Client, settings *Settings, account string, logger hclog.Logger) (storage.FileAccess, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := &Store{
		client:     client,
		bucket:     settings.Bucket,
		prefix:     strings.Trim(settings.Prefix, "/"),
		account:    account,
		mimeType:   settings.DefaultMimeType,
		versioning: settings.VersioningEnabled,
		logger:     logger.Named("s3-store").With("account", account, "bucket", settings.Bucket),
	}

	if _, err := client.HeadBucket(context.Background(), &awss3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	}); err != nil {
		return nil, fmt.Errorf("bucket %s is not accessible: %w", s.bucket, err)
	}

	if s.versioning {
		result, err := client.GetBucketVersioning(context.Background(), &awss3.GetBucketVersioningInput{
			Bucket: aws.String(s.bucket),
		})
		if err != nil {
			s.logger.Warn("failed to check bucket versioning status", "error", err)
		} else if result.Status != types.BucketVersioningStatusEnabled {
			s.logger.Warn("versioning configured but not enabled on the bucket",
				"status", result.Status)
		}
		return &versionedStore{Store: s}, nil
	}
	return s, nil
}

func (s *Store) ServiceID() string { return ServiceID }
func (s *Store) AccountID() string { return s.account }

// Capabilities reports the metadata capabilities of the object storage
// backend. Object permissions have no S3 representation.
func (s *Store) Capabilities() storage.Capability {
	return storage.CapNotes | storage.CapCategories
}

// VersionsAreSynthetic marks S3 version tokens as backend-generated:
// they are reported to clients but never round-tripped into saves.
func (s *versionedStore) VersionsAreSynthetic() bool { return true }

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "NoSuchVersion"
	}
	return false
}

// copySource builds the URL-encoded CopySource of a key, with an
// optional version token.
func (s *Store) copySource(key, versionID string) string {
	src := (&url.URL{Path: s.bucket + "/" + key}).EscapedPath()
	if versionID != "" {
		src += "?versionId=" + versionID
	}
	return strings.TrimPrefix(src, "/")
}

func (s *Store) head(ctx context.Context, op, fileID, version string) (*awss3.HeadObjectOutput, error) {
	input := &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(fileID)),
	}
	if version != storage.CurrentVersion {
		if !s.versioning {
			return nil, storage.NewErrorf(op, storage.ErrVersionNotFound, "file %s version %q", fileID, version)
		}
		input.VersionId = aws.String(version)
	}
	head, err := s.client.HeadObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			if version != storage.CurrentVersion {
				return nil, storage.NewErrorf(op, storage.ErrVersionNotFound, "file %s version %q", fileID, version)
			}
			return nil, storage.NewErrorf(op, storage.ErrNotFound, "file %s", fileID)
		}
		return nil, err
	}
	return head, nil
}

func (s *Store) convertHead(fileID string, head *awss3.HeadObjectOutput, current bool) *storage.File {
	f := &storage.File{
		ID:               fileID,
		Folder:           folderOf(fileID),
		Name:             path.Base(fileID),
		MimeType:         aws.ToString(head.ContentType),
		Size:             aws.ToInt64(head.ContentLength),
		Created:          aws.ToTime(head.LastModified),
		Modified:         aws.ToTime(head.LastModified),
		Checksum:         strings.Trim(aws.ToString(head.ETag), `"`),
		IsCurrentVersion: current,
	}
	if s.versioning {
		f.Version = aws.ToString(head.VersionId)
	}
	applyMetadata(f, head.Metadata)
	return f
}

// --- storage.FileAccess ---

func (s *Store) Exists(ctx context.Context, fileID, version string) (bool, error) {
	id, err := cleanID("Exists", fileID)
	if err != nil {
		return false, nil
	}
	_, err = s.head(ctx, "Exists", id, version)
	if err != nil {
		if storage.IsNotFound(err) || errors.Is(err, storage.ErrVersionNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) GetMetadata(ctx context.Context, fileID, version string) (*storage.File, error) {
	id, err := cleanID("GetMetadata", fileID)
	if err != nil {
		return nil, err
	}
	head, err := s.head(ctx, "GetMetadata", id, version)
	if err != nil {
		return nil, err
	}

	current := version == storage.CurrentVersion
	if !current {
		latest, err := s.head(ctx, "GetMetadata", id, storage.CurrentVersion)
		if err == nil {
			current = aws.ToString(latest.VersionId) == aws.ToString(head.VersionId)
		}
	}
	return s.convertHead(id, head, current), nil
}

func (s *Store) SaveMetadata(ctx context.Context, file *storage.File, modified []storage.Field) (*storage.File, error) {
	id, err := cleanID("SaveMetadata", file.ID)
	if err != nil {
		return nil, err
	}
	head, err := s.head(ctx, "SaveMetadata", id, storage.CurrentVersion)
	if err != nil {
		return nil, err
	}
	existing := s.convertHead(id, head, true)

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

	newID := id
	if has(storage.FieldName) && file.Name != "" && file.Name != existing.Name {
		newID = path.Join(folderOf(id), file.Name)
		existing.Name = file.Name
	}
	if has(storage.FieldDescription) {
		existing.Description = file.Description
	}
	if has(storage.FieldCategories) {
		existing.Categories = append([]string(nil), file.Categories...)
	}
	if has(storage.FieldMimeType) && file.MimeType != "" {
		existing.MimeType = file.MimeType
	}
	if file.ModifiedBy != "" {
		existing.ModifiedBy = file.ModifiedBy
	}

	meta, err := objectMetadata(existing)
	if err != nil {
		return nil, err
	}

	// Metadata is immutable on S3 objects; a self-copy with the replace
	// directive writes the new set.
	_, err = s.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(s.objectKey(newID)),
		CopySource:        aws.String(s.copySource(s.objectKey(id), "")),
		MetadataDirective: types.MetadataDirectiveReplace,
		ContentType:       aws.String(existing.MimeType),
		Metadata:          meta,
	})
	if err != nil {
		return nil, err
	}
	if newID != id {
		if _, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(id)),
		}); err != nil {
			return nil, err
		}
	}
	return s.GetMetadata(ctx, newID, storage.CurrentVersion)
}

func (s *Store) GetDocument(ctx context.Context, fileID, version string) (io.ReadCloser, error) {
	id, err := cleanID("GetDocument", fileID)
	if err != nil {
		return nil, err
	}
	input := &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	}
	if version != storage.CurrentVersion {
		if !s.versioning {
			return nil, storage.NewErrorf("GetDocument", storage.ErrVersionNotFound, "file %s version %q", id, version)
		}
		input.VersionId = aws.String(version)
	}
	result, err := s.client.GetObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.NewErrorf("GetDocument", storage.ErrNotFound, "file %s", id)
		}
		return nil, err
	}
	return result.Body, nil
}

func (s *Store) ReadRange(ctx context.Context, fileID, version string, offset, length int64) (io.ReadCloser, error) {
	id, err := cleanID("ReadRange", fileID)
	if err != nil {
		return nil, err
	}
	byteRange := fmt.Sprintf("bytes=%d-", offset)
	if length >= 0 {
		byteRange = fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	}
	input := &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
		Range:  aws.String(byteRange),
	}
	if version != storage.CurrentVersion && s.versioning {
		input.VersionId = aws.String(version)
	}
	result, err := s.client.GetObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.NewErrorf("ReadRange", storage.ErrNotFound, "file %s", id)
		}
		return nil, err
	}
	return result.Body, nil
}

func (s *Store) SaveDocument(ctx context.Context, file *storage.File, content io.Reader) (*storage.File, error) {
	var id string
	if file.ID == "" {
		folder, err := cleanID("SaveDocument", file.Folder)
		if err != nil {
			return nil, err
		}
		ok, err := s.folderExists(ctx, folder)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, storage.NewErrorf("SaveDocument", storage.ErrNotFound, "folder %s", file.Folder)
		}
		if file.Name == "" || strings.Contains(file.Name, "/") {
			return nil, storage.NewErrorf("SaveDocument", storage.ErrInvalidID, "file name %q", file.Name)
		}
		id = path.Join(folder, file.Name)
	} else {
		var err error
		id, err = cleanID("SaveDocument", file.ID)
		if err != nil {
			return nil, err
		}
	}

	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = s.mimeType
	}
	meta, err := objectMetadata(file)
	if err != nil {
		return nil, err
	}

	if _, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(id)),
		Body:        content,
		ContentType: aws.String(mimeType),
		Metadata:    meta,
	}); err != nil {
		return nil, err
	}
	return s.GetMetadata(ctx, id, storage.CurrentVersion)
}

func (s *Store) Copy(ctx context.Context, fileID, version, destFolder string) (string, error) {
	id, err := cleanID("Copy", fileID)
	if err != nil {
		return "", err
	}
	folder, err := cleanID("Copy", destFolder)
	if err != nil {
		return "", err
	}
	ok, err := s.folderExists(ctx, folder)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", storage.NewErrorf("Copy", storage.ErrNotFound, "folder %s", destFolder)
	}

	versionID := ""
	if version != storage.CurrentVersion && s.versioning {
		versionID = version
	}
	newID := path.Join(folder, path.Base(id))
	if newID == id {
		return "", storage.NewErrorf("Copy", storage.ErrInvalidID, "copy onto itself: %s", id)
	}

	_, err = s.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.objectKey(newID)),
		CopySource: aws.String(s.copySource(s.objectKey(id), versionID)),
	})
	if err != nil {
		if isNotFound(err) {
			return "", storage.NewErrorf("Copy", storage.ErrNotFound, "file %s", id)
		}
		return "", err
	}
	return newID, nil
}

func (s *Store) Move(ctx context.Context, fileID, destFolder string) (string, error) {
	newID, err := s.Copy(ctx, fileID, storage.CurrentVersion, destFolder)
	if err != nil {
		return "", err
	}
	id, _ := cleanID("Move", fileID)
	if _, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	}); err != nil {
		return "", fmt.Errorf("file copied to %s but source delete failed: %w", newID, err)
	}
	return newID, nil
}

// Delete removes files for good. With versioning enabled a plain
// delete writes a delete marker; a hard delete purges every version.
// Files that could not be removed are returned as still-conflicting
// IDs instead of failing the batch.
func (s *Store) Delete(ctx context.Context, fileIDs []string, hardDelete bool) ([]string, error) {
	var conflicting []string
	for _, fileID := range fileIDs {
		id, err := cleanID("Delete", fileID)
		if err != nil {
			conflicting = append(conflicting, fileID)
			continue
		}
		if hardDelete && s.versioning {
			if err := s.purgeVersions(ctx, s.objectKey(id)); err != nil {
				s.logger.Warn("failed to purge object versions",
					"key", s.objectKey(id), "error", err)
				conflicting = append(conflicting, fileID)
			}
			continue
		}
		if _, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(id)),
		}); err != nil && !isNotFound(err) {
			s.logger.Warn("failed to delete object",
				"key", s.objectKey(id), "error", err)
			conflicting = append(conflicting, fileID)
		}
	}
	return conflicting, nil
}

// purgeVersions removes every version and delete marker of one key.
func (s *Store) purgeVersions(ctx context.Context, key string) error {
	paginator := awss3.NewListObjectVersionsPaginator(s.client, &awss3.ListObjectVersionsInput{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(key),
	})
	var objects []types.ObjectIdentifier
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, v := range page.Versions {
			if aws.ToString(v.Key) == key {
				objects = append(objects, types.ObjectIdentifier{Key: v.Key, VersionId: v.VersionId})
			}
		}
		for _, m := range page.DeleteMarkers {
			if aws.ToString(m.Key) == key {
				objects = append(objects, types.ObjectIdentifier{Key: m.Key, VersionId: m.VersionId})
			}
		}
	}
	return s.deleteBatch(ctx, objects)
}

func (s *Store) deleteBatch(ctx context.Context, objects []types.ObjectIdentifier) error {
	const batchSize = 1000
	for len(objects) > 0 {
		batch := objects
		if len(batch) > batchSize {
			batch = batch[:batchSize]
		}
		objects = objects[len(batch):]
		if _, err := s.client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListFolder(ctx context.Context, folderID string, sort storage.SortField, order storage.SortOrder) ([]*storage.File, error) {
	folder, err := cleanID("ListFolder", folderID)
	if err != nil {
		return nil, err
	}
	ok, err := s.folderExists(ctx, folder)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.NewErrorf("ListFolder", storage.ErrNotFound, "folder %s", folderID)
	}

	prefix := s.folderPrefix(folder)
	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var out []*storage.File
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if path.Base(key) == folderMarker || key == prefix {
				continue
			}
			id := s.fileID(key)
			// Listing entries carry no user metadata; a head per file
			// fills in descriptions and categories.
			f, err := s.GetMetadata(ctx, id, storage.CurrentVersion)
			if err != nil {
				if storage.IsNotFound(err) {
					continue
				}
				return nil, err
			}
			out = append(out, f)
		}
	}
	storage.SortFiles(out, sort, order)
	return out, nil
}

func (s *Store) folderExists(ctx context.Context, folderID string) (bool, error) {
	if folderID == RootFolder {
		return true, nil
	}
	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.markerKey(folderID)),
	})
	if err == nil {
		return true, nil
	}
	if !isNotFound(err) {
		return false, err
	}
	// Marker missing; any object below the prefix still counts.
	page, err := s.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.folderPrefix(folderID)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}
	return len(page.Contents) > 0, nil
}

func (s *Store) GetFolder(ctx context.Context, folderID string) (*storage.Folder, error) {
	folder, err := cleanID("GetFolder", folderID)
	if err != nil {
		return nil, err
	}
	if folder == RootFolder {
		return &storage.Folder{ID: RootFolder, Name: "root"}, nil
	}
	ok, err := s.folderExists(ctx, folder)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.NewErrorf("GetFolder", storage.ErrNotFound, "folder %s", folderID)
	}

	out := &storage.Folder{
		ID:       folder,
		ParentID: folderOf(folder),
		Name:     path.Base(folder),
	}
	if head, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.markerKey(folder)),
	}); err == nil {
		out.Created = aws.ToTime(head.LastModified)
		out.Modified = aws.ToTime(head.LastModified)
	}
	return out, nil
}

func (s *Store) ListSubfolders(ctx context.Context, folderID string) ([]*storage.Folder, error) {
	folder, err := cleanID("ListSubfolders", folderID)
	if err != nil {
		return nil, err
	}
	ok, err := s.folderExists(ctx, folder)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.NewErrorf("ListSubfolders", storage.ErrNotFound, "folder %s", folderID)
	}

	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.folderPrefix(folder)),
		Delimiter: aws.String("/"),
	})
	var out []*storage.Folder
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, cp := range page.CommonPrefixes {
			id := s.fileID(strings.TrimSuffix(aws.ToString(cp.Prefix), "/"))
			out = append(out, &storage.Folder{
				ID:       id,
				ParentID: folder,
				Name:     path.Base(id),
			})
		}
	}
	return out, nil
}

func (s *Store) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	parent, err := cleanID("CreateFolder", parentID)
	if err != nil {
		return "", err
	}
	ok, err := s.folderExists(ctx, parent)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", storage.NewErrorf("CreateFolder", storage.ErrNotFound, "folder %s", parentID)
	}
	if name == "" || strings.Contains(name, "/") {
		return "", storage.NewErrorf("CreateFolder", storage.ErrInvalidID, "folder name %q", name)
	}

	id := path.Join(parent, name)
	if _, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.markerKey(id)),
		Body:   strings.NewReader(""),
	}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) DeleteFolder(ctx context.Context, folderID string, recursive bool) error {
	folder, err := cleanID("DeleteFolder", folderID)
	if err != nil {
		return err
	}
	if folder == RootFolder {
		return storage.NewErrorf("DeleteFolder", storage.ErrInvalidID, "cannot delete the root folder")
	}
	ok, err := s.folderExists(ctx, folder)
	if err != nil {
		return err
	}
	if !ok {
		return storage.NewErrorf("DeleteFolder", storage.ErrNotFound, "folder %s", folderID)
	}

	prefix := s.folderPrefix(folder)
	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	var objects []types.ObjectIdentifier
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !recursive && key != prefix+folderMarker {
				return storage.NewErrorf("DeleteFolder", storage.ErrFolderNotEmpty, "folder %s", folderID)
			}
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}
	}
	return s.deleteBatch(ctx, objects)
}

// SequenceNumber derives the folder's sequence from the newest
// mutation timestamp below its prefix. S3 keeps no counter, but
// LastModified is monotonic enough for client sync polling.
func (s *Store) SequenceNumber(ctx context.Context, folderID string) (int64, error) {
	folder, err := cleanID("SequenceNumber", folderID)
	if err != nil {
		return 0, err
	}
	ok, err := s.folderExists(ctx, folder)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, storage.NewErrorf("SequenceNumber", storage.ErrNotFound, "folder %s", folderID)
	}

	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.folderPrefix(folder)),
	})
	var newest time.Time
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		for _, obj := range page.Contents {
			if t := aws.ToTime(obj.LastModified); t.After(newest) {
				newest = t
			}
		}
	}
	if newest.IsZero() {
		return 0, nil
	}
	return newest.Unix(), nil
}

// --- version operations (versioned buckets only) ---

func (s *versionedStore) ListVersions(ctx context.Context, fileID string) ([]*storage.File, error) {
	id, err := cleanID("ListVersions", fileID)
	if err != nil {
		return nil, err
	}
	key := s.objectKey(id)
	paginator := awss3.NewListObjectVersionsPaginator(s.client, &awss3.ListObjectVersionsInput{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(key),
	})

	var out []*storage.File
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, v := range page.Versions {
			if aws.ToString(v.Key) != key {
				continue
			}
			out = append(out, &storage.File{
				ID:               id,
				Folder:           folderOf(id),
				Name:             path.Base(id),
				Size:             aws.ToInt64(v.Size),
				Modified:         aws.ToTime(v.LastModified),
				Version:          aws.ToString(v.VersionId),
				IsCurrentVersion: aws.ToBool(v.IsLatest),
				Checksum:         strings.Trim(aws.ToString(v.ETag), `"`),
			})
		}
	}
	if len(out) == 0 {
		return nil, storage.NewErrorf("ListVersions", storage.ErrNotFound, "file %s", id)
	}
	for i := range out {
		out[i].NumberOfVersions = len(out)
	}
	return out, nil
}

func (s *versionedStore) DeleteVersions(ctx context.Context, fileID string, versions []string) ([]string, error) {
	id, err := cleanID("DeleteVersions", fileID)
	if err != nil {
		return nil, err
	}
	head, err := s.head(ctx, "DeleteVersions", id, storage.CurrentVersion)
	if err != nil {
		return nil, err
	}
	current := aws.ToString(head.VersionId)

	var conflicting []string
	for _, version := range versions {
		if version == current {
			conflicting = append(conflicting, version)
			continue
		}
		if _, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
			Bucket:    aws.String(s.bucket),
			Key:       aws.String(s.objectKey(id)),
			VersionId: aws.String(version),
		}); err != nil {
			if isNotFound(err) {
				continue
			}
			conflicting = append(conflicting, version)
		}
	}
	return conflicting, nil
}

func (s *versionedStore) PromoteVersion(ctx context.Context, fileID, version string) (*storage.File, error) {
	id, err := cleanID("PromoteVersion", fileID)
	if err != nil {
		return nil, err
	}
	if _, err := s.head(ctx, "PromoteVersion", id, version); err != nil {
		return nil, err
	}

	// Copying the old version onto the key makes it the latest one.
	key := s.objectKey(id)
	if _, err := s.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(key),
		CopySource: aws.String(s.copySource(key, version)),
	}); err != nil {
		return nil, err
	}
	return s.GetMetadata(ctx, id, storage.CurrentVersion)
}

var (
	_ storage.FileAccess             = (*Store)(nil)
	_ storage.RangeAccess            = (*Store)(nil)
	_ storage.CapabilityReporter     = (*Store)(nil)
	_ storage.VersionAccess          = (*versionedStore)(nil)
	_ storage.IgnorableVersionAccess = (*versionedStore)(nil)
)
