// Package dbstore is the built-in database storage backend. Files,
// folders, versions, object permissions and provisioned guests live in
// relational tables managed through GORM; SQLite serves single-node
// deployments and tests, PostgreSQL production ones. It is the only
// backend implementing the full capability surface, including real
// transactions.
package dbstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/trove-storage/trove/pkg/storage"
)

// ServiceID is the service identifier of the database backend in
// composite IDs.
const ServiceID = "infostore"

// Store implements storage.FileAccess backed by relational tables.
type Store struct {
	db      *gorm.DB
	service string
	account string
	logger  hclog.Logger

	rootID  uint
	trashID uint

	// Transaction state. The compositing layer serializes mutations per
	// backend handle; the mutex guards against misuse.
	mu sync.Mutex
	tx *gorm.DB
}

// Open prepares the schema and the base folders and returns a store
// bound to one account.
func Open(db *gorm.DB, account string, logger hclog.Logger) (*Store, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := db.AutoMigrate(modelsToAutoMigrate()...); err != nil {
		return nil, fmt.Errorf("migrating dbstore schema: %w", err)
	}

	s := &Store{
		db:      db,
		service: ServiceID,
		account: account,
		logger:  logger.Named("dbstore").With("account", account),
	}
	if err := s.ensureBaseFolders(); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureBaseFolders creates the root and trash folders on first open.
func (s *Store) ensureBaseFolders() error {
	var root Folder
	err := s.db.Where("parent_id IS NULL AND name = ?", "root").First(&root).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		root = Folder{Name: "root"}
		err = s.db.Create(&root).Error
	}
	if err != nil {
		return fmt.Errorf("ensuring root folder: %w", err)
	}
	s.rootID = root.ID

	var trash Folder
	err = s.db.Where("parent_id = ? AND name = ?", root.ID, "trash").First(&trash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		trash = Folder{ParentID: &root.ID, Name: "trash"}
		err = s.db.Create(&trash).Error
	}
	if err != nil {
		return fmt.Errorf("ensuring trash folder: %w", err)
	}
	s.trashID = trash.ID
	return nil
}

func (s *Store) ServiceID() string { return s.service }
func (s *Store) AccountID() string { return s.account }

// RootFolderID returns the backend-local ID of the root folder.
func (s *Store) RootFolderID() string { return formatID(s.rootID) }

// TrashFolderID returns the backend-local ID of the trash folder.
func (s *Store) TrashFolderID() string { return formatID(s.trashID) }

// Capabilities reports the metadata capabilities of the database
// backend; the interface-derived ones come for free.
func (s *Store) Capabilities() storage.Capability {
	return storage.CapObjectPermissions | storage.CapNotes | storage.CapCategories
}

// conn returns the active transaction or the base connection.
func (s *Store) conn() *gorm.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// StartTransaction implements storage.Transactional.
func (s *Store) StartTransaction(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return errors.New("transaction already in progress")
	}
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	s.tx = tx
	return nil
}

// Commit implements storage.Transactional.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return errors.New("no transaction in progress")
	}
	err := s.tx.Commit().Error
	s.tx = nil
	return err
}

// Rollback implements storage.Transactional.
func (s *Store) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return errors.New("no transaction in progress")
	}
	err := s.tx.Rollback().Error
	s.tx = nil
	return err
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseID(op, id string) (uint, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, storage.NewErrorf(op, storage.ErrInvalidID, "%q", id)
	}
	return uint(n), nil
}

// parseVersion maps a version label to a version number; the current
// version maps to 0.
func parseVersion(op, version string) (int, error) {
	if version == storage.CurrentVersion {
		return 0, nil
	}
	n, err := strconv.Atoi(version)
	if err != nil || n <= 0 {
		return 0, storage.NewErrorf(op, storage.ErrVersionNotFound, "%q", version)
	}
	return n, nil
}

func (s *Store) loadFile(op string, db *gorm.DB, id string) (*File, error) {
	fid, err := parseID(op, id)
	if err != nil {
		return nil, err
	}
	var rec File
	if err := db.Preload("Permissions").First(&rec, fid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.NewErrorf(op, storage.ErrNotFound, "file %s", id)
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) loadVersion(op string, db *gorm.DB, fileID uint, version string) (*Version, error) {
	number, err := parseVersion(op, version)
	if err != nil {
		return nil, err
	}
	var rec Version
	q := db.Where("file_id = ?", fileID)
	if number == 0 {
		q = q.Where("current = ?", true)
	} else {
		q = q.Where("number = ?", number)
	}
	if err := q.First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.NewErrorf(op, storage.ErrVersionNotFound, "file %d version %s", fileID, version)
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) versionCount(db *gorm.DB, fileID uint) int {
	var n int64
	db.Model(&Version{}).Where("file_id = ?", fileID).Count(&n)
	return int(n)
}

// toStorageFile converts database rows to the provider-agnostic shape.
func (s *Store) toStorageFile(rec *File, ver *Version, numVersions int) *storage.File {
	out := &storage.File{
		ID:               formatID(rec.ID),
		Folder:           formatID(rec.FolderID),
		Name:             rec.Name,
		MimeType:         rec.MimeType,
		Size:             ver.Size,
		Description:      rec.Description,
		Categories:       append([]string(nil), rec.Categories...),
		Version:          strconv.Itoa(ver.Number),
		NumberOfVersions: numVersions,
		IsCurrentVersion: ver.Current,
		VersionComment:   ver.Comment,
		Created:          rec.CreatedAt,
		Modified:         ver.CreatedAt,
		CreatedBy:        rec.CreatedBy,
		ModifiedBy:       rec.ModifiedBy,
		LockedUntil:      rec.LockedUntil,
		Sequence:         rec.Sequence,
		Checksum:         ver.Checksum,
	}
	for _, p := range rec.Permissions {
		out.Permissions = append(out.Permissions, storage.Permission{
			Entity:   p.Entity,
			Type:     storage.EntityType(p.Type),
			Rights:   storage.Rights(p.Rights),
			Expiry:   p.Expiry,
			Password: p.Password,
		})
	}
	return out
}

// bumpSequence advances the sequence number of a folder and all of its
// ancestors.
func (s *Store) bumpSequence(db *gorm.DB, folderID uint) error {
	for folderID != 0 {
		var folder Folder
		if err := db.First(&folder, folderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := db.Model(&folder).Update("sequence", gorm.Expr("sequence + 1")).Error; err != nil {
			return err
		}
		if folder.ParentID == nil {
			return nil
		}
		folderID = *folder.ParentID
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, fileID, version string) (bool, error) {
	db := s.conn().WithContext(ctx)
	rec, err := s.loadFile("Exists", db, fileID)
	if err != nil {
		if storage.IsNotFound(err) || errors.Is(err, storage.ErrInvalidID) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.loadVersion("Exists", db, rec.ID, version); err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) GetMetadata(ctx context.Context, fileID, version string) (*storage.File, error) {
	db := s.conn().WithContext(ctx)
	rec, err := s.loadFile("GetMetadata", db, fileID)
	if err != nil {
		return nil, err
	}
	ver, err := s.loadVersion("GetMetadata", db, rec.ID, version)
	if err != nil {
		return nil, err
	}
	return s.toStorageFile(rec, ver, s.versionCount(db, rec.ID)), nil
}

func (s *Store) SaveMetadata(ctx context.Context, file *storage.File, modified []storage.Field) (*storage.File, error) {
	db := s.conn().WithContext(ctx)
	rec, err := s.loadFile("SaveMetadata", db, file.ID)
	if err != nil {
		return nil, err
	}
	if locked(rec) {
		return nil, storage.NewErrorf("SaveMetadata", storage.ErrLocked, "file %s", file.ID)
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

	updates := map[string]interface{}{"modified_by": file.ModifiedBy}
	if has(storage.FieldName) && file.Name != "" {
		updates["name"] = file.Name
	}
	if has(storage.FieldDescription) {
		updates["description"] = file.Description
	}
	if has(storage.FieldMimeType) && file.MimeType != "" {
		updates["mime_type"] = file.MimeType
	}
	if has(storage.FieldCategories) {
		rec.Categories = append([]string(nil), file.Categories...)
		if err := db.Model(rec).Update("categories", rec.Categories).Error; err != nil {
			return nil, err
		}
	}
	if err := db.Model(rec).Updates(updates).Error; err != nil {
		return nil, err
	}

	if has(storage.FieldPermissions) {
		if err := db.Where("file_id = ?", rec.ID).Delete(&Permission{}).Error; err != nil {
			return nil, err
		}
		for _, p := range file.Permissions {
			row := Permission{
				FileID:   rec.ID,
				Entity:   p.Entity,
				Type:     string(p.Type),
				Rights:   uint8(p.Rights),
				Expiry:   p.Expiry,
				Password: p.Password,
			}
			if err := db.Create(&row).Error; err != nil {
				return nil, err
			}
		}
	}

	if err := s.bumpSequence(db, rec.FolderID); err != nil {
		return nil, err
	}
	return s.GetMetadata(ctx, file.ID, storage.CurrentVersion)
}

func (s *Store) GetDocument(ctx context.Context, fileID, version string) (io.ReadCloser, error) {
	db := s.conn().WithContext(ctx)
	rec, err := s.loadFile("GetDocument", db, fileID)
	if err != nil {
		return nil, err
	}
	ver, err := s.loadVersion("GetDocument", db, rec.ID, version)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(ver.Content)), nil
}

func (s *Store) ReadRange(ctx context.Context, fileID, version string, offset, length int64) (io.ReadCloser, error) {
	db := s.conn().WithContext(ctx)
	rec, err := s.loadFile("ReadRange", db, fileID)
	if err != nil {
		return nil, err
	}
	ver, err := s.loadVersion("ReadRange", db, rec.ID, version)
	if err != nil {
		return nil, err
	}
	data := ver.Content
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	end := int64(len(data))
	if length >= 0 && offset+length < end {
		end = offset + length
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

func (s *Store) SaveDocument(ctx context.Context, file *storage.File, content io.Reader) (*storage.File, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	db := s.conn().WithContext(ctx)

	if file.ID == "" {
		folderID, err := parseID("SaveDocument", file.Folder)
		if err != nil {
			return nil, err
		}
		var folder Folder
		if err := db.First(&folder, folderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, storage.NewErrorf("SaveDocument", storage.ErrNotFound, "folder %s", file.Folder)
			}
			return nil, err
		}

		rec := File{
			FolderID:    folderID,
			Name:        file.Name,
			MimeType:    file.MimeType,
			Description: file.Description,
			Categories:  append([]string(nil), file.Categories...),
			CreatedBy:   file.CreatedBy,
			ModifiedBy:  file.ModifiedBy,
		}
		if err := db.Create(&rec).Error; err != nil {
			return nil, err
		}
		ver := Version{
			FileID:   rec.ID,
			Number:   1,
			Current:  true,
			Comment:  file.VersionComment,
			Size:     int64(len(data)),
			Checksum: checksum,
			Content:  data,
		}
		if err := db.Create(&ver).Error; err != nil {
			return nil, err
		}
		for _, p := range file.Permissions {
			row := Permission{
				FileID: rec.ID, Entity: p.Entity, Type: string(p.Type),
				Rights: uint8(p.Rights), Expiry: p.Expiry, Password: p.Password,
			}
			if err := db.Create(&row).Error; err != nil {
				return nil, err
			}
		}
		if err := s.bumpSequence(db, folderID); err != nil {
			return nil, err
		}
		return s.GetMetadata(ctx, formatID(rec.ID), storage.CurrentVersion)
	}

	rec, err := s.loadFile("SaveDocument", db, file.ID)
	if err != nil {
		return nil, err
	}
	if locked(rec) {
		return nil, storage.NewErrorf("SaveDocument", storage.ErrLocked, "file %s", file.ID)
	}

	var maxNumber int
	row := db.Model(&Version{}).Where("file_id = ?", rec.ID).Select("COALESCE(MAX(number), 0)")
	if err := row.Scan(&maxNumber).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Version{}).Where("file_id = ? AND current = ?", rec.ID, true).
		Update("current", false).Error; err != nil {
		return nil, err
	}
	ver := Version{
		FileID:   rec.ID,
		Number:   maxNumber + 1,
		Current:  true,
		Comment:  file.VersionComment,
		Size:     int64(len(data)),
		Checksum: checksum,
		Content:  data,
	}
	if err := db.Create(&ver).Error; err != nil {
		return nil, err
	}
	if file.ModifiedBy != "" {
		if err := db.Model(rec).Update("modified_by", file.ModifiedBy).Error; err != nil {
			return nil, err
		}
	}
	if err := s.bumpSequence(db, rec.FolderID); err != nil {
		return nil, err
	}
	return s.GetMetadata(ctx, file.ID, storage.CurrentVersion)
}

func (s *Store) Copy(ctx context.Context, fileID, version, destFolder string) (string, error) {
	db := s.conn().WithContext(ctx)
	rec, err := s.loadFile("Copy", db, fileID)
	if err != nil {
		return "", err
	}
	ver, err := s.loadVersion("Copy", db, rec.ID, version)
	if err != nil {
		return "", err
	}
	folderID, err := parseID("Copy", destFolder)
	if err != nil {
		return "", err
	}
	var folder Folder
	if err := db.First(&folder, folderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", storage.NewErrorf("Copy", storage.ErrNotFound, "folder %s", destFolder)
		}
		return "", err
	}

	dup := File{
		FolderID:    folderID,
		Name:        rec.Name,
		MimeType:    rec.MimeType,
		Description: rec.Description,
		Categories:  append([]string(nil), rec.Categories...),
		CreatedBy:   rec.CreatedBy,
		ModifiedBy:  rec.ModifiedBy,
	}
	if err := db.Create(&dup).Error; err != nil {
		return "", err
	}
	dupVer := Version{
		FileID:   dup.ID,
		Number:   1,
		Current:  true,
		Size:     ver.Size,
		Checksum: ver.Checksum,
		Content:  append([]byte(nil), ver.Content...),
	}
	if err := db.Create(&dupVer).Error; err != nil {
		return "", err
	}
	if err := s.bumpSequence(db, folderID); err != nil {
		return "", err
	}
	return formatID(dup.ID), nil
}

func (s *Store) Move(ctx context.Context, fileID, destFolder string) (string, error) {
	db := s.conn().WithContext(ctx)
	return s.move(db, fileID, destFolder)
}

func (s *Store) move(db *gorm.DB, fileID, destFolder string) (string, error) {
	rec, err := s.loadFile("Move", db, fileID)
	if err != nil {
		return "", err
	}
	if locked(rec) {
		return "", storage.NewErrorf("Move", storage.ErrLocked, "file %s", fileID)
	}
	folderID, err := parseID("Move", destFolder)
	if err != nil {
		return "", err
	}
	var folder Folder
	if err := db.First(&folder, folderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", storage.NewErrorf("Move", storage.ErrNotFound, "folder %s", destFolder)
		}
		return "", err
	}

	oldFolder := rec.FolderID
	if err := db.Model(rec).Updates(map[string]interface{}{
		"folder_id":        folderID,
		"origin_folder_id": nil,
	}).Error; err != nil {
		return "", err
	}
	if err := s.bumpSequence(db, oldFolder); err != nil {
		return "", err
	}
	if err := s.bumpSequence(db, folderID); err != nil {
		return "", err
	}
	return fileID, nil
}

func (s *Store) MoveAll(ctx context.Context, fileIDs []string, destFolder string) ([]string, error) {
	db := s.conn().WithContext(ctx)
	var conflicting []string
	for _, id := range fileIDs {
		if _, err := s.move(db, id, destFolder); err != nil {
			if storage.IsNotFound(err) || errors.Is(err, storage.ErrLocked) {
				conflicting = append(conflicting, id)
				continue
			}
			return nil, err
		}
	}
	return conflicting, nil
}

func (s *Store) Delete(ctx context.Context, fileIDs []string, hardDelete bool) ([]string, error) {
	db := s.conn().WithContext(ctx)

	var conflicting []string
	for _, id := range fileIDs {
		rec, err := s.loadFile("Delete", db, id)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if locked(rec) {
			conflicting = append(conflicting, id)
			continue
		}
		if err := s.bumpSequence(db, rec.FolderID); err != nil {
			return nil, err
		}
		if hardDelete || rec.FolderID == s.trashID {
			if err := s.hardDelete(db, rec); err != nil {
				return nil, err
			}
			continue
		}
		origin := rec.FolderID
		if err := db.Model(rec).Updates(map[string]interface{}{
			"folder_id":        s.trashID,
			"origin_folder_id": origin,
		}).Error; err != nil {
			return nil, err
		}
	}
	return conflicting, nil
}

func (s *Store) hardDelete(db *gorm.DB, rec *File) error {
	if err := db.Where("file_id = ?", rec.ID).Delete(&Version{}).Error; err != nil {
		return err
	}
	if err := db.Where("file_id = ?", rec.ID).Delete(&Permission{}).Error; err != nil {
		return err
	}
	return db.Delete(rec).Error
}

func (s *Store) Restore(ctx context.Context, fileIDs []string, defaultDest string) (map[string]string, error) {
	db := s.conn().WithContext(ctx)

	restored := make(map[string]string, len(fileIDs))
	for _, id := range fileIDs {
		rec, err := s.loadFile("Restore", db, id)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if rec.FolderID != s.trashID {
			continue
		}

		dest := defaultDest
		if rec.OriginFolderID != nil {
			var origin Folder
			if err := db.First(&origin, *rec.OriginFolderID).Error; err == nil {
				dest = formatID(origin.ID)
			}
		}
		if _, err := s.move(db, id, dest); err != nil {
			return nil, err
		}
		restored[id] = dest
	}
	return restored, nil
}

func (s *Store) ListFolder(ctx context.Context, folderID string, sort storage.SortField, order storage.SortOrder) ([]*storage.File, error) {
	db := s.conn().WithContext(ctx)
	fid, err := parseID("ListFolder", folderID)
	if err != nil {
		return nil, err
	}
	var folder Folder
	if err := db.First(&folder, fid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.NewErrorf("ListFolder", storage.ErrNotFound, "folder %s", folderID)
		}
		return nil, err
	}

	var recs []File
	if err := db.Preload("Permissions").Where("folder_id = ?", fid).Find(&recs).Error; err != nil {
		return nil, err
	}
	out, err := s.collect(db, recs)
	if err != nil {
		return nil, err
	}
	storage.SortFiles(out, sort, order)
	return out, nil
}

func (s *Store) collect(db *gorm.DB, recs []File) ([]*storage.File, error) {
	out := make([]*storage.File, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		ver, err := s.loadVersion("ListFolder", db, rec.ID, storage.CurrentVersion)
		if err != nil {
			return nil, err
		}
		out = append(out, s.toStorageFile(rec, ver, s.versionCount(db, rec.ID)))
	}
	return out, nil
}

func (s *Store) GetFolder(ctx context.Context, folderID string) (*storage.Folder, error) {
	db := s.conn().WithContext(ctx)
	fid, err := parseID("GetFolder", folderID)
	if err != nil {
		return nil, err
	}
	var folder Folder
	if err := db.First(&folder, fid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.NewErrorf("GetFolder", storage.ErrNotFound, "folder %s", folderID)
		}
		return nil, err
	}
	return toStorageFolder(&folder), nil
}

func toStorageFolder(f *Folder) *storage.Folder {
	out := &storage.Folder{
		ID:       formatID(f.ID),
		Name:     f.Name,
		Created:  f.CreatedAt,
		Modified: f.UpdatedAt,
		Sequence: f.Sequence,
	}
	if f.ParentID != nil {
		out.ParentID = formatID(*f.ParentID)
	}
	return out
}

func (s *Store) ListSubfolders(ctx context.Context, folderID string) ([]*storage.Folder, error) {
	db := s.conn().WithContext(ctx)
	fid, err := parseID("ListSubfolders", folderID)
	if err != nil {
		return nil, err
	}
	var folder Folder
	if err := db.First(&folder, fid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.NewErrorf("ListSubfolders", storage.ErrNotFound, "folder %s", folderID)
		}
		return nil, err
	}

	var folders []Folder
	if err := db.Where("parent_id = ?", fid).Order("name").Find(&folders).Error; err != nil {
		return nil, err
	}
	out := make([]*storage.Folder, 0, len(folders))
	for i := range folders {
		if folders[i].ID == s.trashID {
			continue
		}
		out = append(out, toStorageFolder(&folders[i]))
	}
	return out, nil
}

func (s *Store) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	db := s.conn().WithContext(ctx)
	pid, err := parseID("CreateFolder", parentID)
	if err != nil {
		return "", err
	}
	var parent Folder
	if err := db.First(&parent, pid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", storage.NewErrorf("CreateFolder", storage.ErrNotFound, "folder %s", parentID)
		}
		return "", err
	}

	folder := Folder{ParentID: &pid, Name: name}
	if err := db.Create(&folder).Error; err != nil {
		return "", err
	}
	if err := s.bumpSequence(db, pid); err != nil {
		return "", err
	}
	return formatID(folder.ID), nil
}

func (s *Store) DeleteFolder(ctx context.Context, folderID string, recursive bool) error {
	db := s.conn().WithContext(ctx)
	fid, err := parseID("DeleteFolder", folderID)
	if err != nil {
		return err
	}
	return s.deleteFolder(db, fid, recursive)
}

func (s *Store) deleteFolder(db *gorm.DB, folderID uint, recursive bool) error {
	var folder Folder
	if err := db.First(&folder, folderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return storage.NewErrorf("DeleteFolder", storage.ErrNotFound, "folder %d", folderID)
		}
		return err
	}

	var children []Folder
	if err := db.Where("parent_id = ?", folderID).Find(&children).Error; err != nil {
		return err
	}
	var fileCount int64
	if err := db.Model(&File{}).Where("folder_id = ?", folderID).Count(&fileCount).Error; err != nil {
		return err
	}
	if !recursive && (len(children) > 0 || fileCount > 0) {
		return storage.NewErrorf("DeleteFolder", storage.ErrFolderNotEmpty, "folder %d", folderID)
	}

	for _, child := range children {
		if err := s.deleteFolder(db, child.ID, true); err != nil {
			return err
		}
	}
	var recs []File
	if err := db.Where("folder_id = ?", folderID).Find(&recs).Error; err != nil {
		return err
	}
	for i := range recs {
		if err := s.hardDelete(db, &recs[i]); err != nil {
			return err
		}
	}
	if folder.ParentID != nil {
		if err := s.bumpSequence(db, *folder.ParentID); err != nil {
			return err
		}
	}
	return db.Delete(&folder).Error
}

func (s *Store) SequenceNumber(ctx context.Context, folderID string) (int64, error) {
	db := s.conn().WithContext(ctx)
	fid, err := parseID("SequenceNumber", folderID)
	if err != nil {
		return 0, err
	}
	var folder Folder
	if err := db.First(&folder, fid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, storage.NewErrorf("SequenceNumber", storage.ErrNotFound, "folder %s", folderID)
		}
		return 0, err
	}
	return folder.Sequence, nil
}

func (s *Store) ListVersions(ctx context.Context, fileID string) ([]*storage.File, error) {
	db := s.conn().WithContext(ctx)
	rec, err := s.loadFile("ListVersions", db, fileID)
	if err != nil {
		return nil, err
	}
	var versions []Version
	if err := db.Where("file_id = ?", rec.ID).Order("number DESC").Find(&versions).Error; err != nil {
		return nil, err
	}
	out := make([]*storage.File, 0, len(versions))
	for i := range versions {
		out = append(out, s.toStorageFile(rec, &versions[i], len(versions)))
	}
	return out, nil
}

func (s *Store) DeleteVersions(ctx context.Context, fileID string, versions []string) ([]string, error) {
	db := s.conn().WithContext(ctx)
	rec, err := s.loadFile("DeleteVersions", db, fileID)
	if err != nil {
		return nil, err
	}

	var conflicting []string
	for _, label := range versions {
		number, err := parseVersion("DeleteVersions", label)
		if err != nil || number == 0 {
			conflicting = append(conflicting, label)
			continue
		}
		var ver Version
		err = db.Where("file_id = ? AND number = ?", rec.ID, number).First(&ver).Error
		if err != nil {
			conflicting = append(conflicting, label)
			continue
		}
		// The current version is never removable this way.
		if ver.Current {
			conflicting = append(conflicting, label)
			continue
		}
		if err := db.Delete(&ver).Error; err != nil {
			return nil, err
		}
	}
	return conflicting, nil
}

func (s *Store) PromoteVersion(ctx context.Context, fileID, version string) (*storage.File, error) {
	db := s.conn().WithContext(ctx)
	rec, err := s.loadFile("PromoteVersion", db, fileID)
	if err != nil {
		return nil, err
	}
	ver, err := s.loadVersion("PromoteVersion", db, rec.ID, version)
	if err != nil {
		return nil, err
	}
	if err := db.Model(&Version{}).Where("file_id = ? AND current = ?", rec.ID, true).
		Update("current", false).Error; err != nil {
		return nil, err
	}
	if err := db.Model(ver).Update("current", true).Error; err != nil {
		return nil, err
	}
	if err := s.bumpSequence(db, rec.FolderID); err != nil {
		return nil, err
	}
	return s.GetMetadata(ctx, fileID, storage.CurrentVersion)
}

func (s *Store) Lock(ctx context.Context, fileID string, ttl time.Duration) error {
	db := s.conn().WithContext(ctx)
	rec, err := s.loadFile("Lock", db, fileID)
	if err != nil {
		return err
	}
	until := time.Now().Add(ttl)
	return db.Model(rec).Update("locked_until", until).Error
}

func (s *Store) Unlock(ctx context.Context, fileID string) error {
	db := s.conn().WithContext(ctx)
	rec, err := s.loadFile("Unlock", db, fileID)
	if err != nil {
		return err
	}
	return db.Model(rec).Update("locked_until", nil).Error
}

func locked(rec *File) bool {
	return rec.LockedUntil != nil && rec.LockedUntil.After(time.Now())
}

func (s *Store) Search(ctx context.Context, q *storage.Query) ([]*storage.File, error) {
	db := s.conn().WithContext(ctx)

	query := db.Preload("Permissions").Model(&File{})
	if len(q.Folders) > 0 {
		ids := make([]uint, 0, len(q.Folders))
		for _, f := range q.Folders {
			id, err := parseID("Search", f)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		query = query.Where("folder_id IN ?", ids)
	} else {
		query = query.Where("folder_id <> ?", s.trashID)
	}
	if q.Pattern != "" {
		pattern := "%" + q.Pattern + "%"
		query = query.Where("name LIKE ? OR description LIKE ?", pattern, pattern)
	}

	var recs []File
	if err := query.Find(&recs).Error; err != nil {
		return nil, err
	}
	out, err := s.collect(db, recs)
	if err != nil {
		return nil, err
	}
	storage.SortFiles(out, q.Sort, q.Order)

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

var (
	_ storage.FileAccess         = (*Store)(nil)
	_ storage.VersionAccess      = (*Store)(nil)
	_ storage.LockAccess         = (*Store)(nil)
	_ storage.RangeAccess        = (*Store)(nil)
	_ storage.SearchAccess       = (*Store)(nil)
	_ storage.MultiMoveAccess    = (*Store)(nil)
	_ storage.RestoreAccess      = (*Store)(nil)
	_ storage.Transactional      = (*Store)(nil)
	_ storage.CapabilityReporter = (*Store)(nil)
)
