package dbstore

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/trove-storage/trove/pkg/share"
	"github.com/trove-storage/trove/pkg/storage"
)

// GuestStore provisions external share recipients in the guests table.
// It backs the share helper of the compositing layer.
type GuestStore struct {
	db     *gorm.DB
	logger hclog.Logger
}

// NewGuestStore creates a guest provisioner on an open database.
func NewGuestStore(db *gorm.DB, logger hclog.Logger) (*GuestStore, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := db.AutoMigrate(&Guest{}); err != nil {
		return nil, err
	}
	return &GuestStore{db: db, logger: logger.Named("guest-store")}, nil
}

// ProvisionGuest records the external recipient of a share. Re-sharing
// with an already provisioned recipient reactivates the existing row.
func (g *GuestStore) ProvisionGuest(ctx context.Context, fileID string, p storage.Permission) (storage.Permission, error) {
	db := g.db.WithContext(ctx)

	var existing Guest
	err := db.Where("file_id = ? AND entity = ? AND type = ?", fileID, p.Entity, string(p.Type)).
		First(&existing).Error
	switch {
	case err == nil:
		if existing.RevokedAt != nil {
			if err := db.Model(&existing).Update("revoked_at", nil).Error; err != nil {
				return p, err
			}
		}
		return p, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		row := Guest{FileID: fileID, Entity: p.Entity, Type: string(p.Type)}
		if err := db.Create(&row).Error; err != nil {
			return p, err
		}
		g.logger.Debug("guest provisioned", "file_id", fileID, "entity", p.Entity)
		return p, nil
	default:
		return p, err
	}
}

// RevokeGuest marks the recipient's access as revoked.
func (g *GuestStore) RevokeGuest(ctx context.Context, fileID string, p storage.Permission) error {
	now := time.Now()
	result := g.db.WithContext(ctx).Model(&Guest{}).
		Where("file_id = ? AND entity = ? AND type = ? AND revoked_at IS NULL", fileID, p.Entity, string(p.Type)).
		Update("revoked_at", now)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		g.logger.Debug("guest revoked", "file_id", fileID, "entity", p.Entity)
	}
	return nil
}

// Guests returns a guest provisioner on the store's database.
func (s *Store) Guests() (*GuestStore, error) {
	return NewGuestStore(s.db, s.logger)
}

var _ share.Provisioner = (*GuestStore)(nil)
