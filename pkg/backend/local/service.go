package local

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/trove-storage/trove/pkg/storage"
	"github.com/trove-storage/trove/pkg/storage/registry"
)

// Settings is the account configuration of the filesystem backend,
// decoded from the account's settings map.
type Settings struct {
	// Root is the directory holding the account's file tree. The value
	// ":memory:" runs the account on an in-memory filesystem.
	Root string `mapstructure:"root"`

	// IndexPath is the location of the bleve search index. Empty keeps
	// the index in memory.
	IndexPath string `mapstructure:"index_path"`
}

// Service opens filesystem backend accounts.
type Service struct{}

// NewService creates the filesystem backend service factory.
func NewService() *Service { return &Service{} }

func (s *Service) ID() string { return ServiceID }

// Open mounts the configured directory and returns a store bound to the
// account.
func (s *Service) Open(ctx context.Context, account registry.Account, logger hclog.Logger) (storage.FileAccess, error) {
	var settings Settings
	if err := registry.DecodeSettings(account.Settings, &settings); err != nil {
		return nil, fmt.Errorf("decoding local settings for account %s: %w", account.ID, err)
	}

	var fs afero.Fs
	switch settings.Root {
	case "", ":memory:":
		fs = afero.NewMemMapFs()
	default:
		fs = afero.NewBasePathFs(afero.NewOsFs(), settings.Root)
	}
	return NewStore(fs, account.ID, settings.IndexPath, logger)
}

var _ registry.Service = (*Service)(nil)
