package dbstore

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/trove-storage/trove/pkg/storage"
	"github.com/trove-storage/trove/pkg/storage/registry"
)

// Settings is the account configuration of the database backend,
// decoded from the account's settings map.
type Settings struct {
	// Driver selects the database: "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`

	// Path is the database file for SQLite; ":memory:" runs in memory.
	Path string `mapstructure:"path"`

	// PostgreSQL connection settings.
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// Service opens database backend accounts.
type Service struct{}

// NewService creates the database backend service factory.
func NewService() *Service { return &Service{} }

func (s *Service) ID() string { return ServiceID }

// Open connects to the configured database and returns a store bound to
// the account.
func (s *Service) Open(ctx context.Context, account registry.Account, logger hclog.Logger) (storage.FileAccess, error) {
	var settings Settings
	if err := registry.DecodeSettings(account.Settings, &settings); err != nil {
		return nil, fmt.Errorf("decoding dbstore settings for account %s: %w", account.ID, err)
	}

	var dialector gorm.Dialector
	switch settings.Driver {
	case "", "sqlite":
		path := settings.Path
		if path == "" {
			path = ":memory:"
		}
		dialector = sqlite.Open(path)
	case "postgres":
		sslMode := settings.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
			settings.Host, settings.User, settings.Password, settings.DBName, settings.Port, sslMode)
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported dbstore driver: %s", settings.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting dbstore account %s: %w", account.ID, err)
	}
	return Open(db, account.ID, logger)
}

var _ registry.Service = (*Service)(nil)
