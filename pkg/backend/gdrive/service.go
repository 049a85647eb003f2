package gdrive

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/trove-storage/trove/pkg/storage"
	"github.com/trove-storage/trove/pkg/storage/registry"
)

// Settings is the account configuration of the Drive backend, decoded
// from the account's settings map. Either a service account credentials
// file or an OAuth client with a refresh token must be configured.
type Settings struct {
	// CredentialsFile is a service account key file.
	CredentialsFile string `mapstructure:"credentials_file"`

	// OAuth client flow.
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`

	// Subject impersonates a user with domain-wide delegation.
	Subject string `mapstructure:"subject"`
}

// Validate checks that one authentication method is configured.
func (s *Settings) Validate() error {
	if s.CredentialsFile != "" {
		return nil
	}
	if s.ClientID != "" && s.ClientSecret != "" && s.RefreshToken != "" {
		return nil
	}
	return fmt.Errorf("either credentials_file or client_id/client_secret/refresh_token is required")
}

// Service opens Drive backend accounts.
type Service struct{}

// NewService creates the Drive backend service factory.
func NewService() *Service { return &Service{} }

func (s *Service) ID() string { return ServiceID }

// Open authenticates against the Drive API and returns a store bound to
// the account.
func (s *Service) Open(ctx context.Context, account registry.Account, logger hclog.Logger) (storage.FileAccess, error) {
	var settings Settings
	if err := registry.DecodeSettings(account.Settings, &settings); err != nil {
		return nil, fmt.Errorf("decoding gdrive settings for account %s: %w", account.ID, err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gdrive settings for account %s: %w", account.ID, err)
	}

	opts, err := clientOptions(ctx, &settings)
	if err != nil {
		return nil, fmt.Errorf("configuring gdrive credentials for account %s: %w", account.ID, err)
	}
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting gdrive account %s: %w", account.ID, err)
	}
	return NewStore(service, account.ID, logger), nil
}

func clientOptions(ctx context.Context, settings *Settings) ([]option.ClientOption, error) {
	if settings.CredentialsFile != "" {
		opts := []option.ClientOption{
			option.WithCredentialsFile(settings.CredentialsFile),
			option.WithScopes(drive.DriveScope),
		}
		if settings.Subject != "" {
			// Domain-wide delegation needs a JWT config carrying the
			// impersonated subject.
			jwtOpt, err := impersonationOption(ctx, settings)
			if err != nil {
				return nil, err
			}
			opts = []option.ClientOption{jwtOpt}
		}
		return opts, nil
	}

	cfg := &oauth2.Config{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveScope},
	}
	source := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: settings.RefreshToken})
	return []option.ClientOption{option.WithTokenSource(source)}, nil
}

func impersonationOption(ctx context.Context, settings *Settings) (option.ClientOption, error) {
	data, err := os.ReadFile(settings.CredentialsFile)
	if err != nil {
		return nil, err
	}
	cfg, err := google.JWTConfigFromJSON(data, drive.DriveScope)
	if err != nil {
		return nil, err
	}
	cfg.Subject = settings.Subject
	return option.WithTokenSource(cfg.TokenSource(ctx)), nil
}

var _ registry.Service = (*Service)(nil)
