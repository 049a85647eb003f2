package s3

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/go-hclog"

	"github.com/trove-storage/trove/pkg/storage"
	"github.com/trove-storage/trove/pkg/storage/registry"
)

// Service opens object storage backend accounts.
type Service struct{}

// NewService creates the object storage backend service factory.
func NewService() *Service { return &Service{} }

func (s *Service) ID() string { return ServiceID }

// Open connects to the configured bucket and returns a store bound to
// the account.
func (s *Service) Open(ctx context.Context, account registry.Account, logger hclog.Logger) (storage.FileAccess, error) {
	var settings Settings
	if err := registry.DecodeSettings(account.Settings, &settings); err != nil {
		return nil, fmt.Errorf("decoding s3 settings for account %s: %w", account.ID, err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid s3 settings for account %s: %w", account.ID, err)
	}
	settings.SetDefaults()

	awsCfg, err := createAWSConfig(ctx, &settings)
	if err != nil {
		return nil, fmt.Errorf("creating AWS config for account %s: %w", account.ID, err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
			// Path-style addressing for MinIO and friends.
			o.UsePathStyle = true
		}
	})
	return NewStore(client, &settings, account.ID, logger)
}

func createAWSConfig(ctx context.Context, settings *Settings) (aws.Config, error) {
	httpClient := &http.Client{
		Timeout: time.Duration(settings.RequestTimeoutSeconds) * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: settings.InsecureSkipVerify,
			},
		},
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(settings.Region),
		awsconfig.WithHTTPClient(httpClient),
	}
	if settings.AccessKey != "" && settings.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(settings.AccessKey, settings.SecretKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

var _ registry.Service = (*Service)(nil)
