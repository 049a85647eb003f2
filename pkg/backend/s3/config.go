// Package s3 is an object storage backend for S3-compatible services.
// Folders are key prefixes, descriptive metadata lives in object user
// metadata, and file versions map onto native bucket versioning when
// the bucket has it enabled.
package s3

import (
	"fmt"
)

// ServiceID is the service identifier of the object storage backend in
// composite IDs.
const ServiceID = "s3"

// Settings is the account configuration of the object storage backend,
// decoded from the account's settings map.
type Settings struct {
	// Endpoint overrides the S3 endpoint URL, e.g. for MinIO. Empty
	// uses AWS.
	Endpoint string `mapstructure:"endpoint"`

	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`

	// Prefix namespaces the account inside the bucket.
	Prefix string `mapstructure:"prefix"`

	// VersioningEnabled exposes native bucket versioning as file
	// versions. The bucket must have versioning turned on.
	VersioningEnabled bool `mapstructure:"versioning_enabled"`

	RequestTimeoutSeconds int  `mapstructure:"request_timeout_seconds"`
	InsecureSkipVerify    bool `mapstructure:"insecure_skip_verify"`

	DefaultMimeType string `mapstructure:"default_mime_type"`
}

// Validate checks the settings for required fields.
func (s *Settings) Validate() error {
	if s.Region == "" && s.Endpoint == "" {
		return fmt.Errorf("either region or endpoint is required")
	}
	if s.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	return nil
}

// SetDefaults fills optional fields.
func (s *Settings) SetDefaults() {
	if s.RequestTimeoutSeconds == 0 {
		s.RequestTimeoutSeconds = 30
	}
	if s.DefaultMimeType == "" {
		s.DefaultMimeType = "application/octet-stream"
	}
}
