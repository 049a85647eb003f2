// Package config loads and validates the HCL configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/trove-storage/trove/pkg/storage/registry"
)

// Config is the root configuration.
type Config struct {
	// LogLevel sets the log verbosity: trace, debug, info, warn, error.
	LogLevel string `hcl:"log_level,optional"`

	// Accounts configures the storage backends. Exactly one account
	// should be flagged primary; the primary is exempt from the bounded
	// wait during federated search.
	Accounts []Account `hcl:"account,block"`

	Search *Search `hcl:"search,block"`
	Share  *Share  `hcl:"share,block"`
	Kafka  *Kafka  `hcl:"kafka,block"`
}

// Account configures one storage backend account.
//
//	account "local" "files" {
//	  primary  = true
//	  settings = { root = "/srv/trove" }
//	}
type Account struct {
	Service  string            `hcl:"service,label"`
	ID       string            `hcl:"id,label"`
	Primary  bool              `hcl:"primary,optional"`
	Settings map[string]string `hcl:"settings,optional"`
}

// Search tunes the federated search fan-out.
type Search struct {
	// SecondaryWaitSeconds bounds the wait for non-primary backends.
	SecondaryWaitSeconds int `hcl:"secondary_wait_seconds,optional"`
}

// Share tunes the share reconciliation helper.
type Share struct {
	// CleanupTimeoutSeconds bounds one background guest revocation.
	CleanupTimeoutSeconds int `hcl:"cleanup_timeout_seconds,optional"`
}

// Kafka configures the event publisher. Absent means events stay on the
// in-process bus.
type Kafka struct {
	Brokers  []string `hcl:"brokers"`
	Topic    string   `hcl:"topic,optional"`
	ClientID string   `hcl:"client_id,optional"`
}

// brokersEnvVar overrides the configured Kafka brokers, comma separated.
const brokersEnvVar = "TROVE_KAFKA_BROKERS"

// Load reads, validates and normalizes a configuration file.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if brokers := os.Getenv(brokersEnvVar); brokers != "" {
		if c.Kafka == nil {
			c.Kafka = &Kafka{}
		}
		c.Kafka.Brokers = strings.Split(brokers, ",")
	}
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.LogLevel,
			validation.In("", "trace", "debug", "info", "warn", "error")),
		validation.Field(&c.Accounts, validation.Required.Error("at least one account is required")),
	)
	if err != nil {
		return err
	}

	primaries := 0
	seen := make(map[string]bool, len(c.Accounts))
	for i := range c.Accounts {
		a := &c.Accounts[i]
		if err := validation.ValidateStruct(a,
			validation.Field(&a.Service, validation.Required),
			validation.Field(&a.ID, validation.Required),
		); err != nil {
			return fmt.Errorf("account %q %q: %w", a.Service, a.ID, err)
		}
		key := a.Service + "/" + a.ID
		if seen[key] {
			return fmt.Errorf("duplicate account %s", key)
		}
		seen[key] = true
		if a.Primary {
			primaries++
		}
	}
	if primaries > 1 {
		return fmt.Errorf("at most one account may be primary, got %d", primaries)
	}

	if c.Kafka != nil {
		if err := validation.ValidateStruct(c.Kafka,
			validation.Field(&c.Kafka.Brokers, validation.Required),
		); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
	}
	return nil
}

// RegistryAccounts converts the configured accounts into registry form.
func (c *Config) RegistryAccounts() []registry.Account {
	out := make([]registry.Account, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		out = append(out, registry.Account{
			ID:       a.ID,
			Service:  a.Service,
			Primary:  a.Primary,
			Settings: a.Settings,
		})
	}
	return out
}

// SecondaryWait returns the configured federated search wait, or zero
// when the default should apply.
func (c *Config) SecondaryWait() time.Duration {
	if c.Search == nil || c.Search.SecondaryWaitSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Search.SecondaryWaitSeconds) * time.Second
}

// CleanupTimeout returns the configured guest cleanup timeout, or zero
// when the default should apply.
func (c *Config) CleanupTimeout() time.Duration {
	if c.Share == nil || c.Share.CleanupTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Share.CleanupTimeoutSeconds) * time.Second
}
