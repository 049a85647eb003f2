package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

account "infostore" "main" {
  primary = true
  settings = {
    driver = "sqlite"
    path   = ":memory:"
  }
}

account "local" "files" {
  settings = {
    root = "/srv/trove"
  }
}

search {
  secondary_wait_seconds = 10
}

share {
  cleanup_timeout_seconds = 60
}

kafka {
  brokers   = ["broker-1:9092", "broker-2:9092"]
  topic     = "trove-events"
  client_id = "trove-main"
}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, "infostore", cfg.Accounts[0].Service)
	assert.Equal(t, "main", cfg.Accounts[0].ID)
	assert.True(t, cfg.Accounts[0].Primary)
	assert.Equal(t, "sqlite", cfg.Accounts[0].Settings["driver"])
	assert.False(t, cfg.Accounts[1].Primary)

	assert.Equal(t, 10*time.Second, cfg.SecondaryWait())
	assert.Equal(t, time.Minute, cfg.CleanupTimeout())

	require.NotNil(t, cfg.Kafka)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "trove-main", cfg.Kafka.ClientID)

	accounts := cfg.RegistryAccounts()
	require.Len(t, accounts, 2)
	assert.Equal(t, "main", accounts[0].ID)
	assert.True(t, accounts[0].Primary)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
account "local" "files" {}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.SecondaryWait())
	assert.Equal(t, time.Duration(0), cfg.CleanupTimeout())
	assert.Nil(t, cfg.Kafka)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no accounts",
			content: `log_level = "info"`,
			wantErr: "at least one account",
		},
		{
			name: "bad log level",
			content: `
log_level = "verbose"
account "local" "files" {}
`,
			wantErr: "log_level",
		},
		{
			name: "duplicate account",
			content: `
account "local" "files" {}
account "local" "files" {}
`,
			wantErr: "duplicate account local/files",
		},
		{
			name: "two primaries",
			content: `
account "local" "a" {
  primary = true
}
account "local" "b" {
  primary = true
}
`,
			wantErr: "at most one account may be primary",
		},
		{
			name: "kafka without brokers",
			content: `
account "local" "files" {}
kafka {
  brokers = []
}
`,
			wantErr: "kafka",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBrokersEnvOverride(t *testing.T) {
	t.Setenv(brokersEnvVar, "env-broker:9092")

	cfg, err := Load(writeConfig(t, `
account "local" "files" {}
`))
	require.NoError(t, err)
	require.NotNil(t, cfg.Kafka)
	assert.Equal(t, []string{"env-broker:9092"}, cfg.Kafka.Brokers)
}
