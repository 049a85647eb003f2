// Package base carries the shared bootstrap of all CLI commands:
// flag handling, configuration loading and the wiring of the storage
// registry, compositing access, federated search and transfer layers.
package base

import (
	"context"
	"flag"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/trove-storage/trove/internal/config"
	"github.com/trove-storage/trove/pkg/backend/dbstore"
	"github.com/trove-storage/trove/pkg/backend/gdrive"
	"github.com/trove-storage/trove/pkg/backend/local"
	"github.com/trove-storage/trove/pkg/backend/s3"
	"github.com/trove-storage/trove/pkg/composite"
	"github.com/trove-storage/trove/pkg/events"
	fedsearch "github.com/trove-storage/trove/pkg/search"
	"github.com/trove-storage/trove/pkg/share"
	"github.com/trove-storage/trove/pkg/storage/registry"
	"github.com/trove-storage/trove/pkg/transfer"
)

// Command is embedded by every CLI command.
type Command struct {
	UI  cli.Ui
	Log hclog.Logger

	flagConfig string
}

// FlagSet creates a flag set carrying the flags every command takes.
func (c *Command) FlagSet(name string) *flag.FlagSet {
	f := flag.NewFlagSet(name, flag.ContinueOnError)
	f.StringVar(&c.flagConfig, "config", "config.hcl", "Path to the configuration file")
	return f
}

// App is the assembled application: every layer of the storage
// composition, built from one configuration file.
type App struct {
	Config   *config.Config
	Registry *registry.Registry
	Access   *composite.FileAccess
	Searcher *fedsearch.Federator
	Transfer *transfer.Transferrer
	Events   events.Publisher
	Shares   *share.Helper
	Logger   hclog.Logger
}

// guestDirectory is implemented by backends that can provision external
// share recipients.
type guestDirectory interface {
	Guests() (*dbstore.GuestStore, error)
}

// App loads the configuration and wires the application together.
func (c *Command) App(ctx context.Context) (*App, error) {
	cfg, err := config.Load(c.flagConfig)
	if err != nil {
		return nil, err
	}

	logger := c.Log
	if cfg.LogLevel != "" {
		logger = logger.ResetNamed("trove")
		logger.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	}

	reg := registry.New(logger)
	services := []registry.Service{
		dbstore.NewService(),
		local.NewService(),
		s3.NewService(),
		gdrive.NewService(),
	}
	for _, svc := range services {
		if err := reg.RegisterService(svc); err != nil {
			return nil, err
		}
	}
	for _, account := range cfg.RegistryAccounts() {
		if err := reg.AddAccount(account); err != nil {
			return nil, err
		}
	}

	publisher := events.Discard
	if cfg.Kafka != nil {
		topic := cfg.Kafka.Topic
		if topic == "" {
			topic = "trove-events"
		}
		publisher, err = events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    topic,
			ClientID: cfg.Kafka.ClientID,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting event publisher: %w", err)
		}
	}

	shares, err := buildShareHelper(ctx, cfg, reg, logger)
	if err != nil {
		return nil, err
	}

	access := composite.New(composite.Config{
		Registry: reg,
		Events:   publisher,
		Shares:   shares,
		Logger:   logger,
	})

	var searchOpts []fedsearch.Option
	if wait := cfg.SecondaryWait(); wait > 0 {
		searchOpts = append(searchOpts, fedsearch.WithSecondaryWait(wait))
	}

	return &App{
		Config:   cfg,
		Registry: reg,
		Access:   access,
		Searcher: fedsearch.NewFederator(reg, logger, searchOpts...),
		Transfer: transfer.New(access, logger),
		Events:   publisher,
		Shares:   shares,
		Logger:   logger,
	}, nil
}

// buildShareHelper picks the guest provisioner: the first backend with
// a guest directory wins, otherwise guests pass through unprovisioned.
func buildShareHelper(ctx context.Context, cfg *config.Config, reg *registry.Registry, logger hclog.Logger) (*share.Helper, error) {
	var opts []share.Option
	if timeout := cfg.CleanupTimeout(); timeout > 0 {
		opts = append(opts, share.WithCleanupTimeout(timeout))
	}

	for _, account := range cfg.RegistryAccounts() {
		handle, err := reg.ResolveAccount(ctx, account.Service, account.ID)
		if err != nil {
			return nil, fmt.Errorf("opening account %s/%s: %w", account.Service, account.ID, err)
		}
		directory, ok := handle.(guestDirectory)
		if !ok {
			continue
		}
		guests, err := directory.Guests()
		if err != nil {
			return nil, err
		}
		return share.NewHelper(guests, logger, opts...), nil
	}
	return share.NewHelper(share.NopProvisioner{}, logger, opts...), nil
}

// Close drains background work and releases backend handles.
func (a *App) Close() error {
	a.Shares.Wait()
	if err := a.Events.Close(); err != nil {
		a.Logger.Warn("closing event publisher", "error", err)
	}
	return a.Registry.Close()
}
