package root

import (
	"context"
	"fmt"

	"github.com/agentdeck/agentdeck/pkg/client"
	"github.com/agentdeck/agentdeck/pkg/config"
	"github.com/agentdeck/agentdeck/pkg/store"
)

// loadConfig resolves the effective configuration for a command.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logFilePath == "" && cfg.LogFile != "" {
		flags.logFilePath = cfg.LogFile
		if err := flags.setupLogging(); err != nil {
			return nil, fmt.Errorf("setting up logging: %w", err)
		}
	}
	return cfg, nil
}

func newBackend(cfg *config.Config) (*client.Client, error) {
	c, err := client.New(cfg.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("creating backend client: %w", err)
	}
	return c, nil
}

// openCache returns the configured thread cache, or an in-memory one when
// no path is set.
func openCache(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.CachePath == "" {
		return store.NewInMemoryStore(), nil
	}
	return store.NewSQLiteStore(ctx, cfg.CachePath)
}
