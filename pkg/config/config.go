// Package config loads agentdeck's configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	DefaultListen       = "127.0.0.1:9190"
	DefaultPollInterval = 2 * time.Second
)

// Config is the full agentdeck configuration.
type Config struct {
	// BackendURL is the base URL of the agent backend API.
	BackendURL string `yaml:"backend_url"`

	// Listen is the address the view API binds to. Supports host:port and
	// unix:// socket paths.
	Listen string `yaml:"listen"`

	// PollInterval is how often message snapshots are refetched, e.g. "2s".
	PollInterval string `yaml:"poll_interval"`

	// CachePath is the sqlite thread-cache location. Empty disables the
	// on-disk cache.
	CachePath string `yaml:"cache_path"`

	// NarrowViewport suppresses the panel auto-open heuristic, for
	// consumers rendering on small screens.
	NarrowViewport bool `yaml:"narrow_viewport"`

	// LogFile receives slog output; empty logs to stderr.
	LogFile string `yaml:"log_file"`

	pollInterval time.Duration
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Listen:       DefaultListen,
		PollInterval: DefaultPollInterval.String(),
		pollInterval: DefaultPollInterval,
	}
}

// Load reads the config file at path, applies environment overrides, and
// validates the result. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// fall through to env + defaults
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AGENTDECK_BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("AGENTDECK_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("AGENTDECK_POLL_INTERVAL"); v != "" {
		cfg.PollInterval = v
	}
	if v := os.Getenv("AGENTDECK_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("AGENTDECK_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}

func (c *Config) validate() error {
	if c.BackendURL == "" {
		return errors.New("backend_url is required (config file or AGENTDECK_BACKEND_URL)")
	}
	if _, err := url.Parse(c.BackendURL); err != nil {
		return fmt.Errorf("invalid backend_url: %w", err)
	}

	if c.Listen == "" {
		c.Listen = DefaultListen
	}

	if c.PollInterval == "" {
		c.pollInterval = DefaultPollInterval
	} else {
		d, err := time.ParseDuration(c.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval %q: %w", c.PollInterval, err)
		}
		if d < 100*time.Millisecond {
			return fmt.Errorf("poll_interval %q is too aggressive (minimum 100ms)", c.PollInterval)
		}
		c.pollInterval = d
	}

	return nil
}

// PollDuration returns the parsed poll interval.
func (c *Config) PollDuration() time.Duration {
	if c.pollInterval == 0 {
		return DefaultPollInterval
	}
	return c.pollInterval
}
