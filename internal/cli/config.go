package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// ServerConfig is the TOML configuration for the serve command.
type ServerConfig struct {
	Addr string `toml:"addr"`

	Store struct {
		// Backend selects the persistence backend: "memory" or "mongo".
		Backend string `toml:"backend"`
		Mongo   struct {
			URI      string `toml:"uri"`
			Database string `toml:"database"`
		} `toml:"mongo"`
	} `toml:"store"`

	Session struct {
		// Backend selects the session backend: "memory", "file", or "redis".
		Backend string `toml:"backend"`
		Dir     string `toml:"dir"` // file backend only
		Redis   struct {
			Addr     string `toml:"addr"`
			Password string `toml:"password"`
			DB       int    `toml:"db"`
		} `toml:"redis"`
		TTL duration `toml:"ttl"`
	} `toml:"session"`

	Cache struct {
		Disabled bool   `toml:"disabled"`
		Dir      string `toml:"dir"`
	} `toml:"cache"`

	// Bootstrap creates an admin account on startup when it doesn't exist.
	Bootstrap struct {
		Admin    string `toml:"admin"`
		Password string `toml:"password"`
	} `toml:"bootstrap"`
}

// duration wraps time.Duration for TOML strings like "24h".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// DefaultServerConfig returns the configuration used when no file is given.
func DefaultServerConfig() ServerConfig {
	var cfg ServerConfig
	cfg.Addr = ":8080"
	cfg.Store.Backend = "memory"
	cfg.Store.Mongo.URI = "mongodb://localhost:27017"
	cfg.Store.Mongo.Database = "causemap"
	cfg.Session.Backend = "memory"
	cfg.Session.Redis.Addr = "localhost:6379"
	cfg.Session.TTL = duration{24 * time.Hour}
	return cfg
}

// LoadServerConfig reads a TOML config file on top of the defaults.
// An empty path returns the defaults unchanged.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c *ServerConfig) validate() error {
	switch c.Store.Backend {
	case "memory", "mongo":
	default:
		return fmt.Errorf("unknown store backend %q (must be memory or mongo)", c.Store.Backend)
	}
	switch c.Session.Backend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("unknown session backend %q (must be memory, file, or redis)", c.Session.Backend)
	}
	return nil
}
