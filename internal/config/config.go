// Configuration loading for the budget sentinel.
//
// DESIGN: Config comes from three layers, later layers winning:
//   1. Compiled defaults (defaults.go)
//   2. Optional YAML config file
//   3. Environment variables (COLLECTION_NAME_PREFIX and friends)
//
// The COLLECTION_NAME_PREFIX variable is part of the deployment contract and
// is honored even when no config file exists.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the sentinel.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Billing BillingConfig `yaml:"billing"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds the HTTP event server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StoreConfig selects and configures the ledger store backend.
type StoreConfig struct {
	Driver     string `yaml:"driver"` // "mongo", "sqlite" or "memory"
	SQLitePath string `yaml:"sqlite_path"`
	MongoURI   string `yaml:"mongo_uri"`
	MongoDB    string `yaml:"mongo_database"`
}

// BillingConfig configures the billing control API client.
type BillingConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// LedgerConfig holds ledger naming settings.
type LedgerConfig struct {
	CollectionPrefix string `yaml:"collection_prefix"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns a config populated with compiled defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         DefaultServerPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
		},
		Store: StoreConfig{
			Driver:     DefaultStoreDriver,
			SQLitePath: DefaultSQLitePath,
			MongoURI:   DefaultMongoURI,
			MongoDB:    DefaultMongoDatabase,
		},
		Billing: BillingConfig{
			BaseURL: DefaultBillingAPIBaseURL,
			Timeout: DefaultBillingTimeout,
		},
		Ledger: LedgerConfig{
			CollectionPrefix: DefaultCollectionPrefix,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the config from defaults, an optional YAML file and the
// environment. An empty path skips the file layer entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("COLLECTION_NAME_PREFIX"); v != "" {
		c.Ledger.CollectionPrefix = v
	}
	if v := os.Getenv("SENTINEL_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("SENTINEL_SQLITE_PATH"); v != "" {
		c.Store.SQLitePath = v
	}
	if v := os.Getenv("SENTINEL_MONGO_URI"); v != "" {
		c.Store.MongoURI = v
	}
	if v := os.Getenv("SENTINEL_MONGO_DATABASE"); v != "" {
		c.Store.MongoDB = v
	}
	if v := os.Getenv("BILLING_API_BASE_URL"); v != "" {
		c.Billing.BaseURL = v
	}
	if v := os.Getenv("BILLING_API_TOKEN"); v != "" {
		c.Billing.Token = v
	}
	if v := os.Getenv("SENTINEL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SENTINEL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	switch c.Store.Driver {
	case "mongo", "sqlite", "memory":
	default:
		return fmt.Errorf("store.driver must be one of mongo, sqlite, memory, got %q", c.Store.Driver)
	}
	if c.Store.Driver == "sqlite" && c.Store.SQLitePath == "" {
		return fmt.Errorf("store.sqlite_path must not be empty for the sqlite driver")
	}
	if c.Store.Driver == "mongo" && c.Store.MongoURI == "" {
		return fmt.Errorf("store.mongo_uri must not be empty for the mongo driver")
	}
	if c.Billing.BaseURL == "" {
		return fmt.Errorf("billing.base_url must not be empty")
	}
	if c.Ledger.CollectionPrefix == "" {
		return fmt.Errorf("ledger.collection_prefix must not be empty")
	}
	return nil
}
