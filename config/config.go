// Package config loads the service configuration from a YAML file with
// environment overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	Service struct {
		Name                string `yaml:"name"`
		Port                int    `yaml:"port"`
		ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	} `yaml:"service"`

	Postgres struct {
		Host           string `yaml:"host"`
		Port           int    `yaml:"port"`
		Database       string `yaml:"database"`
		User           string `yaml:"user"`
		Password       string `yaml:"password"`
		SSLMode        string `yaml:"sslmode"`
		MaxConnections int    `yaml:"max_connections"`
	} `yaml:"postgres"`

	Engine struct {
		SnapshotInterval uint64 `yaml:"snapshot_interval"`
	} `yaml:"engine"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Service.Name = "asset-ledger"
	cfg.Service.Port = 3030
	cfg.Service.ReadTimeoutSeconds = 30
	cfg.Service.WriteTimeoutSeconds = 30
	cfg.Postgres.Host = "localhost"
	cfg.Postgres.Port = 5432
	cfg.Postgres.Database = "postgres"
	cfg.Postgres.User = "postgres"
	cfg.Postgres.Password = "postgres"
	cfg.Postgres.SSLMode = "disable"
	cfg.Postgres.MaxConnections = 10
	cfg.Engine.SnapshotInterval = 100
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	return cfg
}

// Load reads the YAML file at path on top of the defaults. A missing file
// is not an error — the defaults plus env overrides apply.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid service port %d", c.Service.Port)
	}
	if c.Postgres.MaxConnections <= 0 {
		return fmt.Errorf("invalid postgres max_connections %d", c.Postgres.MaxConnections)
	}
	return nil
}

// ConnectionString builds the postgres connection string. The DATABASE_URL
// environment variable wins when set.
func (c *Config) ConnectionString() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User, c.Postgres.Password,
		c.Postgres.Host, c.Postgres.Port,
		c.Postgres.Database, c.Postgres.SSLMode,
	)
}
