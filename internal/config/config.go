// Package config loads the plot store settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	Backend   string         `yaml:"backend" env:"PLOTS_BACKEND"`
	SQLite    SQLiteConfig   `yaml:"sqlite" envPrefix:"PLOTS_SQLITE_"`
	Postgres  PostgresConfig `yaml:"postgres" envPrefix:"POSTGRES_"`
	CacheSize int            `yaml:"cache_size" env:"PLOTS_CACHE_SIZE"`
	Workers   int            `yaml:"workers" env:"PLOTS_WORKERS"`
	// Levels lists the loaded levels; empty means every level is loaded.
	Levels   []string `yaml:"levels" env:"PLOTS_LEVELS" envSeparator:","`
	AuditDir string   `yaml:"audit_dir" env:"PLOTS_AUDIT_DIR"`
	LogLevel string   `yaml:"log_level" env:"PLOTS_LOG_LEVEL"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

type PostgresConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Database string `yaml:"database" env:"DATABASE"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`
}

// Load reads path (optional), then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("plots.yaml: %w", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, fmt.Errorf("env: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("plots.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Backend:   BackendSQLite,
		SQLite:    SQLiteConfig{Path: "data/plots.db"},
		Postgres:  PostgresConfig{Host: "localhost", Port: 5432, Database: "plots", SSLMode: "disable"},
		CacheSize: 4096,
		Workers:   2,
		LogLevel:  "info",
	}
}

// ApplyEnv overrides fields whose variables are set.
func (c *Config) ApplyEnv() error {
	return env.Parse(c)
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "postgresql" {
		c.Backend = BackendPostgres
	}
	if c.Backend == "sqlite3" {
		c.Backend = BackendSQLite
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.CacheSize < 0 {
		c.CacheSize = 0
	}
	levels := c.Levels[:0]
	seen := map[string]bool{}
	for _, l := range c.Levels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		levels = append(levels, l)
	}
	c.Levels = levels
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if strings.TrimSpace(c.SQLite.Path) == "" {
			return fmt.Errorf("sqlite.path is required")
		}
	case BackendPostgres:
		if strings.TrimSpace(c.Postgres.Host) == "" {
			return fmt.Errorf("postgres.host is required")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			return fmt.Errorf("postgres.port out of range: %d", c.Postgres.Port)
		}
		if strings.TrimSpace(c.Postgres.Database) == "" {
			return fmt.Errorf("postgres.database is required")
		}
	case "mysql":
		return fmt.Errorf("backend mysql is not supported (want sqlite or postgres)")
	default:
		return fmt.Errorf("unknown backend: %q", c.Backend)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level: %q", c.LogLevel)
	}
	return nil
}

// LevelLoaded returns the loaded-level predicate for the configured levels.
func (c Config) LevelLoaded() func(string) bool {
	if len(c.Levels) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]struct{}, len(c.Levels))
	for _, l := range c.Levels {
		set[l] = struct{}{}
	}
	return func(level string) bool {
		_, ok := set[level]
		return ok
	}
}

// DSN renders the connection URL understood by pgx.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   p.Host + ":" + strconv.Itoa(p.Port),
		Path:   "/" + p.Database,
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{p.SSLMode}}.Encode()
	}
	return u.String()
}
