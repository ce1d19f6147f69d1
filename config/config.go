// Package config loads server settings from an optional TOML file and the
// environment. Environment variables win over the file.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/redis/go-redis/v9"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverAzTable  = "aztable"
)

// Config is the full server configuration.
type Config struct {
	ListenAddr string `toml:"listen_addr"`
	Debug      bool   `toml:"debug"`

	Store StoreConfig `toml:"store"`
	Redis RedisConfig `toml:"redis"`

	SaveTimeout time.Duration `toml:"save_timeout"`
	DeduperTTL  time.Duration `toml:"deduper_ttl"`

	// AuthSecret enables HS256 bearer auth on the API when set.
	AuthSecret string `toml:"auth_secret"`
}

type StoreConfig struct {
	Driver      string `toml:"driver"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
	// AzureConnectionString is the Table Storage connection string.
	AzureConnectionString string `toml:"azure_connection_string"`
	Table                 string `toml:"table"`
	Namespace             string `toml:"namespace"`
}

type RedisConfig struct {
	ConnectionString string `toml:"connection_string"`
	// CacheTTL enables a Redis read cache in front of the sql and aztable
	// drivers.
	CacheTTL time.Duration `toml:"cache_ttl"`
}

func defaults() Config {
	return Config{
		ListenAddr: ":8080",
		Store: StoreConfig{
			Driver:     DriverSQLite,
			SQLitePath: "taskboard.db",
			Table:      "boardstate",
			Namespace:  "local",
		},
		SaveTimeout: 5 * time.Second,
		DeduperTTL:  24 * time.Hour,
	}
}

// Load reads the file named by BOARD_CONFIG, if any, then applies the
// environment and validates the result.
func Load() (*Config, error) {
	cfg := defaults()
	if path := os.Getenv("BOARD_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setDuration := func(name string, dst *time.Duration) error {
		v := os.Getenv(name)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = d
		return nil
	}

	setString("LISTEN_ADDR", &cfg.ListenAddr)
	if v := os.Getenv("DEBUG"); v != "" {
		dbg, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DEBUG: %w", err)
		}
		cfg.Debug = dbg
	}
	setString("STORE_DRIVER", &cfg.Store.Driver)
	setString("SQLITE_PATH", &cfg.Store.SQLitePath)
	setString("POSTGRES_DSN", &cfg.Store.PostgresDSN)
	setString("STORAGE_CONNECTION_STRING", &cfg.Store.AzureConnectionString)
	setString("STATE_TABLE", &cfg.Store.Table)
	setString("STORE_NAMESPACE", &cfg.Store.Namespace)
	setString("REDIS_CONNECTION_STRING", &cfg.Redis.ConnectionString)
	setString("LOCAL_AUTH_SHARED_SECRET", &cfg.AuthSecret)

	for name, dst := range map[string]*time.Duration{
		"SAVE_TIMEOUT": &cfg.SaveTimeout,
		"DEDUPER_TTL":  &cfg.DeduperTTL,
		"CACHE_TTL":    &cfg.Redis.CacheTTL,
	} {
		if err := setDuration(name, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that the selected driver has what it needs.
func (c *Config) Validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("sqlite driver needs SQLITE_PATH")
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("postgres driver needs POSTGRES_DSN")
		}
	case DriverRedis:
		if c.Redis.ConnectionString == "" {
			return errors.New("redis driver needs REDIS_CONNECTION_STRING")
		}
	case DriverAzTable:
		if c.Store.AzureConnectionString == "" {
			return errors.New("aztable driver needs STORAGE_CONNECTION_STRING")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Store.Table == "" {
		return errors.New("missing STATE_TABLE")
	}
	if c.SaveTimeout <= 0 {
		return errors.New("SAVE_TIMEOUT must be positive")
	}
	if c.DeduperTTL <= 0 {
		return errors.New("DEDUPER_TTL must be positive")
	}
	if c.Redis.CacheTTL < 0 {
		return errors.New("CACHE_TTL must not be negative")
	}
	return nil
}

// RedisOptions parses the connection string as a redis:// URL or, failing
// that, in the "host:port,password=...,ssl=true" form.
func (c *Config) RedisOptions() (*redis.Options, error) {
	conn := c.Redis.ConnectionString
	if conn == "" {
		return nil, errors.New("missing redis config")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}
