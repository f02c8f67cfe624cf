package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Bulk          BulkConfig          `mapstructure:"bulk"`
	RelationCache RelationCacheConfig `mapstructure:"relation_cache"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Log           LogConfig           `mapstructure:"log"`
	JWTSecret     string              `mapstructure:"jwt_secret"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// BulkConfig bounds the bulk-edit engine.
type BulkConfig struct {
	QueryCap    int      `mapstructure:"query_cap"`
	CatalogPath string   `mapstructure:"catalog_path"` // empty uses the embedded catalog
	Roles       []string `mapstructure:"roles"`        // operator roles allowed to use the bulk API
}

type RelationCacheConfig struct {
	Driver     string        `mapstructure:"driver"` // "memory" or "redis"
	RedisAddr  string        `mapstructure:"redis_addr"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxOptions int           `mapstructure:"max_options"`
}

// AuditConfig controls the execute audit trail.
type AuditConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	MaxBatch      int           `mapstructure:"max_batch"`
	RetentionDays int           `mapstructure:"retention_days"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.IsSQLite() {
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "trailrun")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("jwt_secret", "changeme-secret")
	v.SetDefault("bulk.query_cap", 100)
	v.SetDefault("bulk.catalog_path", "")
	v.SetDefault("bulk.roles", []string{"admin", "editor"})
	v.SetDefault("relation_cache.driver", "memory")
	v.SetDefault("relation_cache.redis_addr", "localhost:6379")
	v.SetDefault("relation_cache.ttl", 30*time.Minute)
	v.SetDefault("relation_cache.max_options", 1000)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.flush_interval", 2*time.Second)
	v.SetDefault("audit.max_batch", 100)
	v.SetDefault("audit.retention_days", 90)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)
}

// Load reads app.yaml (if present) and environment overrides.
// A missing config file is not an error; defaults apply.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "../.."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)

	v.SetEnvPrefix("TRAILRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Bulk.QueryCap <= 0 {
		return nil, fmt.Errorf("bulk.query_cap must be positive, got %d", cfg.Bulk.QueryCap)
	}
	if cfg.RelationCache.TTL <= 0 {
		return nil, fmt.Errorf("relation_cache.ttl must be positive, got %s", cfg.RelationCache.TTL)
	}
	return &cfg, nil
}
