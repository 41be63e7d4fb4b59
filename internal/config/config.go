// Package config loads service configuration from an optional config.toml
// and RELIEF_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "RELIEF"

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Locking    LockingConfig    `mapstructure:"locking"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Minio      MinioConfig      `mapstructure:"minio"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Log        LogConfig        `mapstructure:"log"`
	Escalation EscalationConfig `mapstructure:"escalation"`
	Donations  DonationsConfig  `mapstructure:"donations"`
	Audit      AuditConfig      `mapstructure:"audit"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig selects the store. Driver "memory" runs without PostgreSQL.
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"`
	URL         string `mapstructure:"url"`
	MaxConns    int32  `mapstructure:"max_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type LockingConfig struct {
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MinioConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

// JWTConfig verifies bearer tokens with a shared secret, or with a JWKS endpoint when JWKSURL is set.
type JWTConfig struct {
	Secret  string `mapstructure:"secret"`
	JWKSURL string `mapstructure:"jwks_url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"`
}

type EscalationConfig struct {
	Interval              time.Duration `mapstructure:"interval"`
	DeliveryCheckInterval time.Duration `mapstructure:"delivery_check_interval"`
	OrphanSweepInterval   time.Duration `mapstructure:"orphan_sweep_interval"`
	StockAlertInterval    time.Duration `mapstructure:"stock_alert_interval"`
	LowAfter              time.Duration `mapstructure:"low_after"`
	MediumAfter           time.Duration `mapstructure:"medium_after"`
	HighAfter             time.Duration `mapstructure:"high_after"`
	DispatchedAlertAfter  time.Duration `mapstructure:"dispatched_alert_after"`
	InTransitAlertAfter   time.Duration `mapstructure:"in_transit_alert_after"`
	Workers               int           `mapstructure:"workers"`
}

type DonationsConfig struct {
	DefaultWarehouse string `mapstructure:"default_warehouse"`
}

type AuditConfig struct {
	ArchiveEnabled bool          `mapstructure:"archive_enabled"`
	ArchiveAfter   time.Duration `mapstructure:"archive_after"`
}

// Load reads config.toml from the working directory or ./config if present,
// then applies RELIEF_* overrides (database.url -> RELIEF_DATABASE_URL).
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file path.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks for configuration the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be postgres or memory, got %q", c.Database.Driver)
	}
	if c.Locking.WaitTimeout <= 0 {
		return errors.New("locking.wait_timeout must be positive")
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("app.port %d out of range", c.App.Port)
	}
	if c.Escalation.Workers <= 0 {
		return errors.New("escalation.workers must be positive")
	}
	if c.Minio.Enabled && c.Minio.Bucket == "" {
		return errors.New("minio.bucket is required when minio is enabled")
	}
	return nil
}

// IsProduction reports whether app.env is production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "reliefops")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("locking.wait_timeout", "5s")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key", "minioadmin")
	v.SetDefault("minio.secret_key", "minioadmin")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "reliefops-audit")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.jwks_url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("escalation.interval", "1h")
	v.SetDefault("escalation.delivery_check_interval", "1h")
	v.SetDefault("escalation.orphan_sweep_interval", "24h")
	v.SetDefault("escalation.stock_alert_interval", "30m")
	v.SetDefault("escalation.low_after", "72h")
	v.SetDefault("escalation.medium_after", "120h")
	v.SetDefault("escalation.high_after", "168h")
	v.SetDefault("escalation.dispatched_alert_after", "24h")
	v.SetDefault("escalation.in_transit_alert_after", "48h")
	v.SetDefault("escalation.workers", 4)

	v.SetDefault("donations.default_warehouse", "Central Warehouse")

	v.SetDefault("audit.archive_enabled", false)
	v.SetDefault("audit.archive_after", "8760h")
}
