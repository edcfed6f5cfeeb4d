package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
	Notifier   NotifierConfig   `mapstructure:"notifier"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// MigrateURL returns the connection string in the form golang-migrate's
// pgx/v5 driver expects.
func (d DatabaseConfig) MigrateURL() string {
	return "pgx5" + strings.TrimPrefix(d.DSN(), "postgres")
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LedgerConfig points at the address-filtered transaction query endpoint.
type LedgerConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	PageLimit int           `mapstructure:"page_limit"`
	// Breaker trips after this many consecutive failed fetches and stays
	// open for BreakerCooldown.
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

type ReconcilerConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	Workers         int           `mapstructure:"workers"`
	SessionWindow   time.Duration `mapstructure:"session_window"`
	MaxWindow       time.Duration `mapstructure:"max_window"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MatchMode       string        `mapstructure:"match_mode"`  // prefix, strict
	Denom           string        `mapstructure:"denom"`       // used by strict mode
	LeaseTTL        time.Duration `mapstructure:"lease_ttl"`   // renewed every lease_ttl/3
	InstanceID      string        `mapstructure:"instance_id"` // lease owner; empty = random per start
	// RecoveryInterval reruns the startup recovery pass periodically to pick
	// up sessions whose submit failed. Zero disables the sweep.
	RecoveryInterval time.Duration `mapstructure:"recovery_interval"`
}

type NotifierConfig struct {
	Brokers      []string      `mapstructure:"brokers"` // empty = log-only notifier
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AuthConfig holds the shared secret for service tokens issued to the
// commerce subsystem.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTIssuer string        `mapstructure:"jwt_issuer"`
	JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: PSR_ (Payment Session
// Reconciler). Nested keys use underscore: PSR_DATABASE_HOST,
// PSR_RECONCILER_POLL_INTERVAL, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "payment_sessions")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ledger.base_url", "https://api.xion-testnet-2.burnt.com")
	v.SetDefault("ledger.timeout", "10s")
	v.SetDefault("ledger.page_limit", 50)
	v.SetDefault("ledger.breaker_failures", 5)
	v.SetDefault("ledger.breaker_cooldown", "30s")
	v.SetDefault("reconciler.poll_interval", "5s")
	v.SetDefault("reconciler.workers", 64)
	v.SetDefault("reconciler.session_window", "10m")
	v.SetDefault("reconciler.max_window", "24h")
	v.SetDefault("reconciler.shutdown_timeout", "15s")
	v.SetDefault("reconciler.write_timeout", "5s")
	v.SetDefault("reconciler.match_mode", "prefix")
	v.SetDefault("reconciler.denom", "uxion")
	v.SetDefault("reconciler.lease_ttl", "15s")
	v.SetDefault("reconciler.instance_id", "")
	v.SetDefault("reconciler.recovery_interval", "1m")
	v.SetDefault("notifier.brokers", []string{})
	v.SetDefault("notifier.topic", "payment-notifications")
	v.SetDefault("notifier.write_timeout", "5s")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "payment-session-reconciler")
	v.SetDefault("auth.jwt_expiry", "24h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: PSR_DATABASE_HOST -> database.host
	v.SetEnvPrefix("PSR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required — env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	r := c.Reconciler
	switch {
	case r.PollInterval <= 0:
		return fmt.Errorf("reconciler.poll_interval must be positive")
	case r.Workers <= 0:
		return fmt.Errorf("reconciler.workers must be positive")
	case r.SessionWindow <= 0 || r.SessionWindow > r.MaxWindow:
		return fmt.Errorf("reconciler.session_window must be in (0, max_window]")
	case r.LeaseTTL < time.Second:
		return fmt.Errorf("reconciler.lease_ttl must be at least 1s")
	case r.RecoveryInterval < 0:
		return fmt.Errorf("reconciler.recovery_interval must not be negative")
	case r.MatchMode != "prefix" && r.MatchMode != "strict":
		return fmt.Errorf("reconciler.match_mode must be prefix or strict, got %q", r.MatchMode)
	case c.Ledger.BaseURL == "":
		return fmt.Errorf("ledger.base_url is required")
	case c.Ledger.PageLimit <= 0:
		return fmt.Errorf("ledger.page_limit must be positive")
	}
	return nil
}
