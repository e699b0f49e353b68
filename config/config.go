// Package config loads tessera's configuration from defaults, an optional
// YAML file, the environment and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Password hashers
const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

// Seed is a principal created at startup. Seeds are only read from the YAML file.
type Seed struct {
	Key     string `yaml:"key"`
	Secret  string `yaml:"secret"`
	Role    string `yaml:"role"`
	Balance string `yaml:"balance"`
}

// Config holds the configuration of the tessera server.
type Config struct {
	ListenAddr string `yaml:"listen_addr"` // HTTP listen address (default ":3000")

	AccessSecret  string        `yaml:"access_secret"`  // HS256 secret for access tokens
	RefreshSecret string        `yaml:"refresh_secret"` // HS256 secret for refresh tokens, must differ
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
	Issuer        string        `yaml:"issuer"`

	RedisURL    string `yaml:"redis_url"`    // empty keeps the ledger in memory and disables event streaming
	DatabaseDSN string `yaml:"database_dsn"` // empty keeps principals in memory

	Hasher     string `yaml:"hasher"` // bcrypt or argon2id
	BcryptCost int    `yaml:"bcrypt_cost"`

	SweepInterval time.Duration `yaml:"sweep_interval"`

	LoginRateLimitRPS   float64 `yaml:"login_rate_limit_rps"` // 0 disables the limit
	LoginRateLimitBurst int     `yaml:"login_rate_limit_burst"`

	LogLevel string `yaml:"log_level"` // debug, info, warn, error
	Env      string `yaml:"env"`       // development or production

	Bootstrap []Seed `yaml:"bootstrap"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		ListenAddr:          ":3000",
		AccessTTL:           15 * time.Minute,
		RefreshTTL:          7 * 24 * time.Hour,
		Issuer:              "tessera",
		Hasher:              HasherBcrypt,
		BcryptCost:          10,
		SweepInterval:       time.Minute,
		LoginRateLimitRPS:   5,
		LoginRateLimitBurst: 10,
		LogLevel:            "info",
		Env:                 "development",
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// set) and the environment read through getenv.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.loadEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) loadEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setDuration := func(key string, dst *time.Duration) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	if v := getenv("PORT"); v != "" {
		c.ListenAddr = ":" + v
	}
	setString("LISTEN_ADDR", &c.ListenAddr)
	setString("ACCESS_TOKEN_SECRET", &c.AccessSecret)
	setString("REFRESH_TOKEN_SECRET", &c.RefreshSecret)
	setString("TOKEN_ISSUER", &c.Issuer)
	setString("REDIS_URL", &c.RedisURL)
	setString("DATABASE_DSN", &c.DatabaseDSN)
	setString("PASSWORD_HASHER", &c.Hasher)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("ENV", &c.Env)

	for key, dst := range map[string]*time.Duration{
		"ACCESS_TOKEN_EXPIRY":  &c.AccessTTL,
		"REFRESH_TOKEN_EXPIRY": &c.RefreshTTL,
		"SWEEP_INTERVAL":       &c.SweepInterval,
	} {
		if err := setDuration(key, dst); err != nil {
			return err
		}
	}

	if v := getenv("BCRYPT_COST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BCRYPT_COST: %w", err)
		}
		c.BcryptCost = n
	}
	if v := getenv("LOGIN_RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("LOGIN_RATE_LIMIT_RPS: %w", err)
		}
		c.LoginRateLimitRPS = f
	}
	if v := getenv("LOGIN_RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOGIN_RATE_LIMIT_BURST: %w", err)
		}
		c.LoginRateLimitBurst = n
	}
	return nil
}

// RegisterFlags defines the command-line overrides on fs
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("listen-addr", d.ListenAddr, "HTTP listen address")
	fs.Duration("access-ttl", d.AccessTTL, "access token lifetime")
	fs.Duration("refresh-ttl", d.RefreshTTL, "refresh token lifetime")
	fs.String("redis-url", "", "Redis URL for the revocation ledger and event stream")
	fs.String("database-dsn", "", "PostgreSQL DSN for the principal store")
	fs.String("hasher", d.Hasher, "password hasher: bcrypt or argon2id")
	fs.Duration("sweep-interval", d.SweepInterval, "ledger sweep interval")
	fs.String("log-level", d.LogLevel, "log level: debug, info, warn, error")
}

// ApplyFlags copies the flags the user actually set onto c
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "listen-addr":
			c.ListenAddr, err = fs.GetString(f.Name)
		case "access-ttl":
			c.AccessTTL, err = fs.GetDuration(f.Name)
		case "refresh-ttl":
			c.RefreshTTL, err = fs.GetDuration(f.Name)
		case "redis-url":
			c.RedisURL, err = fs.GetString(f.Name)
		case "database-dsn":
			c.DatabaseDSN, err = fs.GetString(f.Name)
		case "hasher":
			c.Hasher, err = fs.GetString(f.Name)
		case "sweep-interval":
			c.SweepInterval, err = fs.GetDuration(f.Name)
		case "log-level":
			c.LogLevel, err = fs.GetString(f.Name)
		}
	})
	return err
}

// IsProduction returns true when the server runs in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	var errs []error

	if c.AccessSecret == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET is required"))
	}
	if c.RefreshSecret == "" {
		errs = append(errs, errors.New("REFRESH_TOKEN_SECRET is required"))
	}
	if c.AccessSecret != "" && c.AccessSecret == c.RefreshSecret {
		errs = append(errs, errors.New("access and refresh secrets must differ"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep interval must be positive"))
	}
	if c.Hasher != HasherBcrypt && c.Hasher != HasherArgon2id {
		errs = append(errs, fmt.Errorf("unknown password hasher %q", c.Hasher))
	}
	if c.LoginRateLimitRPS < 0 || c.LoginRateLimitBurst < 0 {
		errs = append(errs, errors.New("login rate limit must not be negative"))
	}
	for i, s := range c.Bootstrap {
		if strings.TrimSpace(s.Key) == "" || s.Secret == "" {
			errs = append(errs, fmt.Errorf("bootstrap[%d]: key and secret are required", i))
		}
		if s.Balance != "" {
			if _, err := decimal.NewFromString(s.Balance); err != nil {
				errs = append(errs, fmt.Errorf("bootstrap[%d]: invalid balance %q", i, s.Balance))
			}
		}
	}

	return errors.Join(errs...)
}
