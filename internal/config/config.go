// Package config loads parley settings from flags, environment, an optional
// YAML file and a .env file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. PARLEY_HTTP_ADDR.
const EnvPrefix = "PARLEY"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	HTTP   HTTPConfig   `mapstructure:"http"`
	Flows  FlowsConfig  `mapstructure:"flows"`
	Bot    BotConfig    `mapstructure:"bot"`
	Engine EngineConfig `mapstructure:"engine"`
	Store  StoreConfig  `mapstructure:"store"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Dedup  DedupConfig  `mapstructure:"dedup"`
	Send   SendConfig   `mapstructure:"send"`
	Twilio TwilioConfig `mapstructure:"twilio"`
	Log    LogConfig    `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
	// PublicURL is the externally visible base URL webhook signatures are computed over.
	PublicURL string `mapstructure:"public_url"`
}

type FlowsConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

type BotConfig struct {
	EntryFlow string `mapstructure:"entry_flow"`
	Language  string `mapstructure:"language"`
}

type EngineConfig struct {
	MaxSteps int `mapstructure:"max_steps"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	// DSN is a directory for the file driver, a path for sqlite and a URL for postgres.
	DSN string `mapstructure:"dsn"`
	// EncryptionKey is a base64 AES-256 key. When set, session data is sealed at rest.
	EncryptionKey string `mapstructure:"encryption_key"`
	// FallbackKeys are retired keys still accepted for decryption.
	FallbackKeys []string `mapstructure:"fallback_keys"`
	// RedactKeys are regular expressions for misc data keys masked in archive records.
	RedactKeys []string `mapstructure:"redact_keys"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type DedupConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type SendConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Interval time.Duration `mapstructure:"interval"`
}

type TwilioConfig struct {
	AccountSID        string `mapstructure:"account_sid"`
	AuthToken         string `mapstructure:"auth_token"`
	From              string `mapstructure:"from"`
	ValidateSignature bool   `mapstructure:"validate_signature"`
}

// Enabled reports whether outbound WhatsApp delivery is configured.
func (t TwilioConfig) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.From != ""
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

var defaults = map[string]any{
	"http.addr":                 ":8080",
	"http.public_url":           "",
	"flows.dir":                 "flows",
	"flows.watch":               false,
	"bot.entry_flow":            "",
	"bot.language":              "en",
	"engine.max_steps":          32,
	"store.driver":              DriverMemory,
	"store.dsn":                 "",
	"store.encryption_key":      "",
	"store.fallback_keys":       []string{},
	"store.redact_keys":         []string{},
	"redis.addr":                "localhost:6379",
	"redis.password":            "",
	"redis.db":                  0,
	"redis.prefix":              "parley:",
	"redis.ttl":                 30 * 24 * time.Hour,
	"dedup.ttl":                 24 * time.Hour,
	"send.attempts":             3,
	"send.interval":             500 * time.Millisecond,
	"twilio.account_sid":        "",
	"twilio.auth_token":         "",
	"twilio.from":               "",
	"twilio.validate_signature": true,
	"log.level":                 "info",
}

// New returns a viper instance with defaults and PARLEY_* environment lookup.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv loads .env files into the process environment. Missing files are ignored
// and variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// BindFlags binds each config key to the named flag when the flag exists in fs.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the config file (if any) and decodes the settings.
// An explicit file must exist; otherwise ./parley.yaml is used when present.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("parley")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings and fills driver-specific defaults.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverMemory, DriverRedis:
	case DriverFile:
		if c.Store.DSN == "" {
			c.Store.DSN = ".parley"
		}
	case DriverSQLite:
		if c.Store.DSN == "" {
			c.Store.DSN = filepath.Join(".parley", "parley.db")
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	if len(c.Store.FallbackKeys) > 0 && c.Store.EncryptionKey == "" {
		errs = append(errs, fmt.Errorf("store.fallback_keys requires store.encryption_key"))
	}
	if c.Engine.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_steps must be positive, got %d", c.Engine.MaxSteps))
	}
	if c.Send.Attempts <= 0 {
		errs = append(errs, fmt.Errorf("send.attempts must be positive, got %d", c.Send.Attempts))
	}
	if c.Flows.Dir == "" {
		errs = append(errs, fmt.Errorf("flows.dir is required"))
	}
	if c.Twilio.From != "" && (c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "") {
		errs = append(errs, fmt.Errorf("twilio.account_sid and twilio.auth_token are required with twilio.from"))
	}
	if c.Twilio.Enabled() && c.Twilio.ValidateSignature && c.HTTP.PublicURL == "" {
		errs = append(errs, fmt.Errorf("http.public_url is required to validate twilio signatures"))
	}
	return errors.Join(errs...)
}
