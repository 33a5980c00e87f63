package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SHELFWISE_"

// Config is the process configuration.
type Config struct {
	Database string         `yaml:"database" json:"database"`
	LogLevel string         `yaml:"log_level" json:"log_level"`
	Upstream UpstreamConfig `yaml:"upstream" json:"upstream"`
	Sync     SyncConfig     `yaml:"sync" json:"sync"`
	Server   ServerConfig   `yaml:"server" json:"server"`
}

// UpstreamConfig configures the commerce API client.
type UpstreamConfig struct {
	APIVersion        string        `yaml:"api_version" json:"api_version"`
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	PageSize          int           `yaml:"page_size" json:"page_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
}

// SyncConfig configures the sync engine.
type SyncConfig struct {
	LookbackDays     int           `yaml:"lookback_days" json:"lookback_days"`
	LookbackMinDays  int           `yaml:"lookback_min_days" json:"lookback_min_days"`
	LookbackMaxDays  int           `yaml:"lookback_max_days" json:"lookback_max_days"`
	PageCap          int           `yaml:"page_cap" json:"page_cap"`
	MaxDuration      time.Duration `yaml:"max_duration" json:"max_duration"`
	RetryAttempts    int           `yaml:"retry_attempts" json:"retry_attempts"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay" json:"retry_base_delay"`
	PageTransactions bool          `yaml:"page_transactions" json:"page_transactions"`
}

// ServerConfig configures the HTTP trigger surface.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: "shelfwise.db",
		LogLevel: "info",
		Upstream: UpstreamConfig{
			APIVersion:        "2024-07",
			PageSize:          250,
			RequestsPerSecond: 2,
			Timeout:           30 * time.Second,
		},
		Sync: SyncConfig{
			LookbackDays:    120,
			LookbackMinDays: 30,
			LookbackMaxDays: 365,
			PageCap:         50,
			MaxDuration:     5 * time.Minute,
			RetryAttempts:   3,
			RetryBaseDelay:  500 * time.Millisecond,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}

// LoadOptions select the configuration sources.
type LoadOptions struct {
	// Path is an optional YAML file. "" skips it; a named file must exist.
	Path string

	// EnvFile is an optional dotenv file. A missing file is ignored.
	EnvFile string

	// Getenv reads the process environment. Default: os.Getenv. Process
	// variables take precedence over EnvFile entries.
	Getenv func(string) string
}

// Load builds a Config from defaults, then the YAML file, then the
// environment, and validates the result.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	if opts.Path != "" {
		data, err := os.ReadFile(opts.Path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", opts.Path, err)
		}
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if opts.EnvFile != "" {
		dotenv, err := godotenv.Read(opts.EnvFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read env file %s: %w", opts.EnvFile, err)
		}
		base := getenv
		getenv = func(key string) string {
			if v := base(key); v != "" {
				return v
			}
			return dotenv[key]
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against the embedded CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

type envVar struct {
	name string
	set  func(cfg *Config, raw string) error
}

var envVars = []envVar{
	{"DATABASE", func(c *Config, v string) error { c.Database = v; return nil }},
	{"LOG_LEVEL", func(c *Config, v string) error { c.LogLevel = strings.ToLower(v); return nil }},
	{"API_VERSION", func(c *Config, v string) error { c.Upstream.APIVersion = v; return nil }},
	{"BASE_URL", func(c *Config, v string) error { c.Upstream.BaseURL = v; return nil }},
	{"PAGE_SIZE", intVar(func(c *Config) *int { return &c.Upstream.PageSize })},
	{"REQUESTS_PER_SECOND", func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.Upstream.RequestsPerSecond = f
		return nil
	}},
	{"TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Upstream.Timeout })},
	{"LOOKBACK_DAYS", intVar(func(c *Config) *int { return &c.Sync.LookbackDays })},
	{"PAGE_CAP", intVar(func(c *Config) *int { return &c.Sync.PageCap })},
	{"MAX_DURATION", durationVar(func(c *Config) *time.Duration { return &c.Sync.MaxDuration })},
	{"RETRY_ATTEMPTS", intVar(func(c *Config) *int { return &c.Sync.RetryAttempts })},
	{"PAGE_TRANSACTIONS", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Sync.PageTransactions = b
		return nil
	}},
	{"SERVER_ADDR", func(c *Config, v string) error { c.Server.Addr = v; return nil }},
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	for _, ev := range envVars {
		raw := strings.TrimSpace(getenv(EnvPrefix + ev.name))
		if raw == "" {
			continue
		}
		if err := ev.set(cfg, raw); err != nil {
			return fmt.Errorf("env %s%s: %w", EnvPrefix, ev.name, err)
		}
	}
	return nil
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}
