// Package config loads guildd settings: built-in defaults, then an optional
// YAML file, then GUILDHALL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "guildhall"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

type Config struct {
	HTTPAddr string `yaml:"httpAddr" envconfig:"HTTP_ADDR"`
	GRPCAddr string `yaml:"grpcAddr" envconfig:"GRPC_ADDR"`
	Admin    string `yaml:"admin"    envconfig:"ADMIN"`
	LogLevel string `yaml:"logLevel" envconfig:"LOG_LEVEL"`
	// MigrationsDir and SeedsDir override the embedded SQL files.
	MigrationsDir string `yaml:"migrationsDir" envconfig:"MIGRATIONS_DIR"`
	SeedsDir      string `yaml:"seedsDir"      envconfig:"SEEDS_DIR"`

	Storage   StorageConfig   `yaml:"storage"   envconfig:"STORAGE"`
	Chain     ChainConfig     `yaml:"chain"     envconfig:"CHAIN"`
	Auth      AuthConfig      `yaml:"auth"      envconfig:"AUTH"`
	RateLimit RateLimitConfig `yaml:"rateLimit" envconfig:"RATE_LIMIT"`
	Tracing   TracingConfig   `yaml:"tracing"   envconfig:"TRACING"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend"     envconfig:"BACKEND"`
	BadgerDir   string `yaml:"badgerDir"   envconfig:"BADGER_DIR"`
	PostgresDSN string `yaml:"postgresDSN" envconfig:"POSTGRES_DSN"`
}

// ChainConfig drives the wall-clock height source. With Manual set the
// height only advances through the admin API.
type ChainConfig struct {
	Genesis       time.Time     `yaml:"genesis"       envconfig:"GENESIS"`
	BlockInterval time.Duration `yaml:"blockInterval" envconfig:"BLOCK_INTERVAL"`
	Manual        bool          `yaml:"manual"        envconfig:"MANUAL"`
}

type AuthConfig struct {
	Secret   string        `yaml:"secret"   envconfig:"SECRET"`
	TokenTTL time.Duration `yaml:"tokenTTL" envconfig:"TOKEN_TTL"`
	// IssueTokens exposes POST /v1/auth/token, which signs a token for any
	// principal. Meant for development setups only.
	IssueTokens bool `yaml:"issueTokens" envconfig:"ISSUE_TOKENS"`
}

type RateLimitConfig struct {
	PerSecond float64 `yaml:"perSecond" envconfig:"PER_SECOND"`
	Burst     int     `yaml:"burst"     envconfig:"BURST"`
}

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"  envconfig:"ENABLED"`
	Endpoint string `yaml:"endpoint" envconfig:"ENDPOINT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPAddr: ":8080",
		GRPCAddr: ":9090",
		LogLevel: "info",
		Storage: StorageConfig{
			Backend:   BackendMemory,
			BadgerDir: "data/badger",
		},
		Chain: ChainConfig{
			Genesis:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			BlockInterval: 10 * time.Minute,
		},
		Auth: AuthConfig{
			TokenTTL: 12 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			PerSecond: 50,
			Burst:     100,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// any) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the settings can start a server.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Storage.Backend) {
	case BackendMemory:
	case BackendBadger:
		if c.Storage.BadgerDir == "" {
			errs = append(errs, errors.New("storage.badgerDir is required for the badger backend"))
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgresDSN is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	for name, addr := range map[string]string{"httpAddr": c.HTTPAddr, "grpcAddr": c.GRPCAddr} {
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if !c.Chain.Manual && c.Chain.BlockInterval <= 0 {
		errs = append(errs, errors.New("chain.blockInterval must be positive"))
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rateLimit values must not be negative"))
	}
	return errors.Join(errs...)
}
