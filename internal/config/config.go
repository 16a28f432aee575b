// Package config loads qrtrack configuration from defaults, an optional YAML file and
// QRTRACK_* environment variables, in that order of precedence (last wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar overrides the config file location.
const PathEnvVar = "CONFIG_PATH"

const envPrefix = "QRTRACK_"

// DefaultPaths are searched in order when no path is given.
var DefaultPaths = []string{
	"config.yaml",
	filepath.Join("config", "config.yaml"),
}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Images    ImagesConfig    `koanf:"images"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Logging   LoggingConfig   `koanf:"logging"`
	Flow      FlowConfig      `koanf:"flow"`
	Reconcile ReconcileConfig `koanf:"reconcile"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Mode            string        `koanf:"mode" validate:"oneof=debug release test"`
	PublicBaseURL   string        `koanf:"public_base_url" validate:"required,url"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	// Driver is postgres, or memory for local runs without a database.
	Driver   string `koanf:"driver" validate:"oneof=postgres memory"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"sslmode"`
	LogLevel string `koanf:"log_level" validate:"oneof=silent error warn info"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Addr     string        `koanf:"addr" validate:"required_if=Enabled true"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	FreshTTL time.Duration `koanf:"fresh_ttl"`
	StaleTTL time.Duration `koanf:"stale_ttl"`
	Beta     float64       `koanf:"beta" validate:"gte=0,lte=1"`
}

type ImagesConfig struct {
	Path      string `koanf:"path"`
	InMemory  bool   `koanf:"in_memory"`
	Namespace string `koanf:"namespace" validate:"required,excludesall=/ :*"`
	Size      int    `koanf:"size" validate:"min=64,max=2048"`
}

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
	Issuer    string `koanf:"issuer"`
}

type RateLimitConfig struct {
	Enabled bool `koanf:"enabled"`
	// Rate uses the limiter format, e.g. "120-M".
	Rate string `koanf:"rate"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

type FlowConfig struct {
	Countdown int `koanf:"countdown" validate:"min=0,max=60"`
}

type ReconcileConfig struct {
	// Interval of the in-process reconcile loop; 0 disables it.
	Interval time.Duration `koanf:"interval"`
	// SettleWindow skips codes scanned more recently than this.
	SettleWindow time.Duration `koanf:"settle_window" validate:"gte=0"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Mode:            "release",
			PublicBaseURL:   "http://localhost:8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "password",
			Name:     "qrtrack",
			SSLMode:  "disable",
			LogLevel: "warn",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			FreshTTL: 5 * time.Minute,
			StaleTTL: 10 * time.Minute,
			Beta:     0.1,
		},
		Images: ImagesConfig{
			Path:      "data/images",
			Namespace: "qr-images",
			Size:      256,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Rate:    "120-M",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Flow: FlowConfig{
			Countdown: 5,
		},
		Reconcile: ReconcileConfig{
			SettleWindow: time.Minute,
		},
	}
}

// Load builds the configuration. An empty path searches PathEnvVar then DefaultPaths;
// running without any file is fine.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// QRTRACK_DATABASE__HOST -> database.host
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// ReservedNamespaces are first path segments already routed by the server.
var ReservedNamespaces = []string{"api", "verify", "scan", "scan-verify", "healthz", "metrics"}

var validate = validator.New()

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Server.Mode == "release" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in release mode")
	}
	if slices.Contains(ReservedNamespaces, c.Images.Namespace) {
		return fmt.Errorf("images.namespace %q collides with a server route", c.Images.Namespace)
	}
	if !c.Images.InMemory && c.Images.Path == "" {
		return fmt.Errorf("images.path is required unless images.in_memory is set")
	}
	return nil
}
