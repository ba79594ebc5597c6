// Package config provides configuration loading and management using koanf.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Default configuration values.
const (
	// DefaultServerPort is the default HTTP server port.
	DefaultServerPort = 8080

	// DefaultMaxRequestSize is the default maximum request body size (1MB).
	DefaultMaxRequestSize = 1 << 20

	// DefaultTraceHeader carries a caller-supplied correlation id.
	DefaultTraceHeader = "X-Trace-Id"

	// DefaultWorkerPoolSize is the number of request workers.
	DefaultWorkerPoolSize = 8

	// DefaultBcryptCost is the cost used to hash seeded passwords.
	DefaultBcryptCost = 10

	DefaultLogFileMaxSizeMB  = 100
	DefaultLogFileMaxBackups = 3
	DefaultLogFileMaxAgeDays = 28
)

// Repository drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// DotEnvFile is read, when present, before environment variables are loaded.
// Variables already set in the process win over the file.
const DotEnvFile = ".env"

// Config is the root configuration structure.
type Config struct {
	App        AppConfig        `koanf:"app"        validate:"required"`
	Server     ServerConfig     `koanf:"server"     validate:"required"`
	Log        LogConfig        `koanf:"log"        validate:"required"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Trace      TraceConfig      `koanf:"trace"      validate:"required"`
	Workers    WorkersConfig    `koanf:"workers"    validate:"required"`
	Repository RepositoryConfig `koanf:"repository" validate:"required"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `koanf:"name"        validate:"required"`
	Version     string `koanf:"version"     validate:"required"`
	Environment string `koanf:"environment" validate:"required,oneof=local dev qa prod test"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"             validate:"required,min=1,max=65535"`
	Host            string        `koanf:"host"             validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"required,min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"required,min=1s"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"required,min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required,min=1s"`
	MaxRequestSize  int64         `koanf:"max_request_size" validate:"required,min=1"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level     string        `koanf:"level"      validate:"required,oneof=trace debug info warn error"`
	Format    string        `koanf:"format"     validate:"required,oneof=json text pretty"`
	AddSource bool          `koanf:"add_source"`
	File      LogFileConfig `koanf:"file"`
}

// LogFileConfig contains rolling log file settings.
type LogFileConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"        validate:"required_if=Enabled true"`
	MaxSizeMB  int    `koanf:"max_size"    validate:"omitempty,min=1,max=1024"`
	MaxBackups int    `koanf:"max_backups" validate:"omitempty,min=0,max=100"`
	MaxAgeDays int    `koanf:"max_age"     validate:"omitempty,min=0,max=365"`
	Compress   bool   `koanf:"compress"`
}

// TelemetryConfig contains OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"      validate:"required_if=Enabled true"`
	ServiceName  string  `koanf:"service_name"  validate:"required_if=Enabled true"`
	SamplingRate float64 `koanf:"sampling_rate" validate:"min=0,max=1"`
}

// TraceConfig controls correlation id handling.
type TraceConfig struct {
	Header string `koanf:"header" validate:"required"`
}

// WorkersConfig sizes the request worker pool.
type WorkersConfig struct {
	Size           int           `koanf:"size"            validate:"required,min=1,max=1024"`
	AcquireTimeout time.Duration `koanf:"acquire_timeout" validate:"required,min=1ms"`
}

// RepositoryConfig selects and tunes the user store.
type RepositoryConfig struct {
	Driver                string        `koanf:"driver"                   validate:"required,oneof=memory redis"`
	FindByIDLatency       time.Duration `koanf:"find_by_id_latency"       validate:"min=0"`
	FindByUsernameLatency time.Duration `koanf:"find_by_username_latency" validate:"min=0"`
	BcryptCost            int           `koanf:"bcrypt_cost"              validate:"required,min=4,max=31"`
	Redis                 RedisConfig   `koanf:"redis"`
}

// RedisConfig contains redis connection settings. Addr is required when
// the repository driver is redis.
type RedisConfig struct {
	Addr     string `koanf:"addr"     validate:"omitempty,hostname_port"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"       validate:"min=0,max=15"`
	Seed     bool   `koanf:"seed"`

	// Breaker guards redis calls. The circuit opens after MaxFailures
	// consecutive transport failures and probes again after Timeout.
	Breaker BreakerConfig `koanf:"breaker"`
}

// BreakerConfig configures the circuit breaker in front of redis.
type BreakerConfig struct {
	MaxFailures   int           `koanf:"max_failures"    validate:"required,min=1"`
	Timeout       time.Duration `koanf:"timeout"         validate:"required,min=1ms"`
	HalfOpenLimit int           `koanf:"half_open_limit" validate:"required,min=1"`
}

// defaults returns the default configuration values.
func defaults() map[string]any {
	return map[string]any{
		"app.name":        "tracecontext-service",
		"app.version":     "dev",
		"app.environment": "local",

		"server.port":             DefaultServerPort,
		"server.host":             "0.0.0.0",
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "10s",
		"server.max_request_size": DefaultMaxRequestSize,

		"log.level":            "info",
		"log.format":           "json",
		"log.add_source":       false,
		"log.file.enabled":     false,
		"log.file.path":        "./logs/app.log",
		"log.file.max_size":    DefaultLogFileMaxSizeMB,
		"log.file.max_backups": DefaultLogFileMaxBackups,
		"log.file.max_age":     DefaultLogFileMaxAgeDays,
		"log.file.compress":    true,

		"telemetry.enabled":       false,
		"telemetry.endpoint":      "",
		"telemetry.service_name":  "tracecontext-service",
		"telemetry.sampling_rate": 1.0,

		"trace.header": DefaultTraceHeader,

		"workers.size":            DefaultWorkerPoolSize,
		"workers.acquire_timeout": "5s",

		"repository.driver":                   DriverMemory,
		"repository.find_by_id_latency":       "10ms",
		"repository.find_by_username_latency": "15ms",
		"repository.bcrypt_cost":              DefaultBcryptCost,
		"repository.redis.addr":               "localhost:6379",
		"repository.redis.password":           "",
		"repository.redis.db":                 0,
		"repository.redis.seed":               true,

		"repository.redis.breaker.max_failures":    5,
		"repository.redis.breaker.timeout":         "30s",
		"repository.redis.breaker.half_open_limit": 1,
	}
}

// Load loads configuration with the following precedence (highest to lowest):
//  1. Environment variables (APP_ prefix, "__" separates nested keys),
//     including those read from .env
//  2. Profile config file (configs/{profile}.yaml)
//  3. Base config file (configs/base.yaml)
//  4. Default values
func Load(profile string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if err := loadFileIfExists(k, "configs/base.yaml"); err != nil {
		return nil, fmt.Errorf("loading base config: %w", err)
	}

	if profile != "" {
		profilePath := fmt.Sprintf("configs/%s.yaml", profile)
		if err := loadFileIfExists(k, profilePath); err != nil {
			return nil, fmt.Errorf("loading profile config %q: %w", profile, err)
		}
	}

	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, fmt.Errorf("loading %s: %w", DotEnvFile, err)
	}

	err := k.Load(env.Provider("APP_", ".", envKey), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// envKey maps APP_WORKERS__ACQUIRE_TIMEOUT to workers.acquire_timeout.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "APP_")), "__", ".")
}

// loadFileIfExists loads a YAML config file if it exists.
// Returns nil if the file doesn't exist, error only for parse/read failures.
func loadFileIfExists(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return k.Load(file.Provider(path), yaml.Parser())
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}
