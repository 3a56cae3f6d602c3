package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/camia/aviation/pkg/telemetry"
)

// EnvPrefix is the prefix of environment variables overriding the
// application config. Nested keys are separated by "__", e.g.
// AVIATION__SERVER__ADDR or AVIATION__TELEMETRY__LOGGING__LEVEL.
const EnvPrefix = "AVIATION__"

// AppConfig holds the settings of the aviation CLI and server.
type AppConfig struct {
	Telemetry telemetry.Config `koanf:"telemetry"`
	Server    ServerConfig     `koanf:"server"`
	Store     StoreConfig      `koanf:"store"`
	Engine    EngineConfig     `koanf:"engine"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// StoreConfig configures the scenario store.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `koanf:"path" validate:"required"`
}

// EngineConfig configures how models are built.
type EngineConfig struct {
	// Strict enables unit annotation checks on every annotated transform.
	Strict bool `koanf:"strict"`

	// StarlarkMaxSteps bounds each Starlark module and transform call.
	StarlarkMaxSteps uint64 `koanf:"starlark_max_steps"`

	// SweepConcurrency is the number of sweep points evaluated at once.
	// Zero selects the number of CPUs.
	SweepConcurrency int `koanf:"sweep_concurrency" validate:"gte=0"`

	// Policies are rego files every evaluation is checked against.
	Policies []string `koanf:"policies" validate:"dive,required"`
}

// DefaultAppConfig returns the built-in defaults.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Telemetry: *telemetry.DefaultConfig(),
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Path: "aviation.db",
		},
		Engine: EngineConfig{
			StarlarkMaxSteps: DefaultStarlarkMaxSteps,
		},
	}
}

// LoadAppConfig layers the YAML file at path (optional, may be empty or
// missing) and AVIATION__ environment variables over the defaults.
func LoadAppConfig(path string) (*AppConfig, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := DefaultAppConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps AVIATION__SERVER__ADDR to server.addr.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks the application settings and the embedded telemetry
// config.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	return nil
}
