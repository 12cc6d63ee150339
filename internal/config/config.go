// Package config loads the service configuration from defaults, an optional
// config file, an optional .env file and GMATH_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/oscarlaird/gmath/internal/db"
	"github.com/oscarlaird/gmath/internal/judge"
	"github.com/oscarlaird/gmath/internal/llm/configuration"
	"github.com/oscarlaird/gmath/internal/verdictcache"
)

// EnvPrefix namespaces environment overrides: server.addr is GMATH_SERVER_ADDR.
const EnvPrefix = "GMATH"

var errJudgeProvider = errors.New("judge provider has no provider configuration")

// Config is the full service configuration. The LLM client settings are
// squashed so providers, retry, circuit_breaker and rate_limit sit at the top
// level.
type Config struct {
	configuration.Config `mapstructure:",squash"`

	Server        ServerConfig        `mapstructure:"server" json:"server"`
	Judge         judge.Config        `mapstructure:"judge" json:"judge"`
	Cache         verdictcache.Config `mapstructure:"cache" json:"cache"`
	Database      DatabaseConfig      `mapstructure:"database" json:"database"`
	Submissions   SubmissionsConfig   `mapstructure:"submissions" json:"submissions"`
	Observability ObservabilityConfig `mapstructure:"observability" json:"observability"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" json:"addr" validate:"required"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" json:"request_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `mapstructure:"cors_origins" json:"cors_origins"`
}

// DatabaseConfig selects the SQL backend. Driver none keeps acceptable
// answers in memory and disables submissions.
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver" json:"driver" validate:"oneof=sqlite postgres none"`
	DSN         string `mapstructure:"dsn" json:"-"`
	PreloadFile string `mapstructure:"preload_file" json:"preload_file"`
}

// SubmissionsConfig toggles the graded-answer log.
type SubmissionsConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
}

// ObservabilityConfig sets the slog level and handler.
type ObservabilityConfig struct {
	LogLevel  string `mapstructure:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" json:"log_format" validate:"oneof=json text"`
}

// Defaults.
const (
	DefaultAddr            = ":3333"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultCacheEntries    = 10000
	DefaultCacheTTL        = 24 * time.Hour
	DefaultRedisAddr       = "localhost:6379"
)

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            DefaultAddr,
			RequestTimeout:  DefaultRequestTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			CORSOrigins:     []string{"http://localhost:3004"},
		},
		Judge:  judge.DefaultConfig(),
		Config: *configuration.DefaultConfig(),
		Cache: verdictcache.Config{
			Backend:    verdictcache.BackendMemory,
			MaxEntries: DefaultCacheEntries,
			TTL:        DefaultCacheTTL,
			RedisAddr:  DefaultRedisAddr,
		},
		Database:      DatabaseConfig{Driver: string(db.DriverSQLite)},
		Submissions:   SubmissionsConfig{Enabled: true},
		Observability: ObservabilityConfig{LogLevel: "info", LogFormat: "json"},
	}
}

// LoadOptions point Load at optional files.
type LoadOptions struct {
	// ConfigFile is a YAML, JSON or TOML file. Empty means none.
	ConfigFile string
	// EnvFile is loaded into the process environment before reading
	// variables. Empty means ".env" if it exists.
	EnvFile string
}

// Load resolves the configuration. Precedence, highest first: environment,
// config file, defaults.
func Load(opts LoadOptions) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

// Validate checks struct constraints and that the judge's provider is
// configured.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, ok := c.Providers[c.Judge.Provider]; !ok {
		return fmt.Errorf("invalid config: %w: %q", errJudgeProvider, c.Judge.Provider)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)

	v.SetDefault("judge.provider", d.Judge.Provider)
	v.SetDefault("judge.model", d.Judge.Model)
	v.SetDefault("judge.max_tokens", d.Judge.MaxTokens)
	v.SetDefault("judge.temperature", d.Judge.Temperature)
	v.SetDefault("judge.timeout", d.Judge.Timeout)
	v.SetDefault("judge.fallback", d.Judge.Fallback)

	v.SetDefault("http_timeout", d.HTTPTimeout)
	v.SetDefault("redact_prompts", d.RedactPrompts)
	for name, p := range d.Providers {
		prefix := "providers." + name + "."
		v.SetDefault(prefix+"endpoint", p.Endpoint)
		v.SetDefault(prefix+"api_key", p.APIKey)
		v.SetDefault(prefix+"api_key_env", p.APIKeyEnv)
		v.SetDefault(prefix+"timeout", p.Timeout)
	}

	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.max_elapsed_time", d.Retry.MaxElapsedTime)
	v.SetDefault("retry.initial_interval", d.Retry.InitialInterval)
	v.SetDefault("retry.max_interval", d.Retry.MaxInterval)
	v.SetDefault("retry.multiplier", d.Retry.Multiplier)
	v.SetDefault("retry.use_jitter", d.Retry.UseJitter)

	v.SetDefault("circuit_breaker.enabled", d.CircuitBreaker.Enabled)
	v.SetDefault("circuit_breaker.failure_threshold", d.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.success_threshold", d.CircuitBreaker.SuccessThreshold)
	v.SetDefault("circuit_breaker.open_timeout", d.CircuitBreaker.OpenTimeout)
	v.SetDefault("circuit_breaker.half_open_probes", d.CircuitBreaker.HalfOpenProbes)
	v.SetDefault("circuit_breaker.max_breakers", d.CircuitBreaker.MaxBreakers)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.tokens_per_second", d.RateLimit.TokensPerSecond)
	v.SetDefault("rate_limit.burst_size", d.RateLimit.BurstSize)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", d.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", d.Cache.RedisDB)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.preload_file", d.Database.PreloadFile)

	v.SetDefault("submissions.enabled", d.Submissions.Enabled)

	v.SetDefault("observability.log_level", d.Observability.LogLevel)
	v.SetDefault("observability.log_format", d.Observability.LogFormat)
}
