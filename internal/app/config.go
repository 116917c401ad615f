package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the coupon API configuration, loadable from environment
// variables (COUPON_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (COUPON_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Storage     string `default:"postgres" usage:"Coupon storage backend: postgres or memory" validate:"oneof=postgres memory"`
	Cache       CacheConfig
	Lookup      LookupConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// CacheConfig controls the in-process coupon cache.
type CacheConfig struct {
	Enabled         bool          `default:"true" usage:"Cache coupons in process" flag:"cache-enabled"`
	TTL             time.Duration `default:"5m" usage:"Cached coupon lifetime" validate:"gte=0"`
	CleanupInterval time.Duration `default:"10m" usage:"Expired entry sweep interval" validate:"gte=0"`
}

// LookupConfig controls batch lookups.
type LookupConfig struct {
	Concurrency int `default:"8" usage:"Concurrent store reads per batch lookup" validate:"min=1"`
}

// AuthConfig controls API key protection of coupon creation.
type AuthConfig struct {
	Enabled bool   `default:"false" usage:"Require an API key to create coupons" flag:"auth-enabled"`
	Pepper  string `usage:"HMAC pepper for API key hashing (COUPON_AUTH_PEPPER)" flag:"api-key-pepper"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	RPS   float64 `default:"50" usage:"Sustained requests per second per client" validate:"gt=0"`
	Burst int     `default:"100" usage:"Requests a client may burst" validate:"min=1"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, flags and YAML
// config files, then validates it.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "COUPON",
		Files:     []string{"config.yaml", "/etc/coupon/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Storage == StoragePostgres && c.DatabaseURL == "" {
		return errors.New("database URL is required: set COUPON_DATABASE_URL or DATABASE_URL")
	}
	if c.Auth.Enabled {
		if c.Storage != StoragePostgres {
			return errors.New("API key auth requires postgres storage")
		}
		if c.Auth.Pepper == "" {
			return errors.New("API key pepper is required when auth is enabled")
		}
	}
	return nil
}

// applyPlatformDefaults maps the DATABASE_URL and PORT variables set by
// hosting platforms onto the COUPON_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
