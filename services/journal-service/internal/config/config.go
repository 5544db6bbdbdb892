package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	// AccessTokenTTL is the lifetime of a session token.
	AccessTokenTTL = 7 * 24 * time.Hour

	// PasswordResetTokenTTL is how long a reset token stays redeemable.
	PasswordResetTokenTTL = time.Hour

	DefaultJWTSecret = "dev-secret-change-me"

	// GRPCHealthDisabled turns the gRPC health listener off when used as
	// GRPC_HEALTH_ADDR.
	GRPCHealthDisabled = "off"
)

const (
	StoreDriverMongo    = "mongo"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

var ErrInvalidConfig = errors.New("invalid config")

// JournalServiceConfig holds every setting the service reads from the environment.
type JournalServiceConfig struct {
	AppEnv    string `env:"APP_ENV"    envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	HTTP      HTTPConfig
	Store     StoreConfig
	Token     TokenConfig
	SMTP      SMTPConfig
	Redis     RedisConfig
	Discovery DiscoveryConfig
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`

	HashConcurrency int `env:"HASH_CONCURRENCY" envDefault:"0"`

	AppPasswordResetURL string `env:"APP_PASSWORD_RESET_URL" envDefault:"http://localhost:5173/#/reset-password"`
}

type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR"             envDefault:":4000"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT"     envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT"    envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins     []string      `env:"CORS_ORIGINS"          envDefault:"*"   envSeparator:","`
	GRPCHealthAddr  string        `env:"GRPC_HEALTH_ADDR"      envDefault:":4001"`
}

// GRPCHealthEnabled reports whether the gRPC health listener should bind.
func (c HTTPConfig) GRPCHealthEnabled() bool {
	addr := strings.TrimSpace(c.GRPCHealthAddr)
	return addr != "" && !strings.EqualFold(addr, GRPCHealthDisabled)
}

type StoreConfig struct {
	Driver         string `env:"STORE_DRIVER"          envDefault:"mongo"`
	MongoURI       string `env:"MONGODB_URI"           envDefault:"mongodb://127.0.0.1:27017"`
	MongoDatabase  string `env:"MONGODB_DATABASE"      envDefault:"ai_health"`
	PostgresDSN    string `env:"POSTGRES_DSN"`
	ConnectRetries uint64 `env:"STORE_CONNECT_RETRIES" envDefault:"5"`
}

type TokenConfig struct {
	Secret   string `env:"JWT_SECRET"   envDefault:"dev-secret-change-me"`
	Issuer   string `env:"JWT_ISSUER"   envDefault:"health-journal-api"`
	Audience string `env:"JWT_AUDIENCE" envDefault:"health-journal-web"`

	// Fixed lifetimes, set by Load rather than read from the environment.
	AccessTokenExpiresIn        time.Duration
	PasswordResetTokenExpiresIn time.Duration
}

type SMTPConfig struct {
	Host        string        `env:"SMTP_HOST"`
	Port        int           `env:"SMTP_PORT"         envDefault:"587"`
	Username    string        `env:"SMTP_USERNAME"`
	Password    string        `env:"SMTP_PASSWORD"`
	From        string        `env:"SMTP_FROM"         envDefault:"no-reply@example.com"`
	SendTimeout time.Duration `env:"SMTP_SEND_TIMEOUT" envDefault:"15s"`
}

// Enabled reports whether reset links are delivered by email rather than logged.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type DiscoveryConfig struct {
	ConsulAddr     string `env:"CONSUL_ADDR"`
	ServiceName    string `env:"SERVICE_NAME"    envDefault:"journal-service"`
	ServiceAddress string `env:"SERVICE_ADDRESS"`
}

type RateLimitConfig struct {
	AuthPerMinute int `env:"AUTH_PER_MINUTE" envDefault:"20"`
}

// Load reads the configuration from the process environment.
func Load() (*JournalServiceConfig, error) {
	return LoadWithOptions(env.Options{})
}

// LoadWithOptions is Load with explicit parser options, letting callers
// supply an environment map instead of the process environment.
func LoadWithOptions(opts env.Options) (*JournalServiceConfig, error) {
	cfg, err := env.ParseAsWithOptions[JournalServiceConfig](opts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Token.AccessTokenExpiresIn = AccessTokenTTL
	cfg.Token.PasswordResetTokenExpiresIn = PasswordResetTokenTTL

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *JournalServiceConfig) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Validate rejects combinations the service cannot start with.
func (c *JournalServiceConfig) Validate() error {
	switch c.Store.Driver {
	case StoreDriverMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("%w: MONGODB_URI is required for the mongo driver", ErrInvalidConfig)
		}
		if c.Store.MongoDatabase == "" {
			return fmt.Errorf("%w: MONGODB_DATABASE is required for the mongo driver", ErrInvalidConfig)
		}
	case StoreDriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("%w: POSTGRES_DSN is required for the postgres driver", ErrInvalidConfig)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("%w: unknown STORE_DRIVER %q", ErrInvalidConfig, c.Store.Driver)
	}

	if c.Token.Issuer == "" || c.Token.Audience == "" {
		return fmt.Errorf("%w: JWT_ISSUER and JWT_AUDIENCE must not be empty", ErrInvalidConfig)
	}
	if c.Token.Secret == "" {
		return fmt.Errorf("%w: JWT_SECRET must not be empty", ErrInvalidConfig)
	}
	if c.IsProduction() && (c.Token.Secret == DefaultJWTSecret || len(c.Token.Secret) < 32) {
		return fmt.Errorf("%w: JWT_SECRET must be at least 32 characters and not the default in production", ErrInvalidConfig)
	}

	if c.AppPasswordResetURL == "" {
		return fmt.Errorf("%w: APP_PASSWORD_RESET_URL must not be empty", ErrInvalidConfig)
	}

	if c.SMTP.Enabled() && c.SMTP.From == "" {
		return fmt.Errorf("%w: SMTP_FROM is required when SMTP_HOST is set", ErrInvalidConfig)
	}

	if c.RateLimit.AuthPerMinute < 0 {
		return fmt.Errorf("%w: RATE_LIMIT_AUTH_PER_MINUTE must not be negative", ErrInvalidConfig)
	}

	return nil
}
