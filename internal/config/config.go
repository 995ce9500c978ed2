package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Refresh token store backends.
const (
	RefreshStorePostgres = "postgres"
	RefreshStoreRedis    = "redis"
	RefreshStoreMemory   = "memory"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `env:"APP_NAME" envDefault:"auth-service"`
	Env                   string `env:"APP_ENV" envDefault:"development"`
	Host                  string `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port                  string `env:"APP_PORT" envDefault:"5501"`
	Version               string `env:"APP_VERSION" envDefault:"dev"`
	RequestTimeoutSeconds int    `env:"HTTP_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `env:"POSTGRES_DSN"`
	MaxConns       int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	MinConns       int32  `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	RunMigrations  bool   `env:"POSTGRES_RUN_MIGRATIONS" envDefault:"true"`
	ConnMaxIdleSec int32  `env:"POSTGRES_CONN_MAX_IDLE_SECONDS" envDefault:"30"`
	ConnMaxLifeSec int32  `env:"POSTGRES_CONN_MAX_LIFE_SECONDS" envDefault:"300"`

	// ConnectAttempts bounds startup pings while the database comes up.
	ConnectAttempts int `env:"POSTGRES_CONNECT_ATTEMPTS" envDefault:"5"`
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis;
// a comma-separated list selects cluster mode.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Encoding    string `env:"LOG_ENCODING" envDefault:"json"`
	Development bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	// PrivateKeyPEM takes precedence over PrivateKeyPath when set.
	PrivateKeyPEM      string        `env:"AUTH_PRIVATE_KEY"`
	PrivateKeyPath     string        `env:"AUTH_PRIVATE_KEY_PATH" envDefault:"certs/private.pem"`
	PublicKeyPath      string        `env:"AUTH_PUBLIC_KEY_PATH"`
	RefreshTokenSecret string        `env:"AUTH_REFRESH_TOKEN_SECRET"`
	Issuer             string        `env:"AUTH_ISSUER" envDefault:"auth-service"`
	AccessTokenTTL     time.Duration `env:"AUTH_ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL    time.Duration `env:"AUTH_REFRESH_TOKEN_TTL" envDefault:"8760h"`
	BcryptCost         int           `env:"AUTH_BCRYPT_COST" envDefault:"12"`
	HashWorkers        int           `env:"AUTH_HASH_WORKERS" envDefault:"0"`
	CookieDomain       string        `env:"AUTH_COOKIE_DOMAIN" envDefault:"localhost"`
	CookieSecure       bool          `env:"AUTH_COOKIE_SECURE" envDefault:"true"`
	RefreshStore       string        `env:"AUTH_REFRESH_STORE" envDefault:"postgres"`
	ReapInterval       time.Duration `env:"AUTH_REFRESH_REAP_INTERVAL" envDefault:"1h"`
	LoginMaxAttempts   int           `env:"AUTH_LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginWindow        time.Duration `env:"AUTH_LOGIN_WINDOW" envDefault:"15m"`
}

// Load reads configuration from environment variables, applying defaults where possible.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Auth.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (a *AuthConfig) validate() error {
	a.RefreshStore = strings.ToLower(strings.TrimSpace(a.RefreshStore))
	switch a.RefreshStore {
	case RefreshStorePostgres, RefreshStoreRedis, RefreshStoreMemory:
	default:
		return fmt.Errorf("invalid AUTH_REFRESH_STORE %q", a.RefreshStore)
	}
	if a.AccessTokenTTL <= 0 {
		return fmt.Errorf("AUTH_ACCESS_TOKEN_TTL must be positive")
	}
	if a.RefreshTokenTTL <= 0 {
		return fmt.Errorf("AUTH_REFRESH_TOKEN_TTL must be positive")
	}
	if strings.TrimSpace(a.Issuer) == "" {
		return fmt.Errorf("AUTH_ISSUER is required")
	}
	if a.LoginMaxAttempts < 0 {
		return fmt.Errorf("AUTH_LOGIN_MAX_ATTEMPTS must not be negative")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}
