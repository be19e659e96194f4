package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the backend and the shell.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Client       ClientConfig
	Identity     IdentityConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
	// Output is a zap sink such as "stdout" or "stderr".
	Output string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret                   string
	AccessTokenTTLMinutes       int
	RefreshTokenTTLHours        int
	ConfirmationTokenTTLMinutes int
	BcryptCost                  int
	AutoConfirm                 bool
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom       string
	ConfirmationURL string
}

// ClientConfig configures the shell's connection to the backend.
type ClientConfig struct {
	BaseURL               string
	RequestTimeoutSeconds int
	// StorageKey namespaces the persisted session in Redis.
	StorageKey           string
	AutoRefreshSeconds   int
	RefreshMarginSeconds int
}

// IdentityConfig tunes the session/profile resolver.
type IdentityConfig struct {
	ProfileFetchDelayMillis int
	ProfileFetchTimeoutSec  int
	NotFoundRetries         int
	NotFoundBackoffMillis   int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "localscope-backend"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Auth: AuthConfig{
			JWTSecret:                   getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes:       getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			RefreshTokenTTLHours:        getEnvAsInt("AUTH_REFRESH_TOKEN_TTL_HOURS", 24*30),
			ConfirmationTokenTTLMinutes: getEnvAsInt("AUTH_CONFIRMATION_TOKEN_TTL_MINUTES", 60*24),
			BcryptCost:                  getEnvAsInt("AUTH_BCRYPT_COST", 12),
			AutoConfirm:                 getEnvAsBool("AUTH_AUTO_CONFIRM", false),
		},
		Notification: NotificationConfig{
			EmailFrom:       getEnv("NOTIFY_EMAIL_FROM", "noreply@localscope.app"),
			ConfirmationURL: getEnv("NOTIFY_CONFIRMATION_URL", "http://localhost:8080/auth/v1/verify"),
		},
		Client: ClientConfig{
			BaseURL:               getEnv("LOCALSCOPE_API_URL", "http://127.0.0.1:8080"),
			RequestTimeoutSeconds: getEnvAsInt("LOCALSCOPE_REQUEST_TIMEOUT_SECONDS", 15),
			StorageKey:            getEnv("LOCALSCOPE_STORAGE_KEY", "localscope:session:default"),
			AutoRefreshSeconds:    getEnvAsInt("LOCALSCOPE_AUTO_REFRESH_SECONDS", 30),
			RefreshMarginSeconds:  getEnvAsInt("LOCALSCOPE_REFRESH_MARGIN_SECONDS", 60),
		},
		Identity: IdentityConfig{
			ProfileFetchDelayMillis: getEnvAsInt("IDENTITY_PROFILE_FETCH_DELAY_MS", 500),
			ProfileFetchTimeoutSec:  getEnvAsInt("IDENTITY_PROFILE_FETCH_TIMEOUT_SECONDS", 10),
			NotFoundRetries:         getEnvAsInt("IDENTITY_NOT_FOUND_RETRIES", 0),
			NotFoundBackoffMillis:   getEnvAsInt("IDENTITY_NOT_FOUND_BACKOFF_MS", 250),
		},
	}

	return cfg, nil
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

// AccessTokenTTL returns the access token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime.
func (a AuthConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(a.RefreshTokenTTLHours) * time.Hour
}

// ConfirmationTokenTTL returns how long an email confirmation link stays valid.
func (a AuthConfig) ConfirmationTokenTTL() time.Duration {
	return time.Duration(a.ConfirmationTokenTTLMinutes) * time.Minute
}

// RequestTimeout returns the per-request timeout used by the backend client.
func (c ClientConfig) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// AutoRefreshInterval returns how often the client checks token expiry.
func (c ClientConfig) AutoRefreshInterval() time.Duration {
	return time.Duration(c.AutoRefreshSeconds) * time.Second
}

// RefreshMargin returns how long before expiry a token is refreshed.
func (c ClientConfig) RefreshMargin() time.Duration {
	return time.Duration(c.RefreshMarginSeconds) * time.Second
}

// ProfileFetchDelay returns the debounce applied after sign-in and user updates.
func (i IdentityConfig) ProfileFetchDelay() time.Duration {
	return time.Duration(i.ProfileFetchDelayMillis) * time.Millisecond
}

// ProfileFetchTimeout returns the bound on a single profile fetch; zero disables it.
func (i IdentityConfig) ProfileFetchTimeout() time.Duration {
	if i.ProfileFetchTimeoutSec <= 0 {
		return 0
	}
	return time.Duration(i.ProfileFetchTimeoutSec) * time.Second
}

// NotFoundBackoff returns the first retry delay after a missing profile row.
func (i IdentityConfig) NotFoundBackoff() time.Duration {
	return time.Duration(i.NotFoundBackoffMillis) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
