package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the monitor.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Remote   RemoteConfig
	Slack    SlackConfig
	Engine   EngineConfig
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

// PostgresConfig holds DB connection values for the breach audit store.
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
}

// AuthConfig defines authentication parameters for the HTTP surface.
type AuthConfig struct {
	JWTSecret       string
	TokenTTLMinutes int
	APIKeyHash      string
}

// RemoteConfig points at the remote service-desk API.
type RemoteConfig struct {
	BaseURL        string
	APIToken       string
	TimeoutSeconds int
	MaxRetries     int
}

// SlackConfig configures the Slack notification channel.
type SlackConfig struct {
	Token          string
	DefaultChannel string
}

// EngineConfig tunes sweep scheduling and cache TTLs.
type EngineConfig struct {
	SweepIntervalSeconds    int
	SweepWorkers            int
	PredictionWindowMinutes int
	PolicyTTLSeconds        int
	StatusTTLSeconds        int
	MetricsTTLSeconds       int
	TuningPath              string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "sla-monitor"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("AUTH_JWT_SECRET", "dev-secret"),
			TokenTTLMinutes: getEnvAsInt("AUTH_TOKEN_TTL_MINUTES", 60),
			APIKeyHash:      os.Getenv("AUTH_API_KEY_HASH"),
		},
		Remote: RemoteConfig{
			BaseURL:        getEnv("REMOTE_BASE_URL", "http://127.0.0.1:9090"),
			APIToken:       os.Getenv("REMOTE_API_TOKEN"),
			TimeoutSeconds: getEnvAsInt("REMOTE_TIMEOUT_SECONDS", 10),
			MaxRetries:     getEnvAsInt("REMOTE_MAX_RETRIES", 3),
		},
		Slack: SlackConfig{
			Token:          os.Getenv("SLACK_TOKEN"),
			DefaultChannel: getEnv("SLACK_DEFAULT_CHANNEL", "#sla-alerts"),
		},
		Engine: EngineConfig{
			SweepIntervalSeconds:    getEnvAsInt("SLA_SWEEP_INTERVAL_SECONDS", 60),
			SweepWorkers:            getEnvAsInt("SLA_SWEEP_WORKERS", 4),
			PredictionWindowMinutes: getEnvAsInt("SLA_PREDICTION_WINDOW_MINUTES", 120),
			PolicyTTLSeconds:        getEnvAsInt("SLA_POLICY_TTL_SECONDS", 600),
			StatusTTLSeconds:        getEnvAsInt("SLA_STATUS_TTL_SECONDS", 60),
			MetricsTTLSeconds:       getEnvAsInt("SLA_METRICS_TTL_SECONDS", 600),
			TuningPath:              getEnv("SLA_TUNING_PATH", ""),
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

// SweepInterval returns the sweep cadence as a duration.
func (e EngineConfig) SweepInterval() time.Duration {
	return time.Duration(e.SweepIntervalSeconds) * time.Second
}

// PredictionWindow returns the breach lookahead as a duration.
func (e EngineConfig) PredictionWindow() time.Duration {
	return time.Duration(e.PredictionWindowMinutes) * time.Minute
}

// PolicyTTL returns the policy cache TTL.
func (e EngineConfig) PolicyTTL() time.Duration {
	return time.Duration(e.PolicyTTLSeconds) * time.Second
}

// StatusTTL returns the per-ticket SLA status cache TTL.
func (e EngineConfig) StatusTTL() time.Duration {
	return time.Duration(e.StatusTTLSeconds) * time.Second
}

// MetricsTTL returns the technician metrics cache TTL.
func (e EngineConfig) MetricsTTL() time.Duration {
	return time.Duration(e.MetricsTTLSeconds) * time.Second
}

// RemoteTimeout returns the per-call timeout for remote service calls.
func (r RemoteConfig) RemoteTimeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(r.TimeoutSeconds) * time.Second
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
