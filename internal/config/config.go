package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Slack        SlackConfig
	Tickets      TicketConfig
	Applications ApplicationConfig
	// SettingsFile optionally seeds the panel settings at startup.
	SettingsFile string
}

// AppConfig controls the ops HTTP server.
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

// RedisConfig holds Redis connection values. An empty Addr keeps
// cooldowns in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
	// Format is "json" (default) or "console".
	Format string
}

// AuthConfig defines ops API authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	OperatorName          string
	OperatorPasswordHash  string
}

// SlackConfig holds the Socket Mode credentials.
type SlackConfig struct {
	BotToken string
	AppToken string
	Debug    bool
	// StaffGroup is the user group whose members hold the moderation
	// capabilities. Workspace admins and owners hold every capability.
	StaffGroup string
}

// TicketConfig holds ticket lifecycle timings.
type TicketConfig struct {
	CommandPrefix     string
	InactivityTimeout time.Duration
	RecheckInterval   time.Duration
	TeardownDelay     time.Duration
	TranscriptLimit   int
}

// ApplicationConfig holds application workflow timings.
type ApplicationConfig struct {
	Cooldown    time.Duration
	PendingTTL  time.Duration
	JanitorSpec string
}

// Load reads configuration from environment variables, applying defaults where possible.
// envFile, when set, is loaded instead of the default .env.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

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
			Name:                  getEnv("APP_NAME", "deskbot"),
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
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			OperatorName:          getEnv("AUTH_OPERATOR_NAME", "operator"),
			OperatorPasswordHash:  os.Getenv("AUTH_OPERATOR_PASSWORD_HASH"),
		},
		Slack: SlackConfig{
			BotToken:   os.Getenv("SLACK_BOT_TOKEN"),
			AppToken:   os.Getenv("SLACK_APP_TOKEN"),
			Debug:      getEnvAsBool("SLACK_DEBUG", false),
			StaffGroup: os.Getenv("SLACK_STAFF_GROUP"),
		},
		Tickets: TicketConfig{
			CommandPrefix:     getEnv("COMMAND_PREFIX", "!"),
			InactivityTimeout: getEnvAsDuration("TICKET_INACTIVITY_TIMEOUT", 30*time.Minute),
			RecheckInterval:   getEnvAsDuration("TICKET_RECHECK_INTERVAL", time.Minute),
			TeardownDelay:     getEnvAsDuration("TICKET_TEARDOWN_DELAY", 10*time.Second),
			TranscriptLimit:   getEnvAsInt("TICKET_TRANSCRIPT_LIMIT", 100),
		},
		Applications: ApplicationConfig{
			Cooldown:    getEnvAsDuration("APPLICATION_COOLDOWN", 15*time.Minute),
			PendingTTL:  getEnvAsDuration("APPLICATION_PENDING_TTL", time.Hour),
			JanitorSpec: getEnv("JANITOR_SCHEDULE", "@every 1m"),
		},
		SettingsFile: os.Getenv("SETTINGS_FILE"),
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

// AccessTokenTTL returns the operator token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
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

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
