package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage providers understood by the storage gateway.
const (
	StorageProviderLocal = "local"
	StorageProviderS3    = "s3"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Storage  StorageConfig
	Line     LineConfig
	Worker   WorkerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	CORSOrigins           string
	// MaxUploadFiles and MaxUploadFileBytes bound multipart ticket uploads.
	MaxUploadFiles     int
	MaxUploadFileBytes int64
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
	Addr       string
	Password   string
	DB         int
	ClientName string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	// StaffEmails register with the IT role instead of USER.
	StaffEmails []string
}

// StorageConfig selects and configures the attachment store.
type StorageConfig struct {
	Provider         string
	LocalDir         string
	PublicPath       string
	S3Endpoint       string
	S3Region         string
	S3Bucket         string
	S3AccessKeyID    string
	S3SecretKey      string
	S3UseSSL         bool
	S3ForcePathStyle bool
	S3PublicURL      string
	SignedURLTTL     time.Duration
	CleanupAfterDays int
}

// LineConfig holds LINE Messaging API credentials and linking settings.
type LineConfig struct {
	ChannelSecret      string
	ChannelAccessToken string
	APIEndpoint        string
	HTTPTimeout        time.Duration
	LinkingBaseURL     string
	LinkTokenTTL       time.Duration
	// TicketURLBase prefixes ticket ids in "view details" buttons.
	TicketURLBase string
	EventDedupTTL time.Duration
}

// WorkerConfig controls background loops.
type WorkerConfig struct {
	RetryInterval   time.Duration
	CleanupInterval time.Duration
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
			Name:                  getEnv("APP_NAME", "repairdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("PORT", getEnv("APP_PORT", "8080")),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			CORSOrigins:           getEnv("CORS_ORIGIN", "http://localhost:3000"),
			MaxUploadFiles:        getEnvAsInt("UPLOAD_MAX_FILES", 3),
			MaxUploadFileBytes:    int64(getEnvAsInt("UPLOAD_MAX_FILE_BYTES", 5*1024*1024)),
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
			Addr:       getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:   os.Getenv("REDIS_PASSWORD"),
			DB:         redisDB,
			ClientName: getEnv("REDIS_CLIENT_NAME", "repairdesk"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			StaffEmails:           getEnvAsList("AUTH_STAFF_EMAILS"),
		},
		Storage: StorageConfig{
			Provider:         strings.ToLower(getEnv("STORAGE_PROVIDER", StorageProviderLocal)),
			LocalDir:         getEnv("STORAGE_LOCAL_DIR", "uploads"),
			PublicPath:       getEnv("STORAGE_PUBLIC_PATH", "/uploads"),
			S3Endpoint:       os.Getenv("S3_ENDPOINT"),
			S3Region:         getEnv("S3_REGION", "us-east-1"),
			S3Bucket:         os.Getenv("S3_BUCKET"),
			S3AccessKeyID:    os.Getenv("S3_ACCESS_KEY_ID"),
			S3SecretKey:      os.Getenv("S3_SECRET_ACCESS_KEY"),
			S3UseSSL:         getEnvAsBool("S3_USE_SSL", true),
			S3ForcePathStyle: getEnvAsBool("S3_FORCE_PATH_STYLE", false),
			S3PublicURL:      os.Getenv("S3_PUBLIC_URL"),
			SignedURLTTL:     time.Duration(getEnvAsInt("STORAGE_SIGNED_URL_TTL_SECONDS", 3600)) * time.Second,
			CleanupAfterDays: getEnvAsInt("STORAGE_CLEANUP_AFTER_DAYS", 30),
		},
		Line: LineConfig{
			ChannelSecret:      os.Getenv("LINE_CHANNEL_SECRET"),
			ChannelAccessToken: os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
			APIEndpoint:        os.Getenv("LINE_API_ENDPOINT"),
			HTTPTimeout:        time.Duration(getEnvAsInt("LINE_HTTP_TIMEOUT_SECONDS", 10)) * time.Second,
			LinkingBaseURL:     getEnv("LINE_LINKING_BASE_URL", "http://localhost:3000/line-oa/link"),
			LinkTokenTTL:       time.Duration(getEnvAsInt("LINE_LINK_TOKEN_TTL_MINUTES", 10)) * time.Minute,
			TicketURLBase:      getEnv("LINE_TICKET_URL_BASE", "http://localhost:3000/tickets"),
			EventDedupTTL:      time.Duration(getEnvAsInt("LINE_EVENT_DEDUP_TTL_HOURS", 24)) * time.Hour,
		},
		Worker: WorkerConfig{
			RetryInterval:   time.Duration(getEnvAsInt("WORKER_RETRY_INTERVAL_SECONDS", 300)) * time.Second,
			CleanupInterval: time.Duration(getEnvAsInt("WORKER_CLEANUP_INTERVAL_HOURS", 24)) * time.Hour,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the storage and LINE layers cannot serve.
func (c *Config) Validate() error {
	switch c.Storage.Provider {
	case StorageProviderLocal:
	case StorageProviderS3:
		if c.Storage.S3Bucket == "" || c.Storage.S3Endpoint == "" {
			return errors.New("S3_BUCKET and S3_ENDPOINT are required when STORAGE_PROVIDER=s3")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_PROVIDER %q", c.Storage.Provider)
	}
	if c.App.Env == "production" && c.Line.ChannelSecret == "" {
		return errors.New("LINE_CHANNEL_SECRET is required in production")
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

func getEnvAsList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
