package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	PostsDatabase DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	AWS           AWSConfig
	Search        SearchConfig
	Chat          ChatConfig
	RateLimit     RateLimitConfig
	Worker        WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// JWTConfig holds settings for validating identity provider tokens.
type JWTConfig struct {
	Secret string
	Issuer string
	Expire time.Duration
}

// AWSConfig holds AWS credentials and S3 bucket names. Endpoint targets an
// S3-compatible store such as MinIO.
type AWSConfig struct {
	Enabled              bool
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	Endpoint             string
	AttachmentsBucket    string
	ExportsBucket        string
	PresignExpireMinutes int
}

// SearchConfig holds Meilisearch settings.
type SearchConfig struct {
	Enabled        bool
	MeiliURL       string
	MeiliAPIKey    string
	HealthInterval time.Duration
}

// ChatConfig holds the chat model limits.
type ChatConfig struct {
	StoreDriver        string // memory or postgres
	DefaultPageSize    int
	MaxPageSize        int
	MaxAttachmentBytes int64
	ExportMaxMessages  int
	ExportStatusTTL    time.Duration
	PostsTable         string
	PostLookupTimeout  time.Duration
	PostCacheTTL       time.Duration
	PostMissTTL        time.Duration
}

// RateLimitConfig holds the per-caller write limit.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
	IdleTTL time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	PollTimeout time.Duration
}

// DSN returns the PostgreSQL connection string.
// If URL is set it is used as-is; otherwise it is built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 60),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "chat"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		PostsDatabase: DatabaseConfig{
			URL:      getEnv("POSTS_DATABASE_URL", ""),
			MaxConns: int32(getEnvInt("POSTS_DB_MAX_CONNS", 4)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", true),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-me-in-production"),
			Issuer: getEnv("JWT_ISSUER", ""),
			Expire: getEnvDuration("JWT_EXPIRE", 24*time.Hour),
		},
		AWS: AWSConfig{
			Enabled:              getEnvBool("AWS_S3_ENABLED", true),
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:             getEnv("AWS_S3_ENDPOINT", ""),
			AttachmentsBucket:    getEnv("AWS_S3_ATTACHMENTS_BUCKET", "chat-attachments"),
			ExportsBucket:        getEnv("AWS_S3_EXPORTS_BUCKET", "chat-exports"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Search: SearchConfig{
			Enabled:        getEnvBool("SEARCH_ENABLED", false),
			MeiliURL:       getEnv("MEILI_URL", "http://localhost:7700"),
			MeiliAPIKey:    getEnv("MEILI_API_KEY", ""),
			HealthInterval: getEnvDuration("MEILI_HEALTH_INTERVAL", 15*time.Second),
		},
		Chat: ChatConfig{
			StoreDriver:        strings.ToLower(getEnv("CHAT_STORE", "postgres")),
			DefaultPageSize:    getEnvInt("CHAT_DEFAULT_PAGE_SIZE", 50),
			MaxPageSize:        getEnvInt("CHAT_MAX_PAGE_SIZE", 200),
			MaxAttachmentBytes: int64(getEnvInt("CHAT_MAX_ATTACHMENT_MB", 25)) << 20,
			ExportMaxMessages:  getEnvInt("CHAT_EXPORT_MAX_MESSAGES", 10000),
			ExportStatusTTL:    getEnvDuration("CHAT_EXPORT_STATUS_TTL", 24*time.Hour),
			PostsTable:         getEnv("CHAT_POSTS_TABLE", "posts"),
			PostLookupTimeout:  getEnvDuration("CHAT_POST_LOOKUP_TIMEOUT", 500*time.Millisecond),
			PostCacheTTL:       getEnvDuration("CHAT_POST_CACHE_TTL", 5*time.Minute),
			PostMissTTL:        getEnvDuration("CHAT_POST_MISS_TTL", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnvBool("RATE_LIMIT_ENABLED", true),
			RPS:     getEnvFloat("RATE_LIMIT_RPS", 5),
			Burst:   getEnvInt("RATE_LIMIT_BURST", 20),
			IdleTTL: getEnvDuration("RATE_LIMIT_IDLE_TTL", 10*time.Minute),
		},
		Worker: WorkerConfig{
			PollTimeout: getEnvDuration("WORKER_POLL_TIMEOUT", 5*time.Second),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Chat.StoreDriver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("CHAT_STORE must be memory or postgres, got %q", c.Chat.StoreDriver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Chat.DefaultPageSize > c.Chat.MaxPageSize {
		return fmt.Errorf("CHAT_DEFAULT_PAGE_SIZE (%d) exceeds CHAT_MAX_PAGE_SIZE (%d)", c.Chat.DefaultPageSize, c.Chat.MaxPageSize)
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("30s") or bare seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
