package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided
// via the environment or a local .env file.
type AppConfig struct {
	AppPort   string
	JWTSecret string

	// Site identity used in notification subjects and deep links.
	SiteName    string
	SiteBaseURL string

	// Database
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string

	// Redis for the task queue, caching and token blacklist
	RedisAddr     string
	RedisDB       int
	RedisPassword string

	// SMTP for notification delivery
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	SMTPTLS      bool

	// Logging
	LogLevel      string
	LogPath       string
	GinMode       string
	GinLogPath    string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool

	// Moderation tunables
	StaffPreviewWindow time.Duration // staff can still see fresh unapproved posts for this long
	EditWindow         time.Duration // posts stay editable for this long after creation
	PurgeAge           time.Duration // soft-deleted rows older than this get hard-deleted
	PurgeInterval      time.Duration

	// Async workers
	WorkerCount        int
	TaskRetryDelay     time.Duration
	TaskMaxAttempts    int
	RateLimitPerMinute int

	// CORS
	AllowedOrigins []string
}

var cfg AppConfig
var loaded bool

// Load reads configuration once during boot. A .env file is honored when
// present so local development does not need exported variables.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	_ = godotenv.Load()

	cfg = AppConfig{
		AppPort:     getEnv("APP_PORT", "8080"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		SiteName:    getEnv("SITE_NAME", "Parley"),
		SiteBaseURL: getEnv("SITE_BASE_URL", "http://localhost:8080"),

		DatabaseURI: os.Getenv("DATABASE_URI"),
		DBHost:      getEnv("DB_HOST", "127.0.0.1"),
		DBPort:      getEnv("DB_PORT", "3306"),
		DBUser:      getEnv("DB_USER", "parley"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBName:      getEnv("DB_NAME", "parley"),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "Parley"),
		SMTPTLS:      getEnvBool("SMTP_TLS", true),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPath:       getEnv("LOG_PATH", "logs/parley.log"),
		GinMode:       getEnv("GIN_MODE", "release"),
		GinLogPath:    getEnv("GIN_LOG_PATH", "logs/access.log"),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 7),
		LogCompress:   getEnvBool("LOG_COMPRESS", false),

		StaffPreviewWindow: getEnvDuration("STAFF_PREVIEW_WINDOW", 24*time.Hour),
		EditWindow:         getEnvDuration("EDIT_WINDOW", 24*time.Hour),
		PurgeAge:           getEnvDuration("PURGE_AGE", 24*time.Hour),
		PurgeInterval:      getEnvDuration("PURGE_INTERVAL", time.Hour),

		WorkerCount:        getEnvInt("WORKER_COUNT", 4),
		TaskRetryDelay:     getEnvDuration("TASK_RETRY_DELAY", 10*time.Second),
		TaskMaxAttempts:    getEnvInt("TASK_MAX_ATTEMPTS", 5),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
	}

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// SetForTesting overrides the cached configuration. Tests only.
func SetForTesting(c AppConfig) {
	cfg = c
	loaded = true
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
