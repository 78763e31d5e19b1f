package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Addr               string
	Environment        string
	JWTSecret          string
	PayrollAPIURL      string
	PayrollAPITimeout  time.Duration
	LogoFetchTimeout   time.Duration
	CompanyProfileFile string
	PreferencesBackend string
	PreferencesDir     string
	RedisURL           string
	DatabaseURL        string
	PayslipArchiveDir  string
	DataEncryptionKey  string
	MaxBodyBytes       int64
	RateLimitPerMinute int
	MetricsEnabled     bool
}

// Load reads the environment, after applying a .env file if one exists.
// Variables already set in the environment win over the file.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Addr:               getEnv("APP_ADDR", ":8080"),
		Environment:        getEnv("APP_ENV", "development"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		PayrollAPIURL:      getEnv("PAYROLL_API_URL", ""),
		PayrollAPITimeout:  getEnvDuration("PAYROLL_API_TIMEOUT", 15*time.Second),
		LogoFetchTimeout:   getEnvDuration("LOGO_FETCH_TIMEOUT", 5*time.Second),
		CompanyProfileFile: getEnv("COMPANY_PROFILE_FILE", ""),
		PreferencesBackend: strings.ToLower(getEnv("PREFERENCES_BACKEND", BackendFile)),
		PreferencesDir:     getEnv("PREFERENCES_DIR", "storage/preferences"),
		RedisURL:           getEnv("REDIS_URL", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		PayslipArchiveDir:  getEnv("PAYSLIP_ARCHIVE_DIR", ""),
		DataEncryptionKey:  getEnv("DATA_ENCRYPTION_KEY", ""),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if strings.TrimSpace(c.PayrollAPIURL) == "" {
		return fmt.Errorf("PAYROLL_API_URL is required")
	}
	switch c.PreferencesBackend {
	case BackendFile:
		if strings.TrimSpace(c.PreferencesDir) == "" {
			return fmt.Errorf("PREFERENCES_DIR must be set for the file backend")
		}
	case BackendRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL must be set when PREFERENCES_BACKEND is redis")
		}
	case BackendPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL must be set when PREFERENCES_BACKEND is postgres")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("PREFERENCES_BACKEND %q is not supported", c.PreferencesBackend)
	}
	if c.IsProduction() && c.PayslipArchiveDir != "" && strings.TrimSpace(c.DataEncryptionKey) == "" {
		return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production when PAYSLIP_ARCHIVE_DIR is enabled")
	}
	if c.PayrollAPITimeout <= 0 {
		return fmt.Errorf("PAYROLL_API_TIMEOUT must be positive")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	return nil
}
