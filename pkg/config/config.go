package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for all services
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Upload   UploadConfig   `yaml:"upload"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	Cache    CacheConfig    `yaml:"cache"`
	Web      WebConfig      `yaml:"web"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	PublicURL    string        `yaml:"public_url"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	DBName      string `yaml:"dbname"`
	SSLMode     string `yaml:"sslmode"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig holds blob storage configuration
type StorageConfig struct {
	Type          string `yaml:"type"` // local
	LocalPath     string `yaml:"local_path"`
	PublicBaseURL string `yaml:"public_base_url"`
}

// AuthConfig holds settings for verifying tokens issued by the identity platform
type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	JWTIssuer   string `yaml:"jwt_issuer"`
	JWTAudience string `yaml:"jwt_audience"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// UploadConfig holds artifact upload limits
type UploadConfig struct {
	MaxSizeBytes      int64    `yaml:"max_size_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	LicenseAllowList  []string `yaml:"license_allow_list"`
}

// ScannerConfig selects and tunes the content scanner
type ScannerConfig struct {
	Mode             string        `yaml:"mode"` // signature, remote, chain
	Timeout          time.Duration `yaml:"timeout"`
	RemoteURL        string        `yaml:"remote_url"`
	RemoteToken      string        `yaml:"remote_token"`
	RemoteMaxRetries int           `yaml:"remote_max_retries"`
	BlockedHashes    []string      `yaml:"blocked_hashes"`
	MaxEntryRatio    int64         `yaml:"max_entry_ratio"`
}

// CacheConfig holds response cache settings
type CacheConfig struct {
	PackageTTL time.Duration `yaml:"package_ttl"`
	ProfileTTL time.Duration `yaml:"profile_ttl"`
}

// WebConfig holds the location of the single-page application bundle
type WebConfig struct {
	StaticDir string `yaml:"static_dir"`
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 60*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			PublicURL:    getEnv("SERVER_PUBLIC_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnvInt("DB_PORT", 5432),
			User:        getEnv("DB_USER", "jarhub"),
			Password:    getEnv("DB_PASSWORD", "password"),
			DBName:      getEnv("DB_NAME", "jarhub"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Type:          getEnv("STORAGE_TYPE", "local"),
			LocalPath:     getEnv("STORAGE_LOCAL_PATH", "./artifacts"),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", "http://localhost:8080/files"),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", ""),
			JWTIssuer:   getEnv("JWT_ISSUER", ""),
			JWTAudience: getEnv("JWT_AUDIENCE", "authenticated"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Upload: UploadConfig{
			MaxSizeBytes:      getEnvInt64("UPLOAD_MAX_SIZE_BYTES", 100<<20),
			AllowedExtensions: getEnvList("UPLOAD_ALLOWED_EXTENSIONS", []string{".jar"}),
			LicenseAllowList:  getEnvList("UPLOAD_LICENSE_ALLOW_LIST", []string{"MIT", "Apache-2.0", "GPL-3.0-only", "LGPL-3.0-only", "BSD-3-Clause", "MPL-2.0", "Unlicense"}),
		},
		Scanner: ScannerConfig{
			Mode:             getEnv("SCANNER_MODE", "signature"),
			Timeout:          getEnvDuration("SCANNER_TIMEOUT", 30*time.Second),
			RemoteURL:        getEnv("SCANNER_REMOTE_URL", ""),
			RemoteToken:      getEnv("SCANNER_REMOTE_TOKEN", ""),
			RemoteMaxRetries: getEnvInt("SCANNER_REMOTE_MAX_RETRIES", 2),
			BlockedHashes:    getEnvList("SCANNER_BLOCKED_HASHES", nil),
			MaxEntryRatio:    getEnvInt64("SCANNER_MAX_ENTRY_RATIO", 200),
		},
		Cache: CacheConfig{
			PackageTTL: getEnvDuration("CACHE_PACKAGE_TTL", time.Minute),
			ProfileTTL: getEnvDuration("CACHE_PROFILE_TTL", 5*time.Minute),
		},
		Web: WebConfig{
			StaticDir: getEnv("WEB_STATIC_DIR", "./web/dist"),
		},
	}
}

// Validate checks for configuration combinations the service cannot run with
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.Upload.MaxSizeBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_SIZE_BYTES must be positive")
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return fmt.Errorf("UPLOAD_ALLOWED_EXTENSIONS must not be empty")
	}
	if c.Scanner.Timeout <= 0 {
		return fmt.Errorf("SCANNER_TIMEOUT must be positive")
	}
	switch c.Scanner.Mode {
	case "signature":
	case "remote", "chain":
		if c.Scanner.RemoteURL == "" {
			return fmt.Errorf("SCANNER_REMOTE_URL is required for scanner mode %q", c.Scanner.Mode)
		}
	default:
		return fmt.Errorf("unsupported scanner mode: %s", c.Scanner.Mode)
	}
	return nil
}

// DatabaseURL returns a PostgreSQL connection string
func (d *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisAddr returns the Redis address
func (r *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// SetupLogging configures the global zerolog logger
func (l *LoggingConfig) SetupLogging() {
	level, err := zerolog.ParseLevel(strings.ToLower(l.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if l.Format == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList reads a comma separated list, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
