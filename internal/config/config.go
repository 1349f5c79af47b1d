// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	Search    SearchConfig
	Sentry    SentryConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
	// DataPath is where the SQLite database, search index and generated key live.
	DataPath string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
	CORSOrigins  []string      // Allowed browser origins (default: *)
	TrustProxy   bool          // Take the client IP from proxy headers (default: false)
}

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects and configures the relational store.
type DatabaseConfig struct {
	Driver   string // sqlite or postgres (default: sqlite)
	Path     string // SQLite file (default: {data}/quill.db)
	URL      string // Postgres connection URL
	MaxConns int32  // Postgres pool size (default: 10)
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// TokenFormat is jwt or paseto (default: jwt)
	TokenFormat string
	// Secret overrides the generated key when set (hex or at least 32 characters)
	Secret string
	// KeyPath stores the generated key (default: {data}/auth.key)
	KeyPath  string
	TokenTTL time.Duration // default: 24h
	// Hasher is bcrypt or argon2id (default: bcrypt)
	Hasher     string
	BcryptCost int // default: 10
	// AllowPasswordless lets accounts created without a password log in by email alone.
	AllowPasswordless bool
}

// Rate limit backends.
const (
	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

// RateLimitConfig holds the per-call budget and the login throttle.
type RateLimitConfig struct {
	RequestsPerMinute int    // default: 60
	Backend           string // memory or redis (default: memory)
	RedisURL          string
	LoginRPS          float64 // default: 0.2 (one attempt per 5s)
	LoginBurst        int     // default: 5
}

// StorageConfig holds S3-compatible object storage settings for uploads.
// Uploads are disabled when Bucket is empty.
type StorageConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PublicURL string
	PathStyle bool
	URLExpiry time.Duration // default: 15m
}

// SearchConfig holds full-text search settings.
type SearchConfig struct {
	Enabled   bool   // default: true
	IndexPath string // default: {data}/search; empty keeps the index in memory
}

// SentryConfig holds error reporting settings.
type SentryConfig struct {
	DSN string
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	// Define command-line flags.
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Directory for the database, search index and keys")

	// Server flags
	serverPort := flag.String("port", "", "Server port (default: 8080)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := flag.String("cors-origins", "", "Comma separated allowed origins (default: *)")
	trustProxy := flag.String("trust-proxy", "", "Read client IPs from X-Forwarded-For/X-Real-IP (default: false)")

	// Database flags
	dbDriver := flag.String("db-driver", "", "Database driver: sqlite or postgres (default: sqlite)")
	dbPath := flag.String("db-path", "", "SQLite database file")
	dbURL := flag.String("database-url", "", "Postgres connection URL")

	// Auth flags
	tokenFormat := flag.String("token-format", "", "Token format: jwt or paseto (default: jwt)")
	tokenTTL := flag.String("token-ttl", "", "Token lifetime (default: 24h)")
	hasher := flag.String("password-hasher", "", "Password hasher: bcrypt or argon2id (default: bcrypt)")
	allowPasswordless := flag.String("allow-passwordless", "", "Allow passwordless accounts to log in (default: true)")

	// Rate limit flags
	rpm := flag.String("rate-limit", "", "Requests per minute per caller (default: 60)")
	rateBackend := flag.String("rate-limit-backend", "", "Rate limit backend: memory or redis (default: memory)")
	redisURL := flag.String("redis-url", "", "Redis URL for the redis rate limit backend")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	// Parse flags but don't exit on error - we want to handle it gracefully.
	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	// Build config with proper precedence.
	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
			DataPath:    getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},

		Server: ServerConfig{
			Port:        getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			CORSOrigins: splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "*")),
			TrustProxy:  getBoolConfigValue(*trustProxy, "TRUST_PROXY", false),
		},

		Database: DatabaseConfig{
			Driver:   strings.ToLower(getConfigValue(*dbDriver, "DB_DRIVER", DriverSQLite)),
			Path:     getConfigValue(*dbPath, "DB_PATH", ""),
			URL:      getConfigValue(*dbURL, "DATABASE_URL", ""),
			MaxConns: int32(getIntConfigValue("", "DB_MAX_CONNS", 10)), //nolint:gosec // Small operator supplied value
		},

		Auth: AuthConfig{
			TokenFormat:       strings.ToLower(getConfigValue(*tokenFormat, "TOKEN_FORMAT", "jwt")),
			Secret:            getConfigValue("", "AUTH_SECRET", ""),
			KeyPath:           getConfigValue("", "AUTH_KEY_PATH", ""),
			Hasher:            strings.ToLower(getConfigValue(*hasher, "PASSWORD_HASHER", "bcrypt")),
			BcryptCost:        getIntConfigValue("", "BCRYPT_COST", 10),
			AllowPasswordless: getBoolConfigValue(*allowPasswordless, "ALLOW_PASSWORDLESS", true),
		},

		RateLimit: RateLimitConfig{
			RequestsPerMinute: getIntConfigValue(*rpm, "RATE_LIMIT_PER_MINUTE", 60),
			Backend:           strings.ToLower(getConfigValue(*rateBackend, "RATE_LIMIT_BACKEND", RateLimitMemory)),
			RedisURL:          getConfigValue(*redisURL, "REDIS_URL", ""),
			LoginRPS:          getFloatConfigValue("LOGIN_RATE_PER_SECOND", 0.2),
			LoginBurst:        getIntConfigValue("", "LOGIN_BURST", 5),
		},

		Storage: StorageConfig{
			Bucket:    getConfigValue("", "S3_BUCKET", ""),
			Region:    getConfigValue("", "S3_REGION", "us-east-1"),
			Endpoint:  getConfigValue("", "S3_ENDPOINT", ""),
			AccessKey: getConfigValue("", "S3_ACCESS_KEY", ""),
			SecretKey: getConfigValue("", "S3_SECRET_KEY", ""),
			PublicURL: getConfigValue("", "S3_PUBLIC_URL", ""),
			PathStyle: getBoolConfigValue("", "S3_PATH_STYLE", false),
		},

		Search: SearchConfig{
			Enabled:   getBoolConfigValue("", "SEARCH_ENABLED", true),
			IndexPath: getConfigValue("", "SEARCH_INDEX_PATH", ""),
		},

		Sentry: SentryConfig{
			DSN: getConfigValue("", "SENTRY_DSN", ""),
		},
	}

	var err error

	// Parse durations.
	if cfg.Auth.TokenTTL, err = parseDuration(*tokenTTL, "TOKEN_TTL", "24h"); err != nil {
		return nil, fmt.Errorf("invalid token ttl: %w", err)
	}
	if cfg.Server.ReadTimeout, err = parseDuration(*readTimeout, "SERVER_READ_TIMEOUT", "15s"); err != nil {
		return nil, fmt.Errorf("invalid read timeout: %w", err)
	}
	if cfg.Server.WriteTimeout, err = parseDuration(*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"); err != nil {
		return nil, fmt.Errorf("invalid write timeout: %w", err)
	}
	if cfg.Server.IdleTimeout, err = parseDuration(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"); err != nil {
		return nil, fmt.Errorf("invalid idle timeout: %w", err)
	}
	if cfg.Storage.URLExpiry, err = parseDuration("", "S3_URL_EXPIRY", "15m"); err != nil {
		return nil, fmt.Errorf("invalid upload url expiry: %w", err)
	}

	// Expand data paths.
	if err := cfg.expandDataPaths(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// IsProduction reports whether the server runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("sqlite database path cannot be empty after expansion")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be sqlite or postgres)", c.Database.Driver)
	}

	switch c.Auth.TokenFormat {
	case "jwt", "paseto":
	default:
		return fmt.Errorf("invalid token format: %s (must be jwt or paseto)", c.Auth.TokenFormat)
	}

	switch c.Auth.Hasher {
	case "bcrypt", "argon2id":
	default:
		return fmt.Errorf("invalid password hasher: %s (must be bcrypt or argon2id)", c.Auth.Hasher)
	}

	if c.Auth.Secret == "" && c.Auth.KeyPath == "" {
		return errors.New("either AUTH_SECRET or an auth key path is required")
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d", c.RateLimit.RequestsPerMinute)
	}

	switch c.RateLimit.Backend {
	case RateLimitMemory:
	case RateLimitRedis:
		if c.RateLimit.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis rate limit backend")
		}
	default:
		return fmt.Errorf("invalid rate limit backend: %s (must be memory or redis)", c.RateLimit.Backend)
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPaths resolves the data directory (default ~/Quill) and the
// paths derived from it.
func (c *Config) expandDataPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	if c.App.DataPath, err = expandPath(c.App.DataPath, filepath.Join(homeDir, "Quill")); err != nil {
		return err
	}
	if c.Database.Path, err = expandPath(c.Database.Path, filepath.Join(c.App.DataPath, "quill.db")); err != nil {
		return err
	}
	if c.Auth.KeyPath, err = expandPath(c.Auth.KeyPath, filepath.Join(c.App.DataPath, "auth.key")); err != nil {
		return err
	}
	if c.Search.IndexPath, err = expandPath(c.Search.IndexPath, filepath.Join(c.App.DataPath, "search")); err != nil {
		return err
	}
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float from the env var, or default.
func getFloatConfigValue(envKey string, defaultValue float64) float64 {
	strValue := getConfigValue("", envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result float64
	if _, err := fmt.Sscanf(strValue, "%g", &result); err != nil {
		return defaultValue
	}
	return result
}

func parseDuration(flagValue, envKey, defaultValue string) (time.Duration, error) {
	s := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", envKey, s, err)
	}
	return d, nil
}

// splitList splits a comma separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
