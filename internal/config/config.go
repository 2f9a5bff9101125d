package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database     DatabaseConfig
	Redis        RedisConfig
	Server       ServerConfig
	Auth         AuthConfig
	TOTP         TOTPConfig
	BruteForce   GuardConfig
	SecondFactor GuardConfig
	RateLimit    RateLimitConfig
	Kafka        KafkaConfig
	Email        EmailConfig
	Cookie       CookieConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectAttempts   int
	ConnectBackoff    time.Duration
	ConnectTimeout    time.Duration
	MigrationsDir     string
	AutoMigrate       bool
}

// RedisConfig selects the shared attempt store. An empty URL keeps attempt
// state in process memory.
type RedisConfig struct {
	URL            string
	RetryAttempts  int
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string // CIDR ranges allowed to set X-Forwarded-For
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	PendingTokenExpiry time.Duration
	CleanupInterval    time.Duration
	MaxTimingJitter    time.Duration
}

type TOTPConfig struct {
	Issuer          string
	Digits          int
	Step            time.Duration
	Tolerance       int
	SecretSize      int
	BackupCodeCount int
	EncryptionKey   []byte // 32 bytes, hex encoded in TOTP_ENCRYPTION_KEY; empty disables sealing
}

// GuardConfig configures one brute-force guard instance
type GuardConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
	AttemptWindow   time.Duration
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	SweepInterval   time.Duration
}

// RateLimitConfig holds per-IP limits for the public auth endpoints
type RateLimitConfig struct {
	LoginRequests     int
	LoginWindow       time.Duration
	TwoFactorRequests int
	TwoFactorWindow   time.Duration
	RefreshRequests   int
	RefreshWindow     time.Duration
}

// KafkaConfig enables the audit event stream when Brokers is non-empty
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// EmailConfig enables SES security notifications when FromAddress is set
type EmailConfig struct {
	Region      string
	FromAddress string
	AppName     string
}

type CookieConfig struct {
	Domain   string
	Secure   bool
	SameSite string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	encryptionKey, err := parseEncryptionKey(getEnv("TOTP_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "scamnemesis"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			ConnectAttempts:   getEnvAsInt("DB_CONNECT_ATTEMPTS", 5),
			ConnectBackoff:    getEnvAsDuration("DB_CONNECT_BACKOFF", 2*time.Second),
			ConnectTimeout:    getEnvAsDuration("DB_CONNECT_TIMEOUT", 30*time.Second),
			MigrationsDir:     getEnv("DB_MIGRATIONS_DIR", "migrations"),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			URL:            getEnv("REDIS_URL", ""),
			RetryAttempts:  getEnvAsInt("REDIS_RETRY_ATTEMPTS", 3),
			RetryInterval:  getEnvAsDuration("REDIS_RETRY_INTERVAL", 5*time.Second),
			ConnectTimeout: getEnvAsDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: getEnvAsSlice("TRUSTED_PROXIES", nil),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 45*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 1*time.Hour),
			RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			PendingTokenExpiry: getEnvAsDuration("PENDING_2FA_TOKEN_EXPIRY", 5*time.Minute),
			CleanupInterval:    getEnvAsDuration("TOKEN_CLEANUP_INTERVAL", 1*time.Hour),
			MaxTimingJitter:    getEnvAsDuration("AUTH_TIMING_JITTER", 50*time.Millisecond),
		},
		TOTP: TOTPConfig{
			Issuer:          getEnv("TOTP_ISSUER", "ScamNemesis"),
			Digits:          getEnvAsInt("TOTP_DIGITS", 6),
			Step:            getEnvAsDuration("TOTP_STEP", 30*time.Second),
			Tolerance:       getEnvAsInt("TOTP_TOLERANCE", 1),
			SecretSize:      getEnvAsInt("TOTP_SECRET_SIZE", 32),
			BackupCodeCount: getEnvAsInt("TOTP_BACKUP_CODE_COUNT", 10),
			EncryptionKey:   encryptionKey,
		},
		BruteForce: GuardConfig{
			MaxAttempts:     getEnvAsInt("BRUTE_FORCE_MAX_ATTEMPTS", 5),
			LockoutDuration: getEnvAsDuration("BRUTE_FORCE_LOCKOUT", 15*time.Minute),
			AttemptWindow:   getEnvAsDuration("BRUTE_FORCE_WINDOW", 1*time.Hour),
			BaseDelay:       getEnvAsDuration("BRUTE_FORCE_BASE_DELAY", 1*time.Second),
			MaxDelay:        getEnvAsDuration("BRUTE_FORCE_MAX_DELAY", 30*time.Second),
			SweepInterval:   getEnvAsDuration("BRUTE_FORCE_SWEEP_INTERVAL", 5*time.Minute),
		},
		SecondFactor: GuardConfig{
			MaxAttempts:     getEnvAsInt("TWO_FACTOR_MAX_ATTEMPTS", 5),
			LockoutDuration: getEnvAsDuration("TWO_FACTOR_LOCKOUT", 15*time.Minute),
			AttemptWindow:   getEnvAsDuration("TWO_FACTOR_WINDOW", 15*time.Minute),
			SweepInterval:   getEnvAsDuration("BRUTE_FORCE_SWEEP_INTERVAL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			LoginRequests:     getEnvAsInt("RATE_LIMIT_LOGIN_REQUESTS", 10),
			LoginWindow:       getEnvAsDuration("RATE_LIMIT_LOGIN_WINDOW", 15*time.Minute),
			TwoFactorRequests: getEnvAsInt("RATE_LIMIT_2FA_REQUESTS", 5),
			TwoFactorWindow:   getEnvAsDuration("RATE_LIMIT_2FA_WINDOW", 5*time.Minute),
			RefreshRequests:   getEnvAsInt("RATE_LIMIT_REFRESH_REQUESTS", 20),
			RefreshWindow:     getEnvAsDuration("RATE_LIMIT_REFRESH_WINDOW", 15*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:    getEnvAsSlice("KAFKA_BROKERS", nil),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "auth.audit"),
		},
		Email: EmailConfig{
			Region:      getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("SES_FROM_ADDRESS", ""),
			AppName:     getEnv("APP_NAME", "ScamNemesis"),
		},
		Cookie: CookieConfig{
			Domain:   getEnv("COOKIE_DOMAIN", ""),
			Secure:   getEnvAsBool("COOKIE_SECURE", env == "production"),
			SameSite: getEnv("COOKIE_SAMESITE", "strict"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if cfg.TOTP.Tolerance < 0 || cfg.TOTP.Tolerance > 1 {
		return nil, fmt.Errorf("TOTP_TOLERANCE must be 0 or 1 (got %d)", cfg.TOTP.Tolerance)
	}

	if cfg.BruteForce.MaxAttempts < 1 || cfg.SecondFactor.MaxAttempts < 1 {
		return nil, fmt.Errorf("brute force max attempts must be at least 1")
	}

	if env == "production" && len(cfg.TOTP.EncryptionKey) == 0 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY is required in production")
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func parseEncryptionKey(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}

	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must decode to 32 bytes (got %d)", len(key))
	}

	return key, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Enabled reports whether a shared Redis store is configured
func (c *RedisConfig) Enabled() bool {
	return c.URL != ""
}

// Enabled reports whether audit events are streamed to Kafka
func (c *KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0 && c.AuditTopic != ""
}

// Enabled reports whether SES notifications are configured
func (c *EmailConfig) Enabled() bool {
	return c.FromAddress != ""
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsSlice(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsSlice("ALLOWED_ORIGINS", []string{})
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
