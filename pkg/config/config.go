package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
	AutoMigrate     bool
}

// GetDSN returns the PostgreSQL connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Env             string
	ShutdownTimeout time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string
	ExpirationHours int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Prefix string
}

// IdentityConfig holds identity provider configuration
type IdentityConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RetryCount    int
	WebhookSecret string
}

// RedisConfig holds the tenant resolution cache configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// ProvisioningConfig holds provisioning saga configuration
type ProvisioningConfig struct {
	// StrictCrossLink turns a failed user metadata update into a rollback
	StrictCrossLink bool
	RateLimit       float64 // requests per second per client IP
	RateBurst       int
}

// NotifyConfig holds notification sender configuration
type NotifyConfig struct {
	RelayURL string // empty: log sender
	Timeout  time.Duration
}

// TenancyConfig holds tenant resolution configuration
type TenancyConfig struct {
	BaseDomain string
}

// Config holds all configuration
type Config struct {
	ServiceName  string
	DB           DBConfig
	Server       ServerConfig
	JWT          JWTConfig
	Log          LogConfig
	Metrics      MetricsConfig
	Identity     IdentityConfig
	Redis        RedisConfig
	Provisioning ProvisioningConfig
	Notify       NotifyConfig
	Tenancy      TenancyConfig
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	config := &Config{
		ServiceName: serviceName,
		DB: DBConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			DBName:          getEnv("DB_NAME", serviceName),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
			AutoMigrate:     getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Env:             getEnv("APP_ENV", "development"),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		JWT: JWTConfig{
			SigningKey:      getEnv("JWT_SIGNING_KEY", "defaultsecretkey"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", serviceName),
		},
		Identity: IdentityConfig{
			BaseURL:       getEnv("IDENTITY_BASE_URL", "http://localhost:9000"),
			APIKey:        getEnv("IDENTITY_API_KEY", ""),
			Timeout:       getEnvAsDuration("IDENTITY_TIMEOUT", 10*time.Second),
			RetryCount:    getEnvAsInt("IDENTITY_RETRY_COUNT", 0),
			WebhookSecret: getEnv("IDENTITY_WEBHOOK_SECRET", ""),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TTL:      getEnvAsDuration("TENANT_CACHE_TTL", 5*time.Minute),
		},
		Provisioning: ProvisioningConfig{
			StrictCrossLink: getEnvAsBool("PROVISION_STRICT_CROSSLINK", false),
			RateLimit:       getEnvAsFloat("PROVISION_RATE_LIMIT", 1),
			RateBurst:       getEnvAsInt("PROVISION_RATE_BURST", 5),
		},
		Notify: NotifyConfig{
			RelayURL: getEnv("NOTIFY_RELAY_URL", ""),
			Timeout:  getEnvAsDuration("NOTIFY_TIMEOUT", 5*time.Second),
		},
		Tenancy: TenancyConfig{
			BaseDomain: strings.ToLower(getEnv("TENANT_BASE_DOMAIN", "shopfleet.localhost")),
		},
	}

	if config.Identity.Timeout <= 0 {
		return nil, fmt.Errorf("IDENTITY_TIMEOUT must be positive")
	}
	if config.Notify.Timeout <= 0 {
		return nil, fmt.Errorf("NOTIFY_TIMEOUT must be positive")
	}

	return config, nil
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("service", c.ServiceName),
		zap.String("environment", c.Server.Env),
		zap.String("db_host", c.DB.Host),
		zap.String("db_port", c.DB.Port),
		zap.String("db_user", c.DB.User),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.String("identity_base_url", c.Identity.BaseURL),
		zap.Duration("identity_timeout", c.Identity.Timeout),
		zap.Bool("redis_enabled", c.Redis.Enabled),
		zap.Bool("strict_crosslink", c.Provisioning.StrictCrossLink),
		zap.String("base_domain", c.Tenancy.BaseDomain),
	}
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
