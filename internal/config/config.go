package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Gateway   GatewayConfig
	Reconcile ReconcileConfig
	Intake    IntakeConfig
	Frontend  FrontendConfig
	Archive   ArchiveConfig
	S3        S3Config
	Kafka     KafkaConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int // seconds
}

// LoggerConfig holds logger-related configuration.
type LoggerConfig struct {
	Level  string
	Format string // "json" or "console"
}

// AuthConfig holds the identity token settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// GatewayConfig holds payment gateway verification settings.
type GatewayConfig struct {
	BaseURL       string
	PrivateAPIKey string
	Timeout       time.Duration
	MaxRetry      time.Duration
}

// ReconcileConfig holds reconciliation rules.
type ReconcileConfig struct {
	AmountTolerance decimal.Decimal
	DefaultCurrency string
}

// IntakeConfig selects the order intake variant.
type IntakeConfig struct {
	// PersistStub makes intake write a PENDING order and payment keyed by the
	// generated transaction id. When false the id is only returned.
	PersistStub bool
}

// FrontendConfig holds the browser redirect target for payment callbacks.
type FrontendConfig struct {
	BaseURL          string
	PlaceholderImage string
}

// ArchiveConfig controls archiving of raw gateway responses.
type ArchiveConfig struct {
	Enabled  bool
	LocalDir string
}

// S3Config holds AWS S3 configuration for the gateway response archive.
type S3Config struct {
	Enabled bool
	Bucket  string
	Region  string
	Prefix  string // Path prefix within bucket (e.g., "payments/")
}

// KafkaConfig holds event publication settings. No brokers disables publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	TracingEnabled bool
	OTLPEndpoint   string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	tolerance, err := decimal.NewFromString(getEnv("RECONCILE_AMOUNT_TOLERANCE", "0.01"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_AMOUNT_TOLERANCE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "kart"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MinConnections:  getEnvAsInt("DB_MIN_CONNECTIONS", 5),
			MaxConnLifetime: getEnvAsInt("DB_MAX_CONN_LIFETIME", 300),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_JWT_ISSUER", "kart"),
		},
		Gateway: GatewayConfig{
			BaseURL:       getEnv("GATEWAY_BASE_URL", "https://api.kkiapay.me"),
			PrivateAPIKey: getEnv("GATEWAY_PRIVATE_API_KEY", ""),
			Timeout:       time.Duration(getEnvAsInt("GATEWAY_TIMEOUT_MS", 4000)) * time.Millisecond,
			MaxRetry:      time.Duration(getEnvAsInt("GATEWAY_MAX_RETRY_MS", 6000)) * time.Millisecond,
		},
		Reconcile: ReconcileConfig{
			AmountTolerance: tolerance,
			DefaultCurrency: getEnv("RECONCILE_DEFAULT_CURRENCY", "XOF"),
		},
		Intake: IntakeConfig{
			PersistStub: getEnvAsBool("INTAKE_PERSIST_STUB", true),
		},
		Frontend: FrontendConfig{
			BaseURL:          strings.TrimRight(getEnv("FRONTEND_BASE_URL", "http://localhost:3000"), "/"),
			PlaceholderImage: getEnv("FRONTEND_PLACEHOLDER_IMAGE", "/assets/upload_area.png"),
		},
		Archive: ArchiveConfig{
			Enabled:  getEnvAsBool("ARCHIVE_ENABLED", false),
			LocalDir: getEnv("ARCHIVE_LOCAL_DIR", "data/gateway-archive"),
		},
		S3: S3Config{
			Enabled: getEnvAsBool("S3_ENABLED", false),
			Bucket:  getEnv("S3_BUCKET", ""),
			Region:  getEnv("S3_REGION", "us-east-1"),
			Prefix:  getEnv("S3_PREFIX", "payments/"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "order.reconciled"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "kart-reconciler"),
			ServiceVersion: getEnv("SERVICE_VERSION", "dev"),
			TracingEnabled: getEnvAsBool("OTEL_TRACING_ENABLED", false),
			OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}

	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Database.MinConnections < 1 {
		return fmt.Errorf("database min connections must be at least 1")
	}

	if c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("database min connections cannot exceed max connections")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if c.Gateway.PrivateAPIKey == "" {
		return fmt.Errorf("gateway private API key is required")
	}

	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway base URL is required")
	}

	// The gateway's webhook gives up after roughly ten seconds.
	if c.Gateway.Timeout <= 0 || c.Gateway.Timeout >= 10*time.Second {
		return fmt.Errorf("gateway timeout must be between 1ms and 9999ms")
	}

	if c.Gateway.MaxRetry < c.Gateway.Timeout {
		return fmt.Errorf("gateway max retry must be at least the gateway timeout")
	}

	if c.Reconcile.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance must not be negative")
	}

	if c.Reconcile.DefaultCurrency == "" {
		return fmt.Errorf("default currency is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logger.Format)
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required when S3 is enabled")
		}
		if c.S3.Region == "" {
			return fmt.Errorf("S3 region is required when S3 is enabled")
		}
	}

	if c.Archive.Enabled && c.Archive.LocalDir == "" {
		return fmt.Errorf("archive local directory is required when archiving is enabled")
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required when brokers are configured")
	}

	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// Address returns the server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, dropping empty entries.
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
