package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/notify"
	"github.com/nik-6348/sss-projects-payments/pkg/observability"
	"github.com/nik-6348/sss-projects-payments/pkg/storage"
)

const envPrefix = "BILLING_"

// Sequence backends
const (
	SequenceMemory   = "memory"
	SequenceRedis    = "redis"
	SequencePostgres = "postgres"
	SequenceSQLite   = "sqlite"
)

// Document archive backends
const (
	ArchiveNone       = "none"
	ArchiveFilesystem = "filesystem"
	ArchiveS3         = "s3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Sequence selects the invoice counter backend
	Sequence SequenceConfig

	// Documents configures rendering cache and archive
	Documents DocumentsConfig

	// Notifications configures client notification channels
	Notifications NotificationsConfig

	// Sweep configures the overdue sweeper
	Sweep SweepConfig

	// Billing holds the settings consulted when issuing invoices
	Billing billing.Settings

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// SequenceConfig selects where invoice numbers are counted
type SequenceConfig struct {
	Backend  string
	RedisKey string
}

// DocumentsConfig holds rendering cache and archive settings
type DocumentsConfig struct {
	Archive        string
	FilesystemRoot string
	CacheEntries   int
	CacheTTL       time.Duration
}

// NotificationsConfig holds channel settings. A channel with no endpoint
// configured is disabled.
type NotificationsConfig struct {
	SMTP           notify.SMTPConfig
	Messaging      notify.MessagingConfig
	TemplatesPath  string
	WatchTemplates bool
	ChannelTimeout time.Duration
}

// EmailEnabled reports whether an SMTP relay is configured
func (n NotificationsConfig) EmailEnabled() bool {
	return n.SMTP.Host != ""
}

// MessagingEnabled reports whether a messaging endpoint is configured
func (n NotificationsConfig) MessagingEnabled() bool {
	return n.Messaging.URL != ""
}

// SweepConfig holds overdue sweeper settings
type SweepConfig struct {
	Schedule    string
	PageSize    int
	Concurrency int
	Timeout     time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	settings, err := loadBillingSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to load billing settings: %w", err)
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Sequence:      loadSequenceConfig(),
		Documents:     loadDocumentsConfig(),
		Notifications: loadNotificationsConfig(),
		Sweep:         loadSweepConfig(),
		Billing:       settings,
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "8080"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		AllowedOrigins:  getEnvList("ALLOWED_ORIGINS"),
		MaxBodyBytes:    getEnvInt64("MAX_BODY_BYTES", 1<<20),
		HealthPort:      getEnv("HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.Type = getEnv("STORAGE_TYPE", cfg.Type)

	// PostgreSQL config
	cfg.PostgresURL = getEnv("POSTGRES_URL", cfg.PostgresURL)
	cfg.PostgresReplicaURLs = getEnvList("POSTGRES_REPLICA_URLS")
	if maxConns := getEnvInt("POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	cfg.PostgresTimeout = getEnvDuration("POSTGRES_TIMEOUT", cfg.PostgresTimeout)

	// S3 config
	cfg.S3Endpoint = getEnv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3UsePathStyle = getEnvBool("S3_USE_PATH_STYLE", cfg.S3UsePathStyle)

	// Redis config
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	if redisDB := getEnvInt("REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)

	return cfg
}

func loadSequenceConfig() SequenceConfig {
	return SequenceConfig{
		Backend:  strings.ToLower(getEnv("SEQUENCE_BACKEND", SequenceMemory)),
		RedisKey: getEnv("SEQUENCE_REDIS_KEY", "billing:invoice_sequence"),
	}
}

func loadDocumentsConfig() DocumentsConfig {
	return DocumentsConfig{
		Archive:        strings.ToLower(getEnv("DOCUMENT_ARCHIVE", ArchiveNone)),
		FilesystemRoot: getEnv("DOCUMENT_ROOT", ""),
		CacheEntries:   getEnvInt("DOCUMENT_CACHE_ENTRIES", 256),
		CacheTTL:       getEnvDuration("DOCUMENT_CACHE_TTL", time.Hour),
	}
}

func loadNotificationsConfig() NotificationsConfig {
	retry := notify.DefaultRetryConfig()
	retry.MaxAttempts = getEnvInt("MESSAGING_MAX_ATTEMPTS", retry.MaxAttempts)
	retry.InitialDelay = getEnvDuration("MESSAGING_INITIAL_DELAY", retry.InitialDelay)
	retry.MaxDelay = getEnvDuration("MESSAGING_MAX_DELAY", retry.MaxDelay)

	return NotificationsConfig{
		SMTP: notify.SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
			Timeout:  getEnvDuration("SMTP_TIMEOUT", 30*time.Second),
		},
		Messaging: notify.MessagingConfig{
			URL:     getEnv("MESSAGING_URL", ""),
			Token:   getEnv("MESSAGING_TOKEN", ""),
			Secret:  getEnv("MESSAGING_SECRET", ""),
			Timeout: getEnvDuration("MESSAGING_TIMEOUT", 10*time.Second),
			Retry:   retry,
		},
		TemplatesPath:  getEnv("TEMPLATES_PATH", ""),
		WatchTemplates: getEnvBool("TEMPLATES_WATCH", true),
		ChannelTimeout: getEnvDuration("NOTIFY_CHANNEL_TIMEOUT", 20*time.Second),
	}
}

func loadSweepConfig() SweepConfig {
	return SweepConfig{
		Schedule:    getEnv("SWEEP_SCHEDULE", "15 0 * * *"),
		PageSize:    getEnvInt("SWEEP_PAGE_SIZE", 100),
		Concurrency: getEnvInt("SWEEP_CONCURRENCY", 4),
		Timeout:     getEnvDuration("SWEEP_TIMEOUT", 10*time.Minute),
	}
}

// loadBillingSettings loads the invoice issuing settings. The timezone and
// GST rate are parsed here so a typo fails startup instead of every request.
func loadBillingSettings() (billing.Settings, error) {
	settings := billing.DefaultSettings()
	settings.InvoicePrefix = getEnv("INVOICE_PREFIX", settings.InvoicePrefix)
	settings.DefaultDueDays = getEnvInt("DEFAULT_DUE_DAYS", settings.DefaultDueDays)
	settings.FiscalYearStartMonth = time.Month(getEnvInt("FISCAL_YEAR_START_MONTH", int(settings.FiscalYearStartMonth)))

	if tz := getEnv("TIMEZONE", ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return settings, fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
		settings.Location = loc
	}
	if raw := getEnv("DEFAULT_GST_PERCENTAGE", ""); raw != "" {
		pct, err := decimal.NewFromString(raw)
		if err != nil {
			return settings, fmt.Errorf("invalid GST percentage %q: %w", raw, err)
		}
		settings.DefaultGSTPercentage = pct
	}
	return settings, nil
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("OTEL_SERVICE_NAME", "billing-server"),
		OTelServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or postgres)", c.Storage.Type)
	}

	if err := c.validateSequence(); err != nil {
		return err
	}

	switch c.Documents.Archive {
	case ArchiveNone:
	case ArchiveFilesystem:
		if c.Documents.FilesystemRoot == "" {
			return fmt.Errorf("document root is required for the filesystem archive")
		}
	case ArchiveS3:
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for the s3 archive")
		}
	default:
		return fmt.Errorf("invalid document archive: %s (must be none, filesystem or s3)", c.Documents.Archive)
	}

	if c.Notifications.EmailEnabled() && c.Notifications.SMTP.From == "" {
		return fmt.Errorf("SMTP from address is required when SMTP is configured")
	}

	if _, err := cron.ParseStandard(c.Sweep.Schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", c.Sweep.Schedule, err)
	}
	if c.Sweep.Concurrency <= 0 || c.Sweep.PageSize <= 0 {
		return fmt.Errorf("sweep page size and concurrency must be positive")
	}

	if err := billing.ValidateGSTPercentage(c.Billing.DefaultGSTPercentage); err != nil {
		return fmt.Errorf("invalid default GST percentage: %w", err)
	}
	if c.Billing.FiscalYearStartMonth < time.January || c.Billing.FiscalYearStartMonth > time.December {
		return fmt.Errorf("fiscal year start month must be between 1 and 12")
	}
	if c.Billing.DefaultDueDays < 0 {
		return fmt.Errorf("default due days must not be negative")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// validateSequence rejects counters that would reissue numbers. A memory
// counter restarts at zero, so it is only allowed with memory storage.
func (c *Config) validateSequence() error {
	switch c.Sequence.Backend {
	case SequenceMemory:
		if c.Storage.Type != "memory" {
			return fmt.Errorf("memory sequence cannot be used with %s storage", c.Storage.Type)
		}
	case SequenceRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis sequence")
		}
	case SequencePostgres:
		if c.Storage.Type != "postgres" {
			return fmt.Errorf("postgres sequence requires postgres storage")
		}
	case SequenceSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite sequence")
		}
	default:
		return fmt.Errorf("invalid sequence backend: %s (must be memory, redis, postgres or sqlite)", c.Sequence.Backend)
	}
	return nil
}

// parseLogLevel maps a level name to a LogLevel, defaulting to info
func parseLogLevel(level string) observability.LogLevel {
	l, _ := observability.ParseLogLevel(level)
	return l
}

// getEnv returns a BILLING_ environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable as a list
func getEnvList(key string) []string {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
