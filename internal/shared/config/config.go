package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the marketplace engine
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// JWT configuration
	JWT JWTConfig

	// Rate limiting
	RateLimit RateLimitConfig

	// Kafka event stream
	Kafka KafkaConfig

	// Payment processor
	Processor ProcessorConfig

	// Booking, proof and payout policy
	Marketplace MarketplaceConfig

	// Durable job runner and outbox dispatcher
	Jobs   JobsConfig
	Outbox OutboxConfig

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string

	// Booking writes hold a row lock per space; the pool bounds how many
	// run at once.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowQuery       time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string

	CacheTTL time.Duration
}

// JWTConfig holds JWT configuration. Tokens are issued by the identity
// service; this engine only verifies them.
type JWTConfig struct {
	Secret string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled                 bool          `json:"enabled"`
	WindowDuration          time.Duration `json:"window_duration"`
	DefaultRequests         int           `json:"default_requests"`
	PublicRequests          int           `json:"public_requests"`
	BookingRequests         int           `json:"booking_requests"`
	BookingCriticalRequests int           `json:"booking_critical_requests"`
	WebhookRequests         int           `json:"webhook_requests"`
	AdminRequests           int           `json:"admin_requests"`
	HealthRequests          int           `json:"health_requests"`
	WhitelistedIPs          []string      `json:"whitelisted_ips"`
}

// KafkaConfig holds booking event stream configuration
type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	EventsTopic   string
	ConsumerGroup string
	ClientID      string
}

// ProcessorConfig holds payment processor configuration
type ProcessorConfig struct {
	WebhookSecret    string
	CheckoutBaseURL  string
	SuccessURL       string
	CancelURL        string
	Currency         string
	FeeBasisPoints   int64
	FeeFixedCents    int64
	WebhookTolerance time.Duration
}

// MarketplaceConfig holds pricing and lifecycle policy
type MarketplaceConfig struct {
	PlatformFeeBasisPoints int64
	ProofReviewWindow      time.Duration
	PayoutStage1Percent    int64
	CompletionDelay        time.Duration
	BalanceLeadTime        time.Duration
	StaleTransferAfter     time.Duration
	// RefundRetryAfter is how long a refund may stay unconfirmed before it
	// is reconciled with the processor and flagged to admins.
	RefundRetryAfter time.Duration
}

// JobsConfig holds durable job runner configuration
type JobsConfig struct {
	PollInterval  time.Duration
	BatchSize     int
	MaxAttempts   int
	RetryBackoff  time.Duration
	LeaseDuration time.Duration
}

// OutboxConfig holds timeline dispatch configuration
type OutboxConfig struct {
	DispatchInterval time.Duration
	BatchSize        int
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		// Server configuration
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		// Database configuration
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "adspace_db"),
			User:     getEnv("DB_USER", "adspace_user"),
			Password: getEnv("DB_PASSWORD", "adspace_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
			SlowQuery:       getDurationEnv("DB_SLOW_QUERY", 200*time.Millisecond),
		},

		// Redis configuration
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			CacheTTL: getDurationEnv("REDIS_CACHE_TTL", 30*time.Second),
		},

		// JWT configuration
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
		},

		// Rate limiting
		RateLimit: RateLimitConfig{
			Enabled:                 getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:          getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			DefaultRequests:         getIntEnv("RATE_LIMIT_DEFAULT_REQUESTS", 60),
			PublicRequests:          getIntEnv("RATE_LIMIT_PUBLIC_REQUESTS", 120),
			BookingRequests:         getIntEnv("RATE_LIMIT_BOOKING_REQUESTS", 60),
			BookingCriticalRequests: getIntEnv("RATE_LIMIT_BOOKING_CRITICAL_REQUESTS", 20),
			WebhookRequests:         getIntEnv("RATE_LIMIT_WEBHOOK_REQUESTS", 600),
			AdminRequests:           getIntEnv("RATE_LIMIT_ADMIN_REQUESTS", 200),
			HealthRequests:          getIntEnv("RATE_LIMIT_HEALTH_REQUESTS", 300),
			WhitelistedIPs:          getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		// Kafka configuration
		Kafka: KafkaConfig{
			Enabled:       getBoolEnv("KAFKA_ENABLED", false),
			Brokers:       getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			EventsTopic:   getEnv("KAFKA_EVENTS_TOPIC", "booking-events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", defaultConsumerGroup()),
			ClientID:      getEnv("KAFKA_CLIENT_ID", "adspace-engine"),
		},

		// Payment processor configuration
		Processor: ProcessorConfig{
			WebhookSecret:    getEnv("PROCESSOR_WEBHOOK_SECRET", "whsec_local"),
			CheckoutBaseURL:  getEnv("PROCESSOR_CHECKOUT_BASE_URL", "https://checkout.sandbox.local/session"),
			SuccessURL:       getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
			CancelURL:        getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
			Currency:         getEnv("CURRENCY", "usd"),
			FeeBasisPoints:   getInt64Env("PROCESSOR_FEE_BPS", 290),
			FeeFixedCents:    getInt64Env("PROCESSOR_FEE_FIXED_CENTS", 30),
			WebhookTolerance: getDurationEnv("PROCESSOR_WEBHOOK_TOLERANCE", 5*time.Minute),
		},

		// Marketplace policy
		Marketplace: MarketplaceConfig{
			PlatformFeeBasisPoints: getInt64Env("PLATFORM_FEE_BPS", 1000), // 10%
			ProofReviewWindow:      getDurationEnv("PROOF_REVIEW_WINDOW", 48*time.Hour),
			PayoutStage1Percent:    getInt64Env("PAYOUT_STAGE1_PERCENT", 100),
			CompletionDelay:        getDurationEnv("BOOKING_COMPLETION_DELAY", 24*time.Hour),
			BalanceLeadTime:        getDurationEnv("BALANCE_LEAD_TIME", 7*24*time.Hour),
			StaleTransferAfter:     getDurationEnv("STALE_TRANSFER_AFTER", 10*time.Minute),
			RefundRetryAfter:       getDurationEnv("REFUND_RETRY_AFTER", 5*time.Minute),
		},

		// Job runner
		Jobs: JobsConfig{
			PollInterval:  getDurationEnv("JOBS_POLL_INTERVAL", 15*time.Second),
			BatchSize:     getIntEnv("JOBS_BATCH_SIZE", 50),
			MaxAttempts:   getIntEnv("JOBS_MAX_ATTEMPTS", 5),
			RetryBackoff:  getDurationEnv("JOBS_RETRY_BACKOFF", time.Minute),
			LeaseDuration: getDurationEnv("JOBS_LEASE_DURATION", 5*time.Minute),
		},

		// Outbox dispatcher
		Outbox: OutboxConfig{
			DispatchInterval: getDurationEnv("OUTBOX_DISPATCH_INTERVAL", 2*time.Second),
			BatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// every instance needs its own group so each websocket hub sees all events
func defaultConsumerGroup() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return "adspace-realtime-" + host
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getInt64Env gets an int64 environment variable with a fallback value
func getInt64Env(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
