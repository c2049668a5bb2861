package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// AWS configuration
	AWSRegion     string
	DynamoDBTable string
	IndexName     string // GSI1 - category browsing ordered by creation time
	GSI2IndexName string // GSI2 - direct patch ID lookups
	EventBusName  string

	// Lambda configuration
	IsLambda           bool
	LambdaFunctionName string

	// Cache configuration (seconds in the environment, durations here)
	CacheDefaultTTL    time.Duration
	CacheMaxEntries    int
	CacheSweepInterval time.Duration
	CacheTTLByID       time.Duration
	CacheTTLListing    time.Duration
	CacheTTLLatest     time.Duration
	CacheTTLSearch     time.Duration
	CacheTTLTopRated   time.Duration
	CacheTTLStats      time.Duration

	// Rate limiting
	RateLimitPerIP   int // requests per minute
	RateLimitPerUser int // requests per minute

	// Logging
	LogLevel string

	// Authentication
	JWTSecret string
	JWTIssuer string

	// Feature flags
	EnableMetrics bool
	EnableTracing bool
	EnableCORS    bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable: getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", "patchshare")),
		IndexName:     getEnv("INDEX_NAME", "CategoryIndex"),    // GSI1
		GSI2IndexName: getEnv("GSI2_INDEX_NAME", "PatchIndex"),  // GSI2
		EventBusName:  getEnv("EVENT_BUS_NAME", "patchshare-events"),

		// Lambda configuration
		IsLambda:           getEnvBool("IS_LAMBDA", false),
		LambdaFunctionName: getEnv("AWS_LAMBDA_FUNCTION_NAME", ""),

		// Cache configuration
		CacheDefaultTTL:    getEnvSeconds("CACHE_DEFAULT_TTL", 3600),
		CacheMaxEntries:    getEnvInt("CACHE_MAX_ENTRIES", 10000),
		CacheSweepInterval: getEnvSeconds("CACHE_SWEEP_INTERVAL", 300),
		CacheTTLByID:       getEnvSeconds("CACHE_TTL_BY_ID", 1800),
		CacheTTLListing:    getEnvSeconds("CACHE_TTL_LISTING", 1800),
		CacheTTLLatest:     getEnvSeconds("CACHE_TTL_LATEST", 600),
		CacheTTLSearch:     getEnvSeconds("CACHE_TTL_SEARCH", 900),
		CacheTTLTopRated:   getEnvSeconds("CACHE_TTL_TOP_RATED", 3600),
		CacheTTLStats:      getEnvSeconds("CACHE_TTL_STATS", 600),

		// Rate limiting
		RateLimitPerIP:   getEnvInt("RATE_LIMIT_PER_IP", 120),
		RateLimitPerUser: getEnvInt("RATE_LIMIT_PER_USER", 60),

		// Authentication
		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "patchshare-api"),

		// Logging and features
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", false),
		EnableTracing: getEnvBool("ENABLE_TRACING", false),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is an alias for LoadConfig for backwards compatibility
func Load() (*Config, error) {
	return LoadConfig()
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required")
		}
		if c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
	}

	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive")
	}
	if c.CacheDefaultTTL <= 0 {
		return fmt.Errorf("CACHE_DEFAULT_TTL must be positive")
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvSeconds reads an integer number of seconds as a duration
func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}
