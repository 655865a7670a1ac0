// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret     string
	JWTExpiration time.Duration

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	MasterTimeout   time.Duration

	// Messaging platform settings
	MessagingBaseURL string
	ChannelToken     string
	ChannelSecret    string

	// Master persona (the store that sells the platform itself)
	MasterName    string
	MasterPersona string

	// Fact provider settings
	MarketBaseURL  string
	WeatherBaseURL string
	WeatherAPIKey  string
	ForexBaseURL   string

	// Tenant tool dispatch
	ToolCallTimeout time.Duration

	// Delivery guard
	DedupeTTL        time.Duration
	GuardWindow      time.Duration
	BindCeiling      int
	BroadcastCeiling int
	ProvisionCeiling int

	// HTTP-level rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 15*time.Minute),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),
		MasterTimeout:   getDurationEnv("MASTER_COMPLETION_TIMEOUT", 25*time.Second),

		// Messaging platform
		MessagingBaseURL: getEnv("MESSAGING_BASE_URL", "https://api.line.me"),
		ChannelToken:     getEnv("CHANNEL_TOKEN", ""),
		ChannelSecret:    getEnv("CHANNEL_SECRET", ""),

		// Master persona
		MasterName:    getEnv("MASTER_NAME", "開店小幫手"),
		MasterPersona: getEnv("MASTER_PERSONA", "你是開店平台的銷售助理，協助商家了解並訂閱本平台。"),

		// Fact providers
		MarketBaseURL:  getEnv("MARKET_BASE_URL", "https://mis.twse.com.tw"),
		WeatherBaseURL: getEnv("WEATHER_BASE_URL", "https://opendata.cwa.gov.tw"),
		WeatherAPIKey:  getEnv("WEATHER_API_KEY", ""),
		ForexBaseURL:   getEnv("FOREX_BASE_URL", "https://open.er-api.com"),

		// Tenant tool dispatch
		ToolCallTimeout: getDurationEnv("TOOL_CALL_TIMEOUT", 10*time.Second),

		// Delivery guard. The dedupe TTL matches the platform's retry
		// horizon; ceilings are deliberately generous.
		DedupeTTL:        getDurationEnv("DEDUPE_TTL", 5*time.Minute),
		GuardWindow:      getDurationEnv("GUARD_WINDOW", time.Minute),
		BindCeiling:      getIntEnv("BIND_CEILING", 30),
		BroadcastCeiling: getIntEnv("BROADCAST_CEILING", 10),
		ProvisionCeiling: getIntEnv("PROVISION_CEILING", 5),

		// HTTP-level rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
