// Package config provides configuration loading for the specializer service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the specializer service.
type Config struct {
	// Server configuration
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	ShutdownGrace time.Duration

	// Public base URL the channel provider calls; the webhook path is appended.
	WebhookBaseURL string

	// Template configuration
	TemplateSource string // "embedded", "file" or "s3"
	TemplatePath   string
	TemplateWatch  bool
	S3Endpoint     string
	S3Bucket       string
	S3Key          string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3UseSSL       bool

	// FlowStore configuration
	FlowStoreType string // "memory", "redis" or "sqlite"
	RedisURL      string
	SQLitePath    string

	// Shared credential references bound into every workflow
	CacheCredentialID        string
	CacheCredentialName      string
	RelationalCredentialID   string
	RelationalCredentialName string
	OpenAICredentialID       string
	OpenAICredentialName     string
	GeminiCredentialID       string
	GeminiCredentialName     string

	// Deployment to the orchestration engine
	DeployEnabled  bool
	DeployBaseURL  string
	DeployAPIKey   string
	DeployActivate bool
	DeployRPS      float64
	DeployTimeout  time.Duration

	// CORS configuration
	CORSOrigins []string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Tracing
	TracingEnabled     bool
	TracingEndpoint    string
	TracingServiceName string
	TracingSampleRate  float64

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port:          getEnv("PORT", "7080"),
		ReadTimeout:   getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:  getDuration("WRITE_TIMEOUT", 30*time.Second),
		ShutdownGrace: getDuration("SHUTDOWN_GRACE", 10*time.Second),

		WebhookBaseURL: getEnv("PUBLIC_WEBHOOK_BASE_URL", "http://localhost:5678/webhook/"),

		// Template
		TemplateSource: getEnv("TEMPLATE_SOURCE", "embedded"),
		TemplatePath:   getEnv("TEMPLATE_PATH", ""),
		TemplateWatch:  getBool("TEMPLATE_WATCH", true),
		S3Endpoint:     getEnv("TEMPLATE_S3_ENDPOINT", ""),
		S3Bucket:       getEnv("TEMPLATE_S3_BUCKET", ""),
		S3Key:          getEnv("TEMPLATE_S3_KEY", "templates/agent.json"),
		S3Region:       getEnv("TEMPLATE_S3_REGION", ""),
		S3AccessKey:    getEnv("TEMPLATE_S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("TEMPLATE_S3_SECRET_KEY", ""),
		S3UseSSL:       getBool("TEMPLATE_S3_USE_SSL", false),

		// FlowStore
		FlowStoreType: getEnv("FLOWSTORE", "memory"),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		SQLitePath:    getEnv("SQLITE_PATH", "data/specializer.db"),

		// Credentials
		CacheCredentialID:        getEnv("CREDENTIAL_CACHE_ID", ""),
		CacheCredentialName:      getEnv("CREDENTIAL_CACHE_NAME", "Redis account"),
		RelationalCredentialID:   getEnv("CREDENTIAL_RELATIONAL_ID", ""),
		RelationalCredentialName: getEnv("CREDENTIAL_RELATIONAL_NAME", "Postgres account"),
		OpenAICredentialID:       getEnv("CREDENTIAL_OPENAI_ID", ""),
		OpenAICredentialName:     getEnv("CREDENTIAL_OPENAI_NAME", "OpenAI account"),
		GeminiCredentialID:       getEnv("CREDENTIAL_GEMINI_ID", ""),
		GeminiCredentialName:     getEnv("CREDENTIAL_GEMINI_NAME", "Google Gemini account"),

		// Deployer
		DeployEnabled:  getBool("DEPLOYER_ENABLED", false),
		DeployBaseURL:  getEnv("DEPLOYER_BASE_URL", "http://localhost:5678"),
		DeployAPIKey:   getEnv("DEPLOYER_API_KEY", ""),
		DeployActivate: getBool("DEPLOYER_ACTIVATE", true),
		DeployRPS:      getFloat("DEPLOYER_RPS", 5.0),
		DeployTimeout:  getDuration("DEPLOYER_TIMEOUT", 15*time.Second),

		// CORS
		CORSOrigins: getStringSlice("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),

		// Rate limiting
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 50.0),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 100),

		// Tracing
		TracingEnabled:     getBool("TRACING_ENABLED", false),
		TracingEndpoint:    getEnv("TRACING_ENDPOINT", "localhost:4317"),
		TracingServiceName: getEnv("TRACING_SERVICE_NAME", "mentatlab-specializer"),
		TracingSampleRate:  getFloat("TRACING_SAMPLE_RATE", 1.0),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.TemplateSource {
	case "embedded":
	case "file":
		if c.TemplatePath == "" {
			return fmt.Errorf("TEMPLATE_PATH is required when TEMPLATE_SOURCE=file")
		}
	case "s3":
		if c.S3Bucket == "" || c.S3Key == "" {
			return fmt.Errorf("TEMPLATE_S3_BUCKET and TEMPLATE_S3_KEY are required when TEMPLATE_SOURCE=s3")
		}
	default:
		return fmt.Errorf("unknown TEMPLATE_SOURCE %q", c.TemplateSource)
	}

	switch c.FlowStoreType {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("unknown FLOWSTORE %q", c.FlowStoreType)
	}

	if c.DeployEnabled && c.DeployBaseURL == "" {
		return fmt.Errorf("DEPLOYER_BASE_URL is required when DEPLOYER_ENABLED=true")
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultVal
}
