// Package config builds process configuration from environment
// variables so main stays lean.
package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration for the automation server.
type Server struct {
	Addr          string
	DatabaseURL   string
	RedisURL      string
	JWTSigningKey string

	// Upload events arrive on a broker topic published by the file
	// ingest subsystem. Empty brokers disable the consumer.
	KafkaBrokers []string
	UploadTopic  string
	UploadGroup  string

	// Language-model endpoint for the rule compiler. Empty base URL
	// disables the compile endpoint.
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	// StoragePath is the mount the storage_threshold trigger inspects.
	StoragePath string

	// Plan state for the single-tenant install. Multi-tenant installs
	// replace the static plan source with a billing-backed one.
	PlanTier  string
	BillingOK bool
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:          envOr("NIMBUS_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		UploadTopic:   envOr("UPLOAD_EVENTS_TOPIC", "nimbus.uploads"),
		UploadGroup:   envOr("UPLOAD_EVENTS_GROUP", "automation-engine"),
		LLMBaseURL:    os.Getenv("LLM_BASE_URL"),
		LLMAPIKey:     os.Getenv("LLM_API_KEY"),
		LLMModel:      envOr("LLM_MODEL", "gpt-4o-mini"),
		StoragePath:   envOr("STORAGE_PATH", "/"),
		PlanTier:      envOr("PLAN_TIER", "free"),
		BillingOK:     os.Getenv("BILLING_DELINQUENT") != "true",
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	return cfg
}

// RedisConfig tunes the optional redis connection used for persisted
// debounce state.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisFromEnv builds a RedisConfig with production defaults.
func RedisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
