package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything main needs to wire the bridge: the HTTP
// boundary, the action set location, the target-system client, the
// correlation backend, and the retry knobs the executor exposes.
type Config struct {
	Addr     string
	LogLevel string

	// WebhookSigningKey verifies the service token on inbound webhooks.
	WebhookSigningKey string

	// ActionsPath points at the YAML action-set document.
	ActionsPath string

	Jira  JiraConfig
	Retry RetryConfig
	Redis RedisConfig

	// PostgresDSN selects the durable correlation store when set. When both
	// redis and postgres are configured, postgres wins.
	PostgresDSN string

	Kafka KafkaConfig
}

// JiraConfig holds the target-system client settings.
type JiraConfig struct {
	BaseURL  string
	Email    string
	APIToken string
	Timeout  time.Duration
}

// RetryConfig exposes the backoff parameters of the step retry policy.
type RetryConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      float64
	MaxAttempts int
}

// RedisConfig holds connection settings for the redis correlation store.
type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the execution-report publisher settings. Empty brokers
// means reports go to the log publisher only.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:              envOr("BUGBRIDGE_ADDR", ":8080"),
		LogLevel:          envOr("BUGBRIDGE_LOG_LEVEL", "info"),
		WebhookSigningKey: envOr("BUGBRIDGE_WEBHOOK_SIGNING_KEY", ""),
		ActionsPath:       envOr("BUGBRIDGE_ACTIONS_PATH", "config/actions.yaml"),
		Jira: JiraConfig{
			BaseURL:  envOr("JIRA_BASE_URL", ""),
			Email:    envOr("JIRA_EMAIL", ""),
			APIToken: envOr("JIRA_API_TOKEN", ""),
			Timeout:  envDuration("JIRA_TIMEOUT", 15*time.Second),
		},
		Retry: RetryConfig{
			BaseDelay:   envDuration("BUGBRIDGE_RETRY_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:    envDuration("BUGBRIDGE_RETRY_MAX_DELAY", 30*time.Second),
			Multiplier:  envFloat("BUGBRIDGE_RETRY_MULTIPLIER", 2.0),
			Jitter:      envFloat("BUGBRIDGE_RETRY_JITTER", 0.2),
			MaxAttempts: envInt("BUGBRIDGE_RETRY_MAX_ATTEMPTS", 4),
		},
		Redis: RedisConfig{
			URL:          envOr("BUGBRIDGE_REDIS_URL", ""),
			DialTimeout:  envDuration("BUGBRIDGE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("BUGBRIDGE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("BUGBRIDGE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		PostgresDSN: envOr("BUGBRIDGE_POSTGRES_DSN", ""),
		Kafka: KafkaConfig{
			Brokers: splitCSV(envOr("BUGBRIDGE_KAFKA_BROKERS", "")),
			Topic:   envOr("BUGBRIDGE_KAFKA_TOPIC", "bugbridge.execution-reports"),
		},
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
