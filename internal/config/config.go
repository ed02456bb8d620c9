// Package config defines the gateway's configuration. Configuration is
// loaded once at process start and is immutable thereafter; it follows
// 12-Factor principles by separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format fails startup immediately.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"notifgate/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"notifgate"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Broker   BrokerConfig
	Database DatabaseConfig
	Queue    QueueConfig
	Webhook  WebhookConfig
	Redirect RedirectConfig
	Provider ProviderConfig
	Server   ServerConfig
}

// BrokerConfig holds Kafka connection and consumption settings.
type BrokerConfig struct {
	Brokers      []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	ConsumeTopic string   `envconfig:"KAFKA_CONSUME_TOPIC" default:"domain-events"`
	DLQTopic     string   `envconfig:"KAFKA_DLQ_TOPIC" default:"notifications-dlq"`
	GroupID      string   `envconfig:"KAFKA_GROUP_ID" default:"notifgate-consumer"`
	// EventTypes lists the envelope event types the notification
	// handler is registered for. Anything else is logged and acked.
	EventTypes []string `envconfig:"CONSUMER_EVENT_TYPES" default:"loaphuong.AnnouncementCreated,loaphuong.PaymentDue,loaphuong.BookingConfirmed,loaphuong.EmergencyAlert"`
	// Prefetch caps in-flight unacknowledged messages per consumer
	// instance. This is the sole admission-control mechanism.
	Prefetch int `envconfig:"CONSUMER_PREFETCH" default:"10" validate:"min=1,max=1000"`
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// QueueConfig tunes the dispatch queue and its worker.
type QueueConfig struct {
	BatchSize    int           `envconfig:"QUEUE_BATCH_SIZE" default:"10" validate:"min=1,max=100"`
	PollInterval time.Duration `envconfig:"QUEUE_POLL_INTERVAL" default:"2s"`
	MaxAttempts  int           `envconfig:"QUEUE_MAX_ATTEMPTS" default:"3" validate:"min=1,max=10"`
	RetryDelay   time.Duration `envconfig:"QUEUE_RETRY_DELAY" default:"1s"`
}

// WebhookConfig holds settings for outbound webhook delivery.
type WebhookConfig struct {
	DefaultTimeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`
	MaxInFlight    int           `envconfig:"WEBHOOK_MAX_IN_FLIGHT" default:"4" validate:"min=1,max=64"`
}

// RedirectConfig supplies the redirect URL patterns used during
// normalization, read-only after load.
//
// PatternsJSON is a JSON mapping from UPPERCASE service name to a URL
// template containing a {contentId} (alias {id}) placeholder, e.g.
// {"LOAPHUONG": "/announcements/{contentId}"}.
type RedirectConfig struct {
	PatternsJSON   string `envconfig:"REDIRECT_PATTERNS_JSON" default:"{}" validate:"json"`
	DefaultPattern string `envconfig:"REDIRECT_DEFAULT_PATTERN"`
}

// Patterns decodes PatternsJSON, uppercasing the service keys.
func (r RedirectConfig) Patterns() (map[string]string, error) {
	var raw map[string]string
	if err := json.Unmarshal([]byte(r.PatternsJSON), &raw); err != nil {
		return nil, fmt.Errorf("REDIRECT_PATTERNS_JSON is not a valid JSON object: %w", err)
	}
	patterns := make(map[string]string, len(raw))
	for service, pattern := range raw {
		patterns[strings.ToUpper(service)] = pattern
	}
	return patterns, nil
}

// ProviderConfig holds the outbound delivery provider endpoint.
type ProviderConfig struct {
	BaseURL string        `envconfig:"PROVIDER_BASE_URL" validate:"omitempty,url"`
	APIKey  SecretString  `envconfig:"PROVIDER_API_KEY"`
	Timeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"15s"`
}

// ServerConfig holds the admin HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}
