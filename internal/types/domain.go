package types

import (
	"encoding/json"
	"time"
)

// Size limits for canonical notification content.
const (
	MaxTitleLength = 200
	MaxBodyLength  = 1000
)

// NotificationRequest is the canonical, normalized representation of a
// notification to be delivered. Created by the normalizer, consumed by the
// dispatch queue, never mutated after creation. Retried work copies the
// request rather than updating it in place.
type NotificationRequest struct {
	Title         string           `json:"title"`
	Body          string           `json:"body"`
	Type          NotificationType `json:"type"`
	Priority      PriorityTier     `json:"priority"`
	Channels      []ChannelType    `json:"channels"`
	Target        *Target          `json:"target,omitempty"`
	SourceService string           `json:"source_service"`
	ContentID     string           `json:"content_id"`
	RedirectURL   string           `json:"redirect_url,omitempty"`
	ContentType   string           `json:"content_type,omitempty"`
	SentBy        string           `json:"sent_by,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
	ScheduledAt   *time.Time       `json:"scheduled_at,omitempty"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
	ActionButtons []ActionButton   `json:"action_buttons,omitempty"`
	Data          map[string]any   `json:"data,omitempty"`
}

// QueueItem wraps a NotificationRequest with dispatch bookkeeping. The queue
// exclusively owns an item until it reaches a terminal state (done or dead).
type QueueItem struct {
	ID           string              `json:"id"`
	Request      NotificationRequest `json:"request"`
	PriorityTier PriorityTier        `json:"priority_tier"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
	AttemptCount int                 `json:"attempt_count"`
	Status       QueueStatus         `json:"status"`
}

// DeadLetterRecord captures an unprocessable message for operator inspection.
// Append-only: created by the consumer or the dispatch worker, never mutated.
type DeadLetterRecord struct {
	ID              string           `json:"id"`
	OriginalMessage json.RawMessage  `json:"original_message"`
	Reason          DeadLetterReason `json:"reason"`
	Detail          string           `json:"detail,omitempty"`
	CorrelationID   string           `json:"correlation_id,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Webhook is a registered subscription to outcome events. Name is unique
// among active webhooks. Timeout bounds each delivery attempt; RetryCount
// and RetryDelay override the dispatcher's default retry policy.
type Webhook struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	URL        string             `json:"url"`
	Events     []OutcomeEventType `json:"events"`
	Headers    map[string]string  `json:"headers,omitempty"`
	Secret     SecretString       `json:"secret,omitempty"`
	IsActive   bool               `json:"is_active"`
	Timeout    time.Duration      `json:"timeout"`
	RetryCount int                `json:"retry_count"`
	RetryDelay time.Duration      `json:"retry_delay"`
	CreatedBy  string             `json:"created_by"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// SubscribesTo reports whether the webhook is subscribed to the given
// outcome event type.
func (w *Webhook) SubscribesTo(t OutcomeEventType) bool {
	for _, e := range w.Events {
		if e == t {
			return true
		}
	}
	return false
}

// DeliveryAttempt is one webhook delivery try. One record is written per
// attempt, success or failure, and never mutated afterwards.
type DeliveryAttempt struct {
	ID        string         `json:"id"`
	WebhookID string         `json:"webhook_id"`
	EventID   string         `json:"event_id"`
	Status    DeliveryStatus `json:"status"`
	Attempt   int            `json:"attempt"`
	SentAt    *time.Time     `json:"sent_at,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// OutcomeEvent describes what happened to a notification after it left the
// dispatch queue. It is the payload delivered to subscribed webhooks.
type OutcomeEvent struct {
	ID            string           `json:"id"`
	Type          OutcomeEventType `json:"type"`
	CorrelationID string           `json:"correlation_id,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
	Data          map[string]any   `json:"data,omitempty"`
}
