package types

// NotificationType classifies the kind of content a notification carries.
type NotificationType string

const (
	NotificationAnnouncement NotificationType = "announcement"
	NotificationPayment      NotificationType = "payment"
	NotificationBooking      NotificationType = "booking"
	NotificationEmergency    NotificationType = "emergency"
	NotificationGeneral      NotificationType = "general"
)

// AllNotificationTypes lists every valid NotificationType. Used by the
// validator to reject unknown values.
var AllNotificationTypes = []NotificationType{
	NotificationAnnouncement,
	NotificationPayment,
	NotificationBooking,
	NotificationEmergency,
	NotificationGeneral,
}

// ValidNotificationType reports whether t is a member of the fixed enum.
func ValidNotificationType(t NotificationType) bool {
	for _, known := range AllNotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// PriorityTier governs processing order in the dispatch queue.
type PriorityTier string

const (
	PriorityUrgent PriorityTier = "urgent"
	PriorityHigh   PriorityTier = "high"
	PriorityNormal PriorityTier = "normal"
	PriorityLow    PriorityTier = "low"
)

// Rank returns the numeric ordering of a priority tier. Lower ranks are
// processed first. Unknown tiers sort after low so a malformed value can
// never starve valid work.
func (p PriorityTier) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Valid reports whether the tier is one of the four known values.
func (p PriorityTier) Valid() bool {
	return p == PriorityUrgent || p == PriorityHigh || p == PriorityNormal || p == PriorityLow
}

// ChannelType identifies a notification delivery channel.
type ChannelType string

const (
	ChannelPush  ChannelType = "push"
	ChannelInApp ChannelType = "in-app"
)

// Valid reports whether the channel is one of the allowed values.
func (c ChannelType) Valid() bool {
	return c == ChannelPush || c == ChannelInApp
}

// QueueStatus enumerates the lifecycle states of a queue item.
// These values MUST match the CHECK constraint in the queue_items table.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusDone       QueueStatus = "done"
	QueueStatusDead       QueueStatus = "dead"
)

// DeliveryStatus enumerates the states of a webhook delivery attempt.
type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "pending"
	DeliveryStatusSuccess  DeliveryStatus = "success"
	DeliveryStatusFailed   DeliveryStatus = "failed"
	DeliveryStatusRetrying DeliveryStatus = "retrying"
)

// DeadLetterReason records why a message was routed to the dead-letter sink.
type DeadLetterReason string

const (
	DeadLetterValidationFailed DeadLetterReason = "validation failed"
	DeadLetterRetriesExhausted DeadLetterReason = "retries exhausted"
	DeadLetterUnexpectedError  DeadLetterReason = "unexpected error"
)

// OutcomeEventType identifies the outcome events external services may
// subscribe to via the webhook registry.
type OutcomeEventType string

const (
	OutcomeEnqueued     OutcomeEventType = "notification.enqueued"
	OutcomeDelivered    OutcomeEventType = "notification.delivered"
	OutcomeFailed       OutcomeEventType = "notification.failed"
	OutcomeDeadLettered OutcomeEventType = "notification.dead_lettered"
)

// AllOutcomeEventTypes is the fixed enum of subscribable outcome events.
// Webhook create/update rejects any event type outside this set.
var AllOutcomeEventTypes = []OutcomeEventType{
	OutcomeEnqueued,
	OutcomeDelivered,
	OutcomeFailed,
	OutcomeDeadLettered,
}

// ValidOutcomeEventType reports whether t is a member of the fixed enum.
func ValidOutcomeEventType(t OutcomeEventType) bool {
	for _, known := range AllOutcomeEventTypes {
		if t == known {
			return true
		}
	}
	return false
}
