package types

import "time"

// Envelope is the wire-level event structure consumed from the broker.
// Field names use camelCase to match the upstream publisher contract.
// An Envelope is immutable once received; it is owned solely by the
// consumer for the duration of one handling cycle.
type Envelope struct {
	EventID       string         `json:"eventId,omitempty"`
	EventType     string         `json:"eventType"`
	AggregateID   string         `json:"aggregateId,omitempty"`
	AggregateType string         `json:"aggregateType,omitempty"`
	Timestamp     *time.Time     `json:"timestamp,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Payload       *EventPayload  `json:"payload"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// EventPayload is the domain payload portion of an Envelope.
//
// Data is a deprecated field: notification data belongs under
// notification.data. Its presence is a hard validation failure, never a
// silent migration, so the field is parsed solely to detect it.
type EventPayload struct {
	Notification  *NotificationContent `json:"notification"`
	SourceService string               `json:"sourceService"`
	ContentID     string               `json:"contentId"`
	ContentType   string               `json:"contentType,omitempty"`
	RedirectURL   string               `json:"redirectUrl,omitempty"`
	SentBy        string               `json:"sentBy,omitempty"`
	Target        *Target              `json:"target,omitempty"`

	// Deprecated: use Notification.Data. Rejected by the validator.
	Data map[string]any `json:"data,omitempty"`
}

// NotificationContent holds the user-facing notification fields of an event.
//
// TargetUsers and TargetRoles are deprecated in favor of payload.target and
// are parsed solely so the validator can reject them by name.
type NotificationContent struct {
	Title         string           `json:"title"`
	Body          string           `json:"body"`
	Type          NotificationType `json:"type"`
	Priority      PriorityTier     `json:"priority"`
	Channels      []ChannelType    `json:"channels"`
	Data          map[string]any   `json:"data,omitempty"`
	ScheduledAt   *time.Time       `json:"scheduledAt,omitempty"`
	ExpiresAt     *time.Time       `json:"expiresAt,omitempty"`
	ActionButtons []ActionButton   `json:"actionButtons,omitempty"`

	// Deprecated: use payload.target.userIds. Rejected by the validator.
	TargetUsers []string `json:"targetUsers,omitempty"`
	// Deprecated: use payload.target.roles. Rejected by the validator.
	TargetRoles []string `json:"targetRoles,omitempty"`
}

// Target narrows the recipient set of a notification. An absent Target
// means broadcast to all active recipients. At most one of the three sets
// is expected to be populated, but the pipeline tolerates combinations.
type Target struct {
	UserIDs  []string `json:"userIds,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Segments []string `json:"segments,omitempty"`
}

// IsEmpty reports whether the target narrows recipients at all.
func (t *Target) IsEmpty() bool {
	return t == nil || (len(t.UserIDs) == 0 && len(t.Roles) == 0 && len(t.Segments) == 0)
}

// ActionButton is an interactive element attached to a delivered notification.
type ActionButton struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	URL    string `json:"url,omitempty"`
}
