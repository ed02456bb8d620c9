// Package events implements the validation and normalization stages of the
// consumption pipeline. Validation checks a raw envelope against the
// canonical schema; normalization maps a validated envelope into the
// canonical NotificationRequest, resolving redirect URLs and tracing fields.
package events

import (
	"fmt"
	"regexp"
	"strings"

	"notifgate/internal/types"
)

// eventTypePattern enforces the "{service}.{Name}" shape of eventType.
var eventTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*\.[A-Za-z][A-Za-z0-9]*$`)

// FieldError describes a single schema violation found during validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a raw envelope against the canonical schema. It returns
// the full list of violations, nil if the envelope is valid. Pure function:
// no side effects on the envelope.
//
// Deprecated shapes (notification.targetUsers, notification.targetRoles,
// payload.data) are hard failures with errors naming the deprecated field
// and its replacement; there is no silent migration. On failure the caller
// must route the original message to the dead-letter sink with reason
// "validation failed" and the full error list.
func Validate(env *types.Envelope) []FieldError {
	var errs []FieldError

	if env == nil {
		return []FieldError{{Field: "event", Message: "event is required"}}
	}

	if env.EventType == "" {
		errs = append(errs, FieldError{Field: "eventType", Message: "eventType is required"})
	} else if !eventTypePattern.MatchString(env.EventType) {
		errs = append(errs, FieldError{
			Field:   "eventType",
			Message: fmt.Sprintf("eventType %q must match the \"{service}.{Name}\" format", env.EventType),
		})
	}

	if env.Payload == nil {
		errs = append(errs, FieldError{Field: "payload", Message: "payload is required"})
		return errs
	}

	errs = append(errs, validatePayload(env.Payload)...)
	return errs
}

func validatePayload(p *types.EventPayload) []FieldError {
	var errs []FieldError

	if p.Data != nil {
		errs = append(errs, FieldError{
			Field:   "payload.data",
			Message: "payload.data is deprecated; move notification data to payload.notification.data",
		})
	}

	if p.SourceService == "" {
		errs = append(errs, FieldError{Field: "payload.sourceService", Message: "payload.sourceService is required"})
	}
	if p.ContentID == "" {
		errs = append(errs, FieldError{Field: "payload.contentId", Message: "payload.contentId is required"})
	}

	n := p.Notification
	if n == nil {
		errs = append(errs, FieldError{Field: "payload.notification", Message: "payload.notification is required"})
		return errs
	}

	if n.TargetUsers != nil {
		errs = append(errs, FieldError{
			Field:   "payload.notification.targetUsers",
			Message: "notification.targetUsers is deprecated; use payload.target.userIds",
		})
	}
	if n.TargetRoles != nil {
		errs = append(errs, FieldError{
			Field:   "payload.notification.targetRoles",
			Message: "notification.targetRoles is deprecated; use payload.target.roles",
		})
	}

	if strings.TrimSpace(n.Title) == "" {
		errs = append(errs, FieldError{Field: "payload.notification.title", Message: "notification.title is required"})
	} else if len(n.Title) > types.MaxTitleLength {
		errs = append(errs, FieldError{
			Field:   "payload.notification.title",
			Message: fmt.Sprintf("notification.title exceeds %d characters", types.MaxTitleLength),
		})
	}

	if strings.TrimSpace(n.Body) == "" {
		errs = append(errs, FieldError{Field: "payload.notification.body", Message: "notification.body is required"})
	} else if len(n.Body) > types.MaxBodyLength {
		errs = append(errs, FieldError{
			Field:   "payload.notification.body",
			Message: fmt.Sprintf("notification.body exceeds %d characters", types.MaxBodyLength),
		})
	}

	if n.Type == "" {
		errs = append(errs, FieldError{Field: "payload.notification.type", Message: "notification.type is required"})
	} else if !types.ValidNotificationType(n.Type) {
		errs = append(errs, FieldError{
			Field:   "payload.notification.type",
			Message: fmt.Sprintf("notification.type %q is not a known notification type", n.Type),
		})
	}

	if n.Priority == "" {
		errs = append(errs, FieldError{Field: "payload.notification.priority", Message: "notification.priority is required"})
	} else if !n.Priority.Valid() {
		errs = append(errs, FieldError{
			Field:   "payload.notification.priority",
			Message: fmt.Sprintf("notification.priority %q is not one of urgent, high, normal, low", n.Priority),
		})
	}

	if len(n.Channels) == 0 {
		errs = append(errs, FieldError{Field: "payload.notification.channels", Message: "notification.channels must be a non-empty list"})
	} else {
		for _, ch := range n.Channels {
			if !ch.Valid() {
				errs = append(errs, FieldError{
					Field:   "payload.notification.channels",
					Message: fmt.Sprintf("channel %q is not one of push, in-app", ch),
				})
			}
		}
	}

	return errs
}

// ValidationError converts a violation list into the AppError raised for
// dead-letter routing.
func ValidationError(errs []FieldError) *types.AppError {
	fields := make([]string, 0, len(errs))
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
		msgs = append(msgs, e.Error())
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationInvalidField,
		"event failed schema validation",
		nil,
		map[string]any{"fields": fields, "errors": msgs},
	)
}
