package events

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"notifgate/internal/types"
)

// Normalizer maps validated envelopes into the canonical
// NotificationRequest. It owns redirect and contentType resolution and
// correlation-id synthesis. Normalization failures are distinct from
// validation failures by error code.
type Normalizer struct {
	resolver *RedirectResolver
	clock    types.Clock
}

// NewNormalizer creates a Normalizer with the given redirect resolver.
func NewNormalizer(resolver *RedirectResolver) *Normalizer {
	return &Normalizer{
		resolver: resolver,
		clock:    types.RealClock{},
	}
}

// SetClock overrides the clock for testing.
func (n *Normalizer) SetClock(c types.Clock) {
	n.clock = c
}

// Normalize converts a validated envelope into a canonical
// NotificationRequest. The validator is expected to have run first;
// required fields are defensively re-checked and surface as normalization
// errors rather than validation errors if they degenerate.
//
// sentBy is required at this stage: a missing sentBy fails normalization
// with a clear error instead of being silently defaulted.
func (n *Normalizer) Normalize(env *types.Envelope) (*types.NotificationRequest, error) {
	if env == nil || env.Payload == nil || env.Payload.Notification == nil {
		return nil, types.NewAppError(
			types.ErrCodeNormalizationInvalidField,
			"envelope degenerated after validation: payload.notification missing",
			nil,
		)
	}

	p := env.Payload
	content := p.Notification

	if strings.TrimSpace(content.Title) == "" || strings.TrimSpace(content.Body) == "" {
		return nil, types.NewAppError(
			types.ErrCodeNormalizationInvalidField,
			"envelope degenerated after validation: notification title or body missing",
			nil,
		)
	}

	if strings.TrimSpace(p.SentBy) == "" {
		return nil, types.NewAppError(
			types.ErrCodeNormalizationMissingSentBy,
			fmt.Sprintf("event %q requires sender attribution: payload.sentBy is missing", env.EventType),
			nil,
		)
	}

	req := &types.NotificationRequest{
		Title:         content.Title,
		Body:          content.Body,
		Type:          content.Type,
		Priority:      content.Priority,
		Channels:      append([]types.ChannelType(nil), content.Channels...),
		Target:        p.Target,
		SourceService: p.SourceService,
		ContentID:     p.ContentID,
		SentBy:        p.SentBy,
		CorrelationID: n.correlationID(env),
		ScheduledAt:   content.ScheduledAt,
		ExpiresAt:     content.ExpiresAt,
		ActionButtons: append([]types.ActionButton(nil), content.ActionButtons...),
		Data:          mergeData(content.Data),
		RedirectURL:   n.resolver.Resolve(p.RedirectURL, p.SourceService, p.ContentID),
		ContentType:   resolveContentType(p.ContentType, content.Type),
	}

	return req, nil
}

// correlationID returns the envelope's correlation id if present, otherwise
// synthesizes one ("corr-<timestamp>-<random>") for downstream tracing.
func (n *Normalizer) correlationID(env *types.Envelope) string {
	if env.CorrelationID != "" {
		return env.CorrelationID
	}
	random := strings.SplitN(uuid.New().String(), "-", 2)[0]
	return fmt.Sprintf("corr-%d-%s", n.clock.Now().UnixMilli(), random)
}

// resolveContentType applies the same precedence as redirect resolution:
// an explicit payload.contentType wins, else the type is inferred from the
// notification type.
func resolveContentType(explicit string, notifType types.NotificationType) string {
	if explicit != "" {
		return explicit
	}
	return string(notifType)
}

// mergeData copies the canonical notification.data map. Legacy payload.data
// is rejected upstream by the validator, so there is nothing to merge from
// it.
func mergeData(data map[string]any) map[string]any {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
