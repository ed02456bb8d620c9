package consumer

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"notifgate/internal/types"
)

// Publisher publishes a dead letter to the DLQ topic. Implemented by
// broker.Producer.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Archive persists dead letters for operator inspection. Implemented by
// db.DeadLetterRepository.
type Archive interface {
	Insert(ctx context.Context, rec *types.DeadLetterRecord) error
}

// DeadLetterSink routes unprocessable messages to the DLQ topic and
// archives them in the store. Routing failures are logged but never
// propagated: a broken sink must not halt consumption.
type DeadLetterSink struct {
	publisher Publisher
	archive   Archive
	outcomes  OutcomeEmitter
	clock     types.Clock
	logger    types.Logger
}

// NewDeadLetterSink creates a sink over the given publisher and archive.
// Either collaborator may be nil; the sink uses whichever are present.
func NewDeadLetterSink(publisher Publisher, archive Archive, logger types.Logger) *DeadLetterSink {
	return &DeadLetterSink{
		publisher: publisher,
		archive:   archive,
		clock:     types.RealClock{},
		logger:    logger,
	}
}

// SetClock replaces the sink's clock. Intended for tests.
func (s *DeadLetterSink) SetClock(c types.Clock) {
	s.clock = c
}

// SetOutcomes attaches an outcome emitter so subscribers can observe
// dead-lettering. Optional.
func (s *DeadLetterSink) SetOutcomes(e OutcomeEmitter) {
	s.outcomes = e
}

// Route records one dead letter carrying the original raw message.
func (s *DeadLetterSink) Route(ctx context.Context, original []byte, reason types.DeadLetterReason, detail, correlationID string) {
	rec := &types.DeadLetterRecord{
		ID:              uuid.NewString(),
		OriginalMessage: original,
		Reason:          reason,
		Detail:          detail,
		CorrelationID:   correlationID,
		Timestamp:       s.clock.Now(),
	}

	s.logger.Warn("routing message to dead letter sink",
		"dead_letter_id", rec.ID,
		"reason", string(reason),
		"detail", detail,
		"correlation_id", correlationID,
	)

	if s.publisher != nil {
		body, err := json.Marshal(rec)
		if err != nil {
			s.logger.Error("failed to encode dead letter", "dead_letter_id", rec.ID, "error", err.Error())
		} else if err := s.publisher.Publish(ctx, []byte(correlationID), body); err != nil {
			s.logger.Error("failed to publish dead letter", "dead_letter_id", rec.ID, "error", err.Error())
		}
	}

	if s.archive != nil {
		if err := s.archive.Insert(ctx, rec); err != nil {
			s.logger.Error("failed to archive dead letter", "dead_letter_id", rec.ID, "error", err.Error())
		}
	}

	if s.outcomes != nil {
		s.outcomes.Emit(ctx, types.OutcomeEvent{
			ID:            uuid.NewString(),
			Type:          types.OutcomeDeadLettered,
			CorrelationID: correlationID,
			OccurredAt:    rec.Timestamp,
			Data: map[string]any{
				"dead_letter_id": rec.ID,
				"reason":         string(reason),
			},
		})
	}
}
