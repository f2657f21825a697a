package events

import (
	"context"

	"go.uber.org/zap"
)

// LogHandler returns a subscriber that writes every event to the structured
// log. It is the default sink when no external consumer is wired.
func LogHandler(logger *zap.Logger) EventHandler {
	return func(_ context.Context, event Event) error {
		logger.Info("event published",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Time("event_time", event.Timestamp),
			zap.Any("payload", event.Payload),
		)
		return nil
	}
}

// AllTypes lists every event type the engine emits, for subscribers that
// want the full stream.
func AllTypes() []EventType {
	return []EventType{
		EventBreachDetected,
		EventBreachPredicted,
		EventEscalationExecuted,
		EventSweepCompleted,
		EventPolicySetRefreshed,
	}
}
