package notify

import (
	"context"
	"errors"
	"fmt"

	"reservo/pkg/kafka"
	"reservo/pkg/logger"
	"reservo/pkg/model"
	"reservo/pkg/sanitizer"

	"github.com/google/uuid"
)

const Source = "reservations"

var (
	// ErrQueueFull is returned by AsyncEmitter when its buffer has no room.
	ErrQueueFull = errors.New("notification queue is full")

	ErrEmitterClosed = errors.New("notification emitter is closed")
)

// Emitter hands an event to the notification pipeline. Delivery is best
// effort; callers log a failed Emit and carry on.
type Emitter interface {
	Emit(ctx context.Context, event model.Event) error
}

// Publisher is the subset of *kafka.Producer the Kafka emitter needs.
type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// KafkaEmitter publishes events as JSON keyed by recipient, so one user's
// notifications stay ordered on a single partition.
type KafkaEmitter struct {
	publisher Publisher
	log       *logger.Logger
}

func NewKafkaEmitter(publisher Publisher, log *logger.Logger) *KafkaEmitter {
	return &KafkaEmitter{publisher: publisher, log: log.Component("notify")}
}

func (e *KafkaEmitter) Emit(ctx context.Context, event model.Event) error {
	event = withDefaults(event)

	msg, err := kafka.NewMessage().
		WithKey(event.UserID).
		WithEventID(event.EventID).
		WithEventType(event.Type).
		WithSource(Source).
		WithTimestamp(event.OccurredAt).
		WithValue(event).
		Build()
	if err != nil {
		return fmt.Errorf("build notification message: %w", err)
	}

	if err := e.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish notification %s: %w", event.EventID, err)
	}

	e.log.Debug("Notification published",
		"event_id", event.EventID,
		"type", event.Type,
		"user_id", event.UserID,
	)
	return nil
}

// LogEmitter writes events to the log. Used when Kafka is disabled.
type LogEmitter struct {
	log *logger.Logger
}

func NewLogEmitter(log *logger.Logger) *LogEmitter {
	return &LogEmitter{log: log.Component("notify")}
}

func (e *LogEmitter) Emit(_ context.Context, event model.Event) error {
	event = withDefaults(event)
	e.log.Info("Notification",
		"event_id", event.EventID,
		"type", event.Type,
		"user_id", event.UserID,
		"related_id", event.RelatedID,
		"message", event.Message,
	)
	return nil
}

func withDefaults(event model.Event) model.Event {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	event.Message = sanitizer.SanitizeMessage(event.Message)
	return event
}
