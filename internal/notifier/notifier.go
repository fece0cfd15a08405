// Package notifier relays reservation events from Kafka to a delivery Handler.
// Delivery itself (email, push) lives behind the Handler interface.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"reservo/pkg/kafka"
	"reservo/pkg/logger"
	"reservo/pkg/model"
)

const DefaultDedupTTL = 24 * time.Hour

// Handler delivers one event to its recipient. Returning an error wrapped with
// kafka.NewPermanentError sends the message straight to the DLQ; any other
// error is retried.
type Handler interface {
	Handle(ctx context.Context, event model.Event) error
}

type HandlerFunc func(ctx context.Context, event model.Event) error

func (f HandlerFunc) Handle(ctx context.Context, event model.Event) error {
	return f(ctx, event)
}

// LogHandler records deliveries in the service log.
type LogHandler struct {
	log *logger.Logger
}

func NewLogHandler(log *logger.Logger) *LogHandler {
	return &LogHandler{log: log.Component("delivery")}
}

func (h *LogHandler) Handle(_ context.Context, event model.Event) error {
	h.log.Info("Notification delivered",
		"event_id", event.EventID,
		"type", event.Type,
		"user_id", event.UserID,
		"related_id", event.RelatedID,
		"message", event.Message,
	)
	return nil
}

// Relay turns Kafka messages into events. Redelivered events already handled
// within the dedup TTL are acknowledged without calling the handler again.
type Relay struct {
	handler Handler
	seen    *ristretto.Cache
	ttl     time.Duration
	log     *logger.Logger
}

func NewRelay(handler Handler, dedupTTL time.Duration, log *logger.Logger) (*Relay, error) {
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if dedupTTL <= 0 {
		dedupTTL = DefaultDedupTTL
	}

	seen, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1e4,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create dedup cache: %w", err)
	}

	return &Relay{
		handler: handler,
		seen:    seen,
		ttl:     dedupTTL,
		log:     log.Component("relay"),
	}, nil
}

// HandleMessage is the kafka.MessageHandler for the notifications topic.
func (r *Relay) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var event model.Event
	if err := msg.DecodeValue(&event); err != nil {
		return kafka.NewPermanentError("malformed notification payload", err)
	}
	if event.UserID == "" || event.Type == "" {
		return kafka.NewPermanentError("notification is missing recipient or type", nil).
			WithDetail("offset", msg.Offset)
	}
	if event.EventID == "" {
		event.EventID = msg.GetEventID()
	}

	if event.EventID != "" {
		if _, dup := r.seen.Get(event.EventID); dup {
			r.log.Debug("Skipping duplicate notification", "event_id", event.EventID, "type", event.Type)
			return nil
		}
	}

	if err := r.handler.Handle(ctx, event); err != nil {
		return err
	}

	if event.EventID != "" {
		r.seen.SetWithTTL(event.EventID, struct{}{}, 1, r.ttl)
	}
	return nil
}

func (r *Relay) Close() {
	r.seen.Close()
}
