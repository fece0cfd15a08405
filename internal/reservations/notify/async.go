package notify

import (
	"context"
	"sync"

	"reservo/pkg/logger"
	"reservo/pkg/model"
)

const DefaultQueueSize = 256

// AsyncEmitter decouples callers from delivery latency. Emit enqueues and
// returns; Run forwards queued events to the next emitter until the context
// is done or Close is called, then drains what is left.
type AsyncEmitter struct {
	next  Emitter
	queue chan model.Event
	log   *logger.Logger

	mu      sync.RWMutex
	closed  bool
	running bool
	done    chan struct{}
	stop    chan struct{}
}

func NewAsyncEmitter(next Emitter, size int, log *logger.Logger) *AsyncEmitter {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &AsyncEmitter{
		next:  next,
		queue: make(chan model.Event, size),
		log:   log.Component("notify-async"),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
	}
}

func (e *AsyncEmitter) Emit(_ context.Context, event model.Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrEmitterClosed
	}

	select {
	case e.queue <- withDefaults(event):
		return nil
	default:
		e.log.Warn("Notification dropped, queue full", "type", event.Type, "user_id", event.UserID)
		return ErrQueueFull
	}
}

// Run blocks until ctx is done or Close is called. Call it once.
func (e *AsyncEmitter) Run(ctx context.Context) error {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	defer close(e.done)
	for {
		select {
		case event := <-e.queue:
			e.deliver(ctx, event)
		case <-e.stop:
			e.drain(context.WithoutCancel(ctx))
			return nil
		case <-ctx.Done():
			e.markClosed()
			e.drain(context.WithoutCancel(ctx))
			return nil
		}
	}
}

// Close stops accepting events and waits for Run to flush the queue. Without
// a running worker the queue is flushed on the caller's goroutine.
func (e *AsyncEmitter) Close() {
	if e.markClosed() {
		close(e.stop)
	}

	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()
	if !running {
		e.drain(context.Background())
		return
	}
	<-e.done
}

// Pending reports the number of queued events.
func (e *AsyncEmitter) Pending() int {
	return len(e.queue)
}

func (e *AsyncEmitter) markClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.closed = true
	return true
}

func (e *AsyncEmitter) drain(ctx context.Context) {
	for {
		select {
		case event := <-e.queue:
			e.deliver(ctx, event)
		default:
			return
		}
	}
}

func (e *AsyncEmitter) deliver(ctx context.Context, event model.Event) {
	if err := e.next.Emit(ctx, event); err != nil {
		e.log.Error("Failed to deliver notification",
			"event_id", event.EventID,
			"type", event.Type,
			"user_id", event.UserID,
			"error", err,
		)
	}
}
