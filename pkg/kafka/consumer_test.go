package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"reservo/pkg/logger"

	"github.com/segmentio/kafka-go"
)

func newTestConsumer(reader messageReader, dlq messageWriter, handler MessageHandler) *Consumer {
	var dlqTopic string
	if dlq != nil {
		dlqTopic = "notifications.dlq"
	}
	c := newConsumer(reader, dlq, "notifications", "notifier", dlqTopic, handler, logger.Discard())
	c.fetchPolicy = fastPolicy()
	c.retryPolicy = fastPolicy()
	c.maxRetries = 2
	return c
}

func runConsumer(t *testing.T, c *Consumer) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	return cancel, done
}

func TestConsumer_HandlesAndCommits(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Topic: "notifications", Key: []byte("user-1"), Value: []byte(`{"a":1}`), Offset: 1,
			Headers: []kafka.Header{{Key: HeaderEventID, Value: []byte("evt-1")}}},
		{Topic: "notifications", Key: []byte("user-2"), Value: []byte(`{"a":2}`), Offset: 2},
	}}

	var seen []string
	c := newTestConsumer(reader, nil, func(ctx context.Context, msg Message) error {
		seen = append(seen, msg.Key)
		return nil
	})

	cancel, done := runConsumer(t, c)
	waitFor(t, func() bool { return reader.committedCount() == 2 })
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Start returned %v, want context.Canceled", err)
	}
	if len(seen) != 2 || seen[0] != "user-1" || seen[1] != "user-2" {
		t.Errorf("handled keys = %v", seen)
	}
}

func TestConsumer_RetriesTransientThenDLQ(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{{Topic: "notifications", Key: []byte("user-1"), Value: []byte("x")}}}
	dlq := &fakeWriter{}

	var calls atomic.Int32
	c := newTestConsumer(reader, dlq, func(ctx context.Context, msg Message) error {
		calls.Add(1)
		return errors.New("connection reset by peer")
	})

	cancel, done := runConsumer(t, c)
	waitFor(t, func() bool { return reader.committedCount() == 1 })
	cancel()
	<-done

	if got := calls.Load(); got != 3 {
		t.Errorf("handler calls = %d, want 3", got)
	}
	parked := dlq.written()
	if len(parked) != 1 {
		t.Fatalf("dlq messages = %d, want 1", len(parked))
	}
	if got := headerValue(parked[0], HeaderRetryCount); got != "2" {
		t.Errorf("retry count header = %q, want 2", got)
	}
	if got := headerValue(parked[0], HeaderDLQGroup); got != "notifier" {
		t.Errorf("dlq group header = %q", got)
	}
}

func TestConsumer_PermanentErrorSkipsRetries(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{{Topic: "notifications", Key: []byte("user-1"), Value: []byte("x")}}}
	dlq := &fakeWriter{}

	var calls atomic.Int32
	c := newTestConsumer(reader, dlq, func(ctx context.Context, msg Message) error {
		calls.Add(1)
		return NewPermanentError("bad payload", errors.New("unexpected field"))
	})

	cancel, done := runConsumer(t, c)
	waitFor(t, func() bool { return reader.committedCount() == 1 })
	cancel()
	<-done

	if got := calls.Load(); got != 1 {
		t.Errorf("handler calls = %d, want 1", got)
	}
	if len(dlq.written()) != 1 {
		t.Error("permanent failure should be parked in the DLQ")
	}
}

func TestConsumer_FetchErrorsBackOff(t *testing.T) {
	reader := &fakeReader{
		fetchErrs: []error{errors.New("broker not available"), errors.New("broker not available")},
		queue:     []kafka.Message{{Topic: "notifications", Key: []byte("user-1"), Value: []byte("x")}},
	}

	var calls atomic.Int32
	c := newTestConsumer(reader, nil, func(ctx context.Context, msg Message) error {
		calls.Add(1)
		return nil
	})

	cancel, done := runConsumer(t, c)
	waitFor(t, func() bool { return reader.committedCount() == 1 })
	cancel()
	<-done

	if calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1", calls.Load())
	}
}

func TestConsumer_CloseWaitsForStart(t *testing.T) {
	reader := &fakeReader{}
	c := newTestConsumer(reader, nil, func(ctx context.Context, msg Message) error { return nil })

	cancel, done := runConsumer(t, c)
	cancel()
	<-done

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !reader.closed {
		t.Error("reader should be closed")
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrConsumerClosed) {
		t.Errorf("expected ErrConsumerClosed, got %v", err)
	}
}
