package kafka_middleware

import (
	"context"
	"errors"
	"testing"

	"reservo/pkg/kafka"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestProducerMiddleware_CountsByResult(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	mw := m.ProducerMiddleware()

	ok := func(ctx context.Context, msg kafka.Message) error { return nil }
	fail := func(ctx context.Context, msg kafka.Message) error { return errors.New("broker down") }

	msg := kafka.Message{Topic: "notifications", Key: "user-1", Value: []byte("{}")}
	_ = mw(context.Background(), msg, ok)
	_ = mw(context.Background(), msg, ok)
	if err := mw(context.Background(), msg, fail); err == nil {
		t.Fatal("expected error to propagate")
	}

	if got := testutil.ToFloat64(m.Published.WithLabelValues("notifications", resultSuccess)); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Published.WithLabelValues("notifications", resultFailure)); got != 1 {
		t.Errorf("failure count = %v, want 1", got)
	}
}

func TestConsumerMiddleware_CountsByResult(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	mw := m.ConsumerMiddleware()

	msg := kafka.Message{Topic: "notifications"}
	_ = mw(context.Background(), msg, func(ctx context.Context, msg kafka.Message) error {
		return errors.New("handler failed")
	})

	if got := testutil.ToFloat64(m.Consumed.WithLabelValues("notifications", resultFailure)); got != 1 {
		t.Errorf("failure count = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.ConsumeDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestNewMetrics_NilRegisterer(t *testing.T) {
	m := NewMetrics(nil)
	if m.Published == nil || m.Consumed == nil {
		t.Fatal("collectors should be created without a registerer")
	}
}
