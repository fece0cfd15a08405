package kafka_middleware

import (
	"context"
	"time"

	"reservo/pkg/kafka"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Metrics holds Kafka operation metrics, labelled by topic and result.
type Metrics struct {
	Published       *prometheus.CounterVec
	PublishDuration *prometheus.HistogramVec
	Consumed        *prometheus.CounterVec
	ConsumeDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kafka",
			Subsystem: "producer",
			Name:      "messages_total",
			Help:      "Messages published, by topic and result.",
		}, []string{"topic", "result"}),
		PublishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kafka",
			Subsystem: "producer",
			Name:      "publish_duration_seconds",
			Help:      "Time spent publishing a message.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
		Consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kafka",
			Subsystem: "consumer",
			Name:      "messages_total",
			Help:      "Handler invocations, by topic and result.",
		}, []string{"topic", "result"}),
		ConsumeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kafka",
			Subsystem: "consumer",
			Name:      "handle_duration_seconds",
			Help:      "Time spent handling a message.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
	}
	if reg != nil {
		reg.MustRegister(m.Published, m.PublishDuration, m.Consumed, m.ConsumeDuration)
	}
	return m
}

// ProducerMiddleware tracks producer metrics
func (m *Metrics) ProducerMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()
		err := next(ctx, msg)
		m.PublishDuration.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
		m.Published.WithLabelValues(msg.Topic, result(err)).Inc()
		return err
	}
}

// ConsumerMiddleware tracks consumer metrics
func (m *Metrics) ConsumerMiddleware() kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)
		m.ConsumeDuration.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
		m.Consumed.WithLabelValues(msg.Topic, result(err)).Inc()
		return err
	}
}

func result(err error) string {
	if err != nil {
		return resultFailure
	}
	return resultSuccess
}
