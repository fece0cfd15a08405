package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reservo/pkg/client"
	kafka_config "reservo/pkg/kafka/config"
	"reservo/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// messageReader is the part of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader      messageReader
	dlqWriter   messageWriter
	topic       string
	groupID     string
	dlqTopic    string
	maxRetries  int
	fetchPolicy client.BackoffPolicy
	retryPolicy client.BackoffPolicy
	handler     MessageHandler
	middleware  []ConsumerMiddleware
	log         *logger.Logger
	closed      bool
	mu          sync.RWMutex
	wg          sync.WaitGroup
}

type ConsumerMiddleware func(ctx context.Context, msg Message, next MessageHandler) error

func NewConsumer(cfg *kafka_config.Config, topic string, groupID string, dlqTopic string, handler MessageHandler, log *logger.Logger) (*Consumer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	if groupID == "" {
		return nil, fmt.Errorf("group ID cannot be empty")
	}

	if handler == nil {
		return nil, fmt.Errorf("message handler cannot be nil")
	}

	log = log.Component("kafka-consumer")

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		Topic:             topic,
		GroupID:           groupID,
		MinBytes:          cfg.ConsumerMinBytes,
		MaxBytes:          cfg.ConsumerMaxBytes,
		MaxWait:           cfg.ConsumerMaxWait,
		CommitInterval:    cfg.ConsumerCommitInterval,
		HeartbeatInterval: cfg.ConsumerHeartbeatInterval,
		SessionTimeout:    cfg.ConsumerSessionTimeout,
		RebalanceTimeout:  cfg.ConsumerRebalanceTimeout,
		StartOffset:       cfg.ConsumerStartOffset,
		Logger:            kafka.LoggerFunc(log.Printf),
		ErrorLogger:       kafka.LoggerFunc(log.Errorf),
	})

	var dlqWriter messageWriter
	if dlqTopic != "" {
		dlqWriter = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        dlqTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			MaxAttempts:  3,
			Logger:       kafka.LoggerFunc(log.Printf),
			ErrorLogger:  kafka.LoggerFunc(log.Errorf),
		}
	}

	consumer := newConsumer(reader, dlqWriter, topic, groupID, dlqTopic, handler, log)
	consumer.maxRetries = cfg.ConsumerMaxRetries
	consumer.retryPolicy = client.BackoffPolicy{
		InitialInterval: cfg.ConsumerRetryInitialInterval,
		MaxInterval:     cfg.ConsumerRetryMaxInterval,
	}
	consumer.fetchPolicy = client.BackoffPolicy{
		InitialInterval: cfg.ConsumerRetryInitialInterval,
		MaxInterval:     cfg.ConsumerFetchMaxInterval,
	}
	return consumer, nil
}

func newConsumer(reader messageReader, dlqWriter messageWriter, topic, groupID, dlqTopic string, handler MessageHandler, log *logger.Logger) *Consumer {
	return &Consumer{
		reader:      reader,
		dlqWriter:   dlqWriter,
		topic:       topic,
		groupID:     groupID,
		dlqTopic:    dlqTopic,
		maxRetries:  kafka_config.DefaultConsumerMaxRetries,
		fetchPolicy: client.BackoffPolicy{InitialInterval: time.Second, MaxInterval: 30 * time.Second},
		retryPolicy: client.BackoffPolicy{InitialInterval: 100 * time.Millisecond, MaxInterval: 5 * time.Second},
		handler:     handler,
		middleware:  make([]ConsumerMiddleware, 0),
		log:         log,
	}
}

func (c *Consumer) Use(middleware ConsumerMiddleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middleware = append(c.middleware, middleware)
}

// Start consumes until ctx is done. Fetch errors back off exponentially; a
// message is committed once it was handled or parked in the DLQ.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConsumerClosed
	}
	c.wg.Add(1)
	c.mu.RUnlock()
	defer c.wg.Done()

	for {
		kafkaMsg, err := c.fetch(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		msg := c.convertMessage(kafkaMsg)
		if err := c.processMessage(ctx, msg); err != nil {
			c.log.Error("Failed to process message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"event_id", msg.GetEventID(),
				"error", err,
			)
		}

		if err := c.reader.CommitMessages(ctx, kafkaMsg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("Failed to commit offset", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) fetch(ctx context.Context) (kafka.Message, error) {
	var kafkaMsg kafka.Message
	err := c.fetchPolicy.Retry(ctx, func() error {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return client.Permanent(err)
			}
			return err
		}
		kafkaMsg = m
		return nil
	}, func(err error, next time.Duration) {
		c.log.Warn("Failed to fetch message, backing off", "error", err, "retry_in", next)
	})
	return kafkaMsg, err
}

// processMessage runs the handler chain, retrying transient failures with
// backoff up to maxRetries. Whatever still fails goes to the DLQ.
func (c *Consumer) processMessage(ctx context.Context, msg Message) error {
	c.mu.RLock()
	handler := c.handler
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := handler
		handler = func(ctx context.Context, m Message) error {
			return mw(ctx, m, next)
		}
	}
	c.mu.RUnlock()

	err := c.retryPolicy.Retry(ctx, func() error {
		err := handler(ctx, msg)
		if err == nil {
			return nil
		}
		if !ShouldRetry(err, msg.GetRetryCount(), c.maxRetries) {
			return client.Permanent(err)
		}
		msg.IncrementRetryCount()
		return err
	}, func(err error, next time.Duration) {
		c.log.Warn("Retrying message",
			"event_id", msg.GetEventID(),
			"attempt", msg.GetRetryCount(),
			"max_retries", c.maxRetries,
			"retry_in", next,
			"error", err,
		)
	})
	if err == nil {
		return nil
	}

	if c.dlqWriter != nil {
		if dlqErr := c.sendToDLQ(context.WithoutCancel(ctx), msg, err); dlqErr != nil {
			c.log.Error("Failed to send message to DLQ", "error", dlqErr, "original_error", err)
		} else {
			c.log.Warn("Message sent to DLQ", "dlq_topic", c.dlqTopic, "retries", msg.GetRetryCount(), "error", err)
		}
	}

	return err
}

func (c *Consumer) sendToDLQ(ctx context.Context, msg Message, originalErr error) error {
	headers := make(map[string]string, len(msg.Headers)+4)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	now := time.Now()
	headers[HeaderOriginalTopic] = c.topic
	headers[HeaderDLQError] = originalErr.Error()
	headers[HeaderDLQTimestamp] = now.Format(time.RFC3339)
	headers[HeaderDLQGroup] = c.groupID
	msg.Headers = headers

	return c.dlqWriter.WriteMessages(ctx, toKafkaMessage(msg, now))
}

func (c *Consumer) convertMessage(kafkaMsg kafka.Message) Message {
	msg := Message{
		Key:       string(kafkaMsg.Key),
		Value:     kafkaMsg.Value,
		Headers:   make(map[string]string),
		Topic:     kafkaMsg.Topic,
		Partition: kafkaMsg.Partition,
		Offset:    kafkaMsg.Offset,
		Timestamp: kafkaMsg.Time,
	}

	for _, header := range kafkaMsg.Headers {
		msg.Headers[header.Key] = string(header.Value)
	}

	return msg
}

// Close waits for Start to return, then closes the reader and DLQ writer.
// Cancel the context passed to Start first.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()

	var err error
	if c.reader != nil {
		err = c.reader.Close()
	}

	if c.dlqWriter != nil {
		dlqErr := c.dlqWriter.Close()
		if err == nil {
			err = dlqErr
		}
	}

	return err
}
