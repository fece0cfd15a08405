package client

import (
	"context"
	"fmt"
	"reservo/pkg/logger"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Client struct {
	Mongo *mongo.Client
	Redis *redis.Client
}

func NewClient() *Client {
	return &Client{}
}

// SetMongo connects and pings MongoDB, retrying with policy while the server is unreachable.
func (c *Client) SetMongo(log *logger.Logger, mongoURI string, mongoConnTimeout time.Duration, policy BackoffPolicy) error {
	client, err := mongo.Connect(context.Background(), options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(mongoConnTimeout).
		SetServerSelectionTimeout(mongoConnTimeout))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}

	err = policy.Retry(context.Background(), func() error {
		ctx, cancel := context.WithTimeout(context.Background(), mongoConnTimeout)
		defer cancel()
		return client.Ping(ctx, nil)
	}, func(err error, next time.Duration) {
		log.Warn("MongoDB not reachable yet, retrying", "error", err, "retry_in", next)
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("ping mongo: %w", err)
	}

	log.Info("Successfully connected to MongoDB")
	c.Mongo = client
	return nil
}

// SetRedis connects and pings Redis, retrying with policy while the server is unreachable.
func (c *Client) SetRedis(log *logger.Logger, addr, password string, db int, policy BackoffPolicy) error {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	err := policy.Retry(context.Background(), func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	}, func(err error, next time.Duration) {
		log.Warn("Redis not reachable yet, retrying", "error", err, "retry_in", next)
	})
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("ping redis: %w", err)
	}

	log.Info("Successfully connected to Redis", "addr", addr)
	c.Redis = client
	return nil
}

// Ping checks every configured backend. Used by the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	if c.Mongo != nil {
		if err := c.Mongo.Ping(ctx, nil); err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (c *Client) GracefulShutdown(log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if c.Mongo != nil {
		if err := c.Mongo.Disconnect(ctx); err != nil {
			log.Error("Failed to disconnect from MongoDB", "error", err)
		} else {
			log.Info("Disconnected from MongoDB")
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Error("Failed to close Redis client", "error", err)
		} else {
			log.Info("Closed Redis client")
		}
	}
}
