package config

import "time"

const (
	StoreDriverMongo  = "mongo"
	StoreDriverSQLite = "sqlite"

	LockBackendRedis = "redis"
	LockBackendMongo = "mongo"
)

const (
	DefaultStoreDriver       = StoreDriverMongo
	DefaultMongoURI          = "mongodb://localhost:27017/?replicaSet=rs0"
	DefaultMongoDatabaseName = "reservo"
	DefaultMongoConnTimeout  = 10 * time.Second
	DefaultSQLitePath        = "data/reservo.db"

	DefaultLockBackend        = LockBackendRedis
	DefaultRedisAddr          = "localhost:6379"
	DefaultRedisDB            = 0
	DefaultLockLease          = 10 * time.Second
	DefaultLockReleaseTimeout = 2 * time.Second

	DefaultChangeWindow   = 48 * time.Hour
	DefaultProposalTTL    = 48 * time.Hour
	DefaultSweepInterval  = 60 * time.Second
	DefaultSweepBatchSize = 100

	DefaultNotificationsEnabled   = false
	DefaultNotificationsTopic     = "reservation-notifications"
	DefaultNotificationsDLQTopic  = "reservation-notifications-dlq"
	DefaultNotificationsQueueSize = 1024
	DefaultNotificationsGroupID   = "reservation-notifier"

	DefaultPort = "8080"

	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultBootstrapInitialInterval = 500 * time.Millisecond
	DefaultBootstrapMaxInterval     = 10 * time.Second
	DefaultBootstrapMaxElapsed      = 2 * time.Minute

	DefaultTracingEnabled = false

	DefaultPaginationLimit = 100
)
