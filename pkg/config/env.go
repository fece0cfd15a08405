package config

const (
	EnvStoreDriver       = "STORE_DRIVER"
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"
	EnvSQLitePath        = "SQLITE_PATH"

	EnvLockBackend        = "LOCK_BACKEND"
	EnvRedisAddr          = "REDIS_ADDR"
	EnvRedisPassword      = "REDIS_PASSWORD"
	EnvRedisDB            = "REDIS_DB"
	EnvLockLease          = "LOCK_LEASE"
	EnvLockReleaseTimeout = "LOCK_RELEASE_TIMEOUT"

	EnvChangeWindow   = "CHANGE_WINDOW"
	EnvProposalTTL    = "PROPOSAL_TTL"
	EnvSweepInterval  = "SWEEP_INTERVAL"
	EnvSweepBatchSize = "SWEEP_BATCH_SIZE"

	EnvNotificationsEnabled   = "NOTIFICATIONS_ENABLED"
	EnvNotificationsTopic     = "NOTIFICATIONS_TOPIC"
	EnvNotificationsDLQTopic  = "NOTIFICATIONS_DLQ_TOPIC"
	EnvNotificationsQueueSize = "NOTIFICATIONS_QUEUE_SIZE"
	EnvNotificationsGroupID   = "NOTIFICATIONS_GROUP_ID"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvBootstrapInitialInterval = "BOOTSTRAP_INITIAL_INTERVAL"
	EnvBootstrapMaxInterval     = "BOOTSTRAP_MAX_INTERVAL"
	EnvBootstrapMaxElapsed      = "BOOTSTRAP_MAX_ELAPSED"

	EnvTracingEnabled = "TRACING_ENABLED"
)
