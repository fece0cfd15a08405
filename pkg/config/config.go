package config

import (
	"fmt"
	"os"
	"regexp"
	"reservo/pkg/client"
	"reservo/pkg/logger"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	StoreDriver       string
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration
	SQLitePath        string

	LockBackend        string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	LockLease          time.Duration
	LockReleaseTimeout time.Duration

	ChangeWindow   time.Duration
	ProposalTTL    time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int

	NotificationsEnabled   bool
	NotificationsTopic     string
	NotificationsDLQTopic  string
	NotificationsQueueSize int
	NotificationsGroupID   string

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BootstrapInitialInterval time.Duration
	BootstrapMaxInterval     time.Duration
	BootstrapMaxElapsed      time.Duration

	TracingEnabled bool

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := &Config{
		StoreDriver:       strings.ToLower(getEnvStr(EnvStoreDriver, DefaultStoreDriver)),
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),
		SQLitePath:        getEnvStr(EnvSQLitePath, DefaultSQLitePath),

		LockBackend:        strings.ToLower(getEnvStr(EnvLockBackend, DefaultLockBackend)),
		RedisAddr:          getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword:      getEnvStr(EnvRedisPassword, ""),
		RedisDB:            getEnvNum(EnvRedisDB, DefaultRedisDB),
		LockLease:          getEnvDuration(EnvLockLease, DefaultLockLease),
		LockReleaseTimeout: getEnvDuration(EnvLockReleaseTimeout, DefaultLockReleaseTimeout),

		ChangeWindow:   getEnvDuration(EnvChangeWindow, DefaultChangeWindow),
		ProposalTTL:    getEnvDuration(EnvProposalTTL, DefaultProposalTTL),
		SweepInterval:  getEnvDuration(EnvSweepInterval, DefaultSweepInterval),
		SweepBatchSize: getEnvNum(EnvSweepBatchSize, DefaultSweepBatchSize),

		NotificationsEnabled:   getEnvBool(EnvNotificationsEnabled, DefaultNotificationsEnabled),
		NotificationsTopic:     getEnvStr(EnvNotificationsTopic, DefaultNotificationsTopic),
		NotificationsDLQTopic:  getEnvStr(EnvNotificationsDLQTopic, DefaultNotificationsDLQTopic),
		NotificationsQueueSize: getEnvNum(EnvNotificationsQueueSize, DefaultNotificationsQueueSize),
		NotificationsGroupID:   getEnvStr(EnvNotificationsGroupID, DefaultNotificationsGroupID),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		BootstrapInitialInterval: getEnvDuration(EnvBootstrapInitialInterval, DefaultBootstrapInitialInterval),
		BootstrapMaxInterval:     getEnvDuration(EnvBootstrapMaxInterval, DefaultBootstrapMaxInterval),
		BootstrapMaxElapsed:      getEnvDuration(EnvBootstrapMaxElapsed, DefaultBootstrapMaxElapsed),

		TracingEnabled: getEnvBool(EnvTracingEnabled, DefaultTracingEnabled),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	err := cfg.Validate()
	if err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// BootstrapPolicy is the retry policy used while connecting to backing stores at startup.
func (cfg *Config) BootstrapPolicy() client.BackoffPolicy {
	return client.BackoffPolicy{
		InitialInterval: cfg.BootstrapInitialInterval,
		MaxInterval:     cfg.BootstrapMaxInterval,
		MaxElapsedTime:  cfg.BootstrapMaxElapsed,
	}
}

func (cfg *Config) SetMongo() {
	if err := cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout, cfg.BootstrapPolicy()); err != nil {
		cfg.Log.Fatal("Failed to connect to MongoDB", "error", err, "uri", redactMongoURI(cfg.MongoURI))
	}
}

func (cfg *Config) SetRedis() {
	if err := cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.BootstrapPolicy()); err != nil {
		cfg.Log.Fatal("Failed to connect to Redis", "error", err, "addr", cfg.RedisAddr)
	}
}

// NeedsMongo reports whether either the durable store or the lock store is MongoDB.
func (cfg *Config) NeedsMongo() bool {
	return cfg.StoreDriver == StoreDriverMongo || cfg.LockBackend == LockBackendMongo
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StoreDriver {
	case StoreDriverMongo, StoreDriverSQLite:
	default:
		errors = append(errors, fmt.Sprintf("StoreDriver must be one of [mongo, sqlite], got: %s", cfg.StoreDriver))
	}
	switch cfg.LockBackend {
	case LockBackendRedis, LockBackendMongo:
	default:
		errors = append(errors, fmt.Sprintf("LockBackend must be one of [redis, mongo], got: %s", cfg.LockBackend))
	}

	if cfg.NeedsMongo() {
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
		if cfg.MongoConnTimeout <= 0 {
			errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
		}
	}
	if cfg.StoreDriver == StoreDriverSQLite && strings.TrimSpace(cfg.SQLitePath) == "" {
		errors = append(errors, "SQLitePath cannot be empty when StoreDriver is sqlite")
	}
	if cfg.LockBackend == LockBackendRedis && cfg.RedisAddr == "" {
		errors = append(errors, "RedisAddr cannot be empty when LockBackend is redis")
	}
	if cfg.RedisDB < 0 {
		errors = append(errors, fmt.Sprintf("RedisDB cannot be negative, got: %d", cfg.RedisDB))
	}

	if cfg.LockLease <= 0 {
		errors = append(errors, fmt.Sprintf("LockLease must be positive, got: %s", cfg.LockLease))
	}
	if cfg.LockReleaseTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("LockReleaseTimeout must be positive, got: %s", cfg.LockReleaseTimeout))
	}
	if cfg.ChangeWindow <= 0 {
		errors = append(errors, fmt.Sprintf("ChangeWindow must be positive, got: %s", cfg.ChangeWindow))
	}
	if cfg.ProposalTTL <= 0 {
		errors = append(errors, fmt.Sprintf("ProposalTTL must be positive, got: %s", cfg.ProposalTTL))
	}
	if cfg.SweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("SweepInterval must be positive, got: %s", cfg.SweepInterval))
	}
	if cfg.SweepBatchSize <= 0 {
		errors = append(errors, fmt.Sprintf("SweepBatchSize must be positive, got: %d", cfg.SweepBatchSize))
	}

	if cfg.NotificationsEnabled && cfg.NotificationsTopic == "" {
		errors = append(errors, "NotificationsTopic cannot be empty when notifications are enabled")
	}
	if cfg.NotificationsQueueSize <= 0 {
		errors = append(errors, fmt.Sprintf("NotificationsQueueSize must be positive, got: %d", cfg.NotificationsQueueSize))
	}

	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if cfg.BootstrapInitialInterval <= 0 {
		errors = append(errors, fmt.Sprintf("BootstrapInitialInterval must be positive, got: %s", cfg.BootstrapInitialInterval))
	}
	if cfg.BootstrapMaxInterval < cfg.BootstrapInitialInterval {
		errors = append(errors, fmt.Sprintf("BootstrapMaxInterval (%s) must be >= BootstrapInitialInterval (%s)", cfg.BootstrapMaxInterval, cfg.BootstrapInitialInterval))
	}
	if cfg.BootstrapMaxElapsed < 0 {
		errors = append(errors, fmt.Sprintf("BootstrapMaxElapsed cannot be negative, got: %s", cfg.BootstrapMaxElapsed))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"store_driver", cfg.StoreDriver,
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"sqlite_path", cfg.SQLitePath,
		"lock_backend", cfg.LockBackend,
		"redis_addr", cfg.RedisAddr,
		"redis_password_set", cfg.RedisPassword != "",
		"redis_db", cfg.RedisDB,
		"lock_lease", cfg.LockLease,
		"lock_release_timeout", cfg.LockReleaseTimeout,
		"change_window", cfg.ChangeWindow,
		"proposal_ttl", cfg.ProposalTTL,
		"sweep_interval", cfg.SweepInterval,
		"sweep_batch_size", cfg.SweepBatchSize,
		"notifications_enabled", cfg.NotificationsEnabled,
		"notifications_topic", cfg.NotificationsTopic,
		"notifications_dlq_topic", cfg.NotificationsDLQTopic,
		"notifications_queue_size", cfg.NotificationsQueueSize,
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"bootstrap_initial_interval", cfg.BootstrapInitialInterval,
		"bootstrap_max_interval", cfg.BootstrapMaxInterval,
		"bootstrap_max_elapsed", cfg.BootstrapMaxElapsed,
		"tracing_enabled", cfg.TracingEnabled,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
