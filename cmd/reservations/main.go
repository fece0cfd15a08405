package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reservo/internal/reservations/handler"
	"reservo/internal/reservations/lock"
	"reservo/internal/reservations/metrics"
	"reservo/internal/reservations/notify"
	"reservo/internal/reservations/repository"
	"reservo/internal/reservations/service"
	"reservo/internal/reservations/sweeper"
	"reservo/internal/reservations/validator"
	"reservo/pkg/app"
	"reservo/pkg/config"
	"reservo/pkg/kafka"
	kafka_config "reservo/pkg/kafka/config"
	kafka_middleware "reservo/pkg/kafka/middleware"
	"reservo/pkg/telemetry"
)

const ServiceName = "reservations"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting Reservations service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{Enabled: cfg.TracingEnabled, ServiceName: ServiceName})
	if err != nil {
		cfg.Log.Fatal("Failed to set up tracing", "error", err)
	}

	reg := metrics.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	m.Register(reg)

	store, deps := initStore(cfg)
	locks := initLocks(cfg)
	deps = append(deps, lockDependency(cfg))

	emitter, emitterClose := initEmitter(cfg, reg)
	async := notify.NewAsyncEmitter(emitter, cfg.NotificationsQueueSize, cfg.Log)

	reservationService := service.NewReservationService(
		store,
		locks,
		async,
		validator.NewReservationValidator(cfg.Log),
		cfg,
		service.WithMetrics(m),
	)
	cfg.Log.Info("Reservation service initialized", "store", cfg.StoreDriver, "lock_backend", cfg.LockBackend)

	sweep := sweeper.New(
		store.Proposals(),
		reservationService,
		clockwork.NewRealClock(),
		sweeper.Config{Interval: cfg.SweepInterval, BatchSize: cfg.SweepBatchSize},
		m,
		cfg.Log,
	)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		handler.NewHealthHandler(cfg.Log, deps...),
		handler.NewReservationHandler(reservationService, cfg.Log),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	)
	serverApp.AddWorker("sweeper", sweep)
	serverApp.AddWorker("notifications", async)
	serverApp.OnShutdown(func() {
		async.Close()
		emitterClose()
		if err := shutdownTracing(context.Background()); err != nil {
			cfg.Log.Error("Failed to flush traces", "error", err)
		}
		if closer, ok := store.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				cfg.Log.Error("Failed to close reservation store", "error", err)
			}
		}
		cfg.GracefulShutdown()
	})

	if err := serverApp.Run(ctx); err != nil {
		cfg.Log.Fatal("Reservations service stopped with error", "error", err)
	}
}

func initStore(cfg *config.Config) (repository.Store, []handler.Dependency) {
	if cfg.NeedsMongo() {
		cfg.SetMongo()
	}

	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		store, err := repository.OpenSQLiteStore(cfg.SQLitePath)
		if err != nil {
			cfg.Log.Fatal("Failed to open SQLite store", "error", err, "path", cfg.SQLitePath)
		}
		cfg.Log.Info("Using SQLite reservation store", "path", cfg.SQLitePath)
		return store, []handler.Dependency{{Name: "sqlite", Ping: store.Ping}}
	default:
		store := repository.NewMongoStore(cfg.Client.Mongo, cfg.MongoDatabaseName, repository.Timeouts{})
		cfg.Log.Info("Using MongoDB reservation store", "database", cfg.MongoDatabaseName)
		return store, []handler.Dependency{{Name: "mongo", Ping: store.Ping}}
	}
}

func initLocks(cfg *config.Config) *lock.Coordinator {
	lockCfg := lock.Config{Lease: cfg.LockLease, ReleaseTimeout: cfg.LockReleaseTimeout}

	switch cfg.LockBackend {
	case config.LockBackendMongo:
		return lock.NewCoordinator(lock.NewMongoStore(cfg.Client.Mongo.Database(cfg.MongoDatabaseName)), lockCfg, cfg.Log)
	default:
		cfg.SetRedis()
		return lock.NewCoordinator(lock.NewRedisStore(cfg.Client.Redis), lockCfg, cfg.Log)
	}
}

func lockDependency(cfg *config.Config) handler.Dependency {
	if cfg.LockBackend == config.LockBackendMongo {
		return handler.Dependency{Name: "lock-mongo", Ping: func(ctx context.Context) error {
			return cfg.Client.Mongo.Ping(ctx, nil)
		}}
	}
	return handler.Dependency{Name: "redis", Ping: func(ctx context.Context) error {
		return cfg.Client.Redis.Ping(ctx).Err()
	}}
}

// initEmitter publishes to Kafka when notifications are enabled and falls back
// to structured logs otherwise.
func initEmitter(cfg *config.Config, reg prometheus.Registerer) (notify.Emitter, func()) {
	if !cfg.NotificationsEnabled {
		cfg.Log.Info("Notifications disabled, events are logged only")
		return notify.NewLogEmitter(cfg.Log), func() {}
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.NotificationsTopic, cfg.NotificationsDLQTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	producer.Use(kafka_middleware.NewMetrics(reg).ProducerMiddleware())

	return notify.NewKafkaEmitter(producer, cfg.Log), func() {
		if err := producer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka producer", "error", err)
		}
	}
}
