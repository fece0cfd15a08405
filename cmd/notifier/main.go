package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reservo/internal/notifier"
	"reservo/internal/reservations/handler"
	"reservo/internal/reservations/metrics"
	"reservo/pkg/app"
	"reservo/pkg/config"
	"reservo/pkg/contracts"
	"reservo/pkg/kafka"
	kafka_config "reservo/pkg/kafka/config"
	kafka_middleware "reservo/pkg/kafka/middleware"
)

const ServiceName = "notifier"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting Notification relay")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	reg := metrics.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	relay, err := notifier.NewRelay(notifier.NewLogHandler(cfg.Log), notifier.DefaultDedupTTL, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create notification relay", "error", err)
	}

	consumer, err := kafka.NewConsumer(
		kafkaCfg,
		cfg.NotificationsTopic,
		cfg.NotificationsGroupID,
		cfg.NotificationsDLQTopic,
		relay.HandleMessage,
		cfg.Log,
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}
	consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
	consumer.Use(kafka_middleware.NewMetrics(reg).ConsumerMiddleware())

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handler.NewHealthHandler(cfg.Log), nil, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	serverApp.AddWorker("relay", contracts.WorkerFunc(consumer.Start))
	serverApp.OnShutdown(func() {
		if err := consumer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka consumer", "error", err)
		}
		relay.Close()
	})

	if err := serverApp.Run(ctx); err != nil {
		cfg.Log.Fatal("Notification relay stopped with error", "error", err)
	}
}
