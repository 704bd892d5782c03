package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/flightbooking/config"
	"github.com/Domenick1991/flightbooking/internal/email"
	"github.com/Domenick1991/flightbooking/internal/flightclient"
	"github.com/Domenick1991/flightbooking/internal/kafka"
	"github.com/Domenick1991/flightbooking/internal/logger"
	"github.com/Domenick1991/flightbooking/internal/rabbitmq"
	"github.com/Domenick1991/flightbooking/internal/worker"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logger.New(cfg.Log, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, log)
	defer consumer.Close()
	sender := email.NewSender(log)

	releases := rabbitmq.NewReleaseQueue(cfg.RabbitMQ, log)
	flightClient := flightclient.NewResilientSeatService(
		flightclient.NewHTTPSeatService(cfg.FlightClient.BaseURL, cfg.FlightClient.Timeout),
		cfg.FlightClient,
		log,
	)
	retrier := worker.NewReleaseRetrier(flightClient, releases, cfg.Worker.MaxReleaseAttempts, cfg.Worker.ReleaseRetryDelay, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Consume(ctx, sender.Send)
	})
	g.Go(func() error {
		return releases.Consume(ctx, retrier.Handle)
	})

	log.Info("worker started")
	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("worker stopped")
	}
	log.Info("worker stopped")
}
