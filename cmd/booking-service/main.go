package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/flightbooking/api"
	"github.com/Domenick1991/flightbooking/config"
	"github.com/Domenick1991/flightbooking/internal/bootstrap"
	"github.com/Domenick1991/flightbooking/internal/flightclient"
	"github.com/Domenick1991/flightbooking/internal/kafka"
	"github.com/Domenick1991/flightbooking/internal/logger"
	"github.com/Domenick1991/flightbooking/internal/rabbitmq"
	"github.com/Domenick1991/flightbooking/internal/repository"
	"github.com/Domenick1991/flightbooking/internal/service/booking"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
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
	log := logger.New(cfg.Log, "booking-service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlx.Connect("postgres", cfg.Bookings.DSN())
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer db.Close()
	if cfg.Bookings.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Bookings.MaxOpenConns)
	}
	if cfg.Bookings.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Bookings.MaxIdleConns)
	}
	if cfg.Bookings.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.Bookings.ConnMaxLifetime)
	}

	loc, err := cfg.Booking.Location()
	if err != nil {
		log.WithError(err).Fatal("load booking time zone")
	}

	flightClient := flightclient.NewResilientSeatService(
		flightclient.NewHTTPSeatService(cfg.FlightClient.BaseURL, cfg.FlightClient.Timeout),
		cfg.FlightClient,
		log,
	)

	producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
	defer producer.Close()
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := producer.CheckConnection(checkCtx); err != nil {
		log.WithError(err).Warn("kafka unavailable, booking events will be dropped")
	}
	cancel()

	releases := rabbitmq.NewReleaseQueue(cfg.RabbitMQ, log)

	bookingService := booking.NewBookingService(
		repository.NewBookingRepository(db),
		flightClient,
		log,
		booking.WithProducer(producer, cfg.Kafka.BookingTopic),
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithReleaseScheduler(releases),
		booking.WithLocation(loc),
		booking.WithCancellationWindow(cfg.Booking.CancellationWindow),
		booking.WithMaxSeats(cfg.Booking.MaxSeats),
	)

	router := api.NewBookingRouter(api.NewBookingHandler(bookingService, loc), cfg.HTTP, log, map[string]api.HealthCheck{
		"postgres": db.PingContext,
		"flight_service": func(ctx context.Context) error {
			if state := flightClient.Breaker().State(); state == flightclient.StateOpen {
				return flightclient.ErrCircuitOpen
			}
			return nil
		},
	})

	if err := bootstrap.Run(ctx, cfg.HTTP.BookingAddress, router, log); err != nil {
		log.WithError(err).Fatal("server error")
	}
	log.Info("booking service stopped")
}
