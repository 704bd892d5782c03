package flightclient

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/flightbooking/config"
	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/sirupsen/logrus"
)

// Fallback results handed back when the flight service cannot be reached.
const (
	ReservationUnavailableMessage = "Seat reservation unavailable, please try again later"
	RollbackPending               = "Rollback pending"
)

// ResilientSeatService retries transient failures and guards the flight
// service with a circuit breaker shared by all calls.
type ResilientSeatService struct {
	next    SeatService
	breaker *CircuitBreaker
	retry   RetryPolicy
	logger  logrus.FieldLogger
}

func NewResilientSeatService(next SeatService, cfg config.FlightClientConfig, logger logrus.FieldLogger) *ResilientSeatService {
	s := &ResilientSeatService{next: next, logger: logger}

	s.breaker = NewCircuitBreaker(BreakerSettings{
		Name:                 "flight-service",
		WindowSize:           cfg.Breaker.WindowSize,
		MinimumCalls:         cfg.Breaker.MinimumCalls,
		FailureRateThreshold: cfg.Breaker.FailureRateThreshold,
		OpenTimeout:          cfg.Breaker.OpenTimeout,
		HalfOpenMaxCalls:     cfg.Breaker.HalfOpenMaxCalls,
		IsFailure:            isTransient,
		OnStateChange: func(name string, from, to State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})

	s.retry = RetryPolicy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
		Multiplier:     cfg.Retry.Multiplier,
		Retryable:      isTransient,
	}
	return s
}

func (s *ResilientSeatService) Breaker() *CircuitBreaker {
	return s.breaker
}

func (s *ResilientSeatService) FetchFlight(ctx context.Context, flightID int64) (*domain.Flight, error) {
	var flight *domain.Flight
	err := s.call(ctx, "fetch", flightID, func(ctx context.Context) error {
		var err error
		flight, err = s.next.FetchFlight(ctx, flightID)
		return err
	})
	if err != nil {
		if unavailable(err) {
			return nil, domain.ErrFlightNotFound
		}
		return nil, err
	}
	return flight, nil
}

func (s *ResilientSeatService) ReserveSeats(ctx context.Context, flightID int64, req domain.SeatRequest) (string, error) {
	var msg string
	err := s.call(ctx, "reserve", flightID, func(ctx context.Context) error {
		var err error
		msg, err = s.next.ReserveSeats(ctx, flightID, req)
		return err
	})
	if err != nil {
		if unavailable(err) {
			return "", domain.NewUpstreamError(ReservationUnavailableMessage, err)
		}
		return "", err
	}
	return msg, nil
}

func (s *ResilientSeatService) ReleaseSeats(ctx context.Context, flightID int64, req domain.SeatRequest) (string, error) {
	var msg string
	err := s.call(ctx, "release", flightID, func(ctx context.Context) error {
		var err error
		msg, err = s.next.ReleaseSeats(ctx, flightID, req)
		return err
	})
	if err != nil {
		if unavailable(err) {
			s.logger.WithFields(logrus.Fields{
				"flight_id": flightID,
				"seats":     req.Size(),
			}).WithError(err).Error("seat release failed, rollback pending")
			return RollbackPending, nil
		}
		return "", err
	}
	return msg, nil
}

func (s *ResilientSeatService) call(ctx context.Context, op string, flightID int64, fn func(ctx context.Context) error) error {
	policy := s.retry
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		s.logger.WithFields(logrus.Fields{
			"op":        op,
			"flight_id": flightID,
			"attempt":   attempt,
			"backoff":   wait.String(),
		}).WithError(err).Warn("flight service call failed, retrying")
	}
	return policy.Do(ctx, func(ctx context.Context) error {
		return s.breaker.Execute(func() error { return fn(ctx) })
	})
}

func isTransient(err error) bool {
	return domain.KindOf(err) == domain.KindUpstreamUnavailable
}

func unavailable(err error) bool {
	return isTransient(err) || errors.Is(err, ErrCircuitOpen)
}

var _ SeatService = (*ResilientSeatService)(nil)
