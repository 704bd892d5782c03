package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/flightclient"
	"github.com/sirupsen/logrus"
)

type SeatReleaser interface {
	ReleaseSeats(ctx context.Context, flightID int64, req domain.SeatRequest) (string, error)
}

type Scheduler interface {
	Schedule(ctx context.Context, task domain.SeatReleaseTask, delay time.Duration) error
}

// ReleaseRetrier replays seat releases that could not reach the flight
// service when a booking was cancelled.
type ReleaseRetrier struct {
	flights     SeatReleaser
	scheduler   Scheduler
	maxAttempts int
	delay       time.Duration
	logger      logrus.FieldLogger
	now         func() time.Time
}

func NewReleaseRetrier(flights SeatReleaser, scheduler Scheduler, maxAttempts int, delay time.Duration, logger logrus.FieldLogger) *ReleaseRetrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &ReleaseRetrier{
		flights:     flights,
		scheduler:   scheduler,
		maxAttempts: maxAttempts,
		delay:       delay,
		logger:      logger,
		now:         time.Now,
	}
}

// Handle runs one attempt. A still-unreachable flight service puts the task
// back with a delay until maxAttempts is used up. Rejections by the flight
// service are final.
func (r *ReleaseRetrier) Handle(ctx context.Context, task domain.SeatReleaseTask) error {
	log := r.logger.WithFields(logrus.Fields{
		"pnr":       task.PNR,
		"flight_id": task.FlightID,
		"attempt":   task.Attempt,
	})

	msg, err := r.flights.ReleaseSeats(ctx, task.FlightID, task.SeatRequest())
	if err != nil {
		log.WithError(err).WithField("code", domain.CodeOf(err)).Error("seat release rejected, dropping task")
		return nil
	}
	if msg != flightclient.RollbackPending {
		log.WithField("result", msg).Info("pending seat release completed")
		return nil
	}

	if task.Attempt >= r.maxAttempts {
		log.Error("seat release abandoned after max attempts")
		return nil
	}

	next := task
	next.Attempt++
	next.QueuedAt = r.now()
	if err := r.scheduler.Schedule(ctx, next, r.delay); err != nil {
		return fmt.Errorf("reschedule release for %s: %w", task.PNR, err)
	}
	log.WithField("retry_in", r.delay.String()).Warn("flight service still unavailable, release rescheduled")
	return nil
}
