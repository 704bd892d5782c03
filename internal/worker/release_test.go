package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/flightclient"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSeatReleaser struct {
	mock.Mock
}

func (m *MockSeatReleaser) ReleaseSeats(ctx context.Context, flightID int64, req domain.SeatRequest) (string, error) {
	args := m.Called(ctx, flightID, req)
	return args.String(0), args.Error(1)
}

type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) Schedule(ctx context.Context, task domain.SeatReleaseTask, delay time.Duration) error {
	return m.Called(ctx, task, delay).Error(0)
}

var fixedNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newRetrier(flights SeatReleaser, scheduler Scheduler) (*ReleaseRetrier, *test.Hook) {
	logger, hook := test.NewNullLogger()
	r := NewReleaseRetrier(flights, scheduler, 3, time.Minute, logger)
	r.now = func() time.Time { return fixedNow }
	return r, hook
}

func seatMapTask(attempt int) domain.SeatReleaseTask {
	return domain.SeatReleaseTask{PNR: "PNR-1A2B3C4D", FlightID: 9, SeatNumbers: []string{"1A", "1B"}, Attempt: attempt}
}

func TestReleaseRetrier_success(t *testing.T) {
	flights := &MockSeatReleaser{}
	scheduler := &MockScheduler{}
	flights.On("ReleaseSeats", mock.Anything, int64(9), domain.SeatRequest{SeatNumbers: []string{"1A", "1B"}}).
		Return("Seats Released", nil).Once()
	r, hook := newRetrier(flights, scheduler)

	require.NoError(t, r.Handle(context.Background(), seatMapTask(1)))

	flights.AssertExpectations(t)
	scheduler.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, "pending seat release completed", hook.LastEntry().Message)
}

func TestReleaseRetrier_reschedulesWhileUnavailable(t *testing.T) {
	flights := &MockSeatReleaser{}
	scheduler := &MockScheduler{}
	flights.On("ReleaseSeats", mock.Anything, int64(7), domain.SeatRequest{Count: 2}).Return(flightclient.RollbackPending, nil).Once()

	expected := domain.SeatReleaseTask{PNR: "PNR-00000001", FlightID: 7, Count: 2, Attempt: 2, QueuedAt: fixedNow}
	scheduler.On("Schedule", mock.Anything, expected, time.Minute).Return(nil).Once()
	r, hook := newRetrier(flights, scheduler)

	err := r.Handle(context.Background(), domain.SeatReleaseTask{PNR: "PNR-00000001", FlightID: 7, Count: 2, Attempt: 1})

	require.NoError(t, err)
	scheduler.AssertExpectations(t)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestReleaseRetrier_givesUpAfterMaxAttempts(t *testing.T) {
	flights := &MockSeatReleaser{}
	scheduler := &MockScheduler{}
	flights.On("ReleaseSeats", mock.Anything, int64(9), mock.Anything).Return(flightclient.RollbackPending, nil).Once()
	r, hook := newRetrier(flights, scheduler)

	require.NoError(t, r.Handle(context.Background(), seatMapTask(3)))

	scheduler.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, "seat release abandoned after max attempts", hook.LastEntry().Message)
}

func TestReleaseRetrier_dropsRejectedRelease(t *testing.T) {
	flights := &MockSeatReleaser{}
	scheduler := &MockScheduler{}
	flights.On("ReleaseSeats", mock.Anything, int64(9), mock.Anything).Return("", domain.ErrSeatAlreadyFree).Once()
	r, hook := newRetrier(flights, scheduler)

	require.NoError(t, r.Handle(context.Background(), seatMapTask(1)))

	scheduler.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything, mock.Anything)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, domain.CodeSeatAlreadyFree, entry.Data["code"])
}

func TestReleaseRetrier_scheduleFailure(t *testing.T) {
	flights := &MockSeatReleaser{}
	scheduler := &MockScheduler{}
	flights.On("ReleaseSeats", mock.Anything, int64(9), mock.Anything).Return(flightclient.RollbackPending, nil).Once()
	scheduler.On("Schedule", mock.Anything, mock.Anything, time.Minute).Return(errors.New("broker down")).Once()
	r, _ := newRetrier(flights, scheduler)

	err := r.Handle(context.Background(), seatMapTask(1))

	assert.ErrorContains(t, err, "broker down")
}
