package booking

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/flightclient"
	"github.com/Domenick1991/flightbooking/internal/kafka"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var pnrPattern = regexp.MustCompile(`^PNR-[A-Z0-9]{8}$`)

// memoryBookingRepository keeps bookings in a map and implements the status
// transition as a compare-and-swap, like the SQL store.
type memoryBookingRepository struct {
	mu        sync.Mutex
	byPNR     map[string]domain.Booking
	nextID    int64
	createErr error
	creates   int
}

func newMemoryBookingRepository(bookings ...domain.Booking) *memoryBookingRepository {
	r := &memoryBookingRepository{byPNR: make(map[string]domain.Booking)}
	for _, b := range bookings {
		r.nextID++
		b.ID = r.nextID
		r.byPNR[b.PNR] = b
	}
	return r
}

func (r *memoryBookingRepository) Create(_ context.Context, b *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.createErr != nil {
		return r.createErr
	}
	if _, exists := r.byPNR[b.PNR]; exists {
		return domain.ErrDuplicatePNR
	}
	r.nextID++
	b.ID = r.nextID
	r.byPNR[b.PNR] = *b
	return nil
}

func (r *memoryBookingRepository) GetByPNR(_ context.Context, pnr string) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byPNR[pnr]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return &b, nil
}

func (r *memoryBookingRepository) ListByEmail(_ context.Context, email string) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Booking
	for _, b := range r.byPNR {
		if b.Email == email {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookedAt.After(out[j].BookedAt) })
	return out, nil
}

func (r *memoryBookingRepository) TransitionStatus(_ context.Context, pnr string, from, to domain.BookingStatus) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byPNR[pnr]
	if !ok || b.Status != from {
		return nil, domain.ErrInvalidState
	}
	b.Status = to
	r.byPNR[pnr] = b
	return &b, nil
}

func (r *memoryBookingRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byPNR)
}

type MockFlightClient struct {
	mock.Mock
}

func (m *MockFlightClient) FetchFlight(ctx context.Context, flightID int64) (*domain.Flight, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Flight), args.Error(1)
}

func (m *MockFlightClient) ReserveSeats(ctx context.Context, flightID int64, req domain.SeatRequest) (string, error) {
	args := m.Called(ctx, flightID, req)
	return args.String(0), args.Error(1)
}

func (m *MockFlightClient) ReleaseSeats(ctx context.Context, flightID int64, req domain.SeatRequest) (string, error) {
	args := m.Called(ctx, flightID, req)
	return args.String(0), args.Error(1)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value any) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

type MockReleaseScheduler struct {
	mock.Mock
}

func (m *MockReleaseScheduler) Schedule(ctx context.Context, task domain.SeatReleaseTask, delay time.Duration) error {
	args := m.Called(ctx, task, delay)
	return args.Error(0)
}

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func countFlight() *domain.Flight {
	return &domain.Flight{ID: 7, AirlineName: "IndiGo", FromPlace: "DEL", ToPlace: "BOM", Price: 150,
		AllocationMode: domain.AllocationCount, TotalSeats: 100, AvailableSeats: 100}
}

func seatMapFlight() *domain.Flight {
	return &domain.Flight{ID: 9, AirlineName: "Vistara", FromPlace: "DEL", ToPlace: "BLR", Price: 200,
		AllocationMode: domain.AllocationSeatMap, TotalSeats: 4, AvailableSeats: 4}
}

func validInput() BookInput {
	return BookInput{
		FlightID:         7,
		Email:            "jane@example.com",
		Seats:            2,
		PassengerDetails: "John:M:30;Jane:F:28",
		Amount:           300,
		JourneyDate:      date(2025, 6, 10),
	}
}

func newTestService(repo *memoryBookingRepository, flights *MockFlightClient, opts ...BookingServiceOption) *BookingService {
	logger, _ := test.NewNullLogger()
	opts = append([]BookingServiceOption{
		WithClock(func() time.Time { return testNow }),
		WithLocation(time.UTC),
	}, opts...)
	return NewBookingService(repo, flights, logger, opts...)
}

func bookedAt(pnr string, journey *time.Time) domain.Booking {
	return domain.Booking{
		PNR:              pnr,
		Email:            "jane@example.com",
		PassengerDetails: "John:M:30;Jane:F:28",
		Seats:            2,
		FlightID:         7,
		BookedAt:         testNow.Add(-48 * time.Hour),
		Status:           domain.BookingStatusBooked,
		Amount:           300,
		JourneyDate:      journey,
	}
}

func TestBookingService_Book_Success(t *testing.T) {
	repo := newMemoryBookingRepository()
	flights := &MockFlightClient{}
	producer := &MockProducer{}
	service := newTestService(repo, flights,
		WithProducer(producer, "bookings"),
		WithNotificationsTopic("notifications"))

	ctx := context.Background()
	flights.On("FetchFlight", ctx, int64(7)).Return(countFlight(), nil).Once()
	flights.On("ReserveSeats", ctx, int64(7), domain.SeatRequest{Count: 2}).Return("Seats Updated", nil).Once()
	producer.On("Publish", ctx, "bookings", mock.Anything, mock.MatchedBy(func(e kafka.BookingEvent) bool {
		return e.Type == kafka.EventBookingCreated && e.JourneyDate == "2025-06-10" && e.Seats == 2
	})).Return(nil).Once()
	producer.On("Publish", ctx, "notifications", mock.Anything, mock.Anything).Return(nil).Once()

	booking, err := service.Book(ctx, validInput())

	require.NoError(t, err)
	assert.Regexp(t, pnrPattern, booking.PNR)
	assert.Equal(t, domain.BookingStatusBooked, booking.Status)
	assert.Equal(t, testNow, booking.BookedAt)
	assert.Equal(t, 300.0, booking.Amount)
	assert.JSONEq(t,
		`{"pnr":"`+booking.PNR+`","flightId":7,"journeyDate":"2025-06-10","passengers":"John:M:30;Jane:F:28"}`,
		booking.TicketJSON)

	stored, err := repo.GetByPNR(ctx, booking.PNR)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusBooked, stored.Status)
	assert.Regexp(t, pnrPattern, stored.PNR)

	flights.AssertExpectations(t)
	producer.AssertExpectations(t)
}

func TestBookingService_Book_ComputesAmountFromPrice(t *testing.T) {
	repo := newMemoryBookingRepository()
	flights := &MockFlightClient{}
	service := newTestService(repo, flights)

	flights.On("FetchFlight", mock.Anything, int64(7)).Return(countFlight(), nil)
	flights.On("ReserveSeats", mock.Anything, int64(7), domain.SeatRequest{Count: 2}).Return("Seats Updated", nil)

	input := validInput()
	input.Amount = 0
	booking, err := service.Book(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, 300.0, booking.Amount)
}

func TestBookingService_Book_ValidationErrors(t *testing.T) {
	testCases := []struct {
		name        string
		modify      func(in *BookInput)
		expectedErr string
	}{
		{
			name:        "fewer passengers than seats",
			modify:      func(in *BookInput) { in.PassengerDetails = "John:M:30" },
			expectedErr: "Number of passengers must match number of seats booked",
		},
		{
			name:        "negative age",
			modify:      func(in *BookInput) { in.PassengerDetails = "John:M:-5;Jane:F:28" },
			expectedErr: "Invalid age for passenger: John:M:-5",
		},
		{
			name:        "age above 120",
			modify:      func(in *BookInput) { in.PassengerDetails = "John:M:30;Jane:F:150" },
			expectedErr: "Invalid age for passenger: Jane:F:150",
		},
		{
			name:        "age zero",
			modify:      func(in *BookInput) { in.PassengerDetails = "John:M:0;Jane:F:28" },
			expectedErr: "Invalid age for passenger",
		},
		{
			name:        "bad gender",
			modify:      func(in *BookInput) { in.PassengerDetails = "John:X:30;Jane:F:28" },
			expectedErr: "gender",
		},
		{
			name:        "malformed entry",
			modify:      func(in *BookInput) { in.PassengerDetails = "John;Jane:F:28" },
			expectedErr: "NAME:GENDER:AGE",
		},
		{
			name:        "missing email",
			modify:      func(in *BookInput) { in.Email = "" },
			expectedErr: "Email is required",
		},
		{
			name:        "invalid email",
			modify:      func(in *BookInput) { in.Email = "not-an-email" },
			expectedErr: "Email must be valid",
		},
		{
			name:        "zero seats",
			modify:      func(in *BookInput) { in.Seats = 0 },
			expectedErr: "At least 1 seat",
		},
		{
			name:        "too many seats",
			modify:      func(in *BookInput) { in.Seats = 11 },
			expectedErr: "more than 10 seats",
		},
		{
			name:        "negative amount",
			modify:      func(in *BookInput) { in.Amount = -1 },
			expectedErr: "Amount must be greater than zero",
		},
		{
			name:        "seat numbers do not match seats",
			modify:      func(in *BookInput) { in.SeatNumbers = []string{"1A"} },
			expectedErr: "Number of seat numbers",
		},
		{
			name:        "duplicate seat numbers",
			modify:      func(in *BookInput) { in.SeatNumbers = []string{"1A", "1a"} },
			expectedErr: "requested twice",
		},
		{
			name:        "missing journey date",
			modify:      func(in *BookInput) { in.JourneyDate = nil },
			expectedErr: "Journey date is required",
		},
		{
			name:        "journey date in the past",
			modify:      func(in *BookInput) { in.JourneyDate = date(2025, 5, 31) },
			expectedErr: "Journey date must be in the future",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemoryBookingRepository()
			flights := &MockFlightClient{}
			service := newTestService(repo, flights)

			input := validInput()
			tc.modify(&input)
			booking, err := service.Book(context.Background(), input)

			assert.Nil(t, booking)
			require.Error(t, err)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
			assert.Contains(t, err.Error(), tc.expectedErr)
			flights.AssertNotCalled(t, "FetchFlight", mock.Anything, mock.Anything)
			flights.AssertNotCalled(t, "ReserveSeats", mock.Anything, mock.Anything, mock.Anything)
			assert.Equal(t, 0, repo.count())
		})
	}
}

func TestBookingService_Book_AgeBoundsAccepted(t *testing.T) {
	repo := newMemoryBookingRepository()
	flights := &MockFlightClient{}
	service := newTestService(repo, flights)

	flights.On("FetchFlight", mock.Anything, int64(7)).Return(countFlight(), nil)
	flights.On("ReserveSeats", mock.Anything, int64(7), domain.SeatRequest{Count: 2}).Return("Seats Updated", nil)

	input := validInput()
	input.PassengerDetails = "Baby:F:1;Elder:M:120"
	booking, err := service.Book(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, "Baby:F:1;Elder:M:120", booking.PassengerDetails)
}

func TestBookingService_Book_JourneyMustBeAfterToday(t *testing.T) {
	repo := newMemoryBookingRepository()
	flights := &MockFlightClient{}
	service := newTestService(repo, flights)

	flights.On("FetchFlight", mock.Anything, int64(7)).Return(countFlight(), nil)
	flights.On("ReserveSeats", mock.Anything, int64(7), domain.SeatRequest{Count: 2}).Return("Seats Updated", nil)

	input := validInput()
	input.JourneyDate = date(2025, 6, 1)
	_, err := service.Book(context.Background(), input)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.EqualError(t, err, "Journey date must be in the future")
	flights.AssertNotCalled(t, "FetchFlight", mock.Anything, mock.Anything)

	input.JourneyDate = date(2025, 6, 2)
	_, err = service.Book(context.Background(), input)
	assert.NoError(t, err)
}

func TestBookingService_Book_FlightAbsentHasNoSideEffects(t *testing.T) {
	repo := newMemoryBookingRepository()
	flights := &MockFlightClient{}
	service := newTestService(repo, flights)

	flights.On("FetchFlight", mock.Anything, int64(7)).Return(nil, domain.ErrFlightNotFound).Once()

	booking, err := service.Book(context.Background(), validInput())

	assert.Nil(t, booking)
	assert.ErrorIs(t, err, domain.ErrFlightUnavailable)
	assert.Equal(t, domain.CodeFlightUnavailable, domain.CodeOf(err))
	flights.AssertNotCalled(t, "ReserveSeats", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, repo.creates)
}

func TestBookingService_Book_ReservationFailureCarriesMessage(t *testing.T) {
	repo := newMemoryBookingRepository()
	flights := &MockFlightClient{}
	service := newTestService(repo, flights)

	unavailable := domain.NewUpstreamError(flightclient.ReservationUnavailableMessage, flightclient.ErrCircuitOpen)
	flights.On("FetchFlight", mock.Anything, int64(7)).Return(countFlight(), nil)
	flights.On("ReserveSeats", mock.Anything, int64(7), domain.SeatRequest{Count: 2}).Return("", unavailable).Once()

	_, err := service.Book(context.Background(), validInput())

	require.Error(t, err)
	assert.Equal(t, domain.CodeSeatReservationFailed, domain.CodeOf(err))
	assert.Equal(t, domain.KindUpstreamUnavailable, domain.KindOf(err))
	assert.Equal(t, flightclient.ReservationUnavailableMessage, err.Error())
	assert.Equal(t, 0, repo.creates)
}

func TestBookingService_Book_SeatMapConflict(t *testing.T) {
	repo := newMemoryBookingRepository()
	flights := &MockFlightClient{}
	service := newTestService(repo, flights)

	req := domain.SeatRequest{SeatNumbers: []string{"1A", "1B"}}
	flights.On("FetchFlight", mock.Anything, int64(9)).Return(seatMapFlight(), nil)
	flights.On("ReserveSeats", mock.Anything, int64(9), req).
		Return("", domain.WithMessage(domain.ErrSeatAlreadyBooked, "Seat 1B already booked")).Once()

	input := validInput()
	input.FlightID = 9
	input.SeatNumbers = []string{"1a", " 1b "}
	_, err := service.Book(context.Background(), input)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSeatAlreadyBooked)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	assert.Equal(t, "Seat 1B already booked", err.Error())
	flights.AssertExpectations(t)
}

func TestBookingService_Book_SeatMapSuccessStoresSeatNumbers(t *testing.T) {
	repo := newMemoryBookingRepository()
	flights := &MockFlightClient{}
	service := newTestService(repo, flights)

	req := domain.SeatRequest{SeatNumbers: []string{"1A", "1B"}}
	flights.On("FetchFlight", mock.Anything, int64(9)).Return(seatMapFlight(), nil)
	flights.On("ReserveSeats", mock.Anything, int64(9), req).Return("Seats Booked", nil).Once()

	input := validInput()
	input.FlightID = 9
	input.SeatNumbers = []string{"1A", "1B"}
	booking, err := service.Book(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, []string{"1A", "1B"}, booking.SeatNumbers)
	assert.Equal(t, req, booking.SeatRequest())
}

func TestBookingService_Book_AllocationModeMismatch(t *testing.T) {
	testCases := []struct {
		name        string
		flight      *domain.Flight
		seatNumbers []string
	}{
		{name: "seat numbers on count flight", flight: countFlight(), seatNumbers: []string{"1A", "1B"}},
		{name: "count on seat map flight", flight: seatMapFlight()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemoryBookingRepository()
			flights := &MockFlightClient{}
			service := newTestService(repo, flights)
			flights.On("FetchFlight", mock.Anything, tc.flight.ID).Return(tc.flight, nil)

			input := validInput()
			input.FlightID = tc.flight.ID
			input.SeatNumbers = tc.seatNumbers
			_, err := service.Book(context.Background(), input)

			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
			flights.AssertNotCalled(t, "ReserveSeats", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestBookingService_Book_RetriesPNRCollision(t *testing.T) {
	repo := newMemoryBookingRepository(bookedAt("PNR-AAAAAAAA", date(2025, 7, 1)))
	flights := &MockFlightClient{}
	pnrs := []string{"PNR-AAAAAAAA", "PNR-BBBBBBBB"}
	service := newTestService(repo, flights, WithPNRGenerator(func() string {
		next := pnrs[0]
		pnrs = pnrs[1:]
		return next
	}))

	flights.On("FetchFlight", mock.Anything, int64(7)).Return(countFlight(), nil)
	flights.On("ReserveSeats", mock.Anything, int64(7), domain.SeatRequest{Count: 2}).Return("Seats Updated", nil)

	booking, err := service.Book(context.Background(), validInput())

	require.NoError(t, err)
	assert.Equal(t, "PNR-BBBBBBBB", booking.PNR)
	assert.Contains(t, booking.TicketJSON, `"pnr":"PNR-BBBBBBBB"`)
	assert.Equal(t, 2, repo.creates)
}

func TestBookingService_Book_PersistenceFailureReleasesSeats(t *testing.T) {
	repo := newMemoryBookingRepository()
	repo.createErr = errors.New("connection reset")
	flights := &MockFlightClient{}
	service := newTestService(repo, flights)

	flights.On("FetchFlight", mock.Anything, int64(7)).Return(countFlight(), nil)
	flights.On("ReserveSeats", mock.Anything, int64(7), domain.SeatRequest{Count: 2}).Return("Seats Updated", nil)
	flights.On("ReleaseSeats", mock.Anything, int64(7), domain.SeatRequest{Count: 2}).Return("Seats Rolled Back", nil).Once()

	booking, err := service.Book(context.Background(), validInput())

	assert.Nil(t, booking)
	assert.Equal(t, domain.KindPersistence, domain.KindOf(err))
	assert.Equal(t, "connection reset", err.Error())
	flights.AssertExpectations(t)
}

func TestBookingService_Book_PublishFailureIsIgnored(t *testing.T) {
	repo := newMemoryBookingRepository()
	flights := &MockFlightClient{}
	producer := &MockProducer{}
	service := newTestService(repo, flights, WithProducer(producer, "bookings"))

	flights.On("FetchFlight", mock.Anything, int64(7)).Return(countFlight(), nil)
	flights.On("ReserveSeats", mock.Anything, int64(7), domain.SeatRequest{Count: 2}).Return("Seats Updated", nil)
	producer.On("Publish", mock.Anything, "bookings", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	booking, err := service.Book(context.Background(), validInput())

	require.NoError(t, err)
	assert.NotEmpty(t, booking.PNR)
	producer.AssertExpectations(t)
}

func TestBookingService_Cancel_Success(t *testing.T) {
	repo := newMemoryBookingRepository(bookedAt("PNR-1A2B3C4D", date(2025, 6, 10)))
	flights := &MockFlightClient{}
	producer := &MockProducer{}
	service := newTestService(repo, flights, WithProducer(producer, "bookings"))

	ctx := context.Background()
	flights.On("ReleaseSeats", mock.Anything, int64(7), domain.SeatRequest{Count: 2}).Return("Seats Rolled Back", nil).Once()
	producer.On("Publish", ctx, "bookings", "PNR-1A2B3C4D", mock.MatchedBy(func(e kafka.BookingEvent) bool {
		return e.Type == kafka.EventBookingCancelled && e.Status == string(domain.BookingStatusCancelled)
	})).Return(nil).Once()

	result, err := service.Cancel(ctx, "PNR-1A2B3C4D")

	require.NoError(t, err)
	assert.Equal(t, "Cancelled: PNR-1A2B3C4D", result.Message)
	assert.Equal(t, "Seats Rolled Back", result.ReleaseStatus)

	stored, _ := repo.GetByPNR(ctx, "PNR-1A2B3C4D")
	assert.Equal(t, domain.BookingStatusCancelled, stored.Status)
	flights.AssertExpectations(t)
	producer.AssertExpectations(t)
}

func TestBookingService_Cancel_TwiceFailsWithInvalidState(t *testing.T) {
	repo := newMemoryBookingRepository(bookedAt("PNR-1A2B3C4D", date(2025, 6, 10)))
	flights := &MockFlightClient{}
	service := newTestService(repo, flights)

	flights.On("ReleaseSeats", mock.Anything, int64(7), domain.SeatRequest{Count: 2}).Return("Seats Rolled Back", nil).Once()

	_, err := service.Cancel(context.Background(), "PNR-1A2B3C4D")
	require.NoError(t, err)

	result, err := service.Cancel(context.Background(), "PNR-1A2B3C4D")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, "Only booked tickets can be cancelled", err.Error())
	flights.AssertExpectations(t)
}

func TestBookingService_Cancel_WindowBoundary(t *testing.T) {
	journey := date(2025, 6, 2)
	testCases := []struct {
		name    string
		now     time.Time
		wantErr error
	}{
		{name: "exactly 24 hours", now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{name: "more than 24 hours", now: time.Date(2025, 5, 30, 12, 0, 0, 0, time.UTC)},
		{name: "one second short", now: time.Date(2025, 6, 1, 0, 0, 1, 0, time.UTC), wantErr: domain.ErrWindowClosed},
		{name: "journey day", now: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC), wantErr: domain.ErrWindowClosed},
		{name: "after journey", now: time.Date(2025, 6, 5, 8, 0, 0, 0, time.UTC), wantErr: domain.ErrWindowClosed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemoryBookingRepository(bookedAt("PNR-1A2B3C4D", journey))
			flights := &MockFlightClient{}
			flights.On("ReleaseSeats", mock.Anything, int64(7), domain.SeatRequest{Count: 2}).Return("Seats Rolled Back", nil).Maybe()
			now := tc.now
			service := newTestService(repo, flights, WithClock(func() time.Time { return now }))

			result, err := service.Cancel(context.Background(), "PNR-1A2B3C4D")

			stored, _ := repo.GetByPNR(context.Background(), "PNR-1A2B3C4D")
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, "Cancellation allowed only 24 hours before journey", err.Error())
				assert.Equal(t, domain.BookingStatusBooked, stored.Status)
				flights.AssertNotCalled(t, "ReleaseSeats", mock.Anything, mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Cancelled: PNR-1A2B3C4D", result.Message)
			assert.Equal(t, domain.BookingStatusCancelled, stored.Status)
		})
	}
}

func TestBookingService_Cancel_UsesConfiguredLocation(t *testing.T) {
	// Midnight of 2 June in UTC+05:30 is 18:30 UTC on 1 June.
	zone := time.FixedZone("IST", 5*3600+1800)
	repo := newMemoryBookingRepository(bookedAt("PNR-1A2B3C4D", date(2025, 6, 2)))
	flights := &MockFlightClient{}
	service := newTestService(repo, flights,
		WithLocation(zone),
		WithClock(func() time.Time { return time.Date(2025, 5, 31, 19, 0, 0, 0, time.UTC) }))

	_, err := service.Cancel(context.Background(), "PNR-1A2B3C4D")
	assert.ErrorIs(t, err, domain.ErrWindowClosed)
}

func TestBookingService_Cancel_Errors(t *testing.T) {
	cancelled := bookedAt("PNR-CANCELED", date(2025, 6, 10))
	cancelled.Status = domain.BookingStatusCancelled

	testCases := []struct {
		name    string
		pnr     string
		wantErr error
	}{
		{name: "unknown pnr", pnr: "PNR-UNKNOWN1", wantErr: domain.ErrBookingNotFound},
		{name: "already cancelled", pnr: "PNR-CANCELED", wantErr: domain.ErrInvalidState},
		{name: "no journey date", pnr: "PNR-NODATE00", wantErr: domain.ErrMissingJourneyDate},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemoryBookingRepository(cancelled, bookedAt("PNR-NODATE00", nil))
			flights := &MockFlightClient{}
			service := newTestService(repo, flights)

			result, err := service.Cancel(context.Background(), tc.pnr)

			assert.Nil(t, result)
			assert.ErrorIs(t, err, tc.wantErr)
			flights.AssertNotCalled(t, "ReleaseSeats", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestBookingService_Cancel_ReleaseFailureStillCancels(t *testing.T) {
	repo := newMemoryBookingRepository(bookedAt("PNR-1A2B3C4D", date(2025, 6, 10)))
	flights := &MockFlightClient{}
	logger, hook := test.NewNullLogger()
	service := NewBookingService(repo, flights, logger,
		WithClock(func() time.Time { return testNow }), WithLocation(time.UTC))

	flights.On("ReleaseSeats", mock.Anything, int64(7), domain.SeatRequest{Count: 2}).
		Return("", domain.ErrCapacityExceeded).Once()

	result, err := service.Cancel(context.Background(), "PNR-1A2B3C4D")

	require.NoError(t, err)
	assert.Equal(t, "Cancelled: PNR-1A2B3C4D", result.Message)
	assert.Contains(t, result.ReleaseStatus, "Release failed")

	stored, _ := repo.GetByPNR(context.Background(), "PNR-1A2B3C4D")
	assert.Equal(t, domain.BookingStatusCancelled, stored.Status)

	warned := false
	for _, e := range hook.AllEntries() {
		if e.Message == "seat release rejected by flight service" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestBookingService_Cancel_RollbackPendingIsQueued(t *testing.T) {
	booking := bookedAt("PNR-1A2B3C4D", date(2025, 6, 10))
	booking.SeatNumbers = []string{"1A", "1B"}
	repo := newMemoryBookingRepository(booking)
	flights := &MockFlightClient{}
	releases := &MockReleaseScheduler{}
	service := newTestService(repo, flights, WithReleaseScheduler(releases))

	req := domain.SeatRequest{SeatNumbers: []string{"1A", "1B"}}
	flights.On("ReleaseSeats", mock.Anything, int64(7), req).Return(flightclient.RollbackPending, nil).Once()
	releases.On("Schedule", mock.Anything, domain.SeatReleaseTask{
		PNR:         "PNR-1A2B3C4D",
		FlightID:    7,
		SeatNumbers: []string{"1A", "1B"},
		Attempt:     1,
		QueuedAt:    testNow,
	}, time.Duration(0)).Return(errors.New("broker down")).Once()

	result, err := service.Cancel(context.Background(), "PNR-1A2B3C4D")

	require.NoError(t, err)
	assert.Equal(t, flightclient.RollbackPending, result.ReleaseStatus)
	releases.AssertExpectations(t)
}

func TestBookingService_Cancel_ReleaseOutlivesCallerContext(t *testing.T) {
	repo := newMemoryBookingRepository(bookedAt("PNR-1A2B3C4D", date(2025, 6, 10)))
	flights := &MockFlightClient{}
	releases := &MockReleaseScheduler{}
	service := newTestService(repo, flights, WithReleaseScheduler(releases))

	live := mock.MatchedBy(func(ctx context.Context) bool {
		_, hasDeadline := ctx.Deadline()
		return ctx.Err() == nil && hasDeadline
	})
	flights.On("ReleaseSeats", live, int64(7), domain.SeatRequest{Count: 2}).Return(flightclient.RollbackPending, nil).Once()
	releases.On("Schedule", live, mock.Anything, time.Duration(0)).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := service.Cancel(ctx, "PNR-1A2B3C4D")

	require.NoError(t, err)
	assert.Equal(t, flightclient.RollbackPending, result.ReleaseStatus)
	flights.AssertExpectations(t)
	releases.AssertExpectations(t)
}

func TestBookingService_Cancel_ConcurrentCallsCancelOnce(t *testing.T) {
	repo := newMemoryBookingRepository(bookedAt("PNR-1A2B3C4D", date(2025, 6, 10)))
	flights := &MockFlightClient{}
	flights.On("ReleaseSeats", mock.Anything, int64(7), domain.SeatRequest{Count: 2}).Return("Seats Rolled Back", nil)
	service := newTestService(repo, flights)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.Cancel(context.Background(), "PNR-1A2B3C4D")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	}
	assert.Equal(t, 1, succeeded)
	flights.AssertNumberOfCalls(t, "ReleaseSeats", 1)
}

func TestBookingService_History(t *testing.T) {
	older := bookedAt("PNR-00000001", date(2025, 6, 10))
	newer := bookedAt("PNR-00000002", date(2025, 6, 12))
	newer.BookedAt = testNow
	other := bookedAt("PNR-00000003", date(2025, 6, 12))
	other.Email = "someone@example.com"
	repo := newMemoryBookingRepository(older, newer, other)
	service := newTestService(repo, &MockFlightClient{})

	bookings, err := service.History(context.Background(), "jane@example.com")
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, "PNR-00000002", bookings[0].PNR)

	bookings, err = service.History(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.NotNil(t, bookings)
	assert.Empty(t, bookings)

	_, err = service.History(context.Background(), " ")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestBookingService_Ticket(t *testing.T) {
	b := bookedAt("PNR-1A2B3C4D", date(2025, 6, 10))
	b.TicketJSON = `{"pnr":"PNR-1A2B3C4D","flightId":7,"journeyDate":"2025-06-10","passengers":"John:M:30;Jane:F:28"}`
	repo := newMemoryBookingRepository(b)
	service := newTestService(repo, &MockFlightClient{})

	ticket, err := service.Ticket(context.Background(), "PNR-1A2B3C4D")
	require.NoError(t, err)
	assert.Equal(t, b.TicketJSON, ticket)

	_, err = service.Ticket(context.Background(), "PNR-MISSING0")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestBookingService_DownloadTicket(t *testing.T) {
	repo := newMemoryBookingRepository(bookedAt("PNR-1A2B3C4D", date(2025, 6, 10)))
	flights := &MockFlightClient{}
	service := newTestService(repo, flights)

	flights.On("FetchFlight", mock.Anything, int64(7)).Return(countFlight(), nil).Once()
	view, err := service.DownloadTicket(context.Background(), "PNR-1A2B3C4D")
	require.NoError(t, err)
	require.NotNil(t, view.FlightDetails)
	assert.Equal(t, "IndiGo", view.FlightDetails.AirlineName)

	flights.On("FetchFlight", mock.Anything, int64(7)).Return(nil, domain.ErrFlightNotFound).Once()
	view, err = service.DownloadTicket(context.Background(), "PNR-1A2B3C4D")
	require.NoError(t, err)
	assert.Nil(t, view.FlightDetails)
	assert.Equal(t, "PNR-1A2B3C4D", view.PNR)
	assert.Equal(t, 2, view.Seats)
}

func TestNewPNR(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		pnr := NewPNR()
		assert.Regexp(t, pnrPattern, pnr)
		seen[pnr] = struct{}{}
	}
	assert.Len(t, seen, 200)
}
