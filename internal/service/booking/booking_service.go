package booking

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/flightclient"
	"github.com/Domenick1991/flightbooking/internal/kafka"
	"github.com/Domenick1991/flightbooking/internal/repository"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxSeats           = 10
	defaultCancellationWindow = 24 * time.Hour
	pnrAttempts               = 3
	releaseTimeout            = 30 * time.Second
)

type BookingUseCase interface {
	Book(ctx context.Context, input BookInput) (*domain.Booking, error)
	Cancel(ctx context.Context, pnr string) (*domain.CancelResult, error)
	History(ctx context.Context, email string) ([]domain.Booking, error)
	Ticket(ctx context.Context, pnr string) (string, error)
	DownloadTicket(ctx context.Context, pnr string) (*domain.TicketView, error)
}

// FlightClient is the flight service as seen from bookings.
type FlightClient interface {
	FetchFlight(ctx context.Context, flightID int64) (*domain.Flight, error)
	ReserveSeats(ctx context.Context, flightID int64, req domain.SeatRequest) (string, error)
	ReleaseSeats(ctx context.Context, flightID int64, req domain.SeatRequest) (string, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// ReleaseScheduler queues seat releases the flight service could not take.
type ReleaseScheduler interface {
	Schedule(ctx context.Context, task domain.SeatReleaseTask, delay time.Duration) error
}

type BookInput struct {
	FlightID         int64
	Email            string
	Seats            int
	SeatNumbers      []string
	PassengerDetails string
	// Amount is computed from the flight price when zero.
	Amount      float64
	JourneyDate *time.Time
}

type BookingService struct {
	bookings repository.BookingRepository
	flights  FlightClient
	logger   logrus.FieldLogger

	producer           Producer
	bookingTopic       string
	notificationsTopic string
	releases           ReleaseScheduler

	now                func() time.Time
	location           *time.Location
	cancellationWindow time.Duration
	maxSeats           int
	newPNR             func() string
}

type BookingServiceOption func(*BookingService)

func WithProducer(producer Producer, bookingTopic string) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = producer
		s.bookingTopic = bookingTopic
	}
}

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithReleaseScheduler(releases ReleaseScheduler) BookingServiceOption {
	return func(s *BookingService) {
		s.releases = releases
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func WithLocation(loc *time.Location) BookingServiceOption {
	return func(s *BookingService) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithCancellationWindow(d time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if d > 0 {
			s.cancellationWindow = d
		}
	}
}

func WithMaxSeats(n int) BookingServiceOption {
	return func(s *BookingService) {
		if n > 0 {
			s.maxSeats = n
		}
	}
}

func WithPNRGenerator(gen func() string) BookingServiceOption {
	return func(s *BookingService) {
		s.newPNR = gen
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	flights FlightClient,
	logger logrus.FieldLogger,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:           bookings,
		flights:            flights,
		logger:             logger,
		now:                time.Now,
		location:           time.Local,
		cancellationWindow: defaultCancellationWindow,
		maxSeats:           defaultMaxSeats,
		newPNR:             NewPNR,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Book validates the request, reserves seats on the flight service and
// stores the booking. Nothing is reserved when validation or the flight
// lookup fails.
func (s *BookingService) Book(ctx context.Context, input BookInput) (*domain.Booking, error) {
	seatNumbers, err := s.validate(&input)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"flight_id": input.FlightID,
		"seats":     input.Seats,
	})

	flight, err := s.flights.FetchFlight(ctx, input.FlightID)
	if err != nil || flight == nil {
		log.WithError(err).Warn("flight lookup failed, booking rejected")
		return nil, domain.ErrFlightUnavailable
	}

	req := domain.SeatRequest{Count: input.Seats}
	if len(seatNumbers) > 0 {
		req = domain.SeatRequest{SeatNumbers: seatNumbers}
	}
	if err := checkMode(flight, req); err != nil {
		return nil, err
	}

	amount := input.Amount
	if amount == 0 {
		amount = flight.Price * float64(input.Seats)
	}

	if _, err := s.flights.ReserveSeats(ctx, input.FlightID, req); err != nil {
		log.WithError(err).Warn("seat reservation failed")
		return nil, domain.NewSeatReservationError(err)
	}

	journey := s.journeyDay(*input.JourneyDate)
	booking := &domain.Booking{
		Email:            input.Email,
		PassengerDetails: input.PassengerDetails,
		Seats:            input.Seats,
		SeatNumbers:      seatNumbers,
		FlightID:         input.FlightID,
		BookedAt:         s.now(),
		Status:           domain.BookingStatusBooked,
		Amount:           amount,
		JourneyDate:      &journey,
	}

	if err := s.persist(ctx, booking); err != nil {
		log.WithError(err).Error("booking could not be stored, releasing seats")
		s.releaseSeats(ctx, booking)
		return nil, domain.NewPersistenceError(err)
	}

	log.WithField("pnr", booking.PNR).Info("booking created")
	s.publish(ctx, kafka.EventBookingCreated, booking)
	return booking, nil
}

func (s *BookingService) validate(input *BookInput) ([]string, error) {
	input.Email = strings.TrimSpace(input.Email)
	if input.Email == "" {
		return nil, domain.NewValidationError("Email is required")
	}
	if addr, err := mail.ParseAddress(input.Email); err != nil || addr.Address != input.Email {
		return nil, domain.NewValidationError("Email must be valid")
	}
	if input.Seats < 1 {
		return nil, domain.NewValidationError("At least 1 seat must be booked")
	}
	if input.Seats > s.maxSeats {
		return nil, domain.NewValidationError("You cannot book more than %d seats at once", s.maxSeats)
	}
	if input.Amount < 0 {
		return nil, domain.NewValidationError("Amount must be greater than zero")
	}

	var seatNumbers []string
	if len(input.SeatNumbers) > 0 {
		if len(input.SeatNumbers) != input.Seats {
			return nil, domain.NewValidationError("Number of seat numbers must match number of seats booked")
		}
		seen := make(map[string]struct{}, len(input.SeatNumbers))
		for _, n := range input.SeatNumbers {
			n = domain.NormalizeSeatNumber(n)
			if n == "" {
				return nil, domain.NewValidationError("Seat number must not be empty")
			}
			if _, dup := seen[n]; dup {
				return nil, domain.NewValidationError("Seat %s requested twice", n)
			}
			seen[n] = struct{}{}
			seatNumbers = append(seatNumbers, n)
		}
	}

	passengers, err := domain.ParsePassengers(input.PassengerDetails)
	if err != nil {
		return nil, err
	}
	if len(passengers) != input.Seats {
		return nil, domain.NewValidationError("Number of passengers must match number of seats booked")
	}
	for _, p := range passengers {
		if err := p.ValidateAge(); err != nil {
			return nil, err
		}
	}

	if input.JourneyDate == nil {
		return nil, domain.NewValidationError("Journey date is required")
	}
	if !s.journeyDay(*input.JourneyDate).After(s.today()) {
		return nil, domain.NewValidationError("Journey date must be in the future")
	}
	return seatNumbers, nil
}

func checkMode(flight *domain.Flight, req domain.SeatRequest) error {
	switch {
	case flight.AllocationMode == domain.AllocationSeatMap && !req.IsSeatMap():
		return domain.NewValidationError("Seat numbers are required for flight %d", flight.ID)
	case flight.AllocationMode != domain.AllocationSeatMap && req.IsSeatMap():
		return domain.NewValidationError("Flight %d does not support seat selection", flight.ID)
	}
	return nil
}

// persist stores the booking under a fresh PNR, drawing a new one when the
// store reports a collision.
func (s *BookingService) persist(ctx context.Context, b *domain.Booking) error {
	var err error
	for attempt := 0; attempt < pnrAttempts; attempt++ {
		b.PNR = s.newPNR()
		ticket, merr := domain.NewTicket(b).Marshal()
		if merr != nil {
			return merr
		}
		b.TicketJSON = ticket

		err = s.bookings.Create(ctx, b)
		if !errors.Is(err, domain.ErrDuplicatePNR) {
			return err
		}
		s.logger.WithField("pnr", b.PNR).Warn("pnr collision, generating another")
	}
	return err
}

// Cancel moves a booked ticket to CANCELLED and then tries to give the seats
// back. The seat release never fails the cancellation.
func (s *BookingService) Cancel(ctx context.Context, pnr string) (*domain.CancelResult, error) {
	current, err := s.lookup(ctx, pnr)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.BookingStatusBooked {
		return nil, domain.ErrInvalidState
	}
	if current.JourneyDate == nil {
		return nil, domain.ErrMissingJourneyDate
	}

	hours := int64(s.journeyDay(*current.JourneyDate).Sub(s.now()) / time.Hour)
	if hours < int64(s.cancellationWindow/time.Hour) {
		return nil, domain.ErrWindowClosed
	}

	updated, err := s.bookings.TransitionStatus(ctx, pnr, domain.BookingStatusBooked, domain.BookingStatusCancelled)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			return nil, err
		}
		return nil, domain.NewPersistenceError(err)
	}

	status := s.releaseSeats(ctx, updated)
	s.logger.WithFields(logrus.Fields{
		"pnr":            pnr,
		"flight_id":      updated.FlightID,
		"release_status": status,
	}).Info("booking cancelled")

	s.publish(ctx, kafka.EventBookingCancelled, updated)
	return &domain.CancelResult{PNR: pnr, Message: "Cancelled: " + pnr, ReleaseStatus: status}, nil
}

// releaseSeats gives the booking's seats back and reports what happened.
// A pending rollback is handed to the release queue when one is configured.
func (s *BookingService) releaseSeats(ctx context.Context, b *domain.Booking) string {
	// The booking change is already committed, so the release must not die
	// with the caller's request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	log := s.logger.WithFields(logrus.Fields{"pnr": b.PNR, "flight_id": b.FlightID})

	msg, err := s.flights.ReleaseSeats(ctx, b.FlightID, b.SeatRequest())
	if err != nil {
		log.WithError(err).Warn("seat release rejected by flight service")
		return "Release failed: " + err.Error()
	}
	if msg != flightclient.RollbackPending || s.releases == nil {
		return msg
	}

	req := b.SeatRequest()
	task := domain.SeatReleaseTask{
		PNR:         b.PNR,
		FlightID:    b.FlightID,
		Count:       req.Count,
		SeatNumbers: req.SeatNumbers,
		Attempt:     1,
		QueuedAt:    s.now(),
	}
	if err := s.releases.Schedule(ctx, task, 0); err != nil {
		log.WithError(err).Error("failed to queue pending seat release")
	}
	return msg
}

func (s *BookingService) History(ctx context.Context, email string) ([]domain.Booking, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, domain.NewValidationError("Email is required")
	}
	bookings, err := s.bookings.ListByEmail(ctx, email)
	if err != nil {
		return nil, domain.NewPersistenceError(err)
	}
	if bookings == nil {
		bookings = []domain.Booking{}
	}
	return bookings, nil
}

// Ticket returns the ticket payload exactly as stored at booking time.
func (s *BookingService) Ticket(ctx context.Context, pnr string) (string, error) {
	b, err := s.lookup(ctx, pnr)
	if err != nil {
		return "", err
	}
	return b.TicketJSON, nil
}

func (s *BookingService) DownloadTicket(ctx context.Context, pnr string) (*domain.TicketView, error) {
	b, err := s.lookup(ctx, pnr)
	if err != nil {
		return nil, err
	}

	flight, err := s.flights.FetchFlight(ctx, b.FlightID)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"pnr": pnr, "flight_id": b.FlightID}).
			Warn("flight details unavailable for ticket")
		flight = nil
	}

	return &domain.TicketView{
		PNR:              b.PNR,
		Email:            b.Email,
		PassengerDetails: b.PassengerDetails,
		Seats:            b.Seats,
		SeatNumbers:      b.SeatNumbers,
		FlightID:         b.FlightID,
		FlightDetails:    flight,
		TicketJSON:       b.TicketJSON,
	}, nil
}

func (s *BookingService) lookup(ctx context.Context, pnr string) (*domain.Booking, error) {
	pnr = strings.TrimSpace(pnr)
	if pnr == "" {
		return nil, domain.NewValidationError("PNR is required")
	}
	b, err := s.bookings.GetByPNR(ctx, pnr)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			return nil, err
		}
		return nil, domain.NewPersistenceError(err)
	}
	return b, nil
}

func (s *BookingService) publish(ctx context.Context, eventType string, b *domain.Booking) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event := kafka.BookingEvent{
		Type:        eventType,
		PNR:         b.PNR,
		FlightID:    b.FlightID,
		Seats:       b.Seats,
		SeatNumbers: b.SeatNumbers,
		Email:       b.Email,
		Status:      string(b.Status),
		Amount:      b.Amount,
		OccurredAt:  s.now().UTC(),
	}
	if b.JourneyDate != nil {
		event.JourneyDate = b.JourneyDate.Format(domain.JourneyDateLayout)
	}

	topics := []string{s.bookingTopic}
	if s.notificationsTopic != "" {
		topics = append(topics, s.notificationsTopic)
	}
	for _, topic := range topics {
		if err := s.producer.Publish(ctx, topic, b.PNR, event); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{"pnr": b.PNR, "topic": topic, "event": eventType}).
				Warn("failed to publish booking event")
		}
	}
}

// journeyDay is local midnight of the calendar date t carries.
func (s *BookingService) journeyDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.location)
}

func (s *BookingService) today() time.Time {
	return s.journeyDay(s.now().In(s.location))
}

var _ BookingUseCase = (*BookingService)(nil)
