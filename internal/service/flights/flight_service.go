package flights

import (
	"context"
	"strings"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/repository"
	"github.com/sirupsen/logrus"
)

// Messages returned by successful seat operations.
const (
	MsgSeatsUpdated    = "Seats Updated"
	MsgSeatsBooked     = "Seats Booked"
	MsgSeatsRolledBack = "Seats Rolled Back"
	MsgSeatsReleased   = "Seats Released"
)

type FlightUseCase interface {
	AddInventory(ctx context.Context, input AddInventoryInput) (*domain.Flight, error)
	List(ctx context.Context) ([]domain.Flight, error)
	Search(ctx context.Context, from, to string) ([]domain.Flight, error)
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
	ReserveSeats(ctx context.Context, flightID int64, req domain.SeatRequest) (string, error)
	ReleaseSeats(ctx context.Context, flightID int64, req domain.SeatRequest) (string, error)
}

// FlightCache serves flight reads. A miss is reported as a nil result and a nil error.
type FlightCache interface {
	GetFlights(ctx context.Context) ([]domain.Flight, error)
	SetFlights(ctx context.Context, flights []domain.Flight) error
	GetFlight(ctx context.Context, id int64) (*domain.Flight, error)
	SetFlight(ctx context.Context, flight *domain.Flight) error
	GetRoute(ctx context.Context, from, to string) ([]domain.Flight, error)
	SetRoute(ctx context.Context, from, to string, flights []domain.Flight) error
	InvalidateFlight(ctx context.Context, flight *domain.Flight) error
}

type FlightService struct {
	repo   repository.FlightRepository
	cache  FlightCache
	logger logrus.FieldLogger
}

type SeatInput struct {
	SeatNumber string          `json:"seatNumber"`
	SeatType   domain.SeatType `json:"seatType"`
}

type AddInventoryInput struct {
	AirlineName    string
	AirlineCode    string
	FromPlace      string
	ToPlace        string
	DepartureTime  time.Time
	ArrivalTime    time.Time
	Price          float64
	AvailableSeats int
	Seats          []SeatInput
}

func NewFlightService(repo repository.FlightRepository, cache FlightCache, logger logrus.FieldLogger) *FlightService {
	return &FlightService{repo: repo, cache: cache, logger: logger}
}

func (s *FlightService) AddInventory(ctx context.Context, input AddInventoryInput) (*domain.Flight, error) {
	flight, err := input.toFlight()
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, flight); err != nil {
		return nil, err
	}
	s.invalidate(ctx, flight)

	s.logger.WithFields(logrus.Fields{
		"flight_id": flight.ID,
		"mode":      flight.AllocationMode,
		"seats":     flight.TotalSeats,
	}).Info("flight inventory added")
	return flight, nil
}

func (in AddInventoryInput) toFlight() (*domain.Flight, error) {
	switch {
	case strings.TrimSpace(in.AirlineName) == "":
		return nil, domain.NewValidationError("Airline name is required")
	case len(in.AirlineCode) < 2 || len(in.AirlineCode) > 10:
		return nil, domain.NewValidationError("Airline code must be between 2 and 10 characters")
	case strings.TrimSpace(in.FromPlace) == "" || strings.TrimSpace(in.ToPlace) == "":
		return nil, domain.NewValidationError("From and to places are required")
	case strings.EqualFold(in.FromPlace, in.ToPlace):
		return nil, domain.NewValidationError("From and to places must differ")
	case !in.ArrivalTime.After(in.DepartureTime):
		return nil, domain.NewValidationError("Arrival must be after departure")
	case in.Price <= 0:
		return nil, domain.NewValidationError("Price must be greater than zero")
	case in.AvailableSeats > 0 && len(in.Seats) > 0:
		return nil, domain.NewValidationError("Provide either availableSeats or a seat map, not both")
	case in.AvailableSeats <= 0 && len(in.Seats) == 0:
		return nil, domain.NewValidationError("Available seats must be greater than zero")
	}

	f := &domain.Flight{
		AirlineName:   in.AirlineName,
		AirlineCode:   in.AirlineCode,
		FromPlace:     normalizePlace(in.FromPlace),
		ToPlace:       normalizePlace(in.ToPlace),
		DepartureTime: in.DepartureTime,
		ArrivalTime:   in.ArrivalTime,
		Price:         in.Price,
	}

	if len(in.Seats) == 0 {
		f.AllocationMode = domain.AllocationCount
		f.TotalSeats = in.AvailableSeats
		f.AvailableSeats = in.AvailableSeats
		return f, nil
	}

	f.AllocationMode = domain.AllocationSeatMap
	seen := make(map[string]struct{}, len(in.Seats))
	for _, si := range in.Seats {
		number := domain.NormalizeSeatNumber(si.SeatNumber)
		if number == "" {
			return nil, domain.NewValidationError("Seat number is required")
		}
		if _, dup := seen[number]; dup {
			return nil, domain.NewValidationError("seat number %s is duplicated", number)
		}
		seen[number] = struct{}{}

		seatType := si.SeatType
		if seatType == "" {
			seatType = domain.SeatTypeEconomy
		}
		if !seatType.Valid() {
			return nil, domain.NewValidationError("unknown seat type %q", si.SeatType)
		}
		f.Seats = append(f.Seats, domain.Seat{SeatNumber: number, SeatType: seatType})
	}
	f.TotalSeats = len(f.Seats)
	f.AvailableSeats = len(f.Seats)
	return f, nil
}

func (s *FlightService) List(ctx context.Context) ([]domain.Flight, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetFlights(ctx); err == nil && cached != nil {
			return cached, nil
		}
	}

	flights, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetFlights(ctx, flights)
	}
	return flights, nil
}

func (s *FlightService) Search(ctx context.Context, from, to string) ([]domain.Flight, error) {
	from, to = normalizePlace(from), normalizePlace(to)
	if from == "" || to == "" {
		return nil, domain.NewValidationError("From and to places are required")
	}

	if s.cache != nil {
		if cached, err := s.cache.GetRoute(ctx, from, to); err == nil && cached != nil {
			return cached, nil
		}
	}

	flights, err := s.repo.Search(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetRoute(ctx, from, to, flights)
	}
	return flights, nil
}

// normalizePlace is the stored and searched form of a place code.
func normalizePlace(place string) string {
	return strings.ToUpper(strings.TrimSpace(place))
}

func (s *FlightService) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetFlight(ctx, id); err == nil && cached != nil {
			return cached, nil
		}
	}

	flight, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetFlight(ctx, flight)
	}
	return flight, nil
}

// ReserveSeats books seats against the store; cached reads are never consulted.
func (s *FlightService) ReserveSeats(ctx context.Context, flightID int64, req domain.SeatRequest) (string, error) {
	req = req.Normalized()
	updated, err := s.repo.UpdateSeats(ctx, flightID, func(f *domain.Flight) error {
		return StrategyFor(f).Reserve(f, req)
	})
	if err != nil {
		s.logSeatFailure("reserve", flightID, req, err)
		return "", err
	}
	s.invalidate(ctx, updated)
	s.logSeatChange("seats reserved", updated, req)

	if req.IsSeatMap() {
		return MsgSeatsBooked, nil
	}
	return MsgSeatsUpdated, nil
}

func (s *FlightService) ReleaseSeats(ctx context.Context, flightID int64, req domain.SeatRequest) (string, error) {
	req = req.Normalized()
	updated, err := s.repo.UpdateSeats(ctx, flightID, func(f *domain.Flight) error {
		return StrategyFor(f).Release(f, req)
	})
	if err != nil {
		s.logSeatFailure("release", flightID, req, err)
		return "", err
	}
	s.invalidate(ctx, updated)
	s.logSeatChange("seats released", updated, req)

	if req.IsSeatMap() {
		return MsgSeatsReleased, nil
	}
	return MsgSeatsRolledBack, nil
}

func (s *FlightService) invalidate(ctx context.Context, f *domain.Flight) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateFlight(ctx, f); err != nil {
		s.logger.WithError(err).WithField("flight_id", f.ID).Warn("flight cache invalidation failed")
	}
}

func (s *FlightService) logSeatChange(msg string, f *domain.Flight, req domain.SeatRequest) {
	s.logger.WithFields(logrus.Fields{
		"flight_id":       f.ID,
		"seats":           req.Size(),
		"seat_numbers":    req.SeatNumbers,
		"available_seats": f.AvailableSeats,
	}).Info(msg)
}

func (s *FlightService) logSeatFailure(op string, flightID int64, req domain.SeatRequest, err error) {
	s.logger.WithFields(logrus.Fields{
		"flight_id":    flightID,
		"op":           op,
		"seats":        req.Size(),
		"seat_numbers": req.SeatNumbers,
		"code":         domain.CodeOf(err),
	}).WithError(err).Warn("seat operation rejected")
}

var _ FlightUseCase = (*FlightService)(nil)
