package flights

import (
	"github.com/Domenick1991/flightbooking/internal/domain"
)

// SeatAllocationStrategy applies seat transitions to a flight loaded inside a
// store transaction. Implementations validate the whole request before they
// mutate anything.
type SeatAllocationStrategy interface {
	Reserve(f *domain.Flight, req domain.SeatRequest) error
	Release(f *domain.Flight, req domain.SeatRequest) error
}

// StrategyFor picks the strategy matching the flight's allocation mode.
func StrategyFor(f *domain.Flight) SeatAllocationStrategy {
	if f.AllocationMode == domain.AllocationSeatMap {
		return SeatMapBased{}
	}
	return CountBased{}
}

// CountBased works on the scalar AvailableSeats counter.
type CountBased struct{}

func (CountBased) Reserve(f *domain.Flight, req domain.SeatRequest) error {
	if err := checkCountRequest(req); err != nil {
		return err
	}
	if f.AvailableSeats < req.Count {
		return domain.ErrInsufficientSeats
	}
	f.AvailableSeats -= req.Count
	return nil
}

// Release refuses to push the counter above the flight's capacity.
func (CountBased) Release(f *domain.Flight, req domain.SeatRequest) error {
	if err := checkCountRequest(req); err != nil {
		return err
	}
	if f.TotalSeats > 0 && f.AvailableSeats+req.Count > f.TotalSeats {
		return domain.WithMessage(domain.ErrCapacityExceeded,
			"cannot release %d seats: %d of %d already free", req.Count, f.AvailableSeats, f.TotalSeats)
	}
	f.AvailableSeats += req.Count
	return nil
}

func checkCountRequest(req domain.SeatRequest) error {
	if req.IsSeatMap() {
		return domain.NewValidationError("flight does not use a seat map, request a seat count instead")
	}
	if req.Count < 1 {
		return domain.NewValidationError("seat count must be at least 1")
	}
	return nil
}

// SeatMapBased flips booked flags on individual seats.
type SeatMapBased struct{}

func (SeatMapBased) Reserve(f *domain.Flight, req domain.SeatRequest) error {
	seats, err := lookupSeats(f, req)
	if err != nil {
		return err
	}
	for _, s := range seats {
		if s.Booked {
			return domain.WithMessage(domain.ErrSeatAlreadyBooked, "Seat %s is already booked", s.SeatNumber)
		}
	}
	for _, s := range seats {
		s.Booked = true
	}
	f.AvailableSeats = f.FreeSeats()
	return nil
}

func (SeatMapBased) Release(f *domain.Flight, req domain.SeatRequest) error {
	seats, err := lookupSeats(f, req)
	if err != nil {
		return err
	}
	for _, s := range seats {
		if !s.Booked {
			return domain.WithMessage(domain.ErrSeatAlreadyFree, "Seat %s is not booked", s.SeatNumber)
		}
	}
	for _, s := range seats {
		s.Booked = false
	}
	f.AvailableSeats = f.FreeSeats()
	return nil
}

func lookupSeats(f *domain.Flight, req domain.SeatRequest) ([]*domain.Seat, error) {
	if !req.IsSeatMap() {
		return nil, domain.NewValidationError("flight uses a seat map, request seat numbers instead")
	}

	seen := make(map[string]struct{}, len(req.SeatNumbers))
	seats := make([]*domain.Seat, 0, len(req.SeatNumbers))
	for _, number := range req.SeatNumbers {
		if _, dup := seen[number]; dup {
			return nil, domain.NewValidationError("seat %s requested more than once", number)
		}
		seen[number] = struct{}{}

		s := f.SeatByNumber(number)
		if s == nil {
			return nil, domain.WithMessage(domain.ErrSeatNotFound, "Seat %s does not exist on flight %d", number, f.ID)
		}
		seats = append(seats, s)
	}
	return seats, nil
}
