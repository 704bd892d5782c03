package domain

import (
	"strings"
	"time"
)

// AllocationMode selects how a flight tracks its inventory.
type AllocationMode string

const (
	// AllocationCount keeps a scalar counter of free seats.
	AllocationCount AllocationMode = "COUNT"
	// AllocationSeatMap keeps one Seat row per physical seat.
	AllocationSeatMap AllocationMode = "SEAT_MAP"
)

type SeatType string

const (
	SeatTypeEconomy        SeatType = "ECONOMY"
	SeatTypePremiumEconomy SeatType = "PREMIUM_ECONOMY"
	SeatTypeBusiness       SeatType = "BUSINESS"
	SeatTypeFirst          SeatType = "FIRST"
)

func (t SeatType) Valid() bool {
	switch t {
	case SeatTypeEconomy, SeatTypePremiumEconomy, SeatTypeBusiness, SeatTypeFirst:
		return true
	}
	return false
}

type Flight struct {
	ID             int64          `json:"id"`
	AirlineName    string         `json:"airlineName"`
	AirlineCode    string         `json:"airlineCode"`
	FromPlace      string         `json:"fromPlace"`
	ToPlace        string         `json:"toPlace"`
	DepartureTime  time.Time      `json:"departureDateTime"`
	ArrivalTime    time.Time      `json:"arrivalDateTime"`
	Price          float64        `json:"price"`
	AllocationMode AllocationMode `json:"allocationMode"`
	TotalSeats     int            `json:"totalSeats"`
	AvailableSeats int            `json:"availableSeats"`
	Seats          []Seat         `json:"seats,omitempty"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

type Seat struct {
	ID         int64    `json:"id"`
	FlightID   int64    `json:"flightId"`
	SeatNumber string   `json:"seatNumber"`
	SeatType   SeatType `json:"seatType"`
	Booked     bool     `json:"booked"`
}

// SeatByNumber returns a pointer into f.Seats so callers can flip the booked flag in place.
func (f *Flight) SeatByNumber(number string) *Seat {
	for i := range f.Seats {
		if f.Seats[i].SeatNumber == number {
			return &f.Seats[i]
		}
	}
	return nil
}

// FreeSeats counts unbooked seats of a seat-map flight.
func (f *Flight) FreeSeats() int {
	free := 0
	for _, s := range f.Seats {
		if !s.Booked {
			free++
		}
	}
	return free
}

// SeatRequest addresses either a number of seats (count mode) or explicit
// seat numbers (seat-map mode).
type SeatRequest struct {
	Count       int      `json:"count,omitempty"`
	SeatNumbers []string `json:"seatNumbers,omitempty"`
}

func (r SeatRequest) IsSeatMap() bool {
	return len(r.SeatNumbers) > 0
}

// NormalizeSeatNumber is the stored form of a seat number.
func NormalizeSeatNumber(n string) string {
	return strings.ToUpper(strings.TrimSpace(n))
}

// Normalized returns a copy with every seat number in stored form.
func (r SeatRequest) Normalized() SeatRequest {
	if len(r.SeatNumbers) == 0 {
		return r
	}
	numbers := make([]string, len(r.SeatNumbers))
	for i, n := range r.SeatNumbers {
		numbers[i] = NormalizeSeatNumber(n)
	}
	return SeatRequest{Count: r.Count, SeatNumbers: numbers}
}

// Size is the number of seats the request touches.
func (r SeatRequest) Size() int {
	if r.IsSeatMap() {
		return len(r.SeatNumbers)
	}
	return r.Count
}
