package domain

import (
	"encoding/json"
	"time"
)

type BookingStatus string

const (
	BookingStatusBooked    BookingStatus = "BOOKED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// JourneyDateLayout is the wire and ticket format of a journey date.
const JourneyDateLayout = "2006-01-02"

type Booking struct {
	ID               int64         `json:"id"`
	PNR              string        `json:"pnr"`
	Email            string        `json:"email"`
	PassengerDetails string        `json:"passengerDetails"`
	Seats            int           `json:"seats"`
	SeatNumbers      []string      `json:"seatNumbers,omitempty"`
	FlightID         int64         `json:"flightId"`
	BookedAt         time.Time     `json:"bookedAt"`
	Status           BookingStatus `json:"status"`
	Amount           float64       `json:"amount"`
	TicketJSON       string        `json:"ticketJson"`
	JourneyDate      *time.Time    `json:"journeyDate,omitempty"`
}

// SeatRequest describes the seats this booking holds on the flight service.
func (b *Booking) SeatRequest() SeatRequest {
	if len(b.SeatNumbers) > 0 {
		return SeatRequest{SeatNumbers: b.SeatNumbers}
	}
	return SeatRequest{Count: b.Seats}
}

// Ticket is the snapshot stored with a booking and later returned verbatim.
type Ticket struct {
	PNR         string `json:"pnr"`
	FlightID    int64  `json:"flightId"`
	JourneyDate string `json:"journeyDate"`
	Passengers  string `json:"passengers"`
}

func NewTicket(b *Booking) Ticket {
	t := Ticket{
		PNR:        b.PNR,
		FlightID:   b.FlightID,
		Passengers: b.PassengerDetails,
	}
	if b.JourneyDate != nil {
		t.JourneyDate = b.JourneyDate.Format(JourneyDateLayout)
	}
	return t
}

func (t Ticket) Marshal() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// TicketView is what a ticket download returns. FlightDetails is nil when the
// flight service could not be reached.
type TicketView struct {
	PNR              string   `json:"pnr"`
	Email            string   `json:"email"`
	PassengerDetails string   `json:"passengerDetails"`
	Seats            int      `json:"seats"`
	SeatNumbers      []string `json:"seatNumbers,omitempty"`
	FlightID         int64    `json:"flightId"`
	FlightDetails    *Flight  `json:"flightDetails"`
	TicketJSON       string   `json:"ticketJson"`
}

// CancelResult confirms a cancellation. ReleaseStatus reports what happened to
// the seats on the flight service and never affects the cancellation itself.
type CancelResult struct {
	PNR           string `json:"pnr"`
	Message       string `json:"message"`
	ReleaseStatus string `json:"releaseStatus,omitempty"`
}

// SeatReleaseTask is queued when releasing seats for a cancelled booking
// could not reach the flight service.
type SeatReleaseTask struct {
	PNR         string    `json:"pnr"`
	FlightID    int64     `json:"flight_id"`
	Count       int       `json:"count,omitempty"`
	SeatNumbers []string  `json:"seat_numbers,omitempty"`
	Attempt     int       `json:"attempt"`
	QueuedAt    time.Time `json:"queued_at"`
}

func (t SeatReleaseTask) SeatRequest() SeatRequest {
	return SeatRequest{Count: t.Count, SeatNumbers: t.SeatNumbers}
}
