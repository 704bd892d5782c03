package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/Domenick1991/flightbooking/internal/kafka"
	"github.com/sirupsen/logrus"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers booking notifications. Delivery is a structured log line
// until an SMTP relay is configured.
type Sender struct {
	logger logrus.FieldLogger
}

func NewSender(logger logrus.FieldLogger) *Sender {
	return &Sender{logger: logger}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	msg, err := Compose(event)
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"to":        msg.To,
		"subject":   msg.Subject,
		"pnr":       event.PNR,
		"flight_id": event.FlightID,
	}).Info("booking notification sent")
	return nil
}

func Compose(event kafka.BookingEvent) (Message, error) {
	if strings.TrimSpace(event.Email) == "" {
		return Message{}, fmt.Errorf("event %s for %s has no recipient", event.Type, event.PNR)
	}

	var subject, lead string
	switch event.Type {
	case kafka.EventBookingCreated:
		subject = "Booking confirmed: " + event.PNR
		lead = "Your booking is confirmed."
	case kafka.EventBookingCancelled:
		subject = "Booking cancelled: " + event.PNR
		lead = "Your booking has been cancelled."
	default:
		return Message{}, fmt.Errorf("unsupported event type %q", event.Type)
	}

	var b strings.Builder
	b.WriteString(lead + "\n\n")
	fmt.Fprintf(&b, "PNR: %s\n", event.PNR)
	fmt.Fprintf(&b, "Flight: %d\n", event.FlightID)
	if len(event.SeatNumbers) > 0 {
		fmt.Fprintf(&b, "Seats: %s\n", strings.Join(event.SeatNumbers, ", "))
	} else {
		fmt.Fprintf(&b, "Seats: %d\n", event.Seats)
	}
	if event.JourneyDate != "" {
		fmt.Fprintf(&b, "Journey date: %s\n", event.JourneyDate)
	}

	return Message{To: event.Email, Subject: subject, Body: b.String()}, nil
}
