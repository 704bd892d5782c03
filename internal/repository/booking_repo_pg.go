package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// BookingRepository is the booking service's store. Bookings are never deleted.
type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByPNR(ctx context.Context, pnr string) (*domain.Booking, error)
	ListByEmail(ctx context.Context, email string) ([]domain.Booking, error)
	// TransitionStatus moves a booking from one status to another and fails
	// with domain.ErrInvalidState when the booking is no longer in from.
	TransitionStatus(ctx context.Context, pnr string, from, to domain.BookingStatus) (*domain.Booking, error)
}

type PGBookingRepository struct {
	db *sqlx.DB
}

func NewBookingRepository(db *sqlx.DB) BookingRepository {
	return &PGBookingRepository{db: db}
}

type bookingRow struct {
	ID               int64          `db:"id"`
	PNR              string         `db:"pnr"`
	Email            string         `db:"email"`
	PassengerDetails string         `db:"passenger_details"`
	Seats            int            `db:"seats"`
	SeatNumbers      pq.StringArray `db:"seat_numbers"`
	FlightID         int64          `db:"flight_id"`
	BookedAt         time.Time      `db:"booked_at"`
	Status           string         `db:"status"`
	Amount           float64        `db:"amount"`
	TicketJSON       string         `db:"ticket_json"`
	JourneyDate      sql.NullTime   `db:"journey_date"`
}

func (r bookingRow) toDomain() domain.Booking {
	b := domain.Booking{
		ID:               r.ID,
		PNR:              r.PNR,
		Email:            r.Email,
		PassengerDetails: r.PassengerDetails,
		Seats:            r.Seats,
		SeatNumbers:      []string(r.SeatNumbers),
		FlightID:         r.FlightID,
		BookedAt:         r.BookedAt,
		Status:           domain.BookingStatus(r.Status),
		Amount:           r.Amount,
		TicketJSON:       r.TicketJSON,
	}
	if len(b.SeatNumbers) == 0 {
		b.SeatNumbers = nil
	}
	if r.JourneyDate.Valid {
		jd := r.JourneyDate.Time
		b.JourneyDate = &jd
	}
	return b
}

const bookingColumns = `id, pnr, email, passenger_details, seats, seat_numbers, flight_id, booked_at, status, amount, ticket_json, journey_date`

func (r *PGBookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	var journey sql.NullTime
	if b.JourneyDate != nil {
		journey = sql.NullTime{Time: *b.JourneyDate, Valid: true}
	}

	err := r.db.QueryRowxContext(ctx, `INSERT INTO bookings
		(pnr, email, passenger_details, seats, seat_numbers, flight_id, booked_at, status, amount, ticket_json, journey_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		b.PNR, b.Email, b.PassengerDetails, b.Seats, pq.StringArray(b.SeatNumbers), b.FlightID, b.BookedAt,
		string(b.Status), b.Amount, b.TicketJSON, journey).Scan(&b.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation && pqErr.Constraint == "bookings_pnr_key" {
			return domain.ErrDuplicatePNR
		}
		return err
	}
	return nil
}

func (r *PGBookingRepository) GetByPNR(ctx context.Context, pnr string) (*domain.Booking, error) {
	var row bookingRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+bookingColumns+` FROM bookings WHERE pnr=$1`, pnr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, err
	}
	b := row.toDomain()
	return &b, nil
}

func (r *PGBookingRepository) ListByEmail(ctx context.Context, email string) ([]domain.Booking, error) {
	var rows []bookingRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+bookingColumns+` FROM bookings WHERE email=$1 ORDER BY booked_at DESC`, email); err != nil {
		return nil, err
	}

	bookings := make([]domain.Booking, 0, len(rows))
	for _, row := range rows {
		bookings = append(bookings, row.toDomain())
	}
	return bookings, nil
}

func (r *PGBookingRepository) TransitionStatus(ctx context.Context, pnr string, from, to domain.BookingStatus) (*domain.Booking, error) {
	var row bookingRow
	err := r.db.GetContext(ctx, &row, `UPDATE bookings SET status=$1 WHERE pnr=$2 AND status=$3 RETURNING `+bookingColumns,
		string(to), pnr, string(from))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInvalidState
		}
		return nil, err
	}
	b := row.toDomain()
	return &b, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
