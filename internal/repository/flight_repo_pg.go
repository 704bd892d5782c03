package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// FlightRepository is the inventory store of the flight service.
type FlightRepository interface {
	Create(ctx context.Context, flight *domain.Flight) error
	List(ctx context.Context) ([]domain.Flight, error)
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
	Search(ctx context.Context, from, to string) ([]domain.Flight, error)
	// UpdateSeats locks the flight and its seats, runs apply on the locked
	// copy and persists the result in the same transaction. An error from
	// apply rolls everything back.
	UpdateSeats(ctx context.Context, id int64, apply func(*domain.Flight) error) (*domain.Flight, error)
}

type PGFlightRepository struct {
	db *pgxpool.Pool
}

func NewFlightRepository(db *pgxpool.Pool) FlightRepository {
	return &PGFlightRepository{db: db}
}

const selectFlight = `SELECT id, airline_name, airline_code, from_place, to_place, departure_time, arrival_time, price,
	allocation_mode, total_seats, available_seats, version, created_at, updated_at FROM flights`

const selectSeats = `SELECT id, flight_id, seat_number, seat_type, booked FROM flight_seats WHERE flight_id=$1 ORDER BY id`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *PGFlightRepository) Create(ctx context.Context, f *domain.Flight) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx, `INSERT INTO flights
		(airline_name, airline_code, from_place, to_place, departure_time, arrival_time, price, allocation_mode, total_seats, available_seats)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, version, created_at, updated_at`,
		f.AirlineName, f.AirlineCode, f.FromPlace, f.ToPlace, f.DepartureTime, f.ArrivalTime, f.Price,
		f.AllocationMode, f.TotalSeats, f.AvailableSeats).
		Scan(&f.ID, &f.Version, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return err
	}

	for i := range f.Seats {
		s := &f.Seats[i]
		s.FlightID = f.ID
		err := tx.QueryRow(ctx, `INSERT INTO flight_seats (flight_id, seat_number, seat_type, booked)
			VALUES ($1, $2, $3, $4) RETURNING id`, s.FlightID, s.SeatNumber, s.SeatType, s.Booked).Scan(&s.ID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return domain.NewValidationError("seat number %s is duplicated", s.SeatNumber)
			}
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *PGFlightRepository) List(ctx context.Context) ([]domain.Flight, error) {
	return r.queryFlights(ctx, selectFlight+` ORDER BY departure_time`)
}

func (r *PGFlightRepository) Search(ctx context.Context, from, to string) ([]domain.Flight, error) {
	return r.queryFlights(ctx, selectFlight+` WHERE upper(from_place)=upper($1) AND upper(to_place)=upper($2) ORDER BY departure_time`, from, to)
}

func (r *PGFlightRepository) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	f, err := scanFlight(r.db.QueryRow(ctx, selectFlight+` WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFlightNotFound
		}
		return nil, err
	}

	f.Seats, err = querySeats(ctx, r.db, selectSeats, id)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *PGFlightRepository) UpdateSeats(ctx context.Context, id int64, apply func(*domain.Flight) error) (*domain.Flight, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	f, err := scanFlight(tx.QueryRow(ctx, selectFlight+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFlightNotFound
		}
		return nil, err
	}

	f.Seats, err = querySeats(ctx, tx, selectSeats+` FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}

	before := snapshotBooked(f.Seats)
	if err := apply(&f); err != nil {
		return nil, err
	}
	if f.AvailableSeats < 0 {
		return nil, fmt.Errorf("flight %d: available seats would become negative", id)
	}

	batch := &pgx.Batch{}
	batch.Queue(`UPDATE flights SET available_seats=$1, version=version+1, updated_at=now() WHERE id=$2 AND version=$3`,
		f.AvailableSeats, f.ID, f.Version)
	for _, s := range changedSeats(before, f.Seats) {
		batch.Queue(`UPDATE flight_seats SET booked=$1 WHERE id=$2`, s.Booked, s.ID)
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return nil, err
		}
		if i == 0 && tag.RowsAffected() == 0 {
			results.Close()
			return nil, fmt.Errorf("flight %d was modified concurrently", id)
		}
	}
	if err := results.Close(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	f.Version++
	return &f, nil
}

func (r *PGFlightRepository) queryFlights(ctx context.Context, sql string, args ...any) ([]domain.Flight, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flights := make([]domain.Flight, 0)
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, err
		}
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

func scanFlight(row pgx.Row) (domain.Flight, error) {
	var f domain.Flight
	err := row.Scan(&f.ID, &f.AirlineName, &f.AirlineCode, &f.FromPlace, &f.ToPlace, &f.DepartureTime, &f.ArrivalTime,
		&f.Price, &f.AllocationMode, &f.TotalSeats, &f.AvailableSeats, &f.Version, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func querySeats(ctx context.Context, q querier, sql string, flightID int64) ([]domain.Seat, error) {
	rows, err := q.Query(ctx, sql, flightID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[domain.Seat])
}

func snapshotBooked(seats []domain.Seat) []bool {
	booked := make([]bool, len(seats))
	for i, s := range seats {
		booked[i] = s.Booked
	}
	return booked
}

// changedSeats returns the seats whose booked flag differs from the snapshot.
func changedSeats(before []bool, seats []domain.Seat) []domain.Seat {
	var changed []domain.Seat
	for i, s := range seats {
		if i < len(before) && before[i] == s.Booked {
			continue
		}
		changed = append(changed, s)
	}
	return changed
}

var _ FlightRepository = (*PGFlightRepository)(nil)
