package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskly/deskbot/internal/domain"
)

type BookingRepository interface {
	Create(ctx context.Context, date time.Time, desk int, owner string) (*domain.Booking, error)
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	Delete(ctx context.Context, id int64) error
	ListByOwner(ctx context.Context, owner string, since time.Time) ([]domain.Booking, error)
	ListAll(ctx context.Context, since *time.Time) ([]domain.Booking, error)
	ExistsForOwner(ctx context.Context, owner string, date time.Time) (bool, error)
	DesksTaken(ctx context.Context, date time.Time) ([]int, error)
}

type bookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) BookingRepository {
	return &bookingRepository{pool: pool}
}

const bookingCols = `id, booking_date, desk, owner_identity, created_at`

func (r *bookingRepository) Create(ctx context.Context, date time.Time, desk int, owner string) (*domain.Booking, error) {
	const q = `INSERT INTO bookings (booking_date, desk, owner_identity)
  VALUES ($1,$2,$3)
  RETURNING ` + bookingCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var b domain.Booking
	err := r.pool.QueryRow(ctx, q, date, desk, owner).Scan(
		&b.ID, &b.Date, &b.Desk, &b.OwnerIdentity, &b.CreatedAt,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: desk %d is already booked for %s", domain.ErrConflict, desk, date.Format(domain.DateFormat))
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var b domain.Booking
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&b.ID, &b.Date, &b.Desk, &b.OwnerIdentity, &b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &b, err
}

func (r *bookingRepository) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM bookings WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: no booking found with id %d", domain.ErrNotFound, id)
	}
	return nil
}

func (r *bookingRepository) ListByOwner(ctx context.Context, owner string, since time.Time) ([]domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings
  WHERE owner_identity=$1 AND booking_date >= $2
  ORDER BY booking_date, desk`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, owner, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBookings(rows)
}

// ListAll returns bookings with date >= since when a lower bound is given,
// or every booking otherwise.
func (r *bookingRepository) ListAll(ctx context.Context, since *time.Time) ([]domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		rows pgx.Rows
		err  error
	)
	if since != nil {
		const q = `SELECT ` + bookingCols + ` FROM bookings WHERE booking_date >= $1 ORDER BY booking_date, desk`
		rows, err = r.pool.Query(ctx, q, *since)
	} else {
		const q = `SELECT ` + bookingCols + ` FROM bookings ORDER BY booking_date, desk`
		rows, err = r.pool.Query(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBookings(rows)
}

func (r *bookingRepository) ExistsForOwner(ctx context.Context, owner string, date time.Time) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM bookings WHERE owner_identity=$1 AND booking_date=$2)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, q, owner, date).Scan(&exists)
	return exists, err
}

func (r *bookingRepository) DesksTaken(ctx context.Context, date time.Time) ([]int, error) {
	const q = `SELECT desk FROM bookings WHERE booking_date=$1 ORDER BY desk`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var desks []int
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		desks = append(desks, d)
	}
	return desks, rows.Err()
}

func scanBookings(rows pgx.Rows) ([]domain.Booking, error) {
	var bs []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(&b.ID, &b.Date, &b.Desk, &b.OwnerIdentity, &b.CreatedAt); err != nil {
			return nil, err
		}
		bs = append(bs, b)
	}
	return bs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ BookingRepository = (*bookingRepository)(nil)
