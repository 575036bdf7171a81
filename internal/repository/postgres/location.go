package postgres

import (
	"context"
	"database/sql"
	"errors"

	"dedicated/internal/domain"
	"dedicated/internal/repository"
)

// LocationRepository is a PostgreSQL implementation of repository.LocationRepository.
type LocationRepository struct {
	q Querier
}

// NewLocationRepository creates a new PostgreSQL location repository.
func NewLocationRepository(db *sql.DB) *LocationRepository {
	return &LocationRepository{q: db}
}

// Append stores a new sample.
func (r *LocationRepository) Append(ctx context.Context, u *domain.LocationUpdate) error {
	query := `
		INSERT INTO location_updates (id, booking_id, driver_id, lat, lng, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.q.ExecContext(ctx, query, u.ID, u.BookingID, u.DriverID, u.Lat, u.Lng, u.CreatedAt)
	return err
}

// ListByBooking returns samples for a booking in the order received.
func (r *LocationRepository) ListByBooking(ctx context.Context, bookingID string, limit int) ([]*domain.LocationUpdate, error) {
	query := `
		SELECT id, booking_id, driver_id, lat, lng, created_at
		FROM location_updates WHERE booking_id = $1
		ORDER BY seq ASC LIMIT $2
	`
	rows, err := r.q.QueryContext(ctx, query, bookingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []*domain.LocationUpdate
	for rows.Next() {
		var u domain.LocationUpdate
		if err := rows.Scan(&u.ID, &u.BookingID, &u.DriverID, &u.Lat, &u.Lng, &u.CreatedAt); err != nil {
			return nil, err
		}
		updates = append(updates, &u)
	}
	return updates, rows.Err()
}

// Latest returns the most recent sample for a booking.
func (r *LocationRepository) Latest(ctx context.Context, bookingID string) (*domain.LocationUpdate, error) {
	query := `
		SELECT id, booking_id, driver_id, lat, lng, created_at
		FROM location_updates WHERE booking_id = $1
		ORDER BY seq DESC LIMIT 1
	`
	var u domain.LocationUpdate
	err := r.q.QueryRowContext(ctx, query, bookingID).Scan(&u.ID, &u.BookingID, &u.DriverID, &u.Lat, &u.Lng, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

var _ repository.LocationRepository = (*LocationRepository)(nil)
