package repository

import (
	"context"
	"time"

	"dedicated/internal/domain"
)

// BookingRepository defines the persistence operations for bookings.
type BookingRepository interface {
	// Create persists a new booking.
	Create(ctx context.Context, booking *domain.Booking) error

	// GetByID retrieves a booking by ID.
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// GetForUpdate retrieves a booking and locks its row until the enclosing
	// transaction ends. Outside a transaction it behaves like GetByID.
	GetForUpdate(ctx context.Context, id string) (*domain.Booking, error)

	// Update writes every mutable field of an existing booking.
	Update(ctx context.Context, booking *domain.Booking) error

	// Delete hard-deletes a booking unless it is ACTIVE.
	// Returns ErrNotFound if no deletable row matched.
	Delete(ctx context.Context, id string) error

	// List returns a page of bookings matching filter and the total match count.
	List(ctx context.Context, filter domain.BookingFilter) ([]*domain.Booking, int, error)

	// ListAvailable returns unassigned PENDING or APPROVED bookings starting after now.
	ListAvailable(ctx context.Context, now time.Time, limit int) ([]*domain.Booking, error)

	// ListDriverReservations returns the driver's bookings in resource-holding
	// states, excluding excludeID.
	ListDriverReservations(ctx context.Context, driverID, excludeID string) ([]*domain.Booking, error)

	// ListActiveStarted returns ACTIVE bookings with a start timestamp.
	ListActiveStarted(ctx context.Context) ([]*domain.Booking, error)

	// ListUncapturedCompleted returns bookings that ended COMPLETED while
	// their payment hold is still PREAUTHORIZED.
	ListUncapturedCompleted(ctx context.Context) ([]*domain.Booking, error)

	// ListUnassignedStartingBefore returns PENDING or APPROVED bookings
	// without a driver whose start time is before cutoff.
	ListUnassignedStartingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Booking, error)

	// LockDriver serializes allocation work for a driver until the enclosing
	// transaction ends.
	LockDriver(ctx context.Context, driverID string) error
}

// VehicleCategoryRepository provides read access to vehicle categories.
type VehicleCategoryRepository interface {
	// GetByID retrieves a vehicle category by ID.
	GetByID(ctx context.Context, id string) (*domain.VehicleCategory, error)
}

// LocationRepository persists location samples of in-progress bookings.
type LocationRepository interface {
	// Append stores a new sample.
	Append(ctx context.Context, update *domain.LocationUpdate) error

	// ListByBooking returns samples for a booking in the order received.
	ListByBooking(ctx context.Context, bookingID string, limit int) ([]*domain.LocationUpdate, error)

	// Latest returns the most recent sample for a booking.
	Latest(ctx context.Context, bookingID string) (*domain.LocationUpdate, error)
}

// UserRepository provides read access to users.
type UserRepository interface {
	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)
}
