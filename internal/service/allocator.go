package service

import (
	"context"
	"errors"
	"time"

	"dedicated/internal/domain"
	"dedicated/internal/repository"
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Adjacent intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// DriverAllocator reserves drivers for booking windows.
type DriverAllocator struct {
	tx repository.Transactor
}

// NewDriverAllocator creates a new DriverAllocator.
func NewDriverAllocator(tx repository.Transactor) *DriverAllocator {
	return &DriverAllocator{tx: tx}
}

// FindConflicts returns the driver's resource-holding bookings whose window
// intersects [windowStart, windowEnd). A booking already underway is compared
// from its actual start rather than its scheduled one.
func (a *DriverAllocator) FindConflicts(
	ctx context.Context,
	bookings repository.BookingRepository,
	driverID string,
	windowStart, windowEnd time.Time,
	excludeBookingID string,
) ([]*domain.Booking, error) {
	candidates, err := bookings.ListDriverReservations(ctx, driverID, excludeBookingID)
	if err != nil {
		return nil, err
	}

	var conflicts []*domain.Booking
	for _, b := range candidates {
		if b.ID == excludeBookingID || !b.HoldsDriver(driverID) {
			continue
		}
		bStart, bEnd := b.Window()
		if Overlaps(bStart, bEnd, windowStart, windowEnd) {
			conflicts = append(conflicts, b)
		}
	}
	return conflicts, nil
}

// Reserve assigns driverID to a PENDING or APPROVED booking. The conflict
// check and the assignment run in one transaction under a lock keyed by the
// driver, so two overlapping reservations for the same driver cannot both
// succeed.
func (a *DriverAllocator) Reserve(ctx context.Context, bookingID, driverID string, now time.Time) (*domain.Booking, error) {
	var reserved *domain.Booking

	err := a.tx.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Bookings.LockDriver(ctx, driverID); err != nil {
			return err
		}

		booking, err := tx.Bookings.GetForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrBookingNotFound
			}
			return err
		}

		if booking.Status != domain.BookingStatusPending && booking.Status != domain.BookingStatusApproved {
			return ErrInvalidTransition
		}

		conflicts, err := a.FindConflicts(ctx, tx.Bookings, driverID, booking.StartTime, booking.EndTime(), booking.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return ErrDriverUnavailable
		}

		booking.DriverID = driverID
		booking.Status = domain.BookingStatusDriverAssigned
		booking.UpdatedAt = now
		if err := tx.Bookings.Update(ctx, booking); err != nil {
			return err
		}

		reserved = booking
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reserved, nil
}
