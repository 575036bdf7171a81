package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrBookingNotFound is returned when a booking does not exist.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrUserNotFound is returned when the requesting user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrDriverNotFound is returned when the driver does not exist.
	ErrDriverNotFound = errors.New("driver not found")

	// ErrVehicleCategoryNotFound is returned when the vehicle category does not exist.
	ErrVehicleCategoryNotFound = errors.New("vehicle category not found")

	// ErrInvoiceNotFound is returned when a booking has no invoice.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrWalletNotFound is returned when a user has no wallet.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrLocationNotFound is returned when no position was reported for a booking.
	ErrLocationNotFound = errors.New("location not found")

	// ErrStartTimeInPast is returned when the start time is before now.
	ErrStartTimeInPast = errors.New("start time is in the past")

	// ErrBookingDateInPast is returned when the booking date is before today.
	ErrBookingDateInPast = errors.New("booking date is in the past")

	// ErrBookingDateMismatch is returned when the booking date and the start
	// time fall on different calendar days.
	ErrBookingDateMismatch = errors.New("booking date does not match start time")

	// ErrVehicleCategoryInactive is returned when the vehicle category is disabled.
	ErrVehicleCategoryInactive = errors.New("vehicle category is inactive")

	// ErrNotADriver is returned when the user to allocate lacks the driver role.
	ErrNotADriver = errors.New("user is not a driver")

	// ErrInvalidTransition is returned when the booking's current status does
	// not allow the requested action.
	ErrInvalidTransition = errors.New("invalid booking status transition")

	// ErrInvalidStatus is returned when a target status is not a known booking status.
	ErrInvalidStatus = errors.New("invalid booking status")

	// ErrBookingActive is returned when removing a booking that is in progress.
	ErrBookingActive = errors.New("active booking cannot be removed")

	// ErrNotAssignedDriver is returned when a driver acts on a booking assigned to someone else.
	ErrNotAssignedDriver = errors.New("driver is not assigned to this booking")

	// ErrDriverUnavailable is returned when the driver already holds an
	// overlapping reservation.
	ErrDriverUnavailable = errors.New("driver already booked in an overlapping window")

	// ErrInvoiceRequiresCompletedBooking is returned when invoicing a booking
	// that has not completed.
	ErrInvoiceRequiresCompletedBooking = errors.New("invoice requires a completed booking")

	// ErrLocationNotTrackable is returned when a position is reported for a
	// booking that is neither on the way nor active.
	ErrLocationNotTrackable = errors.New("booking is not accepting location updates")

	// ErrInvalidCommission is returned when a commission percentage is outside [0,100].
	ErrInvalidCommission = errors.New("commission percentage must be between 0 and 100")

	// ErrInvalidAmount is returned when a ledger posting amount is not positive.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrPaymentUnavailable is returned when the payment gateway failed transiently.
	ErrPaymentUnavailable = errors.New("payment service temporarily unavailable")

	// ErrPaymentDeclined is returned when the payment gateway refused the hold.
	ErrPaymentDeclined = errors.New("payment declined")
)

// ValidationError reports malformed input with a message per field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// fieldErrors accumulates per-field validation messages.
type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}
