package repository

import (
	"context"
	"time"

	"dedicated/internal/domain"
)

// InvoiceRepository defines the persistence operations for invoices.
type InvoiceRepository interface {
	// Create persists a new invoice.
	// Returns ErrDuplicate if the booking already has one.
	Create(ctx context.Context, invoice *domain.Invoice) error

	// GetByBookingID retrieves the invoice of a booking.
	GetByBookingID(ctx context.Context, bookingID string) (*domain.Invoice, error)

	// MarkPaid sets the paid timestamp of an unpaid invoice. Already paid
	// invoices are left unchanged.
	MarkPaid(ctx context.Context, bookingID string, paidAt time.Time) error
}
