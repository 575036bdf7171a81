package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dedicated/internal/domain"
	"dedicated/internal/repository"
)

// InvoiceRepository is a PostgreSQL implementation of repository.InvoiceRepository.
type InvoiceRepository struct {
	q Querier
}

// NewInvoiceRepository creates a new PostgreSQL invoice repository.
func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{q: db}
}

// Create persists a new invoice.
func (r *InvoiceRepository) Create(ctx context.Context, inv *domain.Invoice) error {
	query := `
		INSERT INTO invoices (id, booking_id, user_id, subtotal, tax_rate, tax, discount, total, currency, issued_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.q.ExecContext(ctx, query,
		inv.ID,
		inv.BookingID,
		inv.UserID,
		inv.Subtotal,
		inv.TaxRate,
		inv.Tax,
		inv.Discount,
		inv.Total,
		inv.Currency,
		inv.IssuedAt,
		nullTime(inv.PaidAt),
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetByBookingID retrieves the invoice of a booking.
func (r *InvoiceRepository) GetByBookingID(ctx context.Context, bookingID string) (*domain.Invoice, error) {
	query := `
		SELECT id, booking_id, user_id, subtotal, tax_rate, tax, discount, total, currency, issued_at, paid_at
		FROM invoices WHERE booking_id = $1
	`
	var inv domain.Invoice
	var paidAt sql.NullTime
	err := r.q.QueryRowContext(ctx, query, bookingID).Scan(
		&inv.ID,
		&inv.BookingID,
		&inv.UserID,
		&inv.Subtotal,
		&inv.TaxRate,
		&inv.Tax,
		&inv.Discount,
		&inv.Total,
		&inv.Currency,
		&inv.IssuedAt,
		&paidAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if paidAt.Valid {
		inv.PaidAt = paidAt.Time
	}
	return &inv, nil
}

// MarkPaid sets paid_at on the invoice of a booking if it is still unpaid.
func (r *InvoiceRepository) MarkPaid(ctx context.Context, bookingID string, paidAt time.Time) error {
	query := `UPDATE invoices SET paid_at = $2 WHERE booking_id = $1 AND paid_at IS NULL`
	_, err := r.q.ExecContext(ctx, query, bookingID, paidAt)
	return err
}

var _ repository.InvoiceRepository = (*InvoiceRepository)(nil)
