package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"dedicated/internal/domain"
	"dedicated/internal/repository"
)

const bookingColumns = `
	id, user_id, driver_id, vehicle_category_id,
	pickup_address, pickup_lat, pickup_lng, dropoff_address, dropoff_lat, dropoff_lng,
	booking_date, start_time, duration_hours,
	base_fare, price_per_hour, total_price, discount_amount, promotion_code, notes,
	status, payment_status, payment_hold_id, refund_percentage, cancel_reason,
	created_at, updated_at, started_at, ended_at, cancelled_at`

// BookingRepository is a PostgreSQL implementation of repository.BookingRepository.
type BookingRepository struct {
	q Querier
}

// NewBookingRepository creates a new PostgreSQL booking repository.
func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{q: db}
}

// NewBookingRepositoryWithTx creates a booking repository using a transaction.
func NewBookingRepositoryWithTx(tx *sql.Tx) *BookingRepository {
	return &BookingRepository{q: tx}
}

// Create persists a new booking.
func (r *BookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	query := `INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`

	_, err := r.q.ExecContext(ctx, query,
		b.ID,
		b.UserID,
		nullString(b.DriverID),
		b.VehicleCategoryID,
		b.PickupAddress,
		b.PickupLat,
		b.PickupLng,
		b.DropoffAddress,
		b.DropoffLat,
		b.DropoffLng,
		b.BookingDate,
		b.StartTime,
		b.DurationHours,
		b.BaseFare,
		b.PricePerHour,
		b.TotalPrice,
		b.DiscountAmount,
		nullString(b.PromotionCode),
		nullString(b.Notes),
		b.Status,
		b.PaymentStatus,
		nullString(b.PaymentHoldID),
		b.RefundPercentage,
		nullString(b.CancelReason),
		b.CreatedAt,
		b.UpdatedAt,
		nullTime(b.StartedAt),
		nullTime(b.EndedAt),
		nullTime(b.CancelledAt),
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetByID retrieves a booking by ID.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetForUpdate retrieves a booking and locks its row.
func (r *BookingRepository) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *BookingRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Booking, error) {
	b, err := scanBooking(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// Update writes every mutable field of an existing booking.
func (r *BookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	query := `
		UPDATE bookings SET
			driver_id = $2, status = $3, payment_status = $4, payment_hold_id = $5,
			total_price = $6, discount_amount = $7, refund_percentage = $8, cancel_reason = $9,
			updated_at = $10, started_at = $11, ended_at = $12, cancelled_at = $13
		WHERE id = $1
	`

	res, err := r.q.ExecContext(ctx, query,
		b.ID,
		nullString(b.DriverID),
		b.Status,
		b.PaymentStatus,
		nullString(b.PaymentHoldID),
		b.TotalPrice,
		b.DiscountAmount,
		b.RefundPercentage,
		nullString(b.CancelReason),
		b.UpdatedAt,
		nullTime(b.StartedAt),
		nullTime(b.EndedAt),
		nullTime(b.CancelledAt),
	)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// Delete hard-deletes a booking unless it is ACTIVE.
func (r *BookingRepository) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM bookings WHERE id = $1 AND status <> $2`,
		id, domain.BookingStatusActive,
	)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// List returns a page of bookings matching filter and the total match count.
func (r *BookingRepository) List(ctx context.Context, f domain.BookingFilter) ([]*domain.Booking, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.DriverID != "" {
		add("driver_id = $%d", f.DriverID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if !f.FromDate.IsZero() {
		add("booking_date >= $%d", f.FromDate)
	}
	if !f.ToDate.IsZero() {
		add("booking_date <= $%d", f.ToDate)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT %s FROM bookings%s ORDER BY start_time DESC LIMIT $%d OFFSET $%d`,
		bookingColumns, where, len(args)-1, len(args))

	bookings, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// ListAvailable returns unassigned PENDING or APPROVED bookings starting after now.
func (r *BookingRepository) ListAvailable(ctx context.Context, now time.Time, limit int) ([]*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE driver_id IS NULL AND status = ANY($1) AND start_time > $2
		ORDER BY start_time ASC LIMIT $3`
	statuses := pq.Array([]string{
		string(domain.BookingStatusPending),
		string(domain.BookingStatusApproved),
	})
	return r.query(ctx, query, statuses, now, limit)
}

// ListDriverReservations returns the driver's bookings in resource-holding states.
func (r *BookingRepository) ListDriverReservations(ctx context.Context, driverID, excludeID string) ([]*domain.Booking, error) {
	statuses := make([]string, 0, len(domain.ResourceHoldingStatuses))
	for _, s := range domain.ResourceHoldingStatuses {
		statuses = append(statuses, string(s))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE driver_id = $1 AND id <> $2 AND status = ANY($3)
		ORDER BY start_time ASC`
	return r.query(ctx, query, driverID, excludeID, pq.Array(statuses))
}

// ListActiveStarted returns ACTIVE bookings with a start timestamp.
func (r *BookingRepository) ListActiveStarted(ctx context.Context) ([]*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = $1 AND started_at IS NOT NULL
		ORDER BY started_at ASC`
	return r.query(ctx, query, domain.BookingStatusActive)
}

// ListUncapturedCompleted returns COMPLETED bookings that ended with their
// payment hold still PREAUTHORIZED. Overrides never set ended_at.
func (r *BookingRepository) ListUncapturedCompleted(ctx context.Context) ([]*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = $1 AND payment_status = $2
			AND payment_hold_id IS NOT NULL AND ended_at IS NOT NULL
		ORDER BY ended_at ASC`
	return r.query(ctx, query, domain.BookingStatusCompleted, domain.PaymentStatusPreauthorized)
}

// ListUnassignedStartingBefore returns PENDING or APPROVED bookings without
// a driver whose start time is before cutoff.
func (r *BookingRepository) ListUnassignedStartingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE driver_id IS NULL AND status = ANY($1) AND start_time < $2
		ORDER BY start_time ASC`
	statuses := pq.Array([]string{
		string(domain.BookingStatusPending),
		string(domain.BookingStatusApproved),
	})
	return r.query(ctx, query, statuses, cutoff)
}

// LockDriver takes a transaction-scoped advisory lock keyed by driver ID.
func (r *BookingRepository) LockDriver(ctx context.Context, driverID string) error {
	_, err := r.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "driver:"+driverID)
	return err
}

func (r *BookingRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Booking, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func scanBooking(s scanner) (*domain.Booking, error) {
	var b domain.Booking
	var (
		driverID, promotionCode, notes, holdID, cancelReason sql.NullString
		startedAt, endedAt, cancelledAt                      sql.NullTime
	)

	err := s.Scan(
		&b.ID,
		&b.UserID,
		&driverID,
		&b.VehicleCategoryID,
		&b.PickupAddress,
		&b.PickupLat,
		&b.PickupLng,
		&b.DropoffAddress,
		&b.DropoffLat,
		&b.DropoffLng,
		&b.BookingDate,
		&b.StartTime,
		&b.DurationHours,
		&b.BaseFare,
		&b.PricePerHour,
		&b.TotalPrice,
		&b.DiscountAmount,
		&promotionCode,
		&notes,
		&b.Status,
		&b.PaymentStatus,
		&holdID,
		&b.RefundPercentage,
		&cancelReason,
		&b.CreatedAt,
		&b.UpdatedAt,
		&startedAt,
		&endedAt,
		&cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	b.DriverID = driverID.String
	b.PromotionCode = promotionCode.String
	b.Notes = notes.String
	b.PaymentHoldID = holdID.String
	b.CancelReason = cancelReason.String
	if startedAt.Valid {
		b.StartedAt = startedAt.Time
	}
	if endedAt.Valid {
		b.EndedAt = endedAt.Time
	}
	if cancelledAt.Valid {
		b.CancelledAt = cancelledAt.Time
	}

	return &b, nil
}

var _ repository.BookingRepository = (*BookingRepository)(nil)
