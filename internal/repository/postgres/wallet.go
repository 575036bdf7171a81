package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"dedicated/internal/domain"
	"dedicated/internal/repository"
)

// WalletRepository is a PostgreSQL implementation of repository.WalletRepository.
type WalletRepository struct {
	q Querier
}

// NewWalletRepository creates a new PostgreSQL wallet repository.
func NewWalletRepository(db *sql.DB) *WalletRepository {
	return &WalletRepository{q: db}
}

// NewWalletRepositoryWithTx creates a wallet repository using a transaction.
func NewWalletRepositoryWithTx(tx *sql.Tx) *WalletRepository {
	return &WalletRepository{q: tx}
}

// CreateIfAbsent persists a wallet unless the user already has one.
func (r *WalletRepository) CreateIfAbsent(ctx context.Context, w *domain.Wallet) error {
	query := `
		INSERT INTO wallets (id, user_id, balance, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := r.q.ExecContext(ctx, query, w.ID, w.UserID, w.Balance, w.Currency, w.CreatedAt, w.UpdatedAt)
	return err
}

// GetByUserID retrieves a user's wallet.
func (r *WalletRepository) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	return r.get(ctx, `SELECT id, user_id, balance, currency, created_at, updated_at FROM wallets WHERE user_id = $1`, userID)
}

// GetByUserIDForUpdate retrieves a user's wallet and locks its row.
func (r *WalletRepository) GetByUserIDForUpdate(ctx context.Context, userID string) (*domain.Wallet, error) {
	return r.get(ctx, `SELECT id, user_id, balance, currency, created_at, updated_at FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
}

func (r *WalletRepository) get(ctx context.Context, query, userID string) (*domain.Wallet, error) {
	var w domain.Wallet
	err := r.q.QueryRowContext(ctx, query, userID).Scan(&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

// UpdateBalance sets the running balance of a wallet.
func (r *WalletRepository) UpdateBalance(ctx context.Context, walletID string, balance float64) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE wallets SET balance = $2, updated_at = $3 WHERE id = $1`,
		walletID, balance, time.Now(),
	)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// LedgerRepository is a PostgreSQL implementation of repository.LedgerRepository.
type LedgerRepository struct {
	q Querier
}

// NewLedgerRepository creates a new PostgreSQL ledger repository.
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{q: db}
}

// NewLedgerRepositoryWithTx creates a ledger repository using a transaction.
func NewLedgerRepositoryWithTx(tx *sql.Tx) *LedgerRepository {
	return &LedgerRepository{q: tx}
}

const ledgerColumns = `
	id, wallet_id, user_id, direction, amount, balance_after, description, transaction_type,
	reference_type, reference_id, fare_amount, commission_percentage, related_entry_id, created_at`

// Append inserts a new entry.
func (r *LedgerRepository) Append(ctx context.Context, e *domain.LedgerEntry) error {
	query := `INSERT INTO wallet_ledger_entries (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	var fareAmount, commission sql.NullFloat64
	if e.FareAmount > 0 {
		fareAmount = sql.NullFloat64{Float64: e.FareAmount, Valid: true}
		commission = sql.NullFloat64{Float64: e.CommissionPercentage, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		e.ID,
		e.WalletID,
		e.UserID,
		e.Direction,
		e.Amount,
		e.BalanceAfter,
		e.Description,
		e.TransactionType,
		nullString(string(e.ReferenceType)),
		nullString(e.ReferenceID),
		fareAmount,
		commission,
		nullString(e.RelatedEntryID),
		e.CreatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// ListByUser returns a page of a user's entries, newest first.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID string, page, limit int) ([]*domain.LedgerEntry, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	query := `SELECT ` + ledgerColumns + ` FROM wallet_ledger_entries
		WHERE user_id = $1 ORDER BY seq DESC LIMIT $2 OFFSET $3`
	return r.query(ctx, query, userID, limit, (page-1)*limit)
}

// ListFareLinkedEarnings returns earnings entries carrying a fare amount, oldest first.
func (r *LedgerRepository) ListFareLinkedEarnings(ctx context.Context) ([]*domain.LedgerEntry, error) {
	types := make([]string, 0, len(domain.EarningsTypes))
	for _, t := range domain.EarningsTypes {
		types = append(types, string(t))
	}
	query := `SELECT ` + ledgerColumns + ` FROM wallet_ledger_entries
		WHERE transaction_type = ANY($1) AND fare_amount IS NOT NULL
		ORDER BY seq ASC`
	return r.query(ctx, query, pq.Array(types))
}

// SumCorrections returns the signed total of corrections linked to entryID.
func (r *LedgerRepository) SumCorrections(ctx context.Context, entryID string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE -amount END), 0)
		FROM wallet_ledger_entries
		WHERE related_entry_id = $1 AND transaction_type = $2
	`
	var sum float64
	err := r.q.QueryRowContext(ctx, query, entryID, domain.TransactionCommissionCorrection).Scan(&sum)
	return sum, err
}

// HasEarnings reports whether an earnings entry exists for the fare and driver.
func (r *LedgerRepository) HasEarnings(ctx context.Context, refType domain.ReferenceType, refID, driverID string, txType domain.TransactionType) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM wallet_ledger_entries
			WHERE reference_type = $1 AND reference_id = $2 AND user_id = $3 AND transaction_type = $4
		)
	`
	var exists bool
	err := r.q.QueryRowContext(ctx, query, refType, refID, driverID, txType).Scan(&exists)
	return exists, err
}

// SumSigned returns the signed total of all entries of a wallet.
func (r *LedgerRepository) SumSigned(ctx context.Context, walletID string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE -amount END), 0)
		FROM wallet_ledger_entries WHERE wallet_id = $1
	`
	var sum float64
	err := r.q.QueryRowContext(ctx, query, walletID).Scan(&sum)
	return sum, err
}

func (r *LedgerRepository) query(ctx context.Context, query string, args ...any) ([]*domain.LedgerEntry, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var refType, refID, related sql.NullString
		var fareAmount, commission sql.NullFloat64

		if err := rows.Scan(
			&e.ID,
			&e.WalletID,
			&e.UserID,
			&e.Direction,
			&e.Amount,
			&e.BalanceAfter,
			&e.Description,
			&e.TransactionType,
			&refType,
			&refID,
			&fareAmount,
			&commission,
			&related,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}

		e.ReferenceType = domain.ReferenceType(refType.String)
		e.ReferenceID = refID.String
		e.FareAmount = fareAmount.Float64
		e.CommissionPercentage = commission.Float64
		e.RelatedEntryID = related.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// SettingsRepository is a PostgreSQL implementation of repository.SettingsRepository.
type SettingsRepository struct {
	q Querier
}

// NewSettingsRepository creates a new PostgreSQL settings repository.
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{q: db}
}

// Get retrieves a setting.
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	return r.get(ctx, `SELECT value FROM settings WHERE key = $1`, key)
}

// GetForUpdate retrieves a setting and locks its row.
func (r *SettingsRepository) GetForUpdate(ctx context.Context, key string) (string, error) {
	return r.get(ctx, `SELECT value FROM settings WHERE key = $1 FOR UPDATE`, key)
}

func (r *SettingsRepository) get(ctx context.Context, query, key string) (string, error) {
	var value string
	err := r.q.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", repository.ErrNotFound
	}
	return value, err
}

// Insert creates a setting.
func (r *SettingsRepository) Insert(ctx context.Context, key, value string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)`,
		key, value, time.Now(),
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// Update overwrites an existing setting.
func (r *SettingsRepository) Update(ctx context.Context, key, value string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE settings SET value = $2, updated_at = $3 WHERE key = $1`,
		key, value, time.Now(),
	)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// FareRepository is a PostgreSQL implementation of repository.FareRepository.
type FareRepository struct {
	db *sql.DB
}

// NewFareRepository creates a new PostgreSQL fare repository.
func NewFareRepository(db *sql.DB) *FareRepository {
	return &FareRepository{db: db}
}

// ListUnrecordedPaidFares returns paid bookings and rides lacking an earnings entry.
func (r *FareRepository) ListUnrecordedPaidFares(ctx context.Context) ([]domain.PaidFare, error) {
	query := `
		SELECT f.reference_type, f.reference_id, f.driver_id, f.amount, f.payment_method, f.paid_at
		FROM (
			SELECT 'booking' AS reference_type, b.id AS reference_id, b.driver_id,
				b.total_price AS amount, 'CARD' AS payment_method, b.ended_at AS paid_at
			FROM bookings b
			WHERE b.status = 'COMPLETED' AND b.payment_status = 'CAPTURED' AND b.driver_id IS NOT NULL
			UNION ALL
			SELECT 'ride', r.id, r.driver_id, r.fare, r.payment_method, r.paid_at
			FROM rides r
			WHERE r.payment_status = 'PAID' AND r.driver_id IS NOT NULL
		) f
		WHERE NOT EXISTS (
			SELECT 1 FROM wallet_ledger_entries e
			WHERE e.reference_type = f.reference_type
				AND e.reference_id = f.reference_id
				AND e.user_id = f.driver_id
				AND e.transaction_type = ANY($1)
		)
		ORDER BY f.paid_at ASC
	`
	types := make([]string, 0, len(domain.EarningsTypes))
	for _, t := range domain.EarningsTypes {
		types = append(types, string(t))
	}

	rows, err := r.db.QueryContext(ctx, query, pq.Array(types))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fares []domain.PaidFare
	for rows.Next() {
		var f domain.PaidFare
		var paidAt sql.NullTime
		if err := rows.Scan(&f.ReferenceType, &f.ReferenceID, &f.DriverID, &f.Amount, &f.PaymentMethod, &paidAt); err != nil {
			return nil, err
		}
		if paidAt.Valid {
			f.PaidAt = paidAt.Time
		}
		fares = append(fares, f)
	}
	return fares, rows.Err()
}

var (
	_ repository.WalletRepository   = (*WalletRepository)(nil)
	_ repository.LedgerRepository   = (*LedgerRepository)(nil)
	_ repository.SettingsRepository = (*SettingsRepository)(nil)
	_ repository.FareRepository     = (*FareRepository)(nil)
)
