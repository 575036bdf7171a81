package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255),
		phone VARCHAR(32),
		role VARCHAR(16) NOT NULL DEFAULT 'user',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS vehicle_categories (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL REFERENCES users(id),
		driver_id VARCHAR(64) REFERENCES users(id),
		vehicle_category_id VARCHAR(64) NOT NULL REFERENCES vehicle_categories(id),
		pickup_address TEXT NOT NULL,
		pickup_lat DOUBLE PRECISION NOT NULL,
		pickup_lng DOUBLE PRECISION NOT NULL,
		dropoff_address TEXT NOT NULL,
		dropoff_lat DOUBLE PRECISION NOT NULL,
		dropoff_lng DOUBLE PRECISION NOT NULL,
		booking_date DATE NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		duration_hours INTEGER NOT NULL CHECK (duration_hours > 0),
		base_fare NUMERIC(12,2) NOT NULL,
		price_per_hour NUMERIC(12,2) NOT NULL,
		total_price NUMERIC(12,2) NOT NULL,
		discount_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
		promotion_code VARCHAR(64),
		notes TEXT,
		status VARCHAR(20) NOT NULL,
		payment_status VARCHAR(20) NOT NULL,
		payment_hold_id VARCHAR(255),
		refund_percentage INTEGER NOT NULL DEFAULT 0,
		cancel_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		ended_at TIMESTAMPTZ,
		cancelled_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS invoices (
		id VARCHAR(64) PRIMARY KEY,
		booking_id VARCHAR(64) NOT NULL UNIQUE REFERENCES bookings(id) ON DELETE CASCADE,
		user_id VARCHAR(64) NOT NULL,
		subtotal NUMERIC(12,2) NOT NULL,
		tax_rate NUMERIC(6,4) NOT NULL,
		tax NUMERIC(12,2) NOT NULL,
		discount NUMERIC(12,2) NOT NULL,
		total NUMERIC(12,2) NOT NULL,
		currency VARCHAR(8) NOT NULL,
		issued_at TIMESTAMPTZ NOT NULL,
		paid_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS location_updates (
		seq BIGSERIAL PRIMARY KEY,
		id VARCHAR(64) NOT NULL UNIQUE,
		booking_id VARCHAR(64) NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
		driver_id VARCHAR(64) NOT NULL,
		lat DOUBLE PRECISION NOT NULL,
		lng DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS wallets (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL UNIQUE,
		balance NUMERIC(14,2) NOT NULL DEFAULT 0,
		currency VARCHAR(8) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS wallet_ledger_entries (
		seq BIGSERIAL PRIMARY KEY,
		id VARCHAR(64) NOT NULL UNIQUE,
		wallet_id VARCHAR(64) NOT NULL REFERENCES wallets(id),
		user_id VARCHAR(64) NOT NULL,
		direction VARCHAR(8) NOT NULL CHECK (direction IN ('credit', 'debit')),
		amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
		balance_after NUMERIC(14,2) NOT NULL,
		description TEXT NOT NULL,
		transaction_type VARCHAR(48) NOT NULL,
		reference_type VARCHAR(16),
		reference_id VARCHAR(64),
		fare_amount NUMERIC(14,2),
		commission_percentage NUMERIC(5,2),
		related_entry_id VARCHAR(64),
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS settings (
		key VARCHAR(128) PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS promotions (
		code VARCHAR(64) PRIMARY KEY,
		discount_type VARCHAR(16) NOT NULL,
		value NUMERIC(12,2) NOT NULL,
		max_discount NUMERIC(12,2),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		valid_from TIMESTAMPTZ,
		valid_until TIMESTAMPTZ
	)`,

	// Settled rides are written by the on-demand ride service; the booking
	// service only reads them for earnings backfill.
	`CREATE TABLE IF NOT EXISTS rides (
		id VARCHAR(64) PRIMARY KEY,
		driver_id VARCHAR(64),
		fare NUMERIC(12,2) NOT NULL,
		payment_method VARCHAR(16) NOT NULL,
		payment_status VARCHAR(16) NOT NULL,
		paid_at TIMESTAMPTZ
	)`,

	`CREATE INDEX IF NOT EXISTS idx_bookings_driver_status ON bookings(driver_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_status_start ON bookings(status, start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_location_updates_booking ON location_updates(booking_id, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_wallet ON wallet_ledger_entries(wallet_id, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_related ON wallet_ledger_entries(related_entry_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_ledger_earnings
		ON wallet_ledger_entries(reference_type, reference_id, user_id, transaction_type)
		WHERE transaction_type IN ('booking_earnings', 'ride_earnings', 'cash_commission')`,
}

// RunMigrations creates the schema if it does not exist yet.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %d: %w", i, err)
		}
	}
	return nil
}
