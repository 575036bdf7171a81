package repository

import (
	"context"

	"dedicated/internal/domain"
)

// WalletRepository defines the persistence operations for wallets.
type WalletRepository interface {
	// CreateIfAbsent persists wallet unless the user already has one.
	CreateIfAbsent(ctx context.Context, wallet *domain.Wallet) error

	// GetByUserID retrieves a user's wallet.
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)

	// GetByUserIDForUpdate retrieves a user's wallet and locks it until the
	// enclosing transaction ends.
	GetByUserIDForUpdate(ctx context.Context, userID string) (*domain.Wallet, error)

	// UpdateBalance sets the running balance of a wallet.
	UpdateBalance(ctx context.Context, walletID string, balance float64) error
}

// LedgerRepository defines the append-only persistence of ledger entries.
type LedgerRepository interface {
	// Append inserts a new entry. Entries are never updated.
	Append(ctx context.Context, entry *domain.LedgerEntry) error

	// ListByUser returns a page of a user's entries, newest first.
	ListByUser(ctx context.Context, userID string, page, limit int) ([]*domain.LedgerEntry, error)

	// ListFareLinkedEarnings returns every earnings entry that still carries
	// the fare amount it was derived from, oldest first.
	ListFareLinkedEarnings(ctx context.Context) ([]*domain.LedgerEntry, error)

	// SumCorrections returns the signed total of corrections linked to entryID.
	SumCorrections(ctx context.Context, entryID string) (float64, error)

	// HasEarnings reports whether an earnings entry of txType exists for the
	// referenced fare and driver.
	HasEarnings(ctx context.Context, refType domain.ReferenceType, refID, driverID string, txType domain.TransactionType) (bool, error)

	// SumSigned returns the signed total of all entries of a wallet.
	SumSigned(ctx context.Context, walletID string) (float64, error)
}

// SettingsRepository stores administrative key/value settings.
type SettingsRepository interface {
	// GetForUpdate retrieves a setting and locks it until the enclosing
	// transaction ends. Returns ErrNotFound if the key is unset.
	GetForUpdate(ctx context.Context, key string) (string, error)

	// Get retrieves a setting. Returns ErrNotFound if the key is unset.
	Get(ctx context.Context, key string) (string, error)

	// Insert creates a setting. Returns ErrDuplicate if the key exists.
	Insert(ctx context.Context, key, value string) error

	// Update overwrites an existing setting.
	Update(ctx context.Context, key, value string) error
}

// FareRepository reads settled fares from bookings and rides.
type FareRepository interface {
	// ListUnrecordedPaidFares returns paid fares with a driver that have no
	// earnings entry yet.
	ListUnrecordedPaidFares(ctx context.Context) ([]domain.PaidFare, error)
}
