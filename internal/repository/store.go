package repository

import "context"

// Store groups the repositories that take part in a transaction.
type Store struct {
	Bookings BookingRepository
	Invoices InvoiceRepository
	Wallets  WalletRepository
	Ledger   LedgerRepository
	Settings SettingsRepository
}

// Transactor runs fn against repositories bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
