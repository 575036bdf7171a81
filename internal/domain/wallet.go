package domain

import "time"

// Direction is the sign of a ledger entry.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// TransactionType tags what produced a ledger entry.
type TransactionType string

const (
	// TransactionBookingEarnings credits a driver's share of a card or wallet
	// paid booking.
	TransactionBookingEarnings TransactionType = "booking_earnings"
	// TransactionRideEarnings credits a driver's share of a card or wallet
	// paid ride.
	TransactionRideEarnings TransactionType = "ride_earnings"
	// TransactionCashCommission debits the system share of a fare the driver
	// collected in cash.
	TransactionCashCommission       TransactionType = "cash_commission"
	TransactionCommissionCorrection TransactionType = "system_commission_correction"
	TransactionAdminAdjustment      TransactionType = "admin_adjustment"
	TransactionWithdrawal           TransactionType = "withdrawal"
	TransactionTopUp                TransactionType = "top_up"
)

// EarningsTypes are the fare-linked entry types commission corrections apply to.
var EarningsTypes = []TransactionType{
	TransactionBookingEarnings,
	TransactionRideEarnings,
	TransactionCashCommission,
}

// IsCommissionDebit reports whether entries of this type carry the system
// share rather than the driver share.
func (t TransactionType) IsCommissionDebit() bool {
	return t == TransactionCashCommission
}

// ReferenceType names the kind of fare an entry is linked to.
type ReferenceType string

const (
	ReferenceBooking ReferenceType = "booking"
	ReferenceRide    ReferenceType = "ride"
)

// Wallet holds a user's running balance. It is only changed by appending
// ledger entries.
type Wallet struct {
	ID        string
	UserID    string
	Balance   float64
	Currency  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LedgerEntry is an immutable record of one wallet balance change.
type LedgerEntry struct {
	ID              string
	WalletID        string
	UserID          string
	Direction       Direction
	Amount          float64 // Always positive
	BalanceAfter    float64
	Description     string
	TransactionType TransactionType
	ReferenceType   ReferenceType
	ReferenceID     string

	// FareAmount is the gross fare the entry was derived from, zero when the
	// entry is not fare-linked.
	FareAmount           float64
	CommissionPercentage float64

	// RelatedEntryID links a correction to the earnings entry it adjusts.
	RelatedEntryID string
	CreatedAt      time.Time
}

// Signed returns the entry's effect on the wallet balance.
func (e *LedgerEntry) Signed() float64 {
	if e.Direction == DirectionDebit {
		return -e.Amount
	}
	return e.Amount
}

// PaidFare is a settled booking or ride fare that should carry a driver
// earnings entry.
type PaidFare struct {
	ReferenceType ReferenceType
	ReferenceID   string
	DriverID      string
	Amount        float64
	PaymentMethod PaymentMethod
	PaidAt        time.Time
}

// EarningsType returns the ledger entry type a fare is recorded under.
func (f PaidFare) EarningsType() TransactionType {
	if f.PaymentMethod == PaymentMethodCash {
		return TransactionCashCommission
	}
	if f.ReferenceType == ReferenceRide {
		return TransactionRideEarnings
	}
	return TransactionBookingEarnings
}
