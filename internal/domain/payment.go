package domain

import "time"

// PaymentStatus tracks the payment side of a booking independently of its
// lifecycle status.
type PaymentStatus string

const (
	PaymentStatusUnpaid        PaymentStatus = "UNPAID"
	PaymentStatusPreauthorized PaymentStatus = "PREAUTHORIZED"
	PaymentStatusCaptured      PaymentStatus = "CAPTURED"
	PaymentStatusRefunded      PaymentStatus = "REFUNDED"
)

// PaymentMethod represents how a fare was settled.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "CASH"
	PaymentMethodCard   PaymentMethod = "CARD"
	PaymentMethodWallet PaymentMethod = "WALLET"
)

// Invoice is the financial record of a completed booking. There is at most
// one invoice per booking.
type Invoice struct {
	ID        string
	BookingID string
	UserID    string
	Subtotal  float64
	TaxRate   float64
	Tax       float64
	Discount  float64
	Total     float64
	Currency  string
	IssuedAt  time.Time
	PaidAt    time.Time // Zero unless payment was captured when issued
}

// IsPaid reports whether the invoice was settled at issue time.
func (i *Invoice) IsPaid() bool {
	return !i.PaidAt.IsZero()
}
