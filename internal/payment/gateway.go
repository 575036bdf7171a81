package payment

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned when the gateway timed out or failed transiently.
	ErrUnavailable = errors.New("payment gateway unavailable")

	// ErrDeclined is returned when the gateway refused the operation.
	ErrDeclined = errors.New("payment declined")
)

// Hold is a reserved but uncaptured amount at the gateway.
type Hold struct {
	ID           string
	ClientSecret string
}

// Gateway is the pre-authorize / capture / cancel contract of a payment
// provider. Implementations must bound every call by the context deadline.
type Gateway interface {
	// CreateHold reserves amount (in major units) for referenceID.
	// Returns nil when the gateway does not take holds.
	CreateHold(ctx context.Context, amount float64, currency, referenceID string) (*Hold, error)

	// Capture converts a hold into a charge.
	Capture(ctx context.Context, holdID string) error

	// Cancel releases a hold without charging.
	Cancel(ctx context.Context, holdID string) error
}

// NoopGateway is used when no gateway credentials are configured. Bookings
// proceed without a hold and stay unpaid-tracked.
type NoopGateway struct{}

// CreateHold returns no hold.
func (NoopGateway) CreateHold(context.Context, float64, string, string) (*Hold, error) {
	return nil, nil
}

// Capture does nothing.
func (NoopGateway) Capture(context.Context, string) error { return nil }

// Cancel does nothing.
func (NoopGateway) Cancel(context.Context, string) error { return nil }

var _ Gateway = NoopGateway{}
