package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway implements Gateway with manual-capture PaymentIntents.
type StripeGateway struct {
	client  *client.API
	timeout time.Duration
}

// NewStripeGateway creates a StripeGateway. Every call is bounded by timeout.
func NewStripeGateway(secretKey string, timeout time.Duration) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)

	return &StripeGateway{
		client:  sc,
		timeout: timeout,
	}
}

// CreateHold creates a PaymentIntent that authorizes amount without capturing it.
func (g *StripeGateway) CreateHold(ctx context.Context, amount float64, currency, referenceID string) (*Hold, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(toMinorUnits(amount)),
		Currency:      stripe.String(strings.ToLower(currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Description:   stripe.String("Dedicated booking " + referenceID),
	}
	params.Context = ctx
	params.AddMetadata("booking_id", referenceID)
	params.SetIdempotencyKey("hold:" + referenceID)

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		return nil, classify(ctx, "create hold", err)
	}

	return &Hold{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
	}, nil
}

// Capture captures the full authorized amount of a PaymentIntent.
func (g *StripeGateway) Capture(ctx context.Context, holdID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey("capture:" + holdID)

	if _, err := g.client.PaymentIntents.Capture(holdID, params); err != nil {
		return classify(ctx, "capture", err)
	}
	return nil
}

// Cancel releases the authorization of a PaymentIntent.
func (g *StripeGateway) Cancel(ctx context.Context, holdID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := g.client.PaymentIntents.Cancel(holdID, params); err != nil {
		return classify(ctx, "cancel", err)
	}
	return nil
}

// classify maps transport failures and 5xx responses to ErrUnavailable and
// card errors to ErrDeclined.
func classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("stripe %s: %w: %v", op, ErrUnavailable, err)
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == 429:
			return fmt.Errorf("stripe %s: %w: %v", op, ErrUnavailable, err)
		case stripeErr.Type == stripe.ErrorTypeCard:
			return fmt.Errorf("stripe %s: %w: %s", op, ErrDeclined, stripeErr.Msg)
		}
		return fmt.Errorf("stripe %s: %w", op, err)
	}

	// No structured response means the request never completed.
	return fmt.Errorf("stripe %s: %w: %v", op, ErrUnavailable, err)
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

var _ Gateway = (*StripeGateway)(nil)
