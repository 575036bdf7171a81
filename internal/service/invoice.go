package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dedicated/internal/domain"
	"dedicated/internal/repository"
)

// InvoiceService issues invoices for completed bookings.
type InvoiceService struct {
	bookings repository.BookingRepository
	invoices repository.InvoiceRepository
	taxRate  float64
	currency string
	now      func() time.Time
}

// NewInvoiceService creates a new InvoiceService.
func NewInvoiceService(
	bookings repository.BookingRepository,
	invoices repository.InvoiceRepository,
	taxRate float64,
	currency string,
) *InvoiceService {
	return &InvoiceService{
		bookings: bookings,
		invoices: invoices,
		taxRate:  taxRate,
		currency: currency,
		now:      time.Now,
	}
}

// Generate returns the invoice of a booking, issuing it on first call.
// Repeated calls return the stored invoice unchanged.
func (s *InvoiceService) Generate(ctx context.Context, bookingID string) (*domain.Invoice, error) {
	existing, err := s.invoices.GetByBookingID(ctx, bookingID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	if booking.Status != domain.BookingStatusCompleted {
		return nil, ErrInvoiceRequiresCompletedBooking
	}

	invoice := s.build(booking)
	if err := s.invoices.Create(ctx, invoice); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Issued concurrently; the stored one wins.
			return s.invoices.GetByBookingID(ctx, bookingID)
		}
		return nil, err
	}
	return invoice, nil
}

// MarkPaid records the capture of a booking's payment on its invoice,
// issuing the invoice first if none exists.
func (s *InvoiceService) MarkPaid(ctx context.Context, bookingID string) (*domain.Invoice, error) {
	invoice, err := s.Generate(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if invoice.IsPaid() {
		return invoice, nil
	}

	paidAt := s.now()
	if err := s.invoices.MarkPaid(ctx, bookingID, paidAt); err != nil {
		return nil, err
	}
	invoice.PaidAt = paidAt
	return invoice, nil
}

// build computes invoice amounts. Promotions were already deducted from the
// booking total at creation, so the invoice carries no further discount.
func (s *InvoiceService) build(b *domain.Booking) *domain.Invoice {
	now := s.now()
	subtotal := b.TotalPrice
	tax := Round2(subtotal * s.taxRate)
	discount := 0.0

	invoice := &domain.Invoice{
		ID:        uuid.New().String(),
		BookingID: b.ID,
		UserID:    b.UserID,
		Subtotal:  subtotal,
		TaxRate:   s.taxRate,
		Tax:       tax,
		Discount:  discount,
		Total:     Round2(subtotal + tax - discount),
		Currency:  s.currency,
		IssuedAt:  now,
	}
	if b.PaymentStatus == domain.PaymentStatusCaptured {
		invoice.PaidAt = now
	}
	return invoice
}

// FormatInvoice renders an invoice as plain text for email or print.
func FormatInvoice(inv *domain.Invoice, b *domain.Booking) string {
	currency := strings.ToUpper(inv.Currency)
	paid := "UNPAID"
	if inv.IsPaid() {
		paid = "PAID " + inv.PaidAt.Format("Jan 02, 2006 3:04 PM")
	}

	var sb strings.Builder
	sb.WriteString("=====================================\n")
	sb.WriteString("       DEDICATED BOOKING INVOICE\n")
	sb.WriteString("=====================================\n")
	fmt.Fprintf(&sb, "Invoice ID: %s\n", inv.ID)
	fmt.Fprintf(&sb, "Booking ID: %s\n", inv.BookingID)
	fmt.Fprintf(&sb, "Issued:     %s\n\n", inv.IssuedAt.Format("Jan 02, 2006 3:04 PM"))

	if b != nil {
		sb.WriteString("BOOKING\n-------------------------------------\n")
		fmt.Fprintf(&sb, "Pickup:   %s\n", b.PickupAddress)
		fmt.Fprintf(&sb, "Dropoff:  %s\n", b.DropoffAddress)
		fmt.Fprintf(&sb, "Start:    %s\n", b.StartTime.Format("Jan 02, 2006 3:04 PM"))
		fmt.Fprintf(&sb, "Duration: %d h\n\n", b.DurationHours)
	}

	sb.WriteString("AMOUNTS\n-------------------------------------\n")
	fmt.Fprintf(&sb, "Subtotal:      %s %.2f\n", currency, inv.Subtotal)
	fmt.Fprintf(&sb, "Tax (%.2f%%):  %s %.2f\n", inv.TaxRate*100, currency, inv.Tax)
	fmt.Fprintf(&sb, "Discount:      %s %.2f\n", currency, inv.Discount)
	sb.WriteString("-------------------------------------\n")
	fmt.Fprintf(&sb, "TOTAL:         %s %.2f\n\n", currency, inv.Total)
	fmt.Fprintf(&sb, "Payment: %s\n", paid)
	sb.WriteString("=====================================\n")
	return sb.String()
}
