package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dedicated/internal/domain"
	"dedicated/internal/events"
	"dedicated/internal/payment"
	"dedicated/internal/redis"
	"dedicated/internal/repository"
)

const (
	defaultPageLimit      = 20
	maxPageLimit          = 100
	defaultPublishTimeout = 2 * time.Second
)

// BookingRules are the configurable limits applied to new bookings.
type BookingRules struct {
	MinDurationHours int
	MaxDurationHours int
	MinLat           float64
	MaxLat           float64
	MinLng           float64
	MaxLng           float64
	Currency         string
	Cancellation     CancellationPolicy
}

// DefaultBookingRules returns the limits used when nothing is configured.
func DefaultBookingRules() BookingRules {
	return BookingRules{
		MinDurationHours: 1,
		MaxDurationHours: 24,
		MinLat:           -90,
		MaxLat:           90,
		MinLng:           -180,
		MaxLng:           180,
		Currency:         "usd",
		Cancellation:     DefaultCancellationPolicy(),
	}
}

// BookingServiceDeps are the collaborators of a BookingService.
// Promotions and Locations are optional.
type BookingServiceDeps struct {
	Transactor repository.Transactor
	Bookings   repository.BookingRepository
	Categories repository.VehicleCategoryRepository
	Users      UserDirectory
	Promotions PromotionEvaluator
	Gateway    payment.Gateway
	Allocator  *DriverAllocator
	Invoices   *InvoiceService
	Ledger     *LedgerService
	Locations  redis.LocationStoreInterface
	Publisher  events.Publisher
	Rules      BookingRules
	Log        logrus.FieldLogger

	// PublishTimeout bounds each event publish. Zero uses defaultPublishTimeout.
	PublishTimeout time.Duration
}

// BookingService runs the dedicated booking lifecycle. Every status change
// happens inside a transaction holding the booking row; gateway calls are
// made outside of it.
type BookingService struct {
	tx         repository.Transactor
	bookings   repository.BookingRepository
	categories repository.VehicleCategoryRepository
	users      UserDirectory
	promotions PromotionEvaluator
	gateway    payment.Gateway
	allocator  *DriverAllocator
	invoices   *InvoiceService
	ledger     *LedgerService
	locations  redis.LocationStoreInterface
	publisher  events.Publisher
	rules      BookingRules
	log        logrus.FieldLogger
	now        func() time.Time

	publishTimeout time.Duration
}

// NewBookingService creates a new BookingService.
func NewBookingService(deps BookingServiceDeps) *BookingService {
	gateway := deps.Gateway
	if gateway == nil {
		gateway = payment.NoopGateway{}
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	publishTimeout := deps.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}

	return &BookingService{
		tx:         deps.Transactor,
		bookings:   deps.Bookings,
		categories: deps.Categories,
		users:      deps.Users,
		promotions: deps.Promotions,
		gateway:    gateway,
		allocator:  deps.Allocator,
		invoices:   deps.Invoices,
		ledger:     deps.Ledger,
		locations:  deps.Locations,
		publisher:  publisher,
		rules:      deps.Rules,
		log:        deps.Log,
		now:        time.Now,

		publishTimeout: publishTimeout,
	}
}

// CreateBookingRequest contains the parameters for creating a booking.
type CreateBookingRequest struct {
	UserID            string
	VehicleCategoryID string
	PickupAddress     string
	PickupLat         float64
	PickupLng         float64
	DropoffAddress    string
	DropoffLat        float64
	DropoffLng        float64
	BookingDate       time.Time
	StartTime         time.Time
	DurationHours     int
	BaseFare          float64
	PricePerHour      float64
	PromotionCode     string // Optional
	Notes             string // Optional
}

// CreateBookingResult contains the created booking and, when a payment hold
// was placed, the secret the client confirms it with.
type CreateBookingResult struct {
	Booking      *domain.Booking
	ClientSecret string
}

// CompletionResult is the outcome of ending a booking.
type CompletionResult struct {
	Booking  *domain.Booking
	Invoice  *domain.Invoice     // Nil when invoicing failed; retried on read
	Earnings *domain.LedgerEntry // Nil when nothing was credited
}

// Create prices a new booking, places a payment hold for its total and
// stores it as PENDING.
func (s *BookingService) Create(ctx context.Context, req CreateBookingRequest) (*CreateBookingResult, error) {
	if err := s.validateCreateRequest(req); err != nil {
		return nil, err
	}

	now := s.now()
	if err := checkSchedule(req.BookingDate, req.StartTime, now); err != nil {
		return nil, err
	}

	if _, err := s.users.GetUser(ctx, req.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	category, err := s.categories.GetByID(ctx, req.VehicleCategoryID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrVehicleCategoryNotFound
		}
		return nil, err
	}
	if !category.Active {
		return nil, ErrVehicleCategoryInactive
	}

	total := TotalPrice(req.BaseFare, req.PricePerHour, req.DurationHours)
	discount := s.applyPromotion(ctx, req, total)
	total = Round2(total - discount)

	booking := &domain.Booking{
		ID:                uuid.New().String(),
		UserID:            req.UserID,
		VehicleCategoryID: req.VehicleCategoryID,
		PickupAddress:     req.PickupAddress,
		PickupLat:         req.PickupLat,
		PickupLng:         req.PickupLng,
		DropoffAddress:    req.DropoffAddress,
		DropoffLat:        req.DropoffLat,
		DropoffLng:        req.DropoffLng,
		BookingDate:       dateOf(req.StartTime),
		StartTime:         req.StartTime,
		DurationHours:     req.DurationHours,
		BaseFare:          req.BaseFare,
		PricePerHour:      req.PricePerHour,
		TotalPrice:        total,
		DiscountAmount:    discount,
		PromotionCode:     req.PromotionCode,
		Notes:             req.Notes,
		Status:            domain.BookingStatusPending,
		PaymentStatus:     domain.PaymentStatusUnpaid,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	// Hold the funds before the row exists so a failed authorization leaves nothing behind.
	var clientSecret string
	if total > 0 {
		hold, err := s.gateway.CreateHold(ctx, total, s.rules.Currency, booking.ID)
		if err != nil {
			s.log.WithError(err).WithField("booking_id", booking.ID).Error("payment hold failed")
			return nil, mapGatewayError(err)
		}
		if hold != nil {
			booking.PaymentHoldID = hold.ID
			booking.PaymentStatus = domain.PaymentStatusPreauthorized
			clientSecret = hold.ClientSecret
		}
	}

	if err := s.bookings.Create(ctx, booking); err != nil {
		if booking.PaymentHoldID != "" {
			s.releaseHold(ctx, booking.ID, booking.PaymentHoldID)
		}
		return nil, err
	}

	s.publish(ctx, events.BookingCreated, booking, map[string]any{
		"total_price":     booking.TotalPrice,
		"discount_amount": booking.DiscountAmount,
	})

	return &CreateBookingResult{
		Booking:      booking,
		ClientSecret: clientSecret,
	}, nil
}

// validateCreateRequest applies the configured coordinate and duration
// bounds. Presence and format of fields are checked when the request is bound.
func (s *BookingService) validateCreateRequest(req CreateBookingRequest) error {
	fields := fieldErrors{}
	r := s.rules

	if !within(req.PickupLat, r.MinLat, r.MaxLat) {
		fields.add("pickupLat", "is out of range")
	}
	if !within(req.PickupLng, r.MinLng, r.MaxLng) {
		fields.add("pickupLng", "is out of range")
	}
	if !within(req.DropoffLat, r.MinLat, r.MaxLat) {
		fields.add("dropoffLat", "is out of range")
	}
	if !within(req.DropoffLng, r.MinLng, r.MaxLng) {
		fields.add("dropoffLng", "is out of range")
	}
	if req.DurationHours < r.MinDurationHours || req.DurationHours > r.MaxDurationHours {
		fields.add("durationHours", fmt.Sprintf("must be between %d and %d", r.MinDurationHours, r.MaxDurationHours))
	}

	return fields.err()
}

func within(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

// checkSchedule enforces that the trip starts in the future on the calendar
// day named by bookingDate. Days are compared in the start time's zone.
func checkSchedule(bookingDate, startTime, now time.Time) error {
	if startTime.Before(now) {
		return ErrStartTimeInPast
	}

	today := dateOf(now.In(startTime.Location()))
	day := time.Date(bookingDate.Year(), bookingDate.Month(), bookingDate.Day(), 0, 0, 0, 0, startTime.Location())
	if day.Before(today) {
		return ErrBookingDateInPast
	}
	if !day.Equal(dateOf(startTime)) {
		return ErrBookingDateMismatch
	}
	return nil
}

// dateOf truncates t to midnight in its own location.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// applyPromotion returns the discount a promotion code grants on amount.
// Evaluation failures leave the price unchanged.
func (s *BookingService) applyPromotion(ctx context.Context, req CreateBookingRequest, amount float64) float64 {
	if req.PromotionCode == "" || s.promotions == nil {
		return 0
	}

	discount, err := s.promotions.Discount(ctx, req.PromotionCode, req.UserID, amount)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id":        req.UserID,
			"promotion_code": req.PromotionCode,
		}).Warn("promotion not applied")
		return 0
	}

	discount = Round2(math.Min(math.Max(discount, 0), amount))
	return discount
}

// AssignDriver allocates driverID to a PENDING or APPROVED booking.
func (s *BookingService) AssignDriver(ctx context.Context, bookingID, driverID string) (*domain.Booking, error) {
	driver, err := s.users.GetUser(ctx, driverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDriverNotFound
		}
		return nil, err
	}
	if !driver.IsDriver() {
		return nil, ErrNotADriver
	}

	booking, err := s.allocator.Reserve(ctx, bookingID, driverID, s.now())
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.BookingDriverAssigned, booking, nil)
	return booking, nil
}

// AcceptByDriver lets a driver take an open booking for themselves.
func (s *BookingService) AcceptByDriver(ctx context.Context, bookingID, callerID string) (*domain.Booking, error) {
	return s.AssignDriver(ctx, bookingID, callerID)
}

// Approve moves a PENDING booking to APPROVED.
func (s *BookingService) Approve(ctx context.Context, bookingID string) (*domain.Booking, error) {
	booking, err := s.advance(ctx, bookingID, domain.BookingStatusApproved, "", nil)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.BookingApproved, booking, nil)
	return booking, nil
}

// Depart records that the assigned driver is heading to the pickup.
// An empty driverID skips the assignment check.
func (s *BookingService) Depart(ctx context.Context, bookingID, driverID string) (*domain.Booking, error) {
	booking, err := s.advance(ctx, bookingID, domain.BookingStatusOnTheWay, driverID, nil)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.BookingDriverOnTheWay, booking, nil)
	return booking, nil
}

// Start begins the trip. An empty driverID skips the assignment check.
func (s *BookingService) Start(ctx context.Context, bookingID, driverID string) (*domain.Booking, error) {
	booking, err := s.advance(ctx, bookingID, domain.BookingStatusActive, driverID, func(b *domain.Booking, now time.Time) {
		b.StartedAt = now
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.BookingStarted, booking, nil)
	return booking, nil
}

// End completes an ACTIVE booking, then captures its payment, issues the
// invoice and credits the driver. Only one of several concurrent calls
// completes the booking; the others get ErrInvalidTransition.
// An empty driverID skips the assignment check.
//
// A failed capture leaves the booking COMPLETED with its hold PREAUTHORIZED.
// The result is still returned, together with an error wrapping
// ErrPaymentUnavailable or ErrPaymentDeclined, and RecoverCapture retries
// the capture later.
func (s *BookingService) End(ctx context.Context, bookingID, driverID string) (*CompletionResult, error) {
	booking, err := s.advance(ctx, bookingID, domain.BookingStatusCompleted, driverID, func(b *domain.Booking, now time.Time) {
		b.EndedAt = now
	})
	if err != nil {
		return nil, err
	}

	// The booking is committed as COMPLETED; settlement must not be cut short
	// by the caller going away.
	return s.settle(context.WithoutCancel(ctx), booking)
}

// settle runs the post-completion side effects. Invoice and ledger failures
// are logged and leave the booking completed: the invoice is regenerated on
// read and missing earnings are recovered by Backfill. A capture failure is
// returned alongside the result.
func (s *BookingService) settle(ctx context.Context, booking *domain.Booking) (*CompletionResult, error) {
	log := s.log.WithField("booking_id", booking.ID)
	result := &CompletionResult{Booking: booking}

	var captureErr error
	if booking.HasHold() {
		booking, captureErr = s.captureHold(ctx, booking)
		if captureErr != nil {
			log.WithError(captureErr).Error("payment capture failed")
		}
		result.Booking = booking
	}

	invoice, err := s.invoices.Generate(ctx, booking.ID)
	if err != nil {
		log.WithError(err).Error("invoice generation failed")
	}
	result.Invoice = invoice
	result.Earnings = s.creditDriver(ctx, booking)

	s.forgetLocation(ctx, booking.ID)
	s.publish(ctx, events.BookingCompleted, booking, map[string]any{
		"total_price": booking.TotalPrice,
	})
	return result, captureErr
}

// RecoverCapture retries the capture of a booking that ended COMPLETED with
// its hold still PREAUTHORIZED, then marks its invoice paid and credits the
// driver.
func (s *BookingService) RecoverCapture(ctx context.Context, bookingID string) (*CompletionResult, error) {
	booking, err := s.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	// Overrides to COMPLETED never set EndedAt and carry no payment effects.
	if booking.Status != domain.BookingStatusCompleted || booking.EndedAt.IsZero() || !booking.HasHold() {
		return nil, ErrInvalidTransition
	}

	booking, err = s.captureHold(ctx, booking)
	if err != nil {
		return nil, err
	}

	log := s.log.WithField("booking_id", booking.ID)
	result := &CompletionResult{Booking: booking}

	invoice, err := s.invoices.MarkPaid(ctx, booking.ID)
	if err != nil {
		log.WithError(err).Error("failed to mark invoice paid")
	}
	result.Invoice = invoice
	result.Earnings = s.creditDriver(ctx, booking)

	s.publish(ctx, events.BookingPaymentCaptured, booking, map[string]any{
		"total_price": booking.TotalPrice,
	})
	return result, nil
}

// captureHold captures the booking's hold and records it. On failure the
// booking is returned unchanged.
func (s *BookingService) captureHold(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	if err := s.gateway.Capture(ctx, booking.PaymentHoldID); err != nil {
		return booking, fmt.Errorf("capture hold %s: %w", booking.PaymentHoldID, mapGatewayError(err))
	}

	captured, err := s.markCaptured(ctx, booking.ID)
	if err != nil {
		return booking, fmt.Errorf("record capture: %w", err)
	}
	return captured, nil
}

func (s *BookingService) markCaptured(ctx context.Context, bookingID string) (*domain.Booking, error) {
	return s.transition(ctx, bookingID, func(b *domain.Booking, _ time.Time) error {
		if b.PaymentStatus == domain.PaymentStatusPreauthorized {
			b.PaymentStatus = domain.PaymentStatusCaptured
		}
		return nil
	})
}

// creditDriver books the driver's earnings for a captured booking. Failures
// are logged; Backfill picks the fare up later.
func (s *BookingService) creditDriver(ctx context.Context, booking *domain.Booking) *domain.LedgerEntry {
	if booking.PaymentStatus != domain.PaymentStatusCaptured || booking.DriverID == "" || s.ledger == nil {
		return nil
	}

	entry, err := s.ledger.CreditEarnings(ctx, domain.PaidFare{
		ReferenceType: domain.ReferenceBooking,
		ReferenceID:   booking.ID,
		DriverID:      booking.DriverID,
		Amount:        booking.TotalPrice,
		PaymentMethod: domain.PaymentMethodCard,
		PaidAt:        booking.UpdatedAt,
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"driver_id":  booking.DriverID,
		}).Error("failed to credit driver earnings")
	}
	return entry
}

// Cancel cancels a booking that has not reached a terminal state. The refund
// percentage is fixed at the moment of cancellation and any payment hold is
// released afterwards on a best-effort basis.
func (s *BookingService) Cancel(ctx context.Context, bookingID, reason string) (*domain.Booking, error) {
	var holdID string

	booking, err := s.transition(ctx, bookingID, func(b *domain.Booking, now time.Time) error {
		if !b.Status.CanTransitionTo(domain.BookingStatusCancelled) {
			return ErrInvalidTransition
		}

		b.Status = domain.BookingStatusCancelled
		b.RefundPercentage = s.rules.Cancellation.RefundPercentage(b.StartTime, now)
		b.CancelReason = reason
		b.CancelledAt = now
		if b.HasHold() {
			holdID = b.PaymentHoldID
			b.PaymentStatus = domain.PaymentStatusRefunded
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if holdID != "" {
		s.releaseHold(ctx, booking.ID, holdID)
	}
	s.forgetLocation(ctx, booking.ID)

	s.publish(ctx, events.BookingCancelled, booking, map[string]any{
		"refund_percentage": booking.RefundPercentage,
		"refund_amount":     RefundAmount(booking.TotalPrice, booking.RefundPercentage),
		"reason":            reason,
	})
	return booking, nil
}

// Expire closes a booking nobody was assigned to before its start.
func (s *BookingService) Expire(ctx context.Context, bookingID string) (*domain.Booking, error) {
	var holdID string

	booking, err := s.transition(ctx, bookingID, func(b *domain.Booking, _ time.Time) error {
		if !b.Status.CanTransitionTo(domain.BookingStatusExpired) || b.DriverID != "" {
			return ErrInvalidTransition
		}

		b.Status = domain.BookingStatusExpired
		if b.HasHold() {
			holdID = b.PaymentHoldID
			b.PaymentStatus = domain.PaymentStatusRefunded
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if holdID != "" {
		s.releaseHold(ctx, booking.ID, holdID)
	}

	s.publish(ctx, events.BookingExpired, booking, nil)
	return booking, nil
}

// UpdateStatus is an administrative override. It only changes the status
// and triggers no payment or ledger side effects.
func (s *BookingService) UpdateStatus(ctx context.Context, bookingID string, status domain.BookingStatus) (*domain.Booking, error) {
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}

	var from domain.BookingStatus
	booking, err := s.transition(ctx, bookingID, func(b *domain.Booking, _ time.Time) error {
		if !b.Status.CanTransitionTo(status) {
			return ErrInvalidTransition
		}
		if status == domain.BookingStatusDriverAssigned && b.DriverID == "" {
			return &ValidationError{Fields: map[string]string{
				"status": "booking has no driver, use assign-driver instead",
			}}
		}
		from = b.Status
		b.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.BookingStatusChanged, booking, map[string]any{
		"from": string(from),
	})
	return booking, nil
}

// Remove hard-deletes a booking that is not in progress and releases its
// payment hold.
func (s *BookingService) Remove(ctx context.Context, bookingID string) error {
	var removed *domain.Booking

	err := s.tx.WithinTx(ctx, func(tx repository.Store) error {
		booking, err := tx.Bookings.GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status == domain.BookingStatusActive {
			return ErrBookingActive
		}
		if err := tx.Bookings.Delete(ctx, bookingID); err != nil {
			return err
		}
		removed = booking
		return nil
	})
	if err != nil {
		return notFoundAs(err, ErrBookingNotFound)
	}

	if removed.HasHold() {
		s.releaseHold(ctx, removed.ID, removed.PaymentHoldID)
	}
	s.forgetLocation(ctx, removed.ID)

	s.publish(ctx, events.BookingRemoved, removed, nil)
	return nil
}

// Get retrieves a booking by ID.
func (s *BookingService) Get(ctx context.Context, bookingID string) (*domain.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, notFoundAs(err, ErrBookingNotFound)
	}
	return booking, nil
}

// List returns a page of bookings and the total number of matches.
func (s *BookingService) List(ctx context.Context, filter domain.BookingFilter) ([]*domain.Booking, int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, ErrInvalidStatus
	}
	filter.Page, filter.Limit = NormalizePage(filter.Page, filter.Limit)

	return s.bookings.List(ctx, filter)
}

// ListAvailable returns unassigned bookings drivers can still accept.
func (s *BookingService) ListAvailable(ctx context.Context, limit int) ([]*domain.Booking, error) {
	_, limit = NormalizePage(1, limit)
	return s.bookings.ListAvailable(ctx, s.now(), limit)
}

// Invoice returns the invoice of a booking, issuing it if the booking is
// completed and none exists yet.
func (s *BookingService) Invoice(ctx context.Context, bookingID string) (*domain.Invoice, error) {
	return s.invoices.Generate(ctx, bookingID)
}

// NormalizePage applies the default and maximum page size.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

// advance moves a booking along an edge of the state graph. A non-empty
// driverID must match the assigned driver.
func (s *BookingService) advance(
	ctx context.Context,
	bookingID string,
	to domain.BookingStatus,
	driverID string,
	mutate func(b *domain.Booking, now time.Time),
) (*domain.Booking, error) {
	return s.transition(ctx, bookingID, func(b *domain.Booking, now time.Time) error {
		if !b.Status.CanTransitionTo(to) {
			return ErrInvalidTransition
		}
		if driverID != "" && b.DriverID != driverID {
			return ErrNotAssignedDriver
		}

		b.Status = to
		if mutate != nil {
			mutate(b, now)
		}
		return nil
	})
}

// transition applies fn to the locked booking row and writes the result in
// the same transaction.
func (s *BookingService) transition(
	ctx context.Context,
	bookingID string,
	fn func(b *domain.Booking, now time.Time) error,
) (*domain.Booking, error) {
	var updated *domain.Booking

	err := s.tx.WithinTx(ctx, func(tx repository.Store) error {
		booking, err := tx.Bookings.GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}

		now := s.now()
		if err := fn(booking, now); err != nil {
			return err
		}
		booking.UpdatedAt = now

		if err := tx.Bookings.Update(ctx, booking); err != nil {
			return err
		}
		updated = booking
		return nil
	})
	if err != nil {
		return nil, notFoundAs(err, ErrBookingNotFound)
	}
	return updated, nil
}

// notFoundAs translates repository.ErrNotFound into target.
func notFoundAs(err, target error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return target
	}
	return err
}

// releaseHold cancels a payment hold. Failures are logged and never block
// the local state change.
func (s *BookingService) releaseHold(ctx context.Context, bookingID, holdID string) {
	if err := s.gateway.Cancel(context.WithoutCancel(ctx), holdID); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"booking_id": bookingID,
			"hold_id":    holdID,
		}).Warn("payment hold release failed")
	}
}

func (s *BookingService) forgetLocation(ctx context.Context, bookingID string) {
	if s.locations == nil {
		return
	}
	if err := s.locations.Remove(ctx, bookingID); err != nil {
		s.log.WithError(err).WithField("booking_id", bookingID).Warn("failed to clear cached location")
	}
}

func (s *BookingService) publish(ctx context.Context, typ events.Type, b *domain.Booking, data map[string]any) {
	event := events.Event{
		Type:          typ,
		BookingID:     b.ID,
		UserID:        b.UserID,
		DriverID:      b.DriverID,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		Data:          data,
		OccurredAt:    s.now(),
	}
	// Outlives the caller's cancellation, not publishTimeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"booking_id": b.ID,
			"event":      typ,
		}).Warn("failed to publish booking event")
	}
}

// mapGatewayError converts gateway failures into service errors.
func mapGatewayError(err error) error {
	if errors.Is(err, payment.ErrDeclined) {
		return ErrPaymentDeclined
	}
	return ErrPaymentUnavailable
}
