package domain

import "time"

// BookingStatus represents the lifecycle state of a dedicated booking.
type BookingStatus string

const (
	BookingStatusPending        BookingStatus = "PENDING"
	BookingStatusApproved       BookingStatus = "APPROVED"
	BookingStatusDriverAssigned BookingStatus = "DRIVER_ASSIGNED"
	BookingStatusOnTheWay       BookingStatus = "ON_THE_WAY"
	BookingStatusActive         BookingStatus = "ACTIVE"
	BookingStatusCompleted      BookingStatus = "COMPLETED"
	BookingStatusCancelled      BookingStatus = "CANCELLED"
	BookingStatusExpired        BookingStatus = "EXPIRED"
)

// AllowedTransitions is the booking state graph. Terminal states have no
// outgoing edges.
var AllowedTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending: {
		BookingStatusApproved,
		BookingStatusDriverAssigned,
		BookingStatusCancelled,
		BookingStatusExpired,
	},
	BookingStatusApproved: {
		BookingStatusDriverAssigned,
		BookingStatusCancelled,
		BookingStatusExpired,
	},
	BookingStatusDriverAssigned: {
		BookingStatusOnTheWay,
		BookingStatusActive,
		BookingStatusCancelled,
	},
	BookingStatusOnTheWay: {
		BookingStatusActive,
		BookingStatusCancelled,
	},
	BookingStatusActive: {
		BookingStatusCompleted,
		BookingStatusCancelled,
	},
}

// IsValid reports whether s is one of the enumerated booking states.
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusApproved, BookingStatusDriverAssigned,
		BookingStatusOnTheWay, BookingStatusActive, BookingStatusCompleted,
		BookingStatusCancelled, BookingStatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible from s.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled || s == BookingStatusExpired
}

// CanTransitionTo reports whether the state graph has an edge from s to next.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range AllowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ResourceHoldingStatuses are the states in which a booking reserves its
// driver for the booking window. PENDING holds a driver only when one is
// already set on the booking.
var ResourceHoldingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusApproved,
	BookingStatusDriverAssigned,
	BookingStatusOnTheWay,
	BookingStatusActive,
}

// Booking represents a dedicated, pre-booked vehicle reservation.
type Booking struct {
	ID                string
	UserID            string
	DriverID          string // Empty until a driver is allocated
	VehicleCategoryID string

	PickupAddress  string
	PickupLat      float64
	PickupLng      float64
	DropoffAddress string
	DropoffLat     float64
	DropoffLng     float64

	BookingDate   time.Time // Calendar date, midnight in StartTime's location
	StartTime     time.Time
	DurationHours int

	BaseFare       float64
	PricePerHour   float64
	TotalPrice     float64
	DiscountAmount float64
	PromotionCode  string
	Notes          string

	Status           BookingStatus
	PaymentStatus    PaymentStatus
	PaymentHoldID    string // Gateway hold reference, empty when no hold exists
	RefundPercentage int
	CancelReason     string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	EndedAt     time.Time
	CancelledAt time.Time
}

// Duration returns the reserved duration.
func (b *Booking) Duration() time.Duration {
	return time.Duration(b.DurationHours) * time.Hour
}

// EndTime returns the end of the reserved window [StartTime, EndTime).
func (b *Booking) EndTime() time.Time {
	return b.StartTime.Add(b.Duration())
}

// Window returns the interval the booking occupies its driver for. Once the
// trip has started the window is anchored at StartedAt instead of StartTime.
func (b *Booking) Window() (time.Time, time.Time) {
	start := b.StartTime
	if !b.StartedAt.IsZero() {
		start = b.StartedAt
	}
	return start, start.Add(b.Duration())
}

// HoldsDriver reports whether the booking currently reserves driverID.
func (b *Booking) HoldsDriver(driverID string) bool {
	if b.DriverID == "" || b.DriverID != driverID {
		return false
	}
	switch b.Status {
	case BookingStatusPending, BookingStatusApproved, BookingStatusDriverAssigned,
		BookingStatusOnTheWay, BookingStatusActive:
		return true
	}
	return false
}

// HasHold reports whether a payment hold is outstanding at the gateway.
func (b *Booking) HasHold() bool {
	return b.PaymentHoldID != "" && b.PaymentStatus == PaymentStatusPreauthorized
}

// BookingFilter narrows a booking listing. Zero values are ignored.
type BookingFilter struct {
	UserID   string
	DriverID string
	Status   BookingStatus
	FromDate time.Time
	ToDate   time.Time
	Page     int
	Limit    int
}

// VehicleCategory is a class of vehicle a booking can reserve.
type VehicleCategory struct {
	ID     string
	Name   string
	Active bool
}

// LocationUpdate is a single position sample reported during a trip.
type LocationUpdate struct {
	ID        string
	BookingID string
	DriverID  string
	Lat       float64
	Lng       float64
	CreatedAt time.Time
}
