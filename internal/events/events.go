package events

import (
	"context"
	"time"
)

// Type names a booking lifecycle event.
type Type string

const (
	BookingCreated         Type = "BOOKING_CREATED"
	BookingApproved        Type = "BOOKING_APPROVED"
	BookingDriverAssigned  Type = "BOOKING_DRIVER_ASSIGNED"
	BookingDriverOnTheWay  Type = "BOOKING_DRIVER_ON_THE_WAY"
	BookingStarted         Type = "BOOKING_STARTED"
	BookingCompleted       Type = "BOOKING_COMPLETED"
	BookingPaymentCaptured Type = "BOOKING_PAYMENT_CAPTURED"
	BookingCancelled       Type = "BOOKING_CANCELLED"
	BookingExpired         Type = "BOOKING_EXPIRED"
	BookingStatusChanged   Type = "BOOKING_STATUS_CHANGED"
	BookingRemoved         Type = "BOOKING_REMOVED"
)

// Event is the message published for every booking state change.
type Event struct {
	Type          Type           `json:"type"`
	BookingID     string         `json:"booking_id"`
	UserID        string         `json:"user_id"`
	DriverID      string         `json:"driver_id,omitempty"`
	Status        string         `json:"status"`
	PaymentStatus string         `json:"payment_status"`
	Data          map[string]any `json:"data,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// Publisher delivers lifecycle events to downstream consumers such as
// notification senders.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher discards events. It is used when no broker is configured.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }
