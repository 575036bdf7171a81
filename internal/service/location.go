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
	"dedicated/internal/redis"
	"dedicated/internal/repository"
)

const defaultHistoryLimit = 500

// RecordLocationRequest is a position reported by a driver during a trip.
type RecordLocationRequest struct {
	BookingID string
	DriverID  string // Empty skips the assignment check
	Lat       float64
	Lng       float64
}

// LocationService accepts driver positions for bookings on the way or in
// progress and serves the latest one.
type LocationService struct {
	bookings repository.BookingRepository
	history  repository.LocationRepository
	cache    redis.LocationStoreInterface
	rules    BookingRules
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewLocationService creates a new LocationService. cache may be nil.
func NewLocationService(
	bookings repository.BookingRepository,
	history repository.LocationRepository,
	cache redis.LocationStoreInterface,
	rules BookingRules,
	log logrus.FieldLogger,
) *LocationService {
	return &LocationService{
		bookings: bookings,
		history:  history,
		cache:    cache,
		rules:    rules,
		log:      log,
		now:      time.Now,
	}
}

// Record appends a position sample. The booking is returned so callers can
// route the update to its user.
func (s *LocationService) Record(ctx context.Context, req RecordLocationRequest) (*domain.LocationUpdate, *domain.Booking, error) {
	fields := fieldErrors{}
	if req.BookingID == "" {
		fields.add("bookingId", "is required")
	}
	if math.IsNaN(req.Lat) || !within(req.Lat, s.rules.MinLat, s.rules.MaxLat) {
		fields.add("currentLat", "is out of range")
	}
	if math.IsNaN(req.Lng) || !within(req.Lng, s.rules.MinLng, s.rules.MaxLng) {
		fields.add("currentLng", "is out of range")
	}
	if err := fields.err(); err != nil {
		return nil, nil, err
	}

	booking, err := s.bookings.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, nil, notFoundAs(err, ErrBookingNotFound)
	}
	if booking.Status != domain.BookingStatusOnTheWay && booking.Status != domain.BookingStatusActive {
		return nil, nil, ErrLocationNotTrackable
	}
	if req.DriverID != "" && booking.DriverID != req.DriverID {
		return nil, nil, ErrNotAssignedDriver
	}

	update := &domain.LocationUpdate{
		ID:        uuid.New().String(),
		BookingID: booking.ID,
		DriverID:  booking.DriverID,
		Lat:       req.Lat,
		Lng:       req.Lng,
		CreatedAt: s.now(),
	}
	if err := s.history.Append(ctx, update); err != nil {
		return nil, nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetLatest(ctx, update); err != nil {
			s.log.WithError(err).WithField("booking_id", booking.ID).Warn("failed to cache location")
		}
	}
	return update, booking, nil
}

// Latest returns the most recent position of a booking.
func (s *LocationService) Latest(ctx context.Context, bookingID string) (*domain.LocationUpdate, error) {
	if s.cache != nil {
		cached, err := s.cache.GetLatest(ctx, bookingID)
		if err != nil {
			s.log.WithError(err).WithField("booking_id", bookingID).Warn("location cache read failed")
		}
		if cached != nil {
			return cached, nil
		}
	}

	update, err := s.history.Latest(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLocationNotFound
		}
		return nil, err
	}
	return update, nil
}

// History returns the position samples of a booking in the order received.
func (s *LocationService) History(ctx context.Context, bookingID string, limit int) ([]*domain.LocationUpdate, error) {
	if _, err := s.bookings.GetByID(ctx, bookingID); err != nil {
		return nil, notFoundAs(err, ErrBookingNotFound)
	}
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	return s.history.ListByBooking(ctx, bookingID, limit)
}

const (
	defaultNearbyLimit = 20
	maxNearbyRadiusKm  = 50
)

// Nearby returns bookings on the way or in progress whose latest position is
// within radiusKm of the point, nearest first.
func (s *LocationService) Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]redis.NearbyLocation, error) {
	fields := fieldErrors{}
	if math.IsNaN(lat) || !within(lat, s.rules.MinLat, s.rules.MaxLat) {
		fields.add("lat", "is out of range")
	}
	if math.IsNaN(lng) || !within(lng, s.rules.MinLng, s.rules.MaxLng) {
		fields.add("lng", "is out of range")
	}
	if !(radiusKm > 0 && radiusKm <= maxNearbyRadiusKm) {
		fields.add("radiusKm", fmt.Sprintf("must be greater than 0 and at most %d", maxNearbyRadiusKm))
	}
	if err := fields.err(); err != nil {
		return nil, err
	}

	if s.cache == nil {
		return nil, nil
	}
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultNearbyLimit
	}
	return s.cache.Nearby(ctx, lat, lng, radiusKm, limit)
}
