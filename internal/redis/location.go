package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"dedicated/internal/domain"
)

const (
	bookingLocationKey    = "bookings:locations"
	bookingLocationPrefix = "location:booking:"

	// LocationTTL bounds how long a last-known position is served after the
	// driver stops reporting.
	LocationTTL = 2 * time.Hour
)

type cachedLocation struct {
	BookingID string    `json:"booking_id"`
	DriverID  string    `json:"driver_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	CreatedAt time.Time `json:"created_at"`
}

// NearbyLocation is a live booking position and its distance from a query point.
type NearbyLocation struct {
	Update     *domain.LocationUpdate
	DistanceKm float64
}

// LocationStore keeps the latest position of in-progress bookings in Redis.
// Snapshots expire after LocationTTL; the GEO index is pruned lazily by Nearby.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// SetLatest records the latest sample of a booking and indexes it with GEOADD.
func (s *LocationStore) SetLatest(ctx context.Context, u *domain.LocationUpdate) error {
	data, err := json.Marshal(cachedLocation{
		BookingID: u.BookingID,
		DriverID:  u.DriverID,
		Lat:       u.Lat,
		Lng:       u.Lng,
		CreatedAt: u.CreatedAt,
	})
	if err != nil {
		return err
	}

	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, bookingLocationPrefix+u.BookingID, data, LocationTTL)
		pipe.GeoAdd(ctx, bookingLocationKey, &redis.GeoLocation{
			Name:      u.BookingID,
			Longitude: u.Lng,
			Latitude:  u.Lat,
		})
		return nil
	})
	return err
}

// GetLatest returns the last cached sample of a booking, or nil on a cache miss.
func (s *LocationStore) GetLatest(ctx context.Context, bookingID string) (*domain.LocationUpdate, error) {
	data, err := s.client.Get(ctx, bookingLocationPrefix+bookingID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	return decodeLocation(data)
}

// Nearby returns live bookings within radiusKm of the point, nearest first.
func (s *LocationStore) Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]NearbyLocation, error) {
	hits, err := s.client.GeoSearchLocation(ctx, bookingLocationKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lng,
			Latitude:   lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	keys := make([]string, len(hits))
	for i, h := range hits {
		keys[i] = bookingLocationPrefix + h.Name
	}
	snapshots, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	nearby := make([]NearbyLocation, 0, len(hits))
	var stale []any
	for i, h := range hits {
		raw, ok := snapshots[i].(string)
		if !ok {
			stale = append(stale, h.Name)
			continue
		}
		u, err := decodeLocation([]byte(raw))
		if err != nil {
			return nil, err
		}
		nearby = append(nearby, NearbyLocation{Update: u, DistanceKm: h.Dist})
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, bookingLocationKey, stale...).Err(); err != nil {
			return nil, err
		}
	}
	return nearby, nil
}

func decodeLocation(data []byte) (*domain.LocationUpdate, error) {
	var c cachedLocation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &domain.LocationUpdate{
		BookingID: c.BookingID,
		DriverID:  c.DriverID,
		Lat:       c.Lat,
		Lng:       c.Lng,
		CreatedAt: c.CreatedAt,
	}, nil
}

// Remove drops a booking from the live index once its trip is over.
func (s *LocationStore) Remove(ctx context.Context, bookingID string) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, bookingLocationPrefix+bookingID)
		pipe.ZRem(ctx, bookingLocationKey, bookingID)
		return nil
	})
	return err
}
