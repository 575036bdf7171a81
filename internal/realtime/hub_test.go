package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedicated/internal/domain"
	"dedicated/internal/service"
)

type stubRecorder struct {
	err  error
	reqs []service.RecordLocationRequest
}

func (s *stubRecorder) Record(ctx context.Context, req service.RecordLocationRequest) (*domain.LocationUpdate, *domain.Booking, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, nil, s.err
	}
	return &domain.LocationUpdate{
			BookingID: req.BookingID,
			DriverID:  req.DriverID,
			Lat:       req.Lat,
			Lng:       req.Lng,
			CreatedAt: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		}, &domain.Booking{
			ID:       req.BookingID,
			UserID:   "rider-1",
			DriverID: req.DriverID,
		}, nil
}

func startHub(t *testing.T, rec LocationRecorder) *Hub {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	hub := NewHub(rec, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func connect(hub *Hub, userID string, role domain.UserRole) *Client {
	c := newClient(hub, nil, userID, role)
	hub.register <- c
	return c
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data := <-c.send:
		return data
	case <-time.After(time.Second):
		t.Fatalf("no message for %s", c.UserID)
		return nil
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected message for %s: %s", c.UserID, data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BroadcastsLocationToBookingUser(t *testing.T) {
	t.Parallel()
	rec := &stubRecorder{}
	hub := startHub(t, rec)

	rider := connect(hub, "rider-1", domain.UserRoleUser)
	other := connect(hub, "rider-2", domain.UserRoleUser)
	driver := connect(hub, "driver-1", domain.UserRoleDriver)

	hub.handleMessage(driver, []byte(`{"bookingId":"b1","currentLat":12.5,"currentLng":77.25}`))

	var msg LocationBroadcast
	require.NoError(t, json.Unmarshal(receive(t, rider), &msg))
	assert.Equal(t, TypeLocation, msg.Type)
	assert.Equal(t, "b1", msg.BookingID)
	assert.Equal(t, 12.5, msg.Lat)
	assert.Equal(t, 77.25, msg.Lng)
	assert.False(t, msg.CreatedAt.IsZero())

	require.Len(t, rec.reqs, 1)
	assert.Equal(t, "driver-1", rec.reqs[0].DriverID)

	assertSilent(t, other)
	assertSilent(t, driver)
}

func TestHub_InvalidPayloadRepliesToSenderOnly(t *testing.T) {
	t.Parallel()
	rec := &stubRecorder{}
	hub := startHub(t, rec)

	rider := connect(hub, "rider-1", domain.UserRoleUser)
	driver := connect(hub, "driver-1", domain.UserRoleDriver)

	hub.handleMessage(driver, []byte(`{"bookingId":"b1","currentLat":"abc","currentLng":1}`))

	var msg ErrorMessage
	require.NoError(t, json.Unmarshal(receive(t, driver), &msg))
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "currentLat must be numeric", msg.Error)
	assert.Empty(t, rec.reqs)
	assertSilent(t, rider)
}

func TestHub_RejectedUpdatesAreReported(t *testing.T) {
	t.Parallel()
	hub := startHub(t, &stubRecorder{err: service.ErrLocationNotTrackable})
	driver := connect(hub, "driver-1", domain.UserRoleDriver)

	hub.handleMessage(driver, []byte(`{"bookingId":"b1","currentLat":1,"currentLng":1}`))

	var msg ErrorMessage
	require.NoError(t, json.Unmarshal(receive(t, driver), &msg))
	assert.Equal(t, service.ErrLocationNotTrackable.Error(), msg.Error)
}

func TestHub_OnlyDriversReport(t *testing.T) {
	t.Parallel()
	rec := &stubRecorder{}
	hub := startHub(t, rec)
	rider := connect(hub, "rider-1", domain.UserRoleUser)

	hub.handleMessage(rider, []byte(`{"bookingId":"b1","currentLat":1,"currentLng":1}`))

	var msg ErrorMessage
	require.NoError(t, json.Unmarshal(receive(t, rider), &msg))
	assert.Equal(t, TypeError, msg.Type)
	assert.Empty(t, rec.reqs)
}

func TestHub_StoppedHubDoesNotBlock(t *testing.T) {
	t.Parallel()
	logger, _ := logtest.NewNullLogger()
	hub := NewHub(&stubRecorder{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	c := connect(hub, "rider-1", domain.UserRoleUser)
	cancel()
	<-stopped

	_, open := <-c.send
	assert.False(t, open, "clients are dropped on shutdown")

	returned := make(chan bool)
	go func() {
		hub.leave(c)
		hub.SendToUser("rider-1", []byte(`{}`))
		for i := 0; i < 300; i++ {
			hub.reply(c, []byte(`{}`))
		}
		returned <- hub.enter(newClient(hub, nil, "rider-2", domain.UserRoleUser))
	}()

	select {
	case entered := <-returned:
		assert.False(t, entered)
	case <-time.After(time.Second):
		t.Fatal("hub calls blocked after shutdown")
	}
}
