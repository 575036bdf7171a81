package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"dedicated/internal/domain"
	"dedicated/internal/service"
)

const recordTimeout = 5 * time.Second

// LocationRecorder persists a driver's position and returns the booking it
// belongs to.
type LocationRecorder interface {
	Record(ctx context.Context, req service.RecordLocationRequest) (*domain.LocationUpdate, *domain.Booking, error)
}

type delivery struct {
	room   string
	client *Client // Set for a reply to a single client
	data   []byte
}

// Hub routes messages between connected clients. Rooms and client sets are
// owned by the Run goroutine.
type Hub struct {
	recorder   LocationRecorder
	log        logrus.FieldLogger
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	done       chan struct{} // Closed when Run returns
}

// NewHub creates a new Hub.
func NewHub(recorder LocationRecorder, log logrus.FieldLogger) *Hub {
	return &Hub{
		recorder:   recorder,
		log:        log,
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 256),
		done:       make(chan struct{}),
	}
}

// UserRoom is the room every connection of a user joins.
func UserRoom(userID string) string {
	return "user:" + userID
}

// Run processes registrations and deliveries until ctx is cancelled. It
// must be called once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			h.join(c, UserRoom(c.UserID))
			h.log.WithFields(logrus.Fields{"user_id": c.UserID, "role": c.Role}).Debug("realtime client connected")
		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
				h.log.WithField("user_id", c.UserID).Debug("realtime client disconnected")
			}
		case d := <-h.deliver:
			if d.client != nil {
				if h.clients[d.client] {
					h.push(d.client, d.data)
				}
				continue
			}
			for c := range h.rooms[d.room] {
				h.push(c, d.data)
			}
		}
	}
}

// SendToUser queues data for every connection of userID. It is a no-op
// once the hub has stopped.
func (h *Hub) SendToUser(userID string, data []byte) {
	h.send(delivery{room: UserRoom(userID), data: data})
}

func (h *Hub) reply(c *Client, data []byte) {
	h.send(delivery{client: c, data: data})
}

func (h *Hub) send(d delivery) {
	select {
	case h.deliver <- d:
	case <-h.done:
	}
}

// enter registers c, reporting false if the hub has stopped.
func (h *Hub) enter(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters c. Clients of a stopped hub were already dropped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) join(c *Client, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
}

// push hands data to a client, dropping it if its buffer is full.
func (h *Hub) push(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.log.WithField("user_id", c.UserID).Warn("realtime client too slow, disconnecting")
		h.drop(c)
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(c.send)
}

// handleMessage processes one inbound frame from c.
func (h *Hub) handleMessage(c *Client, message []byte) {
	if c.Role != domain.UserRoleDriver {
		h.reply(c, encodeError("only drivers can report locations"))
		return
	}

	report, err := ParseLocationReport(message)
	if err != nil {
		h.reply(c, encodeError(err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	update, booking, err := h.recorder.Record(ctx, service.RecordLocationRequest{
		BookingID: report.BookingID,
		DriverID:  c.UserID,
		Lat:       report.Lat,
		Lng:       report.Lng,
	})
	if err != nil {
		h.reply(c, encodeError(clientError(err)))
		return
	}

	data, err := json.Marshal(LocationBroadcast{
		Type:      TypeLocation,
		BookingID: update.BookingID,
		Lat:       update.Lat,
		Lng:       update.Lng,
		CreatedAt: update.CreatedAt,
	})
	if err != nil {
		h.log.WithError(err).Error("failed to encode location broadcast")
		return
	}
	h.SendToUser(booking.UserID, data)
}

// clientError hides unexpected failures from the sender.
func clientError(err error) string {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, service.ErrBookingNotFound),
		errors.Is(err, service.ErrLocationNotTrackable),
		errors.Is(err, service.ErrNotAssignedDriver):
		return err.Error()
	}
	return "location update failed"
}
