package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Outgoing message types.
const (
	TypeLocation = "location"
	TypeError    = "error"
)

// LocationReport is the message a driver sends while on a trip.
type LocationReport struct {
	BookingID string
	Lat       float64
	Lng       float64
}

// LocationBroadcast is pushed to the booking's user for every accepted report.
type LocationBroadcast struct {
	Type      string    `json:"type"`
	BookingID string    `json:"bookingId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	CreatedAt time.Time `json:"createdAt"`
}

// ErrorMessage is sent back to the client whose message was rejected.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type rawLocationReport struct {
	BookingID  string          `json:"bookingId"`
	CurrentLat json.RawMessage `json:"currentLat"`
	CurrentLng json.RawMessage `json:"currentLng"`
}

// ParseLocationReport decodes a driver message. Coordinates may be JSON
// numbers or numeric strings.
func ParseLocationReport(data []byte) (LocationReport, error) {
	var raw rawLocationReport
	if err := json.Unmarshal(data, &raw); err != nil {
		return LocationReport{}, errors.New("malformed message")
	}

	bookingID := strings.TrimSpace(raw.BookingID)
	if bookingID == "" {
		return LocationReport{}, errors.New("bookingId is required")
	}

	lat, err := parseCoordinate("currentLat", raw.CurrentLat)
	if err != nil {
		return LocationReport{}, err
	}
	lng, err := parseCoordinate("currentLng", raw.CurrentLng)
	if err != nil {
		return LocationReport{}, err
	}

	return LocationReport{BookingID: bookingID, Lat: lat, Lng: lng}, nil
}

func parseCoordinate(field string, raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("%s is required", field)
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, fmt.Errorf("%s must be numeric", field)
		}
		if v, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, fmt.Errorf("%s must be numeric", field)
		}
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be numeric", field)
	}
	return v, nil
}

func encodeError(msg string) []byte {
	data, _ := json.Marshal(ErrorMessage{Type: TypeError, Error: msg})
	return data
}
