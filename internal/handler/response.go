package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dedicated/internal/repository"
	"dedicated/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Unexpected errors are attached to the context for the request logger and
// only described to the caller in debug mode.
func respondError(c *gin.Context, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Fields: verr.Fields})
		return
	}
	if fields, ok := validationFields(err); ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Fields: fields})
		return
	}

	code := mapErrorToHTTPStatus(err)
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
		msg := "internal server error"
		if gin.IsDebugging() {
			msg = err.Error()
		}
		c.JSON(code, ErrorResponse{Error: msg})
		return
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondBadRequest sends a 400 with a fixed message.
func respondBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, service.ErrBookingNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrDriverNotFound),
		errors.Is(err, service.ErrVehicleCategoryNotFound),
		errors.Is(err, service.ErrInvoiceNotFound),
		errors.Is(err, service.ErrWalletNotFound),
		errors.Is(err, service.ErrLocationNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Temporal and state errors - Bad Request
	case errors.Is(err, service.ErrStartTimeInPast),
		errors.Is(err, service.ErrBookingDateInPast),
		errors.Is(err, service.ErrBookingDateMismatch),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrBookingActive),
		errors.Is(err, service.ErrInvoiceRequiresCompletedBooking),
		errors.Is(err, service.ErrLocationNotTrackable):
		return http.StatusBadRequest

	// Validation errors
	case errors.Is(err, service.ErrInvalidCommission),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrNotADriver),
		errors.Is(err, service.ErrVehicleCategoryInactive):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, service.ErrDriverUnavailable),
		errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, service.ErrNotAssignedDriver):
		return http.StatusForbidden

	case errors.Is(err, service.ErrPaymentDeclined):
		return http.StatusPaymentRequired

	// Service unavailable
	case errors.Is(err, service.ErrPaymentUnavailable):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}

// formatTime renders t as RFC3339, or "" when t is zero.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
