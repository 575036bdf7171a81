package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dedicated/internal/domain"
	"dedicated/internal/middleware"
	"dedicated/internal/service"
)

const dateLayout = "2006-01-02"

// BookingHandler handles HTTP requests for dedicated vehicle bookings.
type BookingHandler struct {
	bookings  *service.BookingService
	locations *service.LocationService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(bookings *service.BookingService, locations *service.LocationService) *BookingHandler {
	return &BookingHandler{
		bookings:  bookings,
		locations: locations,
	}
}

// CreateBookingRequest is the HTTP request body for creating a booking.
// Coordinate and duration bounds come from configuration and are checked by
// the service.
type CreateBookingRequest struct {
	UserID            string  `json:"userId,omitempty"` // Defaults to the caller
	VehicleCategoryID string  `json:"vehicleCategoryId" binding:"required,max=64"`
	PickupAddress     string  `json:"pickupAddress" binding:"required,max=255"`
	PickupLat         float64 `json:"pickupLat"`
	PickupLng         float64 `json:"pickupLng"`
	DropoffAddress    string  `json:"dropoffAddress" binding:"required,max=255"`
	DropoffLat        float64 `json:"dropoffLat"`
	DropoffLng        float64 `json:"dropoffLng"`
	BookingDate       string  `json:"bookingDate" binding:"required,datetime=2006-01-02"`
	StartTime         string  `json:"startTime" binding:"required,datetime=2006-01-02T15:04:05Z07:00"`
	DurationHours     int     `json:"durationHours"`
	BaseFare          float64 `json:"baseFare" binding:"gte=0"`
	PricePerHour      float64 `json:"pricePerHour" binding:"gte=0"`
	PromotionCode     string  `json:"promotionCode,omitempty" binding:"max=64"`
	Notes             string  `json:"notes,omitempty" binding:"max=1000"`
}

// AssignDriverRequest is the HTTP request body for allocating a driver.
type AssignDriverRequest struct {
	DriverID string `json:"driverId" binding:"required"`
}

// UpdateStatusRequest is the HTTP request body for the administrative status override.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,booking_status"`
}

// CancelBookingRequest is the HTTP request body for cancelling a booking.
type CancelBookingRequest struct {
	Reason string `json:"reason,omitempty" binding:"max=500"`
}

// BookingResponse is the HTTP representation of a booking.
type BookingResponse struct {
	ID                string  `json:"id"`
	UserID            string  `json:"userId"`
	DriverID          string  `json:"driverId,omitempty"`
	VehicleCategoryID string  `json:"vehicleCategoryId"`
	PickupAddress     string  `json:"pickupAddress"`
	PickupLat         float64 `json:"pickupLat"`
	PickupLng         float64 `json:"pickupLng"`
	DropoffAddress    string  `json:"dropoffAddress"`
	DropoffLat        float64 `json:"dropoffLat"`
	DropoffLng        float64 `json:"dropoffLng"`
	BookingDate       string  `json:"bookingDate"`
	StartTime         string  `json:"startTime"`
	DurationHours     int     `json:"durationHours"`
	BaseFare          float64 `json:"baseFare"`
	PricePerHour      float64 `json:"pricePerHour"`
	TotalPrice        float64 `json:"totalPrice"`
	DiscountAmount    float64 `json:"discountAmount,omitempty"`
	PromotionCode     string  `json:"promotionCode,omitempty"`
	Notes             string  `json:"notes,omitempty"`
	Status            string  `json:"status"`
	PaymentStatus     string  `json:"paymentStatus"`
	RefundPercentage  *int    `json:"refundPercentage,omitempty"`
	CancelReason      string  `json:"cancelReason,omitempty"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
	StartedAt         string  `json:"startedAt,omitempty"`
	EndedAt           string  `json:"endedAt,omitempty"`
	CancelledAt       string  `json:"cancelledAt,omitempty"`
}

// CreateBookingResponse adds the payment client secret to a new booking.
type CreateBookingResponse struct {
	BookingResponse
	ClientSecret string `json:"clientSecret,omitempty"`
}

// ListBookingsResponse is a page of bookings.
type ListBookingsResponse struct {
	Bookings []BookingResponse `json:"bookings"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

// InvoiceResponse is the HTTP representation of an invoice.
type InvoiceResponse struct {
	ID        string  `json:"id"`
	BookingID string  `json:"bookingId"`
	UserID    string  `json:"userId"`
	Subtotal  float64 `json:"subtotal"`
	TaxRate   float64 `json:"taxRate"`
	Tax       float64 `json:"tax"`
	Discount  float64 `json:"discount"`
	Total     float64 `json:"total"`
	Currency  string  `json:"currency"`
	Paid      bool    `json:"paid"`
	IssuedAt  string  `json:"issuedAt"`
	PaidAt    string  `json:"paidAt,omitempty"`
}

// CompletionResponse is returned when a trip ends.
type CompletionResponse struct {
	Booking         BookingResponse  `json:"booking"`
	Invoice         *InvoiceResponse `json:"invoice,omitempty"`
	DriverEarnings  float64          `json:"driverEarnings,omitempty"`
	EarningsEntryID string           `json:"earningsEntryId,omitempty"`
	PaymentError    string           `json:"paymentError,omitempty"` // Set when the capture is still pending
}

// LocationResponse is one reported position.
type LocationResponse struct {
	BookingID string  `json:"bookingId"`
	DriverID  string  `json:"driverId,omitempty"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	CreatedAt string  `json:"createdAt"`
}

func toBookingResponse(b *domain.Booking) BookingResponse {
	resp := BookingResponse{
		ID:                b.ID,
		UserID:            b.UserID,
		DriverID:          b.DriverID,
		VehicleCategoryID: b.VehicleCategoryID,
		PickupAddress:     b.PickupAddress,
		PickupLat:         b.PickupLat,
		PickupLng:         b.PickupLng,
		DropoffAddress:    b.DropoffAddress,
		DropoffLat:        b.DropoffLat,
		DropoffLng:        b.DropoffLng,
		BookingDate:       b.BookingDate.Format(dateLayout),
		StartTime:         formatTime(b.StartTime),
		DurationHours:     b.DurationHours,
		BaseFare:          b.BaseFare,
		PricePerHour:      b.PricePerHour,
		TotalPrice:        b.TotalPrice,
		DiscountAmount:    b.DiscountAmount,
		PromotionCode:     b.PromotionCode,
		Notes:             b.Notes,
		Status:            string(b.Status),
		PaymentStatus:     string(b.PaymentStatus),
		CancelReason:      b.CancelReason,
		CreatedAt:         formatTime(b.CreatedAt),
		UpdatedAt:         formatTime(b.UpdatedAt),
		StartedAt:         formatTime(b.StartedAt),
		EndedAt:           formatTime(b.EndedAt),
		CancelledAt:       formatTime(b.CancelledAt),
	}
	if b.Status == domain.BookingStatusCancelled {
		pct := b.RefundPercentage
		resp.RefundPercentage = &pct
	}
	return resp
}

func toBookingResponses(bookings []*domain.Booking) []BookingResponse {
	out := make([]BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingResponse(b))
	}
	return out
}

func toInvoiceResponse(inv *domain.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:        inv.ID,
		BookingID: inv.BookingID,
		UserID:    inv.UserID,
		Subtotal:  inv.Subtotal,
		TaxRate:   inv.TaxRate,
		Tax:       inv.Tax,
		Discount:  inv.Discount,
		Total:     inv.Total,
		Currency:  inv.Currency,
		Paid:      inv.IsPaid(),
		IssuedAt:  formatTime(inv.IssuedAt),
		PaidAt:    formatTime(inv.PaidAt),
	}
}

func toLocationResponse(u *domain.LocationUpdate) LocationResponse {
	return LocationResponse{
		BookingID: u.BookingID,
		DriverID:  u.DriverID,
		Lat:       u.Lat,
		Lng:       u.Lng,
		CreatedAt: formatTime(u.CreatedAt),
	}
}

// canSee reports whether the caller may read the booking. Admins see
// everything, users their own bookings, and drivers the bookings assigned to
// them or still open for acceptance.
func canSee(c *gin.Context, b *domain.Booking) bool {
	caller := middleware.CallerID(c)
	switch middleware.CallerRole(c) {
	case domain.UserRoleAdmin:
		return true
	case domain.UserRoleUser:
		return b.UserID == caller
	case domain.UserRoleDriver:
		if b.DriverID == caller {
			return true
		}
		return b.DriverID == "" &&
			(b.Status == domain.BookingStatusPending || b.Status == domain.BookingStatusApproved)
	}
	return false
}

// owns reports whether the caller may cancel or remove the booking.
func owns(c *gin.Context, b *domain.Booking) bool {
	caller := middleware.CallerID(c)
	switch middleware.CallerRole(c) {
	case domain.UserRoleAdmin:
		return true
	case domain.UserRoleUser:
		return b.UserID == caller
	case domain.UserRoleDriver:
		return b.DriverID == caller
	}
	return false
}

// visibleBooking loads the booking at :id and hides it from callers who may
// not see it.
func (h *BookingHandler) visibleBooking(c *gin.Context) (*domain.Booking, bool) {
	return h.loadBooking(c, canSee)
}

func (h *BookingHandler) loadBooking(c *gin.Context, allowed func(*gin.Context, *domain.Booking) bool) (*domain.Booking, bool) {
	booking, err := h.bookings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !allowed(c, booking) {
		respondError(c, service.ErrBookingNotFound)
		return nil, false
	}
	return booking, true
}

// parseSchedule reads the booking date in the start time's location so both
// name the same calendar.
func parseSchedule(date, start string) (time.Time, time.Time, map[string]string) {
	fields := make(map[string]string)

	var startTime time.Time
	if start == "" {
		fields["startTime"] = "is required"
	} else if t, err := time.Parse(time.RFC3339, start); err != nil {
		fields["startTime"] = "must be an RFC3339 timestamp"
	} else {
		startTime = t
	}

	var bookingDate time.Time
	loc := time.UTC
	if !startTime.IsZero() {
		loc = startTime.Location()
	}
	if date == "" {
		fields["bookingDate"] = "is required"
	} else if d, err := time.ParseInLocation(dateLayout, date, loc); err != nil {
		fields["bookingDate"] = "must be a YYYY-MM-DD date"
	} else {
		bookingDate = d
	}

	return bookingDate, startTime, fields
}

// CreateBooking handles POST /v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	fields := make(map[string]string)
	if err := c.ShouldBindJSON(&req); err != nil {
		bound, ok := validationFields(err)
		if !ok {
			respondBadRequest(c, "invalid request body")
			return
		}
		fields = bound
	}

	bookingDate, startTime, scheduleFields := parseSchedule(req.BookingDate, req.StartTime)
	for k, v := range scheduleFields {
		if _, ok := fields[k]; !ok {
			fields[k] = v
		}
	}
	callerID := middleware.CallerID(c)
	if req.UserID != "" && req.UserID != callerID {
		fields["userId"] = "must match the authenticated user"
	}
	if len(fields) > 0 {
		respondError(c, &service.ValidationError{Fields: fields})
		return
	}

	result, err := h.bookings.Create(c.Request.Context(), service.CreateBookingRequest{
		UserID:            callerID,
		VehicleCategoryID: req.VehicleCategoryID,
		PickupAddress:     req.PickupAddress,
		PickupLat:         req.PickupLat,
		PickupLng:         req.PickupLng,
		DropoffAddress:    req.DropoffAddress,
		DropoffLat:        req.DropoffLat,
		DropoffLng:        req.DropoffLng,
		BookingDate:       bookingDate,
		StartTime:         startTime,
		DurationHours:     req.DurationHours,
		BaseFare:          req.BaseFare,
		PricePerHour:      req.PricePerHour,
		PromotionCode:     req.PromotionCode,
		Notes:             req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, CreateBookingResponse{
		BookingResponse: toBookingResponse(result.Booking),
		ClientSecret:    result.ClientSecret,
	})
}

// ListBookings handles GET /v1/bookings
// Users and drivers are scoped to their own bookings.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	filter := domain.BookingFilter{
		UserID:   c.Query("userId"),
		DriverID: c.Query("driverId"),
		Status:   domain.BookingStatus(c.Query("status")),
	}

	switch middleware.CallerRole(c) {
	case domain.UserRoleUser:
		filter.UserID = middleware.CallerID(c)
	case domain.UserRoleDriver:
		filter.DriverID = middleware.CallerID(c)
	}

	fields := make(map[string]string)
	if raw := c.Query("fromDate"); raw != "" {
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			fields["fromDate"] = "must be a YYYY-MM-DD date"
		}
		filter.FromDate = d
	}
	if raw := c.Query("toDate"); raw != "" {
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			fields["toDate"] = "must be a YYYY-MM-DD date"
		}
		filter.ToDate = d
	}
	var ok bool
	if filter.Page, ok = queryInt(c, "page"); !ok {
		fields["page"] = "must be an integer"
	}
	if filter.Limit, ok = queryInt(c, "limit"); !ok {
		fields["limit"] = "must be an integer"
	}
	if len(fields) > 0 {
		respondError(c, &service.ValidationError{Fields: fields})
		return
	}

	bookings, total, err := h.bookings.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	page, limit := service.NormalizePage(filter.Page, filter.Limit)
	respondJSON(c, http.StatusOK, ListBookingsResponse{
		Bookings: toBookingResponses(bookings),
		Total:    total,
		Page:     page,
		Limit:    limit,
	})
}

// ListAvailable handles GET /v1/bookings/available
func (h *BookingHandler) ListAvailable(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		respondBadRequest(c, "limit must be an integer")
		return
	}

	bookings, err := h.bookings.ListAvailable(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"bookings": toBookingResponses(bookings)})
}

// GetBooking handles GET /v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	booking, ok := h.visibleBooking(c)
	if !ok {
		return
	}
	respondJSON(c, http.StatusOK, toBookingResponse(booking))
}

// UpdateStatus handles PATCH /v1/bookings/:id/status
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	booking, err := h.bookings.UpdateStatus(c.Request.Context(), c.Param("id"), domain.BookingStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(booking))
}

// DeleteBooking handles DELETE /v1/bookings/:id
func (h *BookingHandler) DeleteBooking(c *gin.Context) {
	booking, ok := h.loadBooking(c, owns)
	if !ok {
		return
	}

	if err := h.bookings.Remove(c.Request.Context(), booking.ID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// AssignDriver handles POST /v1/bookings/:id/assign-driver
func (h *BookingHandler) AssignDriver(c *gin.Context) {
	var req AssignDriverRequest
	if !bindJSON(c, &req) {
		return
	}

	booking, err := h.bookings.AssignDriver(c.Request.Context(), c.Param("id"), req.DriverID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(booking))
}

// AcceptBooking handles POST /v1/bookings/:id/accept
func (h *BookingHandler) AcceptBooking(c *gin.Context) {
	booking, err := h.bookings.AcceptByDriver(c.Request.Context(), c.Param("id"), middleware.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(booking))
}

// ApproveBooking handles POST /v1/bookings/:id/approve
func (h *BookingHandler) ApproveBooking(c *gin.Context) {
	booking, err := h.bookings.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(booking))
}

// DepartBooking handles POST /v1/bookings/:id/depart
func (h *BookingHandler) DepartBooking(c *gin.Context) {
	booking, err := h.bookings.Depart(c.Request.Context(), c.Param("id"), middleware.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(booking))
}

// StartBooking handles POST /v1/bookings/:id/start
func (h *BookingHandler) StartBooking(c *gin.Context) {
	booking, err := h.bookings.Start(c.Request.Context(), c.Param("id"), middleware.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(booking))
}

// EndBooking handles POST /v1/bookings/:id/end
func (h *BookingHandler) EndBooking(c *gin.Context) {
	result, err := h.bookings.End(c.Request.Context(), c.Param("id"), middleware.CallerID(c))
	if result == nil {
		respondError(c, err)
		return
	}

	// The booking is completed either way; a failed capture is retried in
	// the background and reported with 202.
	resp := toCompletionResponse(result)
	code := http.StatusOK
	if err != nil {
		_ = c.Error(err)
		resp.PaymentError = paymentErrorMessage(err)
		code = http.StatusAccepted
	}
	respondJSON(c, code, resp)
}

func toCompletionResponse(result *service.CompletionResult) CompletionResponse {
	resp := CompletionResponse{Booking: toBookingResponse(result.Booking)}
	if result.Invoice != nil {
		inv := toInvoiceResponse(result.Invoice)
		resp.Invoice = &inv
	}
	if result.Earnings != nil {
		resp.DriverEarnings = result.Earnings.Signed()
		resp.EarningsEntryID = result.Earnings.ID
	}
	return resp
}

func paymentErrorMessage(err error) string {
	if errors.Is(err, service.ErrPaymentDeclined) {
		return service.ErrPaymentDeclined.Error()
	}
	return service.ErrPaymentUnavailable.Error()
}

// CancelBooking handles POST /v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	var req CancelBookingRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	booking, ok := h.loadBooking(c, owns)
	if !ok {
		return
	}

	cancelled, err := h.bookings.Cancel(c.Request.Context(), booking.ID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(cancelled))
}

// GetInvoice handles GET /v1/bookings/:id/invoice
func (h *BookingHandler) GetInvoice(c *gin.Context) {
	booking, ok := h.visibleBooking(c)
	if !ok {
		return
	}

	invoice, err := h.bookings.Invoice(c.Request.Context(), booking.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toInvoiceResponse(invoice))
}

// GetLocation handles GET /v1/bookings/:id/location
func (h *BookingHandler) GetLocation(c *gin.Context) {
	booking, ok := h.visibleBooking(c)
	if !ok {
		return
	}

	update, err := h.locations.Latest(c.Request.Context(), booking.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toLocationResponse(update))
}

// GetLocationHistory handles GET /v1/bookings/:id/locations
func (h *BookingHandler) GetLocationHistory(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		respondBadRequest(c, "limit must be an integer")
		return
	}

	booking, ok := h.visibleBooking(c)
	if !ok {
		return
	}

	updates, err := h.locations.History(c.Request.Context(), booking.ID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]LocationResponse, 0, len(updates))
	for _, u := range updates {
		out = append(out, toLocationResponse(u))
	}
	respondJSON(c, http.StatusOK, gin.H{"locations": out})
}

// NearbyQuery selects live bookings around a point.
type NearbyQuery struct {
	Lat      *float64 `form:"lat" json:"lat" binding:"required"`
	Lng      *float64 `form:"lng" json:"lng" binding:"required"`
	RadiusKm float64  `form:"radiusKm" json:"radiusKm" binding:"required"`
	Limit    int      `form:"limit" json:"limit" binding:"gte=0"`
}

// NearbyBookingResponse is a live position and its distance from the query point.
type NearbyBookingResponse struct {
	LocationResponse
	DistanceKm float64 `json:"distanceKm"`
}

// ListNearby handles GET /v1/admin/bookings/nearby
func (h *BookingHandler) ListNearby(c *gin.Context) {
	var q NearbyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		if fields, ok := validationFields(err); ok {
			respondError(c, &service.ValidationError{Fields: fields})
			return
		}
		respondBadRequest(c, "lat, lng, radiusKm and limit must be numbers")
		return
	}

	nearby, err := h.locations.Nearby(c.Request.Context(), *q.Lat, *q.Lng, q.RadiusKm, q.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]NearbyBookingResponse, 0, len(nearby))
	for _, n := range nearby {
		out = append(out, NearbyBookingResponse{
			LocationResponse: toLocationResponse(n.Update),
			DistanceKm:       n.DistanceKm,
		})
	}
	respondJSON(c, http.StatusOK, gin.H{"bookings": out})
}
