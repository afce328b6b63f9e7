package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tankerflow/booking-engine/internal/application"
	"github.com/tankerflow/booking-engine/internal/auth"
	"github.com/tankerflow/booking-engine/internal/domain"
	"github.com/tankerflow/booking-engine/internal/domain/booking"
	"github.com/tankerflow/booking-engine/internal/domain/user"
	"github.com/tankerflow/booking-engine/internal/store"
)

// BookingHandler handles HTTP requests for booking and payment operations.
type BookingHandler struct {
	lifecycle *application.BookingLifecycle
	payments  *application.PaymentCoordinator
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(lifecycle *application.BookingLifecycle, payments *application.PaymentCoordinator) *BookingHandler {
	return &BookingHandler{lifecycle: lifecycle, payments: payments}
}

// RegisterRoutes registers all booking routes on the given router group.
func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := auth.Middleware(jwtManager)

	bookings := r.Group("/api/v1/bookings")
	bookings.Use(authMW)
	{
		bookings.POST("", auth.RequireRole(string(user.RoleCustomer)), h.CreateBooking)
		bookings.GET("", h.ListBookings)
		bookings.GET("/available", auth.RequireRole(string(user.RoleDriver)), h.AvailableBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.POST("/:id/accept", auth.RequireRole(string(user.RoleDriver)), h.AcceptBooking)
		bookings.POST("/:id/transit", auth.RequireRole(string(user.RoleDriver)), h.StartTransit)
		bookings.POST("/:id/deliver", auth.RequireRole(string(user.RoleDriver)), h.ConfirmDelivery)
		bookings.POST("/:id/cancel", h.CancelBooking)
		bookings.POST("/:id/payment", h.ProcessPayment)
		bookings.POST("/:id/payment/confirm", auth.RequireRole(string(user.RoleDriver)), h.ConfirmPayment)
	}
}

// CreateBooking handles POST /api/v1/bookings.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	callerID, ok := auth.CallerID(c)
	if !ok {
		respondError(c, domain.NewValidationError("missing caller identity"))
		return
	}

	var draft booking.Booking
	if err := c.ShouldBindJSON(&draft); err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	draft.CustomerID = callerID

	id, err := h.lifecycle.CreateBooking(c.Request.Context(), draft)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, gin.H{"id": id})
}

// ListBookings handles GET /api/v1/bookings. Customers see their own
// bookings, drivers see their assigned ones, admins see everything.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	callerID, ok := auth.CallerID(c)
	if !ok {
		respondError(c, domain.NewValidationError("missing caller identity"))
		return
	}
	role, _ := auth.CallerRole(c)
	opts := parseListOptions(c)

	var (
		result []booking.Booking
		err    error
	)
	switch user.Role(role) {
	case user.RoleDriver:
		result, err = h.lifecycle.BookingsByDriver(c.Request.Context(), callerID, opts)
	case user.RoleAdmin:
		result, err = h.lifecycle.AllBookings(c.Request.Context(), opts)
	default:
		result, err = h.lifecycle.BookingsByCustomer(c.Request.Context(), callerID, opts)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, result)
}

// AvailableBookings handles GET /api/v1/bookings/available: pending
// bookings with no driver assigned yet.
func (h *BookingHandler) AvailableBookings(c *gin.Context) {
	result, err := h.lifecycle.AvailableBookings(c.Request.Context(), parseListOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, result)
}

// GetBooking handles GET /api/v1/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	id := c.Param("id")
	bk, err := h.lifecycle.GetBookingByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if bk == nil {
		respondError(c, domain.NewNotFoundError("Booking", id))
		return
	}
	respondSuccess(c, bk)
}

// AcceptBooking handles POST /api/v1/bookings/:id/accept. The accepting
// driver is assigned and the booking stops being customer-cancellable.
func (h *BookingHandler) AcceptBooking(c *gin.Context) {
	driverID, ok := auth.CallerID(c)
	if !ok {
		respondError(c, domain.NewValidationError("missing caller identity"))
		return
	}

	var body struct {
		AgencyID string `json:"agencyId"`
	}
	_ = c.ShouldBindJSON(&body)

	extra := store.Patch{
		"driverId":  driverID,
		"canCancel": false,
	}
	if body.AgencyID != "" {
		extra["agencyId"] = body.AgencyID
	}

	id := c.Param("id")
	if err := h.lifecycle.UpdateStatus(c.Request.Context(), id, booking.StatusAccepted, extra); err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, gin.H{"id": id, "status": booking.StatusAccepted})
}

// StartTransit handles POST /api/v1/bookings/:id/transit.
func (h *BookingHandler) StartTransit(c *gin.Context) {
	id := c.Param("id")
	if err := h.lifecycle.UpdateStatus(c.Request.Context(), id, booking.StatusInTransit, nil); err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, gin.H{"id": id, "status": booking.StatusInTransit})
}

// ConfirmDelivery handles POST /api/v1/bookings/:id/deliver.
func (h *BookingHandler) ConfirmDelivery(c *gin.Context) {
	id := c.Param("id")
	if err := h.lifecycle.UpdateStatus(c.Request.Context(), id, booking.StatusDelivered, nil); err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, gin.H{"id": id, "status": booking.StatusDelivered})
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel. Customers may
// only cancel their own bookings while the cancellable flag still holds;
// admins bypass both checks.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	callerID, ok := auth.CallerID(c)
	if !ok {
		respondError(c, domain.NewValidationError("missing caller identity"))
		return
	}
	role, _ := auth.CallerRole(c)

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	id := c.Param("id")
	if user.Role(role) != user.RoleAdmin {
		bk, err := h.lifecycle.GetBookingByID(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if bk == nil || bk.CustomerID != callerID {
			respondError(c, domain.NewNotFoundError("Booking", id))
			return
		}
		if !bk.CanCancel {
			respondError(c, domain.NewConflictError("booking can no longer be cancelled"))
			return
		}
	}

	if err := h.lifecycle.CancelBooking(c.Request.Context(), id, body.Reason); err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, gin.H{"id": id, "status": booking.StatusCancelled})
}

// ProcessPayment handles POST /api/v1/bookings/:id/payment. The result is
// always a 200 with a success flag; payment outcomes are data, not errors.
func (h *BookingHandler) ProcessPayment(c *gin.Context) {
	var body struct {
		Amount float64 `json:"amount"`
		Method string  `json:"method"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	id := c.Param("id")
	var result application.PaymentResult
	if body.Method == "online" {
		result = h.payments.ProcessOnlinePayment(c.Request.Context(), id, body.Amount, body.Method)
	} else {
		result = h.payments.ProcessPayment(c.Request.Context(), id, body.Amount)
	}
	respondSuccess(c, result)
}

// ConfirmPayment handles POST /api/v1/bookings/:id/payment/confirm.
func (h *BookingHandler) ConfirmPayment(c *gin.Context) {
	result := h.payments.ConfirmPayment(c.Request.Context(), c.Param("id"))
	respondSuccess(c, result)
}

// parseListOptions extracts limit, offset and sort query parameters with
// defaults.
func parseListOptions(c *gin.Context) application.ListOptions {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	opts := application.ListOptions{
		Limit:  limit,
		Offset: offset,
		SortBy: c.Query("sortBy"),
	}
	if c.Query("order") == "asc" {
		opts.Order = store.Asc
	}
	return opts
}
