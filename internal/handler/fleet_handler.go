package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/tankerflow/booking-engine/internal/application"
	"github.com/tankerflow/booking-engine/internal/auth"
	"github.com/tankerflow/booking-engine/internal/domain"
	"github.com/tankerflow/booking-engine/internal/domain/fleet"
	"github.com/tankerflow/booking-engine/internal/domain/user"
)

// FleetHandler handles HTTP requests for agency vehicles and bank accounts.
// All fleet routes require the admin role; the agency scope is always the
// caller's own identity, never a request parameter.
type FleetHandler struct {
	service *application.FleetService
}

// NewFleetHandler creates a new FleetHandler.
func NewFleetHandler(service *application.FleetService) *FleetHandler {
	return &FleetHandler{service: service}
}

// RegisterRoutes registers all fleet routes on the given router group.
func (h *FleetHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := auth.Middleware(jwtManager)
	adminMW := auth.RequireRole(string(user.RoleAdmin))

	vehicles := r.Group("/api/v1/vehicles")
	vehicles.Use(authMW, adminMW)
	{
		vehicles.POST("", h.AddVehicle)
		vehicles.GET("", h.ListVehicles)
		vehicles.POST("/:id/default", h.SetDefaultVehicle)
		vehicles.DELETE("/:id", h.RemoveVehicle)
	}

	accounts := r.Group("/api/v1/bank-accounts")
	accounts.Use(authMW, adminMW)
	{
		accounts.POST("", h.AddBankAccount)
		accounts.GET("", h.ListBankAccounts)
		accounts.POST("/:id/default", h.SetDefaultBankAccount)
		accounts.DELETE("/:id", h.RemoveBankAccount)
	}
}

// AddVehicle handles POST /api/v1/vehicles.
func (h *FleetHandler) AddVehicle(c *gin.Context) {
	agencyID, ok := auth.CallerID(c)
	if !ok {
		respondError(c, domain.NewValidationError("missing caller identity"))
		return
	}

	var v fleet.Vehicle
	if err := c.ShouldBindJSON(&v); err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	v.AgencyID = agencyID

	id, err := h.service.AddVehicle(c.Request.Context(), v)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, gin.H{"id": id})
}

// ListVehicles handles GET /api/v1/vehicles.
func (h *FleetHandler) ListVehicles(c *gin.Context) {
	agencyID, ok := auth.CallerID(c)
	if !ok {
		respondError(c, domain.NewValidationError("missing caller identity"))
		return
	}
	result, err := h.service.VehiclesByAgency(c.Request.Context(), agencyID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, result)
}

// SetDefaultVehicle handles POST /api/v1/vehicles/:id/default.
func (h *FleetHandler) SetDefaultVehicle(c *gin.Context) {
	agencyID, ok := auth.CallerID(c)
	if !ok {
		respondError(c, domain.NewValidationError("missing caller identity"))
		return
	}
	id := c.Param("id")
	if err := h.service.SetDefaultVehicle(c.Request.Context(), agencyID, id); err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, gin.H{"id": id, "isDefault": true})
}

// RemoveVehicle handles DELETE /api/v1/vehicles/:id.
func (h *FleetHandler) RemoveVehicle(c *gin.Context) {
	if err := h.service.RemoveVehicle(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, gin.H{"deleted": true})
}

// AddBankAccount handles POST /api/v1/bank-accounts.
func (h *FleetHandler) AddBankAccount(c *gin.Context) {
	agencyID, ok := auth.CallerID(c)
	if !ok {
		respondError(c, domain.NewValidationError("missing caller identity"))
		return
	}

	var a fleet.BankAccount
	if err := c.ShouldBindJSON(&a); err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	a.AgencyID = agencyID

	id, err := h.service.AddBankAccount(c.Request.Context(), a)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, gin.H{"id": id})
}

// ListBankAccounts handles GET /api/v1/bank-accounts.
func (h *FleetHandler) ListBankAccounts(c *gin.Context) {
	agencyID, ok := auth.CallerID(c)
	if !ok {
		respondError(c, domain.NewValidationError("missing caller identity"))
		return
	}
	result, err := h.service.BankAccountsByAgency(c.Request.Context(), agencyID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, result)
}

// SetDefaultBankAccount handles POST /api/v1/bank-accounts/:id/default.
func (h *FleetHandler) SetDefaultBankAccount(c *gin.Context) {
	agencyID, ok := auth.CallerID(c)
	if !ok {
		respondError(c, domain.NewValidationError("missing caller identity"))
		return
	}
	id := c.Param("id")
	if err := h.service.SetDefaultBankAccount(c.Request.Context(), agencyID, id); err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, gin.H{"id": id, "isDefault": true})
}

// RemoveBankAccount handles DELETE /api/v1/bank-accounts/:id.
func (h *FleetHandler) RemoveBankAccount(c *gin.Context) {
	if err := h.service.RemoveBankAccount(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, gin.H{"deleted": true})
}
