package handlers

import (
	"net/http"
	"strconv"
	"time"

	"reliefops/internal/caching"
	"reliefops/internal/common"
	"reliefops/internal/models"
	"reliefops/internal/services"

	"github.com/labstack/echo/v4"
)

// AllocationHandlers exposes the allocation coordinator and the delivery alert feed.
type AllocationHandlers struct {
	allocations services.AllocationService
	cache       caching.CacheService
	retryAfter  time.Duration
}

// NewAllocationHandlers creates the handlers. cache may be nil when Redis is disabled.
func NewAllocationHandlers(allocations services.AllocationService, cache caching.CacheService, retryAfter time.Duration) *AllocationHandlers {
	return &AllocationHandlers{allocations: allocations, cache: cache, retryAfter: retryAfter}
}

func (h *AllocationHandlers) Register(g *echo.Group) {
	g.POST("/allocations", h.Allocate)
	g.GET("/allocations/:id", h.GetAllocation)
	g.PATCH("/allocations/:id/delivery-status", h.UpdateDeliveryStatus)
	g.DELETE("/allocations/:id", h.CancelAllocation)
	g.GET("/requests/:id/allocations", h.ListAllocations)
	g.GET("/alerts/delivery", h.ListDeliveryAlerts)
}

// Allocate handles POST /allocations
func (h *AllocationHandlers) Allocate(c echo.Context) error {
	op, err := opFromRequest(c)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	var input models.AllocateInput
	if err := c.Bind(&input); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	allocations, err := h.allocations.Allocate(c.Request().Context(), op, input)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	ids := make([]string, len(allocations))
	for i, a := range allocations {
		ids[i] = a.ID.String()
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"allocation_ids": ids,
		"allocations":    allocations,
	})
}

// GetAllocation handles GET /allocations/:id
func (h *AllocationHandlers) GetAllocation(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	allocation, err := h.allocations.GetAllocation(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, allocation)
}

type deliveryStatusBody struct {
	Status models.DeliveryStatus `json:"status"`
}

// UpdateDeliveryStatus handles PATCH /allocations/:id/delivery-status
func (h *AllocationHandlers) UpdateDeliveryStatus(c echo.Context) error {
	op, err := opFromRequest(c)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	var body deliveryStatusBody
	if err := c.Bind(&body); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	allocation, err := h.allocations.UpdateDeliveryStatus(c.Request().Context(), op, id, body.Status)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, allocation)
}

// CancelAllocation handles DELETE /allocations/:id
func (h *AllocationHandlers) CancelAllocation(c echo.Context) error {
	op, err := opFromRequest(c)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	allocation, err := h.allocations.CancelAllocation(c.Request().Context(), op, id)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, allocation)
}

// ListAllocations handles GET /requests/:id/allocations
func (h *AllocationHandlers) ListAllocations(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	allocations, err := h.allocations.ListAllocations(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"allocations": allocations})
}

// ListDeliveryAlerts handles GET /alerts/delivery
func (h *AllocationHandlers) ListDeliveryAlerts(c echo.Context) error {
	if h.cache == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Delivery alert feed is disabled")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = 100
	}
	alerts, err := h.cache.ListDeliveryAlerts(c.Request().Context(), limit)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"alerts": alerts, "limit": limit})
}
