package handlers

import (
	"net/http"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/models"
	"reliefops/internal/services"

	"github.com/labstack/echo/v4"
)

// InventoryHandlers handles the resource catalog and warehouse stock
type InventoryHandlers struct {
	inventory  services.InventoryService
	retryAfter time.Duration
}

func NewInventoryHandlers(inventory services.InventoryService, retryAfter time.Duration) *InventoryHandlers {
	return &InventoryHandlers{inventory: inventory, retryAfter: retryAfter}
}

func (h *InventoryHandlers) Register(g *echo.Group) {
	g.POST("/resources", h.RegisterResource)
	g.GET("/resources", h.ListResources)
	g.POST("/inventory/stock", h.AddStock)
	g.POST("/inventory/transfer", h.Transfer)
	g.POST("/inventory/adjust", h.Adjust)
	g.GET("/inventory", h.ListLines)
	g.GET("/inventory/low-stock", h.LowStock)
	g.GET("/inventory/:id", h.GetLine)
}

type registerResourceRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Unit     string `json:"unit"`
	MinStock int    `json:"min_stock"`
}

// RegisterResource handles POST /resources
func (h *InventoryHandlers) RegisterResource(c echo.Context) error {
	if _, err := opFromRequest(c); err != nil {
		return respondError(c, err, h.retryAfter)
	}
	var req registerResourceRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	resource := &models.Resource{
		Name:     req.Name,
		Category: req.Category,
		Unit:     req.Unit,
		MinStock: req.MinStock,
	}
	if err := h.inventory.RegisterResource(c.Request().Context(), resource); err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusCreated, resource)
}

// ListResources handles GET /resources
func (h *InventoryHandlers) ListResources(c echo.Context) error {
	resources, err := h.inventory.ListResources(c.Request().Context())
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"resources": resources,
		"total":     len(resources),
	})
}

// AddStock handles POST /inventory/stock
func (h *InventoryHandlers) AddStock(c echo.Context) error {
	op, err := opFromRequest(c)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	var input models.StockInput
	if err := c.Bind(&input); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	line, err := h.inventory.AddStock(c.Request().Context(), op, input)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, line)
}

// Transfer handles POST /inventory/transfer
func (h *InventoryHandlers) Transfer(c echo.Context) error {
	op, err := opFromRequest(c)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	var input models.TransferInput
	if err := c.Bind(&input); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if err := h.inventory.Transfer(c.Request().Context(), op, input); err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Stock transferred successfully"})
}

type adjustRequest struct {
	ResourceID        string `json:"resource_id"`
	WarehouseLocation string `json:"warehouse_location"`
	Delta             int    `json:"delta"`
}

// Adjust handles POST /inventory/adjust
func (h *InventoryHandlers) Adjust(c echo.Context) error {
	op, err := opFromRequest(c)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	var req adjustRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	resourceID, err := parseUUIDField(req.ResourceID, "resource_id")
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	line, err := h.inventory.Adjust(c.Request().Context(), op, resourceID, req.WarehouseLocation, req.Delta)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, line)
}

// GetLine handles GET /inventory/:id
func (h *InventoryHandlers) GetLine(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	line, err := h.inventory.GetLine(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, line)
}

// ListLines handles GET /inventory
func (h *InventoryHandlers) ListLines(c echo.Context) error {
	lines, err := h.inventory.ListLines(c.Request().Context())
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"lines": lines,
		"total": len(lines),
	})
}

// LowStock handles GET /inventory/low-stock
func (h *InventoryHandlers) LowStock(c echo.Context) error {
	alerts, err := h.inventory.LowStockAlerts(c.Request().Context())
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}
