package handlers

import (
	"net/http"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/models"
	"reliefops/internal/services"

	"github.com/labstack/echo/v4"
)

// RequestHandlers exposes the request lifecycle.
type RequestHandlers struct {
	requests   services.RequestService
	retryAfter time.Duration
}

func NewRequestHandlers(requests services.RequestService, retryAfter time.Duration) *RequestHandlers {
	return &RequestHandlers{requests: requests, retryAfter: retryAfter}
}

func (h *RequestHandlers) Register(g *echo.Group) {
	g.POST("/requests", h.SubmitRequest)
	g.GET("/requests/:id", h.GetRequest)
	g.POST("/requests/:id/approve", h.ApproveRequest)
	g.POST("/requests/:id/reject", h.RejectRequest)
	g.POST("/requests/:id/override", h.OverrideRequest)
}

// SubmitRequest handles POST /requests
func (h *RequestHandlers) SubmitRequest(c echo.Context) error {
	op, err := opFromRequest(c)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	var input models.SubmitRequestInput
	if err := c.Bind(&input); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	req, err := h.requests.SubmitRequest(c.Request().Context(), op, input)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusCreated, req)
}

// GetRequest handles GET /requests/:id
func (h *RequestHandlers) GetRequest(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	view, err := h.requests.GetRequest(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, view)
}

// ApproveRequest handles POST /requests/:id/approve
func (h *RequestHandlers) ApproveRequest(c echo.Context) error {
	op, err := opFromRequest(c)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	req, err := h.requests.Approve(c.Request().Context(), op, id)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, req)
}

type rejectRequestBody struct {
	Reason string `json:"reason"`
}

// RejectRequest handles POST /requests/:id/reject
func (h *RequestHandlers) RejectRequest(c echo.Context) error {
	op, err := opFromRequest(c)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	var body rejectRequestBody
	if err := c.Bind(&body); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	req, err := h.requests.Reject(c.Request().Context(), op, id, body.Reason)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, req)
}

// OverrideRequest handles POST /requests/:id/override (admin only)
func (h *RequestHandlers) OverrideRequest(c echo.Context) error {
	op, err := opFromRequest(c)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	var body models.RequestDecisionInput
	if err := c.Bind(&body); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	req, err := h.requests.Override(c.Request().Context(), op, id, body.Status, body.Reason)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, req)
}
