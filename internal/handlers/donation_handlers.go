package handlers

import (
	"net/http"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/models"
	"reliefops/internal/services"

	"github.com/labstack/echo/v4"
)

type DonationHandlers struct {
	donations  services.DonationService
	retryAfter time.Duration
}

func NewDonationHandlers(donations services.DonationService, retryAfter time.Duration) *DonationHandlers {
	return &DonationHandlers{donations: donations, retryAfter: retryAfter}
}

func (h *DonationHandlers) Register(g *echo.Group) {
	g.POST("/donations", h.RecordDonation)
	g.GET("/donations/:id", h.GetDonation)
}

// RecordDonation handles POST /donations. The receipt number is assigned by the server.
func (h *DonationHandlers) RecordDonation(c echo.Context) error {
	op, err := opFromRequest(c)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	var input models.DonationInput
	if err := c.Bind(&input); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	donation, err := h.donations.RecordDonation(c.Request().Context(), op, input)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusCreated, donation)
}

// GetDonation handles GET /donations/:id
func (h *DonationHandlers) GetDonation(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	donation, err := h.donations.GetDonation(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, donation)
}
