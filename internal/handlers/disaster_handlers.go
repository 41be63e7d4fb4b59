package handlers

import (
	"net/http"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/models"
	"reliefops/internal/services"

	"github.com/labstack/echo/v4"
)

// DisasterHandlers covers disasters, their teams and volunteers.
type DisasterHandlers struct {
	disasters  services.DisasterService
	retryAfter time.Duration
	now        services.Clock
}

func NewDisasterHandlers(disasters services.DisasterService, retryAfter time.Duration, now services.Clock) *DisasterHandlers {
	if now == nil {
		now = services.SystemClock
	}
	return &DisasterHandlers{disasters: disasters, retryAfter: retryAfter, now: now}
}

func (h *DisasterHandlers) Register(g *echo.Group) {
	g.POST("/disasters", h.CreateDisaster)
	g.GET("/disasters/:id", h.GetDisaster)
	g.POST("/disasters/:id/teams", h.CreateTeam)
	g.POST("/disasters/:id/close", h.CloseDisaster)
	g.POST("/volunteers", h.RegisterVolunteer)
	g.GET("/volunteers/orphaned", h.ListOrphanedVolunteers)
}

type createDisasterRequest struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Severity  string `json:"severity"`
	StartDate string `json:"start_date"`
}

// CreateDisaster handles POST /disasters
func (h *DisasterHandlers) CreateDisaster(c echo.Context) error {
	op, err := opFromRequest(c)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	var req createDisasterRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	start, err := common.ParseDate(req.StartDate, "start_date")
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	disaster := &models.Disaster{
		Name:     req.Name,
		Type:     req.Type,
		Severity: req.Severity,
	}
	if start != nil {
		disaster.StartDate = *start
	}
	if err := h.disasters.CreateDisaster(c.Request().Context(), op, disaster); err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusCreated, disaster)
}

// GetDisaster handles GET /disasters/:id
func (h *DisasterHandlers) GetDisaster(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	disaster, err := h.disasters.GetDisaster(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, disaster)
}

type createTeamRequest struct {
	Name string `json:"name"`
}

// CreateTeam handles POST /disasters/:id/teams
func (h *DisasterHandlers) CreateTeam(c echo.Context) error {
	op, err := opFromRequest(c)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	disasterID, err := pathUUID(c, "id")
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	var req createTeamRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	team := &models.ReliefTeam{DisasterID: disasterID, Name: req.Name}
	if err := h.disasters.CreateTeam(c.Request().Context(), op, team); err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusCreated, team)
}

type registerVolunteerRequest struct {
	Name   string `json:"name"`
	TeamID string `json:"team_id"`
}

// RegisterVolunteer handles POST /volunteers
func (h *DisasterHandlers) RegisterVolunteer(c echo.Context) error {
	op, err := opFromRequest(c)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	var req registerVolunteerRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	volunteer := &models.Volunteer{Name: req.Name}
	if req.TeamID != "" {
		teamID, err := parseUUIDField(req.TeamID, "team_id")
		if err != nil {
			return respondError(c, err, h.retryAfter)
		}
		volunteer.TeamID = &teamID
	}
	if err := h.disasters.RegisterVolunteer(c.Request().Context(), op, volunteer); err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusCreated, volunteer)
}

type closeDisasterRequest struct {
	EndDate string `json:"end_date"`
}

// CloseDisaster handles POST /disasters/:id/close. end_date defaults to now.
func (h *DisasterHandlers) CloseDisaster(c echo.Context) error {
	op, err := opFromRequest(c)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	var req closeDisasterRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	end, err := common.ParseDate(req.EndDate, "end_date")
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	endDate := h.now()
	if end != nil {
		endDate = *end
	}

	result, err := h.disasters.CloseDisaster(c.Request().Context(), op, id, endDate)
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, result)
}

// ListOrphanedVolunteers handles GET /volunteers/orphaned
func (h *DisasterHandlers) ListOrphanedVolunteers(c echo.Context) error {
	volunteers, err := h.disasters.ListOrphanedVolunteers(c.Request().Context())
	if err != nil {
		return respondError(c, err, h.retryAfter)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"volunteers": volunteers,
		"count":      len(volunteers),
	})
}
