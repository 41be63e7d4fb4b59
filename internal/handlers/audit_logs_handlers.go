package handlers

import (
	"net/http"
	"strconv"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/models"
	"reliefops/internal/services"

	"github.com/labstack/echo/v4"
)

// AuditLogsHandlers handles audit trail queries and archival
type AuditLogsHandlers struct {
	auditLogsService services.AuditLogsService
	archive          services.AuditArchiveService
	now              services.Clock
}

// NewAuditLogsHandlers creates the handlers. archive may be nil when object storage is disabled.
func NewAuditLogsHandlers(auditLogsService services.AuditLogsService, archive services.AuditArchiveService, now services.Clock) *AuditLogsHandlers {
	if now == nil {
		now = services.SystemClock
	}
	return &AuditLogsHandlers{auditLogsService: auditLogsService, archive: archive, now: now}
}

func (h *AuditLogsHandlers) Register(g *echo.Group) {
	g.GET("/audit-logs", h.ListAuditLogs)
	g.GET("/audit-logs/high-risk", h.ListHighRisk)
	g.GET("/audit-logs/:entity_type/:entity_id", h.GetEntityHistory)
	g.POST("/audit-logs/archive", h.ArchiveAuditLogs)
}

// ListAuditLogs retrieves audit entries with optional filtering
func (h *AuditLogsHandlers) ListAuditLogs(c echo.Context) error {
	ctx := c.Request().Context()

	filters := &models.AuditLogFilters{}
	if entityType := c.QueryParam("entity_type"); entityType != "" {
		filters.EntityType = &entityType
	}
	if entityID := c.QueryParam("entity_id"); entityID != "" {
		filters.EntityID = &entityID
	}
	if action := c.QueryParam("action"); action != "" {
		a := models.AuditAction(action)
		filters.Action = &a
	}

	var err error
	if filters.StartDate, err = common.ParseDate(c.QueryParam("start_date"), "start_date"); err != nil {
		return common.SendEngineError(c, err, 0)
	}
	if filters.EndDate, err = common.ParseDate(c.QueryParam("end_date"), "end_date"); err != nil {
		return common.SendEngineError(c, err, 0)
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if filters.Limit, filters.Offset, err = common.ValidatePaginationParams(limit, offset); err != nil {
		return common.SendEngineError(c, err, 0)
	}

	logs, err := h.auditLogsService.ListAuditLogs(ctx, filters)
	if err != nil {
		return common.SendEngineError(c, err, 0)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   logs,
		"total":  len(logs),
		"limit":  filters.Limit,
		"offset": filters.Offset,
	})
}

// GetEntityHistory retrieves the full trail of one entity, oldest first
func (h *AuditLogsHandlers) GetEntityHistory(c echo.Context) error {
	entityType := c.Param("entity_type")
	entityID := c.Param("entity_id")

	logs, err := h.auditLogsService.GetEntityHistory(c.Request().Context(), entityType, entityID)
	if err != nil {
		return common.SendEngineError(c, err, 0)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":        logs,
		"total":       len(logs),
		"entity_type": entityType,
		"entity_id":   entityID,
	})
}

// ListHighRisk lists Delete entries in a date range, last 30 days by default
func (h *AuditLogsHandlers) ListHighRisk(c echo.Context) error {
	end := h.now()
	start := end.AddDate(0, 0, -30)

	if s, err := common.ParseDate(c.QueryParam("start_date"), "start_date"); err != nil {
		return common.SendEngineError(c, err, 0)
	} else if s != nil {
		start = *s
	}
	if e, err := common.ParseDate(c.QueryParam("end_date"), "end_date"); err != nil {
		return common.SendEngineError(c, err, 0)
	} else if e != nil {
		end = *e
	}

	logs, err := h.auditLogsService.ListHighRisk(c.Request().Context(), start, end)
	if err != nil {
		return common.SendEngineError(c, err, 0)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":       logs,
		"total":      len(logs),
		"start_date": start,
		"end_date":   end,
	})
}

type archiveRequest struct {
	Before string `json:"before"`
}

// ArchiveAuditLogs moves entries older than before into object storage (admin only)
func (h *AuditLogsHandlers) ArchiveAuditLogs(c echo.Context) error {
	if h.archive == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Audit archival is disabled")
	}
	op, err := opFromRequest(c)
	if err != nil {
		return respondError(c, err, 0)
	}
	var req archiveRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	before, err := common.ParseDate(req.Before, "before")
	if err != nil {
		return common.SendEngineError(c, err, 0)
	}
	if before == nil {
		return common.SendValidationError(c, "before", "is required")
	}

	result, err := h.archive.Archive(c.Request().Context(), op, *before)
	if err != nil {
		return common.SendEngineError(c, err, 0)
	}

	response := map[string]interface{}{"result": result}
	if result.Archived > 0 {
		if url, err := h.archive.ArchiveURL(c.Request().Context(), result.ObjectName, time.Hour); err == nil {
			response["download_url"] = url
		}
	}
	return c.JSON(http.StatusOK, response)
}
