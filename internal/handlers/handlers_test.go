package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"reliefops/internal/events"
	"reliefops/internal/middleware"
	"reliefops/internal/models"
	"reliefops/internal/repositories"
	"reliefops/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type HandlersTestSuite struct {
	suite.Suite
	store *repositories.MemoryStore
	e     *echo.Echo

	resourceID uuid.UUID
	requestID  uuid.UUID
}

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// actorFromHeaders stands in for the JWT middleware.
func actorFromHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if actor := c.Request().Header.Get("X-Test-Actor"); actor != "" {
			ctx := middleware.WithActor(c.Request().Context(), actor, c.Request().Header.Get("X-Test-Role"), "10.0.0.1")
			c.SetRequest(c.Request().WithContext(ctx))
		}
		return next(c)
	}
}

func (s *HandlersTestSuite) SetupTest() {
	logger := zap.NewNop()
	now := func() time.Time { return fixedNow }

	s.store = repositories.NewMemoryStore(time.Second)
	dispatcher := events.NewDispatcher(logger)
	audit := services.NewAuditLogsService(s.store, logger, now)
	ledger := services.NewLedger(audit, nil, logger, now)
	requests := services.NewRequestService(s.store, audit, services.DefaultEscalationPolicy(), logger, now)
	allocations := services.NewAllocationService(s.store, ledger, audit, dispatcher, logger, now)
	inventory := services.NewInventoryService(s.store, ledger, nil, logger, now)
	donations := services.NewDonationService(s.store, audit, dispatcher, logger, now)
	disasters := services.NewDisasterService(s.store, audit, dispatcher, logger, now)
	services.NewCascadeRules(dispatcher, ledger, requests, audit, services.DefaultDonationWarehouse, logger).Register()

	s.e = echo.New()
	api := s.e.Group("/api/v1", actorFromHeaders)
	NewRequestHandlers(requests, time.Second).Register(api)
	NewAllocationHandlers(allocations, nil, time.Second).Register(api)
	NewInventoryHandlers(inventory, time.Second).Register(api)
	NewDonationHandlers(donations, time.Second).Register(api)
	NewDisasterHandlers(disasters, time.Second, now).Register(api)
	NewAuditLogsHandlers(audit, nil, now).Register(api)
	NewHealthHandlers(nil, nil, nil, "", "test").Register(s.e)

	s.resourceID = uuid.New()
	s.requestID = uuid.New()
	s.store.SeedResource(models.Resource{ID: s.resourceID, Name: "Water", Category: "Water", Unit: "litre", MinStock: 10})
	s.store.SeedLine(models.InventoryLine{ID: uuid.New(), ResourceID: s.resourceID, WarehouseLocation: "Central", QuantityAvailable: 100})
	s.store.SeedRequest(models.Request{
		ID:                s.requestID,
		AreaID:            uuid.New(),
		ResourceID:        s.resourceID,
		QuantityRequested: 60,
		Urgency:           models.UrgencyHigh,
		Status:            models.RequestPending,
		RequestDate:       fixedNow,
	})
}

func (s *HandlersTestSuite) do(method, path, body, actor, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if actor != "" {
		req.Header.Set("X-Test-Actor", actor)
		req.Header.Set("X-Test-Role", role)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *HandlersTestSuite) decode(rec *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (s *HandlersTestSuite) allocateBody(qty int) string {
	return `{"request_id":"` + s.requestID.String() + `","warehouses":[{"warehouse_location":"Central","quantity":` + itoa(qty) + `}]}`
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func (s *HandlersTestSuite) TestAllocateApprovesRequest() {
	rec := s.do(http.MethodPost, "/api/v1/allocations", s.allocateBody(60), "alice", "operator")
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	ids := s.decode(rec)["allocation_ids"].([]interface{})
	s.Len(ids, 1)

	rec = s.do(http.MethodGet, "/api/v1/requests/"+s.requestID.String(), "", "alice", "operator")
	s.Require().Equal(http.StatusOK, rec.Code)
	view := s.decode(rec)
	s.Equal(string(models.RequestApproved), view["status"])
	s.Equal(float64(60), view["totals"].(map[string]interface{})["allocated"])
}

func (s *HandlersTestSuite) TestOverAllocationIsConflict() {
	rec := s.do(http.MethodPost, "/api/v1/allocations", s.allocateBody(60), "alice", "operator")
	s.Require().Equal(http.StatusCreated, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/allocations", s.allocateBody(1), "alice", "operator")
	s.Equal(http.StatusConflict, rec.Code)
	errBody := s.decode(rec)["error"].(map[string]interface{})
	s.Equal("OVER_ALLOCATION", errBody["code"])
}

func (s *HandlersTestSuite) TestInsufficientStockListsShortfall() {
	body := `{"request_id":"` + s.requestID.String() + `","warehouses":[{"warehouse_location":"North","quantity":10}]}`
	rec := s.do(http.MethodPost, "/api/v1/allocations", body, "alice", "operator")
	s.Equal(http.StatusConflict, rec.Code)
	errBody := s.decode(rec)["error"].(map[string]interface{})
	s.Equal("INSUFFICIENT_STOCK", errBody["code"])
	s.Contains(errBody["details"], "North")
}

func (s *HandlersTestSuite) TestDeliveryLifecycle() {
	rec := s.do(http.MethodPost, "/api/v1/allocations", s.allocateBody(60), "alice", "operator")
	s.Require().Equal(http.StatusCreated, rec.Code)
	id := s.decode(rec)["allocation_ids"].([]interface{})[0].(string)

	for _, status := range []string{"Dispatched", "Delivered"} {
		rec = s.do(http.MethodPatch, "/api/v1/allocations/"+id+"/delivery-status", `{"status":"`+status+`"}`, "bob", "operator")
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/api/v1/requests/"+s.requestID.String(), "", "bob", "operator")
	s.Equal(string(models.RequestFulfilled), s.decode(rec)["status"])

	rec = s.do(http.MethodDelete, "/api/v1/allocations/"+id, "", "bob", "operator")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlersTestSuite) TestMissingActorIsUnauthorized() {
	rec := s.do(http.MethodPost, "/api/v1/allocations", s.allocateBody(10), "", "")
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlersTestSuite) TestOverrideRequiresAdmin() {
	body := `{"status":"Rejected","reason":"duplicate"}`
	rec := s.do(http.MethodPost, "/api/v1/requests/"+s.requestID.String()+"/override", body, "alice", "operator")
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/requests/"+s.requestID.String()+"/override", body, "root", "admin")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(string(models.RequestRejected), s.decode(rec)["status"])
}

func (s *HandlersTestSuite) TestInvalidInputs() {
	rec := s.do(http.MethodGet, "/api/v1/requests/not-a-uuid", "", "alice", "operator")
	s.Equal(http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/allocations", strings.NewReader(s.allocateBody(10)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Test-Actor", "alice")
	req.Header.Set(lockWaitHeader, "forever")
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/requests/"+uuid.NewString(), "", "alice", "operator")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlersTestSuite) TestRecordDonationAssignsReceipt() {
	body := `{"donor_id":"` + uuid.NewString() + `","type":"Money","amount":"250.00"}`
	rec := s.do(http.MethodPost, "/api/v1/donations", body, "alice", "operator")
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	s.Equal("DON-2025-001", s.decode(rec)["receipt_number"])

	rec = s.do(http.MethodPost, "/api/v1/donations", body, "alice", "operator")
	s.Require().Equal(http.StatusCreated, rec.Code)
	s.Equal("DON-2025-002", s.decode(rec)["receipt_number"])
}

func (s *HandlersTestSuite) TestCloseDisasterReleasesVolunteers() {
	rec := s.do(http.MethodPost, "/api/v1/disasters", `{"name":"Flood","type":"Flood","severity":"High","start_date":"2025-02-01"}`, "alice", "operator")
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	disasterID := s.decode(rec)["id"].(string)

	rec = s.do(http.MethodPost, "/api/v1/disasters/"+disasterID+"/teams", `{"name":"Alpha"}`, "alice", "operator")
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	teamID := s.decode(rec)["id"].(string)

	for _, name := range []string{"Ana", "Ben"} {
		rec = s.do(http.MethodPost, "/api/v1/volunteers", `{"name":"`+name+`","team_id":"`+teamID+`"}`, "alice", "operator")
		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodPost, "/api/v1/disasters/"+disasterID+"/close", `{"end_date":"2025-02-20"}`, "alice", "operator")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	result := s.decode(rec)
	s.Equal(float64(1), result["teams_disbanded"])
	s.Equal(float64(2), result["volunteers_released"])
}

func (s *HandlersTestSuite) TestEntityHistory() {
	rec := s.do(http.MethodPost, "/api/v1/allocations", s.allocateBody(20), "alice", "operator")
	s.Require().Equal(http.StatusCreated, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/audit-logs/"+models.EntityRequest+"/"+s.requestID.String(), "", "alice", "operator")
	s.Require().Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal(float64(1), body["total"])

	rec = s.do(http.MethodPost, "/api/v1/audit-logs/archive", `{"before":"2025-01-01"}`, "root", "admin")
	s.Equal(http.StatusServiceUnavailable, rec.Code)
}

func (s *HandlersTestSuite) TestDeliveryAlertsDisabledWithoutCache() {
	rec := s.do(http.MethodGet, "/api/v1/alerts/delivery", "", "alice", "operator")
	s.Equal(http.StatusServiceUnavailable, rec.Code)
}

func TestHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}

func TestHealthReportsDisabledDependencies(t *testing.T) {
	e := echo.New()
	NewHealthHandlers(nil, nil, nil, "", "1.2.3").Register(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Services["database"])
	assert.Equal(t, "disabled", health.Services["redis"])
	assert.Equal(t, "disabled", health.Services["storage"])
	assert.Equal(t, "1.2.3", health.Version)
}
