package services

import (
	"context"
	"testing"

	"reliefops/internal/common"
	"reliefops/internal/models"
	"reliefops/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type InventoryServiceTestSuite struct {
	suite.Suite
	engine     *testEngine
	ctx        context.Context
	resourceID uuid.UUID
}

func (suite *InventoryServiceTestSuite) SetupTest() {
	suite.engine = newTestEngine(suite.T())
	suite.ctx = context.Background()
	suite.resourceID = suite.engine.seedResource("Rice", 50)
}

func (suite *InventoryServiceTestSuite) TestRegisterResource() {
	resource := &models.Resource{Name: "  Insulin  ", Category: "Medicine", Unit: "vial", MinStock: 10}
	suite.Require().NoError(suite.engine.inventory.RegisterResource(suite.ctx, resource))
	suite.NotEqual(uuid.Nil, resource.ID)
	suite.Equal("Insulin", resource.Name)

	err := suite.engine.inventory.RegisterResource(suite.ctx, &models.Resource{Name: ""})
	suite.True(common.IsValidation(err))
	err = suite.engine.inventory.RegisterResource(suite.ctx, &models.Resource{Name: "Soap", MinStock: -1})
	suite.True(common.IsValidation(err))

	resources, err := suite.engine.inventory.ListResources(suite.ctx)
	suite.Require().NoError(err)
	suite.Len(resources, 2)
}

func (suite *InventoryServiceTestSuite) TestAddStockCreatesThenCredits() {
	e := suite.engine
	line, err := e.inventory.AddStock(suite.ctx, operatorOp, models.StockInput{ResourceID: suite.resourceID, WarehouseLocation: "Depot", Quantity: 30})
	suite.Require().NoError(err)
	suite.Equal(30, line.QuantityAvailable)

	again, err := e.inventory.AddStock(suite.ctx, operatorOp, models.StockInput{ResourceID: suite.resourceID, WarehouseLocation: "Depot", Quantity: 12})
	suite.Require().NoError(err)
	suite.Equal(line.ID, again.ID)
	suite.Equal(42, again.QuantityAvailable)

	history, err := e.audit.GetEntityHistory(suite.ctx, models.EntityInventoryLine, line.ID.String())
	suite.Require().NoError(err)
	suite.Require().Len(history, 2)
	suite.Equal(models.ActionCreate, history[0].Action)
	suite.Equal(models.ActionUpdate, history[1].Action)

	_, err = e.inventory.AddStock(suite.ctx, operatorOp, models.StockInput{ResourceID: uuid.New(), WarehouseLocation: "Depot", Quantity: 1})
	suite.True(common.IsNotFound(err))
	_, err = e.inventory.AddStock(suite.ctx, operatorOp, models.StockInput{ResourceID: suite.resourceID, WarehouseLocation: "Depot", Quantity: 0})
	suite.True(common.IsValidation(err))
}

func (suite *InventoryServiceTestSuite) TestTransfer() {
	e := suite.engine
	northID := e.seedLine(suite.resourceID, "North", 80)
	southID := e.seedLine(suite.resourceID, "South", 5)

	suite.Require().NoError(e.inventory.Transfer(suite.ctx, operatorOp, models.TransferInput{
		ResourceID: suite.resourceID, FromWarehouse: "North", ToWarehouse: "South", Quantity: 30,
	}))
	suite.Equal(50, e.lineQuantity(suite.T(), northID))
	suite.Equal(35, e.lineQuantity(suite.T(), southID))

	suite.Require().NoError(e.inventory.Transfer(suite.ctx, operatorOp, models.TransferInput{
		ResourceID: suite.resourceID, FromWarehouse: "North", ToWarehouse: "Field Camp", Quantity: 20,
	}))
	suite.Equal(30, e.lineQuantity(suite.T(), northID))

	lines, err := e.inventory.ListLines(suite.ctx)
	suite.Require().NoError(err)
	total := 0
	for _, l := range lines {
		total += l.QuantityAvailable
	}
	suite.Len(lines, 3)
	suite.Equal(85, total)
}

func (suite *InventoryServiceTestSuite) TestTransferShortfallChangesNothing() {
	e := suite.engine
	northID := e.seedLine(suite.resourceID, "North", 10)
	southID := e.seedLine(suite.resourceID, "South", 10)

	err := e.inventory.Transfer(suite.ctx, operatorOp, models.TransferInput{
		ResourceID: suite.resourceID, FromWarehouse: "North", ToWarehouse: "South", Quantity: 11,
	})
	var ise *common.InsufficientStockError
	suite.Require().ErrorAs(err, &ise)
	suite.Equal(1, ise.Shortfalls[0].Missing)

	err = e.inventory.Transfer(suite.ctx, operatorOp, models.TransferInput{
		ResourceID: suite.resourceID, FromWarehouse: "Nowhere", ToWarehouse: "South", Quantity: 1,
	})
	suite.ErrorAs(err, &ise)

	err = e.inventory.Transfer(suite.ctx, operatorOp, models.TransferInput{
		ResourceID: suite.resourceID, FromWarehouse: "North", ToWarehouse: "North", Quantity: 1,
	})
	suite.True(common.IsValidation(err))

	suite.Equal(10, e.lineQuantity(suite.T(), northID))
	suite.Equal(10, e.lineQuantity(suite.T(), southID))
	suite.Empty(e.store.AuditEntries())
}

func (suite *InventoryServiceTestSuite) TestAdjust() {
	e := suite.engine
	lineID := e.seedLine(suite.resourceID, "Central", 10)

	line, err := e.inventory.Adjust(suite.ctx, operatorOp, suite.resourceID, "Central", -4)
	suite.Require().NoError(err)
	suite.Equal(6, line.QuantityAvailable)

	_, err = e.inventory.Adjust(suite.ctx, operatorOp, suite.resourceID, "Central", -7)
	var ise *common.InsufficientStockError
	suite.ErrorAs(err, &ise)

	_, err = e.inventory.Adjust(suite.ctx, operatorOp, suite.resourceID, "Central", 0)
	suite.True(common.IsValidation(err))

	line, err = e.inventory.Adjust(suite.ctx, operatorOp, suite.resourceID, "Overflow", 9)
	suite.Require().NoError(err)
	suite.Equal(9, line.QuantityAvailable)
	suite.Equal(6, e.lineQuantity(suite.T(), lineID))
}

func (suite *InventoryServiceTestSuite) TestReserveAndRelease() {
	e := suite.engine
	lineID := e.seedLine(suite.resourceID, "Central", 10)

	token, err := e.inventory.Reserve(suite.ctx, operatorOp, suite.resourceID, "Central", 4)
	suite.Require().NoError(err)
	suite.Equal(lineID, token.InventoryLineID)
	suite.Equal(6, e.lineQuantity(suite.T(), lineID))

	err = e.inventory.Release(suite.ctx, operatorOp, token, 2)
	suite.True(common.IsValidation(err), "partial release is refused")

	suite.Require().NoError(e.inventory.Release(suite.ctx, operatorOp, token, 0))
	suite.Equal(10, e.lineQuantity(suite.T(), lineID))

	suite.Require().NoError(e.inventory.Release(suite.ctx, operatorOp, token, 4))
	suite.Equal(10, e.lineQuantity(suite.T(), lineID))

	_, err = e.inventory.Reserve(suite.ctx, operatorOp, suite.resourceID, "Central", 11)
	var ise *common.InsufficientStockError
	suite.ErrorAs(err, &ise)

	err = e.inventory.Release(suite.ctx, operatorOp, models.ReservationToken{}, 0)
	suite.True(common.IsValidation(err))
}

func (suite *InventoryServiceTestSuite) TestReleaseRefusesAllocationReservation() {
	e := suite.engine
	lineID := e.seedLine(suite.resourceID, "Central", 100)
	requestID := e.seedRequest(suite.resourceID, 60, models.UrgencyHigh, engineEpoch)

	created, err := e.allocations.Allocate(suite.ctx, operatorOp, allocate(requestID, from("Central", 60)))
	suite.Require().NoError(err)
	token := models.ReservationToken{
		ID:              created[0].ReservationID,
		InventoryLineID: created[0].InventoryLineID,
		Quantity:        created[0].QuantityAllocated,
	}

	err = e.inventory.Release(suite.ctx, operatorOp, token, 0)
	suite.True(common.IsValidation(err), "stock backing a live allocation stays reserved")
	suite.Equal(40, e.lineQuantity(suite.T(), lineID))
	suite.Equal(60, e.requestView(suite.T(), requestID).Totals.Allocated)

	_, err = e.allocations.CancelAllocation(suite.ctx, operatorOp, created[0].ID)
	suite.Require().NoError(err)
	suite.Equal(100, e.lineQuantity(suite.T(), lineID))

	suite.Require().NoError(e.inventory.Release(suite.ctx, operatorOp, token, 0), "already released by the cancel")
	suite.Equal(100, e.lineQuantity(suite.T(), lineID))
}

func (suite *InventoryServiceTestSuite) TestLedgerRefusesNegativeQuantity() {
	e := suite.engine
	lineID := e.seedLine(suite.resourceID, "Central", 3)

	err := e.store.Execute(suite.ctx, 0, func(ctx context.Context, repos repositories.Repos) error {
		locked, err := repos.Inventory().LockByIDs(ctx, []uuid.UUID{lineID})
		if err != nil {
			return err
		}
		return e.ledger.apply(ctx, repos, operatorOp, locked[lineID], -4, false)
	})
	suite.True(common.IsInvariantViolation(err))
	suite.Equal(3, e.lineQuantity(suite.T(), lineID))
}

func (suite *InventoryServiceTestSuite) TestLowStockAlerts() {
	e := suite.engine
	water := e.seedResource("Water", 10)
	e.seedLine(suite.resourceID, "Central", 0)
	e.seedLine(water, "Central", 4)
	e.seedLine(water, "North", 40)

	alerts, err := e.inventory.LowStockAlerts(suite.ctx)
	suite.Require().NoError(err)
	suite.Require().Len(alerts, 2)
	suite.Equal(0, alerts[0].Line.QuantityAvailable)
	suite.Equal("Rice", alerts[0].Resource.Name)
	suite.Equal(4, alerts[1].Line.QuantityAvailable)
}

func (suite *InventoryServiceTestSuite) TestGetLineNotFound() {
	_, err := suite.engine.inventory.GetLine(suite.ctx, uuid.New())
	suite.True(common.IsNotFound(err))
}

func TestInventoryServiceTestSuite(t *testing.T) {
	suite.Run(t, new(InventoryServiceTestSuite))
}
