package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type DonationServiceTestSuite struct {
	suite.Suite
	engine *testEngine
	ctx    context.Context
}

func (suite *DonationServiceTestSuite) SetupTest() {
	suite.engine = newTestEngine(suite.T())
	suite.ctx = context.Background()
}

func money(amount string) models.DonationInput {
	value := decimal.RequireFromString(amount)
	return models.DonationInput{DonorID: uuid.New(), Type: models.DonationMoney, Amount: &value}
}

func material(resourceID uuid.UUID, qty int) models.DonationInput {
	return models.DonationInput{DonorID: uuid.New(), Type: models.DonationMaterial, ResourceID: &resourceID, Quantity: &qty}
}

func (suite *DonationServiceTestSuite) TestConcurrentDonationsGetDistinctReceipts() {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var receipts []string
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			donation, err := suite.engine.donations.RecordDonation(suite.ctx, operatorOp, money("250.00"))
			if err != nil {
				suite.T().Errorf("record donation: %v", err)
				return
			}
			mu.Lock()
			receipts = append(receipts, donation.ReceiptNumber)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Strings(receipts)
	suite.Equal([]string{"DON-2025-001", "DON-2025-002"}, receipts)
}

func (suite *DonationServiceTestSuite) TestReceiptSequenceRestartsEachYear() {
	first, err := suite.engine.donations.RecordDonation(suite.ctx, operatorOp, money("10"))
	suite.Require().NoError(err)
	suite.Equal("DON-2025-001", first.ReceiptNumber)
	suite.Equal(2025, first.ReceiptYear)
	suite.Equal(1, first.ReceiptSeq)

	suite.engine.clock.Advance(240 * 24 * time.Hour)
	next, err := suite.engine.donations.RecordDonation(suite.ctx, operatorOp, money("10"))
	suite.Require().NoError(err)
	suite.Equal("DON-2026-001", next.ReceiptNumber)

	stored, err := suite.engine.donations.GetDonation(suite.ctx, next.ID)
	suite.Require().NoError(err)
	suite.Equal(next.ReceiptNumber, stored.ReceiptNumber)
}

func (suite *DonationServiceTestSuite) TestMaterialDonationCreditsDonationWarehouse() {
	e := suite.engine
	resourceID := e.seedResource("Tarpaulin", 0)

	donation, err := e.donations.RecordDonation(suite.ctx, operatorOp, material(resourceID, 35))
	suite.Require().NoError(err)
	suite.Equal("DON-2025-001", donation.ReceiptNumber)

	lines, err := e.inventory.ListLines(suite.ctx)
	suite.Require().NoError(err)
	suite.Require().Len(lines, 1)
	suite.Equal(DefaultDonationWarehouse, lines[0].WarehouseLocation)
	suite.Equal(35, lines[0].QuantityAvailable)

	history, err := e.audit.GetEntityHistory(suite.ctx, models.EntityInventoryLine, lines[0].ID.String())
	suite.Require().NoError(err)
	suite.Require().Len(history, 1)
	suite.Equal(models.ActionCreate, history[0].Action)

	_, err = e.donations.RecordDonation(suite.ctx, operatorOp, material(resourceID, 5))
	suite.Require().NoError(err)
	suite.Equal(40, e.lineQuantity(suite.T(), lines[0].ID))
	suite.Equal(2, e.auditCount()[models.EntityDonation])
}

func (suite *DonationServiceTestSuite) TestMaterialDonationOfUnknownResourceRollsBack() {
	e := suite.engine
	_, err := e.donations.RecordDonation(suite.ctx, operatorOp, material(uuid.New(), 5))
	suite.True(common.IsNotFound(err))
	suite.Empty(e.store.AuditEntries())

	donation, err := e.donations.RecordDonation(suite.ctx, operatorOp, money("1"))
	suite.Require().NoError(err)
	suite.Equal("DON-2025-001", donation.ReceiptNumber, "a rolled back donation does not consume a receipt number")
}

func (suite *DonationServiceTestSuite) TestDonationValidation() {
	resourceID := uuid.New()
	qty := 3
	zero := decimal.Zero

	cases := map[string]models.DonationInput{
		"money without amount":   {DonorID: uuid.New(), Type: models.DonationMoney},
		"money with zero amount": {DonorID: uuid.New(), Type: models.DonationMoney, Amount: &zero},
		"money with resource":    {DonorID: uuid.New(), Type: models.DonationMoney, Amount: money("5").Amount, ResourceID: &resourceID},
		"material without qty":   {DonorID: uuid.New(), Type: models.DonationMaterial, ResourceID: &resourceID},
		"material with amount":   {DonorID: uuid.New(), Type: models.DonationMaterial, ResourceID: &resourceID, Quantity: &qty, Amount: money("5").Amount},
		"unknown type":           {DonorID: uuid.New(), Type: "Service"},
	}
	for name, input := range cases {
		_, err := suite.engine.donations.RecordDonation(suite.ctx, operatorOp, input)
		suite.True(common.IsValidation(err), name)
	}
}

func (suite *DonationServiceTestSuite) TestDonationForUnknownDisaster() {
	input := money("100")
	disasterID := uuid.New()
	input.DisasterID = &disasterID

	_, err := suite.engine.donations.RecordDonation(suite.ctx, operatorOp, input)
	suite.True(common.IsNotFound(err))
}

func TestDonationServiceTestSuite(t *testing.T) {
	suite.Run(t, new(DonationServiceTestSuite))
}
