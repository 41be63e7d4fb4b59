package app

import (
	"context"
	"testing"
	"time"

	"reliefops/internal/config"
	"reliefops/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Setenv("RELIEF_DATABASE_DRIVER", "memory")
	t.Setenv("RELIEF_REDIS_ENABLED", "false")
	cfg, err := config.LoadFrom("")
	require.NoError(t, err)
	return cfg
}

func TestNewWiresMemoryStack(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Pool)
	assert.Nil(t, a.Cache)
	assert.Nil(t, a.Archive)
	assert.NotNil(t, a.Sweeper)
	assert.Positive(t, a.Dispatcher.HandlerCount(models.EventAllocationCreated))
	assert.Positive(t, a.Dispatcher.HandlerCount(models.EventDisasterClosed))
}

func TestMaterialDonationCreditsConfiguredWarehouse(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Donations.DefaultWarehouse = "Depot 7"
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	op := models.OpContext{Actor: "alice", Role: models.RoleOperator, LockWait: time.Second}
	resource := &models.Resource{Name: "Blankets", Category: "Shelter", Unit: "piece"}
	require.NoError(t, a.Inventory.RegisterResource(ctx, resource))

	qty := 40
	donation, err := a.Donations.RecordDonation(ctx, op, models.DonationInput{
		DonorID:    uuid.New(),
		Type:       models.DonationMaterial,
		ResourceID: &resource.ID,
		Quantity:   &qty,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, donation.ReceiptNumber)

	lines, err := a.Inventory.ListLines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "Depot 7", lines[0].WarehouseLocation)
	assert.Equal(t, 40, lines[0].QuantityAvailable)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Database.Driver = "sqlite"
	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
