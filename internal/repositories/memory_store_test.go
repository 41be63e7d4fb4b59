package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T) (*MemoryStore, uuid.UUID, uuid.UUID) {
	t.Helper()
	s := NewMemoryStore(time.Second)
	resourceID, lineID := uuid.New(), uuid.New()
	s.SeedResource(models.Resource{ID: resourceID, Name: "Water", MinStock: 10})
	s.SeedLine(models.InventoryLine{ID: lineID, ResourceID: resourceID, WarehouseLocation: "Central", QuantityAvailable: 20})
	return s, resourceID, lineID
}

func readLine(t *testing.T, s *MemoryStore, id uuid.UUID) *models.InventoryLine {
	t.Helper()
	var line *models.InventoryLine
	require.NoError(t, s.Execute(context.Background(), 0, func(ctx context.Context, repos Repos) error {
		var err error
		line, err = repos.Inventory().GetByID(ctx, id)
		return err
	}))
	return line
}

func TestMemoryStoreCommitsBufferedWrites(t *testing.T) {
	s, _, lineID := seededStore(t)
	hooks := 0

	err := s.Execute(context.Background(), 0, func(ctx context.Context, repos Repos) error {
		if _, err := repos.Inventory().LockByIDs(ctx, []uuid.UUID{lineID}); err != nil {
			return err
		}
		if err := repos.Inventory().UpdateQuantity(ctx, lineID, 5, time.Now()); err != nil {
			return err
		}
		line, err := repos.Inventory().GetByID(ctx, lineID)
		if err != nil {
			return err
		}
		assert.Equal(t, 5, line.QuantityAvailable, "a transaction reads its own writes")
		repos.AfterCommit(func() { hooks++ })
		return repos.AuditLogs().Create(ctx, &models.AuditEntry{EntityType: models.EntityInventoryLine, EntityID: lineID.String(), Action: models.ActionUpdate})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, hooks)
	assert.Equal(t, 5, readLine(t, s, lineID).QuantityAvailable)
	require.Len(t, s.AuditEntries(), 1)
	assert.Equal(t, int64(1), s.AuditEntries()[0].Seq)
}

func TestMemoryStoreDiscardsWritesOnError(t *testing.T) {
	s, _, lineID := seededStore(t)
	hooks := 0
	boom := errors.New("boom")

	err := s.Execute(context.Background(), 0, func(ctx context.Context, repos Repos) error {
		if err := repos.Inventory().UpdateQuantity(ctx, lineID, 1, time.Now()); err != nil {
			return err
		}
		repos.AfterCommit(func() { hooks++ })
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, hooks)
	assert.Equal(t, 20, readLine(t, s, lineID).QuantityAvailable)
	assert.Empty(t, s.AuditEntries())
}

func TestMemoryStoreLockTimeout(t *testing.T) {
	s, _, lineID := seededStore(t)
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.Execute(context.Background(), 0, func(ctx context.Context, repos Repos) error {
			if _, err := repos.Inventory().LockByIDs(ctx, []uuid.UUID{lineID}); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := s.Execute(context.Background(), 30*time.Millisecond, func(ctx context.Context, repos Repos) error {
		_, err := repos.Inventory().LockByIDs(ctx, []uuid.UUID{lineID})
		return err
	})
	assert.ErrorIs(t, err, common.ErrLockTimeout)

	close(release)
	require.NoError(t, <-done)
}

func TestMemoryStoreEnsureCreatesOnce(t *testing.T) {
	s, resourceID, lineID := seededStore(t)

	err := s.Execute(context.Background(), 0, func(ctx context.Context, repos Repos) error {
		line, created, err := repos.Inventory().Ensure(ctx, resourceID, "Central")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, lineID, line.ID)

		line, created, err = repos.Inventory().Ensure(ctx, resourceID, "Harbour")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Zero(t, line.QuantityAvailable)
		return nil
	})
	require.NoError(t, err)

	err = s.Execute(context.Background(), 0, func(ctx context.Context, repos Repos) error {
		_, err := repos.Inventory().GetByResourceAndWarehouse(ctx, resourceID, "Harbour")
		return err
	})
	assert.NoError(t, err)
}

func TestMemoryStoreReceiptNumbersAreUnique(t *testing.T) {
	s := NewMemoryStore(time.Second)
	record := func(seq int) error {
		return s.Execute(context.Background(), 0, func(ctx context.Context, repos Repos) error {
			return repos.Donations().Create(ctx, &models.Donation{
				ID:            uuid.New(),
				Type:          models.DonationMoney,
				ReceiptYear:   2025,
				ReceiptSeq:    seq,
				ReceiptNumber: models.FormatReceiptNumber(2025, seq),
			})
		})
	}
	require.NoError(t, record(1))
	assert.True(t, common.IsValidation(record(1)))

	err := s.Execute(context.Background(), 0, func(ctx context.Context, repos Repos) error {
		next, err := repos.Donations().NextReceiptSeq(ctx, 2025)
		assert.Equal(t, 2, next)
		return err
	})
	assert.NoError(t, err)
}

func TestMemoryStoreNotFound(t *testing.T) {
	s := NewMemoryStore(time.Second)
	err := s.Execute(context.Background(), 0, func(ctx context.Context, repos Repos) error {
		_, err := repos.Requests().GetForUpdate(ctx, uuid.New())
		return err
	})
	assert.True(t, common.IsNotFound(err))
}
