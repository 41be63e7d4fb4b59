package caching

import (
	"context"
	"os"
	"testing"
	"time"

	"reliefops/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func getRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestInventoryLineReadThrough(t *testing.T) {
	client := getRedisClient(t)
	cache := NewRedisCacheServiceFromClient(client, zap.NewNop())
	ctx := context.Background()

	line := &models.InventoryLine{ID: uuid.New(), ResourceID: uuid.New(), WarehouseLocation: "Central", QuantityAvailable: 12}
	t.Cleanup(func() { client.Del(ctx, lineKey(line.ID), lineInvalidatedKey(line.ID)) })

	miss, err := cache.GetInventoryLine(ctx, line.ID)
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, cache.SetInventoryLine(ctx, line, time.Minute))
	got, err := cache.GetInventoryLine(ctx, line.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12, got.QuantityAvailable)
}

func TestStaleWriteAfterInvalidationIsDropped(t *testing.T) {
	client := getRedisClient(t)
	cache := NewRedisCacheServiceFromClient(client, zap.NewNop())
	ctx := context.Background()

	stale := &models.InventoryLine{ID: uuid.New(), ResourceID: uuid.New(), WarehouseLocation: "Central", QuantityAvailable: 100}
	t.Cleanup(func() { client.Del(ctx, lineKey(stale.ID), lineInvalidatedKey(stale.ID)) })

	require.NoError(t, cache.DeleteInventoryLine(ctx, stale.ID))
	require.NoError(t, cache.SetInventoryLine(ctx, stale, time.Minute))

	got, err := cache.GetInventoryLine(ctx, stale.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "a read that raced the commit must not repopulate the cache")

	ttl, err := client.PTTL(ctx, lineInvalidatedKey(stale.ID)).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= invalidationHold)
}

func TestDeliveryAlertDedupe(t *testing.T) {
	client := getRedisClient(t)
	cache := NewRedisCacheServiceFromClient(client, zap.NewNop())
	ctx := context.Background()

	alert := &models.DeliveryAlert{AllocationID: uuid.New(), DeliveryStatus: models.DeliveryDispatched}
	t.Cleanup(func() { client.Del(ctx, alertDedupeKey(alert)) })

	added, err := cache.PublishDeliveryAlert(ctx, alert, time.Minute)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = cache.PublishDeliveryAlert(ctx, alert, time.Minute)
	require.NoError(t, err)
	assert.False(t, added)
}
