package caching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"reliefops/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix          = "reliefops"
	deliveryAlertsKey  = keyPrefix + ":alerts:delivery"
	maxDeliveryAlerts  = 1000
	DefaultLineTTL     = 5 * time.Minute
	DefaultAlertWindow = 24 * time.Hour
	// invalidationHold is how long read-through writes of a line are refused
	// after the line was invalidated.
	invalidationHold = 10 * time.Second
)

// setUnlessInvalidated writes KEYS[1] only while no invalidation marker
// KEYS[2] exists, so a read that raced a commit cannot repopulate the cache.
var setUnlessInvalidated = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// CacheService caches inventory line reads and keeps the delivery alert feed.
// A cache miss is reported as (nil, nil).
type CacheService interface {
	GetInventoryLine(ctx context.Context, lineID uuid.UUID) (*models.InventoryLine, error)
	SetInventoryLine(ctx context.Context, line *models.InventoryLine, ttl time.Duration) error
	DeleteInventoryLine(ctx context.Context, lineID uuid.UUID) error

	// PublishDeliveryAlert appends alert to the feed unless the same allocation
	// and status was already alerted within dedupe. It reports whether it was added.
	PublishDeliveryAlert(ctx context.Context, alert *models.DeliveryAlert, dedupe time.Duration) (bool, error)
	ListDeliveryAlerts(ctx context.Context, limit int) ([]*models.DeliveryAlert, error)

	Ping(ctx context.Context) error
	InvalidateAllCache(ctx context.Context) error
}

type redisCacheService struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisCacheService(addr, password string, db int, logger *zap.Logger) CacheService {
	// Accept redis://host:port as well as host:port
	parsedAddr := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://")

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		logger.Warn("redis ping failed on initialization", zap.String("addr", parsedAddr), zap.Error(pingErr))
	} else {
		logger.Debug("redis connection established", zap.String("addr", parsedAddr))
	}

	return &redisCacheService{client: client, logger: logger}
}

// NewRedisCacheServiceFromClient wraps an existing client.
func NewRedisCacheServiceFromClient(client *redis.Client, logger *zap.Logger) CacheService {
	return &redisCacheService{client: client, logger: logger}
}

func lineKey(lineID uuid.UUID) string {
	return fmt.Sprintf("%s:inventory_line:%s", keyPrefix, lineID.String())
}

func lineInvalidatedKey(lineID uuid.UUID) string {
	return lineKey(lineID) + ":invalidated"
}

func alertDedupeKey(alert *models.DeliveryAlert) string {
	return fmt.Sprintf("%s:alert:%s:%s", keyPrefix, alert.AllocationID.String(), alert.DeliveryStatus)
}

func (r *redisCacheService) GetInventoryLine(ctx context.Context, lineID uuid.UUID) (*models.InventoryLine, error) {
	data, err := r.client.Get(ctx, lineKey(lineID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var line models.InventoryLine
	if err := json.Unmarshal(data, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *redisCacheService) SetInventoryLine(ctx context.Context, line *models.InventoryLine, ttl time.Duration) error {
	data, err := json.Marshal(line)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = DefaultLineTTL
	}
	return setUnlessInvalidated.Run(ctx, r.client,
		[]string{lineKey(line.ID), lineInvalidatedKey(line.ID)},
		data, ttl.Milliseconds(),
	).Err()
}

// DeleteInventoryLine drops the cached line and holds off read-through writes
// for a short window.
func (r *redisCacheService) DeleteInventoryLine(ctx context.Context, lineID uuid.UUID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, lineKey(lineID))
		pipe.Set(ctx, lineInvalidatedKey(lineID), 1, invalidationHold)
		return nil
	})
	return err
}

func (r *redisCacheService) PublishDeliveryAlert(ctx context.Context, alert *models.DeliveryAlert, dedupe time.Duration) (bool, error) {
	if dedupe <= 0 {
		dedupe = DefaultAlertWindow
	}
	fresh, err := r.client.SetNX(ctx, alertDedupeKey(alert), alert.RaisedAt.Unix(), dedupe).Result()
	if err != nil {
		return false, err
	}
	if !fresh {
		return false, nil
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return false, err
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, deliveryAlertsKey, data)
	pipe.LTrim(ctx, deliveryAlertsKey, 0, maxDeliveryAlerts-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *redisCacheService) ListDeliveryAlerts(ctx context.Context, limit int) ([]*models.DeliveryAlert, error) {
	if limit <= 0 || limit > maxDeliveryAlerts {
		limit = maxDeliveryAlerts
	}
	raw, err := r.client.LRange(ctx, deliveryAlertsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	alerts := make([]*models.DeliveryAlert, 0, len(raw))
	for _, item := range raw {
		var alert models.DeliveryAlert
		if err := json.Unmarshal([]byte(item), &alert); err != nil {
			r.logger.Warn("skipping malformed delivery alert", zap.Error(err))
			continue
		}
		alerts = append(alerts, &alert)
	}
	return alerts, nil
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisCacheService) InvalidateAllCache(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, keyPrefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}
