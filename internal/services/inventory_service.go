package services

import (
	"context"
	"strings"

	"reliefops/internal/caching"
	"reliefops/internal/common"
	"reliefops/internal/models"
	"reliefops/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type InventoryService interface {
	RegisterResource(ctx context.Context, resource *models.Resource) error
	ListResources(ctx context.Context) ([]*models.Resource, error)

	Reserve(ctx context.Context, op models.OpContext, resourceID uuid.UUID, warehouse string, qty int) (models.ReservationToken, error)
	// Release refuses reservations that back an allocation; cancel the allocation instead.
	Release(ctx context.Context, op models.OpContext, token models.ReservationToken, qty int) error
	Adjust(ctx context.Context, op models.OpContext, resourceID uuid.UUID, warehouse string, delta int) (*models.InventoryLine, error)
	AddStock(ctx context.Context, op models.OpContext, input models.StockInput) (*models.InventoryLine, error)
	Transfer(ctx context.Context, op models.OpContext, input models.TransferInput) error

	GetLine(ctx context.Context, id uuid.UUID) (*models.InventoryLine, error)
	ListLines(ctx context.Context) ([]*models.InventoryLine, error)
	LowStockAlerts(ctx context.Context) ([]*models.LowStockLine, error)
}

type inventoryService struct {
	scope        repositories.TransactionScope
	ledger       *Ledger
	cacheService caching.CacheService
	logger       *zap.Logger
	now          Clock
}

func NewInventoryService(scope repositories.TransactionScope, ledger *Ledger, cacheService caching.CacheService, logger *zap.Logger, now Clock) InventoryService {
	if now == nil {
		now = SystemClock
	}
	return &inventoryService{
		scope:        scope,
		ledger:       ledger,
		cacheService: cacheService,
		logger:       logger,
		now:          now,
	}
}

func (s *inventoryService) RegisterResource(ctx context.Context, resource *models.Resource) error {
	resource.Name = strings.TrimSpace(resource.Name)
	if resource.Name == "" {
		return common.NewValidationError("name", "is required")
	}
	if resource.MinStock < 0 {
		return common.NewValidationError("min_stock", "cannot be negative")
	}
	if resource.ID == uuid.Nil {
		resource.ID = uuid.New()
	}
	resource.CreatedAt = s.now()
	return s.scope.Execute(ctx, 0, func(ctx context.Context, repos repositories.Repos) error {
		return repos.Resources().Create(ctx, resource)
	})
}

func (s *inventoryService) ListResources(ctx context.Context) ([]*models.Resource, error) {
	var resources []*models.Resource
	err := s.scope.Execute(ctx, 0, func(ctx context.Context, repos repositories.Repos) error {
		var err error
		resources, err = repos.Resources().List(ctx)
		return err
	})
	return resources, err
}

// lockLine resolves the (resource, warehouse) line and locks it.
func lockLine(ctx context.Context, repos repositories.Repos, resourceID uuid.UUID, warehouse string) (*models.InventoryLine, error) {
	line, err := repos.Inventory().GetByResourceAndWarehouse(ctx, resourceID, warehouse)
	if err != nil {
		return nil, err
	}
	locked, err := repos.Inventory().LockByIDs(ctx, []uuid.UUID{line.ID})
	if err != nil {
		return nil, err
	}
	return locked[line.ID], nil
}

func (s *inventoryService) Reserve(ctx context.Context, op models.OpContext, resourceID uuid.UUID, warehouse string, qty int) (models.ReservationToken, error) {
	if qty <= 0 {
		return models.ReservationToken{}, common.NewValidationError("quantity", "must be positive")
	}
	var token models.ReservationToken
	err := s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		line, err := lockLine(ctx, repos, resourceID, warehouse)
		if err != nil {
			return err
		}
		token, err = s.ledger.Reserve(ctx, repos, op, line, qty)
		return err
	})
	return token, err
}

func (s *inventoryService) Release(ctx context.Context, op models.OpContext, token models.ReservationToken, qty int) error {
	if token.ID == uuid.Nil {
		return common.NewValidationError("token", "is required")
	}
	return s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		released, err := s.ledger.Release(ctx, repos, op, token, qty)
		if err != nil {
			return err
		}
		if !released {
			s.logger.Debug("reservation already released", zap.String("reservation_id", token.ID.String()))
		}
		return nil
	})
}

func (s *inventoryService) Adjust(ctx context.Context, op models.OpContext, resourceID uuid.UUID, warehouse string, delta int) (*models.InventoryLine, error) {
	if delta == 0 {
		return nil, common.NewValidationError("delta", "must not be zero")
	}
	if strings.TrimSpace(warehouse) == "" {
		return nil, common.NewValidationError("warehouse_location", "is required")
	}
	var line *models.InventoryLine
	err := s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		var err error
		if delta > 0 {
			line, err = s.ledger.Credit(ctx, repos, op, resourceID, warehouse, delta)
			return err
		}
		line, err = lockLine(ctx, repos, resourceID, warehouse)
		if err != nil {
			return err
		}
		return s.ledger.Adjust(ctx, repos, op, line, delta)
	})
	return line, err
}

// AddStock credits a warehouse line, creating it on first delivery.
func (s *inventoryService) AddStock(ctx context.Context, op models.OpContext, input models.StockInput) (*models.InventoryLine, error) {
	if err := common.ValidateStruct(input); err != nil {
		return nil, err
	}
	var line *models.InventoryLine
	err := s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		if _, err := repos.Resources().GetByID(ctx, input.ResourceID); err != nil {
			return err
		}
		var err error
		line, err = s.ledger.Credit(ctx, repos, op, input.ResourceID, input.WarehouseLocation, input.Quantity)
		return err
	})
	return line, err
}

// Transfer moves stock between two warehouses atomically. Existing lines are
// locked together in id order; a missing destination is created after the source is locked.
func (s *inventoryService) Transfer(ctx context.Context, op models.OpContext, input models.TransferInput) error {
	if err := common.ValidateStruct(input); err != nil {
		return err
	}
	return s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		source, err := repos.Inventory().GetByResourceAndWarehouse(ctx, input.ResourceID, input.FromWarehouse)
		if err != nil {
			if common.IsNotFound(err) {
				return &common.InsufficientStockError{Shortfalls: []common.Shortfall{{
					ResourceID: input.ResourceID,
					Warehouse:  input.FromWarehouse,
					Requested:  input.Quantity,
					Missing:    input.Quantity,
				}}}
			}
			return err
		}

		ids := []uuid.UUID{source.ID}
		dest, err := repos.Inventory().GetByResourceAndWarehouse(ctx, input.ResourceID, input.ToWarehouse)
		switch {
		case err == nil:
			ids = append(ids, dest.ID)
		case !common.IsNotFound(err):
			return err
		}

		locked, err := repos.Inventory().LockByIDs(ctx, ids)
		if err != nil {
			return err
		}
		if err := s.ledger.Adjust(ctx, repos, op, locked[source.ID], -input.Quantity); err != nil {
			return err
		}
		if dest != nil {
			return s.ledger.Adjust(ctx, repos, op, locked[dest.ID], input.Quantity)
		}
		_, err = s.ledger.Credit(ctx, repos, op, input.ResourceID, input.ToWarehouse, input.Quantity)
		return err
	})
}

// GetLine reads through the cache. Cache errors are logged, never fatal.
func (s *inventoryService) GetLine(ctx context.Context, id uuid.UUID) (*models.InventoryLine, error) {
	if s.cacheService != nil {
		cached, err := s.cacheService.GetInventoryLine(ctx, id)
		if err != nil {
			s.logger.Warn("inventory line cache read failed", zap.String("line_id", id.String()), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	var line *models.InventoryLine
	err := s.scope.Execute(ctx, 0, func(ctx context.Context, repos repositories.Repos) error {
		var err error
		line, err = repos.Inventory().GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.cacheService != nil {
		if err := s.cacheService.SetInventoryLine(ctx, line, caching.DefaultLineTTL); err != nil {
			s.logger.Warn("inventory line cache write failed", zap.String("line_id", id.String()), zap.Error(err))
		}
	}
	return line, nil
}

func (s *inventoryService) ListLines(ctx context.Context) ([]*models.InventoryLine, error) {
	var lines []*models.InventoryLine
	err := s.scope.Execute(ctx, 0, func(ctx context.Context, repos repositories.Repos) error {
		var err error
		lines, err = repos.Inventory().List(ctx)
		return err
	})
	return lines, err
}

// LowStockAlerts lists lines that are OUT or LOW against their resource minimum.
func (s *inventoryService) LowStockAlerts(ctx context.Context) ([]*models.LowStockLine, error) {
	var lines []*models.LowStockLine
	err := s.scope.Execute(ctx, 0, func(ctx context.Context, repos repositories.Repos) error {
		var err error
		lines, err = repos.Inventory().ListLowStock(ctx)
		return err
	})
	return lines, err
}
