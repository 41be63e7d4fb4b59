package jobs

import (
	"context"

	"reliefops/internal/models"
	"reliefops/internal/services"

	"go.uber.org/zap"
)

// StockAlertJob reports inventory lines that are out of stock or below their resource minimum.
type StockAlertJob struct {
	inventory services.InventoryService
	logger    *zap.Logger
}

func NewStockAlertJob(inventory services.InventoryService, logger *zap.Logger) *StockAlertJob {
	return &StockAlertJob{inventory: inventory, logger: logger}
}

// Check returns the LOW and OUT lines, out-of-stock first.
func (j *StockAlertJob) Check(ctx context.Context) ([]*models.LowStockLine, error) {
	lines, err := j.inventory.LowStockAlerts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.LowStockLine, 0, len(lines))
	for _, l := range lines {
		if l.Status == models.StockStatusOut {
			out = append(out, l)
		}
	}
	for _, l := range lines {
		if l.Status != models.StockStatusOut {
			out = append(out, l)
		}
	}
	return out, nil
}

// Run logs the current stock alerts. Scheduled periodically.
func (j *StockAlertJob) Run(ctx context.Context) error {
	alerts, err := j.Check(ctx)
	if err != nil {
		j.logger.Error("stock alert check failed", zap.Error(err))
		return err
	}
	if len(alerts) == 0 {
		j.logger.Debug("no stock alerts")
		return nil
	}
	for _, a := range alerts {
		j.logger.Warn("stock alert",
			zap.String("status", a.Status),
			zap.String("resource", a.Resource.Name),
			zap.String("warehouse", a.Line.WarehouseLocation),
			zap.Int("available", a.Line.QuantityAvailable),
			zap.Int("min_stock", a.Resource.MinStock),
		)
	}
	return nil
}
