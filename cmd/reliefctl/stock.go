package main

import (
	"context"
	"fmt"

	"reliefops/internal/app"

	"github.com/spf13/cobra"
)

func stockCmd(run runner) *cobra.Command {
	stock := &cobra.Command{
		Use:   "stock",
		Short: "Inspect warehouse stock",
	}

	stock.AddCommand(&cobra.Command{
		Use:   "alerts",
		Short: "List OUT and LOW inventory lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app.App) error {
				alerts, err := a.StockAlerts.Check(ctx)
				if err != nil {
					return err
				}
				if len(alerts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "all inventory lines are at or above their minimum")
					return nil
				}
				rows := make([][]interface{}, 0, len(alerts))
				for _, a := range alerts {
					rows = append(rows, []interface{}{
						a.Status,
						a.Resource.Name,
						a.Line.WarehouseLocation,
						a.Line.QuantityAvailable,
						a.Resource.MinStock,
					})
				}
				renderTable(cmd.OutOrStdout(), []string{"Status", "Resource", "Warehouse", "Available", "Minimum"}, rows)
				return nil
			})
		},
	})
	return stock
}
