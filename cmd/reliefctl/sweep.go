package main

import (
	"context"
	"fmt"
	"sort"

	"reliefops/internal/app"
	"reliefops/internal/jobs"
	"reliefops/internal/models"

	"github.com/spf13/cobra"
)

func sweepCmd(run runner) *cobra.Command {
	var only string
	var showItems bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the escalation sweeps once",
		Long: "Escalates aged pending requests, raises delivery alerts and releases orphaned volunteers.\n" +
			"Each item runs in its own transaction; failures are reported per item.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app.App) error {
				results, err := runSweeps(ctx, a.Sweeper, only)
				if len(results) > 0 {
					printSweepResults(cmd, results, showItems)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&only, "only", "", fmt.Sprintf("run a single sweep: %s, %s or %s",
		jobs.SweepEscalation, jobs.SweepDeliveryAlerts, jobs.SweepOrphanVolunteers))
	cmd.Flags().BoolVar(&showItems, "items", false, "list every evaluated item")
	return cmd
}

func runSweeps(ctx context.Context, sweeper *jobs.EscalationSweeper, only string) (map[string]*models.BulkOperationResult, error) {
	var fn func(context.Context) (*models.BulkOperationResult, error)
	switch only {
	case "":
		return sweeper.RunAll(ctx)
	case jobs.SweepEscalation:
		fn = sweeper.SweepEscalations
	case jobs.SweepDeliveryAlerts:
		fn = sweeper.SweepDeliveryAlerts
	case jobs.SweepOrphanVolunteers:
		fn = sweeper.SweepOrphanedVolunteers
	default:
		return nil, fmt.Errorf("unknown sweep %q", only)
	}
	res, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]*models.BulkOperationResult{only: res}, nil
}

func printSweepResults(cmd *cobra.Command, results map[string]*models.BulkOperationResult, showItems bool) {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]interface{}, 0, len(names))
	for _, name := range names {
		r := results[name]
		skipped := 0
		for _, item := range r.Items {
			if item.Status == models.SweepItemSkipped {
				skipped++
			}
		}
		rows = append(rows, []interface{}{name, r.Status, r.TotalItems, r.ProcessedItems - skipped, skipped, r.FailedItems})
	}
	renderTable(cmd.OutOrStdout(), []string{"Sweep", "Status", "Total", "Changed", "Skipped", "Failed"}, rows)

	if !showItems {
		return
	}
	var itemRows [][]interface{}
	for _, name := range names {
		for _, item := range results[name].Items {
			msg := item.Detail
			if item.Error != nil {
				msg = *item.Error
			}
			itemRows = append(itemRows, []interface{}{name, item.ItemID, item.Status, msg})
		}
	}
	renderTable(cmd.OutOrStdout(), []string{"Sweep", "Item", "Status", "Detail"}, itemRows)
}
