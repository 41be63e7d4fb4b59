package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reliefops/internal/app"
	"reliefops/internal/models"

	"github.com/spf13/cobra"
)

func auditCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <entity-type> <entity-id>",
		Short: "Print the audit trail of one entity, oldest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app.App) error {
				entries, err := a.Audit.GetEntityHistory(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "no audit entries for %s %s\n", args[0], args[1])
					return nil
				}
				rows := make([][]interface{}, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []interface{}{
						e.Timestamp.UTC().Format(time.RFC3339),
						e.Action,
						e.Actor,
						snapshotJSON(e.BeforeSnapshot),
						snapshotJSON(e.AfterSnapshot),
					})
				}
				renderTable(cmd.OutOrStdout(), []string{"Time", "Action", "Actor", "Before", "After"}, rows)
				return nil
			})
		},
	}
}

func snapshotJSON(snap models.JSONB) string {
	if snap == nil {
		return "-"
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(b)
}
