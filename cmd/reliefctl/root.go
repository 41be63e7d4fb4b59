package main

import (
	"context"
	"fmt"

	"reliefops/internal/app"
	"reliefops/internal/config"
	"reliefops/internal/logger"

	"github.com/spf13/cobra"
)

// appLoader builds the engine for one command run.
type appLoader func(ctx context.Context, configPath string) (*app.App, error)

func loadApp(ctx context.Context, configPath string) (*app.App, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, err
	}
	zlog, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return app.New(ctx, cfg, zlog)
}

func newRootCmd(load appLoader) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "reliefctl",
		Short:         "Relief operations engine CLI",
		Long:          "Operator commands for the relief allocation engine: run sweeps, read audit trails, check stock.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (default: ./config.toml or ./config/config.toml)")

	withApp := func(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := load(ctx, configPath)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a)
	}

	root.AddCommand(
		sweepCmd(withApp),
		auditCmd(withApp),
		stockCmd(withApp),
	)
	return root
}

type runner func(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error
