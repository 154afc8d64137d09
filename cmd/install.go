package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cppla/orderimages/cleanup"
	"github.com/cppla/orderimages/settings"
)

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Create tables, default settings and the daily cleanup schedule",
		Long: `install is safe to repeat: existing settings and an existing schedule are kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			ctx := context.Background()
			if err := settings.NewStore(a.db, a.redis).Install(ctx); err != nil {
				return fmt.Errorf("install settings: %w", err)
			}
			period := time.Duration(a.cfg.CleanupPeriodHours) * time.Hour
			if err := cleanup.Register(ctx, a.db, period); err != nil {
				return fmt.Errorf("register cleanup: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed; cleanup runs every %s\n", period)
			return nil
		},
	}
}

func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the cleanup schedule; settings and recorded images stay",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			if err := cleanup.Deregister(context.Background(), a.db); err != nil {
				return fmt.Errorf("deregister cleanup: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cleanup schedule removed")
			return nil
		},
	}
}
