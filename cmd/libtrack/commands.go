package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"libtrack/pkg/database"
)

func newSweepCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Flag overdue borrowings once and notify their borrowers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.sweeper.Tick(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d flagged=%d notified=%d failed=%d\n",
				res.Scanned, res.Flagged, res.Notified, res.Failed)
			return nil
		},
	}
}

func newSyncStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-status",
		Short: "Recompute book statuses from their available copies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			updated, err := a.manager.SyncBookStatus(cmd.Context())
			if err != nil {
				return err
			}
			a.dispatcher.Flush(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "updated=%d\n", updated)
			return nil
		},
	}
}

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			if err := database.Migrate(a.db); err != nil {
				return err
			}
			a.logger.Info("schema is up to date", "driver", a.cfg.DBDriver)
			return nil
		},
	}
}
