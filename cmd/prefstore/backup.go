package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/prefstore/prefstore/internal/settings"
)

func newBackupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage settings backups",
	}
	cmd.AddCommand(
		newBackupCreateCmd(a),
		newBackupListCmd(a),
		newBackupRestoreCmd(a),
	)
	return cmd
}

func newBackupCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Snapshot the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backup, err := a.manager.CreateBackup(cmd.Context(), settings.BackupManual)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created backup %s\n", backup.ID)
			return nil
		},
	}
}

func newBackupListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List retained backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backups, err := a.manager.Backups(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(backups) == 0 {
				fmt.Fprintln(out, "no backups")
				return nil
			}
			for _, b := range backups {
				fmt.Fprintf(out, "%s  %-11s  %s  v%s\n",
					b.ID, b.Kind, b.Timestamp.Format(time.RFC3339), b.Version)
			}
			return nil
		},
	}
}

func newBackupRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore ID",
		Short: "Replace the current settings with a backup",
		Long: `Restores a retained backup. The state being replaced is backed up
first, and the restore itself is undoable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.manager.RestoreBackup(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored backup %s\n", args[0])
			return nil
		},
	}
}
