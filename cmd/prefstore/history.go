package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newUndoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Revert to the previous saved state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.manager.Undo(cmd.Context()); err != nil {
				return err
			}
			if entry, ok := a.manager.History().Current(); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "now at: %s\n", entry.Label)
			}
			return nil
		},
	}
}

func newRedoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "redo",
		Short: "Reapply the next saved state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.manager.Redo(cmd.Context()); err != nil {
				return err
			}
			if entry, ok := a.manager.History().Current(); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "now at: %s\n", entry.Label)
			}
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the undo history, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := a.manager.History()
			entries := log.Entries()
			out := cmd.OutOrStdout()

			if len(entries) == 0 {
				fmt.Fprintln(out, "history is empty")
				return nil
			}

			current := log.RedoCount()
			for i, entry := range entries {
				marker := " "
				if i == current {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %2d  %s  %s\n",
					marker, len(entries)-i, entry.Timestamp.Format(time.RFC3339), entry.Label)
			}
			fmt.Fprintf(out, "%d undo, %d redo available\n", log.UndoCount(), log.RedoCount())
			return nil
		},
	}
}
