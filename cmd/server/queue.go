package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"trakn-sync-service/internal/database"
	"trakn-sync-service/internal/mirror"
	"trakn-sync-service/internal/queue"
	"trakn-sync-service/internal/store"
)

func openLocal() (*database.Database, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return database.NewLocalDatabase(cfg.Local.FilePath)
}

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or clear the local sync queue",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List pending operations in replay order",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openLocal()
			if err != nil {
				return err
			}
			defer db.Close()

			ops, err := queue.NewSQLiteQueue(db.DB).DrainOrder(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ops)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tTABLE\tRECORD\tQUEUED AT\tRETRIES")
			for _, op := range ops {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
					op.ID, op.Type, op.Table, op.Data.ID(),
					time.UnixMilli(op.Timestamp).Format(time.RFC3339), op.Retries)
			}
			return w.Flush()
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print operations as JSON")

	var wipeMirror bool
	clear := &cobra.Command{
		Use:   "clear",
		Short: "Discard every pending operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openLocal()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			if err := queue.NewSQLiteQueue(db.DB).Clear(ctx); err != nil {
				return err
			}
			if wipeMirror {
				if err := mirror.New(db.DB).Clear(ctx); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sync queue cleared")
			return nil
		},
	}
	clear.Flags().BoolVar(&wipeMirror, "mirror", false, "also wipe the local mirror")

	cmd.AddCommand(list, clear)
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent drain passes",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openLocal()
			if err != nil {
				return err
			}
			defer db.Close()

			history, err := store.NewSQLiteStore(db.DB).GetSyncHistory(cmd.Context(), limit, 0)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tSTATUS\tSYNCED\tFAILED\tPENDING\tERROR")
			for _, h := range history {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
					h.StartedAt.Format(time.RFC3339), h.Status, h.Synced, h.Failed, h.Pending, h.ErrorMessage.String)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of passes to show")
	return cmd
}
