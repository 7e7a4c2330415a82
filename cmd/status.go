package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/safeland/floodrisk-cli/internal/store"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show enrichment run status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if len(args) == 1 {
			run, err := st.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			if run == nil {
				cmd.Printf("run %s not found\n", args[0])
				return nil
			}
			return enc.Encode(run)
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: statusLimit})
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			cmd.Println("no enrichment runs recorded")
			return nil
		}
		return enc.Encode(runs)
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "max runs to list")
	rootCmd.AddCommand(statusCmd)
}
