package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/checkpoint"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
)

var (
	statusFilter string
	statusLimit  int
)

var statusCmd = &cobra.Command{
	Use:   "status [document-id]",
	Short: "Inspect checkpointed pipeline state",
	Long:  "With an argument, prints the full state of one document. Without, lists checkpoints, optionally filtered by status.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if len(args) == 1 {
			state, err := e.Store.Load(ctx, args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		states, err := e.Store.List(ctx, checkpoint.ListFilter{
			Status: model.TerminalStatus(statusFilter),
			Limit:  statusLimit,
		})
		if err != nil {
			return err
		}
		for _, st := range states {
			fmt.Printf("%-30s %-10s tier=%s attempts=%d v%d\n",
				st.DocumentID, st.Status, st.CurrentTier, len(st.Attempts), st.WriteVersion)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusFilter, "filter", "", "filter by status (PENDING, ACCEPTED, ESCALATED, FAILED)")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 100, "max checkpoints to list")
	rootCmd.AddCommand(statusCmd)
}
