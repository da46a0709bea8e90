package main

import (
	"fmt"

	"github.com/OFFIS-RIT/graphrag/internal/indexer"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the persisted tables of a graph",
	Long: `Delete every table row of a graph. Fails while the graph is being
indexed by another process.

Example:
  graphrag delete --graph docs`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("graph"); v != "" {
			cfg.GraphID = v
		}
		if err := cfg.RequireGraph(); err != nil {
			return err
		}

		ctx := cmd.Context()
		svc, err := indexer.Setup(ctx, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.Indexer.DeleteGraph(ctx, cfg.GraphID); err != nil {
			return err
		}
		fmt.Printf("Deleted graph %s\n", cfg.GraphID)
		return nil
	},
}

func init() {
	deleteCmd.Flags().String("graph", "", "Graph id (overrides graph_id)")
}
