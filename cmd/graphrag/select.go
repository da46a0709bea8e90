package main

import (
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/graphrag/internal/indexer"

	"github.com/spf13/cobra"
)

var selectCmd = &cobra.Command{
	Use:   "select <query>",
	Short: "Show the entities most similar to a query",
	Long: `Embed the query and print the closest entities of an indexed graph.

Examples:
  graphrag select --graph docs "who runs the harbor"
  graphrag select --graph docs -k 3 --json harbor`,
	Args: cobra.MinimumNArgs(1),
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
		k, _ := cmd.Flags().GetInt("top-k")

		ctx := cmd.Context()
		svc, err := indexer.Setup(ctx, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		selected, err := svc.Indexer.SearchEntities(ctx, cfg.GraphID, strings.Join(args, " "), k)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(selected)
		}
		if len(selected) == 0 {
			fmt.Printf("No entities indexed for graph %s\n", cfg.GraphID)
			return nil
		}
		for _, e := range selected {
			fmt.Printf("%.3f  %-30s %-14s %s\n", e.Score, e.Title, e.Type, e.Description())
		}
		return nil
	},
}

func init() {
	selectCmd.Flags().String("graph", "", "Graph id (overrides graph_id)")
	selectCmd.Flags().IntP("top-k", "k", 10, "Number of entities to return")
	selectCmd.Flags().Bool("json", false, "Print JSON")
}
