package main

import (
	"errors"

	"github.com/OFFIS-RIT/graphrag/internal/util"
	"github.com/OFFIS-RIT/graphrag/pkg/logger"
	"github.com/OFFIS-RIT/graphrag/pkg/logger/console"
	pgstore "github.com/OFFIS-RIT/graphrag/pkg/store/pgx"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		util.LoadEnv()
		logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{Debug: debug, Prefix: "graphrag"}))

		dsn, _ := cmd.Flags().GetString("database-url")
		if dsn == "" {
			dsn = util.GetEnvString("DATABASE_URL", "")
		}
		if dsn == "" {
			return errors.New("database url is required (--database-url or DATABASE_URL)")
		}
		return pgstore.Migrate(dsn)
	},
}

func init() {
	migrateCmd.Flags().String("database-url", "", "Postgres connection string")
}
