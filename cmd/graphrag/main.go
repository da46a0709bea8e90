package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/graphrag/internal/config"
	"github.com/OFFIS-RIT/graphrag/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:           "graphrag",
	Short:         "Build knowledge graph indexes from documents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (optional)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(indexCmd, selectCmd, deleteCmd, migrateCmd)
}

// loadConfig reads the config and starts logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Log.Debug = true
	}
	cfg.Log.InitLogger("graphrag")
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	_ = logger.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
