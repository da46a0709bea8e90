package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/graphrag/internal/config"
	"github.com/OFFIS-RIT/graphrag/internal/server"
	"github.com/OFFIS-RIT/graphrag/pkg/logger"
	"github.com/OFFIS-RIT/graphrag/pkg/logger/console"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (optional)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{Prefix: "server"}))
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}
	cfg.Log.InitLogger("server")
	defer logger.Close()

	if err := server.Run(ctx, cfg); err != nil {
		logger.Fatal("Server failed", "err", err)
	}
}
