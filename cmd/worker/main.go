package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/graphrag/internal/config"
	"github.com/OFFIS-RIT/graphrag/internal/indexer"
	"github.com/OFFIS-RIT/graphrag/internal/queue"
	"github.com/OFFIS-RIT/graphrag/pkg/logger"
	"github.com/OFFIS-RIT/graphrag/pkg/logger/console"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (optional)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{Prefix: "worker"}))
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}
	cfg.Log.InitLogger("worker")
	defer logger.Close()

	svc, err := indexer.Setup(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to set up services", "err", err)
	}
	defer svc.Close()

	conn, err := queue.Dial(cfg.QueueURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	queues := []string{queue.IndexQueue}
	if err := queue.SetupQueues(ch, queues); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	p := &queue.Processor{Runner: svc.Indexer, Refs: svc.Refs}
	if err := queue.Consume(ctx, conn, queues, p.Handle); err != nil {
		logger.Error("Consumer stopped", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}
