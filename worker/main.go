package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"achievibit/internal"
	"achievibit/pkg/ingest"
	"achievibit/pkg/queue"
	"achievibit/pkg/storage/entities"
)

func main() {
	logger := internal.NewLogger("worker")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if config.Ingest.River.DSN == "" {
		logger.Fatalf("ingest.river.dsn is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := entities.Open(entities.Config{
		Driver:       config.Storage.Driver,
		DSN:          config.Storage.DSN,
		Dialect:      config.Storage.Dialect,
		TablePrefix:  config.Storage.TablePrefix,
		AutoMigrate:  config.Storage.AutoMigrate,
		MaxOpenConns: config.Storage.MaxOpenConns,
	})
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	defer store.Close()

	pipeline, closePipeline, err := ingest.Build(config, store)
	if err != nil {
		logger.Fatalf("pipeline: %v", err)
	}
	defer closePipeline()

	client, err := queue.Connect(ctx, config.Ingest.River, pipeline)
	if err != nil {
		logger.Fatalf("river: %v", err)
	}
	defer client.Close()

	if err := client.Start(ctx); err != nil {
		logger.Fatalf("river start: %v", err)
	}
	logger.Printf("working queue=%s max_workers=%d", config.Ingest.River.Queue, config.Ingest.River.MaxWorkers)

	<-ctx.Done()
	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	if err := client.Stop(stopCtx); err != nil {
		logger.Printf("river stop: %v", err)
	}
}
