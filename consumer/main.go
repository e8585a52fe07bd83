package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"achievibit/internal"
	"achievibit/pkg/consumer"
	"achievibit/pkg/storage/entities"

	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

func main() {
	logger := internal.NewLogger("consumer")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	concurrency := flag.Int("concurrency", 5, "Changes handled at once")
	flag.Parse()

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := entities.Open(entities.Config{
		Driver:       config.Storage.Driver,
		DSN:          config.Storage.DSN,
		Dialect:      config.Storage.Dialect,
		TablePrefix:  config.Storage.TablePrefix,
		MaxOpenConns: config.Storage.MaxOpenConns,
	})
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	defer store.Close()

	c, err := consumer.NewFromConfig(config.Watermill,
		consumer.WithTopics(consumer.Topics(config)...),
		consumer.WithConcurrency(*concurrency),
		consumer.WithRetry(consumer.DropUndecodable{}),
		consumer.WithMiddleware(consumer.FromWatermill(middleware.Recoverer)),
		consumer.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("subscriber: %v", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Printf("subscriber close: %v", err)
		}
	}()

	h := &changeLogger{store: store, logger: logger}
	for _, topic := range consumer.Topics(config) {
		c.HandleTopic(topic, h.Handle)
	}

	if err := c.Run(ctx); err != nil {
		logger.Fatal(err)
	}
}
