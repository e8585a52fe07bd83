package main

import (
	"context"
	"expvar"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"achievibit/internal"
	"achievibit/pkg/api"
	"achievibit/pkg/ingest"
	"achievibit/pkg/queue"
	"achievibit/pkg/storage/entities"
	"achievibit/pkg/webhook"
)

func main() {
	logger := internal.NewLogger("server")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	debugEvents := flag.Bool("debug-events", false, "Log webhook bodies")
	flag.Parse()

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

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

	mux := http.NewServeMux()

	if config.Providers.GitHub.Enabled {
		var enqueuer webhook.Enqueuer
		if config.Ingest.Mode == internal.IngestModeQueue {
			client, err := queue.Connect(context.Background(), config.Ingest.River, nil)
			if err != nil {
				logger.Fatalf("river: %v", err)
			}
			defer client.Close()
			enqueuer = client
			logger.Printf("queue ingestion enabled queue=%s", config.Ingest.River.Queue)
		}

		ghHandler, err := webhook.NewGitHubHandler(
			config.Providers.GitHub.Secret,
			pipeline,
			enqueuer,
			internal.NewLogger("webhook"),
			config.Server.MaxBodyBytes,
			*debugEvents,
		)
		if err != nil {
			logger.Fatalf("github handler: %v", err)
		}
		handler := internal.NewRateLimitHandler(ghHandler, config.Server.RateLimitRPS, config.Server.RateLimitBurst, 10*time.Minute)
		mux.Handle(config.Providers.GitHub.Path, handler)
		logger.Printf("github webhook enabled on %s", config.Providers.GitHub.Path)
	}

	if config.Server.APIEnabled {
		api.Register(mux, store, internal.NewLogger("api"))
		logger.Printf("read api enabled on /api/")
	}

	if config.Server.MetricsEnabled {
		mux.Handle(config.Server.MetricsPath, expvar.Handler())
		logger.Printf("metrics enabled on %s", config.Server.MetricsPath)
	}

	addr := ":" + strconv.Itoa(config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       time.Duration(config.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(config.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(config.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderMS) * time.Millisecond,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Printf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}
