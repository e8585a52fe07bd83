package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"

	"achievibit/internal"
	"achievibit/pkg/ingest"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

// Client wraps a River client on a pgx pool. Without a processor it can
// only insert jobs.
type Client struct {
	pool   *pgxpool.Pool
	river  *river.Client[pgx.Tx]
	cfg    internal.RiverConfig
	logger *log.Logger
}

// Connect opens the pool and builds the River client. A non-nil processor
// registers a DeliveryWorker on the configured queue.
func Connect(ctx context.Context, cfg internal.RiverConfig, processor Processor) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errors.New("river dsn is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open river pool: %w", err)
	}
	driver := riverpgxv5.New(pool)
	logger := internal.NewLogger("queue")

	if cfg.AutoMigrate {
		if err := migrate(ctx, driver, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	riverCfg := &river.Config{
		Logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
	if processor != nil {
		workers := river.NewWorkers()
		river.AddWorker(workers, NewDeliveryWorker(processor, logger))
		riverCfg.Workers = workers
		riverCfg.Queues = map[string]river.QueueConfig{
			cfg.Queue: {MaxWorkers: cfg.MaxWorkers},
		}
	}

	client, err := river.NewClient(driver, riverCfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("river client: %w", err)
	}
	return &Client{pool: pool, river: client, cfg: cfg, logger: logger}, nil
}

func migrate(ctx context.Context, driver *riverpgxv5.Driver, logger *log.Logger) error {
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return fmt.Errorf("river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("river migrate: %w", err)
	}
	for _, version := range res.Versions {
		logger.Printf("river migration applied version=%d", version.Version)
	}
	return nil
}

// Enqueue inserts d as a job on the configured queue.
func (c *Client) Enqueue(ctx context.Context, d ingest.Delivery) error {
	res, err := c.river.Insert(ctx, DeliveryArgs{Delivery: d}, insertOpts(c.cfg))
	if err != nil {
		return fmt.Errorf("enqueue delivery: %w", err)
	}
	internal.WithRequestID(c.logger, d.RequestID).Printf("job=%d queue=%s event=%s", res.Job.ID, res.Job.Queue, d.EventType)
	return nil
}

// Start begins working jobs. It requires a client built with a processor.
func (c *Client) Start(ctx context.Context) error {
	return c.river.Start(ctx)
}

// Stop waits for running jobs to finish, up to ctx's deadline.
func (c *Client) Stop(ctx context.Context) error {
	return c.river.Stop(ctx)
}

// Close releases the pool.
func (c *Client) Close() {
	c.pool.Close()
}

func insertOpts(cfg internal.RiverConfig) *river.InsertOpts {
	return &river.InsertOpts{
		Queue:       cfg.Queue,
		MaxAttempts: cfg.MaxAttempts,
		Priority:    cfg.Priority,
		Tags:        []string{"webhook"},
	}
}
