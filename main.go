package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/jupark12/model-processor/artifacts"
	"github.com/jupark12/model-processor/config"
	"github.com/jupark12/model-processor/converter"
	"github.com/jupark12/model-processor/models"
	"github.com/jupark12/model-processor/notify"
	"github.com/jupark12/model-processor/server"
	"github.com/jupark12/model-processor/store"
	"github.com/jupark12/model-processor/worker"
)

const usage = `usage: model-processor <command>

commands:
  serve    run the HTTP API
  worker   run the job processor
  migrate  create the database schema
  all      migrate, then run the API and the job processor together`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command, cfg, logger); err != nil {
		logger.Error("model-processor exited with error", "command", command, "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(ctx context.Context, command string, cfg *config.Config, logger *slog.Logger) error {
	switch command {
	case "serve", "worker", "migrate", "all":
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}

	st, err := store.Open(ctx, cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	defer st.Close()
	logger.Info("connected to database", "driver", cfg.Database.Driver)

	if command == "migrate" || command == "all" {
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("database schema is up to date")
		if command == "migrate" {
			return nil
		}
	}

	var bus *notify.RedisBus
	if cfg.Redis.Addr != "" {
		bus, err = notify.NewRedisBus(ctx, cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer bus.Close()
	}

	g, ctx := errgroup.WithContext(ctx)
	var wsManager *models.WebSocketManager

	if command == "serve" || command == "all" {
		wsManager = models.NewWebSocketManager(logger)
		srv := server.NewServer(st, cfg, wsManager, logger)
		g.Go(func() error { return srv.Start(ctx) })

		if bus != nil {
			g.Go(func() error {
				if err := bus.Listen(ctx, wsManager.BroadcastModelEvent); err != nil && ctx.Err() == nil {
					return err
				}
				return nil
			})
		}
	}

	if command == "worker" || command == "all" {
		processor, err := newProcessor(ctx, cfg, st, bus, wsManager, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return processor.Run(ctx) })
	}

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

// newProcessor wires the worker's optional outputs. Without Redis, a worker
// sharing the process with the API pushes events straight to its websocket
// clients.
func newProcessor(ctx context.Context, cfg *config.Config, st store.Store, bus *notify.RedisBus, wsManager *models.WebSocketManager, logger *slog.Logger) (*worker.Processor, error) {
	publisher := notify.Nop
	switch {
	case bus != nil:
		publisher = bus
	case wsManager != nil:
		publisher = notify.PublisherFunc(func(_ context.Context, event models.ModelEvent) error {
			wsManager.BroadcastModelEvent(event)
			return nil
		})
	}

	mirror := artifacts.Nop
	if cfg.Minio.Endpoint != "" {
		m, err := artifacts.NewMinioMirror(ctx, cfg.Minio, logger)
		if err != nil {
			return nil, err
		}
		mirror = m
	}

	return worker.NewProcessor(
		st,
		converter.NewPlaceholder(logger),
		publisher,
		mirror,
		worker.OptionsFromConfig(cfg),
		logger,
	), nil
}
