package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rmax-ai/signalflow/pkg/api"
	"github.com/rmax-ai/signalflow/pkg/blob"
	"github.com/rmax-ai/signalflow/pkg/flow"
	"github.com/rmax-ai/signalflow/pkg/store"
	redisstore "github.com/rmax-ai/signalflow/pkg/store/redis"
	"github.com/rmax-ai/signalflow/pkg/widgets"
	"github.com/rmax-ai/signalflow/pkg/workflow"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "signalflow-d: %v\n", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("system_started", "component", "signalflow-d", "workflow", cfg.Workflow)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown_complete")
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed_to_close_store", "error", err)
		}
	}()
	logger.Info("store_initialized", "path", cfg.DBPath)

	rec := store.NewRecorder(st, cfg.Workflow, logger)
	reg := widgets.Default()
	g, err := loadGraph(ctx, cfg, st, reg, flow.WithLogger(logger), flow.WithObserver(rec.Observe))
	if g == nil {
		return err
	}
	if err != nil {
		logger.Warn("workflow_commit_failed", "error", err)
	}
	logger.Info("workflow_loaded", "nodes", len(g.Snapshot().Nodes), "links", len(g.Links()))

	srv := api.NewServer(g, reg, st, cfg.Addr)
	srv.SetLogger(logger)
	srv.SetWorkflowName(cfg.Workflow)

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis_unavailable", "addr", cfg.RedisAddr, "error", err)
		} else {
			srv.SetDefaults(redisstore.NewSettingsStore(client))
			logger.Info("defaults_enabled", "addr", cfg.RedisAddr)
		}
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return rec.Run(gctx) })
	eg.Go(srv.Start)
	if cfg.Retention > 0 {
		arch := store.NewArchiver(st, blob.NewLocalStore(cfg.ArchiveDir), store.ArchiveConfig{Retention: cfg.Retention}, logger)
		eg.Go(func() error { return arch.Run(gctx) })
		logger.Info("archiving_enabled", "dir", cfg.ArchiveDir, "retention", cfg.Retention)
	}
	eg.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown_initiated")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Stop(sctx)
	})
	err = eg.Wait()

	if cfg.Autosave {
		if serr := saveGraph(context.Background(), st, cfg.Workflow, g); serr != nil {
			logger.Error("autosave_failed", "error", serr)
		} else {
			logger.Info("workflow_saved", "name", cfg.Workflow)
		}
	}
	if n := rec.Dropped(); n > 0 {
		logger.Warn("events_dropped", "count", n)
	}
	return err
}

type workflowStore interface {
	LoadWorkflow(ctx context.Context, name string) ([]byte, error)
	SaveWorkflow(ctx context.Context, name string, document []byte) error
}

// loadGraph builds the graph from the workflow file when one is configured,
// else from the stored workflow, else returns an empty graph. A non-nil
// graph with an error means some starting commits failed.
func loadGraph(ctx context.Context, cfg Config, st workflowStore, reg *widgets.Registry, opts ...flow.GraphOption) (*flow.Graph, error) {
	var doc *workflow.Document
	if cfg.WorkflowFile != "" {
		d, err := workflow.Load(cfg.WorkflowFile)
		if err != nil {
			return nil, err
		}
		doc = d
	} else {
		raw, err := st.LoadWorkflow(ctx, cfg.Workflow)
		if errors.Is(err, store.ErrWorkflowNotFound) {
			return flow.NewGraph(opts...), nil
		}
		if err != nil {
			return nil, err
		}
		if doc, err = workflow.Parse(raw); err != nil {
			return nil, err
		}
	}
	return workflow.Build(ctx, doc, reg, opts...)
}

func saveGraph(ctx context.Context, st workflowStore, name string, g *flow.Graph) error {
	raw, err := workflow.Capture(name, g.Snapshot()).Marshal()
	if err != nil {
		return err
	}
	return st.SaveWorkflow(ctx, name, raw)
}
