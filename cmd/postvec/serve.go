package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/postvec/internal/command"
	"github.com/xxxsen/postvec/internal/config"
	"github.com/xxxsen/postvec/internal/db"
	"github.com/xxxsen/postvec/internal/filestore"
	"github.com/xxxsen/postvec/internal/handler"
	"github.com/xxxsen/postvec/internal/job"
	"github.com/xxxsen/postvec/internal/middleware"
	"github.com/xxxsen/postvec/internal/repo"
	"github.com/xxxsen/postvec/internal/schedule"
	"github.com/xxxsen/postvec/internal/schema"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API and the maintenance jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
}

func runServer(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := logutil.GetLogger(ctx)
	logger.Info("starting server",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage_root", cfg.StorageRoot),
		zap.String("table", cfg.TableName),
		zap.Bool("auth", cfg.Server.JWTSecret != ""),
	)

	runner, err := newRunner(cfg, command.WithConfinedStorage())
	if err != nil {
		return err
	}
	scheduler, closeJobs, err := startJobs(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeJobs()
	defer scheduler.Stop()

	deps := handler.RouterDeps{
		Corpus:       handler.NewCorpusHandler(runner),
		JWTSecret:    []byte(cfg.Server.JWTSecret),
		SearchWindow: time.Duration(cfg.Server.RateLimitMS) * time.Millisecond,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.Server.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logger.Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	return nil
}

// startJobs opens the default store for the schema check and cache cleanup
// jobs and runs the schema check once before returning.
func startJobs(ctx context.Context, cfg *config.Config) (*schedule.CronScheduler, func(), error) {
	conn, err := db.Open(ctx, cfg.StorageRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	opts := []schema.Option{
		schema.WithDimension(cfg.Dimension),
		schema.WithTimeout(time.Duration(cfg.Timeouts.StorageMS) * time.Millisecond),
	}
	if cfg.SnapshotStore.Type != "" {
		store, err := filestore.New(cfg.SnapshotStore)
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("init snapshot store: %w", err)
		}
		opts = append(opts, schema.WithSnapshotStore(store))
	}

	scheduler := schedule.NewCronScheduler()
	tasks := []struct {
		task schedule.Job
		spec string
	}{
		{job.NewSchemaCheckJob(schema.New(conn, opts...), cfg.TableName), cfg.Jobs.SchemaCheckCron},
		{job.NewEmbeddingCacheCleanupJob(repo.NewEmbeddingCacheRepo(conn), cfg.EmbedCache.MaxAgeDays, nil), cfg.Jobs.CacheCleanupCron},
	}
	for _, item := range tasks {
		if err := scheduler.AddJob(item.task, item.spec); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("schedule %s: %w", item.task.Name(), err)
		}
	}
	scheduler.Start(ctx)
	if err := scheduler.Trigger("schema_check"); err != nil {
		logutil.GetLogger(ctx).Warn("initial schema check not run", zap.Error(err))
	}
	return scheduler, func() { _ = conn.Close() }, nil
}
