package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trakn-sync-service/internal/api"
	"trakn-sync-service/internal/connectivity"
	"trakn-sync-service/internal/database"
	"trakn-sync-service/internal/logger"
	"trakn-sync-service/internal/mirror"
	"trakn-sync-service/internal/queue"
	"trakn-sync-service/internal/records"
	"trakn-sync-service/internal/remote"
	"trakn-sync-service/internal/store"
	"trakn-sync-service/internal/sync"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync agent and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Log.Info("Starting Trakn sync service")

	localDB, err := database.NewLocalDatabase(cfg.Local.FilePath)
	if err != nil {
		return err
	}
	defer localDB.Close()

	remoteDB, err := database.NewRemoteDatabase(cfg.Remote)
	if err != nil {
		return err
	}
	defer remoteDB.Close()

	remoteStore := remote.NewMySQLStore(remoteDB.DB, cfg.Sync.Tables)
	history := store.NewSQLiteStore(localDB.DB)

	opts := sync.DefaultOptions()
	opts.MaxRetries = cfg.Sync.MaxRetries
	opts.Validate = remoteStore.Validate
	if d := cfg.Sync.GetOperationTimeout(); d > 0 {
		opts.OperationTimeout = d
	}
	coordinator := sync.NewCoordinator(queue.NewSQLiteQueue(localDB.DB), remoteStore, history, opts)

	recordService := records.NewService(remoteStore, mirror.New(localDB.DB), coordinator,
		cfg.Sync.TableNames(), opts.OperationTimeout)

	monitor := connectivity.NewMonitor(remoteStore, coordinator,
		cfg.Connectivity.GetProbeInterval(), cfg.Connectivity.GetProbeTimeout())

	scheduler := sync.NewScheduler(cfg.Scheduler, coordinator)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	server := api.NewHandler(cfg.Server, coordinator, recordService, history).Server(gctx)

	g.Go(func() error { return coordinator.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })

	if err := scheduler.Start(); err != nil {
		stop()
		_ = g.Wait()
		return fmt.Errorf("failed to schedule sync: %w", err)
	}
	defer scheduler.Stop()

	g.Go(func() error {
		logger.Log.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
