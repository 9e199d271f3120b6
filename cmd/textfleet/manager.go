package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/timmy/textfleet/internal/api"
	"github.com/timmy/textfleet/internal/api/handler"
	"github.com/timmy/textfleet/internal/logger"
	"github.com/timmy/textfleet/internal/repository"
	"github.com/timmy/textfleet/internal/service"
)

var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Run the coordinator",
	Long: `Run the coordinator: accept NEW_JOB messages, dispatch analysis tasks,
collect TASK_DONE results, publish reports and JOB_DONE notifications.

A job submitted with terminateWhenDone stops intake; the coordinator exits
after the remaining jobs finish and the worker fleet is torn down.`,
	RunE: runManager,
}

func init() {
	rootCmd.AddCommand(managerCmd)
}

func runManager(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	st, log, err := newRuntime(ctx, "textfleet-manager")
	if err != nil {
		return err
	}
	defer logger.Sync()
	cfg := st.cfg

	if err := st.store.EnsureBucket(ctx, cfg.Storage.Bucket); err != nil {
		return fmt.Errorf("failed to ensure storage bucket: %w", err)
	}

	var (
		history service.HistoryStore
		reader  handler.HistoryReader
	)
	if cfg.Database.Enabled {
		db, err := repository.InitDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		repo := repository.NewJobHistoryRepository(db)
		history, reader = repo, repo
	}

	retry := service.DefaultRetryPolicy()
	dispatcher := service.NewDispatcher(st.store, st.transport, st.scaler, service.DispatcherConfig{
		TaskQueue:  st.names.ManagerToWorker,
		WorkerRole: cfg.Fleet.WorkerRole,
		SendRate:   cfg.Manager.DispatchRate,
		Retry:      retry,
	})
	registry := service.NewRegistry()
	shutdown := service.NewShutdown()
	finisher := service.NewFinisher(registry, shutdown, st.store, st.transport, st.scaler, history, service.FinisherConfig{
		DoneQueue:    st.names.ManagerToApp,
		ReportBucket: cfg.Storage.Bucket,
		ReportName:   cfg.Manager.ReportName,
		WorkerRole:   cfg.Fleet.WorkerRole,
		Retry:        retry,
	})

	var sweeper *service.DeadlineSweeper
	if cfg.Manager.TaskDeadline > 0 {
		sweeper = service.NewDeadlineSweeper(registry, dispatcher, cfg.Manager.TaskDeadline, cfg.Manager.MaxRedispatch)
	}

	coord := service.NewCoordinator(st.transport, registry, shutdown, dispatcher, finisher, history, sweeper, service.CoordinatorConfig{
		JobQueue:        st.names.AppToManager,
		ResultQueue:     st.names.WorkerToManager,
		JobBatch:        cfg.Manager.JobBatch,
		ResultBatch:     cfg.Manager.TaskBatch,
		Wait:            time.Duration(cfg.Manager.WaitSeconds) * time.Second,
		IdleInterval:    cfg.Manager.IdleInterval,
		DispatchPool:    int64(cfg.Manager.DispatchPool),
		DeleteMalformed: cfg.Manager.DeleteMalformed,
	})

	log.WithFields(logger.Fields{
		"job_queue":    st.names.AppToManager,
		"result_queue": st.names.WorkerToManager,
		"hard_cap":     cfg.Fleet.HardCap,
		"fleet":        cfg.Fleet.Driver,
	}).Info("Starting coordinator")

	g, gCtx := errgroup.WithContext(ctx)
	// Cancelled when the coordinator returns, so the API server follows it down.
	serveCtx, stopServe := context.WithCancel(gCtx)
	defer stopServe()

	g.Go(func() error {
		defer stopServe()
		return coord.Run(gCtx)
	})

	if cfg.Server.Enabled {
		router := api.SetupRouter(coord, reader, cfg.Server)
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: router,
		}

		g.Go(func() error {
			log.WithField("port", cfg.Server.Port).Info("Starting status server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server failed: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-serveCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("Coordinator stopped with error")
		return err
	}
	log.Info("Coordinator exited")
	return nil
}
