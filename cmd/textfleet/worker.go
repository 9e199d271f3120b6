package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/timmy/textfleet/internal/analysis"
	"github.com/timmy/textfleet/internal/logger"
	"github.com/timmy/textfleet/internal/source"
	"github.com/timmy/textfleet/internal/source/local"
	"github.com/timmy/textfleet/internal/source/web"
	"github.com/timmy/textfleet/internal/worker"
)

var (
	workerFetchRetries int
	workerSourceRoot   string
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run an analysis worker",
	Long: `Run an analysis worker: receive one ANALYSIS_TASK at a time, fetch the
source text, run the requested analyzer, upload the result and publish
TASK_DONE. Runs until interrupted or the instance is terminated.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().IntVar(&workerFetchRetries, "fetch-retries", 2, "Retries for HTTP source fetches")
	workerCmd.Flags().StringVar(&workerSourceRoot, "source-root", "", "Base directory for relative local source paths")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	st, log, err := newRuntime(ctx, "textfleet-worker")
	if err != nil {
		return err
	}
	defer logger.Sync()
	cfg := st.cfg

	fetcher := source.NewRouter(
		web.NewAdapter(web.Config{
			Timeout:    cfg.Worker.FetchTimeout,
			RetryCount: workerFetchRetries,
		}),
		local.NewAdapter(workerSourceRoot),
	)
	analyzers := analysis.Default()

	w := worker.New(st.transport, st.store, fetcher, analyzers, worker.Config{
		TaskQueue:    st.names.ManagerToWorker,
		ResultQueue:  st.names.WorkerToManager,
		Wait:         time.Duration(cfg.Worker.WaitSeconds) * time.Second,
		FetchTimeout: cfg.Worker.FetchTimeout,
		IdleInterval: cfg.Manager.IdleInterval,
	})

	log.WithFields(logger.Fields{
		"task_queue":   st.names.ManagerToWorker,
		"result_queue": st.names.WorkerToManager,
		"analyzers":    analyzers.Types(),
	}).Info("Starting worker")

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("Worker stopped with error")
		return err
	}
	log.Info("Worker exited")
	return nil
}
