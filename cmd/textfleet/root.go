package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/timmy/textfleet/internal/config"
	"github.com/timmy/textfleet/internal/fleet"
	"github.com/timmy/textfleet/internal/logger"
	"github.com/timmy/textfleet/internal/queue"
	"github.com/timmy/textfleet/internal/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "textfleet",
	Short: "Distributed text analysis over a managed worker fleet",
	Long: `textfleet splits an input list of text sources into analysis tasks,
runs them on an elastic fleet of workers and writes an HTML report per job.

Roles:
  textfleet manager   # coordinator: jobs, dispatch, reports, shutdown
  textfleet worker    # consume ANALYSIS_TASK, publish TASK_DONE
  textfleet submit    # upload input, send NEW_JOB, wait for the report`,
	SilenceUsage: true,
}

func init() {
	// CONFIG_PATH keeps working for container deployments
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "Path to config.yaml (default: ./configs/config.yaml or ./config.yaml)")
}

// stack is the infrastructure shared by every role.
type stack struct {
	cfg       *config.Config
	store     storage.ObjectStorage
	transport queue.Transport
	names     queue.Names
	scaler    *fleet.Scaler
}

// setupLogger installs the process-wide logger for the given role.
func setupLogger(cfg config.LoggingConfig, service string) *logger.Logger {
	log := logger.New(&logger.Config{
		Level:       cfg.Level,
		Format:      cfg.Format,
		ServiceName: service,
		File:        cfg.File,
		FileOnly:    cfg.FileOnly,
		MaxSize:     cfg.MaxSize,
		MaxBackups:  cfg.MaxBackups,
		MaxAge:      cfg.MaxAge,
		Compress:    cfg.Compress,
	})
	logger.SetDefaultLogger(log)
	return log
}

// newRuntime loads configuration and connects storage, queues and the fleet
// controller.
func newRuntime(ctx context.Context, service string) (*stack, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log := setupLogger(cfg.Logging, service)

	store, err := storage.NewStorage(ctx, cfg.Storage, cfg.AWS)
	if err != nil {
		return nil, log, fmt.Errorf("failed to initialize storage: %w", err)
	}

	transport, err := queue.New(ctx, cfg.Queues, cfg.AWS)
	if err != nil {
		return nil, log, fmt.Errorf("failed to initialize queues: %w", err)
	}
	names := queue.NamesFromConfig(cfg.Queues)
	for _, name := range names.All() {
		if err := transport.Ensure(ctx, name); err != nil {
			return nil, log, fmt.Errorf("failed to ensure queue %s: %w", name, err)
		}
	}

	ctrl, err := fleet.NewController(ctx, cfg.Fleet, cfg.AWS, fleet.PassthroughEnv(os.Environ()))
	if err != nil {
		return nil, log, fmt.Errorf("failed to initialize fleet controller: %w", err)
	}

	return &stack{
		cfg:       cfg,
		store:     store,
		transport: transport,
		names:     names,
		scaler:    fleet.NewScaler(ctrl, cfg.Fleet.HardCap),
	}, log, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sig)
		select {
		case s := <-sig:
			logger.Info("Received %s, shutting down", s)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
