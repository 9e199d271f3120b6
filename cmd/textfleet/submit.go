package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/timmy/textfleet/internal/client"
	"github.com/timmy/textfleet/internal/logger"
)

var (
	submitTerminate bool
	submitWait      int
)

var submitCmd = &cobra.Command{
	Use:   "submit <input-file> <output-file> <tasks-per-worker> [terminate]",
	Short: "Submit a job and wait for its report",
	Long: `Upload an input file, make sure a coordinator is running, send NEW_JOB and
block until the matching JOB_DONE arrives. The HTML report is written to
output-file.

Each non-empty input line is "<ANALYSIS_TYPE>\t<source-url>".

Examples:
  textfleet submit input.txt report.html 5
  textfleet submit input.txt report.html 5 terminate   # drain and stop the fleet afterwards`,
	Args: cobra.RangeArgs(3, 4),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().BoolVar(&submitTerminate, "terminate", false, "Ask the coordinator to shut down once all jobs finish")
	submitCmd.Flags().IntVar(&submitWait, "wait-seconds", 20, "Long-poll duration on the reply queue")
}

func parseSubmitArgs(args []string) (client.Request, error) {
	n, err := strconv.Atoi(args[2])
	if err != nil || n < 1 {
		return client.Request{}, fmt.Errorf("tasks-per-worker must be a positive integer, got %q", args[2])
	}
	terminate := submitTerminate
	if len(args) == 4 {
		if args[3] != "terminate" {
			return client.Request{}, fmt.Errorf("unexpected argument %q, expected \"terminate\"", args[3])
		}
		terminate = true
	}
	return client.Request{
		InputPath:         args[0],
		OutputPath:        args[1],
		TasksPerWorker:    n,
		TerminateWhenDone: terminate,
	}, nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	req, err := parseSubmitArgs(args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	st, log, err := newRuntime(ctx, "textfleet-submit")
	if err != nil {
		return err
	}
	defer logger.Sync()

	submitter := client.NewSubmitter(st.store, st.transport, st.scaler, client.Config{
		Bucket:      st.cfg.Storage.Bucket,
		Queues:      st.names,
		ManagerRole: st.cfg.Fleet.ManagerRole,
		Wait:        time.Duration(submitWait) * time.Second,
	})

	start := time.Now()
	res, err := submitter.Submit(ctx, req)
	if err != nil && !errors.Is(err, client.ErrNoReport) {
		return fmt.Errorf("submit failed: %w", err)
	}

	log.WithFields(logger.Fields{
		"job_id":      res.JobID,
		"success":     res.Done.Success,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Job finished")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "job:     %s\n", res.JobID)
	fmt.Fprintf(out, "success: %t\n", res.Done.Success)
	if res.Done.ErrorMessage != "" {
		fmt.Fprintf(out, "error:   %s\n", res.Done.ErrorMessage)
	}
	if res.ReportPath != "" {
		fmt.Fprintf(out, "report:  %s\n", res.ReportPath)
	}
	return err
}
