package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"elisedb/bootstrap"
	"elisedb/metrics"
	"elisedb/provision"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

// initResult is the --json rendering of a successful run
type initResult struct {
	Message string            `json:"message"`
	Report  *provision.Report `json:"report"`
}

// newInitCmd creates the 'init' subcommand
func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Run the bootstrap procedure",
		Long: `Connect to MongoDB and establish the planned layout: select the database,
create the application user, create each collection and build each index.
The first failing step aborts the run; nothing is rolled back.`,
		Args: cobra.NoArgs,
		RunE: runInit,
	}

	cmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress indicator")

	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	sess, err := newSession()
	if err != nil {
		return err
	}
	defer sess.close()

	if err := bootstrap.InitSecrets(sess.cfg, sess.sugar); err != nil {
		return err
	}

	tp, shutdownTracer := bootstrap.InitTracer(sess.cfg.Tracing.Enabled, sess.sugar)
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			sess.sugar.Warnw("Failed to shut down tracer provider", "error", err)
		}
	}()

	mongoDB, err := bootstrap.ConnectMongo(ctx, sess.cfg, sess.sugar)
	if err != nil {
		metrics.ObserveRun(time.Now(), err)
		pushMetrics(sess)
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := mongoDB.Close(closeCtx); err != nil {
			sess.sugar.Warnw("Failed to close MongoDB connection", "error", err)
		}
	}()

	var out io.Writer = cmd.OutOrStdout()
	if outputJSON {
		out = io.Discard
	}

	opts := []provision.Option{
		provision.WithOutput(out),
		provision.WithLogger(sess.sugar),
		provision.WithTracerProvider(tp),
	}

	// Show progress spinner if requested
	var s *spinner.Spinner
	if showProgress && !outputJSON && !quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		opts = append(opts, provision.WithProgress(func(step provision.PlannedStep, index, total int) {
			if step.Name == provision.StepComplete {
				s.Stop()
				return
			}
			s.Lock()
			s.Suffix = fmt.Sprintf(" [%d/%d] %s %s", index+1, total-1, step.Name, step.Target)
			s.Unlock()
			if index == 0 {
				s.Start()
			}
		}))
	}

	report, runErr := provision.New(mongoDB.Admin(""), sess.plan, sess.cfg.AppUser.Password, opts...).Run(ctx)

	if s != nil {
		s.Stop()
	}

	pushMetrics(sess)

	if runErr != nil {
		return runErr
	}

	if outputJSON {
		return outputAsJSON(cmd.OutOrStdout(), initResult{Message: provision.CompletionMessage, Report: report})
	}

	if !quiet {
		renderReport(cmd.ErrOrStderr(), report)
	}
	return nil
}

// pushMetrics ships the run metrics when a Pushgateway is configured. A push
// failure never changes the outcome of the run.
func pushMetrics(sess *session) {
	url := sess.cfg.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	if err := metrics.Push(url, sess.cfg.Metrics.Job, sess.plan.Database); err != nil {
		sess.sugar.Warnw("Failed to push metrics", "url", url, "error", err)
		return
	}
	sess.sugar.Debugw("Metrics pushed", "url", url, "job", sess.cfg.Metrics.Job)
}
