// Package cmd provides the elisedb command-line interface.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"elisedb/bootstrap"
	"elisedb/config"
	"elisedb/schema"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	outputJSON   bool
	configFile   string
	noColor      bool
	quiet        bool
	timeout      time.Duration
	planFile     string
	showProgress bool
)

// Default context timeout for CLI operations
const defaultTimeout = 5 * time.Minute

// NewRootCmd creates the elisedb command. Invoked without a sub-command it
// runs the bootstrap procedure.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "elisedb",
		Short: "Bootstrap the Elise MongoDB database",
		Long: `Bootstrap the administrative layout of the Elise MongoDB database.

A run creates the application user, the patients, consultations and temp_files
collections, and the unique indexes that guard consultation and file identifiers.
The procedure is one-shot: a second run against a bootstrapped server fails at
create-user.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
		RunE: runInit,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultTimeout, "Deadline for the whole operation")
	rootCmd.PersistentFlags().StringVar(&planFile, "plan", "", "Plan file path (defaults to the embedded plan)")

	// bare elisedb behaves like elisedb init
	rootCmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress indicator")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newPlanCmd())

	return rootCmd
}

// outputAsJSON writes data as indented JSON
func outputAsJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// session holds what every sub-command needs before touching the server
type session struct {
	cfg    *config.Config
	plan   schema.Plan
	logger *zap.Logger
	sugar  *zap.SugaredLogger
}

func (s *session) close() {
	_ = s.logger.Sync()
}

// newSession loads configuration, builds the configured logger and resolves
// the plan.
func newSession() (*session, error) {
	level := "info"
	if quiet {
		level = "warn"
	}
	_, initial, err := bootstrap.InitLogger(level, "console")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := bootstrap.InitConfig(configFile, initial)
	if err != nil {
		return nil, err
	}

	level = cfg.Log.Level
	if quiet {
		level = "warn"
	}
	logger, sugar, err := bootstrap.InitLogger(level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	plan, err := resolvePlan(cfg, sugar)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	return &session{cfg: cfg, plan: plan, logger: logger, sugar: sugar}, nil
}

// resolvePlan picks the --plan flag, then plan.file, then the embedded plan
// retargeted at mongodb.database. A plan file keeps its own database.
func resolvePlan(cfg *config.Config, sugar *zap.SugaredLogger) (schema.Plan, error) {
	path := planFile
	if path == "" {
		path = cfg.Plan.File
	}

	if path == "" {
		plan := schema.Default()
		if cfg.MongoDB.Database == plan.Database {
			return plan, nil
		}
		return plan.WithDatabase(cfg.MongoDB.Database)
	}

	plan, err := schema.Load(path)
	if err != nil {
		return schema.Plan{}, err
	}
	if plan.Database != cfg.MongoDB.Database {
		sugar.Warnw("Plan file database differs from mongodb.database, using the plan",
			"plan", path,
			"plan_database", plan.Database,
			"config_database", cfg.MongoDB.Database)
	}
	sugar.Infow("Plan loaded", "path", path, "database", plan.Database)
	return plan, nil
}
