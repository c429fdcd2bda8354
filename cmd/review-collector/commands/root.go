package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yubol-bobo/Smart-AI-Conference/internal/config"
	"github.com/yubol-bobo/Smart-AI-Conference/internal/printer"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/collector"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/logging"
)

// Exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitCancelled = 130
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	pretty     bool
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	g := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "review-collector",
		Short: "Collect OpenReview peer-review metadata for a conference venue",
		Long: `review-collector enumerates every submission of an OpenReview venue,
fetches its reviews and decision, and writes normalized records to an
append-only checkpoint in the output directory.

Runs are resumable: invoking collect again against the same output
directory continues where the previous run stopped.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		// Bare invocations and stray flags show help instead of succeeding silently.
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML config file (default $"+config.ConfigPathEnv+")")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&g.pretty, "pretty", false, "human-readable log output")

	rootCmd.AddCommand(newCollectCommand(g))
	rootCmd.AddCommand(newStatusCommand(g))

	return rootCmd
}

// SetVersionInfo sets the version reported by --version.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil && !isReported(err) {
		printer.New(os.Stdout, os.Stderr).Error("Error", err.Error(), nil)
	}
	return ExitCode(err)
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, collector.ErrCancelled):
		return ExitCancelled
	default:
		return ExitFailure
	}
}

// reportedError marks an error the command already printed.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	return &reportedError{err: err}
}

func isReported(err error) bool {
	var re *reportedError
	return errors.As(err, &re)
}

// loadConfig loads the configuration and applies the persistent flags.
func (g *globalOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.pretty {
		cfg.Logging.Pretty = true
	}
	return cfg, nil
}

// setupLogging installs the global logger writing to w.
func setupLogging(cfg config.Config, w io.Writer) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	logging.Setup(logging.Config{
		Level:   level,
		Pretty:  cfg.Logging.Pretty,
		NoColor: os.Getenv("NO_COLOR") != "",
		Output:  w,
	})
}

func newPrinter(cmd *cobra.Command) *printer.Printer {
	return printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
}
