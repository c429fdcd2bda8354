package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/yubol-bobo/Smart-AI-Conference/internal/config"
	"github.com/yubol-bobo/Smart-AI-Conference/internal/printer"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/checkpoint"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/client"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/collector"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/logging"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/metrics"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/retry"
)

type collectOptions struct {
	venueFlags
	noDecisions bool
	pageSize    int
	metricsAddr string
}

func newCollectCommand(g *globalOptions) *cobra.Command {
	o := &collectOptions{}

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect submissions, reviews and decisions of a venue",
		Long: `Collect enumerates every submission of the venue, fetches each
submission's forum and commits one normalized record per submission to the
checkpoint. When every submission is accounted for, submissions.json is
exported next to the checkpoint.

Interrupting the run (Ctrl-C) keeps everything committed so far; running
the same command again resumes.

Exit codes:
  0    run completed
  1    run aborted (configuration, persistent failures); resumable
  130  run interrupted; resumable

Examples:
  # Collect ICLR 2025 into data/ICLR.cc_2025_Conference
  review-collector collect --year 2025

  # Explicit venue and output directory, without decisions
  review-collector collect --venue ICLR.cc/2024/Conference -o out/iclr24 --no-decisions

  # Expose Prometheus metrics while collecting
  review-collector collect --year 2025 --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, g, o)
		},
	}

	o.venueFlags.register(cmd)
	cmd.Flags().BoolVar(&o.noDecisions, "no-decisions", false, "skip decision resolution")
	cmd.Flags().IntVar(&o.pageSize, "page-size", 0, "submissions per listing page (default from config)")
	cmd.Flags().StringVar(&o.metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address")

	return cmd
}

func runCollect(cmd *cobra.Command, g *globalOptions, o *collectOptions) error {
	p := newPrinter(cmd)

	cfg, err := g.loadConfig()
	if err != nil {
		p.Error("Failed to load configuration", err.Error(), nil)
		return reported(err)
	}
	o.apply(&cfg)

	venue, err := o.resolveVenue(cfg.Collection.Venue)
	if err != nil {
		p.Error("No venue selected", "collect needs to know which venue to collect.", venueSuggestions)
		return reported(err)
	}
	cfg.Collection.Venue = venue

	if err := cfg.Validate(); err != nil {
		p.Error("Invalid configuration", err.Error(), nil)
		return reported(err)
	}

	outputDir := o.resolveOutput(cfg.Collection.OutputDir, venue)
	setupLogging(cfg, cmd.ErrOrStderr())
	runID := uuid.NewString()
	logging.WithRun(runID, venue)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		serveCtx, cancelServe := context.WithCancel(context.Background())
		defer cancelServe()
		addr, _, err := metrics.Serve(serveCtx, cfg.Metrics.Addr)
		if err != nil {
			p.Error("Failed to start metrics server", err.Error(), []string{"Pick a free address with --metrics-addr"})
			return reported(err)
		}
		p.Step("Serving metrics on http://%s/metrics\n", addr)
	}

	rdb, err := cfg.RedisClient()
	if err != nil {
		p.Error("Invalid Redis URL", err.Error(), nil)
		return reported(err)
	}
	cc := cfg.ClientConfig()
	cc.Redis = rdb
	c, err := client.New(cc)
	if err != nil {
		p.Error("Failed to create OpenReview client", err.Error(), nil)
		return reported(err)
	}
	defer c.Close()

	col, err := collector.NewWithCaller(c, collector.Options{
		Venue:                  venue,
		OutputDir:              outputDir,
		CollectDecisions:       cfg.Collection.Decisions,
		PageSize:               cfg.OpenReview.PageSize,
		ProgressEvery:          cfg.Collection.ProgressEvery,
		MaxConsecutiveFailures: cfg.Collection.MaxConsecutiveFailures,
		Retry:                  cfg.RetryPolicyConfig(),
		RunID:                  runID,
	})
	if err != nil {
		p.Error("Failed to create collector", err.Error(), nil)
		return reported(err)
	}

	p.Step("Collecting %s into %s\n", venue, outputDir)
	summary, runErr := col.Run(ctx)
	printSummary(p, summary)

	return reportRun(p, summary, runErr)
}

// apply overlays the command's flags on the configuration.
func (o *collectOptions) apply(cfg *config.Config) {
	if o.noDecisions {
		cfg.Collection.Decisions = false
	}
	if o.pageSize != 0 {
		cfg.OpenReview.PageSize = o.pageSize
	}
	if o.metricsAddr != "" {
		cfg.Metrics.Addr = o.metricsAddr
	}
}

// reportRun prints the run's outcome and returns the error the exit code
// is derived from.
func reportRun(p *printer.Printer, summary collector.Summary, err error) error {
	switch {
	case err == nil:
		p.Success("Collected %d submissions; exported %s\n", summary.Committed, summary.ExportPath)
		if summary.Remaining > 0 {
			p.Warning("%d submissions could not be collected; run again to retry them\n", summary.Remaining)
		}
		return nil

	case errors.Is(err, collector.ErrCancelled):
		p.Warning("Collection interrupted with %d submissions remaining; run the same command to resume\n", summary.Remaining)
		return reported(err)

	case errors.Is(err, checkpoint.ErrVenueMismatch):
		p.Error("Output directory belongs to another venue", err.Error(), []string{
			"Pass a different --output directory",
			"Collect the venue the directory was created for",
		})
		return reported(err)

	case errors.Is(err, retry.ErrFatal):
		p.Error("Collection aborted", err.Error(), []string{"Everything committed so far is kept; run the same command to resume"})
		return reported(err)

	default:
		p.Error("Collection failed", err.Error(), nil)
		return reported(err)
	}
}

// printSummary renders the run summary table.
func printSummary(p *printer.Printer, s collector.Summary) {
	t := p.Table()
	t.SetTitle("Run %s", s.RunID)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Venue", s.Venue},
		{"Status", string(s.Status)},
		{"Enumerated", s.Enumerated},
		{"Committed", fmt.Sprintf("%d (%d this run)", s.Committed, s.CommittedThisRun)},
		{"Reviews", s.Reviews},
		{"Skipped", s.Skipped},
	})
	for _, reason := range sortedKeys(s.SkippedByReason) {
		t.AppendRow(table.Row{"  " + reason, s.SkippedByReason[reason]})
	}
	t.AppendRows([]table.Row{
		{"Remaining", s.Remaining},
		{"Retries", s.Retries},
		{"Elapsed", s.Elapsed.Round(time.Second).String()},
	})
	t.Render()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
