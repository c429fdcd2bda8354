package commands

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/yubol-bobo/Smart-AI-Conference/internal/printer"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/checkpoint"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/collector"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/record"
)

type statusOptions struct {
	venueFlags
	limit int
}

func newStatusCommand(g *globalOptions) *cobra.Command {
	o := &statusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report the progress of a checkpoint",
		Long: `Status reads a checkpoint directory without modifying it and reports
committed and skipped submissions, the distribution of reviews per
submission, decisions, and the submissions that have no reviews yet.

Examples:
  review-collector status --year 2025
  review-collector status -o out/iclr24 --limit 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, g, o)
		},
	}

	o.venueFlags.register(cmd)
	cmd.Flags().IntVar(&o.limit, "limit", 20, "submissions without reviews to list (0 lists all)")

	return cmd
}

func runStatus(cmd *cobra.Command, g *globalOptions, o *statusOptions) error {
	p := newPrinter(cmd)

	dir := o.output
	if dir == "" {
		cfg, err := g.loadConfig()
		if err != nil {
			p.Error("Failed to load configuration", err.Error(), nil)
			return reported(err)
		}
		venue, err := o.resolveVenue(cfg.Collection.Venue)
		if err != nil {
			p.Error("No checkpoint selected", "status needs a venue or an output directory.",
				append(venueSuggestions, "Pass --output <checkpoint dir>"))
			return reported(err)
		}
		dir = o.resolveOutput(cfg.Collection.OutputDir, venue)
	}

	snap, err := checkpoint.Inspect(dir)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNoCheckpoint) {
			p.Error("No checkpoint found", fmt.Sprintf("%s holds no collection run.", dir),
				[]string{"Run review-collector collect first"})
		} else {
			p.Error("Failed to read checkpoint", err.Error(), nil)
		}
		return reported(err)
	}

	report := buildReport(snap)
	printReport(p, dir, snap.Meta, report, o.limit)
	return nil
}

// statusReport aggregates a checkpoint snapshot.
type statusReport struct {
	enumerated    int
	committed     int
	reviews       int
	skipped       map[string]int
	pending       int
	unidentified  int
	byReviewCount map[int]int
	decisions     map[string]int
	withoutReview []record.CollectionRecord
}

func buildReport(snap checkpoint.Snapshot) statusReport {
	r := statusReport{
		skipped:       make(map[string]int),
		byReviewCount: make(map[int]int),
		decisions:     make(map[string]int),
	}

	for _, page := range snap.Pages {
		r.enumerated += len(page.Items)
	}

	committed := make(map[string]struct{}, len(snap.Records))
	for _, rec := range snap.Records {
		committed[rec.ID] = struct{}{}
		r.reviews += len(rec.Reviews)
		r.byReviewCount[len(rec.Reviews)]++
		if len(rec.Reviews) == 0 {
			r.withoutReview = append(r.withoutReview, rec)
		}
		if rec.Decision != nil {
			r.decisions[string(*rec.Decision)]++
		} else {
			r.decisions["Pending"]++
		}
	}
	r.committed = len(committed)

	// Only the latest skip entry of a submission counts, and only while
	// the submission has no record. Entries without an id stay skipped
	// but are never retried.
	latest := make(map[string]record.SkipEntry)
	for _, e := range snap.Skipped {
		latest[e.Key()] = e
	}
	for key, e := range latest {
		if _, ok := committed[key]; ok {
			continue
		}
		r.skipped[e.Reason]++
		if e.Retryable() {
			r.pending++
		} else {
			r.unidentified++
		}
	}

	return r
}

func printReport(p *printer.Printer, dir string, meta checkpoint.RunMeta, r statusReport, limit int) {
	t := p.Table()
	t.SetTitle("Checkpoint %s", dir)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"Venue", meta.Venue},
		{"Last run", meta.RunID},
		{"Runs", meta.Runs},
		{"Status", meta.Status},
		{"Decisions", meta.Decisions},
		{"Updated", meta.UpdatedAt.Format(time.RFC3339)},
		{"Enumerated", r.enumerated},
		{"Committed", r.committed},
		{"Reviews", r.reviews},
		{"Reviews per submission", fmt.Sprintf("%.2f", average(r.reviews, r.committed))},
		{"Awaiting retry", r.pending},
		{"Without id", r.unidentified},
	})
	for _, reason := range sortedKeys(r.skipped) {
		t.AppendRow(table.Row{"  " + reason, r.skipped[reason]})
	}
	t.Render()

	if len(r.byReviewCount) > 0 {
		counts := make([]int, 0, len(r.byReviewCount))
		for n := range r.byReviewCount {
			counts = append(counts, n)
		}
		sort.Ints(counts)

		dist := p.Table()
		dist.SetTitle("Reviews per submission")
		dist.AppendHeader(table.Row{"Reviews", "Submissions"})
		for _, n := range counts {
			dist.AppendRow(table.Row{n, r.byReviewCount[n]})
		}
		dist.Render()
	}

	if meta.Decisions && len(r.decisions) > 0 {
		dec := p.Table()
		dec.SetTitle("Decisions")
		dec.AppendHeader(table.Row{"Decision", "Submissions"})
		for _, d := range sortedKeys(r.decisions) {
			dec.AppendRow(table.Row{d, r.decisions[d]})
		}
		dec.Render()
	}

	switch {
	case len(r.withoutReview) == 0:
		p.Success("Every committed submission has reviews\n")
	default:
		p.Warning("%d submissions without reviews\n", len(r.withoutReview))
		shown := r.withoutReview
		if limit > 0 && len(shown) > limit {
			shown = shown[:limit]
		}
		missing := p.Table()
		missing.AppendHeader(table.Row{"#", "Submission", "Title"})
		for _, rec := range shown {
			missing.AppendRow(table.Row{rec.Number, rec.ID, rec.Title})
		}
		if len(shown) < len(r.withoutReview) {
			missing.AppendFooter(table.Row{"", fmt.Sprintf("%d more", len(r.withoutReview)-len(shown)), ""})
		}
		missing.Render()
	}

	if meta.Status == string(collector.StatusCompleted) && r.pending == 0 {
		p.Success("Run complete\n")
	} else if r.pending > 0 {
		p.Step("Run collect again to retry %d submissions\n", r.pending)
	}
}

func average(total, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}
