// Command report runs the revenue pipeline once over local, HTTP or Cloud
// Storage inputs and prints the performance evaluation.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"ze-dashboard/internal/config"
	"ze-dashboard/internal/models"
	"ze-dashboard/internal/observability"
	"ze-dashboard/internal/revenue"
	"ze-dashboard/internal/services"
	"ze-dashboard/internal/source"
)

type options struct {
	firms       string
	pos         string
	granularity string
	group       string
	policy      string
	low         float64
	high        float64
	period      string
	asOf        string
	format      string
	out         string
	timeout     time.Duration
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Evaluate revenue performance against each key's own history",
		Long: `report loads the firm registry and POS transactions, aggregates revenue per
period and classifies every key observed in the evaluated period against the
mean of its earlier periods.`,
		Example: `  report --firms data/firms.csv --pos data/pos.csv
  report --pos gs://exports/pos.csv --group product --format json
  report --granularity month --policy three-way --format xlsx --out report.xlsx`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.firms, "firms", "data/firms.csv", "firm registry location (path, http(s) URL or gs://bucket/object)")
	f.StringVar(&opts.pos, "pos", "data/pos.csv", "POS transactions location")
	f.StringVar(&opts.granularity, "granularity", "day", "period granularity: day or month")
	f.StringVar(&opts.group, "group", "entity", "grouping: entity or product")
	f.StringVar(&opts.policy, "policy", "two-way", "classification policy: two-way or three-way")
	f.Float64Var(&opts.low, "low", 6000, "three-way lower threshold")
	f.Float64Var(&opts.high, "high", 10000, "three-way upper threshold")
	f.StringVar(&opts.period, "period", "", "period to evaluate (YYYY-MM-DD or YYYY-MM); defaults to the latest")
	f.StringVar(&opts.asOf, "as-of", "", "date for the revenue summary (YYYY-MM-DD); defaults to today")
	f.StringVarP(&opts.format, "format", "f", "table", "output format: table, json or xlsx")
	f.StringVarP(&opts.out, "out", "o", "", "write to this file instead of stdout")
	f.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall time limit")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline progress to stderr")

	return cmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "report:", err)
		os.Exit(1)
	}
}

// report is everything one run produces, in output order.
type report struct {
	Granularity models.Granularity         `json:"granularity"`
	Policy      models.Policy              `json:"policy"`
	Group       models.GroupBy             `json:"group"`
	Period      *models.Period             `json:"period"`
	Records     []models.PerformanceRecord `json:"records"`
	Leaders     models.Leaders             `json:"leaders"`
	Summary     models.RevenueSummary      `json:"summary"`
	Firms       []models.FirmAssessment    `json:"firms"`
}

func runReport(ctx context.Context, stdout, stderr io.Writer, opts *options) error {
	render, err := renderer(opts.format)
	if err != nil {
		return err
	}
	granularity, err := models.ParseGranularity(opts.granularity)
	if err != nil {
		return err
	}
	group, err := models.ParseGroupBy(opts.group)
	if err != nil {
		return err
	}
	policy, err := models.ParsePolicy(opts.policy)
	if err != nil {
		return err
	}
	now := time.Now
	if opts.asOf != "" {
		t, err := time.Parse(time.DateOnly, opts.asOf)
		if err != nil {
			return fmt.Errorf("--as-of: %w", err)
		}
		now = func() time.Time { return t }
	}

	level := "error"
	if opts.verbose {
		level = "debug"
	}
	logger := observability.NewLogger(config.LoggerConfig{Level: level, Format: "text"}, stderr)

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	fetchOpts := source.Options{Logger: logger}
	if source.NeedsGCS(opts.firms, opts.pos) {
		gcs, err := source.NewGCS(ctx)
		if err != nil {
			return err
		}
		defer gcs.Close()
		fetchOpts.Objects = gcs
	}

	analytics, err := services.NewAnalytics(source.NewFetcher(fetchOpts), services.Options{
		FirmsLocation: opts.firms,
		POSLocation:   opts.pos,
		Granularity:   granularity,
		Policy:        policy,
		Thresholds: &revenue.ThreeWay{
			Low:  decimal.NewFromFloat(opts.low),
			High: decimal.NewFromFloat(opts.high),
		},
		Logger: logger,
		Now:    now,
	})
	if err != nil {
		return err
	}
	if err := analytics.Refresh(ctx); err != nil {
		return err
	}

	rep, err := buildReport(analytics, group, opts.period)
	if err != nil {
		return err
	}

	if opts.out == "" {
		return render(stdout, rep)
	}
	f, err := os.Create(opts.out)
	if err != nil {
		return err
	}
	if err := render(f, rep); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func buildReport(analytics *services.Analytics, group models.GroupBy, rawPeriod string) (*report, error) {
	snap, err := analytics.Snapshot()
	if err != nil {
		return nil, err
	}

	rep := &report{
		Granularity: snap.Granularity,
		Policy:      snap.Policy,
		Group:       group,
		Summary:     snap.Summary,
		Firms:       snap.Firms,
	}

	switch {
	case rawPeriod != "":
		layout := time.DateOnly
		if snap.Granularity == models.GranularityMonth {
			layout = "2006-01"
		}
		t, err := time.Parse(layout, rawPeriod)
		if err != nil {
			return nil, fmt.Errorf("--period %q does not match %s granularity (%s)", rawPeriod, snap.Granularity, layout)
		}
		period := models.PeriodOf(t, snap.Granularity)
		rep.Records, rep.Leaders, err = analytics.PerformanceAt(group, period)
		if err != nil {
			return nil, err
		}
		rep.Period = &period
	case snap.HasPeriod:
		period := snap.Period
		rep.Period = &period
		rep.Records, rep.Leaders = snap.Performance(group)
	}
	return rep, nil
}
