package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/shelfwise/internal/analytics"
	"github.com/roach88/shelfwise/internal/store"
)

// AnalyticsOptions holds flags for the analytics command. Knobs are kept as
// raw strings so they go through the same lenient parsing as HTTP queries.
type AnalyticsOptions struct {
	*RootOptions
	StoreID string
	Knobs   map[string]*string
	Rule    string
	Record  bool
}

// knobFlags maps analytics knob names to command line flags.
var knobFlags = []struct {
	knob analytics.Knob
	flag string
}{
	{analytics.WindowDays, "window-days"},
	{analytics.MinStock, "min-stock"},
	{analytics.InactivityDays, "inactivity-days"},
	{analytics.DiscountPct, "discount-pct"},
	{analytics.MaxSalesInWindow, "max-sales"},
}

// NewAnalyticsCommand creates the analytics command.
func NewAnalyticsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AnalyticsOptions{RootOptions: rootOpts, Knobs: make(map[string]*string)}

	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Report top sellers and slow movers",
		Long: `Compute a windowed sales report from synchronised data.

Knob values are never rejected: non-numeric or negative values fall back to
the default and everything else is clamped into range.

Example:
  shelfwise analytics --store demo.myshopify.com
  shelfwise analytics --store demo.myshopify.com --window-days 90 --discount-pct=-10 --rule v3
  shelfwise analytics --store demo.myshopify.com --record --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalytics(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.StoreID, "store", "", "store id (required)")
	for _, kf := range knobFlags {
		v := new(string)
		opts.Knobs[kf.knob.Name] = v
		cmd.Flags().StringVar(v, kf.flag, "",
			fmt.Sprintf("%s (default %d, range %d..%d)", kf.knob.Name, kf.knob.Default, kf.knob.Min, kf.knob.Max))
	}
	cmd.Flags().StringVar(&opts.Rule, "rule", string(analytics.DefaultRule), "slow-mover rule version (v1|v2|v3)")
	cmd.Flags().BoolVar(&opts.Record, "record", false, "append the recommendations to the recommendation log")
	_ = cmd.MarkFlagRequired("store")

	return cmd
}

func (o *AnalyticsOptions) lookup(name string) string {
	if name == analytics.RuleKey {
		return o.Rule
	}
	if v, ok := o.Knobs[name]; ok {
		return *v
	}
	return ""
}

func runAnalytics(opts *AnalyticsOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStorage, "failed to open database", err, nil)
	}
	defer closeStore(opts.Logger, st)

	ctx, stop := signalContext(cmd)
	defer stop()

	if _, err := st.GetStore(ctx, opts.StoreID); err != nil {
		if errors.Is(err, store.ErrStoreNotFound) {
			return formatter.fail(ExitCommandError, ErrCodeStoreUnknown, "unknown store "+opts.StoreID, nil, nil)
		}
		return formatter.fail(ExitFailure, ErrCodeStorage, "failed to read store", err, nil)
	}

	cfg := analytics.ParseConfig(opts.lookup)
	formatter.VerboseLog("analytics config: %+v", cfg)

	eng := opts.newAnalyticsEngine(st)
	report, err := eng.Report(ctx, opts.StoreID, cfg)
	if err != nil {
		return formatter.fail(ExitFailure, ErrCodeStorage, "analytics failed", err, nil)
	}

	recorded := 0
	if opts.Record {
		recorded, err = eng.Record(ctx, st, report)
		if errors.Is(err, store.ErrUnsupported) {
			return formatter.fail(ExitFailure, ErrCodeUnsupported, "database has no recommendation log", err, nil)
		}
		if err != nil {
			return formatter.fail(ExitFailure, ErrCodeStorage, "failed to record recommendations", err, nil)
		}
	}

	return formatter.Render(report, func(w io.Writer) error {
		if err := analytics.RenderText(w, report); err != nil {
			return err
		}
		if opts.Record {
			_, err := fmt.Fprintf(w, "\nrecorded %d recommendation(s)\n", recorded)
			return err
		}
		return nil
	})
}
