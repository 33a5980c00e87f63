package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shelfwise/internal/ingest"
	"github.com/roach88/shelfwise/internal/model"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	StoreID     string
	Dry         bool
	Days        int
	PageCap     int
	MaxDuration time.Duration
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync <orders|variants|all>",
		Short: "Pull orders or catalog variants from upstream",
		Long: `Incrementally synchronise one entity type (or both) for a connected store.

Each run resumes from the stored cursor, or from --days ago when there is
none. A run that stops at its page or time budget is reported as capped and
exits 1; run it again to continue where it stopped.

Example:
  shelfwise sync orders --store demo.myshopify.com
  shelfwise sync all --store demo.myshopify.com --page-cap 10
  shelfwise sync variants --store demo.myshopify.com --dry`,
		Args:          cobra.ExactArgs(1),
		ValidArgs:     []string{"orders", "variants", "all"},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.StoreID, "store", "", "store id (required)")
	cmd.Flags().BoolVar(&opts.Dry, "dry", false, "fetch and validate without writing anything")
	cmd.Flags().IntVar(&opts.Days, "days", 0, "lookback in days when no cursor exists (0 = configured default)")
	cmd.Flags().IntVar(&opts.PageCap, "page-cap", 0, "maximum pages for this run (0 = configured cap)")
	cmd.Flags().DurationVar(&opts.MaxDuration, "max-duration", 0, "wall-clock budget for this run (0 = configured budget)")
	_ = cmd.MarkFlagRequired("store")

	return cmd
}

func runSync(opts *SyncOptions, target string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	var entities []model.EntityType
	if strings.EqualFold(target, "all") {
		entities = model.EntityTypes
	} else {
		entity, err := model.ParseEntityType(target)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeConfig, "invalid sync target", err, nil)
		}
		entities = []model.EntityType{entity}
	}

	st, err := opts.openStore()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStorage, "failed to open database", err, nil)
	}
	defer closeStore(opts.Logger, st)

	ctx, stop := signalContext(cmd)
	defer stop()

	eng := opts.newSyncEngine(st)
	runOpts := ingest.RunOptions{
		Dry:         opts.Dry,
		Days:        opts.Days,
		PageCap:     opts.PageCap,
		MaxDuration: opts.MaxDuration,
	}

	var runs runSummaries
	if len(entities) > 1 {
		runs, err = eng.RunAll(ctx, opts.StoreID, runOpts)
	} else {
		var run model.SyncRun
		run, err = eng.Run(ctx, opts.StoreID, entities[0], runOpts)
		runs = runSummaries{run}
	}

	if err != nil {
		if ingest.IsConfigurationError(err) {
			return formatter.fail(ExitCommandError, ErrCodeStoreUnknown, "cannot sync store "+opts.StoreID, err, runs)
		}
		return formatter.fail(ExitFailure, ErrCodeSyncFailed, "sync failed", err, runs)
	}

	if runs.capped() {
		if formatter.Format != "json" {
			if _, err := fmt.Fprintln(formatter.Writer, runs); err != nil {
				return err
			}
		}
		return formatter.fail(ExitFailure, ErrCodeSyncCapped,
			"sync capped before upstream was exhausted; run again to continue", nil, runs)
	}
	return formatter.Success(runs)
}

// runSummaries renders sync runs one per line in text output.
type runSummaries []model.SyncRun

func (r runSummaries) capped() bool {
	for _, run := range r {
		if run.Status == model.RunCapped {
			return true
		}
	}
	return false
}

func (r runSummaries) String() string {
	if len(r) == 0 {
		return "no runs"
	}
	var b strings.Builder
	for i, run := range r {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(formatRun(run))
	}
	return b.String()
}

func formatRun(run model.SyncRun) string {
	status := string(run.Status)
	if run.Dry {
		status += " (dry)"
	}
	s := fmt.Sprintf("%-9s %-17s pages=%d fetched=%d upserted=%d skipped=%d cursor=%s",
		run.Entity, status, run.Pages, run.Fetched, run.Upserted, run.Skipped, formatCursor(run.CursorAfter))
	if run.Error != "" {
		s += " error=" + run.Error
	}
	return s
}

func formatCursor(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return model.FormatTimestamp(*t)
}
