package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shelfwise/internal/model"
)

// NewCursorCommand creates the cursor command group.
func NewCursorCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Inspect sync cursors",
	}
	cmd.AddCommand(newCursorShowCommand(rootOpts))
	return cmd
}

type cursorStatus struct {
	Entity          model.EntityType `json:"entity"`
	Cursor          *time.Time       `json:"cursor"`
	CursorUpdatedAt *time.Time       `json:"cursor_updated_at,omitempty"`
	LastRun         *model.SyncRun   `json:"last_run,omitempty"`
}

type cursorReport []cursorStatus

func (r cursorReport) String() string {
	lines := make([]string, 0, len(r))
	for _, c := range r {
		line := fmt.Sprintf("%-9s cursor=%s", c.Entity, formatCursor(c.Cursor))
		if c.LastRun != nil {
			line += fmt.Sprintf(" last_run=%s status=%s finished=%s",
				c.LastRun.RunID, c.LastRun.Status, model.FormatTimestamp(c.LastRun.FinishedAt))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func newCursorShowCommand(opts *RootOptions) *cobra.Command {
	var storeID string

	cmd := &cobra.Command{
		Use:           "show",
		Short:         "Show the cursor and last run per entity type",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			st, err := opts.openStore()
			if err != nil {
				return formatter.fail(ExitCommandError, ErrCodeStorage, "failed to open database", err, nil)
			}
			defer closeStore(opts.Logger, st)

			ctx := cmd.Context()
			report := make(cursorReport, 0, len(model.EntityTypes))
			for _, entity := range model.EntityTypes {
				status := cursorStatus{Entity: entity}

				cur, found, err := st.ReadCursor(ctx, storeID, entity)
				if err != nil {
					return formatter.fail(ExitFailure, ErrCodeStorage, "failed to read cursor", err, nil)
				}
				if found {
					status.Cursor = &cur.Watermark
					status.CursorUpdatedAt = &cur.UpdatedAt
				}

				run, found, err := st.LastRun(ctx, storeID, entity)
				if err != nil {
					return formatter.fail(ExitFailure, ErrCodeStorage, "failed to read run ledger", err, nil)
				}
				if found {
					status.LastRun = &run
				}
				report = append(report, status)
			}
			return formatter.Success(report)
		},
	}
	cmd.Flags().StringVar(&storeID, "store", "", "store id (required)")
	_ = cmd.MarkFlagRequired("store")
	return cmd
}

// NewRunsCommand creates the runs command, listing the sync ledger.
func NewRunsCommand(opts *RootOptions) *cobra.Command {
	var (
		storeID string
		limit   int
	)

	cmd := &cobra.Command{
		Use:           "runs",
		Short:         "List recent sync runs, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			st, err := opts.openStore()
			if err != nil {
				return formatter.fail(ExitCommandError, ErrCodeStorage, "failed to open database", err, nil)
			}
			defer closeStore(opts.Logger, st)

			runs, err := st.ListRuns(cmd.Context(), storeID, limit)
			if err != nil {
				return formatter.fail(ExitFailure, ErrCodeStorage, "failed to list runs", err, nil)
			}
			return formatter.Success(runSummaries(runs))
		},
	}
	cmd.Flags().StringVar(&storeID, "store", "", "store id (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	_ = cmd.MarkFlagRequired("store")
	return cmd
}
