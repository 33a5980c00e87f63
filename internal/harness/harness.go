package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/shelfwise/internal/analytics"
	"github.com/roach88/shelfwise/internal/commerce"
	"github.com/roach88/shelfwise/internal/ingest"
	"github.com/roach88/shelfwise/internal/model"
	"github.com/roach88/shelfwise/internal/store"
	"github.com/roach88/shelfwise/internal/testutil"
)

const scenarioToken = "shpat_scenario"

// Harness executes one scenario.
type Harness struct {
	scenario  *Scenario
	store     *store.Store
	upstream  *testutil.FakeUpstream
	clock     *testutil.FixedClock
	sync      *ingest.Engine
	analytics *analytics.Engine
	logger    *slog.Logger
}

// Run executes a scenario against a fresh database and fake upstream, both
// released when t finishes.
//
// Execution flow:
//  1. Start the fake upstream with the scenario's pages and failures
//  2. Open a database and connect the store (unless disconnected)
//  3. Execute the flow, checking expect clauses
//  4. Evaluate assertions
//
// The returned error is reserved for harness failures (bad setup, storage);
// scenario failures are reported through Result.
func Run(t testing.TB, scenario *Scenario) (*Result, error) {
	t.Helper()

	now, err := time.Parse(time.RFC3339, scenario.Now)
	if err != nil {
		return nil, fmt.Errorf("invalid now: %w", err)
	}
	clock := testutil.NewFixedClock(now.UTC())

	up := testutil.NewFakeUpstream(t, scenarioToken)
	for resource, pages := range scenario.Upstream {
		up.SetPages(resource, pages...)
	}
	for _, f := range scenario.Failures {
		up.FailPage(f.Resource, f.Page, f.Status, f.Times)
	}

	st, err := store.Open(filepath.Join(t.TempDir(), "scenario.db"), store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if !scenario.Disconnected {
		if err := st.UpsertStore(ctx, scenario.StoreID, scenarioToken); err != nil {
			return nil, fmt.Errorf("failed to connect store: %w", err)
		}
	}

	// Suppress logs in tests
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := commerce.New(commerce.WithBaseURL(up.URL()), commerce.WithRateLimit(0, 0))

	syncEngine := ingest.New(st, client,
		ingest.WithLogger(logger),
		ingest.WithClock(clock.Now),
		ingest.WithRunIDs(testutil.SequentialRunIDs("run", 100)),
		ingest.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))
	analyticsEngine := analytics.New(st,
		analytics.WithLogger(logger),
		analytics.WithClock(clock.Now))

	h := &Harness{
		scenario:  scenario,
		store:     st,
		upstream:  up,
		clock:     clock,
		sync:      syncEngine,
		analytics: analyticsEngine,
		logger:    logger,
	}

	result := NewResult()
	if err := h.executeFlow(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		Ctx:     ctx,
		Store:   st,
		StoreID: scenario.StoreID,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// executeFlow runs every flow step in order.
func (h *Harness) executeFlow(ctx context.Context, result *Result) error {
	for i, step := range h.scenario.Flow {
		event := TraceEvent{Step: i}

		switch {
		case step.Advance != "":
			d, err := time.ParseDuration(step.Advance)
			if err != nil {
				return fmt.Errorf("flow step %d: %w", i, err)
			}
			h.clock.Advance(d)
			event.Kind = KindAdvance

		case step.Upstream != nil:
			for resource, pages := range step.Upstream {
				h.upstream.SetPages(resource, pages...)
			}
			event.Kind = KindUpstream

		case step.Sync != "":
			event.Kind = KindSync
			runs, err := h.runSync(ctx, step)
			event.Runs = runs
			var serr *ingest.SyncError
			if errors.As(err, &serr) {
				event.Error = string(serr.Code)
			} else if err != nil {
				return fmt.Errorf("flow step %d: %w", i, err)
			}
			for _, msg := range checkExpect(i, step.Expect, event) {
				result.AddError(msg)
			}

		case step.Analytics != nil:
			event.Kind = KindAnalytics
			report, recorded, err := h.runAnalytics(ctx, step.Analytics)
			if err != nil {
				return fmt.Errorf("flow step %d: %w", i, err)
			}
			event.Report = &report
			event.Recorded = recorded
		}

		h.logger.Info("flow step completed", "step", i, "kind", event.Kind, "error", event.Error)
		result.Trace = append(result.Trace, event)
	}
	return nil
}

func (h *Harness) runSync(ctx context.Context, step Step) ([]model.SyncRun, error) {
	opts := ingest.RunOptions{Dry: step.Dry, Days: step.Days, PageCap: step.PageCap}
	if step.Sync == "all" {
		return h.sync.RunAll(ctx, h.scenario.StoreID, opts)
	}
	entity, err := model.ParseEntityType(step.Sync)
	if err != nil {
		return nil, err
	}
	run, err := h.sync.Run(ctx, h.scenario.StoreID, entity, opts)
	return []model.SyncRun{run}, err
}

func (h *Harness) runAnalytics(ctx context.Context, step *AnalyticsStep) (analytics.Report, int, error) {
	cfg := analytics.ParseConfig(func(name string) string {
		if name == analytics.RuleKey {
			return step.Rule
		}
		return step.Knobs[name]
	})

	report, err := h.analytics.Report(ctx, h.scenario.StoreID, cfg)
	if err != nil {
		return analytics.Report{}, 0, err
	}
	if !step.Record {
		return report, 0, nil
	}
	recorded, err := h.analytics.Record(ctx, h.store, report)
	if err != nil {
		return analytics.Report{}, 0, err
	}
	return report, recorded, nil
}

// checkExpect compares a sync step's outcome against its expect clause.
func checkExpect(step int, expect *ExpectClause, event TraceEvent) []string {
	var errs []string
	if expect == nil {
		if event.Error != "" {
			errs = append(errs, fmt.Sprintf("flow step %d: unexpected sync error %s", step, event.Error))
		}
		return errs
	}

	if event.Error != expect.Error {
		errs = append(errs, fmt.Sprintf("flow step %d: expected error %q, got %q", step, expect.Error, event.Error))
	}

	var pages, fetched, upserted, skipped int
	for _, run := range event.Runs {
		if expect.Status != "" && string(run.Status) != expect.Status {
			errs = append(errs, fmt.Sprintf("flow step %d: %s run: expected status %s, got %s",
				step, run.Entity, expect.Status, run.Status))
		}
		pages += run.Pages
		fetched += run.Fetched
		upserted += run.Upserted
		skipped += run.Skipped
	}

	for _, c := range []struct {
		name   string
		expect *int
		actual int
	}{
		{"pages", expect.Pages, pages},
		{"fetched", expect.Fetched, fetched},
		{"upserted", expect.Upserted, upserted},
		{"skipped", expect.Skipped, skipped},
	} {
		if c.expect != nil && *c.expect != c.actual {
			errs = append(errs, fmt.Sprintf("flow step %d: expected %s=%d, got %d", step, c.name, *c.expect, c.actual))
		}
	}
	return errs
}
