package harness

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/shelfwise/internal/analytics"
	"github.com/roach88/shelfwise/internal/model"
	"github.com/roach88/shelfwise/internal/store"
)

// validIdentifier matches valid SQL identifiers (table names).
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", event.Step, event.Kind)
			for _, run := range event.Runs {
				fmt.Fprintf(&buf, " %s=%s", run.Entity, run.Status)
			}
			if event.Error != "" {
				fmt.Fprintf(&buf, " error=%s", event.Error)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx     context.Context
	Store   *store.Store
	StoreID string
}

// assertCursor checks the stored cursor of one entity type.
func assertCursor(actx *AssertionContext, assertion Assertion) error {
	entity, err := model.ParseEntityType(assertion.Entity)
	if err != nil {
		return err
	}
	cur, found, err := actx.Store.ReadCursor(actx.Ctx, actx.StoreID, entity)
	if err != nil {
		return err
	}

	if assertion.Absent {
		if found {
			return &AssertionError{
				Type:     AssertCursor,
				Expected: fmt.Sprintf("no %s cursor", entity),
				Actual:   model.FormatTimestamp(cur.Watermark),
			}
		}
		return nil
	}

	want, err := model.ParseTimestamp(assertion.Value)
	if err != nil {
		return err
	}
	if !found {
		return &AssertionError{
			Type:     AssertCursor,
			Expected: fmt.Sprintf("%s cursor %s", entity, model.FormatTimestamp(want)),
			Actual:   "no cursor",
		}
	}
	if !cur.Watermark.Equal(want) {
		return &AssertionError{
			Type:     AssertCursor,
			Expected: fmt.Sprintf("%s cursor %s", entity, model.FormatTimestamp(want)),
			Actual:   model.FormatTimestamp(cur.Watermark),
		}
	}
	return nil
}

// assertRowCount counts the scenario store's rows in a table.
func assertRowCount(actx *AssertionContext, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE store_id = ?", assertion.Table)
	if err := actx.Store.DB().QueryRowContext(actx.Ctx, query, actx.StoreID).Scan(&n); err != nil {
		return fmt.Errorf("failed to count %s: %w", assertion.Table, err)
	}
	if n != assertion.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s", assertion.Count, assertion.Table),
			Actual:   fmt.Sprintf("%d rows", n),
		}
	}
	return nil
}

// assertRunCount counts ledger entries, optionally of one status.
func assertRunCount(actx *AssertionContext, assertion Assertion) error {
	runs, err := actx.Store.ListRuns(actx.Ctx, actx.StoreID, 1000)
	if err != nil {
		return err
	}
	n := 0
	for _, run := range runs {
		if assertion.Status == "" || string(run.Status) == assertion.Status {
			n++
		}
	}
	if n != assertion.Count {
		what := "runs"
		if assertion.Status != "" {
			what = assertion.Status + " runs"
		}
		return &AssertionError{
			Type:     AssertRunCount,
			Expected: fmt.Sprintf("%d %s", assertion.Count, what),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// assertTopSellers compares the last report's top sellers in order.
func assertTopSellers(report *analytics.Report, assertion Assertion) error {
	variants := make([]int64, len(report.TopSellers))
	quantities := make([]int64, len(report.TopSellers))
	for i, ts := range report.TopSellers {
		variants[i] = ts.VariantID
		quantities[i] = ts.QtySold
	}

	if !int64sEqual(variants, assertion.Variants) {
		return &AssertionError{
			Type:     AssertTopSellers,
			Expected: fmt.Sprintf("variants %v", assertion.Variants),
			Actual:   fmt.Sprintf("variants %v", variants),
		}
	}
	if len(assertion.Quantities) > 0 && !int64sEqual(quantities, assertion.Quantities) {
		return &AssertionError{
			Type:     AssertTopSellers,
			Expected: fmt.Sprintf("quantities %v", assertion.Quantities),
			Actual:   fmt.Sprintf("quantities %v", quantities),
		}
	}
	return nil
}

// assertSlowMovers compares the last report's slow movers in order.
// A price of "-" expects no suggested price.
func assertSlowMovers(report *analytics.Report, assertion Assertion) error {
	variants := make([]int64, len(report.SlowMovers))
	prices := make([]string, len(report.SlowMovers))
	for i, sm := range report.SlowMovers {
		variants[i] = sm.VariantID
		prices[i] = "-"
		if sm.RecommendedAction.SuggestedPrice != nil {
			prices[i] = sm.RecommendedAction.SuggestedPrice.String()
		}
	}

	if !int64sEqual(variants, assertion.Variants) {
		return &AssertionError{
			Type:     AssertSlowMovers,
			Expected: fmt.Sprintf("variants %v", assertion.Variants),
			Actual:   fmt.Sprintf("variants %v", variants),
		}
	}
	if len(assertion.Prices) > 0 && strings.Join(prices, ",") != strings.Join(assertion.Prices, ",") {
		return &AssertionError{
			Type:     AssertSlowMovers,
			Expected: fmt.Sprintf("suggested prices %v", assertion.Prices),
			Actual:   fmt.Sprintf("suggested prices %v", prices),
		}
	}
	return nil
}

func int64sEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertCursor, AssertRowCount, AssertRunCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertCursor:
				err = assertCursor(actx, assertion)
			case AssertRowCount:
				err = assertRowCount(actx, assertion)
			default:
				err = assertRunCount(actx, assertion)
			}
		case AssertTopSellers, AssertSlowMovers:
			report := result.LastReport()
			if report == nil {
				err = fmt.Errorf("assertion[%d]: %s requires an analytics step", i, assertion.Type)
				break
			}
			if assertion.Type == AssertTopSellers {
				err = assertTopSellers(report, assertion)
			} else {
				err = assertSlowMovers(report, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if ae, ok := err.(*AssertionError); ok {
			ae.Trace = result.Trace
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
