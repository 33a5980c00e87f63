package harness

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelfwise/internal/analytics"
	"github.com/roach88/shelfwise/internal/model"
)

func reportResult(report analytics.Report) *Result {
	r := NewResult()
	r.Trace = append(r.Trace,
		TraceEvent{Step: 0, Kind: KindSync, Runs: []model.SyncRun{{Entity: model.EntityOrders, Status: model.RunCompleted}}},
		TraceEvent{Step: 1, Kind: KindAnalytics, Report: &report},
	)
	return r
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertRowCount,
		Expected: "3 rows in orders",
		Actual:   "2 rows",
		Trace: []TraceEvent{
			{Step: 0, Kind: KindSync, Runs: []model.SyncRun{{Entity: model.EntityOrders, Status: model.RunFailed}}, Error: "UPSTREAM_REJECTED"},
			{Step: 1, Kind: KindAdvance},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: row_count")
	assert.Contains(t, msg, "Expected: 3 rows in orders")
	assert.Contains(t, msg, "Actual: 2 rows")
	assert.Contains(t, msg, "[0] sync orders=failed error=UPSTREAM_REJECTED")
	assert.Contains(t, msg, "[1] advance")
}

func TestEvaluateAssertions_TopSellers(t *testing.T) {
	result := reportResult(analytics.Report{
		TopSellers: []analytics.TopSeller{{VariantID: 7, QtySold: 9}, {VariantID: 3, QtySold: 2}},
	})

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTopSellers, Variants: []int64{7, 3}},
		{Type: AssertTopSellers, Variants: []int64{7, 3}, Quantities: []int64{9, 2}},
	}, nil)
	assert.Empty(t, errs)

	errs = EvaluateAssertions(result, []Assertion{
		{Type: AssertTopSellers, Variants: []int64{3, 7}},
		{Type: AssertTopSellers, Variants: []int64{7, 3}, Quantities: []int64{9, 1}},
	}, nil)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "variants [3 7]")
	assert.Contains(t, errs[1], "quantities [9 1]")
	assert.Contains(t, errs[1], "[0] sync orders=completed", "failures carry the trace")
}

func TestEvaluateAssertions_SlowMovers(t *testing.T) {
	price := analytics.NewMoney(decimal.RequireFromString("19"))
	result := reportResult(analytics.Report{
		SlowMovers: []analytics.SlowMover{
			{VariantID: 5, RecommendedAction: analytics.RecommendedAction{SuggestedPrice: &price}},
			{VariantID: 6},
		},
	})

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertSlowMovers, Variants: []int64{5, 6}, Prices: []string{"19.00", "-"}},
	}, nil)
	assert.Empty(t, errs)

	errs = EvaluateAssertions(result, []Assertion{
		{Type: AssertSlowMovers, Variants: []int64{5, 6}, Prices: []string{"19", "-"}},
		{Type: AssertSlowMovers, Variants: []int64{5}},
	}, nil)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "suggested prices [19.00 -]")
	assert.Contains(t, errs[1], "variants [5 6]")
}

func TestEvaluateAssertions_MissingContext(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertSlowMovers},
		{Type: AssertRowCount, Table: "orders"},
		{Type: AssertCursor, Entity: "orders", Absent: true},
		{Type: "final_state"},
	}, nil)

	require.Len(t, errs, 4)
	assert.Contains(t, errs[0], "requires an analytics step")
	assert.Contains(t, errs[1], "requires database context")
	assert.Contains(t, errs[2], "requires database context")
	assert.Contains(t, errs[3], `unknown assertion type "final_state"`)
}

func TestValidIdentifier(t *testing.T) {
	for _, ok := range []string{"orders", "variant_snapshots", "_x1"} {
		assert.True(t, validIdentifier.MatchString(ok), ok)
	}
	for _, bad := range []string{"", "1orders", "orders;", "orders where 1=1", strings.Repeat("-", 3)} {
		assert.False(t, validIdentifier.MatchString(bad), bad)
	}
}
