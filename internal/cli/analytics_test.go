package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelfwise/internal/analytics"
)

// syncFixture connects the store and syncs three orders plus one product
// with two variants: 101 (stock 5, sold) and 150 (stock 60, never sold).
func syncFixture(t *testing.T, h *cliHarness) {
	t.Helper()
	h.connect()
	h.upstream.SetPages("orders", ordersPage(1, 2, 3))
	h.upstream.SetPages("products", productsPage())
	res := h.run("sync", "all", "--store", testStoreID)
	require.NoError(t, res.err, res.stdout+res.stderr)
}

func TestAnalytics_JSON(t *testing.T) {
	h := newCLIHarness(t)
	syncFixture(t, h)

	res := h.run("analytics", "--store", testStoreID, "--format", "json")
	require.NoError(t, res.err, res.stdout+res.stderr)

	var report analyticsReport
	dataAs(t, decode(t, res.stdout), &report)

	assert.Equal(t, 3, report.Metrics.OrdersInDB)
	assert.Equal(t, 3, report.Metrics.UniqueVariantsSoldWindow)
	assert.Len(t, report.TopSellers, 3)

	require.Len(t, report.SlowMovers, 1)
	assert.Equal(t, int64(150), report.SlowMovers[0].VariantID)
	assert.Equal(t, "Linen Shirt", report.SlowMovers[0].ProductTitle)
	assert.Equal(t, 42.75, report.SlowMovers[0].RecommendedAction.SuggestedPrice)
	assert.Equal(t, 120, report.Meta.WindowDays)
}

// analyticsReport mirrors the JSON shape of analytics.Report.
type analyticsReport struct {
	Metrics struct {
		OrdersInDB               int `json:"orders_in_db"`
		UniqueVariantsSoldWindow int `json:"unique_variants_sold_window"`
	} `json:"metrics"`
	TopSellers []analytics.TopSeller `json:"top_sellers"`
	SlowMovers []struct {
		VariantID         int64  `json:"variant_id"`
		ProductTitle      string `json:"product_title"`
		RecommendedAction struct {
			Type           string  `json:"type"`
			DiscountPct    int     `json:"discount_pct"`
			SuggestedPrice float64 `json:"suggested_price"`
		} `json:"recommended_action"`
	} `json:"slow_movers"`
	Meta struct {
		WindowDays int                `json:"window_days"`
		Rule       string             `json:"rule"`
		Knobs      analytics.KnobValues `json:"knobs"`
	} `json:"meta"`
}

func TestAnalytics_KnobFlagsAreClamped(t *testing.T) {
	h := newCLIHarness(t)
	syncFixture(t, h)

	res := h.run("analytics", "--store", testStoreID, "--format", "json",
		"--window-days=-5", "--min-stock=99999", "--discount-pct=-80", "--inactivity-days=abc", "--rule=v9")
	require.NoError(t, res.err)

	var report analyticsReport
	dataAs(t, decode(t, res.stdout), &report)
	assert.Equal(t, 120, report.Meta.WindowDays)
	assert.Equal(t, "v2", report.Meta.Rule)
	assert.Equal(t, analytics.KnobValues{MinStock: 10000, InactivityDays: 60, DiscountPct: -50, MaxSalesInWindow: 1}, report.Meta.Knobs)
	assert.Empty(t, report.SlowMovers, "nothing has 10000 units in stock")
}

func TestAnalytics_Text(t *testing.T) {
	h := newCLIHarness(t)
	syncFixture(t, h)

	res := h.run("analytics", "--store", testStoreID, "--discount-pct=10")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "store "+testStoreID)
	assert.Contains(t, res.stdout, "slow movers (1)")
	assert.Contains(t, res.stdout, "49.50")
	assert.Contains(t, res.stdout, "Linen Shirt / XL")
}

func TestAnalytics_Record(t *testing.T) {
	h := newCLIHarness(t)
	syncFixture(t, h)

	res := h.run("analytics", "--store", testStoreID, "--record")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "recorded 1 recommendation(s)")
}

func TestAnalytics_UnknownStore(t *testing.T) {
	h := newCLIHarness(t)

	res := h.run("analytics", "--store", "nobody", "--format", "json")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	resp := decode(t, res.stdout)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeStoreUnknown, resp.Error.Code)
}
