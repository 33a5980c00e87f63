package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelfwise/internal/model"
	"github.com/roach88/shelfwise/internal/store"
)

func TestReport_Scenario(t *testing.T) {
	s := openTestStore(t)
	seedScenario(t, s)

	r, err := newTestEngine(s).Report(context.Background(), testStoreID, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, Metrics{OrdersInDB: 3, UniqueVariantsSoldWindow: 2, VariantSnapshotsTotal: 6}, r.Metrics)
	assert.Equal(t, []TopSeller{{VariantID: 101, QtySold: 3}, {VariantID: 102, QtySold: 1}}, r.TopSellers)

	require.Len(t, r.SlowMovers, 3)
	ids := []int64{r.SlowMovers[0].VariantID, r.SlowMovers[1].VariantID, r.SlowMovers[2].VariantID}
	assert.Equal(t, []int64{103, 104, 102}, ids)

	tote := r.SlowMovers[2]
	assert.Equal(t, int64(30), tote.Stock, "latest snapshot wins")
	assert.Equal(t, int64(1), tote.QtySoldInWindow)
	require.NotNil(t, tote.DaysSinceLastSale)
	assert.Equal(t, 90, *tote.DaysSinceLastSale)
	assert.Equal(t, "Canvas Tote", tote.ProductTitle)
	require.NotNil(t, tote.CurrentPrice)
	assert.Equal(t, "40.00", tote.CurrentPrice.String())
	assert.Equal(t, ActionPriceDecrease, tote.RecommendedAction.Type)
	assert.Equal(t, -5, tote.RecommendedAction.DiscountPct)
	require.NotNil(t, tote.RecommendedAction.SuggestedPrice)
	assert.Equal(t, "38.00", tote.RecommendedAction.SuggestedPrice.String())

	unpriced := r.SlowMovers[1]
	assert.Nil(t, unpriced.CurrentPrice)
	assert.Nil(t, unpriced.RecommendedAction.SuggestedPrice)
	assert.Equal(t, int64(0), unpriced.QtySoldInWindow, "sale outside the window")
	require.NotNil(t, unpriced.DaysSinceLastSale)
	assert.Equal(t, 200, *unpriced.DaysSinceLastSale)

	assert.Nil(t, r.SlowMovers[0].DaysSinceLastSale)
	assert.Nil(t, r.SlowMovers[0].LastSaleAt)

	assert.True(t, r.Meta.FilteredByWindow)
	assert.Equal(t, 120, r.Meta.WindowDays)
	assert.Equal(t, testNow, r.Meta.WindowEnd)
	assert.Equal(t, testNow.Add(-120*24*time.Hour), r.Meta.WindowStart)
	assert.Equal(t, RuleV2, r.Meta.Rule)
	assert.Equal(t, Knob{Name: "windowDays", Default: 120, Min: 30, Max: 365}, r.Meta.Bounds["windowDays"])
}

func TestTopSellers_Window(t *testing.T) {
	s := openTestStore(t)
	// Five orders for variant 7 inside 30 days, one for variant 8 at 45 days.
	for i := int64(1); i <= 5; i++ {
		sale(t, s, i, 7, 1, int(i)*5)
	}
	sale(t, s, 6, 8, 10, 45)

	e := newTestEngine(s)

	top, err := e.TopSellers(context.Background(), testStoreID, 30)
	require.NoError(t, err)
	assert.Equal(t, []TopSeller{{VariantID: 7, QtySold: 5}}, top)

	top, err = e.TopSellers(context.Background(), testStoreID, 60)
	require.NoError(t, err)
	assert.Equal(t, []TopSeller{{VariantID: 8, QtySold: 10}, {VariantID: 7, QtySold: 5}}, top)
}

func TestTopSellers_ClampsWindow(t *testing.T) {
	src := &fakeSource{}
	e := newTestEngine(src)

	_, err := e.TopSellers(context.Background(), testStoreID, 9999)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-365*24*time.Hour), src.since)

	_, err = e.TopSellers(context.Background(), testStoreID, -5)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-120*24*time.Hour), src.since)
	assert.Equal(t, testNow, src.until)
}

func TestTopSellers_EmptyStore(t *testing.T) {
	top, err := newTestEngine(openTestStore(t)).TopSellers(context.Background(), testStoreID, 120)
	require.NoError(t, err)
	assert.Empty(t, top)
	assert.NotNil(t, top)
}

func TestSlowMovers_Inclusion(t *testing.T) {
	// stock 25, one sale 90 days ago, price 20.00: qualifies under the
	// defaults with a 5% markdown.
	s := openTestStore(t)
	snapshot(t, s, snap{variantID: 1, price: "20.00", stock: 25})
	sale(t, s, 1, 1, 1, 90)

	rows, err := newTestEngine(s).SlowMovers(context.Background(), testStoreID, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].RecommendedAction.SuggestedPrice)
	assert.Equal(t, "19.00", rows[0].RecommendedAction.SuggestedPrice.String())

	// Selling a second unit in the window disqualifies it.
	sale(t, s, 2, 1, 1, 80)
	rows, err = newTestEngine(s).SlowMovers(context.Background(), testStoreID, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSlowMovers_Ordering(t *testing.T) {
	src := &fakeSource{facts: []store.VariantFacts{
		{VariantID: 1, Stock: 40, Price: "5.00"},
		{VariantID: 2, Stock: 40, Price: "5.00", LastSaleAt: timePtr(daysAgo(100))},
		{VariantID: 3, Stock: 40, Price: "5.00", LastSaleAt: timePtr(daysAgo(300))},
		{VariantID: 4, Stock: 90, Price: "5.00"},
		{VariantID: 5, Stock: 40, Price: "5.00", LastSaleAt: timePtr(daysAgo(100))},
		{VariantID: 0, Stock: 40, Price: "5.00"},
	}}

	rows, err := newTestEngine(src).SlowMovers(context.Background(), testStoreID, DefaultConfig())
	require.NoError(t, err)

	var ids []int64
	for _, r := range rows {
		ids = append(ids, r.VariantID)
	}
	assert.Equal(t, []int64{4, 3, 2, 5, 0, 1}, ids)
}

func TestSlowMovers_Limit(t *testing.T) {
	src := &fakeSource{}
	for i := 0; i < SlowMoversLimit+20; i++ {
		src.facts = append(src.facts, store.VariantFacts{VariantID: int64(i + 1), Stock: 100})
	}

	rows, err := newTestEngine(src).SlowMovers(context.Background(), testStoreID, DefaultConfig())
	require.NoError(t, err)
	assert.Len(t, rows, SlowMoversLimit)
	assert.Equal(t, int64(1), rows[0].VariantID)
}

func TestSlowMovers_SanitizesNegatives(t *testing.T) {
	src := &fakeSource{facts: []store.VariantFacts{
		{VariantID: 1, Stock: -4, Price: "-2.00"},
	}}
	cfg := DefaultConfig()
	cfg.MinStock = 0

	rows, err := newTestEngine(src).SlowMovers(context.Background(), testStoreID, cfg)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(0), rows[0].Stock)
	require.NotNil(t, rows[0].CurrentPrice)
	assert.Equal(t, "0.00", rows[0].CurrentPrice.String())
	assert.Nil(t, rows[0].RecommendedAction.SuggestedPrice)
}

func TestSlowMovers_ActionType(t *testing.T) {
	src := &fakeSource{facts: []store.VariantFacts{{VariantID: 1, Stock: 50, Price: "10.00"}}}
	e := newTestEngine(src)

	for pct, want := range map[int]string{-5: ActionPriceDecrease, 0: ActionNoChange, 12: ActionPriceIncrease} {
		cfg := DefaultConfig()
		cfg.DiscountPct = pct
		rows, err := e.SlowMovers(context.Background(), testStoreID, cfg)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, want, rows[0].RecommendedAction.Type, "pct %d", pct)
	}
}

func TestSlowMovers_RuleV3SkipsFreeVariants(t *testing.T) {
	src := &fakeSource{facts: []store.VariantFacts{
		{VariantID: 1, Stock: 50, Price: "0.00"},
		{VariantID: 2, Stock: 50, Price: "9.00"},
	}}
	cfg := DefaultConfig()
	cfg.Rule = RuleV3

	rows, err := newTestEngine(src).SlowMovers(context.Background(), testStoreID, cfg)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].VariantID)
}

func TestReport_SourceError(t *testing.T) {
	boom := errors.New("disk gone")
	_, err := newTestEngine(&fakeSource{err: boom}).Report(context.Background(), testStoreID, DefaultConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestReport_DoesNotWrite(t *testing.T) {
	s := openTestStore(t)
	seedScenario(t, s)
	before, err := s.Counts(context.Background(), testStoreID, daysAgo(365), testNow)
	require.NoError(t, err)

	_, err = newTestEngine(s).Report(context.Background(), testStoreID, DefaultConfig())
	require.NoError(t, err)

	after, err := s.Counts(context.Background(), testStoreID, daysAgo(365), testNow)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestReport_JSON(t *testing.T) {
	s := openTestStore(t)
	seedScenario(t, s)

	r, err := newTestEngine(s).Report(context.Background(), testStoreID, DefaultConfig())
	require.NoError(t, err)

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "metrics")
	assert.Contains(t, decoded, "top_sellers")
	assert.Contains(t, decoded, "slow_movers")

	meta := decoded["meta"].(map[string]any)
	assert.Equal(t, true, meta["filtered_by_window"])
	assert.Equal(t, float64(120), meta["window_days"])
	bounds := meta["bounds"].(map[string]any)
	assert.Equal(t, map[string]any{"default": float64(-5), "min": float64(-50), "max": float64(50)}, bounds["discountPct"])

	assert.True(t, bytes.Contains(data, []byte(`"suggested_price":18.99`)))
	assert.True(t, bytes.Contains(data, []byte(`"days_since_last_sale":null`)))
}

func TestRecord(t *testing.T) {
	s := openTestStore(t)
	seedScenario(t, s)
	e := newTestEngine(s)

	r, err := e.Report(context.Background(), testStoreID, DefaultConfig())
	require.NoError(t, err)

	n, err := e.Record(context.Background(), s, r)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var (
		count     int
		suggested *string
	)
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM rec_logs WHERE store_id = ?`, testStoreID).Scan(&count))
	assert.Equal(t, 3, count)
	require.NoError(t, s.DB().QueryRow(`SELECT suggested_price FROM rec_logs WHERE variant_id = 104`).Scan(&suggested))
	assert.Nil(t, suggested)
}

func TestRecommendations(t *testing.T) {
	price := NewMoney(model.Amount("12.50").Sanitized())
	r := Report{
		StoreID: testStoreID,
		Meta:    Meta{Rule: RuleV1},
		SlowMovers: []SlowMover{{
			VariantID:         9,
			Stock:             21,
			CurrentPrice:      &price,
			DaysSinceLastSale: intPtr(70),
			RecommendedAction: RecommendedAction{Type: ActionPriceDecrease, DiscountPct: -10, SuggestedPrice: SuggestedPrice(price.Decimal, -10)},
		}},
	}

	recs := r.Recommendations()
	require.Len(t, recs, 1)
	assert.Equal(t, store.Recommendation{
		StoreID:           testStoreID,
		VariantID:         9,
		RuleVersion:       "v1",
		Action:            ActionPriceDecrease,
		DiscountPct:       -10,
		CurrentPrice:      "12.50",
		SuggestedPrice:    "11.25",
		Stock:             21,
		DaysSinceLastSale: intPtr(70),
	}, recs[0])
}
