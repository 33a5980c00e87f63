package analytics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/shelfwise/internal/model"
	"github.com/roach88/shelfwise/internal/store"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

const testStoreID = "shop-1"

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "analytics.db"),
		store.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(src Source) *Engine {
	return New(src, WithClock(func() time.Time { return testNow }))
}

func daysAgo(n int) time.Time {
	return testNow.AddDate(0, 0, -n)
}

// sale writes an order created daysAgo days before testNow with one line.
func sale(t *testing.T, s *store.Store, orderID, variantID, qty int64, ago int) {
	t.Helper()
	ctx := context.Background()
	created := daysAgo(ago)
	require.NoError(t, s.UpsertOrder(ctx, model.Order{
		StoreID:    testStoreID,
		OrderID:    orderID,
		CreatedAt:  created,
		UpdatedAt:  created,
		TotalPrice: "10.00",
		Currency:   "USD",
	}))
	require.NoError(t, s.UpsertOrderItem(ctx, model.OrderItem{
		StoreID: testStoreID, OrderID: orderID, VariantID: variantID, Quantity: qty,
	}))
}

type snap struct {
	variantID int64
	price     model.Amount
	stock     int64
	product   string
	variant   string
	at        time.Time
}

func snapshot(t *testing.T, s *store.Store, sn snap) {
	t.Helper()
	at := sn.at
	if at.IsZero() {
		at = testNow.Add(-time.Hour)
	}
	require.NoError(t, s.InsertVariantSnapshot(context.Background(), model.VariantSnapshot{
		StoreID:           testStoreID,
		VariantID:         sn.variantID,
		ProductID:         sn.variantID * 10,
		Price:             sn.price,
		InventoryQuantity: sn.stock,
		CapturedAt:        at,
		ProductTitle:      sn.product,
		VariantTitle:      sn.variant,
	}))
}

// seedScenario writes a small catalogue:
//
//	101 best seller (3 units, 10 days ago), stock 50
//	102 one unit 90 days ago, stock 30 (older snapshot had 999)
//	103 never sold, stock 80
//	104 two units 200 days ago, no price, stock 30
//	105 never sold, stock 5
func seedScenario(t *testing.T, s *store.Store) {
	t.Helper()
	snapshot(t, s, snap{variantID: 101, price: "25.00", stock: 50, product: "Wool Socks", variant: "Large"})
	snapshot(t, s, snap{variantID: 102, price: "35.00", stock: 999, product: "Canvas Tote", variant: "Natural", at: daysAgo(30)})
	snapshot(t, s, snap{variantID: 102, price: "40.00", stock: 30, product: "Canvas Tote", variant: "Natural"})
	snapshot(t, s, snap{variantID: 103, price: "19.99", stock: 80, product: "Gift Card", variant: "Default Title"})
	snapshot(t, s, snap{variantID: 104, stock: 30})
	snapshot(t, s, snap{variantID: 105, price: "12.00", stock: 5, product: "Enamel Pin"})

	sale(t, s, 1, 101, 3, 10)
	sale(t, s, 2, 102, 1, 90)
	sale(t, s, 3, 104, 2, 200)
}

// fakeSource serves canned facts.
type fakeSource struct {
	sales  []store.VariantSales
	facts  []store.VariantFacts
	counts store.Counts
	err    error

	since, until time.Time
}

func (f *fakeSource) TopSellers(_ context.Context, _ string, since, until time.Time, limit int) ([]store.VariantSales, error) {
	f.since, f.until = since, until
	if f.err != nil {
		return nil, f.err
	}
	if len(f.sales) > limit {
		return f.sales[:limit], nil
	}
	return f.sales, nil
}

func (f *fakeSource) VariantFacts(_ context.Context, _ string, since, until time.Time) ([]store.VariantFacts, error) {
	f.since, f.until = since, until
	if f.err != nil {
		return nil, f.err
	}
	return f.facts, nil
}

func (f *fakeSource) Counts(_ context.Context, _ string, since, until time.Time) (store.Counts, error) {
	f.since, f.until = since, until
	if f.err != nil {
		return store.Counts{}, f.err
	}
	return f.counts, nil
}

func timePtr(t time.Time) *time.Time { return &t }

func intPtr(n int) *int { return &n }
