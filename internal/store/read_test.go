package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelfwise/internal/model"
)

func TestListStores(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertStore(ctx, "b-shop", "tok"))
	require.NoError(t, s.UpsertStore(ctx, "a-shop", ""))

	stores, err := s.ListStores(ctx)
	require.NoError(t, err)
	require.Len(t, stores, 2)
	assert.Equal(t, "a-shop", stores[0].ID)
	assert.False(t, stores[0].Authorized())
	assert.Equal(t, "b-shop", stores[1].ID)
	assert.True(t, stores[1].Authorized())
	assert.NotEqual(t, "tok", *stores[1].Credential, "credential must not be listed")
}

func TestTopSellers_Window(t *testing.T) {
	s := createTestStore(t)
	seedSale(t, s, "shop", 1, 10, 1, 10)
	seedSale(t, s, "shop", 2, 20, 1, 50)
	seedSale(t, s, "shop", 3, 30, 1, 200)

	got, err := s.TopSellers(context.Background(), "shop", testNow.AddDate(0, 0, -60), testNow, 10)
	require.NoError(t, err)

	assert.Equal(t, []VariantSales{{VariantID: 10, Quantity: 1}, {VariantID: 20, Quantity: 1}}, got)
}

func TestTopSellers_OrderingAndLimit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedSale(t, s, "shop", 1, 30, 2, 1)
	seedSale(t, s, "shop", 2, 20, 5, 1)
	seedSale(t, s, "shop", 3, 10, 2, 1)
	require.NoError(t, s.UpsertOrderItem(ctx, model.OrderItem{StoreID: "shop", OrderID: 3, VariantID: 40, Quantity: 0}))
	seedSale(t, s, "other", 4, 99, 100, 1)

	got, err := s.TopSellers(ctx, "shop", testNow.AddDate(0, 0, -30), testNow, 2)
	require.NoError(t, err)

	assert.Equal(t, []VariantSales{{VariantID: 20, Quantity: 5}, {VariantID: 10, Quantity: 2}}, got)
}

func TestTopSellers_Empty(t *testing.T) {
	s := createTestStore(t)

	got, err := s.TopSellers(context.Background(), "shop", testNow.AddDate(0, 0, -30), testNow, 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestVariantFacts_LatestSnapshotAndSales(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	older := model.VariantSnapshot{StoreID: "shop", VariantID: 55, ProductID: 9, Price: "12.00",
		InventoryQuantity: 40, CapturedAt: testNow.Add(-48 * time.Hour)}
	newer := model.VariantSnapshot{StoreID: "shop", VariantID: 55, ProductID: 9, Price: "10.00",
		InventoryQuantity: 30, CapturedAt: testNow.Add(-time.Hour), ProductTitle: "Mug", VariantTitle: "Blue"}
	// Inserted out of order: captured_at decides, not insertion order.
	require.NoError(t, s.InsertVariantSnapshot(ctx, newer))
	require.NoError(t, s.InsertVariantSnapshot(ctx, older))
	require.NoError(t, s.InsertVariantSnapshot(ctx, model.VariantSnapshot{
		StoreID: "shop", VariantID: 56, ProductID: 9, InventoryQuantity: 5, CapturedAt: testNow,
	}))

	seedSale(t, s, "shop", 1, 55, 3, 10)
	seedSale(t, s, "shop", 2, 55, 4, 100)

	facts, err := s.VariantFacts(ctx, "shop", testNow.AddDate(0, 0, -30), testNow)
	require.NoError(t, err)
	require.Len(t, facts, 2)

	f := facts[0]
	assert.Equal(t, int64(55), f.VariantID)
	assert.Equal(t, model.Amount("10.00"), f.Price)
	assert.Equal(t, int64(30), f.Stock)
	assert.Equal(t, "Mug", f.ProductTitle)
	assert.Equal(t, "Blue", f.VariantTitle)
	assert.Equal(t, int64(3), f.QtySoldInWindow, "only the in-window order counts")
	require.NotNil(t, f.LastSaleAt)
	assert.True(t, f.LastSaleAt.Equal(testNow.AddDate(0, 0, -10)))

	never := facts[1]
	assert.Equal(t, int64(56), never.VariantID)
	assert.Equal(t, model.Amount(""), never.Price)
	assert.Equal(t, int64(0), never.QtySoldInWindow)
	assert.Nil(t, never.LastSaleAt)
}

func TestVariantFacts_LastSaleOutsideWindow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertVariantSnapshot(ctx, model.VariantSnapshot{
		StoreID: "shop", VariantID: 7, ProductID: 1, InventoryQuantity: 25, CapturedAt: testNow,
	}))
	seedSale(t, s, "shop", 1, 7, 2, 300)

	facts, err := s.VariantFacts(ctx, "shop", testNow.AddDate(0, 0, -30), testNow)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, int64(0), facts[0].QtySoldInWindow)
	require.NotNil(t, facts[0].LastSaleAt)
	assert.True(t, facts[0].LastSaleAt.Equal(testNow.AddDate(0, 0, -300)))
}

func TestCounts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedSale(t, s, "shop", 1, 55, 3, 10)
	seedSale(t, s, "shop", 2, 56, 1, 200)
	require.NoError(t, s.UpsertOrder(ctx, createTestOrder("shop", 3, 1)))
	require.NoError(t, s.InsertVariantSnapshot(ctx, model.VariantSnapshot{StoreID: "shop", VariantID: 55, ProductID: 1}))

	c, err := s.Counts(ctx, "shop", testNow.AddDate(0, 0, -30), testNow)
	require.NoError(t, err)
	assert.Equal(t, Counts{OrdersInDB: 3, UniqueVariantsSoldWindow: 1, VariantSnapshotsTotal: 1}, c)
}
