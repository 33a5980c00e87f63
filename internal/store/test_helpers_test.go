package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/shelfwise/internal/model"
)

// testNow is the fixed clock used by createTestStore.
var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	s, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestOrder creates an order created daysAgo days before testNow.
func createTestOrder(storeID string, orderID int64, daysAgo int) model.Order {
	created := testNow.AddDate(0, 0, -daysAgo)
	return model.Order{
		StoreID:    storeID,
		OrderID:    orderID,
		CreatedAt:  created,
		UpdatedAt:  created,
		TotalPrice: "10.00",
		Currency:   "USD",
	}
}

// seedSale writes an order with a single line item.
func seedSale(t *testing.T, s *Store, storeID string, orderID, variantID, qty int64, daysAgo int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertOrder(ctx, createTestOrder(storeID, orderID, daysAgo)))
	require.NoError(t, s.UpsertOrderItem(ctx, model.OrderItem{
		StoreID: storeID, OrderID: orderID, VariantID: variantID, Quantity: qty,
	}))
}

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
