package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/shelfwise/internal/model"
)

// VariantSales is the quantity of one variant sold in a window.
type VariantSales struct {
	VariantID int64
	Quantity  int64
}

// VariantFacts joins a variant's latest snapshot with its sales history.
type VariantFacts struct {
	VariantID    int64
	ProductID    int64
	Price        model.Amount
	Stock        int64
	CapturedAt   time.Time
	ProductTitle string
	VariantTitle string

	// QtySoldInWindow sums positive item quantities on orders created in
	// the window.
	QtySoldInWindow int64

	// LastSaleAt is the creation time of the newest order containing the
	// variant, regardless of window. nil means never sold.
	LastSaleAt *time.Time
}

// Counts are store-wide totals reported alongside analytics.
type Counts struct {
	OrdersInDB               int64
	UniqueVariantsSoldWindow int64
	VariantSnapshotsTotal    int64
}

// TopSellers sums item quantities per variant over orders created in
// [since, until], ordered by quantity descending then variant id ascending.
// Non-positive quantities do not count as sales.
func (s *Store) TopSellers(ctx context.Context, storeID string, since, until time.Time, limit int) ([]VariantSales, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT oi.variant_id, SUM(oi.quantity) AS qty
		FROM order_items oi
		JOIN orders o ON o.store_id = oi.store_id AND o.order_id = oi.order_id
		WHERE oi.store_id = ?
		  AND oi.quantity > 0
		  AND o.created_at >= ? AND o.created_at <= ?
		GROUP BY oi.variant_id
		ORDER BY qty DESC, oi.variant_id ASC
		LIMIT ?
	`, storeID, formatTime(since), formatTime(until), limit)
	if err != nil {
		return nil, fmt.Errorf("top sellers %s: %w", storeID, err)
	}
	defer rows.Close()

	out := []VariantSales{}
	for rows.Next() {
		var vs VariantSales
		if err := rows.Scan(&vs.VariantID, &vs.Quantity); err != nil {
			return nil, fmt.Errorf("top sellers %s: %w", storeID, err)
		}
		out = append(out, vs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top sellers %s: %w", storeID, err)
	}
	return out, nil
}

// VariantFacts returns one row per variant that has at least one snapshot,
// built from its latest snapshot (greatest captured_at, ties broken by
// insertion order) and its sales. Rows are ordered by variant id.
func (s *Store) VariantFacts(ctx context.Context, storeID string, since, until time.Time) ([]VariantFacts, error) {
	titles := "NULL, NULL"
	if s.caps.SnapshotTitles {
		titles = "l.product_title, l.variant_title"
	}
	latestTitles := ""
	if s.caps.SnapshotTitles {
		latestTitles = ", product_title, variant_title"
	}

	query := `
		WITH latest AS (
			SELECT variant_id, product_id, price, inventory_quantity, captured_at` + latestTitles + `,
			       ROW_NUMBER() OVER (
			           PARTITION BY variant_id
			           ORDER BY captured_at DESC, id DESC
			       ) AS rn
			FROM variant_snapshots
			WHERE store_id = ?
		),
		sales AS (
			SELECT oi.variant_id,
			       SUM(CASE WHEN o.created_at >= ? AND o.created_at <= ? THEN oi.quantity ELSE 0 END) AS qty_window,
			       MAX(o.created_at) AS last_sale
			FROM order_items oi
			JOIN orders o ON o.store_id = oi.store_id AND o.order_id = oi.order_id
			WHERE oi.store_id = ? AND oi.quantity > 0
			GROUP BY oi.variant_id
		)
		SELECT l.variant_id, l.product_id, l.price, l.inventory_quantity, l.captured_at,
		       ` + titles + `,
		       COALESCE(sa.qty_window, 0), sa.last_sale
		FROM latest l
		LEFT JOIN sales sa ON sa.variant_id = l.variant_id
		WHERE l.rn = 1
		ORDER BY l.variant_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, storeID, formatTime(since), formatTime(until), storeID)
	if err != nil {
		return nil, fmt.Errorf("variant facts %s: %w", storeID, err)
	}
	defer rows.Close()

	out := []VariantFacts{}
	for rows.Next() {
		var (
			f            VariantFacts
			price        sql.NullString
			capturedAt   string
			productTitle sql.NullString
			variantTitle sql.NullString
			lastSale     sql.NullString
		)
		if err := rows.Scan(
			&f.VariantID, &f.ProductID, &price, &f.Stock, &capturedAt,
			&productTitle, &variantTitle, &f.QtySoldInWindow, &lastSale,
		); err != nil {
			return nil, fmt.Errorf("variant facts %s: %w", storeID, err)
		}
		f.Price = model.Amount(price.String)
		f.ProductTitle = productTitle.String
		f.VariantTitle = variantTitle.String
		if f.CapturedAt, err = model.ParseTimestamp(capturedAt); err != nil {
			return nil, fmt.Errorf("variant facts %s: %w", storeID, err)
		}
		if f.LastSaleAt, err = parseNullTime(lastSale); err != nil {
			return nil, fmt.Errorf("variant facts %s: %w", storeID, err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("variant facts %s: %w", storeID, err)
	}
	return out, nil
}

// Counts returns store-wide totals. UniqueVariantsSoldWindow counts
// distinct variants with a positive quantity on orders in [since, until].
func (s *Store) Counts(ctx context.Context, storeID string, since, until time.Time) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM orders WHERE store_id = ?),
			(SELECT COUNT(DISTINCT oi.variant_id)
			   FROM order_items oi
			   JOIN orders o ON o.store_id = oi.store_id AND o.order_id = oi.order_id
			  WHERE oi.store_id = ? AND oi.quantity > 0
			    AND o.created_at >= ? AND o.created_at <= ?),
			(SELECT COUNT(*) FROM variant_snapshots WHERE store_id = ?)
	`, storeID, storeID, formatTime(since), formatTime(until), storeID).Scan(
		&c.OrdersInDB, &c.UniqueVariantsSoldWindow, &c.VariantSnapshotsTotal,
	)
	if err != nil {
		return Counts{}, fmt.Errorf("counts %s: %w", storeID, err)
	}
	return c, nil
}
