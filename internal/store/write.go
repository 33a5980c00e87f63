package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/shelfwise/internal/model"
)

// Writer is the set of ingestion writes. Both *Store (each statement
// autocommits) and the transaction handed to InTx implement it.
type Writer interface {
	UpsertOrder(ctx context.Context, o model.Order) error
	UpsertOrderItem(ctx context.Context, i model.OrderItem) error
	InsertVariantSnapshot(ctx context.Context, vs model.VariantSnapshot) error
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// rowWriter implements Writer over any execer.
type rowWriter struct {
	ex   execer
	caps Capabilities
	now  func() time.Time
}

var (
	_ Writer = (*Store)(nil)
	_ Writer = rowWriter{}
)

func (s *Store) writer() rowWriter {
	return rowWriter{ex: s.db, caps: s.caps, now: s.now}
}

// UpsertOrder inserts an order or refreshes its mutable fields.
// created_at is written only on first insert. An update carrying an older
// updated_at than the stored row is ignored, so a stale run cannot roll an
// order back.
func (s *Store) UpsertOrder(ctx context.Context, o model.Order) error {
	return s.writer().UpsertOrder(ctx, o)
}

// UpsertOrderItem inserts an order line or replaces its quantity
// (last write wins). The order must already exist.
func (s *Store) UpsertOrderItem(ctx context.Context, i model.OrderItem) error {
	return s.writer().UpsertOrderItem(ctx, i)
}

// InsertVariantSnapshot appends a snapshot. Snapshots are never updated.
// A zero CapturedAt is replaced with the store clock.
func (s *Store) InsertVariantSnapshot(ctx context.Context, vs model.VariantSnapshot) error {
	return s.writer().InsertVariantSnapshot(ctx, vs)
}

// InTx runs fn inside a single transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(w Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(rowWriter{ex: tx, caps: s.caps, now: s.now}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (w rowWriter) UpsertOrder(ctx context.Context, o model.Order) error {
	_, err := w.ex.ExecContext(ctx, `
		INSERT INTO orders
		(store_id, order_id, created_at, updated_at, total_price, currency, financial_status, fulfillment_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(store_id, order_id) DO UPDATE SET
			updated_at         = excluded.updated_at,
			total_price        = excluded.total_price,
			currency           = excluded.currency,
			financial_status   = excluded.financial_status,
			fulfillment_status = excluded.fulfillment_status
		WHERE excluded.updated_at >= orders.updated_at
	`,
		o.StoreID,
		o.OrderID,
		formatTime(o.CreatedAt),
		formatTime(o.UpdatedAt),
		nullString(string(o.TotalPrice)),
		o.Currency,
		o.FinancialStatus,
		o.FulfillmentStatus,
	)
	if err != nil {
		return fmt.Errorf("upsert order %d: %w", o.OrderID, err)
	}
	return nil
}

func (w rowWriter) UpsertOrderItem(ctx context.Context, i model.OrderItem) error {
	_, err := w.ex.ExecContext(ctx, `
		INSERT INTO order_items (store_id, order_id, variant_id, quantity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(store_id, order_id, variant_id) DO UPDATE SET
			quantity = excluded.quantity
	`, i.StoreID, i.OrderID, i.VariantID, i.Quantity)
	if err != nil {
		return fmt.Errorf("upsert order item %d/%d: %w", i.OrderID, i.VariantID, err)
	}
	return nil
}

func (w rowWriter) InsertVariantSnapshot(ctx context.Context, vs model.VariantSnapshot) error {
	capturedAt := vs.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = w.now()
	}

	var err error
	if w.caps.SnapshotTitles {
		_, err = w.ex.ExecContext(ctx, `
			INSERT INTO variant_snapshots
			(store_id, variant_id, product_id, price, inventory_quantity, captured_at, product_title, variant_title)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			vs.StoreID,
			vs.VariantID,
			vs.ProductID,
			nullString(string(vs.Price)),
			vs.InventoryQuantity,
			formatTime(capturedAt),
			nullString(vs.ProductTitle),
			nullString(vs.VariantTitle),
		)
	} else {
		_, err = w.ex.ExecContext(ctx, `
			INSERT INTO variant_snapshots
			(store_id, variant_id, product_id, price, inventory_quantity, captured_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			vs.StoreID,
			vs.VariantID,
			vs.ProductID,
			nullString(string(vs.Price)),
			vs.InventoryQuantity,
			formatTime(capturedAt),
		)
	}
	if err != nil {
		return fmt.Errorf("insert variant snapshot %d: %w", vs.VariantID, err)
	}
	return nil
}

// WriteCursor advances the cursor for (storeID, entity) to watermark unless
// the stored cursor is already at or past it. The comparison happens inside
// the upsert, so concurrent writers converge on the maximum value.
//
// Returns true if the stored cursor moved.
func (s *Store) WriteCursor(ctx context.Context, storeID string, entity model.EntityType, watermark time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (store_id, entity_type, cursor, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(store_id, entity_type) DO UPDATE SET
			cursor     = excluded.cursor,
			updated_at = excluded.updated_at
		WHERE excluded.cursor > sync_state.cursor
	`, storeID, string(entity), formatTime(watermark), formatTime(s.now()))
	if err != nil {
		return false, fmt.Errorf("write cursor %s/%s: %w", storeID, entity, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write cursor %s/%s: %w", storeID, entity, err)
	}
	return n > 0, nil
}

// UpsertStore records a storefront and its credential. Re-connecting an
// existing store replaces the credential.
func (s *Store) UpsertStore(ctx context.Context, storeID, credential string) error {
	now := formatTime(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (store_id, credential, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(store_id) DO UPDATE SET
			credential = excluded.credential,
			updated_at = excluded.updated_at
	`, storeID, nullString(credential), now, now)
	if err != nil {
		return fmt.Errorf("upsert store %s: %w", storeID, err)
	}
	return nil
}

// DisconnectStore clears a store's credential. Synchronised data is kept.
func (s *Store) DisconnectStore(ctx context.Context, storeID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stores SET credential = NULL, updated_at = ? WHERE store_id = ?
	`, formatTime(s.now()), storeID)
	if err != nil {
		return fmt.Errorf("disconnect store %s: %w", storeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("disconnect store %s: %w", storeID, err)
	}
	if n == 0 {
		return fmt.Errorf("disconnect store %s: %w", storeID, ErrStoreNotFound)
	}
	return nil
}

// RecordRun appends a run to the sync ledger. It is a no-op when the schema
// has no ledger. Callers do not record dry runs.
func (s *Store) RecordRun(ctx context.Context, run model.SyncRun) error {
	if !s.caps.SyncRuns {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs
		(run_id, store_id, entity_type, status, pages, fetched, upserted, skipped,
		 cursor_before, cursor_after, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		run.RunID,
		run.StoreID,
		string(run.Entity),
		string(run.Status),
		run.Pages,
		run.Fetched,
		run.Upserted,
		run.Skipped,
		nullTime(run.CursorBefore),
		nullTime(run.CursorAfter),
		nullString(run.Error),
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.RunID, err)
	}
	return nil
}

// Recommendation is one logged slow-mover recommendation.
type Recommendation struct {
	StoreID           string
	VariantID         int64
	RuleVersion       string
	Action            string
	DiscountPct       int
	CurrentPrice      string // "" when unknown
	SuggestedPrice    string // "" when no price could be suggested
	Stock             int64
	QtySoldInWindow   int64
	DaysSinceLastSale *int
}

// RecordRecommendations appends recs to rec_logs in one transaction, all
// stamped with the same creation time.
func (s *Store) RecordRecommendations(ctx context.Context, recs []Recommendation) error {
	if !s.caps.RecLogs {
		return fmt.Errorf("record recommendations: %w", ErrUnsupported)
	}
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record recommendations: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(s.now())
	for _, r := range recs {
		var days sql.NullInt64
		if r.DaysSinceLastSale != nil {
			days = sql.NullInt64{Int64: int64(*r.DaysSinceLastSale), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rec_logs
			(store_id, variant_id, rule_version, action, discount_pct, current_price,
			 suggested_price, stock, qty_sold_window, days_since_last_sale, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			r.StoreID,
			r.VariantID,
			r.RuleVersion,
			r.Action,
			r.DiscountPct,
			nullString(r.CurrentPrice),
			nullString(r.SuggestedPrice),
			r.Stock,
			r.QtySoldInWindow,
			days,
			now,
		)
		if err != nil {
			return fmt.Errorf("record recommendation for variant %d: %w", r.VariantID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record recommendations: commit: %w", err)
	}
	return nil
}
