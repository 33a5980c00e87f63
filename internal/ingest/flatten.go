package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/shelfwise/internal/commerce"
	"github.com/roach88/shelfwise/internal/model"
)

// orderBatch is one page of orders flattened into rows.
type orderBatch struct {
	orders []model.Order
	items  [][]model.OrderItem // items[i] belong to orders[i]
}

// snapshotBatch is one page of products flattened into variant snapshots.
type snapshotBatch struct {
	snapshots []model.VariantSnapshot
}

// pageResult is what a page contributes to the run besides its rows.
type pageResult struct {
	skipped   int
	watermark time.Time // greatest modification time among valid records
	problems  []*MalformedRecordError
}

func (r *pageResult) skip(p *MalformedRecordError) {
	r.skipped++
	r.problems = append(r.problems, p)
}

// flattenOrders converts raw order records. Orders without an id or a
// creation time are skipped. Line items without a variant or with a
// non-positive quantity are dropped (and counted) while the order itself is
// kept. Lines repeating a variant within one order are summed.
func flattenOrders(storeID string, records []json.RawMessage) (orderBatch, pageResult) {
	var (
		batch orderBatch
		res   pageResult
	)

	for i, raw := range records {
		rec, err := commerce.DecodeOrder(raw)
		if err != nil {
			res.skip(&MalformedRecordError{Entity: model.EntityOrders, Index: i, Reason: err.Error()})
			continue
		}
		if rec.ID == nil || *rec.ID <= 0 {
			res.skip(&MalformedRecordError{Entity: model.EntityOrders, Index: i, Reason: "missing id"})
			continue
		}

		createdAt := firstTime(rec.CreatedAt, rec.ProcessedAt)
		if createdAt == nil {
			res.skip(&MalformedRecordError{Entity: model.EntityOrders, Index: i, Reason: "missing created_at"})
			continue
		}
		updatedAt := firstTime(rec.UpdatedAt, createdAt)

		order := model.Order{
			StoreID:           storeID,
			OrderID:           *rec.ID,
			CreatedAt:         createdAt.UTC(),
			UpdatedAt:         updatedAt.UTC(),
			TotalPrice:        model.Amount(rec.TotalPrice),
			Currency:          rec.Currency,
			FinancialStatus:   rec.FinancialStatus,
			FulfillmentStatus: rec.FulfillmentStatus,
		}

		var (
			items []model.OrderItem
			index = make(map[int64]int)
		)
		for j, li := range rec.LineItems {
			if li.VariantID == nil || *li.VariantID <= 0 {
				res.skip(&MalformedRecordError{Entity: model.EntityOrders, Index: i, Reason: lineReason(j, "missing variant_id")})
				continue
			}
			if li.Quantity <= 0 {
				res.skip(&MalformedRecordError{Entity: model.EntityOrders, Index: i, Reason: lineReason(j, "non-positive quantity")})
				continue
			}
			if k, ok := index[*li.VariantID]; ok {
				items[k].Quantity += li.Quantity
				continue
			}
			index[*li.VariantID] = len(items)
			items = append(items, model.OrderItem{
				StoreID:   storeID,
				OrderID:   order.OrderID,
				VariantID: *li.VariantID,
				Quantity:  li.Quantity,
			})
		}

		batch.orders = append(batch.orders, order)
		batch.items = append(batch.items, items)
		res.watermark = model.MaxTime(res.watermark, order.UpdatedAt)
	}

	return batch, res
}

// flattenProducts converts raw product records into one snapshot per variant,
// all captured at capturedAt. Variants without an id, or without any product
// id, are skipped.
func flattenProducts(storeID string, records []json.RawMessage, capturedAt time.Time) (snapshotBatch, pageResult) {
	var (
		batch snapshotBatch
		res   pageResult
	)

	for i, raw := range records {
		rec, err := commerce.DecodeProduct(raw)
		if err != nil {
			res.skip(&MalformedRecordError{Entity: model.EntityVariants, Index: i, Reason: err.Error()})
			continue
		}

		productTitle := normalizeTitle(rec.Title)
		valid := false
		for j, v := range rec.Variants {
			if v.ID == nil || *v.ID <= 0 {
				res.skip(&MalformedRecordError{Entity: model.EntityVariants, Index: i, Reason: lineReason(j, "missing variant id")})
				continue
			}
			productID := v.ProductID
			if productID == nil {
				productID = rec.ID
			}
			if productID == nil {
				res.skip(&MalformedRecordError{Entity: model.EntityVariants, Index: i, Reason: lineReason(j, "missing product id")})
				continue
			}

			batch.snapshots = append(batch.snapshots, model.VariantSnapshot{
				StoreID:           storeID,
				VariantID:         *v.ID,
				ProductID:         *productID,
				Price:             model.Amount(v.Price),
				InventoryQuantity: v.InventoryQuantity,
				CapturedAt:        capturedAt,
				ProductTitle:      productTitle,
				VariantTitle:      normalizeTitle(v.Title),
			})
			valid = true
			if v.UpdatedAt != nil {
				res.watermark = model.MaxTime(res.watermark, v.UpdatedAt.UTC())
			}
		}

		if valid && rec.UpdatedAt != nil {
			res.watermark = model.MaxTime(res.watermark, rec.UpdatedAt.UTC())
		}
	}

	return batch, res
}

// normalizeTitle trims and NFC-normalizes a display title so that visually
// identical titles compare equal regardless of how upstream composed them.
func normalizeTitle(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func firstTime(ts ...*time.Time) *time.Time {
	for _, t := range ts {
		if t != nil && !t.IsZero() {
			return t
		}
	}
	return nil
}

func lineReason(line int, reason string) string {
	return fmt.Sprintf("line %d: %s", line, reason)
}
