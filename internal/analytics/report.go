package analytics

import (
	"time"

	"github.com/roach88/shelfwise/internal/store"
)

// Recommendation types, chosen by the sign of the discount.
const (
	ActionPriceDecrease = "price_decrease"
	ActionPriceIncrease = "price_increase"
	ActionNoChange      = "no_change"
)

// TopSeller is one row of the top-sellers report.
type TopSeller struct {
	VariantID int64 `json:"variant_id"`
	QtySold   int64 `json:"qty_sold"`
}

// RecommendedAction is the markdown suggested for a slow mover.
type RecommendedAction struct {
	Type           string `json:"type"`
	DiscountPct    int    `json:"discount_pct"`
	SuggestedPrice *Money `json:"suggested_price"`
}

// SlowMover is one row of the slow-movers report.
type SlowMover struct {
	VariantID    int64  `json:"variant_id"`
	ProductID    int64  `json:"product_id"`
	ProductTitle string `json:"product_title,omitempty"`
	VariantTitle string `json:"variant_title,omitempty"`

	// CurrentPrice is nil when the latest snapshot has no usable price.
	CurrentPrice *Money `json:"current_price"`

	Stock           int64      `json:"stock"`
	QtySoldInWindow int64      `json:"qty_sold_in_window"`
	LastSaleAt      *time.Time `json:"last_sale_at"`

	// DaysSinceLastSale is nil when the variant never sold.
	DaysSinceLastSale *int      `json:"days_since_last_sale"`
	SnapshotAt        time.Time `json:"snapshot_at"`

	RecommendedAction RecommendedAction `json:"recommended_action"`
}

// Metrics are store-wide counters reported with every report.
type Metrics struct {
	OrdersInDB               int64 `json:"orders_in_db"`
	UniqueVariantsSoldWindow int64 `json:"unique_variants_sold_window"`
	VariantSnapshotsTotal    int64 `json:"variant_snapshots_total"`
}

// KnobValues are the effective (bounded) knob values used for a report.
type KnobValues struct {
	MinStock         int `json:"minStock"`
	InactivityDays   int `json:"inactivityDays"`
	DiscountPct      int `json:"discountPct"`
	MaxSalesInWindow int `json:"maxSalesInWindow"`
}

// Meta describes how a report was computed.
type Meta struct {
	FilteredByWindow bool            `json:"filtered_by_window"`
	WindowDays       int             `json:"window_days"`
	WindowStart      time.Time       `json:"window_start"`
	WindowEnd        time.Time       `json:"window_end"`
	Rule             RuleVersion     `json:"rule"`
	Knobs            KnobValues      `json:"knobs"`
	Bounds           map[string]Knob `json:"bounds"`
}

// Report is the full analytics response for one store.
type Report struct {
	StoreID    string      `json:"store_id"`
	Metrics    Metrics     `json:"metrics"`
	TopSellers []TopSeller `json:"top_sellers"`
	SlowMovers []SlowMover `json:"slow_movers"`
	Meta       Meta        `json:"meta"`
}

// Recommendations converts the report's slow movers into rec_logs rows.
func (r Report) Recommendations() []store.Recommendation {
	recs := make([]store.Recommendation, 0, len(r.SlowMovers))
	for _, sm := range r.SlowMovers {
		rec := store.Recommendation{
			StoreID:           r.StoreID,
			VariantID:         sm.VariantID,
			RuleVersion:       string(r.Meta.Rule),
			Action:            sm.RecommendedAction.Type,
			DiscountPct:       sm.RecommendedAction.DiscountPct,
			Stock:             sm.Stock,
			QtySoldInWindow:   sm.QtySoldInWindow,
			DaysSinceLastSale: sm.DaysSinceLastSale,
		}
		if sm.CurrentPrice != nil {
			rec.CurrentPrice = sm.CurrentPrice.String()
		}
		if sm.RecommendedAction.SuggestedPrice != nil {
			rec.SuggestedPrice = sm.RecommendedAction.SuggestedPrice.String()
		}
		recs = append(recs, rec)
	}
	return recs
}

func actionType(pct int) string {
	switch {
	case pct < 0:
		return ActionPriceDecrease
	case pct > 0:
		return ActionPriceIncrease
	default:
		return ActionNoChange
	}
}

func bounds() map[string]Knob {
	m := make(map[string]Knob, len(Knobs))
	for _, k := range Knobs {
		m[k.Name] = k
	}
	return m
}
