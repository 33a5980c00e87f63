package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/shelfwise/internal/model"
	"github.com/roach88/shelfwise/internal/store"
)

// Report sizes.
const (
	TopSellersLimit = 10
	SlowMoversLimit = 100
)

const day = 24 * time.Hour

// Source is the read side of the store the engine aggregates over.
// Implemented by *store.Store.
type Source interface {
	TopSellers(ctx context.Context, storeID string, since, until time.Time, limit int) ([]store.VariantSales, error)
	VariantFacts(ctx context.Context, storeID string, since, until time.Time) ([]store.VariantFacts, error)
	Counts(ctx context.Context, storeID string, since, until time.Time) (store.Counts, error)
}

// Recorder persists recommendations. Implemented by *store.Store.
type Recorder interface {
	RecordRecommendations(ctx context.Context, recs []store.Recommendation) error
}

// Engine computes windowed sales analytics from persisted state. Every
// operation except Record is a pure read and may run alongside a sync.
type Engine struct {
	src    Source
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the wall clock that anchors the window. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Engine over src.
func New(src Source, opts ...Option) *Engine {
	e := &Engine{
		src:    src,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// window returns [now - days, now] in UTC.
func (e *Engine) window(days int) (since, until time.Time) {
	until = e.now().UTC()
	return until.Add(-time.Duration(days) * day), until
}

// TopSellers returns up to TopSellersLimit variants by quantity sold on
// orders created within the last windowDays days. windowDays is clamped.
func (e *Engine) TopSellers(ctx context.Context, storeID string, windowDays int) ([]TopSeller, error) {
	since, until := e.window(WindowDays.Clamp(windowDays))
	return e.topSellers(ctx, storeID, since, until)
}

func (e *Engine) topSellers(ctx context.Context, storeID string, since, until time.Time) ([]TopSeller, error) {
	sales, err := e.src.TopSellers(ctx, storeID, since, until, TopSellersLimit)
	if err != nil {
		return nil, fmt.Errorf("top sellers: %w", err)
	}
	out := make([]TopSeller, 0, len(sales))
	for _, s := range sales {
		out = append(out, TopSeller{VariantID: s.VariantID, QtySold: s.Quantity})
	}
	return out, nil
}

// SlowMovers returns up to SlowMoversLimit variants that qualify under
// cfg.Rule, ordered by stock descending, then by last sale oldest first with
// never-sold variants after all sold ones, then by variant id. cfg is
// bounded before use.
func (e *Engine) SlowMovers(ctx context.Context, storeID string, cfg Config) ([]SlowMover, error) {
	cfg = cfg.Bounded()
	since, until := e.window(cfg.WindowDays)
	return e.slowMovers(ctx, storeID, cfg, since, until)
}

func (e *Engine) slowMovers(ctx context.Context, storeID string, cfg Config, since, until time.Time) ([]SlowMover, error) {
	facts, err := e.src.VariantFacts(ctx, storeID, since, until)
	if err != nil {
		return nil, fmt.Errorf("slow movers: %w", err)
	}

	out := []SlowMover{}
	for _, vf := range facts {
		price := vf.Price.Sanitized()
		f := Facts{
			Stock:             model.NonNegative(vf.Stock),
			QtySoldInWindow:   model.NonNegative(vf.QtySoldInWindow),
			DaysSinceLastSale: daysSince(vf.LastSaleAt, until),
			Price:             price,
		}
		if !cfg.Rule.Qualifies(cfg, f) {
			continue
		}

		sm := SlowMover{
			VariantID:         vf.VariantID,
			ProductID:         vf.ProductID,
			ProductTitle:      vf.ProductTitle,
			VariantTitle:      vf.VariantTitle,
			Stock:             f.Stock,
			QtySoldInWindow:   f.QtySoldInWindow,
			LastSaleAt:        vf.LastSaleAt,
			DaysSinceLastSale: f.DaysSinceLastSale,
			SnapshotAt:        vf.CapturedAt,
			RecommendedAction: RecommendedAction{
				Type:           actionType(cfg.DiscountPct),
				DiscountPct:    cfg.DiscountPct,
				SuggestedPrice: SuggestedPrice(price, cfg.DiscountPct),
			},
		}
		if _, ok := vf.Price.Decimal(); ok {
			m := NewMoney(price)
			sm.CurrentPrice = &m
		}
		out = append(out, sm)
	}

	sortSlowMovers(out)
	if len(out) > SlowMoversLimit {
		out = out[:SlowMoversLimit]
	}
	return out, nil
}

// Report computes metrics, top sellers and slow movers over one window.
func (e *Engine) Report(ctx context.Context, storeID string, cfg Config) (Report, error) {
	cfg = cfg.Bounded()
	since, until := e.window(cfg.WindowDays)

	counts, err := e.src.Counts(ctx, storeID, since, until)
	if err != nil {
		return Report{}, fmt.Errorf("report %s: %w", storeID, err)
	}
	top, err := e.topSellers(ctx, storeID, since, until)
	if err != nil {
		return Report{}, fmt.Errorf("report %s: %w", storeID, err)
	}
	slow, err := e.slowMovers(ctx, storeID, cfg, since, until)
	if err != nil {
		return Report{}, fmt.Errorf("report %s: %w", storeID, err)
	}

	e.logger.Debug("analytics report",
		"store_id", storeID,
		"window_days", cfg.WindowDays,
		"rule", string(cfg.Rule),
		"top_sellers", len(top),
		"slow_movers", len(slow))

	return Report{
		StoreID: storeID,
		Metrics: Metrics{
			OrdersInDB:               counts.OrdersInDB,
			UniqueVariantsSoldWindow: counts.UniqueVariantsSoldWindow,
			VariantSnapshotsTotal:    counts.VariantSnapshotsTotal,
		},
		TopSellers: top,
		SlowMovers: slow,
		Meta: Meta{
			FilteredByWindow: true,
			WindowDays:       cfg.WindowDays,
			WindowStart:      since,
			WindowEnd:        until,
			Rule:             cfg.Rule,
			Knobs: KnobValues{
				MinStock:         cfg.MinStock,
				InactivityDays:   cfg.InactivityDays,
				DiscountPct:      cfg.DiscountPct,
				MaxSalesInWindow: cfg.MaxSalesInWindow,
			},
			Bounds: bounds(),
		},
	}, nil
}

// Record appends the report's recommendations to the recommendation log.
// This is the only analytics operation that writes.
func (e *Engine) Record(ctx context.Context, rec Recorder, r Report) (int, error) {
	recs := r.Recommendations()
	if err := rec.RecordRecommendations(ctx, recs); err != nil {
		return 0, fmt.Errorf("record recommendations %s: %w", r.StoreID, err)
	}
	e.logger.Info("recorded recommendations", "store_id", r.StoreID, "count", len(recs))
	return len(recs), nil
}

// daysSince returns whole days from t to now, or nil when t is nil. A sale
// stamped after now counts as 0 days.
func daysSince(t *time.Time, now time.Time) *int {
	if t == nil {
		return nil
	}
	d := int(now.Sub(*t) / day)
	if d < 0 {
		d = 0
	}
	return &d
}

func sortSlowMovers(rows []SlowMover) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Stock != b.Stock {
			return a.Stock > b.Stock
		}
		an, bn := a.DaysSinceLastSale == nil, b.DaysSinceLastSale == nil
		if an != bn {
			return bn
		}
		if !an && *a.DaysSinceLastSale != *b.DaysSinceLastSale {
			return *a.DaysSinceLastSale > *b.DaysSinceLastSale
		}
		return a.VariantID < b.VariantID
	})
}
