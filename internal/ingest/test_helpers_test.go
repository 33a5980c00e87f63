package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/shelfwise/internal/commerce"
	"github.com/roach88/shelfwise/internal/model"
	"github.com/roach88/shelfwise/internal/store"
	"github.com/roach88/shelfwise/internal/testutil"
)

const (
	testStoreID = "demo.myshopify.com"
	testToken   = "shpat_test"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// harness wires an engine to a temporary store and a fake upstream.
type harness struct {
	store    *store.Store
	upstream *testutil.FakeUpstream
	client   *commerce.Client
	clock    *testutil.FixedClock
	sleeps   *sleepRecorder
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := testutil.NewFixedClock(testNow)

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.UpsertStore(context.Background(), testStoreID, testToken))

	up := testutil.NewFakeUpstream(t, testToken)
	return &harness{
		store:    s,
		upstream: up,
		client:   commerce.New(commerce.WithBaseURL(up.URL()), commerce.WithRateLimit(0, 0)),
		clock:    clock,
		sleeps:   &sleepRecorder{},
	}
}

// engine builds an engine over the harness; extra options are applied last.
func (h *harness) engine(opts ...EngineOption) *Engine {
	return h.engineWith(h.client, opts...)
}

func (h *harness) engineWith(f Fetcher, opts ...EngineOption) *Engine {
	base := []EngineOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(h.clock.Now),
		WithRunIDs(testutil.SequentialRunIDs("run", 10)),
		WithSleep(h.sleeps.sleep),
	}
	return New(h.store, f, append(base, opts...)...)
}

func (h *harness) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, h.store.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

// ts renders testNow shifted by d as upstream does.
func ts(d time.Duration) string {
	return testNow.Add(d).Format(time.RFC3339)
}

func orderJSON(id int64, updated time.Duration, lines ...string) string {
	return fmt.Sprintf(`{"id":%d,"created_at":%q,"updated_at":%q,"total_price":"30.00","currency":"USD","line_items":[%s]}`,
		id, ts(updated), ts(updated), strings.Join(lines, ","))
}

func lineJSON(variantID int64, qty int) string {
	return fmt.Sprintf(`{"variant_id":%d,"quantity":%d,"price":"10.00"}`, variantID, qty)
}

func productJSON(id int64, updated time.Duration, variants ...string) string {
	return fmt.Sprintf(`{"id":%d,"title":"Mug","updated_at":%q,"variants":[%s]}`,
		id, ts(updated), strings.Join(variants, ","))
}

func variantJSON(id int64, price string, stock int) string {
	return fmt.Sprintf(`{"id":%d,"title":"Blue","price":%q,"inventory_quantity":%d}`, id, price, stock)
}

func page(records ...string) string {
	return "[" + strings.Join(records, ",") + "]"
}

// fetcherFunc adapts a function to Fetcher.
type fetcherFunc func(ctx context.Context, creds commerce.Credentials, req commerce.PageRequest) (*commerce.Page, error)

func (f fetcherFunc) FetchPage(ctx context.Context, creds commerce.Credentials, req commerce.PageRequest) (*commerce.Page, error) {
	return f(ctx, creds, req)
}

// failingRepo fails item writes after a number of successes.
type failingRepo struct {
	*store.Store
	mu        sync.Mutex
	itemsLeft int
}

func (r *failingRepo) UpsertOrderItem(ctx context.Context, i model.OrderItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.itemsLeft <= 0 {
		return fmt.Errorf("upsert order item %d/%d: disk I/O error", i.OrderID, i.VariantID)
	}
	r.itemsLeft--
	return r.Store.UpsertOrderItem(ctx, i)
}
