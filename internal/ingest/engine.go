package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/shelfwise/internal/commerce"
	"github.com/roach88/shelfwise/internal/model"
	"github.com/roach88/shelfwise/internal/store"
)

// Defaults for engine options.
const (
	// DefaultLookbackDays is the first-run window when no cursor exists.
	DefaultLookbackDays = 120

	// DefaultLookbackMinDays and DefaultLookbackMaxDays bound caller-supplied
	// lookback windows. Out-of-range values are clamped.
	DefaultLookbackMinDays = 30
	DefaultLookbackMaxDays = 365

	// DefaultPageCap bounds the pages fetched by one run.
	DefaultPageCap = 50

	// DefaultRetryAttempts is the number of retries after the first attempt
	// of a page fetch.
	DefaultRetryAttempts = 3

	// DefaultRetryBaseDelay is the first backoff delay; it doubles per retry.
	DefaultRetryBaseDelay = 500 * time.Millisecond

	maxRetryDelay = 30 * time.Second
)

// Fetcher fetches one page from upstream. Implemented by *commerce.Client.
type Fetcher interface {
	FetchPage(ctx context.Context, creds commerce.Credentials, req commerce.PageRequest) (*commerce.Page, error)
}

// Repository is the storage the engine needs. Implemented by *store.Store.
type Repository interface {
	store.Writer
	GetStore(ctx context.Context, storeID string) (model.Store, error)
	ReadCursor(ctx context.Context, storeID string, entity model.EntityType) (model.Cursor, bool, error)
	WriteCursor(ctx context.Context, storeID string, entity model.EntityType, watermark time.Time) (bool, error)
	InTx(ctx context.Context, fn func(w store.Writer) error) error
	RecordRun(ctx context.Context, run model.SyncRun) error
}

// RunOptions are the caller's per-run choices. Zero values select the
// engine defaults.
type RunOptions struct {
	// Dry fetches and flattens but writes nothing: no rows, no cursor, no
	// ledger entry.
	Dry bool

	// Days is the lookback window used when no cursor exists. Clamped to
	// the engine's bounds; <= 0 selects the default.
	Days int

	// PageCap overrides the engine page cap when > 0.
	PageCap int

	// MaxDuration overrides the engine wall-clock cap when > 0.
	MaxDuration time.Duration
}

// Engine runs incremental ingestion of one entity type for one store.
//
// State machine per run:
//
//	START → FETCH_PAGE → UPSERT_PAGE → (more pages? → FETCH_PAGE | DONE)
//
// with FAILED reachable from FETCH_PAGE and UPSERT_PAGE. The cursor is
// advanced in memory after each durably written page and persisted once, at
// DONE (completed or capped). A failed run never persists its cursor.
//
// Thread-safety: Engine is safe for concurrent use. Callers must not run
// the same (store, entity) concurrently; the cursor compare-and-set keeps
// such runs correct but the work is duplicated.
type Engine struct {
	repo    Repository
	fetcher Fetcher
	logger  *slog.Logger
	now     func() time.Time
	runIDs  RunIDGenerator
	sleep   func(ctx context.Context, d time.Duration) error

	lookbackDefault int
	lookbackMin     int
	lookbackMax     int
	pageCap         int
	maxDuration     time.Duration
	retryAttempts   int
	retryBaseDelay  time.Duration
	pageTx          bool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the wall clock. Default: time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRunIDs sets the run id generator. Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.runIDs = g
		}
	}
}

// WithLookback sets the default first-run lookback and its bounds, in days.
// Invalid combinations (min > max, non-positive values) are ignored.
func WithLookback(defaultDays, minDays, maxDays int) EngineOption {
	return func(e *Engine) {
		if minDays < 1 || maxDays < minDays {
			return
		}
		e.lookbackMin = minDays
		e.lookbackMax = maxDays
		e.lookbackDefault = clamp(defaultDays, minDays, maxDays)
	}
}

// WithPageCap sets the maximum pages per run. n <= 0 removes the cap.
func WithPageCap(n int) EngineOption {
	return func(e *Engine) {
		e.pageCap = n
	}
}

// WithMaxDuration sets the wall-clock budget per run. d <= 0 removes it.
func WithMaxDuration(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.maxDuration = d
	}
}

// WithRetry sets how many times a temporary fetch failure is retried and
// the first backoff delay.
func WithRetry(attempts int, baseDelay time.Duration) EngineOption {
	return func(e *Engine) {
		if attempts >= 0 {
			e.retryAttempts = attempts
		}
		if baseDelay > 0 {
			e.retryBaseDelay = baseDelay
		}
	}
}

// WithSleep replaces the backoff sleep. Tests use it to avoid real delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithPageTransactions writes each page in a single transaction instead of
// per-row autocommit.
func WithPageTransactions(enabled bool) EngineOption {
	return func(e *Engine) {
		e.pageTx = enabled
	}
}

// New creates an Engine.
func New(repo Repository, fetcher Fetcher, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:            repo,
		fetcher:         fetcher,
		logger:          slog.Default(),
		now:             time.Now,
		runIDs:          UUIDv7Generator{},
		sleep:           sleepContext,
		lookbackDefault: DefaultLookbackDays,
		lookbackMin:     DefaultLookbackMinDays,
		lookbackMax:     DefaultLookbackMaxDays,
		pageCap:         DefaultPageCap,
		retryAttempts:   DefaultRetryAttempts,
		retryBaseDelay:  DefaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LookbackDays returns the effective first-run window for a requested
// number of days: <= 0 selects the default, anything else is clamped.
func (e *Engine) LookbackDays(requested int) int {
	if requested <= 0 {
		return e.lookbackDefault
	}
	return clamp(requested, e.lookbackMin, e.lookbackMax)
}

// Run synchronises one entity type for one store.
//
// The returned SyncRun is always populated, also on error. A nil error
// means the run ended completed or capped; check run.Status. Errors are
// *SyncError.
func (e *Engine) Run(ctx context.Context, storeID string, entity model.EntityType, opts RunOptions) (model.SyncRun, error) {
	run := model.SyncRun{
		RunID:     e.runIDs.Generate(),
		StoreID:   storeID,
		Entity:    entity,
		Dry:       opts.Dry,
		StartedAt: e.now(),
	}
	logger := e.logger.With("run_id", run.RunID, "store_id", storeID, "entity", string(entity))

	resource, err := resourceFor(entity)
	if err != nil {
		return e.finishFailed(ctx, logger, run, &SyncError{Code: ErrCodeConfiguration, StoreID: storeID, Entity: entity, Err: err}, false)
	}

	creds, err := e.credentials(ctx, storeID)
	if err != nil {
		code := ErrCodeConfiguration
		if !errors.Is(err, store.ErrStoreNotFound) && !errors.Is(err, errNotAuthorized) {
			code = ErrCodeStorage
		}
		return e.finishFailed(ctx, logger, run, &SyncError{Code: code, StoreID: storeID, Entity: entity, Err: err}, false)
	}

	cur, found, err := e.repo.ReadCursor(ctx, storeID, entity)
	if err != nil {
		return e.finishFailed(ctx, logger, run, &SyncError{Code: ErrCodeStorage, StoreID: storeID, Entity: entity, Err: err}, false)
	}

	var since, watermark time.Time
	if found {
		before := cur.Watermark
		run.CursorBefore = &before
		watermark = cur.Watermark
	}
	switch {
	case entity == model.EntityVariants:
		// Snapshots are a time series: every run walks the whole catalog.
		// The cursor still advances but never filters the fetch.
		logger.Info("walking full catalog")
	case found:
		since = cur.Watermark
	default:
		days := e.LookbackDays(opts.Days)
		since = run.StartedAt.AddDate(0, 0, -days)
		logger.Info("no cursor, using lookback window", "days", days, "since", since)
	}

	pageCap := e.pageCap
	if opts.PageCap > 0 {
		pageCap = opts.PageCap
	}
	maxDuration := e.maxDuration
	if opts.MaxDuration > 0 {
		maxDuration = opts.MaxDuration
	}
	budget := newRunBudget(pageCap, run.StartedAt, maxDuration)

	req := commerce.PageRequest{Resource: resource, UpdatedSince: since}
	for {
		if run.Pages > 0 {
			if reason, exhausted := budget.exhausted(run.Pages, e.now()); exhausted {
				run.Status = model.RunCapped
				logger.Info("run capped", "reason", reason, "pages", run.Pages)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			return e.finishFailed(ctx, logger, run, &SyncError{
				Code: ErrCodeCanceled, StoreID: storeID, Entity: entity, Page: run.Pages + 1, Err: err,
			}, !opts.Dry)
		}

		pageNo := run.Pages + 1
		page, err := e.fetchWithRetry(ctx, logger, creds, req, pageNo)
		if err != nil {
			return e.finishFailed(ctx, logger, run, classifyFetchError(ctx, err, storeID, entity, pageNo), !opts.Dry)
		}
		run.Pages = pageNo
		run.Fetched += len(page.Records)

		written, res, err := e.processPage(ctx, storeID, entity, page, opts.Dry)
		run.Skipped += res.skipped
		for _, p := range res.problems {
			logger.Debug("skipped malformed record", "page", pageNo, "error", p.Error())
		}
		if err != nil {
			code := ErrCodeStorage
			if ctx.Err() != nil {
				code = ErrCodeCanceled
			}
			return e.finishFailed(ctx, logger, run, &SyncError{
				Code: code, StoreID: storeID, Entity: entity, Page: pageNo, Err: err,
			}, !opts.Dry)
		}
		run.Upserted += written
		watermark = model.MaxTime(watermark, res.watermark)

		logger.Info("page processed",
			"page", pageNo,
			"records", len(page.Records),
			"written", written,
			"skipped", res.skipped,
		)

		if !page.HasNext() {
			run.Status = model.RunCompleted
			break
		}
		req = commerce.PageRequest{Resource: resource, PageToken: page.NextToken}
	}

	if !watermark.IsZero() {
		after := watermark
		run.CursorAfter = &after
	}

	if !opts.Dry && run.CursorAfter != nil && (run.CursorBefore == nil || run.CursorAfter.After(*run.CursorBefore)) {
		moved, err := e.repo.WriteCursor(ctx, storeID, entity, *run.CursorAfter)
		if err != nil {
			return e.finishFailed(ctx, logger, run, &SyncError{
				Code: ErrCodeStorage, StoreID: storeID, Entity: entity, Err: err,
			}, true)
		}
		if !moved {
			logger.Warn("cursor not advanced, a concurrent run already moved it further",
				"cursor", *run.CursorAfter)
		}
	}

	run.FinishedAt = e.now()
	if !opts.Dry {
		e.recordRun(ctx, logger, run)
	}
	logger.Info("sync finished",
		"status", string(run.Status),
		"pages", run.Pages,
		"fetched", run.Fetched,
		"upserted", run.Upserted,
		"skipped", run.Skipped,
	)
	return run, nil
}

// processPage flattens and, unless dry, writes one page. written counts the
// entity rows written: orders for EntityOrders, snapshots for EntityVariants.
func (e *Engine) processPage(ctx context.Context, storeID string, entity model.EntityType, page *commerce.Page, dry bool) (int, pageResult, error) {
	switch entity {
	case model.EntityOrders:
		batch, res := flattenOrders(storeID, page.Records)
		if dry {
			return 0, res, nil
		}
		err := e.write(ctx, func(w store.Writer) error {
			for i, o := range batch.orders {
				if err := w.UpsertOrder(ctx, o); err != nil {
					return err
				}
				for _, item := range batch.items[i] {
					if err := w.UpsertOrderItem(ctx, item); err != nil {
						return err
					}
				}
			}
			return nil
		})
		if err != nil {
			return 0, res, err
		}
		return len(batch.orders), res, nil

	default:
		batch, res := flattenProducts(storeID, page.Records, e.now())
		if dry {
			return 0, res, nil
		}
		err := e.write(ctx, func(w store.Writer) error {
			for _, vs := range batch.snapshots {
				if err := w.InsertVariantSnapshot(ctx, vs); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return 0, res, err
		}
		return len(batch.snapshots), res, nil
	}
}

func (e *Engine) write(ctx context.Context, fn func(w store.Writer) error) error {
	if e.pageTx {
		return e.repo.InTx(ctx, fn)
	}
	return fn(e.repo)
}

var errNotAuthorized = errors.New("store has no credential")

func (e *Engine) credentials(ctx context.Context, storeID string) (commerce.Credentials, error) {
	st, err := e.repo.GetStore(ctx, storeID)
	if err != nil {
		return commerce.Credentials{}, err
	}
	if !st.Authorized() {
		return commerce.Credentials{}, fmt.Errorf("store %s: %w", storeID, errNotAuthorized)
	}
	return commerce.Credentials{StoreID: st.ID, Token: *st.Credential}, nil
}

// finishFailed completes a failed run. The cursor is left untouched; record
// controls whether the failure goes to the ledger.
func (e *Engine) finishFailed(ctx context.Context, logger *slog.Logger, run model.SyncRun, serr *SyncError, record bool) (model.SyncRun, error) {
	run.Status = model.RunFailed
	run.Error = serr.Error()
	run.FinishedAt = e.now()

	logger.Error("sync failed",
		"code", string(serr.Code),
		"page", serr.Page,
		"status", serr.Status,
		"fetched", run.Fetched,
		"upserted", run.Upserted,
		"error", serr.Err,
	)

	if record {
		// The caller's context may be the reason for the failure; the ledger
		// entry is still wanted.
		e.recordRun(context.WithoutCancel(ctx), logger, run)
	}
	return run, serr
}

func (e *Engine) recordRun(ctx context.Context, logger *slog.Logger, run model.SyncRun) {
	if err := e.repo.RecordRun(ctx, run); err != nil {
		logger.Warn("failed to record run", "error", err)
	}
}

func classifyFetchError(ctx context.Context, err error, storeID string, entity model.EntityType, page int) *SyncError {
	serr := &SyncError{StoreID: storeID, Entity: entity, Page: page, Err: err}

	var ue *commerce.UpstreamError
	if errors.As(err, &ue) {
		serr.Status = ue.Status
	}

	switch {
	case ctx.Err() != nil:
		serr.Code = ErrCodeCanceled
	case commerce.IsTemporary(err):
		serr.Code = ErrCodeTransientUpstream
	default:
		serr.Code = ErrCodeUpstreamRejected
	}
	return serr
}

func resourceFor(entity model.EntityType) (commerce.Resource, error) {
	switch entity {
	case model.EntityOrders:
		return commerce.ResourceOrders, nil
	case model.EntityVariants:
		return commerce.ResourceProducts, nil
	default:
		return "", fmt.Errorf("unknown entity type %q", entity)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
