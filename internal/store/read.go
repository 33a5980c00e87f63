package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/shelfwise/internal/model"
)

// GetStore returns a connected storefront.
// Returns ErrStoreNotFound if storeID was never connected.
func (s *Store) GetStore(ctx context.Context, storeID string) (model.Store, error) {
	var (
		st         model.Store
		credential sql.NullString
		createdAt  string
		updatedAt  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT store_id, credential, created_at, updated_at
		FROM stores
		WHERE store_id = ?
	`, storeID).Scan(&st.ID, &credential, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Store{}, fmt.Errorf("get store %s: %w", storeID, ErrStoreNotFound)
	}
	if err != nil {
		return model.Store{}, fmt.Errorf("get store %s: %w", storeID, err)
	}

	if credential.Valid {
		c := credential.String
		st.Credential = &c
	}
	if st.CreatedAt, err = model.ParseTimestamp(createdAt); err != nil {
		return model.Store{}, fmt.Errorf("get store %s: %w", storeID, err)
	}
	if st.UpdatedAt, err = model.ParseTimestamp(updatedAt); err != nil {
		return model.Store{}, fmt.Errorf("get store %s: %w", storeID, err)
	}
	return st, nil
}

// ListStores returns every connected storefront ordered by id.
// Credentials are not loaded.
func (s *Store) ListStores(ctx context.Context) ([]model.Store, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT store_id, credential IS NOT NULL AND credential != '', created_at, updated_at
		FROM stores
		ORDER BY store_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	stores := []model.Store{}
	for rows.Next() {
		var (
			st         model.Store
			authorized bool
			createdAt  string
			updatedAt  string
		)
		if err := rows.Scan(&st.ID, &authorized, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("list stores: %w", err)
		}
		if authorized {
			// Redacted placeholder so Authorized() still answers correctly.
			redacted := "********"
			st.Credential = &redacted
		}
		if st.CreatedAt, err = model.ParseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("list stores: %w", err)
		}
		if st.UpdatedAt, err = model.ParseTimestamp(updatedAt); err != nil {
			return nil, fmt.Errorf("list stores: %w", err)
		}
		stores = append(stores, st)
	}
	return stores, rows.Err()
}

// ReadCursor returns the stored cursor for (storeID, entity).
// found is false when no run has ever persisted one.
func (s *Store) ReadCursor(ctx context.Context, storeID string, entity model.EntityType) (cur model.Cursor, found bool, err error) {
	var watermark, updatedAt string
	err = s.db.QueryRowContext(ctx, `
		SELECT cursor, updated_at
		FROM sync_state
		WHERE store_id = ? AND entity_type = ?
	`, storeID, string(entity)).Scan(&watermark, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Cursor{}, false, nil
	}
	if err != nil {
		return model.Cursor{}, false, fmt.Errorf("read cursor %s/%s: %w", storeID, entity, err)
	}

	cur = model.Cursor{StoreID: storeID, Entity: entity}
	if cur.Watermark, err = model.ParseTimestamp(watermark); err != nil {
		return model.Cursor{}, false, fmt.Errorf("read cursor %s/%s: %w", storeID, entity, err)
	}
	if cur.UpdatedAt, err = model.ParseTimestamp(updatedAt); err != nil {
		return model.Cursor{}, false, fmt.Errorf("read cursor %s/%s: %w", storeID, entity, err)
	}
	return cur, true, nil
}

// LastRun returns the most recent ledger entry for (storeID, entity).
// found is false when there is none or the schema has no ledger.
func (s *Store) LastRun(ctx context.Context, storeID string, entity model.EntityType) (run model.SyncRun, found bool, err error) {
	runs, err := s.queryRuns(ctx, `
		WHERE store_id = ? AND entity_type = ?
		ORDER BY started_at DESC, run_id DESC
		LIMIT 1
	`, storeID, string(entity))
	if err != nil {
		return model.SyncRun{}, false, fmt.Errorf("last run %s/%s: %w", storeID, entity, err)
	}
	if len(runs) == 0 {
		return model.SyncRun{}, false, nil
	}
	return runs[0], true, nil
}

// ListRuns returns up to limit ledger entries for storeID, newest first.
func (s *Store) ListRuns(ctx context.Context, storeID string, limit int) ([]model.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	runs, err := s.queryRuns(ctx, `
		WHERE store_id = ?
		ORDER BY started_at DESC, run_id DESC
		LIMIT ?
	`, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs %s: %w", storeID, err)
	}
	return runs, nil
}

func (s *Store) queryRuns(ctx context.Context, where string, args ...any) ([]model.SyncRun, error) {
	if !s.caps.SyncRuns {
		return []model.SyncRun{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, store_id, entity_type, status, pages, fetched, upserted, skipped,
		       cursor_before, cursor_after, error, started_at, finished_at
		FROM sync_runs
	`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []model.SyncRun{}
	for rows.Next() {
		var (
			run          model.SyncRun
			entity       string
			status       string
			cursorBefore sql.NullString
			cursorAfter  sql.NullString
			errText      sql.NullString
			startedAt    string
			finishedAt   string
		)
		if err := rows.Scan(
			&run.RunID, &run.StoreID, &entity, &status,
			&run.Pages, &run.Fetched, &run.Upserted, &run.Skipped,
			&cursorBefore, &cursorAfter, &errText, &startedAt, &finishedAt,
		); err != nil {
			return nil, err
		}
		run.Entity = model.EntityType(entity)
		run.Status = model.RunStatus(status)
		run.Error = errText.String
		if run.CursorBefore, err = parseNullTime(cursorBefore); err != nil {
			return nil, err
		}
		if run.CursorAfter, err = parseNullTime(cursorAfter); err != nil {
			return nil, err
		}
		if run.StartedAt, err = model.ParseTimestamp(startedAt); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = model.ParseTimestamp(finishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
