package model

import "time"

// RunStatus is the terminal state of a sync run.
type RunStatus string

const (
	// RunCompleted means upstream reported no further pages.
	RunCompleted RunStatus = "completed"

	// RunCapped means the run stopped at a page boundary because it hit the
	// page or wall-clock budget. The scheduler should re-invoke soon.
	RunCapped RunStatus = "capped"

	// RunFailed means the run aborted; the stored cursor was not advanced.
	RunFailed RunStatus = "failed"
)

// SyncRun is the ledger record of one sync invocation.
type SyncRun struct {
	RunID        string     `json:"run_id"`
	StoreID      string     `json:"store_id"`
	Entity       EntityType `json:"entity"`
	Status       RunStatus  `json:"status"`
	Dry          bool       `json:"dry"`
	Pages        int        `json:"pages"`
	Fetched      int        `json:"fetched"`
	Upserted     int        `json:"upserted"`
	Skipped      int        `json:"skipped"`
	CursorBefore *time.Time `json:"cursor_before,omitempty"`
	CursorAfter  *time.Time `json:"cursor_after,omitempty"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   time.Time  `json:"finished_at"`
}
