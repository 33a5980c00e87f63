package ingest

import (
	"fmt"
	"time"
)

// runBudget bounds one run by page count and wall-clock time.
//
// Caps are checked between pages only, so a capped run always stops at a
// page boundary with every fetched page fully written.
type runBudget struct {
	maxPages int       // 0 = unlimited
	deadline time.Time // zero = unlimited
}

func newRunBudget(maxPages int, start time.Time, maxDuration time.Duration) runBudget {
	b := runBudget{}
	if maxPages > 0 {
		b.maxPages = maxPages
	}
	if maxDuration > 0 {
		b.deadline = start.Add(maxDuration)
	}
	return b
}

// exhausted reports whether another page may be fetched after pages pages
// at time now, and why not.
func (b runBudget) exhausted(pages int, now time.Time) (string, bool) {
	if b.maxPages > 0 && pages >= b.maxPages {
		return fmt.Sprintf("page cap %d reached", b.maxPages), true
	}
	if !b.deadline.IsZero() && !now.Before(b.deadline) {
		return "wall-clock budget spent", true
	}
	return "", false
}
