package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/shelfwise/internal/commerce"
)

// fetchWithRetry fetches one page, retrying temporary failures with
// exponential backoff. A server-requested Retry-After longer than the
// backoff wins. Non-temporary errors return immediately.
func (e *Engine) fetchWithRetry(ctx context.Context, logger *slog.Logger, creds commerce.Credentials, req commerce.PageRequest, pageNo int) (*commerce.Page, error) {
	for attempt := 0; ; attempt++ {
		page, err := e.fetcher.FetchPage(ctx, creds, req)
		if err == nil {
			return page, nil
		}
		if !commerce.IsTemporary(err) || attempt >= e.retryAttempts || ctx.Err() != nil {
			return nil, err
		}

		delay := backoff(e.retryBaseDelay, attempt)
		if ra := commerce.RetryAfter(err); ra > delay {
			delay = ra
		}
		logger.Warn("temporary upstream failure, retrying",
			"page", pageNo,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		if err := e.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// backoff returns base * 2^attempt, capped at maxRetryDelay.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
