/*
retry.go - Bounded exponential backoff over transient store errors

PURPOSE:
  Store calls made by the migration and rollback engines go through
  withRetry. Transient failures (catalog.IsTransient) are retried with
  exponential backoff up to the configured attempt limit; everything else
  returns immediately. The wait is context-aware so an operator abort
  never hangs in a sleep.
*/
package migration

import (
	"context"
	"time"

	"github.com/warp/catalog-engine/catalog"
)

// withRetry runs fn up to attempts times, doubling the delay between
// transient failures and capping it at maxDelay. Returns the last error.
func withRetry(ctx context.Context, attempts int, baseDelay, maxDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 0; attempt < attempts; attempt++ {
		err = fn()
		if err == nil || !catalog.IsTransient(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return err
}
