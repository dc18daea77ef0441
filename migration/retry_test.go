package migration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/catalog-engine/catalog"
)

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, time.Millisecond, 5*time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return catalog.ErrStoreUnavailable
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 2, time.Millisecond, 5*time.Millisecond, func() error {
		calls++
		return catalog.ErrStoreUnavailable
	})
	assert.ErrorIs(t, err, catalog.ErrStoreUnavailable)
	assert.Equal(t, 2, calls)
}

func TestWithRetry_DoesNotRetryPermanentErrors(t *testing.T) {
	permanent := errors.New("constraint violation")
	calls := 0
	err := withRetry(context.Background(), 5, time.Millisecond, 5*time.Millisecond, func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls, "only transient errors are worth retrying")
}

func TestWithRetry_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := withRetry(ctx, 5, time.Minute, time.Minute, func() error {
		calls++
		return catalog.ErrStoreUnavailable
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation wins over the backoff sleep")
}
