package collection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyDo(t *testing.T) {
	ctx := context.Background()
	fast := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("returns nil on first success", func(t *testing.T) {
		calls := 0
		err := fast.Do(ctx, func(context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transient failures until success", func(t *testing.T) {
		calls := 0
		err := fast.Do(ctx, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns the last error when attempts run out", func(t *testing.T) {
		boom := errors.New("still down")
		calls := 0
		err := fast.Do(ctx, func(context.Context) error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error stops retrying immediately", func(t *testing.T) {
		denied := errors.New("credentials rejected")
		calls := 0
		err := fast.Do(ctx, func(context.Context) error {
			calls++
			return Permanent(denied)
		})
		assert.ErrorIs(t, err, denied)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context aborts between attempts", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := fast.Do(cancelled, func(context.Context) error {
			return errors.New("transient")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		calls := 0
		err := RetryPolicy{}.Do(ctx, func(context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})
}
