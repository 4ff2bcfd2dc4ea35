package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_DelayIsLinearAndCapped(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond, MaxAttempts: 5}

	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 250*time.Millisecond, p.Delay(3))
	assert.Equal(t, 250*time.Millisecond, p.Delay(10))
	assert.Equal(t, 100*time.Millisecond, p.Delay(0), "attempt below 1 behaves like the first")
}

func TestPolicy_MaxWait(t *testing.T) {
	p := Policy{BaseDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond, MaxAttempts: 4}
	// sleeps happen between attempts: 10 + 20 + 25
	assert.Equal(t, 55*time.Millisecond, p.MaxWait())
}

func TestDo_StopsOnSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 5},
		func(ctx context.Context, attempt int) error {
			calls++
			if attempt < 3 {
				return errors.New("not yet")
			}
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustionWrapsLastError(t *testing.T) {
	sentinel := errors.New("still running")
	calls := 0
	err := Do(context.Background(), Policy{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxAttempts: 3},
		func(ctx context.Context, attempt int) error {
			calls++
			return sentinel
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorIsNotRetried(t *testing.T) {
	sentinel := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), Policy{BaseDelay: time.Millisecond, MaxAttempts: 5},
		func(ctx context.Context, attempt int) error {
			calls++
			return Permanent(sentinel)
		})

	assert.ErrorIs(t, err, sentinel)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestDo_HonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	start := time.Now()
	err := Do(ctx, Policy{BaseDelay: time.Second, MaxDelay: time.Second, MaxAttempts: 10},
		func(ctx context.Context, attempt int) error {
			calls++
			cancel()
			return errors.New("retry me")
		})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("x")))
}
