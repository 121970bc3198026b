package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing() error { return errBoom }
func succeeding() error { return nil }

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 2, Cooldown: time.Minute})
	ctx := context.Background()

	require.ErrorIs(t, cb.Execute(ctx, failing), errBoom)
	assert.Equal(t, StateClosed, cb.State())

	require.ErrorIs(t, cb.Execute(ctx, failing), errBoom)
	assert.Equal(t, StateOpen, cb.State())
	assert.True(t, cb.Open())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 2, Cooldown: time.Minute})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	require.NoError(t, cb.Execute(ctx, succeeding))
	require.Error(t, cb.Execute(ctx, failing))

	// never saw two failures in a row
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_ShortCircuitsWhileOpen(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 1, Cooldown: time.Minute})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	require.Equal(t, StateOpen, cb.State())

	calls := 0
	err := cb.Execute(ctx, func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls, "fn must not run while open")
}

func TestBreaker_HalfOpenTrialRecovers(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 1, Cooldown: 20 * time.Millisecond})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, succeeding))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 1, Cooldown: 20 * time.Millisecond})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	time.Sleep(30 * time.Millisecond)

	require.ErrorIs(t, cb.Execute(ctx, failing), errBoom)
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreaker_HalfOpenLimitsTrialRequests(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 1, Cooldown: 10 * time.Millisecond, TrialRequests: 1})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	blocked := make(chan struct{})
	release := make(chan struct{})
	go cb.Execute(ctx, func() error {
		close(blocked)
		<-release
		return nil
	})
	<-blocked

	err := cb.Execute(ctx, succeeding)
	assert.ErrorIs(t, err, ErrTooManyRequests)

	close(release)
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	cb := New("test", Config{
		FailureThreshold: 1,
		Cooldown:         time.Minute,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	cb.Execute(context.Background(), failing)
	require.Equal(t, []string{"closed->open"}, transitions)

	cb.Reset()
	assert.Equal(t, []string{"closed->open", "open->closed"}, transitions)
}
