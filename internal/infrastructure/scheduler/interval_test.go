package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalSchedulerRunsImmediatelyAndOnTicks(t *testing.T) {
	s := NewIntervalScheduler(10*time.Millisecond, time.UTC)

	var runs atomic.Int32
	require.NoError(t, s.Start(context.Background(), func(time.Time) { runs.Add(1) }))

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop")
}

func TestIntervalSchedulerStartIsIdempotent(t *testing.T) {
	s := NewIntervalScheduler(time.Hour, nil)

	var runs atomic.Int32
	job := func(time.Time) { runs.Add(1) }
	require.NoError(t, s.Start(context.Background(), job))
	require.NoError(t, s.Start(context.Background(), job))

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, int32(1), runs.Load())
}

func TestIntervalSchedulerStopsOnContextCancel(t *testing.T) {
	s := NewIntervalScheduler(5*time.Millisecond, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	require.NoError(t, s.Start(ctx, func(time.Time) { runs.Add(1) }))
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, time.Second, time.Millisecond)
	cancel()

	require.NoError(t, s.Stop(context.Background()))
}
