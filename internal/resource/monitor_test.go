package resource

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/config"
)

func testBatchConfig() config.BatchConfig {
	return config.BatchConfig{
		Size:        50,
		SizeMin:     5,
		SizeMax:     200,
		Delay:       time.Second,
		DelayMin:    100 * time.Millisecond,
		DelayMax:    10 * time.Second,
		Concurrency: 4,
	}
}

func testResourceConfig() config.ResourceConfig {
	return config.ResourceConfig{
		SampleInterval:  10 * time.Second,
		CPUThreshold:    80,
		MemoryThreshold: 75,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// fakeSampler returns a fixed sequence of samples, repeating the last one.
type fakeSampler struct {
	mu      sync.Mutex
	samples []Sample
	calls   int
}

func (f *fakeSampler) Sample(ctx context.Context) (Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.samples) {
		i = len(f.samples) - 1
	}
	f.calls++
	return f.samples[i], nil
}

func TestTunablesNarrowFloorsAtMinimum(t *testing.T) {
	tun := NewTunables(testBatchConfig())

	prev, _ := tun.Batch()
	for i := 0; i < 20; i++ {
		tun.Narrow()
		size, delay := tun.Batch()
		assert.GreaterOrEqual(t, size, 5, "size must never drop below the minimum")
		assert.LessOrEqual(t, delay, 10*time.Second, "delay must never exceed the maximum")
		if prev > 5 {
			assert.Less(t, size, prev, "size must strictly decrease until the floor")
		} else {
			assert.Equal(t, 5, size)
		}
		prev = size
	}
}

func TestTunablesWidenCeilsAtMaximum(t *testing.T) {
	tun := NewTunables(testBatchConfig())

	for i := 0; i < 30; i++ {
		tun.Widen()
	}

	size, delay := tun.Batch()
	assert.Equal(t, 200, size)
	assert.Equal(t, 100*time.Millisecond, delay)
}

func TestScaledView(t *testing.T) {
	tun := NewTunables(testBatchConfig())
	scaled := NewScaled(tun, 2, 2.0)

	size, delay := scaled.Batch()
	assert.Equal(t, 25, size)
	assert.Equal(t, 2*time.Second, delay)

	// The view follows live adjustments of the base tunables.
	tun.Narrow()
	baseSize, _ := tun.Batch()
	size, _ = scaled.Batch()
	assert.Equal(t, baseSize/2, size)
}

func TestMonitorNarrowsUnderSustainedMemoryPressure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tun := NewTunables(testBatchConfig())
	sampler := &fakeSampler{samples: []Sample{
		{CPUUtilization: 20, MemoryUtilization: 95},
	}}
	m := NewMonitor(testResourceConfig(), tun, sampler, clock, testLogger())

	ctx := context.Background()
	m.Start(ctx)
	defer m.Stop()

	prev, _ := tun.Batch()
	for i := 0; i < 10; i++ {
		err := clock.BlockUntilContext(ctx, 1)
		require.NoError(t, err)
		clock.Advance(10 * time.Second)

		// Wait until the tick has been consumed and applied.
		require.Eventually(t, func() bool {
			sampler.mu.Lock()
			defer sampler.mu.Unlock()
			return sampler.calls >= i+1
		}, time.Second, time.Millisecond)

		size, _ := tun.Batch()
		assert.GreaterOrEqual(t, size, 5)
		assert.LessOrEqual(t, size, prev)
		prev = size
	}

	size, _ := tun.Batch()
	assert.Equal(t, 5, size, "sustained pressure drives size to the floor")
	assert.True(t, m.Overloaded())
}

func TestMonitorWidensWhenIdle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tun := NewTunables(testBatchConfig())
	sampler := &fakeSampler{samples: []Sample{
		{CPUUtilization: 10, MemoryUtilization: 10},
	}}
	m := NewMonitor(testResourceConfig(), tun, sampler, clock, testLogger())

	ctx := context.Background()
	m.Start(ctx)
	defer m.Stop()

	err := clock.BlockUntilContext(ctx, 1)
	require.NoError(t, err)
	clock.Advance(10 * time.Second)

	require.Eventually(t, func() bool {
		size, _ := tun.Batch()
		return size > 50
	}, time.Second, time.Millisecond)

	_, delay := tun.Batch()
	assert.Less(t, delay, time.Second)
	assert.False(t, m.Overloaded())
}

func TestMonitorHoldsSteadyInComfortBand(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tun := NewTunables(testBatchConfig())
	// Above half the thresholds but below them: no adjustment.
	sampler := &fakeSampler{samples: []Sample{
		{CPUUtilization: 60, MemoryUtilization: 50},
	}}
	m := NewMonitor(testResourceConfig(), tun, sampler, clock, testLogger())

	ctx := context.Background()
	m.Start(ctx)
	defer m.Stop()

	err := clock.BlockUntilContext(ctx, 1)
	require.NoError(t, err)
	clock.Advance(10 * time.Second)

	require.Eventually(t, func() bool {
		sampler.mu.Lock()
		defer sampler.mu.Unlock()
		return sampler.calls >= 1
	}, time.Second, time.Millisecond)

	size, delay := tun.Batch()
	assert.Equal(t, 50, size)
	assert.Equal(t, time.Second, delay)
}

func TestMonitorSharedAcrossOverlappingJobs(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tun := NewTunables(testBatchConfig())
	sampler := &fakeSampler{samples: []Sample{
		{CPUUtilization: 95, MemoryUtilization: 95},
	}}
	m := NewMonitor(testResourceConfig(), tun, sampler, clock, testLogger())

	ctx := context.Background()
	m.Start(ctx)
	m.Start(ctx)

	err := clock.BlockUntilContext(ctx, 1)
	require.NoError(t, err)
	clock.Advance(10 * time.Second)
	require.Eventually(t, m.Overloaded, time.Second, time.Millisecond)
	sizeAfterFirstTick, _ := tun.Batch()

	// The first job finishes while the second is still running: the
	// throttle must hold and sampling must keep narrowing.
	m.Stop()
	assert.True(t, m.Overloaded())

	err = clock.BlockUntilContext(ctx, 1)
	require.NoError(t, err)
	clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool {
		size, _ := tun.Batch()
		return size < sizeAfterFirstTick
	}, time.Second, time.Millisecond)

	m.Stop()
	assert.False(t, m.Overloaded())
}

func TestMonitorSurvivesFirstJobContextCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tun := NewTunables(testBatchConfig())
	sampler := &fakeSampler{samples: []Sample{
		{CPUUtilization: 95, MemoryUtilization: 95},
	}}
	m := NewMonitor(testResourceConfig(), tun, sampler, clock, testLogger())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	m.Start(firstCtx)
	m.Start(context.Background())
	defer m.Stop()
	defer m.Stop()

	cancelFirst()

	err := clock.BlockUntilContext(context.Background(), 1)
	require.NoError(t, err)
	clock.Advance(10 * time.Second)

	require.Eventually(t, func() bool {
		sampler.mu.Lock()
		defer sampler.mu.Unlock()
		return sampler.calls >= 1
	}, time.Second, time.Millisecond)
	assert.True(t, m.Overloaded())
}

func TestMonitorStopClearsOverload(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tun := NewTunables(testBatchConfig())
	sampler := &fakeSampler{samples: []Sample{
		{CPUUtilization: 99, MemoryUtilization: 99},
	}}
	m := NewMonitor(testResourceConfig(), tun, sampler, clock, testLogger())

	ctx := context.Background()
	m.Start(ctx)

	err := clock.BlockUntilContext(ctx, 1)
	require.NoError(t, err)
	clock.Advance(10 * time.Second)

	require.Eventually(t, m.Overloaded, time.Second, time.Millisecond)

	m.Stop()
	assert.False(t, m.Overloaded())
}
