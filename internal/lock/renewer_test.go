package lock

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestRenewerKeepsLockAlive(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	m := NewMemoryManager(clock)

	const ttl = 30 * time.Second

	ok, err := m.Acquire(ctx, "retention.mark", "instance-a", ttl)
	require.NoError(t, err)
	require.True(t, ok)

	r := NewRenewer(m, "retention.mark", "instance-a", ttl, clock, testLogger())
	r.Start(ctx)

	// Walk the fake clock through several renewal intervals. Without the
	// renewer the lock would have expired after 30s.
	for i := 0; i < 6; i++ {
		err := clock.BlockUntilContext(ctx, 1)
		require.NoError(t, err)
		clock.Advance(ttl / 3)
	}

	ok, err = m.Acquire(ctx, "retention.mark", "instance-b", ttl)
	require.NoError(t, err)
	assert.False(t, ok, "lock should still be held after renewals")

	r.Stop()
}

func TestRenewerStopsOnOwnershipLoss(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	m := NewMemoryManager(clock)

	const ttl = 30 * time.Second

	ok, err := m.Acquire(ctx, "retention.mark", "instance-a", ttl)
	require.NoError(t, err)
	require.True(t, ok)

	r := NewRenewer(m, "retention.mark", "instance-a", ttl, clock, testLogger())
	r.Start(ctx)

	// Simulate losing the lock to another instance.
	released, err := m.Release(ctx, "retention.mark", "instance-a")
	require.NoError(t, err)
	require.True(t, released)

	err = clock.BlockUntilContext(ctx, 1)
	require.NoError(t, err)
	clock.Advance(ttl / 3)

	// The loop self-terminates after the failed renewal; done closes
	// without an explicit Stop having fired the stop channel.
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("renewer did not stop after losing ownership")
	}
}

func TestRenewerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := clockwork.NewFakeClock()
	m := NewMemoryManager(clock)

	const ttl = 30 * time.Second

	ok, err := m.Acquire(ctx, "retention.mark", "instance-a", ttl)
	require.NoError(t, err)
	require.True(t, ok)

	r := NewRenewer(m, "retention.mark", "instance-a", ttl, clock, testLogger())
	r.Start(ctx)

	cancel()

	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("renewer did not stop after context cancellation")
	}
}
