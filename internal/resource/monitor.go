// Package resource implements periodic CPU/memory sampling and the
// adaptive batch tunables derived from it. A monitor runs only while a
// maintenance job is in progress: the owning job starts it at job begin
// and stops it at job end, so no sampling timer outlives its job.
package resource

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/config"
)

// Monitor samples host utilization on a fixed interval and adjusts the
// shared tunables: above either threshold the batch parameters narrow,
// below half of both thresholds they widen.
type Monitor struct {
	cfg      config.ResourceConfig
	tunables *Tunables
	sampler  Sampler
	clock    clockwork.Clock
	logger   *slog.Logger

	overloaded atomic.Bool

	mu     sync.Mutex
	active int
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor bound to the given tunables.
func NewMonitor(cfg config.ResourceConfig, tunables *Tunables, sampler Sampler, clock clockwork.Clock, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		tunables: tunables,
		sampler:  sampler,
		clock:    clock,
		logger:   logger,
	}
}

// Tunables exposes the tunables this monitor adjusts.
func (m *Monitor) Tunables() *Tunables {
	return m.tunables
}

// Overloaded reports whether the last sample exceeded a threshold. The
// orchestrator pauses new dispatch while this is set; it is a throttling
// signal, not an error.
func (m *Monitor) Overloaded() bool {
	return m.overloaded.Load()
}

// Start launches the sampling loop, or joins the already-running one.
// Overlapping maintenance jobs share a single loop: each Start is paired
// with one Stop, and sampling continues until the last job has stopped.
// The loop is detached from the caller's cancellation so a finished job
// cannot tear it down under a job still running.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active++
	if m.active > 1 {
		return
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(loopCtx)
}

// Stop releases one Start. The sampling loop terminates, and the
// overload signal clears, only when no job holds the monitor anymore.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.active == 0 {
		m.mu.Unlock()
		return
	}
	m.active--
	if m.active > 0 {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	cancel()
	<-done
	m.overloaded.Store(false)
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := m.clock.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.adjust(ctx)
		}
	}
}

// adjust takes one sample and applies the adaptation rules.
func (m *Monitor) adjust(ctx context.Context) {
	sample, err := m.sampler.Sample(ctx)
	if err != nil {
		m.logger.Warn("resource sampling failed", "error", err)
		return
	}

	cpuHigh := sample.CPUUtilization > m.cfg.CPUThreshold
	memHigh := sample.MemoryUtilization > m.cfg.MemoryThreshold

	switch {
	case cpuHigh || memHigh:
		m.overloaded.Store(true)
		m.tunables.Narrow()
		size, delay := m.tunables.Batch()
		m.logger.Info("resource pressure detected, narrowing batch parameters",
			"cpu_utilization", sample.CPUUtilization,
			"memory_utilization", sample.MemoryUtilization,
			"batch_size", size,
			"batch_delay", delay)
	case sample.CPUUtilization < m.cfg.CPUThreshold/2 && sample.MemoryUtilization < m.cfg.MemoryThreshold/2:
		m.overloaded.Store(false)
		m.tunables.Widen()
		size, delay := m.tunables.Batch()
		m.logger.Debug("resources comfortable, widening batch parameters",
			"cpu_utilization", sample.CPUUtilization,
			"memory_utilization", sample.MemoryUtilization,
			"batch_size", size,
			"batch_delay", delay)
	default:
		// Between the comfort band and the thresholds: hold steady.
		m.overloaded.Store(false)
	}
}
