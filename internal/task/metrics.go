package task

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts task lifecycle transitions. Counters are kept as atomics
// for the JSON status API and mirrored to prometheus for scraping.
type Metrics struct {
	scheduled      atomic.Int64
	started        atomic.Int64
	completed      atomic.Int64
	failed         atomic.Int64
	retried        atomic.Int64
	locksAcquired  atomic.Int64
	locksReleased  atomic.Int64
	lockContention atomic.Int64

	promScheduled      prometheus.Counter
	promStarted        prometheus.Counter
	promCompleted      prometheus.Counter
	promFailed         prometheus.Counter
	promRetried        prometheus.Counter
	promLocksAcquired  prometheus.Counter
	promLocksReleased  prometheus.Counter
	promLockContention prometheus.Counter
}

// Snapshot is the counters view returned by the metrics API.
type Snapshot struct {
	TasksScheduled int64 `json:"tasks_scheduled"`
	TasksStarted   int64 `json:"tasks_started"`
	TasksCompleted int64 `json:"tasks_completed"`
	TasksFailed    int64 `json:"tasks_failed"`
	TasksRetried   int64 `json:"tasks_retried"`
	LocksAcquired  int64 `json:"locks_acquired"`
	LocksReleased  int64 `json:"locks_released"`
	LockContention int64 `json:"lock_contention"`
}

// NewMetrics creates the counter set and registers the prometheus mirrors
// with reg. A nil reg skips registration, which tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		promScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_tasks_scheduled_total",
			Help: "Tasks accepted by the scheduler.",
		}),
		promStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_tasks_started_total",
			Help: "Task execution attempts started.",
		}),
		promCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_tasks_completed_total",
			Help: "Tasks finished successfully.",
		}),
		promFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_tasks_failed_total",
			Help: "Tasks that reached terminal failure.",
		}),
		promRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_tasks_retried_total",
			Help: "Task attempts requeued for retry.",
		}),
		promLocksAcquired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_locks_acquired_total",
			Help: "Distributed locks acquired before dispatch.",
		}),
		promLocksReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_locks_released_total",
			Help: "Distributed locks released after execution.",
		}),
		promLockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_lock_contention_total",
			Help: "Dispatch attempts deferred because the lock was held elsewhere.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.promScheduled, m.promStarted, m.promCompleted, m.promFailed,
			m.promRetried, m.promLocksAcquired, m.promLocksReleased,
			m.promLockContention,
		)
	}

	return m
}

func (m *Metrics) TaskScheduled() {
	m.scheduled.Add(1)
	m.promScheduled.Inc()
}

func (m *Metrics) TaskStarted() {
	m.started.Add(1)
	m.promStarted.Inc()
}

func (m *Metrics) TaskCompleted() {
	m.completed.Add(1)
	m.promCompleted.Inc()
}

func (m *Metrics) TaskFailed() {
	m.failed.Add(1)
	m.promFailed.Inc()
}

func (m *Metrics) TaskRetried() {
	m.retried.Add(1)
	m.promRetried.Inc()
}

func (m *Metrics) LockAcquired() {
	m.locksAcquired.Add(1)
	m.promLocksAcquired.Inc()
}

func (m *Metrics) LockReleased() {
	m.locksReleased.Add(1)
	m.promLocksReleased.Inc()
}

func (m *Metrics) LockContended() {
	m.lockContention.Add(1)
	m.promLockContention.Inc()
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		TasksScheduled: m.scheduled.Load(),
		TasksStarted:   m.started.Load(),
		TasksCompleted: m.completed.Load(),
		TasksFailed:    m.failed.Load(),
		TasksRetried:   m.retried.Load(),
		LocksAcquired:  m.locksAcquired.Load(),
		LocksReleased:  m.locksReleased.Load(),
		LockContention: m.lockContention.Load(),
	}
}
