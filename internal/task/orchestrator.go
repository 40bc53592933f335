package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/config"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/lock"
)

// maxIdleWait bounds how long the dispatch loop sleeps without an event,
// so externally promoted work (e.g. after a crash recovery) is never
// stranded.
const maxIdleWait = time.Second

// maxRetryDelay caps the exponential backoff between attempts.
const maxRetryDelay = 15 * time.Minute

// storeSyncInterval bounds how often the dispatch loop polls the shared
// task store for work scheduled by other instances.
const storeSyncInterval = time.Second

// Throttle is the resource-pressure signal consulted before dispatching
// new tasks. The resource monitor implements it.
type Throttle interface {
	Overloaded() bool
}

// Orchestrator owns the task lifecycle: queueing, lock acquisition around
// dispatch, execution through the configured strategy, retry with
// exponential backoff, and the status/metrics surface. Construct one per
// process and pass it by reference; there is no package-level instance.
type Orchestrator struct {
	cfg        config.OrchestratorConfig
	logger     *slog.Logger
	clock      clockwork.Clock
	locks      lock.Manager
	store      Store
	metrics    *Metrics
	throttle   Throttle
	instanceID string

	executors map[ExecutorMode]Executor

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	mu       sync.Mutex
	pending  *pendingQueue
	delayed  *delayedQueue
	tasks    map[uuid.UUID]*Task
	backoffs map[uuid.UUID]*backoff.ExponentialBackOff
	running  int
	closed   bool

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRemoteDispatcher wires the external worker pool used by
// remote-mode tasks.
func WithRemoteDispatcher(d RemoteDispatcher) Option {
	return func(o *Orchestrator) {
		o.executors[ExecutorRemote] = remoteExecutor{dispatcher: d}
	}
}

// WithThrottle wires the resource-pressure signal that pauses dispatch.
func WithThrottle(t Throttle) Option {
	return func(o *Orchestrator) {
		o.throttle = t
	}
}

// New creates an orchestrator. store may be nil for memory-only task
// records; locks is required (use lock.NewMemoryManager for
// single-instance deployments).
func New(
	cfg config.OrchestratorConfig,
	locks lock.Manager,
	store Store,
	metrics *Metrics,
	clock clockwork.Clock,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		logger:     logger.With("component", "orchestrator"),
		clock:      clock,
		locks:      locks,
		store:      store,
		metrics:    metrics,
		instanceID: uuid.New().String(),
		handlers:   make(map[string]Handler),
		pending:    newPendingQueue(),
		delayed:    newDelayedQueue(),
		tasks:      make(map[uuid.UUID]*Task),
		backoffs:   make(map[uuid.UUID]*backoff.ExponentialBackOff),
		wake:       make(chan struct{}, 1),
	}

	o.executors = map[ExecutorMode]Executor{
		ExecutorInProcess:  inProcessExecutor{},
		ExecutorSubprocess: newSubprocessExecutor(cfg.WorkerCommand, o.logger),
		ExecutorRemote:     remoteExecutor{},
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// RegisterHandler binds a handler to a task type. Registration after
// Start is allowed; the registry is read-locked per dispatch.
func (o *Orchestrator) RegisterHandler(taskType string, h Handler) {
	o.handlersMu.Lock()
	defer o.handlersMu.Unlock()
	o.handlers[taskType] = h
}

// Start recovers persisted work and launches the background loops.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	if err := o.recover(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to recover persisted tasks: %w", err)
	}

	o.wg.Add(2)
	go o.runLoop(ctx)
	go o.purgeLoop(ctx)

	o.logger.Info("orchestrator started",
		"instance_id", o.instanceID,
		"max_concurrent_tasks", o.cfg.MaxConcurrentTasks,
		"executor_mode", o.cfg.ExecutorMode)
	return nil
}

// Stop rejects further schedule calls, cancels the loops and waits for
// in-flight tasks to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
	o.logger.Info("orchestrator stopped")
}

// Schedule accepts a new task. Defaults are applied for unset options,
// the record is persisted when a store is configured, and the task enters
// the delayed or pending queue according to its delay.
func (o *Orchestrator) Schedule(ctx context.Context, taskType string, payload map[string]any, opts Options) (*Task, error) {
	if taskType == "" {
		return nil, ErrEmptyTaskType
	}
	o.applyDefaults(&opts)
	if !validExecutorMode(opts.ExecutorMode) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidExecutor, opts.ExecutorMode)
	}
	if opts.ExecutorMode == ExecutorInProcess && o.handler(taskType) == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, taskType)
	}

	now := o.clock.Now().UTC()
	t := &Task{
		ID:          uuid.New(),
		Type:        taskType,
		Payload:     payload,
		Options:     opts,
		Status:      StatusScheduled,
		CreatedAt:   now,
		ScheduledAt: now.Add(opts.Delay),
	}

	if o.store != nil {
		if err := o.store.SaveTask(ctx, t); err != nil {
			return nil, fmt.Errorf("failed to persist task: %w", err)
		}
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrShuttingDown
	}
	o.tasks[t.ID] = t
	if opts.Delay > 0 {
		o.delayed.push(t)
	} else {
		o.pending.push(t)
	}
	o.mu.Unlock()

	o.metrics.TaskScheduled()
	o.logger.Info("task scheduled",
		"task_id", t.ID,
		"task_type", taskType,
		"priority", opts.Priority,
		"lock_key", opts.LockKey,
		"delay", opts.Delay,
		"executor_mode", opts.ExecutorMode)

	o.signalWake()
	return t.Clone(), nil
}

// GetMetrics returns the lifecycle counters.
func (o *Orchestrator) GetMetrics() Snapshot {
	return o.metrics.Snapshot()
}

// GetTaskStatus returns a copy of the task record, or ErrTaskNotFound.
// Terminal tasks stay inspectable until the retention TTL purges them.
func (o *Orchestrator) GetTaskStatus(id uuid.UUID) (*Task, error) {
	o.mu.Lock()
	t, ok := o.tasks[id]
	o.mu.Unlock()
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t.Clone(), nil
}

// GetActiveTasks returns copies of every non-terminal task.
func (o *Orchestrator) GetActiveTasks() []*Task {
	o.mu.Lock()
	defer o.mu.Unlock()

	active := make([]*Task, 0, len(o.tasks))
	for _, t := range o.tasks {
		if !t.Status.Terminal() {
			active = append(active, t.Clone())
		}
	}
	return active
}

// applyDefaults fills unset options from configuration. A zero RetryLimit
// means "no retries"; only a negative value falls back to the default.
func (o *Orchestrator) applyDefaults(opts *Options) {
	if opts.ExecutorMode == "" {
		opts.ExecutorMode = ExecutorMode(o.cfg.ExecutorMode)
	}
	if opts.RetryLimit < 0 {
		opts.RetryLimit = o.cfg.RetryLimit
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = o.cfg.RetryDelay
	}
}

func (o *Orchestrator) handler(taskType string) Handler {
	o.handlersMu.RLock()
	defer o.handlersMu.RUnlock()
	return o.handlers[taskType]
}

func (o *Orchestrator) signalWake() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// recover reloads persisted non-terminal tasks after a restart. Tasks
// interrupted mid-run are reset to scheduled and requeued; their handlers
// must be idempotent, which is the engine's at-least-once contract.
func (o *Orchestrator) recover(ctx context.Context) error {
	if o.store == nil {
		return nil
	}

	scheduled, err := o.store.ListByStatus(ctx, StatusScheduled)
	if err != nil {
		return err
	}
	interrupted, err := o.store.ListByStatus(ctx, StatusRunning)
	if err != nil {
		return err
	}

	now := o.clock.Now().UTC()
	o.mu.Lock()
	for _, t := range scheduled {
		o.tasks[t.ID] = t
		if t.ScheduledAt.After(now) {
			o.delayed.push(t)
		} else {
			o.pending.push(t)
		}
	}
	for _, t := range interrupted {
		t.Status = StatusScheduled
		t.StartedAt = nil
		t.ScheduledAt = now
		o.tasks[t.ID] = t
		o.pending.push(t)
	}
	o.mu.Unlock()

	for _, t := range interrupted {
		if err := o.persist(ctx, t); err != nil {
			o.logger.Warn("failed to persist recovered task", "task_id", t.ID, "error", err)
		}
	}

	if len(scheduled)+len(interrupted) > 0 {
		o.logger.Info("recovered persisted tasks",
			"scheduled", len(scheduled),
			"interrupted", len(interrupted))
	}
	return nil
}

// syncFromStore adopts scheduled records persisted by other instances, so
// a task accepted anywhere in the cluster becomes dispatchable everywhere
// and the highest-priority pending work is pulled by whichever instance
// gets to it first. The lock manager arbitrates who actually runs it.
func (o *Orchestrator) syncFromStore(ctx context.Context) {
	rows, err := o.store.ListByStatus(ctx, StatusScheduled)
	if err != nil {
		o.logger.Warn("failed to poll task store for scheduled work", "error", err)
		return
	}

	now := o.clock.Now().UTC()
	adopted := 0
	o.mu.Lock()
	for _, t := range rows {
		if _, known := o.tasks[t.ID]; known {
			continue
		}
		// In-process work needs its handler registered here; leave it to
		// the instances that have one.
		if t.Options.ExecutorMode == ExecutorInProcess && o.handler(t.Type) == nil {
			continue
		}
		o.tasks[t.ID] = t
		if t.ScheduledAt.After(now) {
			o.delayed.push(t)
		} else {
			o.pending.push(t)
		}
		adopted++
	}
	o.mu.Unlock()

	if adopted > 0 {
		o.logger.Info("adopted scheduled tasks from the store", "count", adopted)
		o.signalWake()
	}
}

// runLoop is the single dispatch loop for this instance: it adopts work
// other instances persisted to the shared store, promotes due delayed
// tasks, dispatches eligible pending tasks up to the concurrency limit,
// then sleeps until the next due time, a wake signal, or the idle bound,
// whichever comes first.
func (o *Orchestrator) runLoop(ctx context.Context) {
	defer o.wg.Done()

	var lastSync time.Time
	for {
		if now := o.clock.Now(); o.store != nil && now.Sub(lastSync) >= storeSyncInterval {
			o.syncFromStore(ctx)
			lastSync = now
		}
		o.promoteDue()
		o.dispatchEligible(ctx)

		wait := o.nextWakeIn()
		select {
		case <-ctx.Done():
			return
		case <-o.wake:
		case <-o.clock.After(wait):
		}
	}
}

// promoteDue moves delayed tasks whose time has come into the pending
// queue, where priority ordering takes over.
func (o *Orchestrator) promoteDue() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, t := range o.delayed.popDue(o.clock.Now().UTC()) {
		o.pending.push(t)
	}
}

func (o *Orchestrator) nextWakeIn() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()

	wait := maxIdleWait
	if due := o.delayed.nextDue(); !due.IsZero() {
		if d := due.Sub(o.clock.Now().UTC()); d < wait {
			wait = d
		}
	}
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

// dispatchEligible starts pending tasks while concurrency slots are free
// and the host is not overloaded. A task whose lock is held elsewhere is
// pushed back as delayed rather than blocking the loop, so contention on
// one lock key never starves the others.
func (o *Orchestrator) dispatchEligible(ctx context.Context) {
	for {
		if o.throttle != nil && o.throttle.Overloaded() {
			// Resource exhaustion is a throttling signal, not an error:
			// hold new dispatch until pressure clears.
			return
		}

		o.mu.Lock()
		if o.running >= o.cfg.MaxConcurrentTasks {
			o.mu.Unlock()
			return
		}
		t := o.pending.pop()
		o.mu.Unlock()
		if t == nil {
			return
		}

		lockKey := t.lockKey()
		acquired, err := o.locks.Acquire(ctx, lockKey, o.instanceID, o.cfg.LockTTL)
		if err != nil {
			o.logger.Warn("lock acquire error", "lock_key", lockKey, "error", err)
		}
		if !acquired {
			o.metrics.LockContended()
			o.requeueContended(t)
			continue
		}
		o.metrics.LockAcquired()

		if !o.confirmRunnable(ctx, t) {
			o.releaseLock(lockKey, o.logger)
			continue
		}

		now := o.clock.Now().UTC()
		o.mu.Lock()
		t.Status = StatusRunning
		t.StartedAt = &now
		t.Attempts++
		o.running++
		o.mu.Unlock()
		o.metrics.TaskStarted()
		if err := o.persist(ctx, t); err != nil {
			o.logger.Warn("failed to persist task start", "task_id", t.ID, "error", err)
		}

		o.wg.Add(1)
		go o.runTask(ctx, t, lockKey)
	}
}

// confirmRunnable re-reads the persisted record while holding the lock.
// Another instance may have finished the task while it waited in this
// instance's queue; adopting that outcome instead of dispatching is what
// keeps shared tasks from running once per instance. An unreadable store
// never blocks dispatch, the contract is at-least-once.
func (o *Orchestrator) confirmRunnable(ctx context.Context, t *Task) bool {
	if o.store == nil {
		return true
	}
	rec, err := o.store.GetTask(ctx, t.ID.String())
	if err != nil || !rec.Status.Terminal() {
		return true
	}

	o.mu.Lock()
	o.tasks[t.ID] = rec
	o.mu.Unlock()
	o.logger.Info("task already finished on another instance",
		"task_id", t.ID,
		"task_type", t.Type,
		"status", rec.Status)
	return false
}

// requeueContended pushes a task back for another dispatch attempt after
// its retry delay. Contention does not consume a retry attempt.
func (o *Orchestrator) requeueContended(t *Task) {
	o.mu.Lock()
	defer o.mu.Unlock()

	t.ScheduledAt = o.clock.Now().UTC().Add(t.Options.RetryDelay)
	// Surface the wait reason in the status API; cleared on the next
	// successful attempt.
	t.Error = ErrLockContention.Error()
	o.delayed.push(t)
	o.logger.Debug("lock contention, task requeued",
		"task_id", t.ID,
		"lock_key", t.lockKey(),
		"retry_in", t.Options.RetryDelay)
}

// runTask executes one attempt and settles the outcome. The lock renewal
// loop runs for the duration of the attempt, and the lock is released on
// every exit path, including panics inside the handler.
func (o *Orchestrator) runTask(ctx context.Context, t *Task, lockKey string) {
	defer o.wg.Done()

	log := o.logger.With(
		"task_id", t.ID,
		"task_type", t.Type,
		"attempt", t.Attempts)

	renewer := lock.NewRenewer(o.locks, lockKey, o.instanceID, o.cfg.LockTTL, o.clock, log)
	renewer.Start(ctx)

	defer func() {
		renewer.Stop()
		o.releaseLock(lockKey, log)
	}()

	execCtx := ctx
	if t.Options.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, t.Options.Timeout)
		defer cancel()
	}

	log.Info("task started")
	result, err := o.execute(execCtx, t)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	o.settle(ctx, t, result, err, log)
}

// releaseLock returns the lock on a fresh context; the dispatch context
// may already be cancelled during shutdown and release must still go out.
func (o *Orchestrator) releaseLock(lockKey string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.LockTTL)
	defer cancel()
	if released, err := o.locks.Release(ctx, lockKey, o.instanceID); err != nil {
		log.Warn("lock release error", "lock_key", lockKey, "error", err)
	} else if released {
		o.metrics.LockReleased()
	} else {
		log.Warn("lock already lost at release", "lock_key", lockKey)
	}
}

// execute runs the task through its executor, converting handler panics
// into errors so one bad handler cannot take the process down.
func (o *Orchestrator) execute(ctx context.Context, t *Task) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panic: %v, stacktrace: %s", p, debug.Stack())
		}
	}()

	executor := o.executors[t.Options.ExecutorMode]
	return executor.Execute(ctx, t, o.handler(t.Type))
}

// settle applies the outcome of one attempt: completion, retry with
// backoff, or terminal failure once attempts are exhausted.
func (o *Orchestrator) settle(ctx context.Context, t *Task, result any, execErr error, log *slog.Logger) {
	now := o.clock.Now().UTC()

	o.mu.Lock()
	o.running--

	switch {
	case execErr == nil:
		t.Status = StatusCompleted
		t.CompletedAt = &now
		t.Result = result
		t.Error = ""
		delete(o.backoffs, t.ID)
		o.mu.Unlock()

		o.metrics.TaskCompleted()
		log.Info("task completed", "duration", now.Sub(*t.StartedAt))

	case t.Attempts <= t.Options.RetryLimit:
		delay := o.nextRetryDelay(t)
		t.Status = StatusScheduled
		t.Error = execErr.Error()
		t.ScheduledAt = now.Add(delay)
		o.delayed.push(t)
		o.mu.Unlock()

		o.metrics.TaskRetried()
		log.Warn("task failed, will retry",
			"error", execErr,
			"retry_in", delay,
			"attempts_left", t.Options.RetryLimit+1-t.Attempts)

	default:
		t.Status = StatusFailed
		t.CompletedAt = &now
		t.Error = execErr.Error()
		delete(o.backoffs, t.ID)
		o.mu.Unlock()

		o.metrics.TaskFailed()
		log.Error("task failed permanently",
			"error", execErr,
			"attempts", t.Attempts)
	}

	if err := o.persist(ctx, t); err != nil {
		log.Warn("failed to persist task outcome", "error", err)
	}
	o.signalWake()
}

// nextRetryDelay returns RetryDelay * 2^(attempts-1), tracked per task
// through a zero-jitter exponential backoff. Callers hold o.mu.
func (o *Orchestrator) nextRetryDelay(t *Task) time.Duration {
	b, ok := o.backoffs[t.ID]
	if !ok {
		b = backoff.NewExponentialBackOff()
		b.InitialInterval = t.Options.RetryDelay
		b.RandomizationFactor = 0
		b.Multiplier = 2
		b.MaxInterval = maxRetryDelay
		b.MaxElapsedTime = 0
		b.Reset()
		o.backoffs[t.ID] = b
	}
	return b.NextBackOff()
}

// persist writes the task record back when a store is configured.
// Persistence failures never block the lifecycle; records degrade to
// memory-only.
func (o *Orchestrator) persist(ctx context.Context, t *Task) error {
	if o.store == nil {
		return nil
	}
	o.mu.Lock()
	snapshot := t.Clone()
	o.mu.Unlock()
	return o.store.UpdateTask(ctx, snapshot)
}

// purgeLoop drops terminal task records older than the configured TTL
// from memory and, when a store is present, from the database.
func (o *Orchestrator) purgeLoop(ctx context.Context) {
	defer o.wg.Done()

	interval := o.cfg.TaskTTL / 10
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := o.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			o.purgeTerminal(ctx)
		}
	}
}

func (o *Orchestrator) purgeTerminal(ctx context.Context) {
	cutoff := o.clock.Now().UTC().Add(-o.cfg.TaskTTL)

	o.mu.Lock()
	purged := 0
	for id, t := range o.tasks {
		if t.Status.Terminal() && t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			delete(o.tasks, id)
			delete(o.backoffs, id)
			purged++
		}
	}
	o.mu.Unlock()

	if o.store != nil {
		if n, err := o.store.DeleteTerminalBefore(ctx, cutoff); err != nil {
			o.logger.Warn("failed to purge persisted task records", "error", err)
		} else if n > 0 {
			o.logger.Debug("purged persisted task records", "count", n)
		}
	}
	if purged > 0 {
		o.logger.Debug("purged terminal task records", "count", purged)
	}
}

// lockKey returns the task's mutual-exclusion domain, defaulting to the
// task type.
func (t *Task) lockKey() string {
	if t.Options.LockKey != "" {
		return t.Options.LockKey
	}
	return t.Type
}
