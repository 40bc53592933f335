package task

import "errors"

// Error taxonomy for task execution. Lock contention and resource
// exhaustion are throttling signals handled by rescheduling; execution
// failures consume retry attempts; timeouts are a kind of execution
// failure. None of these cross a process boundary uncaught; they end up
// on the task record and in the status API.
var (
	// ErrLockContention means another instance holds the task's lock.
	// Non-fatal: the task is requeued after its retry delay.
	ErrLockContention = errors.New("lock held by another instance")

	// ErrTimeout means one execution attempt exceeded its deadline. The
	// subprocess strategy reports it after killing the worker.
	ErrTimeout = errors.New("task execution timed out")

	// ErrNoHandler means no handler is registered for the task type.
	ErrNoHandler = errors.New("no handler registered for task type")

	// ErrNoDispatcher means a remote-mode task was dispatched without a
	// configured remote dispatcher.
	ErrNoDispatcher = errors.New("no remote dispatcher configured")

	// ErrTaskNotFound is returned by the status API for unknown task IDs.
	ErrTaskNotFound = errors.New("task not found")

	// ErrShuttingDown rejects new schedule calls during shutdown.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)
