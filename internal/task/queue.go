package task

import (
	"container/heap"
	"time"
)

// pendingQueue orders eligible tasks by priority (higher first), breaking
// ties by earlier scheduled time, then by insertion order for stability.
type pendingQueue struct {
	items []*pendingItem
	seq   uint64
}

type pendingItem struct {
	task *Task
	seq  uint64
}

func newPendingQueue() *pendingQueue {
	q := &pendingQueue{}
	heap.Init(q)
	return q
}

func (q *pendingQueue) Len() int { return len(q.items) }

func (q *pendingQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.task.Options.Priority != b.task.Options.Priority {
		return a.task.Options.Priority > b.task.Options.Priority
	}
	if !a.task.ScheduledAt.Equal(b.task.ScheduledAt) {
		return a.task.ScheduledAt.Before(b.task.ScheduledAt)
	}
	return a.seq < b.seq
}

func (q *pendingQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *pendingQueue) Push(x any) {
	q.items = append(q.items, x.(*pendingItem))
}

func (q *pendingQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return item
}

// push enqueues a task.
func (q *pendingQueue) push(t *Task) {
	q.seq++
	heap.Push(q, &pendingItem{task: t, seq: q.seq})
}

// pop dequeues the highest-priority task, or nil when empty.
func (q *pendingQueue) pop() *Task {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*pendingItem).task
}

// delayedQueue is a min-heap of tasks keyed by their due time.
type delayedQueue struct {
	items []*Task
}

func newDelayedQueue() *delayedQueue {
	q := &delayedQueue{}
	heap.Init(q)
	return q
}

func (q *delayedQueue) Len() int { return len(q.items) }

func (q *delayedQueue) Less(i, j int) bool {
	return q.items[i].ScheduledAt.Before(q.items[j].ScheduledAt)
}

func (q *delayedQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *delayedQueue) Push(x any) {
	q.items = append(q.items, x.(*Task))
}

func (q *delayedQueue) Pop() any {
	old := q.items
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return t
}

// push enqueues a task to wait until its scheduled time.
func (q *delayedQueue) push(t *Task) {
	heap.Push(q, t)
}

// popDue removes and returns every task whose scheduled time has arrived.
func (q *delayedQueue) popDue(now time.Time) []*Task {
	var due []*Task
	for q.Len() > 0 && !q.items[0].ScheduledAt.After(now) {
		due = append(due, heap.Pop(q).(*Task))
	}
	return due
}

// nextDue returns the earliest scheduled time in the queue, or the zero
// time when empty.
func (q *delayedQueue) nextDue() time.Time {
	if q.Len() == 0 {
		return time.Time{}
	}
	return q.items[0].ScheduledAt
}
