package lock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Renewer keeps one held lock alive by renewing it at ttl/3 intervals
// while the owning task runs. Its lifetime is tied to the task: the loop
// terminates on Stop, on context cancellation, or on the first failed
// renewal (ownership lost), so no timer outlives its lock.
type Renewer struct {
	manager Manager
	key     string
	owner   string
	ttl     time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRenewer prepares a renewal loop for an already-acquired lock.
func NewRenewer(manager Manager, key, owner string, ttl time.Duration, clock clockwork.Clock, logger *slog.Logger) *Renewer {
	return &Renewer{
		manager: manager,
		key:     key,
		owner:   owner,
		ttl:     ttl,
		clock:   clock,
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the renewal loop in the background.
func (r *Renewer) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop terminates the renewal loop and waits for it to exit. Safe to call
// more than once.
func (r *Renewer) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

func (r *Renewer) run(ctx context.Context) {
	defer close(r.done)

	ticker := r.clock.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.Chan():
			ok, err := r.manager.Renew(ctx, r.key, r.owner, r.ttl)
			if err != nil {
				r.logger.Warn("lock renewal error",
					"lock_key", r.key,
					"error", err)
				continue
			}
			if !ok {
				// Ownership lost, e.g. the ttl already expired and
				// another instance took the key. Self-terminate.
				r.logger.Warn("lock ownership lost, stopping renewal",
					"lock_key", r.key,
					"owner", r.owner)
				return
			}
			r.logger.Debug("lock renewed",
				"lock_key", r.key,
				"ttl", r.ttl)
		}
	}
}
