package resource

import (
	"sync"
	"time"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/config"
)

// Tunables holds the live batch parameters shared between the resource
// monitor (writer) and the batch processor (reader). Values always stay
// within the configured bounds.
type Tunables struct {
	mu          sync.Mutex
	size        int
	delay       time.Duration
	concurrency int

	sizeMin  int
	sizeMax  int
	delayMin time.Duration
	delayMax time.Duration
}

// NewTunables seeds the tunables from configuration.
func NewTunables(cfg config.BatchConfig) *Tunables {
	return &Tunables{
		size:        cfg.Size,
		delay:       cfg.Delay,
		concurrency: cfg.Concurrency,
		sizeMin:     cfg.SizeMin,
		sizeMax:     cfg.SizeMax,
		delayMin:    cfg.DelayMin,
		delayMax:    cfg.DelayMax,
	}
}

// Batch returns the current chunk size and inter-wave delay.
func (t *Tunables) Batch() (int, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size, t.delay
}

// Concurrency returns the configured chunk parallelism.
func (t *Tunables) Concurrency() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.concurrency
}

// Narrow shrinks the batch size and stretches the delay in response to
// resource pressure: size ×0.7 (floor at the minimum), delay ×1.5
// (ceiling at the maximum).
func (t *Tunables) Narrow() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.size = int(float64(t.size) * 0.7)
	if t.size < t.sizeMin {
		t.size = t.sizeMin
	}

	t.delay = time.Duration(float64(t.delay) * 1.5)
	if t.delay > t.delayMax {
		t.delay = t.delayMax
	}
}

// Widen grows the batch size and shortens the delay when the host is
// comfortably idle: size ×1.2 (ceiling at the maximum), delay ×0.8
// (floor at the minimum).
func (t *Tunables) Widen() {
	t.mu.Lock()
	defer t.mu.Unlock()

	grown := int(float64(t.size) * 1.2)
	if grown == t.size {
		grown = t.size + 1
	}
	t.size = grown
	if t.size > t.sizeMax {
		t.size = t.sizeMax
	}

	t.delay = time.Duration(float64(t.delay) * 0.8)
	if t.delay < t.delayMin {
		t.delay = t.delayMin
	}
}

// Scaled is a derived read-only view over a Tunables that divides the
// chunk size and multiplies the delay. The backup-heavy deletion job uses
// it to run smaller sub-batches with a longer pause while still following
// the monitor's live adjustments.
type Scaled struct {
	base     *Tunables
	sizeDiv  int
	delayMul float64
}

// NewScaled derives a scaled view. sizeDiv < 1 is treated as 1.
func NewScaled(base *Tunables, sizeDiv int, delayMul float64) *Scaled {
	if sizeDiv < 1 {
		sizeDiv = 1
	}
	return &Scaled{base: base, sizeDiv: sizeDiv, delayMul: delayMul}
}

// Batch returns the scaled chunk size (never below 1) and delay.
func (s *Scaled) Batch() (int, time.Duration) {
	size, delay := s.base.Batch()
	size /= s.sizeDiv
	if size < 1 {
		size = 1
	}
	return size, time.Duration(float64(delay) * s.delayMul)
}
