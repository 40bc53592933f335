// Package batch implements a generic concurrency-limited batch processor.
// Items are partitioned into chunks, chunks run in parallel waves, and a
// failing chunk is recorded without aborting the rest of the run. Chunk
// size and inter-wave delay are read from shared tunables before every
// wave, so the resource monitor can narrow or widen them while a run is in
// progress.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/platform/logger"
)

// ChunkFn processes one chunk of items. An error fails the whole chunk;
// item-level partial success inside a chunk is the function's own business.
type ChunkFn[T any] func(ctx context.Context, items []T) error

// TunableSource supplies the current chunk size and inter-wave delay.
// resource.Tunables implements it; tests use fixed values.
type TunableSource interface {
	Batch() (size int, delay time.Duration)
}

// Options configures one processing run.
type Options struct {
	// Tunables supplies the chunk size and inter-wave delay, re-read
	// before each wave. Required.
	Tunables TunableSource

	// Concurrency caps how many chunks run in parallel within one wave.
	// Zero or negative means 1 (strictly sequential chunks).
	Concurrency int

	// OnBatchComplete, when set, is called after each chunk finishes with
	// the chunk index and the number of items processed so far.
	OnBatchComplete func(batch, processed int)
}

// ChunkError records one failed chunk. Message carries the failure cause
// into serialized results (task records, the status API), where the
// wrapped error itself cannot travel.
type ChunkError struct {
	Batch   int    `json:"batch"`
	Items   int    `json:"items"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e ChunkError) Error() string {
	return fmt.Sprintf("batch %d (%d items): %v", e.Batch, e.Items, e.Err)
}

func (e ChunkError) Unwrap() error { return e.Err }

// Result accumulates counts across a run. Counts are updated after every
// wave, so a run aborted mid-way still reports what it got through.
type Result struct {
	TotalItems      int           `json:"total_items"`
	ProcessedItems  int           `json:"processed_items"`
	SuccessfulItems int           `json:"successful_items"`
	FailedItems     int           `json:"failed_items"`
	Batches         int           `json:"batches"`
	Errors          []ChunkError  `json:"errors,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Processor runs batch jobs against a clock, which tests replace with a
// fake. The zero value is not usable; construct with New.
type Processor struct {
	clock clockwork.Clock
}

// New creates a batch processor.
func New(clock clockwork.Clock) *Processor {
	return &Processor{clock: clock}
}

// Process partitions items into chunks and runs them in parallel waves.
// Chunk failures are collected in Result.Errors; the only error condition
// for the run itself is context cancellation, which returns the partial
// result alongside ctx.Err().
func Process[T any](ctx context.Context, p *Processor, items []T, fn ChunkFn[T], opts Options) (*Result, error) {
	log := logger.FromContext(ctx)
	start := p.clock.Now()

	res := &Result{TotalItems: len(items)}
	defer func() { res.Duration = p.clock.Since(start) }()

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	cursor := 0
	for cursor < len(items) {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		size, delay := opts.Tunables.Batch()
		chunks := carve(items[cursor:], size, concurrency)

		type chunkOutcome struct {
			batch int
			items int
			err   error
		}
		outcomes := make([]chunkOutcome, len(chunks))

		g, gctx := errgroup.WithContext(ctx)
		for i, chunk := range chunks {
			i, chunk := i, chunk
			g.Go(func() error {
				err := func() (err error) {
					defer func() {
						if p := recover(); p != nil {
							err = fmt.Errorf("panic in batch chunk: %v", p)
						}
					}()
					return fn(gctx, chunk)
				}()
				outcomes[i] = chunkOutcome{batch: res.Batches + i, items: len(chunk), err: err}
				// Never propagate: a failed chunk must not cancel its
				// siblings or abort the run.
				return nil
			})
		}
		_ = g.Wait()

		for _, oc := range outcomes {
			res.ProcessedItems += oc.items
			if oc.err != nil {
				res.FailedItems += oc.items
				res.Errors = append(res.Errors, ChunkError{
					Batch:   oc.batch,
					Items:   oc.items,
					Message: oc.err.Error(),
					Err:     oc.err,
				})
				log.Warn("batch chunk failed",
					"batch", oc.batch,
					"items", oc.items,
					"error", oc.err)
			} else {
				res.SuccessfulItems += oc.items
			}
			if opts.OnBatchComplete != nil {
				opts.OnBatchComplete(oc.batch, res.ProcessedItems)
			}
			cursor += oc.items
		}
		res.Batches += len(chunks)

		// Back-pressure pause between waves, skipped after the last one.
		if cursor < len(items) && delay > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-p.clock.After(delay):
			}
		}
	}

	return res, nil
}

// carve slices up to maxChunks chunks of at most size items off the front
// of items.
func carve[T any](items []T, size, maxChunks int) [][]T {
	if size < 1 {
		size = 1
	}
	var chunks [][]T
	for len(items) > 0 && len(chunks) < maxChunks {
		n := size
		if n > len(items) {
			n = len(items)
		}
		chunks = append(chunks, items[:n])
		items = items[n:]
	}
	return chunks
}
