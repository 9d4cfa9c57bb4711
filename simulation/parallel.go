package simulation

import (
	"context"
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
)

// Source supplies uniform random values in [0, 1).
type Source interface {
	Float64() float64
}

// TrialFunc plays one complete game and returns the winning participant id.
// It must not touch shared mutable state.
type TrialFunc func(rng Source) int

// batch represents a single unit of scheduled work
type batch struct {
	Index int64
	Size  int64
}

// workerContext is the state owned by one pool slot for the whole run.
// Neither the generator nor the shard is ever handed to another goroutine.
type workerContext struct {
	ID       int
	rng      *rand.Rand
	shard    *Shard
	registry *Registry
}

func newWorkerContext(id int, registry *Registry) *workerContext {
	return &workerContext{
		ID:       id,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		registry: registry,
	}
}

// record adds a win to the worker's shard, creating and registering the
// shard on first use.
func (wc *workerContext) record(winner int) {
	if wc.shard == nil {
		wc.shard = NewShard()
		wc.registry.Register(wc.shard)
	}
	wc.shard.Increment(winner)
}

// startPool launches the feeder and the fixed set of workers. The returned
// group finishes once every batch has been run or ctx is done.
func (t *Tournament) startPool(ctx context.Context) *errgroup.Group {
	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan batch, t.parallelism)

	// Feed batches, then close to signal no more work
	g.Go(func() error {
		defer close(batches)
		for i := int64(0); i < t.batchCount; i++ {
			select {
			case batches <- batch{Index: i, Size: t.batchSize}:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	// Start workers
	for w := 0; w < t.parallelism; w++ {
		wc := newWorkerContext(w, t.registry)
		g.Go(func() error {
			return t.worker(gctx, wc, batches)
		})
	}

	return g
}

// worker processes batches until the channel is drained or ctx is done.
// A batch that has started always runs to completion.
func (t *Tournament) worker(ctx context.Context, wc *workerContext, batches <-chan batch) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case b, ok := <-batches:
			if !ok {
				return nil
			}
			if err := t.runBatch(wc, b); err != nil {
				return err
			}
		}
	}
}

// runBatch plays b.Size trials sequentially against the worker's shard
func (t *Tournament) runBatch(wc *workerContext, b batch) error {
	for i := int64(0); i < b.Size; i++ {
		winner := t.trial(wc.rng)
		if winner < 0 || winner >= t.participants {
			return fmt.Errorf("%w: batch %d on worker %d produced %d for %d participants",
				ErrInvalidWinner, b.Index, wc.ID, winner, t.participants)
		}
		wc.record(winner)
	}

	t.completedTrials.Add(uint64(b.Size))
	done := t.completedBatches.Add(1)
	if t.OnBatchComplete != nil {
		t.OnBatchComplete(done, t.batchCount)
	}
	return nil
}
