package dd

import (
	"context"
	"sync/atomic"

	"github.com/vk/hddreduce/internal/ctxlog"
	"golang.org/x/sync/errgroup"
)

// firstFailingParallel tests cands with a bounded pool of goroutines and
// returns the position of the first failing candidate in iteration order.
//
// Once a candidate at position p fails, candidates after p are no longer
// started. Every candidate before the final winner has been tested, so the
// answer matches the sequential search.
func (r *Reducer) firstFailingParallel(ctx context.Context, cands []candidate) (int, error) {
	logger := ctxlog.FromContext(ctx)
	workers := r.cfg.Workers()
	logger.Debug("Testing candidates in parallel.", "candidates", len(cands), "workers", workers)

	var best atomic.Int64
	best.Store(int64(len(cands)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for pos := range cands {
		if best.Load() < int64(pos) || gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if best.Load() < int64(pos) {
				return nil
			}
			c := cands[pos]
			outcome, err := r.test(gctx, c.config, c.id)
			if err != nil {
				return err
			}
			if outcome != Fail {
				return nil
			}
			for {
				cur := best.Load()
				if int64(pos) >= cur || best.CompareAndSwap(cur, int64(pos)) {
					return nil
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return -1, err
	}
	if found := best.Load(); found < int64(len(cands)) {
		return int(found), nil
	}
	return -1, nil
}
