package dd

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/hddreduce/internal/ctxlog"
)

// Kind selects the reducer implementation.
type Kind int

const (
	// LightDD tests one candidate at a time.
	LightDD Kind = iota
	// ParallelDD tests the candidates of one phase concurrently.
	ParallelDD
	// CombinedParallelDD tests subsets and complements in one concurrent pass.
	CombinedParallelDD
)

// String returns the name of the reducer kind.
func (k Kind) String() string {
	switch k {
	case LightDD:
		return "LightDD"
	case ParallelDD:
		return "ParallelDD"
	case CombinedParallelDD:
		return "CombinedParallelDD"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Parallel reports whether the kind runs candidates concurrently.
func (k Kind) Parallel() bool {
	return k == ParallelDD || k == CombinedParallelDD
}

// Config holds the strategy choices of a reducer.
type Config struct {
	Split              Splitter
	SubsetFirst        bool
	SubsetIterator     Iterator
	ComplementIterator Iterator
	// ConfigIterator is the merged order used by CombinedParallelDD.
	ConfigIterator Iterator

	// Jobs and MaxUtilization bound the worker pool of the parallel kinds.
	Jobs           int
	MaxUtilization int
}

// Workers returns how many candidates may be tested at once.
func (c Config) Workers() int {
	w := c.Jobs * c.MaxUtilization / 100
	if w < 1 {
		return 1
	}
	return w
}

// Reducer minimises a configuration with delta debugging.
type Reducer struct {
	kind   Kind
	cfg    Config
	tester Tester
	build  Builder
	cache  Cache
	prefix string
}

// New creates a reducer. A nil cache disables caching.
func New(kind Kind, cfg Config, tester Tester, build Builder, cache Cache) (*Reducer, error) {
	if cfg.Split == nil {
		return nil, errors.New("dd: split method is required")
	}
	switch kind {
	case LightDD, ParallelDD:
		if cfg.SubsetIterator == nil || cfg.ComplementIterator == nil {
			return nil, fmt.Errorf("dd: %s requires subset and complement iterators", kind)
		}
	case CombinedParallelDD:
		if cfg.ConfigIterator == nil {
			return nil, fmt.Errorf("dd: %s requires a combined config iterator", kind)
		}
	default:
		return nil, fmt.Errorf("dd: unknown reducer kind %d", int(kind))
	}
	if tester == nil || build == nil {
		return nil, errors.New("dd: tester and builder are required")
	}
	if cache == nil {
		cache = NoCache{}
	}
	return &Reducer{kind: kind, cfg: cfg, tester: tester, build: build, cache: cache}, nil
}

// Named sets a prefix for the candidate IDs handed to the tester.
func (r *Reducer) Named(prefix string) *Reducer {
	r.prefix = prefix
	return r
}

// candidate is a subset (index >= 0) or a complement (index encoded as -i-1).
type candidate struct {
	encoded int
	config  []int
	id      string
}

// Reduce returns a failing configuration contained in config from which no
// single part at the finest granularity can be removed. config itself is
// assumed to fail.
func (r *Reducer) Reduce(ctx context.Context, config []int) ([]int, error) {
	logger := ctxlog.FromContext(ctx).With("reducer", r.kind.String(), "prefix", r.prefix)
	logger.Debug("Delta debugging started.", "size", len(config))

	n := 2
	offset := 0
	for run := 0; len(config) > 0; run++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		subsets := r.cfg.Split(config, n)
		next, nextN, nextOffset, err := r.step(ctx, run, subsets, offset)
		if err != nil {
			return nil, err
		}
		if next != nil {
			logger.Debug("Configuration reduced.", "run", run, "from", len(config), "to", len(next))
			config, n, offset = next, nextN, nextOffset
			continue
		}

		if len(subsets) < len(config) {
			n = min(len(config), len(subsets)*2)
			logger.Debug("Increasing granularity.", "run", run, "n", n)
			continue
		}
		break
	}

	logger.Debug("Delta debugging finished.", "size", len(config))
	return config, nil
}

// step tries the candidates of one granularity and returns the first failing
// one with the granularity and complement offset to continue with.
func (r *Reducer) step(ctx context.Context, run int, subsets [][]int, offset int) ([]int, int, int, error) {
	n := len(subsets)
	var phases [][]int
	switch r.kind {
	case CombinedParallelDD:
		phases = [][]int{r.cfg.ConfigIterator(n)}
	default:
		subsetOrder := r.cfg.SubsetIterator(n)
		complementOrder := encodeComplements(r.cfg.ComplementIterator(n))
		if r.cfg.SubsetFirst {
			phases = [][]int{subsetOrder, complementOrder}
		} else {
			phases = [][]int{complementOrder, subsetOrder}
		}
	}

	for _, phase := range phases {
		cands := r.candidates(run, subsets, offset, phase)
		if len(cands) == 0 {
			continue
		}
		found, err := r.firstFailing(ctx, cands)
		if err != nil {
			return nil, 0, 0, err
		}
		if found < 0 {
			continue
		}

		c := cands[found]
		if c.encoded >= 0 {
			return c.config, 2, 0, nil
		}
		removed := (-c.encoded - 1 + offset) % n
		return c.config, max(n-1, 2), removed, nil
	}
	return nil, 0, 0, nil
}

func encodeComplements(order []int) []int {
	out := make([]int, len(order))
	for k, i := range order {
		out[k] = -i - 1
	}
	return out
}

func (r *Reducer) candidates(run int, subsets [][]int, offset int, order []int) []candidate {
	n := len(subsets)
	cands := make([]candidate, 0, len(order))
	for _, encoded := range order {
		if encoded >= 0 {
			// A single subset is the configuration itself.
			if n < 2 || encoded >= n {
				continue
			}
			cands = append(cands, candidate{
				encoded: encoded,
				config:  subsets[encoded],
				id:      fmt.Sprintf("%sr%d_s%d", r.prefix, run, encoded),
			})
			continue
		}

		i := -encoded - 1
		if i >= n {
			continue
		}
		removed := (i + offset) % n
		complement := make([]int, 0)
		for k, s := range subsets {
			if k != removed {
				complement = append(complement, s...)
			}
		}
		cands = append(cands, candidate{
			encoded: encoded,
			config:  complement,
			id:      fmt.Sprintf("%sr%d_c%d", r.prefix, run, removed),
		})
	}
	return cands
}

// test classifies one configuration, consulting the cache first.
func (r *Reducer) test(ctx context.Context, config []int, id string) (Outcome, error) {
	if outcome, ok := r.cache.Lookup(config); ok {
		ctxlog.FromContext(ctx).Debug("Cache hit.", "id", id, "outcome", outcome.String())
		return outcome, nil
	}

	outcome, err := r.tester.Test(ctx, r.build(config), id)
	if err != nil {
		return Pass, fmt.Errorf("testing %s: %w", id, err)
	}
	r.cache.Add(config, outcome)
	return outcome, nil
}

func (r *Reducer) firstFailing(ctx context.Context, cands []candidate) (int, error) {
	if !r.kind.Parallel() || r.cfg.Workers() == 1 {
		for pos, c := range cands {
			outcome, err := r.test(ctx, c.config, c.id)
			if err != nil {
				return -1, err
			}
			if outcome == Fail {
				return pos, nil
			}
		}
		return -1, nil
	}
	return r.firstFailingParallel(ctx, cands)
}
