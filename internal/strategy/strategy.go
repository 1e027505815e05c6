// Package strategy turns the typed reduction options into the concrete
// strategy objects the engine runs with.
package strategy

import (
	"context"
	"fmt"

	"github.com/vk/hddreduce/internal/config"
	"github.com/vk/hddreduce/internal/ctxlog"
	"github.com/vk/hddreduce/internal/dd"
	"github.com/vk/hddreduce/internal/hdd"
	"github.com/vk/hddreduce/internal/registry"
)

// Plan is the resolved strategy of one reduction.
type Plan struct {
	HDDMin hdd.Variant
	Kind   dd.Kind
	Reduce dd.Config
	// Cache creates the cache of each level. In parallel mode every cache it
	// creates is wrapped in a dd.SharedCache.
	Cache     dd.CacheFactory
	CacheName string
	// Jobs is 1 for sequential plans.
	Jobs     int
	Parallel bool
}

var (
	splitters = registry.New[dd.Splitter]("split method")
	iterators = registry.New[dd.Iterator]("iterator")
	caches    = registry.New[dd.CacheFactory]("cache class")
	variants  = registry.New[hdd.Variant]("hddmin variant")
)

func init() {
	splitters.Register("zeller", dd.Zeller)
	splitters.Register("balanced", dd.Balanced)

	iterators.Register("forward", dd.Forward)
	iterators.Register("backward", dd.Backward)
	iterators.Register("skip", dd.Skip)

	caches.Register("ContentCache", dd.NewContentCache)
	caches.Register("ConfigCache", dd.NewConfigCache)
	caches.Register("NoCache", dd.NewNoCache)

	variants.Register("full", hdd.Full)
	variants.Register("coarse", hdd.Coarse)

	// The defaults must always resolve.
	d := config.Defaults()
	for _, err := range []error{
		variants.Require(d.HDDMin),
		splitters.Require(d.SplitMethod),
		iterators.Require(d.SubsetIterator, d.ComplementIterator),
		caches.Require(d.CacheClass),
	} {
		if err != nil {
			panic(err)
		}
	}
}

// SplitMethods returns the registered split method names.
func SplitMethods() []string { return splitters.Names() }

// Iterators returns the registered iterator names.
func Iterators() []string { return iterators.Names() }

// CacheClasses returns the registered cache class names.
func CacheClasses() []string { return caches.Names() }

// Variants returns the registered hddmin variant names.
func Variants() []string { return variants.Names() }

// Resolve maps opts onto registered strategies. Unknown names are reported as
// *registry.LookupError; nothing is silently defaulted.
func Resolve(ctx context.Context, opts *config.Options) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)

	variant, err := variants.Lookup(opts.HDDMin)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", config.OptHDDMin, err)
	}
	split, err := splitters.Lookup(opts.SplitMethod)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", config.OptSplitMethod, err)
	}
	subsets, err := iterators.Lookup(opts.SubsetIterator)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", config.OptSubsetIterator, err)
	}
	complements, err := iterators.Lookup(opts.ComplementIterator)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", config.OptComplementIterator, err)
	}
	cache, err := caches.Lookup(opts.CacheClass)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", config.OptCacheClass, err)
	}

	plan := &Plan{
		HDDMin:    variant,
		CacheName: opts.CacheClass,
		Reduce: dd.Config{
			Split:          split,
			MaxUtilization: opts.MaxUtilization,
		},
	}

	if !opts.Parallel {
		plan.Kind = dd.LightDD
		plan.Jobs = 1
		plan.Reduce.SubsetFirst = opts.SubsetFirst
		plan.Reduce.SubsetIterator = subsets
		plan.Reduce.ComplementIterator = complements
		plan.Reduce.Jobs = 1
		plan.Cache = cache
		logger.Debug("Resolved sequential strategy.", "kind", plan.Kind.String(), "cache", plan.CacheName)
		return plan, nil
	}

	plan.Parallel = true
	plan.Jobs = opts.Jobs
	plan.Reduce.Jobs = opts.Jobs
	plan.Cache = dd.Shared(cache)
	if opts.CombineLoops {
		plan.Kind = dd.CombinedParallelDD
		plan.Reduce.ConfigIterator = dd.Combined(opts.SubsetFirst, subsets, complements)
	} else {
		plan.Kind = dd.ParallelDD
		plan.Reduce.SubsetFirst = opts.SubsetFirst
		plan.Reduce.SubsetIterator = subsets
		plan.Reduce.ComplementIterator = complements
	}
	logger.Debug("Resolved parallel strategy.",
		"kind", plan.Kind.String(), "jobs", plan.Jobs, "max_utilization", opts.MaxUtilization, "cache", plan.CacheName)
	return plan, nil
}
