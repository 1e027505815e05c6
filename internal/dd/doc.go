// Package dd implements the delta debugging minimisation loop used by the
// hierarchical engine on each tree level.
//
// A configuration is a list of element indices. The reducer repeatedly splits
// the current configuration into subsets, asks a Tester whether a subset or a
// complement still reproduces the failure, and keeps the smallest failing
// configuration it finds.
//
// # Strategies
//
//   - Splitter: how a configuration is cut into n parts (Zeller, Balanced).
//   - Iterator: the order in which subsets or complements are tried
//     (Forward, Backward, Skip), or a Combined order mixing both.
//   - Cache: memoisation of outcomes (NoCache, ConfigCache, ContentCache). A
//     cache shared by parallel workers must be wrapped with Shared.
//
// # Reducer kinds
//
//   - LightDD tests candidates one at a time.
//   - ParallelDD tests the candidates of one phase (subsets, then
//     complements) with a bounded pool of goroutines.
//   - CombinedParallelDD tests subsets and complements in one merged pass.
//
// All kinds return the same configuration for a deterministic tester: the
// parallel kinds pick the failing candidate that comes first in iteration
// order, not the one that finished first.
package dd
