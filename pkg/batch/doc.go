// Package batch provides bulk LRN resolution with adaptive pacing.
//
// The Orchestrator filters the input against the cache, splits the misses
// into major batches (one connection pool each) and sub-batches (one unit of
// concurrent dispatch each), and paces itself between sub-batches and major
// batches from a throttle controller owned by the run.
//
// Example usage:
//
//	res := resolver.New(resolver.DefaultConfig(), nil)
//	orch := batch.NewOrchestrator(res, endpoint, cache.NewFileStore("lrn_cache.json"), batch.DefaultConfig())
//	results, stats, err := orch.Resolve(ctx, numbers)
//
// The orchestrator:
//   - Loads the cache once and saves it once per run
//   - Opens a fresh session per major batch and always closes it
//   - Bounds concurrent lookups with a weighted semaphore
//   - Marks items unfinished at the sub-batch timeout as errors
//   - Contains failures of one major batch to that batch
//
// Every input number appears in the result map. Failed lookups carry the
// "<number>;error" sentinel rather than an error return.
package batch
