// Package cache provides the persistent lookup cache used by the LRN
// resolver: a Store that is loaded once at the start of a run and saved
// once at the end, and a Map that holds the working copy during the run.
//
// # Stores
//
//   - MemoryStore: process-local, useful for tests and long-running servers
//   - FileStore: a JSON object on disk, written atomically
//   - RedisStore: a single Redis hash (number -> result)
//   - PostgresStore: a gorm-managed table with insert-only upserts
//
// # Basic Usage
//
//	store := cache.NewRedisStore(redisClient, cache.DefaultRedisKey)
//
//	entries, err := store.Load(ctx)
//	if err != nil {
//		return err
//	}
//
//	m := cache.NewMap(entries)
//	if result, ok := m.Get("8437763676"); ok {
//		// cache hit
//	}
//	m.SetIfAbsent("8437763676", "8542850999;616J")
//
//	if err := store.Save(ctx, m.Snapshot()); err != nil {
//		return err
//	}
//
// Only successful lookups are written to the cache; sentinel error results
// are never persisted.
//
// # Metrics
//
//   - lrn_cache_hits_total{store} - Cache hits
//   - lrn_cache_misses_total - Cache misses
//   - lrn_cache_entries{store} - Entries after the last load or save
//   - lrn_cache_errors_total{operation} - Store errors
package cache
