// Package cache is the agent's persistent cache store: named generations of
// (request key -> stored response) entries.
//
// A generation is opened by name, populated once during install and then
// only read. Invalidation happens by deleting whole generations whose name
// differs from the current version identifier; there is no per-entry
// expiry, revalidation or diffing.
//
// # Backends
//
//   - MemoryStorage keeps generations in process memory.
//   - RedisStorage keeps the set of generation names in a Redis set and each
//     generation in its own Redis hash. Multi-entry writes and deletes run in
//     a MULTI/EXEC transaction so a generation is never half-written.
//
// # Basic Usage
//
//	storage := cache.NewRedisStorage(redisClient, cache.DefaultRedisPrefix)
//
//	c, err := storage.Open(ctx, "v1")
//	if err != nil {
//		return err
//	}
//
//	entry, err := c.Match(ctx, cache.NewKey(req))
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// not cached in this generation
//	}
//
//	resp := cache.EntryToResponse(entry, req)
//
// # Metrics
//
//   - agent_cache_hits_total{backend} - Lookups answered from a generation
//   - agent_cache_misses_total{backend} - Lookups with no stored entry
//   - agent_cache_entries_written_total{backend} - Entries stored
//   - agent_cache_errors_total{backend,operation} - Backend failures
package cache
