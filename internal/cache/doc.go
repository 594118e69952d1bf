// Package cache implements the history cache: a time-boxed, persisted copy of
// the most recently observed price series per symbol.
//
// Entries live in a string key-value Store under a namespaced key. Reads older
// than the TTL, malformed entries and storage failures all look like a miss;
// writes are best-effort. Callers must be prepared to fetch fresh data
// whatever the cache returns.
//
// Store backends:
//   - MemoryStore: in-process map (tests, single-process deployments)
//   - RedisStore: Redis strings with expiry
//   - PostgresStore: a key/value table upserted through pgx
package cache
