// Package cache provides the result caches behind the analytics service.
//
// Two implementations satisfy analytics.Cache:
//
//   - MemoryCache, an expiring LRU for single-instance deployments and tests
//   - RedisCache, shared between API replicas
//
// Both are best-effort. The service treats any error as a miss and keeps serving.
// Values are opaque bytes; encoding is the caller's concern.
//
// # Invalidation
//
// InvalidateAll drops every entry the cache owns. RedisCache scopes its keys under
// a prefix so invalidation never touches keys written by other applications
// sharing the same Redis database.
package cache
