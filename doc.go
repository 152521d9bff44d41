// Package stockcore is the consistency core of an inventory back office:
// the session gate in front of every action, the ID allocator used when
// records are created, and the tag-indexed read cache invalidated by writes.
//
// Components:
//   - session.Codec: signs and verifies session tokens (HS256 JWT).
//   - auth.Gate: resolves the session of a request and enforces access levels.
//   - counter.Allocator: monotonic, never reused IDs per named counter.
//   - tagcache.Store: memoized reads tagged with coarse invalidation tags.
//
// Mutations run through Mutate, which fixes the order:
//
//	require level -> validate -> allocate IDs -> write -> invalidate tags
//
// Invalidation only happens after the write returned, so a concurrent reader
// can never re-cache pre-write data under the new tag generation.
// Reads run through Query and usually wrap a tagcache.Cached function.
package stockcore
