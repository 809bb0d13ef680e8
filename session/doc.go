// Package session persists authenticated device contexts and enforces
// session lifecycle policy: per-principal caps with oldest-first
// eviction, sliding expiration, refresh, and revocation. Storage is
// pluggable behind [Store]; [RedisStore] and [MemoryStore] are provided.
package session
