package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for the session ID.
	ErrNotFound = errors.New("session not found")
	// ErrStoreUnavailable wraps backend transport failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Store is the persistence boundary for sessions. Implementations must
// keep the per-principal index consistent with the record set but are
// free to expire records lazily; the [Manager] re-checks expiry at read
// time.
type Store interface {
	// Save upserts a session record with the given TTL.
	Save(ctx context.Context, sess *Session, ttl time.Duration) error
	// Get returns the stored record or ErrNotFound. No expiry check.
	Get(ctx context.Context, tenantID, id string) (*Session, error)
	// Delete removes a record. Deleting a missing record is a no-op.
	Delete(ctx context.Context, tenantID, id string) error
	// IDsForPrincipal returns the indexed session IDs for a principal.
	IDsForPrincipal(ctx context.Context, tenantID, principalID string) ([]string, error)
	// DeleteAllForPrincipal removes every session for a principal and
	// returns how many records existed.
	DeleteAllForPrincipal(ctx context.Context, tenantID, principalID string) (int, error)
	// Sweep removes expired records and stale index entries for a
	// tenant, returning the number of records purged.
	Sweep(ctx context.Context, tenantID string) (int, error)
}
