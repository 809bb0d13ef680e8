package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sentinelforge/authcore/internal"
)

// ErrExpired is returned when a session exists but its stored expiry has
// passed. The record is removed before the error is returned.
var ErrExpired = errors.New("session expired")

// Config controls session lifetime behavior.
type Config struct {
	// Expiry is the session lifetime. With Sliding enabled it is the
	// idle window instead of an absolute lifetime.
	Expiry time.Duration

	// MaxPerUser caps live sessions per principal within a tenant.
	// Zero means unlimited.
	MaxPerUser int

	// Sliding extends the expiry on each authenticated access.
	Sliding bool
}

// Manager owns session lifecycle on top of a Store: creation with cap
// eviction, reads with lazy expiry, sliding renewal, revocation.
type Manager struct {
	store Store
	cfg   Config
}

func NewManager(store Store, cfg Config) *Manager {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 7 * 24 * time.Hour
	}
	return &Manager{store: store, cfg: cfg}
}

func (m *Manager) Store() Store { return m.store }

// Create stores a new session for the principal. When the per-user cap
// is reached the oldest sessions by last activity are evicted first;
// the new session is never the victim. Returns the new session and the
// IDs that were evicted to make room.
func (m *Manager) Create(ctx context.Context, tenantID, principalID string, data Data, device Device) (*Session, []string, error) {
	id, err := internal.NewID()
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()

	sess := &Session{
		ID:           id.String(),
		PrincipalID:  principalID,
		TenantID:     tenantID,
		Data:         data,
		Device:       device,
		CreatedAt:    now.Unix(),
		LastActiveAt: now.Unix(),
		ExpiresAt:    now.Add(m.cfg.Expiry).Unix(),
	}

	var evicted []string
	if m.cfg.MaxPerUser > 0 {
		evicted, err = m.evictForCap(ctx, tenantID, principalID)
		if err != nil {
			return nil, nil, err
		}
	}

	if err := m.store.Save(ctx, sess, m.storeTTL()); err != nil {
		return nil, nil, err
	}

	return sess, evicted, nil
}

// evictForCap removes the oldest live sessions so that after adding one
// more the principal stays at or under MaxPerUser.
func (m *Manager) evictForCap(ctx context.Context, tenantID, principalID string) ([]string, error) {
	live, err := m.liveForPrincipal(ctx, tenantID, principalID)
	if err != nil {
		return nil, err
	}

	over := len(live) - m.cfg.MaxPerUser + 1
	if over <= 0 {
		return nil, nil
	}

	sort.SliceStable(live, func(i, j int) bool {
		return live[i].LastActiveAt < live[j].LastActiveAt
	})

	evicted := make([]string, 0, over)
	for _, victim := range live[:over] {
		if err := m.store.Delete(ctx, tenantID, victim.ID); err != nil {
			return evicted, err
		}
		evicted = append(evicted, victim.ID)
	}
	return evicted, nil
}

// Get loads a session, removing and rejecting it if its stored expiry
// has passed. With refresh set and sliding enabled the access also
// bumps LastActiveAt and pushes ExpiresAt out by the idle window.
func (m *Manager) Get(ctx context.Context, tenantID, id string, refresh bool) (*Session, error) {
	sess, err := m.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if now.Unix() > sess.ExpiresAt {
		if delErr := m.store.Delete(ctx, tenantID, id); delErr != nil {
			return nil, delErr
		}
		return nil, ErrExpired
	}

	if refresh && m.cfg.Sliding {
		sess.LastActiveAt = now.Unix()
		if next := now.Add(m.cfg.Expiry).Unix(); next > sess.ExpiresAt {
			sess.ExpiresAt = next
		}
		if err := m.store.Save(ctx, sess, m.storeTTL()); err != nil {
			return nil, err
		}
	}

	return sess, nil
}

// Refresh marks authenticated activity on the session: LastActiveAt
// moves to now and, under sliding expiry, ExpiresAt extends. ExpiresAt
// never moves backward.
func (m *Manager) Refresh(ctx context.Context, tenantID, id string) (*Session, error) {
	sess, err := m.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if now.Unix() > sess.ExpiresAt {
		if delErr := m.store.Delete(ctx, tenantID, id); delErr != nil {
			return nil, delErr
		}
		return nil, ErrExpired
	}

	sess.LastActiveAt = now.Unix()
	if m.cfg.Sliding {
		if next := now.Add(m.cfg.Expiry).Unix(); next > sess.ExpiresAt {
			sess.ExpiresAt = next
		}
	}

	if err := m.store.Save(ctx, sess, m.storeTTL()); err != nil {
		return nil, err
	}
	return sess, nil
}

// Update applies a mutation to the session's data bag and persists it.
// The session's expiry is untouched.
func (m *Manager) Update(ctx context.Context, tenantID, id string, apply func(*Data)) (*Session, error) {
	sess, err := m.Get(ctx, tenantID, id, false)
	if err != nil {
		return nil, err
	}

	apply(&sess.Data)

	if err := m.store.Save(ctx, sess, m.storeTTL()); err != nil {
		return nil, err
	}
	return sess, nil
}

// Revoke removes a session. Revoking a missing session is a no-op.
func (m *Manager) Revoke(ctx context.Context, tenantID, id string) error {
	return m.store.Delete(ctx, tenantID, id)
}

// RevokeAllForPrincipal removes every session the principal holds and
// returns the IDs that were live at the time.
func (m *Manager) RevokeAllForPrincipal(ctx context.Context, tenantID, principalID string) ([]string, error) {
	ids, err := m.store.IDsForPrincipal(ctx, tenantID, principalID)
	if err != nil {
		return nil, err
	}
	if _, err := m.store.DeleteAllForPrincipal(ctx, tenantID, principalID); err != nil {
		return nil, err
	}
	return ids, nil
}

// RevokeOthers removes every session the principal holds except keep.
func (m *Manager) RevokeOthers(ctx context.Context, tenantID, principalID, keep string) ([]string, error) {
	ids, err := m.store.IDsForPrincipal(ctx, tenantID, principalID)
	if err != nil {
		return nil, err
	}

	revoked := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == keep {
			continue
		}
		if err := m.store.Delete(ctx, tenantID, id); err != nil {
			return revoked, err
		}
		revoked = append(revoked, id)
	}
	return revoked, nil
}

// ActiveForPrincipal returns the principal's live sessions, newest
// activity first. Expired records found along the way are removed.
func (m *Manager) ActiveForPrincipal(ctx context.Context, tenantID, principalID string) ([]*Session, error) {
	live, err := m.liveForPrincipal(ctx, tenantID, principalID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].LastActiveAt > live[j].LastActiveAt
	})
	return live, nil
}

// CleanupExpired removes expired records for a tenant and returns how
// many were purged.
func (m *Manager) CleanupExpired(ctx context.Context, tenantID string) (int, error) {
	return m.store.Sweep(ctx, tenantID)
}

func (m *Manager) liveForPrincipal(ctx context.Context, tenantID, principalID string) ([]*Session, error) {
	ids, err := m.store.IDsForPrincipal(ctx, tenantID, principalID)
	if err != nil {
		return nil, err
	}

	nowUnix := time.Now().Unix()
	live := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := m.store.Get(ctx, tenantID, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorruptRecord) {
				continue
			}
			return nil, err
		}
		if nowUnix > sess.ExpiresAt {
			if err := m.store.Delete(ctx, tenantID, id); err != nil {
				return nil, err
			}
			continue
		}
		live = append(live, sess)
	}
	return live, nil
}

func (m *Manager) storeTTL() time.Duration {
	// Backstop TTL beyond the logical expiry so lazy-expiry reads still
	// observe the record and can report ErrExpired distinctly.
	return m.cfg.Expiry + time.Hour
}
