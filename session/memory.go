package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for tests and single-node embeds.
// No TTL reaper runs; rely on Manager's lazy expiry plus Sweep.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memoryRecord       // tenant:id -> record
	byOwner  map[string]map[string]struct{} // tenant:principal -> session ids
}

type memoryRecord struct {
	sess      *Session
	storeDead int64 // unix seconds past which the record is droppable
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memoryRecord),
		byOwner:  make(map[string]map[string]struct{}),
	}
}

func memKey(tenantID, id string) string {
	return normalizeTenantID(tenantID) + ":" + id
}

func (s *MemoryStore) Save(_ context.Context, sess *Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memKey(sess.TenantID, sess.ID)
	s.sessions[key] = &memoryRecord{
		sess:      sess.Clone(),
		storeDead: time.Now().Add(ttl).Unix(),
	}

	ownerKey := memKey(sess.TenantID, sess.PrincipalID)
	if s.byOwner[ownerKey] == nil {
		s.byOwner[ownerKey] = make(map[string]struct{})
	}
	s.byOwner[ownerKey][sess.ID] = struct{}{}

	return nil
}

func (s *MemoryStore) Get(_ context.Context, tenantID, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[memKey(tenantID, id)]
	if !ok || time.Now().Unix() > rec.storeDead {
		return nil, ErrNotFound
	}
	return rec.sess.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memKey(tenantID, id)
	rec, ok := s.sessions[key]
	if !ok {
		return nil
	}
	delete(s.sessions, key)

	ownerKey := memKey(tenantID, rec.sess.PrincipalID)
	if owned := s.byOwner[ownerKey]; owned != nil {
		delete(owned, id)
		if len(owned) == 0 {
			delete(s.byOwner, ownerKey)
		}
	}
	return nil
}

func (s *MemoryStore) IDsForPrincipal(_ context.Context, tenantID, principalID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := s.byOwner[memKey(tenantID, principalID)]
	ids := make([]string, 0, len(owned))
	for id := range owned {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryStore) DeleteAllForPrincipal(_ context.Context, tenantID, principalID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ownerKey := memKey(tenantID, principalID)
	owned := s.byOwner[ownerKey]

	count := 0
	for id := range owned {
		key := memKey(tenantID, id)
		if _, ok := s.sessions[key]; ok {
			delete(s.sessions, key)
			count++
		}
	}
	delete(s.byOwner, ownerKey)

	return count, nil
}

func (s *MemoryStore) Sweep(_ context.Context, tenantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowUnix := time.Now().Unix()
	tenantPrefix := normalizeTenantID(tenantID) + ":"

	purged := 0
	for key, rec := range s.sessions {
		if len(key) < len(tenantPrefix) || key[:len(tenantPrefix)] != tenantPrefix {
			continue
		}
		if nowUnix > rec.sess.ExpiresAt || nowUnix > rec.storeDead {
			delete(s.sessions, key)
			ownerKey := memKey(tenantID, rec.sess.PrincipalID)
			if owned := s.byOwner[ownerKey]; owned != nil {
				delete(owned, rec.sess.ID)
				if len(owned) == 0 {
					delete(s.byOwner, ownerKey)
				}
			}
			purged++
		}
	}
	return purged, nil
}
