package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one value key per session plus a per-principal SET
// index used for enumeration, caps, and logout-all. Redis TTLs act as a
// backstop; authoritative expiry lives in the record and is evaluated by
// the Manager at read time.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "acs"
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *RedisStore) key(tenantID, id string) string {
	return s.prefix + ":" + normalizeTenantID(tenantID) + ":" + id
}

func (s *RedisStore) principalKey(tenantID, principalID string) string {
	return s.prefix + "u:" + normalizeTenantID(tenantID) + ":" + principalID
}

func normalizeTenantID(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}

func (s *RedisStore) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	sessionKey := s.key(sess.TenantID, sess.ID)
	principalKey := s.principalKey(sess.TenantID, sess.PrincipalID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, data, ttl)
		pipe.SAdd(ctx, principalKey, sess.ID)
		// Index outlives its members slightly so a sweep can still find
		// stale entries.
		pipe.Expire(ctx, principalKey, ttl+time.Hour)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, tenantID, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(tenantID, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = id

	return sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, tenantID, id string) error {
	data, err := s.redis.Get(ctx, s.key(tenantID, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		// Corrupt record: drop the key, the index entry is unreachable
		// anyway and gets collected by Sweep.
		if delErr := s.redis.Del(ctx, s.key(tenantID, id)).Err(); delErr != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, delErr)
		}
		return nil
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(tenantID, id))
		pipe.SRem(ctx, s.principalKey(tenantID, sess.PrincipalID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

func (s *RedisStore) IDsForPrincipal(ctx context.Context, tenantID, principalID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.principalKey(tenantID, principalID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}

func (s *RedisStore) DeleteAllForPrincipal(ctx context.Context, tenantID, principalID string) (int, error) {
	principalKey := s.principalKey(tenantID, principalID)

	ids, err := s.redis.SMembers(ctx, principalKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.key(tenantID, id))
	}

	var existing int
	if len(keys) > 0 {
		pipe := s.redis.Pipeline()
		existsCmds := make([]*redis.IntCmd, len(keys))
		for i, key := range keys {
			existsCmds[i] = pipe.Exists(ctx, key)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		for _, cmd := range existsCmds {
			v, cmdErr := cmd.Result()
			if cmdErr != nil {
				return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, cmdErr)
			}
			existing += int(v)
		}
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, principalKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return existing, nil
}

// Sweep scans the tenant's session keys and removes records past their
// stored expiry. O(n) on the tenant's key space; intended for periodic
// out-of-band runs, never request hot paths.
func (s *RedisStore) Sweep(ctx context.Context, tenantID string) (int, error) {
	pattern := s.prefix + ":" + normalizeTenantID(tenantID) + ":*"
	nowUnix := time.Now().Unix()

	var (
		cursor uint64
		purged int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return purged, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		for _, key := range keys {
			data, err := s.redis.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return purged, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}

			sess, err := Decode(data)
			if err != nil {
				if delErr := s.redis.Del(ctx, key).Err(); delErr != nil {
					return purged, fmt.Errorf("%w: %v", ErrStoreUnavailable, delErr)
				}
				purged++
				continue
			}

			if nowUnix > sess.ExpiresAt {
				if err := s.Delete(ctx, tenantID, sess.ID); err != nil {
					return purged, err
				}
				purged++
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return purged, nil
}

// Ping reports Redis availability and round-trip latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
