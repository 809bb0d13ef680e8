package trust

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinelforge/authcore/internal"
)

const (
	trustKeyPrefix       = "act"
	trustRecordVersionV1 = 1
)

var (
	ErrNotTrusted       = errors.New("device not trusted")
	ErrStoreUnavailable = errors.New("trust redis unavailable")
)

type record struct {
	PrincipalID     string
	SecretHash      [32]byte
	FingerprintHash [32]byte
	ExpiresAt       int64
}

// Config controls trusted-device lifetime and fingerprint binding.
type Config struct {
	// TTL is how long a trust grant lives. Not sliding; re-verifying
	// MFA issues a fresh grant.
	TTL time.Duration

	// BindFingerprint rejects tokens presented from a device whose
	// user agent and IP no longer hash to the stored fingerprint.
	BindFingerprint bool
}

// Registry stores trust grants in Redis, one value key per grant plus
// a per-principal SET index for bulk revocation.
type Registry struct {
	redis  redis.UniversalClient
	prefix string
	cfg    Config
}

func NewRegistry(client redis.UniversalClient, cfg Config) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	return &Registry{
		redis:  client,
		prefix: trustKeyPrefix,
		cfg:    cfg,
	}
}

func (r *Registry) key(tenantID, id string) string {
	return r.prefix + ":" + normalizeTenantID(tenantID) + ":" + id
}

func (r *Registry) principalKey(tenantID, principalID string) string {
	return r.prefix + "u:" + normalizeTenantID(tenantID) + ":" + principalID
}

// Issue creates a trust grant for the principal on the fingerprinted
// device and returns the opaque token to hand to the client. The
// secret is never stored; only its hash is.
func (r *Registry) Issue(ctx context.Context, tenantID, principalID string, fingerprint [32]byte) (string, error) {
	rawID, err := internal.NewID()
	if err != nil {
		return "", err
	}
	id := rawID.String()

	secret, err := internal.NewTrustSecret()
	if err != nil {
		return "", err
	}

	rec := &record{
		PrincipalID:     principalID,
		SecretHash:      internal.HashSecret(secret),
		FingerprintHash: fingerprint,
		ExpiresAt:       time.Now().Add(r.cfg.TTL).Unix(),
	}

	encoded, err := encodeRecord(rec)
	if err != nil {
		return "", err
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(tenantID, id), encoded, r.cfg.TTL)
		pipe.SAdd(ctx, r.principalKey(tenantID, principalID), id)
		pipe.Expire(ctx, r.principalKey(tenantID, principalID), r.cfg.TTL+time.Hour)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return internal.EncodeTrustToken(id, secret)
}

// Validate checks a client-presented token against the registry.
// Expired, unknown, malformed, and wrong-principal tokens all fail the
// same way. With fingerprint binding enabled, a fingerprint drift also
// fails closed.
func (r *Registry) Validate(ctx context.Context, tenantID, principalID, token string, fingerprint [32]byte) error {
	id, secret, err := internal.DecodeTrustToken(token)
	if err != nil {
		return ErrNotTrusted
	}

	data, err := r.redis.Get(ctx, r.key(tenantID, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotTrusted
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return ErrNotTrusted
	}

	if time.Now().Unix() > rec.ExpiresAt {
		return ErrNotTrusted
	}
	if subtle.ConstantTimeCompare([]byte(rec.PrincipalID), []byte(principalID)) != 1 {
		return ErrNotTrusted
	}
	secretHash := internal.HashSecret(secret)
	if subtle.ConstantTimeCompare(rec.SecretHash[:], secretHash[:]) != 1 {
		return ErrNotTrusted
	}
	if r.cfg.BindFingerprint {
		if subtle.ConstantTimeCompare(rec.FingerprintHash[:], fingerprint[:]) != 1 {
			return ErrNotTrusted
		}
	}

	return nil
}

// Revoke drops a single trust grant by its client token. Unknown and
// malformed tokens are no-ops.
func (r *Registry) Revoke(ctx context.Context, tenantID, token string) error {
	id, _, err := internal.DecodeTrustToken(token)
	if err != nil {
		return nil
	}

	data, err := r.redis.Get(ctx, r.key(tenantID, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec, decodeErr := decodeRecord(data)

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(tenantID, id))
		if decodeErr == nil {
			pipe.SRem(ctx, r.principalKey(tenantID, rec.PrincipalID), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RevokeAll drops every trust grant the principal holds and returns
// how many were removed. Typically called on password reset.
func (r *Registry) RevokeAll(ctx context.Context, tenantID, principalID string) (int, error) {
	principalKey := r.principalKey(tenantID, principalID)

	ids, err := r.redis.SMembers(ctx, principalKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, r.key(tenantID, id))
	}
	keys = append(keys, principalKey)

	if err := r.redis.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return len(ids), nil
}

func encodeRecord(rec *record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(trustRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, rec.ExpiresAt); err != nil {
		return nil, err
	}

	if len(rec.PrincipalID) > 65535 {
		return nil, errors.New("trust record principal id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(rec.PrincipalID))); err != nil {
		return nil, err
	}
	buf.WriteString(rec.PrincipalID)
	buf.Write(rec.SecretHash[:])
	buf.Write(rec.FingerprintHash[:])

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != trustRecordVersionV1 {
		return nil, errors.New("invalid trust record version")
	}

	rec := &record{}
	if err := binary.Read(reader, binary.BigEndian, &rec.ExpiresAt); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	principalID := make([]byte, idLen)
	if _, err := io.ReadFull(reader, principalID); err != nil {
		return nil, err
	}
	rec.PrincipalID = string(principalID)

	if _, err := io.ReadFull(reader, rec.SecretHash[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, rec.FingerprintHash[:]); err != nil {
		return nil, err
	}

	return rec, nil
}

func normalizeTenantID(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}
