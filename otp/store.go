package otp

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

// Purpose scopes a code to the flow it was issued for. A code issued
// for one purpose never verifies under another.
type Purpose string

const (
	PurposeVerification  Purpose = "verification"
	PurposePasswordReset Purpose = "password_reset"
	PurposeMFA           Purpose = "mfa"
)

const (
	otpKeyPrefix       = "aco"
	otpRecordVersionV1 = 1
)

var (
	ErrCodeNotFound     = errors.New("otp code not found")
	ErrCodeMismatch     = errors.New("otp code mismatch")
	ErrTooManyAttempts  = errors.New("otp attempts exceeded")
	ErrStoreUnavailable = errors.New("otp redis unavailable")
)

type record struct {
	CodeHash  [32]byte
	ExpiresAt int64
	Attempts  uint16
}

// Config controls code shape and verification limits.
type Config struct {
	// Digits is the code length, 4 to 10.
	Digits int

	// Expiry is the code lifetime.
	Expiry time.Duration

	// MaxAttempts bounds failed verifications before the code is
	// destroyed. Zero means 5.
	MaxAttempts int
}

// Store issues and consumes codes against Redis. The key is derived
// from tenant, principal, and purpose, so a fresh Issue displaces any
// earlier live code for the same triple.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	cfg    Config
}

func NewStore(client redis.UniversalClient, cfg Config) *Store {
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = 15 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Store{
		redis:  client,
		prefix: otpKeyPrefix,
		cfg:    cfg,
	}
}

func (s *Store) key(tenantID, principalID string, purpose Purpose) string {
	return s.prefix + ":" + normalizeTenantID(tenantID) + ":" + principalID + ":" + string(purpose)
}

// Issue generates a fresh numeric code, stores its hash, and returns
// the plaintext for delivery. Any previously live code for the same
// principal and purpose stops verifying immediately.
func (s *Store) Issue(ctx context.Context, tenantID, principalID string, purpose Purpose) (string, error) {
	code, err := internal.NewNumericCode(s.cfg.Digits)
	if err != nil {
		return "", err
	}

	rec := &record{
		CodeHash:  internal.HashCode(code),
		ExpiresAt: time.Now().Add(s.cfg.Expiry).Unix(),
	}

	encoded, err := encodeRecord(rec)
	if err != nil {
		return "", err
	}

	key := s.key(tenantID, principalID, purpose)
	if err := s.redis.Set(ctx, key, encoded, s.cfg.Expiry).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return code, nil
}

// Consume verifies the code and destroys it on success. Mismatches
// burn an attempt; hitting the attempt cap or the expiry destroys the
// code without verifying. A consumed code never verifies again.
func (s *Store) Consume(ctx context.Context, tenantID, principalID string, purpose Purpose, code string) error {
	const maxRetries = 4
	key := s.key(tenantID, principalID, purpose)
	providedHash := internal.HashCode(code)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			rec, err := decodeRecord(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > rec.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrCodeNotFound
			}

			if subtle.ConstantTimeCompare(rec.CodeHash[:], providedHash[:]) != 1 {
				rec.Attempts++
				if int(rec.Attempts) >= s.cfg.MaxAttempts {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrTooManyAttempts
				}

				ttl := time.Until(time.Unix(rec.ExpiresAt, 0))
				if ttl <= 0 {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrCodeNotFound
				}

				updated, err := encodeRecord(rec)
				if err != nil {
					return err
				}

				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrCodeMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return ErrCodeNotFound
			case errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrCodeMismatch), errors.Is(err, ErrTooManyAttempts):
				return err
			default:
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}

		return nil
	}

	return ErrCodeNotFound
}

// Invalidate drops any live code for the principal and purpose.
func (s *Store) Invalidate(ctx context.Context, tenantID, principalID string, purpose Purpose) error {
	if err := s.redis.Del(ctx, s.key(tenantID, principalID, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func encodeRecord(rec *record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(otpRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, rec.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, rec.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(rec.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	rec := &record{}
	if err := binary.Read(reader, binary.BigEndian, &rec.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &rec.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, rec.CodeHash[:]); err != nil {
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
