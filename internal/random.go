package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

// ID is the raw form of session, challenge, and trust-token identifiers.
type ID [16]byte

const (
	trustSecretSize   = 32
	trustTokenRawSize = 48
)

func NewID() (ID, error) {
	var id ID
	_, err := rand.Read(id[:])
	return id, err
}

func (id ID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func ParseID(s string) (ID, error) {
	var id ID

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errors.New("invalid id size")
	}

	copy(id[:], raw)
	return id, nil
}

func NewTrustSecret() ([trustSecretSize]byte, error) {
	var secret [trustSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashSecret(secret [trustSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeTrustToken packs a token ID and its secret into one opaque
// base64url string handed to the client.
func EncodeTrustToken(tokenID string, secret [trustSecretSize]byte) (string, error) {
	id, err := ParseID(tokenID)
	if err != nil {
		return "", err
	}

	var raw [trustTokenRawSize]byte
	copy(raw[:len(id)], id[:])
	copy(raw[len(id):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func DecodeTrustToken(token string) (string, [trustSecretSize]byte, error) {
	var secret [trustSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != trustTokenRawSize {
		return "", secret, errors.New("invalid trust token size")
	}

	var id ID
	copy(id[:], raw[:len(id)])
	copy(secret[:], raw[len(id):])

	return id.String(), secret, nil
}

// NewNumericCode generates a cryptographically random numeric one-time
// code of the requested length.
func NewNumericCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid code length")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}

// HashCode hashes a one-time code for storage. Codes are short, so the
// hash keeps plaintext out of the store; attempt limits carry the
// brute-force weight.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// DeviceFingerprint derives a stable per-device hash from the request
// user agent and client IP.
func DeviceFingerprint(userAgent, ip string) [32]byte {
	return sha256.Sum256([]byte(userAgent + "\n" + ip))
}
