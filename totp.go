package authcore

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const totpSecretBytes = 20

// totpVerifier implements RFC 6238 time-based codes for principals that
// enrolled an authenticator app. SHA1 only; that is what authenticator
// apps interoperate with.
type totpVerifier struct {
	digits int
	period int
	skew   int
	issuer string
}

func newTOTPVerifier(cfg MFAConfig) *totpVerifier {
	v := &totpVerifier{
		digits: cfg.OTPLength,
		period: cfg.TOTPPeriod,
		skew:   cfg.TOTPSkew,
		issuer: cfg.TOTPIssuer,
	}
	if v.digits < 6 || v.digits > 8 {
		v.digits = 6
	}
	if v.period <= 0 {
		v.period = 30
	}
	if v.skew < 0 {
		v.skew = 1
	}
	return v
}

func (v *totpVerifier) GenerateSecret() ([]byte, string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}

	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return raw, enc.EncodeToString(raw), nil
}

func (v *totpVerifier) ProvisionURI(secretBase32, account string) string {
	label := url.PathEscape(v.issuer + ":" + account)

	q := url.Values{}
	q.Set("secret", secretBase32)
	q.Set("issuer", v.issuer)
	q.Set("period", strconv.Itoa(v.period))
	q.Set("digits", strconv.Itoa(v.digits))
	q.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + q.Encode()
}

func (v *totpVerifier) VerifyCode(secret []byte, code string, now time.Time) (bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != v.digits || !isNumericString(trimmed) {
		return false, nil
	}
	if len(secret) == 0 {
		return false, errors.New("empty totp secret")
	}

	baseCounter := now.Unix() / int64(v.period)
	for step := -v.skew; step <= v.skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(secret, counter, v.digits)
		if err != nil {
			return false, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, nil
		}
	}

	return false, nil
}

func hotpCode(secret []byte, counter int64, digits int) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func isNumericString(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
