// Package token signs and verifies the engine's JWTs: short-lived access
// tokens, long-lived refresh tokens that resolve back to a session, and
// password-reset tokens bound to a password-hash fingerprint.
package token
