// Package otp issues and verifies short-lived numeric one-time codes
// keyed by principal and purpose. Only the sha256 of a code is stored;
// issuing a new code for the same principal and purpose overwrites the
// previous one, so at most one code is live per purpose at any time.
// Verification is constant-time and burn-on-success.
package otp
