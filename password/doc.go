// Package password provides argon2id hashing in PHC string format,
// verification with constant-time comparison, parameter upgrade
// detection, and hash fingerprinting for self-invalidating reset tokens.
package password
