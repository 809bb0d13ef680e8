// Package internal holds shared primitives for ID generation, opaque
// token encoding, one-time-code generation, and device fingerprinting.
// Nothing in this package performs I/O.
package internal
