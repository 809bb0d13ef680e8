// Package trust manages trusted-device tokens that let a principal skip
// second-factor verification on devices they have verified before. A
// token is an opaque id+secret pair handed to the client; the server
// keeps only hashes, bound to the principal and a device fingerprint.
package trust
