// Package provider ships the built-in identity providers: email plus
// password, phone plus password, and access-key validation for social
// or SSO logins where an upstream service already proved the identity.
package provider
