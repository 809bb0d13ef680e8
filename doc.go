// Package authcore is an embeddable authentication and session
// orchestration engine. It validates credentials through pluggable
// identity providers, manages session lifecycle with per-user caps and
// sliding expiration, runs the MFA challenge state machine with
// trusted-device bypass, and issues signed access/refresh/reset tokens
// bound to live session state.
//
// The engine owns no transport and no delivery: callers wire it behind
// their own HTTP layer, persist principals behind the PrincipalStore
// interface, and receive lifecycle events through an EventSink for
// mail, audit, and analytics fan-out.
//
// Construct an Engine through the Builder:
//
//	engine, err := authcore.New().
//		WithRedis(redisClient).
//		WithPrincipalStore(store).
//		WithProvider(provider.NewPassword(store, hasher)).
//		Build()
//
// Request metadata (client IP, user agent, tenant, trust token) travels
// on the context via the With* helpers.
package authcore
