package authcore

import (
	"context"

	"github.com/sentinelforge/authcore/session"
)

// Hooks are optional extension points invoked at fixed positions in the
// auth flows. All hooks are pure functions over their explicit inputs;
// a nil hook is simply skipped.
type Hooks struct {
	// PostSignup runs after the principal is created and identities are
	// linked, before the first session exists. It may mutate the
	// principal (typically to assign roles); changes are persisted, so
	// the first session already reflects final role state. An error
	// rolls the signup back.
	PostSignup func(ctx context.Context, p *Principal) error

	// CustomizeSessionData runs just before a session is stored and may
	// adjust the data bag that every token derived from the session
	// will see.
	CustomizeSessionData func(ctx context.Context, p *Principal, data *session.Data) error

	// TransformError intercepts any error about to leave an engine
	// flow and may replace it. Returning nil passes the original
	// through unchanged.
	TransformError func(ctx context.Context, err error) error
}
