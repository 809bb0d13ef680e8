package authcore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelforge/authcore/internal/events"
)

// Event is a typed lifecycle notification handed to the configured
// sink. Delivery is awaited before the calling flow returns unless
// async dispatch is configured.
type Event = events.Event

// EventSink receives engine lifecycle events for fan-out to mail,
// audit, or analytics listeners.
type EventSink = events.Sink

// FuncSink adapts a plain function into an EventSink.
type FuncSink = events.FuncSink

// ChannelSink buffers events on a channel for consumer goroutines.
type ChannelSink = events.ChannelSink

// NewChannelSink returns a ChannelSink with the given buffer depth.
func NewChannelSink(buffer int) *ChannelSink {
	return events.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink that writes one JSON line per event.
var NewJSONWriterSink = events.NewJSONWriterSink

// Event types emitted by the engine.
const (
	EventRegistered             = "registered"
	EventLoggedIn               = "logged_in"
	EventTwoFactorVerified      = "two_factor_verified"
	EventTwoFactorEnrolled      = "two_factor_enrolled"
	EventTwoFactorDisabled      = "two_factor_disabled"
	EventRefreshToken           = "refresh_token"
	EventLoggedOut              = "logged_out"
	EventLoggedOutAll           = "logged_out_all"
	EventPasswordChanged        = "password_changed"
	EventPasswordResetRequested = "password_reset_requested"
	EventPasswordReset          = "password_reset"
)

func (e *Engine) emit(ctx context.Context, eventType, principalID, tenantID, sessionID string, metadata map[string]string) {
	if e == nil || e.dispatcher == nil {
		return
	}

	e.dispatcher.Emit(ctx, Event{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		Type:        eventType,
		PrincipalID: principalID,
		TenantID:    tenantID,
		SessionID:   sessionID,
		IP:          clientIPFromContext(ctx),
		Metadata:    metadata,
	})
}

func (e *Engine) emitSessions(ctx context.Context, eventType, principalID, tenantID string, sessionIDs []string) {
	if e == nil || e.dispatcher == nil {
		return
	}

	e.dispatcher.Emit(ctx, Event{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		Type:        eventType,
		PrincipalID: principalID,
		TenantID:    tenantID,
		SessionIDs:  sessionIDs,
		IP:          clientIPFromContext(ctx),
	})
}
