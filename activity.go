package credentials

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess          ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure          ActivityEventType = "auth.login.failure"
	ActivityEventSessionIssued         ActivityEventType = "auth.session.issued"
	ActivityEventSessionRotated        ActivityEventType = "auth.session.rotated"
	ActivityEventSessionRevoked        ActivityEventType = "auth.session.revoked"
	ActivityEventReuseDetected         ActivityEventType = "auth.refresh.reuse_detected"
	ActivityEventEmailVerified         ActivityEventType = "auth.email.verified"
	ActivityEventPasswordResetSuccess  ActivityEventType = "auth.password.reset"
	ActivityEventFederatedLogin        ActivityEventType = "auth.federated.login"
	ActivityEventFederatedAccountLink  ActivityEventType = "auth.federated.linked"
	ActivityEventVerificationRequested ActivityEventType = "auth.verification.requested"
)

// ActorRef identifies who triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action. Token
// secrets never appear here; only opaque record ids and hashes are allowed
// in the metadata.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
