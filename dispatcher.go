package credentials

import (
	"context"
)

// NotificationKind identifies the message template at the boundary.
type NotificationKind string

const (
	NotificationEmailVerification NotificationKind = "email_verification"
	NotificationPasswordReset     NotificationKind = "password_reset"
)

// Notification is the payload handed to the dispatcher: a destination plus
// the plaintext action secret for transport. This is the only place the
// plaintext leaves the core, and it must never be logged.
type Notification struct {
	Kind     NotificationKind `json:"kind"`
	To       string           `json:"to"`
	Name     string           `json:"name,omitempty"`
	Token    string           `json:"token"`
	ExpireIn string           `json:"expire_in,omitempty"`
}

// Dispatcher forwards notifications to the external delivery system. Calls
// are fire-and-forget from the core's perspective: a delivery failure is
// logged and swallowed, it never rolls back the token issuance that already
// succeeded.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// DispatcherFunc adapts a function into a Dispatcher.
type DispatcherFunc func(ctx context.Context, n Notification) error

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, n Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, Notification) error {
	return nil
}

func normalizeDispatcher(d Dispatcher) Dispatcher {
	if d == nil {
		return noopDispatcher{}
	}
	return d
}

// dispatchBestEffort forwards n and logs failures without propagating them.
func dispatchBestEffort(ctx context.Context, d Dispatcher, logger Logger, n Notification) {
	if err := normalizeDispatcher(d).Dispatch(ctx, n); err != nil {
		if logger == nil {
			logger = defLogger{}
		}
		logger.Warn("notification dispatch failed for %s: %v", n.Kind, err)
	}
}
