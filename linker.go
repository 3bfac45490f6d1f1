package credentials

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-repository-bun"
)

// FederatedProfile is the identity a federated provider attests to after
// its token has been verified. The Subject is the provider's stable user
// id; Email is only trusted when the provider says it verified it.
type FederatedProfile struct {
	Provider      AuthProvider
	Subject       string
	Email         string
	Name          string
	EmailVerified bool
}

// Validate implements the validation.Validatable interface.
func (p FederatedProfile) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Provider, validation.Required),
		validation.Field(&p.Subject, validation.Required),
		validation.Field(&p.Email, validation.Required, is.Email),
	)
}

// IdentityLinker maps verified federated profiles onto local user records:
// an exact provider+subject match wins, an existing account with the same
// email gets the provider linked onto it, and anything else becomes a new
// already-verified account with an unusable password.
type IdentityLinker struct {
	repo     RepositoryManager
	logger   Logger
	activity ActivitySink
	now      func() time.Time
}

// NewIdentityLinker returns a linker wired to the given stores.
func NewIdentityLinker(repo RepositoryManager) *IdentityLinker {
	return &IdentityLinker{
		repo:     repo,
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      time.Now,
	}
}

func (l *IdentityLinker) WithLogger(logger Logger) *IdentityLinker {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// WithActivitySink configures a sink for federated login/link events.
func (l *IdentityLinker) WithActivitySink(sink ActivitySink) *IdentityLinker {
	l.activity = normalizeActivitySink(sink)
	return l
}

// WithClock overrides the time source, mostly for tests.
func (l *IdentityLinker) WithClock(now func() time.Time) *IdentityLinker {
	if now != nil {
		l.now = now
	}
	return l
}

// ResolveFederatedUser resolves profile to a user record, creating or
// linking as needed. The operation is idempotent: resolving the same
// profile twice yields the same user. A profile whose provider did not
// verify the email is refused outright, otherwise an attacker could claim
// an arbitrary address at the provider and take over the matching local
// account.
func (l *IdentityLinker) ResolveFederatedUser(ctx context.Context, profile FederatedProfile, rctx RequestContext) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapUnavailable(err, "context cancelled during federated resolution")
	}

	if err := profile.Validate(); err != nil {
		return nil, err
	}

	if !profile.EmailVerified {
		l.logger.Warn("federated profile rejected: %s did not verify email", profile.Provider)
		return nil, ErrInvalidCredentials
	}

	user, err := l.repo.Users().GetByProviderSubject(ctx, profile.Provider, profile.Subject)
	if err == nil {
		l.emit(ctx, ActivityEventFederatedLogin, user.ID.String(), map[string]any{
			"provider": profile.Provider,
			"ip":       rctx.IP,
		})
		return user, nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, wrapUnavailable(err, "failed to look up federated identity")
	}

	email := NormalizeEmail(profile.Email)

	user, err = l.repo.Users().GetByEmail(ctx, email)
	if err == nil {
		return l.linkExisting(ctx, user, profile, rctx)
	}
	if !repository.IsRecordNotFound(err) {
		return nil, wrapUnavailable(err, "failed to look up user by email")
	}

	return l.createFederated(ctx, profile, email, rctx)
}

// linkExisting attaches the provider identity to an account that already
// owns the email. The provider's attestation doubles as email verification.
func (l *IdentityLinker) linkExisting(ctx context.Context, user *User, profile FederatedProfile, rctx RequestContext) (*User, error) {
	now := l.now()

	if err := l.repo.Users().LinkProvider(ctx, user.ID, profile.Provider, profile.Subject); err != nil {
		return nil, wrapUnavailable(err, "failed to link provider identity")
	}

	if !user.EmailVerified {
		if err := l.repo.Users().MarkEmailVerified(ctx, user.ID, now); err != nil {
			return nil, wrapUnavailable(err, "failed to mark linked account verified")
		}
	}

	linked, err := l.repo.Users().GetByID(ctx, user.ID.String())
	if err != nil {
		return nil, wrapUnavailable(err, "failed to reload linked user")
	}

	l.emit(ctx, ActivityEventFederatedAccountLink, linked.ID.String(), map[string]any{
		"provider": profile.Provider,
		"ip":       rctx.IP,
	})

	return linked, nil
}

// createFederated provisions a fresh account for a profile no local record
// matches. The password hash is random and never disclosed, so the account
// is federated-only until a password reset installs a real one. A unique
// violation here means a concurrent resolution won the insert; retry as a
// lookup instead of failing.
func (l *IdentityLinker) createFederated(ctx context.Context, profile FederatedProfile, email string, rctx RequestContext) (*User, error) {
	now := l.now()

	user, err := l.repo.Users().Register(ctx, &User{
		Name:          profile.Name,
		Email:         email,
		PasswordHash:  RandomPasswordHash(),
		Provider:      profile.Provider,
		ProviderID:    profile.Subject,
		EmailVerified: true,
		VerifiedAt:    &now,
	})
	if err != nil {
		if IsUniqueViolation(err) {
			l.logger.Debug("federated create lost insert race, retrying as lookup")
			return l.resolveAfterRace(ctx, profile, email, rctx)
		}
		return nil, wrapUnavailable(err, "failed to create federated user")
	}

	l.emit(ctx, ActivityEventFederatedAccountLink, user.ID.String(), map[string]any{
		"provider": profile.Provider,
		"created":  true,
		"ip":       rctx.IP,
	})

	return user, nil
}

// resolveAfterRace re-runs the resolution after losing an insert race. The
// winner either created this exact identity or owns the email.
func (l *IdentityLinker) resolveAfterRace(ctx context.Context, profile FederatedProfile, email string, rctx RequestContext) (*User, error) {
	user, err := l.repo.Users().GetByProviderSubject(ctx, profile.Provider, profile.Subject)
	if err == nil {
		return user, nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, wrapUnavailable(err, "failed to look up federated identity")
	}

	user, err = l.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		return nil, wrapUnavailable(err, "failed to resolve federated user after insert race")
	}

	return l.linkExisting(ctx, user, profile, rctx)
}

func (l *IdentityLinker) emit(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: userID, Type: "user"},
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: l.now(),
	}

	if err := normalizeActivitySink(l.activity).Record(ctx, event); err != nil {
		l.logger.Warn("activity sink record error: %v", err)
	}
}
