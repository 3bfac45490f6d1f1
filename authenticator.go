package credentials

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
)

// Auther is the credential front door: it verifies passwords, registers
// local accounts, and drives the verification and reset request flows. All
// password failures look alike from the outside; the real reason only ever
// reaches the logs.
type Auther struct {
	repo       RepositoryManager
	issuer     *SessionIssuer
	actions    *ActionTokenManager
	tokens     TokenService
	dispatcher Dispatcher
	logger     Logger
	activity   ActivitySink
	now        func() time.Time

	verificationTTL time.Duration
	resetTTL        time.Duration
}

// NewAuther returns an authenticator wired to the given collaborators.
func NewAuther(repo RepositoryManager, issuer *SessionIssuer, actions *ActionTokenManager, tokens TokenService, cfg Config) *Auther {
	return &Auther{
		repo:            repo,
		issuer:          issuer,
		actions:         actions,
		tokens:          tokens,
		dispatcher:      noopDispatcher{},
		logger:          defLogger{},
		activity:        noopActivitySink{},
		now:             time.Now,
		verificationTTL: time.Duration(cfg.GetVerificationTTL()) * time.Minute,
		resetTTL:        time.Duration(cfg.GetResetTTL()) * time.Minute,
	}
}

func (a *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// WithDispatcher configures the notification boundary used for verification
// and reset mail. Delivery is best effort and never blocks the caller's
// result.
func (a *Auther) WithDispatcher(d Dispatcher) *Auther {
	a.dispatcher = normalizeDispatcher(d)
	return a
}

// WithActivitySink configures a sink for login and registration events.
func (a *Auther) WithActivitySink(sink ActivitySink) *Auther {
	a.activity = normalizeActivitySink(sink)
	return a
}

// WithClock overrides the time source, mostly for tests.
func (a *Auther) WithClock(now func() time.Time) *Auther {
	if now != nil {
		a.now = now
	}
	return a
}

// Login verifies an email/password pair and, on success, issues a session.
// An unknown email and a wrong password produce the same error and burn
// roughly the same time: the unknown-email path still runs a throwaway
// bcrypt comparison so response timing does not betray account existence.
// A correct password against an unverified local account re-issues a
// verification token instead of a session and fails with
// ErrVerificationRequired.
func (a *Auther) Login(ctx context.Context, email, password string, rctx RequestContext) (*TokenPair, *User, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, wrapUnavailable(err, "context cancelled during login")
	}

	email = NormalizeEmail(email)

	user, err := a.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			_ = ComparePasswordAndHash(password, timingDummyHash)
			a.failLogin(ctx, email, "unknown_email", rctx)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, wrapUnavailable(err, "failed to look up user")
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		a.failLogin(ctx, email, "password_mismatch", rctx)
		return nil, nil, ErrInvalidCredentials
	}

	if user.IsLocal() && !user.EmailVerified {
		a.sendVerification(ctx, user, rctx)
		a.logger.Debug("login blocked: unverified account %s", user.ID)
		return nil, nil, ErrVerificationRequired
	}

	pair, err := a.issuer.IssueSession(ctx, user, rctx)
	if err != nil {
		return nil, nil, err
	}

	a.emit(ctx, ActivityEventLoginSuccess, user.ID.String(), map[string]any{"ip": rctx.IP})

	return pair, user, nil
}

// RegisterInput carries the fields needed to create a local account.
// UseHashid derives the record id deterministically from the email, which
// keeps ids stable across environment rebuilds and seed scripts.
type RegisterInput struct {
	Name      string
	Email     string
	Password  string
	UseHashid bool
}

// Validate implements the validation.Validatable interface.
func (r RegisterInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
	)
}

// Register creates an unverified local account and sends the first
// verification token. An email already in use fails with ErrEmailTaken; the
// check rides on the unique constraint, not a read-then-write.
func (a *Auther) Register(ctx context.Context, input RegisterInput, rctx RequestContext) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapUnavailable(err, "context cancelled during registration")
	}

	if err := input.Validate(); err != nil {
		return nil, err
	}

	passwordHash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	record := &User{
		Name:         input.Name,
		Email:        NormalizeEmail(input.Email),
		PasswordHash: passwordHash,
	}
	if input.UseHashid {
		if id, err := hashid.NewUUID(record.Email); err == nil {
			record.ID = id
		}
	}

	user, err := a.repo.Users().Register(ctx, record)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, wrapUnavailable(err, "failed to create user")
	}

	a.sendVerification(ctx, user, rctx)

	return user, nil
}

// RequestEmailVerification re-issues a verification token for an unverified
// local account. Unknown emails and already-verified accounts return nil
// without sending anything, so the endpoint cannot be used to probe which
// addresses have accounts.
func (a *Auther) RequestEmailVerification(ctx context.Context, email string, rctx RequestContext) error {
	if err := ctx.Err(); err != nil {
		return wrapUnavailable(err, "context cancelled during verification request")
	}

	user, err := a.repo.Users().GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			a.logger.Debug("verification request for unknown email ignored")
			return nil
		}
		return wrapUnavailable(err, "failed to look up user")
	}

	if user.EmailVerified || !user.IsLocal() {
		return nil
	}

	a.sendVerification(ctx, user, rctx)

	return nil
}

// RequestPasswordReset issues a reset token for the account behind email.
// Like the verification flow it is deliberately silent about unknown
// addresses.
func (a *Auther) RequestPasswordReset(ctx context.Context, email string, rctx RequestContext) error {
	if err := ctx.Err(); err != nil {
		return wrapUnavailable(err, "context cancelled during reset request")
	}

	user, err := a.repo.Users().GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			a.logger.Debug("password reset request for unknown email ignored")
			return nil
		}
		return wrapUnavailable(err, "failed to look up user")
	}

	secret, err := a.actions.IssueActionToken(ctx, user, TokenKindPasswordReset, rctx)
	if err != nil {
		return err
	}

	dispatchBestEffort(ctx, a.dispatcher, a.logger, Notification{
		Kind:     NotificationPasswordReset,
		To:       user.Email,
		Name:     user.Name,
		Token:    secret,
		ExpireIn: a.resetTTL.String(),
	})

	return nil
}

// SessionFromToken validates a signed session token and returns its claims.
func (a *Auther) SessionFromToken(token string) (AuthClaims, error) {
	return a.tokens.Validate(token)
}

// sendVerification issues a fresh verification token and hands it to the
// dispatcher. Dispatch failures are logged and swallowed; the account state
// change already happened and must not be rolled back over mail trouble.
func (a *Auther) sendVerification(ctx context.Context, user *User, rctx RequestContext) {
	secret, err := a.actions.IssueActionToken(ctx, user, TokenKindEmailVerification, rctx)
	if err != nil {
		a.logger.Error("failed to issue verification token for user %s: %v", user.ID, err)
		return
	}

	dispatchBestEffort(ctx, a.dispatcher, a.logger, Notification{
		Kind:     NotificationEmailVerification,
		To:       user.Email,
		Name:     user.Name,
		Token:    secret,
		ExpireIn: a.verificationTTL.String(),
	})
}

func (a *Auther) failLogin(ctx context.Context, email, reason string, rctx RequestContext) {
	a.logger.Debug("login rejected: %s", reason)
	a.emit(ctx, ActivityEventLoginFailure, "", map[string]any{
		"email":  email,
		"reason": reason,
		"ip":     rctx.IP,
	})
}

func (a *Auther) emit(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: userID, Type: "user"},
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: a.now(),
	}

	if err := normalizeActivitySink(a.activity).Record(ctx, event); err != nil {
		a.logger.Warn("activity sink record error: %v", err)
	}
}
