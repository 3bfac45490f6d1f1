package credentials

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// ActionTokenManager issues and consumes single-use action tokens: the
// hashed-at-rest secrets backing email verification and password reset. An
// action token is opaque to the holder, bound to one user and one kind, and
// dies the moment it is consumed or revoked.
type ActionTokenManager struct {
	repo         RepositoryManager
	hasher       *SecretHasher
	verification time.Duration
	reset        time.Duration
	logger       Logger
	activity     ActivitySink
	now          func() time.Time
}

// NewActionTokenManager returns a manager wired to the given stores.
func NewActionTokenManager(repo RepositoryManager, cfg Config) *ActionTokenManager {
	return &ActionTokenManager{
		repo:         repo,
		hasher:       NewSecretHasher([]byte(cfg.GetRefreshDerivationKey())),
		verification: time.Duration(cfg.GetVerificationTTL()) * time.Minute,
		reset:        time.Duration(cfg.GetResetTTL()) * time.Minute,
		logger:       defLogger{},
		activity:     noopActivitySink{},
		now:          time.Now,
	}
}

func (m *ActionTokenManager) WithLogger(logger Logger) *ActionTokenManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithActivitySink configures a sink for verification/reset lifecycle events.
func (m *ActionTokenManager) WithActivitySink(sink ActivitySink) *ActionTokenManager {
	m.activity = normalizeActivitySink(sink)
	return m
}

// WithClock overrides the time source, mostly for tests.
func (m *ActionTokenManager) WithClock(now func() time.Time) *ActionTokenManager {
	if now != nil {
		m.now = now
	}
	return m
}

// IssueActionToken creates a fresh action token of the given kind for user
// and returns the plaintext secret. Requesting again while an earlier token
// is still outstanding is allowed: prior unconsumed tokens stay redeemable
// until they expire on their own. Only the hash is stored.
func (m *ActionTokenManager) IssueActionToken(ctx context.Context, user *User, kind TokenKind, rctx RequestContext) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", wrapUnavailable(err, "context cancelled during action token issuance")
	}

	ttl, err := m.kindTTL(kind)
	if err != nil {
		return "", err
	}

	secret, err := NewOpaqueSecret()
	if err != nil {
		return "", err
	}

	now := m.now()
	record := &SideToken{
		UserID:      user.ID,
		TokenHash:   m.hasher.Hash(secret),
		Kind:        kind,
		ExpiresAt:   now.Add(ttl),
		CreatedByIP: rctx.IP,
		UserAgent:   rctx.UserAgent,
	}

	if _, err := m.repo.SideTokens().Create(ctx, record); err != nil {
		return "", wrapUnavailable(err, "failed to persist action token")
	}

	if kind == TokenKindEmailVerification {
		m.emit(ctx, ActivityEventVerificationRequested, user.ID.String(), map[string]any{"ip": rctx.IP})
	}

	return secret, nil
}

// ConsumeEmailVerification redeems an email verification secret: exactly one
// caller can flip the record to consumed, and in the same transaction the
// owner is marked verified. Every failure mode collapses into
// ErrInvalidOrExpiredToken so the response does not reveal whether a token
// ever existed.
func (m *ActionTokenManager) ConsumeEmailVerification(ctx context.Context, secret string, rctx RequestContext) (*User, error) {
	user, err := m.consume(ctx, secret, TokenKindEmailVerification, func(ctx context.Context, tx bun.Tx, record *SideToken, at time.Time) error {
		return m.repo.Users().MarkEmailVerifiedTx(ctx, tx, record.UserID, at)
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, ActivityEventEmailVerified, user.ID.String(), map[string]any{"ip": rctx.IP})

	return user, nil
}

// ConsumePasswordReset redeems a password reset secret and installs the new
// password hash. Consuming the token revokes every active refresh token for
// the user in the same transaction, so stolen sessions die with the old
// password.
func (m *ActionTokenManager) ConsumePasswordReset(ctx context.Context, secret, newPassword string, rctx RequestContext) (*User, error) {
	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	user, err := m.consume(ctx, secret, TokenKindPasswordReset, func(ctx context.Context, tx bun.Tx, record *SideToken, at time.Time) error {
		if err := m.repo.Users().ResetPasswordTx(ctx, tx, record.UserID, passwordHash); err != nil {
			return err
		}
		_, err := m.repo.SideTokens().RevokeAllForUserTx(ctx, tx, record.UserID, TokenKindRefresh, at, rctx.IP)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, ActivityEventPasswordResetSuccess, user.ID.String(), map[string]any{"ip": rctx.IP})

	return user, nil
}

// errActionTokenDead marks a consume attempt that found the record but lost
// its claim on it. It never leaves this package.
var errActionTokenDead = goerrors.New("action token no longer active", goerrors.CategoryConflict)

// consume runs the common redeem path: resolve by hash, claim the record via
// conditional update, then apply the kind-specific effect, all in one
// transaction. The conditional update is what makes the token single-use
// under concurrency; the second of two racing redeemers updates zero rows
// and rolls back.
func (m *ActionTokenManager) consume(ctx context.Context, secret string, kind TokenKind, effect func(ctx context.Context, tx bun.Tx, record *SideToken, at time.Time) error) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapUnavailable(err, "context cancelled during token redemption")
	}

	if secret == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	now := m.now()
	hash := m.hasher.Hash(secret)

	var user *User

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := m.repo.SideTokens().GetByHashTx(ctx, tx, hash, kind)
		if err != nil {
			return err
		}

		rows, err := m.repo.SideTokens().MarkConsumedTx(ctx, tx, record.ID, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errActionTokenDead
		}

		if err := effect(ctx, tx, record, now); err != nil {
			return err
		}

		user, err = m.repo.Users().GetByIDTx(ctx, tx, record.UserID.String())
		return err
	})

	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.Is(err, errActionTokenDead) {
			m.logger.Debug("%s token redemption rejected", kind)
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, wrapUnavailable(err, "token redemption transaction failed")
	}

	return user, nil
}

func (m *ActionTokenManager) kindTTL(kind TokenKind) (time.Duration, error) {
	switch kind {
	case TokenKindEmailVerification:
		return m.verification, nil
	case TokenKindPasswordReset:
		return m.reset, nil
	default:
		return 0, goerrors.New("unsupported action token kind: "+string(kind), goerrors.CategoryBadInput)
	}
}

func (m *ActionTokenManager) emit(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: userID, Type: "user"},
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: m.now(),
	}

	if err := normalizeActivitySink(m.activity).Record(ctx, event); err != nil {
		m.logger.Warn("activity sink record error: %v", err)
	}
}
