package credentials

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// TokenPair is the result of issuing or rotating a session: a short-lived
// signed session token plus a long-lived opaque refresh secret. The refresh
// secret is returned exactly once; only its hash is stored.
type TokenPair struct {
	SessionToken     string
	RefreshSecret    string
	RefreshExpiresAt time.Time
}

// errRotationLost marks the losing side of a concurrent rotation race. It
// never leaves this package; callers see ErrUnauthenticated.
var errRotationLost = goerrors.New("refresh record rotated concurrently", goerrors.CategoryConflict)

// SessionIssuer mints session tokens and enforces single-owner-at-a-time
// refresh rotation. A refresh secret is single-use: rotating it issues a new
// pair, revokes the consumed record, and stamps the successor hash so every
// lineage forms one forward chain.
type SessionIssuer struct {
	repo     RepositoryManager
	tokens   TokenService
	hasher   *SecretHasher
	refresh  time.Duration
	logger   Logger
	activity ActivitySink
	now      func() time.Time
}

// NewSessionIssuer returns a SessionIssuer wired to the given stores.
func NewSessionIssuer(repo RepositoryManager, tokens TokenService, cfg Config) *SessionIssuer {
	return &SessionIssuer{
		repo:     repo,
		tokens:   tokens,
		hasher:   NewSecretHasher([]byte(cfg.GetRefreshDerivationKey())),
		refresh:  time.Duration(cfg.GetRefreshTTLDays()) * 24 * time.Hour,
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      time.Now,
	}
}

func (s *SessionIssuer) WithLogger(logger Logger) *SessionIssuer {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures a sink for session lifecycle events.
func (s *SessionIssuer) WithActivitySink(sink ActivitySink) *SessionIssuer {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithClock overrides the time source, mostly for tests.
func (s *SessionIssuer) WithClock(now func() time.Time) *SessionIssuer {
	if now != nil {
		s.now = now
	}
	return s
}

// IssueSession mints a session token and a fresh refresh secret for user,
// persisting the hashed refresh record with the request context.
func (s *SessionIssuer) IssueSession(ctx context.Context, user *User, rctx RequestContext) (*TokenPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapUnavailable(err, "context cancelled during session issuance")
	}

	pair, record, err := s.mintPair(ctx, user)
	if err != nil {
		return nil, err
	}

	record.CreatedByIP = rctx.IP
	record.UserAgent = rctx.UserAgent

	if _, err := s.repo.SideTokens().Create(ctx, record); err != nil {
		return nil, wrapUnavailable(err, "failed to persist refresh token")
	}

	s.emit(ctx, ActivityEventSessionIssued, user.ID.String(), map[string]any{
		"ip": rctx.IP,
	})

	return pair, nil
}

// RotateRefresh exchanges a refresh secret for a brand-new session + refresh
// pair. The consumed record is revoked with its successor hash stamped. Any
// failure reason (missing, malformed, unknown, revoked, expired) surfaces as
// the same generic ErrUnauthenticated; the distinct reason is only logged.
// Presenting an already-revoked secret is treated as proof of theft: every
// active refresh token for that user is revoked before rejecting.
func (s *SessionIssuer) RotateRefresh(ctx context.Context, refreshSecret string, rctx RequestContext) (*TokenPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapUnavailable(err, "context cancelled during refresh rotation")
	}

	if refreshSecret == "" {
		s.logger.Debug("refresh rotation rejected: missing secret")
		return nil, ErrUnauthenticated
	}

	now := s.now()
	hash := s.hasher.Hash(refreshSecret)

	record, err := s.repo.SideTokens().GetByHash(ctx, hash, TokenKindRefresh)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			s.logger.Debug("refresh rotation rejected: unknown token")
			return nil, ErrUnauthenticated
		}
		return nil, wrapUnavailable(err, "failed to look up refresh token")
	}

	if record.RevokedAt != nil {
		return nil, s.handleReuse(ctx, record, rctx)
	}

	if record.ConsumedAt != nil || record.IsExpired(now) {
		s.logger.Debug("refresh rotation rejected: expired token for user %s", record.UserID)
		return nil, ErrUnauthenticated
	}

	user, err := s.repo.Users().GetByID(ctx, record.UserID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			s.logger.Debug("refresh rotation rejected: owner %s missing", record.UserID)
			return nil, ErrUnauthenticated
		}
		return nil, wrapUnavailable(err, "failed to load refresh token owner")
	}

	pair, successor, err := s.mintPair(ctx, user)
	if err != nil {
		return nil, err
	}

	successor.CreatedByIP = rctx.IP
	successor.UserAgent = rctx.UserAgent

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.repo.SideTokens().CreateTx(ctx, tx, successor); err != nil {
			return err
		}

		// Conditional revoke is the linearization point: of two concurrent
		// rotations only one update touches a row, the other rolls back.
		rows, err := s.repo.SideTokens().MarkRevokedTx(ctx, tx, record.ID, now, rctx.IP, successor.TokenHash)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errRotationLost
		}

		return nil
	})

	if err != nil {
		if goerrors.Is(err, errRotationLost) {
			s.logger.Debug("refresh rotation rejected: lost race for user %s", record.UserID)
			return nil, ErrUnauthenticated
		}
		return nil, wrapUnavailable(err, "refresh rotation transaction failed")
	}

	s.emit(ctx, ActivityEventSessionRotated, user.ID.String(), map[string]any{
		"ip": rctx.IP,
	})

	return pair, nil
}

// RevokeSession marks the matching active refresh record revoked. It is
// idempotent: a missing or already-inactive token is a silent no-op so that
// logout never fails visibly due to token state.
func (s *SessionIssuer) RevokeSession(ctx context.Context, refreshSecret string, rctx RequestContext) error {
	if err := ctx.Err(); err != nil {
		return wrapUnavailable(err, "context cancelled during session revocation")
	}

	if refreshSecret == "" {
		return nil
	}

	hash := s.hasher.Hash(refreshSecret)

	record, err := s.repo.SideTokens().GetByHash(ctx, hash, TokenKindRefresh)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil
		}
		return wrapUnavailable(err, "failed to look up refresh token")
	}

	rows, err := s.repo.SideTokens().MarkRevoked(ctx, record.ID, s.now(), rctx.IP, "")
	if err != nil {
		return wrapUnavailable(err, "failed to revoke refresh token")
	}

	if rows > 0 {
		s.emit(ctx, ActivityEventSessionRevoked, record.UserID.String(), map[string]any{
			"ip": rctx.IP,
		})
	}

	return nil
}

// handleReuse applies the hardening policy for rotation attempts against an
// already-revoked record: cascade-revoke every active refresh token for the
// owner, then reject generically.
func (s *SessionIssuer) handleReuse(ctx context.Context, record *SideToken, rctx RequestContext) error {
	revoked, err := s.repo.SideTokens().RevokeAllForUser(ctx, record.UserID, TokenKindRefresh, s.now(), rctx.IP)
	if err != nil {
		s.logger.Error("failed to cascade-revoke after refresh reuse for user %s: %v", record.UserID, err)
	}

	s.logger.Warn("refresh token reuse detected for user %s, revoked %d active tokens", record.UserID, revoked)
	s.emit(ctx, ActivityEventReuseDetected, record.UserID.String(), map[string]any{
		"ip":      rctx.IP,
		"revoked": revoked,
	})

	return ErrUnauthenticated
}

// mintPair builds a session token, a fresh opaque refresh secret, and the
// unsaved refresh record carrying its hash.
func (s *SessionIssuer) mintPair(ctx context.Context, user *User) (*TokenPair, *SideToken, error) {
	sessionToken, err := s.tokens.Generate(ctx, NewIdentityFromUser(user))
	if err != nil {
		return nil, nil, err
	}

	secret, err := NewOpaqueSecret()
	if err != nil {
		return nil, nil, err
	}

	expiresAt := s.now().Add(s.refresh)

	record := &SideToken{
		UserID:    user.ID,
		TokenHash: s.hasher.Hash(secret),
		Kind:      TokenKindRefresh,
		ExpiresAt: expiresAt,
	}

	pair := &TokenPair{
		SessionToken:     sessionToken,
		RefreshSecret:    secret,
		RefreshExpiresAt: expiresAt,
	}

	return pair, record, nil
}

func (s *SessionIssuer) emit(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: userID, Type: "user"},
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: s.now(),
	}

	if err := normalizeActivitySink(s.activity).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}
