package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenService signs and validates short-lived session tokens.
type TokenService interface {
	Generate(ctx context.Context, identity Identity) (string, error)
	SignClaims(claims *JWTClaims) (string, error)
	Validate(tokenString string) (AuthClaims, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey []byte
	sessionTTL time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
	decorator  ClaimsDecorator
}

// NewTokenService creates a new TokenService instance. sessionTTL is the
// short session token lifetime; refresh longevity is handled by the side
// token store, not here.
func NewTokenService(signingKey []byte, sessionTTL time.Duration, issuer string, audience jwt.ClaimStrings, logger Logger) TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey: signingKey,
		sessionTTL: sessionTTL,
		issuer:     issuer,
		audience:   audience,
		logger:     logger,
		decorator:  noopClaimsDecorator{},
	}
}

// WithClaimsDecorator installs a decorator invoked on the claims of every
// generated token before signing.
func (ts *TokenServiceImpl) WithClaimsDecorator(d ClaimsDecorator) *TokenServiceImpl {
	ts.decorator = normalizeClaimsDecorator(d)
	return ts
}

// Generate creates a signed session token carrying subject id, email, and role
func (ts *TokenServiceImpl) Generate(ctx context.Context, identity Identity) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.sessionTTL)),
		},
		UID:       identity.ID(),
		UserEmail: identity.Email(),
		UserRole:  identity.Role(),
	}

	ensureTokenID(&claims.RegisteredClaims)

	snapshot := captureImmutableClaims(claims)

	if err := normalizeClaimsDecorator(ts.decorator).Decorate(ctx, identity, claims); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "claims decorator failed")
	}

	if err := snapshot.validate(claims); err != nil {
		return "", err
	}

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims.
// Verification is signature + expiry only; no storage lookup.
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrUnauthenticated
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "invalid session token").
			WithTextCode(TextCodeUnauthenticated)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("TokenService validate could not decode or validate claims")
	return nil, ErrUnauthenticated
}
