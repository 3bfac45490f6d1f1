package credentials

import (
	goerrors "github.com/goliatone/go-errors"
)

// Text codes for the closed error taxonomy. Callers match on these rather
// than on message strings.
const (
	TextCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	TextCodeVerificationRequired  = "VERIFICATION_REQUIRED"
	TextCodeUnauthenticated       = "UNAUTHENTICATED"
	TextCodeInvalidOrExpiredToken = "INVALID_OR_EXPIRED_TOKEN"
	TextCodeEmailTaken            = "EMAIL_TAKEN"
	TextCodeUnavailable           = "UNAVAILABLE"
	TextCodeEmptyPassword         = "EMPTY_PASSWORD"
	TextCodePasswordMismatch      = "PASSWORD_MISMATCH"
)

// ErrInvalidCredentials is returned for a failed login. The message is the
// same whether the email is unknown or the password wrong, so callers cannot
// enumerate accounts.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeInvalidCredentials)

// ErrVerificationRequired is returned when a local account exists and the
// password matches but the email has not been verified yet.
var ErrVerificationRequired = goerrors.New("email verification required", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeVerificationRequired)

// ErrUnauthenticated is the generic failure for every refresh token problem:
// missing, malformed, unknown, revoked, or expired. The distinct reason is
// logged for observability but never surfaced to the caller.
var ErrUnauthenticated = goerrors.New("invalid or expired refresh token", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeUnauthenticated)

// ErrInvalidOrExpiredToken is the generic failure for action token
// consumption. "Already used" and "never existed" are indistinguishable on
// purpose.
var ErrInvalidOrExpiredToken = goerrors.New("invalid or expired token", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidOrExpiredToken)

// ErrEmailTaken is returned when registration hits an existing email.
var ErrEmailTaken = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken)

// ErrUnavailable wraps storage and transport failures. The core never retries
// these; retry policy belongs to the caller.
var ErrUnavailable = goerrors.New("service unavailable", goerrors.CategoryOperation).
	WithTextCode(TextCodeUnavailable)

// ErrNoEmptyString rejects empty password input to the hasher.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// ErrMismatchedHashAndPassword is the normalized bcrypt mismatch error.
var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodePasswordMismatch)

// ErrImmutableClaimMutation rejects claim decorators that touch identity or
// lifetime claims.
var ErrImmutableClaimMutation = goerrors.New("immutable claim mutated", goerrors.CategoryInternal).
	WithTextCode("IMMUTABLE_CLAIM_MUTATION")

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// IsInvalidCredentials matches failed logins.
func IsInvalidCredentials(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredentials)
}

// IsVerificationRequired matches logins blocked on email verification.
func IsVerificationRequired(err error) bool {
	return hasTextCode(err, TextCodeVerificationRequired)
}

// IsUnauthenticated matches refresh and session token failures.
func IsUnauthenticated(err error) bool {
	return hasTextCode(err, TextCodeUnauthenticated)
}

// IsInvalidOrExpiredToken matches action token consumption failures.
func IsInvalidOrExpiredToken(err error) bool {
	return hasTextCode(err, TextCodeInvalidOrExpiredToken)
}

// IsEmailTaken matches registration conflicts.
func IsEmailTaken(err error) bool {
	return hasTextCode(err, TextCodeEmailTaken)
}

// IsUnavailable matches storage/transport failures surfaced by the core.
func IsUnavailable(err error) bool {
	return hasTextCode(err, TextCodeUnavailable)
}

// wrapUnavailable tags an infrastructure failure with the generic
// Unavailable text code, preserving the cause for logs.
func wrapUnavailable(err error, msg string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryOperation, msg).
		WithTextCode(TextCodeUnavailable)
}
