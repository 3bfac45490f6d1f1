package credentials

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthClaims represents structured session token claims with permission checks
type AuthClaims interface {
	Subject() string
	UserID() string
	Email() string
	Role() string
	CanRead() bool
	CanEdit() bool
	CanCreate() bool
	CanDelete() bool
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims carried by session
// tokens: subject id, email, and role. Verification is stateless; there is
// no storage lookup on the session path.
type JWTClaims struct {
	jwt.RegisteredClaims
	UID       string `json:"uid,omitempty"`
	UserEmail string `json:"email,omitempty"`
	UserRole  string `json:"role,omitempty"`
	// Metadata is the extension area decorators may write to.
	Metadata map[string]any `json:"meta,omitempty"`
}

// Verify interface compliance
var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Email returns the email claim
func (c *JWTClaims) Email() string {
	return c.UserEmail
}

// Role returns the user's role
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// CanRead checks if the user can read resources
func (c *JWTClaims) CanRead() bool {
	return UserRole(c.UserRole).CanRead()
}

// CanEdit checks if the user can edit resources
func (c *JWTClaims) CanEdit() bool {
	return UserRole(c.UserRole).CanEdit()
}

// CanCreate checks if the user can create resources
func (c *JWTClaims) CanCreate() bool {
	return UserRole(c.UserRole).CanCreate()
}

// CanDelete checks if the user can delete resources
func (c *JWTClaims) CanDelete() bool {
	return UserRole(c.UserRole).CanDelete()
}

// HasRole checks if the user has a specific role
func (c *JWTClaims) HasRole(role string) bool {
	return c.UserRole == role
}

// IsAtLeast checks if the user's role is at least the minimum required role
func (c *JWTClaims) IsAtLeast(minRole string) bool {
	return UserRole(c.UserRole).IsAtLeast(UserRole(minRole))
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// ensureTokenID assigns a random token id when the claims carry none.
func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
