package credentials

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole string

const (
	// RoleViewer is a read-only role and the default for new accounts
	RoleViewer UserRole = "Viewer"
	// RoleEditor can manage catalog content (i.e. view, edit, create)
	RoleEditor UserRole = "Editor"
	// RoleAdmin can do everything, including user management
	RoleAdmin UserRole = "Admin"
)

// AuthProvider identifies how an account authenticates.
type AuthProvider = string

const (
	// ProviderLocal is email + password
	ProviderLocal AuthProvider = "local"
	// ProviderGoogle is the federated identity provider
	ProviderGoogle AuthProvider = "google"
)

// User is the identity record. Email is unique across all users regardless
// of provider. PasswordHash is empty only transiently; federated-only
// accounts are seeded with an unusable random hash.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string       `bun:"name,notnull" json:"name,omitempty"`
	Email         string       `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string       `bun:"password_hash" json:"-"`
	Role          UserRole     `bun:"user_role,notnull" json:"user_role,omitempty"`
	Provider      AuthProvider `bun:"provider,notnull,default:'local'" json:"provider,omitempty"`
	ProviderID    string       `bun:"provider_id,nullzero" json:"provider_id,omitempty"`
	EmailVerified bool         `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	VerifiedAt    *time.Time   `bun:"verified_at,nullzero" json:"verified_at,omitempty"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time   `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsLocal reports whether the account can log in with a password.
func (u *User) IsLocal() bool {
	return u.Provider == "" || u.Provider == ProviderLocal
}

// NormalizeEmail lowercases and trims an email so uniqueness checks are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// TokenKind discriminates the rows stored in the side tokens table.
type TokenKind = string

const (
	// TokenKindRefresh is a long-lived session refresh secret
	TokenKindRefresh TokenKind = "refresh"
	// TokenKindEmailVerification is a single-use email verification token
	TokenKindEmailVerification TokenKind = "email_verification"
	// TokenKindPasswordReset is a single-use password reset token
	TokenKindPasswordReset TokenKind = "password_reset"
)

// SideToken is the single abstraction covering refresh, email verification,
// and password reset tokens. Only the hash of the opaque secret is stored,
// never the plaintext. A token is active iff it has not been revoked, not
// been consumed, and has not expired.
type SideToken struct {
	bun.BaseModel `bun:"table:side_tokens,alias:stk"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID      `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User          `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	TokenHash     string         `bun:"token_hash,notnull,unique" json:"-"`
	Kind          TokenKind      `bun:"kind,notnull" json:"kind,omitempty"`
	ExpiresAt     time.Time      `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedByIP   string         `bun:"created_by_ip" json:"created_by_ip,omitempty"`
	UserAgent     string         `bun:"user_agent" json:"user_agent,omitempty"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	RevokedAt     *time.Time     `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
	RevokedByIP   string         `bun:"revoked_by_ip" json:"revoked_by_ip,omitempty"`
	ConsumedAt    *time.Time     `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	// ReplacedByTokenHash chains a rotated refresh token to its successor.
	ReplacedByTokenHash string     `bun:"replaced_by_token_hash" json:"-"`
	CreatedAt           *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// IsExpired reports whether the token's expiry has passed.
func (t *SideToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsActive reports whether the token can still be used.
func (t *SideToken) IsActive(now time.Time) bool {
	return t.RevokedAt == nil && t.ConsumedAt == nil && !t.IsExpired(now)
}

// RequestContext carries the request metadata recorded with every issued
// token. Both fields are optional.
type RequestContext struct {
	IP        string
	UserAgent string
}
