package credentials_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	credentials "github.com/merchware/go-credentials"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "pepe@example.com", credentials.NormalizeEmail("  Pepe@Example.COM "))
	assert.Equal(t, "", credentials.NormalizeEmail("   "))
}

func TestUserIsLocal(t *testing.T) {
	assert.True(t, (&credentials.User{}).IsLocal())
	assert.True(t, (&credentials.User{Provider: credentials.ProviderLocal}).IsLocal())
	assert.False(t, (&credentials.User{Provider: credentials.ProviderGoogle}).IsLocal())
}

func TestSideTokenLiveness(t *testing.T) {
	now := time.Now()
	live := &credentials.SideToken{ExpiresAt: now.Add(time.Hour)}

	assert.True(t, live.IsActive(now))
	assert.False(t, live.IsExpired(now))

	t.Run("expired", func(t *testing.T) {
		token := &credentials.SideToken{ExpiresAt: now.Add(-time.Second)}
		assert.True(t, token.IsExpired(now))
		assert.False(t, token.IsActive(now))
	})

	t.Run("exactly at expiry", func(t *testing.T) {
		token := &credentials.SideToken{ExpiresAt: now}
		assert.True(t, token.IsExpired(now))
	})

	t.Run("revoked", func(t *testing.T) {
		at := now.Add(-time.Minute)
		token := &credentials.SideToken{ExpiresAt: now.Add(time.Hour), RevokedAt: &at}
		assert.False(t, token.IsActive(now))
	})

	t.Run("consumed", func(t *testing.T) {
		at := now.Add(-time.Minute)
		token := &credentials.SideToken{ExpiresAt: now.Add(time.Hour), ConsumedAt: &at}
		assert.False(t, token.IsActive(now))
	})
}
