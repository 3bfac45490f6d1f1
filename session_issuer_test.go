package credentials_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credentials "github.com/merchware/go-credentials"
)

func TestIssueSessionReturnsUsablePair(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	user := seedUser(t, s.repo, "issue@example.com", "sup3r-secret!", true)

	pair, err := s.issuer.IssueSession(ctx, user, credentials.RequestContext{IP: "10.0.0.1"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.SessionToken)
	require.NotEmpty(t, pair.RefreshSecret)
	assert.True(t, pair.RefreshExpiresAt.After(time.Now().Add(6*24*time.Hour)))

	claims, err := s.tokens.Validate(pair.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID())
	assert.Equal(t, user.Email, claims.Email())
	assert.Equal(t, string(credentials.RoleViewer), claims.Role())

	// the opaque secret is never stored verbatim
	count, err := s.repo.SideTokens().CountActiveForUser(ctx, user.ID, credentials.TokenKindRefresh, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	events := s.sink.byType(credentials.ActivityEventSessionIssued)
	require.Len(t, events, 1)
	assert.Equal(t, user.ID.String(), events[0].UserID)
}

func TestRotateRefreshChainsAndConsumes(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	user := seedUser(t, s.repo, "rotate@example.com", "sup3r-secret!", true)

	first, err := s.issuer.IssueSession(ctx, user, credentials.RequestContext{})
	require.NoError(t, err)

	second, err := s.issuer.RotateRefresh(ctx, first.RefreshSecret, credentials.RequestContext{IP: "10.0.0.2"})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshSecret, second.RefreshSecret)

	// the old secret is spent
	_, err = s.issuer.RotateRefresh(ctx, first.RefreshSecret, credentials.RequestContext{})
	require.Error(t, err)
	assert.True(t, credentials.IsUnauthenticated(err))

	events := s.sink.byType(credentials.ActivityEventSessionRotated)
	assert.Len(t, events, 1)
}

func TestRotateRefreshRejectsGarbage(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	for _, secret := range []string{"", "not-a-token", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"} {
		_, err := s.issuer.RotateRefresh(ctx, secret, credentials.RequestContext{})
		require.Error(t, err)
		assert.True(t, credentials.IsUnauthenticated(err))
	}
}

func TestRotateRefreshReuseRevokesWholeSessionSet(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	user := seedUser(t, s.repo, "reuse@example.com", "sup3r-secret!", true)

	stolen, err := s.issuer.IssueSession(ctx, user, credentials.RequestContext{})
	require.NoError(t, err)

	fresh, err := s.issuer.RotateRefresh(ctx, stolen.RefreshSecret, credentials.RequestContext{})
	require.NoError(t, err)

	// replaying the consumed secret is treated as theft
	_, err = s.issuer.RotateRefresh(ctx, stolen.RefreshSecret, credentials.RequestContext{IP: "198.51.100.7"})
	require.Error(t, err)
	assert.True(t, credentials.IsUnauthenticated(err))

	// the cascade killed the legitimate successor too
	_, err = s.issuer.RotateRefresh(ctx, fresh.RefreshSecret, credentials.RequestContext{})
	require.Error(t, err)
	assert.True(t, credentials.IsUnauthenticated(err))

	count, err := s.repo.SideTokens().CountActiveForUser(ctx, user.ID, credentials.TokenKindRefresh, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	events := s.sink.byType(credentials.ActivityEventReuseDetected)
	require.NotEmpty(t, events)
	assert.Equal(t, user.ID.String(), events[0].UserID)
}

func TestRotateRefreshExpiredSecretRejected(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	user := seedUser(t, s.repo, "expired@example.com", "sup3r-secret!", true)

	past := time.Now().Add(-8 * 24 * time.Hour)
	s.issuer.WithClock(func() time.Time { return past })

	pair, err := s.issuer.IssueSession(ctx, user, credentials.RequestContext{})
	require.NoError(t, err)

	s.issuer.WithClock(time.Now)

	_, err = s.issuer.RotateRefresh(ctx, pair.RefreshSecret, credentials.RequestContext{})
	require.Error(t, err)
	assert.True(t, credentials.IsUnauthenticated(err))
}

func TestRevokeSessionIsIdempotent(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	user := seedUser(t, s.repo, "logout@example.com", "sup3r-secret!", true)

	pair, err := s.issuer.IssueSession(ctx, user, credentials.RequestContext{})
	require.NoError(t, err)

	require.NoError(t, s.issuer.RevokeSession(ctx, pair.RefreshSecret, credentials.RequestContext{IP: "10.0.0.3"}))

	// revoked, unknown, and empty secrets are all silent no-ops
	require.NoError(t, s.issuer.RevokeSession(ctx, pair.RefreshSecret, credentials.RequestContext{}))
	require.NoError(t, s.issuer.RevokeSession(ctx, "unknown-secret", credentials.RequestContext{}))
	require.NoError(t, s.issuer.RevokeSession(ctx, "", credentials.RequestContext{}))

	_, err = s.issuer.RotateRefresh(ctx, pair.RefreshSecret, credentials.RequestContext{})
	require.Error(t, err)

	events := s.sink.byType(credentials.ActivityEventSessionRevoked)
	assert.Len(t, events, 1)
}

func TestRotateRefreshConcurrentSingleWinner(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	user := seedUser(t, s.repo, "race@example.com", "sup3r-secret!", true)

	pair, err := s.issuer.IssueSession(ctx, user, credentials.RequestContext{})
	require.NoError(t, err)

	const workers = 100

	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.issuer.RotateRefresh(ctx, pair.RefreshSecret, credentials.RequestContext{})
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
		} else {
			assert.True(t, credentials.IsUnauthenticated(err))
		}
	}

	assert.Equal(t, 1, winners, "exactly one rotation must win")
}
