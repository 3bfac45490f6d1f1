package credentials_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credentials "github.com/merchware/go-credentials"
)

type stubUserStore struct {
	user *credentials.User
	err  error
}

func (s *stubUserStore) GetByEmail(ctx context.Context, email string) (*credentials.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

func TestVerifyIdentity(t *testing.T) {
	repo := setupRepo(t)
	user := seedUser(t, repo, "pepe.rone@example.com", "sup3r-secret!", true)
	provider := credentials.NewUserProvider(repo.Users())

	identity, err := provider.VerifyIdentity(context.Background(), "Pepe.Rone@Example.com", "sup3r-secret!")
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), identity.ID())
	assert.Equal(t, "pepe.rone@example.com", identity.Email())
	assert.Equal(t, string(credentials.RoleViewer), identity.Role())
}

func TestVerifyIdentityMismatch(t *testing.T) {
	repo := setupRepo(t)
	seedUser(t, repo, "pepe.rone@example.com", "sup3r-secret!", true)
	provider := credentials.NewUserProvider(repo.Users())

	// wrong password and unknown email fail the same way
	_, err := provider.VerifyIdentity(context.Background(), "pepe.rone@example.com", "wrong-password")
	assert.ErrorIs(t, err, credentials.ErrMismatchedHashAndPassword)

	_, err = provider.VerifyIdentity(context.Background(), "ghost@example.com", "sup3r-secret!")
	assert.ErrorIs(t, err, credentials.ErrMismatchedHashAndPassword)
}

func TestVerifyIdentityRejectsInvalidRole(t *testing.T) {
	hash, err := credentials.HashPassword("sup3r-secret!")
	require.NoError(t, err)

	provider := credentials.NewUserProvider(&stubUserStore{user: &credentials.User{
		Email:        "pepe.rone@example.com",
		PasswordHash: hash,
		Role:         credentials.UserRole("Bogus"),
	}})

	_, err = provider.VerifyIdentity(context.Background(), "pepe.rone@example.com", "sup3r-secret!")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid role")
}

func TestFindIdentityByIdentifier(t *testing.T) {
	repo := setupRepo(t)
	user := seedUser(t, repo, "pepe.rone@example.com", "sup3r-secret!", true)
	provider := credentials.NewUserProvider(repo.Users())

	identity, err := provider.FindIdentityByIdentifier(context.Background(), "pepe.rone@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), identity.ID())

	_, err = provider.FindIdentityByIdentifier(context.Background(), "ghost@example.com")
	assert.Error(t, err)
}
