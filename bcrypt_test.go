package credentials_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credentials "github.com/merchware/go-credentials"
)

func TestHashAndComparePassword(t *testing.T) {
	hash, err := credentials.HashPassword("sup3r-secret!")
	require.NoError(t, err)
	assert.NotEqual(t, "sup3r-secret!", hash)

	assert.NoError(t, credentials.ComparePasswordAndHash("sup3r-secret!", hash))

	err = credentials.ComparePasswordAndHash("wrong", hash)
	require.Error(t, err)
	assert.ErrorIs(t, err, credentials.ErrMismatchedHashAndPassword)
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := credentials.HashPassword("")
	require.Error(t, err)
	assert.ErrorIs(t, err, credentials.ErrNoEmptyString)
}

func TestRandomPasswordHashIsUnusable(t *testing.T) {
	hash := credentials.RandomPasswordHash()
	require.NotEmpty(t, hash)

	for _, guess := range []string{"", "password", "admin", hash} {
		assert.Error(t, credentials.ComparePasswordAndHash(guess, hash))
	}

	assert.NotEqual(t, hash, credentials.RandomPasswordHash())
}
