package google_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credentials "github.com/merchware/go-credentials"
	"github.com/merchware/go-credentials/provider/google"
)

const testClientID = "client-123.apps.googleusercontent.com"

type signer struct {
	key *rsa.PrivateKey
}

func newSigner(t *testing.T) *signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &signer{key: key}
}

func (s *signer) keyFunc(*jwt.Token) (any, error) {
	return &s.key.PublicKey, nil
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (s *signer) sign(t *testing.T, mutate func(*tokenClaims)) string {
	t.Helper()

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://accounts.google.com",
			Subject:   "goog-sub-42",
			Audience:  jwt.ClaimStrings{testClientID},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email:         "maria@example.com",
		EmailVerified: true,
		Name:          "Maria",
	}
	if mutate != nil {
		mutate(&claims)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key"

	signed, err := token.SignedString(s.key)
	require.NoError(t, err)
	return signed
}

func newVerifier(t *testing.T, s *signer) *google.Verifier {
	t.Helper()
	verifier, err := google.NewVerifier(google.Config{
		ClientID: testClientID,
		KeyFunc:  s.keyFunc,
	})
	require.NoError(t, err)
	return verifier
}

func TestVerifyMapsProfile(t *testing.T) {
	s := newSigner(t)
	verifier := newVerifier(t, s)

	profile, err := verifier.Verify(s.sign(t, nil))
	require.NoError(t, err)

	assert.Equal(t, credentials.ProviderGoogle, profile.Provider)
	assert.Equal(t, "goog-sub-42", profile.Subject)
	assert.Equal(t, "maria@example.com", profile.Email)
	assert.Equal(t, "Maria", profile.Name)
	assert.True(t, profile.EmailVerified)
}

func TestVerifyAcceptsBareIssuer(t *testing.T) {
	s := newSigner(t)
	verifier := newVerifier(t, s)

	_, err := verifier.Verify(s.sign(t, func(c *tokenClaims) {
		c.Issuer = "accounts.google.com"
	}))
	assert.NoError(t, err)
}

func TestVerifyRejections(t *testing.T) {
	s := newSigner(t)
	verifier := newVerifier(t, s)

	cases := []struct {
		name   string
		mutate func(*tokenClaims)
	}{
		{"wrong audience", func(c *tokenClaims) {
			c.Audience = jwt.ClaimStrings{"someone-else"}
		}},
		{"wrong issuer", func(c *tokenClaims) {
			c.Issuer = "https://evil.example.com"
		}},
		{"expired", func(c *tokenClaims) {
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		}},
		{"missing expiry", func(c *tokenClaims) {
			c.ExpiresAt = nil
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := verifier.Verify(s.sign(t, tc.mutate))
			assert.ErrorContains(t, err, "invalid ID token")
		})
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	s := newSigner(t)
	verifier := newVerifier(t, s)

	other := newSigner(t)
	_, err := verifier.Verify(other.sign(t, nil))
	assert.ErrorContains(t, err, "invalid ID token")
}

func TestVerifyRejectsGarbage(t *testing.T) {
	s := newSigner(t)
	verifier := newVerifier(t, s)

	_, err := verifier.Verify("not.a.token")
	assert.Error(t, err)
}

func TestNewVerifierRequiresClientID(t *testing.T) {
	_, err := google.NewVerifier(google.Config{})
	assert.Error(t, err)
}
