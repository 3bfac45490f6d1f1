package credentials_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credentials "github.com/merchware/go-credentials"
)

func testIdentity() credentials.Identity {
	return credentials.NewIdentityFromUser(&credentials.User{
		ID:    uuid.New(),
		Name:  "Pepe Rone",
		Email: "pepe@example.com",
		Role:  credentials.RoleEditor,
	})
}

func TestTokenServiceRoundTrip(t *testing.T) {
	key := []byte("test-signing-key-32-bytes-long!!")
	svc := credentials.NewTokenService(key, 15*time.Minute, "issuer", []string{"api"}, nil)

	identity := testIdentity()
	token, err := svc.Generate(context.Background(), identity)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, identity.ID(), claims.Subject())
	assert.Equal(t, identity.ID(), claims.UserID())
	assert.Equal(t, "pepe@example.com", claims.Email())
	assert.Equal(t, string(credentials.RoleEditor), claims.Role())
	assert.True(t, claims.CanEdit())
	assert.False(t, claims.CanDelete())
	assert.True(t, claims.IsAtLeast(string(credentials.RoleViewer)))
	assert.False(t, claims.IsAtLeast(string(credentials.RoleAdmin)))
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.Expires(), time.Minute)
}

func TestTokenServiceRejectsExpired(t *testing.T) {
	key := []byte("test-signing-key-32-bytes-long!!")
	svc := credentials.NewTokenService(key, -time.Minute, "issuer", nil, nil)

	token, err := svc.Generate(context.Background(), testIdentity())
	require.NoError(t, err)

	_, err = svc.Validate(token)
	require.Error(t, err)
	assert.True(t, credentials.IsUnauthenticated(err))
}

func TestTokenServiceRejectsOtherKey(t *testing.T) {
	svcA := credentials.NewTokenService([]byte("test-signing-key-32-bytes-long!A"), time.Minute, "issuer", nil, nil)
	svcB := credentials.NewTokenService([]byte("test-signing-key-32-bytes-long!B"), time.Minute, "issuer", nil, nil)

	token, err := svcA.Generate(context.Background(), testIdentity())
	require.NoError(t, err)

	_, err = svcB.Validate(token)
	require.Error(t, err)
	assert.True(t, credentials.IsUnauthenticated(err))
}

func TestTokenServiceRejectsWrongIssuerOrAudience(t *testing.T) {
	key := []byte("test-signing-key-32-bytes-long!!")
	minter := credentials.NewTokenService(key, time.Minute, "issuer-a", []string{"aud-a"}, nil)

	token, err := minter.Generate(context.Background(), testIdentity())
	require.NoError(t, err)

	t.Run("wrong issuer", func(t *testing.T) {
		checker := credentials.NewTokenService(key, time.Minute, "issuer-b", []string{"aud-a"}, nil)
		_, err := checker.Validate(token)
		assert.Error(t, err)
	})

	t.Run("wrong audience", func(t *testing.T) {
		checker := credentials.NewTokenService(key, time.Minute, "issuer-a", []string{"aud-b"}, nil)
		_, err := checker.Validate(token)
		assert.Error(t, err)
	})
}

func TestTokenServiceRejectsGarbage(t *testing.T) {
	svc := credentials.NewTokenService([]byte("test-signing-key-32-bytes-long!!"), time.Minute, "issuer", nil, nil)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		_, err := svc.Validate(token)
		require.Error(t, err)
		assert.True(t, credentials.IsUnauthenticated(err))
	}
}

func TestClaimsDecoratorMetadata(t *testing.T) {
	key := []byte("test-signing-key-32-bytes-long!!")
	svc := credentials.NewTokenService(key, time.Minute, "issuer", nil, nil)

	impl, ok := svc.(*credentials.TokenServiceImpl)
	require.True(t, ok)

	impl.WithClaimsDecorator(credentials.ClaimsDecoratorFunc(func(ctx context.Context, identity credentials.Identity, claims *credentials.JWTClaims) error {
		if claims.Metadata == nil {
			claims.Metadata = map[string]any{}
		}
		claims.Metadata["tenant"] = "store-1"
		return nil
	}))

	token, err := svc.Generate(context.Background(), testIdentity())
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)

	jwtClaims, ok := claims.(*credentials.JWTClaims)
	require.True(t, ok)
	assert.Equal(t, "store-1", jwtClaims.Metadata["tenant"])
}

func TestClaimsDecoratorCannotTouchIdentity(t *testing.T) {
	key := []byte("test-signing-key-32-bytes-long!!")
	svc := credentials.NewTokenService(key, time.Minute, "issuer", nil, nil)

	impl, ok := svc.(*credentials.TokenServiceImpl)
	require.True(t, ok)

	impl.WithClaimsDecorator(credentials.ClaimsDecoratorFunc(func(ctx context.Context, identity credentials.Identity, claims *credentials.JWTClaims) error {
		claims.RegisteredClaims.Subject = "somebody-else"
		return nil
	}))

	_, err := svc.Generate(context.Background(), testIdentity())
	require.Error(t, err)
}
