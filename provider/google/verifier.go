package google

import (
	stderrors "errors"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"

	credentials "github.com/merchware/go-credentials"
)

// CertsURL is Google's published JWK Set for ID token signatures.
const CertsURL = "https://www.googleapis.com/oauth2/v3/certs"

var acceptedIssuers = []string{
	"https://accounts.google.com",
	"accounts.google.com",
}

// Config configures a Verifier. ClientID is the OAuth client the ID token
// must be minted for; KeyFunc overrides JWKS fetching, mostly for tests.
type Config struct {
	ClientID   string
	JWKSetURL  string
	RefreshTTL time.Duration
	KeyFunc    jwt.Keyfunc
}

// Verifier checks Google-issued ID tokens against the live JWK Set and maps
// their claims to a federated profile.
type Verifier struct {
	clientID string
	keyFunc  jwt.Keyfunc
	parser   *jwt.Parser
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// NewVerifier builds a Verifier. Unless cfg.KeyFunc is set it starts a
// background-refreshing JWKS client against Google's cert endpoint.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.ClientID == "" {
		return nil, goerrors.New("google: client id is required", goerrors.CategoryBadInput)
	}

	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		url := cfg.JWKSetURL
		if url == "" {
			url = CertsURL
		}

		refresh := cfg.RefreshTTL
		if refresh == 0 {
			refresh = time.Hour
		}

		jwks, err := keyfunc.Get(url, keyfunc.Options{
			RefreshInterval:  refresh,
			RefreshRateLimit: time.Minute,
		})
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "google: failed to load JWK Set")
		}
		keyFunc = jwks.Keyfunc
	}

	return &Verifier{
		clientID: cfg.ClientID,
		keyFunc:  keyFunc,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256"}),
			jwt.WithAudience(cfg.ClientID),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// Verify parses and validates rawIDToken and returns the attested profile.
// Signature, audience, expiry, and issuer are all enforced; any failure
// maps to the generic invalid-credentials error so callers cannot tell a
// forged token from a stale one.
func (v *Verifier) Verify(rawIDToken string) (credentials.FederatedProfile, error) {
	var claims idTokenClaims

	token, err := v.parser.ParseWithClaims(rawIDToken, &claims, v.keyFunc)
	if err != nil || !token.Valid {
		return credentials.FederatedProfile{}, invalidToken(err)
	}

	if !issuerAccepted(claims.Issuer) {
		return credentials.FederatedProfile{}, invalidToken(stderrors.New("unexpected issuer"))
	}

	return credentials.FederatedProfile{
		Provider:      credentials.ProviderGoogle,
		Subject:       claims.Subject,
		Email:         claims.Email,
		Name:          claims.Name,
		EmailVerified: claims.EmailVerified,
	}, nil
}

func issuerAccepted(issuer string) bool {
	for _, accepted := range acceptedIssuers {
		if issuer == accepted {
			return true
		}
	}
	return false
}

func invalidToken(err error) error {
	result := goerrors.New("google: invalid ID token", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode("INVALID_CREDENTIALS")
	if err != nil {
		result.Source = err
	}
	return result
}
