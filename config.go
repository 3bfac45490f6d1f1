package credentials

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/joho/godotenv"
)

// EnvConfig is the environment-backed Config implementation. Every credential
// parameter must be present at startup: the service refuses to start on a
// missing secret or TTL instead of failing on the first request.
type EnvConfig struct {
	SigningSecret       string   `env:"AUTH_JWT_SECRET"`
	RefreshSecret       string   `env:"AUTH_REFRESH_SECRET"`
	SessionTTLMinutes   int      `env:"AUTH_SESSION_TTL_MINUTES" envDefault:"15"`
	RefreshTTLDays      int      `env:"AUTH_REFRESH_TTL_DAYS" envDefault:"7"`
	VerificationTTLMins int      `env:"AUTH_VERIFICATION_TTL_MINUTES" envDefault:"60"`
	ResetTTLMins        int      `env:"AUTH_RESET_TTL_MINUTES" envDefault:"30"`
	Issuer              string   `env:"AUTH_ISSUER"`
	Audience            []string `env:"AUTH_AUDIENCE" envSeparator:","`
	RefreshCookieName   string   `env:"AUTH_REFRESH_COOKIE_NAME" envDefault:"refreshToken"`
	RefreshCookiePath   string   `env:"AUTH_REFRESH_COOKIE_PATH" envDefault:"/api/v1/auth/refresh"`
}

var _ Config = (*EnvConfig)(nil)

// LoadConfig reads configuration from the environment, loading a local .env
// file first when present, and validates it. Errors here are fatal by
// design: use MustLoadConfig at startup.
func LoadConfig() (*EnvConfig, error) {
	// missing .env is fine outside development
	_ = godotenv.Load()

	cfg := &EnvConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse credential configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoadConfig is LoadConfig with fail-fast semantics.
func MustLoadConfig() *EnvConfig {
	cfg, err := LoadConfig()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate enforces the required startup configuration.
func (c *EnvConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SigningSecret, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.RefreshSecret, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.SessionTTLMinutes, validation.Required, validation.Min(1)),
		validation.Field(&c.RefreshTTLDays, validation.Required, validation.Min(1)),
		validation.Field(&c.VerificationTTLMins, validation.Required, validation.Min(1)),
		validation.Field(&c.ResetTTLMins, validation.Required, validation.Min(1)),
	)
}

func (c *EnvConfig) GetSigningKey() string           { return c.SigningSecret }
func (c *EnvConfig) GetRefreshDerivationKey() string { return c.RefreshSecret }
func (c *EnvConfig) GetSessionTTL() int              { return c.SessionTTLMinutes }
func (c *EnvConfig) GetRefreshTTLDays() int          { return c.RefreshTTLDays }
func (c *EnvConfig) GetVerificationTTL() int         { return c.VerificationTTLMins }
func (c *EnvConfig) GetResetTTL() int                { return c.ResetTTLMins }
func (c *EnvConfig) GetIssuer() string               { return c.Issuer }
func (c *EnvConfig) GetAudience() []string           { return c.Audience }

// RefreshCookie describes how the out-of-scope HTTP layer should transport
// the refresh secret: http-only, secure, same-site strict, scoped to the
// refresh endpoint, max-age equal to the refresh TTL.
type RefreshCookie struct {
	Name     string
	Path     string
	MaxAge   time.Duration
	HTTPOnly bool
	Secure   bool
	SameSite string
}

// RefreshCookieSpec returns the recommended cookie parameters for cfg.
func RefreshCookieSpec(cfg Config) RefreshCookie {
	name := "refreshToken"
	path := "/api/v1/auth/refresh"
	if ec, ok := cfg.(*EnvConfig); ok {
		if ec.RefreshCookieName != "" {
			name = ec.RefreshCookieName
		}
		if ec.RefreshCookiePath != "" {
			path = ec.RefreshCookiePath
		}
	}

	return RefreshCookie{
		Name:     name,
		Path:     path,
		MaxAge:   time.Duration(cfg.GetRefreshTTLDays()) * 24 * time.Hour,
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Strict",
	}
}
