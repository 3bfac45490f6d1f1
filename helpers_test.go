package credentials_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	credentials "github.com/merchware/go-credentials"
)

const sqliteCreateUsers = `CREATE TABLE users (
    id TEXT NOT NULL PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT,
    user_role TEXT NOT NULL,
    provider TEXT NOT NULL DEFAULT 'local',
    provider_id TEXT,
    is_email_verified BOOLEAN NOT NULL DEFAULT FALSE,
    verified_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    CONSTRAINT uq_users_provider_subject UNIQUE (provider, provider_id)
);`

const sqliteCreateSideTokens = `CREATE TABLE side_tokens (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    token_hash TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    created_by_ip TEXT,
    user_agent TEXT,
    metadata TEXT,
    revoked_at TIMESTAMP NULL,
    revoked_by_ip TEXT,
    consumed_at TIMESTAMP NULL,
    replaced_by_token_hash TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`

func setupRepo(t *testing.T) credentials.RepositoryManager {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	_, err = bunDB.Exec(sqliteCreateUsers)
	require.NoError(t, err)
	_, err = bunDB.Exec(sqliteCreateSideTokens)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = bunDB.Close()
		_ = db.Close()
	})

	repo := credentials.NewRepositoryManager(bunDB)
	repo.MustValidate()
	return repo
}

type testConfig struct {
	signingKey string
	refreshKey string
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey: "test-signing-key-32-bytes-long!!",
		refreshKey: "test-refresh-key-32-bytes-long!!",
	}
}

func (c *testConfig) GetSigningKey() string           { return c.signingKey }
func (c *testConfig) GetRefreshDerivationKey() string { return c.refreshKey }
func (c *testConfig) GetSessionTTL() int              { return 15 }
func (c *testConfig) GetRefreshTTLDays() int          { return 7 }
func (c *testConfig) GetVerificationTTL() int         { return 60 }
func (c *testConfig) GetResetTTL() int                { return 30 }
func (c *testConfig) GetIssuer() string               { return "credentials-test" }
func (c *testConfig) GetAudience() []string           { return []string{"api"} }

// capturingSink records activity events for assertions.
type capturingSink struct {
	mu     sync.Mutex
	events []credentials.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt credentials.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) byType(eventType credentials.ActivityEventType) []credentials.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []credentials.ActivityEvent
	for _, evt := range c.events {
		if evt.EventType == eventType {
			out = append(out, evt)
		}
	}
	return out
}

// capturingDispatcher records notifications instead of delivering them.
type capturingDispatcher struct {
	mu            sync.Mutex
	notifications []credentials.Notification
}

func (c *capturingDispatcher) Dispatch(ctx context.Context, n credentials.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = append(c.notifications, n)
	return nil
}

func (c *capturingDispatcher) last() (credentials.Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.notifications) == 0 {
		return credentials.Notification{}, false
	}
	return c.notifications[len(c.notifications)-1], true
}

// stack bundles the wired components most tests need.
type stack struct {
	repo       credentials.RepositoryManager
	tokens     credentials.TokenService
	issuer     *credentials.SessionIssuer
	actions    *credentials.ActionTokenManager
	auther     *credentials.Auther
	linker     *credentials.IdentityLinker
	sink       *capturingSink
	dispatcher *capturingDispatcher
	cfg        *testConfig
}

func newStack(t *testing.T) *stack {
	t.Helper()

	repo := setupRepo(t)
	cfg := newTestConfig()
	sink := &capturingSink{}
	dispatcher := &capturingDispatcher{}

	tokens := credentials.NewTokenService(
		[]byte(cfg.GetSigningKey()),
		time.Duration(cfg.GetSessionTTL())*time.Minute,
		cfg.GetIssuer(),
		cfg.GetAudience(),
		nil,
	)

	issuer := credentials.NewSessionIssuer(repo, tokens, cfg).WithActivitySink(sink)
	actions := credentials.NewActionTokenManager(repo, cfg).WithActivitySink(sink)
	auther := credentials.NewAuther(repo, issuer, actions, tokens, cfg).
		WithActivitySink(sink).
		WithDispatcher(dispatcher)
	linker := credentials.NewIdentityLinker(repo).WithActivitySink(sink)

	return &stack{
		repo:       repo,
		tokens:     tokens,
		issuer:     issuer,
		actions:    actions,
		auther:     auther,
		linker:     linker,
		sink:       sink,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

func seedUser(t *testing.T, repo credentials.RepositoryManager, email, password string, verified bool) *credentials.User {
	t.Helper()

	hash, err := credentials.HashPassword(password)
	require.NoError(t, err)

	user := &credentials.User{
		Name:          "Pepe Rone",
		Email:         email,
		PasswordHash:  hash,
		EmailVerified: verified,
	}
	if verified {
		now := time.Now()
		user.VerifiedAt = &now
	}

	created, err := repo.Users().Register(context.Background(), user)
	require.NoError(t, err)
	return created
}
