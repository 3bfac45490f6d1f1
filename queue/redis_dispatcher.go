// Package queue delivers credential notifications (verification and reset
// mail jobs) to a Redis-backed worker queue. The dispatcher only enqueues;
// rendering and SMTP belong to the consumer on the other side of the list.
package queue

import (
	"context"
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"

	credentials "github.com/merchware/go-credentials"
)

// DefaultKey is the Redis list notification jobs are pushed onto.
const DefaultKey = "credentials:notifications"

// Config configures a RedisDispatcher.
type Config struct {
	// URL is a redis connection string, e.g. redis://localhost:6379/0.
	URL string
	// Key overrides the destination list. Defaults to DefaultKey.
	Key string
	// Timeout bounds each enqueue round trip. Defaults to 5s.
	Timeout time.Duration
}

// RedisDispatcher implements credentials.Dispatcher by pushing each
// notification as a JSON job onto a Redis list.
type RedisDispatcher struct {
	client  redis.UniversalClient
	key     string
	timeout time.Duration
}

// NewRedisDispatcher dials Redis with cfg and verifies the connection
// before returning the dispatcher.
func NewRedisDispatcher(ctx context.Context, cfg Config) (*RedisDispatcher, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid redis connection string")
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "redis not ready")
	}

	return NewRedisDispatcherWithClient(client, cfg), nil
}

// NewRedisDispatcherWithClient wraps an already-connected client. The
// dispatcher does not own the client's lifecycle in this case.
func NewRedisDispatcherWithClient(client redis.UniversalClient, cfg Config) *RedisDispatcher {
	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &RedisDispatcher{
		client:  client,
		key:     key,
		timeout: timeout,
	}
}

// Dispatch implements credentials.Dispatcher.
func (d *RedisDispatcher) Dispatch(ctx context.Context, n credentials.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode notification")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.client.LPush(ctx, d.key, payload).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to enqueue notification")
	}

	return nil
}

// Healthcheck pings the underlying connection.
func (d *RedisDispatcher) Healthcheck(ctx context.Context) error {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "redis ping failed")
	}
	return nil
}
