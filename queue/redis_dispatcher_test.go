package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRedisDispatcherWithClientDefaults(t *testing.T) {
	d := NewRedisDispatcherWithClient(nil, Config{})
	assert.Equal(t, DefaultKey, d.key)
	assert.Equal(t, 5*time.Second, d.timeout)
}

func TestNewRedisDispatcherWithClientOverrides(t *testing.T) {
	d := NewRedisDispatcherWithClient(nil, Config{
		Key:     "jobs:mail",
		Timeout: time.Second,
	})
	assert.Equal(t, "jobs:mail", d.key)
	assert.Equal(t, time.Second, d.timeout)
}

func TestNewRedisDispatcherRejectsBadURL(t *testing.T) {
	_, err := NewRedisDispatcher(context.Background(), Config{
		URL: "not-a-redis-url",
	})
	assert.ErrorContains(t, err, "invalid redis connection string")
}
