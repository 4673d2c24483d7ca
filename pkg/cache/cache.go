// Package cache provides the shared cache used to remember identities
// already validated against the user service, so that gateway replicas
// don't re-validate hot identities on every request.
package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// DefaultTTL specifies default TTL
var DefaultTTL = 30 * time.Minute

// KeepTTL specifies to keep value
var KeepTTL = time.Duration(-1)

// NowFunc allows to override default time
var NowFunc = time.Now

// Provider names
const (
	ProviderMemory = "memory"
	ProviderRedis  = "redis"
)

// Config specifies configuration of the cache.
type Config struct {
	// Provider specifies the cache provider: redis|memory
	Provider string       `json:"provider" yaml:"provider"`
	Redis    *RedisConfig `json:"redis" yaml:"redis"`
}

// RedisConfig specifies configuration of the redis.
type RedisConfig struct {
	Server   string        `json:"server,omitempty" yaml:"server,omitempty"`
	TTL      time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	User     string        `json:"user,omitempty" yaml:"user,omitempty"`
	Password string        `json:"password,omitempty" yaml:"password,omitempty"`
}

// Provider defines cache interface
type Provider interface {
	// Set data
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	// Get data
	Get(ctx context.Context, key string, v any) error
	// Delete data
	Delete(ctx context.Context, key string) error
	// CleanExpired data
	CleanExpired(ctx context.Context)
	// Close closes the client, releasing any open resources.
	Close() error
	// Keys returns list of keys.
	// This method should be used mostly for testing, as in prod many keys maybe returned
	Keys(ctx context.Context, pattern string) ([]string, error)

	// IsLocal returns true, if cache is local
	IsLocal() bool
}

// New returns a cache provider for the config
func New(cfg *Config, prefix string) (Provider, error) {
	if cfg == nil || cfg.Provider == "" || cfg.Provider == ProviderMemory {
		return NewMemoryProvider(prefix), nil
	}
	if cfg.Provider == ProviderRedis {
		if cfg.Redis == nil {
			return nil, errors.New("redis provider requires redis configuration")
		}
		return NewRedisProvider(*cfg.Redis, prefix)
	}
	return nil, errors.Newf("unsupported cache provider: %s", cfg.Provider)
}

// ErrNotFound defines not found error
var ErrNotFound = errors.New("not found")

// IsNotFoundError returns true, if error is NotFound
func IsNotFoundError(err error) bool {
	return err != nil && errors.Is(err, ErrNotFound)
}
