package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitpulse/gateway/pkg/cache"
)

type seenIdentity struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

func TestMemoryProvider(t *testing.T) {
	ctx := context.Background()
	p := cache.NewMemoryProvider("/test/identities")
	defer p.Close()

	assert.True(t, p.IsLocal())

	t.Run("set_get", func(t *testing.T) {
		err := p.Set(ctx, "u-1001", &seenIdentity{Subject: "u-1001", Role: "member"}, 0)
		require.NoError(t, err)

		var got seenIdentity
		require.NoError(t, p.Get(ctx, "u-1001", &got))
		assert.Equal(t, "u-1001", got.Subject)
		assert.Equal(t, "member", got.Role)
	})

	t.Run("not_found", func(t *testing.T) {
		var got seenIdentity
		err := p.Get(ctx, "u-none", &got)
		assert.True(t, cache.IsNotFoundError(err))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, p.Set(ctx, "u-1002", "seen", 0))
		require.NoError(t, p.Delete(ctx, "u-1002"))

		var got string
		err := p.Get(ctx, "u-1002", &got)
		assert.True(t, cache.IsNotFoundError(err))
	})

	t.Run("ttl_expiry", func(t *testing.T) {
		defer func() { cache.NowFunc = time.Now }()

		require.NoError(t, p.Set(ctx, "u-1003", "seen", time.Minute))

		cache.NowFunc = func() time.Time { return time.Now().Add(2 * time.Minute) }
		var got string
		err := p.Get(ctx, "u-1003", &got)
		assert.True(t, cache.IsNotFoundError(err))
	})

	t.Run("keys", func(t *testing.T) {
		require.NoError(t, p.Set(ctx, "u-2001", "seen", 0))
		require.NoError(t, p.Set(ctx, "u-2002", "seen", 0))

		keys, err := p.Keys(ctx, "u-2*")
		require.NoError(t, err)
		assert.Len(t, keys, 2)
	})

	t.Run("clean_expired", func(t *testing.T) {
		defer func() { cache.NowFunc = time.Now }()

		require.NoError(t, p.Set(ctx, "u-3001", "seen", time.Minute))
		require.NoError(t, p.Set(ctx, "u-3002", "seen", cache.KeepTTL))

		cache.NowFunc = func() time.Time { return time.Now().Add(2 * time.Minute) }
		p.CleanExpired(ctx)

		keys, err := p.Keys(ctx, "u-3*")
		require.NoError(t, err)
		assert.Equal(t, []string{"/test/identities/u-3002"}, keys)
	})
}

func TestNew(t *testing.T) {
	t.Run("default_memory", func(t *testing.T) {
		p, err := cache.New(nil, "/fitpulse")
		require.NoError(t, err)
		assert.True(t, p.IsLocal())
	})

	t.Run("redis_requires_config", func(t *testing.T) {
		_, err := cache.New(&cache.Config{Provider: cache.ProviderRedis}, "/fitpulse")
		assert.EqualError(t, err, "redis provider requires redis configuration")
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := cache.New(&cache.Config{Provider: "memcached"}, "/fitpulse")
		assert.EqualError(t, err, "unsupported cache provider: memcached")
	})
}
