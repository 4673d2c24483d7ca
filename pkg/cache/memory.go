package cache

import (
	"context"
	"encoding/json"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type memProv struct {
	prefix string
	cache  sync.Map
}

type entry struct {
	expires *time.Time
	// keep JSON encoded to be in parity with Redis
	data []byte
}

// NewMemoryProvider returns memory cache
func NewMemoryProvider(prefix string) Provider {
	return &memProv{
		prefix: prefix,
	}
}

func (p *memProv) Close() error {
	return nil
}

// IsLocal returns true, if cache is local
func (p *memProv) IsLocal() bool {
	return true
}

// Set data
func (p *memProv) Set(_ context.Context, key string, v any, ttl time.Duration) error {
	if ttl == 0 {
		ttl = DefaultTTL
	}

	k := path.Join(p.prefix, key)
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal value: %s", k)
	}

	val := &entry{
		data: b,
	}

	if ttl != KeepTTL {
		exp := NowFunc().Add(ttl)
		val.expires = &exp
	}
	p.cache.Store(k, val)
	return nil
}

// Get data
func (p *memProv) Get(_ context.Context, key string, v any) error {
	k := path.Join(p.prefix, key)
	if ent, ok := p.cache.Load(k); ok {
		e := ent.(*entry)
		if e.expires == nil || e.expires.After(NowFunc()) {
			err := json.Unmarshal(e.data, v)
			if err != nil {
				return errors.Wrapf(err, "failed to unmarshal value: %s", k)
			}
			return nil
		}
	}

	return ErrNotFound
}

// Delete data
func (p *memProv) Delete(_ context.Context, key string) error {
	k := path.Join(p.prefix, key)
	p.cache.Delete(k)
	return nil
}

// CleanExpired data
func (p *memProv) CleanExpired(_ context.Context) {
	now := NowFunc()
	p.cache.Range(func(key any, value any) bool {
		e := value.(*entry)
		if e.expires != nil && !e.expires.After(now) {
			p.cache.Delete(key)
		}
		return true
	})
}

// Keys returns list of keys.
// This method should be used mostly for testing, as in prod many keys maybe returned
func (p *memProv) Keys(_ context.Context, pattern string) ([]string, error) {
	k := path.Join(p.prefix, pattern)
	k = strings.TrimRight(k, "*?")

	var list []string
	p.cache.Range(func(key any, _ any) bool {
		name := key.(string)
		if strings.HasPrefix(name, k) {
			list = append(list, name)
		}
		return true
	})
	return list, nil
}
