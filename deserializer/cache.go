package deserializer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/MrEthical07/goSSO/identity"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// CacheStats is a point-in-time view of a Cache's counters.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Shared uint64
	Size   int
}

// Cache memoizes successful conversions of a pure Deserializer. Identical
// payloads converted concurrently share one underlying call. Failures are
// never cached.
type Cache struct {
	inner Deserializer
	lru   *lru.Cache[string, identity.Identity]
	group singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
	shared atomic.Uint64
}

var _ Deserializer = (*Cache)(nil)

// Cached wraps d with an LRU of at most size conversions.
func Cached(d Deserializer, size int) (*Cache, error) {
	if d == nil {
		return nil, errors.New("cached: nil deserializer")
	}
	if size <= 0 {
		return nil, fmt.Errorf("cached: invalid size %d", size)
	}

	l, err := lru.New[string, identity.Identity](size)
	if err != nil {
		return nil, fmt.Errorf("create conversion cache: %w", err)
	}
	return &Cache{inner: Checked(d), lru: l}, nil
}

// Deserialize implements Deserializer.
func (c *Cache) Deserialize(payload string) (identity.Identity, error) {
	key := payloadKey(payload)

	if ident, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return ident, nil
	}
	c.misses.Add(1)

	v, err, shared := c.group.Do(key, func() (any, error) {
		ident, err := c.inner.Deserialize(payload)
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, ident)
		return ident, nil
	})
	if shared {
		c.shared.Add(1)
	}
	if err != nil {
		return nil, err
	}
	return v.(identity.Identity), nil
}

// Stats returns the cache counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Shared: c.shared.Load(),
		Size:   c.lru.Len(),
	}
}

// Purge drops every cached conversion.
func (c *Cache) Purge() {
	c.lru.Purge()
}

func payloadKey(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
