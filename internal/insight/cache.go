package insight

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sync/singleflight"

	"github.com/joelkehle/valuation-wizard/internal/valuation"
)

// Cached memoizes another writer per record. Concurrent requests for the
// same record share one call; failures are not remembered.
type Cached struct {
	next  Writer
	group singleflight.Group

	mu    sync.Mutex
	cache *lru.Cache
}

func NewCached(next Writer, size int) *Cached {
	return &Cached{next: next, cache: lru.New(size)}
}

func (c *Cached) Commentary(ctx context.Context, r valuation.Record, res valuation.Result) (string, error) {
	key, err := recordKey(r)
	if err != nil {
		return c.next.Commentary(ctx, r, res)
	}
	c.mu.Lock()
	v, ok := c.cache.Get(key)
	c.mu.Unlock()
	if ok {
		return v.(string), nil
	}

	out, err, _ := c.group.Do(key, func() (any, error) {
		text, err := c.next.Commentary(ctx, r, res)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.cache.Add(key, text)
		c.mu.Unlock()
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func recordKey(r valuation.Record) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
