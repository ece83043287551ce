package roster

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
	"golang.org/x/sync/singleflight"
)

const (
	activeKey  = "active"
	defaultTTL = 30 * time.Second
)

// Loader reads artists from the store in roster order.
type Loader interface {
	List(ctx context.Context, activeOnly bool) ([]model.Artist, error)
}

// Cache serves the active roster from memory for up to TTL. Concurrent misses
// share one load.
type Cache struct {
	loader Loader
	lru    *expirable.LRU[string, []model.Artist]
	group  singleflight.Group
}

func NewCache(loader Loader, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		loader: loader,
		lru:    expirable.NewLRU[string, []model.Artist](4, nil, ttl),
	}
}

// Active returns the active artists, lowest roster position first. The
// returned slice is a copy.
func (c *Cache) Active(ctx context.Context) ([]model.Artist, error) {
	if artists, ok := c.lru.Get(activeKey); ok {
		return clone(artists), nil
	}
	v, err, _ := c.group.Do(activeKey, func() (any, error) {
		artists, err := c.loader.List(ctx, true)
		if err != nil {
			return nil, err
		}
		c.lru.Add(activeKey, artists)
		return artists, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(v.([]model.Artist)), nil
}

// Invalidate drops the cached roster; the next Active call reloads it.
func (c *Cache) Invalidate() {
	c.lru.Purge()
	c.group.Forget(activeKey)
}

func clone(in []model.Artist) []model.Artist {
	out := make([]model.Artist, len(in))
	copy(out, in)
	return out
}
