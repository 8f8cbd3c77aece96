package cache

import (
	"context"

	"github.com/alumnium-hq/alumnium/pkg/config"
	"github.com/alumnium-hq/alumnium/pkg/llms"
)

// CachedProvider wraps an llms.Provider with a cache. On a hit the stored
// response is returned with zeroed usage so callers do not double-count
// tokens that were never spent; the cache's own tally records the saving.
type CachedProvider struct {
	inner llms.Provider
	cache *Cache
}

// NewCachedProvider binds a provider to a cache.
func NewCachedProvider(inner llms.Provider, c *Cache) *CachedProvider {
	return &CachedProvider{inner: inner, cache: c}
}

func (p *CachedProvider) Model() config.Model { return p.inner.Model() }

func (p *CachedProvider) Close() error { return p.inner.Close() }

func (p *CachedProvider) Generate(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	key := Key(p.inner.Model(), req)

	if stored, ok := p.cache.Lookup(key); ok {
		hit := *stored
		hit.Usage = llms.Usage{}
		return &hit, nil
	}

	resp, err := p.inner.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	// Make sure hits always have tokens to account, even for providers
	// that omit usage metadata.
	llms.EstimateUsage(req, resp)
	p.cache.Put(key, resp)

	return resp, nil
}
