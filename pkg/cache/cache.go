// Package cache provides the per-session LLM response cache. Lookups are
// keyed by a stable fingerprint of the full prompt; hits substitute for a
// provider call and are accounted separately from real token spend.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/alumnium-hq/alumnium/pkg/config"
	"github.com/alumnium-hq/alumnium/pkg/llms"
)

// Key fingerprints a request against a concrete model. Go's JSON encoder
// writes map keys in sorted order, so the serialization is deterministic.
func Key(model config.Model, req *llms.Request) string {
	payload := struct {
		Provider   config.Provider              `json:"provider"`
		Model      string                       `json:"model"`
		System     string                       `json:"system"`
		Messages   []llms.Message               `json:"messages"`
		Tools      []llms.ToolDefinition        `json:"tools"`
		Structured *llms.StructuredOutputConfig `json:"structured"`
	}{
		Provider:   model.Provider,
		Model:      model.Name,
		System:     req.System,
		Messages:   req.Messages,
		Tools:      req.Tools,
		Structured: req.Structured,
	}
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Cache holds responses for one session. It is safe for concurrent use.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]*llms.Response
	uncommitted map[string]bool
	usage       llms.Usage
	store       *Store
}

// New builds a cache, optionally backed by a store. A nil store keeps the
// cache purely in-memory.
func New(store *Store) *Cache {
	return &Cache{
		entries:     make(map[string]*llms.Response),
		uncommitted: make(map[string]bool),
		store:       store,
	}
}

// Lookup returns the stored response for a key. On a hit the response's
// recorded token counts are added to the cache usage tally.
func (c *Cache) Lookup(key string) (*llms.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, ok := c.entries[key]
	if !ok && c.store != nil {
		if stored, err := c.store.Get(key); err == nil && stored != nil {
			c.entries[key] = stored
			resp, ok = stored, true
		}
	}
	if !ok {
		return nil, false
	}

	c.usage.Add(resp.Usage)
	return resp, true
}

// Put records a response as uncommitted; Save persists it, Discard drops it.
func (c *Cache) Put(key string, resp *llms.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = resp
	c.uncommitted[key] = true
}

// Usage returns the tokens saved by cache hits so far.
func (c *Cache) Usage() llms.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Save flushes uncommitted entries to the backing store. Without a store it
// just marks them committed.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		for key := range c.uncommitted {
			if err := c.store.Put(key, c.entries[key]); err != nil {
				return err
			}
		}
	}
	c.uncommitted = make(map[string]bool)
	return nil
}

// Discard drops all uncommitted entries.
func (c *Cache) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.uncommitted {
		delete(c.entries, key)
	}
	c.uncommitted = make(map[string]bool)
}
