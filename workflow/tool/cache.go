package tool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachingTool wraps a Tool with a bounded TTL cache keyed on
// (tool name, canonicalized input), so a pattern replay's already-seen
// calls (e.g. repeated tool schema fetches) don't hit the wrapped
// tool again for the duration of the TTL. Activity outcomes recorded
// in the event log already make replay idempotent at the activity
// layer; this cache covers lookups the wrapped tool makes internally
// that never reach the event log.
type CachingTool struct {
	Tool
	cache *expirable.LRU[string, map[string]interface{}]
}

// NewCachingTool wraps tool in an LRU cache holding up to size entries,
// each valid for ttl.
func NewCachingTool(tool Tool, size int, ttl time.Duration) *CachingTool {
	return &CachingTool{
		Tool:  tool,
		cache: expirable.NewLRU[string, map[string]interface{}](size, nil, ttl),
	}
}

// Call returns a cached result for identical (name, input) pairs
// within the TTL window, otherwise delegates to the wrapped Tool and
// caches the outcome. Errors are never cached.
func (c *CachingTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	key := cacheKey(c.Tool.Name(), input)
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}

	out, err := c.Tool.Call(ctx, input)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, out)
	return out, nil
}

// cacheKey canonicalizes input via JSON marshaling so key equality
// doesn't depend on map iteration order.
func cacheKey(name string, input map[string]interface{}) string {
	b, err := json.Marshal(input)
	if err != nil {
		return name
	}
	return name + ":" + string(b)
}
