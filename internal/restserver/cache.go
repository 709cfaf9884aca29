package restserver

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"
)

// cachePolicy is a route's freshness window.
type cachePolicy struct {
	ttl   time.Duration
	stale time.Duration
}

// cacheControl renders the policy's Cache-Control value.
func (p cachePolicy) cacheControl() string {
	return fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d",
		int(p.ttl.Seconds()), int(p.stale.Seconds()))
}

type cacheEntry struct {
	body        []byte
	contentType string
	etag        string
	expires     time.Time
}

// responseCache stores serialised response bodies keyed by route plus
// canonicalised parameters. Racing fills are tolerated, last writer wins.
type responseCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func newResponseCache() *responseCache {
	return &responseCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// get returns a still-fresh entry.
func (c *responseCache) get(key string) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		return cacheEntry{}, false
	}
	return e, true
}

// put stores a body and returns the entry with its computed ETag.
func (c *responseCache) put(key string, body []byte, contentType string, ttl time.Duration) cacheEntry {
	e := cacheEntry{
		body:        body,
		contentType: contentType,
		etag:        etagFor(body),
		expires:     c.now().Add(ttl),
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return e
}

// etagFor hashes a serialised body into a quoted entity tag.
func etagFor(body []byte) string {
	h := fnv.New64a()
	h.Write(body)
	return fmt.Sprintf("%q", strconv.FormatUint(h.Sum64(), 16))
}

// canonCoord rounds a coordinate to 4 decimals for cache keys.
func canonCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// canonBBox rounds a bounding box to 3 decimals for cache keys.
func canonBBox(b [4]float64) string {
	return strconv.FormatFloat(b[0], 'f', 3, 64) + "," +
		strconv.FormatFloat(b[1], 'f', 3, 64) + "," +
		strconv.FormatFloat(b[2], 'f', 3, 64) + "," +
		strconv.FormatFloat(b[3], 'f', 3, 64)
}
