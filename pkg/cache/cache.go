// Package cache holds translated responses keyed by request fingerprint so
// identical non-streaming requests skip the upstream entirely.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultTTL is how long a cached response stays servable.
	DefaultTTL = 24 * time.Hour
	// DefaultSize bounds the number of retained responses.
	DefaultSize = 1024
)

// Fingerprint derives the cache key for a request body: the MD5 of its
// canonical JSON. Decoding and re-encoding normalises key order and
// whitespace, so equivalent bodies map to the same key.
func Fingerprint(body []byte) string {
	var decoded interface{}
	canonical := body
	if err := json.Unmarshal(body, &decoded); err == nil {
		if enc, err := json.Marshal(decoded); err == nil {
			canonical = enc
		}
	}
	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:])
}

// ResponseCache is a TTL-bounded LRU of serialised Dialect A responses.
type ResponseCache struct {
	entries *lru.LRU[string, []byte]

	lookups atomic.Int64
	hits    atomic.Int64
	misses  atomic.Int64
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Lookups int64   `json:"lookups"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hitRate"`
	Size    int     `json:"size"`
}

// New creates a cache with the given capacity and TTL; zero values select the
// defaults.
func New(size int, ttl time.Duration) *ResponseCache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResponseCache{
		entries: lru.NewLRU[string, []byte](size, nil, ttl),
	}
}

// Get returns the cached response body for a fingerprint. Expired entries
// read as misses and are evicted by the underlying LRU.
func (c *ResponseCache) Get(fingerprint string) ([]byte, bool) {
	c.lookups.Add(1)
	body, ok := c.entries.Get(fingerprint)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return body, true
}

// Put stores a response body under a fingerprint.
func (c *ResponseCache) Put(fingerprint string, body []byte) {
	c.entries.Add(fingerprint, body)
}

// Purge drops every entry. Counters are kept; they describe lifetime traffic,
// not current contents.
func (c *ResponseCache) Purge() {
	c.entries.Purge()
}

// Stats reports lookup counters and the current hit rate.
func (c *ResponseCache) Stats() Stats {
	lookups := c.lookups.Load()
	hits := c.hits.Load()
	s := Stats{
		Lookups: lookups,
		Hits:    hits,
		Misses:  c.misses.Load(),
		Size:    c.entries.Len(),
	}
	if lookups > 0 {
		s.HitRate = float64(hits) / float64(lookups)
	}
	return s
}
