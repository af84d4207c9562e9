package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// CachedAnswer is a completed generation stored for identical follow-up
// questions.
type CachedAnswer struct {
	Answer  string
	Sources []string
}

// ResponseCache stores finished answers keyed by a fingerprint of the
// question and the context sources it was answered from. Concurrent identical
// requests share one generation via singleflight; a failed or cancelled
// generation never populates the cache.
type ResponseCache struct {
	lru   *expirable.LRU[string, CachedAnswer]
	group singleflight.Group
}

// NewResponseCache creates a ResponseCache holding up to size entries for ttl.
func NewResponseCache(size int, ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		lru: expirable.NewLRU[string, CachedAnswer](size, nil, ttl),
	}
}

// Fingerprint derives the cache key: the normalized query plus the sorted
// source URLs of the assembled context. Answers from different context sets
// never collide.
func Fingerprint(query string, sources []string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))

	sorted := make([]string, len(sources))
	copy(sorted, sources)
	sort.Strings(sorted)

	var sb strings.Builder
	sb.WriteString(normalized)
	for _, src := range sorted {
		sb.WriteString("\x00")
		sb.WriteString(src)
	}

	hash := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(hash[:])
}

// Get returns the cached answer for the fingerprint, if present.
func (c *ResponseCache) Get(fingerprint string) (CachedAnswer, bool) {
	return c.lru.Get(fingerprint)
}

// GetOrCompute returns the cached answer or runs compute once for all
// concurrent callers with the same fingerprint. The second return value
// reports a cache hit. Failed computations are never cached, and a caller
// whose context died during the shared computation gets its context error.
func (c *ResponseCache) GetOrCompute(ctx context.Context, fingerprint string, compute func() (CachedAnswer, error)) (CachedAnswer, bool, error) {
	if answer, ok := c.lru.Get(fingerprint); ok {
		return answer, true, nil
	}

	result, err, _ := c.group.Do(fingerprint, func() (interface{}, error) {
		answer, err := compute()
		if err != nil {
			return CachedAnswer{}, err
		}
		c.lru.Add(fingerprint, answer)
		return answer, nil
	})
	if err != nil {
		return CachedAnswer{}, false, err
	}
	if ctx.Err() != nil {
		return CachedAnswer{}, false, ctx.Err()
	}
	return result.(CachedAnswer), false, nil
}

// Put stores a finished answer directly. Used by the streaming path, which
// assembles the answer incrementally and only commits it after a clean finish.
func (c *ResponseCache) Put(fingerprint string, answer CachedAnswer) {
	c.lru.Add(fingerprint, answer)
}

// Invalidate drops every cached answer. Called after a rebuild, when cached
// answers may describe an index that no longer exists.
func (c *ResponseCache) Invalidate() {
	c.lru.Purge()
}

// Len reports the number of live entries, for status endpoints and tests.
func (c *ResponseCache) Len() int {
	return c.lru.Len()
}
