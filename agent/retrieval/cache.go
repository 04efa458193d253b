// Package retrieval ranks policy chunks against a query embedding, fronted
// by an LRU cache so repeated queries never re-pay the embedding call.
package retrieval

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Estimated savings per cache hit, used for metrics only.
const estimatedUSDPerEmbedding = 0.0001

// Metrics is a point-in-time snapshot of cache effectiveness.
type Metrics struct {
	Hits              int     `json:"hits"`
	Misses            int     `json:"misses"`
	Size              int     `json:"size"`
	MaxSize           int     `json:"max_size"`
	HitRate           float64 `json:"hit_rate"`
	EstimatedSavedUSD float64 `json:"estimated_saved_usd"`
}

// Cache is a strict-capacity LRU over embedding vectors. Keys are derived
// from the normalized text, so "Refund Policy" and " refund policy " share an
// entry. A max size of zero or less disables caching entirely.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List
	entries map[string]*list.Element
	hits    int
	misses  int
}

type cacheEntry struct {
	key    string
	vector []float64
}

func NewCache(maxSize int) *Cache {
	return &Cache{
		maxSize: maxSize,
		order:   list.New(),
		entries: map[string]*list.Element{},
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])
}

// GetOrCompute returns the cached vector for text or computes and stores it.
// The compute function runs outside the cache lock, so two concurrent misses
// on the same key may both compute; the second write wins harmlessly.
func (c *Cache) GetOrCompute(ctx context.Context, text string, compute func(context.Context) ([]float64, error)) ([]float64, error) {
	if c == nil || c.maxSize <= 0 {
		return compute(ctx)
	}

	key := cacheKey(text)

	c.mu.Lock()
	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		c.hits++
		vector := elem.Value.(*cacheEntry).vector
		c.mu.Unlock()
		log.Debug().Str("key", key[:12]).Msg("embedding cache hit")
		return vector, nil
	}
	c.misses++
	c.mu.Unlock()

	vector, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*cacheEntry).vector = vector
		return vector, nil
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, vector: vector})
	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	return vector, nil
}

func (c *Cache) Metrics() Metrics {
	if c == nil {
		return Metrics{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := Metrics{
		Hits:              c.hits,
		Misses:            c.misses,
		Size:              c.order.Len(),
		MaxSize:           c.maxSize,
		EstimatedSavedUSD: float64(c.hits) * estimatedUSDPerEmbedding,
	}
	if total := c.hits + c.misses; total > 0 {
		m.HitRate = float64(c.hits) / float64(total)
	}
	return m
}
