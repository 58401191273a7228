package routerclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/redis/go-redis/v9"

	"github.com/SincerityHun/LLM-Agent-Orchestrator/domain"
)

// cacheBackend stores routing decisions keyed by a content hash. Grounded
// on core/multiagent/deduplication.go's DedupBackend family: an in-memory
// map for a single process, an optional Redis-backed map for sharing the
// cache across orchestrator replicas.
type cacheBackend interface {
	Get(ctx context.Context, key string) (domain.RouteDecision, bool, error)
	Set(ctx context.Context, key string, decision domain.RouteDecision, ttl time.Duration) error
	Close() error
}

type inMemoryCacheBackend struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	decision domain.RouteDecision
	expires  time.Time
}

func newInMemoryCacheBackend() *inMemoryCacheBackend {
	return &inMemoryCacheBackend{entries: make(map[string]cacheEntry)}
}

func (b *inMemoryCacheBackend) Get(_ context.Context, key string) (domain.RouteDecision, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[key]
	if !ok || time.Now().After(entry.expires) {
		return domain.RouteDecision{}, false, nil
	}
	return entry.decision, true, nil
}

func (b *inMemoryCacheBackend) Set(_ context.Context, key string, decision domain.RouteDecision, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = cacheEntry{decision: decision, expires: time.Now().Add(ttl)}
	return nil
}

func (b *inMemoryCacheBackend) Close() error { return nil }

type redisCacheBackend struct {
	client *redis.Client
}

func newRedisCacheBackend(client *redis.Client) *redisCacheBackend {
	return &redisCacheBackend{client: client}
}

func (b *redisCacheBackend) key(key string) string {
	return fmt.Sprintf("routecache:%s", key)
}

func (b *redisCacheBackend) Get(ctx context.Context, key string) (domain.RouteDecision, bool, error) {
	raw, err := b.client.Get(ctx, b.key(key)).Result()
	if err == redis.Nil {
		return domain.RouteDecision{}, false, nil
	}
	if err != nil {
		return domain.RouteDecision{}, false, err
	}

	var decision domain.RouteDecision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return domain.RouteDecision{}, false, err
	}
	return decision, true, nil
}

func (b *redisCacheBackend) Set(ctx context.Context, key string, decision domain.RouteDecision, ttl time.Duration) error {
	raw, err := json.Marshal(decision)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, b.key(key), raw, ttl).Err()
}

func (b *redisCacheBackend) Close() error {
	return b.client.Close()
}

// decisionCache fronts a cacheBackend with a bloom filter so a definite
// cache miss never pays a backend round-trip: if the filter says "never
// seen", there's no point asking the backend.
type decisionCache struct {
	mu     sync.RWMutex
	bloom  *bloom.BloomFilter
	backend cacheBackend
	ttl    time.Duration
}

func newDecisionCache(backend cacheBackend, ttl time.Duration) *decisionCache {
	return &decisionCache{
		bloom:   bloom.NewWithEstimates(100000, 0.01),
		backend: backend,
		ttl:     ttl,
	}
}

// Get returns a cached decision for key, if any.
func (c *decisionCache) Get(ctx context.Context, key string) (domain.RouteDecision, bool) {
	c.mu.RLock()
	maybeSeen := c.bloom.TestString(key)
	c.mu.RUnlock()

	if !maybeSeen {
		return domain.RouteDecision{}, false
	}

	decision, hit, err := c.backend.Get(ctx, key)
	if err != nil || !hit {
		return domain.RouteDecision{}, false
	}
	return decision, true
}

// Put stores decision under key.
func (c *decisionCache) Put(ctx context.Context, key string, decision domain.RouteDecision) {
	c.mu.Lock()
	c.bloom.AddString(key)
	c.mu.Unlock()

	_ = c.backend.Set(ctx, key, decision, c.ttl)
}

// cacheKey derives a stable lookup key from the inputs that determine a
// routing decision: the domain plus a hash of the task and context, so
// identical requests share a cache entry. Context keys are sorted first so
// map iteration order never affects the key.
func cacheKey(dom, task string, taskContext map[string]string) string {
	h := sha256.New()
	h.Write([]byte(task))
	h.Write([]byte{0})

	keys := make([]string, 0, len(taskContext))
	for k := range taskContext {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(taskContext[k]))
		h.Write([]byte{0})
	}

	return dom + ":" + hex.EncodeToString(h.Sum(nil))
}
