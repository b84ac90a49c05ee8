package moex

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const cacheShards = 16

// Cache is a sharded LRU with per-entry TTL. Values are stored
// msgpack-encoded so cached payloads are immutable snapshots; callers get
// a fresh decode on every hit. Sharding by key digest avoids a single
// global lock under concurrent tool execution.
type Cache struct {
	shards   [cacheShards]*cacheShard
	ttl      time.Duration
	perShard int

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheShard struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

type cacheEntry struct {
	key       string
	payload   []byte
	expiresAt time.Time
}

// NewCache creates a cache holding up to maxSize entries with the given
// TTL. maxSize is split evenly across shards, minimum one per shard.
func NewCache(ttl time.Duration, maxSize int) *Cache {
	perShard := maxSize / cacheShards
	if perShard < 1 {
		perShard = 1
	}
	c := &Cache{ttl: ttl, perShard: perShard}
	for i := range c.shards {
		c.shards[i] = &cacheShard{
			entries: make(map[string]*list.Element),
			order:   list.New(),
		}
	}
	return c
}

// CacheKey builds the canonical cache key for an operation and its
// normalised arguments.
func CacheKey(op string, args ...any) string {
	h := sha256.New()
	fmt.Fprint(h, op)
	for _, a := range args {
		fmt.Fprintf(h, "|%v", a)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get decodes the cached value for key into dst. Returns false on miss or
// expiry.
func (c *Cache) Get(key string, dst any) bool {
	shard := c.shardFor(key)
	shard.mu.Lock()

	elem, ok := shard.entries[key]
	if !ok {
		shard.mu.Unlock()
		c.misses.Add(1)
		return false
	}
	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		shard.order.Remove(elem)
		delete(shard.entries, key)
		shard.mu.Unlock()
		c.misses.Add(1)
		return false
	}
	shard.order.MoveToFront(elem)
	payload := entry.payload
	shard.mu.Unlock()

	if err := msgpack.Unmarshal(payload, dst); err != nil {
		c.misses.Add(1)
		return false
	}
	c.hits.Add(1)
	return true
}

// Set stores value under key, evicting the least recently used entry when
// the shard is full. Values that fail to encode are skipped silently; the
// cache is best-effort.
func (c *Cache) Set(key string, value any) {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return
	}

	shard := c.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if elem, ok := shard.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.payload = payload
		entry.expiresAt = time.Now().Add(c.ttl)
		shard.order.MoveToFront(elem)
		return
	}

	for shard.order.Len() >= c.perShard {
		oldest := shard.order.Back()
		if oldest == nil {
			break
		}
		shard.order.Remove(oldest)
		delete(shard.entries, oldest.Value.(*cacheEntry).key)
	}

	shard.entries[key] = shard.order.PushFront(&cacheEntry{
		key:       key,
		payload:   payload,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// SweepExpired removes entries past their TTL. Called periodically by the
// janitor; Get also evicts lazily so this only bounds memory.
func (c *Cache) SweepExpired() int {
	now := time.Now()
	removed := 0
	for _, shard := range c.shards {
		shard.mu.Lock()
		for key, elem := range shard.entries {
			if now.After(elem.Value.(*cacheEntry).expiresAt) {
				shard.order.Remove(elem)
				delete(shard.entries, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// Stats returns cumulative hit and miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.Lock()
		total += len(shard.entries)
		shard.mu.Unlock()
	}
	return total
}

func (c *Cache) shardFor(key string) *cacheShard {
	return c.shards[shardIndex(key)]
}

// shardIndex hashes the whole key so every shard is reachable and keys
// spread evenly regardless of the key alphabet.
func shardIndex(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % cacheShards
}
