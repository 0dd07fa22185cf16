// ABOUTME: Byte-capacity LRU cache for synthesized audio buffers
// ABOUTME: Entries age out by TTL and evict least-recently-used on overflow
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

// Config controls cache sizing and aging
type Config struct {
	MaxBytes int64         // total sample bytes held; 0 means 64 MiB
	MaxAge   time.Duration // entry TTL; 0 disables aging
	Dir      string        // persistence directory; empty disables persistence
}

const defaultMaxBytes = 64 << 20

// Stats is a point-in-time snapshot of cache behavior
type Stats struct {
	Entries   int
	Bytes     int64
	MaxBytes  int64
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

type entry struct {
	key     string
	buf     *audio.Buffer
	size    int64
	addedAt time.Time
}

// Cache is a thread-safe LRU keyed by normalized request key. The cache
// holds its own reference on every stored buffer; Get retains again for
// the caller.
type Cache struct {
	cfg Config
	log *log.Logger

	mu      sync.Mutex
	order   *list.List // front = most recent
	entries map[string]*list.Element
	bytes   int64

	hits      uint64
	misses    uint64
	evictions uint64

	now func() time.Time // test hook
}

// New creates a cache and, when cfg.Dir is set, reloads any persisted
// entries from previous runs in modification-time order.
func New(cfg Config, logger *log.Logger) *Cache {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if logger == nil {
		logger = log.Default()
	}
	c := &Cache{
		cfg:     cfg,
		log:     logger.WithPrefix("cache"),
		order:   list.New(),
		entries: make(map[string]*list.Element),
		now:     time.Now,
	}
	if cfg.Dir != "" {
		c.loadPersisted()
	}
	return c
}

// Get returns the buffer for key, retained for the caller, or nil on a
// miss. A hit refreshes the entry's recency.
func (c *Cache) Get(key string) *audio.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil
	}
	ent := el.Value.(*entry)

	if c.cfg.MaxAge > 0 && c.now().Sub(ent.addedAt) > c.cfg.MaxAge {
		c.removeLocked(el)
		c.misses++
		return nil
	}

	c.order.MoveToFront(el)
	c.hits++
	return ent.buf.Retain()
}

// Put stores buf under key, taking its own reference. Storing an
// existing key replaces the old buffer. Buffers larger than the whole
// cache are not stored.
func (c *Cache) Put(key string, buf *audio.Buffer) {
	size := int64(buf.SizeBytes())
	if size > c.cfg.MaxBytes {
		c.log.Warn("buffer exceeds cache capacity, not cached", "key", key, "bytes", size)
		return
	}

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}

	ent := &entry{key: key, buf: buf.Retain(), size: size, addedAt: c.now()}
	c.entries[key] = c.order.PushFront(ent)
	c.bytes += size
	c.evictToCapacityLocked()

	var persistBuf *audio.Buffer
	if c.cfg.Dir != "" {
		persistBuf = ent.buf.Retain()
	}
	c.mu.Unlock()

	// Disk writes happen outside the lock so a slow disk never stalls
	// concurrent lookups. The tmp+rename in persist keeps a racing
	// removal safe; last writer wins.
	if persistBuf != nil {
		if err := c.persist(ent); err != nil {
			c.log.Warn("persist failed", "key", key, "err", err)
		}
		persistBuf.Release()
	}
}

// EvictToCapacity removes least-recently-used entries until resident
// bytes fit the configured capacity. Put calls it after every insert;
// it is exported for callers that shrink capacity pressure on demand.
func (c *Cache) EvictToCapacity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictToCapacityLocked()
}

func (c *Cache) evictToCapacityLocked() {
	for c.bytes > c.cfg.MaxBytes {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeLocked(back)
		c.evictions++
	}
}

// Remove drops key from the cache if present
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// Purge drops every entry
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.order.Len() > 0 {
		c.removeLocked(c.order.Back())
	}
}

// Stats returns a snapshot of current cache counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   c.order.Len(),
		Bytes:     c.bytes,
		MaxBytes:  c.cfg.MaxBytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// removeLocked unlinks el, releases its buffer, and deletes any
// persisted file. Callers hold c.mu.
func (c *Cache) removeLocked(el *list.Element) {
	ent := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.entries, ent.key)
	c.bytes -= ent.size
	ent.buf.Release()
	if c.cfg.Dir != "" {
		c.unpersist(ent.key)
	}
}
