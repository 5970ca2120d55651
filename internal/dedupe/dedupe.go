// Package dedupe remembers recently seen inbound message keys so that
// Telegram's webhook redeliveries are processed once per process.
package dedupe

import (
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Defaults used when New receives non-positive values.
const (
	DefaultCapacity = 10_000
	DefaultTTL      = 300 * time.Second
)

// Cache is a bounded set of keys that forget themselves after a TTL.
// When full, the least recently inserted key is evicted first; lookups never
// refresh an entry.
type Cache struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, time.Time]
	ttl time.Duration
	now func() time.Time
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns a Cache holding at most capacity keys for ttl each.
func New(capacity int, ttl time.Duration, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		lru: expirable.NewLRU[string, time.Time](capacity, nil, ttl),
		ttl: ttl,
		now: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// MessageKey builds the cache key of a Telegram message. Message ids are only
// unique within a chat, so both parts are needed.
func MessageKey(chatID, messageID int64) string {
	if messageID == 0 {
		return ""
	}
	return strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(messageID, 10)
}

// SeenOrRecord reports whether key was recorded within the TTL. If it was not,
// key is recorded now and false is returned. The empty key is never recorded.
func (c *Cache) SeenOrRecord(key string) bool {
	if key == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if at, ok := c.lru.Peek(key); ok && now.Sub(at) < c.ttl {
		return true
	}
	c.lru.Add(key, now)
	return false
}

// Len returns the number of keys currently held.
func (c *Cache) Len() int { return c.lru.Len() }
