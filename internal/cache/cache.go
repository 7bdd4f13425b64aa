package cache

import (
	"sync"
	"time"
)

// entry — элемент кэша с моментом истечения (0 — бессрочно)
type entry[V any] struct {
	value      V
	expiration int64
}

func (e *entry[V]) expired(now int64) bool {
	return e.expiration != 0 && now > e.expiration
}

// Cache — in-memory кэш с TTL и ограничением размера
type Cache[V any] struct {
	mu                sync.RWMutex
	items             map[string]*entry[V]
	defaultExpiration time.Duration
	maxItems          int
	stopCleanup       chan struct{}
	stopOnce          sync.Once

	hits   int64
	misses int64
}

// Config конфигурация кэша
type Config struct {
	DefaultExpiration time.Duration
	CleanupInterval   time.Duration
	MaxItems          int
}

// New создает кэш и запускает фоновую очистку
func New[V any](config Config) *Cache[V] {
	if config.DefaultExpiration == 0 {
		config.DefaultExpiration = 5 * time.Minute
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = 10 * time.Minute
	}
	if config.MaxItems == 0 {
		config.MaxItems = 10000
	}

	c := &Cache[V]{
		items:             make(map[string]*entry[V]),
		defaultExpiration: config.DefaultExpiration,
		maxItems:          config.MaxItems,
		stopCleanup:       make(chan struct{}),
	}

	go c.cleanupLoop(config.CleanupInterval)

	return c
}

// Set добавляет элемент с TTL по умолчанию
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultExpiration)
}

// SetWithTTL добавляет элемент с указанным TTL; ttl <= 0 — бессрочно
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	var expiration int64
	if ttl > 0 {
		expiration = time.Now().Add(ttl).UnixNano()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxItems {
		c.evictOne()
	}
	c.items[key] = &entry[V]{value: value, expiration: expiration}
}

// Get получает элемент из кэша
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.items[key]
	if !found {
		c.misses++
		return zero, false
	}
	if e.expired(time.Now().UnixNano()) {
		delete(c.items, key)
		c.misses++
		return zero, false
	}

	c.hits++
	return e.value, true
}

// GetOrSet получает элемент или вычисляет его через fn
func (c *Cache[V]) GetOrSet(key string, fn func() (V, error)) (V, error) {
	if val, found := c.Get(key); found {
		return val, nil
	}

	val, err := fn()
	if err != nil {
		return val, err
	}

	c.Set(key, val)
	return val, nil
}

// Clear очищает кэш
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry[V])
}

// Stop останавливает фоновую очистку
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}

// Stats статистика кэша
type Stats struct {
	Items        int   `json:"items"`
	MaxItems     int   `json:"max_items"`
	ExpiredItems int   `json:"expired_items"`
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
}

// Stats возвращает статистику кэша
func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now().UnixNano()
	expired := 0
	for _, e := range c.items {
		if e.expired(now) {
			expired++
		}
	}

	return Stats{
		Items:        len(c.items),
		MaxItems:     c.maxItems,
		ExpiredItems: expired,
		Hits:         c.hits,
		Misses:       c.misses,
	}
}

func (c *Cache[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCleanup:
			return
		case <-ticker.C:
			c.deleteExpired()
		}
	}
}

func (c *Cache[V]) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixNano()
	for key, e := range c.items {
		if e.expired(now) {
			delete(c.items, key)
		}
	}
}

// evictOne удаляет просроченный элемент, а если таких нет — любой
func (c *Cache[V]) evictOne() {
	now := time.Now().UnixNano()
	var victim string
	for key, e := range c.items {
		if e.expired(now) {
			victim = key
			break
		}
		if victim == "" {
			victim = key
		}
	}
	if victim != "" {
		delete(c.items, victim)
	}
}
