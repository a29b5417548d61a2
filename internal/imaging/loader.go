package imaging

import (
	"bytes"
	"container/list"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"sync"
)

// MaxPixels bounds the width x height of any image this package decodes
// or allocates.
const MaxPixels = 1 << 26

// ErrImageTooLarge is returned for images above MaxPixels.
var ErrImageTooLarge = errors.New("imaging: image exceeds the pixel limit")

// CheckSize returns ErrImageTooLarge when a width x height image would
// exceed MaxPixels.
func CheckSize(width, height int) error {
	if width > 0 && height > 0 && int64(width)*int64(height) > MaxPixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, width, height)
	}
	return nil
}

// DefaultMemoryCacheEntries is the entry bound used when NewMemoryCache is
// given a non-positive size.
const DefaultMemoryCacheEntries = 128

// MemoryCache is a bounded, thread-safe cache of decoded images.
//
// Entries are keyed by an opaque string; the engine uses the canonical
// external form of a memory cache key. When the cache is full the least
// recently used entry is evicted.
//
// MemoryCache is safe for concurrent use by multiple goroutines.
//
// # Example Usage
//
//	cache := imaging.NewMemoryCache(64)
//	cache.Put(key, img)
//	if img, ok := cache.Get(key); ok {
//	    // Use img...
//	}
type MemoryCache struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[string]*list.Element
}

type cacheEntry struct {
	key string
	img image.Image
}

// NewMemoryCache creates an empty cache holding at most maxEntries images.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryCacheEntries
	}
	return &MemoryCache{
		max:     maxEntries,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Get returns the image stored under key and marks it as recently used.
func (c *MemoryCache) Get(key string) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).img, true
}

// Contains reports whether key is cached without touching its recency.
func (c *MemoryCache) Contains(key string) bool {
	c.mu.Lock()
	_, ok := c.entries[key]
	c.mu.Unlock()
	return ok
}

// Put stores img under key, evicting the least recently used entry when
// the cache is full.
func (c *MemoryCache) Put(key string, img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).img = img
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, img: img})
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Clear removes all images from the cache, freeing the associated memory.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
	c.mu.Unlock()
}

// Len returns the number of cached images.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Decode decodes PNG, JPEG or GIF bytes. The header is checked against
// MaxPixels before any pixel data is decoded.
func Decode(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if err := CheckSize(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
