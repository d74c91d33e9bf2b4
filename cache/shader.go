// Package cache provides the shader blob cache: compiled shader
// binaries keyed by a 64-bit content hash, held in a bounded in-memory
// LRU front with a flat directory of blob files behind it. Compiling
// shaders is the expensive step of engine startup; the disk layer makes
// the cost a one-time event per shader per machine.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the default maximum number of blobs held in memory.
// Disk storage is unbounded; eviction only drops the memory copy.
const DefaultCapacity = 64

// ShaderCache stores compiled shader blobs keyed by uint64.
//
// Reads check the in-memory LRU first and fall through to the blob
// directory, promoting disk hits back into memory. Writes go to both
// layers. All methods are safe for concurrent use.
type ShaderCache struct {
	dir      string
	capacity int

	mu      sync.Mutex
	entries map[uint64]*shaderEntry
	lru     *lruList[uint64]

	// Statistics (atomic for zero-allocation reads).
	hits   atomic.Uint64
	misses atomic.Uint64
}

type shaderEntry struct {
	blob []byte
	node *lruNode[uint64]
}

// NewShaderCache creates a shader cache rooted at dir, creating the
// directory if needed.
func NewShaderCache(dir string) (*ShaderCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create %s: %w", dir, err)
	}
	return &ShaderCache{
		dir:      dir,
		capacity: DefaultCapacity,
		entries:  make(map[uint64]*shaderEntry),
		lru:      newLRUList[uint64](),
	}, nil
}

// Path returns the blob file path for an id.
func (c *ShaderCache) Path(id uint64) string {
	return filepath.Join(c.dir, fmt.Sprintf("%016x", id))
}

// Read returns the blob stored under id. The returned slice must not be
// modified by the caller.
func (c *ShaderCache) Read(id uint64) ([]byte, bool) {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		c.lru.MoveToFront(e.node)
		blob := e.blob
		c.mu.Unlock()
		c.hits.Add(1)
		return blob, true
	}
	c.mu.Unlock()

	blob, err := os.ReadFile(c.Path(id))
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	c.mu.Lock()
	c.storeLocked(id, blob)
	c.mu.Unlock()
	c.hits.Add(1)
	return blob, true
}

// Size returns the byte length of the blob stored under id, or 0 when
// absent. It never loads the blob into memory.
func (c *ShaderCache) Size(id uint64) uint32 {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		n := uint32(len(e.blob))
		c.mu.Unlock()
		return n
	}
	c.mu.Unlock()

	fi, err := os.Stat(c.Path(id))
	if err != nil {
		return 0
	}
	return uint32(fi.Size())
}

// Write stores blob under id in both layers. The blob is stored as-is
// (not copied); callers must not modify it after writing.
func (c *ShaderCache) Write(id uint64, blob []byte) error {
	c.mu.Lock()
	c.storeLocked(id, blob)
	c.mu.Unlock()

	if err := os.WriteFile(c.Path(id), blob, 0o644); err != nil {
		return fmt.Errorf("cache: write %016x: %w", id, err)
	}
	return nil
}

// storeLocked inserts or refreshes the in-memory copy, evicting the
// least-recently-used entries above capacity. Caller holds mu.
func (c *ShaderCache) storeLocked(id uint64, blob []byte) {
	if e, ok := c.entries[id]; ok {
		e.blob = blob
		c.lru.MoveToFront(e.node)
		return
	}
	for c.lru.Len() >= c.capacity {
		oldest, ok := c.lru.RemoveOldest()
		if !ok {
			break
		}
		delete(c.entries, oldest)
	}
	c.entries[id] = &shaderEntry{blob: blob, node: c.lru.PushFront(id)}
}

// Stats returns the hit and miss counts since creation.
func (c *ShaderCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
