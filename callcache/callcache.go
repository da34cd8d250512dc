// Package callcache memoizes the decode of an opaque call blob by its exact
// bytes, so that repeated calls carrying the identical blob skip
// re-parsing and re-resolving entirely: one mutex, one map, insertion-only.
package callcache

import (
	"sync"

	"github.com/orneryd/gpukernelcall/blob"
	"github.com/orneryd/gpukernelcall/config"
	"github.com/orneryd/gpukernelcall/image"
	"github.com/orneryd/gpukernelcall/kernel"
)

// Cache maps an opaque blob's exact bytes to its decoded kernel.Call. Two
// calls with byte-identical blobs share the same decoded Call and,
// transitively, the same autotune selection state.
type Cache struct {
	imageCache *image.Cache
	cfg        config.Autotune

	mu    sync.Mutex
	calls map[string]kernel.Call

	// Hits and Misses count lookups for tests asserting memoization.
	Hits   int64
	Misses int64
}

// NewCache builds a blob cache. imageCache resolves each decoded kernel's
// compiled device image; cfg configures any autotuning a decoded blob
// requests.
func NewCache(imageCache *image.Cache, cfg config.Autotune) *Cache {
	return &Cache{
		imageCache: imageCache,
		cfg:        cfg,
		calls:      make(map[string]kernel.Call),
	}
}

// GetKernelCall returns the decoded kernel.Call for opaque, decoding and
// inserting it on first request. The lookup key is the blob's exact bytes,
// so even a single differing byte decodes independently. The lock is held
// across the whole lookup-or-decode path, so two callers racing on the same
// never-before-seen blob still only decode it once.
func (c *Cache) GetKernelCall(opaque []byte) (kernel.Call, error) {
	key := string(opaque)

	c.mu.Lock()
	defer c.mu.Unlock()

	if call, ok := c.calls[key]; ok {
		c.Hits++
		return call, nil
	}

	call, err := blob.Decode(opaque, c.imageCache, c.cfg)
	if err != nil {
		return nil, err
	}
	c.calls[key] = call
	c.Misses++
	return call, nil
}
