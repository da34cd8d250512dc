// Package image caches compiled device binaries so that two kernel calls
// asking for the same (kernel name, shared-memory footprint, source text,
// compute capability) share one compiled image, memoized behind one mutex.
package image

import (
	"sync"

	"github.com/orneryd/gpukernelcall/kerr"
	"github.com/orneryd/gpukernelcall/module"
)

// Compiler turns kernel source text into a loadable device binary for a
// given compute capability. Implementations live under internal/compiler;
// this package only depends on the interface.
type Compiler interface {
	Compile(ccMajor, ccMinor int, kernelName, asmText string) ([]byte, error)
}

// Key identifies one compiled device image. Two KernelCalls that produce an
// identical Key are guaranteed to share the same *module.ModuleImage.
type Key struct {
	KernelName        string
	SharedMemBytes    uint32
	AsmText           string
	ComputeCapability int32
}

// Cache is an insertion-only, concurrency-safe map from Key to compiled
// ModuleImage. Entries are never evicted: once a kernel variant has been
// compiled, it stays compiled for the process's lifetime.
type Cache struct {
	compiler Compiler

	mu       sync.Mutex
	images   map[Key]*module.ModuleImage
	Compiles int64 // count of cache misses that triggered a real compile
}

// NewCache builds a device-image cache backed by compiler.
func NewCache(compiler Compiler) *Cache {
	return &Cache{
		compiler: compiler,
		images:   make(map[Key]*module.ModuleImage),
	}
}

// GetModuleImage returns the ModuleImage for key, compiling and inserting it
// on first request. Concurrent callers racing on the same key block on the
// cache lock; the loser of the race observes the winner's cached result
// instead of compiling twice.
func (c *Cache) GetModuleImage(key Key) (*module.ModuleImage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if img, ok := c.images[key]; ok {
		return img, nil
	}

	ccMajor, ccMinor := int(key.ComputeCapability/10), int(key.ComputeCapability%10)
	binary, err := c.compiler.Compile(ccMajor, ccMinor, key.KernelName, key.AsmText)
	if err != nil {
		return nil, kerr.Compilef(err, "compiling kernel %q for sm_%d", key.KernelName, key.ComputeCapability)
	}
	c.Compiles++

	img := module.NewModuleImage(key.KernelName, binary, key.SharedMemBytes)
	c.images[key] = img
	return img, nil
}

// Len reports how many distinct images have been compiled. Exposed for tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.images)
}
