// Package fake provides a counting, deterministic image.Compiler for tests:
// no external tool invocation, a stable binary derived from its inputs, and
// a compile counter the device-image-cache identity tests assert against.
package fake

import (
	"fmt"
	"sync/atomic"
)

// Compiler returns a synthetic "binary" (just its inputs serialized back
// out) and counts how many times Compile actually ran, so tests can assert
// that two calls resolving to the same image.Key share one compile.
type Compiler struct {
	Compiles int64
}

// Compile returns a deterministic stand-in binary for kernelName/asmText
// and increments Compiles.
func (c *Compiler) Compile(ccMajor, ccMinor int, kernelName, asmText string) ([]byte, error) {
	atomic.AddInt64(&c.Compiles, 1)
	return []byte(fmt.Sprintf("FAKEBIN sm_%d%d %s\n%s", ccMajor, ccMinor, kernelName, asmText)), nil
}
