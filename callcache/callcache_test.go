package callcache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/gpukernelcall/blob"
	"github.com/orneryd/gpukernelcall/config"
	"github.com/orneryd/gpukernelcall/image"
	"github.com/orneryd/gpukernelcall/kernel"
)

type stubCompiler struct{}

func (stubCompiler) Compile(ccMajor, ccMinor int, kernelName, asmText string) ([]byte, error) {
	return []byte("cubin:" + kernelName), nil
}

func TestGetKernelCall_IdenticalBytesShareOneDecode(t *testing.T) {
	imgCache := image.NewCache(stubCompiler{})
	cache := NewCache(imgCache, config.DefaultAutotune())

	spec := blob.NewKernelCallSpec("k", 1, 0, "; ptx", 80, [3]uint32{1, 1, 1}, []kernel.Parameter{kernel.I32Param(1)})
	opaque, err := blob.Encode(spec)
	require.NoError(t, err)

	call1, err := cache.GetKernelCall(opaque)
	require.NoError(t, err)
	call2, err := cache.GetKernelCall(append([]byte(nil), opaque...))
	require.NoError(t, err)

	assert.Same(t, call1, call2)
	assert.EqualValues(t, 1, cache.Misses)
	assert.EqualValues(t, 1, cache.Hits)
}

func TestGetKernelCall_DifferingByteDecodesIndependently(t *testing.T) {
	imgCache := image.NewCache(stubCompiler{})
	cache := NewCache(imgCache, config.DefaultAutotune())

	specA := blob.NewKernelCallSpec("a", 1, 0, "; ptx", 80, [3]uint32{1, 1, 1}, nil)
	specB := blob.NewKernelCallSpec("b", 1, 0, "; ptx", 80, [3]uint32{1, 1, 1}, nil)
	opaqueA, err := blob.Encode(specA)
	require.NoError(t, err)
	opaqueB, err := blob.Encode(specB)
	require.NoError(t, err)

	callA, err := cache.GetKernelCall(opaqueA)
	require.NoError(t, err)
	callB, err := cache.GetKernelCall(opaqueB)
	require.NoError(t, err)

	assert.NotSame(t, callA, callB)
	assert.EqualValues(t, 2, cache.Misses)
}

func TestGetKernelCall_PropagatesDecodeError(t *testing.T) {
	imgCache := image.NewCache(stubCompiler{})
	cache := NewCache(imgCache, config.DefaultAutotune())

	_, err := cache.GetKernelCall([]byte("not a valid blob"))
	assert.Error(t, err)
}

func TestGetKernelCall_ConcurrentIdenticalBytesDecodesOnce(t *testing.T) {
	imgCache := image.NewCache(stubCompiler{})
	cache := NewCache(imgCache, config.DefaultAutotune())

	spec := blob.NewKernelCallSpec("k", 1, 0, "; ptx", 80, [3]uint32{1, 1, 1}, nil)
	opaque, err := blob.Encode(spec)
	require.NoError(t, err)

	var wg sync.WaitGroup
	calls := make([]kernel.Call, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			call, err := cache.GetKernelCall(append([]byte(nil), opaque...))
			assert.NoError(t, err)
			calls[i] = call
		}(i)
	}
	wg.Wait()

	for _, call := range calls {
		assert.Same(t, calls[0], call)
	}
	assert.EqualValues(t, 1, cache.Misses)
}
