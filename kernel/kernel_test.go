package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/gpukernelcall/driver"
	"github.com/orneryd/gpukernelcall/driver/fake"
	"github.com/orneryd/gpukernelcall/image"
)

type stubCompiler struct{}

func (stubCompiler) Compile(ccMajor, ccMinor int, kernelName, asmText string) ([]byte, error) {
	return []byte("cubin:" + kernelName), nil
}

func newTestCall(t *testing.T, params []Parameter) (*fake.Driver, *KernelCall) {
	t.Helper()
	drv := fake.New()
	cache := image.NewCache(stubCompiler{})
	kc := KernelCall{
		Kernel:     NewKernel(cache, "add_kernel", 4, 1024, "; ptx", 80),
		Grid:       [3]uint32{1, 1, 1},
		Parameters: params,
	}
	return drv, &kc
}

func TestKernelCall_Launch_Succeeds(t *testing.T) {
	drv, kc := newTestCall(t, []Parameter{
		ArrayParam{BytesToZero: 256, PtrDivisibility: 256},
		I32Param(7),
	})

	err := kc.Launch(drv, driver.Stream(1), []uintptr{0x1000})
	require.NoError(t, err)

	assert.EqualValues(t, 1, drv.Launches)
	assert.EqualValues(t, 1, drv.ModuleLoads)
	assert.EqualValues(t, 256, drv.MemsetBytes)
}

func TestKernelCall_Launch_MisalignedPointerFails(t *testing.T) {
	drv, kc := newTestCall(t, []Parameter{
		ArrayParam{PtrDivisibility: 256},
	})

	err := kc.Launch(drv, driver.Stream(1), []uintptr{0x1001})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parameter 0")
	assert.Contains(t, err.Error(), "not a multiple")
	assert.EqualValues(t, 0, drv.Launches)
}

func TestKernelCall_Launch_MissingBufferFails(t *testing.T) {
	drv, kc := newTestCall(t, []Parameter{
		ArrayParam{PtrDivisibility: 1},
	})

	err := kc.Launch(drv, driver.Stream(1), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no buffer supplied")
}

func TestKernelCall_Launch_ReusesModuleImageAcrossCalls(t *testing.T) {
	drv, kc := newTestCall(t, nil)

	require.NoError(t, kc.Launch(drv, driver.Stream(1), nil))
	require.NoError(t, kc.Launch(drv, driver.Stream(1), nil))

	assert.EqualValues(t, 1, drv.ModuleLoads, "the second launch reuses the memoized module image")
	assert.EqualValues(t, 2, drv.Launches)
}

func TestBlockDim(t *testing.T) {
	k := NewKernel(nil, "k", 8, 0, "", 80)
	dim := k.BlockDim()
	assert.Equal(t, [3]uint32{256, 1, 1}, dim)
}
