package triton

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/gpukernelcall/blob"
	"github.com/orneryd/gpukernelcall/config"
	"github.com/orneryd/gpukernelcall/driver"
	"github.com/orneryd/gpukernelcall/driver/fake"
	"github.com/orneryd/gpukernelcall/kernel"
)

type stubCompiler struct{}

func (stubCompiler) Compile(ccMajor, ccMinor int, kernelName, asmText string) ([]byte, error) {
	return []byte("cubin:" + kernelName), nil
}

func TestTritonKernelCall_DispatchesSuccessfully(t *testing.T) {
	drv := fake.New()
	rt := NewRuntime(drv, stubCompiler{}, config.DefaultAutotune())

	spec := blob.NewKernelCallSpec("k", 2, 0, "; ptx", 80, [3]uint32{1, 1, 1}, []kernel.Parameter{
		kernel.ArrayParam{BytesToZero: 16, PtrDivisibility: 16},
	})
	opaque, err := blob.Encode(spec)
	require.NoError(t, err)

	status := &BufferStatusSink{}
	rt.TritonKernelCall(driver.Stream(1), []uintptr{0x1000}, opaque, status)

	assert.True(t, status.OK(), status.Err)
	assert.EqualValues(t, 1, drv.Launches)
}

func TestTritonKernelCall_ReportsDecodeErrorToSink(t *testing.T) {
	drv := fake.New()
	rt := NewRuntime(drv, stubCompiler{}, config.DefaultAutotune())

	status := &BufferStatusSink{}
	rt.TritonKernelCall(driver.Stream(1), nil, []byte("garbage"), status)

	assert.False(t, status.OK())
	assert.NotEmpty(t, status.Err)
}

func TestTritonKernelCall_ReportsLaunchErrorToSink(t *testing.T) {
	drv := fake.New()
	rt := NewRuntime(drv, stubCompiler{}, config.DefaultAutotune())

	spec := blob.NewKernelCallSpec("k", 2, 0, "; ptx", 80, [3]uint32{1, 1, 1}, []kernel.Parameter{
		kernel.ArrayParam{PtrDivisibility: 256},
	})
	opaque, err := blob.Encode(spec)
	require.NoError(t, err)

	status := &BufferStatusSink{}
	rt.TritonKernelCall(driver.Stream(1), []uintptr{0x1001}, opaque, status)

	assert.False(t, status.OK())
	assert.Contains(t, status.Err, "not a multiple")
}

func TestPackageLevelTritonKernelCall_PanicsWithoutInit(t *testing.T) {
	defaultRuntime = nil
	defer func() {
		r := recover()
		assert.NotNil(t, r)
	}()
	TritonKernelCall(driver.Stream(1), nil, nil, &BufferStatusSink{})
}
