package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/gpukernelcall/driver"
	"github.com/orneryd/gpukernelcall/driver/fake"
)

func TestGetFunctionForContext_MemoizesWithinContext(t *testing.T) {
	drv := fake.New()
	img := NewModuleImage("add_kernel", []byte("cubin"), 1024)

	ctx := driver.Context(1)
	fn1, err := img.GetFunctionForContext(drv, ctx)
	require.NoError(t, err)
	fn2, err := img.GetFunctionForContext(drv, ctx)
	require.NoError(t, err)

	assert.Equal(t, fn1, fn2)
	assert.EqualValues(t, 1, drv.ModuleLoads)
	assert.EqualValues(t, 1, drv.FunctionResolves)
}

func TestGetFunctionForContext_LoadsSeparatelyPerContext(t *testing.T) {
	drv := fake.New()
	img := NewModuleImage("add_kernel", []byte("cubin"), 1024)

	_, err := img.GetFunctionForContext(drv, driver.Context(1))
	require.NoError(t, err)
	_, err = img.GetFunctionForContext(drv, driver.Context(2))
	require.NoError(t, err)

	assert.EqualValues(t, 2, drv.ModuleLoads)
	assert.EqualValues(t, 2, drv.FunctionResolves)
}

func TestGetFunctionForContext_SharedMemPolicy(t *testing.T) {
	t.Run("within static limit needs no opt-in", func(t *testing.T) {
		drv := fake.New()
		img := NewModuleImage("small_kernel", []byte("cubin"), driver.StaticSharedMemLimitBytes)

		fn, err := img.GetFunctionForContext(drv, driver.Context(1))
		require.NoError(t, err)

		_, ok := drv.DynamicMaxOf(fn)
		assert.False(t, ok, "no dynamic shared memory limit should be set")
	})

	t.Run("above static limit opts in and sets dynamic max", func(t *testing.T) {
		drv := fake.New()
		drv.SetDeviceAttr(driver.AttrMaxSharedMemPerBlockOptin, 99*1024)

		img := NewModuleImage("big_kernel", []byte("cubin"), 90*1024)
		fn, err := img.GetFunctionForContext(drv, driver.Context(1))
		require.NoError(t, err)

		// The fake driver reports 0 static shared bytes until told
		// otherwise, so the dynamic max equals the full opt-in budget.
		max, ok := drv.DynamicMaxOf(fn)
		require.True(t, ok)
		assert.Equal(t, int64(99*1024), max)
	})

	t.Run("above device opt-in maximum is rejected", func(t *testing.T) {
		drv := fake.New()
		drv.SetDeviceAttr(driver.AttrMaxSharedMemPerBlockOptin, 50*1024)

		img := NewModuleImage("huge_kernel", []byte("cubin"), 90*1024)
		_, err := img.GetFunctionForContext(drv, driver.Context(1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeding the device's opt-in maximum")
	})
}
