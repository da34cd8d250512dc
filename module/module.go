// Package module resolves a compiled device image into a launchable
// function within a particular device context, handling the per-context
// module-load and shared-memory opt-in dance behind one mutex guarding a
// lazily-populated context-to-function map.
package module

import (
	"sync"

	"github.com/orneryd/gpukernelcall/driver"
	"github.com/orneryd/gpukernelcall/kerr"
)

// ModuleImage is one compiled device binary, shared by every kernel call
// that resolved to the same image.Key. It lazily loads itself into each
// context that launches it and memoizes the resulting Function handle.
type ModuleImage struct {
	KernelName     string
	Binary         []byte
	SharedMemBytes uint32

	mu        sync.Mutex
	modules   map[driver.Context]driver.Module
	functions map[driver.Context]driver.Function
}

// NewModuleImage wraps a compiled binary for a given kernel name and
// requested dynamic shared-memory footprint.
func NewModuleImage(kernelName string, binary []byte, sharedMemBytes uint32) *ModuleImage {
	return &ModuleImage{
		KernelName:     kernelName,
		Binary:         binary,
		SharedMemBytes: sharedMemBytes,
		modules:        make(map[driver.Context]driver.Module),
		functions:      make(map[driver.Context]driver.Function),
	}
}

// GetFunctionForContext returns the launchable Function for ctx, loading the
// module and applying the shared-memory policy on first use for that
// context. Subsequent calls for the same context are a map lookup under the
// image's lock.
func (m *ModuleImage) GetFunctionForContext(drv driver.Driver, ctx driver.Context) (driver.Function, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fn, ok := m.functions[ctx]; ok {
		return fn, nil
	}

	mod, ok := m.modules[ctx]
	if !ok {
		var err error
		mod, err = drv.LoadModule(ctx, m.Binary)
		if err != nil {
			return 0, kerr.Devicef(err, "loading module for kernel %q", m.KernelName)
		}
		m.modules[ctx] = mod
	}

	fn, err := drv.FunctionByName(mod, m.KernelName)
	if err != nil {
		return 0, kerr.Devicef(err, "resolving function %q", m.KernelName)
	}

	if err := m.applySharedMemPolicy(drv, ctx, fn); err != nil {
		return 0, err
	}

	m.functions[ctx] = fn
	return fn, nil
}

// applySharedMemPolicy implements the static-vs-dynamic shared-memory opt-in
// rule: requests within the 48 KiB static limit need nothing extra; above
// that, the function must opt in to a larger per-block budget before launch,
// and the request is bounded by the device's per-block opt-in maximum. The
// dynamic maximum is set to that opt-in value minus the function's static
// shared usage; the per-multiprocessor maximum is queried but not used.
func (m *ModuleImage) applySharedMemPolicy(drv driver.Driver, ctx driver.Context, fn driver.Function) error {
	if m.SharedMemBytes <= driver.StaticSharedMemLimitBytes {
		return nil
	}

	optin, err := drv.DeviceAttr(ctx, driver.AttrMaxSharedMemPerBlockOptin)
	if err != nil {
		return kerr.Devicef(err, "querying max shared memory per block (opt-in)")
	}
	if int64(m.SharedMemBytes) > optin {
		return kerr.InvalidArgumentf(
			"kernel %q requests %d bytes of shared memory, exceeding the device's opt-in maximum of %d",
			m.KernelName, m.SharedMemBytes, optin,
		)
	}

	if err := drv.SetFunctionCacheConfig(fn, true); err != nil {
		return kerr.Devicef(err, "setting cache config for kernel %q", m.KernelName)
	}

	if _, err := drv.DeviceAttr(ctx, driver.AttrMaxSharedMemPerMultiprocessor); err != nil {
		return kerr.Devicef(err, "querying max shared memory per multiprocessor")
	}

	staticBytes, err := drv.FunctionStaticSharedBytes(fn)
	if err != nil {
		return kerr.Devicef(err, "querying static shared memory for kernel %q", m.KernelName)
	}

	dynamicMax := optin - staticBytes
	if dynamicMax < 0 {
		dynamicMax = 0
	}
	if err := drv.SetFunctionMaxDynamicShared(fn, dynamicMax); err != nil {
		return kerr.Devicef(err, "setting max dynamic shared memory for kernel %q", m.KernelName)
	}
	return nil
}
