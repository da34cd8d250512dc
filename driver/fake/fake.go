// Package fake provides a pure-Go, in-memory driver.Driver used by tests
// and by hosts with no GPU attached: no cgo, deterministic, safe to build
// everywhere.
//
// Real time is never consulted. Every Launch advances a virtual clock by
// a per-Function latency (configurable via SetLatency, defaulting to 1ms),
// and events timestamp against that clock — this is what lets autotune
// tests assert exact winner/iteration-count behavior deterministically.
package fake

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/orneryd/gpukernelcall/driver"
)

// Driver is a counting, deterministic fake implementation of driver.Driver.
type Driver struct {
	mu sync.Mutex

	nextHandle uintptr
	ctxStack   []driver.Context

	// modules[ctx] lists the modules loaded into that context, in load order.
	modules map[driver.Context][]loadedModule
	// functions[mod] maps a symbol name to its resolved Function handle.
	functions map[driver.Module]map[string]driver.Function
	funcMod   map[driver.Function]driver.Module
	funcName  map[driver.Function]string

	staticShared map[driver.Function]int64
	dynamicMax   map[driver.Function]int64
	cachePref    map[driver.Function]bool

	latency map[driver.Function]float64 // ms per launch, default 1.0
	clock   float64                     // virtual ms, advances only on Launch
	evTime  map[driver.Event]float64

	attrs map[driver.DeviceAttr]int64

	// ModuleLoads, Launches, FunctionResolves count driver activity for
	// identity/memoization assertions in tests.
	ModuleLoads      int64
	Launches         int64
	FunctionResolves int64
	MemsetBytes      int64

	// LaunchLog records each Launch call's grid/block/shared for assertions.
	LaunchLog []LaunchRecord
	// DeviceBuffers is a host-side stand-in for device memory, keyed by a
	// caller-chosen pointer value, so MemsetAsync/Memcpy*Async have
	// somewhere real to write for tests.
	DeviceBuffers map[uintptr][]byte
}

type loadedModule struct {
	handle driver.Module
	image  []byte
}

// LaunchRecord captures one Launch invocation for test assertions.
type LaunchRecord struct {
	Function    driver.Function
	Grid        [3]uint32
	Block       [3]uint32
	SharedBytes uint32
}

// New creates a ready-to-use fake driver.
func New() *Driver {
	return &Driver{
		modules:       make(map[driver.Context][]loadedModule),
		functions:     make(map[driver.Module]map[string]driver.Function),
		funcMod:       make(map[driver.Function]driver.Module),
		funcName:      make(map[driver.Function]string),
		staticShared:  make(map[driver.Function]int64),
		dynamicMax:    make(map[driver.Function]int64),
		cachePref:     make(map[driver.Function]bool),
		latency:       make(map[driver.Function]float64),
		evTime:        make(map[driver.Event]float64),
		attrs: map[driver.DeviceAttr]int64{
			driver.AttrMaxSharedMemPerBlockOptin:     99 * 1024,
			driver.AttrMaxSharedMemPerMultiprocessor: 164 * 1024,
		},
		DeviceBuffers: make(map[uintptr][]byte),
	}
}

func (d *Driver) alloc() uintptr {
	return atomic.AddUintptr(&d.nextHandle, 1)
}

// SetDeviceAttr overrides a simulated device attribute (for shared-memory
// policy tests).
func (d *Driver) SetDeviceAttr(attr driver.DeviceAttr, v int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attrs[attr] = v
}

// SetStaticShared sets the simulated static shared-memory usage reported
// by FunctionStaticSharedBytes for fn.
func (d *Driver) SetStaticShared(fn driver.Function, bytes int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staticShared[fn] = bytes
}

// SetLatency sets the virtual per-launch cost in milliseconds for fn.
func (d *Driver) SetLatency(fn driver.Function, ms float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latency[fn] = ms
}

// FunctionsByContext exposes, for tests, how many distinct functions have
// been resolved against a context.
func (d *Driver) FunctionsByContext(ctx driver.Context) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for mod := range d.functions {
		if d.moduleContext(mod) == ctx {
			count += len(d.functions[mod])
		}
	}
	return count
}

func (d *Driver) moduleContext(mod driver.Module) driver.Context {
	for ctx, mods := range d.modules {
		for _, m := range mods {
			if m.handle == mod {
				return ctx
			}
		}
	}
	return 0
}

func (d *Driver) CurrentContext(stream driver.Stream) (driver.Context, error) {
	// One context per stream numeric value keeps the fake trivially
	// deterministic: stream N always resolves to context N.
	return driver.Context(stream), nil
}

func (d *Driver) PushContext(ctx driver.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctxStack = append(d.ctxStack, ctx)
	return nil
}

func (d *Driver) PopContext() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.ctxStack) == 0 {
		return nil
	}
	d.ctxStack = d.ctxStack[:len(d.ctxStack)-1]
	return nil
}

func (d *Driver) DeviceAttr(ctx driver.Context, attr driver.DeviceAttr) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attrs[attr], nil
}

func (d *Driver) LoadModule(ctx driver.Context, image []byte) (driver.Module, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mod := driver.Module(d.alloc())
	d.modules[ctx] = append(d.modules[ctx], loadedModule{handle: mod, image: image})
	d.functions[mod] = make(map[string]driver.Function)
	atomic.AddInt64(&d.ModuleLoads, 1)
	return mod, nil
}

func (d *Driver) FunctionByName(mod driver.Module, name string) (driver.Function, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fns, ok := d.functions[mod]
	if !ok {
		return 0, driver.ErrUnknownModule
	}
	if fn, ok := fns[name]; ok {
		return fn, nil
	}
	fn := driver.Function(d.alloc())
	fns[name] = fn
	d.funcMod[fn] = mod
	d.funcName[fn] = name
	atomic.AddInt64(&d.FunctionResolves, 1)
	return fn, nil
}

func (d *Driver) SetFunctionCacheConfig(fn driver.Function, preferShared bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cachePref[fn] = preferShared
	return nil
}

func (d *Driver) FunctionStaticSharedBytes(fn driver.Function) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.staticShared[fn], nil
}

func (d *Driver) SetFunctionMaxDynamicShared(fn driver.Function, bytes int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dynamicMax[fn] = bytes
	return nil
}

// DynamicMaxOf exposes, for tests, the dynamic shared-memory limit set for fn.
func (d *Driver) DynamicMaxOf(fn driver.Function) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.dynamicMax[fn]
	return v, ok
}

func (d *Driver) MemsetAsync(stream driver.Stream, ptr uintptr, bytes uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := d.DeviceBuffers[ptr]
	need := int(bytes)
	if len(buf) < need {
		grown := make([]byte, need)
		copy(grown, buf)
		buf = grown
	}
	for i := 0; i < need; i++ {
		buf[i] = 0
	}
	d.DeviceBuffers[ptr] = buf
	atomic.AddInt64(&d.MemsetBytes, int64(bytes))
	return nil
}

func (d *Driver) MemcpyDtoHAsync(stream driver.Stream, dst []byte, src uintptr) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := d.DeviceBuffers[src]
	copy(dst, buf)
	return nil
}

func (d *Driver) MemcpyHtoDAsync(stream driver.Stream, dst uintptr, src []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := d.DeviceBuffers[dst]
	if len(buf) < len(src) {
		grown := make([]byte, len(src))
		copy(grown, buf)
		buf = grown
	}
	copy(buf, src)
	d.DeviceBuffers[dst] = buf
	return nil
}

func (d *Driver) StreamSynchronize(stream driver.Stream) error {
	return nil
}

func (d *Driver) CreateEvent() (driver.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ev := driver.Event(d.alloc())
	return ev, nil
}

func (d *Driver) RecordEvent(ev driver.Event, stream driver.Stream) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evTime[ev] = d.clock
	return nil
}

func (d *Driver) SynchronizeEvent(ev driver.Event) error {
	return nil
}

func (d *Driver) ElapsedMillis(start, stop driver.Event) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.evTime[stop] - d.evTime[start], nil
}

func (d *Driver) DestroyEvent(ev driver.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.evTime, ev)
	return nil
}

func (d *Driver) Launch(stream driver.Stream, fn driver.Function, grid, block [3]uint32, sharedBytes uint32, args []unsafe.Pointer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ms, ok := d.latency[fn]
	if !ok {
		ms = 1.0
	}
	d.clock += ms
	d.LaunchLog = append(d.LaunchLog, LaunchRecord{Function: fn, Grid: grid, Block: block, SharedBytes: sharedBytes})
	atomic.AddInt64(&d.Launches, 1)
	return nil
}
