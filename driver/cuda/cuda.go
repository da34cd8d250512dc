//go:build cuda && (linux || windows)
// +build cuda
// +build linux windows

// Package cuda binds driver.Driver to the real CUDA driver API via cgo.
// Without the "cuda" build tag (or on unsupported platforms) this package
// builds against stub.go instead, whose Driver methods all return
// ErrCUDANotAvailable.
package cuda

/*
#cgo linux CFLAGS: -I/usr/local/cuda/include
#cgo linux LDFLAGS: -L/usr/local/cuda/lib64 -lcuda
#cgo windows CFLAGS: -I"C:/Program Files/NVIDIA GPU Computing Toolkit/CUDA/v12.0/include"
#cgo windows LDFLAGS: -L${SRCDIR}/../../lib/cuda -lcuda

#include <cuda.h>
#include <stdlib.h>
#include <string.h>

static char cuda_last_error[256] = {0};

static const char *cuda_get_last_error() {
    return cuda_last_error;
}

// cuda_check stashes CUDA's error string (if any) in a static buffer and
// returns 0 on success, -1 on failure. The Go side adds the call-site
// context, so this never needs a caller-supplied string (and never leaks
// a cgo string).
static int cuda_check(CUresult res) {
    if (res != CUDA_SUCCESS) {
        const char *msg = NULL;
        cuGetErrorString(res, &msg);
        strncpy(cuda_last_error, msg ? msg : "unknown CUDA error", sizeof(cuda_last_error) - 1);
        return -1;
    }
    return 0;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/orneryd/gpukernelcall/driver"
	"github.com/orneryd/gpukernelcall/kerr"
)

// Driver binds driver.Driver to the CUDA driver API. Zero value is not
// usable; construct with New.
type Driver struct {
	initOnce sync.Once
	initErr  error
}

// New returns a CUDA-backed driver.Driver, lazily calling cuInit on first use.
func New() *Driver {
	return &Driver{}
}

func (d *Driver) ensureInit() error {
	d.initOnce.Do(func() {
		if C.cuda_check(C.cuInit(0)) != 0 {
			d.initErr = lastError("cuInit")
		}
	})
	return d.initErr
}

func lastError(what string) error {
	msg := C.GoString(C.cuda_get_last_error())
	return kerr.Devicef(fmt.Errorf("%s", msg), "%s", what)
}

func (d *Driver) CurrentContext(stream driver.Stream) (driver.Context, error) {
	if err := d.ensureInit(); err != nil {
		return 0, err
	}
	var ctx C.CUcontext
	if C.cuda_check(C.cuStreamGetCtx(C.CUstream(unsafe.Pointer(uintptr(stream))), &ctx)) != 0 {
		return 0, lastError("cuStreamGetCtx")
	}
	return driver.Context(uintptr(unsafe.Pointer(ctx))), nil
}

func (d *Driver) PushContext(ctx driver.Context) error {
	if C.cuda_check(C.cuCtxPushCurrent(C.CUcontext(unsafe.Pointer(uintptr(ctx))))) != 0 {
		return lastError("cuCtxPushCurrent")
	}
	return nil
}

func (d *Driver) PopContext() error {
	var popped C.CUcontext
	if C.cuda_check(C.cuCtxPopCurrent(&popped)) != 0 {
		return lastError("cuCtxPopCurrent")
	}
	return nil
}

func (d *Driver) DeviceAttr(ctx driver.Context, attr driver.DeviceAttr) (int64, error) {
	if err := d.PushContext(ctx); err != nil {
		return 0, err
	}
	defer d.PopContext()

	var dev C.CUdevice
	if C.cuda_check(C.cuCtxGetDevice(&dev)) != 0 {
		return 0, lastError("cuCtxGetDevice")
	}
	var cuAttr C.CUdevice_attribute
	switch attr {
	case driver.AttrMaxSharedMemPerBlockOptin:
		cuAttr = C.CU_DEVICE_ATTRIBUTE_MAX_SHARED_MEMORY_PER_BLOCK_OPTIN
	case driver.AttrMaxSharedMemPerMultiprocessor:
		cuAttr = C.CU_DEVICE_ATTRIBUTE_MAX_SHARED_MEMORY_PER_MULTIPROCESSOR
	default:
		return 0, kerr.InvalidArgumentf("unknown device attribute %d", attr)
	}
	var val C.int
	if C.cuda_check(C.cuDeviceGetAttribute(&val, cuAttr, dev)) != 0 {
		return 0, lastError("cuDeviceGetAttribute")
	}
	return int64(val), nil
}

func (d *Driver) LoadModule(ctx driver.Context, image []byte) (driver.Module, error) {
	if len(image) == 0 {
		return 0, kerr.InvalidArgumentf("empty device image")
	}
	if err := d.PushContext(ctx); err != nil {
		return 0, err
	}
	defer d.PopContext()

	var mod C.CUmodule
	ptr := unsafe.Pointer(&image[0])
	if C.cuda_check(C.cuModuleLoadData(&mod, ptr)) != 0 {
		return 0, lastError("cuModuleLoadData")
	}
	return driver.Module(uintptr(unsafe.Pointer(mod))), nil
}

func (d *Driver) FunctionByName(mod driver.Module, name string) (driver.Function, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	var fn C.CUfunction
	if C.cuda_check(C.cuModuleGetFunction(&fn, C.CUmodule(unsafe.Pointer(uintptr(mod))), cname)) != 0 {
		return 0, lastError("cuModuleGetFunction")
	}
	return driver.Function(uintptr(unsafe.Pointer(fn))), nil
}

func (d *Driver) SetFunctionCacheConfig(fn driver.Function, preferShared bool) error {
	cfg := C.CU_FUNC_CACHE_PREFER_NONE
	if preferShared {
		cfg = C.CU_FUNC_CACHE_PREFER_SHARED
	}
	if C.cuda_check(C.cuFuncSetCacheConfig(C.CUfunction(unsafe.Pointer(uintptr(fn))), C.CUfunc_cache(cfg))) != 0 {
		return lastError("cuFuncSetCacheConfig")
	}
	return nil
}

func (d *Driver) FunctionStaticSharedBytes(fn driver.Function) (int64, error) {
	var val C.int
	if C.cuda_check(C.cuFuncGetAttribute(&val, C.CU_FUNC_ATTRIBUTE_SHARED_SIZE_BYTES, C.CUfunction(unsafe.Pointer(uintptr(fn))))) != 0 {
		return 0, lastError("cuFuncGetAttribute")
	}
	return int64(val), nil
}

func (d *Driver) SetFunctionMaxDynamicShared(fn driver.Function, bytes int64) error {
	if C.cuda_check(C.cuFuncSetAttribute(C.CUfunction(unsafe.Pointer(uintptr(fn))), C.CU_FUNC_ATTRIBUTE_MAX_DYNAMIC_SHARED_SIZE_BYTES, C.int(bytes))) != 0 {
		return lastError("cuFuncSetAttribute")
	}
	return nil
}

func (d *Driver) MemsetAsync(stream driver.Stream, ptr uintptr, bytes uint64) error {
	if C.cuda_check(C.cuMemsetD8Async(C.CUdeviceptr(ptr), 0, C.size_t(bytes), C.CUstream(unsafe.Pointer(uintptr(stream))))) != 0 {
		return lastError("cuMemsetD8Async")
	}
	return nil
}

func (d *Driver) MemcpyDtoHAsync(stream driver.Stream, dst []byte, src uintptr) error {
	if len(dst) == 0 {
		return nil
	}
	if C.cuda_check(C.cuMemcpyDtoHAsync(unsafe.Pointer(&dst[0]), C.CUdeviceptr(src), C.size_t(len(dst)), C.CUstream(unsafe.Pointer(uintptr(stream))))) != 0 {
		return lastError("cuMemcpyDtoHAsync")
	}
	return nil
}

func (d *Driver) MemcpyHtoDAsync(stream driver.Stream, dst uintptr, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	if C.cuda_check(C.cuMemcpyHtoDAsync(C.CUdeviceptr(dst), unsafe.Pointer(&src[0]), C.size_t(len(src)), C.CUstream(unsafe.Pointer(uintptr(stream))))) != 0 {
		return lastError("cuMemcpyHtoDAsync")
	}
	return nil
}

func (d *Driver) StreamSynchronize(stream driver.Stream) error {
	if C.cuda_check(C.cuStreamSynchronize(C.CUstream(unsafe.Pointer(uintptr(stream))))) != 0 {
		return lastError("cuStreamSynchronize")
	}
	return nil
}

func (d *Driver) CreateEvent() (driver.Event, error) {
	var ev C.CUevent
	if C.cuda_check(C.cuEventCreate(&ev, C.CU_EVENT_DEFAULT)) != 0 {
		return 0, lastError("cuEventCreate")
	}
	return driver.Event(uintptr(unsafe.Pointer(ev))), nil
}

func (d *Driver) RecordEvent(ev driver.Event, stream driver.Stream) error {
	if C.cuda_check(C.cuEventRecord(C.CUevent(unsafe.Pointer(uintptr(ev))), C.CUstream(unsafe.Pointer(uintptr(stream))))) != 0 {
		return lastError("cuEventRecord")
	}
	return nil
}

func (d *Driver) SynchronizeEvent(ev driver.Event) error {
	if C.cuda_check(C.cuEventSynchronize(C.CUevent(unsafe.Pointer(uintptr(ev))))) != 0 {
		return lastError("cuEventSynchronize")
	}
	return nil
}

func (d *Driver) ElapsedMillis(start, stop driver.Event) (float64, error) {
	var ms C.float
	if C.cuda_check(C.cuEventElapsedTime(&ms, C.CUevent(unsafe.Pointer(uintptr(start))), C.CUevent(unsafe.Pointer(uintptr(stop))))) != 0 {
		return 0, lastError("cuEventElapsedTime")
	}
	return float64(ms), nil
}

func (d *Driver) DestroyEvent(ev driver.Event) error {
	if C.cuda_check(C.cuEventDestroy(C.CUevent(unsafe.Pointer(uintptr(ev))))) != 0 {
		return lastError("cuEventDestroy")
	}
	return nil
}

func (d *Driver) Launch(stream driver.Stream, fn driver.Function, grid, block [3]uint32, sharedBytes uint32, args []unsafe.Pointer) error {
	var argv unsafe.Pointer
	if len(args) > 0 {
		argv = unsafe.Pointer(&args[0])
	}
	res := C.cuLaunchKernel(
		C.CUfunction(unsafe.Pointer(uintptr(fn))),
		C.uint(grid[0]), C.uint(grid[1]), C.uint(grid[2]),
		C.uint(block[0]), C.uint(block[1]), C.uint(block[2]),
		C.uint(sharedBytes),
		C.CUstream(unsafe.Pointer(uintptr(stream))),
		(*unsafe.Pointer)(argv),
		nil,
	)
	if C.cuda_check(res) != 0 {
		return lastError("cuLaunchKernel")
	}
	return nil
}

var _ driver.Driver = (*Driver)(nil)
