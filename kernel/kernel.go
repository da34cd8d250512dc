// Package kernel models one compiled GPU kernel and a single call against
// it: grid dimensions, packed arguments, and the launch sequence that
// resolves a device-specific Function and marshals arguments into the
// shape driver.Driver.Launch expects.
package kernel

import (
	"sync"
	"unsafe"

	"github.com/orneryd/gpukernelcall/driver"
	"github.com/orneryd/gpukernelcall/image"
	"github.com/orneryd/gpukernelcall/kerr"
	"github.com/orneryd/gpukernelcall/module"
)

// Kernel describes one compiled kernel variant: its source, its warp count
// (which fixes the launch block size), and its shared-memory footprint.
// ComputeCapability and the image Cache together determine which compiled
// binary a given context resolves to.
//
// Kernel lazily resolves and memoizes its module.ModuleImage on first
// launch; the mutex only ever guards that one-time resolution, so copying a
// Kernel after its first launch is not supported (KernelCall holds Kernel by
// value but is always used through a pointer receiver).
type Kernel struct {
	KernelName        string
	NumWarps          uint32
	SharedMemBytes    uint32
	AsmText           string
	ComputeCapability int32

	cache *image.Cache

	mu          sync.Mutex
	moduleImage *module.ModuleImage
}

// NewKernel describes a kernel variant. cache is the device-image cache
// this kernel resolves its compiled binary through.
func NewKernel(cache *image.Cache, kernelName string, numWarps, sharedMemBytes uint32, asmText string, computeCapability int32) Kernel {
	return Kernel{
		KernelName:        kernelName,
		NumWarps:          numWarps,
		SharedMemBytes:    sharedMemBytes,
		AsmText:           asmText,
		ComputeCapability: computeCapability,
		cache:             cache,
	}
}

// BlockDim returns the launch block dimensions implied by NumWarps: one
// warp is 32 threads laid out along x, with y and z always 1.
func (k *Kernel) BlockDim() [3]uint32 {
	return [3]uint32{k.NumWarps * 32, 1, 1}
}

func (k *Kernel) ensureModuleImage() (*module.ModuleImage, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.moduleImage != nil {
		return k.moduleImage, nil
	}
	img, err := k.cache.GetModuleImage(image.Key{
		KernelName:        k.KernelName,
		SharedMemBytes:    k.SharedMemBytes,
		AsmText:           k.AsmText,
		ComputeCapability: k.ComputeCapability,
	})
	if err != nil {
		return nil, err
	}
	k.moduleImage = img
	return img, nil
}

// Call is anything launchable against a stream and a set of device
// buffers: a plain KernelCall, or an autotune.AutotunedKernelCall picking
// among several.
type Call interface {
	Launch(drv driver.Driver, stream driver.Stream, buffers []uintptr) error
}

// KernelCall pairs a Kernel with one invocation's grid dimensions and
// packed parameters.
type KernelCall struct {
	Kernel     Kernel
	Grid       [3]uint32
	Parameters []Parameter
}

// Launch resolves this call's kernel for the context backing stream,
// marshals Parameters into device-argument pointers (zero-filling array
// parameters that request it and enforcing pointer alignment), and enqueues
// the launch on stream.
func (kc *KernelCall) Launch(drv driver.Driver, stream driver.Stream, buffers []uintptr) error {
	img, err := kc.Kernel.ensureModuleImage()
	if err != nil {
		return err
	}

	ctx, err := drv.CurrentContext(stream)
	if err != nil {
		return kerr.Devicef(err, "resolving context for stream")
	}

	fn, err := img.GetFunctionForContext(drv, ctx)
	if err != nil {
		return err
	}

	args, err := marshalArgs(drv, stream, buffers, kc.Parameters)
	if err != nil {
		return err
	}

	if err := drv.Launch(stream, fn, kc.Grid, kc.Kernel.BlockDim(), kc.Kernel.SharedMemBytes, args); err != nil {
		return kerr.Devicef(err, "launching kernel %q", kc.Kernel.KernelName)
	}
	return nil
}

// marshalArgs converts Parameters into the []unsafe.Pointer driver.Launch
// expects, one pointer-to-value per argument slot. Array parameters resolve
// against buffers by index, are alignment-checked, and are zero-filled
// asynchronously on stream when requested.
func marshalArgs(drv driver.Driver, stream driver.Stream, buffers []uintptr, params []Parameter) ([]unsafe.Pointer, error) {
	args := make([]unsafe.Pointer, len(params))
	bufIdx := 0

	for i, p := range params {
		switch v := p.(type) {
		case ArrayParam:
			if bufIdx >= len(buffers) {
				return nil, kerr.InvalidArgumentf("parameter %d: no buffer supplied for array argument", i)
			}
			ptr := buffers[bufIdx]
			bufIdx++

			if v.PtrDivisibility > 0 && uintptr(ptr)%uintptr(v.PtrDivisibility) != 0 {
				return nil, kerr.InvalidArgumentf(
					"parameter %d: pointer %#x is not a multiple of required alignment %d",
					i, ptr, v.PtrDivisibility,
				)
			}
			if v.BytesToZero > 0 {
				if err := drv.MemsetAsync(stream, ptr, v.BytesToZero); err != nil {
					return nil, kerr.Devicef(err, "zero-filling parameter %d", i)
				}
			}
			pv := new(uintptr)
			*pv = ptr
			args[i] = unsafe.Pointer(pv)

		case BoolParam:
			pv := new(byte)
			if v {
				*pv = 1
			}
			args[i] = unsafe.Pointer(pv)

		case I32Param:
			pv := new(int32)
			*pv = int32(v)
			args[i] = unsafe.Pointer(pv)

		case U32Param:
			pv := new(uint32)
			*pv = uint32(v)
			args[i] = unsafe.Pointer(pv)

		case I64Param:
			pv := new(int64)
			*pv = int64(v)
			args[i] = unsafe.Pointer(pv)

		case U64Param:
			pv := new(uint64)
			*pv = uint64(v)
			args[i] = unsafe.Pointer(pv)

		default:
			return nil, kerr.InvalidArgumentf("parameter %d: unknown parameter type %T", i, p)
		}
	}
	return args, nil
}
