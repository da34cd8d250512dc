//go:build !cuda || !(linux || windows)
// +build !cuda !linux,!windows

// Package cuda provides NVIDIA GPU acceleration using the CUDA driver API.
// This is a stub implementation for builds without the "cuda" tag, or for
// unsupported platforms.
package cuda

import (
	"errors"
	"unsafe"

	"github.com/orneryd/gpukernelcall/driver"
)

// ErrCUDANotAvailable is returned by every Driver method when the binary
// was built without the "cuda" tag.
var ErrCUDANotAvailable = errors.New("cuda: CUDA is not available (build without cuda tag or unsupported platform)")

// Driver is a stub that satisfies driver.Driver but always fails.
type Driver struct{}

// New returns a stub CUDA driver. Every method returns ErrCUDANotAvailable.
func New() *Driver { return &Driver{} }

func (d *Driver) CurrentContext(stream driver.Stream) (driver.Context, error) {
	return 0, ErrCUDANotAvailable
}
func (d *Driver) PushContext(ctx driver.Context) error { return ErrCUDANotAvailable }
func (d *Driver) PopContext() error                    { return ErrCUDANotAvailable }
func (d *Driver) DeviceAttr(ctx driver.Context, attr driver.DeviceAttr) (int64, error) {
	return 0, ErrCUDANotAvailable
}
func (d *Driver) LoadModule(ctx driver.Context, image []byte) (driver.Module, error) {
	return 0, ErrCUDANotAvailable
}
func (d *Driver) FunctionByName(mod driver.Module, name string) (driver.Function, error) {
	return 0, ErrCUDANotAvailable
}
func (d *Driver) SetFunctionCacheConfig(fn driver.Function, preferShared bool) error {
	return ErrCUDANotAvailable
}
func (d *Driver) FunctionStaticSharedBytes(fn driver.Function) (int64, error) {
	return 0, ErrCUDANotAvailable
}
func (d *Driver) SetFunctionMaxDynamicShared(fn driver.Function, bytes int64) error {
	return ErrCUDANotAvailable
}
func (d *Driver) MemsetAsync(stream driver.Stream, ptr uintptr, bytes uint64) error {
	return ErrCUDANotAvailable
}
func (d *Driver) MemcpyDtoHAsync(stream driver.Stream, dst []byte, src uintptr) error {
	return ErrCUDANotAvailable
}
func (d *Driver) MemcpyHtoDAsync(stream driver.Stream, dst uintptr, src []byte) error {
	return ErrCUDANotAvailable
}
func (d *Driver) StreamSynchronize(stream driver.Stream) error { return ErrCUDANotAvailable }
func (d *Driver) CreateEvent() (driver.Event, error)           { return 0, ErrCUDANotAvailable }
func (d *Driver) RecordEvent(ev driver.Event, stream driver.Stream) error {
	return ErrCUDANotAvailable
}
func (d *Driver) SynchronizeEvent(ev driver.Event) error { return ErrCUDANotAvailable }
func (d *Driver) ElapsedMillis(start, stop driver.Event) (float64, error) {
	return 0, ErrCUDANotAvailable
}
func (d *Driver) DestroyEvent(ev driver.Event) error { return ErrCUDANotAvailable }
func (d *Driver) Launch(stream driver.Stream, fn driver.Function, grid, block [3]uint32, sharedBytes uint32, args []unsafe.Pointer) error {
	return ErrCUDANotAvailable
}

var _ driver.Driver = (*Driver)(nil)
