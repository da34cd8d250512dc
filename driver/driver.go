// Package driver defines the narrow contract this runtime needs from a GPU
// driver API. Production code talks to a real device through driver/cuda
// (cgo, gated behind the "cuda" build tag); tests and GPU-less hosts use
// driver/fake. Nothing above this package ever imports cgo directly.
package driver

import (
	"errors"
	"unsafe"
)

// ErrUnknownModule is returned by FunctionByName for a module handle the
// driver doesn't recognize.
var ErrUnknownModule = errors.New("driver: unknown module handle")

// Context is an opaque device-context handle. Module handles and most
// device-attribute queries are scoped to one.
type Context uintptr

// Stream is an opaque, caller-owned command-stream handle. All launches
// and async copies enqueue onto one.
type Stream uintptr

// Module is an opaque loaded-binary-image handle, scoped to the Context it
// was loaded into.
type Module uintptr

// Function is an opaque device-function handle, resolved from a Module.
type Function uintptr

// Event is an opaque timing-event handle.
type Event uintptr

// DeviceAttr enumerates the device attributes this runtime queries.
type DeviceAttr int

const (
	// AttrMaxSharedMemPerBlockOptin is the maximum shared memory per block
	// available when a kernel opts in above the static limit.
	AttrMaxSharedMemPerBlockOptin DeviceAttr = iota
	// AttrMaxSharedMemPerMultiprocessor is the device's per-SM shared memory.
	AttrMaxSharedMemPerMultiprocessor
)

// StaticSharedMemLimitBytes is the static (non-opt-in) per-block shared
// memory limit, 48 KiB, shared by every CUDA device generation this
// runtime targets.
const StaticSharedMemLimitBytes = 48 * 1024

// Driver is the full surface this runtime drives. Every method may block;
// none of them spawn goroutines or do host-side async work themselves —
// asynchrony lives entirely in the GPU's stream-ordered queue.
type Driver interface {
	// CurrentContext returns the device context a stream is bound to.
	CurrentContext(stream Stream) (Context, error)
	// PushContext makes ctx the thread's current context. Callers must
	// pair every successful push with a PopContext, including on error
	// paths.
	PushContext(ctx Context) error
	// PopContext restores the previously current context.
	PopContext() error

	// DeviceAttr queries a device attribute for the device backing ctx.
	DeviceAttr(ctx Context, attr DeviceAttr) (int64, error)

	// LoadModule loads a compiled binary image into ctx. The returned
	// Module is owned by the caller for the process lifetime.
	LoadModule(ctx Context, image []byte) (Module, error)
	// FunctionByName resolves a function symbol within a loaded module.
	FunctionByName(mod Module, name string) (Function, error)
	// SetFunctionCacheConfig sets the function's cache-config preference;
	// preferShared requests maximizing shared memory over L1 cache.
	SetFunctionCacheConfig(fn Function, preferShared bool) error
	// FunctionStaticSharedBytes returns the function's static (compile-time)
	// shared-memory usage, distinct from any dynamic request at launch.
	FunctionStaticSharedBytes(fn Function) (int64, error)
	// SetFunctionMaxDynamicShared unlocks a dynamic shared-memory request
	// above the static 48 KiB limit, up to the device's opt-in maximum.
	SetFunctionMaxDynamicShared(fn Function, bytes int64) error

	// MemsetAsync zeroes bytes at ptr on stream, without host synchronization.
	MemsetAsync(stream Stream, ptr uintptr, bytes uint64) error
	// MemcpyDtoHAsync copies len(dst) bytes from the device pointer src to
	// the host buffer dst, on stream.
	MemcpyDtoHAsync(stream Stream, dst []byte, src uintptr) error
	// MemcpyHtoDAsync copies len(src) bytes from the host buffer src to the
	// device pointer dst, on stream.
	MemcpyHtoDAsync(stream Stream, dst uintptr, src []byte) error
	// StreamSynchronize blocks until every operation queued on stream so far
	// has completed.
	StreamSynchronize(stream Stream) error

	// CreateEvent allocates a new timing event.
	CreateEvent() (Event, error)
	// RecordEvent enqueues a timestamp record for ev on stream.
	RecordEvent(ev Event, stream Stream) error
	// SynchronizeEvent blocks until ev has been recorded.
	SynchronizeEvent(ev Event) error
	// ElapsedMillis returns the elapsed time in milliseconds between two
	// recorded events.
	ElapsedMillis(start, stop Event) (float64, error)
	// DestroyEvent releases an event's resources.
	DestroyEvent(ev Event) error

	// Launch enqueues a kernel launch on stream with the given grid/block
	// dimensions, dynamic shared-memory size, and packed argument pointers.
	Launch(stream Stream, fn Function, grid [3]uint32, block [3]uint32, sharedBytes uint32, args []unsafe.Pointer) error
}
