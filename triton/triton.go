// Package triton is the runtime's entry point: the function a host
// framework calls to dispatch one kernel (or autotuned kernel) call given
// only a stream, a list of device buffer pointers, and an opaque blob.
// Every internal error is converted into a single host-facing message
// rather than letting a typed error leak across the process boundary.
package triton

import (
	"github.com/orneryd/gpukernelcall/callcache"
	"github.com/orneryd/gpukernelcall/config"
	"github.com/orneryd/gpukernelcall/driver"
	"github.com/orneryd/gpukernelcall/image"
)

// StatusSink receives the outcome of a dispatch. A call that returns
// normally from TritonKernelCall has not necessarily succeeded: failures
// are reported through SetError rather than a Go error return, since the
// host framework's call site has no Go error channel of its own.
type StatusSink interface {
	SetError(msg string)
}

// Runtime owns the process-wide caches a TritonKernelCall dispatch goes
// through: the compiled-image cache and the decoded-call cache layered on
// top of it.
type Runtime struct {
	Driver     driver.Driver
	ImageCache *image.Cache
	CallCache  *callcache.Cache
}

// NewRuntime builds a Runtime backed by drv and compiler, with the given
// autotune configuration.
func NewRuntime(drv driver.Driver, compiler image.Compiler, cfg config.Autotune) *Runtime {
	imgCache := image.NewCache(compiler)
	return &Runtime{
		Driver:     drv,
		ImageCache: imgCache,
		CallCache:  callcache.NewCache(imgCache, cfg),
	}
}

// TritonKernelCall decodes opaque, resolves it through the call cache, and
// launches it against stream with buffers. Any failure — a malformed blob,
// an alignment violation, a device error — is reported to status and this
// method returns without panicking.
func (r *Runtime) TritonKernelCall(stream driver.Stream, buffers []uintptr, opaque []byte, status StatusSink) {
	call, err := r.CallCache.GetKernelCall(opaque)
	if err != nil {
		status.SetError(err.Error())
		return
	}
	if err := call.Launch(r.Driver, stream, buffers); err != nil {
		status.SetError(err.Error())
	}
}

// defaultRuntime backs the package-level TritonKernelCall, mirroring the
// single-process-wide-instance shape spec callers expect of this entry
// point; tests and embedders that need isolation should use Runtime
// directly instead.
var defaultRuntime *Runtime

// Init installs the process-wide Runtime used by the package-level
// TritonKernelCall. Call it once during process startup.
func Init(drv driver.Driver, compiler image.Compiler, cfg config.Autotune) {
	defaultRuntime = NewRuntime(drv, compiler, cfg)
}

// TritonKernelCall dispatches against the runtime installed by Init. It
// panics if Init has not been called, since that indicates a startup bug
// rather than a per-call failure a StatusSink should absorb.
func TritonKernelCall(stream driver.Stream, buffers []uintptr, opaque []byte, status StatusSink) {
	if defaultRuntime == nil {
		panic("triton: Init must be called before TritonKernelCall")
	}
	defaultRuntime.TritonKernelCall(stream, buffers, opaque, status)
}
