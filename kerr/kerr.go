// Package kerr classifies the errors the kernel-call runtime can return so
// that the entry point (package triton) can turn any failure into a flat
// message for the host framework's status sink without needing to know
// which layer produced it.
package kerr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories this runtime produces.
type Kind int

const (
	// InvalidArgument covers malformed blobs, unknown tags, pointer
	// misalignment, and shared-memory requests that exceed the device.
	InvalidArgument Kind = iota
	// Device covers any driver-API failure, surfaced with its driver message.
	Device
	// Compile covers external assembly-compiler failures.
	Compile
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case Device:
		return "DeviceError"
	case Compile:
		return "CompileError"
	default:
		return "UnknownError"
	}
}

// Error is a classified error carrying a Kind alongside the usual message
// and optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// InvalidArgumentf builds an InvalidArgument error.
func InvalidArgumentf(format string, args ...interface{}) error {
	return &Error{Kind: InvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

// Devicef builds a Device error, optionally wrapping a driver-reported cause.
func Devicef(cause error, format string, args ...interface{}) error {
	return &Error{Kind: Device, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// Compilef builds a Compile error wrapping the external compiler's message.
func Compilef(cause error, format string, args ...interface{}) error {
	return &Error{Kind: Compile, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf reports the Kind of err, defaulting to Device for errors this
// package didn't produce (a driver call that returned a bare error, say).
func KindOf(err error) Kind {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return Device
}
