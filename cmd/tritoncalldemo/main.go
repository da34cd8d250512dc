// Command tritoncalldemo exercises the runtime end to end against the fake
// driver and fake compiler: it builds a synthetic kernel call, wire-encodes
// it the way a real caller would, and dispatches it through
// triton.TritonKernelCall. Uses stdlib flag, a banner line, and a single
// top-level error path that prints and exits non-zero instead of panicking.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/orneryd/gpukernelcall/autotune"
	"github.com/orneryd/gpukernelcall/blob"
	"github.com/orneryd/gpukernelcall/config"
	"github.com/orneryd/gpukernelcall/driver"
	fakedriver "github.com/orneryd/gpukernelcall/driver/fake"
	fakecompiler "github.com/orneryd/gpukernelcall/internal/compiler/fake"
	"github.com/orneryd/gpukernelcall/kernel"
	"github.com/orneryd/gpukernelcall/triton"
)

func main() {
	numWarps := flag.Uint("warps", 4, "number of warps in the demo kernel's block")
	bufBytes := flag.Uint64("buf-bytes", 4096, "size in bytes of the demo device buffer")
	useAutotune := flag.Bool("autotune", false, "dispatch an autotuned call with two candidates instead of one")
	flag.Parse()

	fmt.Println("tritoncalldemo: dispatching a synthetic kernel call against the fake driver")

	if err := run(uint32(*numWarps), *bufBytes, *useAutotune); err != nil {
		log.Fatalf("tritoncalldemo: %v", err)
	}
}

func run(numWarps uint32, bufBytes uint64, useAutotune bool) error {
	drv := fakedriver.New()
	compiler := &fakecompiler.Compiler{}
	rt := triton.NewRuntime(drv, compiler, config.DefaultAutotune())

	params := []kernel.Parameter{
		kernel.ArrayParam{BytesToZero: bufBytes, PtrDivisibility: 256},
		kernel.I32Param(42),
	}

	var opaque []byte
	var err error
	if useAutotune {
		spec := blob.NewAutotunedCallSpec("demo_add", []blob.ConfigSpec{
			blob.NewConfigSpec("demo_add_v1", numWarps, 0, "; ptx v1", 80, [3]uint32{1, 1, 1}, params, "v1: narrow block"),
			blob.NewConfigSpec("demo_add_v2", numWarps*2, 0, "; ptx v2", 80, [3]uint32{1, 1, 1}, params, "v2: wide block"),
		}, nil)
		opaque, err = blob.Encode(spec)
	} else {
		spec := blob.NewKernelCallSpec("demo_add", numWarps, 0, "; ptx v1", 80, [3]uint32{1, 1, 1}, params)
		opaque, err = blob.Encode(spec)
	}
	if err != nil {
		return err
	}

	buffers := []uintptr{0x1000}
	stream := driver.Stream(1)
	status := &triton.BufferStatusSink{}
	rt.TritonKernelCall(stream, buffers, opaque, status)
	if !status.OK() {
		return fmt.Errorf("dispatch failed: %s", status.Err)
	}

	fmt.Printf("dispatch ok: %d launch(es) recorded, %d module load(s), %d function resolve(s)\n",
		drv.Launches, drv.ModuleLoads, drv.FunctionResolves)

	// Pull the decoded call back out of the cache to report on it; this is
	// a cache hit, not a re-decode.
	call, err := rt.CallCache.GetKernelCall(opaque)
	if err != nil {
		return err
	}
	reportCall(call)

	if useAutotune {
		// Second dispatch of the identical blob: should hit the call cache
		// and skip re-decoding, and the autotune winner is already latched.
		rt.TritonKernelCall(stream, buffers, opaque, status)
		if !status.OK() {
			return fmt.Errorf("second dispatch failed: %s", status.Err)
		}
		fmt.Printf("second dispatch ok: %d launch(es) total, cache hits=%d misses=%d\n",
			drv.Launches, rt.CallCache.Hits, rt.CallCache.Misses)
	}

	return nil
}

// reportCall prints grid/block dims and the shared-memory policy decision
// for call, plus the winning candidate and iteration count chosen when
// call is an autotuned call.
func reportCall(call kernel.Call) {
	switch c := call.(type) {
	case *kernel.KernelCall:
		reportKernelCall(&c.Kernel, c.Grid)
	case *autotune.AutotunedKernelCall:
		fmt.Printf("autotune winner: %q (%d timed iteration(s))\n", c.Winner(), c.Iterations())
		if winning := c.WinningCall(); winning != nil {
			reportKernelCall(&winning.Kernel, winning.Grid)
		}
	}
}

func reportKernelCall(k *kernel.Kernel, grid [3]uint32) {
	block := k.BlockDim()
	fmt.Printf("grid=%v block=%v shared_mem_bytes=%d\n", grid, block, k.SharedMemBytes)
	if k.SharedMemBytes <= driver.StaticSharedMemLimitBytes {
		fmt.Println("shared-mem policy: within static limit, no opt-in required")
	} else {
		fmt.Println("shared-mem policy: above static limit, opted in to dynamic shared memory")
	}
}
