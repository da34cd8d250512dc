// Package blob turns the opaque, compressed bytes a caller hands to the
// entry point into a launchable kernel.Call. Wire format: a zlib stream
// (RFC 1950) wrapping a gob-encoded record, an envelope-then-payload split
// using klauspost/compress for the compression layer.
package blob

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/orneryd/gpukernelcall/autotune"
	"github.com/orneryd/gpukernelcall/config"
	"github.com/orneryd/gpukernelcall/image"
	"github.com/orneryd/gpukernelcall/kerr"
	"github.com/orneryd/gpukernelcall/kernel"
)

// kernelRecord is the gob payload for a single, non-autotuned kernel call.
type kernelRecord struct {
	KernelName        string
	NumWarps          uint32
	SharedMemBytes    uint32
	AsmText           string
	ComputeCapability int32
	Grid              [3]uint32
	Parameters        []kernel.Parameter
}

// configRecord is one candidate within an autotuned call.
type configRecord struct {
	Kernel      kernelRecord
	Description string
}

// aliasRecord mirrors autotune.Alias on the wire.
type aliasRecord struct {
	InputBufferIdx  int
	OutputBufferIdx int
	SizeBytes       uint64
}

// autotunedRecord is the gob payload for an autotuned call.
type autotunedRecord struct {
	Name    string
	Configs []configRecord
	Aliases []aliasRecord
}

// wireRecord is the top-level gob payload: exactly one of its two fields
// must be non-nil.
type wireRecord struct {
	KernelCall          *kernelRecord
	AutotunedKernelCall *autotunedRecord
}

// Decode inflates and parses an opaque blob into a launchable kernel.Call.
// cache resolves each kernel's compiled device image; cfg configures any
// autotuning protocol the blob requests.
func Decode(opaque []byte, cache *image.Cache, cfg config.Autotune) (kernel.Call, error) {
	raw, err := inflate(opaque)
	if err != nil {
		return nil, err
	}

	var rec wireRecord
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rec); err != nil {
		return nil, kerr.InvalidArgumentf("decoding kernel call record: %v", err)
	}

	switch {
	case rec.KernelCall != nil && rec.AutotunedKernelCall != nil:
		return nil, kerr.InvalidArgumentf("record sets both kernel_call and autotuned_kernel_call")
	case rec.KernelCall != nil:
		kc := buildKernelCall(cache, *rec.KernelCall)
		return &kc, nil
	case rec.AutotunedKernelCall != nil:
		return buildAutotunedCall(cache, cfg, *rec.AutotunedKernelCall), nil
	default:
		return nil, kerr.InvalidArgumentf("record sets neither kernel_call nor autotuned_kernel_call")
	}
}

func buildKernelCall(cache *image.Cache, r kernelRecord) kernel.KernelCall {
	return kernel.KernelCall{
		Kernel:     kernel.NewKernel(cache, r.KernelName, r.NumWarps, r.SharedMemBytes, r.AsmText, r.ComputeCapability),
		Grid:       r.Grid,
		Parameters: r.Parameters,
	}
}

func buildAutotunedCall(cache *image.Cache, cfg config.Autotune, r autotunedRecord) *autotune.AutotunedKernelCall {
	candidates := make([]autotune.Candidate, len(r.Configs))
	for i, c := range r.Configs {
		kc := buildKernelCall(cache, c.Kernel)
		candidates[i] = autotune.Candidate{Call: &kc, Description: c.Description}
	}
	aliases := make([]autotune.Alias, len(r.Aliases))
	for i, al := range r.Aliases {
		aliases[i] = autotune.Alias{
			InputBufferIdx:  al.InputBufferIdx,
			OutputBufferIdx: al.OutputBufferIdx,
			SizeBytes:       al.SizeBytes,
		}
	}
	return autotune.NewAutotunedKernelCall(r.Name, candidates, aliases, cfg)
}

// inflate decompresses a zlib stream, starting with a 5x-compressed-size
// output buffer and doubling on a too-small result, mirroring a bounded
// decompress-into-buffer API rather than an unbounded streaming one so the
// buffer-growth behavior itself stays testable.
func inflate(compressed []byte) ([]byte, error) {
	capacity := 5 * len(compressed)
	if capacity == 0 {
		capacity = 64
	}

	for {
		zr, err := zlib.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, kerr.InvalidArgumentf("invalid compressed blob: %v", err)
		}

		buf := make([]byte, capacity)
		n, err := io.ReadFull(zr, buf)
		switch err {
		case nil:
			var probe [1]byte
			m, _ := zr.Read(probe[:])
			zr.Close()
			if m > 0 {
				capacity *= 2
				continue
			}
			return buf, nil
		case io.ErrUnexpectedEOF, io.EOF:
			zr.Close()
			return buf[:n], nil
		default:
			zr.Close()
			return nil, kerr.InvalidArgumentf("decompressing blob: %v", err)
		}
	}
}

// Encode compresses a gob-encoded kernelRecord or autotunedRecord into the
// opaque wire format Decode accepts. It exists for tests and the demo CLI
// that need to round-trip a call through the wire envelope.
func Encode(call *KernelCallSpec) ([]byte, error) {
	rec := wireRecord{}
	if call.Autotuned != nil {
		configs := make([]configRecord, len(call.Autotuned.Configs))
		for i, c := range call.Autotuned.Configs {
			configs[i] = configRecord{Kernel: c.Kernel, Description: c.Description}
		}
		aliases := make([]aliasRecord, len(call.Autotuned.Aliases))
		for i, al := range call.Autotuned.Aliases {
			aliases[i] = aliasRecord{
				InputBufferIdx:  al.InputBufferIdx,
				OutputBufferIdx: al.OutputBufferIdx,
				SizeBytes:       al.SizeBytes,
			}
		}
		rec.AutotunedKernelCall = &autotunedRecord{Name: call.Autotuned.Name, Configs: configs, Aliases: aliases}
	} else {
		rec.KernelCall = &call.Kernel
	}

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(&rec); err != nil {
		return nil, kerr.InvalidArgumentf("encoding kernel call record: %v", err)
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(payload.Bytes()); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return compressed.Bytes(), nil
}

// KernelCallSpec is the test/CLI-facing builder for Encode: exactly one of
// Kernel or Autotuned should carry data, mirroring wireRecord's oneof shape
// without exposing the unexported wire types.
type KernelCallSpec struct {
	Kernel    kernelRecord
	Autotuned *AutotunedCallSpec
}

type AutotunedCallSpec struct {
	Name    string
	Configs []ConfigSpec
	Aliases []autotune.Alias
}

type ConfigSpec struct {
	Kernel      kernelRecord
	Description string
}

// NewConfigSpec builds one autotune candidate for an AutotunedCallSpec.
func NewConfigSpec(kernelName string, numWarps, sharedMemBytes uint32, asmText string, computeCapability int32, grid [3]uint32, params []kernel.Parameter, description string) ConfigSpec {
	return ConfigSpec{
		Kernel: kernelRecord{
			KernelName:        kernelName,
			NumWarps:          numWarps,
			SharedMemBytes:    sharedMemBytes,
			AsmText:           asmText,
			ComputeCapability: computeCapability,
			Grid:              grid,
			Parameters:        params,
		},
		Description: description,
	}
}

// NewAutotunedCallSpec builds an autotuned call spec for Encode.
func NewAutotunedCallSpec(name string, configs []ConfigSpec, aliases []autotune.Alias) *KernelCallSpec {
	return &KernelCallSpec{Autotuned: &AutotunedCallSpec{Name: name, Configs: configs, Aliases: aliases}}
}

// NewKernelCallSpec builds a single, non-autotuned call spec for Encode.
func NewKernelCallSpec(kernelName string, numWarps, sharedMemBytes uint32, asmText string, computeCapability int32, grid [3]uint32, params []kernel.Parameter) *KernelCallSpec {
	return &KernelCallSpec{
		Kernel: kernelRecord{
			KernelName:        kernelName,
			NumWarps:          numWarps,
			SharedMemBytes:    sharedMemBytes,
			AsmText:           asmText,
			ComputeCapability: computeCapability,
			Grid:              grid,
			Parameters:        params,
		},
	}
}
