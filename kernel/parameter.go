package kernel

import "encoding/gob"

// ParamTag identifies a Parameter's concrete wire type. It exists so callers
// can switch on a parameter's kind without a type assertion when that reads
// more naturally (marshalling, logging).
type ParamTag int

const (
	ParamArray ParamTag = iota
	ParamBool
	ParamI32
	ParamU32
	ParamI64
	ParamU64
)

func (t ParamTag) String() string {
	switch t {
	case ParamArray:
		return "array"
	case ParamBool:
		return "bool"
	case ParamI32:
		return "i32"
	case ParamU32:
		return "u32"
	case ParamI64:
		return "i64"
	case ParamU64:
		return "u64"
	default:
		return "unknown"
	}
}

// Parameter is a closed union of the scalar and buffer argument kinds a
// kernel call can pass. It is implemented as an interface rather than a
// tagged struct so gob can encode/decode the wire union through a single
// []Parameter field without a discriminant byte of our own. Its one method
// is exported, so types outside this package can satisfy it; marshalArgs
// rejects any type other than the six defined here.
type Parameter interface {
	Tag() ParamTag
}

// ArrayParam describes a device-buffer argument: how many leading bytes the
// runtime must zero-fill before launch, and what value the buffer's device
// pointer must be a multiple of (zero means no alignment requirement).
type ArrayParam struct {
	BytesToZero     uint64
	PtrDivisibility uint64
}

func (ArrayParam) Tag() ParamTag { return ParamArray }

type BoolParam bool

func (BoolParam) Tag() ParamTag { return ParamBool }

type I32Param int32

func (I32Param) Tag() ParamTag { return ParamI32 }

type U32Param uint32

func (U32Param) Tag() ParamTag { return ParamU32 }

type I64Param int64

func (I64Param) Tag() ParamTag { return ParamI64 }

type U64Param uint64

func (U64Param) Tag() ParamTag { return ParamU64 }

func init() {
	gob.Register(ArrayParam{})
	gob.Register(BoolParam(false))
	gob.Register(I32Param(0))
	gob.Register(U32Param(0))
	gob.Register(I64Param(0))
	gob.Register(U64Param(0))
}
