package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// None is the unresolved type. It is always slot 0, so a zero TypeID on a
// freshly built node reads as "not resolved yet".
const None TypeID = 0

// Kind enumerates all supported kinds of types.
type Kind uint8

const (
	KindNone Kind = iota
	KindVoid
	KindBool
	KindInt
	KindPointer
	KindArray
	KindString
	KindBuffer
	KindTuple
	KindRecord
	KindEnum
	// aggregate map values
	KindCount
	KindSum
	KindMin
	KindMax
	KindAvg
	KindStats
	KindHist
	KindLHist
	KindTSeries
	// builtin markers
	KindKStack
	KindUStack
	KindTimestamp
	KindTimestampMode
	KindKsym
	KindUsym
	KindUsername
	KindInet
	KindMacAddr
	KindCgroupPath
	KindStrerror
	KindStackMode
)

var kindNames = [...]string{
	KindNone:          "none",
	KindVoid:          "void",
	KindBool:          "bool",
	KindInt:           "int",
	KindPointer:       "pointer",
	KindArray:         "array",
	KindString:        "string",
	KindBuffer:        "buffer",
	KindTuple:         "tuple",
	KindRecord:        "record",
	KindEnum:          "enum",
	KindCount:         "count_t",
	KindSum:           "sum_t",
	KindMin:           "min_t",
	KindMax:           "max_t",
	KindAvg:           "avg_t",
	KindStats:         "stats_t",
	KindHist:          "hist_t",
	KindLHist:         "lhist_t",
	KindTSeries:       "tseries_t",
	KindKStack:        "kstack",
	KindUStack:        "ustack",
	KindTimestamp:     "timestamp",
	KindTimestampMode: "timestamp_mode",
	KindKsym:          "ksym_t",
	KindUsym:          "usym_t",
	KindUsername:      "username",
	KindInet:          "inet",
	KindMacAddr:       "mac_address",
	KindCgroupPath:    "cgroup_path_t",
	KindStrerror:      "strerror_t",
	KindStackMode:     "stack_mode",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// AddrSpace tags the provenance of a pointer or context-derived value.
type AddrSpace uint8

const (
	ASNone AddrSpace = iota
	ASKernel
	ASUser
	// ASBpf marks pointers into program-owned memory (for-loop context records).
	ASBpf
)

func (as AddrSpace) String() string {
	switch as {
	case ASKernel:
		return "kernel"
	case ASUser:
		return "user"
	case ASBpf:
		return "bpf"
	}
	return "none"
}

// Flags carry where a value came from and where it may be read.
type Flags uint8

const (
	// FlagCtxAccess marks values read through the probe context.
	FlagCtxAccess Flags = 1 << iota
	// FlagInternal marks values living in program scratch memory.
	FlagInternal
	// FlagFuncArg marks records describing function arguments.
	FlagFuncArg
	// FlagTPArg marks records describing tracepoint arguments.
	FlagTPArg
)

// StackMode selects the stack trace capture format.
type StackMode uint8

const (
	StackBpftrace StackMode = iota
	StackPerf
	StackRaw
	StackBuildID
)

var stackModes = map[string]StackMode{
	"bpftrace": StackBpftrace,
	"perf":     StackPerf,
	"raw":      StackRaw,
	"build_id": StackBuildID,
}

// ParseStackMode maps an identifier used in kstack(perf)/ustack(raw, 5).
func ParseStackMode(s string) (StackMode, bool) {
	m, ok := stackModes[s]
	return m, ok
}

func (m StackMode) String() string {
	for name, v := range stackModes {
		if v == m {
			return name
		}
	}
	return "bpftrace"
}

// TimestampMode selects the clock behind strftime/timestamp values.
type TimestampMode uint8

const (
	TSBoot TimestampMode = iota
	TSMonotonic
	TSTai
	TSSwTai
)

var tsModes = map[string]TimestampMode{
	"boot":      TSBoot,
	"monotonic": TSMonotonic,
	"tai":       TSTai,
	"sw_tai":    TSSwTai,
}

// ParseTimestampMode maps an identifier used in nsecs(tai) and strftime.
func ParseTimestampMode(s string) (TimestampMode, bool) {
	m, ok := tsModes[s]
	return m, ok
}

// DefaultStackDepth is used when kstack/ustack have no explicit limit.
const DefaultStackDepth = 127

// MaxStackDepth bounds the explicit stack limit argument.
const MaxStackDepth = 1024

// Type is a compact, comparable descriptor for any supported type. It is the
// interner's key, so two descriptors with the same fields share one TypeID.
type Type struct {
	Kind   Kind
	Size   uint32 // bytes
	Signed bool
	AS     AddrSpace
	Flags  Flags
	// Elem is the pointee (pointer) or element (array) type.
	Elem TypeID
	// Count is the array length or the stack depth limit.
	Count uint32
	// Mode holds StackMode or TimestampMode.
	Mode uint8
	// Payload indexes the record, tuple or enum side tables.
	Payload uint32
}

// Descriptor helpers ---------------------------------------------------------

// MakeInt describes an integer of size bytes.
func MakeInt(size uint32, signed bool) Type {
	return Type{Kind: KindInt, Size: size, Signed: signed}
}

// MakePointer describes a pointer to elem in address space as.
func MakePointer(elem TypeID, as AddrSpace) Type {
	return Type{Kind: KindPointer, Size: 8, Elem: elem, AS: as}
}

// MakeArray describes a fixed-size array; elemSize is the element byte size.
func MakeArray(elem TypeID, elemSize, count uint32) Type {
	return Type{Kind: KindArray, Size: elemSize * count, Elem: elem, Count: count}
}

// MakeString describes a fixed-size string buffer including the terminator.
func MakeString(size uint32) Type {
	return Type{Kind: KindString, Size: size}
}

// MakeBuffer describes an opaque byte buffer of n data bytes.
func MakeBuffer(n uint32) Type {
	return Type{Kind: KindBuffer, Size: n}
}

// MakeAggregate describes an aggregate map value kind.
func MakeAggregate(kind Kind, signed bool) Type {
	return Type{Kind: kind, Size: 8, Signed: signed}
}

// MakeStack describes a kstack/ustack value.
func MakeStack(user bool, mode StackMode, depth uint32) Type {
	k := KindKStack
	if user {
		k = KindUStack
	}
	return Type{Kind: k, Size: 8, Count: depth, Mode: uint8(mode)}
}

// MakeTimestamp describes a timestamp value of the given clock.
func MakeTimestamp(mode TimestampMode) Type {
	return Type{Kind: KindTimestamp, Size: 16, Mode: uint8(mode)}
}

// MakeMarker describes one of the fixed-size builtin marker kinds.
func MakeMarker(kind Kind) Type {
	t := Type{Kind: kind}
	switch kind {
	case KindKsym, KindUsername, KindStrerror:
		t.Size = 8
	case KindUsym, KindCgroupPath:
		t.Size = 16
	case KindInet:
		t.Size = 24
	case KindMacAddr:
		t.Size = 6
	case KindTimestampMode, KindStackMode:
		t.Size = 0
	}
	return t
}

// Predicates -----------------------------------------------------------------

func (t Type) IsNone() bool    { return t.Kind == KindNone }
func (t Type) IsInt() bool     { return t.Kind == KindInt }
func (t Type) IsPointer() bool { return t.Kind == KindPointer }
func (t Type) IsArray() bool   { return t.Kind == KindArray }
func (t Type) IsString() bool  { return t.Kind == KindString }
func (t Type) IsTuple() bool   { return t.Kind == KindTuple }
func (t Type) IsRecord() bool  { return t.Kind == KindRecord }
func (t Type) IsStack() bool   { return t.Kind == KindKStack || t.Kind == KindUStack }

// IsIntegerLike reports ints, bools and enums.
func (t Type) IsIntegerLike() bool {
	return t.Kind == KindInt || t.Kind == KindBool || t.Kind == KindEnum
}

// IsAggregate reports map-only aggregate kinds.
func (t Type) IsAggregate() bool {
	return t.Kind >= KindCount && t.Kind <= KindTSeries
}

// IsCastableMap reports aggregates whose current value can be read as an integer.
func (t Type) IsCastableMap() bool {
	switch t.Kind {
	case KindCount, KindSum, KindMin, KindMax, KindAvg:
		return true
	}
	return false
}

// IsCtxAccess reports values read through the probe context.
func (t Type) IsCtxAccess() bool { return t.Flags&FlagCtxAccess != 0 }

// IsInternal reports values living in program scratch memory.
func (t Type) IsInternal() bool { return t.Flags&FlagInternal != 0 }

// NeedsMemcpy reports types copied by value through memory rather than registers.
func (t Type) NeedsMemcpy() bool {
	switch t.Kind {
	case KindString, KindBuffer, KindArray, KindTuple, KindRecord, KindInet,
		KindUsym, KindKStack, KindUStack, KindMacAddr, KindCgroupPath, KindTimestamp:
		return true
	}
	return false
}

// StackMode returns the stack capture mode of a stack type.
func (t Type) StackMode() StackMode { return StackMode(t.Mode) }

// TimestampMode returns the clock of a timestamp type.
func (t Type) TimestampMode() TimestampMode { return TimestampMode(t.Mode) }
