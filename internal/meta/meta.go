// Package meta answers questions about externally defined types: record
// layouts, function signatures, globals, kernel iterators and tracepoint
// formats. Answers come from BTF, YAML catalogs or msgpack snapshots.
package meta

import (
	"errors"
)

var (
	// ErrNotFound is returned when a provider has no entry for a name.
	ErrNotFound = errors.New("meta: not found")
	// ErrIncompatible is returned when an entry exists but cannot be
	// represented (unsupported type shape, wrong kind under that name).
	ErrIncompatible = errors.New("meta: incompatible")
)

// TypeKind is the shape of a metadata type.
type TypeKind uint8

const (
	KindUnknown TypeKind = iota
	KindVoid
	KindBool
	KindInt
	KindPointer
	KindArray
	KindStruct
	KindUnion
	KindEnum
	KindString
	KindBuffer
)

var typeKindNames = [...]string{
	KindUnknown: "unknown",
	KindVoid:    "void",
	KindBool:    "bool",
	KindInt:     "int",
	KindPointer: "pointer",
	KindArray:   "array",
	KindStruct:  "struct",
	KindUnion:   "union",
	KindEnum:    "enum",
	KindString:  "string",
	KindBuffer:  "buffer",
}

func (k TypeKind) String() string {
	if int(k) < len(typeKindNames) {
		return typeKindNames[k]
	}
	return "unknown"
}

// Type is a provider-neutral type description.
//
// Struct, union and enum types refer to their definition by Name
// ("struct task_struct"); anonymous records carry their Fields inline.
type Type struct {
	Kind   TypeKind `msgpack:"k"`
	Name   string   `msgpack:"n,omitempty"`
	Size   uint32   `msgpack:"s,omitempty"`
	Signed bool     `msgpack:"sg,omitempty"`
	Elem   *Type    `msgpack:"e,omitempty"`
	Count  uint32   `msgpack:"c,omitempty"`
	// Tag is a pointer type tag such as "rcu" or "user".
	Tag    string  `msgpack:"t,omitempty"`
	Fields []Field `msgpack:"f,omitempty"`
}

// Void is the void type.
func Void() Type { return Type{Kind: KindVoid} }

// Int is an integer of size bytes.
func Int(size uint32, signed bool) Type {
	return Type{Kind: KindInt, Size: size, Signed: signed}
}

// PointerTo returns a pointer to elem.
func PointerTo(elem Type) Type {
	e := elem
	return Type{Kind: KindPointer, Size: 8, Elem: &e}
}

// ArrayOf returns an array of count elems.
func ArrayOf(elem Type, count uint32) Type {
	e := elem
	return Type{Kind: KindArray, Size: elem.Size * count, Elem: &e, Count: count}
}

// Named returns a reference to a named struct, union or enum.
func Named(kind TypeKind, name string) Type {
	return Type{Kind: kind, Name: name}
}

// IsRecord reports structs and unions.
func (t Type) IsRecord() bool {
	return t.Kind == KindStruct || t.Kind == KindUnion
}

// Field is one member of a record.
type Field struct {
	Name   string `msgpack:"n"`
	Type   Type   `msgpack:"t"`
	Offset uint32 `msgpack:"o"` // bytes
	// BitWidth is zero for regular fields.
	BitOffset uint32 `msgpack:"bo,omitempty"`
	BitWidth  uint32 `msgpack:"bw,omitempty"`
}

// Struct is a record definition.
type Struct struct {
	// Name includes the "struct "/"union " prefix.
	Name   string
	Size   uint32
	Fields []Field
}

// Field looks up a member by name.
func (s *Struct) Field(name string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// EnumValue is one enumerator.
type EnumValue struct {
	Name  string
	Value uint64
}

// Enum is an enum definition.
type Enum struct {
	Name   string
	Size   uint32
	Signed bool
	Values []EnumValue
}

// Param is a function parameter.
type Param struct {
	Name string
	Type Type
}

// Linkage of a function.
type Linkage uint8

const (
	LinkageGlobal Linkage = iota
	LinkageStatic
	LinkageExtern
)

func (l Linkage) String() string {
	switch l {
	case LinkageStatic:
		return "static"
	case LinkageExtern:
		return "extern"
	}
	return "global"
}

// ParseLinkage parses "global", "static" or "extern"; empty means global.
func ParseLinkage(s string) (Linkage, bool) {
	switch s {
	case "", "global":
		return LinkageGlobal, true
	case "static":
		return LinkageStatic, true
	case "extern":
		return LinkageExtern, true
	}
	return LinkageGlobal, false
}

// Func is a function signature. Return is nil for void functions.
type Func struct {
	Name    string
	Linkage Linkage
	Return  *Type
	Params  []Param
}

// Param looks up a parameter by name.
func (f *Func) Param(name string) (*Param, bool) {
	for i := range f.Params {
		if f.Params[i].Name == name {
			return &f.Params[i], true
		}
	}
	return nil, false
}

// Provider is the type metadata source used by semantic analysis.
// Lookups are synchronous. Missing entries are reported with an error
// wrapping ErrNotFound, unusable ones with ErrIncompatible.
type Provider interface {
	// Struct returns the layout of "struct x" or "union x".
	Struct(name string) (*Struct, error)
	// Enum returns the enumerators of "enum x".
	Enum(name string) (*Enum, error)
	// Func returns the signature of a kernel function.
	Func(name string) (*Func, error)
	// Global returns the type of a kernel global variable.
	Global(name string) (*Type, error)
	// Iterators lists the kernel iterator names ("task", "task_file").
	Iterators() ([]string, error)
	// TracepointFormat returns the argument record of a tracepoint.
	TracepointFormat(category, event string) (*Struct, error)
	// DebugArgs returns the debug-info signature of a user function.
	DebugArgs(target, fn string) (*Func, error)
}

// IterStructName is the context record of iterator probes.
func IterStructName(iter string) string {
	return "struct bpf_iter__" + iter
}

// TracepointStructName is the argument record of a tracepoint.
func TracepointStructName(category, event string) string {
	return "struct _tracepoint_" + category + "_" + event
}
