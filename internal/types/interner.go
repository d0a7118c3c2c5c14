package types

import (
	"fmt"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for common primitive types.
type Builtins struct {
	None    TypeID
	Void    TypeID
	Bool    TypeID
	Int8    TypeID
	Int16   TypeID
	Int32   TypeID
	Int64   TypeID
	Uint8   TypeID
	Uint16  TypeID
	Uint32  TypeID
	Uint64  TypeID
	VoidPtr TypeID
}

// Interner provides stable TypeIDs by hashing structural descriptors.
// It also owns the record, tuple and enum side tables, and acts as the
// struct registry for named records.
type Interner struct {
	types    []Type
	index    map[Type]TypeID
	builtins Builtins

	records     []RecordInfo
	recordNames map[string]uint32
	anonRecords map[string]uint32
	tuples      []TupleInfo
	tupleIndex  map[string]uint32
	enums       []EnumInfo
	enumNames   map[string]uint32
}

// NewInterner constructs an interner seeded with built-in primitives.
func NewInterner() *Interner {
	in := &Interner{
		index:       make(map[Type]TypeID, 64),
		recordNames: make(map[string]uint32),
		anonRecords: make(map[string]uint32),
		tupleIndex:  make(map[string]uint32),
		enumNames:   make(map[string]uint32),
	}
	// slot 0 of each side table is a sentinel
	in.records = append(in.records, RecordInfo{})
	in.tuples = append(in.tuples, TupleInfo{})
	in.enums = append(in.enums, EnumInfo{})

	in.builtins.None = in.internRaw(Type{Kind: KindNone})
	in.builtins.Void = in.Intern(Type{Kind: KindVoid})
	in.builtins.Bool = in.Intern(Type{Kind: KindBool, Size: 1})
	in.builtins.Int8 = in.Intern(MakeInt(1, true))
	in.builtins.Int16 = in.Intern(MakeInt(2, true))
	in.builtins.Int32 = in.Intern(MakeInt(4, true))
	in.builtins.Int64 = in.Intern(MakeInt(8, true))
	in.builtins.Uint8 = in.Intern(MakeInt(1, false))
	in.builtins.Uint16 = in.Intern(MakeInt(2, false))
	in.builtins.Uint32 = in.Intern(MakeInt(4, false))
	in.builtins.Uint64 = in.Intern(MakeInt(8, false))
	in.builtins.VoidPtr = in.Intern(MakePointer(in.builtins.Void, ASNone))
	return in
}

// Builtins returns TypeIDs for primitive types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Intern ensures the provided descriptor has a stable TypeID.
// Every none descriptor collapses to None.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindNone {
		return None
	}
	if id, ok := in.index[t]; ok {
		return id
	}
	return in.internRaw(t)
}

// internRaw adds the descriptor to the storage without consulting the map.
func (in *Interner) internRaw(t Type) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	in.index[t] = id
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic(fmt.Sprintf("types: invalid TypeID %d", id))
	}
	return tt
}

// Len returns the number of interned descriptors.
func (in *Interner) Len() int {
	return len(in.types)
}

// Kind is a shortcut for MustLookup(id).Kind.
func (in *Interner) Kind(id TypeID) Kind {
	return in.MustLookup(id).Kind
}

// IsNone reports whether id is still unresolved.
func (in *Interner) IsNone(id TypeID) bool {
	return id == None
}

// Int returns the integer TypeID of size bytes.
func (in *Interner) Int(size uint32, signed bool) TypeID {
	return in.Intern(MakeInt(size, signed))
}

// Pointer returns a pointer to elem in address space as.
func (in *Interner) Pointer(elem TypeID, as AddrSpace) TypeID {
	return in.Intern(MakePointer(elem, as))
}

// Array returns a fixed-size array of count elements.
func (in *Interner) Array(elem TypeID, count uint32) TypeID {
	return in.Intern(MakeArray(elem, in.Size(elem), count))
}

// String returns a string type of size bytes, terminator included.
func (in *Interner) String(size uint32) TypeID {
	return in.Intern(MakeString(size))
}

// Buffer returns a buffer type holding n data bytes.
func (in *Interner) Buffer(n uint32) TypeID {
	return in.Intern(MakeBuffer(n))
}

// Size returns the byte size of id, consulting the record table for records.
func (in *Interner) Size(id TypeID) uint32 {
	t := in.MustLookup(id)
	if t.Kind == KindRecord {
		if info, ok := in.recordInfo(t); ok {
			return info.Size
		}
		return 0
	}
	return t.Size
}

// Elem returns the pointee/element type of pointers and arrays.
func (in *Interner) Elem(id TypeID) TypeID {
	return in.MustLookup(id).Elem
}

// WithAS returns id re-tagged with address space as.
func (in *Interner) WithAS(id TypeID, as AddrSpace) TypeID {
	t := in.MustLookup(id)
	if t.AS == as || t.Kind == KindNone {
		return id
	}
	t.AS = as
	return in.Intern(t)
}

// WithFlags returns id with flags added.
func (in *Interner) WithFlags(id TypeID, flags Flags) TypeID {
	t := in.MustLookup(id)
	if t.Flags&flags == flags || t.Kind == KindNone {
		return id
	}
	t.Flags |= flags
	return in.Intern(t)
}

// WithoutFlags returns id with flags cleared.
func (in *Interner) WithoutFlags(id TypeID, flags Flags) TypeID {
	t := in.MustLookup(id)
	if t.Flags&flags == 0 {
		return id
	}
	t.Flags &^= flags
	return in.Intern(t)
}

// WithSign returns an integer type with the requested signedness.
func (in *Interner) WithSign(id TypeID, signed bool) TypeID {
	t := in.MustLookup(id)
	if t.Kind != KindInt || t.Signed == signed {
		return id
	}
	t.Signed = signed
	return in.Intern(t)
}

// Strip drops the address space and flags of the outermost descriptor.
func (in *Interner) Strip(id TypeID) TypeID {
	t := in.MustLookup(id)
	if t.AS == ASNone && t.Flags == 0 {
		return id
	}
	t.AS = ASNone
	t.Flags = 0
	return in.Intern(t)
}

// Equal compares two types ignoring address spaces and flags at every level.
func (in *Interner) Equal(a, b TypeID) bool {
	if a == b {
		return true
	}
	ta, tb := in.MustLookup(a), in.MustLookup(b)
	if ta.Kind != tb.Kind || ta.Signed != tb.Signed || ta.Count != tb.Count || ta.Mode != tb.Mode {
		return false
	}
	switch ta.Kind {
	case KindPointer, KindArray:
		return ta.Size == tb.Size && in.Equal(ta.Elem, tb.Elem)
	case KindRecord, KindEnum:
		return ta.Payload == tb.Payload
	case KindTuple:
		ea, eb := in.tuples[ta.Payload].Elems, in.tuples[tb.Payload].Elems
		if len(ea) != len(eb) {
			return false
		}
		for i := range ea {
			if !in.Equal(ea[i], eb[i]) {
				return false
			}
		}
		return true
	}
	return ta.Size == tb.Size
}

func conv32(n int, what string) uint32 {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		panic(fmt.Errorf("%s overflow: %w", what, err))
	}
	return v
}
