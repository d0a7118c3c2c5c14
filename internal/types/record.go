package types

import (
	"strconv"
	"strings"
)

// Bitfield describes bit packing of a record field.
type Bitfield struct {
	Offset uint32 // bits from the field's byte offset
	Width  uint32 // bits
}

// Field is one named member of a record.
type Field struct {
	Name     string
	Type     TypeID
	Offset   uint32 // bytes
	Bitfield *Bitfield
	// Tag is the pointer type tag attribute ("rcu", "user", "percpu"), if any.
	Tag string
}

// RecordInfo stores the layout of a named or anonymous record.
type RecordInfo struct {
	// Name is "struct foo" / "union foo" for named records, empty otherwise.
	Name    string
	Fields  []Field
	Size    uint32
	Defined bool
}

// Field looks up a field by name.
func (r *RecordInfo) Field(name string) (*Field, bool) {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			return &r.Fields[i], true
		}
	}
	return nil, false
}

// HasField reports whether the record has a field called name.
func (r *RecordInfo) HasField(name string) bool {
	_, ok := r.Field(name)
	return ok
}

// LookupOrAddStruct returns the record type named name, registering an
// undefined placeholder the first time the name is seen.
func (in *Interner) LookupOrAddStruct(name string) TypeID {
	if slot, ok := in.recordNames[name]; ok {
		return in.Intern(Type{Kind: KindRecord, Payload: slot})
	}
	in.records = append(in.records, RecordInfo{Name: name})
	slot := conv32(len(in.records)-1, "record table")
	in.recordNames[name] = slot
	return in.Intern(Type{Kind: KindRecord, Payload: slot})
}

// StructByName returns the record registered under name.
func (in *Interner) StructByName(name string) (TypeID, bool) {
	slot, ok := in.recordNames[name]
	if !ok {
		return None, false
	}
	return in.Intern(Type{Kind: KindRecord, Payload: slot}), true
}

// HasStruct reports whether name is registered and defined.
func (in *Interner) HasStruct(name string) bool {
	slot, ok := in.recordNames[name]
	return ok && in.records[slot].Defined
}

// DefineStruct fills the layout of a named record placeholder.
func (in *Interner) DefineStruct(id TypeID, fields []Field, size uint32) {
	t := in.MustLookup(id)
	if t.Kind != KindRecord || t.Payload == 0 {
		return
	}
	info := &in.records[t.Payload]
	info.Fields = append([]Field(nil), fields...)
	info.Size = size
	info.Defined = true
}

// AnonRecord returns an anonymous record with the given fields. Offsets
// are computed when all are zero. Identical field lists share a TypeID.
func (in *Interner) AnonRecord(fields []Field) TypeID {
	laid := append([]Field(nil), fields...)
	size := in.layoutFields(laid)
	var key strings.Builder
	for _, f := range laid {
		key.WriteString(f.Name)
		key.WriteByte(':')
		key.WriteString(strconv.FormatUint(uint64(f.Type), 10))
		key.WriteByte(',')
	}
	if slot, ok := in.anonRecords[key.String()]; ok {
		return in.Intern(Type{Kind: KindRecord, Payload: slot})
	}
	in.records = append(in.records, RecordInfo{Fields: laid, Size: size, Defined: true})
	slot := conv32(len(in.records)-1, "record table")
	in.anonRecords[key.String()] = slot
	return in.Intern(Type{Kind: KindRecord, Payload: slot})
}

// RecordInfo returns the layout of a record TypeID.
func (in *Interner) RecordInfo(id TypeID) (*RecordInfo, bool) {
	t, ok := in.Lookup(id)
	if !ok || t.Kind != KindRecord {
		return nil, false
	}
	return in.recordInfo(t)
}

func (in *Interner) recordInfo(t Type) (*RecordInfo, bool) {
	if t.Payload == 0 || int(t.Payload) >= len(in.records) {
		return nil, false
	}
	return &in.records[t.Payload], true
}

// Records returns every named record, in registration order.
func (in *Interner) Records() []TypeID {
	out := make([]TypeID, 0, len(in.recordNames))
	for slot := 1; slot < len(in.records); slot++ {
		if in.records[slot].Name == "" {
			continue
		}
		out = append(out, in.Intern(Type{Kind: KindRecord, Payload: conv32(slot, "record table")}))
	}
	return out
}

// TupleInfo stores the element types and offsets of a tuple.
type TupleInfo struct {
	Elems   []TypeID
	Offsets []uint32
}

// Tuple returns the tuple type of elems. Identical element lists share a TypeID.
func (in *Interner) Tuple(elems []TypeID) TypeID {
	var key strings.Builder
	for _, e := range elems {
		key.WriteString(strconv.FormatUint(uint64(e), 10))
		key.WriteByte(',')
	}
	slot, ok := in.tupleIndex[key.String()]
	var size uint32
	if ok {
		size = in.tupleSize(slot)
	} else {
		fields := make([]Field, len(elems))
		for i, e := range elems {
			fields[i] = Field{Type: e}
		}
		size = in.layoutFields(fields)
		info := TupleInfo{Elems: append([]TypeID(nil), elems...), Offsets: make([]uint32, len(elems))}
		for i := range fields {
			info.Offsets[i] = fields[i].Offset
		}
		in.tuples = append(in.tuples, info)
		slot = conv32(len(in.tuples)-1, "tuple table")
		in.tupleIndex[key.String()] = slot
	}
	return in.Intern(Type{Kind: KindTuple, Size: size, Payload: slot})
}

func (in *Interner) tupleSize(slot uint32) uint32 {
	info := in.tuples[slot]
	if len(info.Elems) == 0 {
		return 0
	}
	last := len(info.Elems) - 1
	end := info.Offsets[last] + in.Size(info.Elems[last])
	return alignTo(end, in.tupleAlign(info.Elems))
}

func (in *Interner) tupleAlign(elems []TypeID) uint32 {
	align := uint32(1)
	for _, e := range elems {
		if a := in.align(e); a > align {
			align = a
		}
	}
	return align
}

// TupleInfo returns the elements of a tuple TypeID.
func (in *Interner) TupleInfo(id TypeID) (*TupleInfo, bool) {
	t, ok := in.Lookup(id)
	if !ok || t.Kind != KindTuple || t.Payload == 0 || int(t.Payload) >= len(in.tuples) {
		return nil, false
	}
	return &in.tuples[t.Payload], true
}

// TupleElems is a convenience accessor returning nil for non-tuples.
func (in *Interner) TupleElems(id TypeID) []TypeID {
	info, ok := in.TupleInfo(id)
	if !ok {
		return nil
	}
	return info.Elems
}

// layoutFields assigns naturally aligned offsets when none are set and
// returns the padded total size.
func (in *Interner) layoutFields(fields []Field) uint32 {
	explicit := false
	for _, f := range fields {
		if f.Offset != 0 {
			explicit = true
			break
		}
	}
	var off, maxAlign uint32 = 0, 1
	for i := range fields {
		a := in.align(fields[i].Type)
		if a > maxAlign {
			maxAlign = a
		}
		if explicit {
			if end := fields[i].Offset + in.Size(fields[i].Type); end > off {
				off = end
			}
			continue
		}
		off = alignTo(off, a)
		fields[i].Offset = off
		off += in.Size(fields[i].Type)
	}
	return alignTo(off, maxAlign)
}

func (in *Interner) align(id TypeID) uint32 {
	t := in.MustLookup(id)
	switch t.Kind {
	case KindInt, KindBool, KindEnum:
		if t.Size == 0 {
			return 1
		}
		return min(t.Size, 8)
	case KindPointer:
		return 8
	case KindArray:
		return in.align(t.Elem)
	case KindTuple, KindRecord:
		return 8
	}
	return 1
}

func alignTo(n, a uint32) uint32 {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

// EnumVariant is one named value of an enum.
type EnumVariant struct {
	Name  string
	Value uint64
}

// EnumInfo stores the variants of a named enum.
type EnumInfo struct {
	Name     string
	Variants []EnumVariant
}

// Variant returns the variant carrying value.
func (e *EnumInfo) Variant(value uint64) (EnumVariant, bool) {
	for _, v := range e.Variants {
		if v.Value == value {
			return v, true
		}
	}
	return EnumVariant{}, false
}

// Enum returns the enum type registered as name, creating it on first use.
func (in *Interner) Enum(name string, size uint32, variants []EnumVariant) TypeID {
	slot, ok := in.enumNames[name]
	if !ok {
		in.enums = append(in.enums, EnumInfo{Name: name, Variants: append([]EnumVariant(nil), variants...)})
		slot = conv32(len(in.enums)-1, "enum table")
		in.enumNames[name] = slot
	}
	return in.Intern(Type{Kind: KindEnum, Size: size, Payload: slot})
}

// EnumByName returns the TypeID of an already registered enum.
func (in *Interner) EnumByName(name string) (TypeID, bool) {
	slot, ok := in.enumNames[name]
	if !ok {
		return None, false
	}
	for id, t := range in.types {
		if t.Kind == KindEnum && t.Payload == slot && t.Flags == 0 && t.AS == ASNone {
			return TypeID(id), true // #nosec G115 -- bounded by internRaw
		}
	}
	return None, false
}

// EnumInfo returns the variants of an enum TypeID.
func (in *Interner) EnumInfo(id TypeID) (*EnumInfo, bool) {
	t, ok := in.Lookup(id)
	if !ok || t.Kind != KindEnum || t.Payload == 0 {
		return nil, false
	}
	return &in.enums[t.Payload], true
}

// VariantByName finds the registered enum holding a variant called name.
func (in *Interner) VariantByName(name string) (TypeID, EnumVariant, bool) {
	for slot := 1; slot < len(in.enums); slot++ {
		for _, v := range in.enums[slot].Variants {
			if v.Name != name {
				continue
			}
			if id, ok := in.EnumByName(in.enums[slot].Name); ok {
				return id, v, true
			}
		}
	}
	return None, EnumVariant{}, false
}
