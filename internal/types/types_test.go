package types

import (
	"testing"
)

var widths = []uint32{1, 2, 4, 8}

func TestPromoteIntCommutative(t *testing.T) {
	for _, wa := range widths {
		for _, wb := range widths {
			for _, sa := range []bool{false, true} {
				for _, sb := range []bool{false, true} {
					a, b := MakeInt(wa, sa), MakeInt(wb, sb)
					ab, okAB := PromoteInt(a, b)
					ba, okBA := PromoteInt(b, a)
					if okAB != okBA || ab != ba {
						t.Fatalf("PromoteInt(%v,%v)=%v,%v but reversed %v,%v", a, b, ab, okAB, ba, okBA)
					}
				}
			}
		}
	}
}

func TestPromoteIntRules(t *testing.T) {
	tests := []struct {
		a, b Type
		want Type
		ok   bool
	}{
		{MakeInt(1, false), MakeInt(4, false), MakeInt(4, false), true},
		{MakeInt(2, true), MakeInt(8, true), MakeInt(8, true), true},
		{MakeInt(1, false), MakeInt(1, true), MakeInt(2, true), true},
		{MakeInt(4, false), MakeInt(1, true), MakeInt(8, true), true},
		{MakeInt(2, false), MakeInt(8, true), MakeInt(8, true), true},
		{MakeInt(8, false), MakeInt(1, true), Type{}, false},
	}
	for _, tt := range tests {
		got, ok := PromoteInt(tt.a, tt.b)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Fatalf("PromoteInt(%+v,%+v) = %+v,%v; want %+v,%v", tt.a, tt.b, got, ok, tt.want, tt.ok)
		}
	}
}

func TestInternerStableIDs(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	if b.None != None {
		t.Fatalf("none must be slot 0, got %d", b.None)
	}
	if in.Int(8, true) != b.Int64 || in.Int(1, false) != b.Uint8 {
		t.Fatalf("integer interning not stable")
	}
	if in.Intern(Type{Kind: KindNone, Size: 4}) != None {
		t.Fatalf("none descriptors must collapse")
	}
	p := in.Pointer(b.Int32, ASKernel)
	if in.WithAS(p, ASUser) == p || in.Strip(in.WithAS(p, ASUser)) != in.Pointer(b.Int32, ASNone) {
		t.Fatalf("address space must be part of identity")
	}
	if !in.Equal(p, in.WithAS(p, ASUser)) {
		t.Fatalf("Equal must ignore address space")
	}
}

func TestTuplesAndRecords(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	t1 := in.Tuple([]TypeID{b.Uint8, in.String(4)})
	t2 := in.Tuple([]TypeID{b.Uint8, in.String(4)})
	if t1 != t2 {
		t.Fatalf("identical tuples must share an id")
	}
	tup := in.Tuple([]TypeID{b.Uint8, b.Int64})
	info, _ := in.TupleInfo(tup)
	if info.Offsets[1] != 8 || in.Size(tup) != 16 {
		t.Fatalf("tuple layout: offsets=%v size=%d", info.Offsets, in.Size(tup))
	}

	foo := in.LookupOrAddStruct("struct foo")
	if in.HasStruct("struct foo") {
		t.Fatalf("placeholder must not count as defined")
	}
	in.DefineStruct(foo, []Field{{Name: "x", Type: b.Int32}, {Name: "y", Type: b.Int64, Offset: 8}}, 16)
	if again := in.LookupOrAddStruct("struct foo"); again != foo || !in.HasStruct("struct foo") {
		t.Fatalf("registry lost struct foo")
	}
	if in.Size(foo) != 16 || Label(in, foo) != "struct foo" {
		t.Fatalf("struct foo: size=%d label=%s", in.Size(foo), Label(in, foo))
	}
	r1 := in.AnonRecord([]Field{{Name: "a", Type: b.Int8}})
	r2 := in.AnonRecord([]Field{{Name: "a", Type: b.Int8}})
	if r1 != r2 {
		t.Fatalf("identical anonymous records must share an id")
	}
}

func TestPromote(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()

	if got, ok := in.Promote(None, b.Int8); !ok || got != b.Int8 {
		t.Fatalf("none must be the identity")
	}
	if got, ok := in.Promote(b.Uint8, b.Int8); !ok || got != b.Int16 {
		t.Fatalf("uint8|int8 = %s", Label(in, got))
	}
	if got, _ := in.Promote(in.String(4), in.String(16)); got != in.String(16) {
		t.Fatalf("longest string must win")
	}
	ta := in.Tuple([]TypeID{b.Int8, in.String(2)})
	tb := in.Tuple([]TypeID{b.Int64, in.String(8)})
	if got, ok := in.Promote(ta, tb); !ok || got != tb {
		t.Fatalf("tuple promotion = %s", Label(in, got))
	}
	if _, ok := in.Promote(b.Int8, in.String(4)); ok {
		t.Fatalf("int and string must not promote")
	}
	foo := in.LookupOrAddStruct("struct foo")
	bar := in.LookupOrAddStruct("struct bar")
	if _, ok := in.Promote(foo, bar); ok {
		t.Fatalf("differently named records must not promote")
	}
	ra := in.AnonRecord([]Field{{Name: "x", Type: b.Int8}, {Name: "y", Type: b.Uint8}})
	rb := in.AnonRecord([]Field{{Name: "y", Type: b.Uint32}, {Name: "x", Type: b.Int8}})
	got, ok := in.Promote(ra, rb)
	info, _ := in.RecordInfo(got)
	if !ok || info.Fields[0].Name != "x" || info.Fields[1].Type != b.Uint32 {
		t.Fatalf("record promotion = %s", Label(in, got))
	}
}

func TestMapWideningMonotonic(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	stored, _ := in.Promote(None, b.Int8)
	stored, _ = in.Promote(stored, b.Int64)
	if in.Widen(stored) != b.Int64 {
		t.Fatalf("expected int64, got %s", Label(in, in.Widen(stored)))
	}
	stored, _ = in.Promote(stored, b.Int8)
	if stored != b.Int64 {
		t.Fatalf("promotion narrowed to %s", Label(in, stored))
	}
	if in.Widen(in.Tuple([]TypeID{b.Uint8, in.String(3)})) != in.Tuple([]TypeID{b.Uint64, in.String(3)}) {
		t.Fatalf("tuple widening")
	}
}

func TestFitsInto(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	cases := []struct {
		from, to TypeID
		want     bool
	}{
		{b.Uint8, b.Uint64, true},
		{b.Uint32, b.Int32, false},
		{b.Uint32, b.Int64, true},
		{b.Int8, b.Uint64, false},
		{in.String(4), in.String(8), true},
		{in.String(8), in.String(4), false},
	}
	for _, c := range cases {
		if got := in.FitsInto(c.from, c.to); got != c.want {
			t.Fatalf("FitsInto(%s,%s) = %v", Label(in, c.from), Label(in, c.to), got)
		}
	}
}

func TestLiteralTyping(t *testing.T) {
	tests := []struct {
		mag  uint64
		neg  bool
		want Type
	}{
		{0, false, MakeInt(1, false)},
		{255, false, MakeInt(1, false)},
		{256, false, MakeInt(2, false)},
		{1 << 40, false, MakeInt(8, false)},
		{1, true, MakeInt(1, true)},
		{128, true, MakeInt(1, true)},
		{129, true, MakeInt(2, true)},
	}
	for _, tt := range tests {
		if got := LiteralType(tt.mag, tt.neg); got != tt.want {
			t.Fatalf("LiteralType(%d,%v) = %+v", tt.mag, tt.neg, got)
		}
	}
	if !LiteralFits(127, false, MakeInt(1, true)) || LiteralFits(128, false, MakeInt(1, true)) {
		t.Fatalf("int8 positive bound")
	}
	if !LiteralFits(128, true, MakeInt(1, true)) || LiteralFits(1, true, MakeInt(8, false)) {
		t.Fatalf("negative bounds")
	}
}

func TestLabels(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	cases := map[TypeID]string{
		b.Int64:                                   "int64",
		b.Uint8:                                   "uint8",
		in.String(16):                             "string[16]",
		in.Pointer(b.Int32, ASKernel):             "int32 *",
		in.Array(b.Uint8, 4):                      "uint8[4]",
		in.Tuple([]TypeID{b.Int64, b.Uint8}):      "(int64,uint8)",
		in.Intern(MakeAggregate(KindHist, false)): "hist_t",
		in.Intern(MakeAggregate(KindSum, false)):  "usum_t",
		None:                                      "none",
	}
	for id, want := range cases {
		if got := Label(in, id); got != want {
			t.Fatalf("Label = %q; want %q", got, want)
		}
	}
}
