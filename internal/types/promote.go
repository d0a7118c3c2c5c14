package types

// PromoteInt returns the common integer type of a and b.
//
// Same-sign operands promote to the larger width. With differing signs the
// result is signed and wide enough for the unsigned side (twice its width),
// capped at 8 bytes: promoting uint64 with any signed type fails.
func PromoteInt(a, b Type) (Type, bool) {
	if a.Signed == b.Signed {
		return MakeInt(max(a.Size, b.Size), a.Signed), true
	}
	signed, unsigned := a, b
	if !a.Signed {
		signed, unsigned = b, a
	}
	if unsigned.Size*2 > 8 {
		return Type{}, false
	}
	return MakeInt(max(signed.Size, unsigned.Size*2), true), true
}

// PromoteIntID is PromoteInt on interned ids. The address space of a wins,
// falling back to b's.
func (in *Interner) PromoteIntID(a, b TypeID) (TypeID, bool) {
	ta, tb := in.MustLookup(a), in.MustLookup(b)
	p, ok := PromoteInt(ta, tb)
	if !ok {
		return None, false
	}
	p.AS = ta.AS
	if p.AS == ASNone {
		p.AS = tb.AS
	}
	return in.Intern(p), true
}

// Promote computes the least type both a and b can be stored in. It is the
// join used for map keys and values, variables and ternary arms: integers
// follow PromoteInt, strings and buffers take the longer size, tuples and
// anonymous records promote element by element. None joins as identity.
func (in *Interner) Promote(a, b TypeID) (TypeID, bool) {
	if a == None {
		return b, true
	}
	if b == None || a == b {
		return a, true
	}
	ta, tb := in.MustLookup(a), in.MustLookup(b)
	if ta.Kind != tb.Kind {
		return None, false
	}
	switch ta.Kind {
	case KindInt:
		return in.PromoteIntID(a, b)
	case KindString, KindBuffer:
		if tb.Size > ta.Size {
			return b, true
		}
		return a, true
	case KindTuple:
		ea, eb := in.TupleElems(a), in.TupleElems(b)
		if len(ea) != len(eb) {
			return None, false
		}
		out := make([]TypeID, len(ea))
		for i := range ea {
			p, ok := in.Promote(ea[i], eb[i])
			if !ok {
				return None, false
			}
			out[i] = p
		}
		return in.withOuter(in.Tuple(out), ta), true
	case KindRecord:
		return in.promoteRecord(a, b, ta)
	case KindCount, KindSum, KindMin, KindMax, KindAvg, KindStats, KindHist, KindLHist, KindTSeries:
		if ta.Signed || !tb.Signed {
			return a, true
		}
		return b, true
	}
	if in.Equal(a, b) {
		return a, true
	}
	return None, false
}

func (in *Interner) promoteRecord(a, b TypeID, ta Type) (TypeID, bool) {
	ra, _ := in.RecordInfo(a)
	rb, _ := in.RecordInfo(b)
	if ra == nil || rb == nil {
		return None, false
	}
	if ra.Name != "" || rb.Name != "" {
		if in.Equal(a, b) {
			return a, true
		}
		return None, false
	}
	if len(ra.Fields) != len(rb.Fields) {
		return None, false
	}
	fields := make([]Field, len(ra.Fields))
	for i, fa := range ra.Fields {
		fb, ok := rb.Field(fa.Name)
		if !ok {
			return None, false
		}
		p, ok := in.Promote(fa.Type, fb.Type)
		if !ok {
			return None, false
		}
		fields[i] = Field{Name: fa.Name, Type: p}
	}
	return in.withOuter(in.AnonRecord(fields), ta), true
}

func (in *Interner) withOuter(id TypeID, outer Type) TypeID {
	if outer.Flags != 0 {
		id = in.WithFlags(id, outer.Flags)
	}
	if outer.AS != ASNone {
		id = in.WithAS(id, outer.AS)
	}
	return id
}

// FitsInto reports whether a value of type from can be stored in to
// without loss.
func (in *Interner) FitsInto(from, to TypeID) bool {
	if from == to {
		return true
	}
	tf, tt := in.MustLookup(from), in.MustLookup(to)
	if tf.Kind != tt.Kind {
		return false
	}
	switch tf.Kind {
	case KindInt:
		switch {
		case tf.Signed == tt.Signed:
			return tf.Size <= tt.Size
		case !tf.Signed:
			return tf.Size < tt.Size
		}
		return false
	case KindString, KindBuffer:
		return tf.Size <= tt.Size
	case KindTuple:
		ef, et := in.TupleElems(from), in.TupleElems(to)
		if len(ef) != len(et) {
			return false
		}
		for i := range ef {
			if !in.FitsInto(ef[i], et[i]) {
				return false
			}
		}
		return true
	case KindRecord:
		rf, _ := in.RecordInfo(from)
		rt, _ := in.RecordInfo(to)
		if rf == nil || rt == nil {
			return false
		}
		if rf.Name != "" || rt.Name != "" || len(rf.Fields) != len(rt.Fields) {
			return in.Equal(from, to)
		}
		for _, f := range rf.Fields {
			target, ok := rt.Field(f.Name)
			if !ok || !in.FitsInto(f.Type, target.Type) {
				return false
			}
		}
		return true
	}
	return in.Equal(from, to)
}

// Widen returns the storage form used for map keys and values: integers
// become 8 bytes wide, tuple elements are widened recursively.
func (in *Interner) Widen(id TypeID) TypeID {
	t := in.MustLookup(id)
	switch t.Kind {
	case KindInt:
		if t.Size == 8 {
			return id
		}
		t.Size = 8
		return in.Intern(t)
	case KindTuple:
		elems := in.TupleElems(id)
		out := make([]TypeID, len(elems))
		changed := false
		for i, e := range elems {
			out[i] = in.Widen(e)
			changed = changed || out[i] != e
		}
		if !changed {
			return id
		}
		return in.withOuter(in.Tuple(out), t)
	}
	return id
}
