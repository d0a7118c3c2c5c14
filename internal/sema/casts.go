package sema

import (
	"strings"

	"tracec/internal/ast"
	"tracec/internal/meta"
	"tracec/internal/types"
)

// knownAlias suggests the spelling of a C integer name.
func knownAlias(name string) (string, bool) {
	alias, ok := meta.KnownTypeAliases[strings.TrimSpace(name)]
	return alias, ok
}

// coerce makes id produce target. Literals are retyped in place, tuple and
// record literals element by element, blocks and conditionals through
// their values. Tuple and record reads of variables and maps are expanded
// into element reads; anything else is wrapped in an implicit cast.
func (r *resolver) coerce(id ast.ExprID, target types.TypeID) {
	if !id.IsValid() || target == types.None {
		return
	}
	exprs := r.exprs
	in := r.in
	cur := exprs.TypeOf(id)
	if cur == types.None || cur == target {
		return
	}
	tt := in.MustLookup(target)

	switch exprs.Kind(id) {
	case ast.ExprCast:
		cd, _ := exprs.Cast(id)
		if cd.Implicit {
			inner := cd.Value
			if exprs.Kind(inner) == ast.ExprInteger && r.literalFits(inner, target) {
				exprs.SetType(inner, target)
			}
			exprs.SetType(id, target)
			return
		}
	case ast.ExprInteger:
		if r.literalFits(id, target) {
			exprs.SetType(id, target)
			return
		}
	case ast.ExprString:
		if tt.Kind == types.KindString && in.Size(cur) <= tt.Size {
			exprs.SetType(id, target)
			return
		}
	case ast.ExprTuple:
		if tt.Kind == types.KindTuple {
			td, _ := exprs.Tuple(id)
			elems := append([]ast.ExprID(nil), td.Elems...)
			want := in.TupleElems(target)
			if len(elems) == len(want) {
				for i, e := range elems {
					r.coerce(e, want[i])
				}
				exprs.SetType(id, target)
				return
			}
		}
	case ast.ExprRecord:
		if r.coerceRecord(id, target) {
			return
		}
	case ast.ExprBlock:
		blk, _ := exprs.Block(id)
		if value := blk.Value; value.IsValid() {
			r.coerce(value, target)
			exprs.SetType(id, target)
			return
		}
	case ast.ExprIf:
		d := *mustIf(exprs, id)
		if d.Else.IsValid() {
			r.coerce(d.Then, target)
			r.coerce(d.Else, target)
			exprs.SetType(id, target)
			return
		}
	}

	if in.Equal(cur, target) {
		return
	}
	if r.expandAggregate(id, cur, target) {
		return
	}
	exprs.Wrap(id, target)
}

// expandAggregate rewrites a read of a tuple or anonymous record into a
// literal of element reads, each coerced to its slot of target. Only reads
// that are safe to repeat are expanded.
func (r *resolver) expandAggregate(id ast.ExprID, cur, target types.TypeID) bool {
	exprs, in := r.exprs, r.in
	if !r.repeatable(id) {
		return false
	}
	span := exprs.Span(id)
	switch in.Kind(target) {
	case types.KindTuple:
		have, want := in.TupleElems(cur), in.TupleElems(target)
		if len(have) == 0 || len(have) != len(want) {
			return false
		}
		elems := make([]ast.ExprID, len(want))
		for i := range want {
			read := exprs.NewTupleIndex(span, r.cloneRead(id), uint32(i))
			exprs.SetType(read, have[i])
			elems[i] = read
		}
		tuple := exprs.NewTuple(span, elems)
		exprs.SetType(tuple, cur)
		exprs.Replace(id, tuple)
		for i, e := range elems {
			r.coerce(e, want[i])
		}
		exprs.SetType(id, target)
		return true
	case types.KindRecord:
		have, ok := in.RecordInfo(cur)
		want, ok2 := in.RecordInfo(target)
		if !ok || !ok2 || have.Name != "" || want.Name != "" || len(have.Fields) != len(want.Fields) {
			return false
		}
		byName := make(map[string]types.TypeID, len(have.Fields))
		for _, f := range have.Fields {
			byName[f.Name] = f.Type
		}
		for _, f := range want.Fields {
			if _, ok := byName[f.Name]; !ok {
				return false
			}
		}
		fields := make([]ast.NamedExpr, 0, len(want.Fields))
		for _, f := range want.Fields {
			read := exprs.NewField(span, r.cloneRead(id), f.Name)
			exprs.SetType(read, byName[f.Name])
			fields = append(fields, ast.NamedExpr{Name: f.Name, Span: span, Expr: read})
		}
		record := exprs.NewRecord(span, fields)
		exprs.SetType(record, cur)
		exprs.Replace(id, record)
		for i, f := range want.Fields {
			r.coerce(fields[i].Expr, f.Type)
		}
		exprs.SetType(id, target)
		return true
	}
	return false
}

// repeatable reports whether id is a variable read or a map read keyed by
// a leaf, so reading it again has no effects.
func (r *resolver) repeatable(id ast.ExprID) bool {
	switch r.exprs.Kind(id) {
	case ast.ExprVariable:
		return true
	case ast.ExprMap:
		m, _ := r.exprs.Map(id)
		if !m.Key.IsValid() {
			return true
		}
		switch r.exprs.Kind(m.Key) {
		case ast.ExprInteger, ast.ExprString, ast.ExprBoolean, ast.ExprVariable, ast.ExprBuiltin:
			return true
		}
	}
	return false
}

// cloneRead copies a repeatable read into a fresh node of the same type.
func (r *resolver) cloneRead(id ast.ExprID) ast.ExprID {
	exprs := r.exprs
	span := exprs.Span(id)
	var out ast.ExprID
	if m, ok := exprs.Map(id); ok {
		key := ast.NoExprID
		if m.Key.IsValid() {
			key = exprs.Move(m.Key)
		}
		out = exprs.NewMap(span, m.Name, key)
	} else {
		v, _ := exprs.Variable(id)
		out = exprs.NewVariable(span, v.Name)
	}
	exprs.SetType(out, exprs.TypeOf(id))
	return out
}
