package sema

import (
	"tracec/internal/ast"
	"tracec/internal/diag"
	"tracec/internal/source"
	"tracec/internal/types"
)

// MapShape records whether a map is indexed.
type MapShape uint8

const (
	ShapeUnknown MapShape = iota
	ShapeScalar
	ShapeKeyed
)

// MapInfo is the single key and value type every use of a map agrees on.
// Key and Value hold the joined natural types; the stored forms are
// returned by KeyType and ValueType.
type MapInfo struct {
	Name string
	// Span is the first use or the declaration.
	Span  source.Span
	Shape MapShape
	Key   types.TypeID
	Value types.TypeID

	// Decl is the `let @m = kind(n);` item, if any.
	Decl       ast.ItemID
	BpfType    string
	MaxEntries uint64

	Used     bool
	Assigned bool
}

// KeyType is the stored key type; scalar maps are keyed by int64.
func (m *MapInfo) KeyType(in *types.Interner) types.TypeID {
	if m.Shape != ShapeKeyed {
		return in.Builtins().Int64
	}
	if m.Key == types.None {
		return types.None
	}
	return in.Widen(m.Key)
}

// ValueType is the stored value type.
func (m *MapInfo) ValueType(in *types.Interner) types.TypeID {
	if m.Value == types.None {
		return types.None
	}
	return in.Widen(m.Value)
}

// aggregateHints show how each aggregate is produced.
var aggregateHints = map[types.Kind]string{
	types.KindCount:   "count()",
	types.KindSum:     "sum(retval)",
	types.KindMin:     "min(retval)",
	types.KindMax:     "max(retval)",
	types.KindAvg:     "avg(retval)",
	types.KindHist:    "hist(retval)",
	types.KindLHist:   "lhist(rand %10, 0, 10, 1)",
	types.KindTSeries: "tseries(rand %10, 10s, 1)",
	types.KindStats:   "stats(arg2)",
}

// collectDecls registers declared maps before the first iteration.
func (r *resolver) collectDecls() {
	for _, item := range r.b.MapDecls(r.file) {
		decl, _ := r.b.Items.MapDecl(item)
		m := r.mapInfo(decl.Name, r.b.Items.Get(item).Span)
		m.Decl, m.BpfType, m.MaxEntries = item, decl.BpfType, decl.MaxEntries
	}
}

func (r *resolver) mapInfo(name string, span source.Span) *MapInfo {
	m := r.maps[name]
	if m == nil {
		m = &MapInfo{Name: name, Span: span}
		r.maps[name] = m
	}
	return m
}

// useMap returns the map entity for a use site.
func (r *resolver) useMap(name string, span source.Span) *MapInfo {
	m := r.mapInfo(name, span)
	m.Used = true
	return m
}

// checkShape enforces that a map is either always or never indexed.
func (r *resolver) checkShape(id ast.ExprID, m *MapInfo, keyed bool) bool {
	want := ShapeScalar
	if keyed {
		want = ShapeKeyed
	}
	if m.Shape == ShapeUnknown {
		m.Shape = want
		return true
	}
	if m.Shape == want {
		return true
	}
	if keyed {
		md, _ := r.exprs.Map(id)
		kt := r.natural(md.Key)
		if kt == types.None {
			return false
		}
		r.fail(id, diag.MapKeyMismatch, "Argument mismatch for %s: trying to access with arguments: '%s' when map expects no arguments",
			m.Name, r.label(r.in.Widen(kt)))
		return false
	}
	if m.Key == types.None {
		return false
	}
	r.fail(id, diag.MapKeyMismatch, "Argument mismatch for %s: trying to access with no arguments when map expects arguments: '%s'",
		m.Name, r.label(m.KeyType(r.in)))
	return false
}

// validKey reports whether values of t may index a map.
func (r *resolver) validKey(t types.TypeID) bool {
	tt := r.in.MustLookup(t)
	switch tt.Kind {
	case types.KindVoid, types.KindNone, types.KindStackMode, types.KindTimestampMode:
		return false
	case types.KindPointer:
		return !tt.IsCtxAccess()
	}
	return !tt.IsAggregate()
}

// reconcileKey joins the key at a site into the map and casts the site to
// the stored key type.
func (r *resolver) reconcileKey(id ast.ExprID, m *MapInfo, key ast.ExprID) bool {
	kt := r.natural(key)
	if kt == types.None {
		return false
	}
	if !r.validKey(kt) {
		r.fail(key, diag.MapInvalidKey, "Invalid map key type: %s", r.label(kt))
		return false
	}
	if m.Key == types.None {
		m.Key = kt
	} else {
		joined, ok := r.in.Promote(m.Key, kt)
		if !ok {
			r.deferf(id, diag.MapKeyMismatch,
				"Argument mismatch for %s: trying to access with arguments: '%s' when map expects arguments: '%s'",
				m.Name, r.label(r.in.Widen(kt)), r.label(m.KeyType(r.in)))
			return false
		}
		m.Key = joined
	}
	r.coerce(key, m.KeyType(r.in))
	return true
}

// visitMapRead types `@m` or `@m[k]` read as a value.
func (r *resolver) visitMapRead(id ast.ExprID) {
	md, _ := r.exprs.Map(id)
	name, key := md.Name, md.Key
	m := r.useMap(name, r.exprs.Span(id))
	if key.IsValid() {
		r.visit(key)
	}
	if !r.checkShape(id, m, key.IsValid()) {
		return
	}
	if key.IsValid() && !r.reconcileKey(id, m, key) {
		return
	}
	if m.Value == types.None {
		if r.final && !m.Assigned {
			r.fail(id, diag.MapUndefined, "Undefined map: %s", name)
		}
		return
	}
	r.exprs.SetType(id, m.ValueType(r.in))
}

// visitWholeMap types a map passed as a whole (delete, clear, print,
// for-loops); no key is involved.
func (r *resolver) visitWholeMap(id ast.ExprID) *MapInfo {
	md, _ := r.exprs.Map(id)
	if md.Key.IsValid() {
		r.visit(md.Key)
		r.fail(id, diag.MapKeyMismatch, "%s expects a map without explicit keys", md.Name)
		return nil
	}
	m := r.useMap(md.Name, r.exprs.Span(id))
	if m.Value == types.None {
		if r.final && !m.Assigned {
			r.fail(id, diag.MapUndefined, "Undefined map: %s", md.Name)
		}
		return m
	}
	r.exprs.SetType(id, m.ValueType(r.in))
	return m
}

// visitAssignMap handles `@m[k] = v`.
func (r *resolver) visitAssignMap(st ast.StmtID) {
	d, _ := r.stmts.AssignMap(st)
	target, value := d.Map, d.Value
	md, _ := r.exprs.Map(target)
	name, key := md.Name, md.Key
	m := r.useMap(name, r.exprs.Span(target))
	m.Assigned = true

	saved := r.mapValue
	r.mapValue = value
	r.visit(value)
	r.mapValue = saved
	if key.IsValid() {
		r.visit(key)
	}
	keyOK := r.checkShape(target, m, key.IsValid())
	if keyOK && key.IsValid() {
		keyOK = r.reconcileKey(target, m, key)
	}

	vt := r.natural(value)
	if vt == types.None {
		return
	}
	if r.assignValue(st, target, m, value, vt) && keyOK {
		r.exprs.SetType(target, m.ValueType(r.in))
	}
}

// assignValue joins a stored value into the map.
func (r *resolver) assignValue(st ast.StmtID, target ast.ExprID, m *MapInfo, value ast.ExprID, vt types.TypeID) bool {
	in := r.in
	tt := in.MustLookup(vt)
	span := r.stmts.Span(st)

	switch tt.Kind {
	case types.KindVoid, types.KindStackMode, types.KindTimestampMode:
		r.errorf(diag.MapValueMismatch, span, "Value '%s' cannot be assigned to a map.", r.label(vt))
		r.poison(target)
		return false
	case types.KindPointer:
		if tt.IsCtxAccess() {
			r.errorf(diag.TypContextAssign, span, "Context cannot be assigned to a map")
			r.poison(target)
			return false
		}
	}

	// агрегат, прочитанный из другой карты
	if tt.IsAggregate() && r.exprs.Kind(r.unwrapImplicit(value)) == ast.ExprMap {
		if tt.IsCastableMap() && m.Value != types.None && in.Kind(m.Value) == types.KindInt {
			r.coerce(value, m.ValueType(in))
			return true
		}
		b := diag.ReportError(r.rep, diag.MapAggregateCopy, span,
			"Map value '"+r.label(vt)+"' cannot be assigned from one map to another. "+
				"The function that returns this type must be called directly e.g. `"+m.Name+" = "+aggregateHints[tt.Kind]+";`.")
		if tt.IsCastableMap() {
			md, _ := r.exprs.Map(r.unwrapImplicit(value))
			b = b.WithHint("Add a cast to integer if you want the value of the aggregate, e.g. `" + m.Name + " = (int64)" + md.Name + ";`.")
		}
		b.Emit()
		r.poison(target)
		return false
	}

	mismatch := func() bool {
		r.deferf(target, diag.MapValueMismatch,
			"Type mismatch for %s: trying to assign value of type '%s' when map already has a type '%s'",
			m.Name, r.label(vt), r.label(m.ValueType(in)))
		return false
	}
	if m.Value == types.None {
		m.Value = r.stored(vt)
	} else {
		cur := in.MustLookup(m.Value)
		if cur.IsAggregate() != tt.IsAggregate() || (cur.IsAggregate() && cur.Kind != tt.Kind) {
			return mismatch()
		}
		joined, ok := in.Promote(m.Value, vt)
		if !ok {
			return mismatch()
		}
		m.Value = r.stored(joined)
	}
	if !tt.IsAggregate() {
		r.coerce(value, m.ValueType(in))
	}
	return true
}

// stored marks records and arrays kept in map memory as internal.
func (r *resolver) stored(t types.TypeID) types.TypeID {
	switch r.in.Kind(t) {
	case types.KindRecord, types.KindArray:
		return r.in.WithFlags(t, types.FlagInternal)
	}
	return t
}
