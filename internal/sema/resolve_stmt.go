package sema

import (
	"sort"

	"tracec/internal/ast"
	"tracec/internal/diag"
	"tracec/internal/source"
	"tracec/internal/types"
)

func (r *resolver) visitStmt(st ast.StmtID) {
	stmts := r.stmts
	switch stmts.Kind(st) {
	case ast.StmtExpr:
		d, _ := stmts.Expr(st)
		r.visit(d.Expr)
	case ast.StmtVarDecl:
		r.visitVarDecl(st)
	case ast.StmtAssignVar:
		r.visitAssignVar(st)
	case ast.StmtAssignMap:
		r.visitAssignMap(st)
	case ast.StmtJump:
		r.visitJump(st)
	case ast.StmtWhile:
		d := *mustWhile(stmts, st)
		r.visit(d.Cond)
		r.checkCondition(d.Cond, "while")
		r.visit(d.Body)
	case ast.StmtFor:
		r.visitFor(st)
	case ast.StmtUnroll:
		r.visitUnroll(st)
	default:
		r.errorf(diag.BugInternal, stmts.Span(st), "unexpected %s statement", stmts.Kind(st))
	}
}

func mustWhile(stmts *ast.Stmts, id ast.StmtID) *ast.WhileData {
	d, _ := stmts.While(id)
	return d
}

// Variables -----------------------------------------------------------------

// validDeclType reports types a scratch variable may be declared with.
func validDeclType(t types.Type) bool {
	if t.IsAggregate() {
		return false
	}
	switch t.Kind {
	case types.KindVoid, types.KindStackMode:
		return false
	}
	return true
}

func (r *resolver) visitVarDecl(st ast.StmtID) {
	d := *mustVarDecl(r.stmts, st)
	vd, _ := r.exprs.Variable(d.Var)
	name := vd.Name
	span := r.stmts.Span(st)
	scope := r.innermost()

	if r.first {
		for i := len(r.scopes) - 1; i >= 0; i-- {
			prev := r.vars[r.scopes[i]][name]
			if prev == nil || prev.DeclStmt == st {
				continue
			}
			if prev.Declared {
				diag.ReportError(r.rep, diag.TypVarRedeclared, span,
					"Variable "+name+" was already declared. Variable shadowing is not allowed.").
					WithNote(prev.Span, "This is the initial declaration.").
					Emit()
			} else {
				r.errorf(diag.TypVarDeclAfterUse, span,
					"Variable declarations need to occur before variable usage or assignment. Variable: %s", name)
			}
			return
		}
	}

	v := r.vars[scope][name]
	if v == nil || v.DeclStmt != st {
		v = r.newVar(name, scope, span)
		v.Declared, v.DeclStmt = true, st
		if d.TypeName != "" {
			t, err := r.imp.Parse(d.TypeName)
			switch {
			case err != nil:
				b := diag.ReportError(r.rep, diag.TypUnknownType, span, "Cannot resolve unknown type \""+d.TypeName+"\"")
				if alias, ok := knownAlias(d.TypeName); ok {
					b = b.WithHint("Did you mean \"" + alias + "\"?")
				}
				b.Emit()
			case !validDeclType(r.in.MustLookup(t)):
				r.errorf(diag.TypInvalidVarDecl, span, "Invalid variable declaration type: %s", r.label(t))
			default:
				v.Type = t
				v.CanResize = r.in.Size(t) == 0
			}
		}
	}
	if v.Type != types.None {
		r.exprs.SetType(d.Var, v.Type)
	}
}

func mustVarDecl(stmts *ast.Stmts, id ast.StmtID) *ast.VarDeclData {
	d, _ := stmts.VarDecl(id)
	return d
}

func (r *resolver) visitAssignVar(st ast.StmtID) {
	d := *mustAssignVar(r.stmts, st)
	vd, _ := r.exprs.Variable(d.Var)
	name := vd.Name
	span := r.stmts.Span(st)

	r.visit(d.Value)

	v, _ := r.lookupVar(name)
	if v == nil {
		v = r.newVar(name, r.innermost(), r.exprs.Span(d.Var))
	}
	v.Assigned = true

	vt := r.natural(d.Value)
	if vt == types.None {
		return
	}
	in := r.in
	tt := in.MustLookup(vt)
	if tt.IsAggregate() {
		if !tt.IsCastableMap() || r.exprs.Kind(r.unwrapImplicit(d.Value)) != ast.ExprMap {
			b := diag.ReportError(r.rep, diag.TypAggregateToVar, span,
				"Map value '"+r.label(vt)+"' cannot be assigned to a scratch variable.")
			if hint, ok := aggregateHints[tt.Kind]; ok {
				b = b.WithHint("The function that returns this type must be called directly and assigned to a map, e.g. `@x = " + hint + ";`.")
			}
			b.Emit()
			r.poison(d.Var)
			return
		}
		// значение счётчика читается как int64
		vt = in.Builtins().Int64
		r.coerce(d.Value, vt)
	}
	switch tt.Kind {
	case types.KindVoid, types.KindStackMode:
		r.errorf(diag.TypAssignMismatch, span, "Value '%s' cannot be assigned to a scratch variable.", r.label(vt))
		r.poison(d.Var)
		return
	}

	if !r.assignVarType(st, v, d.Value, vt) {
		r.poison(d.Var)
		return
	}
	r.coerce(d.Value, v.Type)
	r.exprs.SetType(d.Var, v.Type)
}

func mustAssignVar(stmts *ast.Stmts, id ast.StmtID) *ast.AssignVarData {
	d, _ := stmts.AssignVar(id)
	return d
}

// assignVarType joins vt into the variable. Variables keep their natural
// width; resizable ones grow, fixed ones only accept what fits.
func (r *resolver) assignVarType(st ast.StmtID, v *VarInfo, value ast.ExprID, vt types.TypeID) bool {
	in := r.in
	span := r.stmts.Span(st)
	mismatch := func() bool {
		r.errorf(diag.TypAssignMismatch, span,
			"Type mismatch for %s: trying to assign value of type '%s' when variable already has a type '%s'",
			v.Name, r.label(vt), r.label(v.Type))
		return false
	}
	if v.Type == types.None {
		v.Type = vt
		return true
	}
	cur, next := in.MustLookup(v.Type), in.MustLookup(vt)
	if v.CanResize {
		if next.Kind == types.KindBuffer && cur.Kind == types.KindBuffer {
			r.bufferSizes(span, cur.Size, next.Size)
		}
		joined, ok := in.Promote(v.Type, vt)
		if !ok {
			return mismatch()
		}
		v.Type = joined
		return true
	}

	switch {
	case cur.Kind != next.Kind && !(cur.Kind == types.KindInt && next.IsIntegerLike()):
		return mismatch()
	case cur.Kind == types.KindInt:
		if lit, ok := r.exprs.Integer(value); ok {
			if !types.LiteralFits(lit.Value, lit.Negative, cur) {
				sign := ""
				if lit.Negative {
					sign = "-"
				}
				r.errorf(diag.TypValueTooLarge, span,
					"Type mismatch for %s: trying to assign value '%s%d' which does not fit into the variable of type '%s'",
					v.Name, sign, lit.Value, r.label(v.Type))
				return false
			}
			return true
		}
		iv := in.MustLookup(r.intView(vt))
		if iv.Signed != cur.Signed {
			return mismatch()
		}
		if iv.Size > cur.Size {
			r.errorf(diag.TypValueTooLarge, span,
				"Integer size mismatch. Assignment type '%s' is larger than the variable type '%s'.",
				r.label(vt), r.label(v.Type))
			return false
		}
	case cur.Kind == types.KindString:
		if next.Size > cur.Size {
			return mismatch()
		}
	case cur.Kind == types.KindBuffer:
		r.bufferSizes(span, cur.Size, next.Size)
	case cur.Kind == types.KindTuple || cur.Kind == types.KindRecord:
		if !in.FitsInto(vt, v.Type) {
			if r.final {
				return mismatch()
			}
			r.unresolved++
			return false
		}
	default:
		if !in.Equal(vt, v.Type) {
			return mismatch()
		}
	}
	return true
}

func (r *resolver) bufferSizes(span source.Span, have, got uint32) {
	if have == got {
		return
	}
	tail := ". The value may contain garbage."
	if have < got {
		tail = ". The value may be truncated."
	}
	r.warnf(diag.TypBufferSize, span, "Buffer size mismatch: %d != %d%s", have, got, tail)
}

// Jumps ---------------------------------------------------------------------

func (r *resolver) visitJump(st ast.StmtID) {
	d := *mustJump(r.stmts, st)
	if d.Kind != ast.JumpReturn {
		return
	}
	r.visit(d.Value)
	in := r.in
	if r.subprog == nil {
		if d.Value.IsValid() {
			t := r.exprs.TypeOf(d.Value)
			if t != types.None && in.Kind(t) == types.KindInt && in.Size(t) != 8 {
				r.coerce(d.Value, in.WithSign(in.Builtins().Int64, in.MustLookup(t).Signed))
			}
		}
		return
	}
	ret := r.subprog.ReturnType
	if ret == types.None {
		return
	}
	span := r.stmts.Span(st)
	void := in.Builtins().Void
	if !d.Value.IsValid() {
		if in.Kind(ret) != types.KindVoid {
			r.errorf(diag.TypReturnMismatch, span, "Function %s is of type %s, cannot return %s",
				r.subprog.Name, r.label(ret), r.label(void))
		}
		return
	}
	vt := r.natural(d.Value)
	if vt == types.None {
		return
	}
	if !r.returnFits(d.Value, vt, ret) {
		r.errorf(diag.TypReturnMismatch, span, "Function %s is of type %s, cannot return %s",
			r.subprog.Name, r.label(ret), r.label(vt))
		return
	}
	r.coerce(d.Value, ret)
}

func mustJump(stmts *ast.Stmts, id ast.StmtID) *ast.JumpData {
	d, _ := stmts.Jump(id)
	return d
}

// returnFits decides whether a returned value converts to the declared
// return type without loss.
func (r *resolver) returnFits(value ast.ExprID, vt, ret types.TypeID) bool {
	in := r.in
	if in.Kind(ret) == types.KindVoid {
		return false
	}
	if lit, ok := r.exprs.Integer(value); ok {
		return types.LiteralFits(lit.Value, lit.Negative, in.MustLookup(ret))
	}
	if r.isIntLike(vt) && in.Kind(ret) == types.KindInt {
		return in.FitsInto(r.intView(vt), ret)
	}
	return in.FitsInto(vt, ret) || in.Equal(vt, ret)
}

// Loops ---------------------------------------------------------------------

func (r *resolver) visitFor(st ast.StmtID) {
	d := *mustFor(r.stmts, st)
	in := r.in
	vd, _ := r.exprs.Variable(d.Var)
	name := vd.Name
	span := r.exprs.Span(d.Var)

	varType := types.None
	if d.IsRange() {
		varType = r.rangeType(st, d)
	} else {
		varType = r.mapLoopType(d)
	}

	if r.first {
		if prev, _ := r.lookupVar(name); prev != nil {
			r.errorf(diag.TypLoopShadow, span, "Loop declaration shadows existing variable: %s", name)
		}
	}
	v := r.scope(d.Body)[name]
	if v == nil {
		v = r.newVar(name, d.Body, span)
	}
	v.Declared, v.Assigned, v.CanResize = true, true, false
	v.Type = varType
	if varType != types.None {
		r.exprs.SetType(d.Var, varType)
	}

	lf := &loopFrame{base: len(r.scopes), free: make(map[string]*VarInfo)}
	r.loops = append(r.loops, lf)
	r.visit(d.Body)
	r.loops = r.loops[:len(r.loops)-1]

	names := make([]string, 0, len(lf.free))
	for n := range lf.free {
		names = append(names, n)
	}
	sort.Strings(names)
	fields := make([]types.Field, 0, len(names))
	for _, n := range names {
		t := lf.free[n].Type
		if t == types.None {
			fields = nil
			break
		}
		fields = append(fields, types.Field{Name: n, Type: in.Pointer(t, types.ASBpf)})
	}

	fd := mustFor(r.stmts, st)
	if r.first {
		fd.FreeVars = names
	}
	if fields != nil || len(names) == 0 {
		fd.CtxType = in.AnonRecord(fields)
	}
}

func mustFor(stmts *ast.Stmts, id ast.StmtID) *ast.ForData {
	d, _ := stmts.For(id)
	return d
}

// rangeType types `start..end`; the loop variable takes the joined type of
// both ends.
func (r *resolver) rangeType(st ast.StmtID, d ast.ForData) types.TypeID {
	r.visit(d.RangeStart)
	r.visit(d.RangeEnd)
	if !r.typed(d.RangeStart, d.RangeEnd) {
		return types.None
	}
	for _, end := range []struct {
		id   ast.ExprID
		what string
	}{{d.RangeStart, "start"}, {d.RangeEnd, "end"}} {
		t := r.natural(end.id)
		if r.in.Kind(t) != types.KindInt {
			r.fail(end.id, diag.TypLoopExpr, "Loop range requires an integer for the %s value", end.what)
			return types.None
		}
	}
	joined, _, ok := r.promoteOperands(d.RangeStart, d.RangeEnd)
	if !ok {
		r.errorf(diag.TypLoopExpr, r.stmts.Span(st), "Loop range start and end types are incompatible: %s and %s",
			r.label(r.natural(d.RangeStart)), r.label(r.natural(d.RangeEnd)))
		return types.None
	}
	r.coerce(d.RangeStart, joined)
	r.coerce(d.RangeEnd, joined)
	return joined
}

// mapLoopType types `for ($kv : @m)`; the variable is a (key, value) tuple.
func (r *resolver) mapLoopType(d ast.ForData) types.TypeID {
	iter := d.Iterable
	if r.exprs.Kind(iter) != ast.ExprMap {
		r.visit(iter)
		r.fail(iter, diag.TypLoopExpr, "Loop expression must be a map")
		return types.None
	}
	if !r.opts.Features.ForEachMapElem {
		r.fail(iter, diag.ChkFeatureMissing, "Missing required kernel feature: for_each_map_elem")
		return types.None
	}
	m := r.visitWholeMap(iter)
	if m == nil {
		return types.None
	}
	switch m.Shape {
	case ShapeScalar:
		r.fail(iter, diag.MapLoopNoKeys, "%s has no explicit keys (scalar map), and cannot be used for iteration", m.Name)
		return types.None
	case ShapeUnknown:
		return types.None
	}
	key, value := m.KeyType(r.in), m.ValueType(r.in)
	if key == types.None || value == types.None {
		return types.None
	}
	return r.in.Tuple([]types.TypeID{key, value})
}

func (r *resolver) visitUnroll(st ast.StmtID) {
	d := *mustUnroll(r.stmts, st)
	r.visit(d.Count)
	span := r.stmts.Span(st)
	if r.first || r.final {
		v, ok := r.constant(d.Count)
		switch {
		case !ok || v.kind != constInt:
			if r.final || r.exprs.IsLiteral(d.Count) {
				r.errorf(diag.TypUnroll, span, "invalid unroll value")
			}
		case v.neg || v.mag < 1:
			r.errorf(diag.TypUnroll, span, "unroll minimum value is 1")
		case v.mag > 100:
			r.errorf(diag.TypUnroll, span, "unroll maximum value is 100")
		}
	}
	r.visit(d.Body)
}

func mustUnroll(stmts *ast.Stmts, id ast.StmtID) *ast.UnrollData {
	d, _ := stmts.Unroll(id)
	return d
}
