package sema

import (
	"fortio.org/safecast"

	"tracec/internal/ast"
	"tracec/internal/diag"
	"tracec/internal/types"
)

func (r *resolver) visitExpr(id ast.ExprID) {
	exprs := r.exprs
	b := r.in.Builtins()
	switch exprs.Kind(id) {
	case ast.ExprInteger:
		lit, _ := exprs.Integer(id)
		exprs.SetType(id, r.in.Intern(types.LiteralType(lit.Value, lit.Negative)))
	case ast.ExprBoolean:
		exprs.SetType(id, b.Bool)
	case ast.ExprString:
		r.visitString(id)
	case ast.ExprBuiltin:
		r.visitBuiltin(id)
	case ast.ExprIdent:
		r.visitIdent(id)
	case ast.ExprCall:
		r.visitCall(id)
	case ast.ExprSizeof:
		r.visitSizeof(id)
	case ast.ExprOffsetof:
		r.visitOffsetof(id)
	case ast.ExprMap:
		r.visitMapRead(id)
	case ast.ExprVariable:
		r.visitVariable(id)
	case ast.ExprBinary:
		r.visitBinary(id)
	case ast.ExprUnary:
		r.visitUnary(id)
	case ast.ExprField:
		r.visitField(id)
	case ast.ExprIndex:
		r.visitIndex(id)
	case ast.ExprTupleIndex:
		r.visitTupleIndex(id)
	case ast.ExprCast:
		r.visitCast(id)
	case ast.ExprTuple:
		r.visitTuple(id)
	case ast.ExprRecord:
		r.visitRecord(id)
	case ast.ExprIf:
		r.visitIf(id)
	case ast.ExprBlock:
		r.visitBlock(id)
	case ast.ExprComptime:
		r.visitComptime(id)
	default:
		r.fail(id, diag.BugInternal, "unexpected %s expression", exprs.Kind(id))
	}
}

func (r *resolver) visitString(id ast.ExprID) {
	lit, _ := r.exprs.StringLit(id)
	n, err := safecast.Conv[uint32](len(lit.Value) + 1)
	if err != nil || n > r.opts.Limits.MaxStrlen {
		r.fail(id, diag.TypStringTooLong, "String is too long (over %d bytes): %s", r.opts.Limits.MaxStrlen, lit.Value)
		return
	}
	r.exprs.SetType(id, r.in.String(n))
}

// builtins that read the probe context and cannot run inside a loop
// callback.
var ctxDependentBuiltins = map[string]bool{
	"retval": true, "func": true, "kstack": true, "ustack": true, "probe": true,
}

func (r *resolver) visitBuiltin(id ast.ExprID) {
	bd, _ := r.exprs.Builtin(id)
	name := bd.Name
	if name == builtinCtx {
		rc := r.probeCtx()
		if rc == nil {
			r.fail(id, diag.CtxBuiltinNotAllowed, "Builtin %s not supported outside probe", name)
			return
		}
		r.exprs.SetType(id, rc.Ctx)
		return
	}
	if len(r.loops) > 0 && ctxDependentBuiltins[name] {
		r.fail(id, diag.CtxBuiltinNotAllowed, "'%s' builtin is not allowed in a for-loop", name)
		return
	}
	res := r.builtinType(name)
	switch {
	case res.feature != "":
		r.fail(id, diag.ChkFeatureMissing, "%s", res.feature)
	case res.msg != "":
		r.fail(id, res.code, "%s", res.msg)
	default:
		r.exprs.SetType(id, res.typ)
	}
}

// probeCtx is the resolved context of the probe being visited.
func (r *resolver) probeCtx() *ResolvedContext {
	if r.probe == nil {
		return nil
	}
	return r.ctxInfo.Of(r.item)
}

func (r *resolver) visitIdent(id ast.ExprID) {
	d, _ := r.exprs.Ident(id)
	name := d.Name
	if _, ok := types.ParseStackMode(name); ok {
		r.exprs.SetType(id, r.in.Intern(types.MakeMarker(types.KindStackMode)))
		return
	}
	if _, ok := types.ParseTimestampMode(name); ok {
		r.exprs.SetType(id, r.in.Intern(types.MakeMarker(types.KindTimestampMode)))
		return
	}
	if enum, _, ok := r.in.VariantByName(name); ok {
		r.exprs.SetType(id, enum)
		return
	}
	r.fail(id, diag.TypUnknownIdentifier, "Unknown identifier: '%s'", name)
}

func (r *resolver) visitVariable(id ast.ExprID) {
	d, _ := r.exprs.Variable(id)
	name := d.Name
	v, _ := r.lookupVar(name)
	if v == nil {
		r.fail(id, diag.TypUndefinedVariable, "Undefined or undeclared variable: %s", name)
		return
	}
	if !v.Assigned && r.first {
		r.warnf(diag.TypUsedBeforeAssigned, r.exprs.Span(id), "Variable used before it was assigned: %s", name)
	}
	r.exprs.SetType(id, v.Type)
}

// Operators -----------------------------------------------------------------

// intView maps integer-like types onto plain integers for promotion.
func (r *resolver) intView(t types.TypeID) types.TypeID {
	in := r.in
	switch in.Kind(t) {
	case types.KindBool:
		return in.Builtins().Uint8
	case types.KindEnum:
		return in.Int(max(in.Size(t), 1), false)
	}
	return t
}

func (r *resolver) isIntLike(t types.TypeID) bool {
	return t != types.None && r.in.MustLookup(t).IsIntegerLike()
}

// literalMagnitude returns a non-negative integer literal under id.
func (r *resolver) literalMagnitude(id ast.ExprID) (uint64, bool) {
	for {
		cd, ok := r.exprs.Cast(id)
		if !ok || !cd.Implicit {
			break
		}
		id = cd.Value
	}
	lit, ok := r.exprs.Integer(id)
	if !ok || lit.Negative {
		return 0, false
	}
	return lit.Value, true
}

// promoteOperands joins two integer operands. A non-negative literal on
// one side takes the signedness of the other side first; mixed signs
// otherwise widen to a signed type and report warn.
func (r *resolver) promoteOperands(left, right ast.ExprID) (joined types.TypeID, warn, ok bool) {
	in := r.in
	lt, rt := r.intView(r.natural(left)), r.intView(r.natural(right))
	tl, tr := in.MustLookup(lt), in.MustLookup(rt)
	if tl.Signed != tr.Signed {
		switch {
		case r.reinterpret(left, tr.Signed, &lt):
		case r.reinterpret(right, tl.Signed, &rt):
		default:
			warn = true
		}
	}
	joined, ok = in.PromoteIntID(lt, rt)
	return joined, warn, ok
}

// reinterpret retypes a non-negative literal to the requested signedness.
func (r *resolver) reinterpret(id ast.ExprID, signed bool, t *types.TypeID) bool {
	mag, ok := r.literalMagnitude(id)
	if !ok {
		return false
	}
	if !signed {
		*t = r.in.Intern(types.LiteralType(mag, false))
		return true
	}
	st, ok := types.SignedLiteralType(mag)
	if !ok {
		return false
	}
	*t = r.in.Intern(st)
	return true
}

func (r *resolver) visitBinary(id ast.ExprID) {
	d := *mustBinary(r.exprs, id)
	r.visit(d.Left)
	r.visit(d.Right)
	if !r.typed(d.Left, d.Right) {
		return
	}
	in := r.in
	b := in.Builtins()
	lt, rt := r.natural(d.Left), r.natural(d.Right)
	lk, rk := in.Kind(lt), in.Kind(rt)
	span := r.exprs.Span(id)

	if d.Op.IsLogical() {
		for _, side := range []ast.ExprID{d.Left, d.Right} {
			switch in.Kind(r.exprs.TypeOf(side)) {
			case types.KindInt, types.KindBool, types.KindPointer, types.KindEnum:
			default:
				r.fail(id, diag.TypInvalidOperator, "The %s operator can not be used on expressions of type %s",
					d.Op, r.label(r.exprs.TypeOf(side)))
				return
			}
		}
		r.exprs.SetType(id, b.Bool)
		return
	}

	result := types.None
	switch {
	case r.isIntLike(lt) && r.isIntLike(rt):
		if lk == types.KindBool && rk == types.KindBool && d.Op.IsComparison() {
			break
		}
		if d.Op.IsShift() {
			result = r.joinAddrSpace(id, r.intView(lt), lt, rt)
			break
		}
		joined, warn, ok := r.promoteOperands(d.Left, d.Right)
		if !ok {
			r.deferf(id, diag.TypSignMismatch,
				"Type mismatch for '%s': integer promotion of '%s' and '%s' needs more than 64 bits",
				d.Op, r.label(lt), r.label(rt))
			return
		}
		if warn {
			what := "arithmetic"
			if d.Op.IsComparison() {
				what = "comparison"
			}
			r.warnf(diag.TypSignMismatch, span,
				"%s of integers of different signs: '%s' and '%s' can lead to undefined behavior",
				what, r.label(lt), r.label(rt))
		}
		if (d.Op == ast.OpDiv || d.Op == ast.OpMod) && in.MustLookup(joined).Signed && !r.nonNegativeLiterals(d.Left, d.Right) {
			r.warnf(diag.TypSignedDivision, span,
				"signed operands for '%s' can lead to undefined behavior (cast to unsigned to silence warning)", d.Op)
		}
		joined = r.joinAddrSpace(id, joined, lt, rt)
		r.coerce(d.Left, joined)
		r.coerce(d.Right, joined)
		result = joined
	case lk == types.KindPointer || rk == types.KindPointer:
		result = r.pointerBinary(id, d, lt, rt)
		if result == types.None {
			return
		}
	case lk == types.KindString && rk == types.KindString:
		if d.Op != ast.OpEq && d.Op != ast.OpNe {
			r.fail(id, diag.TypInvalidOperator, "The %s operator can not be used on expressions of types %s, %s",
				d.Op, r.label(lt), r.label(rt))
			return
		}
		r.checkLiteralCompare(id, d)
	case lk == rk && in.Equal(lt, rt) && (d.Op == ast.OpEq || d.Op == ast.OpNe):
		// кортежи, записи, массивы и буферы сравниваются побайтно
	default:
		if lk != rk {
			r.fail(id, diag.TypMismatch, "Type mismatch for '%s': comparing '%s' with '%s'", d.Op, r.label(lt), r.label(rt))
			return
		}
		r.fail(id, diag.TypInvalidOperator, "The %s operator can not be used on expressions of types %s, %s",
			d.Op, r.label(lt), r.label(rt))
		return
	}

	if d.Op.IsComparison() {
		r.exprs.SetType(id, b.Bool)
		return
	}
	r.exprs.SetType(id, result)
}

func mustBinary(exprs *ast.Exprs, id ast.ExprID) *ast.BinaryData {
	d, _ := exprs.Binary(id)
	return d
}

func (r *resolver) nonNegativeLiterals(ids ...ast.ExprID) bool {
	for _, id := range ids {
		if _, ok := r.literalMagnitude(id); ok {
			continue
		}
		if !r.in.MustLookup(r.natural(id)).Signed {
			continue
		}
		return false
	}
	return true
}

// joinAddrSpace keeps the address space both operands agree on; differing
// spaces degrade to none.
func (r *resolver) joinAddrSpace(id ast.ExprID, joined, lt, rt types.TypeID) types.TypeID {
	la, ra := r.in.MustLookup(lt).AS, r.in.MustLookup(rt).AS
	switch {
	case la == ra:
		return r.in.WithAS(joined, la)
	case la == types.ASNone:
		return r.in.WithAS(joined, ra)
	case ra == types.ASNone:
		return r.in.WithAS(joined, la)
	}
	r.warnf(diag.TypAddrspaceMismatch, r.exprs.Span(id),
		"Addrspace mismatch (%s != %s), the result is treated as having no address space", la, ra)
	return r.in.WithAS(joined, types.ASNone)
}

func (r *resolver) pointerBinary(id ast.ExprID, d ast.BinaryData, lt, rt types.TypeID) types.TypeID {
	in := r.in
	lk, rk := in.Kind(lt), in.Kind(rt)
	if d.Op.IsComparison() {
		switch {
		case lk == types.KindPointer && rk == types.KindPointer:
			if !in.Equal(in.Elem(lt), in.Elem(rt)) && in.Kind(in.Elem(lt)) != types.KindVoid && in.Kind(in.Elem(rt)) != types.KindVoid {
				r.warnf(diag.TypPointerCompare, r.exprs.Span(id), "comparison of distinct pointer types ('%s', '%s')",
					r.label(lt), r.label(rt))
			}
			return in.Builtins().Bool
		case r.isIntLike(lt) || r.isIntLike(rt):
			return in.Builtins().Bool
		}
	}
	switch {
	case lk == types.KindPointer && r.isIntLike(rt) && (d.Op == ast.OpAdd || d.Op == ast.OpSub):
		return lt
	case rk == types.KindPointer && r.isIntLike(lt) && d.Op == ast.OpAdd:
		return rt
	}
	r.fail(id, diag.TypInvalidOperator, "The %s operator can not be used on expressions of types %s, %s",
		d.Op, r.label(lt), r.label(rt))
	return types.None
}

// checkLiteralCompare warns when a string literal can never equal a
// shorter string.
func (r *resolver) checkLiteralCompare(id ast.ExprID, d ast.BinaryData) {
	for _, pair := range [][2]ast.ExprID{{d.Left, d.Right}, {d.Right, d.Left}} {
		lit, ok := r.exprs.StringLit(pair[0])
		if !ok || r.exprs.IsLiteral(pair[1]) {
			continue
		}
		size := r.in.Size(r.exprs.TypeOf(pair[1]))
		if uint64(len(lit.Value))+1 > uint64(size) {
			r.warnf(diag.TypLiteralCompare, r.exprs.Span(id),
				"The literal is longer than the variable string (size=%d), condition always false", size)
		}
	}
}

func (r *resolver) visitUnary(id ast.ExprID) {
	d := *mustUnary(r.exprs, id)
	in := r.in
	switch d.Op {
	case ast.OpIncr, ast.OpDecr:
		r.visitIncrement(id, d)
		return
	}
	r.visit(d.Operand)
	if !r.typed(d.Operand) {
		return
	}
	t := r.exprs.TypeOf(d.Operand)
	kind := in.Kind(t)
	switch d.Op {
	case ast.OpLogNot:
		switch kind {
		case types.KindInt, types.KindBool, types.KindPointer, types.KindEnum:
			r.exprs.SetType(id, in.Builtins().Bool)
			return
		}
	case ast.OpBitNot, ast.OpNeg:
		if kind == types.KindInt || kind == types.KindEnum || kind == types.KindBool {
			r.exprs.SetType(id, r.intView(t))
			return
		}
	case ast.OpDeref:
		switch kind {
		case types.KindPointer:
			elem := in.Elem(t)
			if in.Kind(elem) == types.KindRecord {
				if err := r.imp.Define(elem); err != nil {
					r.fail(id, diag.TypUnknownStruct, "Unknown struct/union: '%s'", r.label(elem))
					return
				}
			}
			if in.Kind(elem) == types.KindVoid {
				r.fail(id, diag.TypInvalidOperator, "Can not dereference a void pointer")
				return
			}
			as := in.MustLookup(t).AS
			if in.MustLookup(elem).AS == types.ASNone {
				elem = in.WithAS(elem, as)
			}
			r.exprs.SetType(id, elem)
			return
		case types.KindRecord:
			r.fail(id, diag.TypInvalidOperator, "Can not dereference struct/union of type '%s'. It is not a pointer.", r.label(t))
			return
		}
		r.fail(id, diag.TypInvalidOperator, "Can not dereference type '%s'. It is not a pointer.", r.label(t))
		return
	}
	r.fail(id, diag.TypInvalidOperator, "The %s operator can not be used on expressions of type '%s'", d.Op, r.label(t))
}

func mustUnary(exprs *ast.Exprs, id ast.ExprID) *ast.UnaryData {
	d, _ := exprs.Unary(id)
	return d
}

// visitIncrement types ++/--, which only apply to maps and variables.
func (r *resolver) visitIncrement(id ast.ExprID, d ast.UnaryData) {
	in := r.in
	switch r.exprs.Kind(d.Operand) {
	case ast.ExprVariable:
		r.visit(d.Operand)
		t := r.exprs.TypeOf(d.Operand)
		if t == types.None {
			return
		}
		if k := in.Kind(t); k != types.KindInt && k != types.KindPointer {
			r.fail(id, diag.TypInvalidOperator, "The %s operator can not be used on expressions of type '%s'", d.Op, r.label(t))
			return
		}
		r.exprs.SetType(id, t)
	case ast.ExprMap:
		md, _ := r.exprs.Map(d.Operand)
		m := r.useMap(md.Name, r.exprs.Span(d.Operand))
		if m.Value == types.None {
			// ++ на пустой карте начинает счёт с int64
			m.Value = in.Builtins().Int64
		}
		r.visit(d.Operand)
		t := r.exprs.TypeOf(d.Operand)
		if t == types.None {
			return
		}
		if in.Kind(t) != types.KindInt {
			r.fail(id, diag.TypInvalidOperator, "The %s operator can not be used on expressions of type '%s'", d.Op, r.label(t))
			return
		}
		r.exprs.SetType(id, t)
	default:
		r.visit(d.Operand)
		r.fail(id, diag.TypInvalidOperator, "The %s operator must be applied to a map or variable", d.Op)
	}
}

// Accesses ------------------------------------------------------------------

func (r *resolver) visitField(id ast.ExprID) {
	d := *mustField(r.exprs, id)
	r.visit(d.Target)
	if !r.typed(d.Target) {
		return
	}
	in := r.in
	target := r.exprs.TypeOf(d.Target)
	tt := in.MustLookup(target)
	rec := target
	as := tt.AS
	switch tt.Kind {
	case types.KindPointer:
		if !tt.IsCtxAccess() {
			r.fail(id, diag.TypBadFieldAccess,
				"Can not access field '%s' on expression of type '%s'. Try dereferencing it first, or using '->'",
				d.Field, r.label(target))
			return
		}
		rec = tt.Elem
	case types.KindRecord:
	case types.KindTuple:
		r.fail(id, diag.TypBadFieldAccess, "Can not access field '%s' on a tuple. Use a tuple index instead", d.Field)
		return
	default:
		r.fail(id, diag.TypBadFieldAccess, "Can not access field '%s' on expression of type '%s'", d.Field, r.label(target))
		return
	}
	if err := r.imp.Define(rec); err != nil {
		r.fail(id, diag.TypUnknownStruct, "Unknown struct/union: '%s'", r.label(rec))
		return
	}
	info, ok := in.RecordInfo(rec)
	if !ok || !info.Defined {
		r.fail(id, diag.TypUnknownStruct, "Unknown struct/union: '%s'", r.label(rec))
		return
	}
	field, ok := info.Field(d.Field)
	if !ok {
		r.fail(id, diag.TypUnknownField, "Struct/union of type '%s' does not contain a field named '%s'", r.label(rec), d.Field)
		return
	}
	recFlags := in.MustLookup(rec).Flags
	if recFlags&types.FlagTPArg != 0 && field.Offset < 8 && isCommonField(field.Name) {
		r.fail(id, diag.TypCommonTPField, "BPF does not support accessing common tracepoint fields")
		return
	}
	if field.Tag != "" && field.Tag != "rcu" {
		r.fail(id, diag.TypPointerTag,
			"Attempting to access pointer field '%s' with unsupported tag attribute: %s", d.Field, field.Tag)
		return
	}
	ft := field.Type
	if as == types.ASNone {
		as = in.MustLookup(rec).AS
	}
	if in.MustLookup(ft).AS == types.ASNone && as != types.ASNone {
		ft = in.WithAS(ft, as)
	}
	r.exprs.SetType(id, ft)
}

func (r *resolver) visitIndex(id ast.ExprID) {
	d := *mustIndex(r.exprs, id)
	r.visit(d.Target)
	r.visit(d.Index)
	if !r.typed(d.Target, d.Index) {
		return
	}
	in := r.in
	target := r.exprs.TypeOf(d.Target)
	idx := r.exprs.TypeOf(d.Index)
	tt := in.MustLookup(target)
	if tt.Kind != types.KindArray && tt.Kind != types.KindPointer {
		r.fail(id, diag.TypBadIndex, "The array index operator [] can only be used on arrays and pointers, found %s.", r.label(target))
		return
	}
	if !r.isIntLike(idx) {
		r.fail(id, diag.TypBadIndex, "The array index operator [] only accepts integer indices, found %s.", r.label(idx))
		return
	}
	if lit, ok := r.exprs.Integer(d.Index); ok {
		if lit.Negative && lit.Value != 0 {
			r.fail(id, diag.TypBadIndex, "The array index operator [] does not accept negative indices")
			return
		}
		if tt.Kind == types.KindArray && tt.Count > 0 && lit.Value >= uint64(tt.Count) {
			r.fail(id, diag.TypIndexOutOfBounds, "the index %d is out of bounds for array of size %d", lit.Value, tt.Count)
			return
		}
	}
	elem := tt.Elem
	if in.Kind(elem) == types.KindRecord {
		if err := r.imp.Define(elem); err != nil {
			r.fail(id, diag.TypUnknownStruct, "Unknown struct/union: '%s'", r.label(elem))
			return
		}
	}
	if in.MustLookup(elem).AS == types.ASNone && tt.AS != types.ASNone {
		elem = in.WithAS(elem, tt.AS)
	}
	r.exprs.SetType(id, elem)
}

func mustIndex(exprs *ast.Exprs, id ast.ExprID) *ast.IndexData {
	d, _ := exprs.Index(id)
	return d
}

func (r *resolver) visitTupleIndex(id ast.ExprID) {
	d, _ := r.exprs.TupleIndex(id)
	target, index := d.Target, d.Index
	r.visit(target)
	if !r.typed(target) {
		return
	}
	t := r.exprs.TypeOf(target)
	if r.in.Kind(t) != types.KindTuple {
		r.fail(id, diag.TypBadTupleIndex, "Can not access index '%d' on expression of type '%s'", index, r.label(t))
		return
	}
	elems := r.in.TupleElems(t)
	if int(index) >= len(elems) {
		r.fail(id, diag.TypBadTupleIndex, "Invalid tuple index: %d. Found %d elements in tuple.", index, len(elems))
		return
	}
	r.exprs.SetType(id, elems[index])
}

// Literals ------------------------------------------------------------------

func (r *resolver) visitTuple(id ast.ExprID) {
	td, _ := r.exprs.Tuple(id)
	elems := append([]ast.ExprID(nil), td.Elems...)
	r.visitAll(elems)
	if !r.typed(elems...) {
		return
	}
	out := make([]types.TypeID, len(elems))
	for i, e := range elems {
		t := r.natural(e)
		if r.in.MustLookup(t).IsAggregate() {
			r.fail(e, diag.TypAggregateInTuple, "Map type %s cannot exist inside a tuple.", r.label(t))
			return
		}
		if r.in.Kind(t) == types.KindVoid {
			r.fail(e, diag.TypMismatch, "Tuple elements must have a value")
			return
		}
		out[i] = t
	}
	r.exprs.SetType(id, r.in.Tuple(out))
}

func (r *resolver) visitRecord(id ast.ExprID) {
	rd, _ := r.exprs.Record(id)
	fields := append([]ast.NamedExpr(nil), rd.Fields...)
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Name] {
			r.errorf(diag.TypMismatch, f.Span, "Duplicate field name: %s", f.Name)
			r.poison(id)
		}
		seen[f.Name] = true
		r.visit(f.Expr)
	}
	if r.poisoned[id] {
		return
	}
	out := make([]types.Field, len(fields))
	for i, f := range fields {
		t := r.natural(f.Expr)
		if t == types.None {
			return
		}
		if r.in.MustLookup(t).IsAggregate() {
			r.fail(f.Expr, diag.TypAggregateInTuple, "Map type %s cannot exist inside a record.", r.label(t))
			return
		}
		out[i] = types.Field{Name: f.Name, Type: t}
	}
	r.exprs.SetType(id, r.in.AnonRecord(out))
}

// Control expressions -------------------------------------------------------

func (r *resolver) visitBlock(id ast.ExprID) {
	blk, _ := r.exprs.Block(id)
	data := *blk
	r.pushScope(id)
	for _, st := range data.Stmts {
		r.visitStmt(st)
	}
	t := r.in.Builtins().Void
	if data.Value.IsValid() {
		r.visit(data.Value)
		t = r.exprs.TypeOf(data.Value)
	}
	r.popScope()
	r.exprs.SetType(id, t)
}

func (r *resolver) visitIf(id ast.ExprID) {
	d := *mustIf(r.exprs, id)
	if _, ok := r.exprs.Comptime(d.Cond); ok {
		r.visitComptimeIf(id, d)
		return
	}
	r.visit(d.Cond)
	what := "ternary"
	if r.exprs.Kind(d.Then) == ast.ExprBlock {
		what = "if()"
	}
	r.checkCondition(d.Cond, what)
	r.visit(d.Then)
	void := r.in.Builtins().Void
	if !d.Else.IsValid() {
		r.exprs.SetType(id, void)
		return
	}
	r.visit(d.Else)
	if !r.typed(d.Then, d.Else) {
		return
	}
	r.joinArms(id, d)
}

// visitComptimeIf visits only the arm selected by a compile-time condition.
// Undecided conditions are recorded so that the fixpoint notices when they
// get decided.
func (r *resolver) visitComptimeIf(id ast.ExprID, d ast.IfData) {
	r.visit(d.Cond)
	value, ok := r.constBool(d.Cond)
	if !ok {
		if !r.poisoned[d.Cond] {
			r.branches = append(r.branches, d.Cond)
		}
		return
	}
	taken := d.Then
	if !value {
		taken = d.Else
	}
	t := r.in.Builtins().Void
	if taken.IsValid() {
		r.visit(taken)
		t = r.exprs.TypeOf(taken)
	}
	if !r.final {
		r.exprs.SetType(id, t)
		return
	}
	// окончательный проход: невыбранная ветка выбрасывается
	if !taken.IsValid() {
		taken = r.exprs.NewBlock(r.exprs.Span(id), nil, ast.NoExprID)
		r.exprs.SetType(taken, t)
	}
	r.exprs.Replace(id, taken)
}

// joinArms reconciles the two arms of a conditional with a value.
func (r *resolver) joinArms(id ast.ExprID, d ast.IfData) {
	in := r.in
	tt, et := r.natural(d.Then), r.natural(d.Else)
	tk, ek := in.Kind(tt), in.Kind(et)
	void := in.Builtins().Void
	mismatch := func() {
		r.deferf(id, diag.TypTernaryMismatch, "Ternary operator must return the same type: have '%s' and '%s'",
			r.label(tt), r.label(et))
	}
	switch {
	case tk == types.KindVoid && ek == types.KindVoid:
		r.exprs.SetType(id, void)
	case tk == types.KindVoid || ek == types.KindVoid:
		if r.exprs.Kind(d.Then) == ast.ExprBlock {
			// if-оператор: значение веток не используется
			r.exprs.SetType(id, void)
			return
		}
		mismatch()
	case r.isIntLike(tt) && r.isIntLike(et):
		joined, _, ok := r.promoteOperands(d.Then, d.Else)
		if !ok {
			mismatch()
			return
		}
		r.coerce(d.Then, joined)
		r.coerce(d.Else, joined)
		r.exprs.SetType(id, joined)
	case tk != ek:
		mismatch()
	case tk == types.KindTuple || tk == types.KindRecord || tk == types.KindString || tk == types.KindBuffer:
		joined, ok := in.Promote(tt, et)
		if !ok {
			mismatch()
			return
		}
		r.coerce(d.Then, joined)
		r.coerce(d.Else, joined)
		r.exprs.SetType(id, joined)
	case tk == types.KindPointer && !in.Equal(tt, et):
		mismatch()
	default:
		wider := tt
		if in.Size(et) > in.Size(tt) {
			wider = et
		}
		r.exprs.SetType(id, wider)
	}
}

func (r *resolver) visitComptime(id ast.ExprID) {
	cd, _ := r.exprs.Comptime(id)
	inner := cd.Expr
	r.visit(inner)
	if r.poisoned[inner] {
		return
	}
	if !r.exprs.IsLiteral(inner) {
		if lit, ok := r.foldConst(inner); ok {
			r.exprs.Replace(inner, lit)
		}
	}
	if !r.exprs.IsLiteral(inner) || r.exprs.TypeOf(inner) == types.None {
		if r.final {
			r.fail(id, diag.TypComptimeUnresolved, "Unable to resolve comptime expression")
		}
		return
	}
	r.exprs.SetType(id, r.exprs.TypeOf(inner))
}

// constBool evaluates a decided comptime condition.
func (r *resolver) constBool(id ast.ExprID) (bool, bool) {
	v, ok := r.constant(id)
	if !ok {
		return false, false
	}
	return v.truthy(), true
}

