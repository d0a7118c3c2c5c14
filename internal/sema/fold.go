package sema

import (
	"math"
	"strings"

	"tracec/internal/ast"
	"tracec/internal/diag"
	"tracec/internal/types"
)

type constKind uint8

const (
	constInt constKind = iota
	constBool
	constString
)

// constValue is a compile-time value. Integers keep a magnitude and a sign
// like integer literals do.
type constValue struct {
	kind constKind
	mag  uint64
	neg  bool
	b    bool
	s    string
}

func (v constValue) truthy() bool {
	switch v.kind {
	case constBool:
		return v.b
	case constString:
		return v.s != ""
	}
	return v.mag != 0
}

// signed returns the integer as int64; ok is false when it does not fit.
func (v constValue) signed() (int64, bool) {
	if v.neg {
		if v.mag > 1<<63 {
			return 0, false
		}
		return -int64(v.mag-1) - 1, true // #nosec G115 -- mag-1 < 1<<63
	}
	if v.mag > math.MaxInt64 {
		return 0, false
	}
	return int64(v.mag), true
}

func intConst(n int64) constValue {
	if n < 0 {
		return constValue{kind: constInt, mag: uint64(-(n + 1)) + 1, neg: true} // #nosec G115 -- n < 0
	}
	return constValue{kind: constInt, mag: uint64(n)} // #nosec G115 -- n >= 0
}

// constant evaluates id if it only involves literals.
func (r *resolver) constant(id ast.ExprID) (constValue, bool) {
	return evalConst(r.exprs, id)
}

func evalConst(exprs *ast.Exprs, id ast.ExprID) (constValue, bool) {
	switch exprs.Kind(id) {
	case ast.ExprInteger:
		lit, _ := exprs.Integer(id)
		return constValue{kind: constInt, mag: lit.Value, neg: lit.Negative && lit.Value != 0}, true
	case ast.ExprBoolean:
		lit, _ := exprs.Boolean(id)
		return constValue{kind: constBool, b: lit.Value}, true
	case ast.ExprString:
		lit, _ := exprs.StringLit(id)
		return constValue{kind: constString, s: lit.Value}, true
	case ast.ExprCast:
		cd, _ := exprs.Cast(id)
		if !cd.Implicit {
			return constValue{}, false
		}
		return evalConst(exprs, cd.Value)
	case ast.ExprComptime:
		cd, _ := exprs.Comptime(id)
		return evalConst(exprs, cd.Expr)
	case ast.ExprUnary:
		d := *mustUnary(exprs, id)
		v, ok := evalConst(exprs, d.Operand)
		if !ok {
			return constValue{}, false
		}
		switch d.Op {
		case ast.OpLogNot:
			return constValue{kind: constBool, b: !v.truthy()}, true
		case ast.OpNeg:
			if v.kind != constInt {
				return constValue{}, false
			}
			return constValue{kind: constInt, mag: v.mag, neg: !v.neg && v.mag != 0}, true
		case ast.OpBitNot:
			if v.kind != constInt || v.neg {
				return constValue{}, false
			}
			return constValue{kind: constInt, mag: ^v.mag}, true
		}
	case ast.ExprBinary:
		d := *mustBinary(exprs, id)
		l, ok := evalConst(exprs, d.Left)
		if !ok {
			return constValue{}, false
		}
		rv, ok := evalConst(exprs, d.Right)
		if !ok {
			return constValue{}, false
		}
		return foldBinary(d.Op, l, rv)
	}
	return constValue{}, false
}

func foldBinary(op ast.BinaryOp, l, r constValue) (constValue, bool) {
	if op.IsLogical() {
		if op == ast.OpLogAnd {
			return constValue{kind: constBool, b: l.truthy() && r.truthy()}, true
		}
		return constValue{kind: constBool, b: l.truthy() || r.truthy()}, true
	}
	if l.kind != r.kind {
		return constValue{}, false
	}
	switch l.kind {
	case constString:
		switch op {
		case ast.OpEq:
			return constValue{kind: constBool, b: l.s == r.s}, true
		case ast.OpNe:
			return constValue{kind: constBool, b: l.s != r.s}, true
		}
		return constValue{}, false
	case constBool:
		switch op {
		case ast.OpEq:
			return constValue{kind: constBool, b: l.b == r.b}, true
		case ast.OpNe:
			return constValue{kind: constBool, b: l.b != r.b}, true
		}
		return constValue{}, false
	}

	if !l.neg && !r.neg {
		a, b := l.mag, r.mag
		switch op {
		case ast.OpEq:
			return constValue{kind: constBool, b: a == b}, true
		case ast.OpNe:
			return constValue{kind: constBool, b: a != b}, true
		case ast.OpLt:
			return constValue{kind: constBool, b: a < b}, true
		case ast.OpLe:
			return constValue{kind: constBool, b: a <= b}, true
		case ast.OpGt:
			return constValue{kind: constBool, b: a > b}, true
		case ast.OpGe:
			return constValue{kind: constBool, b: a >= b}, true
		case ast.OpAdd:
			return constValue{kind: constInt, mag: a + b}, true
		case ast.OpSub:
			if a < b {
				return constValue{kind: constInt, mag: b - a, neg: true}, true
			}
			return constValue{kind: constInt, mag: a - b}, true
		case ast.OpMul:
			return constValue{kind: constInt, mag: a * b}, true
		case ast.OpDiv:
			if b == 0 {
				return constValue{}, false
			}
			return constValue{kind: constInt, mag: a / b}, true
		case ast.OpMod:
			if b == 0 {
				return constValue{}, false
			}
			return constValue{kind: constInt, mag: a % b}, true
		case ast.OpBitAnd:
			return constValue{kind: constInt, mag: a & b}, true
		case ast.OpBitOr:
			return constValue{kind: constInt, mag: a | b}, true
		case ast.OpBitXor:
			return constValue{kind: constInt, mag: a ^ b}, true
		case ast.OpShl:
			return constValue{kind: constInt, mag: a << (b & 63)}, true
		case ast.OpShr:
			return constValue{kind: constInt, mag: a >> (b & 63)}, true
		}
		return constValue{}, false
	}

	a, okA := l.signed()
	b, okB := r.signed()
	if !okA || !okB {
		return constValue{}, false
	}
	switch op {
	case ast.OpEq:
		return constValue{kind: constBool, b: a == b}, true
	case ast.OpNe:
		return constValue{kind: constBool, b: a != b}, true
	case ast.OpLt:
		return constValue{kind: constBool, b: a < b}, true
	case ast.OpLe:
		return constValue{kind: constBool, b: a <= b}, true
	case ast.OpGt:
		return constValue{kind: constBool, b: a > b}, true
	case ast.OpGe:
		return constValue{kind: constBool, b: a >= b}, true
	case ast.OpAdd:
		return intConst(a + b), true
	case ast.OpSub:
		return intConst(a - b), true
	case ast.OpMul:
		return intConst(a * b), true
	case ast.OpDiv:
		if b == 0 {
			return constValue{}, false
		}
		return intConst(a / b), true
	case ast.OpMod:
		if b == 0 {
			return constValue{}, false
		}
		return intConst(a % b), true
	}
	return constValue{}, false
}

// foldConst materialises the value of a constant expression as a typed
// literal node. The caller places it.
func (r *resolver) foldConst(id ast.ExprID) (ast.ExprID, bool) {
	v, ok := r.constant(id)
	if !ok {
		return ast.NoExprID, false
	}
	return r.literal(id, v), true
}

func (r *resolver) literal(at ast.ExprID, v constValue) ast.ExprID {
	exprs := r.exprs
	span := exprs.Span(at)
	var lit ast.ExprID
	switch v.kind {
	case constBool:
		lit = exprs.NewBoolean(span, v.b)
		exprs.SetType(lit, r.in.Builtins().Bool)
	case constString:
		lit = exprs.NewString(span, v.s)
		exprs.SetType(lit, r.in.String(uint32(min(len(v.s)+1, math.MaxUint32)))) // #nosec G115 -- clamped
	default:
		lit = exprs.NewInteger(span, v.mag, v.neg)
		exprs.SetType(lit, r.in.Intern(types.LiteralType(v.mag, v.neg)))
	}
	return lit
}

// foldSize replaces id with an unsigned 64-bit literal.
func (r *resolver) foldSize(id ast.ExprID, n uint64) {
	lit := r.exprs.NewInteger(r.exprs.Span(id), n, false)
	r.exprs.Replace(id, lit)
	r.exprs.SetType(id, r.in.Builtins().Uint64)
}

func (r *resolver) visitSizeof(id ast.ExprID) {
	d, _ := r.exprs.Sizeof(id)
	typeName, expr := d.TypeName, d.Expr
	var t types.TypeID
	if typeName != "" {
		parsed, ok := r.parseType(id, typeName)
		if !ok {
			return
		}
		t = parsed
	} else {
		r.visit(expr)
		if !r.typed(expr) {
			return
		}
		t = r.exprs.TypeOf(expr)
	}
	if r.in.Kind(t) == types.KindRecord {
		if err := r.imp.Define(t); err != nil {
			r.fail(id, diag.TypUnknownStruct, "Unknown struct/union: '%s'", r.label(t))
			return
		}
	}
	r.foldSize(id, uint64(r.in.Size(t)))
}

func (r *resolver) visitOffsetof(id ast.ExprID) {
	d, _ := r.exprs.Offsetof(id)
	typeName, expr, path := d.TypeName, d.Expr, append([]string(nil), d.Fields...)
	var t types.TypeID
	if typeName != "" {
		parsed, ok := r.parseType(id, typeName)
		if !ok {
			return
		}
		t = parsed
	} else {
		r.visit(expr)
		if !r.typed(expr) {
			return
		}
		t = r.exprs.TypeOf(expr)
	}
	var offset uint64
	for _, name := range path {
		if r.in.Kind(t) != types.KindRecord {
			r.fail(id, diag.TypBadFieldAccess, "'%s' is not a record type.", r.label(t))
			return
		}
		if err := r.imp.Define(t); err != nil {
			r.fail(id, diag.TypUnknownStruct, "Unknown struct/union: '%s'", r.label(t))
			return
		}
		info, _ := r.in.RecordInfo(t)
		f, ok := info.Field(name)
		if !ok {
			r.fail(id, diag.TypUnknownField, "'%s' has no field named '%s'", r.label(t), name)
			return
		}
		offset += uint64(f.Offset)
		t = f.Type
	}
	r.foldSize(id, offset)
}

// parseType resolves a type spelling written in the program. Errors are
// reported at id.
func (r *resolver) parseType(id ast.ExprID, spelling string) (types.TypeID, bool) {
	t, err := r.imp.Parse(spelling)
	if err == nil {
		return t, true
	}
	name := strings.TrimSpace(spelling)
	switch {
	case strings.HasPrefix(name, "enum "):
		r.fail(id, diag.TypUnknownEnum, "Unknown enum: %s", strings.TrimPrefix(name, "enum "))
	case strings.HasPrefix(name, "struct ") || strings.HasPrefix(name, "union "):
		r.fail(id, diag.TypUnknownStruct, "Unknown struct/union: '%s'", name)
	default:
		b := diag.ReportError(r.rep, diag.TypUnknownType, r.exprs.Span(id), "Cannot resolve unknown type \""+name+"\"")
		if alias, ok := knownAlias(name); ok {
			b = b.WithHint("Did you mean \"" + alias + "\"?")
		}
		b.Emit()
		r.poison(id)
	}
	return types.None, false
}
