package ast

import (
	"tracec/internal/source"
	"tracec/internal/types"
)

// Exprs manages allocation of expressions.
type Exprs struct {
	Arena        *Arena[Expr]
	Integers     *Arena[IntegerData]
	Booleans     *Arena[BooleanData]
	Strings      *Arena[StringData]
	Builtins     *Arena[BuiltinData]
	Idents       *Arena[IdentData]
	Calls        *Arena[CallData]
	Sizeofs      *Arena[SizeofData]
	Offsetofs    *Arena[OffsetofData]
	Maps         *Arena[MapData]
	Variables    *Arena[VariableData]
	Binaries     *Arena[BinaryData]
	Unaries      *Arena[UnaryData]
	Fields       *Arena[FieldData]
	Indices      *Arena[IndexData]
	TupleIndices *Arena[TupleIndexData]
	Casts        *Arena[CastData]
	Tuples       *Arena[TupleData]
	Records      *Arena[RecordData]
	Ifs          *Arena[IfData]
	Blocks       *Arena[BlockData]
	Comptimes    *Arena[ComptimeData]
}

// NewExprs creates per-kind arenas; capHint 0 means 256.
func NewExprs(capHint uint) *Exprs {
	if capHint == 0 {
		capHint = 1 << 8
	}
	small := capHint/4 + 1
	return &Exprs{
		Arena:        NewArena[Expr](capHint),
		Integers:     NewArena[IntegerData](small),
		Booleans:     NewArena[BooleanData](small),
		Strings:      NewArena[StringData](small),
		Builtins:     NewArena[BuiltinData](small),
		Idents:       NewArena[IdentData](small),
		Calls:        NewArena[CallData](small),
		Sizeofs:      NewArena[SizeofData](small),
		Offsetofs:    NewArena[OffsetofData](small),
		Maps:         NewArena[MapData](small),
		Variables:    NewArena[VariableData](small),
		Binaries:     NewArena[BinaryData](small),
		Unaries:      NewArena[UnaryData](small),
		Fields:       NewArena[FieldData](small),
		Indices:      NewArena[IndexData](small),
		TupleIndices: NewArena[TupleIndexData](small),
		Casts:        NewArena[CastData](small),
		Tuples:       NewArena[TupleData](small),
		Records:      NewArena[RecordData](small),
		Ifs:          NewArena[IfData](small),
		Blocks:       NewArena[BlockData](small),
		Comptimes:    NewArena[ComptimeData](small),
	}
}

func (e *Exprs) new(kind ExprKind, span source.Span, payload uint32) ExprID {
	return ExprID(e.Arena.Allocate(Expr{
		Kind:    kind,
		Span:    span,
		Payload: PayloadID(payload),
	}))
}

// Get returns the expression with the given ID.
func (e *Exprs) Get(id ExprID) *Expr {
	return e.Arena.Get(uint32(id))
}

// Kind returns the kind of id, or ExprInvalid for NoExprID.
func (e *Exprs) Kind(id ExprID) ExprKind {
	if x := e.Get(id); x != nil {
		return x.Kind
	}
	return ExprInvalid
}

// TypeOf returns the resolved type of id (types.None while unresolved).
func (e *Exprs) TypeOf(id ExprID) types.TypeID {
	if x := e.Get(id); x != nil {
		return x.Type
	}
	return types.None
}

// SetType records the resolved type of id.
func (e *Exprs) SetType(id ExprID, t types.TypeID) {
	if x := e.Get(id); x != nil {
		x.Type = t
	}
}

// Span returns the location of id.
func (e *Exprs) Span(id ExprID) source.Span {
	if x := e.Get(id); x != nil {
		return x.Span
	}
	return source.NoSpan
}

// Replace overwrites slot id with the node currently stored at with.
// Every parent holding id now sees the replacement; the slot at with is
// left orphaned.
func (e *Exprs) Replace(id, with ExprID) {
	if id == with {
		return
	}
	dst, src := e.Get(id), e.Get(with)
	if dst == nil || src == nil {
		return
	}
	*dst = *src
}

// Move copies the node at id into a fresh slot and returns it. The original
// slot keeps its contents until overwritten, typically by a wrapper.
func (e *Exprs) Move(id ExprID) ExprID {
	x := e.Get(id)
	if x == nil {
		return NoExprID
	}
	return ExprID(e.Arena.Allocate(*x))
}

// Wrap moves the node at id aside and stores an implicit cast to target in
// its place, so parents of id now reference the cast.
func (e *Exprs) Wrap(id ExprID, target types.TypeID) ExprID {
	span := e.Span(id)
	inner := e.Move(id)
	cast := e.NewCast(span, "", inner)
	e.Casts.Get(uint32(e.Get(cast).Payload)).Implicit = true
	e.Get(cast).Type = target
	e.Replace(id, cast)
	return inner
}

// NewInteger creates an integer literal.
func (e *Exprs) NewInteger(span source.Span, value uint64, negative bool) ExprID {
	if value == 0 {
		negative = false
	}
	payload := e.Integers.Allocate(IntegerData{Value: value, Negative: negative})
	return e.new(ExprInteger, span, payload)
}

// Integer returns the literal data for an integer expression.
func (e *Exprs) Integer(id ExprID) (*IntegerData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprInteger {
		return nil, false
	}
	return e.Integers.Get(uint32(x.Payload)), true
}

func (e *Exprs) NewBoolean(span source.Span, value bool) ExprID {
	return e.new(ExprBoolean, span, e.Booleans.Allocate(BooleanData{Value: value}))
}

func (e *Exprs) Boolean(id ExprID) (*BooleanData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprBoolean {
		return nil, false
	}
	return e.Booleans.Get(uint32(x.Payload)), true
}

func (e *Exprs) NewString(span source.Span, value string) ExprID {
	return e.new(ExprString, span, e.Strings.Allocate(StringData{Value: value}))
}

func (e *Exprs) StringLit(id ExprID) (*StringData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprString {
		return nil, false
	}
	return e.Strings.Get(uint32(x.Payload)), true
}

func (e *Exprs) NewBuiltin(span source.Span, name string) ExprID {
	return e.new(ExprBuiltin, span, e.Builtins.Allocate(BuiltinData{Name: name}))
}

func (e *Exprs) Builtin(id ExprID) (*BuiltinData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprBuiltin {
		return nil, false
	}
	return e.Builtins.Get(uint32(x.Payload)), true
}

func (e *Exprs) NewIdent(span source.Span, name string) ExprID {
	return e.new(ExprIdent, span, e.Idents.Allocate(IdentData{Name: name}))
}

func (e *Exprs) Ident(id ExprID) (*IdentData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprIdent {
		return nil, false
	}
	return e.Idents.Get(uint32(x.Payload)), true
}

// NewCall creates a call of a builtin function or subprogram.
func (e *Exprs) NewCall(span source.Span, fn string, args []ExprID) ExprID {
	payload := e.Calls.Allocate(CallData{Func: fn, Args: append([]ExprID(nil), args...)})
	return e.new(ExprCall, span, payload)
}

func (e *Exprs) Call(id ExprID) (*CallData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprCall {
		return nil, false
	}
	return e.Calls.Get(uint32(x.Payload)), true
}

func (e *Exprs) NewSizeof(span source.Span, typeName string, expr ExprID) ExprID {
	return e.new(ExprSizeof, span, e.Sizeofs.Allocate(SizeofData{TypeName: typeName, Expr: expr}))
}

func (e *Exprs) Sizeof(id ExprID) (*SizeofData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprSizeof {
		return nil, false
	}
	return e.Sizeofs.Get(uint32(x.Payload)), true
}

func (e *Exprs) NewOffsetof(span source.Span, typeName string, expr ExprID, fields []string) ExprID {
	payload := e.Offsetofs.Allocate(OffsetofData{TypeName: typeName, Expr: expr, Fields: append([]string(nil), fields...)})
	return e.new(ExprOffsetof, span, payload)
}

func (e *Exprs) Offsetof(id ExprID) (*OffsetofData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprOffsetof {
		return nil, false
	}
	return e.Offsetofs.Get(uint32(x.Payload)), true
}

// NewMap creates a map access; key is NoExprID for scalar maps.
func (e *Exprs) NewMap(span source.Span, name string, key ExprID) ExprID {
	return e.new(ExprMap, span, e.Maps.Allocate(MapData{Name: name, Key: key}))
}

func (e *Exprs) Map(id ExprID) (*MapData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprMap {
		return nil, false
	}
	return e.Maps.Get(uint32(x.Payload)), true
}

func (e *Exprs) NewVariable(span source.Span, name string) ExprID {
	return e.new(ExprVariable, span, e.Variables.Allocate(VariableData{Name: name}))
}

func (e *Exprs) Variable(id ExprID) (*VariableData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprVariable {
		return nil, false
	}
	return e.Variables.Get(uint32(x.Payload)), true
}

func (e *Exprs) NewBinary(span source.Span, op BinaryOp, left, right ExprID) ExprID {
	return e.new(ExprBinary, span, e.Binaries.Allocate(BinaryData{Op: op, Left: left, Right: right}))
}

func (e *Exprs) Binary(id ExprID) (*BinaryData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprBinary {
		return nil, false
	}
	return e.Binaries.Get(uint32(x.Payload)), true
}

func (e *Exprs) NewUnary(span source.Span, op UnaryOp, operand ExprID, postfix bool) ExprID {
	return e.new(ExprUnary, span, e.Unaries.Allocate(UnaryData{Op: op, Operand: operand, Postfix: postfix}))
}

func (e *Exprs) Unary(id ExprID) (*UnaryData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprUnary {
		return nil, false
	}
	return e.Unaries.Get(uint32(x.Payload)), true
}

func (e *Exprs) NewField(span source.Span, target ExprID, field string) ExprID {
	return e.new(ExprField, span, e.Fields.Allocate(FieldData{Target: target, Field: field}))
}

func (e *Exprs) Field(id ExprID) (*FieldData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprField {
		return nil, false
	}
	return e.Fields.Get(uint32(x.Payload)), true
}

func (e *Exprs) NewIndex(span source.Span, target, index ExprID) ExprID {
	return e.new(ExprIndex, span, e.Indices.Allocate(IndexData{Target: target, Index: index}))
}

func (e *Exprs) Index(id ExprID) (*IndexData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprIndex {
		return nil, false
	}
	return e.Indices.Get(uint32(x.Payload)), true
}

func (e *Exprs) NewTupleIndex(span source.Span, target ExprID, index uint32) ExprID {
	return e.new(ExprTupleIndex, span, e.TupleIndices.Allocate(TupleIndexData{Target: target, Index: index}))
}

func (e *Exprs) TupleIndex(id ExprID) (*TupleIndexData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprTupleIndex {
		return nil, false
	}
	return e.TupleIndices.Get(uint32(x.Payload)), true
}

// NewCast creates an explicit cast to the spelled type.
func (e *Exprs) NewCast(span source.Span, typeName string, value ExprID) ExprID {
	return e.new(ExprCast, span, e.Casts.Allocate(CastData{TypeName: typeName, Value: value}))
}

// NewImplicitCast creates a cast whose target is given directly.
func (e *Exprs) NewImplicitCast(span source.Span, target types.TypeID, value ExprID) ExprID {
	id := e.new(ExprCast, span, e.Casts.Allocate(CastData{Value: value, Implicit: true}))
	e.Get(id).Type = target
	return id
}

func (e *Exprs) Cast(id ExprID) (*CastData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprCast {
		return nil, false
	}
	return e.Casts.Get(uint32(x.Payload)), true
}

func (e *Exprs) NewTuple(span source.Span, elems []ExprID) ExprID {
	return e.new(ExprTuple, span, e.Tuples.Allocate(TupleData{Elems: append([]ExprID(nil), elems...)}))
}

func (e *Exprs) Tuple(id ExprID) (*TupleData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprTuple {
		return nil, false
	}
	return e.Tuples.Get(uint32(x.Payload)), true
}

func (e *Exprs) NewRecord(span source.Span, fields []NamedExpr) ExprID {
	return e.new(ExprRecord, span, e.Records.Allocate(RecordData{Fields: append([]NamedExpr(nil), fields...)}))
}

func (e *Exprs) Record(id ExprID) (*RecordData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprRecord {
		return nil, false
	}
	return e.Records.Get(uint32(x.Payload)), true
}

// NewIf creates an if/else or ternary. elseID may be NoExprID.
func (e *Exprs) NewIf(span source.Span, cond, then, elseID ExprID) ExprID {
	return e.new(ExprIf, span, e.Ifs.Allocate(IfData{Cond: cond, Then: then, Else: elseID}))
}

func (e *Exprs) If(id ExprID) (*IfData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprIf {
		return nil, false
	}
	return e.Ifs.Get(uint32(x.Payload)), true
}

// NewBlock creates a block; value is the optional trailing expression.
func (e *Exprs) NewBlock(span source.Span, stmts []StmtID, value ExprID) ExprID {
	return e.new(ExprBlock, span, e.Blocks.Allocate(BlockData{Stmts: append([]StmtID(nil), stmts...), Value: value}))
}

func (e *Exprs) Block(id ExprID) (*BlockData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprBlock {
		return nil, false
	}
	return e.Blocks.Get(uint32(x.Payload)), true
}

func (e *Exprs) NewComptime(span source.Span, expr ExprID) ExprID {
	return e.new(ExprComptime, span, e.Comptimes.Allocate(ComptimeData{Expr: expr}))
}

func (e *Exprs) Comptime(id ExprID) (*ComptimeData, bool) {
	x := e.Get(id)
	if x == nil || x.Kind != ExprComptime {
		return nil, false
	}
	return e.Comptimes.Get(uint32(x.Payload)), true
}

// IsLiteral reports integer, boolean and string literals.
func (e *Exprs) IsLiteral(id ExprID) bool {
	switch e.Kind(id) {
	case ExprInteger, ExprBoolean, ExprString:
		return true
	}
	return false
}
