package ast

import (
	"tracec/internal/source"
	"tracec/internal/types"
)

type StmtKind uint8

const (
	StmtInvalid StmtKind = iota
	StmtExpr
	StmtVarDecl
	StmtAssignVar
	StmtAssignMap
	StmtJump
	StmtWhile
	StmtFor
	StmtUnroll
)

var stmtKindNames = [...]string{
	StmtInvalid:   "Invalid",
	StmtExpr:      "ExprStatement",
	StmtVarDecl:   "VarDeclStatement",
	StmtAssignVar: "AssignVarStatement",
	StmtAssignMap: "AssignMapStatement",
	StmtJump:      "Jump",
	StmtWhile:     "While",
	StmtFor:       "For",
	StmtUnroll:    "Unroll",
}

func (k StmtKind) String() string {
	if int(k) < len(stmtKindNames) {
		return stmtKindNames[k]
	}
	return "Unknown"
}

type Stmt struct {
	Kind    StmtKind
	Span    source.Span
	Payload PayloadID
}

type JumpKind uint8

const (
	JumpReturn JumpKind = iota
	JumpBreak
	JumpContinue
)

func (k JumpKind) String() string {
	switch k {
	case JumpReturn:
		return "return"
	case JumpBreak:
		return "break"
	case JumpContinue:
		return "continue"
	}
	return "jump"
}

type ExprStmtData struct {
	Expr ExprID
}

// VarDeclData is `let $x` or `let $x: T`. TypeName is empty when the type
// is inferred from later assignments.
type VarDeclData struct {
	Var      ExprID
	TypeName string
}

type AssignVarData struct {
	Var   ExprID
	Value ExprID
}

// AssignMapData assigns Value to the map access Map (an ExprMap node).
type AssignMapData struct {
	Map   ExprID
	Value ExprID
}

type JumpData struct {
	Kind  JumpKind
	Value ExprID
}

type WhileData struct {
	Cond ExprID
	Body ExprID
}

// ForData iterates a map (Iterable is a key-less ExprMap) or a range
// (RangeStart..RangeEnd). CtxType and FreeVars are filled in by type
// resolution and describe the captured outer variables.
type ForData struct {
	Var        ExprID
	Iterable   ExprID
	RangeStart ExprID
	RangeEnd   ExprID
	Body       ExprID
	CtxType    types.TypeID
	FreeVars   []string
}

// IsRange reports a range loop.
func (d *ForData) IsRange() bool {
	return d.Iterable == NoExprID
}

type UnrollData struct {
	Count ExprID
	Body  ExprID
}

// Stmts manages allocation of statements.
type Stmts struct {
	Arena      *Arena[Stmt]
	Exprs      *Arena[ExprStmtData]
	VarDecls   *Arena[VarDeclData]
	AssignVars *Arena[AssignVarData]
	AssignMaps *Arena[AssignMapData]
	Jumps      *Arena[JumpData]
	Whiles     *Arena[WhileData]
	Fors       *Arena[ForData]
	Unrolls    *Arena[UnrollData]
}

func NewStmts(capHint uint) *Stmts {
	if capHint == 0 {
		capHint = 1 << 8
	}
	small := capHint/4 + 1
	return &Stmts{
		Arena:      NewArena[Stmt](capHint),
		Exprs:      NewArena[ExprStmtData](capHint),
		VarDecls:   NewArena[VarDeclData](small),
		AssignVars: NewArena[AssignVarData](small),
		AssignMaps: NewArena[AssignMapData](small),
		Jumps:      NewArena[JumpData](small),
		Whiles:     NewArena[WhileData](small),
		Fors:       NewArena[ForData](small),
		Unrolls:    NewArena[UnrollData](small),
	}
}

func (s *Stmts) new(kind StmtKind, span source.Span, payload uint32) StmtID {
	return StmtID(s.Arena.Allocate(Stmt{
		Kind:    kind,
		Span:    span,
		Payload: PayloadID(payload),
	}))
}

func (s *Stmts) Get(id StmtID) *Stmt {
	return s.Arena.Get(uint32(id))
}

func (s *Stmts) Kind(id StmtID) StmtKind {
	if st := s.Get(id); st != nil {
		return st.Kind
	}
	return StmtInvalid
}

func (s *Stmts) Span(id StmtID) source.Span {
	if st := s.Get(id); st != nil {
		return st.Span
	}
	return source.NoSpan
}

func (s *Stmts) NewExpr(span source.Span, expr ExprID) StmtID {
	return s.new(StmtExpr, span, s.Exprs.Allocate(ExprStmtData{Expr: expr}))
}

func (s *Stmts) Expr(id StmtID) (*ExprStmtData, bool) {
	st := s.Get(id)
	if st == nil || st.Kind != StmtExpr {
		return nil, false
	}
	return s.Exprs.Get(uint32(st.Payload)), true
}

func (s *Stmts) NewVarDecl(span source.Span, variable ExprID, typeName string) StmtID {
	return s.new(StmtVarDecl, span, s.VarDecls.Allocate(VarDeclData{Var: variable, TypeName: typeName}))
}

func (s *Stmts) VarDecl(id StmtID) (*VarDeclData, bool) {
	st := s.Get(id)
	if st == nil || st.Kind != StmtVarDecl {
		return nil, false
	}
	return s.VarDecls.Get(uint32(st.Payload)), true
}

func (s *Stmts) NewAssignVar(span source.Span, variable, value ExprID) StmtID {
	return s.new(StmtAssignVar, span, s.AssignVars.Allocate(AssignVarData{Var: variable, Value: value}))
}

func (s *Stmts) AssignVar(id StmtID) (*AssignVarData, bool) {
	st := s.Get(id)
	if st == nil || st.Kind != StmtAssignVar {
		return nil, false
	}
	return s.AssignVars.Get(uint32(st.Payload)), true
}

func (s *Stmts) NewAssignMap(span source.Span, mapExpr, value ExprID) StmtID {
	return s.new(StmtAssignMap, span, s.AssignMaps.Allocate(AssignMapData{Map: mapExpr, Value: value}))
}

func (s *Stmts) AssignMap(id StmtID) (*AssignMapData, bool) {
	st := s.Get(id)
	if st == nil || st.Kind != StmtAssignMap {
		return nil, false
	}
	return s.AssignMaps.Get(uint32(st.Payload)), true
}

// NewJump creates return/break/continue; value is only used by return.
func (s *Stmts) NewJump(span source.Span, kind JumpKind, value ExprID) StmtID {
	return s.new(StmtJump, span, s.Jumps.Allocate(JumpData{Kind: kind, Value: value}))
}

func (s *Stmts) Jump(id StmtID) (*JumpData, bool) {
	st := s.Get(id)
	if st == nil || st.Kind != StmtJump {
		return nil, false
	}
	return s.Jumps.Get(uint32(st.Payload)), true
}

func (s *Stmts) NewWhile(span source.Span, cond, body ExprID) StmtID {
	return s.new(StmtWhile, span, s.Whiles.Allocate(WhileData{Cond: cond, Body: body}))
}

func (s *Stmts) While(id StmtID) (*WhileData, bool) {
	st := s.Get(id)
	if st == nil || st.Kind != StmtWhile {
		return nil, false
	}
	return s.Whiles.Get(uint32(st.Payload)), true
}

// NewForMap creates `for ($kv : @m) { ... }`.
func (s *Stmts) NewForMap(span source.Span, variable, iterable, body ExprID) StmtID {
	return s.new(StmtFor, span, s.Fors.Allocate(ForData{Var: variable, Iterable: iterable, Body: body}))
}

// NewForRange creates `for ($i : start..end) { ... }`.
func (s *Stmts) NewForRange(span source.Span, variable, start, end, body ExprID) StmtID {
	return s.new(StmtFor, span, s.Fors.Allocate(ForData{Var: variable, RangeStart: start, RangeEnd: end, Body: body}))
}

func (s *Stmts) For(id StmtID) (*ForData, bool) {
	st := s.Get(id)
	if st == nil || st.Kind != StmtFor {
		return nil, false
	}
	return s.Fors.Get(uint32(st.Payload)), true
}

func (s *Stmts) NewUnroll(span source.Span, count, body ExprID) StmtID {
	return s.new(StmtUnroll, span, s.Unrolls.Allocate(UnrollData{Count: count, Body: body}))
}

func (s *Stmts) Unroll(id StmtID) (*UnrollData, bool) {
	st := s.Get(id)
	if st == nil || st.Kind != StmtUnroll {
		return nil, false
	}
	return s.Unrolls.Get(uint32(st.Payload)), true
}
