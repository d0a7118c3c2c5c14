package ast

import (
	"tracec/internal/source"
	"tracec/internal/types"
)

type ExprKind uint8

const (
	ExprInvalid ExprKind = iota
	ExprInteger
	ExprBoolean
	ExprString
	ExprBuiltin
	ExprIdent
	ExprCall
	ExprSizeof
	ExprOffsetof
	ExprMap
	ExprVariable
	ExprBinary
	ExprUnary
	ExprField
	ExprIndex
	ExprTupleIndex
	ExprCast
	ExprTuple
	ExprRecord
	ExprIf
	ExprBlock
	ExprComptime
)

var exprKindNames = [...]string{
	ExprInvalid:    "Invalid",
	ExprInteger:    "Integer",
	ExprBoolean:    "Boolean",
	ExprString:     "String",
	ExprBuiltin:    "Builtin",
	ExprIdent:      "Identifier",
	ExprCall:       "Call",
	ExprSizeof:     "Sizeof",
	ExprOffsetof:   "Offsetof",
	ExprMap:        "Map",
	ExprVariable:   "Variable",
	ExprBinary:     "Binop",
	ExprUnary:      "Unop",
	ExprField:      "FieldAccess",
	ExprIndex:      "ArrayAccess",
	ExprTupleIndex: "TupleAccess",
	ExprCast:       "Cast",
	ExprTuple:      "Tuple",
	ExprRecord:     "Record",
	ExprIf:         "IfExpr",
	ExprBlock:      "BlockExpr",
	ExprComptime:   "Comptime",
}

func (k ExprKind) String() string {
	if int(k) < len(exprKindNames) {
		return exprKindNames[k]
	}
	return "Unknown"
}

// Expr is the header stored in the expression arena. Payload indexes the
// per-kind arena selected by Kind. Type is filled in by type resolution.
type Expr struct {
	Kind    ExprKind
	Span    source.Span
	Payload PayloadID
	Type    types.TypeID
}

type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLogAnd
	OpLogOr
)

var binaryOpText = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpBitAnd: "&", OpBitOr: "|", OpBitXor: "^", OpShl: "<<", OpShr: ">>",
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpLogAnd: "&&", OpLogOr: "||",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpText) {
		return binaryOpText[op]
	}
	return "?"
}

// ParseBinaryOp maps operator text to BinaryOp.
func ParseBinaryOp(s string) (BinaryOp, bool) {
	for i, text := range binaryOpText {
		if text == s {
			return BinaryOp(i), true // #nosec G115 -- small table
		}
	}
	return 0, false
}

// IsComparison reports ==, !=, <, <=, > and >=.
func (op BinaryOp) IsComparison() bool {
	return op >= OpEq && op <= OpGe
}

// IsLogical reports && and ||.
func (op BinaryOp) IsLogical() bool {
	return op == OpLogAnd || op == OpLogOr
}

// IsShift reports << and >>.
func (op BinaryOp) IsShift() bool {
	return op == OpShl || op == OpShr
}

type UnaryOp uint8

const (
	OpLogNot UnaryOp = iota
	OpBitNot
	OpNeg
	OpDeref
	OpIncr
	OpDecr
)

var unaryOpText = [...]string{
	OpLogNot: "!", OpBitNot: "~", OpNeg: "-", OpDeref: "*", OpIncr: "++", OpDecr: "--",
}

func (op UnaryOp) String() string {
	if int(op) < len(unaryOpText) {
		return unaryOpText[op]
	}
	return "?"
}

// ParseUnaryOp maps operator text to UnaryOp.
func ParseUnaryOp(s string) (UnaryOp, bool) {
	for i, text := range unaryOpText {
		if text == s {
			return UnaryOp(i), true // #nosec G115 -- small table
		}
	}
	return 0, false
}

// Payloads --------------------------------------------------------------------

// IntegerData is an integer literal. Negative literals keep their magnitude.
type IntegerData struct {
	Value    uint64
	Negative bool
}

// Int64 returns the literal as a signed value.
func (d *IntegerData) Int64() int64 {
	if d.Negative {
		return -int64(d.Value) // #nosec G115 -- two's complement wrap is intended
	}
	return int64(d.Value) // #nosec G115
}

type BooleanData struct {
	Value bool
}

type StringData struct {
	Value string
}

// BuiltinData is a builtin variable such as pid, ctx, args, arg0 or retval.
type BuiltinData struct {
	Name string
}

// IdentData is a bare identifier (enum variant, stack mode, type name).
type IdentData struct {
	Name string
}

type CallData struct {
	Func string
	Args []ExprID
	// Injected marks exit-like calls that already got a return after them.
	Injected bool
}

// SizeofData holds either a type spelling or an expression operand.
type SizeofData struct {
	TypeName string
	Expr     ExprID
}

// OffsetofData holds the record (type spelling or expression) and the field path.
type OffsetofData struct {
	TypeName string
	Expr     ExprID
	Fields   []string
}

// MapData is a map access. Key is NoExprID for scalar maps.
type MapData struct {
	Name string
	Key  ExprID
}

type VariableData struct {
	Name string
}

type BinaryData struct {
	Op    BinaryOp
	Left  ExprID
	Right ExprID
}

type UnaryData struct {
	Op      UnaryOp
	Operand ExprID
	Postfix bool
}

type FieldData struct {
	Target ExprID
	Field  string
}

type IndexData struct {
	Target ExprID
	Index  ExprID
}

type TupleIndexData struct {
	Target ExprID
	Index  uint32
}

// CastData converts Value to TypeName. Implicit casts carry no spelling;
// their target is the cast node's own Type.
type CastData struct {
	TypeName string
	Value    ExprID
	Implicit bool
}

type TupleData struct {
	Elems []ExprID
}

type NamedExpr struct {
	Name string
	Span source.Span
	Expr ExprID
}

type RecordData struct {
	Fields []NamedExpr
}

// IfData is both the if statement (Then/Else are blocks) and the ternary.
// Else may be NoExprID.
type IfData struct {
	Cond ExprID
	Then ExprID
	Else ExprID
}

// BlockData is a sequence of statements with an optional trailing value.
type BlockData struct {
	Stmts []StmtID
	Value ExprID
}

type ComptimeData struct {
	Expr ExprID
}
