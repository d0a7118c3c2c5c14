package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Входной документ программы
	InpInfo             Code = 1000
	InpBadDocument      Code = 1001
	InpUnknownNode      Code = 1002
	InpMissingField     Code = 1003
	InpBadLiteral       Code = 1004
	InpBadAttachPoint   Code = 1005
	InpDuplicateSubprog Code = 1006

	// Контекст пробы (ctx, args, argN, retval)
	CtxInfo              Code = 2000
	CtxNoDebugInfo       Code = 2001
	CtxUnknownField      Code = 2002
	CtxAmbiguousProbe    Code = 2003
	CtxArgsIncompatible  Code = 2004
	CtxUnknownStruct     Code = 2005
	CtxUnusable          Code = 2006
	CtxBuiltinNotAllowed Code = 2007
	CtxTracepointFormat  Code = 2008
	CtxBadArgIndex       Code = 2009

	// Поток управления
	FlwInfo            Code = 3000
	FlwUnreachableStmt Code = 3001
	FlwUnreachableExpr Code = 3002
	FlwJumpNotAllowed  Code = 3003
	FlwMissingReturn   Code = 3004

	// Вывод типов
	TypInfo               Code = 4000
	TypUnresolved         Code = 4001
	TypComptimeUnresolved Code = 4002
	TypMismatch           Code = 4003
	TypUndefinedVariable  Code = 4004
	TypUsedBeforeAssigned Code = 4005
	TypVarRedeclared      Code = 4006
	TypVarDeclAfterUse    Code = 4007
	TypVarNeverAssigned   Code = 4008
	TypInvalidVarDecl     Code = 4009
	TypSignMismatch       Code = 4010
	TypSignedDivision     Code = 4011
	TypAddrspaceMismatch  Code = 4012
	TypInvalidOperator    Code = 4013
	TypInvalidCondition   Code = 4014
	TypTernaryMismatch    Code = 4015
	TypBadIndex           Code = 4016
	TypIndexOutOfBounds   Code = 4017
	TypBadTupleIndex      Code = 4018
	TypBadFieldAccess     Code = 4019
	TypUnknownStruct      Code = 4020
	TypUnknownField       Code = 4021
	TypPointerTag         Code = 4022
	TypCommonTPField      Code = 4023
	TypBadCast            Code = 4024
	TypUnknownEnum        Code = 4025
	TypEnumVariant        Code = 4026
	TypAggregateInTuple   Code = 4027
	TypAssignMismatch     Code = 4028
	TypValueTooLarge      Code = 4029
	TypStringTruncated    Code = 4030
	TypBufferSize         Code = 4031
	TypContextAssign      Code = 4032
	TypUnroll             Code = 4033
	TypReturnMismatch     Code = 4034
	TypLoopShadow         Code = 4035
	TypLoopExpr           Code = 4036
	TypNotConverged       Code = 4037
	TypStringTooLong      Code = 4038
	TypUnknownType        Code = 4039
	TypPointerCompare     Code = 4040
	TypAggregateToVar     Code = 4041
	TypUnknownIdentifier  Code = 4042
	TypLiteralCompare     Code = 4043

	// Карты (@map)
	MapInfo            Code = 5000
	MapUndefined       Code = 5001
	MapKeyMismatch     Code = 5002
	MapValueMismatch   Code = 5003
	MapInvalidKey      Code = 5004
	MapAggregateCopy   Code = 5005
	MapDeclDisabled    Code = 5006
	MapDeclInvalidType Code = 5007
	MapDeclMaxEntries  Code = 5008
	MapUnused          Code = 5009
	MapDeclIncompat    Code = 5010
	MapLoopNoKeys      Code = 5011

	// Вызовы встроенных функций и финальная проверка
	ChkInfo               Code = 6000
	ChkUnknownFunction    Code = 6001
	ChkArity              Code = 6002
	ChkLiteralRequired    Code = 6003
	ChkArgType            Code = 6004
	ChkArgRange           Code = 6005
	ChkAggregateNotMapped Code = 6006
	ChkFeatureMissing     Code = 6007
	ChkProbeUnsupported   Code = 6008
	ChkMapStorage         Code = 6009
	ChkNotPrintable       Code = 6010

	// Метаданные типов (BTF, каталоги)
	MetInfo         Code = 7000
	MetNotFound     Code = 7001
	MetIncompatible Code = 7002
	MetLoadFailed   Code = 7003

	// Нарушение внутренних инвариантов
	BugInternal Code = 9001
)

var codeDescription = map[Code]string{
	UnknownCode:         "Unknown error",
	InpInfo:             "Input information",
	InpBadDocument:      "Malformed program document",
	InpUnknownNode:      "Unknown node kind",
	InpMissingField:     "Missing required field",
	InpBadLiteral:       "Invalid literal",
	InpBadAttachPoint:   "Invalid attach point",
	InpDuplicateSubprog: "Duplicate function definition",

	CtxInfo:              "Context information",
	CtxNoDebugInfo:       "No debug info for target",
	CtxUnknownField:      "Unknown context field",
	CtxAmbiguousProbe:    "Ambiguous probe types",
	CtxArgsIncompatible:  "Arguments incompatible across attach points",
	CtxUnknownStruct:     "Unknown context struct",
	CtxUnusable:          "Context unusable for probe type",
	CtxBuiltinNotAllowed: "Builtin not available for probe type",
	CtxTracepointFormat:  "Invalid tracepoint format",
	CtxBadArgIndex:       "Invalid argument index",

	FlwInfo:            "Control flow information",
	FlwUnreachableStmt: "Unreachable statement",
	FlwUnreachableExpr: "Unreachable expression",
	FlwJumpNotAllowed:  "Jump not allowed here",
	FlwMissingReturn:   "Missing return",

	TypInfo:               "Type information",
	TypUnresolved:         "Type cannot be resolved",
	TypComptimeUnresolved: "Comptime expression cannot be resolved",
	TypMismatch:           "Type mismatch",
	TypUndefinedVariable:  "Undefined variable",
	TypUsedBeforeAssigned: "Variable used before assignment",
	TypVarRedeclared:      "Variable redeclared",
	TypVarDeclAfterUse:    "Variable declared after use",
	TypVarNeverAssigned:   "Variable never assigned",
	TypInvalidVarDecl:     "Invalid variable declaration",
	TypSignMismatch:       "Integer sign mismatch",
	TypSignedDivision:     "Signed division",
	TypAddrspaceMismatch:  "Address space mismatch",
	TypInvalidOperator:    "Invalid operator for operand type",
	TypInvalidCondition:   "Invalid condition",
	TypTernaryMismatch:    "Ternary branch mismatch",
	TypBadIndex:           "Invalid index",
	TypIndexOutOfBounds:   "Index out of bounds",
	TypBadTupleIndex:      "Invalid tuple index",
	TypBadFieldAccess:     "Invalid field access",
	TypUnknownStruct:      "Unknown struct",
	TypUnknownField:       "Unknown field",
	TypPointerTag:         "Unsupported pointer tag",
	TypCommonTPField:      "Common tracepoint field",
	TypBadCast:            "Invalid cast",
	TypUnknownEnum:        "Unknown enum",
	TypEnumVariant:        "Unknown enum variant",
	TypAggregateInTuple:   "Aggregate inside tuple",
	TypAssignMismatch:     "Assignment type mismatch",
	TypValueTooLarge:      "Value does not fit",
	TypStringTruncated:    "String may be truncated",
	TypBufferSize:         "Buffer size mismatch",
	TypContextAssign:      "Context assigned to map",
	TypUnroll:             "Invalid unroll count",
	TypReturnMismatch:     "Return type mismatch",
	TypLoopShadow:         "Loop variable shadows",
	TypLoopExpr:           "Invalid loop expression",
	TypNotConverged:       "Type resolution did not converge",
	TypStringTooLong:      "String literal too long",
	TypUnknownType:        "Unknown type",
	TypPointerCompare:     "Distinct pointer comparison",
	TypAggregateToVar:     "Aggregate assigned to variable",
	TypUnknownIdentifier:  "Unknown identifier",
	TypLiteralCompare:     "Literal comparison always false",

	MapInfo:            "Map information",
	MapUndefined:       "Undefined map",
	MapKeyMismatch:     "Map key mismatch",
	MapValueMismatch:   "Map value mismatch",
	MapInvalidKey:      "Invalid map key",
	MapAggregateCopy:   "Aggregate copied between maps",
	MapDeclDisabled:    "Map declarations disabled",
	MapDeclInvalidType: "Invalid bpf map type",
	MapDeclMaxEntries:  "Invalid max entries",
	MapUnused:          "Unused map",
	MapDeclIncompat:    "Declared map type incompatible",
	MapLoopNoKeys:      "Map has no keys to iterate",

	ChkInfo:               "Check information",
	ChkUnknownFunction:    "Unknown function",
	ChkArity:              "Wrong number of arguments",
	ChkLiteralRequired:    "Literal argument required",
	ChkArgType:            "Invalid argument type",
	ChkArgRange:           "Argument out of range",
	ChkAggregateNotMapped: "Aggregate not assigned to map",
	ChkFeatureMissing:     "Missing kernel feature",
	ChkProbeUnsupported:   "Unsupported for probe type",
	ChkMapStorage:         "Map storage kind mismatch",
	ChkNotPrintable:       "Value not printable",

	MetInfo:         "Metadata information",
	MetNotFound:     "Type metadata not found",
	MetIncompatible: "Incompatible type metadata",
	MetLoadFailed:   "Metadata load failed",

	BugInternal: "Internal invariant violated",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("INP%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("CTX%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("FLW%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("TYP%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("MAP%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("CHK%04d", ic)
	case ic >= 7000 && ic < 8000:
		return fmt.Sprintf("MET%04d", ic)
	case ic >= 9000 && ic < 10000:
		return fmt.Sprintf("BUG%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
