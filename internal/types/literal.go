package types

import "math"

// LiteralType returns the smallest integer type holding a literal:
// unsigned for non-negative values, signed for negative ones. magnitude is
// the absolute value.
func LiteralType(magnitude uint64, negative bool) Type {
	if !negative {
		switch {
		case magnitude <= math.MaxUint8:
			return MakeInt(1, false)
		case magnitude <= math.MaxUint16:
			return MakeInt(2, false)
		case magnitude <= math.MaxUint32:
			return MakeInt(4, false)
		}
		return MakeInt(8, false)
	}
	switch {
	case magnitude <= 1<<7:
		return MakeInt(1, true)
	case magnitude <= 1<<15:
		return MakeInt(2, true)
	case magnitude <= 1<<31:
		return MakeInt(4, true)
	}
	return MakeInt(8, true)
}

// SignedLiteralType is the smallest signed type holding a non-negative
// literal, used when a literal must join a signed operand.
func SignedLiteralType(magnitude uint64) (Type, bool) {
	switch {
	case magnitude <= math.MaxInt8:
		return MakeInt(1, true), true
	case magnitude <= math.MaxInt16:
		return MakeInt(2, true), true
	case magnitude <= math.MaxInt32:
		return MakeInt(4, true), true
	case magnitude <= math.MaxInt64:
		return MakeInt(8, true), true
	}
	return Type{}, false
}

// LiteralFits reports whether the literal value fits into integer type t.
func LiteralFits(magnitude uint64, negative bool, t Type) bool {
	if t.Kind != KindInt || t.Size == 0 || t.Size > 8 {
		return false
	}
	bits := t.Size * 8
	if !t.Signed {
		if negative {
			return magnitude == 0
		}
		return bits == 64 || magnitude < uint64(1)<<bits
	}
	limit := uint64(1) << (bits - 1)
	if negative {
		return magnitude <= limit
	}
	return magnitude < limit
}
