package meta

import (
	"fmt"
	"strconv"
	"strings"
)

// ErrBadTypeSpelling is wrapped by ParseType and ParseCType errors.
var ErrBadTypeSpelling = fmt.Errorf("%w: bad type spelling", ErrIncompatible)

var canonicalInts = map[string]Type{
	"int8":   Int(1, true),
	"int16":  Int(2, true),
	"int32":  Int(4, true),
	"int64":  Int(8, true),
	"uint8":  Int(1, false),
	"uint16": Int(2, false),
	"uint32": Int(4, false),
	"uint64": Int(8, false),
}

// C spellings accepted in catalogs and tracepoint formats.
var cInts = map[string]Type{
	"char":                   Int(1, true),
	"signed char":            Int(1, true),
	"unsigned char":          Int(1, false),
	"short":                  Int(2, true),
	"short int":              Int(2, true),
	"signed short":           Int(2, true),
	"unsigned short":         Int(2, false),
	"unsigned short int":     Int(2, false),
	"int":                    Int(4, true),
	"signed":                 Int(4, true),
	"signed int":             Int(4, true),
	"unsigned":               Int(4, false),
	"unsigned int":           Int(4, false),
	"long":                   Int(8, true),
	"long int":               Int(8, true),
	"signed long":            Int(8, true),
	"unsigned long":          Int(8, false),
	"unsigned long int":      Int(8, false),
	"long long":              Int(8, true),
	"long long int":          Int(8, true),
	"unsigned long long":     Int(8, false),
	"unsigned long long int": Int(8, false),
	"u8":                     Int(1, false),
	"u16":                    Int(2, false),
	"u32":                    Int(4, false),
	"u64":                    Int(8, false),
	"s8":                     Int(1, true),
	"s16":                    Int(2, true),
	"s32":                    Int(4, true),
	"s64":                    Int(8, true),
	"__u8":                   Int(1, false),
	"__u16":                  Int(2, false),
	"__u32":                  Int(4, false),
	"__u64":                  Int(8, false),
	"__s8":                   Int(1, true),
	"__s16":                  Int(2, true),
	"__s32":                  Int(4, true),
	"__s64":                  Int(8, true),
	"size_t":                 Int(8, false),
	"ssize_t":                Int(8, true),
	"pid_t":                  Int(4, true),
	"uid_t":                  Int(4, false),
	"gid_t":                  Int(4, false),
	"dev_t":                  Int(4, false),
	"loff_t":                 Int(8, true),
}

// KnownTypeAliases maps C integer spellings rejected by ParseType to the
// canonical name a user probably meant.
var KnownTypeAliases = map[string]string{
	"char":  "int8",
	"short": "int16",
	"int":   "int32",
	"long":  "int64",
}

// ParseType parses a canonical type spelling as written in programs:
// "uint32", "bool", "void", "string[16]", "buffer[8]", "struct foo *",
// "int8[4]", "int8[]" (unsized array), "enum state".
func ParseType(s string) (Type, error) {
	return parseType(s, false)
}

// ParseCType is ParseType extended with C integer spellings ("unsigned
// long", "u32", "pid_t") and qualifiers, used for external definitions.
func ParseCType(s string) (Type, error) {
	return parseType(s, true)
}

func parseType(s string, c bool) (Type, error) {
	spelling := strings.TrimSpace(s)
	if spelling == "" {
		return Type{}, fmt.Errorf("%w: empty", ErrBadTypeSpelling)
	}

	// суффиксы массивов, самый правый - внешний
	var counts []uint32
	for strings.HasSuffix(spelling, "]") {
		open := strings.LastIndexByte(spelling, '[')
		if open < 0 {
			return Type{}, fmt.Errorf("%w: %q", ErrBadTypeSpelling, s)
		}
		inner := strings.TrimSpace(spelling[open+1 : len(spelling)-1])
		var n uint64
		if inner != "" {
			var err error
			n, err = strconv.ParseUint(inner, 0, 32)
			if err != nil {
				return Type{}, fmt.Errorf("%w: array length %q", ErrBadTypeSpelling, inner)
			}
		}
		counts = append(counts, uint32(n))
		spelling = strings.TrimSpace(spelling[:open])
	}

	pointers := 0
	for strings.HasSuffix(spelling, "*") {
		pointers++
		spelling = strings.TrimSpace(spelling[:len(spelling)-1])
	}

	// string[N] и buffer[N] разбираются как база с длиной
	if (spelling == "string" || spelling == "buffer") && pointers == 0 && len(counts) > 0 {
		n := counts[len(counts)-1]
		counts = counts[:len(counts)-1]
		kind := KindString
		if spelling == "buffer" {
			kind = KindBuffer
		}
		return wrapArrays(Type{Kind: kind, Size: n}, counts), nil
	}

	base, err := parseBase(spelling, c)
	if err != nil {
		return Type{}, fmt.Errorf("%w: %q", err, s)
	}
	for i := 0; i < pointers; i++ {
		base = PointerTo(base)
	}
	return wrapArrays(base, counts), nil
}

func wrapArrays(t Type, counts []uint32) Type {
	// counts were collected right to left; the leftmost bracket is outermost
	for i := 0; i < len(counts); i++ {
		t = ArrayOf(t, counts[i])
	}
	return t
}

func parseBase(s string, c bool) (Type, error) {
	if c {
		s = stripQualifiers(s)
	}
	switch s {
	case "void":
		return Void(), nil
	case "bool", "_Bool":
		if s == "_Bool" && !c {
			break
		}
		return Type{Kind: KindBool, Size: 1}, nil
	case "string":
		return Type{Kind: KindString, Size: 0}, nil
	}
	if t, ok := canonicalInts[s]; ok {
		return t, nil
	}
	if c {
		if t, ok := cInts[s]; ok {
			return t, nil
		}
	}
	for _, prefix := range [...]struct {
		word string
		kind TypeKind
	}{{"struct ", KindStruct}, {"union ", KindUnion}, {"enum ", KindEnum}} {
		if name, ok := strings.CutPrefix(s, prefix.word); ok {
			name = strings.TrimSpace(name)
			if !isIdent(name) {
				return Type{}, ErrBadTypeSpelling
			}
			return Named(prefix.kind, prefix.word+name), nil
		}
	}
	return Type{}, fmt.Errorf("%w: unknown type", ErrNotFound)
}

func stripQualifiers(s string) string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		switch f {
		case "const", "volatile", "restrict", "__user", "__rcu", "__percpu":
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// String renders the canonical spelling accepted by ParseType.
func (t Type) String() string {
	switch t.Kind {
	case KindVoid:
		return "void"
	case KindBool:
		return "bool"
	case KindInt:
		prefix := "uint"
		if t.Signed {
			prefix = "int"
		}
		return prefix + strconv.FormatUint(uint64(t.Size)*8, 10)
	case KindPointer:
		if t.Elem == nil {
			return "void *"
		}
		elem := t.Elem.String()
		if strings.HasSuffix(elem, "*") {
			return elem + "*"
		}
		return elem + " *"
	case KindArray:
		elem := "void"
		if t.Elem != nil {
			elem = t.Elem.String()
		}
		// внутренние измерения должны оказаться правее
		if open := strings.IndexByte(elem, '['); open >= 0 && t.Elem.Kind == KindArray {
			return elem[:open] + "[" + countText(t.Count) + "]" + elem[open:]
		}
		return elem + "[" + countText(t.Count) + "]"
	case KindStruct, KindUnion, KindEnum:
		if t.Name == "" {
			return t.Kind.String() + " <anon>"
		}
		return t.Name
	case KindString:
		return "string[" + strconv.FormatUint(uint64(t.Size), 10) + "]"
	case KindBuffer:
		return "buffer[" + strconv.FormatUint(uint64(t.Size), 10) + "]"
	}
	return "unknown"
}

func countText(n uint32) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}
