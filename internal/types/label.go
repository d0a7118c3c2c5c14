package types

import (
	"fmt"
	"strings"
)

// Label returns the user-facing spelling of a type, as used in diagnostics.
func Label(in *Interner, id TypeID) string {
	return labelDepth(in, id, 0)
}

func labelDepth(in *Interner, id TypeID, depth int) string {
	if in == nil {
		return "?"
	}
	if depth > 6 {
		return "..."
	}
	t, ok := in.Lookup(id)
	if !ok {
		return "?"
	}
	switch t.Kind {
	case KindNone:
		return "none"
	case KindInt:
		if t.Signed {
			return fmt.Sprintf("int%d", t.Size*8)
		}
		return fmt.Sprintf("uint%d", t.Size*8)
	case KindPointer:
		return labelDepth(in, t.Elem, depth+1) + " *"
	case KindArray:
		return fmt.Sprintf("%s[%d]", labelDepth(in, t.Elem, depth+1), t.Count)
	case KindString:
		return fmt.Sprintf("string[%d]", t.Size)
	case KindBuffer:
		return fmt.Sprintf("buffer[%d]", t.Size)
	case KindTuple:
		elems := in.TupleElems(id)
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = labelDepth(in, e, depth+1)
		}
		return "(" + strings.Join(parts, ",") + ")"
	case KindRecord:
		info, ok := in.RecordInfo(id)
		if !ok {
			return "record"
		}
		if info.Name != "" {
			return info.Name
		}
		parts := make([]string, len(info.Fields))
		for i, f := range info.Fields {
			parts[i] = f.Name + "=" + labelDepth(in, f.Type, depth+1)
		}
		return "record(" + strings.Join(parts, ",") + ")"
	case KindEnum:
		if info, ok := in.EnumInfo(id); ok && info.Name != "" {
			if strings.HasPrefix(info.Name, "enum ") {
				return info.Name
			}
			return "enum " + info.Name
		}
		return fmt.Sprintf("uint%d", t.Size*8)
	case KindKStack, KindUStack:
		return fmt.Sprintf("%s(%s, %d)", t.Kind, t.StackMode(), t.Count)
	case KindCount, KindSum, KindMin, KindMax, KindAvg, KindStats:
		if t.Signed {
			return t.Kind.String()
		}
		return "u" + t.Kind.String()
	}
	return t.Kind.String()
}

// LabelFor is Label for call sites holding a descriptor rather than an id.
func LabelFor(in *Interner, t Type) string {
	return Label(in, in.Intern(t))
}
