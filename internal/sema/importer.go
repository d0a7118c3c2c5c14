package sema

import (
	"errors"
	"fmt"
	"strings"

	"tracec/internal/meta"
	"tracec/internal/types"
)

// importer turns provider-neutral metadata types into interned types.
// Named records are registered as placeholders and defined on demand, so
// pointer chains through large kernel structs stay cheap.
type importer struct {
	in       *types.Interner
	provider meta.Provider
	defining map[string]bool
	failed   map[string]error
}

func newImporter(in *types.Interner, p meta.Provider) *importer {
	if p == nil {
		p = meta.Chain{}
	}
	return &importer{
		in:       in,
		provider: p,
		defining: make(map[string]bool),
		failed:   make(map[string]error),
	}
}

// Parse reads a type spelling as written in programs ("uint32",
// "struct task_struct *", "int8[4]").
func (im *importer) Parse(spelling string) (types.TypeID, error) {
	t, err := meta.ParseType(spelling)
	if err != nil {
		return types.None, err
	}
	return im.Import(t)
}

// Import interns t. Records reached by value are defined eagerly because
// their size is needed; records behind pointers stay placeholders.
func (im *importer) Import(t meta.Type) (types.TypeID, error) {
	return im.importType(t, false)
}

func (im *importer) importType(t meta.Type, behindPointer bool) (types.TypeID, error) {
	b := im.in.Builtins()
	switch t.Kind {
	case meta.KindVoid:
		return b.Void, nil
	case meta.KindBool:
		return b.Bool, nil
	case meta.KindInt:
		if t.Size == 0 || t.Size > 8 {
			return types.None, fmt.Errorf("%w: %d byte integer", meta.ErrIncompatible, t.Size)
		}
		return im.in.Int(t.Size, t.Signed), nil
	case meta.KindString:
		return im.in.String(t.Size), nil
	case meta.KindBuffer:
		return im.in.Buffer(t.Size), nil
	case meta.KindPointer:
		if t.Elem == nil || t.Elem.Kind == meta.KindUnknown {
			return b.VoidPtr, nil
		}
		elem, err := im.importType(*t.Elem, true)
		if err != nil {
			return types.None, err
		}
		return im.in.Pointer(elem, types.ASNone), nil
	case meta.KindArray:
		if t.Elem == nil {
			return types.None, fmt.Errorf("%w: array without element type", meta.ErrIncompatible)
		}
		elem, err := im.importType(*t.Elem, false)
		if err != nil {
			return types.None, err
		}
		return im.in.Array(elem, t.Count), nil
	case meta.KindStruct, meta.KindUnion:
		if t.Name == "" {
			fields, err := im.fields(t.Fields)
			if err != nil {
				return types.None, err
			}
			return im.in.AnonRecord(fields), nil
		}
		id := im.in.LookupOrAddStruct(t.Name)
		if behindPointer {
			return id, nil
		}
		if err := im.Define(id); err != nil {
			return types.None, err
		}
		return id, nil
	case meta.KindEnum:
		if t.Name == "" {
			return im.in.Int(max(t.Size, 1), t.Signed), nil
		}
		return im.Enum(t.Name)
	}
	return types.None, fmt.Errorf("%w: cannot import %s", meta.ErrIncompatible, t.Kind)
}

// Struct returns the named record, defined from the provider.
func (im *importer) Struct(name string) (types.TypeID, error) {
	id := im.in.LookupOrAddStruct(name)
	if err := im.Define(id); err != nil {
		return types.None, err
	}
	return id, nil
}

// Define fills a named record placeholder from the provider. Records that
// are already defined (synthesised or imported earlier) are left alone.
func (im *importer) Define(id types.TypeID) error {
	info, ok := im.in.RecordInfo(id)
	if !ok {
		return fmt.Errorf("%w: not a record", meta.ErrIncompatible)
	}
	if info.Defined || info.Name == "" {
		return nil
	}
	name := info.Name
	if err, ok := im.failed[name]; ok {
		return err
	}
	if im.defining[name] {
		// самоссылка по значению невозможна, по указателю определение не нужно
		return nil
	}
	im.defining[name] = true
	defer delete(im.defining, name)

	s, err := im.provider.Struct(name)
	if err != nil {
		im.failed[name] = err
		return err
	}
	fields, err := im.fields(s.Fields)
	if err != nil {
		err = fmt.Errorf("%s: %w", name, err)
		im.failed[name] = err
		return err
	}
	im.in.DefineStruct(id, fields, s.Size)
	return nil
}

// DefineFrom fills a named record from an already fetched definition, used
// for tracepoint formats which are not served by Struct lookups.
func (im *importer) DefineFrom(s *meta.Struct) (types.TypeID, error) {
	id := im.in.LookupOrAddStruct(s.Name)
	if info, ok := im.in.RecordInfo(id); ok && info.Defined {
		return id, nil
	}
	fields, err := im.fields(s.Fields)
	if err != nil {
		return types.None, fmt.Errorf("%s: %w", s.Name, err)
	}
	im.in.DefineStruct(id, fields, s.Size)
	return id, nil
}

func (im *importer) fields(in []meta.Field) ([]types.Field, error) {
	out := make([]types.Field, 0, len(in))
	for _, f := range in {
		ft, err := im.importType(f.Type, false)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		field := types.Field{Name: f.Name, Type: ft, Offset: f.Offset}
		if f.BitWidth > 0 {
			field.Bitfield = &types.Bitfield{Offset: f.BitOffset, Width: f.BitWidth}
		}
		if f.Type.Kind == meta.KindPointer {
			field.Tag = f.Type.Tag
		}
		out = append(out, field)
	}
	return out, nil
}

// Enum returns the enum registered under name ("enum state"), fetching its
// variants from the provider the first time.
func (im *importer) Enum(name string) (types.TypeID, error) {
	if !strings.HasPrefix(name, "enum ") {
		name = "enum " + name
	}
	if id, ok := im.in.EnumByName(name); ok {
		return id, nil
	}
	if err, ok := im.failed[name]; ok {
		return types.None, err
	}
	e, err := im.provider.Enum(name)
	if err != nil {
		im.failed[name] = err
		return types.None, err
	}
	variants := make([]types.EnumVariant, len(e.Values))
	for i, v := range e.Values {
		variants[i] = types.EnumVariant{Name: v.Name, Value: v.Value}
	}
	return im.in.Enum(name, max(e.Size, 1), variants), nil
}

// Func fetches a kernel function signature.
func (im *importer) Func(name string) (*meta.Func, error) {
	return im.provider.Func(name)
}

// Global fetches the type of a kernel global variable.
func (im *importer) Global(name string) (*meta.Type, error) {
	return im.provider.Global(name)
}

// ArgsRecord builds the anonymous argument record of a function signature.
// withRet appends the return value as "$retval".
func (im *importer) ArgsRecord(fn *meta.Func, withRet bool) (types.TypeID, error) {
	fields := make([]types.Field, 0, len(fn.Params)+1)
	for i, p := range fn.Params {
		pt, err := im.Import(p.Type)
		if err != nil {
			return types.None, fmt.Errorf("%s: param %s: %w", fn.Name, p.Name, err)
		}
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		fields = append(fields, types.Field{Name: name, Type: pt})
	}
	if withRet && fn.Return != nil {
		rt, err := im.Import(*fn.Return)
		if err != nil {
			return types.None, fmt.Errorf("%s: return: %w", fn.Name, err)
		}
		fields = append(fields, types.Field{Name: retvalField, Type: rt})
	}
	return im.in.AnonRecord(fields), nil
}

// isNotFound reports a missing metadata entry as opposed to an unusable one.
func isNotFound(err error) bool {
	return errors.Is(err, meta.ErrNotFound)
}
