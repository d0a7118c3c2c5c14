package meta

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cilium/ebpf/btf"
)

// TypeSource is the part of a BTF spec the provider needs.
type TypeSource interface {
	// TypesByName returns every type called name (without "struct "
	// prefixes); it fails with btf.ErrNotFound when there is none.
	TypesByName(name string) ([]btf.Type, error)
	// FuncNames lists every function in the source.
	FuncNames() []string
}

type specSource struct {
	spec *btf.Spec
}

func (s specSource) TypesByName(name string) ([]btf.Type, error) {
	return s.spec.AnyTypesByName(name)
}

func (s specSource) FuncNames() []string {
	var out []string
	iter := s.spec.Iterate()
	for iter.Next() {
		if fn, ok := iter.Type.(*btf.Func); ok {
			out = append(out, fn.Name)
		}
	}
	return out
}

// BTFProvider answers metadata queries from BTF type information.
// Tracepoint formats and user debug info are not part of BTF.
type BTFProvider struct {
	src   TypeSource
	cache map[string]*Struct
}

var _ Provider = (*BTFProvider)(nil)

// NewBTFProvider wraps a type source.
func NewBTFProvider(src TypeSource) *BTFProvider {
	return &BTFProvider{src: src, cache: make(map[string]*Struct)}
}

// LoadBTF reads BTF from an ELF file or a raw BTF blob such as
// /sys/kernel/btf/vmlinux.
func LoadBTF(path string) (*BTFProvider, error) {
	spec, err := btf.LoadSpec(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load BTF from %s: %w", path, err)
	}
	return NewBTFProvider(specSource{spec: spec}), nil
}

// KernelBTF loads the running kernel's BTF.
func KernelBTF() (*BTFProvider, error) {
	spec, err := btf.LoadKernelSpec()
	if err != nil {
		return nil, fmt.Errorf("failed to load kernel BTF: %w", err)
	}
	return NewBTFProvider(specSource{spec: spec}), nil
}

func (p *BTFProvider) lookup(name string) ([]btf.Type, error) {
	found, err := p.src.TypesByName(name)
	if errors.Is(err, btf.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (p *BTFProvider) Struct(name string) (*Struct, error) {
	if s, ok := p.cache[name]; ok {
		return s, nil
	}
	var bare string
	union := false
	switch {
	case strings.HasPrefix(name, "struct "):
		bare = strings.TrimPrefix(name, "struct ")
	case strings.HasPrefix(name, "union "):
		bare = strings.TrimPrefix(name, "union ")
		union = true
	default:
		return nil, fmt.Errorf("%w: %q is not a record name", ErrIncompatible, name)
	}
	found, err := p.lookup(bare)
	if err != nil {
		return nil, err
	}
	for _, t := range found {
		var out *Struct
		switch v := t.(type) {
		case *btf.Struct:
			if union {
				continue
			}
			out = &Struct{Name: name, Size: v.Size, Fields: convertMembers(v.Members, 0)}
		case *btf.Union:
			if !union {
				continue
			}
			out = &Struct{Name: name, Size: v.Size, Fields: convertMembers(v.Members, 0)}
		default:
			continue
		}
		p.cache[name] = out
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (p *BTFProvider) Enum(name string) (*Enum, error) {
	found, err := p.lookup(strings.TrimPrefix(name, "enum "))
	if err != nil {
		return nil, err
	}
	for _, t := range found {
		if e, ok := t.(*btf.Enum); ok {
			out := &Enum{Name: name, Size: e.Size, Signed: e.Signed}
			for _, v := range e.Values {
				out.Values = append(out.Values, EnumValue{Name: v.Name, Value: v.Value})
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (p *BTFProvider) Func(name string) (*Func, error) {
	found, err := p.lookup(name)
	if err != nil {
		return nil, err
	}
	for _, t := range found {
		fn, ok := t.(*btf.Func)
		if !ok {
			continue
		}
		proto, ok := fn.Type.(*btf.FuncProto)
		if !ok {
			return nil, fmt.Errorf("%w: function %s has no prototype", ErrIncompatible, name)
		}
		out := &Func{Name: name, Linkage: convertLinkage(fn.Linkage)}
		if _, void := proto.Return.(*btf.Void); !void && proto.Return != nil {
			ret := convertType(proto.Return)
			out.Return = &ret
		}
		for _, param := range proto.Params {
			out.Params = append(out.Params, Param{Name: param.Name, Type: convertType(param.Type)})
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: function %s", ErrNotFound, name)
}

func (p *BTFProvider) Global(name string) (*Type, error) {
	found, err := p.lookup(name)
	if err != nil {
		return nil, err
	}
	for _, t := range found {
		if v, ok := t.(*btf.Var); ok {
			out := convertType(v.Type)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: global %s", ErrNotFound, name)
}

// Iterators lists iterators that have both a bpf_iter_<name> function and a
// bpf_iter__<name> context struct.
func (p *BTFProvider) Iterators() ([]string, error) {
	var out []string
	for _, fn := range p.src.FuncNames() {
		name, ok := strings.CutPrefix(fn, "bpf_iter_")
		if !ok || name == "" || strings.HasPrefix(name, "_") {
			continue
		}
		if _, err := p.Struct(IterStructName(name)); err == nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (p *BTFProvider) TracepointFormat(category, event string) (*Struct, error) {
	return nil, fmt.Errorf("%w: tracepoint %s:%s", ErrNotFound, category, event)
}

func (p *BTFProvider) DebugArgs(target, fn string) (*Func, error) {
	return nil, fmt.Errorf("%w: debug info for %s:%s", ErrNotFound, target, fn)
}

func convertLinkage(l btf.FuncLinkage) Linkage {
	switch l {
	case btf.StaticFunc:
		return LinkageStatic
	case btf.ExternFunc:
		return LinkageExtern
	}
	return LinkageGlobal
}

// convertMembers flattens anonymous struct/union members into the parent.
func convertMembers(members []btf.Member, base uint32) []Field {
	out := make([]Field, 0, len(members))
	for _, m := range members {
		bits := uint32(m.Offset)
		offset := base + bits/8
		if m.Name == "" {
			switch v := skipQualifiers(m.Type).(type) {
			case *btf.Struct:
				out = append(out, convertMembers(v.Members, offset)...)
				continue
			case *btf.Union:
				out = append(out, convertMembers(v.Members, offset)...)
				continue
			}
		}
		f := Field{Name: m.Name, Type: convertType(m.Type), Offset: offset}
		if m.BitfieldSize != 0 {
			f.BitOffset = bits % 8
			f.BitWidth = uint32(m.BitfieldSize)
		}
		out = append(out, f)
	}
	return out
}

func skipQualifiers(t btf.Type) btf.Type {
	for i := 0; i < 32; i++ {
		switch v := t.(type) {
		case *btf.Typedef:
			t = v.Type
		case *btf.Const:
			t = v.Type
		case *btf.Volatile:
			t = v.Type
		case *btf.Restrict:
			t = v.Type
		default:
			inner, _, ok := typeTag(t)
			if !ok {
				return t
			}
			t = inner
		}
	}
	return t
}

var btfPkgPath = reflect.TypeOf(btf.Int{}).PkgPath()

// typeTag раскрывает узел BTF_KIND_TYPE_TAG. Пакет btf не экспортирует
// этот тип, поэтому поля читаются через reflect.
func typeTag(t btf.Type) (btf.Type, string, bool) {
	v := reflect.ValueOf(t)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, "", false
	}
	e := v.Elem()
	if e.Kind() != reflect.Struct || e.Type().Name() != "typeTag" || e.Type().PkgPath() != btfPkgPath {
		return nil, "", false
	}
	inner, _ := e.FieldByName("Type").Interface().(btf.Type)
	return inner, e.FieldByName("Value").String(), true
}

func convertType(t btf.Type) Type {
	switch v := skipQualifiers(t).(type) {
	case *btf.Void:
		return Void()
	case *btf.Int:
		if v.Encoding&btf.Bool != 0 {
			return Type{Kind: KindBool, Size: 1}
		}
		return Int(v.Size, v.Encoding&btf.Signed != 0 || v.Encoding&btf.Char != 0)
	case *btf.Enum:
		return Type{Kind: KindEnum, Name: enumName(v), Size: v.Size, Signed: v.Signed}
	case *btf.Pointer:
		out := PointerTo(convertType(v.Target))
		if _, tag, ok := typeTag(v.Target); ok {
			out.Tag = tag
		}
		return out
	case *btf.Array:
		return ArrayOf(convertType(v.Type), v.Nelems)
	case *btf.Struct:
		if v.Name == "" {
			return Type{Kind: KindStruct, Size: v.Size, Fields: convertMembers(v.Members, 0)}
		}
		return Type{Kind: KindStruct, Name: "struct " + v.Name, Size: v.Size}
	case *btf.Union:
		if v.Name == "" {
			return Type{Kind: KindUnion, Size: v.Size, Fields: convertMembers(v.Members, 0)}
		}
		return Type{Kind: KindUnion, Name: "union " + v.Name, Size: v.Size}
	case *btf.Fwd:
		if v.Kind == btf.FwdUnion {
			return Named(KindUnion, "union "+v.Name)
		}
		return Named(KindStruct, "struct "+v.Name)
	case *btf.FuncProto:
		// указатели на функции читаются как void *
		return Void()
	}
	return Type{Kind: KindUnknown}
}

func enumName(e *btf.Enum) string {
	if e.Name == "" {
		return ""
	}
	return "enum " + e.Name
}
