package meta

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is a metadata provider backed by a YAML document or a msgpack
// snapshot. Type spellings are stored as text and parsed with ParseCType.
type Catalog struct {
	Structs     []CatalogStruct     `yaml:"structs,omitempty" msgpack:"structs"`
	Enums       []CatalogEnum       `yaml:"enums,omitempty" msgpack:"enums"`
	Funcs       []CatalogFunc       `yaml:"funcs,omitempty" msgpack:"funcs"`
	Globals     []CatalogGlobal     `yaml:"globals,omitempty" msgpack:"globals"`
	Iters       []string            `yaml:"iterators,omitempty" msgpack:"iterators"`
	Tracepoints []CatalogTracepoint `yaml:"tracepoints,omitempty" msgpack:"tracepoints"`
	DebugInfo   []CatalogDebugFunc  `yaml:"debug_info,omitempty" msgpack:"debug_info"`

	structIdx map[string]*Struct
}

type CatalogField struct {
	Name      string `yaml:"name" msgpack:"n"`
	Type      string `yaml:"type" msgpack:"t"`
	Offset    uint32 `yaml:"offset" msgpack:"o"`
	BitOffset uint32 `yaml:"bit_offset,omitempty" msgpack:"bo,omitempty"`
	BitWidth  uint32 `yaml:"bit_width,omitempty" msgpack:"bw,omitempty"`
	Tag       string `yaml:"tag,omitempty" msgpack:"tag,omitempty"`
}

type CatalogStruct struct {
	Name   string         `yaml:"name" msgpack:"n"`
	Size   uint32         `yaml:"size" msgpack:"s"`
	Fields []CatalogField `yaml:"fields" msgpack:"f"`
}

type CatalogEnum struct {
	Name   string      `yaml:"name" msgpack:"n"`
	Size   uint32      `yaml:"size" msgpack:"s"`
	Signed bool        `yaml:"signed,omitempty" msgpack:"sg,omitempty"`
	Values []EnumValue `yaml:"values" msgpack:"v"`
}

type CatalogParam struct {
	Name string `yaml:"name" msgpack:"n"`
	Type string `yaml:"type" msgpack:"t"`
}

type CatalogFunc struct {
	Name    string         `yaml:"name" msgpack:"n"`
	Linkage string         `yaml:"linkage,omitempty" msgpack:"l,omitempty"`
	Return  string         `yaml:"return,omitempty" msgpack:"r,omitempty"`
	Params  []CatalogParam `yaml:"params" msgpack:"p"`
}

type CatalogGlobal struct {
	Name string `yaml:"name" msgpack:"n"`
	Type string `yaml:"type" msgpack:"t"`
}

// CatalogTracepoint holds the raw tracefs format text of one event.
type CatalogTracepoint struct {
	Category string `yaml:"category" msgpack:"c"`
	Event    string `yaml:"event" msgpack:"e"`
	Format   string `yaml:"format" msgpack:"f"`
}

// CatalogDebugFunc is the debug-info signature of a user-space function.
type CatalogDebugFunc struct {
	Target string         `yaml:"target" msgpack:"t"`
	Func   string         `yaml:"func" msgpack:"f"`
	Params []CatalogParam `yaml:"params" msgpack:"p"`
}

var _ Provider = (*Catalog)(nil)

// LoadCatalog reads a YAML catalog from disk.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	c, err := DecodeCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// DecodeCatalog decodes and validates a YAML catalog.
func DecodeCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c Catalog
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks every type spelling and tracepoint format in the catalog.
func (c *Catalog) Validate() error {
	for _, s := range c.Structs {
		if !strings.HasPrefix(s.Name, "struct ") && !strings.HasPrefix(s.Name, "union ") {
			return fmt.Errorf("struct %q: name must start with \"struct \" or \"union \"", s.Name)
		}
		for _, f := range s.Fields {
			if _, err := ParseCType(f.Type); err != nil {
				return fmt.Errorf("%s.%s: %w", s.Name, f.Name, err)
			}
		}
	}
	for _, fn := range c.Funcs {
		if _, ok := ParseLinkage(fn.Linkage); !ok {
			return fmt.Errorf("func %s: unknown linkage %q", fn.Name, fn.Linkage)
		}
		if _, err := c.convertFunc(fn.Name, fn.Linkage, fn.Return, fn.Params); err != nil {
			return err
		}
	}
	for _, g := range c.Globals {
		if _, err := ParseCType(g.Type); err != nil {
			return fmt.Errorf("global %s: %w", g.Name, err)
		}
	}
	for _, tp := range c.Tracepoints {
		if _, err := ParseFormat(tp.Category, tp.Event, strings.NewReader(tp.Format)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) Struct(name string) (*Struct, error) {
	if s, ok := c.structIdx[name]; ok {
		return s, nil
	}
	for _, cs := range c.Structs {
		if cs.Name != name {
			continue
		}
		out := &Struct{Name: cs.Name, Size: cs.Size, Fields: make([]Field, 0, len(cs.Fields))}
		for _, f := range cs.Fields {
			t, err := ParseCType(f.Type)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", name, f.Name, err)
			}
			if f.Tag != "" && t.Kind == KindPointer {
				t.Tag = f.Tag
			}
			out.Fields = append(out.Fields, Field{
				Name:      f.Name,
				Type:      t,
				Offset:    f.Offset,
				BitOffset: f.BitOffset,
				BitWidth:  f.BitWidth,
			})
		}
		if c.structIdx == nil {
			c.structIdx = make(map[string]*Struct)
		}
		c.structIdx[name] = out
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (c *Catalog) Enum(name string) (*Enum, error) {
	for _, e := range c.Enums {
		if e.Name == name {
			return &Enum{Name: e.Name, Size: e.Size, Signed: e.Signed, Values: append([]EnumValue(nil), e.Values...)}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (c *Catalog) Func(name string) (*Func, error) {
	for _, fn := range c.Funcs {
		if fn.Name == name {
			return c.convertFunc(fn.Name, fn.Linkage, fn.Return, fn.Params)
		}
	}
	return nil, fmt.Errorf("%w: function %s", ErrNotFound, name)
}

func (c *Catalog) convertFunc(name, linkage, ret string, params []CatalogParam) (*Func, error) {
	l, _ := ParseLinkage(linkage)
	out := &Func{Name: name, Linkage: l, Params: make([]Param, 0, len(params))}
	if ret != "" && ret != "void" {
		t, err := ParseCType(ret)
		if err != nil {
			return nil, fmt.Errorf("func %s return: %w", name, err)
		}
		out.Return = &t
	}
	for _, p := range params {
		t, err := ParseCType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("func %s param %s: %w", name, p.Name, err)
		}
		out.Params = append(out.Params, Param{Name: p.Name, Type: t})
	}
	return out, nil
}

func (c *Catalog) Global(name string) (*Type, error) {
	for _, g := range c.Globals {
		if g.Name == name {
			t, err := ParseCType(g.Type)
			if err != nil {
				return nil, fmt.Errorf("global %s: %w", name, err)
			}
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: global %s", ErrNotFound, name)
}

func (c *Catalog) Iterators() ([]string, error) {
	out := append([]string(nil), c.Iters...)
	sort.Strings(out)
	return out, nil
}

func (c *Catalog) TracepointFormat(category, event string) (*Struct, error) {
	for _, tp := range c.Tracepoints {
		if tp.Category == category && tp.Event == event {
			return ParseFormat(category, event, strings.NewReader(tp.Format))
		}
	}
	return nil, fmt.Errorf("%w: tracepoint %s:%s", ErrNotFound, category, event)
}

func (c *Catalog) DebugArgs(target, fn string) (*Func, error) {
	for _, d := range c.DebugInfo {
		if d.Func == fn && (d.Target == target || d.Target == "*") {
			return c.convertFunc(fn, "", "", d.Params)
		}
	}
	return nil, fmt.Errorf("%w: debug info for %s:%s", ErrNotFound, target, fn)
}

// Merge appends the entries of other. Earlier entries win on lookups.
func (c *Catalog) Merge(other *Catalog) {
	c.Structs = append(c.Structs, other.Structs...)
	c.Enums = append(c.Enums, other.Enums...)
	c.Funcs = append(c.Funcs, other.Funcs...)
	c.Globals = append(c.Globals, other.Globals...)
	c.Iters = append(c.Iters, other.Iters...)
	c.Tracepoints = append(c.Tracepoints, other.Tracepoints...)
	c.DebugInfo = append(c.DebugInfo, other.DebugInfo...)
	c.structIdx = nil
}
