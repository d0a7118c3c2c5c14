package meta

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when the snapshot layout changes
const snapshotSchemaVersion uint16 = 1

// ErrSnapshotSchema reports a snapshot written by an incompatible version.
var ErrSnapshotSchema = errors.New("meta: snapshot schema mismatch")

type snapshotFile struct {
	Schema  uint16
	Catalog *Catalog
}

// WriteSnapshot encodes c as a msgpack snapshot.
func WriteSnapshot(w io.Writer, c *Catalog) error {
	enc := msgpack.NewEncoder(w)
	return enc.Encode(&snapshotFile{Schema: snapshotSchemaVersion, Catalog: c})
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (*Catalog, error) {
	var file snapshotFile
	if err := msgpack.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if file.Schema != snapshotSchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSnapshotSchema, file.Schema, snapshotSchemaVersion)
	}
	if file.Catalog == nil {
		return &Catalog{}, nil
	}
	return file.Catalog, nil
}

// SaveSnapshot writes a snapshot file atomically.
func SaveSnapshot(path string, c *Catalog) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	if err = WriteSnapshot(f, c); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	// атомарная замена
	return os.Rename(f.Name(), path)
}

// LoadSnapshot reads a snapshot file.
func LoadSnapshot(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// CaptureRequest selects what Capture copies out of a provider.
type CaptureRequest struct {
	Structs []string
	Funcs   []string
	Globals []string
	Enums   []string
	// Iterators copies every iterator and its context struct.
	Iterators bool
}

// Capture copies the requested entries of p into a catalog. Named records
// reachable from captured types are captured as well; anonymous nested
// records are stored as opaque byte arrays.
func Capture(p Provider, req CaptureRequest) (*Catalog, error) {
	cp := &capturer{p: p, out: &Catalog{}, seen: make(map[string]bool)}
	for _, name := range req.Funcs {
		fn, err := p.Func(name)
		if err != nil {
			return nil, err
		}
		cf := CatalogFunc{Name: fn.Name, Linkage: fn.Linkage.String()}
		if fn.Return != nil {
			cf.Return = cp.spell(*fn.Return)
		}
		for _, param := range fn.Params {
			cf.Params = append(cf.Params, CatalogParam{Name: param.Name, Type: cp.spell(param.Type)})
		}
		cp.out.Funcs = append(cp.out.Funcs, cf)
	}
	for _, name := range req.Globals {
		t, err := p.Global(name)
		if err != nil {
			return nil, err
		}
		cp.out.Globals = append(cp.out.Globals, CatalogGlobal{Name: name, Type: cp.spell(*t)})
	}
	for _, name := range req.Enums {
		cp.enum(name)
	}
	structs := append([]string(nil), req.Structs...)
	if req.Iterators {
		iters, err := p.Iterators()
		if err != nil {
			return nil, err
		}
		cp.out.Iters = iters
		for _, it := range iters {
			structs = append(structs, IterStructName(it))
		}
	}
	for _, name := range structs {
		if err := cp.record(name); err != nil {
			return nil, err
		}
	}
	// зависимости: отсутствующие определения допустимы
	for len(cp.pending) > 0 {
		name := cp.pending[0]
		cp.pending = cp.pending[1:]
		if err := cp.record(name); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return cp.out, cp.err
}

type capturer struct {
	p       Provider
	out     *Catalog
	seen    map[string]bool
	pending []string
	err     error
}

func (c *capturer) record(name string) error {
	if c.seen[name] {
		return nil
	}
	c.seen[name] = true
	s, err := c.p.Struct(name)
	if err != nil {
		return err
	}
	cs := CatalogStruct{Name: s.Name, Size: s.Size}
	for _, f := range s.Fields {
		cf := CatalogField{
			Name:      f.Name,
			Type:      c.spell(f.Type),
			Offset:    f.Offset,
			BitOffset: f.BitOffset,
			BitWidth:  f.BitWidth,
		}
		if f.Type.Kind == KindPointer {
			cf.Tag = f.Type.Tag
		}
		cs.Fields = append(cs.Fields, cf)
	}
	c.out.Structs = append(c.out.Structs, cs)
	return nil
}

func (c *capturer) enum(name string) {
	if c.seen[name] {
		return
	}
	c.seen[name] = true
	e, err := c.p.Enum(name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && c.err == nil {
			c.err = err
		}
		return
	}
	c.out.Enums = append(c.out.Enums, CatalogEnum{Name: e.Name, Size: e.Size, Signed: e.Signed, Values: e.Values})
}

// spell renders t and queues the named records it mentions.
func (c *capturer) spell(t Type) string {
	switch t.Kind {
	case KindStruct, KindUnion:
		if t.Name == "" {
			return "uint8[" + strconv.FormatUint(uint64(t.Size), 10) + "]"
		}
		if !c.seen[t.Name] {
			c.pending = append(c.pending, t.Name)
		}
	case KindEnum:
		if t.Name == "" {
			return Int(t.Size, t.Signed).String()
		}
		c.enum(t.Name)
	case KindPointer:
		if t.Elem != nil && t.Elem.IsRecord() && t.Elem.Name != "" {
			// указатели не требуют определения, но оно пригодится для доступа к полям
			if !c.seen[t.Elem.Name] {
				c.pending = append(c.pending, t.Elem.Name)
			}
			return t.String()
		}
		if t.Elem != nil && t.Elem.Kind == KindUnknown {
			return "void *"
		}
		if t.Elem != nil {
			inner := c.spell(*t.Elem)
			if inner[len(inner)-1] == '*' {
				return inner + "*"
			}
			return inner + " *"
		}
	case KindArray:
		if t.Elem != nil && (t.Elem.Kind == KindStruct || t.Elem.Kind == KindUnion) && t.Elem.Name == "" {
			return "uint8[" + strconv.FormatUint(uint64(t.Size), 10) + "]"
		}
		if t.Elem != nil {
			c.spell(*t.Elem)
		}
	case KindUnknown:
		return "uint8[" + strconv.FormatUint(uint64(max(t.Size, 1)), 10) + "]"
	}
	return t.String()
}
