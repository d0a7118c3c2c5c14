package meta

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// ParseFormat converts a tracefs event format description into the
// argument record of the tracepoint. Lines look like
//
//	field:unsigned short common_type;	offset:0;	size:2;	signed:0;
//
// __data_loc fields become 32-bit "data_loc_<name>" integers.
func ParseFormat(category, event string, r io.Reader) (*Struct, error) {
	out := &Struct{Name: TracepointStructName(category, event)}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if !strings.Contains(line, "field:") {
			continue
		}
		f, size, err := parseFormatField(line)
		if err != nil {
			return nil, fmt.Errorf("tracepoint %s:%s line %d: %w", category, event, lineNo, err)
		}
		out.Fields = append(out.Fields, f)
		if end := f.Offset + size; end > out.Size {
			out.Size = end
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("tracepoint %s:%s: %w", category, event, err)
	}
	return out, nil
}

func parseFormatField(line string) (Field, uint32, error) {
	attrs := map[string]string{}
	for _, part := range strings.Split(line, ";") {
		part = strings.TrimSpace(part)
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		attrs[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	decl, ok := attrs["field"]
	if !ok {
		return Field{}, 0, errors.New("missing field declaration")
	}
	offset, err := formatNumber(attrs, "offset")
	if err != nil {
		return Field{}, 0, err
	}
	size, err := formatNumber(attrs, "size")
	if err != nil {
		return Field{}, 0, err
	}
	signed := attrs["signed"] == "1"

	cut := strings.LastIndexAny(decl, " \t")
	if cut < 0 {
		return Field{}, 0, fmt.Errorf("bad field declaration %q", decl)
	}
	typeText, name := strings.TrimSpace(decl[:cut]), strings.TrimSpace(decl[cut+1:])
	for strings.HasPrefix(name, "*") {
		typeText += " *"
		name = name[1:]
	}

	if strings.Contains(typeText, "__data_loc") {
		return Field{Name: "data_loc_" + name, Type: Int(4, true), Offset: offset}, size, nil
	}

	// char comm[16] -> тип char[16]
	if open := strings.IndexByte(name, '['); open >= 0 {
		typeText += name[open:]
		name = name[:open]
	}
	t, err := ParseCType(typeText)
	switch {
	case err == nil && t.Kind == KindInt && validIntSize(size):
		t = Int(size, t.Signed)
	case err == nil && t.Kind == KindArray && t.Count == 0 && t.Elem != nil && t.Elem.Size > 0:
		t = ArrayOf(*t.Elem, size/t.Elem.Size)
	case err == nil:
	case errors.Is(err, ErrNotFound) && validIntSize(size):
		// typedef неизвестен: ширина и знак из описания
		t = Int(size, signed)
	case errors.Is(err, ErrNotFound):
		t = ArrayOf(Int(1, false), size)
	default:
		return Field{}, 0, err
	}
	return Field{Name: name, Type: t, Offset: offset}, size, nil
}

func formatNumber(attrs map[string]string, key string) (uint32, error) {
	raw, ok := attrs[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: %w", key, raw, err)
	}
	return uint32(n), nil
}

func validIntSize(n uint32) bool {
	return n == 1 || n == 2 || n == 4 || n == 8
}

// DefaultTracefsRoots are probed in order by NewTracefs with an empty root.
var DefaultTracefsRoots = []string{"/sys/kernel/tracing", "/sys/kernel/debug/tracing"}

// Tracefs reads tracepoint formats from a mounted tracefs (or a copy of
// its events directory). It only answers TracepointFormat.
type Tracefs struct {
	fsys fs.FS
}

var _ Provider = (*Tracefs)(nil)

// NewTracefs opens root; an empty root probes DefaultTracefsRoots.
func NewTracefs(root string) (*Tracefs, error) {
	if root != "" {
		return &Tracefs{fsys: os.DirFS(root)}, nil
	}
	for _, candidate := range DefaultTracefsRoots {
		if st, err := os.Stat(filepath.Join(candidate, "events")); err == nil && st.IsDir() {
			return &Tracefs{fsys: os.DirFS(candidate)}, nil
		}
	}
	return nil, fmt.Errorf("%w: tracefs is not mounted", ErrNotFound)
}

// NewTracefsFS serves formats from fsys laid out as events/<cat>/<event>/format.
func NewTracefsFS(fsys fs.FS) *Tracefs {
	return &Tracefs{fsys: fsys}
}

func (t *Tracefs) TracepointFormat(category, event string) (*Struct, error) {
	f, err := t.fsys.Open(path.Join("events", category, event, "format"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: tracepoint %s:%s", ErrNotFound, category, event)
		}
		return nil, fmt.Errorf("failed to read tracepoint format: %w", err)
	}
	defer f.Close()
	return ParseFormat(category, event, f)
}

func (t *Tracefs) Struct(name string) (*Struct, error) {
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (t *Tracefs) Enum(name string) (*Enum, error) {
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (t *Tracefs) Func(name string) (*Func, error) {
	return nil, fmt.Errorf("%w: function %s", ErrNotFound, name)
}

func (t *Tracefs) Global(name string) (*Type, error) {
	return nil, fmt.Errorf("%w: global %s", ErrNotFound, name)
}

func (t *Tracefs) Iterators() ([]string, error) {
	return nil, nil
}

func (t *Tracefs) DebugArgs(target, fn string) (*Func, error) {
	return nil, fmt.Errorf("%w: debug info for %s:%s", ErrNotFound, target, fn)
}
