// Package astio decodes program documents into the arena AST.
//
// A program document is YAML (JSON works too, being a subset):
//
//	maps:
//	  - {name: "@m", type: hash, max_entries: 100}
//	subprogs:
//	  - name: add
//	    params: [{name: $a, type: int64}]
//	    return: int64
//	    body:
//	      - {return: {"+": [$a, 1]}}
//	probes:
//	  - attach: ["kprobe:do_nanosleep"]
//	    pred: {"==": [pid, 1]}
//	    body:
//	      - {set: [{"@m": tid}, {call: [add, 2]}]}
//
// Expressions are scalars (`1`, `true`, `pid`, `$x`, `"@m"`, a quoted
// string) or one-key mappings naming the node; see expr.go. A scalar
// starting with '@' is always a map; spell such strings as {str: "@x"}.
// Node positions become spans of the source document, and decoding
// problems are reported as diagnostics rather than returned.
package astio

import (
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"tracec/internal/ast"
	"tracec/internal/diag"
	"tracec/internal/source"
)

// Program is one decoded document.
type Program struct {
	Builder *ast.Builder
	File    ast.FileID
	// Source is the document inside the file set the spans refer to.
	Source source.FileID
}

// Load reads path into fs and decodes it.
func Load(fs *source.FileSet, path string, rep diag.Reporter) (*Program, error) {
	id, err := fs.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}
	return Decode(fs, id, rep), nil
}

// Parse adds content to fs as a virtual document and decodes it.
func Parse(fs *source.FileSet, name string, content []byte, rep diag.Reporter) *Program {
	return Decode(fs, fs.AddVirtual(name, content), rep)
}

// Decode builds the AST of document id. The program is always returned;
// it holds whatever could be decoded.
func Decode(fs *source.FileSet, id source.FileID, rep diag.Reporter) *Program {
	f := fs.Get(id)
	size, err := safecast.Conv[uint32](len(f.Content))
	if err != nil {
		panic(fmt.Errorf("document size overflow: %w", err))
	}
	whole := source.Span{File: id, Start: 0, End: size}
	d := &decoder{
		b:    ast.NewBuilder(ast.Hints{}),
		f:    f,
		id:   id,
		rep:  rep,
		subs: make(map[string]source.Span),
	}
	prog := &Program{Builder: d.b, Source: id}
	prog.File = d.b.NewFile(whole)
	d.file = prog.File

	var doc yaml.Node
	if err := yaml.Unmarshal(f.Content, &doc); err != nil {
		diag.ReportError(rep, diag.InpBadDocument, whole, "invalid program document: "+err.Error()).Emit()
		return prog
	}
	if len(doc.Content) == 0 {
		return prog
	}
	d.document(doc.Content[0])
	return prog
}

type decoder struct {
	b    *ast.Builder
	f    *source.File
	id   source.FileID
	file ast.FileID
	rep  diag.Reporter
	subs map[string]source.Span
}

// span of a node: scalars cover their text, collections their children.
func (d *decoder) span(n *yaml.Node) source.Span {
	start := d.f.Offset(safeLine(n.Line), safeLine(n.Column))
	sp := source.Span{File: d.id, Start: start, End: start + 1}
	switch n.Kind {
	case yaml.ScalarNode:
		width := len(n.Value)
		if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0 {
			width += 2
		}
		if w, err := safecast.Conv[uint32](width); err == nil && w > 0 {
			sp.End = start + w
		}
	case yaml.MappingNode, yaml.SequenceNode:
		for _, c := range n.Content {
			sp = sp.Cover(d.span(c))
		}
	}
	if limit := uint32(len(d.f.Content)); sp.End > limit { // #nosec G115 -- checked in Decode
		sp.End = limit
	}
	return sp
}

func safeLine(v int) uint32 {
	n, err := safecast.Conv[uint32](v)
	if err != nil {
		return 0
	}
	return n
}

func (d *decoder) errorf(code diag.Code, n *yaml.Node, format string, args ...any) {
	diag.ReportError(d.rep, code, d.span(n), fmt.Sprintf(format, args...)).Emit()
}

// name normalises identifiers coming from the document.
func name(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// fields indexes a mapping node by key.
func (d *decoder) fields(n *yaml.Node, allowed ...string) map[string]*yaml.Node {
	out := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i]
		known := len(allowed) == 0
		for _, a := range allowed {
			if a == key.Value {
				known = true
				break
			}
		}
		if !known {
			d.errorf(diag.InpUnknownNode, key, "unknown field %q", key.Value)
			continue
		}
		out[key.Value] = n.Content[i+1]
	}
	return out
}

func (d *decoder) document(root *yaml.Node) {
	if root.Kind != yaml.MappingNode {
		d.errorf(diag.InpBadDocument, root, "program document must be a mapping")
		return
	}
	top := d.fields(root, "maps", "subprogs", "probes")
	if n := top["maps"]; n != nil {
		for _, m := range d.seq(n) {
			d.mapDecl(m)
		}
	}
	if n := top["subprogs"]; n != nil {
		for _, s := range d.seq(n) {
			d.subprog(s)
		}
	}
	if n := top["probes"]; n != nil {
		for _, p := range d.seq(n) {
			d.probe(p)
		}
	}
}

// seq returns the children of a sequence; a single node reads as a
// sequence of one.
func (d *decoder) seq(n *yaml.Node) []*yaml.Node {
	if n.Kind == yaml.SequenceNode {
		return n.Content
	}
	return []*yaml.Node{n}
}

func (d *decoder) mapping(n *yaml.Node, what string) bool {
	if n.Kind != yaml.MappingNode {
		d.errorf(diag.InpBadDocument, n, "%s must be a mapping", what)
		return false
	}
	return true
}

func (d *decoder) mapDecl(n *yaml.Node) {
	if !d.mapping(n, "map declaration") {
		return
	}
	fs := d.fields(n, "name", "type", "max_entries")
	nameNode, typeNode := fs["name"], fs["type"]
	if nameNode == nil || typeNode == nil {
		d.errorf(diag.InpMissingField, n, "map declaration needs name and type")
		return
	}
	mapName := name(nameNode.Value)
	if !strings.HasPrefix(mapName, "@") {
		d.errorf(diag.InpBadLiteral, nameNode, "map name %q must start with '@'", mapName)
		return
	}
	var maxEntries uint64
	if me := fs["max_entries"]; me != nil {
		v, err := strconv.ParseUint(me.Value, 0, 64)
		if err != nil {
			d.errorf(diag.InpBadLiteral, me, "invalid max_entries %q", me.Value)
			return
		}
		maxEntries = v
	}
	item := d.b.Items.NewMapDecl(d.span(n), mapName, name(typeNode.Value), maxEntries)
	d.b.PushItem(d.file, item)
}

func (d *decoder) subprog(n *yaml.Node) {
	if !d.mapping(n, "subprogram") {
		return
	}
	fs := d.fields(n, "name", "params", "return", "body")
	nameNode := fs["name"]
	if nameNode == nil {
		d.errorf(diag.InpMissingField, n, "subprogram needs a name")
		return
	}
	fnName := name(nameNode.Value)
	if prev, dup := d.subs[fnName]; dup {
		diag.ReportError(d.rep, diag.InpDuplicateSubprog, d.span(nameNode), "Function redefinition: "+fnName).
			WithNote(prev, "previous definition").
			Emit()
		return
	}
	d.subs[fnName] = d.span(nameNode)

	var params []ast.Param
	if pn := fs["params"]; pn != nil {
		for _, p := range d.seq(pn) {
			if !d.mapping(p, "parameter") {
				continue
			}
			pf := d.fields(p, "name", "type")
			if pf["name"] == nil || pf["type"] == nil {
				d.errorf(diag.InpMissingField, p, "parameter needs name and type")
				continue
			}
			params = append(params, ast.Param{
				Name:     name(pf["name"].Value),
				Span:     d.span(p),
				TypeName: name(pf["type"].Value),
			})
		}
	}
	ret := ""
	if rn := fs["return"]; rn != nil {
		ret = name(rn.Value)
	}
	body := d.body(fs["body"], d.span(n))
	item := d.b.Items.NewSubprog(d.span(n), fnName, params, ret, body)
	d.b.PushItem(d.file, item)
}

func (d *decoder) probe(n *yaml.Node) {
	if !d.mapping(n, "probe") {
		return
	}
	fs := d.fields(n, "attach", "pred", "body")
	an := fs["attach"]
	if an == nil {
		d.errorf(diag.InpMissingField, n, "probe needs at least one attach point")
		return
	}
	var aps []ast.AttachPoint
	for _, a := range d.seq(an) {
		ap, err := ParseAttachPoint(a.Value)
		if err != nil {
			d.errorf(diag.InpBadAttachPoint, a, "%v", err)
			continue
		}
		ap.Span = d.span(a)
		aps = append(aps, ap)
	}
	if len(aps) == 0 {
		return
	}
	pred := ast.NoExprID
	if pn := fs["pred"]; pn != nil {
		pred = d.expr(pn)
	}
	body := d.body(fs["body"], d.span(n))
	item := d.b.Items.NewProbe(d.span(n), aps, pred, body)
	d.b.PushItem(d.file, item)
}

// body decodes a statement list into a block; a missing body is empty.
func (d *decoder) body(n *yaml.Node, owner source.Span) ast.ExprID {
	if n == nil {
		return d.b.Block(owner)
	}
	return d.b.Block(d.span(n), d.stmts(n)...)
}
