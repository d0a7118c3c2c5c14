package sema

import (
	"strings"
	"testing"

	"tracec/internal/diag"
	"tracec/internal/meta"
	"tracec/internal/types"
)

const kernelCatalog = `
funcs:
  - name: vfs_read
    return: long
    params:
      - {name: file, type: "void *"}
      - {name: count, type: "unsigned long"}
`

func catalog(t *testing.T) meta.Provider {
	t.Helper()
	c, err := meta.DecodeCatalog(strings.NewReader(kernelCatalog))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func TestFentryArgsResolve(t *testing.T) {
	c := checkDoc(t, `
probes:
  - attach: fentry:vfs_read
    body:
      - {set: ["@bytes", {field: [args, count]}]}
`, Options{Provider: catalog(t)})
	for _, d := range c.bag.Items() {
		if d.Code >= diag.CtxInfo && d.Code <= diag.CtxBadArgIndex {
			t.Fatalf("context error: %s", d.Message)
		}
	}
	item := c.prog.Builder.Probes(c.prog.File)[0]
	rc := c.res.Context.Of(item)
	if rc == nil {
		t.Fatalf("probe context not resolved")
	}
	in := c.res.Types
	ctx := in.MustLookup(rc.Ctx)
	if ctx.Kind != types.KindPointer || !ctx.IsCtxAccess() {
		t.Fatalf("ctx = %s", types.Label(in, rc.Ctx))
	}
	rec, ok := in.RecordInfo(in.Elem(rc.Ctx))
	if !ok || !rec.HasField("count") || !rec.HasField("file") {
		t.Fatalf("argument record = %s", types.Label(in, in.Elem(rc.Ctx)))
	}
}

func TestContextErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code diag.Code
		msg  string
	}{
		{
			name: "unknown field",
			doc:  "probes:\n  - attach: fentry:vfs_read\n    body:\n      - {field: [args, nope]}\n",
			code: diag.CtxUnknownField,
			msg:  "Unknown field: nope",
		},
		{
			name: "no btf",
			doc:  "probes:\n  - attach: fentry:missing\n    body:\n      - {field: [args, x]}\n",
			code: diag.CtxNoDebugInfo,
			msg:  "No BTF found for function 'missing'",
		},
		{
			name: "ambiguous",
			doc:  "probes:\n  - attach: [\"fentry:vfs_read\", \"kprobe:vfs_read\"]\n    body:\n      - {field: [args, count]}\n",
			code: diag.CtxAmbiguousProbe,
			msg:  "The args builtin is ambiguous",
		},
		{
			name: "outside probe",
			doc:  "subprogs:\n  - name: f\n    body: [args]\n",
			code: diag.CtxBuiltinNotAllowed,
			msg:  "Builtin args not supported outside probe",
		},
		{
			name: "argN on tracepoint",
			doc:  "probes:\n  - attach: tracepoint:sched:sched_switch\n    body: [arg0]\n",
			code: diag.CtxBuiltinNotAllowed,
			msg:  "The argN builtin can only be used",
		},
		{
			name: "args in for",
			doc: "probes:\n  - attach: fentry:vfs_read\n    body:\n" +
				"      - {set: [{\"@m\": 1}, 1]}\n" +
				"      - {for: [$kv, \"@m\", [args]]}\n",
			code: diag.CtxBuiltinNotAllowed,
			msg:  "'args' builtin is not allowed in a for-loop",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := checkDoc(t, tt.doc, Options{Provider: catalog(t)})
			c.requireOne(t, tt.code, tt.msg)
			if !Halted(c.res.Err) {
				t.Fatalf("err = %v, want halted", c.res.Err)
			}
		})
	}
}
