package meta

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

const sampleFormat = `name: sched_switch
ID: 316
format:
	field:unsigned short common_type;	offset:0;	size:2;	signed:0;
	field:unsigned char common_flags;	offset:2;	size:1;	signed:0;
	field:int common_pid;	offset:4;	size:4;	signed:1;

	field:char prev_comm[16];	offset:8;	size:16;	signed:1;
	field:pid_t prev_pid;	offset:24;	size:4;	signed:1;
	field:__data_loc char[] name;	offset:28;	size:4;	signed:1;
	field:const char * filename;	offset:32;	size:8;	signed:0;
	field:gfp_t gfp_flags;	offset:40;	size:4;	signed:0;

print fmt: "prev_comm=%s", REC->prev_comm
`

const sampleCatalog = `
structs:
  - name: struct task_struct
    size: 64
    fields:
      - {name: pid, type: int, offset: 16}
      - {name: comm, type: "char[16]", offset: 24}
      - {name: parent, type: "struct task_struct *", offset: 40, tag: rcu}
      - {name: flags, type: "unsigned int", offset: 48, bit_offset: 3, bit_width: 2}
  - name: struct bpf_iter__task
    size: 16
    fields:
      - {name: meta, type: "void *", offset: 0}
      - {name: task, type: "struct task_struct *", offset: 8}
enums:
  - name: enum state
    size: 4
    values:
      - {name: RUNNING, value: 0}
      - {name: SLEEPING, value: 1}
funcs:
  - name: vfs_read
    return: long
    params:
      - {name: file, type: "struct file *"}
      - {name: count, type: size_t}
  - name: do_nothing
    linkage: static
    params: []
globals:
  - {name: jiffies, type: "unsigned long"}
iterators: [task]
tracepoints:
  - category: sched
    event: sched_switch
    format: |
      field:unsigned short common_type;	offset:0;	size:2;	signed:0;
      field:pid_t prev_pid;	offset:8;	size:4;	signed:1;
debug_info:
  - target: /bin/bash
    func: readline
    params:
      - {name: prompt, type: "const char *"}
`

func TestParseFormat(t *testing.T) {
	s, err := ParseFormat("sched", "sched_switch", strings.NewReader(sampleFormat))
	require.NoError(t, err)
	require.Equal(t, "struct _tracepoint_sched_sched_switch", s.Name)
	require.Len(t, s.Fields, 8)
	require.Equal(t, uint32(44), s.Size)

	f, ok := s.Field("prev_comm")
	require.True(t, ok)
	require.Equal(t, ArrayOf(Int(1, true), 16), f.Type)
	require.Equal(t, uint32(8), f.Offset)

	f, ok = s.Field("data_loc_name")
	require.True(t, ok)
	require.Equal(t, Int(4, true), f.Type)

	f, ok = s.Field("filename")
	require.True(t, ok)
	require.Equal(t, KindPointer, f.Type.Kind)

	// неизвестный typedef берёт ширину и знак из строки формата
	f, ok = s.Field("gfp_flags")
	require.True(t, ok)
	require.Equal(t, Int(4, false), f.Type)
}

func TestParseFormatBadLine(t *testing.T) {
	_, err := ParseFormat("a", "b", strings.NewReader("field:int x;\toffset:zz;\tsize:4;\n"))
	require.Error(t, err)
}

func TestTracefsProvider(t *testing.T) {
	fsys := fstest.MapFS{
		"events/sched/sched_switch/format": {Data: []byte(sampleFormat)},
	}
	p := NewTracefsFS(fsys)
	s, err := p.TracepointFormat("sched", "sched_switch")
	require.NoError(t, err)
	require.Len(t, s.Fields, 8)

	_, err = p.TracepointFormat("sched", "missing")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestCatalogQueries(t *testing.T) {
	c, err := DecodeCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	task, err := c.Struct("struct task_struct")
	require.NoError(t, err)
	require.Equal(t, uint32(64), task.Size)
	pid, ok := task.Field("pid")
	require.True(t, ok)
	require.Equal(t, Int(4, true), pid.Type)
	parent, _ := task.Field("parent")
	require.Equal(t, "rcu", parent.Type.Tag)
	flags, _ := task.Field("flags")
	require.Equal(t, uint32(2), flags.BitWidth)

	fn, err := c.Func("vfs_read")
	require.NoError(t, err)
	require.Equal(t, LinkageGlobal, fn.Linkage)
	require.NotNil(t, fn.Return)
	require.Equal(t, Int(8, true), *fn.Return)
	require.Len(t, fn.Params, 2)

	static, err := c.Func("do_nothing")
	require.NoError(t, err)
	require.Equal(t, LinkageStatic, static.Linkage)
	require.Nil(t, static.Return)

	g, err := c.Global("jiffies")
	require.NoError(t, err)
	require.Equal(t, Int(8, false), *g)

	e, err := c.Enum("enum state")
	require.NoError(t, err)
	require.Len(t, e.Values, 2)

	iters, err := c.Iterators()
	require.NoError(t, err)
	require.Equal(t, []string{"task"}, iters)

	tp, err := c.TracepointFormat("sched", "sched_switch")
	require.NoError(t, err)
	require.Len(t, tp.Fields, 2)

	dbg, err := c.DebugArgs("/bin/bash", "readline")
	require.NoError(t, err)
	require.Len(t, dbg.Params, 1)

	_, err = c.Struct("struct nope")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestCatalogRejectsUnknownKeysAndTypes(t *testing.T) {
	_, err := DecodeCatalog(strings.NewReader("structz: []\n"))
	require.Error(t, err)

	_, err = DecodeCatalog(strings.NewReader(`
structs:
  - name: struct x
    size: 4
    fields:
      - {name: a, type: "mystery_t", offset: 0}
`))
	require.Error(t, err)

	_, err = DecodeCatalog(strings.NewReader(`
structs:
  - name: x
    size: 4
    fields: []
`))
	require.Error(t, err)
}

func TestEmptyCatalog(t *testing.T) {
	c, err := DecodeCatalog(strings.NewReader(""))
	require.NoError(t, err)
	_, err = c.Func("f")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestChainFallsThrough(t *testing.T) {
	first, err := DecodeCatalog(strings.NewReader(`
globals:
  - {name: jiffies, type: uint32}
iterators: [bpf_map]
`))
	require.NoError(t, err)
	second, err := DecodeCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	chain := Chain{first, second}

	g, err := chain.Global("jiffies")
	require.NoError(t, err)
	require.Equal(t, Int(4, false), *g, "first provider wins")

	_, err = chain.Struct("struct task_struct")
	require.NoError(t, err)

	iters, err := chain.Iterators()
	require.NoError(t, err)
	require.Equal(t, []string{"bpf_map", "task"}, iters)

	_, err = chain.Func("missing")
	require.True(t, errors.Is(err, ErrNotFound))
	_, err = Chain(nil).Struct("struct x")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestSnapshotRoundTrip(t *testing.T) {
	c, err := DecodeCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, c))
	back, err := ReadSnapshot(&buf)
	require.NoError(t, err)

	want, err := c.Struct("struct task_struct")
	require.NoError(t, err)
	got, err := back.Struct("struct task_struct")
	require.NoError(t, err)
	require.Equal(t, want, got)

	tp, err := back.TracepointFormat("sched", "sched_switch")
	require.NoError(t, err)
	require.Len(t, tp.Fields, 2)
}

func TestSnapshotFile(t *testing.T) {
	c, err := DecodeCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	path := t.TempDir() + "/nested/meta.mp"
	require.NoError(t, SaveSnapshot(path, c))
	back, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, back.Funcs, 2)
}

func TestCaptureFollowsRecords(t *testing.T) {
	src, err := DecodeCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	out, err := Capture(src, CaptureRequest{
		Funcs:     []string{"vfs_read"},
		Globals:   []string{"jiffies"},
		Iterators: true,
	})
	require.NoError(t, err)
	require.Len(t, out.Funcs, 1)
	require.Equal(t, []string{"task"}, out.Iters)

	// bpf_iter__task запрошен явно, task_struct найден по указателю
	names := map[string]bool{}
	for _, s := range out.Structs {
		names[s.Name] = true
	}
	require.True(t, names["struct bpf_iter__task"])
	require.True(t, names["struct task_struct"])
	require.NoError(t, out.Validate())

	_, err = Capture(src, CaptureRequest{Structs: []string{"struct nope"}})
	require.True(t, errors.Is(err, ErrNotFound))
}
