package meta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/cilium/ebpf/btf"
	"github.com/stretchr/testify/require"
)

type fakeSource map[string][]btf.Type

func (f fakeSource) TypesByName(name string) ([]btf.Type, error) {
	if ts, ok := f[name]; ok {
		return ts, nil
	}
	return nil, btf.ErrNotFound
}

func (f fakeSource) FuncNames() []string {
	var out []string
	for _, ts := range f {
		for _, t := range ts {
			if fn, ok := t.(*btf.Func); ok {
				out = append(out, fn.Name)
			}
		}
	}
	return out
}

func newFakeKernel() fakeSource {
	s32 := &btf.Int{Name: "int", Size: 4, Encoding: btf.Signed}
	u64 := &btf.Int{Name: "long unsigned int", Size: 8}
	char := &btf.Int{Name: "char", Size: 1, Encoding: btf.Char}
	boolean := &btf.Int{Name: "_Bool", Size: 1, Encoding: btf.Bool}

	task := &btf.Struct{Name: "task_struct", Size: 48}
	task.Members = []btf.Member{
		{Name: "pid", Type: &btf.Typedef{Name: "pid_t", Type: s32}, Offset: 0},
		{Name: "comm", Type: &btf.Array{Type: char, Nelems: 16}, Offset: 32},
		{Name: "real_parent", Type: &btf.Pointer{Target: task}, Offset: 160},
		{Name: "", Type: &btf.Union{Size: 8, Members: []btf.Member{
			{Name: "flags", Type: u64, Offset: 0},
			{Name: "raw", Type: u64, Offset: 0},
		}}, Offset: 192},
		{Name: "on_cpu", Type: boolean, Offset: 256, BitfieldSize: 1},
		{Name: "state", Type: &btf.Const{Type: &btf.Enum{Name: "state", Size: 4, Values: []btf.EnumValue{{Name: "RUNNING", Value: 0}}}}, Offset: 320},
	}

	proto := &btf.FuncProto{
		Return: s32,
		Params: []btf.FuncParam{
			{Name: "task", Type: &btf.Pointer{Target: task}},
			{Name: "n", Type: u64},
		},
	}
	iterCtx := &btf.Struct{Name: "bpf_iter__task", Size: 16, Members: []btf.Member{
		{Name: "meta", Type: &btf.Pointer{Target: &btf.Void{}}, Offset: 0},
		{Name: "task", Type: &btf.Pointer{Target: task}, Offset: 64},
	}}
	voidProto := &btf.FuncProto{Return: &btf.Void{}}

	return fakeSource{
		"task_struct":    {task},
		"wake_up":        {&btf.Func{Name: "wake_up", Type: proto, Linkage: btf.GlobalFunc}},
		"helper":         {&btf.Func{Name: "helper", Type: voidProto, Linkage: btf.StaticFunc}},
		"jiffies":        {&btf.Var{Name: "jiffies", Type: u64}},
		"state":          {&btf.Enum{Name: "state", Size: 4, Values: []btf.EnumValue{{Name: "RUNNING", Value: 0}, {Name: "DEAD", Value: 64}}}},
		"bpf_iter_task":  {&btf.Func{Name: "bpf_iter_task", Type: voidProto}},
		"bpf_iter_num":   {&btf.Func{Name: "bpf_iter_num", Type: voidProto}},
		"bpf_iter__task": {iterCtx},
	}
}

func TestBTFStruct(t *testing.T) {
	p := NewBTFProvider(newFakeKernel())
	s, err := p.Struct("struct task_struct")
	require.NoError(t, err)
	require.Equal(t, uint32(48), s.Size)

	pid, ok := s.Field("pid")
	require.True(t, ok)
	require.Equal(t, Int(4, true), pid.Type)

	comm, _ := s.Field("comm")
	require.Equal(t, ArrayOf(Int(1, true), 16), comm.Type)
	require.Equal(t, uint32(4), comm.Offset)

	parent, _ := s.Field("real_parent")
	require.Equal(t, KindPointer, parent.Type.Kind)
	require.Empty(t, parent.Type.Tag)
	require.Equal(t, "struct task_struct", parent.Type.Elem.Name)

	// члены анонимного union поднимаются в родителя
	flags, ok := s.Field("flags")
	require.True(t, ok)
	require.Equal(t, uint32(24), flags.Offset)
	_, ok = s.Field("raw")
	require.True(t, ok)

	onCPU, _ := s.Field("on_cpu")
	require.Equal(t, KindBool, onCPU.Type.Kind)
	require.Equal(t, uint32(1), onCPU.BitWidth)

	state, _ := s.Field("state")
	require.Equal(t, Type{Kind: KindEnum, Name: "enum state", Size: 4}, state.Type)

	_, err = p.Struct("union task_struct")
	require.True(t, errors.Is(err, ErrNotFound))
	_, err = p.Struct("task_struct")
	require.True(t, errors.Is(err, ErrIncompatible))
}

func TestBTFFuncGlobalEnum(t *testing.T) {
	p := NewBTFProvider(newFakeKernel())

	fn, err := p.Func("wake_up")
	require.NoError(t, err)
	require.Equal(t, LinkageGlobal, fn.Linkage)
	require.Equal(t, Int(4, true), *fn.Return)
	require.Len(t, fn.Params, 2)
	require.Equal(t, "task", fn.Params[0].Name)

	helper, err := p.Func("helper")
	require.NoError(t, err)
	require.Equal(t, LinkageStatic, helper.Linkage)
	require.Nil(t, helper.Return)

	g, err := p.Global("jiffies")
	require.NoError(t, err)
	require.Equal(t, Int(8, false), *g)

	e, err := p.Enum("enum state")
	require.NoError(t, err)
	require.Len(t, e.Values, 2)

	_, err = p.Func("nope")
	require.True(t, errors.Is(err, ErrNotFound))
	_, err = p.TracepointFormat("sched", "x")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestBTFIterators(t *testing.T) {
	p := NewBTFProvider(newFakeKernel())
	iters, err := p.Iterators()
	require.NoError(t, err)
	// bpf_iter_num не имеет контекстной структуры
	require.Equal(t, []string{"task"}, iters)
}

func TestBTFCaptureToCatalog(t *testing.T) {
	p := NewBTFProvider(newFakeKernel())
	c, err := Capture(p, CaptureRequest{Structs: []string{"struct task_struct"}, Funcs: []string{"wake_up"}})
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	s, err := c.Struct("struct task_struct")
	require.NoError(t, err)
	parent, _ := s.Field("real_parent")
	require.Equal(t, "struct task_struct", parent.Type.Elem.Name)
	_, err = c.Enum("enum state")
	require.NoError(t, err)
}

// rawTaggedBTF собирает минимальный raw BTF:
//
//	[1] int
//	[2] struct task { struct task __rcu *parent; int pid; }
//	[3] ptr -> [4]
//	[4] type_tag "rcu" -> [2]
func rawTaggedBTF() []byte {
	strs := []byte("\x00int\x00task\x00parent\x00rcu\x00pid\x00")
	const (
		strInt    = 1
		strTask   = 5
		strParent = 10
		strRCU    = 17
		strPid    = 21
	)
	info := func(kind, vlen uint32) uint32 { return kind<<24 | vlen }

	var types []uint32
	types = append(types, strInt, info(1, 0), 4, 1<<24|32)
	types = append(types, strTask, info(4, 2), 16,
		strParent, 3, 0,
		strPid, 1, 64)
	types = append(types, 0, info(2, 0), 4)
	types = append(types, strRCU, info(18, 0), 2)

	typeLen := uint32(len(types) * 4)
	var buf bytes.Buffer
	hdr := struct {
		Magic     uint16
		Version   uint8
		Flags     uint8
		HdrLen    uint32
		TypeOff   uint32
		TypeLen   uint32
		StringOff uint32
		StringLen uint32
	}{0xeB9F, 1, 0, 24, 0, typeLen, typeLen, uint32(len(strs))}
	_ = binary.Write(&buf, binary.LittleEndian, hdr)
	_ = binary.Write(&buf, binary.LittleEndian, types)
	buf.Write(strs)
	return buf.Bytes()
}

func TestBTFTypeTagFromRawSpec(t *testing.T) {
	spec, err := btf.LoadSpecFromReader(bytes.NewReader(rawTaggedBTF()))
	require.NoError(t, err)
	p := NewBTFProvider(specSource{spec: spec})

	s, err := p.Struct("struct task")
	require.NoError(t, err)
	require.Equal(t, uint32(16), s.Size)

	parent, ok := s.Field("parent")
	require.True(t, ok)
	require.Equal(t, KindPointer, parent.Type.Kind)
	require.Equal(t, "rcu", parent.Type.Tag)
	require.Equal(t, "struct task", parent.Type.Elem.Name)

	pid, _ := s.Field("pid")
	require.Equal(t, Int(4, true), pid.Type)
	require.Equal(t, uint32(8), pid.Offset)
}

func TestTypeTagIgnoresExportedKinds(t *testing.T) {
	_, _, ok := typeTag(&btf.Pointer{Target: &btf.Void{}})
	require.False(t, ok)
	_, _, ok = typeTag(nil)
	require.False(t, ok)
}
