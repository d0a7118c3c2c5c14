package ast

import (
	"strings"

	"tracec/internal/source"
	"tracec/internal/types"
)

type ItemKind uint8

const (
	ItemProbe ItemKind = iota
	ItemSubprog
	ItemMapDecl
)

type Item struct {
	Kind    ItemKind
	Span    source.Span
	Payload PayloadID
}

// ProbeType is the provider kind of an attach point.
type ProbeType uint8

const (
	ProbeInvalid ProbeType = iota
	ProbeSpecial           // BEGIN, END
	ProbeKprobe
	ProbeKretprobe
	ProbeUprobe
	ProbeUretprobe
	ProbeUsdt
	ProbeTracepoint
	ProbeRawTracepoint
	ProbeFentry
	ProbeFexit
	ProbeProfile
	ProbeInterval
	ProbeSoftware
	ProbeHardware
	ProbeWatchpoint
	ProbeAsyncWatchpoint
	ProbeIter
)

var probeTypeNames = map[string]ProbeType{
	"BEGIN": ProbeSpecial, "END": ProbeSpecial, "begin": ProbeSpecial, "end": ProbeSpecial,
	"kprobe": ProbeKprobe, "k": ProbeKprobe,
	"kretprobe": ProbeKretprobe, "kr": ProbeKretprobe,
	"uprobe": ProbeUprobe, "u": ProbeUprobe,
	"uretprobe": ProbeUretprobe, "ur": ProbeUretprobe,
	"usdt": ProbeUsdt, "U": ProbeUsdt,
	"tracepoint": ProbeTracepoint, "t": ProbeTracepoint,
	"rawtracepoint": ProbeRawTracepoint, "rt": ProbeRawTracepoint,
	"fentry": ProbeFentry, "f": ProbeFentry, "kfunc": ProbeFentry,
	"fexit": ProbeFexit, "fr": ProbeFexit, "kretfunc": ProbeFexit,
	"profile": ProbeProfile, "p": ProbeProfile,
	"interval": ProbeInterval, "i": ProbeInterval,
	"software": ProbeSoftware, "s": ProbeSoftware,
	"hardware": ProbeHardware, "h": ProbeHardware,
	"watchpoint": ProbeWatchpoint, "w": ProbeWatchpoint,
	"asyncwatchpoint": ProbeAsyncWatchpoint, "aw": ProbeAsyncWatchpoint,
	"iter": ProbeIter, "it": ProbeIter,
}

// ParseProbeType maps a provider spelling (full name or short alias).
func ParseProbeType(provider string) ProbeType {
	if pt, ok := probeTypeNames[provider]; ok {
		return pt
	}
	if pt, ok := probeTypeNames[strings.ToLower(provider)]; ok {
		return pt
	}
	return ProbeInvalid
}

func (pt ProbeType) String() string {
	switch pt {
	case ProbeSpecial:
		return "special"
	case ProbeKprobe:
		return "kprobe"
	case ProbeKretprobe:
		return "kretprobe"
	case ProbeUprobe:
		return "uprobe"
	case ProbeUretprobe:
		return "uretprobe"
	case ProbeUsdt:
		return "usdt"
	case ProbeTracepoint:
		return "tracepoint"
	case ProbeRawTracepoint:
		return "rawtracepoint"
	case ProbeFentry:
		return "fentry"
	case ProbeFexit:
		return "fexit"
	case ProbeProfile:
		return "profile"
	case ProbeInterval:
		return "interval"
	case ProbeSoftware:
		return "software"
	case ProbeHardware:
		return "hardware"
	case ProbeWatchpoint:
		return "watchpoint"
	case ProbeAsyncWatchpoint:
		return "asyncwatchpoint"
	case ProbeIter:
		return "iter"
	}
	return "invalid"
}

// AttachPoint describes one concrete attach target of a probe.
type AttachPoint struct {
	Span     source.Span
	Provider ProbeType
	// Raw is the original spelling, used in messages.
	Raw     string
	Target  string
	Func    string
	Freq    uint64
	Address uint64
	Len     uint64
	Mode    string
}

// Name renders provider:target:func for diagnostics.
func (ap *AttachPoint) Name() string {
	if ap.Raw != "" {
		return ap.Raw
	}
	parts := []string{ap.Provider.String()}
	if ap.Target != "" {
		parts = append(parts, ap.Target)
	}
	if ap.Func != "" {
		parts = append(parts, ap.Func)
	}
	return strings.Join(parts, ":")
}

// ProbeItem is one probe: attach points, optional predicate and body block.
type ProbeItem struct {
	AttachPoints []AttachPoint
	Pred         ExprID
	Body         ExprID
}

// Name joins the attach point names.
func (p *ProbeItem) Name() string {
	names := make([]string, len(p.AttachPoints))
	for i := range p.AttachPoints {
		names[i] = p.AttachPoints[i].Name()
	}
	return strings.Join(names, ",")
}

// Param is a subprogram parameter.
type Param struct {
	Name     string
	Span     source.Span
	TypeName string
	Type     types.TypeID
}

// SubprogItem is a user-defined function.
type SubprogItem struct {
	Name           string
	Params         []Param
	ReturnTypeName string
	ReturnType     types.TypeID
	Body           ExprID
}

// MapDeclItem is `let @name = bpf_type(max_entries);`.
type MapDeclItem struct {
	Name       string
	BpfType    string
	MaxEntries uint64
}

type Items struct {
	Arena    *Arena[Item]
	Probes   *Arena[ProbeItem]
	Subprogs *Arena[SubprogItem]
	MapDecls *Arena[MapDeclItem]
}

func NewItems(capHint uint) *Items {
	if capHint == 0 {
		capHint = 1 << 6
	}
	return &Items{
		Arena:    NewArena[Item](capHint),
		Probes:   NewArena[ProbeItem](capHint),
		Subprogs: NewArena[SubprogItem](capHint / 2),
		MapDecls: NewArena[MapDeclItem](capHint / 2),
	}
}

func (i *Items) new(kind ItemKind, span source.Span, payload uint32) ItemID {
	return ItemID(i.Arena.Allocate(Item{Kind: kind, Span: span, Payload: PayloadID(payload)}))
}

func (i *Items) Get(id ItemID) *Item {
	return i.Arena.Get(uint32(id))
}

func (i *Items) NewProbe(span source.Span, aps []AttachPoint, pred, body ExprID) ItemID {
	payload := i.Probes.Allocate(ProbeItem{AttachPoints: append([]AttachPoint(nil), aps...), Pred: pred, Body: body})
	return i.new(ItemProbe, span, payload)
}

func (i *Items) Probe(id ItemID) (*ProbeItem, bool) {
	item := i.Get(id)
	if item == nil || item.Kind != ItemProbe {
		return nil, false
	}
	return i.Probes.Get(uint32(item.Payload)), true
}

func (i *Items) NewSubprog(span source.Span, name string, params []Param, ret string, body ExprID) ItemID {
	payload := i.Subprogs.Allocate(SubprogItem{
		Name:           name,
		Params:         append([]Param(nil), params...),
		ReturnTypeName: ret,
		Body:           body,
	})
	return i.new(ItemSubprog, span, payload)
}

func (i *Items) Subprog(id ItemID) (*SubprogItem, bool) {
	item := i.Get(id)
	if item == nil || item.Kind != ItemSubprog {
		return nil, false
	}
	return i.Subprogs.Get(uint32(item.Payload)), true
}

func (i *Items) NewMapDecl(span source.Span, name, bpfType string, maxEntries uint64) ItemID {
	payload := i.MapDecls.Allocate(MapDeclItem{Name: name, BpfType: bpfType, MaxEntries: maxEntries})
	return i.new(ItemMapDecl, span, payload)
}

func (i *Items) MapDecl(id ItemID) (*MapDeclItem, bool) {
	item := i.Get(id)
	if item == nil || item.Kind != ItemMapDecl {
		return nil, false
	}
	return i.MapDecls.Get(uint32(item.Payload)), true
}
