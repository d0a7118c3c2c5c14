package sema

import (
	"fmt"

	"tracec/internal/ast"
	"tracec/internal/types"
)

// argKind is the class of value a builtin argument accepts.
type argKind uint8

const (
	// argAny is checked by the call's own rule, if at all.
	argAny argKind = iota
	argInt
	argString
	argPointer
	argTSMode
	// argMap is a whole map without a key.
	argMap
)

func (k argKind) String() string {
	switch k {
	case argInt:
		return "integer"
	case argString:
		return "string"
	case argPointer:
		return "pointer"
	case argTSMode:
		return "timestamp_mode"
	case argMap:
		return "map"
	}
	return "any"
}

type argSpec struct {
	kind    argKind
	literal bool
}

// callSpec is the static shape of one builtin function.
type callSpec struct {
	min, max int
	args     []argSpec
	// aggregate is the map value kind the call produces; such calls may
	// only be the value of a map assignment.
	aggregate types.Kind
	// void calls produce no value.
	void bool
	// probes restricts the providers the call may be used with; onlyIn is
	// the error shown elsewhere.
	probes []ast.ProbeType
	onlyIn string
}

func (cs callSpec) arg(i int) argSpec {
	if i < len(cs.args) {
		return cs.args[i]
	}
	return argSpec{}
}

func (cs callSpec) allows(pt ast.ProbeType) bool {
	if len(cs.probes) == 0 {
		return true
	}
	for _, p := range cs.probes {
		if p == pt {
			return true
		}
	}
	return false
}

var (
	anyArg    = argSpec{}
	intArg    = argSpec{kind: argInt}
	intLit    = argSpec{kind: argInt, literal: true}
	strArg    = argSpec{kind: argString}
	strLit    = argSpec{kind: argString, literal: true}
	ptrArg    = argSpec{kind: argPointer}
	mapArg    = argSpec{kind: argMap}
	tsModeArg = argSpec{kind: argTSMode}
)

// maxVarargs bounds printf-like calls.
const maxVarargs = 128

// callSpecs describes every builtin function. Aggregates are counted
// without the map they are assigned to: `@h = hist(x, 2)` has two
// arguments.
var callSpecs = map[string]callSpec{
	"count":   {min: 0, max: 0, aggregate: types.KindCount},
	"sum":     {min: 1, max: 1, args: []argSpec{intArg}, aggregate: types.KindSum},
	"min":     {min: 1, max: 1, args: []argSpec{intArg}, aggregate: types.KindMin},
	"max":     {min: 1, max: 1, args: []argSpec{intArg}, aggregate: types.KindMax},
	"avg":     {min: 1, max: 1, args: []argSpec{intArg}, aggregate: types.KindAvg},
	"stats":   {min: 1, max: 1, args: []argSpec{intArg}, aggregate: types.KindStats},
	"hist":    {min: 1, max: 2, args: []argSpec{intArg, intLit}, aggregate: types.KindHist},
	"lhist":   {min: 4, max: 4, args: []argSpec{intArg, intLit, intLit, intLit}, aggregate: types.KindLHist},
	"tseries": {min: 3, max: 4, args: []argSpec{intArg, intLit, intLit, strLit}, aggregate: types.KindTSeries},

	"delete":  {min: 1, max: 2, args: []argSpec{mapArg, anyArg}, void: true},
	"has_key": {min: 2, max: 2, args: []argSpec{mapArg, anyArg}},
	"clear":   {min: 1, max: 1, args: []argSpec{mapArg}, void: true},
	"zero":    {min: 1, max: 1, args: []argSpec{mapArg}, void: true},
	"len":     {min: 1, max: 1},
	"print":   {min: 1, max: 3, args: []argSpec{anyArg, intLit, intLit}, void: true},

	"printf": {min: 1, max: maxVarargs, args: []argSpec{strLit}, void: true},
	"errorf": {min: 1, max: maxVarargs, args: []argSpec{strLit}, void: true},
	"system": {min: 1, max: maxVarargs, args: []argSpec{strLit}, void: true},
	"cat":    {min: 1, max: maxVarargs, args: []argSpec{strLit}, void: true},
	"debugf": {min: 1, max: maxVarargs, args: []argSpec{strLit}, void: true},
	"join":   {min: 1, max: 2, args: []argSpec{anyArg, strLit}, void: true},
	"exit":   {min: 0, max: 1, args: []argSpec{intArg}, void: true},
	"time":   {min: 0, max: 1, args: []argSpec{strLit}, void: true},
	"signal": {min: 1, max: 1, void: true},

	"override": {min: 1, max: 1, args: []argSpec{intArg}, void: true,
		probes: []ast.ProbeType{ast.ProbeKprobe}, onlyIn: "override can only be used with kprobes."},
	"unwatch": {min: 1, max: 1, args: []argSpec{intArg}, void: true},

	"str":          {min: 1, max: 2, args: []argSpec{anyArg, intArg}},
	"buf":          {min: 1, max: 2, args: []argSpec{anyArg, intArg}},
	"ksym":         {min: 1, max: 1},
	"usym":         {min: 1, max: 1},
	"ntop":         {min: 1, max: 2},
	"pton":         {min: 1, max: 1, args: []argSpec{strLit}},
	"strftime":     {min: 2, max: 2, args: []argSpec{strLit, intArg}},
	"strerror":     {min: 1, max: 1, args: []argSpec{intArg}},
	"strncmp":      {min: 3, max: 3, args: []argSpec{strArg, strArg, intLit}},
	"strcontains":  {min: 2, max: 2, args: []argSpec{strArg, strArg}},
	"kstack":       {min: 0, max: 2},
	"ustack":       {min: 0, max: 2},
	"kptr":         {min: 1, max: 1},
	"uptr":         {min: 1, max: 1},
	"macaddr":      {min: 1, max: 1},
	"bswap":        {min: 1, max: 1},
	"cgroupid":     {min: 1, max: 1, args: []argSpec{strLit}},
	"cgroup_path":  {min: 1, max: 2, args: []argSpec{intArg, strArg}},
	"reg":          {min: 1, max: 1, args: []argSpec{strLit}},
	"kaddr":        {min: 1, max: 1, args: []argSpec{strLit}},
	"percpu_kaddr": {min: 1, max: 2, args: []argSpec{strLit, intArg}},
	"uaddr":        {min: 1, max: 1, args: []argSpec{strLit}},
	"skboutput":    {min: 4, max: 4, args: []argSpec{strLit, ptrArg, intArg, intArg}},
	"nsecs":        {min: 0, max: 1, args: []argSpec{tsModeArg}},
	"pid":          {min: 0, max: 1},
	"tid":          {min: 0, max: 1},
	"path": {min: 1, max: 2, args: []argSpec{anyArg, intLit},
		probes: []ast.ProbeType{ast.ProbeFentry, ast.ProbeFexit, ast.ProbeIter},
		onlyIn: "The path function can only be used with 'fentry', 'fexit', 'iter' probes"},
	"socket_cookie": {min: 1, max: 1, args: []argSpec{ptrArg}},

	// arg(n) reads a raw argument register; the context resolver emits it.
	argCallName: {min: 1, max: 1, args: []argSpec{intLit}},
}

// arityError describes a wrong argument count the way users read it.
func arityError(name string, cs callSpec, got int) (string, bool) {
	if got >= cs.min && got <= cs.max {
		return "", false
	}
	if cs.min == cs.max {
		switch cs.min {
		case 0:
			return fmt.Sprintf("%s() requires no arguments (%d provided)", name, got), true
		case 1:
			return fmt.Sprintf("%s() requires one argument (%d provided)", name, got), true
		}
		return fmt.Sprintf("%s() requires %d arguments (%d provided)", name, cs.min, got), true
	}
	if got < cs.min {
		if cs.min == 1 {
			return fmt.Sprintf("%s() requires at least one argument (%d provided)", name, got), true
		}
		return fmt.Sprintf("%s() requires at least %d arguments (%d provided)", name, cs.min, got), true
	}
	if cs.max == 1 {
		return fmt.Sprintf("%s() takes up to one argument (%d provided)", name, got), true
	}
	return fmt.Sprintf("%s() takes up to %d arguments (%d provided)", name, cs.max, got), true
}

// argMatches reports whether a value of type t satisfies kind.
func argMatches(in *types.Interner, kind argKind, t types.TypeID) bool {
	tt := in.MustLookup(t)
	switch kind {
	case argInt:
		return tt.IsIntegerLike()
	case argString:
		return tt.Kind == types.KindString
	case argPointer:
		return tt.Kind == types.KindPointer
	case argTSMode:
		return tt.Kind == types.KindTimestampMode
	}
	return true
}
