package sema

import (
	"net/netip"
	"regexp"
	"strings"

	"fortio.org/safecast"

	"tracec/internal/ast"
	"tracec/internal/diag"
	"tracec/internal/meta"
	"tracec/internal/types"
)

const deleteUsage = "delete() expects a map for the first argument and a key for the second argument e.g. `delete(@my_map, 1);`"

// bufHeader is the length prefix stored in front of buf() contents.
const bufHeader = 4

var symbolRe = regexp.MustCompile(`^[a-zA-Z0-9./_-]+$`)

// registers of pt_regs on x86_64, by name.
var registers = map[string]bool{
	"r15": true, "r14": true, "r13": true, "r12": true, "bp": true, "bx": true,
	"r11": true, "r10": true, "r9": true, "r8": true, "ax": true, "cx": true,
	"dx": true, "si": true, "di": true, "orig_ax": true, "ip": true, "cs": true,
	"flags": true, "sp": true, "ss": true,
}

var signals = map[string]int{
	"HUP": 1, "INT": 2, "QUIT": 3, "ILL": 4, "TRAP": 5, "ABRT": 6, "BUS": 7, "FPE": 8,
	"KILL": 9, "USR1": 10, "SEGV": 11, "USR2": 12, "PIPE": 13, "ALRM": 14, "TERM": 15,
	"STKFLT": 16, "CHLD": 17, "CONT": 18, "STOP": 19, "TSTP": 20, "TTIN": 21, "TTOU": 22,
	"URG": 23, "XCPU": 24, "XFSZ": 25, "VTALRM": 26, "PROF": 27, "WINCH": 28, "IO": 29,
	"PWR": 30, "SYS": 31,
}

var tseriesAggs = []string{"avg", "max", "min", "sum"}

func mustCall(exprs *ast.Exprs, id ast.ExprID) *ast.CallData {
	d, _ := exprs.Call(id)
	return d
}

// intConstArg returns the value of a constant integer argument.
func (r *resolver) intConstArg(id ast.ExprID) (int64, bool) {
	v, ok := r.constant(id)
	if !ok || v.kind != constInt {
		return 0, false
	}
	return v.signed()
}

func (r *resolver) strConstArg(id ast.ExprID) (string, bool) {
	v, ok := r.constant(id)
	if !ok || v.kind != constString {
		return "", false
	}
	return v.s, true
}

func (r *resolver) isWholeMap(id ast.ExprID) bool {
	md, ok := r.exprs.Map(id)
	return ok && !md.Key.IsValid()
}

func (r *resolver) visitCall(id ast.ExprID) {
	cd := *mustCall(r.exprs, id)
	name := cd.Func
	args := append([]ast.ExprID(nil), cd.Args...)

	if sp, ok := r.subprogNamed(name); ok {
		r.visitSubprogCall(id, sp, args)
		return
	}
	cs, ok := callSpecs[name]
	if !ok {
		r.visitAll(args)
		r.visitKernelCall(id, name, args)
		return
	}
	if msg, bad := arityError(name, cs, len(args)); bad {
		r.visitCallArgs(name, cs, args)
		r.fail(id, diag.ChkArity, "%s", msg)
		return
	}
	if len(cs.probes) > 0 {
		if r.probe == nil {
			r.fail(id, diag.ChkProbeUnsupported, "Builtin %s not supported outside probe", name)
			return
		}
		if !cs.allows(probeKind(r.probe)) {
			r.fail(id, diag.ChkProbeUnsupported, "%s", cs.onlyIn)
			return
		}
	}
	if cs.aggregate != types.KindNone {
		r.visitAggregate(id, name, cs, args)
		return
	}
	r.visitCallArgs(name, cs, args)

	switch name {
	case "delete":
		r.visitDelete(id, args)
		return
	case "has_key":
		r.visitHasKey(id, args)
		return
	case "clear", "zero":
		if r.mapOnly(id, name, args[0]) != nil {
			r.exprs.SetType(id, r.in.Builtins().Void)
		}
		return
	case "len":
		r.visitLen(id, args[0])
		return
	case "print":
		r.visitPrint(id, args)
		return
	}

	if !r.typed(args...) {
		return
	}
	t := r.callType(id, name, args)
	if t == types.None {
		return
	}
	if cs.void {
		t = r.in.Builtins().Void
	}
	r.exprs.SetType(id, t)
}

// visitCallArgs visits arguments that are plain values. Whole maps and
// the namespace identifiers of pid()/tid() are handled by the call rules.
func (r *resolver) visitCallArgs(name string, cs callSpec, args []ast.ExprID) {
	for i, a := range args {
		switch {
		case cs.arg(i).kind == argMap:
			continue
		case i == 0 && (name == "print" || name == "len") && r.isWholeMap(a):
			continue
		case (name == "pid" || name == "tid") && r.exprs.Kind(a) == ast.ExprIdent:
			continue
		}
		r.visit(a)
	}
}

// Subprograms and kernel functions -------------------------------------------

func (r *resolver) subprogNamed(name string) (*ast.SubprogItem, bool) {
	for _, item := range r.b.Subprogs(r.file) {
		if sp, ok := r.b.Items.Subprog(item); ok && sp.Name == name {
			return sp, true
		}
	}
	return nil, false
}

func (r *resolver) visitSubprogCall(id ast.ExprID, sp *ast.SubprogItem, args []ast.ExprID) {
	r.visitAll(args)
	if len(args) != len(sp.Params) {
		r.fail(id, diag.ChkArity, "Function %s requires %d arguments, got only %d", sp.Name, len(sp.Params), len(args))
		return
	}
	if !r.typed(args...) {
		return
	}
	for i, a := range args {
		p := sp.Params[i]
		if p.Type == types.None {
			return
		}
		got := r.natural(a)
		if !r.argAssignable(a, got, p.Type) {
			r.fail(a, diag.ChkArgType, "Expected %s for argument `%s` got %s", r.label(p.Type), p.Name, r.label(got))
			return
		}
		r.coerce(a, p.Type)
	}
	if sp.ReturnType == types.None {
		return
	}
	r.exprs.SetType(id, sp.ReturnType)
}

// argAssignable reports whether arg may be passed where want is expected.
func (r *resolver) argAssignable(arg ast.ExprID, got, want types.TypeID) bool {
	in := r.in
	if in.Equal(got, want) {
		return true
	}
	switch in.Kind(want) {
	case types.KindInt:
		if !r.isIntLike(got) {
			return false
		}
		return r.literalFits(arg, want) || in.FitsInto(r.intView(got), want)
	case types.KindPointer:
		return in.Kind(got) == types.KindPointer
	}
	return in.FitsInto(got, want)
}

// visitKernelCall types a call of a kernel function known to the metadata
// provider.
func (r *resolver) visitKernelCall(id ast.ExprID, name string, args []ast.ExprID) {
	fn, err := r.imp.Func(name)
	if err != nil {
		if isNotFound(err) {
			r.fail(id, diag.ChkUnknownFunction, "Unknown function: '%s'", name)
		} else {
			r.fail(id, diag.ChkUnknownFunction, "Unable to find function proto: %v", err)
		}
		return
	}
	if fn.Linkage == meta.LinkageStatic {
		r.fail(id, diag.ChkUnknownFunction, "Unsupported function linkage: '%s'", name)
		return
	}
	if len(fn.Params) != len(args) {
		r.fail(id, diag.ChkArity, "Function `%s` requires %d arguments, got only %d", name, len(fn.Params), len(args))
		return
	}
	if !r.typed(args...) {
		return
	}
	for i, p := range fn.Params {
		want, err := r.imp.Import(p.Type)
		if err != nil {
			r.fail(args[i], diag.ChkArgType, "Unable to convert argument type: %v", err)
			return
		}
		got := r.natural(args[i])
		if !r.argAssignable(args[i], got, want) {
			if p.Name != "" {
				r.fail(args[i], diag.ChkArgType, "Expected %s for argument `%s` got %s", r.label(want), p.Name, r.label(got))
			} else {
				r.fail(args[i], diag.ChkArgType, "Expected %s got %s", r.label(want), r.label(got))
			}
			return
		}
		if r.in.Kind(want) != types.KindPointer {
			r.coerce(args[i], want)
		}
	}
	ret := r.in.Builtins().Void
	if fn.Return != nil {
		t, err := r.imp.Import(*fn.Return)
		if err != nil {
			r.fail(id, diag.ChkUnknownFunction, "Unable to read return type: %v", err)
			return
		}
		ret = t
	}
	r.exprs.SetType(id, ret)
}

// Aggregates ----------------------------------------------------------------

func (r *resolver) visitAggregate(id ast.ExprID, name string, cs callSpec, args []ast.ExprID) {
	r.visitAll(args)
	if id != r.mapValue {
		r.fail(id, diag.ChkAggregateNotMapped, "%s() should be directly assigned to a map", name)
		return
	}
	if !r.typed(args...) {
		return
	}
	signed := false
	if len(args) > 0 {
		t := r.natural(args[0])
		if !r.isIntLike(t) {
			r.fail(id, diag.ChkArgType, "%s() only supports integer arguments (%s provided)", name, r.label(t))
			return
		}
		signed = r.in.MustLookup(r.intView(t)).Signed
	}
	switch cs.aggregate {
	case types.KindCount:
		signed = true
	case types.KindSum, types.KindMin, types.KindMax, types.KindAvg, types.KindStats:
		r.coerce(args[0], r.in.Int(8, signed))
	case types.KindHist:
		signed = false
		if len(args) == 2 {
			bits, ok := r.intConstArg(args[1])
			if !ok {
				r.deferf(id, diag.ChkLiteralRequired, "%s: invalid bits value", name)
				return
			}
			// тип hist сохраняется, чтобы последующие присваивания
			// получили собственные диагностики
			if bits < 0 || bits > 5 {
				r.errorf(diag.ChkArgRange, r.exprs.Span(id), "%s: bits %d must be 0..5", name, bits)
			}
		}
	case types.KindLHist:
		signed = false
		if !r.lhistBounds(id, args) {
			return
		}
	case types.KindTSeries:
		signed = false
		if !r.tseriesArgs(id, args) {
			return
		}
	}
	r.exprs.SetType(id, r.in.Intern(types.MakeAggregate(cs.aggregate, signed)))
}

// lhistBounds validates lhist(value, min, max, step).
func (r *resolver) lhistBounds(id ast.ExprID, args []ast.ExprID) bool {
	lo, ok := r.intConstArg(args[1])
	if !ok {
		r.deferf(id, diag.ChkLiteralRequired, "lhist: invalid min value (must be non-negative literal)")
		return false
	}
	hi, ok := r.intConstArg(args[2])
	if !ok {
		r.deferf(id, diag.ChkLiteralRequired, "lhist: invalid max value (must be non-negative literal)")
		return false
	}
	step, ok := r.intConstArg(args[3])
	if !ok {
		r.deferf(id, diag.ChkLiteralRequired, "lhist: invalid step value")
		return false
	}
	valid := true
	report := func(format string, args ...any) {
		r.fail(id, diag.ChkArgRange, format, args...)
		valid = false
	}
	if step <= 0 {
		report("lhist() step must be >= 1 (%d provided)", step)
	} else if buckets := (hi - lo) / step; buckets > 1000 {
		report("lhist() too many buckets, must be <= 1000 (would need %d)", buckets)
	}
	if lo < 0 {
		report("lhist() min must be non-negative (provided min %d)", lo)
	}
	if lo > hi {
		report("lhist() min must be less than max (provided min %d and max %d)", lo, hi)
	}
	if step > 0 && hi-lo < step {
		report("lhist() step is too large for the given range (provided step %d for range %d)", step, hi-lo)
	}
	return valid
}

// tseriesArgs validates tseries(value, interval_ns, num_intervals[, agg]).
func (r *resolver) tseriesArgs(id ast.ExprID, args []ast.ExprID) bool {
	interval, ok := r.intConstArg(args[1])
	if !ok {
		r.deferf(id, diag.ChkLiteralRequired, "tseries: invalid interval_ns value (must be non-negative literal)")
		return false
	}
	n, ok := r.intConstArg(args[2])
	if !ok {
		r.deferf(id, diag.ChkLiteralRequired, "tseries: invalid num_intervals value (must be non-negative literal)")
		return false
	}
	switch {
	case interval <= 0:
		r.fail(id, diag.ChkArgRange, "tseries() interval_ns must be >= 1 (%d provided)", interval)
		return false
	case n <= 0:
		r.fail(id, diag.ChkArgRange, "tseries() num_intervals must be >= 1 (%d provided)", n)
		return false
	case n > 1000000:
		r.fail(id, diag.ChkArgRange, "tseries() num_intervals must be < 1000000 (%d provided)", n)
		return false
	}
	if len(args) == 4 {
		agg, ok := r.strConstArg(args[3])
		if !ok {
			return true
		}
		for _, want := range tseriesAggs {
			if agg == want {
				return true
			}
		}
		r.fail(id, diag.ChkArgRange, "tseries() expects one of the following aggregation functions: %s (\"%s\" provided)",
			strings.Join(tseriesAggs, ", "), agg)
		return false
	}
	return true
}

// Map builtins --------------------------------------------------------------

// keyedUse records a keyed access of m made by a builtin and reconciles key.
func (r *resolver) keyedUse(at ast.ExprID, m *MapInfo, key ast.ExprID) bool {
	switch m.Shape {
	case ShapeUnknown:
		m.Shape = ShapeKeyed
	case ShapeScalar:
		kt := r.natural(key)
		if kt == types.None {
			return false
		}
		r.fail(at, diag.MapKeyMismatch, "Argument mismatch for %s: trying to access with arguments: '%s' when map expects no arguments",
			m.Name, r.label(r.in.Widen(kt)))
		return false
	}
	return r.reconcileKey(at, m, key)
}

func (r *resolver) visitDelete(id ast.ExprID, args []ast.ExprID) {
	target := args[0]
	md, ok := r.exprs.Map(target)
	if !ok {
		r.visit(target)
		r.fail(target, diag.ChkArgType, "%s", deleteUsage)
		return
	}
	void := r.in.Builtins().Void
	if len(args) == 1 {
		if md.Key.IsValid() {
			// delete(@m[k])
			r.visitMapRead(target)
			r.exprs.SetType(id, void)
			return
		}
		m := r.visitWholeMap(target)
		if r.final && m.Shape == ShapeKeyed {
			r.fail(target, diag.ChkArgType, "%s", deleteUsage)
			return
		}
		r.exprs.SetType(id, void)
		return
	}
	if md.Key.IsValid() {
		r.visit(md.Key)
		r.fail(target, diag.ChkArgType, "delete() expects a map with no keys for the first argument")
		return
	}
	m := r.visitWholeMap(target)
	key := args[1]
	r.visit(key)
	if m == nil || !r.typed(key) {
		return
	}
	if r.keyedUse(target, m, key) {
		r.exprs.SetType(id, void)
	}
}

func (r *resolver) visitHasKey(id ast.ExprID, args []ast.ExprID) {
	target, key := args[0], args[1]
	r.visit(key)
	md, ok := r.exprs.Map(target)
	if !ok {
		r.visit(target)
		r.fail(target, diag.ChkArgType, "has_key() expects the first argument to be a map")
		return
	}
	if md.Key.IsValid() {
		r.visit(md.Key)
		r.fail(target, diag.ChkArgType, "has_key() expects the first argument to be a map. Not a map value expression.")
		return
	}
	m := r.visitWholeMap(target)
	if m == nil || !r.typed(key) {
		return
	}
	if m.Shape == ShapeScalar {
		r.fail(target, diag.MapKeyMismatch, "has_key() only accepts maps that have keys. No scalar maps e.g. `@a = 1;`")
		return
	}
	if r.keyedUse(target, m, key) {
		r.exprs.SetType(id, r.in.Builtins().Bool)
	}
}

// mapOnly checks the single whole-map argument of clear() and zero().
func (r *resolver) mapOnly(id ast.ExprID, name string, arg ast.ExprID) *MapInfo {
	md, ok := r.exprs.Map(arg)
	if !ok {
		r.visit(arg)
		r.fail(id, diag.ChkArgType, "%s() expects a map to be provided", name)
		return nil
	}
	if md.Key.IsValid() {
		r.visit(md.Key)
		r.fail(id, diag.ChkArgType, "The map passed to %s() should not be indexed by a key", name)
		return nil
	}
	return r.visitWholeMap(arg)
}

func (r *resolver) visitLen(id, arg ast.ExprID) {
	if _, ok := r.exprs.Map(arg); ok {
		m := r.mapOnly(id, "len", arg)
		if m == nil {
			return
		}
		if m.Shape == ShapeScalar {
			r.fail(id, diag.ChkArgType, "len() expects a map with explicit keys (non-scalar map)")
			return
		}
		r.exprs.SetType(id, r.in.Builtins().Int64)
		return
	}
	if !r.typed(arg) {
		return
	}
	if !r.in.MustLookup(r.exprs.TypeOf(arg)).IsStack() {
		r.fail(id, diag.ChkArgType, "len() expects a map or stack to be provided")
		return
	}
	r.exprs.SetType(id, r.in.Builtins().Int64)
}

func (r *resolver) visitPrint(id ast.ExprID, args []ast.ExprID) {
	void := r.in.Builtins().Void
	arg := args[0]
	md, isMap := r.exprs.Map(arg)
	if !isMap {
		if len(args) != 1 {
			r.fail(id, diag.ChkArity, "Non-map print() only takes 1 argument, %d found", len(args))
			return
		}
		if r.typed(arg) {
			r.exprs.SetType(id, void)
		}
		return
	}
	if md.Key.IsValid() {
		if len(args) > 1 {
			r.fail(id, diag.ChkArity, "Single-value (i.e. indexed) map print cannot take additional arguments.")
			return
		}
		if !r.typed(arg) {
			return
		}
		switch r.in.Kind(r.exprs.TypeOf(arg)) {
		case types.KindHist, types.KindLHist, types.KindTSeries:
			r.fail(id, diag.ChkArgType, "Map type %s cannot print the value of individual keys. You must print the whole map.",
				r.label(r.exprs.TypeOf(arg)))
			return
		}
		r.exprs.SetType(id, void)
		return
	}
	m := r.visitWholeMap(arg)
	if m == nil {
		return
	}
	if r.final {
		if len(r.loops) > 0 {
			r.warnf(diag.ChkInfo, r.exprs.Span(id),
				"Due to its asynchronous nature using 'print()' in a loop can lead to unexpected behavior. "+
					"The map will likely be updated before the runtime can 'print' it.")
		}
		if m.Value != types.None && r.in.Kind(m.Value) == types.KindStats && len(args) > 1 {
			r.warnf(diag.ChkInfo, r.exprs.Span(id), "print()'s top and div arguments are ignored when used on stats() maps.")
		}
	}
	r.exprs.SetType(id, void)
}

// Value builtins ------------------------------------------------------------

// callType computes the result of a builtin whose arguments are typed.
// None means an error was reported.
func (r *resolver) callType(id ast.ExprID, name string, args []ast.ExprID) types.TypeID {
	in := r.in
	b := in.Builtins()
	argType := func(i int) types.TypeID { return r.exprs.TypeOf(args[i]) }
	argKind := func(i int) types.Kind { return in.Kind(argType(i)) }

	switch name {
	case "printf", "errorf", "system", "cat", "debugf", "exit", "time", "override", "unwatch":
		return b.Void
	case "join":
		if k := argKind(0); k != types.KindInt && k != types.KindPointer {
			r.fail(id, diag.ChkArgType, "join() only supports int or pointer arguments (%s provided)", r.label(argType(0)))
			return types.None
		}
		return b.Void
	case "signal":
		return r.signalCall(id, args[0])

	case argCallName:
		as := types.ASKernel
		if r.probe != nil {
			as = addrSpaceOf(probeKind(r.probe))
		}
		return in.WithAS(b.Uint64, as)
	case "str":
		return r.strCall(id, args)
	case "buf":
		return r.bufCall(id, args)
	case "ksym", "usym":
		if k := argKind(0); !r.isIntLike(argType(0)) && k != types.KindPointer {
			r.fail(id, diag.ChkArgType, "%s() expects an integer or pointer argument", name)
			return types.None
		}
		if name == "ksym" {
			return in.Intern(types.MakeMarker(types.KindKsym))
		}
		return in.Intern(types.MakeMarker(types.KindUsym))
	case "ntop":
		addr := args[0]
		if len(args) == 2 {
			addr = args[1]
		}
		at := r.exprs.TypeOf(addr)
		switch in.Kind(at) {
		case types.KindInt:
		case types.KindArray, types.KindString:
			if size := in.Size(at); size != 4 && size != 16 {
				r.fail(id, diag.ChkArgType, "ntop() argument must be 4 or 16 bytes in size")
				return types.None
			}
		default:
			r.fail(id, diag.ChkArgType, "ntop() expects an integer or array argument, got %s", in.Kind(at))
			return types.None
		}
		return in.Intern(types.MakeMarker(types.KindInet))
	case "pton":
		return r.ptonCall(id, args[0])
	case "strftime":
		mode := r.timestampMode(args[1])
		if mode == types.TSMonotonic {
			r.fail(id, diag.ChkArgType, "strftime() can not take a monotonic timestamp")
			return types.None
		}
		return in.Intern(types.MakeTimestamp(mode))
	case "strerror":
		return in.Intern(types.MakeMarker(types.KindStrerror))
	case "strncmp":
		n, ok := r.intConstArg(args[2])
		switch {
		case !ok:
			r.fail(id, diag.ChkLiteralRequired, "Builtin strncmp requires a non-negative literal")
			return types.None
		case n < 0:
			r.fail(id, diag.ChkArgRange, "Builtin strncmp requires a non-negative size")
			return types.None
		}
		return b.Uint64
	case "strcontains":
		if r.final && argKind(0) == types.KindString && argKind(1) == types.KindString &&
			uint64(in.Size(argType(0)))*uint64(in.Size(argType(1))) > 2000 {
			r.warnf(diag.ChkInfo, r.exprs.Span(id),
				"strcontains() is known to have verifier complexity issues when the product of both string sizes is larger than ~2000 bytes. "+
					"If you're seeing errors, try clamping the string sizes, e.g. `str($ptr, 16)`.")
		}
		return b.Uint64
	case "kstack", "ustack":
		return r.stackCall(id, name, args)
	case "kptr", "uptr":
		t := argType(0)
		if !r.isIntLike(t) && argKind(0) != types.KindPointer {
			r.fail(id, diag.ChkArgType, "%s() only supports integer or pointer arguments (%s provided)", name, in.Kind(t))
			return types.None
		}
		if name == "kptr" {
			return in.WithAS(t, types.ASKernel)
		}
		return in.WithAS(t, types.ASUser)
	case "macaddr":
		t := argType(0)
		switch in.Kind(t) {
		case types.KindInt, types.KindPointer:
		case types.KindArray, types.KindString:
			if in.Size(t) != 6 {
				r.fail(id, diag.ChkArgType, "macaddr() argument must be 6 bytes in size")
				return types.None
			}
			if _, lit := r.exprs.StringLit(args[0]); lit {
				r.fail(id, diag.ChkArgType, "macaddr() does not support literal string arguments")
				return types.None
			}
		default:
			r.fail(id, diag.ChkArgType, "macaddr() only supports array or pointer arguments (%s provided)", in.Kind(t))
			return types.None
		}
		return in.Intern(types.MakeMarker(types.KindMacAddr))
	case "bswap":
		t := r.natural(args[0])
		if in.Kind(t) != types.KindInt {
			r.fail(id, diag.ChkArgType, "bswap() only supports integer arguments (%s provided)", in.Kind(t))
			return types.None
		}
		return in.Int(in.Size(t), false)
	case "cgroupid", "socket_cookie":
		return b.Uint64
	case "cgroup_path":
		return in.Intern(types.MakeMarker(types.KindCgroupPath))
	case "reg":
		if reg, ok := r.strConstArg(args[0]); ok && !registers[reg] {
			r.fail(id, diag.ChkArgRange, "'%s' is not a valid register on this architecture (x86_64)", reg)
			return types.None
		}
		as := types.ASKernel
		if r.probe != nil {
			as = addrSpaceOf(probeKind(r.probe))
		}
		return in.WithAS(b.Uint64, as)
	case "kaddr":
		return in.WithAS(b.Uint64, types.ASKernel)
	case "percpu_kaddr":
		if sym, ok := r.strConstArg(args[0]); ok {
			if _, err := r.imp.Global(sym); err != nil {
				r.fail(id, diag.ChkArgRange, "Could not resolve variable \"%s\" from BTF", sym)
				return types.None
			}
		}
		return in.WithAS(b.Uint64, types.ASKernel)
	case "uaddr":
		if r.probe == nil {
			r.fail(id, diag.ChkProbeUnsupported, "Builtin uaddr not supported outside probe")
			return types.None
		}
		if sym, ok := r.strConstArg(args[0]); ok && !symbolRe.MatchString(sym) {
			r.fail(id, diag.ChkArgRange, "uaddr() expects a string that is a valid symbol (%s) as input (\"%s\" provided)",
				symbolRe.String(), sym)
			return types.None
		}
		return in.Pointer(b.Int64, types.ASUser)
	case "skboutput":
		return b.Uint32
	case "nsecs":
		return b.Uint64
	case "pid", "tid":
		if len(args) == 1 {
			d, ok := r.exprs.Ident(args[0])
			if !ok || (d.Name != "curr_ns" && d.Name != "init") {
				r.fail(id, diag.ChkArgType, "%s() only supports curr_ns and init as the argument", name)
				return types.None
			}
		}
		return b.Uint32
	case "path":
		return r.pathCall(id, args)
	}
	r.fail(id, diag.BugInternal, "no typing rule for builtin %s()", name)
	return types.None
}

func (r *resolver) signalCall(id, arg ast.ExprID) types.TypeID {
	void := r.in.Builtins().Void
	if sig, ok := r.strConstArg(arg); ok {
		if signals[strings.TrimPrefix(sig, "SIG")] < 1 {
			r.fail(id, diag.ChkArgRange, "%s is not a valid signal", sig)
			return types.None
		}
		return void
	}
	if n, ok := r.intConstArg(arg); ok {
		if n < 1 || n > 64 {
			r.fail(id, diag.ChkArgRange, "%d is not a valid signal, allowed range: [1,64]", n)
			return types.None
		}
		return void
	}
	if !r.isIntLike(r.exprs.TypeOf(arg)) {
		r.fail(id, diag.ChkArgType, "signal only accepts string literals or integers")
		return types.None
	}
	return void
}

func (r *resolver) strCall(id ast.ExprID, args []ast.ExprID) types.TypeID {
	in := r.in
	t := r.exprs.TypeOf(args[0])
	switch k := in.Kind(t); {
	case r.isIntLike(t), k == types.KindPointer, k == types.KindString, k == types.KindArray:
	default:
		r.fail(id, diag.ChkArgType, "str() expects an integer or a pointer type as first argument (%s provided)", r.label(t))
		return types.None
	}
	size := r.opts.Limits.MaxStrlen
	if len(args) == 2 {
		if n, ok := r.intConstArg(args[1]); ok {
			switch {
			case n < 0:
				r.fail(id, diag.ChkArgRange, "str() cannot use negative length (%d)", n)
				return types.None
			case n+1 > int64(size):
				if r.final {
					r.warnf(diag.ChkInfo, r.exprs.Span(id),
						"length param (%d) is too long and will be shortened to %d bytes (see BPFTRACE_MAX_STRLEN)", n, size)
				}
			default:
				size = uint32(n + 1) // #nosec G115 -- n+1 <= MaxStrlen
			}
		}
	}
	return in.WithAS(in.String(size), types.ASKernel)
}

func (r *resolver) bufCall(id ast.ExprID, args []ast.ExprID) types.TypeID {
	in := r.in
	t := r.exprs.TypeOf(args[0])
	tt := in.MustLookup(t)
	switch tt.Kind {
	case types.KindInt, types.KindString, types.KindPointer, types.KindArray:
	default:
		r.fail(id, diag.ChkArgType, "buf() expects an integer, string, or array argument but saw %s", tt.Kind)
		return types.None
	}
	limit := r.opts.Limits.MaxStrlen - bufHeader
	size := limit
	if len(args) == 1 {
		if tt.Kind != types.KindArray {
			r.fail(id, diag.ChkArity, "buf() expects a length argument for non-array type %s", tt.Kind)
			return types.None
		}
		size = tt.Size
	} else if n, ok := r.intConstArg(args[1]); ok {
		if n < 0 {
			r.fail(id, diag.ChkArgRange, "buf cannot use negative length (%d)", n)
			return types.None
		}
		v, err := safecast.Conv[uint32](n)
		if err != nil {
			v = limit + 1
		}
		size = v
	}
	if size > limit {
		if r.final {
			r.warnf(diag.ChkInfo, r.exprs.Span(id),
				"buf() length is too long and will be shortened to %d bytes (see BPFTRACE_MAX_STRLEN)", r.opts.Limits.MaxStrlen)
		}
		size = limit
	}
	return in.WithAS(in.Buffer(size), types.ASKernel)
}

func (r *resolver) ptonCall(id, arg ast.ExprID) types.TypeID {
	in := r.in
	addr, ok := r.strConstArg(arg)
	if !ok {
		r.fail(id, diag.ChkLiteralRequired, "pton() expects an string literal at the first argument")
		return types.None
	}
	var size uint32
	switch {
	case strings.Contains(addr, "."):
		size = 4
	case strings.Contains(addr, ":"):
		size = 16
	default:
		r.fail(id, diag.ChkArgRange, "pton() expects an string argument of an IPv4/IPv6 address, got %s", addr)
		return types.None
	}
	ip, err := netip.ParseAddr(addr)
	if err != nil || (size == 4) != ip.Is4() {
		r.fail(id, diag.ChkArgRange, "pton() expects a valid IPv4/IPv6 address, got %s", addr)
		return types.None
	}
	t := in.WithAS(in.Array(in.Builtins().Uint8, size), types.ASKernel)
	return in.WithFlags(t, types.FlagInternal)
}

// timestampMode is the clock of a value produced by nsecs(mode).
func (r *resolver) timestampMode(id ast.ExprID) types.TimestampMode {
	for {
		cd, ok := r.exprs.Cast(id)
		if !ok || !cd.Implicit {
			break
		}
		id = cd.Value
	}
	cd, ok := r.exprs.Call(id)
	if !ok || cd.Func != "nsecs" || len(cd.Args) != 1 {
		return types.TSBoot
	}
	d, ok := r.exprs.Ident(cd.Args[0])
	if !ok {
		return types.TSBoot
	}
	mode, _ := types.ParseTimestampMode(d.Name)
	return mode
}

func (r *resolver) stackCall(id ast.ExprID, name string, args []ast.ExprID) types.TypeID {
	user := name == "ustack"
	mode := types.StackBpftrace
	limit := uint32(types.DefaultStackDepth)
	limitArg := -1
	switch len(args) {
	case 1:
		if r.exprs.Kind(args[0]) == ast.ExprIdent {
			d, _ := r.exprs.Ident(args[0])
			mode, _ = types.ParseStackMode(d.Name)
		} else {
			limitArg = 0
		}
	case 2:
		d, ok := r.exprs.Ident(args[0])
		if !ok {
			r.fail(id, diag.ChkArgType, "Expected stack mode as first argument")
			return types.None
		}
		mode, _ = types.ParseStackMode(d.Name)
		limitArg = 1
	}
	if limitArg >= 0 {
		n, ok := r.intConstArg(args[limitArg])
		if !ok || n < 0 {
			r.fail(id, diag.ChkLiteralRequired, "%s: invalid limit value", name)
			return types.None
		}
		if n > types.MaxStackDepth {
			r.fail(id, diag.ChkArgRange, "%s([int limit]): limit shouldn't exceed %d, %d given", name, types.MaxStackDepth, n)
			return types.None
		}
		limit = uint32(n) // #nosec G115 -- 0 <= n <= MaxStackDepth
	}
	if mode == types.StackBuildID && !user {
		r.fail(id, diag.ChkArgType, "'build_id' stack mode can only be used for ustack")
		return types.None
	}
	return r.in.Intern(types.MakeStack(user, mode, limit))
}

func (r *resolver) pathCall(id ast.ExprID, args []ast.ExprID) types.TypeID {
	in := r.in
	t := r.exprs.TypeOf(args[0])
	if k := in.Kind(t); k != types.KindRecord && k != types.KindPointer {
		r.fail(id, diag.ChkArgType, "path() only supports pointer or record argument (%s provided)", k)
		return types.None
	}
	size := r.opts.Limits.MaxStrlen
	if len(args) == 2 {
		n, ok := r.intConstArg(args[1])
		switch {
		case !ok:
			r.fail(id, diag.ChkLiteralRequired, "path: invalid size value, need non-negative literal")
			return types.None
		case n < 0:
			r.fail(id, diag.ChkArgRange, "Builtin path requires a non-negative size")
			return types.None
		}
		v, err := safecast.Conv[uint32](n)
		if err != nil {
			r.fail(id, diag.ChkArgRange, "path: size %d is too large", n)
			return types.None
		}
		size = v
	}
	return in.String(size)
}
