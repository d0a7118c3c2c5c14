package sema

import (
	"strconv"
	"strings"

	"tracec/internal/ast"
	"tracec/internal/diag"
	"tracec/internal/types"
)

// Names of context builtins handled by the context resolver.
const (
	builtinCtx     = "ctx"
	builtinArgs    = "args"
	builtinRetval  = "retval"
	builtinRawRet  = "__builtin_retval"
	ctxVarName     = "ctx"
	retvalField    = "$retval"
	argCallName    = "arg"
	commonTPPrefix = "common_"
)

// argIndex parses "arg0".."arg9" style builtins.
func argIndex(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "arg")
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// isContextBuiltin reports builtins whose value is read from the probe
// context and therefore need a resolved context type.
func isContextBuiltin(name string) bool {
	switch name {
	case builtinCtx, builtinArgs, builtinRawRet:
		return true
	}
	_, ok := argIndex(name)
	return ok
}

// addrSpaceOf is the address space pointers read in a probe live in.
func addrSpaceOf(pt ast.ProbeType) types.AddrSpace {
	switch pt {
	case ast.ProbeKprobe, ast.ProbeKretprobe, ast.ProbeFentry, ast.ProbeFexit,
		ast.ProbeTracepoint, ast.ProbeIter, ast.ProbeRawTracepoint:
		return types.ASKernel
	case ast.ProbeUprobe, ast.ProbeUretprobe, ast.ProbeUsdt:
		return types.ASUser
	}
	return types.ASNone
}

// probeKind returns the provider of the first attach point.
func probeKind(p *ast.ProbeItem) ast.ProbeType {
	if p == nil || len(p.AttachPoints) == 0 {
		return ast.ProbeInvalid
	}
	return p.AttachPoints[0].Provider
}

// builtinResult is the outcome of typing a plain builtin variable.
type builtinResult struct {
	typ types.TypeID
	// msg is a user error; the type is left unresolved.
	msg  string
	code diag.Code
	// feature names a missing kernel feature.
	feature string
}

// builtinType types builtin variables other than the context ones.
func (r *resolver) builtinType(name string) builtinResult {
	in := r.in
	b := in.Builtins()
	if r.probe == nil {
		if name == "elapsed" || name == "nsecs" || name == "cpu" || name == "jiffies" {
			return builtinResult{typ: b.Uint64}
		}
		return builtinResult{msg: "Builtin " + name + " not supported outside probe", code: diag.CtxBuiltinNotAllowed}
	}
	pt := probeKind(r.probe)
	switch name {
	case "pid", "tid", "cpid":
		return builtinResult{typ: b.Uint32}
	case "nsecs", "elapsed", "cgroup", "uid", "gid", "cpu", "rand", "numaid", "jiffies":
		return builtinResult{typ: b.Uint64}
	case "curtask":
		task := in.LookupOrAddStruct("struct task_struct")
		return builtinResult{typ: in.Pointer(task, types.ASKernel)}
	case "comm":
		return builtinResult{typ: in.WithAS(in.String(16), types.ASKernel)}
	case "kstack":
		return builtinResult{typ: in.Intern(types.MakeStack(false, types.StackBpftrace, types.DefaultStackDepth))}
	case "ustack":
		return builtinResult{typ: in.Intern(types.MakeStack(true, types.StackBpftrace, types.DefaultStackDepth))}
	case "username":
		return builtinResult{typ: in.Intern(types.MakeMarker(types.KindUsername))}
	case "probe":
		return builtinResult{typ: in.String(uint32(len(r.probe.Name())) + 1)} // #nosec G115 -- attach point names are short
	case "func":
		switch pt {
		case ast.ProbeKprobe, ast.ProbeKretprobe, ast.ProbeFentry, ast.ProbeFexit:
			if pt == ast.ProbeKretprobe || pt == ast.ProbeFexit {
				if !r.opts.Features.GetFuncIP {
					return builtinResult{feature: "BPF_FUNC_get_func_ip not available for your kernel version"}
				}
			}
			return builtinResult{typ: in.Intern(types.MakeMarker(types.KindKsym))}
		case ast.ProbeUprobe, ast.ProbeUretprobe:
			return builtinResult{typ: in.Intern(types.MakeMarker(types.KindUsym))}
		}
		return builtinResult{msg: "The func builtin can not be used with '" + pt.String() + "' probes", code: diag.CtxBuiltinNotAllowed}
	case builtinRetval:
		switch pt {
		case ast.ProbeKretprobe, ast.ProbeUretprobe:
			return builtinResult{typ: in.WithAS(b.Uint64, addrSpaceOf(pt))}
		case ast.ProbeFexit:
			if rc := r.probeCtx(); rc != nil && in.Kind(rc.Ctx) == types.KindPointer {
				if info, ok := in.RecordInfo(in.Elem(rc.Ctx)); ok {
					if f, ok := info.Field(retvalField); ok {
						return builtinResult{typ: in.WithAS(f.Type, types.ASKernel)}
					}
				}
			}
			return builtinResult{typ: in.WithAS(b.Uint64, types.ASKernel)}
		}
		msg := "The retval builtin can only be used with 'kretprobe' and 'uretprobe' and 'fentry' probes"
		if pt == ast.ProbeTracepoint {
			msg += " (try to use args.ret instead)"
		}
		return builtinResult{msg: msg, code: diag.CtxBuiltinNotAllowed}
	}
	return builtinResult{msg: "Unknown builtin variable: '" + name + "'", code: diag.TypUnknownIdentifier}
}
