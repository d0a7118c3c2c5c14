package astio

import (
	"fmt"
	"strconv"
	"strings"

	"tracec/internal/ast"
)

// ParseAttachPoint splits `provider:target:func` style spellings into an
// attach point. Span is left for the caller.
func ParseAttachPoint(raw string) (ast.AttachPoint, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")
	ap := ast.AttachPoint{Raw: raw, Provider: ast.ParseProbeType(parts[0])}
	rest := parts[1:]

	switch ap.Provider {
	case ast.ProbeInvalid:
		return ap, fmt.Errorf("unknown probe provider %q in %q", parts[0], raw)
	case ast.ProbeSpecial:
		if len(rest) != 0 {
			return ap, fmt.Errorf("%s takes no arguments", parts[0])
		}
		ap.Func = strings.ToUpper(parts[0])
	case ast.ProbeKprobe, ast.ProbeKretprobe, ast.ProbeFentry, ast.ProbeFexit, ast.ProbeRawTracepoint:
		// [module:]func
		switch len(rest) {
		case 1:
			ap.Func = rest[0]
		case 2:
			ap.Target, ap.Func = rest[0], rest[1]
		default:
			return ap, fmt.Errorf("%s expects [module:]function, got %q", ap.Provider, raw)
		}
	case ast.ProbeUprobe, ast.ProbeUretprobe:
		if len(rest) != 2 {
			return ap, fmt.Errorf("%s expects binary:function, got %q", ap.Provider, raw)
		}
		ap.Target, ap.Func = rest[0], rest[1]
	case ast.ProbeUsdt:
		if len(rest) < 2 {
			return ap, fmt.Errorf("usdt expects binary:[provider:]name, got %q", raw)
		}
		ap.Target, ap.Func = rest[0], strings.Join(rest[1:], ":")
	case ast.ProbeTracepoint:
		if len(rest) != 2 {
			return ap, fmt.Errorf("tracepoint expects category:event, got %q", raw)
		}
		ap.Target, ap.Func = rest[0], rest[1]
	case ast.ProbeProfile, ast.ProbeInterval, ast.ProbeSoftware, ast.ProbeHardware:
		if len(rest) < 1 || len(rest) > 2 {
			return ap, fmt.Errorf("%s expects unit[:count], got %q", ap.Provider, raw)
		}
		ap.Target = rest[0]
		if len(rest) == 2 {
			n, err := strconv.ParseUint(rest[1], 10, 64)
			if err != nil {
				return ap, fmt.Errorf("%s: invalid count %q", ap.Provider, rest[1])
			}
			ap.Freq = n
		}
	case ast.ProbeWatchpoint, ast.ProbeAsyncWatchpoint:
		if len(rest) != 3 {
			return ap, fmt.Errorf("%s expects address:length:mode, got %q", ap.Provider, raw)
		}
		addr, err := strconv.ParseUint(rest[0], 0, 64)
		if err != nil {
			return ap, fmt.Errorf("%s: invalid address %q", ap.Provider, rest[0])
		}
		n, err := strconv.ParseUint(rest[1], 10, 64)
		if err != nil {
			return ap, fmt.Errorf("%s: invalid length %q", ap.Provider, rest[1])
		}
		ap.Address, ap.Len, ap.Mode = addr, n, rest[2]
	case ast.ProbeIter:
		if len(rest) != 1 {
			return ap, fmt.Errorf("iter expects an iterator name, got %q", raw)
		}
		ap.Func = rest[0]
	}
	return ap, nil
}
