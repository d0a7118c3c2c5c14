package trace

import "time"

// Kind tells what an event marks.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

var kindNames = [...]string{
	KindSpanBegin: "begin",
	KindSpanEnd:   "end",
	KindPoint:     "point",
	KindHeartbeat: "heartbeat",
}

func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Scope is the granularity of an event; smaller is coarser.
type Scope uint8

const (
	ScopeDriver Scope = iota + 1 // one program
	ScopePass                    // decode, context, control-flow, resolve-types, type-check
	ScopeUnit                    // a probe, a subprogram, a resolver iteration
	ScopeNode                    // a single expression or statement
)

var scopeNames = [...]string{
	ScopeDriver: "driver",
	ScopePass:   "pass",
	ScopeUnit:   "unit",
	ScopeNode:   "node",
}

func (s Scope) String() string {
	if s > 0 && int(s) < len(scopeNames) {
		return scopeNames[s]
	}
	return "unknown"
}

// Event is one trace record. Spans produce a begin/end pair sharing SpanID.
type Event struct {
	Time     time.Time
	Seq      uint64 // assigned by the sink that writes the event
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64 // 0 for a root span
	GID      uint64
	Name     string // "check", "resolve-types", "iteration", "probe"...
	Detail   string
	// Elapsed is set on span ends.
	Elapsed time.Duration
	Extra   map[string]string
}
