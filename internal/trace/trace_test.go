package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStreamRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelPhase, FormatText)

	pass := Begin(tr, ScopePass, "resolve-types", 0)
	it := Begin(tr, ScopeUnit, "iteration", pass.ID())
	it.End("")
	pass.WithExtra("iterations", "1").End("ok")

	out := buf.String()
	if !strings.Contains(out, "→ resolve-types") {
		t.Fatalf("missing begin line:\n%s", out)
	}
	if !strings.Contains(out, "← resolve-types (ok) {iterations=1}") {
		t.Fatalf("missing end line:\n%s", out)
	}
	if strings.Contains(out, "iteration\n") {
		t.Fatalf("unit scope leaked at phase level:\n%s", out)
	}
}

func TestNDJSONStream(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDebug, FormatNDJSON)
	Point(tr, ScopeNode, "cast", 7, "int64", map[string]string{"expr": "3"})

	var ev map[string]any
	if err := json.Unmarshal(buf.Bytes(), &ev); err != nil {
		t.Fatalf("bad json %q: %v", buf.String(), err)
	}
	if ev["kind"] != "point" || ev["scope"] != "node" || ev["name"] != "cast" {
		t.Fatalf("unexpected event: %v", ev)
	}
	if ev["parent_id"].(float64) != 7 {
		t.Fatalf("parent_id = %v", ev["parent_id"])
	}
}

func TestPointSkippedWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDetail, FormatText)
	Point(tr, ScopeNode, "cast", 0, "", nil)
	Point(Nop, ScopePass, "x", 0, "", nil)
	Point(nil, ScopePass, "x", 0, "", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected nothing, got %q", buf.String())
	}
	if On(tr, ScopeNode) || !On(tr, ScopeUnit) {
		t.Fatalf("On disagrees with level")
	}
}

func TestRingWraps(t *testing.T) {
	r := NewRingTracer(3, LevelDebug)
	for _, name := range []string{"a", "b", "c", "d"} {
		Point(r, ScopePass, name, 0, "", nil)
	}
	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len = %d", len(snap))
	}
	var names []string
	for _, ev := range snap {
		names = append(names, ev.Name)
	}
	if strings.Join(names, ",") != "b,c,d" {
		t.Fatalf("order = %v", names)
	}

	var buf bytes.Buffer
	if err := r.Dump(&buf, FormatText); err != nil {
		t.Fatal(err)
	}
	if strings.Count(buf.String(), "\n") != 3 {
		t.Fatalf("dump:\n%s", buf.String())
	}
}

type failingTracer struct {
	nopTracer
	err error
	n   int
}

func (f *failingTracer) Emit(*Event)  { f.n++ }
func (f *failingTracer) Close() error { return f.err }

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	a := &failingTracer{err: errors.New("a")}
	b := &failingTracer{err: errors.New("b")}
	ring := NewRingTracer(8, LevelDebug)
	m := NewMultiTracer(LevelDebug, a, ring, b)

	Begin(m, ScopeDriver, "check", 0).End("")
	if a.n != 2 || b.n != 2 {
		t.Fatalf("fan-out counts a=%d b=%d", a.n, b.n)
	}
	if m.Ring() != ring || len(ring.Snapshot()) != 2 {
		t.Fatalf("ring not reached")
	}

	err := m.Close()
	if err == nil || !strings.Contains(err.Error(), "a") || !strings.Contains(err.Error(), "b") {
		t.Fatalf("close error = %v", err)
	}
}

func TestZapTracer(t *testing.T) {
	var buf bytes.Buffer
	z := NewZapTracer(&buf, LevelDetail)
	span := Begin(z, ScopeUnit, "iteration", 3)
	span.WithExtra("unresolved", "2").End("second-chance")
	if err := z.Flush(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d:\n%s", len(lines), buf.String())
	}
	var end map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &end); err != nil {
		t.Fatal(err)
	}
	if end["msg"] != "iteration" || end["kind"] != "end" || end["detail"] != "second-chance" || end["unresolved"] != "2" {
		t.Fatalf("unexpected zap entry: %v", end)
	}
}

func TestNewHonoursFormat(t *testing.T) {
	tr, err := New(Config{Level: LevelOff})
	if err != nil || tr.Enabled() {
		t.Fatalf("off level must give nop, got %T %v", tr, err)
	}

	var buf bytes.Buffer
	tr, err = New(Config{Level: LevelPhase, Mode: ModeStream, Format: FormatZap, Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(*ZapTracer); !ok {
		t.Fatalf("got %T", tr)
	}

	if f := resolveFormat(Config{OutputPath: "out.ndjson"}); f != FormatNDJSON {
		t.Fatalf("resolveFormat = %v", f)
	}
	if _, err := ParseFormat("chrome"); err == nil {
		t.Fatalf("chrome must be rejected")
	}
}

func TestContextPropagation(t *testing.T) {
	r := NewRingTracer(4, LevelPhase)
	ctx := WithTracer(context.Background(), r)
	if FromContext(ctx) != Tracer(r) {
		t.Fatalf("tracer lost")
	}
	ctx = WithSpanContext(ctx, SpanContext{SpanID: 9})
	if CurrentSpan(ctx).SpanID != 9 {
		t.Fatalf("span context lost")
	}
	if FromContext(context.Background()) != Nop {
		t.Fatalf("default must be Nop")
	}
}

func TestStartSpanNests(t *testing.T) {
	r := NewRingTracer(8, LevelDetail)
	ctx := WithTracer(context.Background(), r)

	ctx, outer := StartSpan(ctx, ScopeDriver, "check")
	inner, span := StartSpan(ctx, ScopeUnit, "probe")
	if CurrentSpan(inner).SpanID != span.ID() {
		t.Fatalf("inner context does not carry its span")
	}
	// node scope is below detail: the span is dropped and the parent kept
	deeper, dropped := StartSpan(inner, ScopeNode, "cast")
	if dropped.ID() != 0 || CurrentSpan(deeper).SpanID != span.ID() {
		t.Fatalf("unrecorded span replaced the parent")
	}
	span.End("")
	outer.End("")

	evs := r.Snapshot()
	if len(evs) != 4 || evs[1].ParentID != outer.ID() {
		t.Fatalf("events = %+v", evs)
	}
}

func TestStartSpanWithoutTracer(t *testing.T) {
	ctx := context.Background()
	got, span := StartSpan(ctx, ScopeDriver, "check")
	if got != ctx || span.ID() != 0 {
		t.Fatalf("disabled tracing changed the context")
	}
	span.End("")
}

func TestFlagValues(t *testing.T) {
	var l Level
	if err := l.Set("Detail"); err != nil || l != LevelDetail {
		t.Fatalf("level = %v, err = %v", l, err)
	}
	if err := l.Set("loud"); err == nil {
		t.Fatal("unknown level accepted")
	}
	if l.String() != "detail" || l.Type() != "level" {
		t.Fatalf("level flag = %s/%s", l.String(), l.Type())
	}

	var f Format
	if err := f.Set("JSON"); err != nil || f != FormatNDJSON {
		t.Fatalf("format = %v, err = %v", f, err)
	}
	var m StorageMode
	if err := m.Set("both"); err != nil || m != ModeBoth {
		t.Fatalf("mode = %v, err = %v", m, err)
	}
	if err := m.Set("disk"); err == nil {
		t.Fatal("unknown mode accepted")
	}
}

func TestRingTail(t *testing.T) {
	r := NewRingTracer(4, LevelDebug)
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		Point(r, ScopePass, name, 0, "", nil)
	}
	var names []string
	for _, ev := range r.Tail(2) {
		names = append(names, ev.Name)
	}
	if strings.Join(names, ",") != "e,f" {
		t.Fatalf("tail = %v", names)
	}
	if len(r.Tail(10)) != 4 || len(r.Tail(0)) != 4 {
		t.Fatalf("tail must be capped by what is stored")
	}

	var buf bytes.Buffer
	if err := r.DumpTail(&buf, FormatText, 1); err != nil {
		t.Fatal(err)
	}
	if strings.Count(buf.String(), "\n") != 1 || !strings.Contains(buf.String(), "f") {
		t.Fatalf("dump tail:\n%s", buf.String())
	}
	if len(NewRingTracer(4, LevelDebug).Tail(3)) != 0 {
		t.Fatal("empty ring returned events")
	}
}

func TestHeartbeatStatus(t *testing.T) {
	r := NewRingTracer(64, LevelPhase)
	hb := StartHeartbeat(r, 2*time.Millisecond, func() string { return "checked=3" })
	if hb == nil {
		t.Fatal("heartbeat not started")
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(r.Snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	hb.Stop()
	hb.Stop()

	evs := r.Snapshot()
	if len(evs) == 0 {
		t.Fatal("no heartbeat emitted")
	}
	if evs[0].Kind != KindHeartbeat || evs[0].Detail != "#1 checked=3" {
		t.Fatalf("first beat = %+v", evs[0])
	}
	if StartHeartbeat(Nop, time.Millisecond, nil) != nil {
		t.Fatal("heartbeat on a disabled tracer")
	}
}
