// Package trace is the structured logging layer of tracec.
//
// Compilation is described as nested spans: the driver opens a span per
// program, the pass manager one per pass, the type resolver one per
// iteration. Node-level decisions are emitted as point events.
//
// # Usage
//
//	tracec check --trace=- --trace-level=detail prog.yaml
//	tracec check --trace=trace.ndjson --trace-level=debug prog.yaml
//	tracec check --trace=- --trace-format=zap prog.yaml
//
// # Sinks
//
//   - nop: zero overhead when disabled
//   - StreamTracer: text or NDJSON lines written immediately
//   - RingTracer: last N events kept in memory, dumped on panic
//   - ZapTracer: events forwarded to a zap logger as structured fields
//   - MultiTracer: fan-out
//
// # Levels and scopes
//
// LevelPhase shows driver and pass spans, LevelDetail adds ScopeUnit
// (probes, resolver iterations) and LevelDebug adds ScopeNode events.
//
// Tracers travel through context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx, span := trace.StartSpan(ctx, trace.ScopePass, "resolve-types")
//	defer span.End("")
//
// The check command feeds heartbeats with the number of programs that
// finished type-check, so a long directory run shows where it stands.
package trace
