package trace

import (
	"errors"
	"io"
	"sort"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapTracer logs events through zap with the span identity as fields.
// Node-scope events go to debug, the rest to info.
type ZapTracer struct {
	gate
	logger *zap.Logger
}

// NewZapTracer logs JSON lines to w.
func NewZapTracer(w io.Writer, level Level) *ZapTracer {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), zapcore.DebugLevel)
	return &ZapTracer{gate: gate{level: level}, logger: zap.New(core)}
}

func (t *ZapTracer) Emit(ev *Event) {
	if !t.admits(ev) {
		return
	}
	fields := []zap.Field{
		zap.Stringer("kind", ev.Kind),
		zap.Stringer("scope", ev.Scope),
		zap.Uint64("seq", NextSeq()),
		zap.Uint64("span", ev.SpanID),
	}
	if ev.ParentID != 0 {
		fields = append(fields, zap.Uint64("parent", ev.ParentID))
	}
	if ev.Detail != "" {
		fields = append(fields, zap.String("detail", ev.Detail))
	}
	if ev.Kind == KindSpanEnd {
		fields = append(fields, zap.Duration("elapsed", ev.Elapsed))
	}
	keys := make([]string, 0, len(ev.Extra))
	for k := range ev.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.String(k, ev.Extra[k]))
	}

	level := zapcore.InfoLevel
	if ev.Scope >= ScopeNode {
		level = zapcore.DebugLevel
	}
	t.logger.Log(level, ev.Name, fields...)
}

// Flush syncs the logger; terminals reject fsync and that is fine.
func (t *ZapTracer) Flush() error {
	err := t.logger.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

func (t *ZapTracer) Close() error { return t.Flush() }
