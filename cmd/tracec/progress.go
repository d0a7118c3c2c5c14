package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"tracec/internal/pass"
)

// progress counts programs that went past the last pass. Pass events
// arrive from several workers at once.
type progress struct {
	finished atomic.Int64
	failed   atomic.Int64
}

func (p *progress) sink() pass.ProgressSink {
	return pass.FuncSink(func(ev pass.Event) {
		if ev.Pass != "type-check" {
			return
		}
		switch ev.Status {
		case pass.StatusDone:
			p.finished.Add(1)
		case pass.StatusError, pass.StatusSkipped:
			p.finished.Add(1)
			p.failed.Add(1)
		}
	})
}

func (p *progress) String() string {
	return fmt.Sprintf("checked=%d failed=%d", p.finished.Load(), p.failed.Load())
}

type progressKey struct{}

func withProgress(ctx context.Context, p *progress) context.Context {
	return context.WithValue(ctx, progressKey{}, p)
}

// progressSink returns the sink installed by the pre-run, or nil.
func progressSink(ctx context.Context) pass.ProgressSink {
	if ctx == nil {
		return nil
	}
	if p, ok := ctx.Value(progressKey{}).(*progress); ok {
		return p.sink()
	}
	return nil
}
