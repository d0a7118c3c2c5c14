package main

import (
	"context"
	"errors"
	"testing"

	"tracec/internal/pass"
)

func TestProgressCountsLastPass(t *testing.T) {
	p := &progress{}
	ctx := withProgress(context.Background(), p)
	sink := progressSink(ctx)
	if sink == nil {
		t.Fatal("no sink in context")
	}
	sink.OnEvent(pass.Event{Pass: "decode", Status: pass.StatusDone})
	sink.OnEvent(pass.Event{Pass: "type-check", Status: pass.StatusWorking})
	sink.OnEvent(pass.Event{Pass: "type-check", Status: pass.StatusDone})
	sink.OnEvent(pass.Event{Pass: "type-check", Status: pass.StatusError, Err: errors.New("boom")})
	sink.OnEvent(pass.Event{Pass: "type-check", Status: pass.StatusSkipped})

	if got := p.String(); got != "checked=3 failed=2" {
		t.Fatalf("progress = %q", got)
	}
	if progressSink(context.Background()) != nil {
		t.Fatal("sink without progress")
	}
}
