package pass

import "time"

// Status captures progress state of one pass.
type Status string

const (
	// StatusWorking indicates the pass is currently running.
	StatusWorking Status = "working"
	// StatusDone indicates the pass finished.
	StatusDone Status = "done"
	// StatusError indicates the pass returned an error.
	StatusError Status = "error"
	// StatusSkipped indicates the pass never ran because the pipeline halted.
	StatusSkipped Status = "skipped"
)

// Event reports progress of a pass.
type Event struct {
	Pass    string
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

// FuncSink adapts a function to ProgressSink.
type FuncSink func(Event)

func (f FuncSink) OnEvent(evt Event) {
	if f != nil {
		f(evt)
	}
}

func emit(sink ProgressSink, name string, status Status, err error, elapsed time.Duration) {
	if sink == nil {
		return
	}
	sink.OnEvent(Event{Pass: name, Status: status, Err: err, Elapsed: elapsed})
}
