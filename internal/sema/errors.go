package sema

import (
	"fmt"

	"tracec/internal/diag"
	"tracec/internal/source"
)

// InternalError is raised when the type checker meets a state the resolver
// promised could not happen. It is only thrown in strict mode; otherwise the
// same condition is reported with SevBug.
type InternalError struct {
	Span    source.Span
	Message string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error at %s: %s", e.Span, e.Message)
}

// bugReporter sends engine defects to the ledger, or panics in strict mode.
type bugReporter struct {
	rep    diag.Reporter
	strict bool
}

func (b bugReporter) bug(span source.Span, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if b.strict {
		panic(&InternalError{Span: span, Message: msg})
	}
	diag.ReportBug(b.rep, span, msg).Emit()
}
