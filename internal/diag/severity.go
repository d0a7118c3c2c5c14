package diag

// Severity orders diagnostics; anything at SevError or above fails the
// program.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
	// SevBug marks a broken checker invariant, never a user mistake alone.
	SevBug
)

var severityNames = [...]struct{ upper, lower string }{
	SevInfo:    {"INFO", "info"},
	SevWarning: {"WARNING", "warning"},
	SevError:   {"ERROR", "error"},
	SevBug:     {"BUG", "bug"},
}

// String is the uppercase form used in pretty output.
func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s].upper
	}
	return "UNKNOWN"
}

// Label is the lowercase form used in short output and test expectations.
func (s Severity) Label() string {
	if int(s) < len(severityNames) {
		return severityNames[s].lower
	}
	return "info"
}
