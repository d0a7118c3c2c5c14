// Package diag defines the diagnostics ledger shared by every compiler pass.
//
// A Diagnostic carries a Severity (Info, Warning, Error, Bug), a numeric Code
// with a stable string ID (see codes.go), a message, the primary span, optional
// notes pointing at secondary locations and an optional hint.
//
// Passes never write to storage directly: they emit through a Reporter,
// usually via ReportError/ReportWarning builders. BagReporter collects into a
// Bag, which is the ledger the pass pipeline consults between passes. A
// compilation is ok iff its Bag has no Error or Bug entries.
//
// SevBug is reserved for internal invariant violations detected by the final
// type checker. Tooling must keep it distinct from user errors.
//
// Rendering lives in internal/diagfmt; FormatLines here is the minimal
// one-line form shared by the short output mode and test fixtures.
package diag
