package errors

import (
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// DiagnosticSource is reported as the origin of every diagnostic.
const DiagnosticSource = "bladelsp"

// Severity maps a parse error kind to a protocol severity.
func Severity(kind ParseErrorKind) protocol.DiagnosticSeverity {
	switch kind {
	case KindSyntax, KindMemory:
		return protocol.DiagnosticSeverityError
	case KindParserCrash, KindEncoding:
		return protocol.DiagnosticSeverityWarning
	case KindFileTooLarge:
		return protocol.DiagnosticSeverityInformation
	}
	return protocol.DiagnosticSeverityWarning
}

// Diagnostic converts the error to a protocol diagnostic. Errors without a
// position are reported on the first character of the file.
func (e *ParseError) Diagnostic() protocol.Diagnostic {
	var start protocol.Position
	if e.HasPosition() {
		start = protocol.Position{Line: protocol.UInteger(e.Line), Character: protocol.UInteger(e.Column)}
	}
	end := start
	end.Character++

	severity := Severity(e.Kind)
	source := DiagnosticSource
	msg := e.Message
	if e.Suggestion != "" {
		msg += " (" + e.Suggestion + ")"
	}
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: start, End: end},
		Severity: &severity,
		Code:     &protocol.IntegerOrString{Value: string(e.Kind)},
		Source:   &source,
		Message:  msg,
	}
}

// Diagnostics converts a list of parse errors.
func Diagnostics(errs []*ParseError) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			out = append(out, e.Diagnostic())
		}
	}
	return out
}
