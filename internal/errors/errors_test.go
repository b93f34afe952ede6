package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func TestParseError(t *testing.T) {
	underlying := errors.New("tree-sitter returned nil tree")
	err := NewParserCrash("structured", underlying).
		WithRecoverable(true).
		WithSuggestion("fallback extraction in use")

	if err.Kind != KindParserCrash {
		t.Errorf("Expected Kind to be KindParserCrash, got %v", err.Kind)
	}
	if !errors.Is(err, underlying) {
		t.Errorf("Expected error to unwrap to underlying error")
	}
	if !err.IsRecoverable() {
		t.Errorf("Expected error to be marked as recoverable")
	}
	if err.HasPosition() {
		t.Errorf("Expected no position")
	}

	expectedMsg := "parser_crash (structured): tree-sitter returned nil tree"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestSyntaxErrorPosition(t *testing.T) {
	err := NewSyntaxError(4, 12, "unexpected token")

	assert.True(t, err.HasPosition())
	assert.True(t, err.Recoverable)
	assert.Equal(t, "syntax at 4:12: unexpected token", err.Error())
}

func TestPartialParseErrorUnwrap(t *testing.T) {
	a := NewSyntaxError(1, 0, "a")
	b := NewParseError(KindEncoding, "b")
	err := &PartialParseError{Errors: []*ParseError{a, b}}

	var target *ParseError
	require.True(t, errors.As(err, &target))
	assert.Same(t, a, target)
	assert.Contains(t, err.Error(), "2 errors")
}

func TestConfigError(t *testing.T) {
	underlying := errors.New("must be positive")
	err := NewConfigError("cache.pattern_capacity", "0", underlying)

	assert.True(t, errors.Is(err, underlying))
	assert.Equal(t, "config error for field cache.pattern_capacity (value 0): must be positive", err.Error())
}

func TestMultiError(t *testing.T) {
	err1 := errors.New("error 1")
	err2 := errors.New("error 2")

	multi := NewMultiError([]error{err1, nil, err2})
	assert.Len(t, multi.Errors, 2)
	assert.True(t, errors.Is(multi, err2))
	assert.NoError(t, NewMultiError(nil).ErrorOrNil())
	assert.Error(t, multi.ErrorOrNil())
}

func TestSeverityMapping(t *testing.T) {
	tests := []struct {
		kind ParseErrorKind
		want protocol.DiagnosticSeverity
	}{
		{KindSyntax, protocol.DiagnosticSeverityError},
		{KindParserCrash, protocol.DiagnosticSeverityWarning},
		{KindMemory, protocol.DiagnosticSeverityError},
		{KindEncoding, protocol.DiagnosticSeverityWarning},
		{KindFileTooLarge, protocol.DiagnosticSeverityInformation},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, Severity(tt.kind))
		})
	}
}

func TestDiagnostic(t *testing.T) {
	d := NewSyntaxError(2, 5, "missing ')'").Diagnostic()

	require.NotNil(t, d.Severity)
	assert.Equal(t, protocol.DiagnosticSeverityError, *d.Severity)
	assert.Equal(t, protocol.UInteger(2), d.Range.Start.Line)
	assert.Equal(t, protocol.UInteger(5), d.Range.Start.Character)
	assert.Equal(t, protocol.UInteger(6), d.Range.End.Character)
	require.NotNil(t, d.Source)
	assert.Equal(t, DiagnosticSource, *d.Source)

	crash := NewParserCrash("structured", nil).WithSuggestion("fallback extraction in use").Diagnostic()
	assert.Equal(t, protocol.UInteger(0), crash.Range.Start.Line)
	assert.Equal(t, "parser failed (fallback extraction in use)", crash.Message)

	assert.Len(t, Diagnostics([]*ParseError{nil, NewParseError(KindMemory, "oom")}), 1)
}
