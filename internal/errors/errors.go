package errors

import (
	"fmt"
	"strings"
	"time"
)

// ParseErrorKind classifies extraction failures
type ParseErrorKind string

const (
	KindSyntax       ParseErrorKind = "syntax"
	KindMemory       ParseErrorKind = "memory"
	KindEncoding     ParseErrorKind = "encoding"
	KindParserCrash  ParseErrorKind = "parser_crash"
	KindFileTooLarge ParseErrorKind = "file_too_large"
)

// ParseError describes one problem found while extracting patterns from a file.
type ParseError struct {
	Kind        ParseErrorKind
	Message     string
	Line        int // 0-based, -1 when unknown
	Column      int // 0-based, -1 when unknown
	Recoverable bool
	Suggestion  string
	Strategy    string
	Underlying  error
	Timestamp   time.Time
}

// NewParseError creates a parse error with no position
func NewParseError(kind ParseErrorKind, message string) *ParseError {
	return &ParseError{
		Kind:      kind,
		Message:   message,
		Line:      -1,
		Column:    -1,
		Timestamp: time.Now(),
	}
}

// NewSyntaxError creates a recoverable syntax error at a position
func NewSyntaxError(line, column int, message string) *ParseError {
	return NewParseError(KindSyntax, message).At(line, column).WithRecoverable(true)
}

// NewParserCrash wraps a strategy failure
func NewParserCrash(strategy string, err error) *ParseError {
	msg := "parser failed"
	if err != nil {
		msg = err.Error()
	}
	e := NewParseError(KindParserCrash, msg)
	e.Strategy = strategy
	e.Underlying = err
	return e
}

// At sets the 0-based position of the error
func (e *ParseError) At(line, column int) *ParseError {
	e.Line = line
	e.Column = column
	return e
}

// WithRecoverable marks the error as recoverable
func (e *ParseError) WithRecoverable(recoverable bool) *ParseError {
	e.Recoverable = recoverable
	return e
}

// WithSuggestion attaches remediation text
func (e *ParseError) WithSuggestion(s string) *ParseError {
	e.Suggestion = s
	return e
}

// WithUnderlying attaches the cause
func (e *ParseError) WithUnderlying(err error) *ParseError {
	e.Underlying = err
	return e
}

// HasPosition reports whether line and column are known
func (e *ParseError) HasPosition() bool {
	return e.Line >= 0 && e.Column >= 0
}

// Error implements the error interface
func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Strategy != "" {
		fmt.Fprintf(&b, " (%s)", e.Strategy)
	}
	if e.HasPosition() {
		fmt.Fprintf(&b, " at %d:%d", e.Line, e.Column)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// Unwrap returns the underlying error for errors.Is/As
func (e *ParseError) Unwrap() error {
	return e.Underlying
}

// IsRecoverable checks if extraction can still produce usable data
func (e *ParseError) IsRecoverable() bool {
	return e.Recoverable
}

// PartialParseError groups recoverable problems that accompany usable data
type PartialParseError struct {
	Errors []*ParseError
}

// Error implements the error interface
func (e *PartialParseError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "partial parse"
	case 1:
		return "partial parse: " + e.Errors[0].Error()
	}
	return fmt.Sprintf("partial parse: %d errors, first: %v", len(e.Errors), e.Errors[0])
}

// Unwrap returns all errors
func (e *PartialParseError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, pe := range e.Errors {
		out[i] = pe
	}
	return out
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error, dropping nils
func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// ErrorOrNil returns nil when no errors were collected
func (e *MultiError) ErrorOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}
