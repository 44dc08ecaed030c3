package roundio

import (
	"errors"
	"fmt"
)

// ErrSelfImport rejects text exported by this installation.
var ErrSelfImport = errors.New("cannot import a round exported from this installation")

// ParseError points at the line that could not be read. Line is 0 when the
// problem is a missing mandatory field.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return "parse error: " + e.Msg
	}
	return fmt.Sprintf("parse error on line %d: %s", e.Line, e.Msg)
}

// ValidationError is raised when an export fails its own re-parse check.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("export validation failed: %s: %v", e.Msg, e.Err)
	}
	return "export validation failed: " + e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ResolutionError names a cross reference that could not be resolved.
type ResolutionError struct {
	Entity string
	Name   string
	Line   int
	Msg    string
}

func (e *ResolutionError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = "not found"
	}
	s := fmt.Sprintf("%s %s: %q", e.Entity, msg, e.Name)
	if e.Line > 0 {
		s += fmt.Sprintf(" (line %d)", e.Line)
	}
	return s
}
