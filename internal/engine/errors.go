package engine

import (
	"fmt"

	appErr "codelab/pkg/errors"
)

// ErrorKind classifies an engine failure.
type ErrorKind string

const (
	KindStructural           ErrorKind = "Structural"
	KindUndefinedVariable    ErrorKind = "UndefinedVariable"
	KindDivisionByZero       ErrorKind = "DivisionByZero"
	KindArrayIndexOutOfRange ErrorKind = "ArrayIndexOutOfRange"
	KindLoopBudgetExceeded   ErrorKind = "LoopBudgetExceeded"
	KindOutputLimitExceeded  ErrorKind = "OutputLimitExceeded"
	KindMemoryLimitExceeded  ErrorKind = "MemoryLimitExceeded"
	KindTypeMismatch         ErrorKind = "TypeMismatch"
	KindInternal             ErrorKind = "Internal"
)

// Structural reports whether the kind is detected before simulation starts.
func (k ErrorKind) Structural() bool {
	return k == KindStructural
}

// Code maps the kind onto the platform error code space.
func (k ErrorKind) Code() appErr.ErrorCode {
	switch k {
	case "":
		return appErr.Success
	case KindStructural:
		return appErr.CompilationError
	case KindLoopBudgetExceeded:
		return appErr.TimeLimitExceeded
	case KindOutputLimitExceeded:
		return appErr.OutputLimitExceeded
	case KindMemoryLimitExceeded:
		return appErr.MemoryLimitExceeded
	case KindInternal:
		return appErr.EngineError
	default:
		return appErr.RuntimeError
	}
}

// Error is a categorized engine failure. Line is 0 when unknown.
type Error struct {
	Kind    ErrorKind
	Message string
	Line    int
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

func newError(kind ErrorKind, line int, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Line: line}
}

func syntaxError(line int, format string, args ...interface{}) *Error {
	return newError(KindStructural, line, format, args...)
}

// withLine fills in a missing line number on engine errors.
func withLine(err error, line int) error {
	if e, ok := err.(*Error); ok && e.Line == 0 {
		e.Line = line
	}
	return err
}
