package expr

import (
	"fmt"

	"github.com/stockworks/workbench/internal/domain"
)

// ErrKind classifies an evaluator failure. §4.4's failure policy collapses
// everything except a resolution timeout into a single ExprError kind;
// EvaluationTimeout stays distinguishable so the alerts engine can decide
// whether to retry sooner.
type ErrKind int

const (
	ErrKindInvalidArgument ErrKind = iota
	ErrKindEvaluationTimeout
	ErrKindNotImplemented
)

// Error is the evaluator's error type (the language's "ExprError").
type Error struct {
	Kind    ErrKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// DomainKind maps an evaluator error onto the shared taxonomy so callers
// outside this package (the alerts engine, HTTP handlers) can branch on
// domain.ErrKind without importing expr's own kind enum.
func (e *Error) DomainKind() domain.ErrKind {
	if e.Kind == ErrKindEvaluationTimeout {
		return domain.KindEvaluationTimeout
	}
	return domain.KindInvalidArgument
}

func invalidArg(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func evalTimeout(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindEvaluationTimeout, Message: fmt.Sprintf(format, args...)}
}
