// Package errs defines the error taxonomy shared by the orchestration core.
package errs

import (
	"errors"
	"fmt"
)

// #region kind

// Kind classifies a fault.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindTaskExecution Kind = "task_execution"
	KindModel         Kind = "model"
	KindRateLimit     Kind = "rate_limit"
	KindConfidence    Kind = "confidence"
	KindTimeout       Kind = "timeout"
	KindValidation    Kind = "validation"
	KindUnsupported   Kind = "unsupported_role"
	KindMemory        Kind = "memory"
)

// Severity ranks how far a fault is allowed to travel.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severities = map[Kind]Severity{
	KindConfiguration: SeverityCritical,
	KindTaskExecution: SeverityMedium,
	KindModel:         SeverityHigh,
	KindRateLimit:     SeverityMedium,
	KindConfidence:    SeverityMedium,
	KindTimeout:       SeverityMedium,
	KindValidation:    SeverityLow,
	KindUnsupported:   SeverityLow,
	KindMemory:        SeverityHigh,
}

// Severity returns the severity for k. Unknown kinds are medium.
func (k Kind) Severity() Severity {
	if s, ok := severities[k]; ok {
		return s
	}
	return SeverityMedium
}

// #endregion kind

// #region sentinels

// Sentinels for errors.Is matching. Every *Error matches the sentinel of its Kind.
var (
	ErrInvalidConfiguration = &Error{Kind: KindConfiguration}
	ErrTaskExecution        = &Error{Kind: KindTaskExecution}
	ErrModel                = &Error{Kind: KindModel}
	ErrRateLimited          = &Error{Kind: KindRateLimit}
	ErrConfidence           = &Error{Kind: KindConfidence}
	ErrTimeout              = &Error{Kind: KindTimeout}
	ErrValidation           = &Error{Kind: KindValidation}
	ErrUnsupportedRole      = &Error{Kind: KindUnsupported}
	ErrMemory               = &Error{Kind: KindMemory}
)

// #endregion sentinels

// #region error

// Error is a classified fault carrying the failing operation and optional context.
type Error struct {
	Kind    Kind
	Op      string
	Err     error
	Context map[string]any
}

// New builds a classified error. msg becomes the wrapped cause when non-empty.
func New(kind Kind, op, msg string) *Error {
	e := &Error{Kind: kind, Op: op}
	if msg != "" {
		e.Err = errors.New(msg)
	}
	return e
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// Severity returns the severity of the error's kind.
func (e *Error) Severity() Severity { return e.Kind.Severity() }

// With attaches a context key/value and returns e.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// #endregion error

// #region helpers

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsRateLimited reports whether err signals transient unavailability.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsRetryable reports whether err may succeed if attempted again.
func IsRetryable(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	switch k {
	case KindRateLimit, KindTimeout, KindTaskExecution:
		return true
	}
	return false
}

// #endregion helpers
