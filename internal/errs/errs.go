// Package errs defines warden's error taxonomy (spec §7). Every component
// returns a *errs.Error for failures it expects, wrapping the underlying
// cause with %w the way the source engine wraps GitHub/LLM errors.
package errs

import "fmt"

// Kind is a stable, machine-readable error tag.
type Kind string

const (
	KindConfig         Kind = "config"
	KindIO             Kind = "io"
	KindParse          Kind = "parse"
	KindValidation     Kind = "validation"
	KindPolicy         Kind = "policy"
	KindCancelled      Kind = "cancelled"
	KindTimeout        Kind = "timeout"
	KindRollbackFailed Kind = "rollback_failed"
	KindExternal       Kind = "external"
)

// Error is warden's error type: a kind tag, a human message, an optional
// remediation hint, and the wrapped cause.
type Error struct {
	Kind        Kind
	Message     string
	Remediation string
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a kind-tagged error with no remediation hint.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a kind-tagged error around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithRemediation attaches a suggested remediation and returns e for
// chaining at the call site.
func (e *Error) WithRemediation(r string) *Error {
	e.Remediation = r
	return e
}

// Is supports checks by kind: it matches a target *Error that carries only
// a Kind (no Message, no Cause), such as the sentinel built by OfKind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Cause == nil && other.Message == "" && e.Kind == other.Kind
}

// OfKind returns a zero-value sentinel usable with errors.Is(err,
// errs.OfKind(errs.KindPolicy)).
func OfKind(k Kind) *Error { return &Error{Kind: k} }
