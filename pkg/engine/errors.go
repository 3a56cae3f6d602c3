package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies an engine failure.
type ErrorKind string

const (
	// KindUnknownTarget indicates a requested or transitively required name
	// matches neither a known input nor a registered transform.
	KindUnknownTarget ErrorKind = "unknown_target"

	// KindCircularDependency indicates a name transitively requires itself.
	KindCircularDependency ErrorKind = "circular_dependency"

	// KindDuplicateTransform indicates two distinct transforms share a name.
	// Raised only while constructing a model.
	KindDuplicateTransform ErrorKind = "duplicate_transform"

	// KindInvalidTransform indicates a transform definition that violates its
	// construction invariants (empty name, self parameter, duplicate parameter).
	KindInvalidTransform ErrorKind = "invalid_transform"

	// KindArgumentBinding indicates arguments that cannot be bound to a
	// transform: a missing parameter, or a value rejected by an annotation
	// in strict mode.
	KindArgumentBinding ErrorKind = "argument_binding"

	// KindTransformFailed indicates the behaviour of a transform returned an error.
	KindTransformFailed ErrorKind = "transform_failed"
)

// Common error codes.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeCycle      = "CYCLE"
	ErrCodeMismatch   = "ARGUMENT_MISMATCH"
	ErrCodeInternal   = "INTERNAL_ERROR"
)

// Sentinel errors for use with errors.Is. They match any EngineError of the
// same kind.
var (
	ErrUnknownTarget      = &EngineError{Kind: KindUnknownTarget}
	ErrCircularDependency = &EngineError{Kind: KindCircularDependency}
	ErrDuplicateTransform = &EngineError{Kind: KindDuplicateTransform}
	ErrInvalidTransform   = &EngineError{Kind: KindInvalidTransform}
	ErrArgumentBinding    = &EngineError{Kind: KindArgumentBinding}
	ErrTransformFailed    = &EngineError{Kind: KindTransformFailed}

	errMissingArgument = errors.New("argument not supplied")
)

// EngineError is a classified engine failure naming the target it concerns.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Target is the name (transform, input or parameter) the error is about.
	Target string `json:"target,omitempty"`

	// Path is the resolution chain that led to Target, outermost first.
	// For circular dependencies it is the cycle itself, closed on its first member.
	Path []string `json:"path,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if len(e.Path) > 0 && e.Kind != KindCircularDependency {
		msg += fmt.Sprintf(" (required by %s)", formatPath(e.Path))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is. Two engine errors
// match when they share a kind and, if the target sets one, a code.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return e.Kind == t.Kind
}

// WithTarget sets the name the error is about.
func (e *EngineError) WithTarget(target string) *EngineError {
	e.Target = target
	return e
}

// WithPath records the resolution chain. The slice is copied.
func (e *EngineError) WithPath(path []string) *EngineError {
	if len(path) > 0 {
		e.Path = append([]string(nil), path...)
	}
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewUnknownTargetError reports that target is neither an input nor a transform.
// path is the chain of transforms that required it, outermost first.
func NewUnknownTargetError(target string, path []string) *EngineError {
	return (&EngineError{
		Kind:    KindUnknownTarget,
		Message: fmt.Sprintf("unknown target %q", target),
	}).WithTarget(target).WithPath(path).WithCode(ErrCodeNotFound)
}

// NewCircularDependencyError reports a dependency cycle such as [x y x].
func NewCircularDependencyError(cycle []string) *EngineError {
	target := ""
	if len(cycle) > 0 {
		target = cycle[0]
	}
	return (&EngineError{
		Kind:    KindCircularDependency,
		Message: fmt.Sprintf("circular dependency detected: %s", formatPath(cycle)),
	}).WithTarget(target).WithPath(cycle).WithCode(ErrCodeCycle)
}

// NewDuplicateTransformError reports two distinct transforms named name.
func NewDuplicateTransformError(name string) *EngineError {
	return (&EngineError{
		Kind:    KindDuplicateTransform,
		Message: fmt.Sprintf("duplicate transform name %q", name),
	}).WithTarget(name).WithCode(ErrCodeConflict)
}

// NewInvalidTransformError reports a transform definition violating its invariants.
func NewInvalidTransformError(name, reason string) *EngineError {
	return (&EngineError{
		Kind:    KindInvalidTransform,
		Message: fmt.Sprintf("invalid transform %q: %s", name, reason),
	}).WithTarget(name).WithCode(ErrCodeValidation)
}

// NewArgumentBindingError reports that parameter of transform could not be bound.
func NewArgumentBindingError(transform, parameter string, err error) *EngineError {
	return (&EngineError{
		Kind:    KindArgumentBinding,
		Message: fmt.Sprintf("cannot bind %q of transform %q", parameter, transform),
		Err:     err,
	}).WithTarget(transform).WithDetail("parameter", parameter).WithCode(ErrCodeMismatch)
}

// NewTransformFailedError wraps an error returned by the behaviour of a transform.
func NewTransformFailedError(transform string, err error) *EngineError {
	return (&EngineError{
		Kind:    KindTransformFailed,
		Message: fmt.Sprintf("transform %q failed", transform),
		Err:     err,
	}).WithTarget(transform).WithCode(ErrCodeInternal)
}

// IsUnknownTarget returns true if the error is an unknown target error.
func IsUnknownTarget(err error) bool {
	return hasKind(err, KindUnknownTarget)
}

// IsCircularDependency returns true if the error is a circular dependency error.
func IsCircularDependency(err error) bool {
	return hasKind(err, KindCircularDependency)
}

// IsDuplicateTransform returns true if the error is a duplicate transform error.
func IsDuplicateTransform(err error) bool {
	return hasKind(err, KindDuplicateTransform)
}

// IsArgumentBinding returns true if the error is an argument binding error.
func IsArgumentBinding(err error) bool {
	return hasKind(err, KindArgumentBinding)
}

// KindOf returns the kind of the outermost EngineError in err's chain, or
// the empty kind when err carries none.
func KindOf(err error) ErrorKind {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func hasKind(err error, kind ErrorKind) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// formatPath formats a resolution chain or cycle for error messages.
func formatPath(path []string) string {
	if len(path) == 0 {
		return ""
	}
	return strings.Join(path, " -> ")
}
