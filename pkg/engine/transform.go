package engine

import (
	"context"
	"fmt"
	"strings"
)

// Annotation describes the expected unit or type of a transform parameter
// or result. units.Unit implements it.
type Annotation interface {
	// Check returns an error if value does not conform to the annotation.
	Check(value interface{}) error

	// String returns a human-readable form, e.g. "passenger/day".
	String() string
}

// Arguments are the named argument values bound to a transform invocation.
type Arguments map[string]interface{}

// Float returns the argument name as a float64. Integer kinds are promoted.
func (a Arguments) Float(name string) (float64, error) {
	v, ok := a[name]
	if !ok {
		return 0, fmt.Errorf("argument %q not supplied", name)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("argument %q: expected a number, got %T", name, v)
	}
}

// Func is the behaviour of a transform. It receives exactly one value per
// declared parameter and returns the single result.
type Func func(ctx context.Context, args Arguments) (interface{}, error)

// Transform is an immutable, named computation with an ordered list of
// parameter names.
type Transform struct {
	name        string
	parameters  []string
	fn          Func
	description string

	paramAnnotations map[string]Annotation
	resultAnnotation Annotation
	strict           bool
}

// TransformOption configures optional metadata on a transform.
type TransformOption func(*Transform)

// WithDescription attaches documentation to the transform.
func WithDescription(description string) TransformOption {
	return func(t *Transform) {
		t.description = description
	}
}

// WithParameterAnnotation declares the expected unit or type of parameter.
func WithParameterAnnotation(parameter string, a Annotation) TransformOption {
	return func(t *Transform) {
		if t.paramAnnotations == nil {
			t.paramAnnotations = make(map[string]Annotation)
		}
		t.paramAnnotations[parameter] = a
	}
}

// WithResultAnnotation declares the expected unit or type of the result.
func WithResultAnnotation(a Annotation) TransformOption {
	return func(t *Transform) {
		t.resultAnnotation = a
	}
}

// NewTransform creates a transform named name whose behaviour fn is invoked
// with one argument per entry in parameters.
func NewTransform(name string, parameters []string, fn Func, opts ...TransformOption) (*Transform, error) {
	if name == "" {
		return nil, NewInvalidTransformError(name, "name is empty")
	}
	if fn == nil {
		return nil, NewInvalidTransformError(name, "behaviour is nil")
	}

	seen := make(map[string]bool, len(parameters))
	for _, p := range parameters {
		switch {
		case p == "":
			return nil, NewInvalidTransformError(name, "parameter name is empty")
		case p == name:
			return nil, NewInvalidTransformError(name, "transform lists itself as a parameter")
		case seen[p]:
			return nil, NewInvalidTransformError(name, fmt.Sprintf("duplicate parameter %q", p))
		}
		seen[p] = true
	}

	t := &Transform{
		name:       name,
		parameters: append([]string(nil), parameters...),
		fn:         fn,
	}
	for _, opt := range opts {
		opt(t)
	}

	for p := range t.paramAnnotations {
		if !seen[p] {
			return nil, NewInvalidTransformError(name, fmt.Sprintf("annotation for undeclared parameter %q", p))
		}
	}

	return t, nil
}

// MustTransform is like NewTransform but panics on error. Intended for
// package-level catalogue declarations.
func MustTransform(name string, parameters []string, fn Func, opts ...TransformOption) *Transform {
	t, err := NewTransform(name, parameters, fn, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the name the transform's result is known by.
func (t *Transform) Name() string {
	return t.name
}

// Parameters returns a copy of the ordered parameter names.
func (t *Transform) Parameters() []string {
	return append([]string(nil), t.parameters...)
}

// Description returns the documentation attached to the transform.
func (t *Transform) Description() string {
	return t.description
}

// ParameterAnnotation returns the annotation declared for parameter, if any.
func (t *Transform) ParameterAnnotation(parameter string) (Annotation, bool) {
	a, ok := t.paramAnnotations[parameter]
	return a, ok
}

// ResultAnnotation returns the annotation declared for the result, or nil.
func (t *Transform) ResultAnnotation() Annotation {
	return t.resultAnnotation
}

// IsStrict reports whether invocations validate annotations.
func (t *Transform) IsStrict() bool {
	return t.strict
}

// Signature renders the transform as
// "passengers_per_day(passengers_per_year [passenger/year], ...) -> passenger/day".
func (t *Transform) Signature() string {
	params := make([]string, len(t.parameters))
	for i, p := range t.parameters {
		if a, ok := t.paramAnnotations[p]; ok {
			params[i] = fmt.Sprintf("%s [%s]", p, a)
		} else {
			params[i] = p
		}
	}
	sig := fmt.Sprintf("%s(%s)", t.name, strings.Join(params, ", "))
	if t.resultAnnotation != nil {
		sig += " -> " + t.resultAnnotation.String()
	}
	return sig
}

// Invoke binds args to the declared parameters and runs the behaviour.
// Every declared parameter must be present in args; extra entries are ignored.
func (t *Transform) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bound := make(Arguments, len(t.parameters))
	for _, p := range t.parameters {
		v, ok := args[p]
		if !ok {
			return nil, NewArgumentBindingError(t.name, p, errMissingArgument)
		}
		bound[p] = v
	}
	return t.fn(ctx, bound)
}
