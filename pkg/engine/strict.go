package engine

import "context"

// Strict returns a transform that validates every annotated argument before
// invoking t and the result afterwards. Mismatches fail with an argument
// binding error; values are never coerced. Transforms without annotations
// are returned unchanged.
func Strict(t *Transform) *Transform {
	if t.strict || (len(t.paramAnnotations) == 0 && t.resultAnnotation == nil) {
		return t
	}

	inner := t.fn
	wrapped := *t
	wrapped.strict = true
	wrapped.fn = func(ctx context.Context, args Arguments) (interface{}, error) {
		for _, p := range t.parameters {
			a, ok := t.paramAnnotations[p]
			if !ok {
				continue
			}
			if err := a.Check(args[p]); err != nil {
				return nil, NewArgumentBindingError(t.name, p, err)
			}
		}

		result, err := inner(ctx, args)
		if err != nil {
			return nil, err
		}

		if t.resultAnnotation != nil {
			if err := t.resultAnnotation.Check(result); err != nil {
				return nil, NewArgumentBindingError(t.name, "result", err)
			}
		}
		return result, nil
	}
	return &wrapped
}
