package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/camia/aviation/pkg/engine"
	"github.com/camia/aviation/pkg/units"
)

// DefaultStarlarkMaxSteps bounds the execution of a module body and of each
// transform call.
const DefaultStarlarkMaxSteps uint64 = 1_000_000

// StarlarkLoader turns Starlark modules into transforms. Every top-level
// function whose name does not start with "_" becomes a transform named
// after the function, with the function's parameters as its parameters.
//
// An optional "_annotations" dict attaches units:
//
//	_annotations = {
//	    "passengers_per_week": {
//	        "params": {"passengers_per_day": "passenger/day"},
//	        "result": "passenger/week",
//	    },
//	}
//
// The docstring of a function becomes the transform description.
type StarlarkLoader struct {
	maxSteps uint64
	logger   zerolog.Logger
}

// NewStarlarkLoader creates a loader. A zero maxSteps selects
// DefaultStarlarkMaxSteps.
func NewStarlarkLoader(maxSteps uint64, logger zerolog.Logger) *StarlarkLoader {
	if maxSteps == 0 {
		maxSteps = DefaultStarlarkMaxSteps
	}
	return &StarlarkLoader{
		maxSteps: maxSteps,
		logger:   logger.With().Str("component", "starlark").Logger(),
	}
}

// LoadStarlarkTransforms loads the transforms defined in the Starlark file
// at path with default limits.
func LoadStarlarkTransforms(ctx context.Context, path string) ([]*engine.Transform, error) {
	return NewStarlarkLoader(0, zerolog.Nop()).LoadFile(ctx, path)
}

// LoadFile loads the transforms defined in the Starlark file at path.
func (l *StarlarkLoader) LoadFile(ctx context.Context, path string) ([]*engine.Transform, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read starlark module: %w", err)
	}
	return l.Load(ctx, path, src)
}

// Load executes the module body of src and returns its transforms sorted by
// name.
func (l *StarlarkLoader) Load(ctx context.Context, filename string, src []byte) ([]*engine.Transform, error) {
	thread := l.newThread(filename)
	stop := context.AfterFunc(ctx, func() { thread.Cancel(context.Cause(ctx).Error()) })
	defer stop()

	predeclared := starlark.StringDict{
		"struct":   starlark.NewBuiltin("struct", starlarkstruct.Make),
		"quantity": starlark.NewBuiltin("quantity", builtinQuantity),
	}

	globals, err := starlark.ExecFile(thread, filename, src, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	annotations, err := parseAnnotations(globals)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	var names []string
	for name, val := range globals {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if _, ok := val.(*starlark.Function); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for name := range annotations {
		if _, ok := globals[name].(*starlark.Function); !ok || strings.HasPrefix(name, "_") {
			return nil, fmt.Errorf("%s: annotations for unknown function %q", filename, name)
		}
	}

	transforms := make([]*engine.Transform, 0, len(names))
	for _, name := range names {
		t, err := l.transform(name, globals[name].(*starlark.Function), annotations[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		transforms = append(transforms, t)
	}

	l.logger.Debug().
		Str("module", filename).
		Int("transforms", len(transforms)).
		Uint64("steps", thread.ExecutionSteps()).
		Msg("Starlark module loaded")

	return transforms, nil
}

// functionAnnotations are the unit expressions declared for one function.
type functionAnnotations struct {
	params map[string]string
	result string
}

func parseAnnotations(globals starlark.StringDict) (map[string]functionAnnotations, error) {
	raw, ok := globals["_annotations"]
	if !ok {
		return nil, nil
	}
	decoded, err := fromStarlarkValue(raw)
	if err != nil {
		return nil, fmt.Errorf("_annotations: %w", err)
	}
	byFunction, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("_annotations must be a dict, got %s", raw.Type())
	}

	out := make(map[string]functionAnnotations, len(byFunction))
	for fn, v := range byFunction {
		entry, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("_annotations[%q] must be a dict", fn)
		}

		var fa functionAnnotations
		for key, val := range entry {
			switch key {
			case "result":
				s, ok := val.(string)
				if !ok {
					return nil, fmt.Errorf("_annotations[%q].result must be a string", fn)
				}
				fa.result = s
			case "params":
				params, ok := val.(map[string]interface{})
				if !ok {
					return nil, fmt.Errorf("_annotations[%q].params must be a dict", fn)
				}
				fa.params = make(map[string]string, len(params))
				for p, u := range params {
					s, ok := u.(string)
					if !ok {
						return nil, fmt.Errorf("_annotations[%q].params[%q] must be a string", fn, p)
					}
					fa.params[p] = s
				}
			default:
				return nil, fmt.Errorf("_annotations[%q]: unknown key %q", fn, key)
			}
		}
		out[fn] = fa
	}
	return out, nil
}

// transform wraps a frozen Starlark function under the global name it is
// bound to, which differs from fn.Name() for aliases. Each invocation runs on
// its own thread, so the transform is safe for concurrent use.
func (l *StarlarkLoader) transform(name string, fn *starlark.Function, ann functionAnnotations) (*engine.Transform, error) {
	if fn.HasVarargs() || fn.HasKwargs() || fn.NumKwonlyParams() > 0 {
		return nil, fmt.Errorf("function %s: *args, **kwargs and keyword-only parameters are not supported", name)
	}

	params := make([]string, fn.NumParams())
	for i := range params {
		params[i], _ = fn.Param(i)
	}

	opts := []engine.TransformOption{}
	if doc := strings.TrimSpace(fn.Doc()); doc != "" {
		opts = append(opts, engine.WithDescription(doc))
	}
	for p, expr := range ann.params {
		u, err := units.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("function %s: parameter %s: %w", name, p, err)
		}
		opts = append(opts, engine.WithParameterAnnotation(p, u))
	}
	if ann.result != "" {
		u, err := units.Parse(ann.result)
		if err != nil {
			return nil, fmt.Errorf("function %s: result: %w", name, err)
		}
		opts = append(opts, engine.WithResultAnnotation(u))
	}

	call := func(ctx context.Context, args engine.Arguments) (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tuple := make(starlark.Tuple, len(params))
		for i, p := range params {
			v, err := toStarlarkValue(args[p])
			if err != nil {
				return nil, engine.NewArgumentBindingError(name, p, err)
			}
			tuple[i] = v
		}

		thread := l.newThread(name)
		stop := context.AfterFunc(ctx, func() { thread.Cancel(context.Cause(ctx).Error()) })
		defer stop()

		result, err := starlark.Call(thread, fn, tuple, nil)
		if err != nil {
			return nil, err
		}
		return fromStarlarkValue(result)
	}

	return engine.NewTransform(name, params, call, opts...)
}

func (l *StarlarkLoader) newThread(name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			l.logger.Debug().Str("thread", name).Msg(msg)
		},
	}
	thread.SetMaxExecutionSteps(l.maxSteps)
	return thread
}

// toStarlarkValue converts a Go value to a Starlark value. Numbers become
// floats so that transform arithmetic never truncates.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}
	if q, ok := units.AsQuantity(v); ok {
		return Quantity{q: q}, nil
	}
	if f, ok := units.AsFloat(v); ok {
		return starlark.Float(f), nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			starlarkVal, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value. Integers
// become float64.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		f, ok := starlark.AsFloat(val)
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return f, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case Quantity:
		return val.q, nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
