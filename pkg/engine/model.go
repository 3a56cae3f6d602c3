package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// SystemsModel evaluates named outputs from a fixed set of transforms.
// It is immutable after construction and safe for concurrent use, provided
// each concurrent evaluation uses its own inputs map.
type SystemsModel struct {
	transforms map[string]*Transform
	names      []string
	logger     zerolog.Logger
	observer   Observer
}

// Option configures a SystemsModel.
type Option func(*modelOptions)

type modelOptions struct {
	strict   bool
	logger   zerolog.Logger
	observer Observer
}

// WithStrictAnnotations wraps every annotated transform with Strict.
func WithStrictAnnotations() Option {
	return func(o *modelOptions) {
		o.strict = true
	}
}

// WithLogger sets the logger used for debug-level resolution logs.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *modelOptions) {
		o.logger = logger
	}
}

// WithObserver registers an observer for evaluation events.
func WithObserver(observer Observer) Option {
	return func(o *modelOptions) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// New builds a model from transforms. Listing the same *Transform more than
// once is allowed and deduplicated; two distinct transforms sharing a name
// fail with a duplicate transform error.
func New(transforms []*Transform, opts ...Option) (*SystemsModel, error) {
	o := modelOptions{
		logger:   zerolog.Nop(),
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	byName := make(map[string]*Transform, len(transforms))
	for i, t := range transforms {
		if t == nil {
			return nil, NewInvalidTransformError("", "nil transform").WithDetail("index", i)
		}
		if existing, ok := byName[t.name]; ok {
			if existing == t {
				continue
			}
			return nil, NewDuplicateTransformError(t.name)
		}
		byName[t.name] = t
	}

	names := make([]string, 0, len(byName))
	for name, t := range byName {
		if o.strict {
			byName[name] = Strict(t)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return &SystemsModel{
		transforms: byName,
		names:      names,
		logger:     o.logger.With().Str("component", "engine").Logger(),
		observer:   o.observer,
	}, nil
}

// Transforms returns the registered transforms sorted by name.
func (m *SystemsModel) Transforms() []*Transform {
	out := make([]*Transform, len(m.names))
	for i, name := range m.names {
		out[i] = m.transforms[name]
	}
	return out
}

// Transform returns the transform producing name.
func (m *SystemsModel) Transform(name string) (*Transform, bool) {
	t, ok := m.transforms[name]
	return t, ok
}

// Len returns the number of registered transforms.
func (m *SystemsModel) Len() int {
	return len(m.transforms)
}

// Evaluation is the outcome of one top-level evaluation.
type Evaluation struct {
	// Output is the requested name.
	Output string

	// Value is the value bound to Output.
	Value interface{}

	// Inputs is the caller's inputs map, populated with every parameter
	// derived during the evaluation. Output itself is only present if it was
	// supplied by the caller.
	Inputs map[string]interface{}

	// Derived lists the names written into Inputs, in write order.
	Derived []string

	// Invocations counts transform invocations, including the top-level one.
	Invocations int

	// Duration is the wall time of the evaluation.
	Duration time.Duration
}

// Evaluate returns the value of output, computing any missing dependencies
// from the registered transforms. Derived parameters are written into
// inputs; the top-level result is not.
func (m *SystemsModel) Evaluate(inputs map[string]interface{}, output string) (interface{}, error) {
	ev, err := m.EvaluateContext(context.Background(), inputs, output)
	if err != nil {
		return nil, err
	}
	return ev.Value, nil
}

// EvaluateContext is like Evaluate but passes ctx to transforms and observers
// and reports the full Evaluation. A nil inputs map is replaced by an empty one,
// which is returned in Evaluation.Inputs.
func (m *SystemsModel) EvaluateContext(ctx context.Context, inputs map[string]interface{}, output string) (*Evaluation, error) {
	if inputs == nil {
		inputs = make(map[string]interface{})
	}

	start := time.Now()
	ctx, finish := m.observer.StartEvaluation(ctx, output)

	r := &resolution{
		inputs:  inputs,
		onStack: make(map[string]int),
	}
	value, err := m.resolve(ctx, r, output)
	finish(err)
	if err != nil {
		m.logger.Debug().Err(err).Str("output", output).Msg("Evaluation failed")
		return nil, err
	}

	ev := &Evaluation{
		Output:      output,
		Value:       value,
		Inputs:      inputs,
		Derived:     r.derived,
		Invocations: r.invocations,
		Duration:    time.Since(start),
	}

	m.logger.Debug().
		Str("output", output).
		Strs("derived", ev.Derived).
		Int("invocations", ev.Invocations).
		Dur("duration", ev.Duration).
		Msg("Evaluation completed")

	return ev, nil
}

// resolution is the per-call state threaded through the recursion.
type resolution struct {
	inputs      map[string]interface{}
	stack       []string
	onStack     map[string]int
	derived     []string
	invocations int
}

func (r *resolution) push(name string) {
	r.onStack[name] = len(r.stack)
	r.stack = append(r.stack, name)
}

func (r *resolution) pop() {
	name := r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	delete(r.onStack, name)
}

// cycle returns the cycle closed by re-entering name, e.g. [x y x].
func (r *resolution) cycle(name string) []string {
	start := r.onStack[name]
	cycle := append([]string(nil), r.stack[start:]...)
	return append(cycle, name)
}

// resolve implements the depth-first, memoized lookup:
// inputs first, then the transform of the same name with its parameters
// resolved in declared order.
func (m *SystemsModel) resolve(ctx context.Context, r *resolution, output string) (interface{}, error) {
	// Inputs shadow transforms.
	if v, ok := r.inputs[output]; ok {
		m.observer.InputHit(ctx, output)
		return v, nil
	}

	t, ok := m.transforms[output]
	if !ok {
		return nil, NewUnknownTargetError(output, r.stack)
	}

	if _, resolving := r.onStack[output]; resolving {
		return nil, NewCircularDependencyError(r.cycle(output))
	}

	r.push(output)
	defer r.pop()

	for _, p := range t.parameters {
		if _, ok := r.inputs[p]; ok {
			m.observer.InputHit(ctx, p)
			continue
		}
		v, err := m.resolve(ctx, r, p)
		if err != nil {
			return nil, err
		}
		r.inputs[p] = v
		r.derived = append(r.derived, p)
	}

	args := make(map[string]interface{}, len(t.parameters))
	for _, p := range t.parameters {
		args[p] = r.inputs[p]
	}

	tctx, done := m.observer.StartTransform(ctx, t.name)
	r.invocations++
	value, err := t.Invoke(tctx, args)
	if err != nil {
		var engineErr *EngineError
		if !errors.As(err, &engineErr) {
			err = NewTransformFailedError(t.name, err).WithPath(r.stack[:len(r.stack)-1])
		}
		done(err)
		return nil, err
	}
	done(nil)

	m.logger.Debug().
		Str("transform", t.name).
		Int("depth", len(r.stack)).
		Msg("Transform evaluated")

	return value, nil
}
