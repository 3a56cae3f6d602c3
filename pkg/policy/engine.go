package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/camia/aviation/pkg/units"
)

// Engine checks model inputs against rego policies. It is safe for
// concurrent use.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	for i := range builtinPolicies {
		p := builtinPolicies[i]
		p.LoadedAt = time.Now()
		cp, err := e.compile(context.Background(), &p)
		if err != nil {
			return nil, fmt.Errorf("failed to load built-in policies: %w", err)
		}
		e.policies[p.Name] = cp
	}

	e.logger.Debug().Int("count", len(builtinPolicies)).Msg("Built-in policies loaded")
	return e, nil
}

// LoadPolicies loads .rego and .json policies from files or directories and
// adds them to the engine.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return err
	}
	for i := range policies {
		if err := e.AddPolicy(ctx, policies[i]); err != nil {
			return err
		}
	}
	return nil
}

// AddPolicy compiles a policy and adds it, replacing any policy with the
// same name.
func (e *Engine) AddPolicy(ctx context.Context, p Policy) error {
	cp, err := e.compile(ctx, &p)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.policies[p.Name] = cp
	e.mu.Unlock()

	e.logger.Info().Str("policy", p.Name).Str("source", p.Source).Msg("Policy added")
	return nil
}

// ReplacePolicies swaps every loaded (non built-in) policy for the given
// set. If any policy fails to compile the engine is left unchanged.
func (e *Engine) ReplacePolicies(ctx context.Context, policies []Policy) error {
	compiled := make(map[string]*compiledPolicy, len(policies))
	for i := range policies {
		p := policies[i]
		cp, err := e.compile(ctx, &p)
		if err != nil {
			return err
		}
		compiled[p.Name] = cp
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for name, cp := range e.policies {
		if cp.policy.Source != "" {
			delete(e.policies, name)
		}
	}
	for name, cp := range compiled {
		e.policies[name] = cp
	}

	e.logger.Info().Int("count", len(compiled)).Msg("Policies replaced")
	return nil
}

func (e *Engine) compile(ctx context.Context, p *Policy) (*compiledPolicy, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("policy name is required")
	}
	if p.Severity == "" {
		p.Severity = SeverityWarning
	}
	if !p.Severity.valid() {
		return nil, fmt.Errorf("policy %s: invalid severity %q", p.Name, p.Severity)
	}

	module, err := ast.ParseModule(p.Name+".rego", p.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy %s: %w", p.Name, err)
	}
	if module == nil {
		return nil, fmt.Errorf("policy %s is empty", p.Name)
	}

	query, err := rego.New(
		rego.Query(module.Package.Path.String()+".deny"),
		rego.Module(p.Name+".rego", p.Rego),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
	}

	return &compiledPolicy{
		policy:   p,
		query:    query,
		compiled: time.Now(),
	}, nil
}

// Check evaluates every enabled policy against the inputs of an evaluation
// of output. Violations are ordered by policy, then input, then message.
func (e *Engine) Check(ctx context.Context, output string, inputs map[string]interface{}) (*Result, error) {
	start := time.Now()
	doc := NewInput(output, inputs).document()

	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{EvaluatedPolicies: []string{}}
	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, name)

		violations, err := e.evaluatePolicy(ctx, cp, doc)
		if err != nil {
			return nil, err
		}
		for _, v := range violations {
			if v.Severity.Blocking() {
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}

	result.Allowed = len(result.Violations) == 0
	result.Duration = time.Since(start)

	e.logger.Debug().
		Str("output", output).
		Bool("allowed", result.Allowed).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("Inputs checked")

	return result, nil
}

// evaluatePolicy evaluates a single policy against the input document.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, doc map[string]interface{}) ([]Violation, error) {
	rs, err := cp.query.Eval(ctx, rego.EvalInput(doc))
	if err != nil {
		return nil, fmt.Errorf("policy %s evaluation failed: %w", cp.policy.Name, err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}

	denials, ok := rs[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("policy %s: deny must be a set, got %T", cp.policy.Name, rs[0].Expressions[0].Value)
	}

	violations := make([]Violation, 0, len(denials))
	for _, d := range denials {
		violations = append(violations, createViolation(cp.policy, d))
	}
	sort.Slice(violations, func(i, j int) bool {
		if violations[i].Input != violations[j].Input {
			return violations[i].Input < violations[j].Input
		}
		return violations[i].Message < violations[j].Message
	})
	return violations, nil
}

// createViolation creates a Violation from a member of a deny set.
func createViolation(p *Policy, denial interface{}) Violation {
	v := Violation{
		Policy:   p.Name,
		Severity: p.Severity,
	}

	switch d := denial.(type) {
	case string:
		v.Message = d
	case map[string]interface{}:
		if msg, ok := d["message"].(string); ok {
			v.Message = msg
		}
		if input, ok := d["input"].(string); ok {
			v.Input = input
		}
		if sev, ok := d["severity"].(string); ok && Severity(sev).valid() {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", d)
	}
	if v.Message == "" {
		v.Message = "policy violation"
	}
	return v
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, ok := e.policies[name]
	if !ok {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	p := *cp.policy
	return &p, nil
}

// ListPolicies returns all policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}
	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, ok := e.policies[name]
	if !ok {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewInput builds the rego input document for an evaluation of output.
func NewInput(output string, inputs map[string]interface{}) Input {
	encoded := make(map[string]interface{}, len(inputs))
	for name, v := range inputs {
		encoded[name] = encodeValue(v)
	}
	return Input{Output: output, Inputs: encoded}
}

func (in Input) document() map[string]interface{} {
	return map[string]interface{}{
		"output": in.Output,
		"inputs": in.Inputs,
	}
}

func encodeValue(v interface{}) interface{} {
	if q, ok := units.AsQuantity(v); ok {
		return map[string]interface{}{
			"value": q.Value,
			"unit":  q.Unit.String(),
		}
	}
	if f, ok := units.AsFloat(v); ok {
		return f
	}
	return v
}
