package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/camia/aviation/pkg/units"
)

// ScenarioLoader parses scenario documents in YAML, JSON or CUE and checks
// them against the built-in #Scenario schema. It is safe for concurrent use.
type ScenarioLoader struct {
	mu        sync.Mutex
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// NewScenarioLoader creates a new scenario loader.
func NewScenarioLoader() *ScenarioLoader {
	return &ScenarioLoader{
		schemas:   NewSchemaRegistry(),
		validator: validator.New(),
	}
}

var defaultLoader = NewScenarioLoader()

// LoadScenario reads and validates the scenario file at path.
func LoadScenario(path string) (*Scenario, error) {
	return defaultLoader.LoadFile(path)
}

// LoadFile reads the scenario at path. The format follows the extension:
// ".cue" for CUE, anything else is read as YAML (which includes JSON).
func (l *ScenarioLoader) LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return l.Parse(data, path)
}

// Parse parses a scenario document. filename selects the format and is
// used in error positions.
func (l *ScenarioLoader) Parse(data []byte, filename string) (*Scenario, error) {
	raw, err := l.unify(data, filename)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &scenario,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	if scenario.Inputs == nil {
		scenario.Inputs = map[string]interface{}{}
	}

	if err := l.validator.Struct(&scenario); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	// Unit expressions are only checked for shape by the schema.
	if _, err := scenario.ModelInputs(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	if _, err := scenario.GridSize(0); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	return &scenario, nil
}

// unify compiles the document, checks it against #Scenario and returns the
// concrete result as plain Go values. cue.Context is not safe for
// concurrent use.
func (l *ScenarioLoader) unify(data []byte, filename string) (map[string]interface{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var val cue.Value
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".cue":
		val = l.schemas.Context().CompileBytes(data, cue.Filename(filename))
	case ".yaml", ".yml", ".json", "":
		var doc map[string]interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
		}
		if doc == nil {
			return nil, fmt.Errorf("scenario %s is empty", filename)
		}
		val = l.schemas.Context().Encode(doc)
	default:
		return nil, fmt.Errorf("unsupported scenario format %q", ext)
	}

	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(filename, err)
	}

	unified, err := l.schemas.Unify("scenario", val)
	if err != nil {
		return nil, convertCUEErrors(filename, err)
	}

	var raw map[string]interface{}
	if err := unified.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	return raw, nil
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(filename string, err error) ValidationErrors {
	var validationErrors ValidationErrors

	for _, e := range errors.Errors(err) {
		ve := ValidationError{
			File:    filename,
			Path:    strings.Join(e.Path(), "."),
			Message: errors.Details(e, nil),
		}
		if pos := errors.Positions(e); len(pos) > 0 && pos[0].Filename() == filename {
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		validationErrors = append(validationErrors, ve)
	}

	if len(validationErrors) == 0 {
		validationErrors = append(validationErrors, ValidationError{File: filename, Message: err.Error()})
	}
	return validationErrors
}

// NormalizeInputs converts decoded input values into engine values. Numbers
// become float64; {value, unit} objects and Quantities become
// units.Quantity. Any other value is an error naming the input.
func NormalizeInputs(raw map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(raw))

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v, err := normalizeValue(raw[name])
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func normalizeValue(v interface{}) (interface{}, error) {
	if f, ok := units.AsFloat(v); ok {
		return f, nil
	}
	if q, ok := units.AsQuantity(v); ok {
		return q, nil
	}

	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a number or {value, unit}, got %T", v)
	}

	value, ok := units.AsFloat(obj["value"])
	if !ok {
		return nil, fmt.Errorf("value must be a number, got %T", obj["value"])
	}
	unit, _ := obj["unit"].(string)
	u, err := units.Parse(unit)
	if err != nil {
		return nil, err
	}
	return units.Q(value, u), nil
}

// ParseAssignment parses a command-line input of the form
// "name=value" or "name=value:unit".
func ParseAssignment(s string) (string, interface{}, error) {
	name, rest, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", nil, fmt.Errorf("invalid input %q: expected name=value[:unit]", s)
	}

	number, unit, hasUnit := strings.Cut(rest, ":")
	value, err := strconv.ParseFloat(strings.TrimSpace(number), 64)
	if err != nil {
		return "", nil, fmt.Errorf("invalid input %q: %w", s, err)
	}
	if !hasUnit {
		return name, value, nil
	}

	u, err := units.Parse(unit)
	if err != nil {
		return "", nil, fmt.Errorf("invalid input %q: %w", s, err)
	}
	return name, units.Q(value, u), nil
}
