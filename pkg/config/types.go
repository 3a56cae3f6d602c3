package config

import (
	"fmt"
	"strings"

	"github.com/camia/aviation/pkg/sweep"
	"github.com/camia/aviation/pkg/units"
)

// Scenario is a named set of inputs together with the output to evaluate.
type Scenario struct {
	// Name identifies the scenario (e.g., "baseline", "high_load_factor").
	Name string `json:"name" mapstructure:"name" validate:"required,max=128"`

	// Description is a free-form summary.
	Description string `json:"description,omitempty" mapstructure:"description"`

	// Output is the name of the quantity to evaluate.
	Output string `json:"output" mapstructure:"output" validate:"required"`

	// Inputs maps input names to plain numbers or {value, unit} objects.
	Inputs map[string]interface{} `json:"inputs" mapstructure:"inputs"`

	// Sweep lists optional axes to vary over the base inputs.
	Sweep []SweepAxis `json:"sweep,omitempty" mapstructure:"sweep" validate:"dive"`

	// Policies names rego policy files to check the inputs against.
	Policies []string `json:"policies,omitempty" mapstructure:"policies" validate:"dive,required"`
}

// SweepAxis is one swept input of a scenario.
type SweepAxis struct {
	// Name is the input being varied.
	Name string `json:"name" mapstructure:"name" validate:"required"`

	// Start is the first value (inclusive).
	Start float64 `json:"start" mapstructure:"start"`

	// Stop is the end of the range (exclusive).
	Stop float64 `json:"stop" mapstructure:"stop"`

	// Step is the increment between values.
	Step float64 `json:"step" mapstructure:"step" validate:"ne=0"`

	// Unit is the unit attached to every value, e.g. "passenger/year".
	Unit string `json:"unit,omitempty" mapstructure:"unit"`
}

// ModelInputs returns the scenario inputs as engine values.
func (s *Scenario) ModelInputs() (map[string]interface{}, error) {
	return NormalizeInputs(s.Inputs)
}

// Ranges converts the sweep section into ranges without sampling them.
func (s *Scenario) Ranges() ([]sweep.Range, error) {
	ranges := make([]sweep.Range, len(s.Sweep))
	for i, a := range s.Sweep {
		u, err := units.Parse(a.Unit)
		if err != nil {
			return nil, fmt.Errorf("sweep axis %s: %w", a.Name, err)
		}
		ranges[i] = sweep.Range{Start: a.Start, Stop: a.Stop, Step: a.Step, Unit: u}
	}
	return ranges, nil
}

// GridSize returns the number of points the sweep section spans. It fails
// with sweep.ErrTooManyPoints when that exceeds limit; a limit of zero or
// less only guards against overflow.
func (s *Scenario) GridSize(limit int) (int, error) {
	ranges, err := s.Ranges()
	if err != nil {
		return 0, err
	}
	lens := make([]int, len(ranges))
	for i, r := range ranges {
		if lens[i], err = r.Len(); err != nil {
			return 0, fmt.Errorf("sweep axis %s: %w", s.Sweep[i].Name, err)
		}
	}
	return sweep.GridSize(limit, lens...)
}

// Axes converts the sweep section into sweep axes, refusing grids larger
// than limit before any values are sampled.
func (s *Scenario) Axes(limit int) ([]sweep.Axis, error) {
	if _, err := s.GridSize(limit); err != nil {
		return nil, err
	}
	ranges, err := s.Ranges()
	if err != nil {
		return nil, err
	}
	axes := make([]sweep.Axis, len(ranges))
	for i, r := range ranges {
		if axes[i], err = sweep.RangeAxis(s.Sweep[i].Name, r); err != nil {
			return nil, fmt.Errorf("sweep axis %s: %w", s.Sweep[i].Name, err)
		}
	}
	return axes, nil
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g., "inputs.seats_per_aircraft").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors is returned when a scenario document fails its schema.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.String()
	}
	return "scenario validation failed:\n  " + strings.Join(lines, "\n  ")
}
