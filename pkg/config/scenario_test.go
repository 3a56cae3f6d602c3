package config

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/camia/aviation/pkg/aviation"
	"github.com/camia/aviation/pkg/sweep"
	"github.com/camia/aviation/pkg/units"
)

const baselineYAML = `
name: baseline
description: Analysis constants
output: required_global_fleet
inputs:
  passengers_per_year: {value: 5e9, unit: passenger/year}
  days_per_year: {value: 365, unit: day/year}
  seats_per_aircraft: {value: 150, unit: passenger/aircraft}
  flights_per_aircraft_per_day: {value: 2, unit: journey/(aircraft*day)}
sweep:
  - name: seats_per_aircraft
    start: 100
    stop: 300
    step: 50
    unit: passenger/aircraft
`

const plainCUE = `
name:   "plain"
output: "passengers_per_day"
inputs: {
	passengers_per_year: 5e9
	days_per_year:       365
}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadScenario_YAML(t *testing.T) {
	scenario, err := LoadScenario(writeFile(t, "baseline.yaml", baselineYAML))
	if err != nil {
		t.Fatalf("LoadScenario() error = %v", err)
	}

	if scenario.Name != "baseline" || scenario.Output != aviation.NameRequiredGlobalFleet {
		t.Errorf("scenario = %s/%s", scenario.Name, scenario.Output)
	}
	if scenario.Description != "Analysis constants" {
		t.Errorf("Description = %q", scenario.Description)
	}

	inputs, err := scenario.ModelInputs()
	if err != nil {
		t.Fatalf("ModelInputs() error = %v", err)
	}
	want := units.Q(5e9, units.MustParse("passenger/year"))
	got, ok := inputs[aviation.NamePassengersPerYear].(units.Quantity)
	if !ok || !got.ApproxEqual(want, 0) {
		t.Errorf("passengers_per_year = %v, want %v", inputs[aviation.NamePassengersPerYear], want)
	}

	axes, err := scenario.Axes(0)
	if err != nil {
		t.Fatalf("Axes() error = %v", err)
	}
	if len(axes) != 1 || len(axes[0].Values) != 4 {
		t.Fatalf("axes = %+v, want one axis of 4 values", axes)
	}

	model, err := aviation.NewModel(nil)
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}
	value, err := model.Evaluate(inputs, scenario.Output)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	fleet := value.(units.Quantity)
	if math.Abs(fleet.Value-45662.1) > 1.0 || !fleet.Unit.Equal(units.Aircraft) {
		t.Errorf("fleet = %v, want ~45662.1 aircraft", fleet)
	}
}

func TestLoadScenario_CUE(t *testing.T) {
	scenario, err := LoadScenario(writeFile(t, "plain.cue", plainCUE))
	if err != nil {
		t.Fatalf("LoadScenario() error = %v", err)
	}

	inputs, err := scenario.ModelInputs()
	if err != nil {
		t.Fatalf("ModelInputs() error = %v", err)
	}
	if inputs[aviation.NameDaysPerYear] != 365.0 {
		t.Errorf("days_per_year = %#v, want float64 365", inputs[aviation.NameDaysPerYear])
	}

	model, err := aviation.NewModel(nil)
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}
	value, err := model.Evaluate(inputs, scenario.Output)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got := value.(float64); math.Abs(got-13698630.14) > 0.01 {
		t.Errorf("passengers_per_day = %v, want ~13698630.14", got)
	}
}

func TestLoadScenario_JSON(t *testing.T) {
	doc := `{"name": "json", "output": "passengers_per_day", "inputs": {"passengers_per_year": 730, "days_per_year": 365}}`
	scenario, err := NewScenarioLoader().Parse([]byte(doc), "scenario.json")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(scenario.Inputs) != 2 || len(scenario.Sweep) != 0 {
		t.Errorf("scenario = %+v", scenario)
	}
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		file       string
		content    string
		wantSchema bool
		wantErr    string
	}{
		{
			name:       "missing output",
			file:       "s.yaml",
			content:    "name: x\ninputs: {a: 1}\n",
			wantSchema: true,
		},
		{
			name:       "string input",
			file:       "s.yaml",
			content:    "name: x\noutput: y\ninputs: {a: lots}\n",
			wantSchema: true,
		},
		{
			name:       "unknown field",
			file:       "s.yaml",
			content:    "name: x\noutput: y\noutputs: [y]\n",
			wantSchema: true,
		},
		{
			name:       "zero step",
			file:       "s.yaml",
			content:    "name: x\noutput: y\nsweep: [{name: a, start: 0, stop: 1, step: 0}]\n",
			wantSchema: true,
		},
		{
			name:       "invalid name",
			file:       "s.cue",
			content:    "name: \"has space\"\noutput: \"y\"\n",
			wantSchema: true,
		},
		{
			name:    "bad unit",
			file:    "s.yaml",
			content: "name: x\noutput: y\ninputs: {a: {value: 1, unit: passenger//day}}\n",
			wantErr: "input a",
		},
		{
			name:    "empty document",
			file:    "s.yaml",
			content: "",
			wantErr: "empty",
		},
		{
			name:    "unsupported format",
			file:    "s.toml",
			content: "name = 'x'",
			wantErr: "unsupported scenario format",
		},
	}

	loader := NewScenarioLoader()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Parse([]byte(tt.content), tt.file)
			if err == nil {
				t.Fatal("Parse() expected error")
			}

			var verrs ValidationErrors
			if isSchema := errors.As(err, &verrs); isSchema != tt.wantSchema {
				t.Errorf("schema error = %v, want %v (%v)", isSchema, tt.wantSchema, err)
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	if _, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadScenario() expected error for missing file")
	}
}

func TestScenario_GridSize(t *testing.T) {
	tests := []struct {
		name     string
		sweep    []SweepAxis
		limit    int
		want     int
		wantSize bool
		wantErr  bool
	}{
		{name: "no axes", want: 1},
		{
			name:  "product",
			sweep: []SweepAxis{{Name: "a", Start: 0, Stop: 3, Step: 1}, {Name: "b", Start: 0, Stop: 1, Step: 0.25}},
			want:  12,
		},
		{
			name:     "over limit",
			sweep:    []SweepAxis{{Name: "a", Start: 0, Stop: 3, Step: 1}, {Name: "b", Start: 0, Stop: 4, Step: 1}},
			limit:    10,
			wantSize: true,
		},
		{
			name:     "count overflows int",
			sweep:    []SweepAxis{{Name: "a", Start: 0, Stop: 1e19, Step: 1}},
			limit:    10,
			wantSize: true,
		},
		{
			name:     "product overflows int",
			sweep:    []SweepAxis{{Name: "a", Start: 0, Stop: 1e10, Step: 1}, {Name: "b", Start: 0, Stop: 1e10, Step: 1}},
			wantSize: true,
		},
		{name: "infinite stop", sweep: []SweepAxis{{Name: "a", Start: 0, Stop: math.Inf(1), Step: 1}}, wantErr: true},
		{name: "bad unit", sweep: []SweepAxis{{Name: "a", Start: 0, Stop: 1, Step: 1, Unit: "passenger//day"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := Scenario{Name: "grid", Output: "y", Sweep: tt.sweep}
			got, err := scenario.GridSize(tt.limit)
			if tt.wantSize || tt.wantErr {
				if err == nil {
					t.Fatalf("GridSize() = %d, expected error", got)
				}
				if tt.wantSize && !errors.Is(err, sweep.ErrTooManyPoints) {
					t.Errorf("GridSize() error = %v, want ErrTooManyPoints", err)
				}
				if _, err := scenario.Axes(tt.limit); err == nil {
					t.Error("Axes() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("GridSize() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("GridSize() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLoadScenario_HugeSweepIsNotExpanded(t *testing.T) {
	content := "name: x\noutput: y\nsweep: [{name: a, start: 0, stop: 1e15, step: 1}]\n"
	scenario, err := NewScenarioLoader().Parse([]byte(content), "s.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, err := scenario.Axes(sweep.DefaultMaxPoints); !errors.Is(err, sweep.ErrTooManyPoints) {
		t.Errorf("Axes() error = %v, want ErrTooManyPoints", err)
	}
}

func TestNormalizeInputs(t *testing.T) {
	passengerPerDay := units.MustParse("passenger/day")

	got, err := NormalizeInputs(map[string]interface{}{
		"a": 3,
		"b": int64(4),
		"c": 2.5,
		"d": map[string]interface{}{"value": 7.0, "unit": "passenger/day"},
		"e": units.Q(1, passengerPerDay),
		"f": map[string]interface{}{"value": 1},
	})
	if err != nil {
		t.Fatalf("NormalizeInputs() error = %v", err)
	}

	for name, want := range map[string]float64{"a": 3, "b": 4, "c": 2.5} {
		if got[name] != want {
			t.Errorf("%s = %#v, want %v", name, got[name], want)
		}
	}
	if q := got["d"].(units.Quantity); !q.ApproxEqual(units.Q(7, passengerPerDay), 0) {
		t.Errorf("d = %v", q)
	}
	if q := got["e"].(units.Quantity); !q.Unit.Equal(passengerPerDay) {
		t.Errorf("e = %v", q)
	}
	if q := got["f"].(units.Quantity); !q.Unit.IsDimensionless() {
		t.Errorf("f = %v, want dimensionless", q)
	}

	bad := []map[string]interface{}{
		{"x": "five"},
		{"x": map[string]interface{}{"value": "five", "unit": "day"}},
		{"x": []interface{}{1}},
	}
	for _, raw := range bad {
		if _, err := NormalizeInputs(raw); err == nil || !strings.Contains(err.Error(), "input x") {
			t.Errorf("NormalizeInputs(%v) error = %v, want error naming x", raw, err)
		}
	}
}

func TestParseAssignment(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		want     interface{}
		wantErr  bool
	}{
		{in: "seats_per_aircraft=150", wantName: "seats_per_aircraft", want: 150.0},
		{in: "seats_per_aircraft=150:passenger/aircraft", wantName: "seats_per_aircraft",
			want: units.Q(150, units.MustParse("passenger/aircraft"))},
		{in: " days = 365 ", wantName: "days", want: 365.0},
		{in: "x=5e9:passenger/year", wantName: "x", want: units.Q(5e9, units.MustParse("passenger/year"))},
		{in: "x", wantErr: true},
		{in: "=5", wantErr: true},
		{in: "x=five", wantErr: true},
		{in: "x=5:passenger//day", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, value, err := ParseAssignment(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAssignment() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if q, ok := tt.want.(units.Quantity); ok {
				got, isQ := value.(units.Quantity)
				if !isQ || !got.ApproxEqual(q, 0) {
					t.Errorf("value = %v, want %v", value, q)
				}
				return
			}
			if value != tt.want {
				t.Errorf("value = %#v, want %#v", value, tt.want)
			}
		})
	}
}

func TestSchemaRegistry(t *testing.T) {
	sr := NewSchemaRegistry()

	if got := strings.Join(sr.ListSchemas(), ","); got != "axis,quantity,scenario" {
		t.Errorf("ListSchemas() = %s", got)
	}

	if err := sr.ValidateAgainstSchema(context.Background(), "quantity", map[string]interface{}{"value": 1.5, "unit": "day"}); err != nil {
		t.Errorf("valid quantity rejected: %v", err)
	}
	if err := sr.ValidateAgainstSchema(context.Background(), "quantity", map[string]interface{}{"value": "x"}); err == nil {
		t.Error("invalid quantity accepted")
	}
	if err := sr.ValidateAgainstSchema(context.Background(), "missing", 1); err == nil {
		t.Error("unknown schema accepted")
	}
	if err := sr.RegisterSchema("broken", "#X: {", "#X"); err == nil {
		t.Error("RegisterSchema() accepted invalid CUE")
	}
}
