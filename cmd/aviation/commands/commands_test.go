package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/camia/aviation/pkg/engine"
	"github.com/camia/aviation/pkg/stores"
	"github.com/camia/aviation/pkg/sweep"
)

const fleetScenario = `
name: baseline
output: required_global_fleet
inputs:
  passengers_per_year: {value: 5e9, unit: passenger/year}
  days_per_year: {value: 365, unit: day/year}
  seats_per_aircraft: {value: 150, unit: passenger/aircraft}
  flights_per_aircraft_per_day: {value: 2, unit: journey/(aircraft*day)}
`

const gridScenario = `
name: grid
output: passengers_per_day
inputs:
  passengers_per_year: 730
  days_per_year: 365
sweep:
  - name: passengers_per_year
    start: 0
    stop: 1095
    step: 365
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestEvaluate_Inputs(t *testing.T) {
	out, err := execute(t, "evaluate", "passengers_per_day",
		"--input", "passengers_per_year=730", "--input", "days_per_year=365")
	if err != nil {
		t.Fatalf("evaluate error = %v", err)
	}
	if out != "passengers_per_day = 2\n" {
		t.Errorf("output = %q", out)
	}
}

func TestEvaluate_ScenarioJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "baseline.yaml", fleetScenario)

	out, err := execute(t, "evaluate", "--scenario", path, "--strict", "--json")
	if err != nil {
		t.Fatalf("evaluate error = %v", err)
	}

	var report struct {
		Output string `json:"output"`
		Value  struct {
			Value float64 `json:"value"`
			Unit  string  `json:"unit"`
		} `json:"value"`
		Derived     map[string]interface{} `json:"derived"`
		Invocations int                    `json:"invocations"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if report.Output != "required_global_fleet" || report.Value.Unit != "aircraft" {
		t.Errorf("report = %+v", report)
	}
	if math.Abs(report.Value.Value-45662.1) > 1.0 {
		t.Errorf("fleet = %v, want ~45662.1", report.Value.Value)
	}
	if _, ok := report.Derived["passengers_per_day"]; !ok || report.Invocations != 2 {
		t.Errorf("derived = %v, invocations = %d", report.Derived, report.Invocations)
	}
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
		check   func(error) bool
	}{
		{
			name:    "rejected by policy",
			args:    []string{"evaluate", "passengers_per_day", "-i", "passengers_per_year=730", "-i", "days_per_year=-1"},
			wantErr: "positive-inputs",
		},
		{
			name:  "unknown output",
			args:  []string{"evaluate", "cargo_per_day"},
			check: engine.IsUnknownTarget,
		},
		{
			name:    "no output",
			args:    []string{"evaluate", "-i", "days_per_year=365"},
			wantErr: "no output",
		},
		{
			name:    "bad assignment",
			args:    []string{"evaluate", "passengers_per_day", "-i", "days_per_year"},
			wantErr: "days_per_year",
		},
		{
			name:  "missing input",
			args:  []string{"evaluate", "passengers_per_day", "-i", "days_per_year=365"},
			check: engine.IsUnknownTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(err) {
				t.Errorf("unexpected error kind: %v", err)
			}
		})
	}
}

func TestEvaluate_Starlark(t *testing.T) {
	module := writeFile(t, t.TempDir(), "weekly.star", `
def passengers_per_week(passengers_per_day):
    return passengers_per_day * 7
`)

	out, err := execute(t, "evaluate", "passengers_per_week", "--starlark", module,
		"-i", "passengers_per_year=730", "-i", "days_per_year=365", "--verbose")
	if err != nil {
		t.Fatalf("evaluate error = %v", err)
	}
	if !strings.HasPrefix(out, "passengers_per_week = 14\n  passengers_per_day = 2\n") {
		t.Errorf("output = %q", out)
	}
}

func TestTransforms(t *testing.T) {
	out, err := execute(t, "transforms")
	if err != nil {
		t.Fatalf("transforms error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "passengers_per_day(") || !strings.HasPrefix(lines[1], "required_global_fleet(") {
		t.Errorf("lines = %q", lines)
	}

	out, err = execute(t, "transforms", "--json")
	if err != nil {
		t.Fatalf("transforms --json error = %v", err)
	}
	var reports []transformReport
	if err := json.Unmarshal([]byte(out), &reports); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(reports) != 2 || len(reports[1].Parameters) != 3 {
		t.Errorf("reports = %+v", reports)
	}
}

func TestGraph(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr bool
	}{
		{
			name: "dot",
			args: []string{"graph"},
			want: []string{"digraph SystemsModel {", `"passengers_per_day" -> "required_global_fleet";`},
		},
		{
			name: "levels",
			args: []string{"graph", "--format", "levels"},
			want: []string{"1: passengers_per_day\n", "2: required_global_fleet\n"},
		},
		{
			name: "requirements",
			args: []string{"graph", "--requirements", "required_global_fleet"},
			want: []string{"days_per_year\nflights_per_aircraft_per_day\npassengers_per_year\nseats_per_aircraft\n"},
		},
		{
			name:    "unknown format",
			args:    []string{"graph", "--format", "svg"},
			wantErr: true,
		},
		{
			name:    "unknown requirement",
			args:    []string{"graph", "--requirements", "nothing"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("graph error = %v, wantErr %v", err, tt.wantErr)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output %q does not contain %q", out, want)
				}
			}
		})
	}
}

func TestSweep_Scenario(t *testing.T) {
	path := writeFile(t, t.TempDir(), "grid.yaml", gridScenario)

	out, err := execute(t, "sweep", "--scenario", path, "--concurrency", "2")
	if err != nil {
		t.Fatalf("sweep error = %v", err)
	}
	want := "passengers_per_year=0  passengers_per_day = 0\n" +
		"passengers_per_year=365  passengers_per_day = 1\n" +
		"passengers_per_year=730  passengers_per_day = 2\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestSweep_ContinueOnError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "grid.yaml", gridScenario)

	out, err := execute(t, "sweep", "seats_per_aircraft", "--scenario", path, "--continue-on-error", "--json")
	if err != nil {
		t.Fatalf("sweep error = %v", err)
	}
	var reports []sweepPointReport
	if err := json.Unmarshal([]byte(out), &reports); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("got %d points", len(reports))
	}
	for _, r := range reports {
		if r.Error == "" {
			t.Errorf("point %d: expected error", r.Index)
		}
	}

	if _, err := execute(t, "sweep", "seats_per_aircraft", "--scenario", path); err == nil {
		t.Error("sweep without --continue-on-error should fail")
	}
}

func TestSweep_TooLarge(t *testing.T) {
	dir := t.TempDir()
	grid := writeFile(t, dir, "grid.yaml", gridScenario)
	huge := writeFile(t, dir, "huge.yaml", "name: huge\noutput: passengers_per_day\ninputs: {days_per_year: 365}\n"+
		"sweep: [{name: passengers_per_year, start: 0, stop: 1e19, step: 1}]\n")

	tests := []struct {
		name string
		args []string
	}{
		{name: "count overflows int", args: []string{"sweep", "--scenario", huge}},
		{name: "over max points", args: []string{"sweep", "--scenario", grid, "--max-points", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if !errors.Is(err, sweep.ErrTooManyPoints) {
				t.Errorf("sweep error = %v, want ErrTooManyPoints", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "baseline.yaml", fleetScenario)
	writeFile(t, dir, "grid.yaml", gridScenario)
	writeFile(t, dir, "weekly.star", "def weekly(passengers_per_day):\n    return passengers_per_day * 7\n")
	writeFile(t, dir, "notes.txt", "ignored")

	out, err := execute(t, "validate", dir)
	if err != nil {
		t.Fatalf("validate error = %v\n%s", err, out)
	}
	if strings.Count(out, "ok ") != 3 {
		t.Errorf("output = %q", out)
	}

	writeFile(t, dir, "partial.yaml", "name: partial\noutput: required_global_fleet\ninputs: {days_per_year: 365}\n")
	writeFile(t, dir, "broken.rego", "package broken\ndeny contains x if {\n")

	out, err = execute(t, "validate", dir)
	if err == nil {
		t.Fatal("validate should fail")
	}
	if !strings.Contains(err.Error(), "2 problems") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(out, "FAIL  "+filepath.Join(dir, "partial.yaml")) || !strings.Contains(out, "missing inputs") {
		t.Errorf("output = %q", out)
	}
}

func TestScenarioLifecycle(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "scenarios.db")
	path := writeFile(t, dir, "grid.yaml", gridScenario)

	out, err := execute(t, "scenario", "save", path, "--db", db)
	if err != nil {
		t.Fatalf("save error = %v", err)
	}
	if !strings.HasPrefix(out, "saved grid (") {
		t.Errorf("save output = %q", out)
	}

	out, err = execute(t, "scenario", "list", "--db", db)
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.HasPrefix(out, "grid\tpassengers_per_day\t") {
		t.Errorf("list output = %q", out)
	}

	out, err = execute(t, "scenario", "show", "grid", "--db", db)
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(out), &doc); err != nil || doc["output"] != "passengers_per_day" {
		t.Errorf("show output = %q (%v)", out, err)
	}

	out, err = execute(t, "scenario", "run", "grid", "--db", db)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if out != "passengers_per_day = 2\n" {
		t.Errorf("run output = %q", out)
	}

	out, err = execute(t, "scenario", "run", "grid", "--db", db, "-i", "passengers_per_year=1095")
	if err != nil || out != "passengers_per_day = 3\n" {
		t.Errorf("run with override = %q, %v", out, err)
	}

	if _, err := execute(t, "scenario", "delete", "grid", "--db", db); err != nil {
		t.Fatalf("delete error = %v", err)
	}
	if _, err := execute(t, "scenario", "show", "grid", "--db", db); !errors.Is(err, stores.ErrNotFound) {
		t.Errorf("show after delete error = %v, want ErrNotFound", err)
	}
}
