package aviation

import (
	"context"
	"math"
	"testing"

	"github.com/camia/aviation/pkg/engine"
	"github.com/camia/aviation/pkg/units"
)

func TestTransforms(t *testing.T) {
	want := map[string][]string{
		NamePassengersPerDay:    {NamePassengersPerYear, NameDaysPerYear},
		NameRequiredGlobalFleet: {NamePassengersPerDay, NameSeatsPerAircraft, NameFlightsPerAircraftPerDay},
	}

	transforms := Transforms()
	if len(transforms) != len(want) {
		t.Fatalf("Expected %d transforms, got %d", len(want), len(transforms))
	}
	for _, tr := range transforms {
		params, ok := want[tr.Name()]
		if !ok {
			t.Errorf("unexpected transform %s", tr.Name())
			continue
		}
		got := tr.Parameters()
		if len(got) != len(params) {
			t.Errorf("%s parameters = %v, want %v", tr.Name(), got, params)
			continue
		}
		for i := range params {
			if got[i] != params[i] {
				t.Errorf("%s parameters = %v, want %v", tr.Name(), got, params)
				break
			}
		}
		if tr.Description() == "" {
			t.Errorf("%s has no description", tr.Name())
		}
	}
}

func TestNewModel_Quantities(t *testing.T) {
	m, err := NewModel(nil, engine.WithStrictAnnotations())
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}

	tests := []struct {
		name   string
		inputs map[string]interface{}
		output string
		want   units.Quantity
	}{
		{
			name:   "passengers per day",
			inputs: BaselineInputs(),
			output: NamePassengersPerDay,
			want:   units.Q(13_698_630.14, PassengerPerDay),
		},
		{
			name:   "baseline fleet",
			inputs: BaselineInputs(),
			output: NameRequiredGlobalFleet,
			want:   units.Q(45_662.1, units.Aircraft),
		},
		{
			name: "larger aircraft flying more often",
			inputs: map[string]interface{}{
				NamePassengersPerYear:        units.Q(5_000_000_000, PassengerPerYear),
				NameDaysPerYear:              units.Q(365, DayPerYear),
				NameSeatsPerAircraft:         units.Q(200, PassengerPerAircraft),
				NameFlightsPerAircraftPerDay: units.Q(3, JourneyPerAircraftDay),
			},
			output: NameRequiredGlobalFleet,
			want:   units.Q(22_831, units.Aircraft),
		},
		{
			name: "passengers per day supplied directly",
			inputs: map[string]interface{}{
				NamePassengersPerDay:         units.Q(12_000_000, PassengerPerDay),
				NameSeatsPerAircraft:         units.Q(200, PassengerPerAircraft),
				NameFlightsPerAircraftPerDay: units.Q(3, JourneyPerAircraftDay),
			},
			output: NameRequiredGlobalFleet,
			want:   units.Q(20_000, units.Aircraft),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Evaluate(tt.inputs, tt.output)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			q, ok := units.AsQuantity(got)
			if !ok {
				t.Fatalf("Evaluate() = %T, want units.Quantity", got)
			}
			if !q.ApproxEqual(tt.want, 1.0) {
				t.Errorf("Evaluate() = %v, want %v", q, tt.want)
			}
		})
	}
}

func TestNewModel_PlainNumbers(t *testing.T) {
	m, err := NewModel(nil)
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}

	inputs := map[string]interface{}{
		NamePassengersPerYear:        5_000_000_000.0,
		NameDaysPerYear:              365.0,
		NameSeatsPerAircraft:         200.0,
		NameFlightsPerAircraftPerDay: 3.0,
	}
	got, err := m.Evaluate(inputs, NameRequiredGlobalFleet)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if v := got.(float64); math.Abs(v-22_831) > 1 {
		t.Errorf("Evaluate() = %v, want about 22831", v)
	}
	if v := inputs[NamePassengersPerDay].(float64); math.Abs(v-13_698_630.14) > 0.01 {
		t.Errorf("passengers_per_day = %v, want 13698630.14", v)
	}
}

func TestNewModel_StrictRejectsWrongUnits(t *testing.T) {
	m, err := NewModel(nil, engine.WithStrictAnnotations())
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}

	tests := []struct {
		name  string
		patch map[string]interface{}
	}{
		{
			name:  "plain number",
			patch: map[string]interface{}{NameSeatsPerAircraft: 150.0},
		},
		{
			name:  "swapped unit",
			patch: map[string]interface{}{NameSeatsPerAircraft: units.Q(150, units.Aircraft.Div(units.Passenger))},
		},
		{
			name:  "days per year without year",
			patch: map[string]interface{}{NameDaysPerYear: units.Q(365, units.Day)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs := BaselineInputs()
			for k, v := range tt.patch {
				inputs[k] = v
			}
			_, err := m.Evaluate(inputs, NameRequiredGlobalFleet)
			if !engine.IsArgumentBinding(err) {
				t.Errorf("Evaluate() error = %v, want argument binding", err)
			}
		})
	}
}

func TestNewModel_ExtraTransforms(t *testing.T) {
	perWeek := engine.MustTransform("passengers_per_week", []string{NamePassengersPerDay},
		func(_ context.Context, args engine.Arguments) (interface{}, error) {
			return units.Mul(args[NamePassengersPerDay], units.Q(7, units.Day))
		})

	m, err := NewModel([]*engine.Transform{perWeek})
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}

	got, err := m.Evaluate(BaselineInputs(), "passengers_per_week")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	want := units.Q(95_890_410.96, units.Passenger)
	if q, _ := units.AsQuantity(got); !q.ApproxEqual(want, 1.0) {
		t.Errorf("Evaluate() = %v, want %v", got, want)
	}

	if _, err := NewModel([]*engine.Transform{PassengersPerDay()}); err != nil {
		t.Errorf("NewModel() with a catalogue transform repeated error = %v", err)
	}
}

func TestFleetSweep(t *testing.T) {
	axes, err := FleetSweep()
	if err != nil {
		t.Fatalf("FleetSweep() error = %v", err)
	}

	want := map[string]int{
		NamePassengersPerYear:        21,
		NameSeatsPerAircraft:         10,
		NameFlightsPerAircraftPerDay: 3,
	}
	for _, a := range axes {
		if len(a.Values) != want[a.Name] {
			t.Errorf("axis %s has %d values, want %d", a.Name, len(a.Values), want[a.Name])
		}
	}
}
