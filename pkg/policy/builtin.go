package policy

// Built-in policies checked against every input set. They only look at the
// aviation inputs they know about and ignore everything else.
var builtinPolicies = []Policy{
	{
		Name:        "positive-inputs",
		Description: "Fleet inputs must be strictly positive",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package aviation.policies.positive

import rego.v1

known := {
	"passengers_per_year",
	"days_per_year",
	"passengers_per_day",
	"seats_per_aircraft",
	"flights_per_aircraft_per_day",
}

magnitude(v) := v if {
	is_number(v)
}

magnitude(v) := v.value if {
	is_object(v)
}

deny contains violation if {
	some name, value in input.inputs
	known[name]
	magnitude(value) <= 0
	violation := {
		"input": name,
		"message": sprintf("%s must be positive, got %v", [name, magnitude(value)]),
	}
}
`,
	},
	{
		Name:        "calendar-length",
		Description: "A year should have between 360 and 366 days",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package aviation.policies.calendar

import rego.v1

days := input.inputs.days_per_year if {
	is_number(input.inputs.days_per_year)
}

days := input.inputs.days_per_year.value if {
	is_object(input.inputs.days_per_year)
}

deny contains violation if {
	days > 0
	not in_range(days)
	violation := {
		"input": "days_per_year",
		"message": sprintf("days_per_year is %v, expected between 360 and 366", [days]),
	}
}

in_range(d) if {
	d >= 360
	d <= 366
}
`,
	},
	{
		Name:        "expected-units",
		Description: "Fleet inputs given as quantities should carry their usual units",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package aviation.policies.units

import rego.v1

expected := {
	"passengers_per_year": "passenger/year",
	"days_per_year": "day/year",
	"passengers_per_day": "passenger/day",
	"seats_per_aircraft": "passenger/aircraft",
	"flights_per_aircraft_per_day": "journey/(aircraft*day)",
}

deny contains violation if {
	some name, value in input.inputs
	is_object(value)
	want := expected[name]
	value.unit != want
	violation := {
		"input": name,
		"message": sprintf("%s is in %s, expected %s", [name, value.unit, want]),
	}
}
`,
	},
}
