// Package config loads everything a model evaluation is configured from:
// scenario documents, Starlark transform modules and the application
// settings.
//
// # Scenarios
//
// A scenario names an output and the inputs to evaluate it from. Documents
// are YAML, JSON or CUE and are unified with the built-in #Scenario CUE
// schema before being decoded and validated:
//
//	name: baseline
//	output: required_global_fleet
//	inputs:
//	  passengers_per_year: {value: 5e9, unit: passenger/year}
//	  days_per_year: {value: 365, unit: day/year}
//	  seats_per_aircraft: {value: 150, unit: passenger/aircraft}
//	  flights_per_aircraft_per_day: {value: 2, unit: journey/(aircraft*day)}
//	sweep:
//	  - {name: seats_per_aircraft, start: 100, stop: 300, step: 50, unit: passenger/aircraft}
//
// Plain numbers decode to float64 and {value, unit} objects to
// units.Quantity.
//
// # Starlark transforms
//
// StarlarkLoader turns each public top-level function of a Starlark module
// into a transform:
//
//	def passengers_per_week(passengers_per_day):
//	    "Weekly passenger demand."
//	    return passengers_per_day * quantity(7, "day/week")
//
// Module bodies and calls are bounded by a step limit and stop when the
// evaluation context is cancelled.
//
// # Application settings
//
// LoadAppConfig layers an optional YAML file and AVIATION__ environment
// variables over DefaultAppConfig using koanf.
package config
