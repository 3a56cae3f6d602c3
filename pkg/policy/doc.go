// Package policy checks model inputs against Open Policy Agent (OPA) rego
// policies before an evaluation runs.
//
// Every policy is a rego module defining a "deny" set. Members are either
// message strings or objects:
//
//	package limits
//
//	import rego.v1
//
//	deny contains violation if {
//		input.inputs.seats_per_aircraft.value > 850
//		violation := {
//			"input": "seats_per_aircraft",
//			"message": "no aircraft seats more than 850 passengers",
//		}
//	}
//
// The input document has the shape
//
//	{"output": "required_global_fleet",
//	 "inputs": {"seats_per_aircraft": {"value": 150, "unit": "passenger/aircraft"},
//	            "days_per_year": 365}}
//
// Violations with error or critical severity deny the input set; info and
// warning violations are reported as warnings. Built-in policies reject
// non-positive fleet inputs and warn about unusual calendar lengths and
// units.
//
// Policies are loaded from .rego files (named after the file, error
// severity) or .json documents holding a Policy. Loader.Watch reloads them
// when files change.
package policy
