// Package units provides the Quantity value type used by the aviation
// transforms: a float64 magnitude tagged with a Unit built from named base
// units and integer exponents.
//
// Units only do exponent bookkeeping. There are no conversion factors
// between bases, so "day/year" stays "day/year" rather than collapsing to
// a number.
//
//	perDay := units.Q(5e9, units.Passenger.Div(units.Year)).
//	    Div(units.Q(365, units.Day.Div(units.Year)))
//	fmt.Println(perDay.Unit) // passenger/day
//
// A Unit satisfies the engine's Annotation interface, so it can be attached
// to transform parameters and results and enforced in strict mode.
package units
