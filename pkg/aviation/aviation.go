// Package aviation models the size of the global commercial fleet from
// average passenger and aircraft data.
package aviation

import (
	"context"
	"fmt"

	"github.com/camia/aviation/pkg/engine"
	"github.com/camia/aviation/pkg/sweep"
	"github.com/camia/aviation/pkg/units"
)

// Names of the quantities in the catalogue.
const (
	NamePassengersPerYear        = "passengers_per_year"
	NameDaysPerYear              = "days_per_year"
	NamePassengersPerDay         = "passengers_per_day"
	NameSeatsPerAircraft         = "seats_per_aircraft"
	NameFlightsPerAircraftPerDay = "flights_per_aircraft_per_day"
	NameRequiredGlobalFleet      = "required_global_fleet"
)

// Units of the catalogue quantities.
var (
	PassengerPerYear      = units.Passenger.Div(units.Year)
	DayPerYear            = units.Day.Div(units.Year)
	PassengerPerDay       = units.Passenger.Div(units.Day)
	PassengerPerAircraft  = units.Passenger.Div(units.Aircraft)
	JourneyPerAircraftDay = units.Journey.Div(units.Aircraft.Mul(units.Day))
	AircraftPerJourney    = units.Aircraft.Div(units.Journey)
)

var (
	passengersPerDay = engine.MustTransform(NamePassengersPerDay,
		[]string{NamePassengersPerYear, NameDaysPerYear},
		func(_ context.Context, args engine.Arguments) (interface{}, error) {
			return units.Div(args[NamePassengersPerYear], args[NameDaysPerYear])
		},
		engine.WithDescription("The number of passengers flying per day globally."),
		engine.WithParameterAnnotation(NamePassengersPerYear, PassengerPerYear),
		engine.WithParameterAnnotation(NameDaysPerYear, DayPerYear),
		engine.WithResultAnnotation(PassengerPerDay),
	)

	requiredGlobalFleet = engine.MustTransform(NameRequiredGlobalFleet,
		[]string{NamePassengersPerDay, NameSeatsPerAircraft, NameFlightsPerAircraftPerDay},
		fleetSize,
		engine.WithDescription("The size of the global fleet required to carry the daily passengers."),
		engine.WithParameterAnnotation(NamePassengersPerDay, PassengerPerDay),
		engine.WithParameterAnnotation(NameSeatsPerAircraft, PassengerPerAircraft),
		engine.WithParameterAnnotation(NameFlightsPerAircraftPerDay, JourneyPerAircraftDay),
		engine.WithResultAnnotation(units.Aircraft),
	)
)

// fleetSize divides the daily passengers by the daily capacity of one
// aircraft. With quantities, each journey is one aircraft flight, which
// turns journey/day capacity into aircraft.
func fleetSize(_ context.Context, args engine.Arguments) (interface{}, error) {
	capacity, err := units.Mul(args[NameSeatsPerAircraft], args[NameFlightsPerAircraftPerDay])
	if err != nil {
		return nil, fmt.Errorf("daily capacity: %w", err)
	}
	if q, ok := units.AsQuantity(capacity); ok {
		capacity = q.Mul(units.Q(1, AircraftPerJourney))
	}
	return units.Div(args[NamePassengersPerDay], capacity)
}

// PassengersPerDay returns the transform computing passengers_per_day from
// passengers_per_year [passenger/year] and days_per_year [day/year].
func PassengersPerDay() *engine.Transform {
	return passengersPerDay
}

// RequiredGlobalFleet returns the transform computing required_global_fleet
// [aircraft] from passengers_per_day [passenger/day], seats_per_aircraft
// [passenger/aircraft] and flights_per_aircraft_per_day [journey/(aircraft*day)].
func RequiredGlobalFleet() *engine.Transform {
	return requiredGlobalFleet
}

// Transforms returns the catalogue.
func Transforms() []*engine.Transform {
	return []*engine.Transform{passengersPerDay, requiredGlobalFleet}
}

// NewModel builds a model over the catalogue plus any extra transforms.
func NewModel(extra []*engine.Transform, opts ...engine.Option) (*engine.SystemsModel, error) {
	transforms := append(Transforms(), extra...)
	return engine.New(transforms, opts...)
}

// BaselineInputs returns the reference scenario: 5 billion passengers a year,
// 365 days a year, 150 seats per aircraft and 2 flights per aircraft per day.
func BaselineInputs() map[string]interface{} {
	return map[string]interface{}{
		NamePassengersPerYear:        units.Q(5_000_000_000, PassengerPerYear),
		NameDaysPerYear:              units.Q(365, DayPerYear),
		NameSeatsPerAircraft:         units.Q(150, PassengerPerAircraft),
		NameFlightsPerAircraftPerDay: units.Q(2, JourneyPerAircraftDay),
	}
}

// FleetSweep returns the axes of the global fleet analysis: passengers per
// year from 0 to 10 billion, 50 to 500 seats and 1 to 3 daily flights.
func FleetSweep() ([]sweep.Axis, error) {
	ranges := []struct {
		name string
		r    sweep.Range
	}{
		{NamePassengersPerYear, sweep.Range{Start: 0, Stop: 10_500_000_000, Step: 500_000_000, Unit: PassengerPerYear}},
		{NameSeatsPerAircraft, sweep.Range{Start: 50, Stop: 550, Step: 50, Unit: PassengerPerAircraft}},
		{NameFlightsPerAircraftPerDay, sweep.Range{Start: 1, Stop: 4, Step: 1, Unit: JourneyPerAircraftDay}},
	}

	axes := make([]sweep.Axis, 0, len(ranges))
	for _, r := range ranges {
		axis, err := sweep.RangeAxis(r.name, r.r)
		if err != nil {
			return nil, err
		}
		axes = append(axes, axis)
	}
	return axes, nil
}
