package engine_test

import (
	"context"
	"fmt"

	"github.com/camia/aviation/pkg/engine"
)

// Example_chained shows a two-level evaluation in which the intermediate
// passengers_per_day is derived and left in the inputs map.
func Example_chained() {
	perDay := engine.MustTransform("passengers_per_day",
		[]string{"passengers_per_year", "days_per_year"},
		func(_ context.Context, args engine.Arguments) (interface{}, error) {
			year, _ := args.Float("passengers_per_year")
			days, _ := args.Float("days_per_year")
			return year / days, nil
		})

	fleet := engine.MustTransform("required_global_fleet",
		[]string{"passengers_per_day", "seats_per_aircraft", "flights_per_aircraft_per_day"},
		func(_ context.Context, args engine.Arguments) (interface{}, error) {
			perDay, _ := args.Float("passengers_per_day")
			seats, _ := args.Float("seats_per_aircraft")
			flights, _ := args.Float("flights_per_aircraft_per_day")
			return perDay / (seats * flights), nil
		})

	model, err := engine.New([]*engine.Transform{perDay, fleet})
	if err != nil {
		fmt.Println(err)
		return
	}

	inputs := map[string]interface{}{
		"passengers_per_year":          5e9,
		"days_per_year":                365.0,
		"seats_per_aircraft":           200.0,
		"flights_per_aircraft_per_day": 3.0,
	}
	ev, err := model.EvaluateContext(context.Background(), inputs, "required_global_fleet")
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Printf("fleet: %.0f\n", ev.Value)
	fmt.Printf("derived: %v\n", ev.Derived)
	fmt.Printf("passengers_per_day: %.2f\n", inputs["passengers_per_day"])
	// Output:
	// fleet: 22831
	// derived: [passengers_per_day]
	// passengers_per_day: 13698630.14
}

// Example_graph prints the static dependency levels of a model.
func Example_graph() {
	noop := func(context.Context, engine.Arguments) (interface{}, error) { return nil, nil }
	model, _ := engine.New([]*engine.Transform{
		engine.MustTransform("c", []string{"a", "b"}, noop),
		engine.MustTransform("e", []string{"c", "d"}, noop),
	})

	g := engine.BuildGraph(model)
	for level, names := range g.Levels {
		fmt.Println(level, names)
	}
	// Output:
	// 0 [a b d]
	// 1 [c]
	// 2 [e]
}
