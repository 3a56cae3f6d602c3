// Package engine provides demand-driven evaluation over named transforms.
//
// # Overview
//
// A Transform is a named computation with an ordered list of parameter names.
// A SystemsModel holds a set of transforms keyed by name. Given a map of known
// values and a requested output, the model computes the output by recursively
// evaluating whatever parameters are missing:
//
//  1. If the output is already in the inputs map, its value is returned as is.
//     Inputs always shadow transforms of the same name.
//  2. Otherwise the transform named after the output is looked up.
//  3. Each missing parameter is evaluated in declared order and written into
//     the inputs map before the next one is considered.
//  4. The transform is invoked with its bound arguments.
//
// The top-level result is returned but not written into the inputs map.
//
// # Example Usage
//
//	perDay := engine.MustTransform("passengers_per_day",
//	    []string{"passengers_per_year", "days_per_year"},
//	    func(ctx context.Context, args engine.Arguments) (interface{}, error) {
//	        year, _ := args.Float("passengers_per_year")
//	        days, _ := args.Float("days_per_year")
//	        return year / days, nil
//	    })
//
//	model, err := engine.New([]*engine.Transform{perDay})
//	inputs := map[string]interface{}{"passengers_per_year": 5e9, "days_per_year": 365.0}
//	value, err := model.Evaluate(inputs, "passengers_per_day")
//
// # Error Classification
//
// Failures are reported as *EngineError values classified by ErrorKind:
//
//   - UnknownTarget: a name is neither an input nor a transform
//   - CircularDependency: a name transitively requires itself
//   - DuplicateTransform: two distinct transforms share a name
//   - InvalidTransform: a transform definition is malformed
//   - ArgumentBinding: an argument is missing or rejected by an annotation
//   - TransformFailed: a transform's behaviour returned an error
//
// Use errors.Is with the Err* sentinels or the Is* helpers to inspect them.
//
// # Graph Analysis
//
// BuildGraph exposes the static dependency graph implied by parameter names,
// with topological levels, static cycles, per-output input requirements and
// Graphviz output.
//
// # Thread Safety
//
// A SystemsModel is immutable after New returns and may be shared between
// goroutines. Each concurrent evaluation must use its own inputs map.
package engine
