// Package sweep evaluates a model over the cartesian product of input axes.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/camia/aviation/pkg/engine"
	"github.com/camia/aviation/pkg/units"
)

// Evaluator is the part of engine.SystemsModel a sweep needs.
type Evaluator interface {
	EvaluateContext(ctx context.Context, inputs map[string]interface{}, output string) (*engine.Evaluation, error)
}

// Range is an evenly spaced, half-open interval [Start, Stop) sampled every
// Step. Values carry Unit unless it is dimensionless, in which case they are
// plain float64s.
type Range struct {
	Start float64    `json:"start"`
	Stop  float64    `json:"stop"`
	Step  float64    `json:"step"`
	Unit  units.Unit `json:"unit"`
}

// DefaultMaxPoints bounds the size of a grid unless the caller sets its own
// limit.
const DefaultMaxPoints = 100_000

// ErrTooManyPoints is returned when a grid is larger than allowed.
var ErrTooManyPoints = errors.New("too many sweep points")

// Len returns the number of values in the range. It fails when the step is
// zero or not finite, when the bounds are not finite, or when the count does
// not fit in an int.
func (r Range) Len() (int, error) {
	if r.Step == 0 || math.IsNaN(r.Step) || math.IsInf(r.Step, 0) {
		return 0, fmt.Errorf("invalid step %v", r.Step)
	}
	n := math.Ceil((r.Stop - r.Start) / r.Step)
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("range [%v, %v) is not finite", r.Start, r.Stop)
	}
	if n <= 0 {
		return 0, nil
	}
	// float64(math.MaxInt) rounds up to 2^63, which is already out of range.
	if n >= float64(math.MaxInt) {
		return 0, fmt.Errorf("range [%v, %v) step %v: %w", r.Start, r.Stop, r.Step, ErrTooManyPoints)
	}
	return int(n), nil
}

// GridSize returns the number of points in the product of axes with the
// given lengths. It fails with ErrTooManyPoints when the product exceeds
// limit, or overflows an int when limit is zero or less.
func GridSize(limit int, lens ...int) (int, error) {
	if limit <= 0 {
		limit = math.MaxInt
	}
	total := 1
	for _, n := range lens {
		if n == 0 {
			return 0, nil
		}
	}
	for _, n := range lens {
		if n < 0 || total > limit/n {
			return 0, fmt.Errorf("grid exceeds %d points: %w", limit, ErrTooManyPoints)
		}
		total *= n
	}
	return total, nil
}

// Values samples the range. The stop value is excluded.
func (r Range) Values() ([]interface{}, error) {
	n, err := r.Len()
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, n)
	for i := 0; i < n; i++ {
		v := r.Start + float64(i)*r.Step
		if r.Unit.IsDimensionless() {
			values[i] = v
		} else {
			values[i] = units.Q(v, r.Unit)
		}
	}
	return values, nil
}

// Axis is one swept input: a name and the values it takes.
type Axis struct {
	Name   string        `json:"name"`
	Values []interface{} `json:"values"`
}

// RangeAxis samples r into an axis named name.
func RangeAxis(name string, r Range) (Axis, error) {
	values, err := r.Values()
	if err != nil {
		return Axis{}, fmt.Errorf("axis %s: %w", name, err)
	}
	return Axis{Name: name, Values: values}, nil
}

// Point is one combination of axis values.
type Point struct {
	// Index is the position of the point in the grid.
	Index int `json:"index"`

	// Coordinates maps each axis name to its value at this point.
	Coordinates map[string]interface{} `json:"coordinates"`
}

// Grid returns the cartesian product of axes. The last axis varies fastest.
// An axis with no values yields an empty grid.
func Grid(axes []Axis) ([]Point, error) {
	if len(axes) == 0 {
		return []Point{{Index: 0, Coordinates: map[string]interface{}{}}}, nil
	}

	lens := make([]int, len(axes))
	seen := make(map[string]bool, len(axes))
	for i, a := range axes {
		if a.Name == "" {
			return nil, errors.New("axis name is empty")
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("duplicate axis %s", a.Name)
		}
		seen[a.Name] = true
		lens[i] = len(a.Values)
	}
	total, err := GridSize(0, lens...)
	if err != nil {
		return nil, err
	}

	points := make([]Point, total)
	for i := 0; i < total; i++ {
		coords := make(map[string]interface{}, len(axes))
		rem := i
		for j := len(axes) - 1; j >= 0; j-- {
			n := len(axes[j].Values)
			coords[axes[j].Name] = axes[j].Values[rem%n]
			rem /= n
		}
		points[i] = Point{Index: i, Coordinates: coords}
	}
	return points, nil
}

// Options controls a sweep run.
type Options struct {
	// Concurrency is the number of points evaluated in parallel.
	// Zero means runtime.GOMAXPROCS(0).
	Concurrency int

	// ContinueOnError records per-point failures in Result.Err instead of
	// aborting the sweep on the first one.
	ContinueOnError bool
}

// Result is the outcome of evaluating one point.
type Result struct {
	Point

	// Value is the evaluated output, nil if the point failed.
	Value interface{} `json:"value"`

	// Err is the point's failure when Options.ContinueOnError is set.
	Err error `json:"-"`
}

// Run evaluates output at every point of the grid spanned by axes. Each point
// is evaluated on its own copy of base with the point's coordinates applied
// on top. Results are ordered by point index.
func Run(ctx context.Context, model Evaluator, base map[string]interface{}, axes []Axis, output string, opts Options) ([]Result, error) {
	points, err := Grid(axes)
	if err != nil {
		return nil, err
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	results := make([]Result, len(points))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range points {
		point := points[i]
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			inputs := make(map[string]interface{}, len(base)+len(point.Coordinates))
			for k, v := range base {
				inputs[k] = v
			}
			for k, v := range point.Coordinates {
				inputs[k] = v
			}

			results[point.Index].Point = point
			ev, err := model.EvaluateContext(gctx, inputs, output)
			if err != nil {
				if opts.ContinueOnError {
					results[point.Index].Err = err
					return nil
				}
				return fmt.Errorf("point %d: %w", point.Index, err)
			}
			results[point.Index].Value = ev.Value
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Failed returns the results whose evaluation failed.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
