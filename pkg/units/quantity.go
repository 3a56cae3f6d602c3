package units

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Quantity is a numeric magnitude tagged with a Unit.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// Q returns a quantity of value in u.
func Q(value float64, u Unit) Quantity {
	return Quantity{Value: value, Unit: u}
}

// Mul returns q*o.
func (q Quantity) Mul(o Quantity) Quantity {
	return Quantity{Value: q.Value * o.Value, Unit: q.Unit.Mul(o.Unit)}
}

// Div returns q/o.
func (q Quantity) Div(o Quantity) Quantity {
	return Quantity{Value: q.Value / o.Value, Unit: q.Unit.Div(o.Unit)}
}

// Scale multiplies the magnitude of q by f.
func (q Quantity) Scale(f float64) Quantity {
	return Quantity{Value: q.Value * f, Unit: q.Unit}
}

// Add returns q+o. Both operands must share a unit.
func (q Quantity) Add(o Quantity) (Quantity, error) {
	if !q.Unit.Equal(o.Unit) {
		return Quantity{}, fmt.Errorf("cannot add %s to %s", o.Unit, q.Unit)
	}
	return Quantity{Value: q.Value + o.Value, Unit: q.Unit}, nil
}

// Sub returns q-o. Both operands must share a unit.
func (q Quantity) Sub(o Quantity) (Quantity, error) {
	if !q.Unit.Equal(o.Unit) {
		return Quantity{}, fmt.Errorf("cannot subtract %s from %s", o.Unit, q.Unit)
	}
	return Quantity{Value: q.Value - o.Value, Unit: q.Unit}, nil
}

// ApproxEqual reports whether q and o share a unit and differ by at most atol.
func (q Quantity) ApproxEqual(o Quantity, atol float64) bool {
	return q.Unit.Equal(o.Unit) && math.Abs(q.Value-o.Value) <= atol
}

// String formats q as "13698630.14 passenger/day".
func (q Quantity) String() string {
	v := strconv.FormatFloat(q.Value, 'f', -1, 64)
	if q.Unit.IsDimensionless() {
		return v
	}
	return v + " " + q.Unit.String()
}

// UnmarshalJSON accepts {"value": 1, "unit": "passenger/day"} or a bare number.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*q = Quantity{Value: f}
		return nil
	}

	var raw struct {
		Value *float64 `json:"value"`
		Unit  string   `json:"unit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Value == nil {
		return fmt.Errorf("quantity: missing value")
	}
	u, err := Parse(raw.Unit)
	if err != nil {
		return err
	}
	*q = Quantity{Value: *raw.Value, Unit: u}
	return nil
}

// AsQuantity extracts a Quantity from a Quantity or *Quantity value.
func AsQuantity(v interface{}) (Quantity, bool) {
	switch q := v.(type) {
	case Quantity:
		return q, true
	case *Quantity:
		if q == nil {
			return Quantity{}, false
		}
		return *q, true
	default:
		return Quantity{}, false
	}
}

// AsFloat extracts a plain number from the numeric kinds produced by the
// JSON, YAML, CUE and Starlark decoders.
func AsFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Mul multiplies two operands that are each a plain number or a Quantity.
// Numbers multiply as numbers; a number times a quantity scales it.
func Mul(a, b interface{}) (interface{}, error) {
	return combine(a, b, "*")
}

// Div divides two operands that are each a plain number or a Quantity.
func Div(a, b interface{}) (interface{}, error) {
	return combine(a, b, "/")
}

func combine(a, b interface{}, op string) (interface{}, error) {
	qa, aq := AsQuantity(a)
	qb, bq := AsQuantity(b)
	fa, af := AsFloat(a)
	fb, bf := AsFloat(b)

	switch {
	case af && bf:
		if op == "*" {
			return fa * fb, nil
		}
		return fa / fb, nil
	case aq && bq:
		if op == "*" {
			return qa.Mul(qb), nil
		}
		return qa.Div(qb), nil
	case aq && bf:
		qb = Q(fb, Dimensionless)
	case af && bq:
		qa = Q(fa, Dimensionless)
	default:
		return nil, fmt.Errorf("unsupported operands %T %s %T", a, op, b)
	}

	if op == "*" {
		return qa.Mul(qb), nil
	}
	return qa.Div(qb), nil
}
