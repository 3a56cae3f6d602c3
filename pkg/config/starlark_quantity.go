package config

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/camia/aviation/pkg/units"
)

// Quantity is the Starlark representation of units.Quantity. It supports
// the arithmetic operators, unary minus, comparison between quantities of
// the same unit, and the attributes "value" and "unit".
type Quantity struct {
	q units.Quantity
}

var (
	_ starlark.HasBinary  = Quantity{}
	_ starlark.HasUnary   = Quantity{}
	_ starlark.HasAttrs   = Quantity{}
	_ starlark.Comparable = Quantity{}
)

// NewQuantity wraps q as a Starlark value.
func NewQuantity(q units.Quantity) Quantity { return Quantity{q: q} }

// Quantity returns the wrapped value.
func (s Quantity) Quantity() units.Quantity { return s.q }

func (s Quantity) String() string        { return s.q.String() }
func (s Quantity) Type() string          { return "quantity" }
func (s Quantity) Freeze()               {}
func (s Quantity) Truth() starlark.Bool  { return s.q.Value != 0 }
func (s Quantity) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: quantity") }

// Attr implements starlark.HasAttrs.
func (s Quantity) Attr(name string) (starlark.Value, error) {
	switch name {
	case "value":
		return starlark.Float(s.q.Value), nil
	case "unit":
		return starlark.String(s.q.Unit.String()), nil
	}
	return nil, nil
}

// AttrNames implements starlark.HasAttrs.
func (s Quantity) AttrNames() []string { return []string{"unit", "value"} }

// Unary implements starlark.HasUnary.
func (s Quantity) Unary(op syntax.Token) (starlark.Value, error) {
	switch op {
	case syntax.MINUS:
		return Quantity{q: s.q.Scale(-1)}, nil
	case syntax.PLUS:
		return s, nil
	}
	return nil, nil
}

// Binary implements starlark.HasBinary. A nil, nil result tells the
// interpreter the operation is unsupported.
func (s Quantity) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	other, ok := operand(y)
	if !ok {
		return nil, nil
	}

	var left, right interface{} = s.q, other
	if side == starlark.Right {
		left, right = other, s.q
	}

	var (
		result interface{}
		err    error
	)
	switch op {
	case syntax.STAR:
		result, err = units.Mul(left, right)
	case syntax.SLASH:
		result, err = units.Div(left, right)
	case syntax.PLUS, syntax.MINUS:
		result, err = addSub(op, asQuantity(left), asQuantity(right))
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromGoNumber(result), nil
}

// CompareSameType implements starlark.Comparable.
func (s Quantity) CompareSameType(op syntax.Token, y starlark.Value, depth int) (bool, error) {
	o := y.(Quantity).q
	if !s.q.Unit.Equal(o.Unit) {
		return false, fmt.Errorf("cannot compare %s with %s", s.q.Unit, o.Unit)
	}
	a, b := s.q.Value, o.Value
	switch op {
	case syntax.EQL:
		return a == b, nil
	case syntax.NEQ:
		return a != b, nil
	case syntax.LT:
		return a < b, nil
	case syntax.LE:
		return a <= b, nil
	case syntax.GT:
		return a > b, nil
	case syntax.GE:
		return a >= b, nil
	}
	return false, fmt.Errorf("unsupported comparison %s", op)
}

// operand converts the other side of a binary expression.
func operand(v starlark.Value) (interface{}, bool) {
	switch x := v.(type) {
	case Quantity:
		return x.q, true
	case starlark.Int, starlark.Float:
		f, ok := starlark.AsFloat(x)
		return f, ok
	}
	return nil, false
}

// asQuantity treats a plain number as a dimensionless quantity.
func asQuantity(v interface{}) units.Quantity {
	if q, ok := units.AsQuantity(v); ok {
		return q
	}
	f, _ := units.AsFloat(v)
	return units.Q(f, units.Dimensionless)
}

func addSub(op syntax.Token, a, b units.Quantity) (interface{}, error) {
	if op == syntax.PLUS {
		return a.Add(b)
	}
	return a.Sub(b)
}

// fromGoNumber converts a units arithmetic result back to Starlark.
func fromGoNumber(v interface{}) starlark.Value {
	if q, ok := units.AsQuantity(v); ok {
		return Quantity{q: q}
	}
	f, _ := units.AsFloat(v)
	return starlark.Float(f)
}

// builtinQuantity implements quantity(value, unit="").
func builtinQuantity(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		value starlark.Value
		unit  string
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &value, "unit?", &unit); err != nil {
		return nil, err
	}

	f, ok := starlark.AsFloat(value)
	if !ok {
		return nil, fmt.Errorf("%s: value must be a number, got %s", b.Name(), value.Type())
	}
	u, err := units.Parse(unit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return Quantity{q: units.Q(f, u)}, nil
}
