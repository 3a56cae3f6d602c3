package units

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// factor is one named base unit raised to a non-zero integer power.
type factor struct {
	base string
	exp  int
}

// Unit is a product of named base units with integer exponents.
// The zero value is the dimensionless unit.
type Unit struct {
	factors []factor
}

// Base units used by the aviation model. Named units such as passenger
// or aircraft are dimensionless in the physical sense but are tracked as
// separate bases so unit annotations catch swapped arguments.
var (
	Dimensionless = Unit{}
	Passenger     = New("passenger")
	Aircraft      = New("aircraft")
	Journey       = New("journey")
	Day           = New("day")
	Year          = New("year")
)

// New returns the unit consisting of a single base raised to the first power.
func New(base string) Unit {
	return Unit{factors: []factor{{base: base, exp: 1}}}
}

// fromExponents builds a normalized unit from a base->exponent map.
func fromExponents(exps map[string]int) Unit {
	factors := make([]factor, 0, len(exps))
	for base, exp := range exps {
		if exp != 0 {
			factors = append(factors, factor{base: base, exp: exp})
		}
	}
	sort.Slice(factors, func(i, j int) bool { return factors[i].base < factors[j].base })
	if len(factors) == 0 {
		return Unit{}
	}
	return Unit{factors: factors}
}

func (u Unit) exponents() map[string]int {
	exps := make(map[string]int, len(u.factors))
	for _, f := range u.factors {
		exps[f.base] += f.exp
	}
	return exps
}

// Mul returns u*o.
func (u Unit) Mul(o Unit) Unit {
	exps := u.exponents()
	for _, f := range o.factors {
		exps[f.base] += f.exp
	}
	return fromExponents(exps)
}

// Div returns u/o.
func (u Unit) Div(o Unit) Unit {
	return u.Mul(o.Inverse())
}

// Inverse returns 1/u.
func (u Unit) Inverse() Unit {
	return u.Pow(-1)
}

// Pow raises every base of u to n.
func (u Unit) Pow(n int) Unit {
	exps := u.exponents()
	for base := range exps {
		exps[base] *= n
	}
	return fromExponents(exps)
}

// Equal reports whether u and o have identical bases and exponents.
func (u Unit) Equal(o Unit) bool {
	if len(u.factors) != len(o.factors) {
		return false
	}
	for i := range u.factors {
		if u.factors[i] != o.factors[i] {
			return false
		}
	}
	return true
}

// IsDimensionless reports whether u has no bases.
func (u Unit) IsDimensionless() bool {
	return len(u.factors) == 0
}

// String renders u as "passenger/day" or "journey/(aircraft*day)".
func (u Unit) String() string {
	if u.IsDimensionless() {
		return "dimensionless"
	}

	var num, den []string
	for _, f := range u.factors {
		switch {
		case f.exp == 1:
			num = append(num, f.base)
		case f.exp > 1:
			num = append(num, f.base+"^"+strconv.Itoa(f.exp))
		case f.exp == -1:
			den = append(den, f.base)
		default:
			den = append(den, f.base+"^"+strconv.Itoa(-f.exp))
		}
	}

	numerator := "1"
	if len(num) > 0 {
		numerator = strings.Join(num, "*")
	}
	switch len(den) {
	case 0:
		return numerator
	case 1:
		return numerator + "/" + den[0]
	default:
		return numerator + "/(" + strings.Join(den, "*") + ")"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (u Unit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Unit) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Check verifies that value is a Quantity expressed in u. It lets a Unit
// serve as a parameter or result annotation on a transform.
func (u Unit) Check(value interface{}) error {
	q, ok := AsQuantity(value)
	if !ok {
		return fmt.Errorf("expected a quantity in %s, got %T", u, value)
	}
	if !q.Unit.Equal(u) {
		return fmt.Errorf("expected unit %s, got %s", u, q.Unit)
	}
	return nil
}
