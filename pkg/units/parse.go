package units

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Parse reads a unit expression such as "passenger/year" or
// "journey/(aircraft*day)". Bases are identifiers; "*" and "/" are left
// associative; "^n" raises the preceding term to an integer power.
// The empty string, "1" and "dimensionless" all denote Dimensionless.
func Parse(s string) (Unit, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "dimensionless" {
		return Dimensionless, nil
	}

	p := &parser{input: s}
	if err := p.tokenize(); err != nil {
		return Unit{}, err
	}
	u, err := p.expr()
	if err != nil {
		return Unit{}, err
	}
	if p.pos != len(p.tokens) {
		return Unit{}, fmt.Errorf("unit %q: unexpected %q", s, p.tokens[p.pos])
	}
	return u, nil
}

// MustParse is like Parse but panics on error. Intended for package-level
// unit declarations.
func MustParse(s string) Unit {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

type parser struct {
	input  string
	tokens []string
	pos    int
}

func (p *parser) tokenize() error {
	runes := []rune(p.input)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case strings.ContainsRune("*/()^", r):
			p.tokens = append(p.tokens, string(r))
			i++
		case r == '-' || unicode.IsDigit(r):
			j := i + 1
			for j < len(runes) && unicode.IsDigit(runes[j]) {
				j++
			}
			p.tokens = append(p.tokens, string(runes[i:j]))
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i + 1
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			p.tokens = append(p.tokens, string(runes[i:j]))
			i = j
		default:
			return fmt.Errorf("unit %q: invalid character %q", p.input, r)
		}
	}
	return nil
}

func (p *parser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *parser) next() string {
	tok := p.peek()
	p.pos++
	return tok
}

// expr := term (("*" | "/") term)*
func (p *parser) expr() (Unit, error) {
	u, err := p.term()
	if err != nil {
		return Unit{}, err
	}
	for {
		switch p.peek() {
		case "*":
			p.next()
			rhs, err := p.term()
			if err != nil {
				return Unit{}, err
			}
			u = u.Mul(rhs)
		case "/":
			p.next()
			rhs, err := p.term()
			if err != nil {
				return Unit{}, err
			}
			u = u.Div(rhs)
		default:
			return u, nil
		}
	}
}

// term := atom ("^" integer)?
func (p *parser) term() (Unit, error) {
	u, err := p.atom()
	if err != nil {
		return Unit{}, err
	}
	if p.peek() != "^" {
		return u, nil
	}
	p.next()
	tok := p.next()
	n, err := strconv.Atoi(tok)
	if err != nil {
		return Unit{}, fmt.Errorf("unit %q: invalid exponent %q", p.input, tok)
	}
	return u.Pow(n), nil
}

// atom := identifier | "1" | "(" expr ")"
func (p *parser) atom() (Unit, error) {
	tok := p.next()
	switch {
	case tok == "":
		return Unit{}, fmt.Errorf("unit %q: unexpected end of expression", p.input)
	case tok == "(":
		u, err := p.expr()
		if err != nil {
			return Unit{}, err
		}
		if p.next() != ")" {
			return Unit{}, fmt.Errorf("unit %q: missing closing parenthesis", p.input)
		}
		return u, nil
	case tok == "1":
		return Dimensionless, nil
	case tok == "dimensionless":
		return Dimensionless, nil
	case unicode.IsLetter([]rune(tok)[0]) || tok[0] == '_':
		return New(tok), nil
	default:
		return Unit{}, fmt.Errorf("unit %q: unexpected %q", p.input, tok)
	}
}
