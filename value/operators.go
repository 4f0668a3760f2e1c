package value

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Epsilon is the tolerance used for Number comparisons and equality.
const Epsilon = 2.22e-16

// Sentinel errors returned by the operator functions below. The compiler
// maps these to diagnostic codes (DivisionByZero, ModuloByZero, ...) at the
// call site, where it has the source position to attach.
var (
	ErrDivisionByZero      = errors.New("division by zero")
	ErrModuloByZero        = errors.New("modulo by zero")
	ErrIncomparableTypes   = errors.New("incomparable types")
	ErrUnsupportedBinaryOp = errors.New("unsupported binary operation")
	ErrUnsupportedUnaryOp  = errors.New("unsupported unary operation")
	ErrInvalidType         = errors.New("invalid type coercion")
	ErrInvalidCast         = errors.New("invalid cast")
)

// Truthy reports a value's boolean coercion: Null is false, Boolean is
// itself, Number is |v|>epsilon, String is non-empty, and Array/Object/
// Function are always true (including when empty).
func Truthy(v Value) bool {
	switch t := v.(type) {
	case Null:
		return false
	case Boolean:
		return bool(t)
	case Number:
		return math.Abs(t.Value) > Epsilon
	case String:
		return len(t) > 0
	default:
		return true
	}
}

// Add implements arithmetic addition, string concatenation (if either side
// is a String), and array concatenation (Array + Array).
func Add(a, b Value) (Value, error) {
	if an, ok := a.(Number); ok {
		if bn, ok := b.(Number); ok {
			return Number{Value: an.Value + bn.Value, ForceFloat: an.ForceFloat || bn.ForceFloat}, nil
		}
	}
	if _, ok := a.(String); ok {
		return String(a.String() + b.String()), nil
	}
	if _, ok := b.(String); ok {
		return String(a.String() + b.String()), nil
	}
	if aa, ok := a.(*Array); ok {
		if ba, ok := b.(*Array); ok {
			out := make([]Value, 0, len(aa.Elements)+len(ba.Elements))
			out = append(out, aa.Elements...)
			out = append(out, ba.Elements...)
			return &Array{Elements: out}, nil
		}
	}
	return nil, ErrUnsupportedBinaryOp
}

func numericBinary(a, b Value, op func(x, y float64) (float64, error)) (Value, error) {
	an, aok := a.(Number)
	bn, bok := b.(Number)
	if !aok || !bok {
		return nil, ErrUnsupportedBinaryOp
	}
	r, err := op(an.Value, bn.Value)
	if err != nil {
		return nil, err
	}
	return Number{Value: r, ForceFloat: an.ForceFloat || bn.ForceFloat}, nil
}

func Sub(a, b Value) (Value, error) {
	return numericBinary(a, b, func(x, y float64) (float64, error) { return x - y, nil })
}

func Mul(a, b Value) (Value, error) {
	return numericBinary(a, b, func(x, y float64) (float64, error) { return x * y, nil })
}

func Div(a, b Value) (Value, error) {
	return numericBinary(a, b, func(x, y float64) (float64, error) {
		if y == 0 {
			return 0, ErrDivisionByZero
		}
		return x / y, nil
	})
}

func Mod(a, b Value) (Value, error) {
	return numericBinary(a, b, func(x, y float64) (float64, error) {
		if y == 0 {
			return 0, ErrModuloByZero
		}
		return math.Mod(x, y), nil
	})
}

// Negate implements unary minus on a Number.
func Negate(a Value) (Value, error) {
	n, ok := a.(Number)
	if !ok {
		return nil, ErrUnsupportedUnaryOp
	}
	return Number{Value: -n.Value, ForceFloat: n.ForceFloat}, nil
}

// Not implements unary logical negation via truthiness; never fails.
func Not(a Value) Value {
	return Boolean(!Truthy(a))
}

// Compare orders two values of the same comparable family: Number↔Number
// numerically, String↔String ordinally, Boolean↔Boolean (false<true).
// Any other pairing fails with ErrIncomparableTypes.
func Compare(a, b Value) (int, error) {
	switch x := a.(type) {
	case Number:
		y, ok := b.(Number)
		if !ok {
			return 0, ErrIncomparableTypes
		}
		switch {
		case math.Abs(x.Value-y.Value) <= Epsilon:
			return 0, nil
		case x.Value < y.Value:
			return -1, nil
		default:
			return 1, nil
		}
	case String:
		y, ok := b.(String)
		if !ok {
			return 0, ErrIncomparableTypes
		}
		return strings.Compare(string(x), string(y)), nil
	case Boolean:
		y, ok := b.(Boolean)
		if !ok {
			return 0, ErrIncomparableTypes
		}
		bx, by := boolToInt(bool(x)), boolToInt(bool(y))
		return bx - by, nil
	default:
		return 0, ErrIncomparableTypes
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Equal implements structural deep equality: Null equals Null, Numbers
// compare within Epsilon, Strings and Booleans compare directly, Arrays
// compare positionally, Objects compare order-independently by key set.
// It backs both the `==`/`!=` operators and switch-case matching, and is
// reflexive for every non-Function value.
func Equal(a, b Value) bool {
	return equalVisited(a, b, map[visitedPair]bool{})
}

type visitedPair struct {
	a, b Value
}

func equalVisited(a, b Value, visited map[visitedPair]bool) bool {
	switch x := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Boolean:
		y, ok := b.(Boolean)
		return ok && x == y
	case Number:
		y, ok := b.(Number)
		return ok && math.Abs(x.Value-y.Value) <= Epsilon
	case String:
		y, ok := b.(String)
		return ok && x == y
	case *Array:
		y, ok := b.(*Array)
		if !ok || len(x.Elements) != len(y.Elements) {
			return false
		}
		pair := visitedPair{a, b}
		if visited[pair] {
			return true // cycle: assume equal to terminate
		}
		visited[pair] = true
		for i := range x.Elements {
			if !equalVisited(x.Elements[i], y.Elements[i], visited) {
				return false
			}
		}
		return true
	case *Object:
		y, ok := b.(*Object)
		if !ok || len(x.keys) != len(y.keys) {
			return false
		}
		pair := visitedPair{a, b}
		if visited[pair] {
			return true
		}
		visited[pair] = true
		for _, k := range x.keys {
			yv, ok := y.GetPropertyLiteral(k)
			if !ok {
				return false
			}
			if !equalVisited(x.values[k], yv, visited) {
				return false
			}
		}
		return true
	default:
		// Function values are never equal, including to themselves.
		return false
	}
}

// CoerceTo implements the typed-`var` coercion table. hint is one
// of "number"|"string"|"boolean"|"array"|"object"|"null". Incompatible
// combinations fail with ErrInvalidType.
func CoerceTo(hint string, v Value) (Value, error) {
	switch hint {
	case "", "any":
		return v, nil
	case "number":
		switch t := v.(type) {
		case Number:
			return t, nil
		case String:
			f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
			if err != nil {
				return nil, ErrInvalidType
			}
			return NewFloat(f), nil
		case Boolean:
			if t {
				return NewInt(1), nil
			}
			return NewInt(0), nil
		default:
			return nil, ErrInvalidType
		}
	case "string":
		switch v.(type) {
		case Number, Boolean:
			return String(v.String()), nil
		case String:
			return v, nil
		default:
			return nil, ErrInvalidType
		}
	case "boolean":
		switch t := v.(type) {
		case Boolean:
			return t, nil
		case Number:
			return Boolean(math.Abs(t.Value) > Epsilon), nil
		case String:
			switch strings.ToLower(string(t)) {
			case "true":
				return Boolean(true), nil
			case "false":
				return Boolean(false), nil
			default:
				return nil, ErrInvalidType
			}
		default:
			return nil, ErrInvalidType
		}
	case "array":
		if _, ok := v.(*Array); ok {
			return v, nil
		}
		return nil, ErrInvalidType
	case "object":
		if _, ok := v.(*Object); ok {
			return v, nil
		}
		return nil, ErrInvalidType
	case "null":
		if _, ok := v.(Null); ok {
			return v, nil
		}
		return nil, ErrInvalidType
	default:
		return v, nil
	}
}

// TypeName returns the lowercase type-check name used by `is`/`is not`:
// the value's Kind as a string ("function" for every callable value).
func TypeName(v Value) string {
	return string(v.Kind())
}
