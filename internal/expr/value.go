// Package expr is the expression evaluator: a small dynamic language over
// stock fields, report fields, fundamentals and dynamic tables, in the
// shape design note §9 calls for — "a static table of records plus a
// function that selects by name", with the evaluator itself staying a thin
// driver over that table.
package expr

import (
	"fmt"
	"math"
	"strings"
)

// Kind tags the shape of a Value.
type Kind int

const (
	KindNumber Kind = iota
	KindString
	KindBool
	KindList
	KindPair
)

// Value is the evaluator's tagged-union result type. A bare scalar is
// either a Number, a String (the language calls these "symbols") or a Bool;
// a List holds zero or more Values, often Pairs, produced by S(...,"ALL"),
// F() on an array/object, R() over a report's titles, or TABLE() rows.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Bool bool
	List []Value

	PairKey string
	PairVal *Value
}

// Number wraps a float64 scalar.
func Number(v float64) Value { return Value{Kind: KindNumber, Num: v} }

// String wraps a bareword/string scalar.
func String(v string) Value { return Value{Kind: KindString, Str: v} }

// Boolean wraps a TRUE/FALSE literal.
func Boolean(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// List wraps a slice of Values.
func List(vs []Value) Value { return Value{Kind: KindList, List: vs} }

// Pair wraps a (key, value) association, the shape S(...,"ALL") and F()
// on an object both return elements as.
func Pair(key string, val Value) Value {
	v := val
	return Value{Kind: KindPair, PairKey: key, PairVal: &v}
}

// NaN is the canonical "field unavailable" numeric result.
func NaN() Value { return Number(math.NaN()) }

// Truthy implements the rule: TRUE, numeric non-zero & finite, a symbol
// other than "false" (case-insensitive), or a non-empty set whose elements
// are all truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num != 0 && !math.IsNaN(v.Num) && !math.IsInf(v.Num, 0)
	case KindString:
		return !strings.EqualFold(v.Str, "false")
	case KindPair:
		if v.PairVal == nil {
			return false
		}
		return v.PairVal.Truthy()
	case KindList:
		if len(v.List) == 0 {
			return false
		}
		for _, e := range v.List {
			if !e.Truthy() {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// AsNumber coerces v to a float64, parsing numeric strings and mapping
// bools to 0/1. A pair coerces its value; non-numeric strings and all lists
// return NaN.
func (v Value) AsNumber() float64 {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindBool:
		if v.Bool {
			return 1
		}
		return 0
	case KindString:
		var f float64
		if _, err := fmt.Sscanf(v.Str, "%g", &f); err == nil {
			return f
		}
		return math.NaN()
	case KindPair:
		if v.PairVal == nil {
			return math.NaN()
		}
		return v.PairVal.AsNumber()
	default:
		return math.NaN()
	}
}

// AsString renders v as the language's string form.
func (v Value) AsString() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return fmt.Sprintf("%g", v.Num)
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindPair:
		if v.PairVal == nil {
			return v.PairKey
		}
		return v.PairVal.AsString()
	case KindList:
		parts := make([]string, len(v.List))
		for i, e := range v.List {
			parts[i] = e.AsString()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return ""
	}
}

// Flatten collects every numeric leaf under v (recursing through lists and
// pairs), the way MAX/MIN/AVG/COUNT consume a result set.
func (v Value) Flatten() []float64 {
	switch v.Kind {
	case KindNumber:
		return []float64{v.Num}
	case KindPair:
		if v.PairVal == nil {
			return nil
		}
		return v.PairVal.Flatten()
	case KindList:
		out := make([]float64, 0, len(v.List))
		for _, e := range v.List {
			out = append(out, e.Flatten()...)
		}
		return out
	case KindBool:
		return []float64{v.AsNumber()}
	default:
		return nil
	}
}
