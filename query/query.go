// Package query implements strongly-typed URL query item declarations and
// the heterogeneous item-group tuple that a Response declaration carries.
//
// The ten-item arity cap of the source language this model was distilled
// from is a source-language artifact (see SPEC_FULL.md §1). This package
// lifts it entirely: Append grows a Group's value type without bound by
// nesting Pair, and Map / FlatMap collapse the tuple to a single value at
// any point so further Append / Map / FlatMap calls can keep chaining.
package query

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// Result is the outcome of classifying one query item: either Accepted with
// a value, or Rejected.
type Result[T any] struct {
	ok    bool
	value T
}

// Accepted returns a Result holding v.
func Accepted[T any](v T) Result[T] {
	return Result[T]{ok: true, value: v}
}

// Rejected returns a rejected Result.
func Rejected[T any]() Result[T] {
	return Result[T]{}
}

// Get reports whether the Result was accepted and, if so, its value.
func (r Result[T]) Get() (T, bool) {
	return r.value, r.ok
}

// Item is a single query-parameter declaration.
type Item[T any] struct {
	// Name is the query parameter name.
	Name string

	// Required indicates the item must be present (and Accepted) for a
	// candidate using it to match.
	Required bool

	// Classify parses the raw value (nil when the parameter is absent)
	// into Accepted(T) or Rejected.
	Classify func(raw *string) Result[T]
}

// Required declares a required string item: present, any value.
func Required(name string) Item[string] {
	return Item[string]{
		Name:     name,
		Required: true,
		Classify: func(raw *string) Result[string] {
			if raw == nil {
				return Rejected[string]()
			}
			return Accepted(*raw)
		},
	}
}

// RequiredParsed declares a required item whose raw value is parsed by
// parse. A parse error rejects the item.
func RequiredParsed[T any](name string, parse func(string) (T, error)) Item[T] {
	return Item[T]{
		Name:     name,
		Required: true,
		Classify: func(raw *string) Result[T] {
			if raw == nil {
				return Rejected[T]()
			}
			v, err := parse(*raw)
			if err != nil {
				return Rejected[T]()
			}
			return Accepted(v)
		},
	}
}

// Optional declares an optional string item. Its value type is *string:
// nil when absent.
func Optional(name string) Item[*string] {
	return Item[*string]{
		Name:     name,
		Required: false,
		Classify: func(raw *string) Result[*string] {
			return Accepted(raw)
		},
	}
}

// OptionalParsed declares an optional item whose raw value, when present,
// is parsed by parse. A parse error rejects the item (optional does not
// mean "tolerate garbage"; it means "tolerate absence").
func OptionalParsed[T any](name string, parse func(string) (T, error)) Item[*T] {
	return Item[*T]{
		Name:     name,
		Required: false,
		Classify: func(raw *string) Result[*T] {
			if raw == nil {
				return Accepted[*T](nil)
			}
			v, err := parse(*raw)
			if err != nil {
				return Rejected[*T]()
			}
			return Accepted(&v)
		},
	}
}

// Void declares an item that only matches when the parameter is entirely
// absent from the query.
func Void(name string) Item[struct{}] {
	return Item[struct{}]{
		Name:     name,
		Required: false,
		Classify: func(raw *string) Result[struct{}] {
			if raw != nil {
				return Rejected[struct{}]()
			}
			return Accepted(struct{}{})
		},
	}
}

// Bool declares a presence-as-flag boolean item. See the classification
// table in SPEC_FULL.md / spec.md §4.2: absence is false; "true", "TRUE",
// "True", "yes", "YES", "Yes", "1", and the empty string are true;
// "false", "FALSE", "False", "no", "NO", "No", "0" are false; anything
// else is Rejected.
//
// Whether the empty string should be treated as truthy was an explicit
// open question in the source (see SPEC_FULL.md / spec.md §9): the source
// lists it among the truthy mappings, and this implementation preserves
// that exactly.
func Bool(name string) Item[bool] {
	return Item[bool]{
		Name:     name,
		Required: false,
		Classify: func(raw *string) Result[bool] {
			if raw == nil {
				return Accepted(false)
			}
			switch *raw {
			case "true", "TRUE", "True", "yes", "YES", "Yes", "1", "":
				return Accepted(true)
			case "false", "FALSE", "False", "no", "NO", "No", "0":
				return Accepted(false)
			}
			return Rejected[bool]()
		},
	}
}

// Int declares a required item parsed as a base-10 int.
func Int(name string) Item[int] {
	return RequiredParsed(name, func(s string) (int, error) {
		return strconv.Atoi(s)
	})
}

// Float64 declares a required item parsed as a float64.
func Float64(name string) Item[float64] {
	return RequiredParsed(name, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// decimalCommaRegion is the set of BCP 47 regions whose customary decimal
// separator is a comma rather than a period (the locales x/text/language's
// CLDR data marks as comma-decimal in common usage).
var decimalCommaRegion = map[string]bool{
	"DE": true, "FR": true, "ES": true, "IT": true, "NL": true,
	"PT": true, "RU": true, "PL": true, "SE": true, "FI": true,
	"BR": true, "TR": true, "DK": true, "NO": true, "CZ": true,
}

// RequiredDecimal declares a required item parsed as a float64 using the
// decimal separator customary to tag's region (comma for most of
// continental Europe and Brazil, period otherwise), so a query like
// ?price=12,50 classifies correctly against a de-DE caller without the
// response declaration hand-rolling its own separator table.
func RequiredDecimal(name string, tag language.Tag) Item[float64] {
	_, _, region := tag.Raw()
	comma := decimalCommaRegion[region.String()]
	return RequiredParsed(name, func(s string) (float64, error) {
		if comma {
			s = strings.Replace(s, ".", "", -1)
			s = strings.Replace(s, ",", ".", 1)
		}
		return strconv.ParseFloat(s, 64)
	})
}
