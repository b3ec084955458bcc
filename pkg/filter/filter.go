// Package filter provides typed document filters decoded from a JSON wire
// format discriminated by "kind".
//
//	[
//	  {"kind": "terms", "field": "source", "values": ["reuters", "ap"]},
//	  {"kind": "range", "field": "score", "min": 0.5},
//	  {"kind": "text",  "field": "title", "contains": "flood", "not": true}
//	]
package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates filter variants on the wire.
type Kind string

const (
	KindTerms Kind = "terms"
	KindRange Kind = "range"
	KindText  Kind = "text"
)

var (
	ErrUnknownKind = errors.New("filter: unknown kind")
	ErrNoField     = errors.New("filter: field is required")
	ErrInvalid     = errors.New("filter: invalid filter")
)

// Record is anything filters can be evaluated against.
type Record interface {
	Lookup(field string) (any, bool)
}

// Filter is implemented only by Terms, Range and Text.
type Filter interface {
	Kind() Kind
	Field() string
	Match(r Record) bool
	Validate() error
	sealed()
}

// Terms matches when the field's value, or any element of a list value,
// equals one of Values.
type Terms struct {
	FieldName string
	Values    []string
	Not       bool
}

func (Terms) Kind() Kind { return KindTerms }
func (f Terms) Field() string { return f.FieldName }
func (Terms) sealed() {}

func (f Terms) Validate() error {
	if f.FieldName == "" {
		return ErrNoField
	}
	if len(f.Values) == 0 {
		return fmt.Errorf("%w: terms on %q needs at least one value", ErrInvalid, f.FieldName)
	}
	return nil
}

func (f Terms) Match(r Record) bool {
	v, ok := r.Lookup(f.FieldName)
	hit := ok && anyString(v, func(s string) bool {
		for _, want := range f.Values {
			if s == want {
				return true
			}
		}
		return false
	})
	return hit != f.Not
}

// Range matches numeric values within [Min, Max]; a nil bound is open.
type Range struct {
	FieldName string
	Min       *float64
	Max       *float64
	Not       bool
}

func (Range) Kind() Kind { return KindRange }
func (f Range) Field() string { return f.FieldName }
func (Range) sealed() {}

func (f Range) Validate() error {
	if f.FieldName == "" {
		return ErrNoField
	}
	if f.Min == nil && f.Max == nil {
		return fmt.Errorf("%w: range on %q needs min or max", ErrInvalid, f.FieldName)
	}
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return fmt.Errorf("%w: range on %q has min > max", ErrInvalid, f.FieldName)
	}
	return nil
}

func (f Range) Match(r Record) bool {
	hit := false
	if v, ok := r.Lookup(f.FieldName); ok {
		if n, ok := toFloat(v); ok {
			hit = (f.Min == nil || n >= *f.Min) && (f.Max == nil || n <= *f.Max)
		}
	}
	return hit != f.Not
}

// Text matches string values containing Contains, case-insensitively.
type Text struct {
	FieldName string
	Contains  string
	Not       bool
}

func (Text) Kind() Kind { return KindText }
func (f Text) Field() string { return f.FieldName }
func (Text) sealed() {}

func (f Text) Validate() error {
	if f.FieldName == "" {
		return ErrNoField
	}
	if strings.TrimSpace(f.Contains) == "" {
		return fmt.Errorf("%w: text on %q needs a non-empty needle", ErrInvalid, f.FieldName)
	}
	return nil
}

func (f Text) Match(r Record) bool {
	v, ok := r.Lookup(f.FieldName)
	needle := strings.ToLower(f.Contains)
	hit := ok && anyString(v, func(s string) bool {
		return strings.Contains(strings.ToLower(s), needle)
	})
	return hit != f.Not
}

// MatchAll reports whether r satisfies every filter. No filters match all.
func MatchAll(r Record, filters []Filter) bool {
	for _, f := range filters {
		if !f.Match(r) {
			return false
		}
	}
	return true
}

// wire is the JSON shape shared by all kinds.
type wire struct {
	Kind     Kind     `json:"kind"`
	Field    string   `json:"field"`
	Values   []string `json:"values,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Contains string   `json:"contains,omitempty"`
	Not      bool     `json:"not,omitempty"`
}

// Parse decodes and validates a JSON array of filters.
func Parse(data []byte) ([]Filter, error) {
	var raw []wire
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("filter: decode: %w", err)
	}

	filters := make([]Filter, 0, len(raw))
	for i, w := range raw {
		var f Filter
		switch w.Kind {
		case KindTerms:
			f = Terms{FieldName: w.Field, Values: w.Values, Not: w.Not}
		case KindRange:
			f = Range{FieldName: w.Field, Min: w.Min, Max: w.Max, Not: w.Not}
		case KindText:
			f = Text{FieldName: w.Field, Contains: w.Contains, Not: w.Not}
		default:
			return nil, fmt.Errorf("filter %d: %w %q", i, ErrUnknownKind, w.Kind)
		}
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// Marshal encodes filters in the wire format accepted by Parse.
func Marshal(filters []Filter) ([]byte, error) {
	out := make([]wire, 0, len(filters))
	for _, f := range filters {
		switch v := f.(type) {
		case Terms:
			out = append(out, wire{Kind: KindTerms, Field: v.FieldName, Values: v.Values, Not: v.Not})
		case Range:
			out = append(out, wire{Kind: KindRange, Field: v.FieldName, Min: v.Min, Max: v.Max, Not: v.Not})
		case Text:
			out = append(out, wire{Kind: KindText, Field: v.FieldName, Contains: v.Contains, Not: v.Not})
		}
	}
	return json.Marshal(out)
}

func anyString(v any, pred func(string) bool) bool {
	switch t := v.(type) {
	case string:
		return pred(t)
	case []string:
		for _, s := range t {
			if pred(s) {
				return true
			}
		}
	case []any:
		for _, e := range t {
			if anyString(e, pred) {
				return true
			}
		}
	case fmt.Stringer:
		return pred(t.String())
	case float64:
		return pred(strconv.FormatFloat(t, 'f', -1, 64))
	case int:
		return pred(strconv.Itoa(t))
	case bool:
		return pred(strconv.FormatBool(t))
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}
