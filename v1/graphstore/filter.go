package graphstore

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Metadata filters are maps from metadata key to the wanted value. Every key
// must match. Backends agree on these rules:
//
//   - string and bool values match by equality;
//   - integral numbers match regardless of their Go type, so 2020, int64(2020)
//     and float64(2020) are the same filter;
//   - []string, []int and []int64 match when the stored value is any of them;
//   - a stored list matches when any of its elements matches;
//   - Not{Value} matches when the stored value does not match Value, which
//     includes nodes without the key.
//
// Anything else, including non-integral numbers, fails with
// ErrUnsupportedFilter.

// Not negates a metadata filter value.
//
//	store.SimilaritySearch(ctx, q, 4, map[string]any{"lang": graphstore.Not{Value: "de"}})
type Not struct {
	Value any
}

// int64 bounds as float64; 1<<63 is exact.
const (
	minInt64Float = -float64(1 << 63)
	maxInt64Float = float64(1 << 63)
)

// ValidateFilter reports the first filter value no backend can evaluate.
func ValidateFilter(filter map[string]any) error {
	for k, v := range filter {
		if err := validateFilterValue(k, v, false); err != nil {
			return err
		}
	}
	return nil
}

func validateFilterValue(key string, v any, negated bool) error {
	switch val := v.(type) {
	case string, bool, []string:
		return nil
	case Not:
		if negated {
			return fmt.Errorf("%w: %s nests Not", ErrUnsupportedFilter, key)
		}
		return validateFilterValue(key, val.Value, true)
	}

	if _, ok := IntegralValues(v); ok {
		return nil
	}
	if _, ok := IntegralValue(v); ok {
		return nil
	}
	if isNumber(v) {
		return fmt.Errorf("%w: %s=%v is not an integral number within int64 range", ErrUnsupportedFilter, key, v)
	}
	return fmt.Errorf("%w: %s has type %T", ErrUnsupportedFilter, key, v)
}

// MatchesFilter reports whether metadata satisfies filter. Unsupported filter
// values never match; use ValidateFilter to surface them as errors.
func MatchesFilter(metadata, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if not, negated := want.(Not); negated {
			if ok && valueMatches(got, not.Value) {
				return false
			}
			continue
		}
		if !ok || !valueMatches(got, want) {
			return false
		}
	}
	return true
}

func valueMatches(got, want any) bool {
	for _, w := range alternatives(want) {
		for _, g := range elements(got) {
			if scalarEqual(g, w) {
				return true
			}
		}
	}
	return false
}

// alternatives expands a match-any filter value.
func alternatives(want any) []any {
	switch w := want.(type) {
	case []string:
		out := make([]any, len(w))
		for i, s := range w {
			out[i] = s
		}
		return out
	}
	if ints, ok := IntegralValues(want); ok {
		out := make([]any, len(ints))
		for i, n := range ints {
			out[i] = n
		}
		return out
	}
	return []any{want}
}

// elements expands a stored list; scalars are returned as is.
func elements(got any) []any {
	rv := reflect.ValueOf(got)
	if rv.Kind() != reflect.Slice {
		return []any{got}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func scalarEqual(got, want any) bool {
	switch w := want.(type) {
	case string:
		g, ok := got.(string)
		return ok && g == w
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	}

	wn, ok := IntegralValue(want)
	if !ok {
		return false
	}
	gn, ok := IntegralValue(got)
	return ok && gn == wn
}

// IntegralValue converts any Go integer, an integral float within int64 range
// or a json.Number to int64.
func IntegralValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return uintValue(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return uintValue(n)
	case float32:
		return floatValue(float64(n))
	case float64:
		return floatValue(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return floatValue(f)
		}
	}
	return 0, false
}

// IntegralValues converts []int and []int64 filter lists.
func IntegralValues(v any) ([]int64, bool) {
	switch n := v.(type) {
	case []int64:
		return n, true
	case []int:
		out := make([]int64, len(n))
		for i, x := range n {
			out[i] = int64(x)
		}
		return out, true
	}
	return nil, false
}

func uintValue(n uint64) (int64, bool) {
	if n > math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

func floatValue(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < minInt64Float || f >= maxInt64Float {
		return 0, false
	}
	return int64(f), true
}

func isNumber(v any) bool {
	switch v.(type) {
	case float32, float64, uint, uint64, json.Number:
		return true
	}
	return false
}
