package qdrant

import (
	"fmt"
	"sort"
	"strings"

	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/Aleph-Alpha/endpoint-embeddings/v1/graphstore"
)

// MetadataPayloadPrefix is the payload key node metadata is nested under.
const MetadataPayloadPrefix = payloadMetadata

// ErrUnsupportedFilter is graphstore.ErrUnsupportedFilter, returned for
// filter values neither backend can evaluate.
var ErrUnsupportedFilter = graphstore.ErrUnsupportedFilter

// FilterCondition is the interface for all filter conditions.
type FilterCondition interface {
	ToQdrantCondition() []*qdrant.Condition
}

// FieldType indicates whether a field is a node field or node metadata.
type FieldType int

const (
	// InternalField - fields the adapter manages, stored at top level.
	InternalField FieldType = iota
	// MetadataField - node metadata, stored under the "metadata." prefix.
	MetadataField
)

type MatchCondition[T comparable] struct {
	Key       string
	Value     T
	FieldType FieldType
}

func (c MatchCondition[T]) ToQdrantCondition() []*qdrant.Condition {
	key := resolveFieldKey(c.Key, c.FieldType)
	switch v := any(c.Value).(type) {
	case string:
		return []*qdrant.Condition{qdrant.NewMatch(key, v)}
	case bool:
		return []*qdrant.Condition{qdrant.NewMatchBool(key, v)}
	case int64:
		return []*qdrant.Condition{qdrant.NewMatchInt(key, v)}
	default:
		return nil
	}
}

// MatchAnyCondition matches if the value is one of Values (IN operator).
// For array payloads it matches when any element is one of Values.
type MatchAnyCondition[T string | int64] struct {
	Key       string
	Values    []T
	FieldType FieldType
}

func (c MatchAnyCondition[T]) ToQdrantCondition() []*qdrant.Condition {
	if len(c.Values) == 0 {
		return nil
	}
	key := resolveFieldKey(c.Key, c.FieldType)
	switch v := any(c.Values).(type) {
	case []string:
		return []*qdrant.Condition{qdrant.NewMatchKeywords(key, v...)}
	case []int64:
		return []*qdrant.Condition{qdrant.NewMatchInts(key, v...)}
	default:
		return nil
	}
}

type TextCondition = MatchCondition[string]
type BoolCondition = MatchCondition[bool]
type IntCondition = MatchCondition[int64]
type TextAnyCondition = MatchAnyCondition[string]
type IntAnyCondition = MatchAnyCondition[int64]

// resolveFieldKey returns the full payload path.
// Internal fields: "node_id" -> "node_id"
// Metadata fields: "source" -> "metadata.source"
func resolveFieldKey(key string, fieldType FieldType) string {
	if fieldType == MetadataField {
		if strings.HasPrefix(key, MetadataPayloadPrefix+".") {
			return key
		}
		return MetadataPayloadPrefix + "." + key
	}
	return key
}

// ConditionSet holds conditions for a single clause.
type ConditionSet struct {
	Conditions []FilterCondition
}

// FilterSet supports Must (AND) and MustNot (NOT) clauses.
//
// Example:
//
//	filters := &FilterSet{
//	    Must: &ConditionSet{
//	        Conditions: []FilterCondition{
//	            TextCondition{Key: "source", Value: "wiki", FieldType: MetadataField},
//	        },
//	    },
//	}
type FilterSet struct {
	Must    *ConditionSet // AND - all conditions must match
	MustNot *ConditionSet // NOT - none of the conditions should match
}

// And appends conditions to the Must clause and returns fs.
func (fs *FilterSet) And(conds ...FilterCondition) *FilterSet {
	if fs.Must == nil {
		fs.Must = &ConditionSet{}
	}
	fs.Must.Conditions = append(fs.Must.Conditions, conds...)
	return fs
}

// AndNot appends conditions to the MustNot clause and returns fs.
func (fs *FilterSet) AndNot(conds ...FilterCondition) *FilterSet {
	if fs.MustNot == nil {
		fs.MustNot = &ConditionSet{}
	}
	fs.MustNot.Conditions = append(fs.MustNot.Conditions, conds...)
	return fs
}

// buildFilter constructs a Qdrant filter from a FilterSet, or nil when it
// has no conditions.
func buildFilter(filters *FilterSet) *qdrant.Filter {
	if filters == nil {
		return nil
	}

	filter := &qdrant.Filter{}

	if filters.Must != nil {
		filter.Must = buildConditions(filters.Must)
	}
	if filters.MustNot != nil {
		filter.MustNot = buildConditions(filters.MustNot)
	}

	if len(filter.Must) == 0 && len(filter.MustNot) == 0 {
		return nil
	}

	return filter
}

func buildConditions(cs *ConditionSet) []*qdrant.Condition {
	if cs == nil {
		return nil
	}

	var conditions []*qdrant.Condition
	for _, c := range cs.Conditions {
		conditions = append(conditions, c.ToQdrantCondition()...)
	}
	return conditions
}

// MetadataFilter turns a graphstore metadata filter into a FilterSet.
// Values follow graphstore.MatchesFilter: scalars and lists become Must
// conditions and graphstore.Not values become MustNot conditions. Keys are
// applied in sorted order so the resulting filter is deterministic.
func MetadataFilter(filter map[string]any) (*FilterSet, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	if err := graphstore.ValidateFilter(filter); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fs := &FilterSet{}
	for _, k := range keys {
		value := filter[k]
		not, negated := value.(graphstore.Not)
		if negated {
			value = not.Value
		}

		cond, err := metadataCondition(k, value)
		if err != nil {
			return nil, err
		}
		if negated {
			fs.AndNot(cond)
		} else {
			fs.And(cond)
		}
	}
	return fs, nil
}

func metadataCondition(key string, value any) (FilterCondition, error) {
	switch v := value.(type) {
	case string:
		return TextCondition{Key: key, Value: v, FieldType: MetadataField}, nil
	case bool:
		return BoolCondition{Key: key, Value: v, FieldType: MetadataField}, nil
	case []string:
		return TextAnyCondition{Key: key, Values: v, FieldType: MetadataField}, nil
	}

	if values, ok := graphstore.IntegralValues(value); ok {
		return IntAnyCondition{Key: key, Values: values, FieldType: MetadataField}, nil
	}
	if n, ok := graphstore.IntegralValue(value); ok {
		return IntCondition{Key: key, Value: n, FieldType: MetadataField}, nil
	}
	return nil, fmt.Errorf("%w: %s has type %T", ErrUnsupportedFilter, key, value)
}
