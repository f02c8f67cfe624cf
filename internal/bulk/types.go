package bulk

import (
	"fmt"

	"trailrun-backend/internal/metadata"
)

type FilterOperator string

const (
	OpEquals      FilterOperator = "equals"
	OpNotEquals   FilterOperator = "not_equals"
	OpContains    FilterOperator = "contains"
	OpStartsWith  FilterOperator = "starts_with"
	OpEndsWith    FilterOperator = "ends_with"
	OpGreaterThan FilterOperator = "greater_than"
	OpLessThan    FilterOperator = "less_than"
	OpIn          FilterOperator = "in"
	OpIsNull      FilterOperator = "is_null"
	OpIsNotNull   FilterOperator = "is_not_null"
)

// operatorsByType is the legality table for filter operators.
var operatorsByType = map[metadata.FieldType][]FilterOperator{
	metadata.FieldString:   {OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith, OpIsNull, OpIsNotNull},
	metadata.FieldNumber:   {OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpIsNull, OpIsNotNull},
	metadata.FieldDate:     {OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpIsNull, OpIsNotNull},
	metadata.FieldBoolean:  {OpEquals},
	metadata.FieldEnum:     {OpEquals, OpNotEquals, OpIn},
	metadata.FieldRelation: {OpEquals, OpIsNull, OpIsNotNull},
	metadata.FieldID:       {OpEquals, OpIn},
}

// OperatorAllowed reports whether op may be applied to fields of type t.
func OperatorAllowed(t metadata.FieldType, op FilterOperator) bool {
	for _, allowed := range operatorsByType[t] {
		if allowed == op {
			return true
		}
	}
	return false
}

// AllowedOperators returns the operators legal for type t.
func AllowedOperators(t metadata.FieldType) []FilterOperator {
	ops := make([]FilterOperator, len(operatorsByType[t]))
	copy(ops, operatorsByType[t])
	return ops
}

type FilterCondition struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value,omitempty"`
}

// Operation is the single field replacement applied to every selected record.
type Operation struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Record is one stored row: field name to value, always carrying "id".
type Record map[string]any

func (r Record) ID() string {
	v, ok := r[metadata.IDField]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

type PreviewRecord struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	CurrentValue any    `json:"currentValue"`
	NewValue     any    `json:"newValue"`
}

type PreviewResult struct {
	MatchingCount   int             `json:"matchingCount"`
	MatchingRecords []PreviewRecord `json:"matchingRecords"`
}

type ExecuteResult struct {
	Success      bool  `json:"success"`
	UpdatedCount int64 `json:"updatedCount"`
}

// KindMetadata is the metadata payload for one entity kind.
type KindMetadata struct {
	Kind   metadata.EntityKind `json:"kind"`
	Label  string              `json:"label"`
	Fields []FieldMetadata     `json:"fields"`
}

// FieldMetadata is a catalog field plus the filter operators it accepts.
type FieldMetadata struct {
	metadata.Field
	Operators []FilterOperator `json:"operators,omitempty"`
}
