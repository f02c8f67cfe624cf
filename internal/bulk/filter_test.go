package bulk

import (
	"errors"
	"testing"
	"time"

	"trailrun-backend/internal/metadata"
)

func TestCompile_BooleanOnlyAllowsEquals(t *testing.T) {
	fe := NewFilterEvaluator(testRegistry(t))

	ops := []FilterOperator{
		OpNotEquals, OpContains, OpStartsWith, OpEndsWith,
		OpGreaterThan, OpLessThan, OpIn, OpIsNull, OpIsNotNull, "bogus",
	}
	for _, op := range ops {
		_, err := fe.Compile("competitions", []FilterCondition{{Field: "featured", Operator: op, Value: true}})
		if !errors.Is(err, ErrInvalidOperatorForType) {
			t.Errorf("featured %s: expected INVALID_OPERATOR_FOR_TYPE, got %v", op, err)
		}
	}

	if _, err := fe.Compile("competitions", []FilterCondition{{Field: "featured", Operator: OpEquals, Value: true}}); err != nil {
		t.Fatalf("featured equals: %v", err)
	}
}

func TestCompile_OperatorLegalityTable(t *testing.T) {
	fe := NewFilterEvaluator(testRegistry(t))

	tests := []struct {
		kind  metadata.EntityKind
		field string
		op    FilterOperator
		value any
		ok    bool
	}{
		{"competitions", "name", OpContains, "trail", true},
		{"competitions", "name", OpGreaterThan, "a", false},
		{"competitions", "name", OpIn, []any{"a"}, false},
		{"editions", "price", OpGreaterThan, float64(50), true},
		{"editions", "price", OpContains, "5", false},
		{"editions", "start_date", OpLessThan, "2025-01-01", true},
		{"editions", "start_date", OpStartsWith, "2025", false},
		{"competitions", "status", OpIn, []any{"DRAFT", "PUBLISHED"}, true},
		{"competitions", "status", OpContains, "DRA", false},
		{"competitions", "status", OpIsNull, nil, false},
		{"competitions", "organizer_id", OpEquals, "org-1", true},
		{"competitions", "organizer_id", OpIsNull, nil, true},
		{"competitions", "organizer_id", OpNotEquals, "org-1", false},
		{"competitions", "organizer_id", OpIn, []any{"org-1"}, false},
		{"competitions", "id", OpIn, []any{"c-1", "c-2"}, true},
		{"competitions", "id", OpContains, "c-", false},
	}
	for _, tc := range tests {
		_, err := fe.Compile(tc.kind, []FilterCondition{{Field: tc.field, Operator: tc.op, Value: tc.value}})
		if tc.ok && err != nil {
			t.Errorf("%s.%s %s: unexpected error %v", tc.kind, tc.field, tc.op, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidOperatorForType) {
			t.Errorf("%s.%s %s: expected INVALID_OPERATOR_FOR_TYPE, got %v", tc.kind, tc.field, tc.op, err)
		}
	}
}

func TestCompile_InvalidFieldReference(t *testing.T) {
	fe := NewFilterEvaluator(testRegistry(t))

	_, err := fe.Compile("competitions", []FilterCondition{{Field: "nope", Operator: OpEquals, Value: "x"}})
	if !errors.Is(err, ErrInvalidFieldReference) {
		t.Fatalf("unknown field: expected INVALID_FIELD_REFERENCE, got %v", err)
	}

	// notes is editable but not filterable
	_, err = fe.Compile("editions", []FilterCondition{{Field: "notes", Operator: OpContains, Value: "x"}})
	if !errors.Is(err, ErrInvalidFieldReference) {
		t.Fatalf("non-filterable field: expected INVALID_FIELD_REFERENCE, got %v", err)
	}
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Details[0].Field != "notes" {
		t.Fatalf("expected details naming the field, got %+v", appErr)
	}
}

func TestCompile_InvalidValueType(t *testing.T) {
	fe := NewFilterEvaluator(testRegistry(t))

	tests := []struct {
		name string
		cond FilterCondition
		kind metadata.EntityKind
	}{
		{"non-numeric number", FilterCondition{Field: "price", Operator: OpGreaterThan, Value: "cheap"}, "editions"},
		{"bad date", FilterCondition{Field: "start_date", Operator: OpEquals, Value: "next june"}, "editions"},
		{"number for string", FilterCondition{Field: "name", Operator: OpEquals, Value: float64(3)}, "competitions"},
		{"enum outside set", FilterCondition{Field: "status", Operator: OpEquals, Value: "DELETED"}, "competitions"},
		{"enum list outside set", FilterCondition{Field: "status", Operator: OpIn, Value: []any{"DRAFT", "GONE"}}, "competitions"},
		{"in without list", FilterCondition{Field: "id", Operator: OpIn, Value: "c-1"}, "competitions"},
		{"null check with value", FilterCondition{Field: "country", Operator: OpIsNull, Value: "FR"}, "competitions"},
		{"equals without value", FilterCondition{Field: "name", Operator: OpEquals}, "competitions"},
		{"non-bool boolean", FilterCondition{Field: "featured", Operator: OpEquals, Value: "maybe"}, "competitions"},
	}
	for _, tc := range tests {
		_, err := fe.Compile(tc.kind, []FilterCondition{tc.cond})
		if !errors.Is(err, ErrInvalidValueType) {
			t.Errorf("%s: expected INVALID_VALUE_TYPE, got %v", tc.name, err)
		}
	}
}

func TestCompile_CoercesValues(t *testing.T) {
	fe := NewFilterEvaluator(testRegistry(t))

	pred, err := fe.Compile("editions", []FilterCondition{
		{Field: "price", Operator: OpLessThan, Value: "90"},
		{Field: "start_date", Operator: OpGreaterThan, Value: "2024-01-01"},
		{Field: "featured", Operator: OpEquals, Value: "false"},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if v, ok := pred.Clauses[0].Value.(float64); !ok || v != 90 {
		t.Fatalf("price not coerced to float64: %#v", pred.Clauses[0].Value)
	}
	if v, ok := pred.Clauses[1].Value.(time.Time); !ok || !v.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start_date not coerced to time: %#v", pred.Clauses[1].Value)
	}
	if v, ok := pred.Clauses[2].Value.(bool); !ok || v {
		t.Fatalf("featured not coerced to bool: %#v", pred.Clauses[2].Value)
	}
}

func TestCompile_UnknownKind(t *testing.T) {
	fe := NewFilterEvaluator(testRegistry(t))
	if _, err := fe.Compile("marathons", nil); !errors.Is(err, ErrUnknownEntityKind) {
		t.Fatalf("expected UNKNOWN_ENTITY_KIND, got %v", err)
	}
}

func TestPredicate_Match(t *testing.T) {
	fe := NewFilterEvaluator(testRegistry(t))
	rec := Record{"id": "c-1", "name": "Mont Blanc Trail", "status": "DRAFT", "featured": false, "country": nil, "organizer_id": "org-1"}

	tests := []struct {
		name  string
		conds []FilterCondition
		want  bool
	}{
		{"empty matches", nil, true},
		{"case-insensitive equals", []FilterCondition{{Field: "name", Operator: OpEquals, Value: "mont blanc trail"}}, true},
		{"contains", []FilterCondition{{Field: "name", Operator: OpContains, Value: "BLANC"}}, true},
		{"starts_with", []FilterCondition{{Field: "name", Operator: OpStartsWith, Value: "mont"}}, true},
		{"ends_with miss", []FilterCondition{{Field: "name", Operator: OpEndsWith, Value: "ultra"}}, false},
		{"null matches is_null", []FilterCondition{{Field: "country", Operator: OpIsNull}}, true},
		{"null never equals", []FilterCondition{{Field: "country", Operator: OpNotEquals, Value: "FR"}}, false},
		{"enum in", []FilterCondition{{Field: "status", Operator: OpIn, Value: []any{"PUBLISHED", "DRAFT"}}}, true},
		{"relation equals", []FilterCondition{{Field: "organizer_id", Operator: OpEquals, Value: "org-2"}}, false},
		{"conjunction", []FilterCondition{
			{Field: "status", Operator: OpEquals, Value: "DRAFT"},
			{Field: "featured", Operator: OpEquals, Value: true},
		}, false},
	}
	for _, tc := range tests {
		pred, err := fe.Compile("competitions", tc.conds)
		if err != nil {
			t.Fatalf("%s: compile: %v", tc.name, err)
		}
		if got := pred.Match(rec); got != tc.want {
			t.Errorf("%s: Match = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestPredicate_MatchOrdered(t *testing.T) {
	fe := NewFilterEvaluator(testRegistry(t))
	rec := Record{"id": "ed-1", "price": float64(80), "start_date": time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}

	pred, err := fe.Compile("editions", []FilterCondition{
		{Field: "price", Operator: OpGreaterThan, Value: float64(50)},
		{Field: "start_date", Operator: OpLessThan, Value: "2024-12-31"},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !pred.Match(rec) {
		t.Fatal("expected edition to match price > 50 and start_date < 2024-12-31")
	}

	pred, _ = fe.Compile("editions", []FilterCondition{{Field: "price", Operator: OpEquals, Value: float64(81)}})
	if pred.Match(rec) {
		t.Fatal("price 80 must not equal 81")
	}
}
