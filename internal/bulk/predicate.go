package bulk

import (
	"fmt"
	"strings"
	"time"

	"trailrun-backend/internal/metadata"
)

// Clause is one compiled filter condition. Value holds the coerced value:
// string, float64, bool, time.Time, []string for "in", or nil for the
// null checks.
type Clause struct {
	Field    string
	Type     metadata.FieldType
	Operator FilterOperator
	Value    any
}

// Predicate is a compiled conjunction of clauses over one kind. Entity store
// implementations translate it into their own query language; Match gives
// the reference semantics for in-process evaluation.
type Predicate struct {
	Kind    metadata.EntityKind
	Clauses []Clause
}

// MatchAll returns a predicate with no clauses.
func MatchAll(kind metadata.EntityKind) *Predicate {
	return &Predicate{Kind: kind}
}

// Match reports whether the record satisfies every clause. A stored null
// satisfies only is_null; string comparisons ignore case.
func (p *Predicate) Match(r Record) bool {
	for _, c := range p.Clauses {
		if !c.match(r[c.Field]) {
			return false
		}
	}
	return true
}

func (c Clause) match(v any) bool {
	switch c.Operator {
	case OpIsNull:
		return v == nil
	case OpIsNotNull:
		return v != nil
	}
	if v == nil {
		return false
	}

	switch c.Type {
	case metadata.FieldString:
		have := strings.ToLower(fmt.Sprint(v))
		want := strings.ToLower(c.Value.(string))
		switch c.Operator {
		case OpEquals:
			return have == want
		case OpNotEquals:
			return have != want
		case OpContains:
			return strings.Contains(have, want)
		case OpStartsWith:
			return strings.HasPrefix(have, want)
		case OpEndsWith:
			return strings.HasSuffix(have, want)
		}
	case metadata.FieldNumber:
		have, err := toNumber(v)
		if err != nil {
			return false
		}
		return compareOrdered(c.Operator, cmpFloat(have, c.Value.(float64)))
	case metadata.FieldDate:
		have, err := toDate(v)
		if err != nil {
			return false
		}
		return compareOrdered(c.Operator, have.Compare(c.Value.(time.Time)))
	case metadata.FieldBoolean:
		have, err := toBool(v)
		if err != nil {
			return false
		}
		return c.Operator == OpEquals && have == c.Value.(bool)
	case metadata.FieldEnum, metadata.FieldRelation, metadata.FieldID:
		have := fmt.Sprint(v)
		switch c.Operator {
		case OpEquals:
			return have == c.Value.(string)
		case OpNotEquals:
			return have != c.Value.(string)
		case OpIn:
			for _, want := range c.Value.([]string) {
				if have == want {
					return true
				}
			}
			return false
		}
	}
	return false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareOrdered(op FilterOperator, cmp int) bool {
	switch op {
	case OpEquals:
		return cmp == 0
	case OpNotEquals:
		return cmp != 0
	case OpGreaterThan:
		return cmp > 0
	case OpLessThan:
		return cmp < 0
	}
	return false
}
