package bulk

import (
	"errors"
	"fmt"

	"trailrun-backend/internal/metadata"
)

// FilterEvaluator compiles filter conditions against the field catalog.
type FilterEvaluator struct {
	registry *metadata.Registry
}

func NewFilterEvaluator(reg *metadata.Registry) *FilterEvaluator {
	return &FilterEvaluator{registry: reg}
}

// Compile validates every condition and returns their conjunction. An empty
// list matches every record of the kind.
func (fe *FilterEvaluator) Compile(kind metadata.EntityKind, conds []FilterCondition) (*Predicate, error) {
	entity, err := fe.registry.Entity(kind)
	if err != nil {
		return nil, resolveKindError(kind, err)
	}

	pred := &Predicate{Kind: kind, Clauses: make([]Clause, 0, len(conds))}
	for _, cond := range conds {
		clause, err := compileCondition(entity, cond)
		if err != nil {
			return nil, err
		}
		pred.Clauses = append(pred.Clauses, clause)
	}
	return pred, nil
}

func compileCondition(entity *metadata.Entity, cond FilterCondition) (Clause, error) {
	f := entity.GetField(cond.Field)
	if f == nil {
		return Clause{}, InvalidFieldReferenceError(entity.Kind, cond.Field, "unknown field")
	}
	if !f.Filterable {
		return Clause{}, InvalidFieldReferenceError(entity.Kind, cond.Field, "field is not filterable")
	}
	if !OperatorAllowed(f.Type, cond.Operator) {
		return Clause{}, InvalidOperatorError(f, cond.Operator)
	}

	clause := Clause{Field: f.Name, Type: f.Type, Operator: cond.Operator}
	switch cond.Operator {
	case OpIsNull, OpIsNotNull:
		if cond.Value != nil {
			return Clause{}, InvalidValueTypeError(f, fmt.Errorf("operator %s takes no value", cond.Operator))
		}
		return clause, nil
	case OpIn:
		values, err := coerceList(f, cond.Value)
		if err != nil {
			return Clause{}, InvalidValueTypeError(f, err)
		}
		clause.Value = values
		return clause, nil
	}

	v, err := coerce(f, cond.Value)
	if err != nil {
		return Clause{}, InvalidValueTypeError(f, err)
	}
	clause.Value = v
	return clause, nil
}

func resolveKindError(kind metadata.EntityKind, err error) error {
	if errors.Is(err, metadata.ErrUnknownEntityKind) {
		return UnknownEntityKindError(kind)
	}
	return err
}
