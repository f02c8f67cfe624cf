package metadata

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// EntityKind identifies one of the collections the bulk engine can edit.
type EntityKind string

type Entity struct {
	Kind    EntityKind `json:"kind" toml:"kind"`
	Label   string     `json:"label" toml:"label"`
	Table   string     `json:"-" toml:"table"`
	OrderBy string     `json:"-" toml:"order_by"`
	Display string     `json:"-" toml:"display"` // expr expression over the record's fields
	Fields  []Field    `json:"fields" toml:"fields"`

	display *vm.Program
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// FieldNames returns all field names, primary key first.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// EditableFields returns the fields a bulk operation may target.
func (e *Entity) EditableFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.Editable {
			fields = append(fields, f)
		}
	}
	return fields
}

// AutoUpdateFields returns fields stamped with the current time on every write.
func (e *Entity) AutoUpdateFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.IsAuto() {
			fields = append(fields, f)
		}
	}
	return fields
}

// DisplayName renders a record for operators using the kind's display
// expression. Falls back to the record id when the expression is missing
// or fails for this record.
func (e *Entity) DisplayName(record map[string]any) string {
	id := fmt.Sprint(record[IDField])
	if e.display == nil {
		return id
	}
	out, err := expr.Run(e.display, record)
	if err != nil || out == nil {
		return id
	}
	s := fmt.Sprint(out)
	if s == "" {
		return id
	}
	return s
}

func (e *Entity) compileDisplay() error {
	if e.Display == "" {
		return nil
	}
	prog, err := expr.Compile(e.Display, expr.AllowUndefinedVariables())
	if err != nil {
		return fmt.Errorf("kind %s: compile display expression: %w", e.Kind, err)
	}
	e.display = prog
	return nil
}
